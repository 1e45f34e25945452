package interaction

import (
	"math"
	"strconv"
	"strings"

	"github.com/digkill/engagebot/internal/models"
)

// Project recomputes the review sub-record from the event log and moves the
// lifecycle to completed once a review_completed event exists.
func Project(it *models.Interaction) {
	var review models.ReviewState
	for i := range it.Events {
		ev := it.Events[i]
		switch ev.Kind {
		case models.EventReviewRequested:
			if !review.Requested {
				at := ev.At
				review.Requested = true
				review.RequestedAt = &at
			}
		case models.EventReviewCompleted:
			if !review.Completed {
				at := ev.At
				review.Completed = true
				review.CompletedAt = &at
			}
			if rating, ok := ratingFrom(ev.Detail); ok {
				review.Rating = rating
			}
			if platform, ok := ev.Detail["platform"].(string); ok && strings.TrimSpace(platform) != "" {
				review.Platform = strings.TrimSpace(platform)
			}
		}
	}
	it.Review = review
	if review.Completed {
		it.Status = models.StatusCompleted
	} else if it.Status == "" {
		it.Status = models.StatusActive
	}
}

func ratingFrom(detail map[string]any) (int, bool) {
	raw, ok := detail["rating"]
	if !ok {
		return 0, false
	}
	var rating int
	switch v := raw.(type) {
	case int:
		rating = v
	case int64:
		rating = int(v)
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		rating = int(v)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		rating = parsed
	default:
		return 0, false
	}
	if rating < 1 || rating > 5 {
		return 0, false
	}
	return rating, true
}
