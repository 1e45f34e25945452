package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/interaction"
	"github.com/digkill/engagebot/internal/metrics"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/review"
	"github.com/digkill/engagebot/internal/usage"
)

// DeliveryEvent is one confirmation from the messaging provider feed.
// Either Phone or PhoneHash identifies the customer; the raw phone is never stored.
type DeliveryEvent struct {
	AccountID    string
	RestaurantID string
	Phone        string
	PhoneHash    string
	Kind         models.MessageKind
	Category     string
	EventKind    models.EventKind
	Detail       map[string]any
}

type DeliveryResult struct {
	Interaction *models.Interaction
	Tier        models.ConversationType
	Cost        models.Money
	Billed      bool
	ReviewDue   bool
	ReviewDueAt time.Time
}

type ReviewCompletion struct {
	AccountID    string
	RestaurantID string
	Phone        string
	PhoneHash    string
	Rating       int
	Platform     string
}

type DueReview struct {
	PhoneHash          string    `json:"phone_hash"`
	FirstInteractionAt time.Time `json:"first_interaction_at"`
	DueAt              time.Time `json:"due_at"`
}

type EngagementService struct {
	log     *slog.Logger
	clock   clock.Clock
	tracker *interaction.Tracker
	ledger  *usage.Ledger
	gate    *review.Gate
}

func NewEngagementService(log *slog.Logger, clk clock.Clock, tracker *interaction.Tracker, ledger *usage.Ledger, gate *review.Gate) *EngagementService {
	return &EngagementService{
		log:     log,
		clock:   clk,
		tracker: tracker,
		ledger:  ledger,
		gate:    gate,
	}
}

var defaultEventKinds = map[models.MessageKind]models.EventKind{
	models.MessageMenu:     models.EventMenuViewed,
	models.MessageReview:   models.EventReviewRequested,
	models.MessageCampaign: models.EventOther,
	models.MessageInbound:  models.EventInfoRequested,
}

// HandleDelivery logs the interaction event, bills the message and reports whether a review request is due.
// Ledger failures are logged and counted but never fail the delivery.
func (s *EngagementService) HandleDelivery(ctx context.Context, ev DeliveryEvent) (*DeliveryResult, error) {
	if !ev.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %q", models.ErrInvalidArgument, ev.Kind)
	}
	if ev.AccountID == "" || ev.RestaurantID == "" {
		return nil, fmt.Errorf("%w: account and restaurant are required", models.ErrInvalidArgument)
	}
	hash, err := resolveHash(ev.Phone, ev.PhoneHash)
	if err != nil {
		return nil, err
	}
	eventKind := ev.EventKind
	if eventKind == "" {
		eventKind = defaultEventKinds[ev.Kind]
	}

	it, err := s.tracker.AddEvent(ctx, ev.AccountID, ev.RestaurantID, hash, eventKind, ev.Detail)
	if err != nil {
		return nil, fmt.Errorf("track delivery: %w", err)
	}
	metrics.RecordDelivery(string(ev.Kind))

	tier, cost := s.ledger.Quote(ev.Kind, ev.Category)
	res := &DeliveryResult{Interaction: it, Tier: tier, Cost: cost}

	if _, err := s.ledger.RecordAll(ctx, ev.AccountID, ev.RestaurantID, s.clock.Now(), ev.Kind, ev.Category); err != nil {
		metrics.RecordLedgerFailure(string(ev.Kind))
		s.log.Error("usage ledger record failed", "account", ev.AccountID, "restaurant", ev.RestaurantID, "kind", ev.Kind, "err", err)
	} else {
		res.Billed = true
		metrics.RecordBilled(string(ev.Kind), string(tier), cost.Float64())
	}

	res.ReviewDueAt = s.gate.DueAt(it)
	if it.Status == models.StatusActive && s.gate.IsEligible(it) {
		res.ReviewDue = true
		metrics.RecordReviewDue()
	}
	return res, nil
}

func (s *EngagementService) CompleteReview(ctx context.Context, rc ReviewCompletion) (*models.Interaction, error) {
	hash, err := resolveHash(rc.Phone, rc.PhoneHash)
	if err != nil {
		return nil, err
	}
	detail := map[string]any{}
	if rc.Rating != 0 {
		detail["rating"] = rc.Rating
	}
	if p := strings.TrimSpace(rc.Platform); p != "" {
		detail["platform"] = p
	}
	it, err := s.tracker.AddEvent(ctx, rc.AccountID, rc.RestaurantID, hash, models.EventReviewCompleted, detail)
	if err != nil {
		return nil, fmt.Errorf("complete review: %w", err)
	}
	return it, nil
}

// DueReviews lists active interactions at restaurantID whose review request may be sent now.
func (s *EngagementService) DueReviews(ctx context.Context, restaurantID string) ([]DueReview, error) {
	list, err := s.tracker.List(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	due := make([]DueReview, 0)
	for i := range list {
		it := &list[i]
		if it.Status != models.StatusActive || !s.gate.IsEligible(it) {
			continue
		}
		due = append(due, DueReview{
			PhoneHash:          it.PhoneHash,
			FirstInteractionAt: it.FirstInteractionAt,
			DueAt:              s.gate.DueAt(it),
		})
	}
	return due, nil
}

func (s *EngagementService) Abandon(ctx context.Context, restaurantID, phone, phoneHash string) (*models.Interaction, error) {
	hash, err := resolveHash(phone, phoneHash)
	if err != nil {
		return nil, err
	}
	it, err := s.tracker.Abandon(ctx, restaurantID, hash)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, models.ErrNotFound
	}
	return it, nil
}

func (s *EngagementService) Interaction(ctx context.Context, restaurantID, phone, phoneHash string) (*models.Interaction, error) {
	hash, err := resolveHash(phone, phoneHash)
	if err != nil {
		return nil, err
	}
	it, err := s.tracker.Get(ctx, restaurantID, hash)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, models.ErrNotFound
	}
	return it, nil
}

func resolveHash(phone, phoneHash string) (string, error) {
	if h := strings.TrimSpace(phoneHash); h != "" {
		if !interaction.ValidHash(h) {
			return "", fmt.Errorf("%w: phone_hash must be a hex sha-256 digest", models.ErrInvalidArgument)
		}
		return h, nil
	}
	return interaction.HashIdentifier(phone)
}
