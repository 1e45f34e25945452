// Package review decides when a delayed review request may be sent.
package review

import (
	"time"

	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/models"
)

const DefaultDelayHours = 2

type Config struct {
	DelayHours float64
}

func (c Config) delay() time.Duration {
	hours := c.DelayHours
	if hours <= 0 {
		hours = DefaultDelayHours
	}
	return time.Duration(hours * float64(time.Hour))
}

// Gate is stateless apart from its clock; callers record review_requested themselves when it fires.
type Gate struct {
	clock  clock.Clock
	config Config
}

func NewGate(clk clock.Clock, cfg Config) *Gate {
	return &Gate{clock: clk, config: cfg}
}

// IsEligible is false once a review was requested, otherwise true when the delay since first contact has passed.
func (g *Gate) IsEligible(it *models.Interaction) bool {
	if it == nil || it.Review.Requested {
		return false
	}
	return !g.clock.Now().Before(g.DueAt(it))
}

// DueAt is the earliest instant a review request may be sent for it.
func (g *Gate) DueAt(it *models.Interaction) time.Time {
	return it.FirstInteractionAt.Add(g.config.delay())
}
