package models

import (
	"time"

	"github.com/digkill/engagebot/internal/period"
)

type MessageKind string

const (
	MessageMenu     MessageKind = "menu"
	MessageReview   MessageKind = "review"
	MessageCampaign MessageKind = "campaign"
	MessageInbound  MessageKind = "inbound"
)

// MessageKinds is the fixed set of billable message kinds, in display order.
var MessageKinds = []MessageKind{MessageMenu, MessageReview, MessageCampaign, MessageInbound}

func (k MessageKind) Valid() bool {
	switch k {
	case MessageMenu, MessageReview, MessageCampaign, MessageInbound:
		return true
	}
	return false
}

type ConversationType string

const (
	ConversationUtility        ConversationType = "utility"
	ConversationAuthentication ConversationType = "authentication"
	ConversationMarketing      ConversationType = "marketing"
	ConversationService        ConversationType = "service"
)

type EventKind string

const (
	EventMenuViewed      EventKind = "menu_viewed"
	EventInfoRequested   EventKind = "info_requested"
	EventOrderIntent     EventKind = "order_intent"
	EventReviewRequested EventKind = "review_requested"
	EventReviewCompleted EventKind = "review_completed"
	EventOther           EventKind = "other"
)

func (k EventKind) Valid() bool {
	switch k {
	case EventMenuViewed, EventInfoRequested, EventOrderIntent, EventReviewRequested, EventReviewCompleted, EventOther:
		return true
	}
	return false
}

type InteractionStatus string

const (
	StatusActive    InteractionStatus = "active"
	StatusCompleted InteractionStatus = "completed"
	StatusAbandoned InteractionStatus = "abandoned"
)

type Event struct {
	ID     string         `json:"id"`
	Kind   EventKind      `json:"kind"`
	At     time.Time      `json:"at"`
	Detail map[string]any `json:"detail,omitempty"`
}

type ReviewState struct {
	Requested   bool       `json:"requested"`
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Platform    string     `json:"platform,omitempty"`
	Rating      int        `json:"rating,omitempty"`
}

// Interaction is the lifecycle record of one customer at one restaurant.
// Review and Status are derived from Events.
type Interaction struct {
	AccountID          string            `json:"account_id"`
	RestaurantID       string            `json:"restaurant_id"`
	PhoneHash          string            `json:"phone_hash"`
	FirstInteractionAt time.Time         `json:"first_interaction_at"`
	LastActiveAt       time.Time         `json:"last_active_at"`
	Events             []Event           `json:"events"`
	Status             InteractionStatus `json:"status"`
	Review             ReviewState       `json:"review"`
	Version            int64             `json:"-"`
}

// Clone returns a copy whose event slice can be appended to without aliasing.
func (it *Interaction) Clone() *Interaction {
	cp := *it
	cp.Events = append([]Event(nil), it.Events...)
	return &cp
}

type UsageCounter struct {
	Conversations int64 `json:"conversations"`
	Messages      int64 `json:"messages"`
	Cost          Money `json:"cost"`
}

type UsageTotals struct {
	TotalConversations int64 `json:"totalConversations"`
	TotalMessages      int64 `json:"totalMessages"`
	TotalCost          Money `json:"totalCost"`
}

type UsageRecord struct {
	AccountID    string       `json:"account_id"`
	RestaurantID string       `json:"restaurant_id"`
	Period       period.Kind  `json:"period"`
	PeriodStart  time.Time    `json:"period_start"`
	Menu         UsageCounter `json:"menuMessages"`
	Review       UsageCounter `json:"reviewMessages"`
	Campaign     UsageCounter `json:"campaignMessages"`
	Inbound      UsageCounter `json:"inboundMessages"`
	Totals       UsageTotals  `json:"totals"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Version      int64        `json:"-"`
}

// Counter returns the counter for kind, or nil for an unknown kind.
func (r *UsageRecord) Counter(kind MessageKind) *UsageCounter {
	switch kind {
	case MessageMenu:
		return &r.Menu
	case MessageReview:
		return &r.Review
	case MessageCampaign:
		return &r.Campaign
	case MessageInbound:
		return &r.Inbound
	}
	return nil
}

// RecomputeTotals sets Totals to the exact sum of the four kind counters.
func (r *UsageRecord) RecomputeTotals() {
	var t UsageTotals
	for _, c := range []UsageCounter{r.Menu, r.Review, r.Campaign, r.Inbound} {
		t.TotalConversations += c.Conversations
		t.TotalMessages += c.Messages
		t.TotalCost += c.Cost
	}
	r.Totals = t
}

type WeeklyGoal struct {
	WeekStart time.Time `json:"week_start"`
	Target    int       `json:"target"`
	Achieved  int       `json:"achieved"`
	Completed bool      `json:"completed"`
}

type GamificationState struct {
	RestaurantID    string       `json:"restaurant_id"`
	Level           int          `json:"level"`
	TotalExperience int          `json:"total_experience"`
	CurrentStreak   int          `json:"current_streak"`
	LongestStreak   int          `json:"longest_streak"`
	WeeklyGoals     []WeeklyGoal `json:"weekly_goals"`
	LastCompletedAt *time.Time   `json:"last_completed_at,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Version         int64        `json:"-"`
}

// ReviewSnapshot is the externally supplied review count of a restaurant.
type ReviewSnapshot struct {
	RestaurantID  string
	InitialCount  int
	CurrentCount  int
	Timestamps    []time.Time
	HasTimestamps bool
}

// Collected returns reviews gained since the baseline, never negative.
func (s ReviewSnapshot) Collected() int {
	if d := s.CurrentCount - s.InitialCount; d > 0 {
		return d
	}
	return 0
}
