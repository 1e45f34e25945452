// Package stats composes ledgers, interaction history and gamification into read models.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/gamification"
	"github.com/digkill/engagebot/internal/interaction"
	"github.com/digkill/engagebot/internal/metrics"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/usage"
)

// ErrUnavailable wraps every read failure surfaced to callers.
var ErrUnavailable = errors.New("stats temporarily unavailable")

type ReviewSource interface {
	ReviewSnapshot(ctx context.Context, restaurantID string) (models.ReviewSnapshot, error)
}

// Cache stores encoded summaries. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Notifier is told about gamification transitions worth surfacing to an owner.
type Notifier interface {
	NotifyProgress(ctx context.Context, restaurantID string, state models.GamificationState, tr gamification.Transition) error
}

type Scope struct {
	AccountID    string
	RestaurantID string
}

type Trends struct {
	MenusSent        int `json:"menusSent"`
	ReviewRequests   int `json:"reviewRequests"`
	ReviewsCollected int `json:"reviewsCollected"`
}

type WeeklyGoal struct {
	WeekStart time.Time `json:"weekStart"`
	Target    int       `json:"target"`
	Achieved  int       `json:"achieved"`
	Progress  int       `json:"progress"`
}

type MessageStats struct {
	MenuMessages     models.UsageCounter `json:"menuMessages"`
	ReviewMessages   models.UsageCounter `json:"reviewMessages"`
	CampaignMessages models.UsageCounter `json:"campaignMessages"`
	InboundMessages  models.UsageCounter `json:"inboundMessages"`
}

type Summary struct {
	AccountID             string                     `json:"accountId,omitempty"`
	RestaurantID          string                     `json:"restaurantId,omitempty"`
	Period                period.Kind                `json:"period"`
	WindowStart           time.Time                  `json:"windowStart"`
	WindowEnd             time.Time                  `json:"windowEnd"`
	MenusSent             int                        `json:"menusSent"`
	ReviewRequests        int                        `json:"reviewRequests"`
	ReviewsCollected      int                        `json:"reviewsCollected"`
	Trends                Trends                     `json:"trends"`
	TotalReviewsCollected int                        `json:"totalReviewsCollected"`
	Level                 int                        `json:"level"`
	ReviewsToNextLevel    int                        `json:"reviewsToNextLevel"`
	CurrentStreak         int                        `json:"currentStreak"`
	LongestStreak         int                        `json:"longestStreak"`
	WeeklyGoal            WeeklyGoal                 `json:"weeklyGoal"`
	Achievements          []gamification.Achievement `json:"achievements"`
	MessageStats          MessageStats               `json:"messageStats"`
	TotalStats            models.UsageTotals         `json:"totalStats"`
	RateVersion           string                     `json:"rateVersion,omitempty"`
	GeneratedAt           time.Time                  `json:"generatedAt"`
}

type Aggregator struct {
	log         *slog.Logger
	clock       clock.Clock
	calendar    period.Calendar
	ledger      *usage.Ledger
	tracker     *interaction.Tracker
	engine      *gamification.Engine
	reviews     ReviewSource
	cache       Cache
	notifier    Notifier
	rateVersion string
}

type Options struct {
	Cache       Cache
	Notifier    Notifier
	RateVersion string
}

func NewAggregator(log *slog.Logger, clk clock.Clock, calendar period.Calendar, ledger *usage.Ledger, tracker *interaction.Tracker, engine *gamification.Engine, reviews ReviewSource, opts Options) *Aggregator {
	return &Aggregator{
		log:         log,
		clock:       clk,
		calendar:    calendar,
		ledger:      ledger,
		tracker:     tracker,
		engine:      engine,
		reviews:     reviews,
		cache:       opts.Cache,
		notifier:    opts.Notifier,
		rateVersion: opts.RateVersion,
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Summarize builds the summary for scope over the current window of kind.
// A restaurant scope also advances that restaurant's gamification state.
func (a *Aggregator) Summarize(ctx context.Context, scope Scope, kind period.Kind) (*Summary, error) {
	started := time.Now()
	s, err := a.summarize(ctx, scope, kind)
	metrics.RecordStats("summary", err == nil, time.Since(started))
	return s, err
}

func (a *Aggregator) summarize(ctx context.Context, scope Scope, kind period.Kind) (*Summary, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown period %q", models.ErrInvalidArgument, kind)
	}
	cacheKey := fmt.Sprintf("summary:%s:%s:%s", scope.AccountID, scope.RestaurantID, kind)
	if cached := a.cachedSummary(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	now := a.clock.Now()
	window := a.calendar.Current(kind, now)
	previous := a.calendar.Previous(kind, window)

	s := &Summary{
		AccountID:    scope.AccountID,
		RestaurantID: scope.RestaurantID,
		Period:       kind,
		WindowStart:  window.Start,
		WindowEnd:    window.End,
		RateVersion:  a.rateVersion,
		GeneratedAt:  now,
	}

	var prevMenus, prevRequests int
	var err error
	if s.MenusSent, prevMenus, err = a.countPair(ctx, scope, models.EventMenuViewed, window, previous); err != nil {
		return nil, unavailable("count menus", err)
	}
	if s.ReviewRequests, prevRequests, err = a.countPair(ctx, scope, models.EventReviewRequested, window, previous); err != nil {
		return nil, unavailable("count review requests", err)
	}

	if err := a.fillUsage(ctx, scope, s); err != nil {
		return nil, unavailable("usage totals", err)
	}

	restaurants, err := a.restaurantsIn(ctx, scope)
	if err != nil {
		return nil, unavailable("list restaurants", err)
	}

	weekWindow := a.calendar.Current(period.Weekly, now)
	lastWeek := a.calendar.Previous(period.Weekly, weekWindow)
	lastWeekRequests, err := a.tracker.CountEvents(ctx, eventQuery(scope, models.EventReviewRequested, lastWeek))
	if err != nil {
		return nil, unavailable("count last week requests", err)
	}
	target := gamification.ComputeWeeklyGoal(lastWeekRequests)

	var prevCollected, weekAchieved int
	for _, restaurantID := range restaurants {
		snap, err := a.reviews.ReviewSnapshot(ctx, restaurantID)
		if err != nil {
			return nil, unavailable("review snapshot", err)
		}
		s.TotalReviewsCollected += snap.Collected()
		if snap.HasTimestamps {
			s.ReviewsCollected += countIn(snap.Timestamps, window, kind)
			prevCollected += countIn(snap.Timestamps, previous, kind)
			weekAchieved += countIn(snap.Timestamps, weekWindow, period.Weekly)
			continue
		}
		s.ReviewsCollected += snap.Collected()
		completed, err := a.tracker.CountEvents(ctx, interaction.EventQuery{
			RestaurantID: restaurantID,
			Kind:         models.EventReviewCompleted,
			From:         weekWindow.Start,
			To:           weekWindow.End,
		})
		if err != nil {
			return nil, unavailable("count completed reviews", err)
		}
		weekAchieved += completed
	}

	s.Trends = Trends{
		MenusSent:        Trend(int64(s.MenusSent), int64(prevMenus)),
		ReviewRequests:   Trend(int64(s.ReviewRequests), int64(prevRequests)),
		ReviewsCollected: Trend(int64(s.ReviewsCollected), int64(prevCollected)),
	}
	s.Level, s.ReviewsToNextLevel = gamification.ComputeLevel(s.TotalReviewsCollected)
	s.WeeklyGoal = WeeklyGoal{
		WeekStart: weekWindow.Start,
		Target:    target,
		Achieved:  weekAchieved,
		Progress:  gamification.WeeklyProgress(target, weekAchieved),
	}

	if scope.RestaurantID != "" {
		state, tr, err := a.engine.Update(ctx, scope.RestaurantID, gamification.Progress{
			TotalReviews:     s.TotalReviewsCollected,
			WeekTarget:       target,
			WeekAchieved:     weekAchieved,
			ReferenceInstant: now,
		})
		if err != nil {
			return nil, unavailable("update gamification", err)
		}
		s.CurrentStreak = state.CurrentStreak
		s.LongestStreak = state.LongestStreak
		a.notify(ctx, scope.RestaurantID, state, tr)
	} else {
		for _, restaurantID := range restaurants {
			state, err := a.engine.Get(ctx, restaurantID)
			if err != nil {
				return nil, unavailable("read gamification", err)
			}
			if state == nil {
				continue
			}
			s.CurrentStreak = max(s.CurrentStreak, state.CurrentStreak)
			s.LongestStreak = max(s.LongestStreak, state.LongestStreak)
		}
	}

	s.Achievements = a.engine.Achievements(gamification.Totals{
		TotalReviews:   s.TotalReviewsCollected,
		CurrentStreak:  s.CurrentStreak,
		LongestStreak:  s.LongestStreak,
		Level:          s.Level,
		WeeklyProgress: s.WeeklyGoal.Progress,
	})

	a.storeSummary(ctx, cacheKey, s)
	return s, nil
}

func (a *Aggregator) countPair(ctx context.Context, scope Scope, kind models.EventKind, current, previous period.Window) (int, int, error) {
	cur, err := a.tracker.CountEvents(ctx, eventQuery(scope, kind, current))
	if err != nil {
		return 0, 0, err
	}
	if previous.Start.IsZero() && previous.End.IsZero() {
		return cur, 0, nil
	}
	prev, err := a.tracker.CountEvents(ctx, eventQuery(scope, kind, previous))
	if err != nil {
		return 0, 0, err
	}
	return cur, prev, nil
}

func (a *Aggregator) fillUsage(ctx context.Context, scope Scope, s *Summary) error {
	records, err := a.ledger.List(ctx, usage.Query{
		AccountID:    scope.AccountID,
		RestaurantID: scope.RestaurantID,
		Period:       period.Total,
	})
	if err != nil {
		return err
	}
	var agg models.UsageRecord
	for _, rec := range records {
		addCounter(&agg.Menu, rec.Menu)
		addCounter(&agg.Review, rec.Review)
		addCounter(&agg.Campaign, rec.Campaign)
		addCounter(&agg.Inbound, rec.Inbound)
	}
	agg.RecomputeTotals()
	s.MessageStats = MessageStats{
		MenuMessages:     agg.Menu,
		ReviewMessages:   agg.Review,
		CampaignMessages: agg.Campaign,
		InboundMessages:  agg.Inbound,
	}
	s.TotalStats = agg.Totals
	return nil
}

// restaurantsIn resolves the restaurants covered by scope from the total usage buckets.
func (a *Aggregator) restaurantsIn(ctx context.Context, scope Scope) ([]string, error) {
	if scope.RestaurantID != "" {
		return []string{scope.RestaurantID}, nil
	}
	records, err := a.ledger.List(ctx, usage.Query{AccountID: scope.AccountID, Period: period.Total})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, rec := range records {
		if rec.RestaurantID == "" || seen[rec.RestaurantID] {
			continue
		}
		seen[rec.RestaurantID] = true
		out = append(out, rec.RestaurantID)
	}
	return out, nil
}

func (a *Aggregator) notify(ctx context.Context, restaurantID string, state models.GamificationState, tr gamification.Transition) {
	if a.notifier == nil || (!tr.LevelUp && !tr.GoalCompleted && len(tr.Unlocked) == 0) {
		return
	}
	if err := a.notifier.NotifyProgress(ctx, restaurantID, state, tr); err != nil {
		a.log.Warn("progress notification failed", "restaurant", restaurantID, "err", err)
	}
}

func (a *Aggregator) cachedSummary(ctx context.Context, key string) *Summary {
	if a.cache == nil {
		return nil
	}
	data, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.log.Warn("stats cache get", "key", key, "err", err)
		return nil
	}
	if !ok {
		return nil
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		a.log.Warn("stats cache decode", "key", key, "err", err)
		return nil
	}
	return &s
}

func (a *Aggregator) storeSummary(ctx context.Context, key string, s *Summary) {
	if a.cache == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		a.log.Warn("stats cache encode", "key", key, "err", err)
		return
	}
	if err := a.cache.Set(ctx, key, data); err != nil {
		a.log.Warn("stats cache set", "key", key, "err", err)
	}
}

func eventQuery(scope Scope, kind models.EventKind, w period.Window) interaction.EventQuery {
	return interaction.EventQuery{
		AccountID:    scope.AccountID,
		RestaurantID: scope.RestaurantID,
		Kind:         kind,
		From:         w.Start,
		To:           w.End,
	}
}

func countIn(ts []time.Time, w period.Window, kind period.Kind) int {
	if w.Start.IsZero() && w.End.IsZero() {
		return 0
	}
	if kind == period.Total {
		return len(ts)
	}
	n := 0
	for _, t := range ts {
		if w.Contains(t) {
			n++
		}
	}
	return n
}

func addCounter(dst *models.UsageCounter, src models.UsageCounter) {
	dst.Conversations += src.Conversations
	dst.Messages += src.Messages
	dst.Cost += src.Cost
}
