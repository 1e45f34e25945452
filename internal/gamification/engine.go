package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/keylock"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
)

const defaultMaxRetries = 5

type Store interface {
	GetGamification(ctx context.Context, restaurantID string) (*models.GamificationState, error)
	CreateGamification(ctx context.Context, state *models.GamificationState) error
	SaveGamification(ctx context.Context, state *models.GamificationState, expectedVersion int64) error
}

// Progress is the caller's view of a restaurant for the current week.
type Progress struct {
	TotalReviews     int
	WeekTarget       int
	WeekAchieved     int
	ReferenceInstant time.Time
}

// Transition describes what changed in one Update.
type Transition struct {
	LevelUp       bool
	GoalCompleted bool
	Unlocked      []Achievement
}

// Engine is the only writer of GamificationState.
type Engine struct {
	store      Store
	calendar   period.Calendar
	clock      clock.Clock
	defs       []AchievementDef
	locks      *keylock.Arena
	maxRetries int
}

func NewEngine(store Store, calendar period.Calendar, clk clock.Clock, defs []AchievementDef) *Engine {
	if defs == nil {
		defs = DefaultAchievements()
	}
	return &Engine{
		store:      store,
		calendar:   calendar,
		clock:      clk,
		defs:       defs,
		locks:      keylock.New(),
		maxRetries: defaultMaxRetries,
	}
}

func (e *Engine) Definitions() []AchievementDef {
	return e.defs
}

func (e *Engine) Achievements(totals Totals) []Achievement {
	return ComputeAchievements(e.defs, totals)
}

func (e *Engine) Get(ctx context.Context, restaurantID string) (*models.GamificationState, error) {
	return e.store.GetGamification(ctx, restaurantID)
}

// Update folds p into the restaurant's state atomically and reports the transition.
func (e *Engine) Update(ctx context.Context, restaurantID string, p Progress) (models.GamificationState, Transition, error) {
	if restaurantID == "" {
		return models.GamificationState{}, Transition{}, fmt.Errorf("%w: restaurant is required", models.ErrInvalidArgument)
	}
	now := e.clock.Now()
	ref := p.ReferenceInstant
	if ref.IsZero() {
		ref = now
	}
	weekStart := e.calendar.WeekStart(ref)
	level, _ := ComputeLevel(p.TotalReviews)

	unlock := e.locks.Lock(restaurantID)
	defer unlock()

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		current, err := e.getOrCreate(ctx, restaurantID)
		if err != nil {
			return models.GamificationState{}, Transition{}, err
		}

		history := UpsertWeek(current.WeeklyGoals, models.WeeklyGoal{
			WeekStart: weekStart,
			Target:    p.WeekTarget,
			Achieved:  p.WeekAchieved,
			Completed: p.WeekTarget > 0 && p.WeekAchieved >= p.WeekTarget,
		})
		next := Apply(*current, Update{
			WeekStart:  weekStart,
			Target:     p.WeekTarget,
			Achieved:   p.WeekAchieved,
			Level:      level,
			Experience: p.TotalReviews,
			Streak:     ComputeStreak(history),
			Now:        now,
		})

		err = e.store.SaveGamification(ctx, &next, current.Version)
		if errors.Is(err, models.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return models.GamificationState{}, Transition{}, fmt.Errorf("save gamification: %w", err)
		}
		next.Version = current.Version + 1

		tr := Transition{
			GoalCompleted: next.LastCompletedAt != nil && (current.LastCompletedAt == nil || !next.LastCompletedAt.Equal(*current.LastCompletedAt)),
		}
		// A never-updated state is the baseline; nothing before it to compare against.
		if current.Version > 0 {
			tr.LevelUp = next.Level > current.Level
			before := e.Achievements(totalsOf(*current, current.TotalExperience, weekStart))
			after := e.Achievements(totalsOf(next, p.TotalReviews, weekStart))
			tr.Unlocked = NewlyUnlocked(before, after)
		}
		return next, tr, nil
	}
	return models.GamificationState{}, Transition{}, fmt.Errorf("save gamification: %w", models.ErrVersionConflict)
}

func (e *Engine) getOrCreate(ctx context.Context, restaurantID string) (*models.GamificationState, error) {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		state, err := e.store.GetGamification(ctx, restaurantID)
		if err != nil {
			return nil, fmt.Errorf("get gamification: %w", err)
		}
		if state != nil {
			return state, nil
		}
		state = &models.GamificationState{
			RestaurantID: restaurantID,
			Level:        1,
			UpdatedAt:    e.clock.Now(),
		}
		err = e.store.CreateGamification(ctx, state)
		if errors.Is(err, models.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create gamification: %w", err)
		}
		return state, nil
	}
	return nil, fmt.Errorf("create gamification: %w", models.ErrVersionConflict)
}

// TotalsFor builds achievement inputs from a persisted state.
func TotalsFor(state models.GamificationState, totalReviews int, weekStart time.Time) Totals {
	return totalsOf(state, totalReviews, weekStart)
}

func totalsOf(state models.GamificationState, totalReviews int, weekStart time.Time) Totals {
	t := Totals{
		TotalReviews:  totalReviews,
		CurrentStreak: state.CurrentStreak,
		LongestStreak: state.LongestStreak,
		Level:         state.Level,
	}
	for _, g := range state.WeeklyGoals {
		if g.WeekStart.Equal(weekStart) {
			t.WeeklyProgress = WeeklyProgress(g.Target, g.Achieved)
			break
		}
	}
	return t
}
