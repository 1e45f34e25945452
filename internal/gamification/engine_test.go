package gamification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/gamification"
	"github.com/digkill/engagebot/internal/memstore"
	"github.com/digkill/engagebot/internal/period"
)

func TestEngine_UpdateTracksWeeksAndStreaks(t *testing.T) {
	// Wednesday 2024-05-08; weeks start on Sunday.
	clk := clock.NewManual(time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC))
	engine := gamification.NewEngine(memstore.New(), period.NewCalendar(time.Sunday), clk, nil)
	ctx := context.Background()

	state, tr, err := engine.Update(ctx, "rest", gamification.Progress{TotalReviews: 3, WeekTarget: 2, WeekAchieved: 2})
	require.NoError(t, err)
	assert.True(t, tr.GoalCompleted)
	assert.False(t, tr.LevelUp, "first update is the baseline")
	assert.Equal(t, 1, state.CurrentStreak)
	require.Len(t, state.WeeklyGoals, 1)
	assert.Equal(t, time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC), state.WeeklyGoals[0].WeekStart)

	// Same week, later in the day: replaces rather than appends.
	clk.Advance(5 * time.Hour)
	state, tr, err = engine.Update(ctx, "rest", gamification.Progress{TotalReviews: 12, WeekTarget: 2, WeekAchieved: 3})
	require.NoError(t, err)
	require.Len(t, state.WeeklyGoals, 1)
	assert.False(t, tr.GoalCompleted, "already completed this week")
	assert.True(t, tr.LevelUp)
	assert.Equal(t, 2, state.Level)
	assert.Equal(t, 12, state.TotalExperience)
	var ids []string
	for _, a := range tr.Unlocked {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"reviews_5", "reviews_10"}, ids)

	// Next week, missed goal: streak resets, longest survives.
	clk.Advance(7 * 24 * time.Hour)
	state, _, err = engine.Update(ctx, "rest", gamification.Progress{TotalReviews: 12, WeekTarget: 2, WeekAchieved: 0})
	require.NoError(t, err)
	assert.Len(t, state.WeeklyGoals, 2)
	assert.Equal(t, 0, state.CurrentStreak)
	assert.Equal(t, 1, state.LongestStreak)
}

func TestEngine_ConcurrentUpdatesSerialize(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 5, 8, 10, 0, 0, 0, time.UTC))
	store := memstore.New()
	engine := gamification.NewEngine(store, period.NewCalendar(time.Sunday), clk, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := engine.Update(ctx, "rest", gamification.Progress{TotalReviews: n, WeekTarget: 1, WeekAchieved: 1})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	state, err := engine.Get(ctx, "rest")
	require.NoError(t, err)
	assert.Len(t, state.WeeklyGoals, 1)
	assert.Equal(t, int64(20), state.Version)
}

func TestEngine_RejectsEmptyRestaurant(t *testing.T) {
	engine := gamification.NewEngine(memstore.New(), period.NewCalendar(time.Sunday), clock.Real{}, nil)
	_, _, err := engine.Update(context.Background(), "", gamification.Progress{})
	assert.Error(t, err)
}
