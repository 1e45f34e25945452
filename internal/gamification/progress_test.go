package gamification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/engagebot/internal/models"
)

func week(n int) time.Time {
	return time.Date(2024, 1, 7, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 7*n)
}

func TestComputeLevel(t *testing.T) {
	cases := []struct {
		total, level, toNext int
	}{
		{0, 1, 10},
		{9, 1, 1},
		{10, 2, 10},
		{27, 3, 3},
		{29, 3, 1},
		{30, 4, 10},
	}
	for _, tc := range cases {
		level, toNext := ComputeLevel(tc.total)
		assert.Equal(t, tc.level, level, "level for %d", tc.total)
		assert.Equal(t, tc.toNext, toNext, "to next for %d", tc.total)
	}
}

func TestComputeWeeklyGoal(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 9: 1, 10: 1, 11: 2, 30: 3, 31: 4, 100: 10}
	for requests, want := range cases {
		assert.Equal(t, want, ComputeWeeklyGoal(requests), "requests %d", requests)
	}
}

func TestComputeStreak(t *testing.T) {
	history := []models.WeeklyGoal{
		{WeekStart: week(3), Completed: true},
		{WeekStart: week(2), Completed: true},
		{WeekStart: week(1), Completed: false},
		{WeekStart: week(0), Completed: true},
	}
	assert.Equal(t, 2, ComputeStreak(history))

	shuffled := []models.WeeklyGoal{history[3], history[1], history[2], history[0]}
	assert.Equal(t, 2, ComputeStreak(shuffled), "order of input does not matter")

	gap := []models.WeeklyGoal{
		{WeekStart: week(5), Completed: true},
		{WeekStart: week(1), Completed: true},
	}
	assert.Equal(t, 2, ComputeStreak(gap), "missing weeks do not break a streak")
	assert.Equal(t, 0, ComputeStreak(nil))
}

func TestUpsertWeek_ReplacesAndPrunes(t *testing.T) {
	var history []models.WeeklyGoal
	for i := 0; i < 15; i++ {
		history = UpsertWeek(history, models.WeeklyGoal{WeekStart: week(i), Target: 1})
	}
	require.Len(t, history, HistoryLength)
	assert.Equal(t, week(14), history[0].WeekStart)
	assert.Equal(t, week(3), history[HistoryLength-1].WeekStart)

	history = UpsertWeek(history, models.WeeklyGoal{WeekStart: week(14), Target: 5, Achieved: 5, Completed: true})
	require.Len(t, history, HistoryLength)
	assert.Equal(t, 5, history[0].Target)
	assert.True(t, history[0].Completed)
}

func TestApply(t *testing.T) {
	now := week(2).Add(50 * time.Hour)
	state := models.GamificationState{RestaurantID: "r", Level: 1, LongestStreak: 4}

	next := Apply(state, Update{WeekStart: week(2), Target: 3, Achieved: 1, Level: 2, Experience: 12, Streak: 0, Now: now})
	assert.Nil(t, next.LastCompletedAt)
	assert.Equal(t, 4, next.LongestStreak)
	assert.Equal(t, 2, next.Level)
	assert.Equal(t, 12, next.TotalExperience)
	assert.Empty(t, state.WeeklyGoals, "input state untouched")

	done := Apply(next, Update{WeekStart: week(2), Target: 3, Achieved: 3, Level: 2, Experience: 14, Streak: 5, Now: now.Add(time.Hour)})
	require.NotNil(t, done.LastCompletedAt)
	assert.Equal(t, now.Add(time.Hour), *done.LastCompletedAt)
	assert.Equal(t, 5, done.LongestStreak)
	require.Len(t, done.WeeklyGoals, 1)

	again := Apply(done, Update{WeekStart: week(2), Target: 3, Achieved: 4, Level: 2, Experience: 15, Streak: 5, Now: now.Add(2 * time.Hour)})
	assert.Equal(t, now.Add(time.Hour), *again.LastCompletedAt, "stamped once per week")
}

func TestWeeklyProgress(t *testing.T) {
	assert.Equal(t, 0, WeeklyProgress(0, 3))
	assert.Equal(t, 50, WeeklyProgress(2, 1))
	assert.Equal(t, 100, WeeklyProgress(2, 7))
}

func TestComputeAchievements(t *testing.T) {
	list := ComputeAchievements(DefaultAchievements(), Totals{
		TotalReviews:   27,
		CurrentStreak:  1,
		LongestStreak:  3,
		Level:          3,
		WeeklyProgress: 100,
	})
	unlocked := map[string]bool{}
	progress := map[string]int{}
	for _, a := range list {
		unlocked[a.ID] = a.Unlocked
		progress[a.ID] = a.Progress
	}

	assert.True(t, unlocked["reviews_5"])
	assert.True(t, unlocked["reviews_10"])
	assert.True(t, unlocked["reviews_25"])
	assert.False(t, unlocked["reviews_50"])
	assert.Equal(t, 54, progress["reviews_50"])
	assert.True(t, unlocked["streak_3"])
	assert.False(t, unlocked["streak_10"])
	assert.False(t, unlocked["level_5"])
	assert.True(t, unlocked["perfect_week"])
}

func TestNewlyUnlocked(t *testing.T) {
	defs := DefaultAchievements()
	before := ComputeAchievements(defs, Totals{TotalReviews: 4, Level: 1})
	after := ComputeAchievements(defs, Totals{TotalReviews: 11, Level: 2})

	got := NewlyUnlocked(before, after)
	require.Len(t, got, 2)
	assert.Equal(t, "reviews_5", got[0].ID)
	assert.Equal(t, "reviews_10", got[1].ID)
}
