// Package gamification turns review collection into levels, weekly goals, streaks and badges.
package gamification

import (
	"sort"
	"time"

	"github.com/digkill/engagebot/internal/models"
)

const (
	// HistoryLength is how many weekly goal records a restaurant keeps.
	HistoryLength = 12
	// ReviewsPerLevel is the review count that advances one level.
	ReviewsPerLevel = 10
)

// ComputeLevel returns the level for a lifetime review count and the reviews left to reach the next one.
func ComputeLevel(totalReviews int) (level, reviewsToNext int) {
	if totalReviews < 0 {
		totalReviews = 0
	}
	level = totalReviews/ReviewsPerLevel + 1
	return level, level*ReviewsPerLevel - totalReviews
}

// ComputeWeeklyGoal is 10% of last week's review requests, rounded up, and never below 1.
func ComputeWeeklyGoal(lastWeekRequests int) int {
	if lastWeekRequests <= 0 {
		return 1
	}
	target := (lastWeekRequests + 9) / 10
	if target < 1 {
		return 1
	}
	return target
}

// WeeklyProgress is achieved/target as a percentage capped at 100.
func WeeklyProgress(target, achieved int) int {
	if target <= 0 {
		return 0
	}
	p := achieved * 100 / target
	if p > 100 {
		return 100
	}
	return p
}

// ComputeStreak counts consecutive completed weeks from the newest record back.
// Only an explicit incomplete week breaks the streak; missing weeks do not.
func ComputeStreak(history []models.WeeklyGoal) int {
	sorted := sortedDesc(history)
	streak := 0
	for _, g := range sorted {
		if !g.Completed {
			break
		}
		streak++
	}
	return streak
}

// UpsertWeek replaces the record with the same week start or adds it, then keeps the newest HistoryLength records, newest first.
func UpsertWeek(history []models.WeeklyGoal, goal models.WeeklyGoal) []models.WeeklyGoal {
	out := make([]models.WeeklyGoal, 0, len(history)+1)
	replaced := false
	for _, g := range history {
		if g.WeekStart.Equal(goal.WeekStart) {
			out = append(out, goal)
			replaced = true
			continue
		}
		out = append(out, g)
	}
	if !replaced {
		out = append(out, goal)
	}
	out = sortedDesc(out)
	if len(out) > HistoryLength {
		out = out[:HistoryLength]
	}
	return out
}

// Update carries one stats pass worth of derived numbers into Apply.
type Update struct {
	WeekStart  time.Time
	Target     int
	Achieved   int
	Level      int
	Experience int
	Streak     int
	Now        time.Time
}

// Apply returns the state after u. It does not modify state.
// LastCompletedAt is stamped when the current week first reaches its target.
func Apply(state models.GamificationState, u Update) models.GamificationState {
	var wasCompleted bool
	for _, g := range state.WeeklyGoals {
		if g.WeekStart.Equal(u.WeekStart) {
			wasCompleted = g.Completed
			break
		}
	}
	completed := u.Target > 0 && u.Achieved >= u.Target

	next := state
	next.WeeklyGoals = UpsertWeek(state.WeeklyGoals, models.WeeklyGoal{
		WeekStart: u.WeekStart,
		Target:    u.Target,
		Achieved:  u.Achieved,
		Completed: completed,
	})
	next.Level = u.Level
	if next.Level < 1 {
		next.Level = 1
	}
	next.TotalExperience = u.Experience
	next.CurrentStreak = u.Streak
	if u.Streak > next.LongestStreak {
		next.LongestStreak = u.Streak
	}
	if completed && !wasCompleted {
		at := u.Now
		next.LastCompletedAt = &at
	}
	next.UpdatedAt = u.Now
	return next
}

func sortedDesc(history []models.WeeklyGoal) []models.WeeklyGoal {
	out := append([]models.WeeklyGoal(nil), history...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].WeekStart.After(out[j].WeekStart)
	})
	return out
}
