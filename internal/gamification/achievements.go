package gamification

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

type Metric string

const (
	MetricReviews     Metric = "reviews"
	MetricStreak      Metric = "streak"
	MetricLevel       Metric = "level"
	MetricPerfectWeek Metric = "weekly_progress"
)

type AchievementDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Rarity      Rarity `json:"rarity"`
	Metric      Metric `json:"metric"`
	Threshold   int    `json:"threshold"`
}

type Achievement struct {
	AchievementDef
	Unlocked bool `json:"unlocked"`
	Progress int  `json:"progress"`
}

// Totals are the inputs achievements are evaluated against.
type Totals struct {
	TotalReviews   int
	CurrentStreak  int
	LongestStreak  int
	Level          int
	WeeklyProgress int
}

func (t Totals) value(m Metric) int {
	switch m {
	case MetricReviews:
		return t.TotalReviews
	case MetricStreak:
		return max(t.CurrentStreak, t.LongestStreak)
	case MetricLevel:
		return t.Level
	case MetricPerfectWeek:
		return t.WeeklyProgress
	}
	return 0
}

func DefaultAchievements() []AchievementDef {
	return []AchievementDef{
		{ID: "reviews_5", Name: "First Steps", Description: "Collect 5 reviews", Rarity: RarityCommon, Metric: MetricReviews, Threshold: 5},
		{ID: "reviews_10", Name: "Getting Noticed", Description: "Collect 10 reviews", Rarity: RarityCommon, Metric: MetricReviews, Threshold: 10},
		{ID: "reviews_25", Name: "Local Favorite", Description: "Collect 25 reviews", Rarity: RarityRare, Metric: MetricReviews, Threshold: 25},
		{ID: "reviews_50", Name: "Crowd Pleaser", Description: "Collect 50 reviews", Rarity: RarityRare, Metric: MetricReviews, Threshold: 50},
		{ID: "reviews_100", Name: "Review Magnet", Description: "Collect 100 reviews", Rarity: RarityEpic, Metric: MetricReviews, Threshold: 100},
		{ID: "reviews_250", Name: "Neighborhood Icon", Description: "Collect 250 reviews", Rarity: RarityEpic, Metric: MetricReviews, Threshold: 250},
		{ID: "reviews_500", Name: "Legend", Description: "Collect 500 reviews", Rarity: RarityLegendary, Metric: MetricReviews, Threshold: 500},
		{ID: "streak_3", Name: "On a Roll", Description: "Hit the weekly goal 3 weeks in a row", Rarity: RarityRare, Metric: MetricStreak, Threshold: 3},
		{ID: "streak_10", Name: "Unstoppable", Description: "Hit the weekly goal 10 weeks in a row", Rarity: RarityEpic, Metric: MetricStreak, Threshold: 10},
		{ID: "level_5", Name: "Rising Star", Description: "Reach level 5", Rarity: RarityRare, Metric: MetricLevel, Threshold: 5},
		{ID: "perfect_week", Name: "Perfect Week", Description: "Reach 100% of a weekly goal", Rarity: RarityCommon, Metric: MetricPerfectWeek, Threshold: 100},
	}
}

// ComputeAchievements evaluates every definition against totals. It has no side effects.
func ComputeAchievements(defs []AchievementDef, totals Totals) []Achievement {
	out := make([]Achievement, 0, len(defs))
	for _, def := range defs {
		v := totals.value(def.Metric)
		progress := 100
		if def.Threshold > 0 {
			progress = min(v*100/def.Threshold, 100)
		}
		if progress < 0 {
			progress = 0
		}
		out = append(out, Achievement{
			AchievementDef: def,
			Unlocked:       v >= def.Threshold,
			Progress:       progress,
		})
	}
	return out
}

// NewlyUnlocked returns the IDs unlocked in after but not in before.
func NewlyUnlocked(before, after []Achievement) []Achievement {
	had := make(map[string]bool, len(before))
	for _, a := range before {
		if a.Unlocked {
			had[a.ID] = true
		}
	}
	var out []Achievement
	for _, a := range after {
		if a.Unlocked && !had[a.ID] {
			out = append(out, a)
		}
	}
	return out
}
