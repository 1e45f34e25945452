package stats

import (
	"math"

	"github.com/digkill/engagebot/internal/models"
)

// Trend is the period-over-period change in percent. A zero previous value
// reports 100 when anything happened and 0 otherwise.
func Trend(current, previous int64) int {
	if previous == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return int(math.Round(float64(current-previous) / float64(previous) * 100))
}

// Growth is the relative cost change from first to last in percent, with the
// denominator floored at one currency unit.
func Growth(last, first models.Money) int {
	den := first
	if den < models.MoneyScale {
		den = models.MoneyScale
	}
	return int(math.Round(float64(last-first) / float64(den) * 100))
}
