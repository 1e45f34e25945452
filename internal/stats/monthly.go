package stats

import (
	"context"
	"time"

	"github.com/digkill/engagebot/internal/metrics"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/usage"
)

const (
	DefaultMonthsBack = 6
	MaxMonthsBack     = 36
)

type CostBreakdown struct {
	Menu     models.Money `json:"menu"`
	Review   models.Money `json:"review"`
	Campaign models.Money `json:"campaign"`
	Inbound  models.Money `json:"inbound"`
}

type MonthPoint struct {
	Month         string             `json:"month"`
	MonthStart    time.Time          `json:"monthStart"`
	Totals        models.UsageTotals `json:"totals"`
	CostBreakdown CostBreakdown      `json:"costBreakdown"`
}

type PeakMonth struct {
	Month string       `json:"month"`
	Cost  models.Money `json:"cost"`
}

type MonthlySeries struct {
	AccountID          string       `json:"accountId,omitempty"`
	Months             []MonthPoint `json:"months"`
	AverageMonthlyCost models.Money `json:"averageMonthlyCost"`
	AverageMessages    float64      `json:"averageMonthlyMessages"`
	Peak               PeakMonth    `json:"peakMonth"`
	GrowthPercent      int          `json:"growthPercent"`
	GeneratedAt        time.Time    `json:"generatedAt"`
}

// MonthlyTrend returns the last monthsBack calendar months, oldest first, for accountID
// (all accounts when empty).
func (a *Aggregator) MonthlyTrend(ctx context.Context, accountID string, monthsBack int) (*MonthlySeries, error) {
	started := time.Now()
	series, err := a.monthlyTrend(ctx, accountID, monthsBack)
	metrics.RecordStats("monthly", err == nil, time.Since(started))
	return series, err
}

func (a *Aggregator) monthlyTrend(ctx context.Context, accountID string, monthsBack int) (*MonthlySeries, error) {
	if monthsBack <= 0 {
		monthsBack = DefaultMonthsBack
	}
	if monthsBack > MaxMonthsBack {
		monthsBack = MaxMonthsBack
	}

	now := a.clock.Now()
	current := a.calendar.MonthStart(now)
	first := current.AddDate(0, -(monthsBack - 1), 0)

	records, err := a.ledger.List(ctx, usage.Query{
		AccountID: accountID,
		Period:    period.Monthly,
		From:      first,
		To:        current.AddDate(0, 1, 0),
	})
	if err != nil {
		return nil, unavailable("list monthly usage", err)
	}

	points := make([]MonthPoint, monthsBack)
	index := make(map[string]int, monthsBack)
	for i := range points {
		start := first.AddDate(0, i, 0)
		points[i] = MonthPoint{Month: start.Format("2006-01"), MonthStart: start}
		index[points[i].Month] = i
	}

	buckets := make([]models.UsageRecord, monthsBack)
	for _, rec := range records {
		i, ok := index[rec.PeriodStart.UTC().Format("2006-01")]
		if !ok {
			continue
		}
		addCounter(&buckets[i].Menu, rec.Menu)
		addCounter(&buckets[i].Review, rec.Review)
		addCounter(&buckets[i].Campaign, rec.Campaign)
		addCounter(&buckets[i].Inbound, rec.Inbound)
	}

	series := &MonthlySeries{AccountID: accountID, GeneratedAt: now}
	var totalCost models.Money
	var totalMessages int64
	for i := range points {
		b := &buckets[i]
		b.RecomputeTotals()
		points[i].Totals = b.Totals
		points[i].CostBreakdown = CostBreakdown{
			Menu:     b.Menu.Cost,
			Review:   b.Review.Cost,
			Campaign: b.Campaign.Cost,
			Inbound:  b.Inbound.Cost,
		}
		totalCost += b.Totals.TotalCost
		totalMessages += b.Totals.TotalMessages
		if i == 0 || b.Totals.TotalCost > series.Peak.Cost {
			series.Peak = PeakMonth{Month: points[i].Month, Cost: b.Totals.TotalCost}
		}
	}
	series.Months = points
	series.AverageMonthlyCost = totalCost / models.Money(monthsBack)
	series.AverageMessages = float64(totalMessages) / float64(monthsBack)
	series.GrowthPercent = Growth(points[len(points)-1].Totals.TotalCost, points[0].Totals.TotalCost)
	return series, nil
}
