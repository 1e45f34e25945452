// Package usage keeps per-account, per-period message counters and costs.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/engagebot/internal/billing"
	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/keylock"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
)

const DefaultMaxRetries = 5

// Key addresses one usage record. PeriodStart is normalized by the ledger.
type Key struct {
	AccountID    string
	RestaurantID string
	Period       period.Kind
	PeriodStart  time.Time
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%d", k.AccountID, k.RestaurantID, k.Period, k.PeriodStart.Unix())
}

// Query selects records for reads. Empty AccountID or RestaurantID matches all;
// From/To bound PeriodStart as [From, To) when set.
type Query struct {
	AccountID    string
	RestaurantID string
	Period       period.Kind
	From         time.Time
	To           time.Time
}

type Store interface {
	GetUsage(ctx context.Context, key Key) (*models.UsageRecord, error)
	CreateUsage(ctx context.Context, rec *models.UsageRecord) error
	SaveUsage(ctx context.Context, rec *models.UsageRecord, expectedVersion int64) error
	ListUsage(ctx context.Context, q Query) ([]models.UsageRecord, error)
}

type Ledger struct {
	store      Store
	classifier *billing.Classifier
	calendar   period.Calendar
	clock      clock.Clock
	locks      *keylock.Arena
	maxRetries int
}

func NewLedger(store Store, classifier *billing.Classifier, calendar period.Calendar, clk clock.Clock, maxRetries int) *Ledger {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Ledger{
		store:      store,
		classifier: classifier,
		calendar:   calendar,
		clock:      clk,
		locks:      keylock.New(),
		maxRetries: maxRetries,
	}
}

// Quote returns the tier and per-message price a message would be billed at.
func (l *Ledger) Quote(kind models.MessageKind, explicitCategory string) (models.ConversationType, models.Money) {
	tier := l.classifier.Classify(explicitCategory, kind)
	return tier, l.classifier.Price(tier)
}

// GetOrCreate returns the record for key, creating a zeroed one if absent.
func (l *Ledger) GetOrCreate(ctx context.Context, key Key) (*models.UsageRecord, error) {
	key, err := l.normalize(key)
	if err != nil {
		return nil, err
	}
	unlock := l.locks.Lock(key.String())
	defer unlock()
	return l.getOrCreate(ctx, key)
}

// RecordMessage bills one message of kind into the record for key.
// Calls for the same key are serialized in-process and guarded by a version check in the store.
func (l *Ledger) RecordMessage(ctx context.Context, key Key, kind models.MessageKind, explicitCategory string) (*models.UsageRecord, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown message kind %q", models.ErrInvalidArgument, kind)
	}
	key, err := l.normalize(key)
	if err != nil {
		return nil, err
	}
	_, price := l.Quote(kind, explicitCategory)

	unlock := l.locks.Lock(key.String())
	defer unlock()

	for attempt := 0; attempt < l.maxRetries; attempt++ {
		current, err := l.getOrCreate(ctx, key)
		if err != nil {
			return nil, err
		}
		next := *current
		counter := next.Counter(kind)
		counter.Conversations++
		counter.Messages++
		counter.Cost += price
		next.RecomputeTotals()
		next.UpdatedAt = l.clock.Now()

		err = l.store.SaveUsage(ctx, &next, current.Version)
		if errors.Is(err, models.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save usage %s: %w", key, err)
		}
		next.Version = current.Version + 1
		return &next, nil
	}
	return nil, fmt.Errorf("save usage %s: %w", key, models.ErrVersionConflict)
}

// RecordAll bills the message into the total, daily, weekly and monthly buckets containing at.
// Every bucket is attempted; failures are joined.
func (l *Ledger) RecordAll(ctx context.Context, accountID, restaurantID string, at time.Time, kind models.MessageKind, explicitCategory string) ([]*models.UsageRecord, error) {
	var (
		records []*models.UsageRecord
		errs    []error
	)
	for _, p := range period.Kinds {
		rec, err := l.RecordMessage(ctx, Key{
			AccountID:    accountID,
			RestaurantID: restaurantID,
			Period:       p,
			PeriodStart:  at,
		}, kind, explicitCategory)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s bucket: %w", p, err))
			continue
		}
		records = append(records, rec)
	}
	return records, errors.Join(errs...)
}

func (l *Ledger) List(ctx context.Context, q Query) ([]models.UsageRecord, error) {
	return l.store.ListUsage(ctx, q)
}

func (l *Ledger) Get(ctx context.Context, key Key) (*models.UsageRecord, error) {
	key, err := l.normalize(key)
	if err != nil {
		return nil, err
	}
	return l.store.GetUsage(ctx, key)
}

func (l *Ledger) normalize(key Key) (Key, error) {
	if key.AccountID == "" {
		return key, fmt.Errorf("%w: account is required", models.ErrInvalidArgument)
	}
	if !key.Period.Valid() {
		return key, fmt.Errorf("%w: unknown period %q", models.ErrInvalidArgument, key.Period)
	}
	key.PeriodStart = l.calendar.Start(key.Period, key.PeriodStart)
	return key, nil
}

func (l *Ledger) getOrCreate(ctx context.Context, key Key) (*models.UsageRecord, error) {
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		rec, err := l.store.GetUsage(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get usage %s: %w", key, err)
		}
		if rec != nil {
			return rec, nil
		}
		now := l.clock.Now()
		rec = &models.UsageRecord{
			AccountID:    key.AccountID,
			RestaurantID: key.RestaurantID,
			Period:       key.Period,
			PeriodStart:  key.PeriodStart,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = l.store.CreateUsage(ctx, rec)
		if errors.Is(err, models.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create usage %s: %w", key, err)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("create usage %s: %w", key, models.ErrVersionConflict)
}
