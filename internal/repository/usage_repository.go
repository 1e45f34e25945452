package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/usage"
)

// totalPeriodStart stands in for the zero time of the all-time bucket, which DATETIME cannot hold.
var totalPeriodStart = time.Unix(0, 0).UTC()

func toStoredStart(kind period.Kind, t time.Time) time.Time {
	if kind == period.Total || t.IsZero() {
		return totalPeriodStart
	}
	return t.UTC()
}

func fromStoredStart(kind period.Kind, t time.Time) time.Time {
	if kind == period.Total {
		return time.Time{}
	}
	return t.UTC()
}

type UsageRepository struct {
	db *sql.DB
}

func NewUsageRepository(db *sql.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

const usageColumns = `account_id, restaurant_id, period, period_start,
menu_conversations, menu_messages, menu_cost,
review_conversations, review_messages, review_cost,
campaign_conversations, campaign_messages, campaign_cost,
inbound_conversations, inbound_messages, inbound_cost,
created_at, updated_at, version`

func scanUsage(row rowScanner) (*models.UsageRecord, error) {
	var rec models.UsageRecord
	if err := row.Scan(&rec.AccountID, &rec.RestaurantID, &rec.Period, &rec.PeriodStart,
		&rec.Menu.Conversations, &rec.Menu.Messages, &rec.Menu.Cost,
		&rec.Review.Conversations, &rec.Review.Messages, &rec.Review.Cost,
		&rec.Campaign.Conversations, &rec.Campaign.Messages, &rec.Campaign.Cost,
		&rec.Inbound.Conversations, &rec.Inbound.Messages, &rec.Inbound.Cost,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.Version); err != nil {
		return nil, err
	}
	rec.PeriodStart = fromStoredStart(rec.Period, rec.PeriodStart)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	rec.RecomputeTotals()
	return &rec, nil
}

func (r *UsageRepository) GetUsage(ctx context.Context, key usage.Key) (*models.UsageRecord, error) {
	query := `SELECT ` + usageColumns + ` FROM usage_records
WHERE account_id = ? AND restaurant_id = ? AND period = ? AND period_start = ?`
	rec, err := scanUsage(r.db.QueryRowContext(ctx, query, key.AccountID, key.RestaurantID, key.Period, toStoredStart(key.Period, key.PeriodStart)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan usage: %w", err)
	}
	return rec, nil
}

func (r *UsageRepository) CreateUsage(ctx context.Context, rec *models.UsageRecord) error {
	const query = `
INSERT INTO usage_records (account_id, restaurant_id, period, period_start,
    menu_conversations, menu_messages, menu_cost,
    review_conversations, review_messages, review_cost,
    campaign_conversations, campaign_messages, campaign_cost,
    inbound_conversations, inbound_messages, inbound_cost,
    created_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`
	_, err := r.db.ExecContext(ctx, query, rec.AccountID, rec.RestaurantID, rec.Period, toStoredStart(rec.Period, rec.PeriodStart),
		rec.Menu.Conversations, rec.Menu.Messages, int64(rec.Menu.Cost),
		rec.Review.Conversations, rec.Review.Messages, int64(rec.Review.Cost),
		rec.Campaign.Conversations, rec.Campaign.Messages, int64(rec.Campaign.Cost),
		rec.Inbound.Conversations, rec.Inbound.Messages, int64(rec.Inbound.Cost),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("insert usage: %w", err)
	}
	rec.Version = 0
	return nil
}

func (r *UsageRepository) SaveUsage(ctx context.Context, rec *models.UsageRecord, expectedVersion int64) error {
	const query = `
UPDATE usage_records
SET menu_conversations = ?, menu_messages = ?, menu_cost = ?,
    review_conversations = ?, review_messages = ?, review_cost = ?,
    campaign_conversations = ?, campaign_messages = ?, campaign_cost = ?,
    inbound_conversations = ?, inbound_messages = ?, inbound_cost = ?,
    updated_at = ?, version = version + 1
WHERE account_id = ? AND restaurant_id = ? AND period = ? AND period_start = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query,
		rec.Menu.Conversations, rec.Menu.Messages, int64(rec.Menu.Cost),
		rec.Review.Conversations, rec.Review.Messages, int64(rec.Review.Cost),
		rec.Campaign.Conversations, rec.Campaign.Messages, int64(rec.Campaign.Cost),
		rec.Inbound.Conversations, rec.Inbound.Messages, int64(rec.Inbound.Cost),
		rec.UpdatedAt,
		rec.AccountID, rec.RestaurantID, rec.Period, toStoredStart(rec.Period, rec.PeriodStart), expectedVersion)
	if err != nil {
		return fmt.Errorf("update usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("usage rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

func (r *UsageRepository) ListUsage(ctx context.Context, q usage.Query) ([]models.UsageRecord, error) {
	var w where
	if q.AccountID != "" {
		w.add("account_id = ?", q.AccountID)
	}
	if q.RestaurantID != "" {
		w.add("restaurant_id = ?", q.RestaurantID)
	}
	if q.Period != "" {
		w.add("period = ?", q.Period)
	}
	if !q.From.IsZero() {
		w.add("period_start >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		w.add("period_start < ?", q.To.UTC())
	}
	query := `SELECT ` + usageColumns + ` FROM usage_records` + w.String() + ` ORDER BY period_start ASC, account_id ASC, restaurant_id ASC`
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	defer rows.Close()

	var list []models.UsageRecord
	for rows.Next() {
		rec, err := scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage list: %w", err)
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}
