package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/engagebot/internal/interaction"
	"github.com/digkill/engagebot/internal/models"
)

type InteractionRepository struct {
	db *sql.DB
}

func NewInteractionRepository(db *sql.DB) *InteractionRepository {
	return &InteractionRepository{db: db}
}

const interactionColumns = `account_id, restaurant_id, phone_hash, first_interaction_at, last_active_at, status,
review_requested, review_requested_at, review_completed, review_completed_at, COALESCE(review_platform, ''), review_rating, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (*models.Interaction, error) {
	var (
		it                   models.Interaction
		requested, completed int
		requestedAt          sql.NullTime
		completedAt          sql.NullTime
	)
	if err := row.Scan(&it.AccountID, &it.RestaurantID, &it.PhoneHash, &it.FirstInteractionAt, &it.LastActiveAt, &it.Status,
		&requested, &requestedAt, &completed, &completedAt, &it.Review.Platform, &it.Review.Rating, &it.Version); err != nil {
		return nil, err
	}
	it.FirstInteractionAt = it.FirstInteractionAt.UTC()
	it.LastActiveAt = it.LastActiveAt.UTC()
	it.Review.Requested = requested != 0
	it.Review.RequestedAt = timePtr(requestedAt)
	it.Review.Completed = completed != 0
	it.Review.CompletedAt = timePtr(completedAt)
	return &it, nil
}

func (r *InteractionRepository) GetInteraction(ctx context.Context, restaurantID, phoneHash string) (*models.Interaction, error) {
	query := `SELECT ` + interactionColumns + ` FROM interactions WHERE restaurant_id = ? AND phone_hash = ?`
	it, err := scanInteraction(r.db.QueryRowContext(ctx, query, restaurantID, phoneHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan interaction: %w", err)
	}

	const eventsQuery = `
SELECT event_id, kind, detail, occurred_at FROM interaction_events
WHERE restaurant_id = ? AND phone_hash = ?
ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, eventsQuery, restaurantID, phoneHash)
	if err != nil {
		return nil, fmt.Errorf("list interaction events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		it.Events = append(it.Events, ev)
	}
	return it, rows.Err()
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		ev     models.Event
		detail sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.Kind, &detail, &ev.At); err != nil {
		return ev, fmt.Errorf("scan interaction event: %w", err)
	}
	ev.At = ev.At.UTC()
	if detail.Valid && detail.String != "" {
		if err := json.Unmarshal([]byte(detail.String), &ev.Detail); err != nil {
			return ev, fmt.Errorf("decode event detail: %w", err)
		}
	}
	return ev, nil
}

func (r *InteractionRepository) CreateInteraction(ctx context.Context, it *models.Interaction) error {
	const query = `
INSERT INTO interactions (account_id, restaurant_id, phone_hash, first_interaction_at, last_active_at, status, version)
VALUES (?, ?, ?, ?, ?, ?, 0)`
	if _, err := r.db.ExecContext(ctx, query, it.AccountID, it.RestaurantID, it.PhoneHash, it.FirstInteractionAt, it.LastActiveAt, it.Status); err != nil {
		if isDuplicate(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("insert interaction: %w", err)
	}
	it.Version = 0
	return nil
}

// AppendEvent writes the projected row and the new event in one transaction, guarded by version.
func (r *InteractionRepository) AppendEvent(ctx context.Context, it *models.Interaction, ev models.Event, expectedVersion int64) error {
	var detail sql.NullString
	if len(ev.Detail) > 0 {
		data, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("encode event detail: %w", err)
		}
		detail = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := updateInteraction(ctx, tx, it, expectedVersion); err != nil {
		return err
	}

	const insert = `
INSERT INTO interaction_events (event_id, account_id, restaurant_id, phone_hash, kind, detail, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insert, ev.ID, it.AccountID, it.RestaurantID, it.PhoneHash, ev.Kind, detail, ev.At); err != nil {
		return fmt.Errorf("insert interaction event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit interaction tx: %w", err)
	}
	return nil
}

func (r *InteractionRepository) UpdateStatus(ctx context.Context, it *models.Interaction, expectedVersion int64) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := updateInteraction(ctx, tx, it, expectedVersion); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit interaction tx: %w", err)
	}
	return nil
}

func updateInteraction(ctx context.Context, tx *sql.Tx, it *models.Interaction, expectedVersion int64) error {
	const query = `
UPDATE interactions
SET last_active_at = ?, status = ?, review_requested = ?, review_requested_at = ?, review_completed = ?, review_completed_at = ?,
    review_platform = NULLIF(?, ''), review_rating = ?, version = version + 1
WHERE restaurant_id = ? AND phone_hash = ? AND version = ?`
	res, err := tx.ExecContext(ctx, query,
		it.LastActiveAt, it.Status,
		boolToInt(it.Review.Requested), nullTime(it.Review.RequestedAt),
		boolToInt(it.Review.Completed), nullTime(it.Review.CompletedAt),
		it.Review.Platform, it.Review.Rating,
		it.RestaurantID, it.PhoneHash, expectedVersion)
	if err != nil {
		return fmt.Errorf("update interaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("interaction rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrVersionConflict
	}
	return nil
}

func (r *InteractionRepository) ListInteractions(ctx context.Context, restaurantID string) ([]models.Interaction, error) {
	var w where
	if restaurantID != "" {
		w.add("restaurant_id = ?", restaurantID)
	}
	query := `SELECT ` + interactionColumns + ` FROM interactions` + w.String() + ` ORDER BY first_interaction_at ASC`
	rows, err := r.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var list []models.Interaction
	index := make(map[string]int)
	for rows.Next() {
		it, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction list: %w", err)
		}
		index[it.RestaurantID+"|"+it.PhoneHash] = len(list)
		list = append(list, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}

	eventsQuery := `SELECT restaurant_id, phone_hash, event_id, kind, detail, occurred_at FROM interaction_events` + w.String() + ` ORDER BY id ASC`
	evRows, err := r.db.QueryContext(ctx, eventsQuery, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list interaction events: %w", err)
	}
	defer evRows.Close()
	for evRows.Next() {
		var (
			restaurant, hash string
			ev               models.Event
			detail           sql.NullString
		)
		if err := evRows.Scan(&restaurant, &hash, &ev.ID, &ev.Kind, &detail, &ev.At); err != nil {
			return nil, fmt.Errorf("scan interaction event: %w", err)
		}
		ev.At = ev.At.UTC()
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &ev.Detail); err != nil {
				return nil, fmt.Errorf("decode event detail: %w", err)
			}
		}
		if i, ok := index[restaurant+"|"+hash]; ok {
			list[i].Events = append(list[i].Events, ev)
		}
	}
	return list, evRows.Err()
}

func (r *InteractionRepository) CountEvents(ctx context.Context, q interaction.EventQuery) (int, error) {
	var w where
	if q.AccountID != "" {
		w.add("account_id = ?", q.AccountID)
	}
	if q.RestaurantID != "" {
		w.add("restaurant_id = ?", q.RestaurantID)
	}
	if q.Kind != "" {
		w.add("kind = ?", q.Kind)
	}
	if !q.From.IsZero() {
		w.add("occurred_at >= ?", q.From.UTC())
	}
	if !q.To.IsZero() {
		w.add("occurred_at < ?", q.To.UTC())
	}
	query := `SELECT COUNT(*) FROM interaction_events` + w.String()
	var count int
	if err := r.db.QueryRowContext(ctx, query, w.args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count interaction events: %w", err)
	}
	return count, nil
}
