package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/digkill/engagebot/internal/models"
)

// ReviewRepository holds review counts imported from the review platforms.
type ReviewRepository struct {
	db *sql.DB
}

func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ReviewSnapshot returns an empty snapshot for restaurants with no imported counts.
func (r *ReviewRepository) ReviewSnapshot(ctx context.Context, restaurantID string) (models.ReviewSnapshot, error) {
	snap := models.ReviewSnapshot{RestaurantID: restaurantID}

	const query = `SELECT initial_count, current_count, has_timestamps FROM restaurant_reviews WHERE restaurant_id = ?`
	var hasTimestamps int
	err := r.db.QueryRowContext(ctx, query, restaurantID).Scan(&snap.InitialCount, &snap.CurrentCount, &hasTimestamps)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, nil
		}
		return snap, fmt.Errorf("scan review snapshot: %w", err)
	}
	snap.HasTimestamps = hasTimestamps != 0
	if !snap.HasTimestamps {
		return snap, nil
	}

	const eventsQuery = `SELECT reviewed_at FROM review_events WHERE restaurant_id = ? ORDER BY reviewed_at ASC`
	rows, err := r.db.QueryContext(ctx, eventsQuery, restaurantID)
	if err != nil {
		return snap, fmt.Errorf("list review events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return snap, fmt.Errorf("scan review event: %w", err)
		}
		snap.Timestamps = append(snap.Timestamps, at.UTC())
	}
	return snap, rows.Err()
}

// SetReviewSnapshot replaces the stored counts and timestamps for the snapshot's restaurant.
func (r *ReviewRepository) SetReviewSnapshot(ctx context.Context, snap models.ReviewSnapshot) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `
INSERT INTO restaurant_reviews (restaurant_id, initial_count, current_count, has_timestamps)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE initial_count = VALUES(initial_count), current_count = VALUES(current_count), has_timestamps = VALUES(has_timestamps)`
	if _, err := tx.ExecContext(ctx, upsert, snap.RestaurantID, snap.InitialCount, snap.CurrentCount, boolToInt(snap.HasTimestamps)); err != nil {
		return fmt.Errorf("upsert review snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM review_events WHERE restaurant_id = ?`, snap.RestaurantID); err != nil {
		return fmt.Errorf("clear review events: %w", err)
	}
	for _, at := range snap.Timestamps {
		if _, err := tx.ExecContext(ctx, `INSERT INTO review_events (restaurant_id, reviewed_at) VALUES (?, ?)`, snap.RestaurantID, at.UTC()); err != nil {
			return fmt.Errorf("insert review event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit review tx: %w", err)
	}
	return nil
}
