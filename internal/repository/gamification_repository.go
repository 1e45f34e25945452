package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/digkill/engagebot/internal/models"
)

type GamificationRepository struct {
	db *sql.DB
}

func NewGamificationRepository(db *sql.DB) *GamificationRepository {
	return &GamificationRepository{db: db}
}

func (r *GamificationRepository) GetGamification(ctx context.Context, restaurantID string) (*models.GamificationState, error) {
	const query = `
SELECT restaurant_id, level, total_experience, current_streak, longest_streak, weekly_goals, last_completed_at, updated_at, version
FROM gamification_states WHERE restaurant_id = ?`
	var (
		state         models.GamificationState
		goals         []byte
		lastCompleted sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, restaurantID).Scan(&state.RestaurantID, &state.Level, &state.TotalExperience,
		&state.CurrentStreak, &state.LongestStreak, &goals, &lastCompleted, &state.UpdatedAt, &state.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan gamification: %w", err)
	}
	if len(goals) > 0 {
		if err := json.Unmarshal(goals, &state.WeeklyGoals); err != nil {
			return nil, fmt.Errorf("decode weekly goals: %w", err)
		}
	}
	for i := range state.WeeklyGoals {
		state.WeeklyGoals[i].WeekStart = state.WeeklyGoals[i].WeekStart.UTC()
	}
	state.LastCompletedAt = timePtr(lastCompleted)
	state.UpdatedAt = state.UpdatedAt.UTC()
	return &state, nil
}

func encodeGoals(goals []models.WeeklyGoal) ([]byte, error) {
	if goals == nil {
		goals = []models.WeeklyGoal{}
	}
	data, err := json.Marshal(goals)
	if err != nil {
		return nil, fmt.Errorf("encode weekly goals: %w", err)
	}
	return data, nil
}

func (r *GamificationRepository) CreateGamification(ctx context.Context, state *models.GamificationState) error {
	goals, err := encodeGoals(state.WeeklyGoals)
	if err != nil {
		return err
	}
	const query = `
INSERT INTO gamification_states (restaurant_id, level, total_experience, current_streak, longest_streak, weekly_goals, last_completed_at, updated_at, version)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`
	_, err = r.db.ExecContext(ctx, query, state.RestaurantID, state.Level, state.TotalExperience, state.CurrentStreak,
		state.LongestStreak, goals, nullTime(state.LastCompletedAt), state.UpdatedAt)
	if err != nil {
		if isDuplicate(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("insert gamification: %w", err)
	}
	state.Version = 0
	return nil
}

func (r *GamificationRepository) SaveGamification(ctx context.Context, state *models.GamificationState, expectedVersion int64) error {
	goals, err := encodeGoals(state.WeeklyGoals)
	if err != nil {
		return err
	}
	const query = `
UPDATE gamification_states
SET level = ?, total_experience = ?, current_streak = ?, longest_streak = ?, weekly_goals = ?, last_completed_at = ?,
    updated_at = ?, version = version + 1
WHERE restaurant_id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query, state.Level, state.TotalExperience, state.CurrentStreak, state.LongestStreak,
		goals, nullTime(state.LastCompletedAt), state.UpdatedAt, state.RestaurantID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update gamification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("gamification rows affected: %w", err)
	}
	if affected == 0 {
		return models.ErrVersionConflict
	}
	return nil
}
