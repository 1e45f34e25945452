// Package memstore is a process-local implementation of the durable stores, used in
// development mode and tests. Records are copied on every read and write.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/digkill/engagebot/internal/interaction"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/usage"
)

type Store struct {
	mu           sync.RWMutex
	interactions map[string]*models.Interaction
	usage        map[string]*models.UsageRecord
	gamification map[string]*models.GamificationState
	reviews      map[string]models.ReviewSnapshot
}

func New() *Store {
	return &Store{
		interactions: make(map[string]*models.Interaction),
		usage:        make(map[string]*models.UsageRecord),
		gamification: make(map[string]*models.GamificationState),
		reviews:      make(map[string]models.ReviewSnapshot),
	}
}

func interactionKey(restaurantID, phoneHash string) string {
	return restaurantID + "|" + phoneHash
}

func (s *Store) GetInteraction(_ context.Context, restaurantID, phoneHash string) (*models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.interactions[interactionKey(restaurantID, phoneHash)]
	if !ok {
		return nil, nil
	}
	return it.Clone(), nil
}

func (s *Store) CreateInteraction(_ context.Context, it *models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := interactionKey(it.RestaurantID, it.PhoneHash)
	if _, ok := s.interactions[key]; ok {
		return models.ErrAlreadyExists
	}
	it.Version = 0
	s.interactions[key] = it.Clone()
	return nil
}

func (s *Store) AppendEvent(_ context.Context, it *models.Interaction, _ models.Event, expectedVersion int64) error {
	return s.replaceInteraction(it, expectedVersion)
}

func (s *Store) UpdateStatus(_ context.Context, it *models.Interaction, expectedVersion int64) error {
	return s.replaceInteraction(it, expectedVersion)
}

func (s *Store) replaceInteraction(it *models.Interaction, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := interactionKey(it.RestaurantID, it.PhoneHash)
	existing, ok := s.interactions[key]
	if !ok || existing.Version != expectedVersion {
		return models.ErrVersionConflict
	}
	cp := it.Clone()
	cp.Version = expectedVersion + 1
	s.interactions[key] = cp
	return nil
}

func (s *Store) ListInteractions(_ context.Context, restaurantID string) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Interaction
	for _, it := range s.interactions {
		if restaurantID != "" && it.RestaurantID != restaurantID {
			continue
		}
		out = append(out, *it.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FirstInteractionAt.Before(out[j].FirstInteractionAt)
	})
	return out, nil
}

func (s *Store) CountEvents(_ context.Context, q interaction.EventQuery) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, it := range s.interactions {
		if q.AccountID != "" && it.AccountID != q.AccountID {
			continue
		}
		if q.RestaurantID != "" && it.RestaurantID != q.RestaurantID {
			continue
		}
		for _, ev := range it.Events {
			if q.Kind != "" && ev.Kind != q.Kind {
				continue
			}
			if inRange(ev.At, q.From, q.To) {
				count++
			}
		}
	}
	return count, nil
}

func usageKey(k usage.Key) string {
	return k.String()
}

func recordKey(r *models.UsageRecord) string {
	return usageKey(usage.Key{AccountID: r.AccountID, RestaurantID: r.RestaurantID, Period: r.Period, PeriodStart: r.PeriodStart})
}

func (s *Store) GetUsage(_ context.Context, key usage.Key) (*models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.usage[usageKey(key)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *Store) CreateUsage(_ context.Context, rec *models.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(rec)
	if _, ok := s.usage[key]; ok {
		return models.ErrAlreadyExists
	}
	rec.Version = 0
	cp := *rec
	s.usage[key] = &cp
	return nil
}

func (s *Store) SaveUsage(_ context.Context, rec *models.UsageRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey(rec)
	existing, ok := s.usage[key]
	if !ok || existing.Version != expectedVersion {
		return models.ErrVersionConflict
	}
	cp := *rec
	cp.Version = expectedVersion + 1
	s.usage[key] = &cp
	return nil
}

func (s *Store) ListUsage(_ context.Context, q usage.Query) ([]models.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UsageRecord
	for _, rec := range s.usage {
		if q.AccountID != "" && rec.AccountID != q.AccountID {
			continue
		}
		if q.RestaurantID != "" && rec.RestaurantID != q.RestaurantID {
			continue
		}
		if q.Period != "" && rec.Period != q.Period {
			continue
		}
		if !inRange(rec.PeriodStart, q.From, q.To) {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.Before(out[j].PeriodStart)
		}
		if out[i].AccountID != out[j].AccountID {
			return out[i].AccountID < out[j].AccountID
		}
		return out[i].RestaurantID < out[j].RestaurantID
	})
	return out, nil
}

func (s *Store) GetGamification(_ context.Context, restaurantID string) (*models.GamificationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.gamification[restaurantID]
	if !ok {
		return nil, nil
	}
	return cloneState(state), nil
}

func (s *Store) CreateGamification(_ context.Context, state *models.GamificationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.gamification[state.RestaurantID]; ok {
		return models.ErrAlreadyExists
	}
	state.Version = 0
	s.gamification[state.RestaurantID] = cloneState(state)
	return nil
}

func (s *Store) SaveGamification(_ context.Context, state *models.GamificationState, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.gamification[state.RestaurantID]
	if !ok || existing.Version != expectedVersion {
		return models.ErrVersionConflict
	}
	cp := cloneState(state)
	cp.Version = expectedVersion + 1
	s.gamification[state.RestaurantID] = cp
	return nil
}

// SetReviewSnapshot stores the external review count for a restaurant.
func (s *Store) SetReviewSnapshot(_ context.Context, snap models.ReviewSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Timestamps = append([]time.Time(nil), snap.Timestamps...)
	s.reviews[snap.RestaurantID] = snap
	return nil
}

func (s *Store) ReviewSnapshot(_ context.Context, restaurantID string) (models.ReviewSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.reviews[restaurantID]
	if !ok {
		return models.ReviewSnapshot{RestaurantID: restaurantID}, nil
	}
	snap.Timestamps = append([]time.Time(nil), snap.Timestamps...)
	return snap, nil
}

func cloneState(state *models.GamificationState) *models.GamificationState {
	cp := *state
	cp.WeeklyGoals = append([]models.WeeklyGoal(nil), state.WeeklyGoals...)
	if state.LastCompletedAt != nil {
		at := *state.LastCompletedAt
		cp.LastCompletedAt = &at
	}
	return &cp
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
