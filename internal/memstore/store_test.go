package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/engagebot/internal/interaction"
	"github.com/digkill/engagebot/internal/models"
	"github.com/digkill/engagebot/internal/period"
	"github.com/digkill/engagebot/internal/usage"
)

var t0 = time.Date(2024, 5, 8, 12, 0, 0, 0, time.UTC)

func TestStore_InteractionCAS(t *testing.T) {
	s := New()
	ctx := context.Background()

	it := &models.Interaction{AccountID: "a", RestaurantID: "r", PhoneHash: "h", FirstInteractionAt: t0, LastActiveAt: t0, Status: models.StatusActive}
	require.NoError(t, s.CreateInteraction(ctx, it))
	assert.ErrorIs(t, s.CreateInteraction(ctx, it), models.ErrAlreadyExists)

	got, err := s.GetInteraction(ctx, "r", "h")
	require.NoError(t, err)
	got.Events = append(got.Events, models.Event{ID: "e1", Kind: models.EventMenuViewed, At: t0})
	require.NoError(t, s.AppendEvent(ctx, got, got.Events[0], 0))
	assert.ErrorIs(t, s.AppendEvent(ctx, got, got.Events[0], 0), models.ErrVersionConflict)

	n, err := s.CountEvents(ctx, interaction.EventQuery{RestaurantID: "r", Kind: models.EventMenuViewed, From: t0, To: t0.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	missing, err := s.GetInteraction(ctx, "r", "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	rec := &models.UsageRecord{AccountID: "a", Period: period.Monthly, PeriodStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, s.CreateUsage(ctx, rec))

	key := usage.Key{AccountID: "a", Period: period.Monthly, PeriodStart: rec.PeriodStart}
	got, err := s.GetUsage(ctx, key)
	require.NoError(t, err)
	got.Menu.Messages = 99

	again, err := s.GetUsage(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, again.Menu.Messages)
}

func TestStore_ListUsageFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	may := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	jun := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, r := range []*models.UsageRecord{
		{AccountID: "a", RestaurantID: "r2", Period: period.Monthly, PeriodStart: jun},
		{AccountID: "a", RestaurantID: "r1", Period: period.Monthly, PeriodStart: may},
		{AccountID: "b", RestaurantID: "r3", Period: period.Monthly, PeriodStart: may},
		{AccountID: "a", RestaurantID: "r1", Period: period.Total},
	} {
		require.NoError(t, s.CreateUsage(ctx, r))
	}

	list, err := s.ListUsage(ctx, usage.Query{AccountID: "a", Period: period.Monthly})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, may, list[0].PeriodStart)
	assert.Equal(t, jun, list[1].PeriodStart)

	list, err = s.ListUsage(ctx, usage.Query{Period: period.Monthly, From: may, To: jun})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_GamificationAndReviews(t *testing.T) {
	s := New()
	ctx := context.Background()

	state := &models.GamificationState{RestaurantID: "r", Level: 1}
	require.NoError(t, s.CreateGamification(ctx, state))
	state.Level = 2
	require.NoError(t, s.SaveGamification(ctx, state, 0))
	assert.ErrorIs(t, s.SaveGamification(ctx, state, 0), models.ErrVersionConflict)

	got, err := s.GetGamification(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Level)
	assert.Equal(t, int64(1), got.Version)

	snap, err := s.ReviewSnapshot(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Collected())

	require.NoError(t, s.SetReviewSnapshot(ctx, models.ReviewSnapshot{RestaurantID: "r", InitialCount: 3, CurrentCount: 1}))
	snap, err = s.ReviewSnapshot(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Collected(), "a shrinking count never goes negative")
}
