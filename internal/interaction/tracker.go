// Package interaction owns the per-customer event log and the review lifecycle derived from it.
package interaction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/engagebot/internal/clock"
	"github.com/digkill/engagebot/internal/keylock"
	"github.com/digkill/engagebot/internal/models"
)

const defaultMaxRetries = 5

// EventQuery filters event counts. Empty fields match everything.
type EventQuery struct {
	AccountID    string
	RestaurantID string
	Kind         models.EventKind
	From         time.Time
	To           time.Time
}

// Store persists interactions with optimistic versioning.
type Store interface {
	GetInteraction(ctx context.Context, restaurantID, phoneHash string) (*models.Interaction, error)
	CreateInteraction(ctx context.Context, it *models.Interaction) error
	AppendEvent(ctx context.Context, it *models.Interaction, ev models.Event, expectedVersion int64) error
	UpdateStatus(ctx context.Context, it *models.Interaction, expectedVersion int64) error
	ListInteractions(ctx context.Context, restaurantID string) ([]models.Interaction, error)
	CountEvents(ctx context.Context, q EventQuery) (int, error)
}

type Tracker struct {
	store      Store
	clock      clock.Clock
	locks      *keylock.Arena
	maxRetries int
}

func NewTracker(store Store, clk clock.Clock) *Tracker {
	return &Tracker{
		store:      store,
		clock:      clk,
		locks:      keylock.New(),
		maxRetries: defaultMaxRetries,
	}
}

// HashIdentifier returns the hex SHA-256 of the digits in rawPhone.
func HashIdentifier(rawPhone string) (string, error) {
	var b strings.Builder
	for _, r := range rawPhone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: phone identifier has no digits", models.ErrInvalidArgument)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// ValidHash reports whether h has the shape HashIdentifier produces: 64 lowercase hex characters.
func ValidHash(h string) bool {
	if len(h) != sha256.Size*2 {
		return false
	}
	for i := 0; i < len(h); i++ {
		c := h[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Touch returns the interaction for the pair, creating it on first contact.
func (t *Tracker) Touch(ctx context.Context, accountID, restaurantID, phoneHash string) (*models.Interaction, error) {
	if restaurantID == "" || phoneHash == "" {
		return nil, fmt.Errorf("%w: restaurant and phone hash are required", models.ErrInvalidArgument)
	}
	unlock := t.locks.Lock(lockKey(restaurantID, phoneHash))
	defer unlock()
	return t.getOrCreate(ctx, accountID, restaurantID, phoneHash)
}

func (t *Tracker) Get(ctx context.Context, restaurantID, phoneHash string) (*models.Interaction, error) {
	return t.store.GetInteraction(ctx, restaurantID, phoneHash)
}

func (t *Tracker) List(ctx context.Context, restaurantID string) ([]models.Interaction, error) {
	return t.store.ListInteractions(ctx, restaurantID)
}

func (t *Tracker) CountEvents(ctx context.Context, q EventQuery) (int, error) {
	return t.store.CountEvents(ctx, q)
}

// AddEvent appends an event and reprojects the review state and lifecycle from the log.
// It is the only path that mutates the event log.
func (t *Tracker) AddEvent(ctx context.Context, accountID, restaurantID, phoneHash string, kind models.EventKind, detail map[string]any) (*models.Interaction, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown event kind %q", models.ErrInvalidArgument, kind)
	}
	if restaurantID == "" || phoneHash == "" {
		return nil, fmt.Errorf("%w: restaurant and phone hash are required", models.ErrInvalidArgument)
	}

	unlock := t.locks.Lock(lockKey(restaurantID, phoneHash))
	defer unlock()

	for attempt := 0; attempt < t.maxRetries; attempt++ {
		current, err := t.getOrCreate(ctx, accountID, restaurantID, phoneHash)
		if err != nil {
			return nil, err
		}

		now := t.clock.Now()
		ev := models.Event{
			ID:     uuid.NewString(),
			Kind:   kind,
			At:     now,
			Detail: detail,
		}
		next := current.Clone()
		next.Events = append(next.Events, ev)
		next.LastActiveAt = now
		next.Status = models.StatusActive
		Project(next)

		err = t.store.AppendEvent(ctx, next, ev, current.Version)
		if errors.Is(err, models.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("append %s event: %w", kind, err)
		}
		next.Version = current.Version + 1
		return next, nil
	}
	return nil, fmt.Errorf("append %s event: %w", kind, models.ErrVersionConflict)
}

// Abandon marks an open interaction as abandoned. Completed interactions are left alone.
func (t *Tracker) Abandon(ctx context.Context, restaurantID, phoneHash string) (*models.Interaction, error) {
	unlock := t.locks.Lock(lockKey(restaurantID, phoneHash))
	defer unlock()

	for attempt := 0; attempt < t.maxRetries; attempt++ {
		current, err := t.store.GetInteraction(ctx, restaurantID, phoneHash)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, nil
		}
		if current.Status != models.StatusActive {
			return current, nil
		}
		next := current.Clone()
		next.Status = models.StatusAbandoned

		err = t.store.UpdateStatus(ctx, next, current.Version)
		if errors.Is(err, models.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("abandon interaction: %w", err)
		}
		next.Version = current.Version + 1
		return next, nil
	}
	return nil, fmt.Errorf("abandon interaction: %w", models.ErrVersionConflict)
}

func (t *Tracker) getOrCreate(ctx context.Context, accountID, restaurantID, phoneHash string) (*models.Interaction, error) {
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		it, err := t.store.GetInteraction(ctx, restaurantID, phoneHash)
		if err != nil {
			return nil, fmt.Errorf("get interaction: %w", err)
		}
		if it != nil {
			return it, nil
		}
		now := t.clock.Now()
		it = &models.Interaction{
			AccountID:          accountID,
			RestaurantID:       restaurantID,
			PhoneHash:          phoneHash,
			FirstInteractionAt: now,
			LastActiveAt:       now,
			Status:             models.StatusActive,
		}
		err = t.store.CreateInteraction(ctx, it)
		if errors.Is(err, models.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create interaction: %w", err)
		}
		return it, nil
	}
	return nil, fmt.Errorf("create interaction: %w", models.ErrVersionConflict)
}

func lockKey(restaurantID, phoneHash string) string {
	return restaurantID + "|" + phoneHash
}
