package depth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castline/internal/domain"
	"castline/internal/repo"
)

type fakeStore struct {
	base     map[string]int
	boosts   map[string][]domain.DepthBoost
	baseErr  error
	boostErr error
	events   []string
	eventErr error
}

func (s *fakeStore) BaseDepth(_ context.Context, userID string) (int, error) {
	if s.baseErr != nil {
		return 0, s.baseErr
	}
	level, ok := s.base[userID]
	if !ok {
		return 0, repo.ErrNotFound
	}
	return level, nil
}

func (s *fakeStore) ActiveBoosts(_ context.Context, userID string, now time.Time) ([]domain.DepthBoost, error) {
	if s.boostErr != nil {
		return nil, s.boostErr
	}
	var active []domain.DepthBoost
	for _, b := range s.boosts[userID] {
		exp, err := time.Parse(time.RFC3339, b.ExpiresAt)
		if err != nil {
			continue
		}
		if exp.After(now) {
			active = append(active, b)
		}
	}
	return active, nil
}

func (s *fakeStore) LogDepthEvent(_ context.Context, _, kind string, _ map[string]any) error {
	if s.eventErr != nil {
		return s.eventErr
	}
	s.events = append(s.events, kind)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func newResolver(store *fakeStore) *Resolver {
	r := NewResolver(store, nil)
	r.Now = fixedNow
	return r
}

func TestResolveUserSumsActiveBoosts(t *testing.T) {
	store := &fakeStore{
		base: map[string]int{"u1": 2},
		boosts: map[string][]domain.DepthBoost{
			"u1": {
				{DepthDelta: 1, ExpiresAt: fixedNow().Add(time.Hour).Format(time.RFC3339)},
				{DepthDelta: 2, ExpiresAt: fixedNow().Add(24 * time.Hour).Format(time.RFC3339)},
			},
		},
	}
	cc, err := newResolver(store).ResolveUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Resolve(5), cc)
}

func TestResolveUserIgnoresExpiredBoosts(t *testing.T) {
	store := &fakeStore{
		base: map[string]int{"u1": 2},
		boosts: map[string][]domain.DepthBoost{
			"u1": {
				{DepthDelta: 100, ExpiresAt: fixedNow().Add(-time.Minute).Format(time.RFC3339)},
			},
		},
	}
	cc, err := newResolver(store).ResolveUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Resolve(2), cc)
}

func TestResolveUserUnknownUserDegradesToDefault(t *testing.T) {
	store := &fakeStore{base: map[string]int{}}
	cc, err := newResolver(store).ResolveUser(context.Background(), "missing")
	require.NoError(t, err)
	assert.Equal(t, Resolve(1), cc)
}

func TestResolveUserBaseLookupFailurePropagates(t *testing.T) {
	store := &fakeStore{baseErr: errors.New("store down")}
	_, err := newResolver(store).ResolveUser(context.Background(), "u1")
	assert.Error(t, err)
}

func TestResolveUserBoostFailureDegradesToBase(t *testing.T) {
	store := &fakeStore{
		base:     map[string]int{"u1": 3},
		boostErr: errors.New("boost table locked"),
	}
	cc, err := newResolver(store).ResolveUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Resolve(3), cc)
}

func TestResolveUserEmitsTelemetryOnBoostOrHighDepth(t *testing.T) {
	store := &fakeStore{
		base: map[string]int{"low": 2, "high": 7},
		boosts: map[string][]domain.DepthBoost{
			"low": {{DepthDelta: 1, ExpiresAt: fixedNow().Add(time.Hour).Format(time.RFC3339)}},
		},
	}
	r := newResolver(store)

	_, err := r.ResolveUser(context.Background(), "low")
	require.NoError(t, err)
	_, err = r.ResolveUser(context.Background(), "high")
	require.NoError(t, err)
	assert.Len(t, store.events, 2)

	// No boost and total <= 5: silent.
	store.events = nil
	store.base["quiet"] = 4
	_, err = r.ResolveUser(context.Background(), "quiet")
	require.NoError(t, err)
	assert.Empty(t, store.events)
}

func TestResolveUserTelemetryFailureDoesNotFailResolution(t *testing.T) {
	store := &fakeStore{
		base:     map[string]int{"u1": 8},
		eventErr: errors.New("events table gone"),
	}
	cc, err := newResolver(store).ResolveUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, Resolve(8), cc)
}
