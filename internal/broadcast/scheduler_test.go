package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"castline/internal/domain"
)

func newTestScheduler(store *fakeStore, m *fakeMessenger) *Scheduler {
	s := NewScheduler(store, newTestExecutor(store, m), m, zap.NewNop())
	s.Now = func() time.Time { return time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC) }
	return s
}

func TestTickRunsDueCampaign(t *testing.T) {
	store := &fakeStore{pending: []domain.Campaign{testCampaign()}}
	m := &fakeMessenger{connected: true}
	s := newTestScheduler(store, m)

	s.Tick(context.Background())
	s.wg.Wait()

	runs := store.runsFor("camp-1")
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Sent)
}

func TestTickSkipsOfflineSession(t *testing.T) {
	store := &fakeStore{pending: []domain.Campaign{testCampaign()}}
	m := &fakeMessenger{connected: false}
	s := newTestScheduler(store, m)

	s.Tick(context.Background())
	s.wg.Wait()

	assert.Empty(t, store.runsFor("camp-1"))
	assert.Empty(t, m.sentMessages())
}

func TestTickDefersSessionCheckFailure(t *testing.T) {
	store := &fakeStore{pending: []domain.Campaign{testCampaign()}}
	m := &fakeMessenger{connected: true, connErr: errors.New("gateway down")}
	s := newTestScheduler(store, m)

	s.Tick(context.Background())
	s.wg.Wait()

	assert.Empty(t, store.runsFor("camp-1"))
}

func TestTickDefersClosedWindow(t *testing.T) {
	c := testCampaign()
	c.Config.Window = &domain.OperatingWindow{StartHour: 9, EndHour: 18}
	store := &fakeStore{pending: []domain.Campaign{c}}
	m := &fakeMessenger{connected: true}
	s := newTestScheduler(store, m)
	s.Now = func() time.Time { return time.Date(2025, 6, 16, 20, 0, 0, 0, time.UTC) }

	s.Tick(context.Background())
	s.wg.Wait()

	assert.Empty(t, store.runsFor("camp-1"))
}

func TestTickToleratesStoreFailure(t *testing.T) {
	store := &fakeStore{err: errors.New("db locked")}
	m := &fakeMessenger{connected: true}
	s := newTestScheduler(store, m)

	assert.NotPanics(t, func() { s.Tick(context.Background()) })
}

func TestCampaignNeverRunsConcurrentlyWithItself(t *testing.T) {
	c := testCampaign()
	c.Groups = []string{"g1"}
	store := &fakeStore{pending: []domain.Campaign{c}}
	m := &fakeMessenger{connected: true, block: make(chan struct{})}
	s := newTestScheduler(store, m)

	ctx := context.Background()
	s.Tick(ctx)
	s.Tick(ctx) // first batch still blocked in send
	close(m.block)
	s.wg.Wait()

	assert.Len(t, store.runsFor("camp-1"), 1)
	assert.Len(t, m.sentMessages(), 1)
}

func TestDistinctCampaignsRunConcurrently(t *testing.T) {
	a := testCampaign()
	a.Groups = []string{"g1"}
	b := testCampaign()
	b.ID = "camp-2"
	b.Groups = []string{"g2"}
	store := &fakeStore{pending: []domain.Campaign{a, b}}
	m := &fakeMessenger{connected: true}
	s := newTestScheduler(store, m)

	s.Tick(context.Background())
	s.wg.Wait()

	assert.Len(t, store.runsFor("camp-1"), 1)
	assert.Len(t, store.runsFor("camp-2"), 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	m := &fakeMessenger{connected: true}
	s := newTestScheduler(store, m)
	s.Interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
