package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castline/internal/db"
	"castline/internal/domain"
	"castline/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Repo{DB: conn}
}

func mustUser(t *testing.T, r Repo, id string, depth int) {
	t.Helper()
	require.NoError(t, r.SetBaseDepth(context.Background(), id, depth, time.Now()))
}

func sampleCampaign(userID string) domain.Campaign {
	now := "2025-06-15T12:00:00Z"
	return domain.Campaign{
		ID:      "camp-1",
		UserID:  userID,
		Name:    "launch",
		Message: "Hi {group_name}",
		Groups:  []string{"g1", "g2"},
		Schedule: domain.Schedule{
			Type: domain.ScheduleDaily,
			Time: "09:00",
		},
		Config: domain.SendConfig{
			MinDelaySec: 3,
			MaxDelaySec: 8,
			UseSpintax:  true,
			Window:      &domain.OperatingWindow{StartHour: 9, EndHour: 18},
		},
		Stats: domain.CampaignStats{
			NextRunAt: "2025-06-16T09:00:00Z",
		},
		Status:    domain.CampaignActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 3)

	c := sampleCampaign("u1")
	require.NoError(t, r.InsertCampaign(ctx, c))

	got, err := r.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = r.GetCampaign(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCampaignsFiltersByUser(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 1)
	mustUser(t, r, "u2", 1)

	a := sampleCampaign("u1")
	b := sampleCampaign("u2")
	b.ID = "camp-2"
	require.NoError(t, r.InsertCampaign(ctx, a))
	require.NoError(t, r.InsertCampaign(ctx, b))

	all, err := r.ListCampaigns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := r.ListCampaigns(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "camp-2", mine[0].ID)
}

func TestPendingCampaigns(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 1)
	now := time.Date(2025, 6, 16, 10, 0, 0, 0, time.UTC)

	due := sampleCampaign("u1")
	due.ID = "due"
	due.Stats.NextRunAt = "2025-06-16T09:00:00Z"

	future := sampleCampaign("u1")
	future.ID = "future"
	future.Stats.NextRunAt = "2025-06-17T09:00:00Z"

	paused := sampleCampaign("u1")
	paused.ID = "paused"
	paused.Status = domain.CampaignPaused
	paused.Stats.NextRunAt = "2025-06-16T09:00:00Z"

	done := sampleCampaign("u1")
	done.ID = "done"
	done.Status = domain.CampaignCompleted
	done.Stats.NextRunAt = ""

	for _, c := range []domain.Campaign{due, future, paused, done} {
		require.NoError(t, r.InsertCampaign(ctx, c))
	}

	pending, err := r.PendingCampaigns(ctx, now)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "due", pending[0].ID)
}

func TestApplyRunIncrementsCounters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 1)

	c := sampleCampaign("u1")
	c.Stats.TotalSent = 10
	c.Stats.TotalFailed = 1
	require.NoError(t, r.InsertCampaign(ctx, c))

	run := domain.RunResult{
		Sent:      2,
		Failed:    1,
		LastRunAt: "2025-06-16T09:00:05Z",
		NextRunAt: "2025-06-17T09:00:00Z",
		Status:    domain.CampaignActive,
	}
	require.NoError(t, r.ApplyRun(ctx, c.ID, run))

	got, err := r.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Stats.TotalSent)
	assert.Equal(t, 2, got.Stats.TotalFailed)
	assert.Equal(t, run.LastRunAt, got.Stats.LastRunAt)
	assert.Equal(t, run.NextRunAt, got.Stats.NextRunAt)
	assert.Equal(t, domain.CampaignActive, got.Status)

	assert.ErrorIs(t, r.ApplyRun(ctx, "nope", run), ErrNotFound)
}

func TestApplyRunCompletesOneShot(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 1)

	c := sampleCampaign("u1")
	c.Schedule = domain.Schedule{Type: domain.ScheduleOnce, Time: "09:00"}
	require.NoError(t, r.InsertCampaign(ctx, c))

	run := domain.RunResult{
		Sent:      2,
		LastRunAt: "2025-06-16T09:00:05Z",
		NextRunAt: "",
		Status:    domain.CampaignCompleted,
	}
	require.NoError(t, r.ApplyRun(ctx, c.ID, run))

	got, err := r.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignCompleted, got.Status)
	assert.Empty(t, got.Stats.NextRunAt)

	pending, err := r.PendingCampaigns(ctx, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSetCampaignStatusAndTrigger(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 1)

	c := sampleCampaign("u1")
	require.NoError(t, r.InsertCampaign(ctx, c))

	require.NoError(t, r.SetCampaignStatus(ctx, c.ID, domain.CampaignPaused, "2025-06-16T10:00:00Z"))
	got, err := r.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignPaused, got.Status)

	now := time.Date(2025, 6, 16, 11, 0, 0, 0, time.UTC)
	require.NoError(t, r.TriggerCampaign(ctx, c.ID, now))
	got, err = r.GetCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignActive, got.Status)
	assert.Equal(t, "2025-06-16T11:00:00Z", got.Stats.NextRunAt)

	assert.ErrorIs(t, r.SetCampaignStatus(ctx, "nope", domain.CampaignPaused, "x"), ErrNotFound)
	assert.ErrorIs(t, r.TriggerCampaign(ctx, "nope", now), ErrNotFound)
}

func TestDeleteCampaign(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 1)

	c := sampleCampaign("u1")
	require.NoError(t, r.InsertCampaign(ctx, c))
	require.NoError(t, r.DeleteCampaign(ctx, c.ID))
	_, err := r.GetCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, r.DeleteCampaign(ctx, c.ID), ErrNotFound)
}

func TestBaseDepthUpsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	_, err := r.BaseDepth(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.SetBaseDepth(ctx, "u1", 4, now))
	level, err := r.BaseDepth(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, level)

	require.NoError(t, r.SetBaseDepth(ctx, "u1", 7, now.Add(time.Hour)))
	level, err = r.BaseDepth(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, level)
}

func TestEnsureUserKeepsExistingDepth(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.SetBaseDepth(ctx, "u1", 5, now))
	require.NoError(t, r.EnsureUser(ctx, "u1", 1, now))
	level, err := r.BaseDepth(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, level)
}

func TestActiveBoostsExcludesExpired(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	mustUser(t, r, "u1", 2)
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	active := domain.DepthBoost{
		ID: "b1", UserID: "u1", DepthDelta: 2,
		ExpiresAt: "2025-06-16T00:00:00Z", GrantedBy: "admin",
		CreatedAt: "2025-06-14T00:00:00Z",
	}
	expired := domain.DepthBoost{
		ID: "b2", UserID: "u1", DepthDelta: 100,
		ExpiresAt: "2025-06-15T00:00:00Z",
		CreatedAt: "2025-06-10T00:00:00Z",
	}
	require.NoError(t, r.InsertBoost(ctx, active))
	require.NoError(t, r.InsertBoost(ctx, expired))

	boosts, err := r.ActiveBoosts(ctx, "u1", now)
	require.NoError(t, err)
	require.Len(t, boosts, 1)
	assert.Equal(t, "b1", boosts[0].ID)

	all, err := r.ListBoosts(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 2, "expired boosts stay on record")
}

func TestLogDepthEventLands(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.LogDepthEvent(ctx, "u1", "depth.resolved", map[string]any{"base": 2, "boost": 3, "final": 5}))

	evts, err := r.LatestEvents(ctx, 10, "u1", "depth.resolved")
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Equal(t, "depth", evts[0].EntityKind)
	assert.Contains(t, evts[0].Payload, `"final":5`)
}

func TestAPIKeyLifecycle(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	raw := "cl_secret_123"
	key := domain.APIKey{
		ID:      "k1",
		ActorID: "ops",
		Name:    "ci",
		KeyHash: HashAPIKey(raw),
	}
	require.NoError(t, r.InsertAPIKey(ctx, key))

	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey(" cl_secret_123 "))
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
	assert.Equal(t, "ops", got.ActorID)

	_, err = r.GetAPIKeyByHash(ctx, HashAPIKey("wrong"))
	assert.ErrorIs(t, err, ErrNotFound)

	keys, err := r.ListAPIKeys(ctx, "ops")
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, r.DeleteAPIKey(ctx, "k1"))
	assert.ErrorIs(t, r.DeleteAPIKey(ctx, "k1"), ErrNotFound)
}
