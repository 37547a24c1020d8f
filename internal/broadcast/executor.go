package broadcast

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"castline/internal/domain"
	"castline/internal/render"
	"castline/internal/transport"
)

// jitterSpreadMs is the widest extra per-send delay, scaled down by the
// user's variation depth.
const jitterSpreadMs = 2000

// CampaignStore is the persistence surface the broadcast engine needs.
type CampaignStore interface {
	PendingCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)
	ApplyRun(ctx context.Context, id string, run domain.RunResult) error
}

// CapabilitySource resolves the sending user's capability context; the
// variation depth in it drives send jitter.
type CapabilitySource interface {
	ResolveUser(ctx context.Context, userID string) (domain.CapabilityContext, error)
}

// Executor runs one campaign batch end to end: resolve capabilities, render
// per-group messages, pace sends, and fold the outcome back into the store.
type Executor struct {
	Store     CampaignStore
	Resolver  CapabilitySource
	Messenger transport.Messenger
	Logger    *zap.Logger
	Now       func() time.Time
	// Sleep waits for d or until ctx is done. Injected so tests run batches
	// without real delays.
	Sleep func(ctx context.Context, d time.Duration) error
	Rand  func() float64
}

func NewExecutor(store CampaignStore, resolver CapabilitySource, messenger transport.Messenger, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Store:     store,
		Resolver:  resolver,
		Messenger: messenger,
		Logger:    logger,
		Now:       time.Now,
		Sleep:     sleepCtx,
		Rand:      rand.Float64,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteBatch sends one batch for the campaign and returns the run outcome.
// A failed group send is counted and skipped, never fatal; the window closing
// mid-batch soft-cancels the remaining groups without counting them as
// failures. The returned result is already applied to the store.
func (e *Executor) ExecuteBatch(ctx context.Context, c domain.Campaign) (domain.RunResult, error) {
	log := e.Logger.With(zap.String("campaign_id", c.ID), zap.String("user_id", c.UserID))

	cc, err := e.Resolver.ResolveUser(ctx, c.UserID)
	if err != nil {
		return domain.RunResult{}, err
	}
	jitterFactor := float64(cc.VariationDepth) / 100

	subjects := e.groupSubjects(ctx, c, log)

	var run domain.RunResult
	for i, groupID := range c.Groups {
		if !windowOpen(c.Config.Window, e.Now()) {
			log.Info("operating window closed, batch soft-cancelled",
				zap.Int("sent", run.Sent), zap.Int("remaining", len(c.Groups)-i))
			break
		}
		if i > 0 {
			if err := e.Sleep(ctx, e.sendDelay(c.Config, jitterFactor)); err != nil {
				log.Info("batch interrupted", zap.Int("sent", run.Sent), zap.Error(err))
				break
			}
		}

		subject, ok := subjects[groupID]
		if !ok || subject == "" {
			subject = groupID
		}
		text := render.Message(c.Message, c.Config.UseSpintax, subject, e.pick)

		if err := e.Messenger.SendMessage(ctx, c.UserID, groupID, text, c.MediaURL); err != nil {
			run.Failed++
			log.Warn("group send failed", zap.String("group_id", groupID), zap.Error(err))
			continue
		}
		run.Sent++
	}

	now := e.Now()
	run.LastRunAt = now.UTC().Format(time.RFC3339)
	run.NextRunAt = NextRun(c.Schedule, now)
	if run.NextRunAt == "" {
		run.Status = domain.CampaignCompleted
	} else {
		run.Status = domain.CampaignActive
	}

	// Persist even when the batch was cut short by cancellation; partial
	// counts must not be lost on shutdown.
	if err := e.Store.ApplyRun(context.WithoutCancel(ctx), c.ID, run); err != nil {
		return run, err
	}
	log.Info("batch done",
		zap.Int("sent", run.Sent), zap.Int("failed", run.Failed),
		zap.String("next_run_at", run.NextRunAt), zap.String("status", run.Status))
	return run, nil
}

// groupSubjects maps group IDs to their display names. Metadata is cosmetic:
// when the gateway cannot list groups the IDs stand in as labels.
func (e *Executor) groupSubjects(ctx context.Context, c domain.Campaign, log *zap.Logger) map[string]string {
	subjects := map[string]string{}
	groups, err := e.Messenger.GroupMetadata(ctx, c.UserID)
	if err != nil {
		log.Warn("group metadata unavailable", zap.Error(err))
		return subjects
	}
	for _, g := range groups {
		subjects[g.ID] = g.Subject
	}
	return subjects
}

// sendDelay draws the pause before the next send: a uniform base in the
// campaign's [min,max] seconds plus a jitter component scaled by the user's
// variation depth.
func (e *Executor) sendDelay(cfg domain.SendConfig, jitterFactor float64) time.Duration {
	min, max := cfg.MinDelaySec, cfg.MaxDelaySec
	if max < min {
		max = min
	}
	baseMs := (float64(min) + e.Rand()*float64(max-min)) * 1000
	jitterMs := e.Rand() * jitterSpreadMs * jitterFactor
	return time.Duration(baseMs+jitterMs) * time.Millisecond
}

func (e *Executor) pick(n int) int {
	if n <= 1 {
		return 0
	}
	i := int(e.Rand() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
