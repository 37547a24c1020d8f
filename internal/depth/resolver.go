package depth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"castline/internal/domain"
	"castline/internal/repo"
)

// Store is the capability storage the resolver reads from. BaseDepth returns
// repo.ErrNotFound for unknown users; LogDepthEvent is best-effort telemetry.
type Store interface {
	BaseDepth(ctx context.Context, userID string) (int, error)
	ActiveBoosts(ctx context.Context, userID string, now time.Time) ([]domain.DepthBoost, error)
	LogDepthEvent(ctx context.Context, userID, kind string, payload map[string]any) error
}

// Resolver computes a user's effective depth (base plus unexpired boosts)
// and delegates to Resolve.
type Resolver struct {
	Store        Store
	DefaultLevel int
	Logger       *zap.Logger
	Now          func() time.Time
}

func NewResolver(store Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		Store:        store,
		DefaultLevel: MinLevel,
		Logger:       logger,
		Now:          time.Now,
	}
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ResolveUser returns the capability context for a user. An unknown user
// degrades to the default level rather than failing; only an irrecoverable
// base lookup error propagates.
func (r *Resolver) ResolveUser(ctx context.Context, userID string) (domain.CapabilityContext, error) {
	base, err := r.Store.BaseDepth(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		base = r.defaultLevel()
	} else if err != nil {
		return domain.CapabilityContext{}, err
	}

	boost := 0
	boosts, err := r.Store.ActiveBoosts(ctx, userID, r.now())
	if err != nil {
		// A missing or unreadable boost list never blocks resolution.
		r.Logger.Warn("depth boosts unavailable", zap.String("user_id", userID), zap.Error(err))
		boosts = nil
	}
	for _, b := range boosts {
		boost += b.DepthDelta
	}

	total := base + boost
	cc := Resolve(total)
	if boost != 0 || total > 5 {
		payload := map[string]any{"base": base, "boost": boost, "final": cc.DepthLevel}
		if err := r.Store.LogDepthEvent(ctx, userID, "depth.resolved", payload); err != nil {
			r.Logger.Debug("depth event not recorded", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return cc, nil
}

func (r *Resolver) defaultLevel() int {
	if r.DefaultLevel >= MinLevel && r.DefaultLevel <= MaxLevel {
		return r.DefaultLevel
	}
	return MinLevel
}
