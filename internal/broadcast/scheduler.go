package broadcast

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"castline/internal/domain"
	"castline/internal/transport"
)

const defaultTickInterval = 60 * time.Second

// Scheduler polls for due campaigns and runs each in its own goroutine. A
// campaign never has two batches in flight: the running set serializes runs
// per campaign while campaigns stay concurrent with each other.
type Scheduler struct {
	Store     CampaignStore
	Executor  *Executor
	Messenger transport.Messenger
	Logger    *zap.Logger
	Interval  time.Duration
	Now       func() time.Time

	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

func NewScheduler(store CampaignStore, exec *Executor, messenger transport.Messenger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Store:     store,
		Executor:  exec,
		Messenger: messenger,
		Logger:    logger,
		Interval:  defaultTickInterval,
		Now:       time.Now,
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight batches to
// finish before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	s.Logger.Info("scheduler started", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler stopping, draining batches")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick dispatches every due campaign that is not already running. A store
// failure skips the tick; the next one retries.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.Now()
	pending, err := s.Store.PendingCampaigns(ctx, now)
	if err != nil {
		s.Logger.Error("pending campaign lookup failed", zap.Error(err))
		return
	}
	for _, c := range pending {
		s.dispatch(ctx, c, now)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, c domain.Campaign, now time.Time) {
	log := s.Logger.With(zap.String("campaign_id", c.ID), zap.String("user_id", c.UserID))
	if !s.acquire(c.ID) {
		log.Debug("batch already in flight, skipping")
		return
	}

	if !windowOpen(c.Config.Window, now) {
		// Stay due; the window check repeats next tick.
		log.Debug("operating window closed, deferring")
		s.release(c.ID)
		return
	}
	connected, err := s.Messenger.SessionConnected(ctx, c.UserID)
	if err != nil {
		log.Warn("session status unavailable, deferring", zap.Error(err))
		s.release(c.ID)
		return
	}
	if !connected {
		log.Info("session offline, deferring")
		s.release(c.ID)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(c.ID)
		if _, err := s.Executor.ExecuteBatch(ctx, c); err != nil {
			log.Error("batch failed", zap.Error(err))
		}
	}()
}

func (s *Scheduler) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		s.running = make(map[string]struct{})
	}
	if _, busy := s.running[id]; busy {
		return false
	}
	s.running[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}
