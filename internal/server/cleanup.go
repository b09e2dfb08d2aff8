package server

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"chorus/internal/engine"
)

// DefaultCleanupInterval is how often expired locks are swept.
const DefaultCleanupInterval = 60 * time.Second

type lockSweeper struct {
	engine   engine.Engine
	interval time.Duration
	log      *log.Logger
}

// startLockCleanup sweeps expired locks until ctx is done. The returned
// channel closes when the loop has exited.
func startLockCleanup(ctx context.Context, e engine.Engine, interval time.Duration, logger *log.Logger) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	s := &lockSweeper{engine: e, interval: interval, log: logger}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx)
	}()
	return done
}

func (s *lockSweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *lockSweeper) sweep(ctx context.Context) {
	n, err := s.engine.CleanupExpiredLocks(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("lock cleanup failed", "err", err)
		}
		return
	}
	if n > 0 {
		s.log.Info("cleaned up expired locks", "count", n)
	}
}
