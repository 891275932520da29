package calsync

import (
	"context"
	"sync"
	"time"
)

// scheduler runs fn on a fixed period. Arming replaces any previous timer,
// so at most one is outstanding.
type scheduler struct {
	interval time.Duration
	fn       func(ctx context.Context)
	spawn    func(func()) bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newScheduler(interval time.Duration, spawn func(func()) bool, fn func(ctx context.Context)) *scheduler {
	return &scheduler{interval: interval, fn: fn, spawn: spawn}
}

// arm cancels the current timer, if any, and starts a new one under parent.
func (s *scheduler) arm(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithCancel(parent)
	started := s.spawn(func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.fn(ctx)
			}
		}
	})
	if !started {
		cancel()
		return
	}
	s.cancel = cancel
}

func (s *scheduler) disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *scheduler) armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
