package vbt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
)

// Scheduler drives automatic backups on a fixed interval. Reconfigure swaps
// the interval atomically: the previous timer is always cancelled before a
// new one starts, so at most one timer is ever live.
type Scheduler struct {
	clock  clock.Clock
	logger Logger
	run    func(ctx context.Context) error

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(clk clock.Clock, logger Logger, run func(context.Context) error) *Scheduler {
	return &Scheduler{clock: clk, logger: logger, run: run}
}

// Reconfigure cancels any live timer and, when enabled, starts a new one
// firing every interval. Calling it twice with the same arguments still
// leaves exactly one timer running.
func (s *Scheduler) Reconfigure(enabled bool, interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if !enabled || interval <= 0 {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	s.wg.Add(1)
	go s.loop(interval, stop)
	s.logger.Info("automatic backups scheduled", "interval", interval)
}

// Stop cancels the live timer, if any, and waits for the loop to exit.
// No backup fires after Stop returns; a run already started finishes
// before Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
	s.wg.Wait()
}

func (s *Scheduler) loop(interval time.Duration, stop chan struct{}) {
	defer s.wg.Done()
	timer := s.clock.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.Chan():
		}
		if err := s.run(context.Background()); err != nil {
			// The loop must survive failed runs; the next tick retries.
			if errors.Is(err, ErrBackupInProgress) {
				s.logger.Info("scheduled backup skipped, one already running")
			} else {
				s.logger.Error("scheduled backup failed", "error", err)
			}
		}
		timer.Reset(interval)
	}
}
