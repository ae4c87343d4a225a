package vbt_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"vbt-go/internal/vbt"
)

func TestScheduler(t *testing.T) {
	newScheduler := func(t *testing.T, runErr error) (*vbt.Scheduler, *testclock.Clock, chan struct{}) {
		t.Helper()
		clk := testclock.NewClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
		runs := make(chan struct{}, 16)
		sched := vbt.NewScheduler(clk, vbt.NewNopLogger(), func(context.Context) error {
			runs <- struct{}{}
			return runErr
		})
		t.Cleanup(sched.Stop)
		return sched, clk, runs
	}

	expectRun := func(t *testing.T, runs chan struct{}) {
		t.Helper()
		select {
		case <-runs:
		case <-time.After(time.Second):
			t.Fatal("no backup fired within the deadline")
		}
	}

	expectNoRun := func(t *testing.T, runs chan struct{}) {
		t.Helper()
		select {
		case <-runs:
			t.Fatal("unexpected backup fired")
		case <-time.After(50 * time.Millisecond):
		}
	}

	t.Run("fires after each interval", func(t *testing.T) {
		sched, clk, runs := newScheduler(t, nil)
		sched.Reconfigure(true, 15*time.Minute)

		if err := clk.WaitAdvance(15*time.Minute, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
		expectRun(t, runs)

		if err := clk.WaitAdvance(15*time.Minute, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
		expectRun(t, runs)
	})

	t.Run("does not fire before the interval", func(t *testing.T) {
		sched, clk, runs := newScheduler(t, nil)
		sched.Reconfigure(true, 15*time.Minute)

		if err := clk.WaitAdvance(14*time.Minute, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
		expectNoRun(t, runs)
	})

	t.Run("reconfigure replaces the previous timer", func(t *testing.T) {
		sched, clk, runs := newScheduler(t, nil)
		sched.Reconfigure(true, 15*time.Minute)
		sched.Reconfigure(true, 15*time.Minute)

		if err := clk.WaitAdvance(15*time.Minute, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
		expectRun(t, runs)
		// A second surviving timer would fire a second run here.
		expectNoRun(t, runs)
	})

	t.Run("disabling cancels the timer", func(t *testing.T) {
		sched, clk, runs := newScheduler(t, nil)
		sched.Reconfigure(true, 15*time.Minute)
		sched.Reconfigure(false, 0)

		clk.Advance(time.Hour)
		expectNoRun(t, runs)
	})

	t.Run("stop prevents any further firing", func(t *testing.T) {
		sched, clk, runs := newScheduler(t, nil)
		sched.Reconfigure(true, 15*time.Minute)
		sched.Stop()

		clk.Advance(time.Hour)
		expectNoRun(t, runs)
	})

	t.Run("failed runs do not kill the loop", func(t *testing.T) {
		sched, clk, runs := newScheduler(t, errors.New("upload failed"))
		sched.Reconfigure(true, 30*time.Minute)

		if err := clk.WaitAdvance(30*time.Minute, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
		expectRun(t, runs)

		if err := clk.WaitAdvance(30*time.Minute, time.Second, 1); err != nil {
			t.Fatalf("WaitAdvance() error = %v", err)
		}
		expectRun(t, runs)
	})
}
