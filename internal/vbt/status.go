package vbt

import (
	"os"
	"sync"
	"time"

	"github.com/juju/clock"
)

// StatusIdle is the resting status line.
const StatusIdle = "idle"

// successLinger is how long a success message stays up before the status
// reverts to idle.
const successLinger = 5 * time.Second

// StatusReporter tracks the one-line, user-visible state of the backup
// subsystem. Success messages revert to idle after a short linger; error
// messages stay until the next run replaces them.
type StatusReporter struct {
	clock  clock.Clock
	logger Logger

	mu     sync.Mutex
	text   string
	gen    int
	revert clock.Timer
	mirror string
}

func NewStatusReporter(clk clock.Clock, logger Logger) *StatusReporter {
	return &StatusReporter{clock: clk, logger: logger, text: StatusIdle}
}

// MirrorTo makes the reporter write every status change to path, so other
// processes can read the current line. Write failures are logged and
// otherwise ignored.
func (r *StatusReporter) MirrorTo(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mirror = path
	r.write(r.text)
}

// Text returns the current status line.
func (r *StatusReporter) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text
}

// SetBusy shows an in-progress message and cancels any pending revert.
func (r *StatusReporter) SetBusy(text string) { r.set(text, false) }

// SetError shows a failure message that stays until replaced.
func (r *StatusReporter) SetError(text string) { r.set(text, false) }

// SetSuccess shows a success message and schedules the revert to idle.
func (r *StatusReporter) SetSuccess(text string) { r.set(text, true) }

func (r *StatusReporter) set(text string, linger bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revert != nil {
		r.revert.Stop()
		r.revert = nil
	}
	r.gen++
	r.text = text
	r.write(text)
	if !linger {
		return
	}
	gen := r.gen
	r.revert = r.clock.AfterFunc(successLinger, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.gen != gen {
			// A newer status took over before the linger expired.
			return
		}
		r.text = StatusIdle
		r.write(StatusIdle)
	})
}

// write mirrors the current line to the status file. Caller holds r.mu.
func (r *StatusReporter) write(text string) {
	if r.mirror == "" {
		return
	}
	if err := os.WriteFile(r.mirror, []byte(text+"\n"), 0o644); err != nil && r.logger != nil {
		r.logger.Warn("writing status file", "error", err)
	}
}
