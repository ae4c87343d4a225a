package vbt

import "time"

// RunStatus describes the outcome of a backup run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Run is the record of one backup attempt.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Key        string
	Status     RunStatus
	Reason     string // failure cause, empty on success
	FileCount  int
	Bytes      int64
}

// RunRecorder persists completed runs.
type RunRecorder interface {
	Record(run *Run) error
}
