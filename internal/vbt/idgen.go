package vbt

import "github.com/google/uuid"

// IDGenerator abstracts unique ID generation so tests are deterministic.
// Wall-clock time is abstracted separately, via clock.Clock.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
