// Package lock implements the two LockManager variants spec.md §4.D
// requires: an in-process monitor and a store-backed lock row. The core
// only ever asks for one of exactly two lock names: TriggerAccess and
// StateAccess.
package lock

import (
	"context"

	"github.com/d10n/quartznet/internal/delegate"
)

// Name is one of the two lock names the core uses.
type Name string

const (
	TriggerAccess Name = "TRIGGER_ACCESS"
	StateAccess   Name = "STATE_ACCESS"
)

// Manager is the LockManager port consumed by internal/txrunner.
type Manager interface {
	// Obtain blocks until the named lock is held by requestorID. Calling it
	// again for the same (lockName, requestorID) pair while already held is
	// a safe re-entrant no-op (spec.md §4.D).
	Obtain(ctx context.Context, tx delegate.Tx, lockName Name, requestorID string) error
	// Release is idempotent-safe; releasing a lock not held by requestorID
	// is a no-op.
	Release(ctx context.Context, tx delegate.Tx, lockName Name, requestorID string) error
}
