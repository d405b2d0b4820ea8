package lock

import (
	"context"
	"sync"
	"time"

	"github.com/d10n/quartznet/internal/delegate"
)

// InProcess is the non-clustered LockManager: a process-local mutex per
// lock name, with re-entrant tracking so one requestor can hold the same
// lock across nested calls within a single transaction-runner invocation.
type InProcess struct {
	mu    sync.Mutex
	locks map[Name]*heldLock
}

type heldLock struct {
	mu       sync.Mutex
	held     bool
	holder   string
	refcount int
}

// NewInProcess constructs an InProcess lock manager.
func NewInProcess() *InProcess {
	return &InProcess{locks: make(map[Name]*heldLock)}
}

func (m *InProcess) lockFor(name Name) *heldLock {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[name]
	if !ok {
		l = &heldLock{}
		m.locks[name] = l
	}
	return l
}

func (m *InProcess) Obtain(ctx context.Context, _ delegate.Tx, lockName Name, requestorID string) error {
	l := m.lockFor(lockName)
	for {
		l.mu.Lock()
		if !l.held {
			l.held = true
			l.holder = requestorID
			l.refcount = 1
			l.mu.Unlock()
			return nil
		}
		if l.holder == requestorID {
			l.refcount++
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		// Contention blocks (spec.md §4.D); yield briefly and retry rather
		// than busy-spin a full core.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (m *InProcess) Release(_ context.Context, _ delegate.Tx, lockName Name, requestorID string) error {
	l := m.lockFor(lockName)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held || l.holder != requestorID {
		return nil
	}
	l.refcount--
	if l.refcount <= 0 {
		l.held = false
		l.holder = ""
		l.refcount = 0
	}
	return nil
}
