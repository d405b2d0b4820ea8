package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/d10n/quartznet/internal/delegate"
)

func TestInProcessReentrantForSameRequestor(t *testing.T) {
	m := NewInProcess()
	ctx := context.Background()

	if err := m.Obtain(ctx, nil, TriggerAccess, "req-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if err := m.Obtain(ctx, nil, TriggerAccess, "req-1"); err != nil {
		t.Fatalf("re-entrant obtain: %v", err)
	}
	if err := m.Release(ctx, nil, TriggerAccess, "req-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	// One release should not have dropped the lock yet (refcount 1 left).
	done := make(chan struct{})
	go func() {
		_ = m.Obtain(ctx, nil, TriggerAccess, "req-2")
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("expected req-2 to still be blocked after a single release")
	case <-time.After(20 * time.Millisecond):
	}

	if err := m.Release(ctx, nil, TriggerAccess, "req-1"); err != nil {
		t.Fatalf("second release: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected req-2 to acquire the lock after it was fully released")
	}
}

func TestInProcessBlocksOtherRequestor(t *testing.T) {
	m := NewInProcess()
	ctx := context.Background()

	if err := m.Obtain(ctx, nil, StateAccess, "req-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		_ = m.Obtain(ctx, nil, StateAccess, "req-2")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("expected req-2 to block while req-1 holds the lock")
	case <-time.After(20 * time.Millisecond):
	}

	if err := m.Release(ctx, nil, StateAccess, "req-1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("expected req-2 to acquire the lock once released")
	}
}

func TestInProcessObtainRespectsCancellation(t *testing.T) {
	m := NewInProcess()
	ctx := context.Background()
	if err := m.Obtain(ctx, nil, TriggerAccess, "req-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := m.Obtain(cctx, nil, TriggerAccess, "req-2"); err == nil {
		t.Fatal("expected an error once the context is cancelled while blocked")
	}
}

// fakeRowLocker records calls and optionally fails, standing in for pg/redisdoc
// in tests exercising the Store lock manager.
type fakeRowLocker struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeRowLocker) ObtainRowLock(_ context.Context, _ delegate.Tx, _ string, _ Name) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func TestStoreObtainsRowLockOncePerRequestor(t *testing.T) {
	rows := &fakeRowLocker{}
	s := NewStore("sched-1", rows)
	ctx := context.Background()

	if err := s.Obtain(ctx, nil, TriggerAccess, "req-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if err := s.Obtain(ctx, nil, TriggerAccess, "req-1"); err != nil {
		t.Fatalf("re-entrant obtain: %v", err)
	}

	rows.mu.Lock()
	calls := rows.calls
	rows.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one row-lock call for a re-entrant requestor, got %d", calls)
	}
}

func TestStoreReleaseIsNoOpForWrongRequestor(t *testing.T) {
	rows := &fakeRowLocker{}
	s := NewStore("sched-1", rows)
	ctx := context.Background()

	if err := s.Obtain(ctx, nil, StateAccess, "req-1"); err != nil {
		t.Fatalf("obtain: %v", err)
	}
	if err := s.Release(ctx, nil, StateAccess, "req-2"); err != nil {
		t.Fatalf("release by non-holder should be a no-op, got error: %v", err)
	}

	// req-1 should still be recorded as the holder.
	s.mu.Lock()
	holder := s.holders[StateAccess]
	s.mu.Unlock()
	if holder != "req-1" {
		t.Fatalf("expected req-1 to remain the holder, got %q", holder)
	}
}

func TestStorePropagatesRowLockFailure(t *testing.T) {
	rows := &fakeRowLocker{err: context.DeadlineExceeded}
	s := NewStore("sched-1", rows)
	if err := s.Obtain(context.Background(), nil, TriggerAccess, "req-1"); err == nil {
		t.Fatal("expected the row lock failure to propagate")
	}
}
