package txrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/delegate/memdelegate"
	"github.com/d10n/quartznet/internal/lock"
	"github.com/d10n/quartznet/internal/signaler"
	"github.com/d10n/quartznet/internal/storeerr"
)

func newRunner() *Runner {
	return &Runner{
		Delegate: memdelegate.New(),
		Locks:    lock.NewInProcess(),
		Signaler: signaler.NopSignaler{},
		Log:      zerolog.Nop(),
	}
}

func TestExecuteInLockHappyPath(t *testing.T) {
	r := newRunner()
	got, err := ExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestExecuteInLockPropagatesWorkError(t *testing.T) {
	r := newRunner()
	boom := errors.New("boom")
	_, err := ExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		return 0, boom
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if !storeerr.Is(err, storeerr.Persistence) {
		t.Fatalf("expected the work error to be rewrapped as Persistence, got %v", err)
	}
}

func TestExecuteInLockPassthroughUnwrapped(t *testing.T) {
	r := newRunner()
	_, err := ExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		return 0, storeerr.AlreadyExists("trigger already exists")
	})
	if !storeerr.Is(err, storeerr.ObjectAlreadyExists) {
		t.Fatalf("expected ObjectAlreadyExists to pass through unwrapped, got %v", err)
	}
}

func TestExecuteInLockRecoversPanic(t *testing.T) {
	r := newRunner()
	_, err := ExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		panic("something went wrong")
	})
	if err == nil {
		t.Fatal("expected a panic to surface as an error")
	}
	if !storeerr.Is(err, storeerr.Persistence) {
		t.Fatalf("expected a recovered panic to be reported as Persistence, got %v", err)
	}
}

func TestExecuteInLockReleasesLockOnWorkError(t *testing.T) {
	r := newRunner()
	_, err := ExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		return 0, errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected an error")
	}

	// The lock must have been released by the failed attempt above, so a
	// second attempt should be able to obtain it without blocking.
	done := make(chan struct{})
	go func() {
		_, _ = ExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
			return 1, nil
		})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the lock to be free after the previous attempt's work error")
	}
}

func TestExecuteInLockSerializesConcurrentWork(t *testing.T) {
	r := newRunner()
	var active int32
	var sawOverlap bool
	var mu = make(chan struct{}, 1)
	mu <- struct{}{}

	work := func(c *Ctx) (int, error) {
		<-mu
		active++
		if active > 1 {
			sawOverlap = true
		}
		time.Sleep(5 * time.Millisecond)
		active--
		mu <- struct{}{}
		return 0, nil
	}

	done := make(chan struct{}, 2)
	go func() { _, _ = ExecuteInLock(context.Background(), r, LockTrigger, work); done <- struct{}{} }()
	go func() { _, _ = ExecuteInLock(context.Background(), r, LockTrigger, work); done <- struct{}{} }()
	<-done
	<-done

	if sawOverlap {
		t.Fatal("expected the trigger-access lock to serialize the two attempts")
	}
}

func TestExecuteInLockAccumulatesEarliestSignal(t *testing.T) {
	r := newRunner()
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	_, err := ExecuteInLock(context.Background(), r, LockNone, func(c *Ctx) (int, error) {
		c.RequestSignal(&late)
		c.RequestSignal(&early)
		c.RequestSignal(nil)
		if c.signalTime == nil || !c.signalTime.Equal(early) {
			t.Fatalf("expected the earliest requested signal to win, got %v", c.signalTime)
		}
		return 0, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRetryExecuteInLockStopsOnPassthroughError(t *testing.T) {
	r := newRunner()
	calls := 0
	_, err := RetryExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		calls++
		return 0, storeerr.NotFound("gone")
	})
	if !storeerr.Is(err, storeerr.NoSuchObject) {
		t.Fatalf("expected NoSuchObject to pass through, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one attempt for a passthrough error, got %d", calls)
	}
}

func TestRetryExecuteInLockRetriesPersistenceFailures(t *testing.T) {
	r := newRunner()
	r.DBRetryInterval = time.Millisecond
	r.RetryableActionLogThreshold = 1

	calls := 0
	got, err := RetryExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient failure")
		}
		return 99, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 99 {
		t.Fatalf("expected 99 after retries, got %d", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryExecuteInLockStopsOnShutdown(t *testing.T) {
	r := newRunner()
	r.DBRetryInterval = time.Millisecond
	r.Shutdown()

	_, err := RetryExecuteInLock(context.Background(), r, LockTrigger, func(c *Ctx) (int, error) {
		t.Fatal("work must not run once the runner is shut down")
		return 0, nil
	})
	if !storeerr.Is(err, storeerr.Cancelled) {
		t.Fatalf("expected a Cancelled error once shut down, got %v", err)
	}
}

func TestRetryExecuteInLockRespectsContextCancellation(t *testing.T) {
	r := newRunner()
	r.DBRetryInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryExecuteInLock(ctx, r, LockTrigger, func(c *Ctx) (int, error) {
		t.Fatal("work must not run against an already-cancelled context")
		return 0, nil
	})
	if !storeerr.Is(err, storeerr.Cancelled) {
		t.Fatalf("expected a Cancelled error, got %v", err)
	}
}

func TestExecuteInLockValidatedSwallowsFalseNegativeCommit(t *testing.T) {
	r := newRunner()
	work := func(c *Ctx) (int, error) { return 7, nil }
	validate := func(ctx context.Context, result int) bool { return true }

	// Simulate a commit failure by wrapping a runner whose delegate always
	// fails Commit, to exercise the validator path.
	fd := &failingCommitDelegate{Delegate: r.Delegate.(*memdelegate.Delegate)}
	r.Delegate = fd

	// On a commit failure ExecuteInLock yields the zero value alongside the
	// error; ExecuteInLockValidated passes that zero value to the
	// validator rather than the work's actual return value.
	if _, err := ExecuteInLockValidated(context.Background(), r, LockTrigger, work, validate); err != nil {
		t.Fatalf("expected the validator to swallow the commit failure, got %v", err)
	}
}

func TestExecuteInLockValidatedPropagatesWhenValidatorRejects(t *testing.T) {
	r := newRunner()
	work := func(c *Ctx) (int, error) { return 7, nil }
	validate := func(ctx context.Context, result int) bool { return false }

	fd := &failingCommitDelegate{Delegate: r.Delegate.(*memdelegate.Delegate)}
	r.Delegate = fd

	_, err := ExecuteInLockValidated(context.Background(), r, LockTrigger, work, validate)
	if !storeerr.Is(err, storeerr.Persistence) {
		t.Fatalf("expected the commit failure to propagate when the validator rejects it, got %v", err)
	}
}

// failingCommitDelegate wraps memdelegate.Delegate to simulate a driver
// that reports a commit failure after the work has already run, exercising
// ExecuteInLockValidated's false-negative-commit recovery path.
type failingCommitDelegate struct {
	*memdelegate.Delegate
}

func (f *failingCommitDelegate) Commit(ctx context.Context, tx delegate.Tx) error {
	return errors.New("commit failed")
}
