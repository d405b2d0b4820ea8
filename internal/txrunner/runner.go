// Package txrunner wraps every store-mutating core operation in the
// {acquire lock → open tx → do work → commit → signal} sequence spec.md
// §4.E describes, including the retry wrapper used by the completion path
// and the post-commit validator used by acquire/fire.
package txrunner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/lock"
	"github.com/d10n/quartznet/internal/signaler"
	"github.com/d10n/quartznet/internal/storeerr"
)

// LockType is which of the two named locks (or none) a unit of work needs.
type LockType int

const (
	LockNone LockType = iota
	LockTrigger
	LockState
)

func (t LockType) name() lock.Name {
	if t == LockTrigger {
		return lock.TriggerAccess
	}
	return lock.StateAccess
}

// Ctx is handed to a unit of work; it carries the open transaction and lets
// the work request a post-commit scheduling-change signal.
type Ctx struct {
	context.Context
	Tx delegate.Tx

	signalTime *time.Time
}

// RequestSignal records a desired scheduling-change signal time. Per
// spec.md §4.E's accumulation invariant, if called multiple times within
// one transaction the earliest non-nil time wins.
func (c *Ctx) RequestSignal(t *time.Time) {
	if t == nil {
		return
	}
	if c.signalTime == nil || t.Before(*c.signalTime) {
		tt := *t
		c.signalTime = &tt
	}
}

// Work is one store-mutating unit of logic run inside a transaction.
type Work[T any] func(c *Ctx) (T, error)

// Runner owns transaction lifecycle, lock acquisition/release ordering, and
// retry policy for the core's store-mutating operations.
type Runner struct {
	Delegate delegate.Delegate
	Locks    lock.Manager
	Signaler signaler.Signaler
	Log      zerolog.Logger

	DBRetryInterval            time.Duration
	RetryableActionLogThreshold int

	shutdown atomic.Bool
	reqCounter atomic.Uint64
}

// Shutdown flips the flag retry loops consult; once set, RetryExecuteInLock
// stops looping and returns a Cancelled error.
func (r *Runner) Shutdown() { r.shutdown.Store(true) }

func (r *Runner) IsShutdown() bool { return r.shutdown.Load() }

func (r *Runner) nextRequestorID() string {
	n := r.reqCounter.Add(1)
	return "req-" + time.Now().UTC().Format("150405.000000") + "-" + itoa(n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ExecuteInLock runs work under the named lock (or with no lock at all for
// LockNone), per spec.md §4.E steps 1-6.
func ExecuteInLock[T any](ctx context.Context, r *Runner, lt LockType, work Work[T]) (T, error) {
	var zero T
	tx, err := r.Delegate.Begin(ctx)
	if err != nil {
		return zero, storeerr.Wrap("begin transaction", err)
	}

	requestor := r.nextRequestorID()
	locked := false
	if lt != LockNone {
		if err := r.Locks.Obtain(ctx, tx, lt.name(), requestor); err != nil {
			_ = r.Delegate.Rollback(ctx, tx)
			return zero, err
		}
		locked = true
	}

	release := func() {
		if locked {
			_ = r.Locks.Release(ctx, tx, lt.name(), requestor)
		}
	}

	wc := &Ctx{Context: ctx, Tx: tx}
	result, werr := safeCall(work, wc)
	if werr != nil {
		_ = r.Delegate.Rollback(ctx, tx)
		release()
		if isPassthrough(werr) {
			return zero, werr
		}
		if ctx.Err() != nil {
			return zero, storeerr.CancelledErr("work cancelled")
		}
		return zero, storeerr.Wrap("transactional work failed", werr)
	}

	if err := r.Delegate.Commit(ctx, tx); err != nil {
		release()
		return zero, storeerr.Wrap("commit", err)
	}
	release()

	if wc.signalTime != nil && r.Signaler != nil {
		r.Signaler.SignalSchedulingChange(wc.signalTime)
	}
	return result, nil
}

// ExecuteWithoutLock is ExecuteInLock with LockNone, spelled out for
// readability at call sites.
func ExecuteWithoutLock[T any](ctx context.Context, r *Runner, work Work[T]) (T, error) {
	return ExecuteInLock(ctx, r, LockNone, work)
}

// isPassthrough reports whether err should propagate unwrapped rather than
// be rewrapped as Persistence — spec.md §7: "ObjectAlreadyExists passes
// through unwrapped."
func isPassthrough(err error) bool {
	return storeerr.Is(err, storeerr.ObjectAlreadyExists) ||
		storeerr.Is(err, storeerr.NoSuchObject) ||
		storeerr.Is(err, storeerr.Cancelled)
}

func safeCall[T any](work Work[T], c *Ctx) (result T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = storeerr.Wrap("panic in transactional work", panicErr(p))
		}
	}()
	return work(c)
}

type panicValue struct{ v any }

func (p panicValue) Error() string { return "panic: " + toString(p.v) }

func panicErr(v any) error { return panicValue{v} }

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown panic"
}
