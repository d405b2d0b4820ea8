package txrunner

import (
	"context"
	"time"

	"github.com/d10n/quartznet/internal/storeerr"
)

// RetryExecuteInLock loops until shutdown; on a Persistence failure it logs
// at RetryableActionLogThreshold multiples, sleeps DBRetryInterval, and
// retries. Used for releaseAcquiredTrigger and triggeredJobComplete, whose
// completion path must not lose state to a transient fault (spec.md §4.E).
func RetryExecuteInLock[T any](ctx context.Context, r *Runner, lt LockType, work Work[T]) (T, error) {
	var zero T
	attempt := 0
	for {
		if r.IsShutdown() {
			return zero, storeerr.CancelledErr("runner is shutting down")
		}
		if err := ctx.Err(); err != nil {
			return zero, storeerr.CancelledErr("context cancelled")
		}

		result, err := ExecuteInLock(ctx, r, lt, work)
		if err == nil {
			return result, nil
		}
		if isPassthrough(err) {
			return zero, err
		}

		attempt++
		if r.RetryableActionLogThreshold <= 0 || attempt%r.RetryableActionLogThreshold == 0 {
			r.Log.Error().Err(err).Int("attempt", attempt).Msg("retrying transactional operation after persistence failure")
		}

		interval := r.DBRetryInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		select {
		case <-ctx.Done():
			return zero, storeerr.CancelledErr("context cancelled during retry backoff")
		case <-time.After(interval):
		}
	}
}

// Validator re-queries the back-end after a failed commit to detect the
// "commit actually succeeded before the error" scenario some relational
// drivers exhibit; if it returns true, the failure is swallowed.
type Validator[T any] func(ctx context.Context, result T) bool

// ExecuteInLockValidated behaves like ExecuteInLock, but on a commit
// failure it calls validate before giving up; a true result treats the
// operation as having succeeded with the given result.
func ExecuteInLockValidated[T any](ctx context.Context, r *Runner, lt LockType, work Work[T], validate Validator[T]) (T, error) {
	result, err := ExecuteInLock(ctx, r, lt, work)
	if err == nil {
		return result, nil
	}
	if validate != nil && storeerr.Is(err, storeerr.Persistence) && validate(ctx, result) {
		return result, nil
	}
	return result, err
}
