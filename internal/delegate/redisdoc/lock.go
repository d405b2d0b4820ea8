package redisdoc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/lock"
	"github.com/d10n/quartznet/internal/storeerr"
)

// releaseScript only deletes the lock key if it still holds the token we
// set, so an expired-then-reacquired-by-someone-else lock is never dropped
// out from under its new holder. Grounded on the teacher's dequeueScript
// Lua pattern in internal/queue/redis_queue.go.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

const lockTTL = 30 * time.Second

// ObtainRowLock implements lock.RowLocker with a SETNX-based distributed
// lock, polling on contention. Ownership is unwound automatically after
// lockTTL in case a holder crashes mid-transaction.
func (d *Delegate) ObtainRowLock(ctx context.Context, _ delegate.Tx, schedulerName string, lockName lock.Name) error {
	k := lockKey(schedulerName, string(lockName))
	token := uuid.NewString()
	for {
		ok, err := d.client.SetNX(ctx, k, token, lockTTL).Result()
		if err != nil {
			return storeerr.LockFailed(fmt.Sprintf("obtain %s", lockName), err)
		}
		if ok {
			d.trackLockToken(k, token)
			return nil
		}
		select {
		case <-ctx.Done():
			return storeerr.LockFailed(fmt.Sprintf("obtain %s", lockName), ctx.Err())
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// releaseTrackedLocks is called by Delegate.Commit/Rollback to drop every row
// lock this transaction took, since Redis has no transaction boundary to
// hang the release off of the way Postgres hangs it off COMMIT/ROLLBACK.
func (d *Delegate) releaseTrackedLocks(ctx context.Context) {
	d.mu.Lock()
	tokens := d.heldLocks
	d.heldLocks = nil
	d.mu.Unlock()
	for k, token := range tokens {
		releaseScript.Run(ctx, d.client, []string{k}, token)
	}
}

func (d *Delegate) trackLockToken(k, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.heldLocks == nil {
		d.heldLocks = make(map[string]string)
	}
	d.heldLocks[k] = token
}
