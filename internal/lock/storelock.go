package lock

import (
	"context"
	"sync"

	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/storeerr"
)

// RowLocker is implemented by a back-end adapter that knows how to take a
// row-level write lock (e.g. Postgres "SELECT ... FOR UPDATE") within the
// caller's open transaction.
type RowLocker interface {
	ObtainRowLock(ctx context.Context, tx delegate.Tx, schedulerName string, lockName Name) error
}

// Store is the clustering-mandatory LockManager: a lock row keyed by
// (schedulerName, lockName). Obtain takes the back-end row lock once per
// (tx, lockName); the row is released when the caller commits or rolls
// back the transaction (spec.md §4.D) — Release here only clears the local
// re-entrancy bookkeeping for requestorID.
type Store struct {
	schedulerName string
	rows          RowLocker

	mu      sync.Mutex
	holders map[Name]string // lockName -> requestorID currently holding it in-process
	refs    map[Name]int
}

// NewStore builds a store-backed lock manager.
func NewStore(schedulerName string, rows RowLocker) *Store {
	return &Store{
		schedulerName: schedulerName,
		rows:          rows,
		holders:       make(map[Name]string),
		refs:          make(map[Name]int),
	}
}

func (s *Store) Obtain(ctx context.Context, tx delegate.Tx, lockName Name, requestorID string) error {
	s.mu.Lock()
	if holder, ok := s.holders[lockName]; ok && holder == requestorID {
		s.refs[lockName]++
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.rows.ObtainRowLock(ctx, tx, s.schedulerName, lockName); err != nil {
		return storeerr.LockFailed("obtain "+string(lockName), err)
	}

	s.mu.Lock()
	s.holders[lockName] = requestorID
	s.refs[lockName] = 1
	s.mu.Unlock()
	return nil
}

func (s *Store) Release(_ context.Context, _ delegate.Tx, lockName Name, requestorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holders[lockName] != requestorID {
		return nil
	}
	s.refs[lockName]--
	if s.refs[lockName] <= 0 {
		delete(s.holders, lockName)
		delete(s.refs, lockName)
	}
	return nil
}
