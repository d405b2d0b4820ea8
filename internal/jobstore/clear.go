package jobstore

import (
	"context"

	"github.com/d10n/quartznet/internal/txrunner"
)

// ClearAllSchedulingData wipes every job, trigger, calendar, fired-trigger
// row, and paused-group marker for this scheduler (spec.md §4.F: "any →
// clearAllSchedulingData → removed").
func (s *Store) ClearAllSchedulingData(ctx context.Context) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		if err := s.runner.Delegate.ClearData(c, c.Tx, s.schedulerName()); err != nil {
			return struct{}{}, err
		}
		s.invalidateCalendarCache("")
		c.RequestSignal(nil)
		return struct{}{}, nil
	})
	return err
}
