package jobstore

import (
	"context"
	"time"

	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/txrunner"
)

// RecoverMisfires implements the periodic misfire task from spec.md §4.H:
// a cheap lock-free peek, then a locked batch pass, repeated immediately if
// the batch was truncated by MaxMisfiresToHandleAtATime.
func (s *Store) RecoverMisfires(ctx context.Context) (bool, error) {
	misfireTime := s.misfireFloor()

	count, err := txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (int, error) {
		return s.runner.Delegate.CountMisfiredTriggersInState(c, c.Tx, s.schedulerName(), model.StateWaiting, misfireTime)
	})
	if err != nil {
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	more := true
	recovered := false
	for more {
		var moreRemaining bool
		_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
			var err error
			moreRemaining, err = s.recoverMisfiredJobsTx(c, false)
			return struct{}{}, err
		})
		if err != nil {
			return recovered, err
		}
		recovered = true
		more = moreRemaining
	}
	return recovered, nil
}

func (s *Store) misfireFloor() time.Time {
	t := s.now().Add(-s.cfg.MisfireThreshold)
	if t.Before(time.Unix(0, 0)) {
		t = time.Unix(0, 0)
	}
	return t
}

// recoverMisfiredJobsTx handles up to MaxMisfiresToHandleAtATime Waiting
// triggers past misfireTime and reports whether more remain beyond that
// page.
func (s *Store) recoverMisfiredJobsTx(c *txrunner.Ctx, recovering bool) (bool, error) {
	misfireTime := s.misfireFloor()
	keys, hasMore, err := s.runner.Delegate.HasMisfiredTriggersInState(c, c.Tx, s.schedulerName(), model.StateWaiting, misfireTime, s.cfg.MaxMisfiresToHandleAtATime)
	if err != nil {
		return false, err
	}

	for _, tk := range keys {
		t, err := s.runner.Delegate.SelectTrigger(c, c.Tx, tk)
		if err != nil || t == nil {
			if err != nil {
				return false, err
			}
			continue
		}
		cal, found, err := s.resolveCalendar(c, s.schedulerName(), t.CalendarName)
		if err != nil {
			return false, err
		}
		if t.CalendarName != "" && !found {
			continue
		}

		t.UpdateAfterMisfire(cal, s.now())
		s.signaler().NotifyTriggerListenersMisfired(*t)

		if t.NextFireTime == nil {
			if err := s.storeTriggerTx(c, *t, statePtr(model.StateComplete), true); err != nil {
				return false, err
			}
			s.signaler().NotifySchedulerListenersFinalized(*t)
			continue
		}
		if err := s.storeTriggerTx(c, *t, statePtr(model.StateWaiting), false); err != nil {
			return false, err
		}
	}
	return hasMore, nil
}

func statePtr(s model.TriggerState) *model.TriggerState { return &s }
