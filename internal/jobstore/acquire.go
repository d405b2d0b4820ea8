package jobstore

import (
	"context"
	"time"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/txrunner"
)

// FiredBundle is the per-trigger result TriggersFired hands back to the
// scheduler runtime (spec.md §4.G step 7).
type FiredBundle struct {
	Job               model.JobDetail
	Trigger           model.Trigger
	Calendar          model.Calendar
	IsRecovering      bool
	ScheduledFireTime time.Time
	PrevFireTime      *time.Time
	NextFireTime      *time.Time
}

// AcquireNextTriggers implements spec.md §4.G's batch acquisition
// algorithm. It validates a commit failure against the delegate before
// giving up, per spec.md §4.E's validator: some drivers report a commit
// failure after the transaction has already landed, and blindly retrying
// would double-acquire the same triggers.
func (s *Store) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]model.Trigger, error) {
	lt := s.acquireLockType(maxCount)
	var attempted []model.Trigger
	validate := func(vctx context.Context, _ []model.Trigger) bool {
		return s.acquireCommittedDespiteError(vctx, attempted)
	}
	_, err := txrunner.ExecuteInLockValidated(ctx, s.runner, lt, func(c *txrunner.Ctx) ([]model.Trigger, error) {
		triggers, werr := s.acquireNextTriggersTx(c, noLaterThan, maxCount, timeWindow)
		attempted = triggers
		return triggers, werr
	}, validate)
	if err != nil {
		return nil, err
	}
	return attempted, nil
}

// acquireCommittedDespiteError re-selects each trigger acquireNextTriggersTx
// attempted to acquire; if every one now shows the exact Acquired/
// FireInstanceID stamp the attempt set, the commit actually succeeded and
// the driver-reported failure was a false negative.
func (s *Store) acquireCommittedDespiteError(ctx context.Context, attempted []model.Trigger) bool {
	if len(attempted) == 0 {
		return true
	}
	committed, err := txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (bool, error) {
		for _, t := range attempted {
			stored, err := s.runner.Delegate.SelectTrigger(c, c.Tx, t.Key)
			if err != nil {
				return false, err
			}
			if stored == nil || stored.State != model.StateAcquired || stored.FireInstanceID != t.FireInstanceID {
				return false, nil
			}
		}
		return true, nil
	})
	return err == nil && committed
}

func (s *Store) acquireNextTriggersTx(c *txrunner.Ctx, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]model.Trigger, error) {
	misfireTime := s.now().Add(-s.cfg.MisfireThreshold)
	if misfireTime.Before(time.Unix(0, 0)) {
		misfireTime = time.Unix(0, 0)
	}

	var accepted []model.Trigger
	claimedJobs := map[key.JobKey]bool{}
	batchEnd := noLaterThan

	for retry := 0; retry < MaxDoLoopRetry; retry++ {
		keys, err := s.runner.Delegate.SelectTriggerToAcquire(c, c.Tx, s.schedulerName(), batchEnd.Add(timeWindow), misfireTime, maxCount)
		if err != nil {
			return nil, err
		}
		progressed := false

		for _, tk := range keys {
			if len(accepted) >= maxCount {
				break
			}
			t, err := s.runner.Delegate.SelectTrigger(c, c.Tx, tk)
			if err != nil {
				return nil, err
			}
			if t == nil || t.NextFireTime == nil {
				continue
			}

			if t.NextFireTime.Before(misfireTime) {
				cal, found, err := s.resolveCalendar(c, s.schedulerName(), t.CalendarName)
				if err != nil {
					return nil, err
				}
				if t.CalendarName != "" && !found {
					continue
				}
				t.UpdateAfterMisfire(cal, s.now())
				s.signaler().NotifyTriggerListenersMisfired(*t)
				if t.NextFireTime == nil {
					if _, err := s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, tk, model.StateComplete, model.StateWaiting); err != nil {
						return nil, err
					}
					continue
				}
				if err := s.runner.Delegate.UpdateTrigger(c, c.Tx, *t); err != nil {
					return nil, err
				}
				if t.NextFireTime.After(s.now()) {
					progressed = true
					continue
				}
			}

			if t.NextFireTime.After(batchEnd) {
				continue
			}

			job, err := s.runner.Delegate.SelectJobDetail(c, c.Tx, t.JobKey)
			if err != nil {
				return nil, err
			}
			if job == nil {
				_, _ = s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, tk, model.StateError, t.State)
				continue
			}
			if job.ConcurrentExecutionDisallowed && claimedJobs[t.JobKey] {
				continue
			}

			rows, err := s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, tk, model.StateAcquired, model.StateWaiting)
			if err != nil {
				return nil, err
			}
			if rows == 0 {
				continue
			}

			t.State = model.StateAcquired
			t.FireInstanceID = s.nextFireInstanceID()
			if job.ConcurrentExecutionDisallowed {
				claimedJobs[t.JobKey] = true
			}

			if err := s.runner.Delegate.InsertFiredTrigger(c, c.Tx, model.FiredTrigger{
				FireInstanceID:      t.FireInstanceID,
				SchedulerInstanceID: s.cfg.InstanceID,
				TriggerKey:          t.Key,
				JobKey:              t.JobKey,
				State:               model.FiredAcquired,
				Priority:            t.Priority,
				FiredTime:           s.now(),
				ScheduledTime:       *t.NextFireTime,
				IsNonConcurrent:     job.ConcurrentExecutionDisallowed,
				RequestsRecovery:    job.RequestsRecovery,
			}); err != nil {
				return nil, err
			}

			accepted = append(accepted, *t)
			progressed = true

			candidateEnd := *t.NextFireTime
			if s.now().After(candidateEnd) {
				candidateEnd = s.now()
			}
			candidateEnd = candidateEnd.Add(timeWindow)
			if candidateEnd.After(batchEnd) {
				batchEnd = candidateEnd
			}
		}

		if len(accepted) >= maxCount || !progressed {
			break
		}
	}
	return accepted, nil
}

// ReleaseAcquiredTrigger returns t to Waiting and drops its FiredTrigger
// row, retried against transient back-end failures.
func (s *Store) ReleaseAcquiredTrigger(ctx context.Context, t model.Trigger) error {
	_, err := txrunner.RetryExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		if _, err := s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, t.Key, model.StateWaiting, model.StateAcquired); err != nil {
			return struct{}{}, err
		}
		_, err := s.runner.Delegate.DeleteFiredTrigger(c, c.Tx, t.FireInstanceID)
		return struct{}{}, err
	})
	return err
}

// TriggersFired implements spec.md §4.G's fire sequence for each trigger in
// triggers, skipping any that raced to a non-Acquired state. Like
// AcquireNextTriggers, a commit failure is validated against the FiredTrigger
// ledger before being reported, per spec.md §4.E.
func (s *Store) TriggersFired(ctx context.Context, triggers []model.Trigger) ([]FiredBundle, error) {
	var attempted []FiredBundle
	validate := func(vctx context.Context, _ []FiredBundle) bool {
		return s.firedCommittedDespiteError(vctx, attempted)
	}
	_, err := txrunner.ExecuteInLockValidated(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) ([]FiredBundle, error) {
		var bundles []FiredBundle
		for _, in := range triggers {
			b, ok, err := s.fireOneTx(c, in)
			if err != nil {
				return nil, err
			}
			if ok {
				bundles = append(bundles, b)
			}
		}
		attempted = bundles
		return bundles, nil
	}, validate)
	if err != nil {
		return nil, err
	}
	return attempted, nil
}

// firedCommittedDespiteError re-checks the FiredTrigger ledger for each
// bundle TriggersFired attempted to fire; if every one still carries a
// FiredExecuting row stamped with the fire instance id the attempt set, the
// commit actually succeeded despite the reported failure.
func (s *Store) firedCommittedDespiteError(ctx context.Context, attempted []FiredBundle) bool {
	if len(attempted) == 0 {
		return true
	}
	committed, err := txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (bool, error) {
		for _, b := range attempted {
			rows, err := s.runner.Delegate.SelectFiredTriggerRecords(c, c.Tx, b.Trigger.Key.SchedulerName, b.Trigger.Key.Name, b.Trigger.Key.Group)
			if err != nil {
				return false, err
			}
			found := false
			for _, ft := range rows {
				if ft.FireInstanceID == b.Trigger.FireInstanceID && ft.State == model.FiredExecuting {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		}
		return true, nil
	})
	return err == nil && committed
}

func (s *Store) fireOneTx(c *txrunner.Ctx, in model.Trigger) (FiredBundle, bool, error) {
	t, err := s.runner.Delegate.SelectTrigger(c, c.Tx, in.Key)
	if err != nil || t == nil || t.State != model.StateAcquired {
		return FiredBundle{}, false, err
	}

	cal, found, err := s.resolveCalendar(c, s.schedulerName(), t.CalendarName)
	if err != nil {
		return FiredBundle{}, false, err
	}
	if t.CalendarName != "" && !found {
		return FiredBundle{}, false, nil
	}

	now := s.now()
	prev, next := t.Triggered(cal, now)

	job, err := s.runner.Delegate.SelectJobDetail(c, c.Tx, t.JobKey)
	if err != nil {
		return FiredBundle{}, false, err
	}
	if job == nil {
		return FiredBundle{}, false, nil
	}

	dataMap, err := s.runner.Delegate.SelectTriggerJobDataMap(c, c.Tx, t.Key)
	if err != nil {
		return FiredBundle{}, false, err
	}
	firedJob := job.Clone()
	firedJob.JobData = dataMap

	if err := s.runner.Delegate.UpdateFiredTrigger(c, c.Tx, model.FiredTrigger{
		FireInstanceID:      t.FireInstanceID,
		SchedulerInstanceID: s.cfg.InstanceID,
		TriggerKey:          t.Key,
		JobKey:              t.JobKey,
		State:               model.FiredExecuting,
		Priority:            t.Priority,
		FiredTime:           now,
		ScheduledTime:       *in.NextFireTime,
		IsNonConcurrent:     job.ConcurrentExecutionDisallowed,
		RequestsRecovery:    job.RequestsRecovery,
	}); err != nil {
		return FiredBundle{}, false, err
	}

	postState := model.StateWaiting
	force := false
	if next == nil {
		postState = model.StateComplete
		force = true
	} else if job.ConcurrentExecutionDisallowed {
		postState = model.StateBlocked
	}
	if err := s.storeTriggerTx(c, *t, &postState, force); err != nil {
		return FiredBundle{}, false, err
	}

	if job.ConcurrentExecutionDisallowed {
		if err := s.blockSiblingTriggersTx(c, t.JobKey); err != nil {
			return FiredBundle{}, false, err
		}
	}

	return FiredBundle{
		Job:               firedJob,
		Trigger:           *t,
		Calendar:          cal,
		IsRecovering:      t.Key.Group == key.DefaultRecoveryGroup,
		ScheduledFireTime: now,
		PrevFireTime:      prev,
		NextFireTime:      next,
	}, true, nil
}

// storeTriggerTx is the internal variant StoreTrigger's retry path uses
// when it is already running inside a held TRIGGER_ACCESS transaction.
func (s *Store) storeTriggerTx(c *txrunner.Ctx, t model.Trigger, state *model.TriggerState, forceState bool) error {
	target := t.State
	if state != nil {
		target = *state
	}
	if !forceState {
		var paused bool
		var err error
		target, paused, err = s.groupPausedState(c, t.Key.SchedulerName, t.Key.Group, target)
		if err != nil {
			return err
		}
		if paused {
			if err := s.runner.Delegate.InsertPausedTriggerGroup(c, c.Tx, t.Key.SchedulerName, t.Key.Group); err != nil {
				return err
			}
		}
	}
	t.State = target
	return s.runner.Delegate.UpdateTrigger(c, c.Tx, t)
}

func (s *Store) blockSiblingTriggersTx(c *txrunner.Ctx, jk key.JobKey) error {
	if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, jk, model.StateBlocked, model.StateWaiting); err != nil {
		return err
	}
	if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, jk, model.StateBlocked, model.StateAcquired); err != nil {
		return err
	}
	_, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, jk, model.StatePausedAndBlocked, model.StatePaused)
	return err
}

// TriggeredJobComplete implements spec.md §4.G's completion dispatch,
// retried against transient back-end failures.
func (s *Store) TriggeredJobComplete(ctx context.Context, t model.Trigger, job model.JobDetail, instruction model.CompletedExecutionInstruction) error {
	_, err := txrunner.RetryExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		return struct{}{}, s.triggeredJobCompleteTx(c, t, job, instruction)
	})
	return err
}

func (s *Store) triggeredJobCompleteTx(c *txrunner.Ctx, t model.Trigger, job model.JobDetail, instruction model.CompletedExecutionInstruction) error {
	if job.ConcurrentExecutionDisallowed {
		if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, job.Key, model.StateWaiting, model.StateBlocked); err != nil {
			return err
		}
		if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, job.Key, model.StatePaused, model.StatePausedAndBlocked); err != nil {
			return err
		}
		now := s.now()
		c.RequestSignal(&now)
	}

	switch instruction {
	case model.InstructionDeleteTrigger:
		if err := s.deleteOrKeepTriggerTx(c, t); err != nil {
			return err
		}
	case model.InstructionSetTriggerComplete:
		if _, err := s.runner.Delegate.UpdateTriggerState(c, c.Tx, t.Key, model.StateComplete); err != nil {
			return err
		}
		if err := s.deleteOrKeepTriggerTx(c, t); err != nil {
			return err
		}
	case model.InstructionSetTriggerError:
		if _, err := s.runner.Delegate.UpdateTriggerState(c, c.Tx, t.Key, model.StateError); err != nil {
			return err
		}
	case model.InstructionSetAllJobTriggersComplete:
		if _, err := s.runner.Delegate.UpdateTriggerStatesForJob(c, c.Tx, job.Key, model.StateComplete); err != nil {
			return err
		}
	case model.InstructionSetAllJobTriggersError:
		if _, err := s.runner.Delegate.UpdateTriggerStatesForJob(c, c.Tx, job.Key, model.StateError); err != nil {
			return err
		}
	}

	if job.PersistJobDataAfterExecution {
		if err := s.runner.Delegate.UpdateJobDetail(c, c.Tx, job); err != nil {
			return err
		}
	}

	_, err := s.runner.Delegate.DeleteFiredTrigger(c, c.Tx, t.FireInstanceID)
	return err
}

// deleteOrKeepTriggerTx double-checks the persisted trigger before removing
// it: if the stored copy was rescheduled to a future fire during execution
// (e.g. replaceTrigger), the delete is skipped.
func (s *Store) deleteOrKeepTriggerTx(c *txrunner.Ctx, t model.Trigger) error {
	if t.NextFireTime != nil {
		if _, err := s.runner.Delegate.DeleteTrigger(c, c.Tx, t.Key); err != nil {
			return err
		}
		c.RequestSignal(nil)
		return nil
	}
	stored, err := s.runner.Delegate.SelectTriggerStatus(c, c.Tx, t.Key)
	if err != nil {
		return err
	}
	if stored == nil || stored.NextFireTime == nil {
		if _, err := s.removeTriggerTx(c, t.Key); err != nil {
			return err
		}
	}
	return nil
}
