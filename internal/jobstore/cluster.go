package jobstore

import (
	"context"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/lock"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/trigger"
	"github.com/d10n/quartznet/internal/txrunner"
)

// CheckCluster implements spec.md §4.I's periodic task: a cheap check-in,
// escalating to a locked, authoritative rescan and recovery pass when
// either this is the very first check-in or a peer looks failed.
func (s *Store) CheckCluster(ctx context.Context) (bool, error) {
	first := s.consumeFirstCheckin()

	failed, err := txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) ([]model.SchedulerStateRecord, error) {
		return s.checkinAndScanTx(c)
	})
	if err != nil {
		return false, err
	}
	if !first && len(failed) == 0 {
		return false, nil
	}

	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockState, func(c *txrunner.Ctx) (bool, error) {
		failed, err := s.checkinAndScanTx(c)
		if err != nil {
			return false, err
		}
		if first {
			orphans, err := s.orphanedInstancesTx(c)
			if err != nil {
				return false, err
			}
			failed = append(failed, orphans...)
		}
		if len(failed) == 0 {
			return false, nil
		}
		// TRIGGER_ACCESS is taken on this same transaction, nested inside
		// STATE_ACCESS, so the recovery commits together with the rescan.
		if err := s.runner.Locks.Obtain(c, c.Tx, lock.TriggerAccess, "cluster-recover"); err != nil {
			return false, err
		}
		defer func() { _ = s.runner.Locks.Release(c, c.Tx, lock.TriggerAccess, "cluster-recover") }()
		for _, rec := range failed {
			if err := s.clusterRecoverTx(c, rec); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// consumeFirstCheckin reports true exactly once: the first call after
// construction.
func (s *Store) consumeFirstCheckin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.firstCheckin
	s.firstCheckin = false
	return first
}

func (s *Store) checkinAndScanTx(c *txrunner.Ctx) ([]model.SchedulerStateRecord, error) {
	now := s.now()
	rows, err := s.runner.Delegate.UpdateSchedulerState(c, c.Tx, s.schedulerName(), s.cfg.InstanceID, now, s.cfg.ClusterCheckinInterval)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		if err := s.runner.Delegate.InsertSchedulerState(c, c.Tx, s.schedulerName(), model.SchedulerStateRecord{
			InstanceID:      s.cfg.InstanceID,
			LastCheckinTime: now,
			CheckinInterval: s.cfg.ClusterCheckinInterval,
		}); err != nil {
			return nil, err
		}
	}

	recs, err := s.runner.Delegate.SelectSchedulerStateRecords(c, c.Tx, s.schedulerName())
	if err != nil {
		return nil, err
	}
	var failed []model.SchedulerStateRecord
	for _, rec := range recs {
		if rec.InstanceID == s.cfg.InstanceID {
			continue
		}
		if rec.HasFailed(now, now) {
			failed = append(failed, rec)
		}
	}
	return failed, nil
}

// orphanedInstancesTx finds FiredTrigger instance ids with no SchedulerState
// row, treating them as failed peers too (spec.md §4.I step 2.b).
func (s *Store) orphanedInstancesTx(c *txrunner.Ctx) ([]model.SchedulerStateRecord, error) {
	names, err := s.runner.Delegate.SelectFiredTriggerInstanceNames(c, c.Tx, s.schedulerName())
	if err != nil {
		return nil, err
	}
	recs, err := s.runner.Delegate.SelectSchedulerStateRecords(c, c.Tx, s.schedulerName())
	if err != nil {
		return nil, err
	}
	known := map[string]bool{}
	for _, r := range recs {
		known[r.InstanceID] = true
	}
	var orphans []model.SchedulerStateRecord
	for _, n := range names {
		if n == s.cfg.InstanceID || known[n] {
			continue
		}
		orphans = append(orphans, model.SchedulerStateRecord{InstanceID: n})
	}
	return orphans, nil
}

// clusterRecoverTx recovers every FiredTrigger row belonging to a failed
// peer (spec.md §4.I's clusterRecover).
func (s *Store) clusterRecoverTx(c *txrunner.Ctx, peer model.SchedulerStateRecord) error {
	fired, err := s.runner.Delegate.SelectInstancesFiredTriggerRecords(c, c.Tx, s.schedulerName(), peer.InstanceID)
	if err != nil {
		return err
	}

	touched := map[key.TriggerKey]bool{}
	for _, ft := range fired {
		touched[ft.TriggerKey] = true
		switch ft.State {
		case model.FiredExecuting:
			if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, ft.JobKey, model.StateWaiting, model.StateBlocked); err != nil {
				return err
			}
			if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, ft.JobKey, model.StatePaused, model.StatePausedAndBlocked); err != nil {
				return err
			}
		case model.FiredAcquired:
			if _, err := s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, ft.TriggerKey, model.StateWaiting, model.StateAcquired); err != nil {
				return err
			}
		}

		if ft.State != model.FiredAcquired && ft.RequestsRecovery {
			jobExists, err := s.runner.Delegate.JobExists(c, c.Tx, ft.JobKey)
			if err != nil {
				return err
			}
			if jobExists {
				if err := s.buildRecoveryTriggerTx(c, ft); err != nil {
					return err
				}
			}
		}

		if ft.IsNonConcurrent {
			if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, ft.JobKey, model.StateWaiting, model.StateBlocked); err != nil {
				return err
			}
			if _, err := s.runner.Delegate.UpdateTriggerStatesForJobFromOtherState(c, c.Tx, ft.JobKey, model.StatePaused, model.StatePausedAndBlocked); err != nil {
				return err
			}
		}
	}

	if _, err := s.runner.Delegate.DeleteFiredTriggers(c, c.Tx, s.schedulerName(), peer.InstanceID); err != nil {
		return err
	}

	for tk := range touched {
		st, err := s.runner.Delegate.SelectTriggerState(c, c.Tx, tk)
		if err != nil {
			return err
		}
		if st != model.StateComplete {
			continue
		}
		remaining, err := s.runner.Delegate.SelectFiredTriggerRecords(c, c.Tx, tk.SchedulerName, tk.Name, tk.Group)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			if _, err := s.removeTriggerTx(c, tk); err != nil {
				return err
			}
		}
	}

	if peer.InstanceID != s.cfg.InstanceID {
		if err := s.runner.Delegate.DeleteSchedulerState(c, c.Tx, s.schedulerName(), peer.InstanceID); err != nil {
			return err
		}
	}
	return nil
}

// buildRecoveryTriggerTx builds the fresh immediate-fire simple trigger
// spec.md §4.I describes for a requests-recovery job whose fire was lost.
func (s *Store) buildRecoveryTriggerTx(c *txrunner.Ctx, ft model.FiredTrigger) error {
	now := s.now()
	recTk := key.NewTriggerKey(s.schedulerName(), "recover-"+ft.FireInstanceID, key.DefaultRecoveryGroup)
	recTrigger := model.Trigger{
		Key:          recTk,
		JobKey:       ft.JobKey,
		Priority:     ft.Priority,
		NextFireTime: &now,
		Schedule:     trigger.NewSimple(now, 0, 0),
	}
	return s.storeRecoveryTriggerTx(c, recTrigger, map[string]any{
		"recoveredTriggerName":  ft.TriggerKey.Name,
		"recoveredTriggerGroup": ft.TriggerKey.Group,
		"recoveredFireTime":     ft.ScheduledTime,
	})
}

// storeRecoveryTriggerTx is InsertTrigger with recovering semantics: no
// referential-integrity check (the caller already verified the job exists)
// and force-Waiting state, bypassing group-pause/blocked forcing.
// recoveryData identifies the lost fire this trigger replaces and is
// carried on the trigger's own data map so the job sees it at execution
// time alongside its regular job data (spec.md §4.I).
func (s *Store) storeRecoveryTriggerTx(c *txrunner.Ctx, t model.Trigger, recoveryData map[string]any) error {
	t.State = model.StateWaiting
	t.JobDataMap = recoveryData
	return s.runner.Delegate.InsertTrigger(c, c.Tx, t)
}

// RecoverJobs implements spec.md §4.H's startup recovery pass, run once
// from SchedulerStarted.
func (s *Store) RecoverJobs(ctx context.Context) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		return struct{}{}, s.recoverJobsTx(c)
	})
	return err
}

func (s *Store) recoverJobsTx(c *txrunner.Ctx) error {
	if _, err := s.runner.Delegate.UpdateTriggerStatesFromOtherStates(c, c.Tx, s.schedulerName(), model.StateWaiting, model.StateAcquired, model.StateBlocked); err != nil {
		return err
	}
	if _, err := s.runner.Delegate.UpdateTriggerGroupStateFromOtherState(c, c.Tx, s.schedulerName(), key.GroupAnything(), model.StatePaused, model.StatePausedAndBlocked); err != nil {
		return err
	}

	if _, err := s.recoverMisfiredJobsTx(c, true); err != nil {
		return err
	}

	groups, err := s.runner.Delegate.SelectJobGroups(c, c.Tx, s.schedulerName())
	if err != nil {
		return err
	}
	for _, g := range groups {
		names, err := s.runner.Delegate.SelectJobNamesInGroup(c, c.Tx, s.schedulerName(), g)
		if err != nil {
			return err
		}
		for _, n := range names {
			jk := key.NewJobKey(s.schedulerName(), n, g)
			job, err := s.runner.Delegate.SelectJobDetail(c, c.Tx, jk)
			if err != nil || job == nil || !job.RequestsRecovery {
				if err != nil {
					return err
				}
				continue
			}
			triggers, err := s.runner.Delegate.SelectTriggersForJob(c, c.Tx, jk)
			if err != nil {
				return err
			}
			for _, t := range triggers {
				cal, _, _ := s.resolveCalendar(c, s.schedulerName(), t.CalendarName)
				t.ComputeFirstFireTime(cal, s.now())
				t.State = model.StateWaiting
				if err := s.runner.Delegate.UpdateTrigger(c, c.Tx, t); err != nil {
					return err
				}
			}
		}
	}

	completed, err := s.runner.Delegate.SelectTriggersInState(c, c.Tx, s.schedulerName(), model.StateComplete)
	if err != nil {
		return err
	}
	for _, t := range completed {
		if _, err := s.runner.Delegate.DeleteTrigger(c, c.Tx, t.Key); err != nil {
			return err
		}
	}

	_, err = s.runner.Delegate.DeleteFiredTriggers(c, c.Tx, s.schedulerName(), s.cfg.InstanceID)
	return err
}
