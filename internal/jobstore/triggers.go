package jobstore

import (
	"context"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/storeerr"
	"github.com/d10n/quartznet/internal/txrunner"
)

// StoreTrigger persists t, wiring in the referential-integrity check
// against job (NoSuchObject when the job is missing), group-pause forcing,
// and the blocked-state check (spec.md §4.F).
func (s *Store) StoreTrigger(ctx context.Context, t model.Trigger, job *model.JobDetail, replaceExisting bool, state model.TriggerState, forceState, recovering bool) error {
	if err := t.Key.Validate(); err != nil {
		return err
	}
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		exists, err := s.runner.Delegate.TriggerExists(c, c.Tx, t.Key)
		if err != nil {
			return struct{}{}, err
		}
		if exists && !replaceExisting {
			return struct{}{}, storeerr.AlreadyExists("trigger " + t.Key.String() + " already exists")
		}
		if !recovering {
			jobExists, err := s.runner.Delegate.JobExists(c, c.Tx, t.JobKey)
			if err != nil {
				return struct{}{}, err
			}
			if !jobExists {
				return struct{}{}, storeerr.NotFound("job " + t.JobKey.String() + " referenced by trigger " + t.Key.String() + " does not exist")
			}
		}

		target := state
		if !forceState {
			var paused bool
			target, paused, err = s.groupPausedState(c, t.Key.SchedulerName, t.Key.Group, target)
			if err != nil {
				return struct{}{}, err
			}
			if paused {
				if err := s.runner.Delegate.InsertPausedTriggerGroup(c, c.Tx, t.Key.SchedulerName, t.Key.Group); err != nil {
					return struct{}{}, err
				}
			}
			target, err = s.checkBlockedState(c, t.JobKey, job, target)
			if err != nil {
				return struct{}{}, err
			}
		}

		t.State = target
		if exists {
			return struct{}{}, s.runner.Delegate.UpdateTrigger(c, c.Tx, t)
		}
		return struct{}{}, s.runner.Delegate.InsertTrigger(c, c.Tx, t)
	})
	return err
}

// RemoveTrigger deletes a trigger. A durable job survives; a non-durable
// job with no remaining triggers is removed along with it (spec.md §3).
func (s *Store) RemoveTrigger(ctx context.Context, tk key.TriggerKey) (bool, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (bool, error) {
		return s.removeTriggerTx(c, tk)
	})
}

func (s *Store) removeTriggerTx(c *txrunner.Ctx, tk key.TriggerKey) (bool, error) {
	t, err := s.runner.Delegate.SelectTrigger(c, c.Tx, tk)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	removed, err := s.runner.Delegate.DeleteTrigger(c, c.Tx, tk)
	if err != nil || !removed {
		return removed, err
	}

	job, err := s.runner.Delegate.SelectJobDetail(c, c.Tx, t.JobKey)
	if err != nil {
		return removed, err
	}
	if job != nil && !job.Durable {
		remaining, err := s.runner.Delegate.SelectNumTriggersForJob(c, c.Tx, t.JobKey)
		if err != nil {
			return removed, err
		}
		if remaining == 0 {
			if _, err := s.runner.Delegate.DeleteJobDetail(c, c.Tx, t.JobKey); err != nil {
				return removed, err
			}
			s.signaler().NotifySchedulerListenersJobDeleted(t.JobKey)
		}
	}
	c.RequestSignal(nil)
	return removed, nil
}

// RetrieveTrigger returns the trigger, or nil if it does not exist.
func (s *Store) RetrieveTrigger(ctx context.Context, tk key.TriggerKey) (*model.Trigger, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (*model.Trigger, error) {
		return s.runner.Delegate.SelectTrigger(c, c.Tx, tk)
	})
}

// ReplaceTrigger atomically swaps the trigger at tk for newTrigger,
// preserving the old trigger's job association when newTrigger names no
// job of its own (a "reschedule" call pattern).
func (s *Store) ReplaceTrigger(ctx context.Context, tk key.TriggerKey, newTrigger model.Trigger) (bool, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (bool, error) {
		old, err := s.runner.Delegate.SelectTrigger(c, c.Tx, tk)
		if err != nil {
			return false, err
		}
		if old == nil {
			return false, nil
		}
		if newTrigger.JobKey == (key.JobKey{}) {
			newTrigger.JobKey = old.JobKey
		}
		newTrigger.Key = tk
		if _, err := s.runner.Delegate.DeleteTrigger(c, c.Tx, tk); err != nil {
			return false, err
		}
		job, err := s.runner.Delegate.SelectJobDetail(c, c.Tx, newTrigger.JobKey)
		if err != nil {
			return false, err
		}
		state := model.StateWaiting
		if job != nil {
			state, err = s.checkBlockedState(c, newTrigger.JobKey, job, state)
			if err != nil {
				return false, err
			}
		}
		newTrigger.State = state
		if err := s.runner.Delegate.InsertTrigger(c, c.Tx, newTrigger); err != nil {
			return false, err
		}
		c.RequestSignal(nil)
		return true, nil
	})
}

// GetTriggerState returns the external collapsed state (spec.md §4.F); None
// if the trigger does not exist.
func (s *Store) GetTriggerState(ctx context.Context, tk key.TriggerKey) (model.ExternalTriggerState, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (model.ExternalTriggerState, error) {
		st, err := s.runner.Delegate.SelectTriggerState(c, c.Tx, tk)
		if err != nil {
			return model.ExtNone, err
		}
		if st == "" {
			return model.ExtNone, nil
		}
		return st.ToExternal(), nil
	})
}

func (s *Store) GetNumberOfTriggers(ctx context.Context) (int, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (int, error) {
		return s.runner.Delegate.SelectNumTriggers(c, c.Tx, s.schedulerName())
	})
}

func (s *Store) GetTriggerKeys(ctx context.Context, matcher key.GroupMatcher) ([]key.TriggerKey, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) ([]key.TriggerKey, error) {
		groups, err := s.runner.Delegate.SelectTriggerGroups(c, c.Tx, s.schedulerName())
		if err != nil {
			return nil, err
		}
		var out []key.TriggerKey
		for _, g := range groups {
			if !matcher.Matches(g) {
				continue
			}
			names, err := s.runner.Delegate.SelectTriggerNamesInGroup(c, c.Tx, s.schedulerName(), g)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				out = append(out, key.NewTriggerKey(s.schedulerName(), n, g))
			}
		}
		return out, nil
	})
}

func (s *Store) GetTriggerGroupNames(ctx context.Context) ([]string, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) ([]string, error) {
		return s.runner.Delegate.SelectTriggerGroups(c, c.Tx, s.schedulerName())
	})
}

func (s *Store) GetTriggersForJob(ctx context.Context, jk key.JobKey) ([]model.Trigger, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) ([]model.Trigger, error) {
		return s.runner.Delegate.SelectTriggersForJob(c, c.Tx, jk)
	})
}
