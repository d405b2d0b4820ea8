package jobstore

import (
	"context"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/txrunner"
)

// PauseTrigger moves tk Waiting|Acquired→Paused, Blocked→PausedAndBlocked.
func (s *Store) PauseTrigger(ctx context.Context, tk key.TriggerKey) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		return struct{}{}, s.pauseTriggerTx(c, tk)
	})
	return err
}

func (s *Store) pauseTriggerTx(c *txrunner.Ctx, tk key.TriggerKey) error {
	st, err := s.runner.Delegate.SelectTriggerState(c, c.Tx, tk)
	if err != nil {
		return err
	}
	switch st {
	case model.StateWaiting, model.StateAcquired:
		_, err = s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, tk, model.StatePaused, st)
		return err
	case model.StateBlocked:
		_, err = s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, tk, model.StatePausedAndBlocked, st)
		return err
	}
	return nil
}

// PauseTriggers pauses every trigger whose group matches matcher and
// inserts a paused-group marker for each matched group, even if it is
// currently empty (spec.md §4.J). Returns the affected group names.
func (s *Store) PauseTriggers(ctx context.Context, matcher key.GroupMatcher) ([]string, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) ([]string, error) {
		return s.pauseTriggerGroupsTx(c, matcher)
	})
}

func (s *Store) pauseTriggerGroupsTx(c *txrunner.Ctx, matcher key.GroupMatcher) ([]string, error) {
	groups, err := s.runner.Delegate.SelectTriggerGroups(c, c.Tx, s.schedulerName())
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var affected []string
	for _, g := range groups {
		if !matcher.Matches(g) {
			continue
		}
		if err := s.pauseOneTriggerGroupTx(c, g); err != nil {
			return nil, err
		}
		seen[g] = true
		affected = append(affected, g)
	}
	if matcher.Operator == key.MatchEquals && !seen[matcher.CompareToVal] {
		if err := s.pauseOneTriggerGroupTx(c, matcher.CompareToVal); err != nil {
			return nil, err
		}
		affected = append(affected, matcher.CompareToVal)
	}
	return affected, nil
}

func (s *Store) pauseOneTriggerGroupTx(c *txrunner.Ctx, group string) error {
	if _, err := s.runner.Delegate.UpdateTriggerGroupStateFromOtherState(c, c.Tx, s.schedulerName(), key.GroupEquals(group), model.StatePaused, model.StateWaiting); err != nil {
		return err
	}
	if _, err := s.runner.Delegate.UpdateTriggerGroupStateFromOtherState(c, c.Tx, s.schedulerName(), key.GroupEquals(group), model.StatePaused, model.StateAcquired); err != nil {
		return err
	}
	if _, err := s.runner.Delegate.UpdateTriggerGroupStateFromOtherState(c, c.Tx, s.schedulerName(), key.GroupEquals(group), model.StatePausedAndBlocked, model.StateBlocked); err != nil {
		return err
	}
	return s.runner.Delegate.InsertPausedTriggerGroup(c, c.Tx, s.schedulerName(), group)
}

// PauseJob pauses every trigger of jk.
func (s *Store) PauseJob(ctx context.Context, jk key.JobKey) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		triggers, err := s.runner.Delegate.SelectTriggersForJob(c, c.Tx, jk)
		if err != nil {
			return struct{}{}, err
		}
		for _, t := range triggers {
			if err := s.pauseTriggerTx(c, t.Key); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// PauseJobs pauses every trigger of every job whose group matches matcher
// and inserts a paused-job-group marker per matched group.
func (s *Store) PauseJobs(ctx context.Context, matcher key.GroupMatcher) ([]string, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) ([]string, error) {
		groups, err := s.runner.Delegate.SelectJobGroups(c, c.Tx, s.schedulerName())
		if err != nil {
			return nil, err
		}
		var affected []string
		for _, g := range groups {
			if !matcher.Matches(g) {
				continue
			}
			names, err := s.runner.Delegate.SelectJobNamesInGroup(c, c.Tx, s.schedulerName(), g)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				jk := key.NewJobKey(s.schedulerName(), n, g)
				triggers, err := s.runner.Delegate.SelectTriggersForJob(c, c.Tx, jk)
				if err != nil {
					return nil, err
				}
				for _, t := range triggers {
					if err := s.pauseTriggerTx(c, t.Key); err != nil {
						return nil, err
					}
				}
			}
			if err := s.runner.Delegate.InsertPausedJobGroup(c, c.Tx, s.schedulerName(), g); err != nil {
				return nil, err
			}
			affected = append(affected, g)
		}
		return affected, nil
	})
}

// PauseAll pauses every trigger group and inserts the all-groups sentinel.
func (s *Store) PauseAll(ctx context.Context) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		groups, err := s.runner.Delegate.SelectTriggerGroups(c, c.Tx, s.schedulerName())
		if err != nil {
			return struct{}{}, err
		}
		for _, g := range groups {
			if err := s.pauseOneTriggerGroupTx(c, g); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, s.runner.Delegate.InsertPausedTriggerGroup(c, c.Tx, s.schedulerName(), key.AllGroupsPausedSentinel)
	})
	return err
}

// ResumeTrigger moves tk Paused→Waiting or PausedAndBlocked→Blocked, per
// the blocked check.
func (s *Store) ResumeTrigger(ctx context.Context, tk key.TriggerKey) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		return struct{}{}, s.resumeTriggerTx(c, tk)
	})
	return err
}

func (s *Store) resumeTriggerTx(c *txrunner.Ctx, tk key.TriggerKey) error {
	t, err := s.runner.Delegate.SelectTrigger(c, c.Tx, tk)
	if err != nil || t == nil {
		return err
	}
	if t.State != model.StatePaused && t.State != model.StatePausedAndBlocked {
		return nil
	}
	target := model.StateWaiting
	job, err := s.runner.Delegate.SelectJobDetail(c, c.Tx, t.JobKey)
	if err != nil {
		return err
	}
	target, err = s.checkBlockedState(c, t.JobKey, job, target)
	if err != nil {
		return err
	}
	_, err = s.runner.Delegate.UpdateTriggerStateFromOtherState(c, c.Tx, tk, target, t.State)
	return err
}

// ResumeTriggers resumes every trigger whose group matches matcher,
// deletes the matching pausedTriggerGroups entries, and returns the
// affected group names.
func (s *Store) ResumeTriggers(ctx context.Context, matcher key.GroupMatcher) ([]string, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) ([]string, error) {
		groups, err := s.runner.Delegate.DeletePausedTriggerGroups(c, c.Tx, s.schedulerName(), matcher)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			names, err := s.runner.Delegate.SelectTriggerNamesInGroup(c, c.Tx, s.schedulerName(), g)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				if err := s.resumeTriggerTx(c, key.NewTriggerKey(s.schedulerName(), n, g)); err != nil {
					return nil, err
				}
			}
		}
		if len(groups) > 0 {
			c.RequestSignal(nil)
		}
		return groups, nil
	})
}

// ResumeJob resumes every trigger of jk.
func (s *Store) ResumeJob(ctx context.Context, jk key.JobKey) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		triggers, err := s.runner.Delegate.SelectTriggersForJob(c, c.Tx, jk)
		if err != nil {
			return struct{}{}, err
		}
		for _, t := range triggers {
			if err := s.resumeTriggerTx(c, t.Key); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// ResumeJobs resumes every trigger of every job whose group matches
// matcher, and clears the matching pausedJobGroups entries.
func (s *Store) ResumeJobs(ctx context.Context, matcher key.GroupMatcher) ([]string, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) ([]string, error) {
		groups, err := s.runner.Delegate.DeletePausedJobGroups(c, c.Tx, s.schedulerName(), matcher)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			names, err := s.runner.Delegate.SelectJobNamesInGroup(c, c.Tx, s.schedulerName(), g)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				jk := key.NewJobKey(s.schedulerName(), n, g)
				triggers, err := s.runner.Delegate.SelectTriggersForJob(c, c.Tx, jk)
				if err != nil {
					return nil, err
				}
				for _, t := range triggers {
					if err := s.resumeTriggerTx(c, t.Key); err != nil {
						return nil, err
					}
				}
			}
		}
		return groups, nil
	})
}

// ResumeAll deletes the all-groups sentinel and resumes every group.
func (s *Store) ResumeAll(ctx context.Context) error {
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		if _, err := s.runner.Delegate.DeletePausedTriggerGroups(c, c.Tx, s.schedulerName(), key.GroupEquals(key.AllGroupsPausedSentinel)); err != nil {
			return struct{}{}, err
		}
		groups, err := s.runner.Delegate.SelectTriggerGroups(c, c.Tx, s.schedulerName())
		if err != nil {
			return struct{}{}, err
		}
		for _, g := range groups {
			if _, err := s.runner.Delegate.DeletePausedTriggerGroups(c, c.Tx, s.schedulerName(), key.GroupEquals(g)); err != nil {
				return struct{}{}, err
			}
			names, err := s.runner.Delegate.SelectTriggerNamesInGroup(c, c.Tx, s.schedulerName(), g)
			if err != nil {
				return struct{}{}, err
			}
			for _, n := range names {
				if err := s.resumeTriggerTx(c, key.NewTriggerKey(s.schedulerName(), n, g)); err != nil {
					return struct{}{}, err
				}
			}
		}
		return struct{}{}, nil
	})
	return err
}

// GetPausedTriggerGroups returns every currently paused trigger group name.
func (s *Store) GetPausedTriggerGroups(ctx context.Context) (map[string]bool, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (map[string]bool, error) {
		return s.runner.Delegate.SelectPausedTriggerGroups(c, c.Tx, s.schedulerName())
	})
}
