package jobstore

import (
	"context"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/storeerr"
	"github.com/d10n/quartznet/internal/txrunner"
)

// StoreJob persists job, failing with ObjectAlreadyExists unless
// replaceExisting is set (spec.md §7).
func (s *Store) StoreJob(ctx context.Context, job model.JobDetail, replaceExisting bool) error {
	if err := job.Key.Validate(); err != nil {
		return err
	}
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		exists, err := s.runner.Delegate.JobExists(c, c.Tx, job.Key)
		if err != nil {
			return struct{}{}, err
		}
		if exists && !replaceExisting {
			return struct{}{}, storeerr.AlreadyExists("job " + job.Key.String() + " already exists")
		}
		if exists {
			return struct{}{}, s.runner.Delegate.UpdateJobDetail(c, c.Tx, job)
		}
		return struct{}{}, s.runner.Delegate.InsertJobDetail(c, c.Tx, job)
	})
	return err
}

// RemoveJob deletes a job and every trigger that references it, per
// spec.md §3's lifecycle rule (durable jobs otherwise survive trigger
// deletion, but removeJob always removes the job itself).
func (s *Store) RemoveJob(ctx context.Context, jk key.JobKey) (bool, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (bool, error) {
		return s.removeJobTx(c, jk)
	})
}

func (s *Store) removeJobTx(c *txrunner.Ctx, jk key.JobKey) (bool, error) {
	triggers, err := s.runner.Delegate.SelectTriggersForJob(c, c.Tx, jk)
	if err != nil {
		return false, err
	}
	for _, t := range triggers {
		if _, err := s.runner.Delegate.DeleteTrigger(c, c.Tx, t.Key); err != nil {
			return false, err
		}
	}
	removed, err := s.runner.Delegate.DeleteJobDetail(c, c.Tx, jk)
	if err != nil {
		return false, err
	}
	if removed {
		c.RequestSignal(nil)
		s.signaler().NotifySchedulerListenersJobDeleted(jk)
	}
	return removed, nil
}

// RetrieveJob returns the job, or nil if it does not exist.
func (s *Store) RetrieveJob(ctx context.Context, jk key.JobKey) (*model.JobDetail, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (*model.JobDetail, error) {
		return s.runner.Delegate.SelectJobDetail(c, c.Tx, jk)
	})
}

func (s *Store) GetNumberOfJobs(ctx context.Context) (int, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (int, error) {
		return s.runner.Delegate.SelectNumJobs(c, c.Tx, s.schedulerName())
	})
}

func (s *Store) GetJobKeys(ctx context.Context, matcher key.GroupMatcher) ([]key.JobKey, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) ([]key.JobKey, error) {
		groups, err := s.runner.Delegate.SelectJobGroups(c, c.Tx, s.schedulerName())
		if err != nil {
			return nil, err
		}
		var out []key.JobKey
		for _, g := range groups {
			if !matcher.Matches(g) {
				continue
			}
			names, err := s.runner.Delegate.SelectJobNamesInGroup(c, c.Tx, s.schedulerName(), g)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				out = append(out, key.NewJobKey(s.schedulerName(), n, g))
			}
		}
		return out, nil
	})
}

func (s *Store) GetJobGroupNames(ctx context.Context) ([]string, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) ([]string, error) {
		return s.runner.Delegate.SelectJobGroups(c, c.Tx, s.schedulerName())
	})
}
