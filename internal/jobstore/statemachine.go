package jobstore

import (
	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/txrunner"
)

// checkBlockedState implements spec.md §4.F's "Blocked check": wherever a
// trigger is transitioning into Waiting, if its job disallows concurrent
// execution and a non-Acquired FiredTrigger row exists for that job, the
// target state is upgraded Waiting→Blocked / Paused→PausedAndBlocked. Only
// those two source states are affected.
//
// This is also where spec.md §9's Open Question about the document-store
// back-end's CheckBlockedState bug is resolved: the comparison is against
// the job's own (name, group), never against (name, group-of-something-
// else) — the delegate's SelectFiredTriggerRecordsByJob already returns
// only rows for this exact job, so no ad-hoc field comparison is needed
// here at all.
func (s *Store) checkBlockedState(c *txrunner.Ctx, jk key.JobKey, job *model.JobDetail, proposed model.TriggerState) (model.TriggerState, error) {
	if job == nil || !job.ConcurrentExecutionDisallowed {
		return proposed, nil
	}
	if proposed != model.StateWaiting && proposed != model.StatePaused {
		return proposed, nil
	}

	fired, err := s.runner.Delegate.SelectFiredTriggerRecordsByJob(c, c.Tx, jk)
	if err != nil {
		return proposed, err
	}
	blocked := false
	for _, ft := range fired {
		if ft.State != model.FiredAcquired {
			blocked = true
			break
		}
	}
	if !blocked {
		return proposed, nil
	}
	if proposed == model.StateWaiting {
		return model.StateBlocked, nil
	}
	return model.StatePausedAndBlocked, nil
}

// groupPausedState implements the "Group pausing" rule from spec.md §4.F:
// storing a new trigger into a paused group (or when the all-groups
// sentinel is present) forces the requested state Waiting|Acquired→Paused.
func (s *Store) groupPausedState(c *txrunner.Ctx, schedulerName, group string, proposed model.TriggerState) (model.TriggerState, bool, error) {
	if proposed != model.StateWaiting && proposed != model.StateAcquired {
		return proposed, false, nil
	}
	allPaused, err := s.runner.Delegate.IsTriggerGroupPaused(c, c.Tx, schedulerName, key.AllGroupsPausedSentinel)
	if err != nil {
		return proposed, false, err
	}
	if allPaused {
		return model.StatePaused, true, nil
	}
	groupPaused, err := s.runner.Delegate.IsTriggerGroupPaused(c, c.Tx, schedulerName, group)
	if err != nil {
		return proposed, false, err
	}
	if groupPaused {
		return model.StatePaused, false, nil
	}
	return proposed, false, nil
}
