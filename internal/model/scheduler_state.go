package model

import "time"

// SchedulerStateRecord is the cluster-membership row described in
// spec.md §3: one per live scheduler instance.
type SchedulerStateRecord struct {
	InstanceID       string
	LastCheckinTime  time.Time
	CheckinInterval  time.Duration
}

// FailedIfAfter implements the failure-detection formula from spec.md §4.I:
// failedIfAfter(rec) = rec.lastCheckin + max(rec.checkinInterval, now -
// ourLastCheckin) + 7500ms.
func (r SchedulerStateRecord) FailedIfAfter(now, ourLastCheckin time.Time) time.Time {
	interval := r.CheckinInterval
	if sinceOurs := now.Sub(ourLastCheckin); sinceOurs > interval {
		interval = sinceOurs
	}
	return r.LastCheckinTime.Add(interval).Add(7500 * time.Millisecond)
}

// HasFailed reports whether this record's deadline has passed "now".
func (r SchedulerStateRecord) HasFailed(now, ourLastCheckin time.Time) bool {
	return r.FailedIfAfter(now, ourLastCheckin).Before(now)
}

// SchedulerRecord is the one-per-scheduler-name record described in
// spec.md §3.
type SchedulerRecord struct {
	Name               string
	Lifecycle          SchedulerLifecycleState
	PausedTriggerGroups map[string]bool
	PausedJobGroups     map[string]bool
	BlockedJobs         map[string]bool
}

// NewSchedulerRecord returns an Initialized record with empty sets.
func NewSchedulerRecord(name string) *SchedulerRecord {
	return &SchedulerRecord{
		Name:                name,
		Lifecycle:           LifecycleInitialized,
		PausedTriggerGroups: map[string]bool{},
		PausedJobGroups:     map[string]bool{},
		BlockedJobs:         map[string]bool{},
	}
}
