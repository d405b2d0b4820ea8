package model

import "github.com/d10n/quartznet/internal/key"

// JobDetail is the persistent value shape of a job record (spec.md §3).
type JobDetail struct {
	Key                           key.JobKey
	ImplType                      string
	JobData                       map[string]any
	ConcurrentExecutionDisallowed bool
	PersistJobDataAfterExecution  bool
	Durable                       bool
	RequestsRecovery              bool
}

// Clone returns a deep-enough copy so that mutating the JobData of the
// returned value never reaches back into store-internal state.
func (j JobDetail) Clone() JobDetail {
	cp := j
	cp.JobData = make(map[string]any, len(j.JobData))
	for k, v := range j.JobData {
		cp.JobData[k] = v
	}
	return cp
}
