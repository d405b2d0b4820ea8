package model

import (
	"time"

	"github.com/d10n/quartznet/internal/key"
)

// FiredTrigger is the execution ledger row described in spec.md §3: one row
// per in-flight fire, used by cluster recovery and the blocked-state check.
type FiredTrigger struct {
	FireInstanceID       string
	SchedulerInstanceID  string
	TriggerKey           key.TriggerKey
	JobKey               key.JobKey
	State                FiredTriggerState
	Priority             int
	FiredTime            time.Time
	ScheduledTime        time.Time
	IsNonConcurrent      bool
	RequestsRecovery     bool
}
