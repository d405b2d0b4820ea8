// Package delegate defines the narrow back-end port spec.md §4.C describes:
// every persistent effect the core needs, expressed as one interface with
// two concrete adapters (internal/delegate/pg, internal/delegate/redisdoc)
// plus an in-memory fake (internal/delegate/memdelegate) used by the core's
// own tests. The core calls only this interface; it never touches SQL or
// Redis commands directly.
package delegate

import (
	"context"
	"time"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
)

// Tx is an opaque transaction/session handle. Each Delegate implementation
// defines its own concrete type and asserts on it internally; the core and
// internal/txrunner pass it through without inspecting it.
type Tx any

// TriggerStatus bundles the three fields selectTriggerStatus needs to
// return per spec.md §4.C.
type TriggerStatus struct {
	State        model.TriggerState
	NextFireTime *time.Time
	JobKey       key.JobKey
}

// Delegate is the back-end port. All calls take an open transaction handle
// and a context for cancellation; the delegate never manages locks or
// transaction boundaries itself (internal/txrunner and internal/lock own
// that).
type Delegate interface {
	// --- transaction lifecycle ---
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context, tx Tx) error
	Rollback(ctx context.Context, tx Tx) error

	// --- queries ---
	JobExists(ctx context.Context, tx Tx, jk key.JobKey) (bool, error)
	TriggerExists(ctx context.Context, tx Tx, tk key.TriggerKey) (bool, error)
	CalendarExists(ctx context.Context, tx Tx, schedulerName, name string) (bool, error)
	CalendarIsReferenced(ctx context.Context, tx Tx, schedulerName, name string) (bool, error)
	SelectJobDetail(ctx context.Context, tx Tx, jk key.JobKey) (*model.JobDetail, error)
	SelectTrigger(ctx context.Context, tx Tx, tk key.TriggerKey) (*model.Trigger, error)
	SelectTriggerState(ctx context.Context, tx Tx, tk key.TriggerKey) (model.TriggerState, error)
	SelectTriggerStatus(ctx context.Context, tx Tx, tk key.TriggerKey) (*TriggerStatus, error)
	SelectTriggersForJob(ctx context.Context, tx Tx, jk key.JobKey) ([]model.Trigger, error)
	SelectTriggersForCalendar(ctx context.Context, tx Tx, schedulerName, calName string) ([]model.Trigger, error)
	SelectTriggerNamesForJob(ctx context.Context, tx Tx, jk key.JobKey) ([]string, error)
	SelectNumTriggersForJob(ctx context.Context, tx Tx, jk key.JobKey) (int, error)
	SelectTriggersInState(ctx context.Context, tx Tx, schedulerName string, state model.TriggerState) ([]model.Trigger, error)
	// SelectTriggerToAcquire returns keys ordered by (nextFireTime asc,
	// priority desc), filtered to state=Waiting, nextFireTime <= noLaterThan
	// and nextFireTime > misfireTime.
	SelectTriggerToAcquire(ctx context.Context, tx Tx, schedulerName string, noLaterThan, misfireTime time.Time, maxCount int) ([]key.TriggerKey, error)
	SelectPausedTriggerGroups(ctx context.Context, tx Tx, schedulerName string) (map[string]bool, error)
	SelectPausedJobGroups(ctx context.Context, tx Tx, schedulerName string) (map[string]bool, error)
	SelectTriggerGroups(ctx context.Context, tx Tx, schedulerName string) ([]string, error)
	SelectJobGroups(ctx context.Context, tx Tx, schedulerName string) ([]string, error)
	SelectJobNamesInGroup(ctx context.Context, tx Tx, schedulerName, group string) ([]string, error)
	SelectTriggerNamesInGroup(ctx context.Context, tx Tx, schedulerName, group string) ([]string, error)
	SelectCalendarNames(ctx context.Context, tx Tx, schedulerName string) ([]string, error)
	SelectCalendar(ctx context.Context, tx Tx, schedulerName, name string) (*model.CalendarSpec, bool, error)
	SelectNumJobs(ctx context.Context, tx Tx, schedulerName string) (int, error)
	SelectNumTriggers(ctx context.Context, tx Tx, schedulerName string) (int, error)
	SelectNumCalendars(ctx context.Context, tx Tx, schedulerName string) (int, error)
	SelectSchedulerStateRecords(ctx context.Context, tx Tx, schedulerName string) ([]model.SchedulerStateRecord, error)
	SelectFiredTriggerRecords(ctx context.Context, tx Tx, schedulerName, triggerName, triggerGroup string) ([]model.FiredTrigger, error)
	SelectFiredTriggerRecordsByJob(ctx context.Context, tx Tx, jk key.JobKey) ([]model.FiredTrigger, error)
	SelectInstancesFiredTriggerRecords(ctx context.Context, tx Tx, schedulerName, instanceID string) ([]model.FiredTrigger, error)
	SelectFiredTriggerInstanceNames(ctx context.Context, tx Tx, schedulerName string) ([]string, error)
	CountMisfiredTriggersInState(ctx context.Context, tx Tx, schedulerName string, state model.TriggerState, beforeTime time.Time) (int, error)
	// HasMisfiredTriggersInState returns up to count keys and whether more
	// exist beyond that page.
	HasMisfiredTriggersInState(ctx context.Context, tx Tx, schedulerName string, state model.TriggerState, beforeTime time.Time, count int) ([]key.TriggerKey, bool, error)
	SelectTriggerJobDataMap(ctx context.Context, tx Tx, tk key.TriggerKey) (map[string]any, error)

	// --- mutations ---
	InsertJobDetail(ctx context.Context, tx Tx, job model.JobDetail) error
	UpdateJobDetail(ctx context.Context, tx Tx, job model.JobDetail) error
	InsertTrigger(ctx context.Context, tx Tx, t model.Trigger) error
	UpdateTrigger(ctx context.Context, tx Tx, t model.Trigger) error
	InsertCalendar(ctx context.Context, tx Tx, schedulerName, name string, spec model.CalendarSpec) error
	UpdateCalendar(ctx context.Context, tx Tx, schedulerName, name string, spec model.CalendarSpec) error
	InsertFiredTrigger(ctx context.Context, tx Tx, ft model.FiredTrigger) error
	UpdateFiredTrigger(ctx context.Context, tx Tx, ft model.FiredTrigger) error

	UpdateTriggerState(ctx context.Context, tx Tx, tk key.TriggerKey, newState model.TriggerState) (int, error)
	UpdateTriggerStateFromOtherState(ctx context.Context, tx Tx, tk key.TriggerKey, newState, oldState model.TriggerState) (int, error)
	UpdateTriggerStatesFromOtherStates(ctx context.Context, tx Tx, schedulerName string, newState, oldState1, oldState2 model.TriggerState) (int, error)
	UpdateTriggerGroupStateFromOtherState(ctx context.Context, tx Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState model.TriggerState) (int, error)
	UpdateTriggerGroupStateFromOtherStates(ctx context.Context, tx Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState1, oldState2 model.TriggerState) (int, error)
	UpdateTriggerStatesForJob(ctx context.Context, tx Tx, jk key.JobKey, newState model.TriggerState) (int, error)
	UpdateTriggerStatesForJobFromOtherState(ctx context.Context, tx Tx, jk key.JobKey, newState, oldState model.TriggerState) (int, error)

	InsertPausedTriggerGroup(ctx context.Context, tx Tx, schedulerName, group string) error
	DeletePausedTriggerGroups(ctx context.Context, tx Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error)
	IsTriggerGroupPaused(ctx context.Context, tx Tx, schedulerName, group string) (bool, error)
	InsertPausedJobGroup(ctx context.Context, tx Tx, schedulerName, group string) error
	DeletePausedJobGroups(ctx context.Context, tx Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error)
	IsJobGroupPaused(ctx context.Context, tx Tx, schedulerName, group string) (bool, error)

	DeleteTrigger(ctx context.Context, tx Tx, tk key.TriggerKey) (bool, error)
	DeleteJobDetail(ctx context.Context, tx Tx, jk key.JobKey) (bool, error)
	DeleteCalendar(ctx context.Context, tx Tx, schedulerName, name string) error
	DeleteFiredTrigger(ctx context.Context, tx Tx, fireInstanceID string) (bool, error)
	DeleteFiredTriggers(ctx context.Context, tx Tx, schedulerName, instanceID string) (int, error)

	UpdateSchedulerState(ctx context.Context, tx Tx, schedulerName, instanceID string, checkinTime time.Time, checkinInterval time.Duration) (int, error)
	InsertSchedulerState(ctx context.Context, tx Tx, schedulerName string, rec model.SchedulerStateRecord) error
	DeleteSchedulerState(ctx context.Context, tx Tx, schedulerName, instanceID string) error

	ClearData(ctx context.Context, tx Tx, schedulerName string) error
}
