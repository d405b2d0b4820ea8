// Package memdelegate is an in-memory delegate.Delegate fake, used by the
// core's own tests in place of a real Postgres or Redis back-end.
package memdelegate

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/storeerr"
)

// Delegate is a single-process, mutex-guarded store. Transactions are
// implemented as a single global write lock held for the transaction's
// duration, which is sufficient to exercise the core's lock/tx-boundary
// contracts in tests without needing a real database.
type Delegate struct {
	mu sync.Mutex

	jobs      map[key.JobKey]model.JobDetail
	triggers  map[key.TriggerKey]model.Trigger
	calendars map[string]model.CalendarSpec // schedulerName + "/" + name

	pausedTriggerGroups map[string]bool
	pausedJobGroups     map[string]bool

	firedByInstance map[string]model.FiredTrigger // fireInstanceId -> row
	schedStates     map[string]model.SchedulerStateRecord
}

func New() *Delegate {
	return &Delegate{
		jobs:                map[key.JobKey]model.JobDetail{},
		triggers:            map[key.TriggerKey]model.Trigger{},
		calendars:           map[string]model.CalendarSpec{},
		pausedTriggerGroups: map[string]bool{},
		pausedJobGroups:     map[string]bool{},
		firedByInstance:     map[string]model.FiredTrigger{},
		schedStates:         map[string]model.SchedulerStateRecord{},
	}
}

// tx is the opaque handle returned by Begin; memdelegate doesn't need a
// real transaction object but carries one to exercise the delegate.Tx
// contract the same way a real adapter does.
type tx struct{}

func (d *Delegate) Begin(ctx context.Context) (delegate.Tx, error) {
	d.mu.Lock()
	return &tx{}, nil
}

func (d *Delegate) Commit(ctx context.Context, t delegate.Tx) error {
	d.mu.Unlock()
	return nil
}

func (d *Delegate) Rollback(ctx context.Context, t delegate.Tx) error {
	d.mu.Unlock()
	return nil
}

func calKey(schedulerName, name string) string { return schedulerName + "/" + name }

func (d *Delegate) JobExists(ctx context.Context, t delegate.Tx, jk key.JobKey) (bool, error) {
	_, ok := d.jobs[jk]
	return ok, nil
}

func (d *Delegate) TriggerExists(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (bool, error) {
	_, ok := d.triggers[tk]
	return ok, nil
}

func (d *Delegate) CalendarExists(ctx context.Context, t delegate.Tx, schedulerName, name string) (bool, error) {
	_, ok := d.calendars[calKey(schedulerName, name)]
	return ok, nil
}

func (d *Delegate) CalendarIsReferenced(ctx context.Context, t delegate.Tx, schedulerName, name string) (bool, error) {
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName && trg.CalendarName == name {
			return true, nil
		}
	}
	return false, nil
}

func (d *Delegate) SelectJobDetail(ctx context.Context, t delegate.Tx, jk key.JobKey) (*model.JobDetail, error) {
	j, ok := d.jobs[jk]
	if !ok {
		return nil, nil
	}
	cp := j.Clone()
	return &cp, nil
}

func (d *Delegate) SelectTrigger(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (*model.Trigger, error) {
	trg, ok := d.triggers[tk]
	if !ok {
		return nil, nil
	}
	cp := trg.Clone()
	return &cp, nil
}

func (d *Delegate) SelectTriggerState(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (model.TriggerState, error) {
	trg, ok := d.triggers[tk]
	if !ok {
		return model.StateDeleted, nil
	}
	return trg.State, nil
}

func (d *Delegate) SelectTriggerStatus(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (*delegate.TriggerStatus, error) {
	trg, ok := d.triggers[tk]
	if !ok {
		return nil, nil
	}
	return &delegate.TriggerStatus{State: trg.State, NextFireTime: trg.NextFireTime, JobKey: trg.JobKey}, nil
}

func (d *Delegate) SelectTriggersForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]model.Trigger, error) {
	var out []model.Trigger
	for _, trg := range d.triggers {
		if trg.JobKey == jk {
			out = append(out, trg.Clone())
		}
	}
	return out, nil
}

func (d *Delegate) SelectTriggersForCalendar(ctx context.Context, t delegate.Tx, schedulerName, calName string) ([]model.Trigger, error) {
	var out []model.Trigger
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName && trg.CalendarName == calName {
			out = append(out, trg.Clone())
		}
	}
	return out, nil
}

func (d *Delegate) SelectTriggerNamesForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]string, error) {
	var out []string
	for _, trg := range d.triggers {
		if trg.JobKey == jk {
			out = append(out, trg.Key.Name)
		}
	}
	return out, nil
}

func (d *Delegate) SelectNumTriggersForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) (int, error) {
	n := 0
	for _, trg := range d.triggers {
		if trg.JobKey == jk {
			n++
		}
	}
	return n, nil
}

func (d *Delegate) SelectTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState) ([]model.Trigger, error) {
	var out []model.Trigger
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName && trg.State == state {
			out = append(out, trg.Clone())
		}
	}
	return out, nil
}

func (d *Delegate) SelectTriggerToAcquire(ctx context.Context, t delegate.Tx, schedulerName string, noLaterThan, misfireTime time.Time, maxCount int) ([]key.TriggerKey, error) {
	var cands []model.Trigger
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName != schedulerName || trg.State != model.StateWaiting {
			continue
		}
		if trg.NextFireTime == nil {
			continue
		}
		if trg.NextFireTime.After(noLaterThan) {
			continue
		}
		if !trg.NextFireTime.After(misfireTime) {
			continue
		}
		cands = append(cands, trg)
	}
	sort.Slice(cands, func(i, j int) bool {
		if !cands[i].NextFireTime.Equal(*cands[j].NextFireTime) {
			return cands[i].NextFireTime.Before(*cands[j].NextFireTime)
		}
		return cands[i].Priority > cands[j].Priority
	})
	if maxCount > 0 && len(cands) > maxCount {
		cands = cands[:maxCount]
	}
	out := make([]key.TriggerKey, len(cands))
	for i, c := range cands {
		out[i] = c.Key
	}
	return out, nil
}

func (d *Delegate) SelectPausedTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string) (map[string]bool, error) {
	out := map[string]bool{}
	prefix := schedulerName + "/"
	for k := range d.pausedTriggerGroups {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = true
		}
	}
	return out, nil
}

func (d *Delegate) SelectPausedJobGroups(ctx context.Context, t delegate.Tx, schedulerName string) (map[string]bool, error) {
	out := map[string]bool{}
	prefix := schedulerName + "/"
	for k := range d.pausedJobGroups {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out[k[len(prefix):]] = true
		}
	}
	return out, nil
}

func (d *Delegate) SelectTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	seen := map[string]bool{}
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName {
			seen[trg.Key.Group] = true
		}
	}
	return sortedKeys(seen), nil
}

func (d *Delegate) SelectJobGroups(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	seen := map[string]bool{}
	for _, j := range d.jobs {
		if j.Key.SchedulerName == schedulerName {
			seen[j.Key.Group] = true
		}
	}
	return sortedKeys(seen), nil
}

func (d *Delegate) SelectJobNamesInGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) ([]string, error) {
	var out []string
	for _, j := range d.jobs {
		if j.Key.SchedulerName == schedulerName && j.Key.Group == group {
			out = append(out, j.Key.Name)
		}
	}
	return out, nil
}

func (d *Delegate) SelectTriggerNamesInGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) ([]string, error) {
	var out []string
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName && trg.Key.Group == group {
			out = append(out, trg.Key.Name)
		}
	}
	return out, nil
}

func (d *Delegate) SelectCalendarNames(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	var out []string
	prefix := schedulerName + "/"
	for k := range d.calendars {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k[len(prefix):])
		}
	}
	return out, nil
}

func (d *Delegate) SelectCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string) (*model.CalendarSpec, bool, error) {
	spec, ok := d.calendars[calKey(schedulerName, name)]
	if !ok {
		return nil, false, nil
	}
	return &spec, true, nil
}

func (d *Delegate) SelectNumJobs(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	n := 0
	for _, j := range d.jobs {
		if j.Key.SchedulerName == schedulerName {
			n++
		}
	}
	return n, nil
}

func (d *Delegate) SelectNumTriggers(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	n := 0
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName {
			n++
		}
	}
	return n, nil
}

func (d *Delegate) SelectNumCalendars(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	n := 0
	prefix := schedulerName + "/"
	for k := range d.calendars {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			n++
		}
	}
	return n, nil
}

func (d *Delegate) SelectSchedulerStateRecords(ctx context.Context, t delegate.Tx, schedulerName string) ([]model.SchedulerStateRecord, error) {
	var out []model.SchedulerStateRecord
	prefix := schedulerName + "/"
	for k, rec := range d.schedStates {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (d *Delegate) SelectFiredTriggerRecords(ctx context.Context, t delegate.Tx, schedulerName, triggerName, triggerGroup string) ([]model.FiredTrigger, error) {
	var out []model.FiredTrigger
	for _, ft := range d.firedByInstance {
		if ft.TriggerKey.SchedulerName == schedulerName && ft.TriggerKey.Name == triggerName && ft.TriggerKey.Group == triggerGroup {
			out = append(out, ft)
		}
	}
	return out, nil
}

func (d *Delegate) SelectFiredTriggerRecordsByJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]model.FiredTrigger, error) {
	var out []model.FiredTrigger
	for _, ft := range d.firedByInstance {
		if ft.JobKey == jk {
			out = append(out, ft)
		}
	}
	return out, nil
}

func (d *Delegate) SelectInstancesFiredTriggerRecords(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) ([]model.FiredTrigger, error) {
	var out []model.FiredTrigger
	for _, ft := range d.firedByInstance {
		if ft.TriggerKey.SchedulerName == schedulerName && ft.SchedulerInstanceID == instanceID {
			out = append(out, ft)
		}
	}
	return out, nil
}

func (d *Delegate) SelectFiredTriggerInstanceNames(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	seen := map[string]bool{}
	for _, ft := range d.firedByInstance {
		if ft.TriggerKey.SchedulerName == schedulerName {
			seen[ft.SchedulerInstanceID] = true
		}
	}
	return sortedKeys(seen), nil
}

func (d *Delegate) CountMisfiredTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState, beforeTime time.Time) (int, error) {
	n := 0
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName && trg.State == state && trg.NextFireTime != nil && trg.NextFireTime.Before(beforeTime) {
			n++
		}
	}
	return n, nil
}

func (d *Delegate) HasMisfiredTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState, beforeTime time.Time, count int) ([]key.TriggerKey, bool, error) {
	var cands []model.Trigger
	for _, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName && trg.State == state && trg.NextFireTime != nil && trg.NextFireTime.Before(beforeTime) {
			cands = append(cands, trg)
		}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].NextFireTime.Before(*cands[j].NextFireTime) })
	more := len(cands) > count
	if count > 0 && len(cands) > count {
		cands = cands[:count]
	}
	out := make([]key.TriggerKey, len(cands))
	for i, c := range cands {
		out[i] = c.Key
	}
	return out, more, nil
}

func (d *Delegate) SelectTriggerJobDataMap(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (map[string]any, error) {
	trg, ok := d.triggers[tk]
	if !ok {
		return nil, nil
	}
	j, ok := d.jobs[trg.JobKey]
	if !ok {
		return nil, nil
	}
	return mergeJobData(j.Clone().JobData, trg.Clone().JobDataMap), nil
}

// mergeJobData overlays trigger-specific data on top of the job's own data
// map, the way a Quartz trigger's data map shadows its job's at fire time.
func mergeJobData(base, overlay map[string]any) map[string]any {
	if len(overlay) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

func (d *Delegate) InsertJobDetail(ctx context.Context, t delegate.Tx, job model.JobDetail) error {
	d.jobs[job.Key] = job.Clone()
	return nil
}

func (d *Delegate) UpdateJobDetail(ctx context.Context, t delegate.Tx, job model.JobDetail) error {
	if _, ok := d.jobs[job.Key]; !ok {
		return storeerr.NotFound("job " + job.Key.String())
	}
	d.jobs[job.Key] = job.Clone()
	return nil
}

func (d *Delegate) InsertTrigger(ctx context.Context, t delegate.Tx, trg model.Trigger) error {
	d.triggers[trg.Key] = trg.Clone()
	return nil
}

func (d *Delegate) UpdateTrigger(ctx context.Context, t delegate.Tx, trg model.Trigger) error {
	if _, ok := d.triggers[trg.Key]; !ok {
		return storeerr.NotFound("trigger " + trg.Key.String())
	}
	d.triggers[trg.Key] = trg.Clone()
	return nil
}

func (d *Delegate) InsertCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string, spec model.CalendarSpec) error {
	d.calendars[calKey(schedulerName, name)] = spec
	return nil
}

func (d *Delegate) UpdateCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string, spec model.CalendarSpec) error {
	d.calendars[calKey(schedulerName, name)] = spec
	return nil
}

func (d *Delegate) InsertFiredTrigger(ctx context.Context, t delegate.Tx, ft model.FiredTrigger) error {
	d.firedByInstance[ft.FireInstanceID] = ft
	return nil
}

func (d *Delegate) UpdateFiredTrigger(ctx context.Context, t delegate.Tx, ft model.FiredTrigger) error {
	d.firedByInstance[ft.FireInstanceID] = ft
	return nil
}

func (d *Delegate) UpdateTriggerState(ctx context.Context, t delegate.Tx, tk key.TriggerKey, newState model.TriggerState) (int, error) {
	trg, ok := d.triggers[tk]
	if !ok {
		return 0, nil
	}
	trg.State = newState
	d.triggers[tk] = trg
	return 1, nil
}

func (d *Delegate) UpdateTriggerStateFromOtherState(ctx context.Context, t delegate.Tx, tk key.TriggerKey, newState, oldState model.TriggerState) (int, error) {
	trg, ok := d.triggers[tk]
	if !ok || trg.State != oldState {
		return 0, nil
	}
	trg.State = newState
	d.triggers[tk] = trg
	return 1, nil
}

func (d *Delegate) UpdateTriggerStatesFromOtherStates(ctx context.Context, t delegate.Tx, schedulerName string, newState, oldState1, oldState2 model.TriggerState) (int, error) {
	n := 0
	for k, trg := range d.triggers {
		if trg.Key.SchedulerName != schedulerName {
			continue
		}
		if trg.State == oldState1 || trg.State == oldState2 {
			trg.State = newState
			d.triggers[k] = trg
			n++
		}
	}
	return n, nil
}

func (d *Delegate) UpdateTriggerGroupStateFromOtherState(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState model.TriggerState) (int, error) {
	n := 0
	for k, trg := range d.triggers {
		if trg.Key.SchedulerName != schedulerName || !matcher.Matches(trg.Key.Group) {
			continue
		}
		if trg.State == oldState {
			trg.State = newState
			d.triggers[k] = trg
			n++
		}
	}
	return n, nil
}

func (d *Delegate) UpdateTriggerGroupStateFromOtherStates(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState1, oldState2 model.TriggerState) (int, error) {
	n := 0
	for k, trg := range d.triggers {
		if trg.Key.SchedulerName != schedulerName || !matcher.Matches(trg.Key.Group) {
			continue
		}
		if trg.State == oldState1 || trg.State == oldState2 {
			trg.State = newState
			d.triggers[k] = trg
			n++
		}
	}
	return n, nil
}

func (d *Delegate) UpdateTriggerStatesForJob(ctx context.Context, t delegate.Tx, jk key.JobKey, newState model.TriggerState) (int, error) {
	n := 0
	for k, trg := range d.triggers {
		if trg.JobKey == jk {
			trg.State = newState
			d.triggers[k] = trg
			n++
		}
	}
	return n, nil
}

func (d *Delegate) UpdateTriggerStatesForJobFromOtherState(ctx context.Context, t delegate.Tx, jk key.JobKey, newState, oldState model.TriggerState) (int, error) {
	n := 0
	for k, trg := range d.triggers {
		if trg.JobKey == jk && trg.State == oldState {
			trg.State = newState
			d.triggers[k] = trg
			n++
		}
	}
	return n, nil
}

func (d *Delegate) InsertPausedTriggerGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) error {
	d.pausedTriggerGroups[schedulerName+"/"+group] = true
	return nil
}

func (d *Delegate) DeletePausedTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error) {
	var out []string
	prefix := schedulerName + "/"
	for k := range d.pausedTriggerGroups {
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		g := k[len(prefix):]
		if matcher.Matches(g) {
			delete(d.pausedTriggerGroups, k)
			out = append(out, g)
		}
	}
	return out, nil
}

func (d *Delegate) IsTriggerGroupPaused(ctx context.Context, t delegate.Tx, schedulerName, group string) (bool, error) {
	return d.pausedTriggerGroups[schedulerName+"/"+group], nil
}

func (d *Delegate) InsertPausedJobGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) error {
	d.pausedJobGroups[schedulerName+"/"+group] = true
	return nil
}

func (d *Delegate) DeletePausedJobGroups(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error) {
	var out []string
	prefix := schedulerName + "/"
	for k := range d.pausedJobGroups {
		if len(k) <= len(prefix) || k[:len(prefix)] != prefix {
			continue
		}
		g := k[len(prefix):]
		if matcher.Matches(g) {
			delete(d.pausedJobGroups, k)
			out = append(out, g)
		}
	}
	return out, nil
}

func (d *Delegate) IsJobGroupPaused(ctx context.Context, t delegate.Tx, schedulerName, group string) (bool, error) {
	return d.pausedJobGroups[schedulerName+"/"+group], nil
}

func (d *Delegate) DeleteTrigger(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (bool, error) {
	if _, ok := d.triggers[tk]; !ok {
		return false, nil
	}
	delete(d.triggers, tk)
	return true, nil
}

func (d *Delegate) DeleteJobDetail(ctx context.Context, t delegate.Tx, jk key.JobKey) (bool, error) {
	if _, ok := d.jobs[jk]; !ok {
		return false, nil
	}
	delete(d.jobs, jk)
	return true, nil
}

func (d *Delegate) DeleteCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string) error {
	delete(d.calendars, calKey(schedulerName, name))
	return nil
}

func (d *Delegate) DeleteFiredTrigger(ctx context.Context, t delegate.Tx, fireInstanceID string) (bool, error) {
	if _, ok := d.firedByInstance[fireInstanceID]; !ok {
		return false, nil
	}
	delete(d.firedByInstance, fireInstanceID)
	return true, nil
}

func (d *Delegate) DeleteFiredTriggers(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) (int, error) {
	n := 0
	for k, ft := range d.firedByInstance {
		if ft.TriggerKey.SchedulerName == schedulerName && ft.SchedulerInstanceID == instanceID {
			delete(d.firedByInstance, k)
			n++
		}
	}
	return n, nil
}

func (d *Delegate) UpdateSchedulerState(ctx context.Context, t delegate.Tx, schedulerName, instanceID string, checkinTime time.Time, checkinInterval time.Duration) (int, error) {
	k := schedulerName + "/" + instanceID
	rec, ok := d.schedStates[k]
	if !ok {
		return 0, nil
	}
	rec.LastCheckinTime = checkinTime
	rec.CheckinInterval = checkinInterval
	d.schedStates[k] = rec
	return 1, nil
}

func (d *Delegate) InsertSchedulerState(ctx context.Context, t delegate.Tx, schedulerName string, rec model.SchedulerStateRecord) error {
	d.schedStates[schedulerName+"/"+rec.InstanceID] = rec
	return nil
}

func (d *Delegate) DeleteSchedulerState(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) error {
	delete(d.schedStates, schedulerName+"/"+instanceID)
	return nil
}

func (d *Delegate) ClearData(ctx context.Context, t delegate.Tx, schedulerName string) error {
	for k, j := range d.jobs {
		if j.Key.SchedulerName == schedulerName {
			delete(d.jobs, k)
		}
	}
	for k, trg := range d.triggers {
		if trg.Key.SchedulerName == schedulerName {
			delete(d.triggers, k)
		}
	}
	prefix := schedulerName + "/"
	for k := range d.calendars {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(d.calendars, k)
		}
	}
	for k := range d.pausedTriggerGroups {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(d.pausedTriggerGroups, k)
		}
	}
	for k := range d.pausedJobGroups {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(d.pausedJobGroups, k)
		}
	}
	for k, ft := range d.firedByInstance {
		if ft.TriggerKey.SchedulerName == schedulerName {
			delete(d.firedByInstance, k)
		}
	}
	for k := range d.schedStates {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(d.schedStates, k)
		}
	}
	return nil
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
