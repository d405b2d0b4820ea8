// Package redisdoc is the document-store delegate.Delegate adapter, backed
// by Redis via go-redis/v9, grounded on the teacher's RedisQueue: pipelines
// for atomic multi-key writes, redis.NewScript for compare-and-swap, and
// namespaced keys instead of its queue:* prefix.
package redisdoc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/storeerr"
)

// Delegate implements delegate.Delegate against a single Redis database.
type Delegate struct {
	client *redis.Client

	mu        sync.Mutex
	heldLocks map[string]string
}

// New builds a Delegate from connection options, mirroring the teacher's
// redis.NewClient(&redis.Options{...}) construction.
func New(addr, password string, db int) *Delegate {
	return &Delegate{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewWithClient wraps an already-constructed client, used by tests against
// miniredis.
func NewWithClient(c *redis.Client) *Delegate {
	return &Delegate{client: c}
}

func (d *Delegate) Close() error {
	return d.client.Close()
}

type txHandle struct{}

// Begin has nothing to open: Redis gives us no cross-command transaction
// boundary, so each mutation below takes effect immediately and the
// store-backed lock row (lock.go) is what actually serializes conflicting
// writers across the cluster.
func (d *Delegate) Begin(ctx context.Context) (delegate.Tx, error) {
	return &txHandle{}, nil
}

func (d *Delegate) Commit(ctx context.Context, t delegate.Tx) error {
	d.releaseTrackedLocks(ctx)
	return nil
}

func (d *Delegate) Rollback(ctx context.Context, t delegate.Tx) error {
	d.releaseTrackedLocks(ctx)
	return nil
}

func (d *Delegate) getJSON(ctx context.Context, k string, v any) (bool, error) {
	raw, err := d.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Delegate) setJSON(ctx context.Context, k string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.client.Set(ctx, k, raw, 0).Err()
}

func (d *Delegate) JobExists(ctx context.Context, t delegate.Tx, jk key.JobKey) (bool, error) {
	n, err := d.client.Exists(ctx, jobKey(jk.SchedulerName, jk.Group, jk.Name)).Result()
	return n > 0, err
}

func (d *Delegate) TriggerExists(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (bool, error) {
	n, err := d.client.Exists(ctx, triggerKey(tk.SchedulerName, tk.Group, tk.Name)).Result()
	return n > 0, err
}

func (d *Delegate) CalendarExists(ctx context.Context, t delegate.Tx, schedulerName, name string) (bool, error) {
	n, err := d.client.Exists(ctx, calendarKey(schedulerName, name)).Result()
	return n > 0, err
}

func (d *Delegate) CalendarIsReferenced(ctx context.Context, t delegate.Tx, schedulerName, name string) (bool, error) {
	n, err := d.client.SCard(ctx, triggersByCalendarKey(schedulerName, name)).Result()
	return n > 0, err
}

func (d *Delegate) SelectJobDetail(ctx context.Context, t delegate.Tx, jk key.JobKey) (*model.JobDetail, error) {
	var doc jobDoc
	ok, err := d.getJSON(ctx, jobKey(jk.SchedulerName, jk.Group, jk.Name), &doc)
	if err != nil || !ok {
		return nil, err
	}
	m := doc.toModel(jk)
	return &m, nil
}

func (d *Delegate) SelectTrigger(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (*model.Trigger, error) {
	var doc triggerDoc
	ok, err := d.getJSON(ctx, triggerKey(tk.SchedulerName, tk.Group, tk.Name), &doc)
	if err != nil || !ok {
		return nil, err
	}
	m := doc.toModel(tk)
	return &m, nil
}

func (d *Delegate) SelectTriggerState(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (model.TriggerState, error) {
	var doc triggerDoc
	ok, err := d.getJSON(ctx, triggerKey(tk.SchedulerName, tk.Group, tk.Name), &doc)
	if err != nil {
		return "", err
	}
	if !ok {
		return model.StateDeleted, nil
	}
	return model.TriggerState(doc.State), nil
}

func (d *Delegate) SelectTriggerStatus(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (*delegate.TriggerStatus, error) {
	var doc triggerDoc
	ok, err := d.getJSON(ctx, triggerKey(tk.SchedulerName, tk.Group, tk.Name), &doc)
	if err != nil || !ok {
		return nil, err
	}
	return &delegate.TriggerStatus{
		State:        model.TriggerState(doc.State),
		NextFireTime: doc.NextFireTime,
		JobKey:       key.NewJobKey(tk.SchedulerName, doc.JobName, doc.JobGroup),
	}, nil
}

func (d *Delegate) loadTriggersByMember(ctx context.Context, schedulerName string, members []string) ([]model.Trigger, error) {
	out := make([]model.Trigger, 0, len(members))
	for _, m := range members {
		group, name := splitMember(m)
		tk := key.NewTriggerKey(schedulerName, name, group)
		trg, err := d.SelectTrigger(ctx, nil, tk)
		if err != nil {
			return nil, err
		}
		if trg != nil {
			out = append(out, *trg)
		}
	}
	return out, nil
}

func splitMember(m string) (group, name string) {
	for i := 0; i < len(m); i++ {
		if m[i] == '/' {
			return m[:i], m[i+1:]
		}
	}
	return "", m
}

func (d *Delegate) SelectTriggersForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]model.Trigger, error) {
	members, err := d.client.SMembers(ctx, triggersByJobKey(jk.SchedulerName, jk.Group, jk.Name)).Result()
	if err != nil {
		return nil, err
	}
	return d.loadTriggersByMember(ctx, jk.SchedulerName, members)
}

func (d *Delegate) SelectTriggersForCalendar(ctx context.Context, t delegate.Tx, schedulerName, calName string) ([]model.Trigger, error) {
	members, err := d.client.SMembers(ctx, triggersByCalendarKey(schedulerName, calName)).Result()
	if err != nil {
		return nil, err
	}
	return d.loadTriggersByMember(ctx, schedulerName, members)
}

func (d *Delegate) SelectTriggerNamesForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]string, error) {
	members, err := d.client.SMembers(ctx, triggersByJobKey(jk.SchedulerName, jk.Group, jk.Name)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(members))
	for _, m := range members {
		_, name := splitMember(m)
		out = append(out, name)
	}
	return out, nil
}

func (d *Delegate) SelectNumTriggersForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) (int, error) {
	n, err := d.client.SCard(ctx, triggersByJobKey(jk.SchedulerName, jk.Group, jk.Name)).Result()
	return int(n), err
}

func (d *Delegate) SelectTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState) ([]model.Trigger, error) {
	groups, err := d.client.SMembers(ctx, triggerGroupsSetKey(schedulerName)).Result()
	if err != nil {
		return nil, err
	}
	var out []model.Trigger
	for _, g := range groups {
		names, err := d.client.SMembers(ctx, triggerGroupSetKey(schedulerName, g)).Result()
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			trg, err := d.SelectTrigger(ctx, t, key.NewTriggerKey(schedulerName, n, g))
			if err != nil {
				return nil, err
			}
			if trg != nil && trg.State == state {
				out = append(out, *trg)
			}
		}
	}
	return out, nil
}

// SelectTriggerToAcquire reads the fire-time window from the waiting-triggers
// ZSet (scored by NextFireTime in milliseconds, kept up to date by
// InsertTrigger/UpdateTrigger) with one ZRANGEBYSCORE, then loads each
// candidate to order equal fire times by priority, highest first, before
// cutting the list to maxCount.
func (d *Delegate) SelectTriggerToAcquire(ctx context.Context, t delegate.Tx, schedulerName string, noLaterThan, misfireTime time.Time, maxCount int) ([]key.TriggerKey, error) {
	members, err := d.client.ZRangeByScore(ctx, waitingZSetKey(schedulerName), &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", misfireTime.UnixMilli()),
		Max: fmt.Sprintf("%d", noLaterThan.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]key.TriggerKey, 0, len(members))
	prio := make(map[key.TriggerKey]int, len(members))
	fire := make(map[key.TriggerKey]int64, len(members))
	for _, m := range members {
		group, name := splitMember(m)
		tk := key.NewTriggerKey(schedulerName, name, group)
		trg, err := d.SelectTrigger(ctx, t, tk)
		if err != nil {
			return nil, err
		}
		if trg != nil && trg.NextFireTime != nil {
			prio[tk], fire[tk] = trg.Priority, trg.NextFireTime.UnixMilli()
		}
		out = append(out, tk)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if fire[out[i]] != fire[out[j]] {
			return fire[out[i]] < fire[out[j]]
		}
		return prio[out[i]] > prio[out[j]]
	})
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out, nil
}

func (d *Delegate) SelectPausedTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string) (map[string]bool, error) {
	members, err := d.client.SMembers(ctx, pausedTriggerGroupsKey(schedulerName)).Result()
	if err != nil {
		return nil, err
	}
	return toSet(members), nil
}

func (d *Delegate) SelectPausedJobGroups(ctx context.Context, t delegate.Tx, schedulerName string) (map[string]bool, error) {
	members, err := d.client.SMembers(ctx, pausedJobGroupsKey(schedulerName)).Result()
	if err != nil {
		return nil, err
	}
	return toSet(members), nil
}

func toSet(members []string) map[string]bool {
	out := make(map[string]bool, len(members))
	for _, m := range members {
		out[m] = true
	}
	return out
}

func (d *Delegate) sortedMembers(ctx context.Context, k string) ([]string, error) {
	members, err := d.client.SMembers(ctx, k).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

func (d *Delegate) SelectTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	return d.sortedMembers(ctx, triggerGroupsSetKey(schedulerName))
}

func (d *Delegate) SelectJobGroups(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	return d.sortedMembers(ctx, jobGroupsSetKey(schedulerName))
}

func (d *Delegate) SelectJobNamesInGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) ([]string, error) {
	return d.sortedMembers(ctx, jobGroupSetKey(schedulerName, group))
}

func (d *Delegate) SelectTriggerNamesInGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) ([]string, error) {
	return d.sortedMembers(ctx, triggerGroupSetKey(schedulerName, group))
}

func (d *Delegate) SelectCalendarNames(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	return d.sortedMembers(ctx, calendarsSetKey(schedulerName))
}

func (d *Delegate) SelectCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string) (*model.CalendarSpec, bool, error) {
	var doc calendarDoc
	ok, err := d.getJSON(ctx, calendarKey(schedulerName, name), &doc)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &model.CalendarSpec{Kind: doc.Kind, ExcludedDates: doc.ExcludedDates}, true, nil
}

func (d *Delegate) SelectNumJobs(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	groups, err := d.client.SMembers(ctx, jobGroupsSetKey(schedulerName)).Result()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, g := range groups {
		n, err := d.client.SCard(ctx, jobGroupSetKey(schedulerName, g)).Result()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

func (d *Delegate) SelectNumTriggers(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	groups, err := d.client.SMembers(ctx, triggerGroupsSetKey(schedulerName)).Result()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, g := range groups {
		n, err := d.client.SCard(ctx, triggerGroupSetKey(schedulerName, g)).Result()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

func (d *Delegate) SelectNumCalendars(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	n, err := d.client.SCard(ctx, calendarsSetKey(schedulerName)).Result()
	return int(n), err
}

func (d *Delegate) SelectSchedulerStateRecords(ctx context.Context, t delegate.Tx, schedulerName string) ([]model.SchedulerStateRecord, error) {
	instances, err := d.client.SMembers(ctx, schedInstancesSetKey(schedulerName)).Result()
	if err != nil {
		return nil, err
	}
	var out []model.SchedulerStateRecord
	for _, instanceID := range instances {
		var doc schedStateDoc
		ok, err := d.getJSON(ctx, schedStateKey(schedulerName, instanceID), &doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, model.SchedulerStateRecord{InstanceID: instanceID, LastCheckinTime: doc.LastCheckinTime, CheckinInterval: doc.CheckinInterval})
	}
	return out, nil
}

func (d *Delegate) loadFired(ctx context.Context, schedulerName string, ids []string) ([]model.FiredTrigger, error) {
	out := make([]model.FiredTrigger, 0, len(ids))
	for _, id := range ids {
		var doc firedDoc
		ok, err := d.getJSON(ctx, firedKey(id), &doc)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, doc.toModel(schedulerName, id))
	}
	return out, nil
}

func (d *Delegate) SelectFiredTriggerRecords(ctx context.Context, t delegate.Tx, schedulerName, triggerName, triggerGroup string) ([]model.FiredTrigger, error) {
	all, err := d.SelectInstancesFiredTriggerRecords(ctx, t, schedulerName, "")
	if err != nil {
		return nil, err
	}
	var out []model.FiredTrigger
	for _, ft := range all {
		if ft.TriggerKey.Name == triggerName && ft.TriggerKey.Group == triggerGroup {
			out = append(out, ft)
		}
	}
	return out, nil
}

func (d *Delegate) SelectFiredTriggerRecordsByJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]model.FiredTrigger, error) {
	ids, err := d.client.SMembers(ctx, firedByJobKey(jk.Group, jk.Name)).Result()
	if err != nil {
		return nil, err
	}
	return d.loadFired(ctx, jk.SchedulerName, ids)
}

func (d *Delegate) SelectInstancesFiredTriggerRecords(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) ([]model.FiredTrigger, error) {
	if instanceID != "" {
		ids, err := d.client.SMembers(ctx, firedByInstanceKey(schedulerName, instanceID)).Result()
		if err != nil {
			return nil, err
		}
		return d.loadFired(ctx, schedulerName, ids)
	}
	instances, err := d.client.SMembers(ctx, schedInstancesSetKey(schedulerName)).Result()
	if err != nil {
		return nil, err
	}
	var out []model.FiredTrigger
	for _, inst := range instances {
		ids, err := d.client.SMembers(ctx, firedByInstanceKey(schedulerName, inst)).Result()
		if err != nil {
			return nil, err
		}
		recs, err := d.loadFired(ctx, schedulerName, ids)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (d *Delegate) SelectFiredTriggerInstanceNames(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	return d.sortedMembers(ctx, schedInstancesSetKey(schedulerName))
}

func (d *Delegate) CountMisfiredTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState, beforeTime time.Time) (int, error) {
	if state != model.StateWaiting {
		trgs, err := d.SelectTriggersInState(ctx, t, schedulerName, state)
		if err != nil {
			return 0, err
		}
		n := 0
		for _, trg := range trgs {
			if trg.NextFireTime != nil && trg.NextFireTime.Before(beforeTime) {
				n++
			}
		}
		return n, nil
	}
	n, err := d.client.ZCount(ctx, waitingZSetKey(schedulerName), "-inf", fmt.Sprintf("(%d", beforeTime.UnixMilli())).Result()
	return int(n), err
}

func (d *Delegate) HasMisfiredTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState, beforeTime time.Time, count int) ([]key.TriggerKey, bool, error) {
	members, err := d.client.ZRangeByScore(ctx, waitingZSetKey(schedulerName), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("(%d", beforeTime.UnixMilli()),
		Count: int64(count + 1),
	}).Result()
	if err != nil {
		return nil, false, err
	}
	more := len(members) > count
	if more {
		members = members[:count]
	}
	out := make([]key.TriggerKey, 0, len(members))
	for _, m := range members {
		group, name := splitMember(m)
		out = append(out, key.NewTriggerKey(schedulerName, name, group))
	}
	return out, more, nil
}

func (d *Delegate) SelectTriggerJobDataMap(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (map[string]any, error) {
	var tdoc triggerDoc
	ok, err := d.getJSON(ctx, triggerKey(tk.SchedulerName, tk.Group, tk.Name), &tdoc)
	if err != nil || !ok {
		return nil, err
	}
	job, err := d.SelectJobDetail(ctx, t, key.NewJobKey(tk.SchedulerName, tdoc.JobName, tdoc.JobGroup))
	if err != nil || job == nil {
		return nil, err
	}
	return mergeJobData(job.JobData, tdoc.JobDataMap), nil
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
	pipe := d.client.TxPipeline()
	raw, err := json.Marshal(toJobDoc(job))
	if err != nil {
		return err
	}
	pipe.Set(ctx, jobKey(job.Key.SchedulerName, job.Key.Group, job.Key.Name), raw, 0)
	pipe.SAdd(ctx, jobGroupsSetKey(job.Key.SchedulerName), job.Key.Group)
	pipe.SAdd(ctx, jobGroupSetKey(job.Key.SchedulerName, job.Key.Group), job.Key.Name)
	_, err = pipe.Exec(ctx)
	return err
}

func (d *Delegate) UpdateJobDetail(ctx context.Context, t delegate.Tx, job model.JobDetail) error {
	exists, err := d.JobExists(ctx, t, job.Key)
	if err != nil {
		return err
	}
	if !exists {
		return storeerr.NotFound("job " + job.Key.String())
	}
	return d.setJSON(ctx, jobKey(job.Key.SchedulerName, job.Key.Group, job.Key.Name), toJobDoc(job))
}

func (d *Delegate) InsertTrigger(ctx context.Context, t delegate.Tx, trg model.Trigger) error {
	pipe := d.client.TxPipeline()
	raw, err := json.Marshal(toTriggerDoc(trg))
	if err != nil {
		return err
	}
	member := triggerMember(trg.Key.Group, trg.Key.Name)
	pipe.Set(ctx, triggerKey(trg.Key.SchedulerName, trg.Key.Group, trg.Key.Name), raw, 0)
	pipe.SAdd(ctx, triggerGroupsSetKey(trg.Key.SchedulerName), trg.Key.Group)
	pipe.SAdd(ctx, triggerGroupSetKey(trg.Key.SchedulerName, trg.Key.Group), trg.Key.Name)
	pipe.SAdd(ctx, triggersByJobKey(trg.Key.SchedulerName, trg.JobKey.Group, trg.JobKey.Name), member)
	if trg.CalendarName != "" {
		pipe.SAdd(ctx, triggersByCalendarKey(trg.Key.SchedulerName, trg.CalendarName), member)
	}
	applyWaitingZSet(ctx, pipe, trg)
	_, err = pipe.Exec(ctx)
	return err
}

func applyWaitingZSet(ctx context.Context, pipe redis.Pipeliner, trg model.Trigger) {
	member := triggerMember(trg.Key.Group, trg.Key.Name)
	zkey := waitingZSetKey(trg.Key.SchedulerName)
	if trg.State == model.StateWaiting && trg.NextFireTime != nil {
		pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(trg.NextFireTime.UnixMilli()), Member: member})
	} else {
		pipe.ZRem(ctx, zkey, member)
	}
}

func (d *Delegate) UpdateTrigger(ctx context.Context, t delegate.Tx, trg model.Trigger) error {
	exists, err := d.TriggerExists(ctx, t, trg.Key)
	if err != nil {
		return err
	}
	if !exists {
		return storeerr.NotFound("trigger " + trg.Key.String())
	}
	pipe := d.client.TxPipeline()
	raw, err := json.Marshal(toTriggerDoc(trg))
	if err != nil {
		return err
	}
	pipe.Set(ctx, triggerKey(trg.Key.SchedulerName, trg.Key.Group, trg.Key.Name), raw, 0)
	if trg.CalendarName != "" {
		pipe.SAdd(ctx, triggersByCalendarKey(trg.Key.SchedulerName, trg.CalendarName), triggerMember(trg.Key.Group, trg.Key.Name))
	}
	applyWaitingZSet(ctx, pipe, trg)
	_, err = pipe.Exec(ctx)
	return err
}

func (d *Delegate) InsertCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string, spec model.CalendarSpec) error {
	pipe := d.client.TxPipeline()
	raw, err := json.Marshal(calendarDoc{Kind: spec.Kind, ExcludedDates: spec.ExcludedDates})
	if err != nil {
		return err
	}
	pipe.Set(ctx, calendarKey(schedulerName, name), raw, 0)
	pipe.SAdd(ctx, calendarsSetKey(schedulerName), name)
	_, err = pipe.Exec(ctx)
	return err
}

func (d *Delegate) UpdateCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string, spec model.CalendarSpec) error {
	return d.setJSON(ctx, calendarKey(schedulerName, name), calendarDoc{Kind: spec.Kind, ExcludedDates: spec.ExcludedDates})
}

func (d *Delegate) InsertFiredTrigger(ctx context.Context, t delegate.Tx, ft model.FiredTrigger) error {
	pipe := d.client.TxPipeline()
	raw, err := json.Marshal(toFiredDoc(ft))
	if err != nil {
		return err
	}
	pipe.Set(ctx, firedKey(ft.FireInstanceID), raw, 0)
	pipe.SAdd(ctx, firedByInstanceKey(ft.TriggerKey.SchedulerName, ft.SchedulerInstanceID), ft.FireInstanceID)
	pipe.SAdd(ctx, firedByJobKey(ft.JobKey.Group, ft.JobKey.Name), ft.FireInstanceID)
	_, err = pipe.Exec(ctx)
	return err
}

func (d *Delegate) UpdateFiredTrigger(ctx context.Context, t delegate.Tx, ft model.FiredTrigger) error {
	return d.setJSON(ctx, firedKey(ft.FireInstanceID), toFiredDoc(ft))
}

func (d *Delegate) UpdateTriggerState(ctx context.Context, t delegate.Tx, tk key.TriggerKey, newState model.TriggerState) (int, error) {
	trg, err := d.SelectTrigger(ctx, t, tk)
	if err != nil || trg == nil {
		return 0, err
	}
	trg.State = newState
	if err := d.UpdateTrigger(ctx, t, *trg); err != nil {
		return 0, err
	}
	return 1, nil
}

func (d *Delegate) UpdateTriggerStateFromOtherState(ctx context.Context, t delegate.Tx, tk key.TriggerKey, newState, oldState model.TriggerState) (int, error) {
	trg, err := d.SelectTrigger(ctx, t, tk)
	if err != nil || trg == nil || trg.State != oldState {
		return 0, err
	}
	trg.State = newState
	if err := d.UpdateTrigger(ctx, t, *trg); err != nil {
		return 0, err
	}
	return 1, nil
}

func (d *Delegate) UpdateTriggerStatesFromOtherStates(ctx context.Context, t delegate.Tx, schedulerName string, newState, oldState1, oldState2 model.TriggerState) (int, error) {
	return d.bulkUpdateStates(ctx, t, schedulerName, key.GroupAnything(), newState, []model.TriggerState{oldState1, oldState2}, nil)
}

func (d *Delegate) UpdateTriggerGroupStateFromOtherState(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState model.TriggerState) (int, error) {
	return d.bulkUpdateStates(ctx, t, schedulerName, matcher, newState, []model.TriggerState{oldState}, nil)
}

func (d *Delegate) UpdateTriggerGroupStateFromOtherStates(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState1, oldState2 model.TriggerState) (int, error) {
	return d.bulkUpdateStates(ctx, t, schedulerName, matcher, newState, []model.TriggerState{oldState1, oldState2}, nil)
}

func (d *Delegate) UpdateTriggerStatesForJob(ctx context.Context, t delegate.Tx, jk key.JobKey, newState model.TriggerState) (int, error) {
	return d.bulkUpdateStatesForJob(ctx, t, jk, newState, nil)
}

func (d *Delegate) UpdateTriggerStatesForJobFromOtherState(ctx context.Context, t delegate.Tx, jk key.JobKey, newState, oldState model.TriggerState) (int, error) {
	return d.bulkUpdateStatesForJob(ctx, t, jk, newState, &oldState)
}

func (d *Delegate) bulkUpdateStates(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher, newState model.TriggerState, fromStates []model.TriggerState, _ *model.TriggerState) (int, error) {
	groups, err := d.client.SMembers(ctx, triggerGroupsSetKey(schedulerName)).Result()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range groups {
		if !matcher.Matches(g) {
			continue
		}
		names, err := d.client.SMembers(ctx, triggerGroupSetKey(schedulerName, g)).Result()
		if err != nil {
			return 0, err
		}
		for _, name := range names {
			trg, err := d.SelectTrigger(ctx, t, key.NewTriggerKey(schedulerName, name, g))
			if err != nil {
				return 0, err
			}
			if trg == nil || !stateMatches(trg.State, fromStates) {
				continue
			}
			trg.State = newState
			if err := d.UpdateTrigger(ctx, t, *trg); err != nil {
				return 0, err
			}
			n++
		}
	}
	return n, nil
}

func (d *Delegate) bulkUpdateStatesForJob(ctx context.Context, t delegate.Tx, jk key.JobKey, newState model.TriggerState, fromState *model.TriggerState) (int, error) {
	trgs, err := d.SelectTriggersForJob(ctx, t, jk)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, trg := range trgs {
		if fromState != nil && trg.State != *fromState {
			continue
		}
		trg.State = newState
		if err := d.UpdateTrigger(ctx, t, trg); err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func stateMatches(s model.TriggerState, candidates []model.TriggerState) bool {
	for _, c := range candidates {
		if s == c {
			return true
		}
	}
	return false
}

func (d *Delegate) InsertPausedTriggerGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) error {
	return d.client.SAdd(ctx, pausedTriggerGroupsKey(schedulerName), group).Err()
}

func (d *Delegate) DeletePausedTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error) {
	groups, err := d.client.SMembers(ctx, pausedTriggerGroupsKey(schedulerName)).Result()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, g := range groups {
		if matcher.Matches(g) {
			if err := d.client.SRem(ctx, pausedTriggerGroupsKey(schedulerName), g).Err(); err != nil {
				return nil, err
			}
			removed = append(removed, g)
		}
	}
	return removed, nil
}

func (d *Delegate) IsTriggerGroupPaused(ctx context.Context, t delegate.Tx, schedulerName, group string) (bool, error) {
	return d.client.SIsMember(ctx, pausedTriggerGroupsKey(schedulerName), group).Result()
}

func (d *Delegate) InsertPausedJobGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) error {
	return d.client.SAdd(ctx, pausedJobGroupsKey(schedulerName), group).Err()
}

func (d *Delegate) DeletePausedJobGroups(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error) {
	groups, err := d.client.SMembers(ctx, pausedJobGroupsKey(schedulerName)).Result()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, g := range groups {
		if matcher.Matches(g) {
			if err := d.client.SRem(ctx, pausedJobGroupsKey(schedulerName), g).Err(); err != nil {
				return nil, err
			}
			removed = append(removed, g)
		}
	}
	return removed, nil
}

func (d *Delegate) IsJobGroupPaused(ctx context.Context, t delegate.Tx, schedulerName, group string) (bool, error) {
	return d.client.SIsMember(ctx, pausedJobGroupsKey(schedulerName), group).Result()
}

func (d *Delegate) DeleteTrigger(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (bool, error) {
	var doc triggerDoc
	ok, err := d.getJSON(ctx, triggerKey(tk.SchedulerName, tk.Group, tk.Name), &doc)
	if err != nil || !ok {
		return false, err
	}
	member := triggerMember(tk.Group, tk.Name)
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, triggerKey(tk.SchedulerName, tk.Group, tk.Name))
	pipe.SRem(ctx, triggerGroupSetKey(tk.SchedulerName, tk.Group), tk.Name)
	pipe.SRem(ctx, triggersByJobKey(tk.SchedulerName, doc.JobGroup, doc.JobName), member)
	pipe.ZRem(ctx, waitingZSetKey(tk.SchedulerName), member)
	if doc.CalendarName != "" {
		pipe.SRem(ctx, triggersByCalendarKey(tk.SchedulerName, doc.CalendarName), member)
	}
	_, err = pipe.Exec(ctx)
	return err == nil, err
}

func (d *Delegate) DeleteJobDetail(ctx context.Context, t delegate.Tx, jk key.JobKey) (bool, error) {
	n, err := d.client.Exists(ctx, jobKey(jk.SchedulerName, jk.Group, jk.Name)).Result()
	if err != nil || n == 0 {
		return false, err
	}
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, jobKey(jk.SchedulerName, jk.Group, jk.Name))
	pipe.SRem(ctx, jobGroupSetKey(jk.SchedulerName, jk.Group), jk.Name)
	_, err = pipe.Exec(ctx)
	return err == nil, err
}

func (d *Delegate) DeleteCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string) error {
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, calendarKey(schedulerName, name))
	pipe.SRem(ctx, calendarsSetKey(schedulerName), name)
	_, err := pipe.Exec(ctx)
	return err
}

func (d *Delegate) DeleteFiredTrigger(ctx context.Context, t delegate.Tx, fireInstanceID string) (bool, error) {
	var doc firedDoc
	ok, err := d.getJSON(ctx, firedKey(fireInstanceID), &doc)
	if err != nil || !ok {
		return false, err
	}
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, firedKey(fireInstanceID))
	pipe.SRem(ctx, firedByJobKey(doc.JobGroup, doc.JobName), fireInstanceID)
	pipe.SRem(ctx, firedByInstanceKey(doc.SchedulerName, doc.SchedulerInstanceID), fireInstanceID)
	_, err = pipe.Exec(ctx)
	return err == nil, err
}

func (d *Delegate) DeleteFiredTriggers(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) (int, error) {
	ids, err := d.client.SMembers(ctx, firedByInstanceKey(schedulerName, instanceID)).Result()
	if err != nil {
		return 0, err
	}
	pipe := d.client.TxPipeline()
	for _, id := range ids {
		var doc firedDoc
		if ok, _ := d.getJSON(ctx, firedKey(id), &doc); ok {
			pipe.SRem(ctx, firedByJobKey(doc.JobGroup, doc.JobName), id)
		}
		pipe.Del(ctx, firedKey(id))
	}
	pipe.Del(ctx, firedByInstanceKey(schedulerName, instanceID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (d *Delegate) UpdateSchedulerState(ctx context.Context, t delegate.Tx, schedulerName, instanceID string, checkinTime time.Time, checkinInterval time.Duration) (int, error) {
	n, err := d.client.Exists(ctx, schedStateKey(schedulerName, instanceID)).Result()
	if err != nil || n == 0 {
		return 0, err
	}
	if err := d.setJSON(ctx, schedStateKey(schedulerName, instanceID), schedStateDoc{LastCheckinTime: checkinTime, CheckinInterval: checkinInterval}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (d *Delegate) InsertSchedulerState(ctx context.Context, t delegate.Tx, schedulerName string, rec model.SchedulerStateRecord) error {
	pipe := d.client.TxPipeline()
	raw, err := json.Marshal(schedStateDoc{LastCheckinTime: rec.LastCheckinTime, CheckinInterval: rec.CheckinInterval})
	if err != nil {
		return err
	}
	pipe.Set(ctx, schedStateKey(schedulerName, rec.InstanceID), raw, 0)
	pipe.SAdd(ctx, schedInstancesSetKey(schedulerName), rec.InstanceID)
	_, err = pipe.Exec(ctx)
	return err
}

func (d *Delegate) DeleteSchedulerState(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) error {
	pipe := d.client.TxPipeline()
	pipe.Del(ctx, schedStateKey(schedulerName, instanceID))
	pipe.SRem(ctx, schedInstancesSetKey(schedulerName), instanceID)
	_, err := pipe.Exec(ctx)
	return err
}

func (d *Delegate) ClearData(ctx context.Context, t delegate.Tx, schedulerName string) error {
	pattern := fmt.Sprintf("qn:%s:*", schedulerName)
	iter := d.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return d.client.Del(ctx, keys...).Err()
}
