// Package pg is the relational delegate.Delegate adapter, backed by
// Postgres via pgx/v5, grounded on the teacher's pgxpool usage pattern
// (BeginTx/tx.Exec/tx.Commit, JSON columns marshaled by hand).
package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/lock"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/storeerr"
	"github.com/d10n/quartznet/internal/trigger"
)

// Delegate wraps a pgxpool.Pool for Postgres persistence.
type Delegate struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Delegate, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Delegate{pool: pool}, nil
}

func (d *Delegate) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

func txOf(t delegate.Tx) pgx.Tx {
	tx, _ := t.(pgx.Tx)
	return tx
}

func (d *Delegate) Begin(ctx context.Context) (delegate.Tx, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

func (d *Delegate) Commit(ctx context.Context, t delegate.Tx) error {
	return txOf(t).Commit(ctx)
}

func (d *Delegate) Rollback(ctx context.Context, t delegate.Tx) error {
	_ = txOf(t).Rollback(ctx)
	return nil
}

// ObtainRowLock acquires the row-level write lock backing lock.Store, per
// spec.md §4.D: an UPDATE-equivalent SELECT ... FOR UPDATE inside the
// caller's transaction, released on commit/rollback.
func (d *Delegate) ObtainRowLock(ctx context.Context, t delegate.Tx, schedulerName string, lockName lock.Name) error {
	tx := txOf(t)
	if _, err := tx.Exec(ctx, `
		INSERT INTO qn_locks (scheduler_name, lock_name) VALUES ($1, $2)
		ON CONFLICT (scheduler_name, lock_name) DO NOTHING
	`, schedulerName, string(lockName)); err != nil {
		return fmt.Errorf("seed lock row: %w", err)
	}
	var discard string
	err := tx.QueryRow(ctx, `
		SELECT lock_name FROM qn_locks WHERE scheduler_name = $1 AND lock_name = $2 FOR UPDATE
	`, schedulerName, string(lockName)).Scan(&discard)
	if err != nil {
		return fmt.Errorf("row lock %s: %w", lockName, err)
	}
	return nil
}

func (d *Delegate) JobExists(ctx context.Context, t delegate.Tx, jk key.JobKey) (bool, error) {
	var exists bool
	err := txOf(t).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qn_job_details WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3)
	`, jk.SchedulerName, jk.Group, jk.Name).Scan(&exists)
	return exists, err
}

func (d *Delegate) TriggerExists(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (bool, error) {
	var exists bool
	err := txOf(t).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qn_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3)
	`, tk.SchedulerName, tk.Group, tk.Name).Scan(&exists)
	return exists, err
}

func (d *Delegate) CalendarExists(ctx context.Context, t delegate.Tx, schedulerName, name string) (bool, error) {
	var exists bool
	err := txOf(t).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qn_calendars WHERE scheduler_name=$1 AND calendar_name=$2)
	`, schedulerName, name).Scan(&exists)
	return exists, err
}

func (d *Delegate) CalendarIsReferenced(ctx context.Context, t delegate.Tx, schedulerName, name string) (bool, error) {
	var exists bool
	err := txOf(t).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM qn_triggers WHERE scheduler_name=$1 AND calendar_name=$2)
	`, schedulerName, name).Scan(&exists)
	return exists, err
}

func (d *Delegate) SelectJobDetail(ctx context.Context, t delegate.Tx, jk key.JobKey) (*model.JobDetail, error) {
	var j model.JobDetail
	var dataJSON []byte
	j.Key = jk
	err := txOf(t).QueryRow(ctx, `
		SELECT impl_type, job_data, concurrent_exec_disallowed, persist_job_data, durable, requests_recovery
		FROM qn_job_details WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3
	`, jk.SchedulerName, jk.Group, jk.Name).Scan(&j.ImplType, &dataJSON, &j.ConcurrentExecutionDisallowed, &j.PersistJobDataAfterExecution, &j.Durable, &j.RequestsRecovery)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job detail: %w", err)
	}
	if err := json.Unmarshal(dataJSON, &j.JobData); err != nil {
		return nil, fmt.Errorf("unmarshal job data: %w", err)
	}
	return &j, nil
}

func scanTrigger(row pgx.Row, schedulerName string) (*model.Trigger, error) {
	var trg model.Trigger
	var triggerGroup, triggerName, jobGroup, jobName string
	var state string
	var schedKind, cronExpr string
	var firstFire *time.Time
	var repeatIntervalMs int64
	var repeatCount int
	var jobDataMapJSON []byte
	err := row.Scan(
		&triggerGroup, &triggerName, &jobGroup, &jobName, &trg.CalendarName, &trg.Priority,
		&trg.NextFireTime, &trg.PreviousFireTime, &trg.MisfireInstruction, &state, &trg.FireInstanceID,
		&schedKind, &firstFire, &repeatIntervalMs, &repeatCount, &cronExpr, &jobDataMapJSON,
	)
	if err != nil {
		return nil, err
	}
	trg.Key = key.NewTriggerKey(schedulerName, triggerName, triggerGroup)
	trg.JobKey = key.NewJobKey(schedulerName, jobName, jobGroup)
	trg.State = model.TriggerState(state)
	spec := model.ScheduleSpec{Kind: schedKind, RepeatInterval: time.Duration(repeatIntervalMs) * time.Millisecond, RepeatCount: repeatCount, CronExpr: cronExpr}
	if firstFire != nil {
		spec.FirstFireTime = *firstFire
	}
	trg.Schedule = trigger.FromSpec(spec)
	if len(jobDataMapJSON) > 0 {
		if err := json.Unmarshal(jobDataMapJSON, &trg.JobDataMap); err != nil {
			return nil, fmt.Errorf("unmarshal trigger job data map: %w", err)
		}
	}
	return &trg, nil
}

const selectTriggerCols = `
	trigger_group, trigger_name, job_group, job_name, calendar_name, priority,
	next_fire_time, prev_fire_time, misfire_instruction, state, fire_instance_id,
	schedule_kind, schedule_first_fire, schedule_repeat_interval_ms, schedule_repeat_count, schedule_cron_expr, job_data_map
`

func (d *Delegate) SelectTrigger(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (*model.Trigger, error) {
	row := txOf(t).QueryRow(ctx, `SELECT `+selectTriggerCols+` FROM qn_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`, tk.SchedulerName, tk.Group, tk.Name)
	trg, err := scanTrigger(row, tk.SchedulerName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select trigger: %w", err)
	}
	return trg, nil
}

func (d *Delegate) SelectTriggerState(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (model.TriggerState, error) {
	var state string
	err := txOf(t).QueryRow(ctx, `SELECT state FROM qn_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`, tk.SchedulerName, tk.Group, tk.Name).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.StateDeleted, nil
	}
	if err != nil {
		return "", err
	}
	return model.TriggerState(state), nil
}

func (d *Delegate) SelectTriggerStatus(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (*delegate.TriggerStatus, error) {
	var state, jobGroup, jobName string
	var next *time.Time
	err := txOf(t).QueryRow(ctx, `SELECT state, job_group, job_name, next_fire_time FROM qn_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`, tk.SchedulerName, tk.Group, tk.Name).Scan(&state, &jobGroup, &jobName, &next)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &delegate.TriggerStatus{State: model.TriggerState(state), NextFireTime: next, JobKey: key.NewJobKey(tk.SchedulerName, jobName, jobGroup)}, nil
}

func queryTriggers(ctx context.Context, t delegate.Tx, schedulerName, where string, args ...any) ([]model.Trigger, error) {
	rows, err := txOf(t).Query(ctx, `SELECT `+selectTriggerCols+` FROM qn_triggers WHERE scheduler_name=$1 AND `+where, append([]any{schedulerName}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Trigger
	for rows.Next() {
		trg, err := scanTrigger(rows, schedulerName)
		if err != nil {
			return nil, err
		}
		out = append(out, *trg)
	}
	return out, rows.Err()
}

func (d *Delegate) SelectTriggersForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]model.Trigger, error) {
	return queryTriggers(ctx, t, jk.SchedulerName, "job_group=$2 AND job_name=$3", jk.Group, jk.Name)
}

func (d *Delegate) SelectTriggersForCalendar(ctx context.Context, t delegate.Tx, schedulerName, calName string) ([]model.Trigger, error) {
	return queryTriggers(ctx, t, schedulerName, "calendar_name=$2", calName)
}

func (d *Delegate) SelectTriggerNamesForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]string, error) {
	rows, err := txOf(t).Query(ctx, `SELECT trigger_name FROM qn_triggers WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`, jk.SchedulerName, jk.Group, jk.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) SelectNumTriggersForJob(ctx context.Context, t delegate.Tx, jk key.JobKey) (int, error) {
	var n int
	err := txOf(t).QueryRow(ctx, `SELECT count(*) FROM qn_triggers WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`, jk.SchedulerName, jk.Group, jk.Name).Scan(&n)
	return n, err
}

func (d *Delegate) SelectTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState) ([]model.Trigger, error) {
	return queryTriggers(ctx, t, schedulerName, "state=$2", string(state))
}

func (d *Delegate) SelectTriggerToAcquire(ctx context.Context, t delegate.Tx, schedulerName string, noLaterThan, misfireTime time.Time, maxCount int) ([]key.TriggerKey, error) {
	rows, err := txOf(t).Query(ctx, `
		SELECT trigger_group, trigger_name FROM qn_triggers
		WHERE scheduler_name=$1 AND state=$2 AND next_fire_time <= $3 AND next_fire_time > $4
		ORDER BY next_fire_time ASC, priority DESC
		LIMIT $5
	`, schedulerName, string(model.StateWaiting), noLaterThan, misfireTime, maxCount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []key.TriggerKey
	for rows.Next() {
		var g, n string
		if err := rows.Scan(&g, &n); err != nil {
			return nil, err
		}
		out = append(out, key.NewTriggerKey(schedulerName, n, g))
	}
	return out, rows.Err()
}

func (d *Delegate) SelectPausedTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string) (map[string]bool, error) {
	rows, err := txOf(t).Query(ctx, `SELECT trigger_group FROM qn_paused_trigger_groups WHERE scheduler_name=$1`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBoolSet(rows)
}

func (d *Delegate) SelectPausedJobGroups(ctx context.Context, t delegate.Tx, schedulerName string) (map[string]bool, error) {
	rows, err := txOf(t).Query(ctx, `SELECT job_group FROM qn_paused_job_groups WHERE scheduler_name=$1`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBoolSet(rows)
}

func (d *Delegate) SelectTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	rows, err := txOf(t).Query(ctx, `SELECT DISTINCT trigger_group FROM qn_triggers WHERE scheduler_name=$1 ORDER BY trigger_group`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) SelectJobGroups(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	rows, err := txOf(t).Query(ctx, `SELECT DISTINCT job_group FROM qn_job_details WHERE scheduler_name=$1 ORDER BY job_group`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) SelectJobNamesInGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) ([]string, error) {
	rows, err := txOf(t).Query(ctx, `SELECT job_name FROM qn_job_details WHERE scheduler_name=$1 AND job_group=$2`, schedulerName, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) SelectTriggerNamesInGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) ([]string, error) {
	rows, err := txOf(t).Query(ctx, `SELECT trigger_name FROM qn_triggers WHERE scheduler_name=$1 AND trigger_group=$2`, schedulerName, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) SelectCalendarNames(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	rows, err := txOf(t).Query(ctx, `SELECT calendar_name FROM qn_calendars WHERE scheduler_name=$1`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) SelectCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string) (*model.CalendarSpec, bool, error) {
	var kind string
	var datesJSON []byte
	err := txOf(t).QueryRow(ctx, `SELECT kind, excluded_dates FROM qn_calendars WHERE scheduler_name=$1 AND calendar_name=$2`, schedulerName, name).Scan(&kind, &datesJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var dates []time.Time
	if err := json.Unmarshal(datesJSON, &dates); err != nil {
		return nil, false, err
	}
	return &model.CalendarSpec{Kind: kind, ExcludedDates: dates}, true, nil
}

func (d *Delegate) SelectNumJobs(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	var n int
	err := txOf(t).QueryRow(ctx, `SELECT count(*) FROM qn_job_details WHERE scheduler_name=$1`, schedulerName).Scan(&n)
	return n, err
}

func (d *Delegate) SelectNumTriggers(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	var n int
	err := txOf(t).QueryRow(ctx, `SELECT count(*) FROM qn_triggers WHERE scheduler_name=$1`, schedulerName).Scan(&n)
	return n, err
}

func (d *Delegate) SelectNumCalendars(ctx context.Context, t delegate.Tx, schedulerName string) (int, error) {
	var n int
	err := txOf(t).QueryRow(ctx, `SELECT count(*) FROM qn_calendars WHERE scheduler_name=$1`, schedulerName).Scan(&n)
	return n, err
}

func (d *Delegate) SelectSchedulerStateRecords(ctx context.Context, t delegate.Tx, schedulerName string) ([]model.SchedulerStateRecord, error) {
	rows, err := txOf(t).Query(ctx, `SELECT instance_id, last_checkin_time, checkin_interval_ms FROM qn_scheduler_state WHERE scheduler_name=$1`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SchedulerStateRecord
	for rows.Next() {
		var rec model.SchedulerStateRecord
		var intervalMs int64
		if err := rows.Scan(&rec.InstanceID, &rec.LastCheckinTime, &intervalMs); err != nil {
			return nil, err
		}
		rec.CheckinInterval = time.Duration(intervalMs) * time.Millisecond
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanFiredTriggers(rows pgx.Rows, schedulerName string) ([]model.FiredTrigger, error) {
	var out []model.FiredTrigger
	for rows.Next() {
		var ft model.FiredTrigger
		var triggerGroup, triggerName, jobGroup, jobName, state string
		if err := rows.Scan(&ft.FireInstanceID, &ft.SchedulerInstanceID, &triggerGroup, &triggerName, &jobGroup, &jobName, &state, &ft.Priority, &ft.FiredTime, &ft.ScheduledTime, &ft.IsNonConcurrent, &ft.RequestsRecovery); err != nil {
			return nil, err
		}
		ft.TriggerKey = key.NewTriggerKey(schedulerName, triggerName, triggerGroup)
		ft.JobKey = key.NewJobKey(schedulerName, jobName, jobGroup)
		ft.State = model.FiredTriggerState(state)
		out = append(out, ft)
	}
	return out, rows.Err()
}

const selectFiredCols = `fire_instance_id, scheduler_instance_id, trigger_group, trigger_name, job_group, job_name, state, priority, fired_time, scheduled_time, is_nonconcurrent, requests_recovery`

func (d *Delegate) SelectFiredTriggerRecords(ctx context.Context, t delegate.Tx, schedulerName, triggerName, triggerGroup string) ([]model.FiredTrigger, error) {
	rows, err := txOf(t).Query(ctx, `SELECT `+selectFiredCols+` FROM qn_fired_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`, schedulerName, triggerGroup, triggerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiredTriggers(rows, schedulerName)
}

func (d *Delegate) SelectFiredTriggerRecordsByJob(ctx context.Context, t delegate.Tx, jk key.JobKey) ([]model.FiredTrigger, error) {
	rows, err := txOf(t).Query(ctx, `SELECT `+selectFiredCols+` FROM qn_fired_triggers WHERE job_group=$1 AND job_name=$2`, jk.Group, jk.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiredTriggers(rows, jk.SchedulerName)
}

func (d *Delegate) SelectInstancesFiredTriggerRecords(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) ([]model.FiredTrigger, error) {
	rows, err := txOf(t).Query(ctx, `SELECT `+selectFiredCols+` FROM qn_fired_triggers WHERE scheduler_name=$1 AND scheduler_instance_id=$2`, schedulerName, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiredTriggers(rows, schedulerName)
}

func (d *Delegate) SelectFiredTriggerInstanceNames(ctx context.Context, t delegate.Tx, schedulerName string) ([]string, error) {
	rows, err := txOf(t).Query(ctx, `SELECT DISTINCT scheduler_instance_id FROM qn_fired_triggers WHERE scheduler_name=$1`, schedulerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) CountMisfiredTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState, beforeTime time.Time) (int, error) {
	var n int
	err := txOf(t).QueryRow(ctx, `SELECT count(*) FROM qn_triggers WHERE scheduler_name=$1 AND state=$2 AND next_fire_time < $3`, schedulerName, string(state), beforeTime).Scan(&n)
	return n, err
}

func (d *Delegate) HasMisfiredTriggersInState(ctx context.Context, t delegate.Tx, schedulerName string, state model.TriggerState, beforeTime time.Time, count int) ([]key.TriggerKey, bool, error) {
	rows, err := txOf(t).Query(ctx, `
		SELECT trigger_group, trigger_name FROM qn_triggers
		WHERE scheduler_name=$1 AND state=$2 AND next_fire_time < $3
		ORDER BY next_fire_time ASC
		LIMIT $4
	`, schedulerName, string(state), beforeTime, count+1)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()
	var out []key.TriggerKey
	for rows.Next() {
		var g, n string
		if err := rows.Scan(&g, &n); err != nil {
			return nil, false, err
		}
		out = append(out, key.NewTriggerKey(schedulerName, n, g))
	}
	more := len(out) > count
	if more {
		out = out[:count]
	}
	return out, more, rows.Err()
}

func (d *Delegate) SelectTriggerJobDataMap(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (map[string]any, error) {
	var jobDataJSON, triggerDataJSON []byte
	err := txOf(t).QueryRow(ctx, `
		SELECT jd.job_data, tr.job_data_map FROM qn_job_details jd
		JOIN qn_triggers tr ON tr.scheduler_name=jd.scheduler_name AND tr.job_group=jd.job_group AND tr.job_name=jd.job_name
		WHERE tr.scheduler_name=$1 AND tr.trigger_group=$2 AND tr.trigger_name=$3
	`, tk.SchedulerName, tk.Group, tk.Name).Scan(&jobDataJSON, &triggerDataJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var jobData, triggerData map[string]any
	if err := json.Unmarshal(jobDataJSON, &jobData); err != nil {
		return nil, err
	}
	if len(triggerDataJSON) > 0 {
		if err := json.Unmarshal(triggerDataJSON, &triggerData); err != nil {
			return nil, err
		}
	}
	return mergeJobData(jobData, triggerData), nil
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
	dataJSON, err := json.Marshal(job.JobData)
	if err != nil {
		return fmt.Errorf("marshal job data: %w", err)
	}
	_, err = txOf(t).Exec(ctx, `
		INSERT INTO qn_job_details (scheduler_name, job_group, job_name, impl_type, job_data, concurrent_exec_disallowed, persist_job_data, durable, requests_recovery)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, job.Key.SchedulerName, job.Key.Group, job.Key.Name, job.ImplType, dataJSON, job.ConcurrentExecutionDisallowed, job.PersistJobDataAfterExecution, job.Durable, job.RequestsRecovery)
	return err
}

func (d *Delegate) UpdateJobDetail(ctx context.Context, t delegate.Tx, job model.JobDetail) error {
	dataJSON, err := json.Marshal(job.JobData)
	if err != nil {
		return fmt.Errorf("marshal job data: %w", err)
	}
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_job_details SET impl_type=$4, job_data=$5, concurrent_exec_disallowed=$6, persist_job_data=$7, durable=$8, requests_recovery=$9
		WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3
	`, job.Key.SchedulerName, job.Key.Group, job.Key.Name, job.ImplType, dataJSON, job.ConcurrentExecutionDisallowed, job.PersistJobDataAfterExecution, job.Durable, job.RequestsRecovery)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storeerr.NotFound("job " + job.Key.String())
	}
	return nil
}

func (d *Delegate) InsertTrigger(ctx context.Context, t delegate.Tx, trg model.Trigger) error {
	spec := trigger.ToSpec(trg.Schedule)
	jobDataMapJSON, err := json.Marshal(trg.JobDataMap)
	if err != nil {
		return fmt.Errorf("marshal trigger job data map: %w", err)
	}
	_, err = txOf(t).Exec(ctx, `
		INSERT INTO qn_triggers (scheduler_name, trigger_group, trigger_name, job_group, job_name, calendar_name, priority,
			next_fire_time, prev_fire_time, misfire_instruction, state, fire_instance_id,
			schedule_kind, schedule_first_fire, schedule_repeat_interval_ms, schedule_repeat_count, schedule_cron_expr, job_data_map)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, trg.Key.SchedulerName, trg.Key.Group, trg.Key.Name, trg.JobKey.Group, trg.JobKey.Name, trg.CalendarName, trg.Priority,
		trg.NextFireTime, trg.PreviousFireTime, int(trg.MisfireInstruction), string(trg.State), trg.FireInstanceID,
		spec.Kind, nullableTime(spec.FirstFireTime), spec.RepeatInterval.Milliseconds(), spec.RepeatCount, spec.CronExpr, jobDataMapJSON)
	return err
}

func (d *Delegate) UpdateTrigger(ctx context.Context, t delegate.Tx, trg model.Trigger) error {
	spec := trigger.ToSpec(trg.Schedule)
	jobDataMapJSON, err := json.Marshal(trg.JobDataMap)
	if err != nil {
		return fmt.Errorf("marshal trigger job data map: %w", err)
	}
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_triggers SET job_group=$4, job_name=$5, calendar_name=$6, priority=$7,
			next_fire_time=$8, prev_fire_time=$9, misfire_instruction=$10, state=$11, fire_instance_id=$12,
			schedule_kind=$13, schedule_first_fire=$14, schedule_repeat_interval_ms=$15, schedule_repeat_count=$16, schedule_cron_expr=$17, job_data_map=$18
		WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3
	`, trg.Key.SchedulerName, trg.Key.Group, trg.Key.Name, trg.JobKey.Group, trg.JobKey.Name, trg.CalendarName, trg.Priority,
		trg.NextFireTime, trg.PreviousFireTime, int(trg.MisfireInstruction), string(trg.State), trg.FireInstanceID,
		spec.Kind, nullableTime(spec.FirstFireTime), spec.RepeatInterval.Milliseconds(), spec.RepeatCount, spec.CronExpr, jobDataMapJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storeerr.NotFound("trigger " + trg.Key.String())
	}
	return nil
}

func (d *Delegate) InsertCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string, spec model.CalendarSpec) error {
	datesJSON, err := json.Marshal(spec.ExcludedDates)
	if err != nil {
		return err
	}
	_, err = txOf(t).Exec(ctx, `INSERT INTO qn_calendars (scheduler_name, calendar_name, kind, excluded_dates) VALUES ($1,$2,$3,$4)`, schedulerName, name, spec.Kind, datesJSON)
	return err
}

func (d *Delegate) UpdateCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string, spec model.CalendarSpec) error {
	datesJSON, err := json.Marshal(spec.ExcludedDates)
	if err != nil {
		return err
	}
	_, err = txOf(t).Exec(ctx, `UPDATE qn_calendars SET kind=$3, excluded_dates=$4 WHERE scheduler_name=$1 AND calendar_name=$2`, schedulerName, name, spec.Kind, datesJSON)
	return err
}

func (d *Delegate) InsertFiredTrigger(ctx context.Context, t delegate.Tx, ft model.FiredTrigger) error {
	_, err := txOf(t).Exec(ctx, `
		INSERT INTO qn_fired_triggers (fire_instance_id, scheduler_name, scheduler_instance_id, trigger_group, trigger_name, job_group, job_name, state, priority, fired_time, scheduled_time, is_nonconcurrent, requests_recovery)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, ft.FireInstanceID, ft.TriggerKey.SchedulerName, ft.SchedulerInstanceID, ft.TriggerKey.Group, ft.TriggerKey.Name, ft.JobKey.Group, ft.JobKey.Name, string(ft.State), ft.Priority, ft.FiredTime, ft.ScheduledTime, ft.IsNonConcurrent, ft.RequestsRecovery)
	return err
}

func (d *Delegate) UpdateFiredTrigger(ctx context.Context, t delegate.Tx, ft model.FiredTrigger) error {
	_, err := txOf(t).Exec(ctx, `
		UPDATE qn_fired_triggers SET state=$2, fired_time=$3, scheduled_time=$4, is_nonconcurrent=$5, requests_recovery=$6
		WHERE fire_instance_id=$1
	`, ft.FireInstanceID, string(ft.State), ft.FiredTime, ft.ScheduledTime, ft.IsNonConcurrent, ft.RequestsRecovery)
	return err
}

func (d *Delegate) UpdateTriggerState(ctx context.Context, t delegate.Tx, tk key.TriggerKey, newState model.TriggerState) (int, error) {
	tag, err := txOf(t).Exec(ctx, `UPDATE qn_triggers SET state=$4 WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`, tk.SchedulerName, tk.Group, tk.Name, string(newState))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) UpdateTriggerStateFromOtherState(ctx context.Context, t delegate.Tx, tk key.TriggerKey, newState, oldState model.TriggerState) (int, error) {
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_triggers SET state=$4 WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3 AND state=$5
	`, tk.SchedulerName, tk.Group, tk.Name, string(newState), string(oldState))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) UpdateTriggerStatesFromOtherStates(ctx context.Context, t delegate.Tx, schedulerName string, newState, oldState1, oldState2 model.TriggerState) (int, error) {
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_triggers SET state=$2 WHERE scheduler_name=$1 AND (state=$3 OR state=$4)
	`, schedulerName, string(newState), string(oldState1), string(oldState2))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) UpdateTriggerGroupStateFromOtherState(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState model.TriggerState) (int, error) {
	where, args := matcherClause(matcher, 3)
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_triggers SET state=$2 WHERE scheduler_name=$1 AND state=$`+itoa(len(args)+3)+` AND `+where,
		append([]any{schedulerName, string(newState)}, append(args, string(oldState))...)...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) UpdateTriggerGroupStateFromOtherStates(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher, newState, oldState1, oldState2 model.TriggerState) (int, error) {
	where, args := matcherClause(matcher, 3)
	placeholder1 := itoa(len(args) + 3)
	placeholder2 := itoa(len(args) + 4)
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_triggers SET state=$2 WHERE scheduler_name=$1 AND (state=$`+placeholder1+` OR state=$`+placeholder2+`) AND `+where,
		append([]any{schedulerName, string(newState)}, append(args, string(oldState1), string(oldState2))...)...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) UpdateTriggerStatesForJob(ctx context.Context, t delegate.Tx, jk key.JobKey, newState model.TriggerState) (int, error) {
	tag, err := txOf(t).Exec(ctx, `UPDATE qn_triggers SET state=$4 WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`, jk.SchedulerName, jk.Group, jk.Name, string(newState))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) UpdateTriggerStatesForJobFromOtherState(ctx context.Context, t delegate.Tx, jk key.JobKey, newState, oldState model.TriggerState) (int, error) {
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_triggers SET state=$4 WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3 AND state=$5
	`, jk.SchedulerName, jk.Group, jk.Name, string(newState), string(oldState))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) InsertPausedTriggerGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) error {
	_, err := txOf(t).Exec(ctx, `INSERT INTO qn_paused_trigger_groups (scheduler_name, trigger_group) VALUES ($1,$2) ON CONFLICT DO NOTHING`, schedulerName, group)
	return err
}

func (d *Delegate) DeletePausedTriggerGroups(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error) {
	where, args := matcherClauseCol(matcher, "trigger_group", 2)
	rows, err := txOf(t).Query(ctx, `DELETE FROM qn_paused_trigger_groups WHERE scheduler_name=$1 AND `+where+` RETURNING trigger_group`, append([]any{schedulerName}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) IsTriggerGroupPaused(ctx context.Context, t delegate.Tx, schedulerName, group string) (bool, error) {
	var exists bool
	err := txOf(t).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qn_paused_trigger_groups WHERE scheduler_name=$1 AND trigger_group=$2)`, schedulerName, group).Scan(&exists)
	return exists, err
}

func (d *Delegate) InsertPausedJobGroup(ctx context.Context, t delegate.Tx, schedulerName, group string) error {
	_, err := txOf(t).Exec(ctx, `INSERT INTO qn_paused_job_groups (scheduler_name, job_group) VALUES ($1,$2) ON CONFLICT DO NOTHING`, schedulerName, group)
	return err
}

func (d *Delegate) DeletePausedJobGroups(ctx context.Context, t delegate.Tx, schedulerName string, matcher key.GroupMatcher) ([]string, error) {
	where, args := matcherClauseCol(matcher, "job_group", 2)
	rows, err := txOf(t).Query(ctx, `DELETE FROM qn_paused_job_groups WHERE scheduler_name=$1 AND `+where+` RETURNING job_group`, append([]any{schedulerName}, args...)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (d *Delegate) IsJobGroupPaused(ctx context.Context, t delegate.Tx, schedulerName, group string) (bool, error) {
	var exists bool
	err := txOf(t).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM qn_paused_job_groups WHERE scheduler_name=$1 AND job_group=$2)`, schedulerName, group).Scan(&exists)
	return exists, err
}

func (d *Delegate) DeleteTrigger(ctx context.Context, t delegate.Tx, tk key.TriggerKey) (bool, error) {
	tag, err := txOf(t).Exec(ctx, `DELETE FROM qn_triggers WHERE scheduler_name=$1 AND trigger_group=$2 AND trigger_name=$3`, tk.SchedulerName, tk.Group, tk.Name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (d *Delegate) DeleteJobDetail(ctx context.Context, t delegate.Tx, jk key.JobKey) (bool, error) {
	tag, err := txOf(t).Exec(ctx, `DELETE FROM qn_job_details WHERE scheduler_name=$1 AND job_group=$2 AND job_name=$3`, jk.SchedulerName, jk.Group, jk.Name)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (d *Delegate) DeleteCalendar(ctx context.Context, t delegate.Tx, schedulerName, name string) error {
	_, err := txOf(t).Exec(ctx, `DELETE FROM qn_calendars WHERE scheduler_name=$1 AND calendar_name=$2`, schedulerName, name)
	return err
}

func (d *Delegate) DeleteFiredTrigger(ctx context.Context, t delegate.Tx, fireInstanceID string) (bool, error) {
	tag, err := txOf(t).Exec(ctx, `DELETE FROM qn_fired_triggers WHERE fire_instance_id=$1`, fireInstanceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (d *Delegate) DeleteFiredTriggers(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) (int, error) {
	tag, err := txOf(t).Exec(ctx, `DELETE FROM qn_fired_triggers WHERE scheduler_name=$1 AND scheduler_instance_id=$2`, schedulerName, instanceID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) UpdateSchedulerState(ctx context.Context, t delegate.Tx, schedulerName, instanceID string, checkinTime time.Time, checkinInterval time.Duration) (int, error) {
	tag, err := txOf(t).Exec(ctx, `
		UPDATE qn_scheduler_state SET last_checkin_time=$3, checkin_interval_ms=$4 WHERE scheduler_name=$1 AND instance_id=$2
	`, schedulerName, instanceID, checkinTime, checkinInterval.Milliseconds())
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (d *Delegate) InsertSchedulerState(ctx context.Context, t delegate.Tx, schedulerName string, rec model.SchedulerStateRecord) error {
	_, err := txOf(t).Exec(ctx, `
		INSERT INTO qn_scheduler_state (scheduler_name, instance_id, last_checkin_time, checkin_interval_ms) VALUES ($1,$2,$3,$4)
		ON CONFLICT (scheduler_name, instance_id) DO UPDATE SET last_checkin_time=$3, checkin_interval_ms=$4
	`, schedulerName, rec.InstanceID, rec.LastCheckinTime, rec.CheckinInterval.Milliseconds())
	return err
}

func (d *Delegate) DeleteSchedulerState(ctx context.Context, t delegate.Tx, schedulerName, instanceID string) error {
	_, err := txOf(t).Exec(ctx, `DELETE FROM qn_scheduler_state WHERE scheduler_name=$1 AND instance_id=$2`, schedulerName, instanceID)
	return err
}

func (d *Delegate) ClearData(ctx context.Context, t delegate.Tx, schedulerName string) error {
	tx := txOf(t)
	for _, table := range []string{"qn_triggers", "qn_job_details", "qn_calendars", "qn_paused_trigger_groups", "qn_paused_job_groups", "qn_fired_triggers", "qn_scheduler_state"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE scheduler_name=$1`, schedulerName); err != nil {
			return err
		}
	}
	return nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanBoolSet(rows pgx.Rows) (map[string]bool, error) {
	out := map[string]bool{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out[s] = true
	}
	return out, rows.Err()
}

func matcherClause(m key.GroupMatcher, col int) (string, []any) {
	return matcherClauseCol(m, "trigger_group", col)
}

func matcherClauseCol(m key.GroupMatcher, col string, argStart int) (string, []any) {
	p := "$" + itoa(argStart)
	switch m.Operator {
	case key.MatchAnything:
		return "TRUE", nil
	case key.MatchStartsWith:
		return col + " LIKE " + p, []any{m.CompareToVal + "%"}
	case key.MatchEndsWith:
		return col + " LIKE " + p, []any{"%" + m.CompareToVal}
	case key.MatchContains:
		return col + " LIKE " + p, []any{"%" + m.CompareToVal + "%"}
	default:
		return col + " = " + p, []any{m.CompareToVal}
	}
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
