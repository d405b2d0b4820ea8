package redisdoc

import (
	"time"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/trigger"
)

// jobDoc is the JSON-on-the-wire shape for a JobDetail, keyed implicitly by
// its Redis key — group/name are not duplicated in the blob.
type jobDoc struct {
	ImplType                      string         `json:"implType"`
	JobData                       map[string]any `json:"jobData"`
	ConcurrentExecutionDisallowed bool           `json:"concurrentExecutionDisallowed"`
	PersistJobDataAfterExecution  bool           `json:"persistJobDataAfterExecution"`
	Durable                       bool           `json:"durable"`
	RequestsRecovery              bool           `json:"requestsRecovery"`
}

func toJobDoc(j model.JobDetail) jobDoc {
	return jobDoc{
		ImplType:                      j.ImplType,
		JobData:                       j.JobData,
		ConcurrentExecutionDisallowed: j.ConcurrentExecutionDisallowed,
		PersistJobDataAfterExecution:  j.PersistJobDataAfterExecution,
		Durable:                       j.Durable,
		RequestsRecovery:              j.RequestsRecovery,
	}
}

func (d jobDoc) toModel(jk key.JobKey) model.JobDetail {
	return model.JobDetail{
		Key:                            jk,
		ImplType:                       d.ImplType,
		JobData:                        d.JobData,
		ConcurrentExecutionDisallowed:  d.ConcurrentExecutionDisallowed,
		PersistJobDataAfterExecution:   d.PersistJobDataAfterExecution,
		Durable:                        d.Durable,
		RequestsRecovery:               d.RequestsRecovery,
	}
}

// triggerDoc is the JSON-on-the-wire shape for a Trigger; Schedule is
// flattened to its ScheduleSpec since the interface itself can't marshal.
type triggerDoc struct {
	JobGroup            string             `json:"jobGroup"`
	JobName             string             `json:"jobName"`
	CalendarName        string             `json:"calendarName"`
	Priority            int                `json:"priority"`
	NextFireTime        *time.Time         `json:"nextFireTime"`
	PreviousFireTime    *time.Time         `json:"previousFireTime"`
	MisfireInstruction  int                `json:"misfireInstruction"`
	State               string             `json:"state"`
	FireInstanceID      string             `json:"fireInstanceId"`
	Schedule            model.ScheduleSpec `json:"schedule"`
	JobDataMap          map[string]any     `json:"jobDataMap,omitempty"`
}

func toTriggerDoc(t model.Trigger) triggerDoc {
	return triggerDoc{
		JobGroup:           t.JobKey.Group,
		JobName:            t.JobKey.Name,
		CalendarName:       t.CalendarName,
		Priority:           t.Priority,
		NextFireTime:       t.NextFireTime,
		PreviousFireTime:   t.PreviousFireTime,
		MisfireInstruction: int(t.MisfireInstruction),
		State:              string(t.State),
		FireInstanceID:     t.FireInstanceID,
		Schedule:           trigger.ToSpec(t.Schedule),
		JobDataMap:         t.JobDataMap,
	}
}

func (d triggerDoc) toModel(tk key.TriggerKey) model.Trigger {
	return model.Trigger{
		Key:                 tk,
		JobKey:              key.NewJobKey(tk.SchedulerName, d.JobName, d.JobGroup),
		CalendarName:        d.CalendarName,
		Priority:            d.Priority,
		NextFireTime:        d.NextFireTime,
		PreviousFireTime:    d.PreviousFireTime,
		MisfireInstruction:  model.MisfireInstruction(d.MisfireInstruction),
		State:               model.TriggerState(d.State),
		FireInstanceID:      d.FireInstanceID,
		Schedule:            trigger.FromSpec(d.Schedule),
		JobDataMap:          d.JobDataMap,
	}
}

type firedDoc struct {
	SchedulerName       string `json:"schedulerName"`
	SchedulerInstanceID string `json:"schedulerInstanceId"`
	TriggerGroup        string `json:"triggerGroup"`
	TriggerName         string `json:"triggerName"`
	JobGroup            string `json:"jobGroup"`
	JobName             string `json:"jobName"`
	State               string `json:"state"`
	Priority            int    `json:"priority"`
	FiredTime           time.Time `json:"firedTime"`
	ScheduledTime       time.Time `json:"scheduledTime"`
	IsNonConcurrent     bool   `json:"isNonConcurrent"`
	RequestsRecovery    bool   `json:"requestsRecovery"`
}

func toFiredDoc(ft model.FiredTrigger) firedDoc {
	return firedDoc{
		SchedulerName:       ft.TriggerKey.SchedulerName,
		SchedulerInstanceID: ft.SchedulerInstanceID,
		TriggerGroup:        ft.TriggerKey.Group,
		TriggerName:         ft.TriggerKey.Name,
		JobGroup:            ft.JobKey.Group,
		JobName:             ft.JobKey.Name,
		State:               string(ft.State),
		Priority:            ft.Priority,
		FiredTime:           ft.FiredTime,
		ScheduledTime:       ft.ScheduledTime,
		IsNonConcurrent:     ft.IsNonConcurrent,
		RequestsRecovery:    ft.RequestsRecovery,
	}
}

func (d firedDoc) toModel(schedulerName, fireInstanceID string) model.FiredTrigger {
	return model.FiredTrigger{
		FireInstanceID:      fireInstanceID,
		SchedulerInstanceID: d.SchedulerInstanceID,
		TriggerKey:          key.NewTriggerKey(schedulerName, d.TriggerName, d.TriggerGroup),
		JobKey:              key.NewJobKey(schedulerName, d.JobName, d.JobGroup),
		State:               model.FiredTriggerState(d.State),
		Priority:            d.Priority,
		FiredTime:           d.FiredTime,
		ScheduledTime:       d.ScheduledTime,
		IsNonConcurrent:     d.IsNonConcurrent,
		RequestsRecovery:    d.RequestsRecovery,
	}
}

type calendarDoc struct {
	Kind          string      `json:"kind"`
	ExcludedDates []time.Time `json:"excludedDates"`
}

type schedStateDoc struct {
	LastCheckinTime time.Time `json:"lastCheckinTime"`
	CheckinInterval time.Duration `json:"checkinIntervalNs"`
}
