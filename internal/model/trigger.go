package model

import (
	"time"

	"github.com/d10n/quartznet/internal/key"
)

// Schedule is the opaque, type-specific firing policy a Trigger delegates
// to. Concrete trigger type implementations (SimpleTrigger's interval
// schedule, a cron schedule, ...) live in internal/trigger and satisfy this
// interface; the core never inspects which one it's holding.
type Schedule interface {
	// NextFireTime returns the first included fire time strictly after
	// afterTime, or nil if the schedule is exhausted.
	NextFireTime(afterTime time.Time) *time.Time
}

// Trigger is the persistent value shape of a trigger record (spec.md §3),
// generalized over any Schedule implementation.
type Trigger struct {
	Key                key.TriggerKey
	JobKey              key.JobKey
	CalendarName       string
	Priority           int
	NextFireTime       *time.Time
	PreviousFireTime   *time.Time
	MisfireInstruction MisfireInstruction
	State              TriggerState
	FireInstanceID     string
	Schedule           Schedule
	// JobDataMap carries trigger-specific job data that overlays the job's
	// own JobData at fire time (spec.md glossary: "trigger data map").
	// Recovery triggers use it to pass along the identity of the fire they
	// replace (see internal/jobstore/cluster.go).
	JobDataMap map[string]any
}

// DefaultPriority is used when a trigger does not specify one.
const DefaultPriority = 5

// Clone returns a shallow copy safe to hand back to callers without letting
// them mutate store-internal state through shared pointers.
func (t Trigger) Clone() Trigger {
	cp := t
	if t.NextFireTime != nil {
		nf := *t.NextFireTime
		cp.NextFireTime = &nf
	}
	if t.PreviousFireTime != nil {
		pf := *t.PreviousFireTime
		cp.PreviousFireTime = &pf
	}
	if t.JobDataMap != nil {
		cp.JobDataMap = make(map[string]any, len(t.JobDataMap))
		for k, v := range t.JobDataMap {
			cp.JobDataMap[k] = v
		}
	}
	return cp
}

// ComputeFirstFireTime asks the trigger's schedule for the first fire time
// after "now", skipping any time point the calendar excludes, and records
// it on the trigger. cal may be nil.
func (t *Trigger) ComputeFirstFireTime(cal Calendar, now time.Time) *time.Time {
	next := t.nextIncluded(cal, now)
	t.NextFireTime = next
	return next
}

// UpdateAfterMisfire recomputes NextFireTime per the trigger's
// MisfireInstruction (spec.md glossary: "Misfire instruction"). It never
// moves NextFireTime backward.
func (t *Trigger) UpdateAfterMisfire(cal Calendar, now time.Time) {
	switch t.MisfireInstruction {
	case MisfireInstructionIgnoreMisfirePolicy:
		return
	case MisfireInstructionFireNow:
		t.NextFireTime = &now
		return
	default: // SmartPolicy: skip forward to the next future fire.
		t.NextFireTime = t.nextIncluded(cal, now)
	}
}

// Triggered advances PreviousFireTime/NextFireTime one step, as called from
// triggersFired (spec.md §4.G step 3).
func (t *Trigger) Triggered(cal Calendar, now time.Time) (prev, next *time.Time) {
	prev = t.NextFireTime
	t.PreviousFireTime = prev
	t.NextFireTime = t.nextIncluded(cal, now)
	return prev, t.NextFireTime
}

// maxCalendarSkips bounds how many times we ask the schedule to jump past
// an excluded time before giving up and accepting the calendar's own
// suggestion; a pathological schedule/calendar pair should never hang the
// acquire loop.
const maxCalendarSkips = 10

func (t *Trigger) nextIncluded(cal Calendar, after time.Time) *time.Time {
	if t.Schedule == nil {
		return nil
	}
	candidate := t.Schedule.NextFireTime(after)
	for i := 0; i < maxCalendarSkips && candidate != nil && cal != nil && !cal.IsTimeIncluded(*candidate); i++ {
		skip := cal.NextIncludedTime(*candidate)
		candidate = t.Schedule.NextFireTime(skip)
	}
	return candidate
}
