package trigger

import "github.com/d10n/quartznet/internal/model"

// ToSpec converts a model.Schedule into its persisted representation.
func ToSpec(sch model.Schedule) model.ScheduleSpec {
	switch v := sch.(type) {
	case *SimpleSchedule:
		return model.ScheduleSpec{
			Kind:           "simple",
			FirstFireTime:  v.FirstFireTime,
			RepeatInterval: v.RepeatInterval,
			RepeatCount:    v.RepeatCount,
		}
	case *CronSchedule:
		return model.ScheduleSpec{Kind: "cron", CronExpr: v.String()}
	default:
		return model.ScheduleSpec{Kind: "simple"}
	}
}

// FromSpec reconstructs a model.Schedule from its persisted representation.
// An invalid cron expression falls back to a one-shot simple schedule at
// the zero time rather than failing the whole row load.
func FromSpec(s model.ScheduleSpec) model.Schedule {
	switch s.Kind {
	case "cron":
		if sch, err := NewCron(s.CronExpr); err == nil {
			return sch
		}
		return NewSimple(s.FirstFireTime, 0, 0)
	default:
		return NewSimple(s.FirstFireTime, s.RepeatInterval, s.RepeatCount)
	}
}
