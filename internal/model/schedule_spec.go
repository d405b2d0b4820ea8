package model

import "time"

// ScheduleSpec is the persisted, serialization-friendly shape of a
// Schedule. Schedule implementations are opaque collaborators per spec.md
// §1; this tagged struct is what delegates actually store, and
// internal/trigger knows how to convert between the two.
type ScheduleSpec struct {
	Kind string

	// SimpleSchedule fields.
	FirstFireTime  time.Time
	RepeatInterval time.Duration
	RepeatCount    int

	// CronSchedule fields.
	CronExpr string
}
