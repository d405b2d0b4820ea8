package model

import "time"

// CalendarSpec is the persisted, serialization-friendly shape of a
// Calendar. Calendar implementations themselves are opaque collaborators
// per spec.md §1; this tagged struct is what delegates actually store, and
// internal/calendar knows how to convert between the two.
type CalendarSpec struct {
	Kind          string
	ExcludedDates []time.Time // day-granularity, for Kind=="holiday"
}
