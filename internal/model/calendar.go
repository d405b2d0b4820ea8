package model

import "time"

// Calendar is the capability spec.md §1 treats as an opaque collaborator:
// a set of excluded time ranges consulted when computing a trigger's next
// fire time.
type Calendar interface {
	// IsTimeIncluded reports whether t is NOT excluded by this calendar.
	IsTimeIncluded(t time.Time) bool
	// NextIncludedTime returns the earliest instant >= t that IsTimeIncluded
	// accepts.
	NextIncludedTime(t time.Time) time.Time
}
