// Package calendar supplies the concrete Calendar fixtures spec.md §1 treats
// as an opaque collaborator, plus the conversion to/from the persisted
// model.CalendarSpec shape.
package calendar

import (
	"time"

	"github.com/d10n/quartznet/internal/model"
)

// Base never excludes anything; every instant is included.
type Base struct{}

func (Base) IsTimeIncluded(time.Time) bool           { return true }
func (Base) NextIncludedTime(t time.Time) time.Time { return t }

// Holiday excludes whole days.
type Holiday struct {
	excluded map[string]bool
}

// NewHoliday builds a Holiday calendar excluding the given days (time of
// day is ignored; only the date matters).
func NewHoliday(days []time.Time) *Holiday {
	h := &Holiday{excluded: make(map[string]bool, len(days))}
	for _, d := range days {
		h.excluded[dateKey(d)] = true
	}
	return h
}

func dateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (h *Holiday) IsTimeIncluded(t time.Time) bool {
	return !h.excluded[dateKey(t)]
}

func (h *Holiday) NextIncludedTime(t time.Time) time.Time {
	cur := t
	for i := 0; i < 3650; i++ { // bounded: never loop more than 10 years of days
		if h.IsTimeIncluded(cur) {
			return cur
		}
		cur = time.Date(cur.Year(), cur.Month(), cur.Day()+1, 0, 0, 0, 0, cur.Location())
	}
	return cur
}

// Days returns the excluded dates, for ToSpec.
func (h *Holiday) Days() []time.Time {
	out := make([]time.Time, 0, len(h.excluded))
	for k := range h.excluded {
		t, err := time.Parse("2006-01-02", k)
		if err == nil {
			out = append(out, t)
		}
	}
	return out
}

// ToSpec converts a Calendar into its persisted representation.
func ToSpec(c model.Calendar) model.CalendarSpec {
	switch v := c.(type) {
	case *Holiday:
		return model.CalendarSpec{Kind: "holiday", ExcludedDates: v.Days()}
	default:
		return model.CalendarSpec{Kind: "base"}
	}
}

// FromSpec reconstructs a Calendar from its persisted representation.
func FromSpec(s model.CalendarSpec) model.Calendar {
	switch s.Kind {
	case "holiday":
		return NewHoliday(s.ExcludedDates)
	default:
		return Base{}
	}
}
