package calendar

import (
	"testing"
	"time"

	"github.com/d10n/quartznet/internal/model"
)

func TestBaseIncludesEverything(t *testing.T) {
	b := Base{}
	now := time.Now()
	if !b.IsTimeIncluded(now) {
		t.Fatal("Base must never exclude a time")
	}
	if !b.NextIncludedTime(now).Equal(now) {
		t.Fatal("Base.NextIncludedTime must be identity")
	}
}

func TestHolidayExcludesWholeDay(t *testing.T) {
	day := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	h := NewHoliday([]time.Time{day})

	morning := time.Date(2026, 12, 25, 8, 0, 0, 0, time.UTC)
	evening := time.Date(2026, 12, 25, 23, 0, 0, 0, time.UTC)
	if h.IsTimeIncluded(morning) || h.IsTimeIncluded(evening) {
		t.Fatal("expected every hour of the excluded day to be excluded")
	}

	dayAfter := time.Date(2026, 12, 26, 0, 0, 0, 0, time.UTC)
	if !h.IsTimeIncluded(dayAfter) {
		t.Fatal("expected the day after the holiday to be included")
	}
}

func TestHolidayNextIncludedTimeSkipsForward(t *testing.T) {
	day := time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)
	h := NewHoliday([]time.Time{day})

	excludedInstant := time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC)
	next := h.NextIncludedTime(excludedInstant)
	if !h.IsTimeIncluded(next) {
		t.Fatalf("expected NextIncludedTime to land on an included day, got %v", next)
	}
	if next.Before(excludedInstant) {
		t.Fatalf("expected a time >= the input, got %v < %v", next, excludedInstant)
	}
}

func TestCalendarSpecRoundTripHoliday(t *testing.T) {
	days := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC),
	}
	orig := NewHoliday(days)

	spec := ToSpec(orig)
	if spec.Kind != "holiday" || len(spec.ExcludedDates) != 2 {
		t.Fatalf("unexpected spec: %+v", spec)
	}

	restored, ok := FromSpec(spec).(*Holiday)
	if !ok {
		t.Fatalf("expected *Holiday, got %T", FromSpec(spec))
	}
	for _, d := range days {
		if restored.IsTimeIncluded(d) {
			t.Fatalf("expected %v to remain excluded after round trip", d)
		}
	}
}

func TestCalendarSpecRoundTripBase(t *testing.T) {
	spec := ToSpec(Base{})
	if spec.Kind != "base" {
		t.Fatalf("expected kind base, got %q", spec.Kind)
	}
	restored := FromSpec(spec)
	if _, ok := restored.(Base); !ok {
		t.Fatalf("expected Base, got %T", restored)
	}
	if !restored.IsTimeIncluded(time.Now()) {
		t.Fatal("restored Base must include every time")
	}
}

var _ model.Calendar = Base{}
