package trigger

import (
	"testing"
	"time"

	"github.com/d10n/quartznet/internal/model"
)

func TestSimpleScheduleOneShot(t *testing.T) {
	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSimple(first, 0, 0)

	next := s.NextFireTime(first.Add(-time.Minute))
	if next == nil || !next.Equal(first) {
		t.Fatalf("expected first fire at %v, got %v", first, next)
	}

	next = s.NextFireTime(first)
	if next != nil {
		t.Fatalf("expected no further fires for a one-shot schedule, got %v", next)
	}
}

func TestSimpleScheduleRepeatCount(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSimple(first, time.Minute, 2)

	next := s.NextFireTime(first)
	if next == nil || !next.Equal(first.Add(time.Minute)) {
		t.Fatalf("expected second fire one minute later, got %v", next)
	}

	next = s.NextFireTime(first.Add(time.Minute))
	if next == nil || !next.Equal(first.Add(2 * time.Minute)) {
		t.Fatalf("expected third fire two minutes later, got %v", next)
	}

	next = s.NextFireTime(first.Add(2 * time.Minute))
	if next != nil {
		t.Fatalf("expected schedule exhausted after RepeatCount fires, got %v", next)
	}
}

func TestSimpleScheduleRepeatForever(t *testing.T) {
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewSimple(first, time.Hour, RepeatForever)

	after := first.Add(100 * time.Hour)
	next := s.NextFireTime(after)
	if next == nil {
		t.Fatal("expected a RepeatForever schedule to never exhaust")
	}
	if !next.After(after) {
		t.Fatalf("expected next fire strictly after %v, got %v", after, next)
	}
}

func TestCronScheduleAdvancesPastAfter(t *testing.T) {
	c, err := NewCron("0 0 * * *")
	if err != nil {
		t.Fatalf("parse cron: %v", err)
	}
	after := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)
	next := c.NextFireTime(after)
	if next == nil {
		t.Fatal("expected a next fire time")
	}
	want := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
}

func TestCronScheduleRejectsInvalidExpression(t *testing.T) {
	if _, err := NewCron("not a cron expression"); err == nil {
		t.Fatal("expected an error for an invalid cron expression")
	}
}

func TestScheduleSpecRoundTripSimple(t *testing.T) {
	first := time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC)
	orig := NewSimple(first, 5*time.Minute, 3)

	spec := ToSpec(orig)
	if spec.Kind != "simple" {
		t.Fatalf("expected kind simple, got %q", spec.Kind)
	}

	restored, ok := FromSpec(spec).(*SimpleSchedule)
	if !ok {
		t.Fatalf("expected *SimpleSchedule, got %T", FromSpec(spec))
	}
	if !restored.FirstFireTime.Equal(orig.FirstFireTime) || restored.RepeatInterval != orig.RepeatInterval || restored.RepeatCount != orig.RepeatCount {
		t.Fatalf("round trip mismatch: got %+v, want %+v", restored, orig)
	}
}

func TestScheduleSpecRoundTripCron(t *testing.T) {
	orig, err := NewCron("*/5 * * * *")
	if err != nil {
		t.Fatalf("parse cron: %v", err)
	}

	spec := ToSpec(orig)
	if spec.Kind != "cron" || spec.CronExpr != "*/5 * * * *" {
		t.Fatalf("unexpected spec: %+v", spec)
	}

	restored, ok := FromSpec(spec).(*CronSchedule)
	if !ok {
		t.Fatalf("expected *CronSchedule, got %T", FromSpec(spec))
	}
	if restored.String() != orig.String() {
		t.Fatalf("expected cron expression %q, got %q", orig.String(), restored.String())
	}
}

func TestScheduleSpecRoundTripInvalidCronFallsBackToSimple(t *testing.T) {
	spec := model.ScheduleSpec{Kind: "cron", CronExpr: "garbage"}
	restored, ok := FromSpec(spec).(*SimpleSchedule)
	if !ok {
		t.Fatalf("expected fallback to *SimpleSchedule, got %T", FromSpec(spec))
	}
	if restored.RepeatCount != 0 {
		t.Fatalf("expected a one-shot fallback, got RepeatCount=%d", restored.RepeatCount)
	}
}
