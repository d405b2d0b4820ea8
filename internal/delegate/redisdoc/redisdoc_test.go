package redisdoc

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/trigger"
)

func newTestDelegate(t *testing.T) *Delegate {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewWithClient(client)
}

func TestJobInsertExistsRetrieveDelete(t *testing.T) {
	d := newTestDelegate(t)
	ctx := context.Background()
	tx, _ := d.Begin(ctx)

	jk := key.NewJobKey("sched", "job1", key.DefaultGroup)
	job := model.JobDetail{Key: jk, ImplType: "noop", Durable: true}

	if err := d.InsertJobDetail(ctx, tx, job); err != nil {
		t.Fatalf("insert: %v", err)
	}
	exists, err := d.JobExists(ctx, tx, jk)
	if err != nil || !exists {
		t.Fatalf("expected job to exist, err=%v exists=%v", err, exists)
	}

	got, err := d.SelectJobDetail(ctx, tx, jk)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if got == nil || got.ImplType != "noop" {
		t.Fatalf("unexpected job: %+v", got)
	}

	removed, err := d.DeleteJobDetail(ctx, tx, jk)
	if err != nil || !removed {
		t.Fatalf("delete: err=%v removed=%v", err, removed)
	}
	exists, err = d.JobExists(ctx, tx, jk)
	if err != nil || exists {
		t.Fatalf("expected job to be gone, err=%v exists=%v", err, exists)
	}
}

func TestTriggerInsertSelectStateTransition(t *testing.T) {
	d := newTestDelegate(t)
	ctx := context.Background()
	tx, _ := d.Begin(ctx)

	jk := key.NewJobKey("sched", "job1", key.DefaultGroup)
	if err := d.InsertJobDetail(ctx, tx, model.JobDetail{Key: jk, ImplType: "noop"}); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	tk := key.NewTriggerKey("sched", "trig1", key.DefaultGroup)
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trg := model.Trigger{
		Key:          tk,
		JobKey:       jk,
		State:        model.StateWaiting,
		NextFireTime: &first,
		Schedule:     trigger.NewSimple(first, 0, 0),
	}
	if err := d.InsertTrigger(ctx, tx, trg); err != nil {
		t.Fatalf("insert trigger: %v", err)
	}

	rows, err := d.UpdateTriggerStateFromOtherState(ctx, tx, tk, model.StateAcquired, model.StateWaiting)
	if err != nil || rows != 1 {
		t.Fatalf("expected exactly one row updated, got rows=%d err=%v", rows, err)
	}

	st, err := d.SelectTriggerState(ctx, tx, tk)
	if err != nil || st != model.StateAcquired {
		t.Fatalf("expected Acquired, got %v err=%v", st, err)
	}

	// A transition from the wrong source state must not apply.
	rows, err = d.UpdateTriggerStateFromOtherState(ctx, tx, tk, model.StateComplete, model.StateWaiting)
	if err != nil || rows != 0 {
		t.Fatalf("expected zero rows updated for a stale source state, got rows=%d err=%v", rows, err)
	}
}

func TestSelectTriggerToAcquireOrdersByFireTimeThenPriority(t *testing.T) {
	d := newTestDelegate(t)
	ctx := context.Background()
	tx, _ := d.Begin(ctx)

	jk := key.NewJobKey("sched", "job1", key.DefaultGroup)
	if err := d.InsertJobDetail(ctx, tx, model.JobDetail{Key: jk, ImplType: "noop"}); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(name string, at time.Time, priority int) {
		tk := key.NewTriggerKey("sched", name, key.DefaultGroup)
		trg := model.Trigger{
			Key: tk, JobKey: jk, State: model.StateWaiting,
			NextFireTime: &at, Priority: priority,
			Schedule: trigger.NewSimple(at, 0, 0),
		}
		if err := d.InsertTrigger(ctx, tx, trg); err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
	}
	mk("late", base.Add(2*time.Minute), 5)
	mk("early", base.Add(time.Minute), 5)
	mk("early-high-priority", base.Add(time.Minute), 10)

	keys, err := d.SelectTriggerToAcquire(ctx, tx, "sched", base.Add(5*time.Minute), base.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("select to acquire: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(keys))
	}
	if keys[0].Name != "early-high-priority" {
		t.Fatalf("expected the earlier, higher-priority trigger first, got %q", keys[0].Name)
	}
	if keys[1].Name != "early" {
		t.Fatalf("expected the second-earliest trigger next, got %q", keys[1].Name)
	}
	if keys[2].Name != "late" {
		t.Fatalf("expected the latest trigger last, got %q", keys[2].Name)
	}
}

func TestPausedTriggerGroupRoundTrip(t *testing.T) {
	d := newTestDelegate(t)
	ctx := context.Background()
	tx, _ := d.Begin(ctx)

	if err := d.InsertPausedTriggerGroup(ctx, tx, "sched", "grp"); err != nil {
		t.Fatalf("insert paused group: %v", err)
	}
	paused, err := d.IsTriggerGroupPaused(ctx, tx, "sched", "grp")
	if err != nil || !paused {
		t.Fatalf("expected group to be paused, err=%v paused=%v", err, paused)
	}

	removed, err := d.DeletePausedTriggerGroups(ctx, tx, "sched", key.GroupEquals("grp"))
	if err != nil || len(removed) != 1 {
		t.Fatalf("expected one group removed, got %v err=%v", removed, err)
	}
	paused, err = d.IsTriggerGroupPaused(ctx, tx, "sched", "grp")
	if err != nil || paused {
		t.Fatalf("expected group to no longer be paused, err=%v paused=%v", err, paused)
	}
}

func TestRowLockSerializesTwoHolders(t *testing.T) {
	d := newTestDelegate(t)
	ctx := context.Background()

	if err := d.ObtainRowLock(ctx, nil, "sched", "TRIGGER_ACCESS"); err != nil {
		t.Fatalf("first obtain: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		done <- d.ObtainRowLock(cctx, nil, "sched", "TRIGGER_ACCESS")
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected the second obtain to block while the key is still set")
		}
	case <-time.After(time.Second):
		t.Fatal("second obtain neither blocked nor returned")
	}
}

func TestClearDataRemovesEverythingForScheduler(t *testing.T) {
	d := newTestDelegate(t)
	ctx := context.Background()
	tx, _ := d.Begin(ctx)

	jk := key.NewJobKey("sched", "job1", key.DefaultGroup)
	if err := d.InsertJobDetail(ctx, tx, model.JobDetail{Key: jk, ImplType: "noop"}); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	tk := key.NewTriggerKey("sched", "trig1", key.DefaultGroup)
	now := time.Now()
	if err := d.InsertTrigger(ctx, tx, model.Trigger{
		Key: tk, JobKey: jk, State: model.StateWaiting, NextFireTime: &now,
		Schedule: trigger.NewSimple(now, 0, 0),
	}); err != nil {
		t.Fatalf("insert trigger: %v", err)
	}

	if err := d.ClearData(ctx, tx, "sched"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	n, err := d.SelectNumJobs(ctx, tx, "sched")
	if err != nil || n != 0 {
		t.Fatalf("expected zero jobs after clear, got %d err=%v", n, err)
	}
	n, err = d.SelectNumTriggers(ctx, tx, "sched")
	if err != nil || n != 0 {
		t.Fatalf("expected zero triggers after clear, got %d err=%v", n, err)
	}
}
