package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/d10n/quartznet/internal/calendar"
	"github.com/d10n/quartznet/internal/clock"
	"github.com/d10n/quartznet/internal/delegate/memdelegate"
	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/lock"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/trigger"
	"github.com/d10n/quartznet/internal/txrunner"
)

func newTestStore(t *testing.T, now time.Time) (*Store, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(now)
	s, err := New(Config{InstanceName: "test-sched"}, memdelegate.New(), lock.NewInProcess(), fc, zerolog.Nop())
	require.NoError(t, err)
	return s, fc
}

func simpleJob(name string, opts ...func(*model.JobDetail)) model.JobDetail {
	j := model.JobDetail{
		Key:      key.NewJobKey("test-sched", name, key.DefaultGroup),
		ImplType: "noop",
	}
	for _, o := range opts {
		o(&j)
	}
	return j
}

func nonConcurrent(j *model.JobDetail) { j.ConcurrentExecutionDisallowed = true }
func durable(j *model.JobDetail)       { j.Durable = true }

func simpleTrigger(name, jobName string, first time.Time) model.Trigger {
	return model.Trigger{
		Key:      key.NewTriggerKey("test-sched", name, key.DefaultGroup),
		JobKey:   key.NewJobKey("test-sched", jobName, key.DefaultGroup),
		Priority: model.DefaultPriority,
		State:    model.StateWaiting,
		Schedule: trigger.NewSimple(first, 0, 0),
	}
}

func TestStoreJobRejectsDuplicateWithoutReplace(t *testing.T) {
	s, _ := newTestStore(t, time.Now())
	ctx := context.Background()
	job := simpleJob("j1")

	require.NoError(t, s.StoreJob(ctx, job, false))
	err := s.StoreJob(ctx, job, false)
	require.Error(t, err)

	require.NoError(t, s.StoreJob(ctx, job, true))
}

func TestStoreTriggerRejectsMissingJob(t *testing.T) {
	s, now := newTestStore(t, time.Now())
	ctx := context.Background()
	trg := simpleTrigger("t1", "missing-job", now.Now())
	err := s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false)
	require.Error(t, err)
}

func TestStoreTriggerRejectsDuplicateWithoutReplace(t *testing.T) {
	s, now := newTestStore(t, time.Now())
	ctx := context.Background()
	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))

	trg := simpleTrigger("t1", "j1", now.Now())
	trg.ComputeFirstFireTime(nil, now.Now())
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	err := s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false)
	require.Error(t, err)
}

func TestAcquireFireCompletePipelineOneShot(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, fc := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	trg := simpleTrigger("t1", "j1", start.Add(-30*time.Second))
	trg.ComputeFirstFireTime(nil, start.Add(-2*time.Minute))
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	acquired, err := s.AcquireNextTriggers(ctx, fc.Now().Add(time.Minute), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	bundles, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	require.Nil(t, bundles[0].NextFireTime, "one-shot trigger should have no further fire")

	require.NoError(t, s.TriggeredJobComplete(ctx, bundles[0].Trigger, bundles[0].Job, model.InstructionSetTriggerComplete))

	stored, err := s.RetrieveTrigger(ctx, trg.Key)
	require.NoError(t, err)
	require.Nil(t, stored, "a one-shot trigger completed with SetTriggerComplete is destroyed")

	storedJob, err := s.RetrieveJob(ctx, trg.JobKey)
	require.NoError(t, err)
	require.Nil(t, storedJob, "its non-durable job cascades away once its last trigger is gone")
}

func TestNonConcurrentJobBlocksSiblingTrigger(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, fc := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1", nonConcurrent), false))

	t1 := simpleTrigger("t1", "j1", start.Add(-30*time.Second))
	t1.ComputeFirstFireTime(nil, start.Add(-2*time.Minute))
	require.NoError(t, s.StoreTrigger(ctx, t1, nil, false, model.StateWaiting, false, false))

	t2 := simpleTrigger("t2", "j1", start.Add(-30*time.Second))
	t2.ComputeFirstFireTime(nil, start.Add(-2*time.Minute))
	require.NoError(t, s.StoreTrigger(ctx, t2, nil, false, model.StateWaiting, false, false))

	acquired, err := s.AcquireNextTriggers(ctx, fc.Now().Add(time.Minute), 10, time.Second)
	require.NoError(t, err)
	// Only one trigger of a non-concurrent job may be acquired per pass.
	require.Len(t, acquired, 1)

	bundles, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.Len(t, bundles, 1)

	other := t2.Key
	if bundles[0].Trigger.Key == t2.Key {
		other = t1.Key
	}
	st, err := s.GetTriggerState(ctx, other)
	require.NoError(t, err)
	require.Equal(t, model.ExtBlocked, st)

	require.NoError(t, s.TriggeredJobComplete(ctx, bundles[0].Trigger, bundles[0].Job, model.InstructionSetTriggerComplete))

	st, err = s.GetTriggerState(ctx, other)
	require.NoError(t, err)
	require.Equal(t, model.ExtNormal, st, "sibling should unblock once the fired trigger completes")

	fired, err := s.RetrieveTrigger(ctx, bundles[0].Trigger.Key)
	require.NoError(t, err)
	require.Nil(t, fired, "the completed one-shot trigger itself should be destroyed")

	storedJob, err := s.RetrieveJob(ctx, bundles[0].Job.Key)
	require.NoError(t, err)
	require.NotNil(t, storedJob, "the job survives because its sibling trigger still references it")
}

func TestPauseTriggerThenResume(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	trg := simpleTrigger("t1", "j1", start.Add(time.Hour))
	trg.ComputeFirstFireTime(nil, start)
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	require.NoError(t, s.PauseTrigger(ctx, trg.Key))
	st, err := s.GetTriggerState(ctx, trg.Key)
	require.NoError(t, err)
	require.Equal(t, model.ExtPaused, st)

	require.NoError(t, s.ResumeTrigger(ctx, trg.Key))
	st, err = s.GetTriggerState(ctx, trg.Key)
	require.NoError(t, err)
	require.Equal(t, model.ExtNormal, st)
}

func TestPauseJobPausesEveryTrigger(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	t1 := simpleTrigger("t1", "j1", start.Add(time.Hour))
	t1.ComputeFirstFireTime(nil, start)
	t2 := simpleTrigger("t2", "j1", start.Add(time.Hour))
	t2.ComputeFirstFireTime(nil, start)
	require.NoError(t, s.StoreTrigger(ctx, t1, nil, false, model.StateWaiting, false, false))
	require.NoError(t, s.StoreTrigger(ctx, t2, nil, false, model.StateWaiting, false, false))

	jk := key.NewJobKey("test-sched", "j1", key.DefaultGroup)
	require.NoError(t, s.PauseJob(ctx, jk))

	for _, tk := range []key.TriggerKey{t1.Key, t2.Key} {
		st, err := s.GetTriggerState(ctx, tk)
		require.NoError(t, err)
		require.Equal(t, model.ExtPaused, st)
	}
}

func TestStoringTriggerIntoPausedGroupForcesPaused(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	_, err := s.PauseTriggers(ctx, key.GroupEquals(key.DefaultGroup))
	require.NoError(t, err)

	trg := simpleTrigger("t1", "j1", start.Add(time.Hour))
	trg.ComputeFirstFireTime(nil, start)
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	st, err := s.GetTriggerState(ctx, trg.Key)
	require.NoError(t, err)
	require.Equal(t, model.ExtPaused, st)
}

func TestRemoveTriggerDeletesNonDurableJobWhenLastTriggerGone(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	trg := simpleTrigger("t1", "j1", start.Add(time.Hour))
	trg.ComputeFirstFireTime(nil, start)
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	removed, err := s.RemoveTrigger(ctx, trg.Key)
	require.NoError(t, err)
	require.True(t, removed)

	job, err := s.RetrieveJob(ctx, key.NewJobKey("test-sched", "j1", key.DefaultGroup))
	require.NoError(t, err)
	require.Nil(t, job, "non-durable job with no remaining triggers should be deleted")
}

func TestRemoveTriggerKeepsDurableJob(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1", durable), false))
	trg := simpleTrigger("t1", "j1", start.Add(time.Hour))
	trg.ComputeFirstFireTime(nil, start)
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	_, err := s.RemoveTrigger(ctx, trg.Key)
	require.NoError(t, err)

	job, err := s.RetrieveJob(ctx, key.NewJobKey("test-sched", "j1", key.DefaultGroup))
	require.NoError(t, err)
	require.NotNil(t, job, "durable job should survive its last trigger's removal")
}

func TestRecoverMisfiresReschedulesPastDueWaitingTrigger(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, fc := newTestStore(t, start)
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	// Repeating trigger, already due well before the misfire threshold.
	trg := model.Trigger{
		Key:      key.NewTriggerKey("test-sched", "t1", key.DefaultGroup),
		JobKey:   key.NewJobKey("test-sched", "j1", key.DefaultGroup),
		Priority: model.DefaultPriority,
		State:    model.StateWaiting,
		Schedule: trigger.NewSimple(start.Add(-time.Hour), time.Minute, trigger.RepeatForever),
	}
	trg.ComputeFirstFireTime(nil, start.Add(-2*time.Hour))
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	fc.Set(start)
	recovered, err := s.RecoverMisfires(ctx)
	require.NoError(t, err)
	require.True(t, recovered)

	stored, err := s.RetrieveTrigger(ctx, trg.Key)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, model.StateWaiting, stored.State)
	require.NotNil(t, stored.NextFireTime)
	require.True(t, stored.NextFireTime.After(start.Add(-time.Minute)), "misfire recovery should skip forward, never backward")
}

func TestCalendarStoreRetrieveAndReferencedGuard(t *testing.T) {
	s, _ := newTestStore(t, time.Now())
	ctx := context.Background()

	hol := calendar.NewHoliday([]time.Time{time.Date(2026, 12, 25, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, s.StoreCalendar(ctx, "holidays", hol, false, false))

	got, err := s.RetrieveCalendar(ctx, "holidays")
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	trg := simpleTrigger("t1", "j1", time.Now().Add(time.Hour))
	trg.CalendarName = "holidays"
	trg.ComputeFirstFireTime(hol, time.Now())
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	_, err = s.RemoveCalendar(ctx, "holidays")
	require.Error(t, err, "a calendar referenced by a trigger must not be removable")

	_, err = s.RemoveTrigger(ctx, trg.Key)
	require.NoError(t, err)

	removed, err := s.RemoveCalendar(ctx, "holidays")
	require.NoError(t, err)
	require.True(t, removed)
}

func TestCheckClusterRecoversFailedPeer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, fc := newTestStore(t, start)
	ctx := context.Background()

	// First check-in establishes this instance's own scheduler-state row
	// and consumes the "first checkin" escalation.
	_, err := s.CheckCluster(ctx)
	require.NoError(t, err)

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	trg := simpleTrigger("t1", "j1", start.Add(-30*time.Second))
	trg.ComputeFirstFireTime(nil, start.Add(-2*time.Minute))
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	acquired, err := s.AcquireNextTriggers(ctx, fc.Now().Add(time.Minute), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	st, err := s.GetTriggerState(ctx, trg.Key)
	require.NoError(t, err)
	require.Equal(t, model.ExtNormal, st, "an acquired trigger still reports as NORMAL externally")

	// Simulate a peer that acquired this same trigger and then vanished:
	// a stale SchedulerStateRecord plus the FiredTrigger row it would have
	// owned, inserted directly through the delegate the way a real
	// cluster-recovery scenario would leave them.
	const peerID = "peer-down"
	_, err = txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (struct{}, error) {
		if err := s.runner.Delegate.InsertSchedulerState(c, c.Tx, s.schedulerName(), model.SchedulerStateRecord{
			InstanceID:      peerID,
			LastCheckinTime: start.Add(-time.Hour),
			CheckinInterval: 15 * time.Second,
		}); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.runner.Delegate.InsertFiredTrigger(c, c.Tx, model.FiredTrigger{
			FireInstanceID:      "peer-fire-1",
			SchedulerInstanceID: peerID,
			TriggerKey:          trg.Key,
			JobKey:              trg.JobKey,
			State:               model.FiredAcquired,
			FiredTime:           start.Add(-time.Hour),
			ScheduledTime:       start.Add(-time.Hour),
		})
	})
	require.NoError(t, err)

	recovered, err := s.CheckCluster(ctx)
	require.NoError(t, err)
	require.True(t, recovered, "a stale peer should trigger a recovery pass")

	st, err = s.GetTriggerState(ctx, trg.Key)
	require.NoError(t, err)
	require.Equal(t, model.ExtNormal, st, "the orphaned trigger should be released back to waiting")

	stored, err := s.RetrieveTrigger(ctx, trg.Key)
	require.NoError(t, err)
	require.Equal(t, model.StateWaiting, stored.State)
}

func requestsRecovery(j *model.JobDetail) { j.RequestsRecovery = true }

func TestCheckClusterBuildsRecoveryTriggerForLostFire(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, _ := newTestStore(t, start)
	ctx := context.Background()

	_, err := s.CheckCluster(ctx)
	require.NoError(t, err)

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1", requestsRecovery), false))
	trg := simpleTrigger("t1", "j1", start.Add(-time.Minute))
	trg.ComputeFirstFireTime(nil, start.Add(-2*time.Minute))
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	const peerID = "peer-down"
	const lostFireID = "peer-fire-1"
	lostScheduledTime := start.Add(-time.Hour)
	_, err = txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (struct{}, error) {
		if err := s.runner.Delegate.InsertSchedulerState(c, c.Tx, s.schedulerName(), model.SchedulerStateRecord{
			InstanceID:      peerID,
			LastCheckinTime: start.Add(-time.Hour),
			CheckinInterval: 15 * time.Second,
		}); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.runner.Delegate.InsertFiredTrigger(c, c.Tx, model.FiredTrigger{
			FireInstanceID:      lostFireID,
			SchedulerInstanceID: peerID,
			TriggerKey:          trg.Key,
			JobKey:              trg.JobKey,
			State:               model.FiredExecuting,
			FiredTime:           lostScheduledTime,
			ScheduledTime:       lostScheduledTime,
			RequestsRecovery:    true,
		})
	})
	require.NoError(t, err)

	recovered, err := s.CheckCluster(ctx)
	require.NoError(t, err)
	require.True(t, recovered, "a stale peer owning a requests-recovery job should trigger a recovery pass")

	recTk := key.NewTriggerKey(s.schedulerName(), "recover-"+lostFireID, key.DefaultRecoveryGroup)
	recTrg, err := s.RetrieveTrigger(ctx, recTk)
	require.NoError(t, err)
	require.NotNil(t, recTrg, "a recovery trigger should have been stored for the lost fire")
	require.Equal(t, model.StateWaiting, recTrg.State)
	require.Equal(t, trg.Key.Name, recTrg.JobDataMap["recoveredTriggerName"])
	require.Equal(t, trg.Key.Group, recTrg.JobDataMap["recoveredTriggerGroup"])
	require.Equal(t, lostScheduledTime, recTrg.JobDataMap["recoveredFireTime"])

	firedJobData, err := s.runner.Delegate.SelectTriggerJobDataMap(ctx, nil, recTk)
	require.NoError(t, err)
	require.Equal(t, trg.Key.Name, firedJobData["recoveredTriggerName"])
}

func TestClearAllSchedulingData(t *testing.T) {
	s, _ := newTestStore(t, time.Now())
	ctx := context.Background()

	require.NoError(t, s.StoreJob(ctx, simpleJob("j1"), false))
	trg := simpleTrigger("t1", "j1", time.Now().Add(time.Hour))
	trg.ComputeFirstFireTime(nil, time.Now())
	require.NoError(t, s.StoreTrigger(ctx, trg, nil, false, model.StateWaiting, false, false))

	require.NoError(t, s.ClearAllSchedulingData(ctx))

	n, err := s.GetNumberOfJobs(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	n, err = s.GetNumberOfTriggers(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
