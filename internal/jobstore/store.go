// Package jobstore implements the core described in spec.md: the trigger
// state machine, the acquire/fire/complete pipeline, misfire handling,
// cluster check-in/recovery, and pause/resume — all expressed purely in
// terms of the delegate.Delegate port and the lock.Manager it is given.
package jobstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/d10n/quartznet/internal/calendar"
	"github.com/d10n/quartznet/internal/clock"
	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/lock"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/signaler"
	"github.com/d10n/quartznet/internal/storeerr"
	"github.com/d10n/quartznet/internal/txrunner"
)

// MaxDoLoopRetry bounds how many query passes acquireNextTriggers makes; a
// further pass runs only when the previous one made progress and the batch
// is not yet full (spec.md §4.G).
const MaxDoLoopRetry = 3

// Store is the core job store. It is safe for concurrent use from many
// goroutines, mirroring the "consumed by a multi-threaded scheduler"
// model in spec.md §5.
type Store struct {
	cfg   Config
	clock clock.Clock
	log   zerolog.Logger

	runner *txrunner.Runner

	mu          sync.RWMutex
	typeLoader  signaler.TypeLoader
	sig         signaler.Signaler
	lifecycle   model.SchedulerLifecycleState
	firstCheckin bool

	fireCounter uint64
	fireCounterMu sync.Mutex

	// calCache is the non-clustered calendar cache from spec.md §5; it is
	// never consulted when cfg.Clustered is true.
	calCacheMu sync.Mutex
	calCache   map[string]model.Calendar
}

// New constructs a Store. lockMgr must be a store-backed lock.Manager when
// cfg.Clustered is true (spec.md §4.D: "mandatory").
func New(cfg Config, d delegate.Delegate, lockMgr lock.Manager, clk clock.Clock, log zerolog.Logger) (*Store, error) {
	cfg = cfg.WithDefaults()
	if cfg.InstanceName == "" {
		return nil, storeerr.Config("instanceName is required")
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Clustered && !cfg.UseDBLocks {
		return nil, storeerr.Config("clustered scheduler requires a store-backed lock manager")
	}
	if clk == nil {
		clk = clock.Real{}
	}

	s := &Store{
		cfg:          cfg,
		clock:        clk,
		log:          log,
		lifecycle:    model.LifecycleInitialized,
		firstCheckin: true,
		calCache:     map[string]model.Calendar{},
	}
	s.runner = &txrunner.Runner{
		Delegate:                    d,
		Locks:                       lockMgr,
		Log:                         log,
		DBRetryInterval:             cfg.DBRetryInterval,
		RetryableActionLogThreshold: cfg.RetryableActionErrorLogThreshold,
	}
	return s, nil
}

// Initialize wires the two consumed interfaces spec.md §6 requires before
// any other method is called.
func (s *Store) Initialize(typeLoader signaler.TypeLoader, sig signaler.Signaler) {
	s.mu.Lock()
	s.typeLoader = typeLoader
	s.sig = sig
	s.mu.Unlock()
	s.runner.Signaler = sig
}

func (s *Store) signaler() signaler.Signaler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sig == nil {
		return signaler.NopSignaler{}
	}
	return s.sig
}

func (s *Store) SchedulerStarted(ctx context.Context) error {
	s.setLifecycle(model.LifecycleStarted)
	return s.RecoverJobs(ctx)
}

func (s *Store) SchedulerPaused()  { s.setLifecycle(model.LifecyclePaused) }
func (s *Store) SchedulerResumed() { s.setLifecycle(model.LifecycleResumed) }

func (s *Store) Shutdown() {
	s.setLifecycle(model.LifecycleShutdown)
	s.runner.Shutdown()
}

func (s *Store) setLifecycle(st model.SchedulerLifecycleState) {
	s.mu.Lock()
	s.lifecycle = st
	s.mu.Unlock()
}

func (s *Store) Lifecycle() model.SchedulerLifecycleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lifecycle
}

func (s *Store) now() time.Time { return s.clock.Now() }

// nextFireInstanceID assigns a fire instance id that is monotonic within
// this process and unique across the cluster by combining the instance id
// with a process-local counter (spec.md §4.G step g).
func (s *Store) nextFireInstanceID() string {
	s.fireCounterMu.Lock()
	s.fireCounter++
	n := s.fireCounter
	s.fireCounterMu.Unlock()
	return s.cfg.InstanceID + "-" + time.Now().UTC().Format("20060102150405") + "-" + itoaFast(n)
}

func itoaFast(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// acquireLockType decides, per spec.md §4.G, whether acquireNextTriggers
// needs TRIGGER_ACCESS or can run lock-free.
func (s *Store) acquireLockType(maxCount int) txrunner.LockType {
	if s.cfg.Clustered || maxCount > 1 || s.cfg.AcquireTriggersWithinLock {
		return txrunner.LockTrigger
	}
	return txrunner.LockNone
}

// resolveCalendar loads a calendar by name, consulting the non-clustered
// cache first (spec.md §5).
func (s *Store) resolveCalendar(c *txrunner.Ctx, schedulerName, name string) (model.Calendar, bool, error) {
	if name == "" {
		return calendar.Base{}, true, nil
	}
	if !s.cfg.Clustered {
		s.calCacheMu.Lock()
		cal, ok := s.calCache[name]
		s.calCacheMu.Unlock()
		if ok {
			return cal, true, nil
		}
	}
	spec, found, err := s.runner.Delegate.SelectCalendar(c, c.Tx, schedulerName, name)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	cal := calendar.FromSpec(*spec)
	if !s.cfg.Clustered {
		s.calCacheMu.Lock()
		s.calCache[name] = cal
		s.calCacheMu.Unlock()
	}
	return cal, true, nil
}

func (s *Store) invalidateCalendarCache(name string) {
	if s.cfg.Clustered {
		return
	}
	s.calCacheMu.Lock()
	if name == "" {
		s.calCache = map[string]model.Calendar{}
	} else {
		delete(s.calCache, name)
	}
	s.calCacheMu.Unlock()
}

// schedulerName scopes every store call by this scheduler's name, matching
// spec.md §6's "document/row ids ... scoped by scheduler name" rule.
func (s *Store) schedulerName() string { return s.cfg.InstanceName }

// SchedulerName returns the cluster instance name this store is scoped to,
// for callers (the admin API, the run loop) that need to build key.JobKey
// / key.TriggerKey values themselves.
func (s *Store) SchedulerName() string { return s.cfg.InstanceName }

func (s *Store) jobKey(k key.Key) key.JobKey {
	return key.JobKey{Key: k, SchedulerName: s.schedulerName()}
}

func (s *Store) triggerKey(k key.Key) key.TriggerKey {
	return key.TriggerKey{Key: k, SchedulerName: s.schedulerName()}
}

// JobKey builds a JobKey scoped to this store's scheduler name.
func (s *Store) JobKey(name, group string) key.JobKey { return s.jobKey(key.New(name, group)) }

// TriggerKey builds a TriggerKey scoped to this store's scheduler name.
func (s *Store) TriggerKey(name, group string) key.TriggerKey {
	return s.triggerKey(key.New(name, group))
}
