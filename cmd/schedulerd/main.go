// Command schedulerd runs the clustered job store as a standalone service:
// it wires a delegate backend, a lock manager, the core store, a sample
// job type registry, the admin HTTP API, and the background loops that
// drive acquisition, misfire recovery, and cluster check-in. Grounded on
// the teacher's cmd/worker/main.go and cmd/api/main.go.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/d10n/quartznet/internal/adminapi"
	"github.com/d10n/quartznet/internal/bootstrap"
	"github.com/d10n/quartznet/internal/config"
	"github.com/d10n/quartznet/internal/jobstore"
	"github.com/d10n/quartznet/internal/jobtypes"
	"github.com/d10n/quartznet/internal/logging"
	"github.com/d10n/quartznet/internal/model"
)

// fireLoopMaxCount and fireLoopTimeWindow bound a single acquire pass,
// matching spec.md §4.G's batch acquisition knobs.
const (
	fireLoopMaxCount   = 10
	fireLoopTimeWindow = time.Second
	fireLoopIdlePoll   = time.Second
)

func main() {
	cfg, err := config.Load(os.Getenv("QUARTZNET_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(os.Getenv("QUARTZNET_ENV"), cfg.InstanceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	rt, err := bootstrap.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	defer rt.Close()

	rt.Store.Initialize(rt.Registry, rt.Signaler)

	if err := rt.Store.SchedulerStarted(ctx); err != nil {
		log.Fatalf("scheduler started: %v", err)
	}
	defer rt.Store.Shutdown()

	admin := adminapi.New(rt.Store)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: admin.Router()}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("admin api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("admin api stopped")
		}
	}()

	go runMisfireLoop(ctx, rt.Store, cfg.MisfireHandlerInterval, logger)
	go runCheckinLoop(ctx, rt.Store, cfg.ClusterCheckinInterval, logger)

	runFireLoop(ctx, rt.Store, rt.Registry, rt.Signaler, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin api shutdown")
	}
	logger.Info().Msg("schedulerd stopped")
}

// runFireLoop drives the acquire -> fire -> execute -> complete pipeline
// (spec.md §4.G/§6), waking early on the signaler's scheduling-change
// channel instead of only polling on a fixed interval.
func runFireLoop(ctx context.Context, store *jobstore.Store, registry *jobtypes.Registry, sig *jobtypes.LogSignaler, logger zerolog.Logger) {
	t := time.NewTicker(fireLoopIdlePoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		case <-sig.Wake():
		}

		acquired, err := store.AcquireNextTriggers(ctx, time.Now().Add(fireLoopTimeWindow), fireLoopMaxCount, fireLoopTimeWindow)
		if err != nil {
			logger.Error().Err(err).Msg("acquire next triggers")
			continue
		}
		if len(acquired) == 0 {
			continue
		}

		bundles, err := store.TriggersFired(ctx, acquired)
		if err != nil {
			logger.Error().Err(err).Msg("triggers fired")
			continue
		}

		for _, b := range bundles {
			executeBundle(ctx, store, registry, logger, b)
		}
	}
}

func executeBundle(ctx context.Context, store *jobstore.Store, registry *jobtypes.Registry, logger zerolog.Logger, b jobstore.FiredBundle) {
	instruction := model.InstructionNoop

	if _, err := registry.Load(b.Job.ImplType); err != nil {
		logger.Error().Err(err).Str("implType", b.Job.ImplType).Msg("job type not loadable")
		instruction = model.InstructionSetTriggerError
	} else if job, ok := registry.Get(b.Job.ImplType); ok {
		if err := job.Execute(ctx, b.Job.JobData); err != nil {
			logger.Error().Err(err).Stringer("trigger", b.Trigger.Key).Msg("job execution failed")
			instruction = model.InstructionSetTriggerError
		}
	}

	if err := store.TriggeredJobComplete(ctx, b.Trigger, b.Job, instruction); err != nil {
		logger.Error().Err(err).Stringer("trigger", b.Trigger.Key).Msg("triggered job complete")
	}
}

func runMisfireLoop(ctx context.Context, store *jobstore.Store, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := store.RecoverMisfires(ctx); err != nil {
				logger.Error().Err(err).Msg("recover misfires")
			}
		}
	}
}

func runCheckinLoop(ctx context.Context, store *jobstore.Store, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := store.CheckCluster(ctx); err != nil {
				logger.Error().Err(err).Msg("check cluster")
			}
		}
	}
}
