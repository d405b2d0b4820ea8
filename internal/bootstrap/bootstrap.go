// Package bootstrap wires a runtime Config into a ready-to-use
// jobstore.Store, shared by cmd/schedulerd and cmd/quartznetctl so both
// pick the same delegate backend and lock manager for a given
// configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/d10n/quartznet/internal/clock"
	"github.com/d10n/quartznet/internal/config"
	"github.com/d10n/quartznet/internal/delegate"
	"github.com/d10n/quartznet/internal/delegate/pg"
	"github.com/d10n/quartznet/internal/delegate/redisdoc"
	"github.com/d10n/quartznet/internal/jobstore"
	"github.com/d10n/quartznet/internal/jobtypes"
	"github.com/d10n/quartznet/internal/jobtypes/localresize"
	"github.com/d10n/quartznet/internal/lock"
)

// Runtime bundles the constructed store with the close function its
// delegate needs and the type registry callers may want to extend before
// calling Initialize.
type Runtime struct {
	Store    *jobstore.Store
	Registry *jobtypes.Registry
	Signaler *jobtypes.LogSignaler
	Close    func()
}

// Build constructs a Store for cfg, running migrations when the backend
// is Postgres. Callers that want additional registered job types should
// do so on the returned Registry before calling Store.Initialize, which
// Build does not call so CLI one-shot commands can skip it.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Runtime, error) {
	d, rowLocker, closeDelegate, err := buildDelegate(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var lockMgr lock.Manager
	if cfg.Clustered || cfg.UseDBLocks {
		lockMgr = lock.NewStore(cfg.InstanceName, rowLocker)
	} else {
		lockMgr = lock.NewInProcess()
	}

	store, err := jobstore.New(cfg.JobStoreConfig(), d, lockMgr, clock.Real{}, log)
	if err != nil {
		closeDelegate()
		return nil, fmt.Errorf("build store: %w", err)
	}

	registry := jobtypes.NewRegistry()
	registry.Register("image:resize", localresize.New())

	return &Runtime{
		Store:    store,
		Registry: registry,
		Signaler: jobtypes.NewLogSignaler(log),
		Close:    closeDelegate,
	}, nil
}

func buildDelegate(ctx context.Context, cfg config.Config) (delegate.Delegate, lock.RowLocker, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		d := redisdoc.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return d, d, func() { _ = d.Close() }, nil
	default:
		d, err := pg.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
		if err := d.RunMigrations(ctx); err != nil {
			d.Close()
			return nil, nil, func() {}, fmt.Errorf("migrations: %w", err)
		}
		return d, d, func() { d.Close() }, nil
	}
}
