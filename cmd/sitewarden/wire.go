package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sitewarden/internal/adapters/postgres"
	"sitewarden/internal/adapters/sqlite"
	"sitewarden/internal/config"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
	"sitewarden/internal/probes"
	"sitewarden/internal/services/reports"
	"sitewarden/internal/services/scanner"
	"sitewarden/internal/services/websites"
	"sitewarden/internal/signals"
)

type store interface {
	ports.WebsiteRepository
	ports.ScanRepository
	ports.JobRepository
	Migrate(ctx context.Context) (int, error)
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (store, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

type services struct {
	store    store
	scanner  *scanner.Service
	websites *websites.Service
	reports  *reports.Service
	closers  []func()
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// buildServices opens the store, the optional signal cache and the probe
// battery. The sqlite store is migrated on open since it is usually a
// fresh local file.
func buildServices(ctx context.Context, cfg config.Config, log *logger.Logger) (*services, error) {
	st, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	svc := &services{store: st, closers: []func(){closeStore}}

	if cfg.Database.Driver == "sqlite" {
		if _, err := st.Migrate(ctx); err != nil {
			svc.Close()
			return nil, err
		}
	}

	var rdb redis.Cmdable
	if cfg.Redis.Addr != "" {
		client, err := signals.NewRedis(ctx, cfg.Redis)
		if err != nil {
			log.Warnw("signal cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			rdb = client
			svc.closers = append(svc.closers, func() { _ = client.Close() })
		}
	}

	battery := probes.NewSet(cfg.Scan, signals.NewSet(cfg, rdb, log), log)
	svc.scanner = scanner.New(st, st, battery, cfg.Scan.Deadline, log)
	svc.websites = websites.New(st)
	svc.reports = reports.New(st)
	return svc, nil
}
