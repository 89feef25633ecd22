// Package app boots the engine: configuration, persistence, schema
// alignment, state load, seeding, workers, and ordered shutdown. The
// gateway client is injected so the external binding and the offline mode
// share the same boot path.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmw-rewrite/dmw/internal/backup"
	"github.com/dmw-rewrite/dmw/internal/config"
	"github.com/dmw-rewrite/dmw/internal/engine"
	"github.com/dmw-rewrite/dmw/internal/persist"
	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/schema"
	"github.com/dmw-rewrite/dmw/internal/seed"
	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/telemetry"
	"github.com/dmw-rewrite/dmw/internal/worker"
)

const backupPath = "dmw_backup.sql"

// Run executes the full engine lifecycle and blocks until ctx is cancelled
// or a fatal boot error occurs. A lost singleton lock is a clean exit: the
// supervisor must not respawn into a lock fight.
func Run(ctx context.Context, cfg *config.Config, client platform.Client, log *slog.Logger) error {
	if err := telemetry.Init(ctx, "dmw", "dev"); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer telemetry.Shutdown(context.Background())

	pe, err := persist.Open(ctx, cfg.DatabaseURL, log, persist.WithEcho(cfg.DBEcho))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = pe.Close() }()

	if err := pe.AcquireAdvisoryLock(ctx); err != nil {
		if errors.Is(err, persist.ErrSingletonLost) {
			log.Info("another instance holds the singleton lock, exiting cleanly")
			return nil
		}
		return err
	}

	guard := schema.New(pe.DB(), log)
	if err := guard.Align(ctx); err != nil {
		return fmt.Errorf("schema align: %w", err)
	}
	if err := guard.Validate(ctx); err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}

	snap, err := pe.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	st := store.New()
	st.Load(snap)

	eng := engine.New(engine.Options{
		Store:   st,
		Client:  client,
		Persist: pe,
		Config:  cfg,
		Logger:  log,
	})

	if rows, err := seed.Dungeons(); err != nil {
		return fmt.Errorf("dungeon catalog: %w", err)
	} else if st.SeedDungeons(rows) {
		log.Info("dungeon catalog seeded", "rows", len(rows))
		if err := eng.FlushAll(ctx); err != nil {
			return fmt.Errorf("persist seed: %w", err)
		}
	}

	var forward *worker.LogForwarder
	if cfg.LogChannelID != 0 {
		forward = worker.NewLogForwarder(client, cfg.LogChannelID, log)
	}

	reg := worker.NewRegistry(ctx, log)
	worker.Start(ctx, reg, worker.Options{
		Engine:  eng,
		Config:  cfg,
		Backup:  backup.NewWriter(backupPath),
		Forward: forward,
		Logger:  log,
	})

	log.Info("engine running", "log_level", cfg.LogLevel.String())
	<-ctx.Done()

	log.Info("shutting down")
	if err := reg.Wait(); err != nil {
		log.Warn("worker shutdown", "err", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := eng.FlushAll(flushCtx); err != nil {
		log.Error("final flush failed", "err", err)
	}
	return nil
}
