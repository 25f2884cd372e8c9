package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/engramhq/engram/internal/cloud"
	"github.com/engramhq/engram/internal/embed"
	"github.com/engramhq/engram/internal/hybrid"
	"github.com/engramhq/engram/internal/logging"
	"github.com/engramhq/engram/internal/splitter"
	"github.com/engramhq/engram/internal/storage"
	"github.com/engramhq/engram/internal/store"
	"github.com/engramhq/engram/internal/syncsvc"
	"github.com/engramhq/engram/pkg/config"
)

// loadConfig loads the layered config file and initializes the global
// logger from it, the way every subcommand expects to start.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if quiet {
		cfg.Logging.Level = "error"
	} else if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output})
	return cfg, nil
}

// openPrimary opens the primary database file and wraps it in a Primary
// backend over the configured embedding generator.
func openPrimary(cfg *config.Config) (*store.DB, *store.Primary, error) {
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("initializing schema: %w", err)
	}

	embedder := embed.New(embed.Config{
		Mode:      cfg.Embedding.Mode,
		BaseURL:   cfg.Embedding.BaseURL,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   cfg.Embedding.Timeout,
	})

	primary := store.NewPrimary(db, embedder,
		store.WithSplitConfig(splitter.Config{
			MaxLength:          cfg.Splitter.MaxLength,
			Overlap:            cfg.Splitter.Overlap,
			PreserveBoundaries: cfg.Splitter.PreserveBoundaries,
		}),
		store.WithAutoSplit(true),
	)
	return db, primary, nil
}

// openBackend builds the full backend named by cfg: a bare primary, or -
// when cloud sync is enabled - a hybrid composition with a background sync
// service. The returned hybrid engine is nil for a primary-only backend.
func openBackend(ctx context.Context, cfg *config.Config) (*store.DB, storage.Backend, *hybrid.Engine, error) {
	db, primary, err := openPrimary(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	if !cfg.Cloud.Enabled {
		if err := primary.Initialize(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("initializing primary: %w", err)
		}
		return db, primary, nil, nil
	}

	secondary := cloud.New(cloud.Config{
		VectorURL:             cfg.Cloud.VectorURL,
		RelationalURL:         cfg.Cloud.RelationalURL,
		ObjectURL:             cfg.Cloud.ObjectURL,
		Collection:            cfg.Cloud.Collection,
		Table:                 cfg.Cloud.Table,
		Bucket:                cfg.Cloud.Bucket,
		Dimension:             cfg.Cloud.Dimension,
		LargeContentThreshold: cfg.Cloud.LargeContentThreshold,
		MaxRetries:            cfg.Cloud.MaxRetries,
		SchemaVerifyAttempts:  cfg.Cloud.SchemaVerifyAttempts,
		SchemaVerifyDelay:     cfg.Cloud.SchemaVerifyDelay,
		Timeout:               cfg.Cloud.Timeout,
	})

	sync := syncsvc.New(secondary, syncsvc.Config{
		QueueCapacity:          cfg.Sync.QueueCapacity,
		DrainInterval:          cfg.Sync.DrainInterval,
		BatchSize:              cfg.Sync.BatchSize,
		HealthCheckInterval:    cfg.Sync.HealthCheckInterval,
		MaxRetries:             cfg.Sync.MaxRetries,
		MaxLoopBackoff:         cfg.Sync.MaxLoopBackoff,
		VectorCapacityLimit:    cfg.Sync.VectorCapacityLimit,
		MetadataSizeLimitBytes: cfg.Sync.MetadataSizeLimitBytes,
		WarningThreshold:       cfg.Sync.WarningThreshold,
		CriticalThreshold:      cfg.Sync.CriticalThreshold,
		DriftInterval:          cfg.Sync.DriftInterval,
		DriftBatchSize:         cfg.Sync.DriftBatchSize,
	})

	engine := hybrid.New(primary, secondary, sync, hybrid.Config{
		InitialSyncPageSize:        cfg.Hybrid.InitialSyncPageSize,
		InitialSyncMaxEmptyBatches: cfg.Hybrid.InitialSyncMaxEmptyBatches,
		InitialSyncStartDelay:      cfg.Hybrid.InitialSyncStartDelay,
	})

	if err := engine.Initialize(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("initializing hybrid engine: %w", err)
	}
	return db, engine, engine, nil
}

// withHybridEngine opens the configured backend and, only if it composed a
// hybrid engine (cloud.enabled), runs fn against it. Returns a descriptive
// error for a primary-only backend instead of a nil-pointer panic.
func withHybridEngine(fn func(ctx context.Context, e *hybrid.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	db, _, engine, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if engine == nil {
		return fmt.Errorf("no cloud secondary configured (cloud.enabled is false); sync is not available")
	}
	return fn(ctx, engine)
}

// childArgsWithoutDaemonFlag strips --daemon before re-exec'ing the process
// in the background; otherwise the forked child would daemonize again.
func childArgsWithoutDaemonFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--daemon" {
			continue
		}
		out = append(out, a)
	}
	return out
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
