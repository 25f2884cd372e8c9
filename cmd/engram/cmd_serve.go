package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/api"
	"github.com/engramhq/engram/internal/daemon"
	"github.com/engramhq/engram/internal/health"
	"github.com/engramhq/engram/internal/logging"
)

var daemonMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the core: storage backend, sync and health monitor",
	Long: `serve brings up the full core: opens the primary database (and the cloud
secondary plus background sync, when cloud.enabled is set), starts the
integrity monitor, and exposes the thin consumer-contract HTTP surface
(health, stats, sync status) until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&daemonMode, "daemon", false, "detach into the background and track the process with a pidfile")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.GetLogger("cmd")

	d := daemon.New(filepath.Dir(cfg.Database.Path), Version)
	if daemonMode {
		if _, err := d.Daemonize(childArgsWithoutDaemonFlag(os.Args[1:])); err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
		log.Info("started in background", "pidfile", d.PIDPath())
		return nil
	}
	if err := d.WritePID(); err != nil {
		return fmt.Errorf("write pidfile: %w", err)
	}
	defer d.RemovePID()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, backend, engine, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var monitor *health.Monitor
	if cfg.Health.Enabled {
		monitor = health.NewMonitor(db, health.WithInterval(cfg.Health.Interval))
		monitor.Start(ctx)
		defer monitor.Stop()
	} else {
		monitor = health.NewMonitor(db)
	}

	var server *api.Server
	if cfg.RestAPI.Enabled {
		server = api.NewServer(backend, engine, monitor, cfg)
		go func() {
			if err := server.StartWithContext(ctx, 10*time.Second); err != nil {
				log.Error("health-surface server exited", "error", err)
			}
		}()
	}

	log.Info("engram core started", "database", cfg.Database.Path, "hybrid", engine != nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	cancel()
	if server != nil {
		_ = server.Stop(context.Background())
	}
	return nil
}
