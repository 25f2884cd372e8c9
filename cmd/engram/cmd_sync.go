package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/hybrid"
)

var driftDryRun bool
var driftPeriod time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Inspect or control the background sync service (hybrid backend only)",
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the sync queue's current metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHybridEngine(func(ctx context.Context, e *hybrid.Engine) error {
			status := e.GetSyncStatus()
			if status == nil {
				fmt.Println("sync service not running")
				return nil
			}
			for k, v := range status {
				fmt.Printf("%s: %v\n", k, v)
			}
			return nil
		})
	},
}

var syncForceCmd = &cobra.Command{
	Use:   "force",
	Short: "Force a full one-shot primary-to-secondary reconciliation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHybridEngine(func(ctx context.Context, e *hybrid.Engine) error {
			n, err := e.ForceSync(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("synced %d memories\n", n)
			return nil
		})
	},
}

var syncPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause the background sync drain loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHybridEngine(func(ctx context.Context, e *hybrid.Engine) error {
			e.PauseSync()
			fmt.Println("sync paused")
			return nil
		})
	},
}

var syncResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the background sync drain loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHybridEngine(func(ctx context.Context, e *hybrid.Engine) error {
			e.ResumeSync()
			fmt.Println("sync resumed")
			return nil
		})
	},
}

var syncDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Scan for metadata drift between primary and secondary",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHybridEngine(func(ctx context.Context, e *hybrid.Engine) error {
			report, err := e.CheckDrift(ctx, driftPeriod, driftDryRun)
			if err != nil {
				return err
			}
			fmt.Printf("sampled %d, drifted %d, applied=%v\n", report.Sampled, len(report.Drifted), report.Applied)
			for _, d := range report.Drifted {
				fmt.Printf("  %s primary=%v cloud=%v\n", d.Hash, d.Primary, d.Cloud)
			}
			return nil
		})
	},
}

func init() {
	syncDriftCmd.Flags().BoolVar(&driftDryRun, "dry-run", false, "report mismatches without writing anything back")
	syncDriftCmd.Flags().DurationVar(&driftPeriod, "period", 0, "restrict the scan to memories created within this window (0 = newest batch)")

	syncCmd.AddCommand(syncStatusCmd, syncForceCmd, syncPauseCmd, syncResumeCmd, syncDriftCmd)
	rootCmd.AddCommand(syncCmd)
}
