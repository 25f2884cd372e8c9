package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/consolidation"
	"github.com/engramhq/engram/internal/relationships"
)

var consolidateDryRun bool

var consolidateCmd = &cobra.Command{
	Use:   "consolidate <horizon>",
	Short: "Run one pass of the scheduled maintenance pipeline (daily, weekly, monthly, quarterly, yearly)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := context.Background()
		db, backend, _, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		rel := relationships.NewService(db)
		c := consolidation.New(backend, rel, consolidation.Config{
			IncrementalMode:     cfg.Consolidation.IncrementalMode,
			BatchSize:           cfg.Consolidation.BatchSize,
			ClusteringEnabled:   cfg.Consolidation.ClusteringEnabled,
			AssociationsEnabled: cfg.Consolidation.AssociationsEnabled,
			CompressionEnabled:  cfg.Consolidation.CompressionEnabled,
			ForgettingEnabled:   cfg.Consolidation.ForgettingEnabled,
			MinConfidence:       cfg.Consolidation.MinConfidence,
			Forgetting: consolidation.ForgettingPolicy{
				ArchiveBelow: cfg.Consolidation.ArchiveBelow,
				DeleteBelow:  cfg.Consolidation.DeleteBelow,
				ArchivePath:  cfg.Consolidation.ArchivePath,
			},
		})

		var report consolidation.Report
		if consolidateDryRun {
			report, err = c.ConsolidateDryRun(ctx, args[0])
		} else {
			report, err = c.Consolidate(ctx, args[0])
		}
		if err != nil {
			return fmt.Errorf("consolidate: %w", err)
		}

		fmt.Printf("horizon=%s processed=%d clusters=%d associations=%d compressed=%d archived=%d deleted=%d duration_ms=%d\n",
			report.TimeHorizon, report.MemoriesProcessed, report.ClustersCreated, report.AssociationsFound,
			report.MemoriesCompressed, report.MemoriesArchived, report.MemoriesDeleted, report.DurationMS())
		for _, e := range report.Errors {
			fmt.Println("error:", e)
		}
		return nil
	},
}

func init() {
	consolidateCmd.Flags().BoolVar(&consolidateDryRun, "dry-run", false, "preview the pipeline's effect without persisting anything")
	rootCmd.AddCommand(consolidateCmd)
}
