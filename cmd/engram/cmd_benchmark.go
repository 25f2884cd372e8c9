package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

var (
	benchCount    int
	benchSearches int
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Generate synthetic load against the configured backend and report latencies",
	Long: `benchmark stores a batch of synthetic memories, times a run of searches
against them, and reports store/search throughput. It is a load generator for
capacity planning, not a correctness test.`,
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

		storeStart := time.Now()
		for i := 0; i < benchCount; i++ {
			m := &models.Memory{
				Content:    fmt.Sprintf("synthetic benchmark memory number %d discussing distributed systems and caching", i),
				MemoryType: "note",
				Tags:       []string{"benchmark"},
			}
			if _, err := backend.Store(ctx, m); err != nil {
				return fmt.Errorf("store %d: %w", i, err)
			}
		}
		storeElapsed := time.Since(storeStart)

		searchStart := time.Now()
		for i := 0; i < benchSearches; i++ {
			if _, err := backend.SearchMemories(ctx, storage.SearchQuery{
				Query: "distributed systems caching",
				Mode:  storage.SearchSemantic,
				Limit: 10,
			}); err != nil {
				return fmt.Errorf("search %d: %w", i, err)
			}
		}
		searchElapsed := time.Since(searchStart)

		fmt.Printf("stored %d memories in %s (%.1f/s)\n", benchCount, storeElapsed, float64(benchCount)/storeElapsed.Seconds())
		fmt.Printf("ran %d searches in %s (%.1f/s)\n", benchSearches, searchElapsed, float64(benchSearches)/searchElapsed.Seconds())
		return nil
	},
}

func init() {
	benchmarkCmd.Flags().IntVar(&benchCount, "memories", 200, "number of synthetic memories to store")
	benchmarkCmd.Flags().IntVar(&benchSearches, "searches", 50, "number of searches to run after storing")
	rootCmd.AddCommand(benchmarkCmd)
}
