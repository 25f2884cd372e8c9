package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/models"
	"github.com/engramhq/engram/internal/storage"
)

var (
	storeType string
	storeTags string

	searchLimit int
	searchMode  string
)

var storeCmd = &cobra.Command{
	Use:   "store <content>",
	Short: "Store a memory directly against the core, bypassing any upper-layer adapter",
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

		m := &models.Memory{
			Content:    args[0],
			MemoryType: storeType,
			Tags:       splitTags(storeTags),
		}
		out, err := backend.Store(ctx, m)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		if !out.OK {
			return fmt.Errorf("store rejected: %s", out.Message)
		}
		fmt.Println(models.ContentHash(args[0]))
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <hash>",
	Short: "Fetch a memory by its content hash",
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

		m, err := backend.GetByHash(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		if m == nil {
			return fmt.Errorf("no memory with hash %s", args[0])
		}
		fmt.Printf("%s\t%s\t%v\n%s\n", m.ContentHash, m.MemoryType, m.Tags, m.Content)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <hash>",
	Short: "Tombstone a memory by its content hash",
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

		out, err := backend.Delete(ctx, args[0])
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if !out.OK {
			return fmt.Errorf("delete rejected: %s", out.Message)
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories by relevance",
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

		outcome, err := backend.SearchMemories(ctx, storage.SearchQuery{
			Query: args[0],
			Mode:  storage.SearchMode(searchMode),
			Limit: searchLimit,
		})
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		for _, r := range outcome.Results {
			fmt.Printf("%.4f\t%s\t%s\n", r.RelevanceScore, r.Memory.ContentHash, truncate(r.Memory.Content, 80))
		}
		return nil
	},
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func init() {
	storeCmd.Flags().StringVar(&storeType, "type", "note", "memory type (ontology base or base/subtype)")
	storeCmd.Flags().StringVar(&storeTags, "tags", "", "comma-separated tags")

	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	searchCmd.Flags().StringVar(&searchMode, "mode", string(storage.SearchSemantic), "search mode: semantic, exact, hybrid")

	rootCmd.AddCommand(storeCmd, getCmd, deleteCmd, searchCmd)
}
