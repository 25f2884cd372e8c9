package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/backup"
	"github.com/engramhq/engram/internal/store"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Take a single consistent snapshot of the primary database",
	Long: `backup writes one point-in-time copy of the primary database under
backup.dir via SQLite's online backup API. It takes exactly one snapshot and
exits; scheduling repeated backups is left to cron or an external supervisor.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		svc := backup.NewService(db, cfg.Backup.Dir)
		path, err := svc.Snapshot(context.Background())
		if err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
