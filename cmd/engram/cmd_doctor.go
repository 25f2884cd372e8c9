package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engramhq/engram/internal/dependencies"
	"github.com/engramhq/engram/internal/store"
)

var doctorRepairTags bool
var doctorRepairDryRun bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the database's integrity and report on optional dependency availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result := dependencies.Check(cfg)
		fmt.Print(dependencies.FormatDoctorReport(result))

		db, err := store.Open(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		ok, detail, err := db.IntegrityCheck()
		if err != nil {
			return fmt.Errorf("integrity check: %w", err)
		}
		if ok {
			fmt.Println("database: ok")
		} else {
			fmt.Println("database: FAILED -", detail)
		}

		if doctorRepairTags {
			report, err := store.RepairTags(db, doctorRepairDryRun)
			if err != nil {
				return fmt.Errorf("repair tags: %w", err)
			}
			verb := "repaired"
			if doctorRepairDryRun {
				verb = "would repair"
			}
			fmt.Printf("tags: scanned %d, %s %d\n", report.Scanned, verb, report.Fixed)
			for _, h := range report.Hashes {
				fmt.Println("  ", h)
			}
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorRepairTags, "repair-tags", false, "scan and normalize malformed legacy tag encodings")
	doctorCmd.Flags().BoolVar(&doctorRepairDryRun, "dry-run", false, "with --repair-tags, report what would change without writing")
	rootCmd.AddCommand(doctorCmd)
}
