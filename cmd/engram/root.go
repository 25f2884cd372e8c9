package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set during build.
var Version = "0.1.0"

var (
	cfgFile  string
	logLevel string
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Persistent memory core for AI agents",
	Long: `engram is the storage and consolidation core behind a persistent memory
system: a local embedded store, an optional cloud secondary kept in sync in
the background, and a scheduled consolidation pipeline that scores, clusters,
compresses and forgets memories over time.

This binary exposes the core directly for scripting and operations; the
HTTP/REST surface, dashboard and MCP adapter that normally sit in front of it
are separate, out-of-process collaborators.

Examples:
  engram serve
  engram store "Go channels are like pipes between goroutines" --tags go,concurrency
  engram search "concurrency patterns"
  engram sync status
  engram consolidate daily --dry-run
  engram doctor --repair-tags`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-essential output")
}
