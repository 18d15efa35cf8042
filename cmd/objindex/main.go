// Package main implements the objindex CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dshills/objindex/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// .env only seeds the environment; a missing file is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "objindex",
	Short: "Incrementally index a tree of binary artifacts",
	Long: `objindex walks an input tree of project directories, finds binary objects
whose index archive is missing or stale, and indexes them in parallel into a
mirrored output tree.

Configuration is read from ~/.config/objindex/config.yaml (or --config),
OBJINDEX_* environment variables and the flags below, in increasing order
of precedence.`,
	Version:      fmt.Sprintf("%s (built %s, sqlite %s/%s)", version, buildTime, storage.BuildMode, storage.DriverName),
	SilenceUsage: true,
}

func init() {
	registerFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
}
