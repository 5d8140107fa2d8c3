// Command pj is a local-first practice journal with background sync.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	v          = config.New()
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "pj",
	Short: "Practice journal",
	Long: `pj keeps a practice journal: groups of tasks, the measures tried
against them, memos, dated notes and yearly or monthly targets.

Every change is written to the local database first. When you are signed
in and the remote is reachable, changes are pushed right away; otherwise
they wait in the retry queue until 'pj sync' or the daemon runs.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default <data-dir>/config.toml)")
	flags.String("data-dir", config.DefaultDataDir(), "Directory holding the journal database and session")
	flags.Bool("offline", false, "Never contact the remote")
	flags.BoolP("verbose", "v", false, "Log to stderr")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("offline", flags.Lookup("offline"))
	_ = v.BindPFlag("log.verbose", flags.Lookup("verbose"))
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
