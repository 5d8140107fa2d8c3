package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Inspect or create the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configPath
		if path == "" {
			path = filepath.Join(v.GetString("data_dir"), config.FileName)
		}
		if err := config.WriteDefault(v, path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s\n", renderPassMark(), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		file := cfg.File
		if file == "" {
			file = "(none, using defaults)"
		}
		secret := "(unset)"
		if cfg.Auth.Secret != "" {
			secret = "(set)"
		}
		fmt.Fprintf(out, "Config file:     %s\n", file)
		fmt.Fprintf(out, "Data dir:        %s\n", cfg.DataDir)
		fmt.Fprintf(out, "Database:        %s\n", cfg.DBPath())
		fmt.Fprintf(out, "Session:         %s\n", cfg.SessionPath())
		fmt.Fprintf(out, "Log file:        %s\n", cfg.LogPath())
		fmt.Fprintf(out, "Remote driver:   %s\n", cfg.Remote.Driver)
		fmt.Fprintf(out, "Remote url:      %s\n", cfg.Remote.URL)
		fmt.Fprintf(out, "Remote timeout:  %s\n", cfg.Remote.Timeout)
		fmt.Fprintf(out, "Auth secret:     %s\n", secret)
		fmt.Fprintf(out, "Sync interval:   %s\n", cfg.Sync.Interval)
		fmt.Fprintf(out, "Probe address:   %s\n", cfg.Sync.ProbeAddr)
		fmt.Fprintf(out, "Dashboard port:  %d\n", cfg.Dashboard.Port)
		fmt.Fprintf(out, "Offline:         %t\n", cfg.Offline)
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
