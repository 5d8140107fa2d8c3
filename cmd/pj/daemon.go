package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal/daemon"
	"github.com/practicejournal/pj/internal/journal/dashboard"
	jsync "github.com/practicejournal/pj/internal/journal/sync"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep the journal in sync in the background",
	Long: `Run resolver passes until interrupted:
  - at start and every sync.interval
  - as soon as the remote becomes reachable or you sign in
  - after the session file changes (pj login / pj logout)

Use --dashboard to also serve the status dashboard.`,
	Args: cobra.NoArgs,
	RunE: withDaemonApp(func(cmd *cobra.Command, a *app, args []string) error {
		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = a.cfg.Dashboard.Port
		}
		return runDaemon(cmd, a, withDashboard, port)
	}),
}

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Serve the live sync dashboard (runs the daemon too)",
	Long: `Start the sync daemon and a local dashboard server.

WebSocket clients on /ws receive:
- status: pending count, last error and re-auth flag, on every change
- sync_complete: per-kind counts after each resolver pass

/health reports liveness and /metrics exposes Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: withDaemonApp(func(cmd *cobra.Command, a *app, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = a.cfg.Dashboard.Port
		}
		return runDaemon(cmd, a, true, port)
	}),
}

func runDaemon(cmd *cobra.Command, a *app, withDashboard bool, port int) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	dcfg := &daemon.Config{
		Interval:         a.cfg.Sync.Interval,
		GatePoll:         2 * time.Second,
		DebounceInterval: 250 * time.Millisecond,
		SessionPath:      a.cfg.SessionPath(),
		Session:          a.session,
		Logger:           a.sink.Logger("daemon"),
	}

	if withDashboard {
		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Status: a.journal.Status,
			Logger: a.sink.Logger("dashboard"),
		})
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		defer func() { _ = server.Stop() }()

		handler := dashboard.NewHandler(server, a.sink.Logger("dashboard"))
		a.journal.Tracker().Subscribe(handler.OnStatus)
		dcfg.OnSync = handler.OnSync

		fmt.Fprintf(out, "Dashboard: http://%s\n", server.Addr())
		fmt.Fprintf(out, "WebSocket: ws://%s/ws\n", server.Addr())
	} else {
		dcfg.OnSync = func(rep *jsync.Report, err error) {
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s Sync failed: %v\n", renderWarnMark(), err)
			}
		}
	}

	d, err := daemon.NewWithConfig(a.journal, dcfg)
	if err != nil {
		return err
	}

	if a.prober != nil {
		a.prober.OnChange(func(online bool) {
			if online {
				d.Trigger("remote reachable")
			}
		})
		go a.prober.Run(ctx)
	}

	fmt.Fprintln(out, "Daemon running. Press Ctrl+C to stop...")
	if err := d.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Daemon stopped after %d sync passes\n", d.Passes())
	return nil
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Also serve the dashboard")
	for _, c := range []*cobra.Command{daemonCmd, dashboardCmd} {
		c.Flags().IntP("port", "p", 7331, "Dashboard port (default from dashboard.port)")
	}
	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}
