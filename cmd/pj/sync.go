package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/config"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile the local journal with the remote",
	Long: `Pull every kind from the remote, merge it with the local journal
(last write wins, deletions win over edits) and push local changes.

Groups, tasks, measures and memos are reconciled in that order; notes and
targets alongside them.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Syncing...\n", ui.RenderAccent("🔄"))

		rep, err := a.journal.Refresh(cmd.Context())
		if errors.Is(err, engine.ErrSyncDeferred) && rep == nil {
			fmt.Fprintf(out, "%s Sync deferred: %s\n", renderWarnMark(), gateHint(a))
			return nil
		}
		if rep != nil {
			var rows [][]string
			for _, kr := range rep.Kinds {
				if kr == nil {
					continue
				}
				rows = append(rows, []string{
					string(kr.Kind), fmt.Sprint(kr.Pulled), fmt.Sprint(kr.Inserted), fmt.Sprint(kr.Overwritten),
					fmt.Sprint(kr.Tombstoned), fmt.Sprint(kr.Pushed), fmt.Sprint(kr.Failed),
				})
			}
			printTable(out, "Nothing to do.", []string{"KIND", "PULLED", "NEW", "UPDATED", "DELETED", "PUSHED", "FAILED"}, rows)
		}
		if err != nil {
			return fmt.Errorf("sync incomplete: %w", err)
		}
		fmt.Fprintf(out, "%s Sync complete in %v\n", renderPassMark(), rep.Duration.Round(time.Millisecond))
		return nil
	}),
}

// gateHint explains why the gate is closed.
func gateHint(a *app) string {
	switch {
	case a.cfg.Offline:
		return "offline mode"
	case a.cfg.Remote.Driver == config.DriverNone:
		return "no remote configured"
	case a.cfg.Remote.Driver == config.DriverMemory && !a.longRunning:
		return "the memory remote only runs inside 'pj daemon'"
	case !a.session.IsAuthenticated():
		return "not signed in (run 'pj login')"
	}
	return "remote unreachable"
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status and the retry queue",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if err := a.journal.Tracker().Refresh(ctx); err != nil {
			return err
		}
		st := a.journal.Status()
		if user := a.session.UserID(); user != "" && a.session.IsAuthenticated() {
			fmt.Fprintf(out, "Signed in:  %s\n", user)
		} else {
			fmt.Fprintf(out, "Signed in:  %s\n", ui.RenderMuted("no"))
		}
		printStatus(out, st, a.journal.MayDirectlySync())
		if !a.journal.MayDirectlySync() {
			fmt.Fprintf(out, "            %s\n", ui.RenderMuted(gateHint(a)))
		}

		showQueue, _ := cmd.Flags().GetBool("queue")
		if !showQueue || st.Pending == 0 {
			return nil
		}
		entries, err := a.store.ListPending(ctx, "")
		if err != nil {
			return err
		}
		var rows [][]string
		for _, e := range entries {
			rows = append(rows, []string{string(e.Kind), shortID(e.ID), fmt.Sprint(e.Attempts), formatAgo(e.QueuedAt), truncate(e.LastError, 50)})
		}
		fmt.Fprintln(out)
		printTable(out, "Queue is empty.", []string{"KIND", "ID", "ATTEMPTS", "QUEUED", "LAST ERROR"}, rows)
		return nil
	}),
}

func init() {
	statusCmd.Flags().Bool("queue", false, "List queued records")
	rootCmd.AddCommand(syncCmd, statusCmd)
}
