package main

import (
	"fmt"
	"io"
	"time"

	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/schema"
	"github.com/practicejournal/pj/internal/ui"
)

func renderPassMark() string { return ui.RenderPass("✓") }
func renderWarnMark() string { return ui.RenderWarn("⚠") }

// shortID trims ids for tables. Commands accept it as an id prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func formatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := time.Since(t).Round(time.Second)
	if d < time.Second {
		return "just now"
	}
	return d.String() + " ago"
}

func deletedMark(m *schema.Meta) string {
	if m.IsDeleted {
		return ui.RenderMuted("deleted")
	}
	return ""
}

// printTable writes a table, or a hint when there are no rows.
func printTable(w io.Writer, empty string, headers []string, rows [][]string) {
	if len(rows) == 0 {
		fmt.Fprintln(w, ui.RenderMuted(empty))
		return
	}
	fmt.Fprintln(w, ui.Table(headers, rows))
}

func printStatus(w io.Writer, st engine.Status, online bool) {
	gateState := ui.RenderWarn("closed")
	if online {
		gateState = ui.RenderPass("open")
	}
	fmt.Fprintf(w, "Sync gate:  %s\n", gateState)
	fmt.Fprintf(w, "Pending:    %d\n", st.Pending)
	fmt.Fprintf(w, "Last sync:  %s\n", formatAgo(st.LastSyncAt))
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s (%s)\n", ui.RenderFail(st.LastError), formatAgo(st.LastErrorAt))
	}
	if st.NeedsReauth {
		fmt.Fprintf(w, "\n%s The remote rejected your credentials. Run 'pj login' again.\n", renderWarnMark())
	}
}
