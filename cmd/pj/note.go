package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/schema"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "records",
	Short:   "Manage practice and tournament notes",
}

var noteAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Write a practice or tournament note",
	Example: `  pj note add --date yesterday --purpose "second serve" --reflection "toss drifted"
  pj note add --kind tournament --date 2026-05-03 --weather rainy --result "lost 4-6 6-7"`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		flags := cmd.Flags()

		dateText, _ := flags.GetString("date")
		date, err := parseDate(dateText, time.Now())
		if err != nil {
			return err
		}
		kind, _ := flags.GetString("kind")
		weather, _ := flags.GetString("weather")

		n := &schema.Note{
			NoteKind: schema.NoteKind(kind),
			Date:     date,
			Weather:  schema.Weather(weather),
		}
		n.Temperature, _ = flags.GetInt("temperature")
		n.Condition, _ = flags.GetString("condition")
		n.Purpose, _ = flags.GetString("purpose")
		n.Detail, _ = flags.GetString("detail")
		n.Target, _ = flags.GetString("target")
		n.Consciousness, _ = flags.GetString("consciousness")
		n.Result, _ = flags.GetString("result")
		n.Reflection, _ = flags.GetString("reflection")

		refs, _ := flags.GetStringSlice("task")
		for _, ref := range refs {
			id, err := resolveID(ctx, a.journal.Tasks, ref)
			if err != nil {
				return err
			}
			n.TaskIDs = append(n.TaskIDs, id)
		}

		err = a.journal.Notes.Save(ctx, n, false)
		return saved(cmd, fmt.Sprintf("Created %s note for %s (%s)", n.NoteKind, formatDate(n.Date), shortID(n.ID)), err)
	}),
}

var noteFreeCmd = &cobra.Command{
	Use:   "free [TEXT]",
	Short: "Show or replace the free-form note",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		n, ok, err := a.journal.Notes.FetchByID(ctx, schema.FreeNoteID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: free note", engine.ErrNotFound)
		}
		if len(args) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), n.Detail)
			return nil
		}
		n.Detail = args[0]
		err = a.journal.Notes.Save(ctx, n, true)
		return saved(cmd, "Updated free note", err)
	}),
}

var noteListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List dated notes, newest first",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		notes, err := a.journal.Notes.Collect(cmd.Context(), engine.Filter{})
		if err != nil {
			return err
		}

		slices.SortStableFunc(notes, func(x, y *schema.Note) int {
			return y.Date.Compare(x.Date)
		})

		var rows [][]string
		for _, n := range notes {
			if n.NoteKind == schema.NoteKindFree {
				continue
			}
			if limit > 0 && len(rows) >= limit {
				break
			}
			rows = append(rows, []string{
				shortID(n.ID), formatDate(n.Date), string(n.NoteKind), string(n.Weather),
				firstNonEmpty(n.Purpose, n.Detail, n.Result), truncate(n.Reflection, 40),
			})
		}
		printTable(cmd.OutOrStdout(), "No notes.", []string{"ID", "DATE", "KIND", "WEATHER", "PURPOSE", "REFLECTION"}, rows)
		return nil
	}),
}

func firstNonEmpty(values ...string) string {
	for _, s := range values {
		if strings.TrimSpace(s) != "" {
			return truncate(s, 40)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	f := noteAddCmd.Flags()
	f.String("date", "today", `Date, e.g. 2026-05-03 or "yesterday"`)
	f.String("kind", string(schema.NoteKindPractice), "practice or tournament")
	f.String("weather", "", "sunny, cloudy or rainy (default sunny)")
	f.Int("temperature", 0, "Temperature in degrees")
	f.String("condition", "", "How you felt")
	f.String("purpose", "", "What the session was for")
	f.String("detail", "", "What you did")
	f.String("target", "", "Target for the session")
	f.String("consciousness", "", "What you paid attention to")
	f.String("result", "", "Result")
	f.String("reflection", "", "Reflection")
	f.StringSlice("task", nil, "Related task id (repeatable)")

	noteListCmd.Flags().Int("limit", 0, "Show at most this many notes")

	noteCmd.AddCommand(noteAddCmd, noteFreeCmd, noteListCmd,
		newRmCmd(func(j *journal.Journal) *engine.Engine[*schema.Note] { return j.Notes }))
	rootCmd.AddCommand(noteCmd)
}
