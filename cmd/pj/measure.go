package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/schema"
)

var measureCmd = &cobra.Command{
	Use:     "measure",
	GroupID: "records",
	Short:   "Manage the measures tried against a task",
}

var measureAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Add a measure to a task",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		ref, _ := cmd.Flags().GetString("task")
		taskID, err := resolveID(ctx, a.journal.Tasks, ref)
		if err != nil {
			return err
		}
		m := &schema.Measure{Title: args[0], TaskID: taskID, Order: positionFlag(cmd)}
		err = a.journal.Measures.Save(ctx, m, false)
		return saved(cmd, fmt.Sprintf("Created measure %s (%s)", m.Title, shortID(m.ID)), err)
	}),
}

var measureListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List a task's measures with their memos",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		ref, _ := cmd.Flags().GetString("task")
		taskID, err := resolveID(ctx, a.journal.Tasks, ref)
		if err != nil {
			return err
		}
		measures, err := a.journal.Measures.Collect(ctx, engine.Filter{ParentID: taskID})
		if err != nil {
			return err
		}

		var rows [][]string
		for _, m := range measures {
			memos, err := a.journal.Memos.Collect(ctx, engine.Filter{ParentID: m.ID})
			if err != nil {
				return err
			}
			details := make([]string, 0, len(memos))
			for _, memo := range memos {
				details = append(details, "- "+memo.Detail)
			}
			rows = append(rows, []string{shortID(m.ID), fmt.Sprint(m.Order), m.Title, strings.Join(details, "\n")})
		}
		printTable(cmd.OutOrStdout(), "No measures.", []string{"ID", "#", "MEASURE", "MEMOS"}, rows)
		return nil
	}),
}

var memoCmd = &cobra.Command{
	Use:     "memo",
	GroupID: "records",
	Short:   "Manage memos on measures",
}

var memoAddCmd = &cobra.Command{
	Use:   "add DETAIL",
	Short: "Write a memo about a measure",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		ref, _ := cmd.Flags().GetString("measure")
		measureID, err := resolveID(ctx, a.journal.Measures, ref)
		if err != nil {
			return err
		}
		memo := &schema.Memo{Detail: args[0], MeasureID: measureID}
		if noteRef, _ := cmd.Flags().GetString("note"); noteRef != "" {
			if memo.NoteID, err = resolveID(ctx, a.journal.Notes, noteRef); err != nil {
				return err
			}
		}
		err = a.journal.Memos.Save(ctx, memo, false)
		return saved(cmd, fmt.Sprintf("Created memo %s", shortID(memo.ID)), err)
	}),
}

var memoListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List memos, optionally for one measure",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		f := engine.Filter{}
		if ref, _ := cmd.Flags().GetString("measure"); ref != "" {
			id, err := resolveID(ctx, a.journal.Measures, ref)
			if err != nil {
				return err
			}
			f.ParentID = id
		}
		memos, err := a.journal.Memos.Collect(ctx, f)
		if err != nil {
			return err
		}
		var rows [][]string
		for _, m := range memos {
			rows = append(rows, []string{shortID(m.ID), shortID(m.MeasureID), formatDate(m.CreatedAt), m.Detail})
		}
		printTable(cmd.OutOrStdout(), "No memos.", []string{"ID", "MEASURE", "WRITTEN", "DETAIL"}, rows)
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{measureAddCmd, measureListCmd} {
		c.Flags().String("task", "", "Task id")
		_ = c.MarkFlagRequired("task")
	}
	measureAddCmd.Flags().Int("position", 0, "Position within the task, 0 is first (default: last)")
	measureCmd.AddCommand(measureAddCmd, measureListCmd,
		newRmCmd(func(j *journal.Journal) *engine.Engine[*schema.Measure] { return j.Measures }))

	memoAddCmd.Flags().String("measure", "", "Measure id")
	_ = memoAddCmd.MarkFlagRequired("measure")
	memoAddCmd.Flags().String("note", "", "Note the memo was written from")
	memoListCmd.Flags().String("measure", "", "Only this measure")
	memoCmd.AddCommand(memoAddCmd, memoListCmd,
		newRmCmd(func(j *journal.Journal) *engine.Engine[*schema.Memo] { return j.Memos }))

	rootCmd.AddCommand(measureCmd, memoCmd)
}
