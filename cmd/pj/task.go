package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/schema"
	"github.com/practicejournal/pj/internal/ui"
)

var priorities = []string{"low", "normal", "high"}

var taskCmd = &cobra.Command{
	Use:     "task",
	GroupID: "records",
	Short:   "Manage tasks",
	Long: `Tasks are the things you are working on, filed under a group.
Tasks without a group go to the built-in "uncategorized" group.`,
}

var taskAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		t := &schema.Task{Title: args[0], Order: positionFlag(cmd), Priority: 1}
		if ref, _ := cmd.Flags().GetString("group"); ref != "" {
			id, err := resolveID(ctx, a.journal.Groups, ref)
			if err != nil {
				return err
			}
			t.GroupID = id
		}
		t.Cause, _ = cmd.Flags().GetString("cause")
		if cmd.Flags().Changed("priority") {
			t.Priority, _ = cmd.Flags().GetInt("priority")
		}
		err := a.journal.Tasks.Save(ctx, t, false)
		return saved(cmd, fmt.Sprintf("Created task %s (%s)", t.Title, shortID(t.ID)), err)
	}),
}

var taskEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a task or move it to another group",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		t, err := fetch(ctx, a.journal.Tasks, args[0])
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("title") {
			t.Title, _ = flags.GetString("title")
		}
		if flags.Changed("cause") {
			t.Cause, _ = flags.GetString("cause")
		}
		if flags.Changed("priority") {
			t.Priority, _ = flags.GetInt("priority")
		}
		if flags.Changed("group") {
			ref, _ := flags.GetString("group")
			if t.GroupID, err = resolveID(ctx, a.journal.Groups, ref); err != nil {
				return err
			}
			if !flags.Changed("position") {
				t.Order = schema.AppendOrder
			}
		}
		if flags.Changed("position") {
			t.Order = positionFlag(cmd)
		}
		err = a.journal.Tasks.Save(ctx, t, true)
		return saved(cmd, fmt.Sprintf("Updated task %s", t.Title), err)
	}),
}

var taskDoneCmd = &cobra.Command{
	Use:   "done ID",
	Short: "Mark a task complete",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		t, err := fetch(cmd.Context(), a.journal.Tasks, args[0])
		if err != nil {
			return err
		}
		undo, _ := cmd.Flags().GetBool("undo")
		t.IsComplete = !undo
		err = a.journal.Tasks.Save(cmd.Context(), t, true)
		verb := "Completed"
		if undo {
			verb = "Reopened"
		}
		return saved(cmd, fmt.Sprintf("%s task %s", verb, t.Title), err)
	}),
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks, grouped",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		deleted, _ := cmd.Flags().GetBool("deleted")
		hideDone, _ := cmd.Flags().GetBool("open")

		groups, err := a.journal.Groups.Collect(ctx, engine.Filter{})
		if err != nil {
			return err
		}
		if ref, _ := cmd.Flags().GetString("group"); ref != "" {
			g, err := fetch(ctx, a.journal.Groups, ref)
			if err != nil {
				return err
			}
			groups = []*schema.Group{g}
		}

		var rows [][]string
		for _, g := range groups {
			tasks, err := a.journal.Tasks.Collect(ctx, engine.Filter{ParentID: g.ID, IncludeDeleted: deleted})
			if err != nil {
				return err
			}
			for _, t := range tasks {
				if hideDone && t.IsComplete {
					continue
				}
				done := ""
				if t.IsComplete {
					done = ui.RenderPass("done")
				}
				rows = append(rows, []string{
					shortID(t.ID), g.Title, fmt.Sprint(t.Order), t.Title, priorities[t.Priority], done, deletedMark(&t.Meta),
				})
			}
		}
		printTable(cmd.OutOrStdout(), "No tasks.", []string{"ID", "GROUP", "#", "TITLE", "PRIORITY", "", ""}, rows)
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{taskAddCmd, taskEditCmd} {
		c.Flags().String("group", "", "Group id (default: uncategorized)")
		c.Flags().String("cause", "", "Root cause of the problem")
		c.Flags().Int("priority", 1, "Priority: 0 low, 1 normal, 2 high")
		c.Flags().Int("position", 0, "Position within the group, 0 is first (default: last)")
	}
	taskEditCmd.Flags().String("title", "", "New title")
	taskDoneCmd.Flags().Bool("undo", false, "Reopen the task instead")
	taskListCmd.Flags().String("group", "", "Only this group")
	taskListCmd.Flags().Bool("open", false, "Hide completed tasks")
	taskListCmd.Flags().Bool("deleted", false, "Include deleted tasks")

	taskCmd.AddCommand(taskAddCmd, taskEditCmd, taskDoneCmd, taskListCmd,
		newRmCmd(func(j *journal.Journal) *engine.Engine[*schema.Task] { return j.Tasks }))
	rootCmd.AddCommand(taskCmd)
}
