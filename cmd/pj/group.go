package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/schema"
)

var groupCmd = &cobra.Command{
	Use:     "group",
	GroupID: "records",
	Short:   "Manage task groups",
}

var groupAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Create a group",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		g := &schema.Group{
			Title: args[0],
			Color: schema.Color(color),
			Order: positionFlag(cmd),
		}
		err := a.journal.Groups.Save(cmd.Context(), g, false)
		return saved(cmd, fmt.Sprintf("Created group %s (%s)", g.Title, shortID(g.ID)), err)
	}),
}

var groupEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Rename, recolor or move a group",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		g, err := fetch(cmd.Context(), a.journal.Groups, args[0])
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("title") {
			g.Title, _ = cmd.Flags().GetString("title")
		}
		if cmd.Flags().Changed("color") {
			color, _ := cmd.Flags().GetString("color")
			g.Color = schema.Color(color)
		}
		if cmd.Flags().Changed("position") {
			g.Order = positionFlag(cmd)
		}
		err = a.journal.Groups.Save(cmd.Context(), g, true)
		return saved(cmd, fmt.Sprintf("Updated group %s", g.Title), err)
	}),
}

var groupListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List groups in display order",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		deleted, _ := cmd.Flags().GetBool("deleted")
		groups, err := a.journal.Groups.Collect(cmd.Context(), engine.Filter{IncludeDeleted: deleted})
		if err != nil {
			return err
		}

		var rows [][]string
		for _, g := range groups {
			tasks, err := a.journal.Tasks.Collect(cmd.Context(), engine.Filter{ParentID: g.ID})
			if err != nil {
				return err
			}
			rows = append(rows, []string{
				shortID(g.ID), fmt.Sprint(g.Order), g.Title, string(g.Color), fmt.Sprint(len(tasks)), deletedMark(&g.Meta),
			})
		}
		printTable(cmd.OutOrStdout(), "No groups.", []string{"ID", "#", "TITLE", "COLOR", "TASKS", ""}, rows)
		return nil
	}),
}

func init() {
	for _, c := range []*cobra.Command{groupAddCmd, groupEditCmd} {
		c.Flags().String("color", "", "Color: red, pink, purple, blue, green, yellow, orange or gray")
		c.Flags().Int("position", 0, "Position among groups, 0 is first (default: last)")
	}
	groupEditCmd.Flags().String("title", "", "New title")
	groupListCmd.Flags().Bool("deleted", false, "Include deleted groups")

	groupCmd.AddCommand(groupAddCmd, groupEditCmd, groupListCmd,
		newRmCmd(func(j *journal.Journal) *engine.Engine[*schema.Group] { return j.Groups }))
	rootCmd.AddCommand(groupCmd)
}
