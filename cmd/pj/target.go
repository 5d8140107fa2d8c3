package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/schema"
)

var targetCmd = &cobra.Command{
	Use:     "target",
	GroupID: "records",
	Short:   "Manage yearly and monthly targets",
}

var targetAddCmd = &cobra.Command{
	Use:   "add TITLE",
	Short: "Set a target for a year, or for one month with --month",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		year, _ := cmd.Flags().GetInt("year")
		if year == 0 {
			year = time.Now().Year()
		}
		month, _ := cmd.Flags().GetInt("month")
		t := &schema.Target{Title: args[0], Year: year, Month: month, IsYearly: month == 0}
		err := a.journal.Targets.Save(cmd.Context(), t, false)
		return saved(cmd, fmt.Sprintf("Created target %s for %s (%s)", t.Title, period(t), shortID(t.ID)), err)
	}),
}

var targetListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List targets",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		year, _ := cmd.Flags().GetInt("year")
		var rows [][]string
		for t, err := range a.journal.Targets.FetchAll(cmd.Context(), engine.Filter{}) {
			if err != nil {
				return err
			}
			if year != 0 && t.Year != year {
				continue
			}
			rows = append(rows, []string{shortID(t.ID), period(t), t.Title})
		}
		printTable(cmd.OutOrStdout(), "No targets.", []string{"ID", "PERIOD", "TARGET"}, rows)
		return nil
	}),
}

func period(t *schema.Target) string {
	if t.IsYearly {
		return fmt.Sprint(t.Year)
	}
	return fmt.Sprintf("%d-%02d", t.Year, t.Month)
}

func init() {
	targetAddCmd.Flags().Int("year", 0, "Year (default: this year)")
	targetAddCmd.Flags().Int("month", 0, "Month 1-12 for a monthly target")
	targetListCmd.Flags().Int("year", 0, "Only this year")

	targetCmd.AddCommand(targetAddCmd, targetListCmd,
		newRmCmd(func(j *journal.Journal) *engine.Engine[*schema.Target] { return j.Targets }))
	rootCmd.AddCommand(targetCmd)
}
