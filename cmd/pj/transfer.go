package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal/migrate"
	"github.com/practicejournal/pj/internal/journal/schema"
)

var exportCmd = &cobra.Command{
	Use:     "export [FILE]",
	GroupID: "setup",
	Short:   "Write the journal as JSONL",
	Long: `Write one record per line, parents before children. Without FILE the
export goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		opts, err := exportOptions(cmd)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			w := bufio.NewWriter(cmd.OutOrStdout())
			if _, err := migrate.Export(cmd.Context(), a.store, w, opts); err != nil {
				return err
			}
			return w.Flush()
		}

		result, err := migrate.ExportFile(cmd.Context(), a.store, args[0], opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Exported %d records to %s\n", renderPassMark(), result.Exported, args[0])
		if result.BackupCreated != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "   Backup: %s\n", result.BackupCreated)
		}
		return nil
	}),
}

func exportOptions(cmd *cobra.Command) (migrate.ExportOptions, error) {
	var opts migrate.ExportOptions
	opts.IncludeDeleted, _ = cmd.Flags().GetBool("deleted")
	opts.Backup, _ = cmd.Flags().GetBool("backup")
	names, _ := cmd.Flags().GetStringSlice("kind")
	for _, name := range names {
		k, err := schema.ParseKind(name)
		if err != nil {
			return opts, err
		}
		opts.Kinds = append(opts.Kinds, k)
	}
	return opts, nil
}

var importCmd = &cobra.Command{
	Use:     "import FILE",
	GroupID: "setup",
	Short:   "Merge a JSONL export into the journal",
	Long: `Apply an export made by 'pj export'. Records newer than the local copy
are written through the normal save path and queued for sync; older or
equal ones are skipped. Deletions in the file delete local records.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		rows, err := migrate.FromJSONL(args[0])
		if err != nil {
			return err
		}
		result, err := migrate.Import(cmd.Context(), a.journal, rows, migrate.ImportOptions{DryRun: dryRun})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		verb := "Imported"
		if dryRun {
			verb = "Would import"
		}
		fmt.Fprintf(out, "%s %s %d records, skipped %d\n", renderPassMark(), verb, result.Imported, result.Skipped)
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "   %s %s\n", renderWarnMark(), e)
		}
		if len(result.Errors) > 0 {
			return fmt.Errorf("%d records failed to import", len(result.Errors))
		}
		return nil
	}),
}

func init() {
	exportCmd.Flags().StringSlice("kind", nil, "Only these kinds (group, task, measure, memo, note, target)")
	exportCmd.Flags().Bool("deleted", false, "Include deleted records")
	exportCmd.Flags().Bool("backup", false, "Keep a copy of an existing FILE")
	importCmd.Flags().Bool("dry-run", false, "Count records without writing")
	rootCmd.AddCommand(exportCmd, importCmd)
}
