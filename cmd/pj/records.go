package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/practicejournal/pj/internal/journal"
	"github.com/practicejournal/pj/internal/journal/engine"
	"github.com/practicejournal/pj/internal/journal/schema"
)

// resolveID accepts a full id or a unique prefix of a live record's id.
func resolveID[E schema.Entity](ctx context.Context, en *engine.Engine[E], ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty id", engine.ErrInvalid)
	}
	if _, ok, err := en.FetchByID(ctx, ref); err != nil {
		return "", err
	} else if ok {
		return ref, nil
	}

	var matches []string
	for e, err := range en.FetchAll(ctx, engine.Filter{}) {
		if err != nil {
			return "", err
		}
		if id := e.Metadata().ID; strings.HasPrefix(id, ref) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: no %s matches %q", engine.ErrNotFound, en.Kind(), ref)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("%q is ambiguous: %d %ss match", ref, len(matches), en.Kind())
}

// fetch resolves ref and loads the live record.
func fetch[E schema.Entity](ctx context.Context, en *engine.Engine[E], ref string) (E, error) {
	var zero E
	id, err := resolveID(ctx, en, ref)
	if err != nil {
		return zero, err
	}
	e, ok, err := en.FetchByID(ctx, id)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("%w: %s %s", engine.ErrNotFound, en.Kind(), id)
	}
	return e, nil
}

// newRmCmd builds "<kind> rm ID" for one engine.
func newRmCmd[E schema.Entity](pick func(j *journal.Journal) *engine.Engine[E]) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a record and everything under it",
		Args:    cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			en := pick(a.journal)
			id, err := resolveID(cmd.Context(), en, args[0])
			if err != nil {
				return err
			}
			err = en.Delete(cmd.Context(), id)
			if errors.Is(err, engine.ErrReserved) {
				return fmt.Errorf("%s %s is built in and cannot be deleted", en.Kind(), shortID(id))
			}
			return saved(cmd, fmt.Sprintf("Deleted %s %s", en.Kind(), shortID(id)), err)
		}),
	}
}

// positionFlag converts the --position flag to a sort order.
func positionFlag(cmd *cobra.Command) int {
	if !cmd.Flags().Changed("position") {
		return schema.AppendOrder
	}
	pos, _ := cmd.Flags().GetInt("position")
	if pos < 0 {
		return 0
	}
	return pos
}
