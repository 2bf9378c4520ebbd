package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/content"
	"github.com/Aman-CERP/contentindex/internal/output"
)

func newApplyCmd() *cobra.Command {
	var rollback bool

	cmd := &cobra.Command{
		Use:   "apply CHANGESET",
		Short: "Apply a YAML changeset as one unit of work",
		Long: `Apply runs every operation of a changeset inside a single unit of work.
Index writes raised by the operations are deferred until the unit commits,
so a failing operation leaves both the content and the indexes untouched.

With --rollback the unit is always rolled back, which shows what the
changeset would do without keeping it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runApply(ctx, cmd, a, args[0], rollback)
			})
		},
	}

	cmd.Flags().BoolVar(&rollback, "rollback", false, "Roll the unit of work back instead of committing it")

	return cmd
}

func runApply(ctx context.Context, cmd *cobra.Command, a *app, path string, rollback bool) error {
	out := output.New(cmd.OutOrStdout())

	cs, err := content.LoadChangeset(path)
	if err != nil {
		return err
	}

	ctx, sc, err := a.scopes.Begin(ctx)
	if err != nil {
		return err
	}
	applyErr := cs.Apply(ctx, a.service)
	if applyErr == nil && !rollback {
		if err := sc.Complete(); err != nil {
			return err
		}
	}
	pending := a.handler.Pending(ctx)
	if err := sc.Close(ctx); err != nil {
		return err
	}
	if applyErr != nil {
		return applyErr
	}

	if err := a.handler.Drain(ctx); err != nil {
		return err
	}

	slog.Info("changeset_applied",
		slog.String("path", path),
		slog.Int("operations", len(cs.Operations)),
		slog.Int("deferred_actions", pending),
		slog.Bool("rolled_back", rollback))

	if rollback {
		out.Warningf("Rolled back %d operations from %s (%d index actions discarded)", len(cs.Operations), path, pending)
		return nil
	}
	out.Successf("Applied %d operations from %s (%d index actions)", len(cs.Operations), path, pending)
	return nil
}
