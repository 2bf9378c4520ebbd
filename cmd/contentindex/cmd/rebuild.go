package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/async"
	"github.com/Aman-CERP/contentindex/internal/output"
	"github.com/Aman-CERP/contentindex/internal/ui"
)

func newRebuildCmd() *cobra.Command {
	var (
		quiet   bool
		plain   bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild [INDEX...]",
		Short: "Clear and refill indexes from the content repository",
		Long: `Rebuild clears each named index and writes every entity it accepts.
Without arguments every configured index is rebuilt, including indexes
that do not receive change events.

Only the process holding the writer role may rebuild.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				names := args
				if len(names) == 0 {
					names = a.registry.Names()
				}
				var renderer ui.Renderer
				if !quiet {
					renderer = ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
						ui.WithForcePlain(plain),
						ui.WithNoColor(noColor)))
				}
				return runRebuild(ctx, cmd, a, names, renderer)
			})
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show progress")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print progress as plain lines instead of the terminal UI")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored progress")

	return cmd
}

func runRebuild(ctx context.Context, cmd *cobra.Command, a *app, names []string, renderer ui.Renderer) error {
	if renderer != nil {
		if err := renderer.Start(ctx); err != nil {
			return err
		}
	}

	var results []async.RebuildSnapshot
	err := func() error {
		if renderer != nil {
			defer func() { _ = renderer.Stop() }()
		}
		for _, name := range names {
			stop := func() {}
			if renderer != nil {
				stop = pollRebuild(a, name, renderer)
			}
			snap, err := a.handler.Rebuild(ctx, name)
			stop()
			if err != nil {
				return err
			}
			if renderer != nil {
				renderer.Complete(ui.CompletionStats{
					Index:    name,
					Entities: snap.EntitiesTotal,
					Written:  snap.DocumentsWritten,
					Skipped:  snap.DocumentsSkipped,
					Duration: time.Duration(snap.ElapsedSeconds) * time.Second,
				})
			}
			results = append(results, snap)
		}
		return nil
	}()

	out := output.New(cmd.OutOrStdout())
	for _, snap := range results {
		out.Successf("Rebuilt %s: %d documents written, %d skipped of %d entities (%ds)",
			snap.Index, snap.DocumentsWritten, snap.DocumentsSkipped, snap.EntitiesTotal, snap.ElapsedSeconds)
	}
	return err
}

// pollRebuild forwards the progress of the rebuild of index to renderer
// until the returned stop function is called.
func pollRebuild(a *app, index string, renderer ui.Renderer) func() {
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				snap, ok := a.handler.RebuildStatus(index)
				if !ok || snap.Status != string(async.StatusRebuilding) {
					continue
				}
				renderer.UpdateProgress(ui.ProgressEvent{
					Index:   index,
					Stage:   ui.Stage(snap.Stage),
					Current: snap.EntitiesProcessed,
					Total:   snap.EntitiesTotal,
				})
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}
