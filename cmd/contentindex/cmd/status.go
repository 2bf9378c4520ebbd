package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/indexing"
	"github.com/Aman-CERP/contentindex/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and worker state",
		Long: `Display every configured index with its document count and circuit
state, plus the background worker and deferred action counters.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return renderStatus(output.New(cmd.OutOrStdout()), a.handler.Status(ctx), jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func renderStatus(out *output.Writer, st indexing.Status, jsonOutput bool) error {
	if jsonOutput {
		return out.JSON(st)
	}

	if st.Enabled {
		out.Successf("Index writing enabled")
	} else {
		out.Warningf("Index writing disabled (not the main instance, or no index handles events)")
	}

	rows := make([][]string, 0, len(st.Indexes))
	for _, idx := range st.Indexes {
		docs := strconv.Itoa(idx.Documents)
		if idx.Documents < 0 {
			docs = "?"
		}
		rebuild := "-"
		if idx.Rebuild != nil {
			rebuild = idx.Rebuild.Status
		}
		rows = append(rows, []string{
			idx.Name,
			yesNo(idx.EventHandling),
			yesNo(idx.PublishedValuesOnly),
			docs,
			idx.Circuit,
			rebuild,
		})
	}
	out.Table([]string{"INDEX", "EVENTS", "PUBLISHED ONLY", "DOCUMENTS", "CIRCUIT", "REBUILD"}, rows)

	out.Infof("worker: %s, %d queued, %d processed, %d failed, %d dropped",
		st.Worker.Status, st.Worker.Queued, st.Worker.Processed, st.Worker.Failed, st.Worker.Dropped)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
