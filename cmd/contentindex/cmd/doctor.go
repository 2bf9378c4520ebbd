package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/output"
	"github.com/Aman-CERP/contentindex/internal/preflight"
	"github.com/Aman-CERP/contentindex/internal/store"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host and data directory",
		Long: `Run preflight checks without opening any index: data directory
permissions, free disk space, the open file limit, the writer lock,
interrupted rebuilds and the backend of every configured index.

Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cleanup, err := setup()
			if err != nil {
				return err
			}
			defer cleanup()

			target := preflight.Target{DataDir: cfg.DataDir}
			for _, ic := range cfg.Indexes {
				path := ic.Path
				if path == "" {
					path = store.DefaultPath(cfg.DataDir, ic.Name)
				}
				target.Indexes = append(target.Indexes, preflight.IndexTarget{
					Name:    ic.Name,
					Backend: ic.Backend,
					Path:    path,
				})
			}

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
			)
			results := checker.RunAll(cmd.Context(), target)
			summary := checker.SummaryStatus(results)
			slog.Info("doctor_finished",
				slog.String("status", summary),
				slog.Int("checks", len(results)))

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(struct {
					Status string                  `json:"status"`
					Checks []preflight.CheckResult `json:"checks"`
				}{summary, results}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return errors.New("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")

	return cmd
}
