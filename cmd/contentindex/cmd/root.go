// Package cmd provides the CLI commands for contentindex.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/config"
	"github.com/Aman-CERP/contentindex/internal/logging"
	"github.com/Aman-CERP/contentindex/internal/profiling"
	"github.com/Aman-CERP/contentindex/pkg/version"
)

// Persistent flags.
var (
	configPath  string
	debugMode   bool
	metricsFile string
	profile     profiling.Options
)

var profileSession *profiling.Session

// NewRootCmd creates the root command for the contentindex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contentindex",
		Short: "Keep search indexes in sync with a content repository",
		Long: `contentindex applies content changes inside units of work and keeps the
configured search indexes in sync once each unit commits.

Indexes are declared in .contentindex.yaml; run 'contentindex init' to
write one with the default InternalIndex, ExternalIndex and MembersIndex.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !profile.Enabled() {
				return nil
			}
			session, err := profiling.Start(profile)
			if err != nil {
				return err
			}
			profileSession = session
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return stopProfiling()
		},
	}

	cmd.SetVersionTemplate("contentindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: .contentindex.yaml in the working directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write pipeline metrics in the Prometheus text format to this file on exit")
	cmd.PersistentFlags().StringVar(&profile.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profile.Heap, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profile.Trace, "profile-trace", "", "Write an execution trace to this file")

	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newPurgeTypesCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command. Profiles are flushed even when the
// command fails.
func Execute() error {
	err := NewRootCmd().Execute()
	if stopErr := stopProfiling(); err == nil {
		err = stopErr
	}
	return err
}

func stopProfiling() error {
	if profileSession == nil {
		return nil
	}
	err := profileSession.Stop()
	profileSession = nil
	return err
}

// loadConfig loads and validates the configuration selected by --config.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup loads the configuration and installs the logger. The returned
// cleanup closes the log file.
func setup() (*config.Config, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	lc := cfg.LogConfig()
	if debugMode {
		lc.Level = "debug"
		lc.WriteToStderr = true
	}
	cleanup, err := logging.Install(lc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.Debug("config_loaded",
		slog.String("data_dir", cfg.DataDir),
		slog.Int("indexes", len(cfg.Indexes)),
		slog.String("version", version.Version))
	return cfg, cleanup, nil
}
