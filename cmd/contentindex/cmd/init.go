package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/config"
	"github.com/Aman-CERP/contentindex/internal/output"
)

func newInitCmd() *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Init writes .contentindex.yaml with the default indexes to the working
directory, or to the user config location with --user.

An existing file is kept unless --force is given, in which case it is
backed up next to the original first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())

			path := configPath
			switch {
			case path != "":
			case user:
				path = config.GetUserConfigPath()
			default:
				path = filepath.Join(".", config.ProjectFileNames[0])
			}

			backup, err := config.WriteDefault(path, force)
			if err != nil {
				return err
			}
			if backup != "" {
				out.Infof("Previous config saved to %s", backup)
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file after backing it up")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}
