package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/output"
)

func newPurgeTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-types TYPE_ID...",
		Short: "Remove every indexed document of the given content types",
		Long: `Purge-types searches each index for documents whose content type id
matches and deletes them. Content in the repository is not touched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typeIDs := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid type id %q", arg)
				}
				typeIDs = append(typeIDs, id)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				if !a.handler.IsEnabled() {
					output.New(cmd.OutOrStdout()).Warningf("Index writing is disabled in this process; nothing purged")
					return nil
				}
				if err := a.handler.DeleteDocumentsForContentTypes(ctx, typeIDs); err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Successf("Purged content types %v", typeIDs)
				return nil
			})
		},
	}
	return cmd
}
