package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/contentindex/internal/output"
	"github.com/Aman-CERP/contentindex/internal/valueset"
)

func newValidateCmd() *cobra.Command {
	var (
		category string
		jsonOut  bool
	)

	cmd := &cobra.Command{
		Use:   "validate INDEX ID",
		Short: "Show how an index would treat an entity",
		Long: `Validate builds the value sets of one entity and runs them through the
named index's validator without writing anything. A rejected entity makes
the command fail with the rejection reason.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid id %q", args[1])
			}
			cat, ok := valueset.ParseCategory(category)
			if !ok {
				return fmt.Errorf("unknown category %q (want content, media or member)", category)
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
				return runValidate(ctx, cmd, a, args[0], cat, id, jsonOut)
			})
		},
	}

	cmd.Flags().StringVar(&category, "category", string(valueset.CategoryContent), "Entity category: content, media or member")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}

type validationRow struct {
	ID       string `json:"id"`
	ItemType string `json:"item_type"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
}

func runValidate(ctx context.Context, cmd *cobra.Command, a *app, index string, category valueset.Category, id int, jsonOut bool) error {
	out := output.New(cmd.OutOrStdout())

	results, err := a.handler.Validate(ctx, category, id, index)

	rows := make([]validationRow, 0, len(results))
	for _, r := range results {
		row := validationRow{Status: r.Status.String(), Reason: r.Reason}
		if r.ValueSet != nil {
			row.ID = r.ValueSet.ID
			row.ItemType = r.ValueSet.ItemType
		}
		rows = append(rows, row)
	}

	if jsonOut {
		if jerr := out.JSON(rows); jerr != nil {
			return jerr
		}
		return err
	}

	if len(rows) > 0 {
		table := make([][]string, 0, len(rows))
		for _, r := range rows {
			table = append(table, []string{r.ID, r.ItemType, r.Status, r.Reason})
		}
		out.Table([]string{"ID", "TYPE", "STATUS", "REASON"}, table)
	}
	return err
}
