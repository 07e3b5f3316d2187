package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Full-text search over names, aliases, occupations, and bios",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().Int("limit", 20, "Maximum results")
	searchCmd.Flags().Bool("tsv", false, "Emit tab-separated values")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	tsv, _ := cmd.Flags().GetBool("tsv")

	results, err := app.Store.SearchPersons(rootCtx, args[0], limit)
	if err != nil {
		return err
	}

	switch {
	case jsonOutput:
		outputJSON(results)
	case tsv:
		for _, r := range results {
			tsvRow(r.PersonID, r.DisplayName, strconv.FormatFloat(r.Rank, 'f', 4, 64), r.Snippet)
		}
	default:
		if len(results) == 0 {
			fmt.Println(ui.RenderMuted("no matches"))
			return nil
		}
		for _, r := range results {
			fmt.Printf("%s %s\n", r.DisplayName, ui.RenderMuted(r.PersonID))
			if r.Snippet != "" {
				fmt.Printf("  %s\n", r.Snippet)
			}
		}
	}
	return nil
}
