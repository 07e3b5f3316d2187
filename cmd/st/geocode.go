package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/types"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode [PLACE]",
	Short: "Geocode event places through the cache",
	Long: `Without arguments, batch-geocode every place that is not yet resolved,
rate-limited to one request per interval. With a PLACE argument,
geocode that single place text. --reset-not-found flips every
not_found cache row back to pending so a later batch retries it.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGeocode,
}

func init() {
	geocodeCmd.Flags().Bool("reset-not-found", false, "Reset not_found cache rows to pending")
	geocodeCmd.Flags().Bool("tsv", false, "Emit progress as tab-separated values")
	rootCmd.AddCommand(geocodeCmd)
}

func runGeocode(cmd *cobra.Command, args []string) error {
	reset, _ := cmd.Flags().GetBool("reset-not-found")
	tsv, _ := cmd.Flags().GetBool("tsv")

	if reset {
		n, err := app.Geocoder.ResetNotFound(rootCtx)
		if err != nil {
			return err
		}
		if !quietFlag {
			fmt.Printf("%s reset %d not_found places to pending\n", ui.RenderPassIcon(), n)
		}
		if len(args) == 0 {
			return nil
		}
	}

	if len(args) == 1 {
		row, err := app.Geocoder.Lookup(rootCtx, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(row)
			return nil
		}
		switch row.Status {
		case types.GeocodeResolved:
			fmt.Printf("%s %s: %.6f, %.6f  %s\n", ui.RenderPassIcon(),
				row.PlaceText, *row.Lat, *row.Lng, ui.RenderMuted(row.DisplayName))
		default:
			fmt.Printf("%s %s: %s\n", ui.RenderWarnIcon(), row.PlaceText, row.Status)
		}
		return nil
	}

	return runJob(types.JobGeocode, app.Geocoder.Runner(), tsv)
}
