package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/types"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover provider identities through children's records",
	Long: `Find persons whose children carry a link to the target provider but
who lack one themselves, fetch each child's provider record, and match
its parent slots against the local parents. Confirmed matches register
at confidence 1.0 (name agreement) or 0.7 (role only).`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().String("source", "", "Target provider (default: configured default provider)")
	discoverCmd.Flags().Bool("tsv", false, "Emit progress as tab-separated values")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	tsv, _ := cmd.Flags().GetBool("tsv")
	dbName, _ := cmd.Flags().GetString("db")

	source := cfg.DefaultProvider
	if s, _ := cmd.Flags().GetString("source"); s != "" {
		source = types.Source(s)
	}
	if !source.IsProvider() {
		return fmt.Errorf("source %q is not a crawlable provider", source)
	}

	db, err := resolveDatabase(rootCtx, dbName)
	if err != nil {
		return err
	}
	return runJob(types.JobDiscover, app.Finder().Runner(db.ID, source), tsv)
}
