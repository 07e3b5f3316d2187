package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var backupCmd = &cobra.Command{
	Use:   "backup DEST",
	Short: "Write a consistent snapshot of the database to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Store.CheckpointWAL(rootCtx); err != nil {
			exitStatus = 2
			return err
		}
		if err := app.Store.Backup(rootCtx, args[0]); err != nil {
			exitStatus = 2
			return err
		}
		if !quietFlag {
			fmt.Printf("%s backup written to %s\n", ui.RenderPassIcon(), args[0])
		}
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run integrity checks over the store",
	Long: `Verify referential integrity: parent edges against person rows, media
rows against blobs, FTS rows against persons, and the SQLite integrity
probe. Problems print one per line; exit status 2 when any exist.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		problems, err := app.Store.CheckIntegrity(rootCtx)
		if err != nil {
			exitStatus = 2
			return err
		}
		if jsonOutput {
			outputJSON(map[string]any{"ok": len(problems) == 0, "problems": problems})
			if len(problems) > 0 {
				exitStatus = 2
			}
			return nil
		}
		if len(problems) == 0 {
			fmt.Printf("%s store is consistent\n", ui.RenderPassIcon())
			return nil
		}
		for _, p := range problems {
			fmt.Printf("%s %s\n", ui.RenderFailIcon(), p)
		}
		exitStatus = 2
		return fmt.Errorf("%d integrity problems", len(problems))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := app.Store.GetStatistics(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(stats)
			return nil
		}
		fmt.Println(ui.RenderHeader("store"))
		rows := []struct {
			label string
			n     int
		}{
			{"persons", stats.Persons},
			{"identities", stats.Identities},
			{"parent edges", stats.ParentEdges},
			{"spouse edges", stats.SpouseEdges},
			{"events", stats.Events},
			{"claims", stats.Claims},
			{"databases", stats.Databases},
			{"favorites", stats.Favorites},
			{"blobs", stats.Blobs},
			{"media", stats.Media},
			{"places", stats.Places},
		}
		for _, r := range rows {
			fmt.Printf("  %-14s %d\n", r.label, r.n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd, checkCmd, statsCmd)
}
