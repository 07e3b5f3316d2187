package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/types"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage named databases (rooted subgraphs)",
}

var dbListCmd = &cobra.Command{
	Use:   "list",
	Short: "List databases",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbs, err := app.Store.ListDatabases(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(dbs)
			return nil
		}
		if len(dbs) == 0 {
			fmt.Println(ui.RenderMuted("no databases"))
			return nil
		}
		nameOf := nameResolver(rootCtx)
		for _, db := range dbs {
			members, err := app.Store.GetMembers(rootCtx, db.ID)
			if err != nil {
				return err
			}
			maxGen := "unbounded"
			if db.MaxGenerations > 0 {
				maxGen = strconv.Itoa(db.MaxGenerations) + " generations"
			}
			fmt.Printf("%s  root %s  %s\n", ui.HeaderStyle.Render(db.Name), nameOf(db.RootID),
				ui.RenderMuted(fmt.Sprintf("(%d members, %s)", len(members), maxGen)))
		}
		return nil
	},
}

var dbCreateCmd = &cobra.Command{
	Use:   "create NAME ROOT_PERSON",
	Short: "Create an empty database rooted at an existing person",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxGen, _ := cmd.Flags().GetInt("max")
		root, err := resolvePerson(rootCtx, args[1])
		if err != nil {
			return err
		}
		db := &types.DatabaseInfo{
			Name:           args[0],
			RootID:         root.ID,
			MaxGenerations: maxGen,
		}
		if err := app.Store.CreateDatabase(rootCtx, db); err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(db)
			return nil
		}
		fmt.Printf("%s created %s rooted at %s\n", ui.RenderPassIcon(), db.Name, root.DisplayName)
		return nil
	},
}

var dbRmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Delete a database (membership and favorites; persons stay)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.Store.DeleteDatabase(rootCtx, args[0]); err != nil {
			return err
		}
		if !quietFlag {
			fmt.Printf("%s deleted %s\n", ui.RenderPassIcon(), args[0])
		}
		return nil
	},
}

func init() {
	dbCreateCmd.Flags().Int("max", 0, "Maximum generations (0 = unbounded)")
	dbCmd.AddCommand(dbListCmd, dbCreateCmd, dbRmCmd)
	rootCmd.AddCommand(dbCmd)
}
