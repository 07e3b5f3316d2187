package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/types"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var favCmd = &cobra.Command{
	Use:   "fav",
	Short: "Manage favorites (the interesting people a sparse tree keeps)",
}

var favAddCmd = &cobra.Command{
	Use:   "add PERSON",
	Short: "Mark a person as a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		why, _ := cmd.Flags().GetString("why")
		tags, _ := cmd.Flags().GetStringSlice("tags")
		dbName, _ := cmd.Flags().GetString("db")

		db, err := resolveDatabase(rootCtx, dbName)
		if err != nil {
			return err
		}
		person, err := resolvePerson(rootCtx, args[0])
		if err != nil {
			return err
		}
		err = app.Store.AddFavorite(rootCtx, &types.Favorite{
			DBID:           db.ID,
			PersonID:       person.ID,
			WhyInteresting: why,
			Tags:           tags,
		})
		if err != nil {
			return err
		}
		if !quietFlag {
			fmt.Printf("%s %s added to %s\n", ui.RenderPassIcon(), person.DisplayName, db.Name)
		}
		return nil
	},
}

var favRmCmd = &cobra.Command{
	Use:   "rm PERSON",
	Short: "Remove a favorite",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbName, _ := cmd.Flags().GetString("db")
		db, err := resolveDatabase(rootCtx, dbName)
		if err != nil {
			return err
		}
		person, err := resolvePerson(rootCtx, args[0])
		if err != nil {
			return err
		}
		if err := app.Store.RemoveFavorite(rootCtx, db.ID, person.ID); err != nil {
			return err
		}
		if !quietFlag {
			fmt.Printf("%s %s removed from %s\n", ui.RenderPassIcon(), person.DisplayName, db.Name)
		}
		return nil
	},
}

var favListCmd = &cobra.Command{
	Use:   "list",
	Short: "List favorites",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbName, _ := cmd.Flags().GetString("db")
		db, err := resolveDatabase(rootCtx, dbName)
		if err != nil {
			return err
		}
		favorites, err := app.Store.ListFavorites(rootCtx, db.ID)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(favorites)
			return nil
		}
		if len(favorites) == 0 {
			fmt.Println(ui.RenderMuted("no favorites"))
			return nil
		}
		nameOf := nameResolver(rootCtx)
		for _, f := range favorites {
			line := fmt.Sprintf("%s %s %s", ui.IconFav, nameOf(f.PersonID), ui.RenderMuted(f.PersonID))
			if f.WhyInteresting != "" {
				line += "\n  " + f.WhyInteresting
			}
			if len(f.Tags) > 0 {
				line += "\n  " + ui.RenderAccent(strings.Join(f.Tags, ", "))
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	favAddCmd.Flags().String("why", "", "Why this person is interesting")
	favAddCmd.Flags().StringSlice("tags", nil, "Tags, in order")
	favCmd.AddCommand(favAddCmd, favRmCmd, favListCmd)
	rootCmd.AddCommand(favCmd)
}
