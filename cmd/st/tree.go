package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/graph"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Render the sparse tree of favorites",
	Long: `Render the database's sparse tree: the root, every favorite, and the
ancestors connecting them, with uninteresting stretches collapsed and
counted. With --watch the tree re-renders whenever the database file
changes.`,
	RunE: runTree,
}

func init() {
	treeCmd.Flags().Bool("watch", false, "Re-render when the database changes")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) error {
	watch, _ := cmd.Flags().GetBool("watch")
	dbName, _ := cmd.Flags().GetString("db")

	if err := renderTree(rootCtx, dbName); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(app.Store.Path()); err != nil {
		return fmt.Errorf("watch %s: %w", app.Store.Path(), err)
	}

	// Bursts of WAL writes collapse into one re-render.
	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-rootCtx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		case <-pending:
			fmt.Println()
			if err := renderTree(rootCtx, dbName); err != nil {
				return err
			}
		}
	}
}

func renderTree(ctx context.Context, dbName string) error {
	db, err := resolveDatabase(ctx, dbName)
	if err != nil {
		return err
	}
	members, err := app.Store.GetMembers(ctx, db.ID)
	if err != nil {
		return err
	}
	favorites, err := app.Store.ListFavorites(ctx, db.ID)
	if err != nil {
		return err
	}

	memberSet := make(map[string]bool, len(members))
	for _, m := range members {
		memberSet[m.PersonID] = true
	}
	favIDs := make([]string, 0, len(favorites))
	for _, f := range favorites {
		favIDs = append(favIDs, f.PersonID)
	}

	tree, err := graph.SparseTree(ctx, app.Store, db.RootID, favIDs, memberSet)
	if err != nil {
		return err
	}

	if jsonOutput {
		outputJSON(tree)
		return nil
	}
	styled := ui.IsTTY()
	header := fmt.Sprintf("%s  %s", db.Name, strings.TrimSpace(fmt.Sprintf("(%d members, %d favorites)", len(members), len(favorites))))
	if styled {
		header = ui.HeaderStyle.Render(db.Name) + "  " + ui.RenderMuted(fmt.Sprintf("(%d members, %d favorites)", len(members), len(favorites)))
	}
	fmt.Println(header)
	fmt.Print(ui.RenderSparseTree(tree, nameResolver(ctx), styled))
	return nil
}
