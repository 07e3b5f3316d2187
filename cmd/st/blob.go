package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/idgen"
	"github.com/atomantic/SparseTree-sub004/internal/types"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "Manage content-addressed media blobs",
}

var blobAddCmd = &cobra.Command{
	Use:   "add PERSON FILE",
	Short: "Attach a file to a person",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		caption, _ := cmd.Flags().GetString("caption")
		primary, _ := cmd.Flags().GetBool("primary")

		person, err := resolvePerson(rootCtx, args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[1]) // #nosec G304 -- user-supplied media path
		if err != nil {
			return err
		}

		hash, isNew, err := app.Store.StoreBlob(rootCtx, data, http.DetectContentType(data))
		if err != nil {
			return err
		}
		media := &types.Media{
			ID:        idgen.New(),
			PersonID:  person.ID,
			BlobHash:  hash,
			Source:    types.SourceUser,
			IsPrimary: primary,
			Caption:   caption,
		}
		if err := app.Store.AddMedia(rootCtx, media); err != nil {
			return err
		}

		if jsonOutput {
			outputJSON(media)
			return nil
		}
		note := "stored"
		if !isNew {
			note = "already stored (deduplicated)"
		}
		fmt.Printf("%s %s attached to %s %s\n", ui.RenderPassIcon(), hash[:12], person.DisplayName, ui.RenderMuted(note))
		return nil
	},
}

var blobGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete blobs no media row references",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := app.Store.GCBlobs(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			outputJSON(map[string]int{"removed": n})
			return nil
		}
		fmt.Printf("%s removed %d orphaned blobs\n", ui.RenderPassIcon(), n)
		return nil
	},
}

func init() {
	blobAddCmd.Flags().String("caption", "", "Caption for the media")
	blobAddCmd.Flags().Bool("primary", false, "Mark as the person's primary image")
	blobCmd.AddCommand(blobAddCmd, blobGCCmd)
	rootCmd.AddCommand(blobCmd)
}
