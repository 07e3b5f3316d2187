package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/atomantic/SparseTree-sub004/internal/types"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

var showCmd = &cobra.Command{
	Use:   "show PERSON",
	Short: "Show a person's details",
	Long: `Show one person: names, vital events, claims, and parent/spouse
edges. PERSON may be a canonical ID or any provider external ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().Bool("identities", false, "List all external identities with confidences (merge history)")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := rootCtx
	withIdentities, _ := cmd.Flags().GetBool("identities")

	person, err := resolvePerson(ctx, args[0])
	if err != nil {
		return err
	}
	events, err := app.Store.GetEvents(ctx, person.ID)
	if err != nil {
		return err
	}
	claims, err := app.Store.GetClaims(ctx, person.ID)
	if err != nil {
		return err
	}
	parents, err := app.Store.GetParents(ctx, person.ID)
	if err != nil {
		return err
	}
	spouses, err := app.Store.GetSpouses(ctx, person.ID)
	if err != nil {
		return err
	}
	var identities []*types.ExternalIdentity
	if withIdentities {
		if identities, err = app.Store.ListIdentities(ctx, person.ID); err != nil {
			return err
		}
	}

	if jsonOutput {
		out := map[string]any{
			"person":  person,
			"events":  events,
			"claims":  claims,
			"parents": parents,
			"spouses": spouses,
		}
		if withIdentities {
			out["identities"] = identities
		}
		outputJSON(out)
		return nil
	}

	styled := ui.IsTTY()
	header := person.DisplayName
	if span := lifespan(events); span != "" {
		header += "  " + span
	}
	if styled {
		header = ui.HeaderStyle.Render(header)
	}
	fmt.Println(header)
	fmt.Printf("  id: %s  gender: %s  living: %v\n", person.ID, person.Gender, person.Living)
	if person.BirthName != "" && person.BirthName != person.DisplayName {
		fmt.Printf("  birth name: %s\n", person.BirthName)
	}
	if person.Bio != "" {
		fmt.Printf("  %s\n", person.Bio)
	}

	if len(events) > 0 {
		fmt.Println(ui.RenderHeader("events"))
		for _, ev := range events {
			line := fmt.Sprintf("  %-12s %s", ev.Type, ev.DateOriginal)
			if ev.Place != "" {
				line += " @ " + ev.Place
			}
			fmt.Printf("%s %s\n", line, ui.RenderMuted("["+string(ev.Source)+"]"))
		}
	}
	if len(claims) > 0 {
		fmt.Println(ui.RenderHeader("claims"))
		for _, c := range claims {
			fmt.Printf("  %-12s %s %s\n", c.Predicate, c.ValueText, ui.RenderMuted("["+string(c.Source)+"]"))
		}
	}
	if len(parents) > 0 {
		nameOf := nameResolver(ctx)
		fmt.Println(ui.RenderHeader("parents"))
		for _, e := range parents {
			fmt.Printf("  %-8s %s %s\n", e.Role, nameOf(e.ParentID), ui.RenderMuted(e.ParentID))
		}
	}
	if len(spouses) > 0 {
		nameOf := nameResolver(ctx)
		fmt.Println(ui.RenderHeader("spouses"))
		for _, e := range spouses {
			other := e.Person1ID
			if other == person.ID {
				other = e.Person2ID
			}
			fmt.Printf("  %s %s\n", nameOf(other), ui.RenderMuted(other))
		}
	}
	if withIdentities {
		fmt.Println(ui.RenderHeader("identities"))
		for _, id := range identities {
			line := fmt.Sprintf("  %-14s %-16s conf %.2f", id.Source, id.ExternalID, id.Confidence)
			if id.URL != "" {
				line += "  " + ui.RenderMuted(id.URL)
			}
			fmt.Println(line)
		}
		if len(identities) == 0 {
			fmt.Println(ui.RenderMuted("  (none)"))
		}
	}
	return nil
}
