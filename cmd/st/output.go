package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/atomantic/SparseTree-sub004/internal/storage"
	"github.com/atomantic/SparseTree-sub004/internal/types"
	"github.com/atomantic/SparseTree-sub004/internal/ui"
)

// outputJSON prints v as indented JSON on stdout.
func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encode JSON: %v\n", err)
	}
}

// tsvRow prints one tab-separated row; embedded tabs and newlines in
// fields are flattened to spaces.
func tsvRow(fields ...string) {
	clean := make([]string, len(fields))
	for i, f := range fields {
		clean[i] = strings.NewReplacer("\t", " ", "\n", " ").Replace(f)
	}
	fmt.Println(strings.Join(clean, "\t"))
}

// resolvePerson accepts either a canonical person ID or a provider
// external ID and returns the person row.
func resolvePerson(ctx context.Context, ref string) (*types.Person, error) {
	p, err := app.Store.GetPerson(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrInvalidID) {
		return nil, err
	}
	id, err := app.Store.FindPersonByExternalIDAnySource(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("no person matches %q", ref)
		}
		return nil, err
	}
	return app.Store.GetPerson(ctx, id)
}

// resolveDatabase returns the database row for the --db flag value, or
// the only database when the flag is empty and exactly one exists.
func resolveDatabase(ctx context.Context, name string) (*types.DatabaseInfo, error) {
	if name == "" {
		name = cfg.DefaultDB
	}
	if name != "" {
		return app.Store.GetDatabase(ctx, name)
	}
	dbs, err := app.Store.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	switch len(dbs) {
	case 0:
		return nil, fmt.Errorf("no databases exist; run st index first")
	case 1:
		return dbs[0], nil
	}
	names := make([]string, len(dbs))
	for i, db := range dbs {
		names[i] = db.Name
	}
	return nil, fmt.Errorf("several databases exist (%s); pick one with --db", strings.Join(names, ", "))
}

// nameResolver returns a memoized person-ID-to-name lookup for tree
// rendering. Unknown IDs render as themselves.
func nameResolver(ctx context.Context) ui.NameFunc {
	memo := make(map[string]string)
	return func(id string) string {
		if name, ok := memo[id]; ok {
			return name
		}
		name := id
		if p, err := app.Store.GetPerson(ctx, id); err == nil {
			name = p.DisplayName
		}
		memo[id] = name
		return name
	}
}

// lifespan formats birth-death years for a person from its events,
// e.g. "1820–1885", "1820–", or "".
func lifespan(events []*types.VitalEvent) string {
	var birth, death string
	for _, ev := range events {
		if ev.DateYear == nil {
			continue
		}
		switch ev.Type {
		case types.EventBirth:
			if birth == "" {
				birth = formatYear(*ev.DateYear)
			}
		case types.EventDeath:
			if death == "" {
				death = formatYear(*ev.DateYear)
			}
		}
	}
	if birth == "" && death == "" {
		return ""
	}
	return birth + "-" + death
}

func formatYear(y int) string {
	if y < 0 {
		return fmt.Sprintf("%d BC", -y)
	}
	return fmt.Sprintf("%d", y)
}

// printProgress renders one progress event as a human-readable line.
func printProgress(p types.Progress) {
	switch p.Type {
	case types.ProgressStarted:
		if !quietFlag {
			fmt.Printf("%s job %s started\n", p.Kind, p.JobID)
		}
	case types.ProgressWorking:
		if quietFlag {
			return
		}
		line := fmt.Sprintf("[%d", p.Current)
		if p.Total > 0 {
			line += fmt.Sprintf("/%d", p.Total)
		}
		line += "] " + p.Message
		if p.Counters != nil {
			line += ui.RenderMuted(fmt.Sprintf("  (+%d stored, %d skipped, %d errors)",
				p.Counters.Discovered, p.Counters.Skipped, p.Counters.Errors))
		}
		fmt.Println(line)
	case types.ProgressCompleted:
		fmt.Printf("%s %s\n", ui.RenderPassIcon(), "completed")
	case types.ProgressCancelled:
		fmt.Printf("%s %s\n", ui.RenderWarnIcon(), "cancelled (progress checkpointed)")
	case types.ProgressError:
		fmt.Printf("%s %s\n", ui.RenderFailIcon(), p.Message)
	}
}
