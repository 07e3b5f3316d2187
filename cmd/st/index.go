package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atomantic/SparseTree-sub004/internal/crawler"
	"github.com/atomantic/SparseTree-sub004/internal/jobs"
	"github.com/atomantic/SparseTree-sub004/internal/telemetry"
	"github.com/atomantic/SparseTree-sub004/internal/types"
)

var indexCmd = &cobra.Command{
	Use:   "index ROOT_ID",
	Short: "Crawl a provider pedigree into the database",
	Long: `Breadth-first crawl of the ancestor graph starting at ROOT_ID on the
selected provider. Parents enqueue father before mother; visited and
ignored IDs are skipped. Interrupting with Ctrl-C checkpoints what was
collected (edges, membership, generations) before exit.

Exit codes: 0 on completion or clean interrupt, 1 on usage error,
2 on fatal fetch or store error.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().Int("max", 0, "Maximum generations to crawl (0 = unbounded)")
	indexCmd.Flags().StringSlice("ignore", nil, "External IDs to skip entirely")
	indexCmd.Flags().String("cache", "all", "Provider cache mode: all|complete|none")
	indexCmd.Flags().String("oldest", "", `Prune persons born before this year (e.g. "1500" or "1820 BC")`)
	indexCmd.Flags().String("source", "", "Provider to crawl (default: configured default provider)")
	indexCmd.Flags().String("database", "", "Database name for the crawl (default: ROOT_ID)")
	indexCmd.Flags().Bool("tsv", false, "Emit progress as tab-separated values")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	maxGen, _ := cmd.Flags().GetInt("max")
	ignore, _ := cmd.Flags().GetStringSlice("ignore")
	cache, _ := cmd.Flags().GetString("cache")
	oldest, _ := cmd.Flags().GetString("oldest")
	database, _ := cmd.Flags().GetString("database")
	tsv, _ := cmd.Flags().GetBool("tsv")

	source := cfg.DefaultProvider
	if s, _ := cmd.Flags().GetString("source"); s != "" {
		source = types.Source(s)
	}

	floor, err := parseOldest(oldest)
	if err != nil {
		return err
	}
	delays := cfg.Delays(source)
	opts := crawler.Options{
		RootID:         args[0],
		Source:         source,
		Database:       database,
		MaxGenerations: maxGen,
		Ignore:         ignore,
		CacheMode:      types.CacheMode(cache),
		OldestYear:     floor,
		Delays:         &delays,
	}

	// One indexer per data dir; read-only commands never take the lock.
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		exitStatus = 2
		return fmt.Errorf("acquire data-dir lock: %w", err)
	}
	if !locked {
		exitStatus = 2
		return fmt.Errorf("another indexer holds %s", cfg.LockPath())
	}
	defer func() { _ = lock.Unlock() }()

	return runJob(types.JobIndex, app.Crawler().Runner(opts), tsv)
}

// runJob starts a job, streams its progress to stdout until the
// terminal event, and maps the outcome to the exit-code contract.
// Shared by index, discover, and geocode.
func runJob(kind types.JobKind, runner jobs.Runner, tsv bool) error {
	metrics := telemetry.NewJobMetrics()
	start := time.Now()

	job, err := app.Jobs.Start(rootCtx, kind, runner)
	if err != nil {
		return err
	}
	events, unsubscribe := job.Subscribe()
	defer unsubscribe()

	var terminal types.Progress
	g := new(errgroup.Group)
	g.Go(func() error {
		for p := range events {
			if tsv {
				printProgressTSV(p)
			} else {
				printProgress(p)
			}
			if p.Type.IsTerminal() {
				terminal = p
			}
		}
		return nil
	})
	<-job.Done()
	_ = g.Wait()

	// A printer that fell behind was disconnected before the terminal
	// event; a fresh subscription replays it.
	if !terminal.Type.IsTerminal() {
		replay, cancel := job.Subscribe()
		if p, ok := <-replay; ok {
			terminal = p
			if tsv {
				printProgressTSV(p)
			} else {
				printProgress(p)
			}
		}
		cancel()
	}

	metrics.Record(context.Background(), kind, time.Since(start), terminalErr(terminal))

	switch terminal.Type {
	case types.ProgressError:
		exitStatus = 2
		return fmt.Errorf("%s job failed: %s", kind, terminal.Message)
	case types.ProgressCancelled:
		log.Info("job interrupted; progress checkpointed", "kind", kind)
	}
	return nil
}

func terminalErr(p types.Progress) error {
	switch p.Type {
	case types.ProgressCancelled:
		return context.Canceled
	case types.ProgressError:
		return errors.New(p.Message)
	}
	return nil
}

func printProgressTSV(p types.Progress) {
	row := []string{string(p.Type), strconv.Itoa(p.Current), strconv.Itoa(p.Total), p.CurrentItem, p.Message}
	if p.Counters != nil {
		row = append(row,
			strconv.Itoa(p.Counters.Discovered),
			strconv.Itoa(p.Counters.Skipped),
			strconv.Itoa(p.Counters.Errors))
	}
	tsvRow(row...)
}

func parseOldest(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	bc := false
	if rest, ok := strings.CutSuffix(strings.ToUpper(s), " BC"); ok {
		bc = true
		s = strings.TrimSpace(rest)
	}
	year, err := strconv.Atoi(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --oldest year %q", s)
	}
	if bc {
		year = -year
	}
	return &year, nil
}
