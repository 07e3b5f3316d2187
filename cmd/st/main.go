package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	sparsetree "github.com/atomantic/SparseTree-sub004"
	"github.com/atomantic/SparseTree-sub004/internal/config"
	"github.com/atomantic/SparseTree-sub004/internal/telemetry"
)

var (
	cfg *config.Config
	app *sparsetree.App
	log *slog.Logger

	jsonOutput  bool
	verboseFlag bool
	quietFlag   bool

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc

	// exitStatus is the process exit code. Commands set 2 for fatal
	// fetch/store errors; usage errors exit 1 via cobra's error return.
	exitStatus int
)

// noStoreCommands run without opening a database.
var noStoreCommands = map[string]bool{
	"help":       true,
	"version":    true,
	"completion": true,
	"__complete": true,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default: ~/.sparsetree, env SPARSETREE_DATA_DIR)")
	rootCmd.PersistentFlags().String("db", "", "Database name (default: configured default database)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "st",
	Short: "st - Sparse family-tree indexer",
	Long: `A personal genealogical knowledge graph. Crawl remote family-tree
providers into an embedded database, then query pedigrees, paths, and
sparse trees over the people you care about.`,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("st version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

		if noStoreCommands[cmd.Name()] {
			return nil
		}

		if err := cfg.EnsureDataDir(); err != nil {
			return err
		}
		log = setupLogging()

		if err := telemetry.Init(rootCtx, "st", Version); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}

		dbName, _ := cmd.Flags().GetString("db")
		app, err = sparsetree.Open(rootCtx, cfg, dbName, log)
		if err != nil {
			exitStatus = 2
			return fmt.Errorf("open store: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := app.Close(closeCtx); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: close: %v\n", err)
			}
			cancel()
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		telemetry.Shutdown(shutCtx)
		cancel()

		if rootCancel != nil {
			rootCancel()
		}
	},
}

// setupLogging builds the CLI logger: always to the rotating job log in
// the data dir, and to stderr at a level set by --verbose/--quiet.
func setupLogging() *slog.Logger {
	fileLevel := slog.LevelInfo
	stderrLevel := slog.LevelWarn
	switch {
	case verboseFlag:
		stderrLevel = slog.LevelDebug
		fileLevel = slog.LevelDebug
	case quietFlag:
		stderrLevel = slog.LevelError
	}

	rotor := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir(), "sparsetree.log"),
		MaxSize:    10, // MiB
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	return slog.New(newTeeHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: stderrLevel}),
		slog.NewTextHandler(rotor, &slog.HandlerOptions{Level: fileLevel}),
	))
}

// teeHandler fans records out to both log destinations; each applies
// its own level filter.
type teeHandler struct {
	handlers []slog.Handler
}

func newTeeHandler(handlers ...slog.Handler) slog.Handler {
	return &teeHandler{handlers: handlers}
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &teeHandler{handlers: out}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		out[i] = h.WithGroup(name)
	}
	return &teeHandler{handlers: out}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if exitStatus == 0 {
			exitStatus = 1
		}
	}
	os.Exit(exitStatus)
}
