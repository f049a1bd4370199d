package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
	"github.com/japaniel/kanjisync/pkg/dictionary"
	"github.com/japaniel/kanjisync/pkg/logging"
	"github.com/japaniel/kanjisync/pkg/reconcile"
)

const defaultConfigPath = "kanjisync.yaml"

// app carries the state shared by every command.
type app struct {
	configPath string
	dbPath     string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kanjisync",
		Short: "Keep kanji notes in step with the vocabulary you study",
		Long: `kanjisync scans vocabulary notes for kanji, creates a kanji note for every
character you meet, and tags, suspends or unsuspends existing kanji notes
according to whether you have reviewed vocabulary that uses them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			if a.dbPath == "" {
				a.dbPath = cfg.ResolvePath(cfg.DatabasePath)
			}
			logger, err := logging.New(cfg.Logging, a.verbose)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfigPath, "path to the configuration file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the SQLite collection (default: database_path from the config)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		a.initCmd(),
		a.recalcCmd(),
		a.planCmd(),
		a.reviewCmd(),
		a.fetchDictionaryCmd(),
		a.watchCmd(),
	)
	return root
}

// openEngine opens the collection and wires an engine over it. The caller
// closes the returned store.
func (a *app) openEngine() (*reconcile.Engine, *db.Store, *dictionary.Cache, error) {
	store, err := db.Open(a.dbPath)
	if err != nil {
		return nil, nil, nil, err
	}
	cache := dictionary.NewCache(a.cfg.DictionaryPath(), a.cfg.DictionaryFormat, a.logger)
	engine, err := reconcile.NewEngine(a.cfg, store, cache, reconcile.WithLogger(a.logger))
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return engine, store, cache, nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}

// describe adds a hint to errors a user can act on.
func describe(err error) string {
	var (
		cfgErr   *config.ConfigurationError
		parseErr *dictionary.ParseError
	)
	switch {
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("configuration error: %v", err)
	case errors.As(err, &parseErr):
		return fmt.Sprintf("dictionary could not be parsed: %v", err)
	case errors.Is(err, dictionary.ErrDictionaryNotFound):
		return fmt.Sprintf("%v (run `kanjisync fetch-dictionary` first)", err)
	case errors.Is(err, context.Canceled):
		return "interrupted"
	}
	return err.Error()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+describe(err)))
		os.Exit(exitCode(err))
	}
}
