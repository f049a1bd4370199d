package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
	"github.com/japaniel/kanjisync/pkg/dictionary"
	"github.com/japaniel/kanjisync/pkg/reconcile"
)

func (a *app) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration and create the note types",
		Long: `Writes a configuration file with one vocabulary note type ("Vocab",
field "Expression") and a kanji note type ("Kanji"), then creates both note
types in the collection. An existing configuration is kept unless --force.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := os.Stat(a.configPath); err == nil && !force {
				fmt.Fprintf(out, "Keeping existing configuration at %s\n", a.configPath)
			} else {
				starter(a.cfg)
				if err := a.cfg.Save(a.configPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "Configuration written to %s\n", a.configPath)
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			store, err := db.Open(a.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			for _, vt := range a.cfg.ActiveVocabNoteTypes() {
				if _, err := store.EnsureNoteType(ctx, vt.Name, vt.Fields); err != nil {
					return fmt.Errorf("create note type %s: %w", vt.Name, err)
				}
			}
			var kanjiFields []string
			for _, key := range config.KanjiFieldKeys {
				if f := a.cfg.KanjiNoteType.Fields[key]; f != "" {
					kanjiFields = append(kanjiFields, f)
				}
			}
			if _, err := store.EnsureNoteType(ctx, a.cfg.KanjiNoteType.Name, kanjiFields); err != nil {
				return fmt.Errorf("create note type %s: %w", a.cfg.KanjiNoteType.Name, err)
			}
			fmt.Fprintf(out, "Collection ready at %s\n", a.dbPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")
	return cmd
}

// starter fills the note type settings a fresh configuration needs.
func starter(cfg *config.Config) {
	if len(cfg.ActiveVocabNoteTypes()) == 0 {
		cfg.VocabNoteTypes = []config.VocabNoteType{{Name: "Vocab", Fields: []string{"Expression"}}}
	}
	if cfg.KanjiNoteType.Name == "" {
		cfg.KanjiNoteType.Name = "Kanji"
	}
	defaults := map[string]string{
		config.FieldKanji:       "Kanji",
		config.FieldDefinition:  "Meaning",
		config.FieldStrokeCount: "Strokes",
		config.FieldKunyomi:     "Kunyomi",
		config.FieldOnyomi:      "Onyomi",
		config.FieldFrequency:   "Frequency",
	}
	if cfg.KanjiNoteType.Fields == nil {
		cfg.KanjiNoteType.Fields = map[string]string{}
	}
	for key, name := range defaults {
		if cfg.KanjiNoteType.Fields[key] == "" {
			cfg.KanjiNoteType.Fields[key] = name
		}
	}
}

func (a *app) recalcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recalc",
		Short: "Reconcile every kanji note with the vocabulary collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, _, err := a.openEngine()
			if err != nil {
				return err
			}
			defer store.Close()

			sum, err := engine.Recalculate(cmd.Context())
			if sum != nil {
				renderSummary(cmd.OutOrStdout(), sum)
			}
			return err
		},
	}
}

func (a *app) planCmd() *cobra.Command {
	var glyphs string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what recalc would change without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, store, _, err := a.openEngine()
			if err != nil {
				return err
			}
			defer store.Close()

			var plan *reconcile.Plan
			if glyphs != "" {
				var lits []string
				for _, r := range glyphs {
					if s := strings.TrimSpace(string(r)); s != "" && s != "," {
						lits = append(lits, s)
					}
				}
				plan, err = engine.PlanForGlyphs(cmd.Context(), lits)
			} else {
				plan, err = engine.Plan(cmd.Context())
			}
			if err != nil {
				return err
			}
			renderPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	cmd.Flags().StringVar(&glyphs, "glyphs", "", "restrict the plan to these characters, as a review update would")
	return cmd
}

func (a *app) reviewCmd() *cobra.Command {
	var interval int
	cmd := &cobra.Command{
		Use:   "review <card-id>",
		Short: "Record a review of a vocabulary card and update its kanji",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cardID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid card id %q: %w", args[0], err)
			}
			engine, store, _, err := a.openEngine()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			noteID, err := store.RecordReview(ctx, cardID, interval)
			if err != nil {
				return err
			}
			sum, err := engine.OnReview(ctx, reconcile.ReviewEvent{NoteID: noteID})
			if errors.Is(err, reconcile.ErrSuperseded) {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("Review recorded; kanji update skipped while a recalculation runs."))
				return nil
			}
			if sum != nil {
				renderSummary(cmd.OutOrStdout(), sum)
			}
			return err
		},
	}
	cmd.Flags().IntVar(&interval, "interval", 1, "new interval in days")
	return cmd
}

func (a *app) fetchDictionaryCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "fetch-dictionary",
		Short: "Download the kanji dictionary if it is not present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.DictionaryPath()
			if force {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			d := dictionary.Downloader{
				Client: &http.Client{Timeout: 5 * time.Minute},
				Logger: a.logger,
			}
			if err := d.Ensure(cmd.Context(), path, a.cfg.DictionaryURL); err != nil {
				return err
			}
			t, err := dictionary.Open(path, a.cfg.DictionaryFormat)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dictionary ready at %s (%d entries)\n", path, t.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "download even if the file exists")
	return cmd
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Recalculate now and again whenever the dictionary file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine, store, cache, err := a.openEngine()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			run := func() error {
				sum, err := engine.Recalculate(ctx)
				if sum != nil {
					renderSummary(out, sum)
				}
				return err
			}
			if err := run(); err != nil {
				return err
			}

			changed := make(chan struct{}, 1)
			w, err := dictionary.NewWatcher(cache, a.logger, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			if err != nil {
				return err
			}
			if err := w.Start(); err != nil {
				return err
			}
			defer w.Stop()
			fmt.Fprintf(out, "Watching %s\n", cache.Path())

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					// A dictionary mid-write may not parse yet; keep watching.
					if err := run(); err != nil {
						a.logger.Warn("recalculation after dictionary change failed", zap.Error(err))
					}
				}
			}
		},
	}
}
