package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
	"github.com/japaniel/kanjisync/pkg/dictionary"
	"github.com/japaniel/kanjisync/pkg/glyph"
)

// DictionaryLoader yields the dictionary for one run. *dictionary.Cache implements it.
type DictionaryLoader interface {
	Load(ctx context.Context) (dictionary.Source, error)
}

// StaticDictionary serves a fixed Source.
type StaticDictionary struct{ Source dictionary.Source }

// Load returns the wrapped Source.
func (s StaticDictionary) Load(context.Context) (dictionary.Source, error) { return s.Source, nil }

// Engine runs full recalculations and per-review updates against one store.
// A full recalculation holds the write lock; review updates take the read
// lock without waiting and are dropped when it is unavailable.
type Engine struct {
	mu sync.RWMutex

	cfg       *config.Config
	store     Store
	dict      DictionaryLoader
	extractor *glyph.Extractor
	executor  *Executor
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithExtractor overrides the extractor built from the configuration.
func WithExtractor(x *glyph.Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// NewEngine wires an engine. The configuration is validated on every run, not here.
func NewEngine(cfg *config.Config, store Store, dict DictionaryLoader, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg, store: store, dict: dict, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.extractor == nil {
		x, err := glyph.FromConfig(cfg)
		if err != nil {
			return nil, &config.ConfigurationError{Setting: "glyph_ranges", Reason: err.Error()}
		}
		e.extractor = x
	}
	e.executor = NewExecutor(store, cfg, e.logger)
	return e, nil
}

// Recalculate rescans every vocabulary record, plans, and applies the plan.
// Configuration and dictionary parse errors abort before anything is written.
func (e *Engine) Recalculate(ctx context.Context) (*Summary, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID))
	start := time.Now()

	plan, snap, scanned, err := e.prepare(ctx, nil, log)
	if err != nil {
		log.Error("recalculation aborted", zap.Error(err))
		return nil, err
	}
	sum, err := e.executor.Apply(ctx, plan, snap)
	if sum != nil {
		sum.RunID = runID
		sum.Scanned = scanned
	}
	if err != nil {
		return sum, fmt.Errorf("apply plan: %w", err)
	}
	log.Info("recalculation finished",
		zap.Int("scanned", sum.Scanned),
		zap.Int("created", sum.Created),
		zap.Int("tagged", sum.Tagged),
		zap.Int("tags_removed", sum.TagsRemoved),
		zap.Int("suspended", sum.Suspended),
		zap.Int("unsuspended", sum.Unsuspended),
		zap.Int("failed", sum.Failed),
		zap.Int("missing", len(sum.Missing)),
		zap.Duration("elapsed", time.Since(start)))
	return sum, nil
}

// Plan computes the full plan without applying it.
func (e *Engine) Plan(ctx context.Context) (*Plan, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	plan, _, _, err := e.prepare(ctx, nil, e.logger)
	return plan, err
}

// prepare loads state and builds a plan. restrict, when non-nil, limits the
// vocabulary scan and the plan to those literals.
func (e *Engine) prepare(ctx context.Context, restrict map[string]bool, log *zap.Logger) (*Plan, *Snapshot, int, error) {
	dict, err := e.dict.Load(ctx)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load dictionary: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, 0, err
	}

	obs, err := e.observations(ctx, restrict)
	if err != nil {
		return nil, nil, 0, err
	}
	idx := Classify(obs, e.cfg)

	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, 0, err
	}

	plan := BuildPlan(PlanInput{
		Config:       e.cfg,
		Index:        idx,
		Snapshot:     snap,
		Dictionary:   dict,
		Observations: obs,
		Restrict:     restrict,
	})

	scanned := 0
	for _, lit := range idx.Literals() {
		if restrict == nil || restrict[lit] {
			scanned++
		}
	}
	log.Debug("plan built",
		zap.Int("observations", len(obs)),
		zap.Int("literals", idx.Len()),
		zap.Int("characters", len(snap.Characters)),
		zap.Int("actions", len(plan.Actions)))
	return plan, snap, scanned, nil
}

func (e *Engine) observations(ctx context.Context, restrict map[string]bool) ([]Observation, error) {
	sources := e.cfg.ActiveVocabNoteTypes()
	if restrict == nil {
		records, err := e.store.ListVocabRecords(ctx, sources)
		if err != nil {
			return nil, fmt.Errorf("list vocabulary: %w", err)
		}
		return BuildObservations(records, e.cfg, e.extractor), nil
	}

	lits := make([]string, 0, len(restrict))
	for l := range restrict {
		lits = append(lits, l)
	}
	sort.Strings(lits)

	var (
		records []db.VocabRecord
		err     error
	)
	if f, ok := e.store.(VocabFinder); ok {
		records, err = f.ListVocabRecordsContaining(ctx, sources, lits)
	} else {
		records, err = e.store.ListVocabRecords(ctx, sources)
	}
	if err != nil {
		return nil, fmt.Errorf("list vocabulary: %w", err)
	}
	obs := BuildObservations(records, e.cfg, e.extractor)

	// The store prefilter may over-match; keep only observations that really contain a restricted glyph.
	out := obs[:0]
	for _, o := range obs {
		for _, g := range o.Glyphs {
			if restrict[g] {
				out = append(out, o)
				break
			}
		}
	}
	return out, nil
}

func (e *Engine) snapshot(ctx context.Context) (*Snapshot, error) {
	records, err := e.store.ListCharacterRecords(ctx, e.cfg.KanjiNoteType.Name, e.cfg.KanjiNoteType.LiteralField())
	if err != nil {
		return nil, fmt.Errorf("list kanji notes: %w", err)
	}
	leech := "leech"
	if lt, ok := e.store.(LeechTagger); ok {
		tag, err := lt.LeechTag(ctx)
		if err != nil {
			return nil, fmt.Errorf("read leech tag: %w", err)
		}
		if tag != "" {
			leech = tag
		}
	}
	return NewSnapshot(records, leech, e.cfg.KnownKanjiInterval), nil
}
