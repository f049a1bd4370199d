package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
	"github.com/japaniel/kanjisync/pkg/dictionary"
)

// Mutator is the write half of the record store.
type Mutator interface {
	CreateRecord(ctx context.Context, noteType string, fields map[string]string, deckHint string) (int64, error)
	SetTags(ctx context.Context, noteID int64, add, remove []string) error
	SetSuspended(ctx context.Context, cardIDs []int64, suspended bool) error
}

// Store is the record store the engine reads from and writes to.
type Store interface {
	ListVocabRecords(ctx context.Context, sources []config.VocabNoteType) ([]db.VocabRecord, error)
	ListCharacterRecords(ctx context.Context, noteType, literalField string) ([]db.CharacterRecord, error)
	Mutator
}

// VocabFinder is implemented by stores that can narrow the vocabulary listing
// to records containing given literals.
type VocabFinder interface {
	ListVocabRecordsContaining(ctx context.Context, sources []config.VocabNoteType, literals []string) ([]db.VocabRecord, error)
}

// Batcher is implemented by stores that can run a plan in one transaction
// with per-action savepoints.
type Batcher interface {
	BeginBatch(ctx context.Context) (*db.Batch, error)
}

// LeechTagger is implemented by stores that know the scheduler's leech tag.
type LeechTagger interface {
	LeechTag(ctx context.Context) (string, error)
}

// NoteGetter is implemented by stores that can load a single note.
type NoteGetter interface {
	Note(ctx context.Context, id int64) (*db.Note, error)
}

// Executor applies plans to a store.
type Executor struct {
	store  Store
	cfg    *config.Config
	logger *zap.Logger
}

// NewExecutor returns an executor writing to store.
func NewExecutor(store Store, cfg *config.Config, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{store: store, cfg: cfg, logger: logger}
}

// Apply runs every action in order. A rejected action is recorded in the
// summary and the run continues. The returned error is non-nil only when the
// batch transaction itself could not be committed.
//
// Once started, a plan runs to completion: cancellation of ctx is ignored so
// that a partially applied plan is always committed.
func (e *Executor) Apply(ctx context.Context, plan *Plan, snap *Snapshot) (*Summary, error) {
	ctx = context.WithoutCancel(ctx)
	sum := &Summary{
		Missing:    append([]string(nil), plan.Missing...),
		Duplicates: append([]Duplicate(nil), plan.Duplicates...),
	}
	if plan.Empty() {
		return sum, nil
	}

	var (
		m     Mutator = e.store
		batch *db.Batch
	)
	if b, ok := e.store.(Batcher); ok {
		var err error
		batch, err = b.BeginBatch(ctx)
		if err != nil {
			e.logger.Warn("batch unavailable, applying actions directly", zap.Error(err))
			batch = nil
		} else {
			m = batch
		}
	}

	created := map[string]int64{}
	for _, a := range plan.Actions {
		a := a
		if skipLeech(a, snap) {
			e.logger.Debug("leech stays suspended", zap.String("literal", a.Literal), zap.Int64("note_id", a.NoteID))
			continue
		}
		run := func(ctx context.Context) error { return e.apply(ctx, m, a, created) }
		var err error
		if batch != nil {
			err = batch.Step(ctx, run)
		} else {
			err = run(ctx)
		}
		if err != nil {
			if a.Kind == CreateCharacterNote {
				delete(created, a.Literal)
			}
			sum.Failed++
			sum.Failures = append(sum.Failures, &StoreActionError{Action: a, Err: err})
			e.logger.Warn("action failed",
				zap.String("kind", a.Kind.String()),
				zap.String("literal", a.Literal),
				zap.Int64("note_id", a.NoteID),
				zap.Error(err))
			continue
		}
		e.count(sum, a)
	}

	if batch != nil {
		if err := batch.Commit(); err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// skipLeech reports whether a is an unsuspend of a note the snapshot marks
// as a leech. Plans never contain one, but a hand-built plan might.
func skipLeech(a Action, snap *Snapshot) bool {
	if a.Kind != Unsuspend || snap == nil {
		return false
	}
	st, ok := snap.Characters[a.Literal]
	return ok && st.HasLeechTag
}

func (e *Executor) apply(ctx context.Context, m Mutator, a Action, created map[string]int64) error {
	switch a.Kind {
	case CreateCharacterNote:
		entry := dictionary.Entry{Literal: a.Literal}
		if a.Entry != nil {
			entry = *a.Entry
		}
		id, err := m.CreateRecord(ctx, e.cfg.KanjiNoteType.Name, e.noteFields(entry), e.cfg.KanjiDeckName)
		if err != nil {
			return err
		}
		created[a.Literal] = id
		return nil

	case AddTag, RemoveTag:
		id, err := resolve(a, created)
		if err != nil {
			return err
		}
		if a.Kind == AddTag {
			return m.SetTags(ctx, id, []string{a.Tag}, nil)
		}
		return m.SetTags(ctx, id, nil, []string{a.Tag})

	case Suspend:
		return m.SetSuspended(ctx, a.CardIDs, true)

	case Unsuspend:
		return m.SetSuspended(ctx, a.CardIDs, false)

	case SuspendVocab:
		if err := m.SetSuspended(ctx, a.CardIDs, true); err != nil {
			return err
		}
		return m.SetTags(ctx, a.NoteID, []string{a.Tag}, nil)

	case UnsuspendVocab:
		if err := m.SetSuspended(ctx, a.CardIDs, false); err != nil {
			return err
		}
		return m.SetTags(ctx, a.NoteID, nil, []string{a.Tag})
	}
	return fmt.Errorf("unknown action kind %d", a.Kind)
}

func (e *Executor) count(sum *Summary, a Action) {
	switch a.Kind {
	case CreateCharacterNote:
		sum.Created++
	case AddTag:
		sum.Tagged++
	case RemoveTag:
		sum.TagsRemoved++
	case Suspend:
		sum.Suspended++
	case Unsuspend:
		sum.Unsuspended++
	case SuspendVocab:
		sum.VocabSuspended++
	case UnsuspendVocab:
		sum.VocabUnsuspended++
	}
}

// noteFields maps an entry onto the configured kanji note fields. Logical
// fields without a mapping are left out.
func (e *Executor) noteFields(entry dictionary.Entry) map[string]string {
	values := map[string]string{
		config.FieldKanji:      entry.Literal,
		config.FieldDefinition: entry.Meaning,
		config.FieldKunyomi:    entry.KunyomiText(),
		config.FieldOnyomi:     entry.OnyomiText(),
	}
	if entry.StrokeCount > 0 {
		values[config.FieldStrokeCount] = strconv.Itoa(entry.StrokeCount)
	}
	if entry.Frequency > 0 {
		values[config.FieldFrequency] = strconv.Itoa(entry.Frequency)
	}

	out := map[string]string{}
	for _, logical := range config.KanjiFieldKeys {
		name := e.cfg.KanjiNoteType.Fields[logical]
		if name == "" {
			continue
		}
		out[name] = values[logical]
	}
	return out
}

func resolve(a Action, created map[string]int64) (int64, error) {
	if a.NoteID != 0 {
		return a.NoteID, nil
	}
	if id, ok := created[a.Literal]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("character note for %s was not created", a.Literal)
}
