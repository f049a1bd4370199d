package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ReviewEvent describes one reviewed vocabulary record. Glyphs may be empty,
// in which case they are extracted from the stored note.
type ReviewEvent struct {
	NoteID int64
	Glyphs []string
}

// OnReview reconciles only the glyphs of one reviewed record. It never blocks:
// if a full recalculation is running the event is dropped with ErrSuperseded.
// Vocabulary suspension is left to full recalculations.
func (e *Engine) OnReview(ctx context.Context, ev ReviewEvent) (*Summary, error) {
	if !e.cfg.RealtimeReview {
		return &Summary{Incremental: true}, nil
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	if !e.mu.TryRLock() {
		e.logger.Debug("review update dropped, recalculation in progress", zap.Int64("note_id", ev.NoteID))
		return nil, ErrSuperseded
	}
	defer e.mu.RUnlock()

	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID), zap.Int64("note_id", ev.NoteID))
	start := time.Now()

	glyphs := ev.Glyphs
	if len(glyphs) == 0 {
		var err error
		glyphs, err = e.noteGlyphs(ctx, ev.NoteID)
		if err != nil {
			return nil, err
		}
	}
	sum := &Summary{RunID: runID, Incremental: true}
	if len(glyphs) == 0 {
		return sum, nil
	}
	restrict := make(map[string]bool, len(glyphs))
	for _, g := range glyphs {
		restrict[g] = true
	}

	plan, snap, scanned, err := e.prepare(ctx, restrict, log)
	if err != nil {
		return nil, err
	}
	applied, err := e.executor.Apply(ctx, plan, snap)
	if applied != nil {
		applied.RunID = runID
		applied.Incremental = true
		applied.Scanned = scanned
	}
	if err != nil {
		return applied, fmt.Errorf("apply plan: %w", err)
	}
	log.Debug("review update finished",
		zap.Int("glyphs", len(glyphs)),
		zap.Int("actions", len(plan.Actions)),
		zap.Duration("elapsed", time.Since(start)))
	return applied, nil
}

// PlanForGlyphs builds the restricted plan OnReview would apply, without applying it.
func (e *Engine) PlanForGlyphs(ctx context.Context, glyphs []string) (*Plan, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	restrict := make(map[string]bool, len(glyphs))
	for _, g := range glyphs {
		restrict[g] = true
	}
	plan, _, _, err := e.prepare(ctx, restrict, e.logger)
	return plan, err
}

func (e *Engine) noteGlyphs(ctx context.Context, noteID int64) ([]string, error) {
	fieldsByType := map[string][]string{}
	for _, vt := range e.cfg.ActiveVocabNoteTypes() {
		fieldsByType[vt.Name] = append(fieldsByType[vt.Name], vt.Fields...)
	}

	if g, ok := e.store.(NoteGetter); ok {
		note, err := g.Note(ctx, noteID)
		if err != nil {
			return nil, fmt.Errorf("load reviewed note: %w", err)
		}
		names, ok := fieldsByType[note.NoteType]
		if !ok {
			return nil, nil
		}
		return e.extractor.ExtractFields(note.Fields, names), nil
	}

	records, err := e.store.ListVocabRecords(ctx, e.cfg.ActiveVocabNoteTypes())
	if err != nil {
		return nil, fmt.Errorf("list vocabulary: %w", err)
	}
	for _, r := range records {
		if r.NoteID == noteID {
			return e.extractor.ExtractFields(r.Fields, fieldsByType[r.NoteType]), nil
		}
	}
	return nil, nil
}
