package reconcile

import (
	"sort"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
	"github.com/japaniel/kanjisync/pkg/glyph"
)

// BuildObservations extracts glyphs from vocabulary records using the fields
// configured for each note type. Output is sorted by note id.
func BuildObservations(records []db.VocabRecord, cfg *config.Config, ex *glyph.Extractor) []Observation {
	fieldsByType := map[string][]string{}
	for _, vt := range cfg.ActiveVocabNoteTypes() {
		fieldsByType[vt.Name] = append(fieldsByType[vt.Name], vt.Fields...)
	}

	out := make([]Observation, 0, len(records))
	for _, r := range records {
		names, ok := fieldsByType[r.NoteType]
		if !ok {
			continue
		}
		o := Observation{
			SourceID:      r.NoteID,
			NoteType:      r.NoteType,
			CardIDs:       db.CardIDs(r.Cards),
			Suspended:     len(r.Cards) > 0,
			AutoSuspended: cfg.AutoSuspendTag != "" && hasTag(r.Tags, cfg.AutoSuspendTag),
			Glyphs:        ex.ExtractFields(r.Fields, names),
		}
		for _, c := range r.Cards {
			if c.Reps > 0 {
				o.Reviewed = true
			}
			if !c.Suspended {
				o.Suspended = false
			}
		}
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

type literalStats struct {
	class     Class
	count     int
	firstSeen int64
	sources   []int64
}

// Index maps each glyph to its classification and contributing observations.
type Index struct {
	order []string
	stats map[string]*literalStats
}

// Classify builds the classification index. Observations are visited by note
// id and glyph position, which fixes the first-seen order. With
// ignore_suspended_vocab, suspended observations are skipped unless this
// engine suspended them.
func Classify(obs []Observation, cfg *config.Config) *Index {
	sorted := append([]Observation(nil), obs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SourceID < sorted[j].SourceID })

	idx := &Index{stats: map[string]*literalStats{}}
	for _, o := range sorted {
		if cfg.IgnoreSuspendedVocab && o.Suspended && !o.AutoSuspended {
			continue
		}
		for _, g := range o.Glyphs {
			st, ok := idx.stats[g]
			if !ok {
				st = &literalStats{class: NewVocabOnly, firstSeen: o.SourceID}
				idx.stats[g] = st
				idx.order = append(idx.order, g)
			}
			if o.Reviewed {
				st.class = ReviewedVocab
			}
			st.count++
			st.sources = append(st.sources, o.SourceID)
		}
	}
	return idx
}

// Class returns the classification of lit, or ClassNone if no vocabulary contains it.
func (x *Index) Class(lit string) Class {
	if st, ok := x.stats[lit]; ok {
		return st.class
	}
	return ClassNone
}

// Literals returns the classified literals in first-seen order.
func (x *Index) Literals() []string {
	return append([]string(nil), x.order...)
}

// Count returns the number of observations containing lit.
func (x *Index) Count(lit string) int {
	if st, ok := x.stats[lit]; ok {
		return st.count
	}
	return 0
}

// FirstSeen returns the lowest note id containing lit, or 0.
func (x *Index) FirstSeen(lit string) int64 {
	if st, ok := x.stats[lit]; ok {
		return st.firstSeen
	}
	return 0
}

// Observations returns the note ids containing lit in ascending order.
func (x *Index) Observations(lit string) []int64 {
	if st, ok := x.stats[lit]; ok {
		return append([]int64(nil), st.sources...)
	}
	return nil
}

// Len returns the number of classified literals.
func (x *Index) Len() int { return len(x.order) }
