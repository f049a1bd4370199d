package reconcile

import (
	"sort"
	"strings"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/dictionary"
)

// PlanInput is everything BuildPlan reads. Nothing in it is modified.
type PlanInput struct {
	Config     *config.Config
	Index      *Index
	Snapshot   *Snapshot
	Dictionary dictionary.Source
	// Observations feed the auto-suspend-vocab step; they may include records
	// the classifier skipped.
	Observations []Observation
	// Restrict limits the plan to these literals and disables vocabulary
	// actions. Nil means a full plan.
	Restrict map[string]bool
}

// BuildPlan computes the mutation plan that brings character notes in line
// with the classification. It is pure and deterministic.
func BuildPlan(in PlanInput) *Plan {
	cfg := in.Config
	plan := &Plan{}

	var creates []string
	entries := map[string]dictionary.Entry{}
	var rest []Action

	for _, lit := range universe(in) {
		class := in.Index.Class(lit)
		if class == ClassNone {
			class = NoVocab
		}

		st, exists := in.Snapshot.Characters[lit]
		fresh := false
		if !exists {
			if class == NoVocab {
				continue
			}
			var (
				e  dictionary.Entry
				ok bool
			)
			if in.Dictionary != nil {
				e, ok = in.Dictionary.Lookup(lit)
			}
			if !ok {
				plan.Missing = append(plan.Missing, lit)
				e = dictionary.Entry{Literal: lit}
			}
			entries[lit] = e
			creates = append(creates, lit)
			st = CharacterState{Literal: lit}
			fresh = true
		}

		unsuspend := !fresh && class == ReviewedVocab && !st.HasLeechTag && len(st.SuspendedCards()) > 0
		suspend := !fresh && class == NoVocab && !st.HasLeechTag && len(st.ActiveCards()) > 0

		desired := desiredTags(cfg, class, st, unsuspend, fresh)
		noteID := st.NoteID
		if fresh {
			noteID = 0
		}
		for _, tag := range desired {
			if !st.HasTag(tag) {
				rest = append(rest, Action{Kind: AddTag, Literal: lit, NoteID: noteID, Tag: tag})
			}
		}
		for _, tag := range cfg.OwnedTags() {
			if st.HasTag(tag) && !hasTag(desired, tag) {
				rest = append(rest, Action{Kind: RemoveTag, Literal: lit, NoteID: noteID, Tag: tag})
			}
		}
		switch {
		case unsuspend:
			rest = append(rest, Action{Kind: Unsuspend, Literal: lit, NoteID: noteID, CardIDs: st.SuspendedCards()})
		case suspend:
			rest = append(rest, Action{Kind: Suspend, Literal: lit, NoteID: noteID, CardIDs: st.ActiveCards()})
		}
	}

	for _, lit := range Order(cfg.ReorderMode, creates, in.Index, in.Dictionary) {
		e := entries[lit]
		plan.Actions = append(plan.Actions, Action{Kind: CreateCharacterNote, Literal: lit, Entry: &e})
	}
	plan.Actions = append(plan.Actions, rest...)

	if in.Restrict == nil {
		plan.Actions = append(plan.Actions, vocabActions(in)...)
		plan.Duplicates = append(plan.Duplicates, in.Snapshot.Duplicates...)
	} else {
		for _, d := range in.Snapshot.Duplicates {
			if in.Restrict[d.Literal] {
				plan.Duplicates = append(plan.Duplicates, d)
			}
		}
	}
	return plan
}

// universe returns the classified literals in first-seen order followed by
// tracked character notes that no vocabulary contains, sorted.
func universe(in PlanInput) []string {
	allowed := func(lit string) bool { return in.Restrict == nil || in.Restrict[lit] }

	var out []string
	for _, lit := range in.Index.Literals() {
		if allowed(lit) {
			out = append(out, lit)
		}
	}
	var orphans []string
	for lit, st := range in.Snapshot.Characters {
		if in.Index.Class(lit) != ClassNone || !allowed(lit) {
			continue
		}
		if isTracked(in.Config, st) {
			orphans = append(orphans, lit)
		}
	}
	sort.Strings(orphans)
	return append(out, orphans...)
}

// isTracked reports whether the note carries any tag this tool manages.
func isTracked(cfg *config.Config, st CharacterState) bool {
	for _, tag := range cfg.TrackingTags() {
		if st.HasTag(tag) {
			return true
		}
	}
	return false
}

func desiredTags(cfg *config.Config, class Class, st CharacterState, unsuspend, fresh bool) []string {
	var out []string
	add := func(tag string) {
		if tag = strings.TrimSpace(tag); tag != "" && !hasTag(out, tag) {
			out = append(out, tag)
		}
	}
	switch class {
	case ReviewedVocab:
		add(cfg.ExistingTag)
		if unsuspend || st.HasTag(cfg.UnsuspendedTag) {
			add(cfg.UnsuspendedTag)
		}
	case NewVocabOnly:
		add(cfg.OnlyNewVocabTag)
		if st.HasTag(cfg.UnsuspendedTag) {
			add(cfg.UnsuspendedTag)
		}
	case NoVocab:
		add(cfg.NoVocabTag)
	}
	if fresh {
		add(cfg.CreatedTag)
	}
	return out
}

// vocabActions suspends vocabulary none of whose glyphs were reviewed as of
// the previous run, and unsuspends vocabulary this engine suspended once all
// of its glyphs were. Prior state comes from the snapshot, never from the
// plan being built. Vocabulary the user has reviewed is never suspended.
func vocabActions(in PlanInput) []Action {
	cfg := in.Config
	if !cfg.AutoSuspendVocab || cfg.AutoSuspendTag == "" {
		return nil
	}
	obs := append([]Observation(nil), in.Observations...)
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].SourceID < obs[j].SourceID })

	var out []Action
	for _, o := range obs {
		if len(o.Glyphs) == 0 || len(o.CardIDs) == 0 {
			continue
		}
		reviewed := 0
		for _, g := range o.Glyphs {
			if priorReviewed(in.Snapshot, cfg, g) {
				reviewed++
			}
		}
		switch {
		case reviewed == 0 && !o.Suspended && !o.Reviewed:
			out = append(out, Action{Kind: SuspendVocab, NoteID: o.SourceID, Tag: cfg.AutoSuspendTag, CardIDs: o.CardIDs})
		case reviewed == len(o.Glyphs) && o.AutoSuspended:
			out = append(out, Action{Kind: UnsuspendVocab, NoteID: o.SourceID, Tag: cfg.AutoSuspendTag, CardIDs: o.CardIDs})
		}
	}
	return out
}

// priorReviewed reports whether the previous run classified lit as
// ReviewedVocab, which it records with the existing tag. Without that tag
// the kanji card's own review history stands in.
func priorReviewed(snap *Snapshot, cfg *config.Config, lit string) bool {
	st, ok := snap.Characters[lit]
	if !ok {
		return false
	}
	if cfg.ExistingTag != "" {
		return st.HasTag(cfg.ExistingTag)
	}
	return st.Known
}
