package reconcile

import (
	"sort"
	"strings"

	"github.com/japaniel/kanjisync/pkg/db"
	"github.com/japaniel/kanjisync/pkg/dictionary"
)

// Class is the classification of a glyph by the vocabulary that contains it.
type Class int

const (
	// ClassNone means no scanned vocabulary contains the glyph.
	ClassNone Class = iota
	// ReviewedVocab means at least one containing vocabulary record has been reviewed.
	ReviewedVocab
	// NewVocabOnly means every containing vocabulary record is still new.
	NewVocabOnly
	// NoVocab applies to tracked character notes no vocabulary contains.
	NoVocab
)

func (c Class) String() string {
	switch c {
	case ReviewedVocab:
		return "reviewed_vocab"
	case NewVocabOnly:
		return "new_vocab_only"
	case NoVocab:
		return "no_vocab"
	default:
		return "none"
	}
}

// Observation is one vocabulary record as seen by a single pass.
type Observation struct {
	SourceID      int64
	NoteType      string
	CardIDs       []int64
	Reviewed      bool // any card has been reviewed
	Suspended     bool // has cards and all are suspended
	AutoSuspended bool // carries the auto-suspend tag
	Glyphs        []string
}

// CharacterState is the current state of one kanji note.
type CharacterState struct {
	NoteID      int64
	Literal     string
	Tags        []string
	Cards       []db.CardState
	HasLeechTag bool
	// Known is true when a card was reviewed with at least the known-kanji interval.
	Known bool
}

// HasTag reports whether the note carries tag, ignoring case.
func (c CharacterState) HasTag(tag string) bool {
	return hasTag(c.Tags, tag)
}

// SuspendedCards returns the ids of suspended cards.
func (c CharacterState) SuspendedCards() []int64 {
	var out []int64
	for _, card := range c.Cards {
		if card.Suspended {
			out = append(out, card.ID)
		}
	}
	return out
}

// ActiveCards returns the ids of cards that are not suspended.
func (c CharacterState) ActiveCards() []int64 {
	var out []int64
	for _, card := range c.Cards {
		if !card.Suspended {
			out = append(out, card.ID)
		}
	}
	return out
}

// Duplicate lists the notes sharing one literal. The lowest id is reconciled.
type Duplicate struct {
	Literal string
	NoteIDs []int64
}

// Snapshot is the character-note state a plan is computed against.
type Snapshot struct {
	Characters map[string]CharacterState
	Duplicates []Duplicate
	LeechTag   string
}

// NewSnapshot indexes records by literal. Records sharing a literal are
// reported as duplicates and only the lowest note id is kept.
// knownInterval is the minimum interval (days) for a kanji to count as known;
// 0 means any review.
func NewSnapshot(records []db.CharacterRecord, leechTag string, knownInterval int) *Snapshot {
	sorted := append([]db.CharacterRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].NoteID < sorted[j].NoteID })

	s := &Snapshot{Characters: make(map[string]CharacterState, len(sorted)), LeechTag: leechTag}
	dups := map[string][]int64{}
	var dupOrder []string
	for _, r := range sorted {
		if r.Literal == "" {
			continue
		}
		if existing, ok := s.Characters[r.Literal]; ok {
			if _, seen := dups[r.Literal]; !seen {
				dups[r.Literal] = []int64{existing.NoteID}
				dupOrder = append(dupOrder, r.Literal)
			}
			dups[r.Literal] = append(dups[r.Literal], r.NoteID)
			continue
		}
		st := CharacterState{
			NoteID:      r.NoteID,
			Literal:     r.Literal,
			Tags:        append([]string(nil), r.Tags...),
			Cards:       append([]db.CardState(nil), r.Cards...),
			HasLeechTag: leechTag != "" && hasTag(r.Tags, leechTag),
		}
		for _, c := range r.Cards {
			if c.Reps > 0 && (knownInterval <= 0 || c.Interval >= knownInterval) {
				st.Known = true
				break
			}
		}
		s.Characters[r.Literal] = st
	}
	sort.Strings(dupOrder)
	for _, lit := range dupOrder {
		s.Duplicates = append(s.Duplicates, Duplicate{Literal: lit, NoteIDs: dups[lit]})
	}
	return s
}

// ActionKind enumerates plan actions.
type ActionKind int

const (
	CreateCharacterNote ActionKind = iota
	AddTag
	RemoveTag
	Suspend
	Unsuspend
	SuspendVocab
	UnsuspendVocab
)

func (k ActionKind) String() string {
	switch k {
	case CreateCharacterNote:
		return "create"
	case AddTag:
		return "add_tag"
	case RemoveTag:
		return "remove_tag"
	case Suspend:
		return "suspend"
	case Unsuspend:
		return "unsuspend"
	case SuspendVocab:
		return "suspend_vocab"
	case UnsuspendVocab:
		return "unsuspend_vocab"
	default:
		return "unknown"
	}
}

// Action is one store mutation. NoteID is 0 for actions on a note created
// earlier in the same plan; the executor resolves it by Literal.
// Vocabulary actions leave Literal empty.
type Action struct {
	Kind    ActionKind
	Literal string
	NoteID  int64
	Tag     string
	CardIDs []int64
	Entry   *dictionary.Entry
}

// Plan is an ordered list of actions plus the diagnostics gathered while building it.
type Plan struct {
	Actions    []Action
	Missing    []string
	Duplicates []Duplicate
}

// Empty reports whether the plan has no actions.
func (p *Plan) Empty() bool { return p == nil || len(p.Actions) == 0 }

// ForLiterals returns the literal actions that touch one of lits, in order.
func (p *Plan) ForLiterals(lits []string) []Action {
	want := make(map[string]bool, len(lits))
	for _, l := range lits {
		want[l] = true
	}
	var out []Action
	for _, a := range p.Actions {
		if a.Literal != "" && want[a.Literal] {
			out = append(out, a)
		}
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	for _, t := range tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
