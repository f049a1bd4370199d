package db

import "time"

// NoteType describes a record schema: its name and ordered field names.
type NoteType struct {
	ID     int64
	Name   string
	Fields []string
}

// CardState is the scheduling state of one card.
type CardState struct {
	ID        int64
	NoteID    int64
	Due       int64
	Reps      int
	Interval  int // days
	Suspended bool
}

// Note is a stored record with its cards.
type Note struct {
	ID        int64
	NoteType  string
	Fields    map[string]string
	Tags      []string
	Cards     []CardState
	CreatedAt time.Time
}

// VocabRecord is a vocabulary note as seen by reconciliation.
type VocabRecord struct {
	NoteID   int64
	NoteType string
	Fields   map[string]string
	Tags     []string
	Cards    []CardState
}

// CharacterRecord is a kanji note keyed by the literal stored in its literal field.
type CharacterRecord struct {
	NoteID  int64
	Literal string
	Tags    []string
	Cards   []CardState
}

// CardIDs returns the ids of cards.
func CardIDs(cards []CardState) []int64 {
	ids := make([]int64, 0, len(cards))
	for _, c := range cards {
		ids = append(ids, c.ID)
	}
	return ids
}
