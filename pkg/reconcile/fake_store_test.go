package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
)

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	notes      map[int64]*db.Note
	leechTag   string
	failCreate map[string]error // by kanji literal
	failTags   map[int64]error
	onList     func() // runs inside ListVocabRecords
	calls      []string
}

func newMemStore() *memStore {
	return &memStore{nextID: 1000, notes: map[int64]*db.Note{}, leechTag: "leech"}
}

func (m *memStore) add(noteType string, fields map[string]string, tags []string, cards ...db.CardState) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	n := &db.Note{ID: id, NoteType: noteType, Fields: fields, Tags: append([]string(nil), tags...)}
	for i, c := range cards {
		c.ID = id*10 + int64(i)
		c.NoteID = id
		n.Cards = append(n.Cards, c)
	}
	m.notes[id] = n
	return id
}

func (m *memStore) sortedIDs() []int64 {
	ids := make([]int64, 0, len(m.notes))
	for id := range m.notes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *memStore) ListVocabRecords(ctx context.Context, sources []config.VocabNoteType) ([]db.VocabRecord, error) {
	if m.onList != nil {
		m.onList()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "ListVocabRecords")
	want := map[string]bool{}
	for _, s := range sources {
		want[s.Name] = true
	}
	// Deliberately reversed to prove the engine does not depend on store order.
	ids := m.sortedIDs()
	var out []db.VocabRecord
	for i := len(ids) - 1; i >= 0; i-- {
		n := m.notes[ids[i]]
		if !want[n.NoteType] {
			continue
		}
		out = append(out, db.VocabRecord{
			NoteID: n.ID, NoteType: n.NoteType, Fields: n.Fields,
			Tags: append([]string(nil), n.Tags...), Cards: append([]db.CardState(nil), n.Cards...),
		})
	}
	return out, nil
}

func (m *memStore) ListCharacterRecords(ctx context.Context, noteType, literalField string) ([]db.CharacterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.CharacterRecord
	for _, id := range m.sortedIDs() {
		n := m.notes[id]
		if n.NoteType != noteType || n.Fields[literalField] == "" {
			continue
		}
		out = append(out, db.CharacterRecord{
			NoteID: n.ID, Literal: n.Fields[literalField],
			Tags: append([]string(nil), n.Tags...), Cards: append([]db.CardState(nil), n.Cards...),
		})
	}
	return out, nil
}

func (m *memStore) CreateRecord(ctx context.Context, noteType string, fields map[string]string, deckHint string) (int64, error) {
	if err := m.failCreate[fields["Kanji"]]; err != nil {
		return 0, err
	}
	return m.add(noteType, fields, nil, db.CardState{}), nil
}

func (m *memStore) SetTags(ctx context.Context, noteID int64, add, remove []string) error {
	if err := m.failTags[noteID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[noteID]
	if !ok {
		return fmt.Errorf("note %d vanished", noteID)
	}
	n.Tags = db.ApplyTagChanges(n.Tags, add, remove)
	return nil
}

func (m *memStore) SetSuspended(ctx context.Context, cardIDs []int64, suspended bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[int64]bool{}
	for _, id := range cardIDs {
		want[id] = true
	}
	found := 0
	for _, n := range m.notes {
		for i := range n.Cards {
			if want[n.Cards[i].ID] {
				n.Cards[i].Suspended = suspended
				found++
			}
		}
	}
	if found != len(cardIDs) {
		return fmt.Errorf("%d of %d cards found", found, len(cardIDs))
	}
	return nil
}

func (m *memStore) LeechTag(ctx context.Context) (string, error) { return m.leechTag, nil }

func (m *memStore) Note(ctx context.Context, id int64) (*db.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, db.ErrNoteNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *memStore) review(noteID int64, interval int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[noteID]
	n.Cards[0].Reps++
	n.Cards[0].Interval = interval
}

func (m *memStore) tags(noteID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.notes[noteID].Tags...)
}

func (m *memStore) suspended(noteID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.notes[noteID]
	if len(n.Cards) == 0 {
		return false
	}
	for _, c := range n.Cards {
		if !c.Suspended {
			return false
		}
	}
	return true
}

func (m *memStore) kanjiNote(lit string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.sortedIDs() {
		if n := m.notes[id]; n.NoteType == "Kanji" && n.Fields["Kanji"] == lit {
			return id, true
		}
	}
	return 0, false
}
