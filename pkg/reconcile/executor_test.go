package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
)

func TestExecutor_FailuresDoNotAbortRun(t *testing.T) {
	diskFull := errors.New("disk full")
	locked := errors.New("note locked")

	s := newMemStore()
	vocab(s, "食べる", nil, card(1, 1, false))
	vocab(s, "水", nil, card(1, 1, false))
	yama := kanji(s, "山", []string{"has_vocab_kanji"}, card(0, 0, false))
	s.failCreate = map[string]error{"食": diskFull}
	s.failTags = map[int64]error{yama: locked}

	e := newTestEngine(t, testConfig(), s, testDictionary())
	sum, err := e.Recalculate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 2, sum.Tagged)
	assert.Equal(t, 1, sum.Suspended)
	assert.Equal(t, 4, sum.Failed, "create, two tags on the uncreated note, one tag removal")
	require.Len(t, sum.Failures, 4)

	var actionErr *StoreActionError
	require.True(t, errors.As(sum.Failures[0], &actionErr))
	assert.Equal(t, CreateCharacterNote, actionErr.Action.Kind)
	assert.Equal(t, "食", actionErr.Action.Literal)
	assert.ErrorIs(t, sum.Failures[0], diskFull)
	assert.ErrorIs(t, sum.Failures[3], locked)
	assert.Equal(t, []string{"食", "山"}, sum.FailedLiterals())

	_, ok := s.kanjiNote("食")
	assert.False(t, ok)
	mizu, ok := s.kanjiNote("水")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"has_vocab_kanji", "auto_kanji_card"}, s.tags(mizu))
	assert.True(t, s.suspended(yama))
	assert.True(t, sum.Changed())
}

func TestExecutor_UnsuspendSkipsLeech(t *testing.T) {
	s := newMemStore()
	id := kanji(s, "日", []string{"leech"}, card(3, 1, true))
	snap := NewSnapshot([]db.CharacterRecord{{NoteID: id, Literal: "日", Tags: []string{"leech"}}}, "leech", 21)

	ex := NewExecutor(s, testConfig(), nil)
	plan := &Plan{Actions: []Action{{Kind: Unsuspend, Literal: "日", NoteID: id, CardIDs: []int64{id * 10}}}}
	sum, err := ex.Apply(context.Background(), plan, snap)
	require.NoError(t, err)
	assert.Zero(t, sum.Failed)
	assert.Zero(t, sum.Unsuspended)
	assert.False(t, sum.Changed())
	assert.True(t, s.suspended(id), "leech cards stay suspended")
}

func TestExecutor_NoteFields(t *testing.T) {
	cfg := testConfig()
	delete(cfg.KanjiNoteType.Fields, config.FieldFrequency)
	ex := NewExecutor(newMemStore(), cfg, nil)

	e, _ := testDictionary().Lookup("日")
	got := ex.noteFields(e)
	assert.Equal(t, map[string]string{
		"Kanji":   "日",
		"Meaning": "day; sun",
		"Strokes": "4",
		"Kun":     "ひ",
		"On":      "ニチ; ジツ",
	}, got)
}

func TestExecutor_EmptyPlan(t *testing.T) {
	s := newMemStore()
	ex := NewExecutor(s, testConfig(), nil)
	sum, err := ex.Apply(context.Background(), &Plan{Missing: []string{"砂"}}, nil)
	require.NoError(t, err)
	assert.False(t, sum.Changed())
	assert.Equal(t, []string{"砂"}, sum.Missing)
	assert.Empty(t, s.calls)
}

func TestExecutor_IgnoresCancellationOnceStarted(t *testing.T) {
	s := openCollection(t, []string{"Kanji", "Meaning", "Strokes", "Kun", "On", "Freq"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := testDictionary().Lookup("水")
	plan := &Plan{Actions: []Action{
		{Kind: CreateCharacterNote, Literal: "水", Entry: &e},
		{Kind: AddTag, Literal: "水", Tag: "has_vocab_kanji"},
	}}
	sum, err := NewExecutor(s, testConfig(), nil).Apply(ctx, plan, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Created)
	assert.Equal(t, 1, sum.Tagged)

	notes, err := s.NotesByType(context.Background(), "Kanji")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, []string{"has_vocab_kanji"}, notes[0].Tags)
}
