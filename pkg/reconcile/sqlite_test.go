package reconcile

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
)

func openCollection(t *testing.T, kanjiFields []string) *db.Store {
	t.Helper()
	s, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	_, err = s.EnsureNoteType(ctx, "Vocab", []string{"Expression", "Meaning"})
	require.NoError(t, err)
	_, err = s.EnsureNoteType(ctx, "Kanji", kanjiFields)
	require.NoError(t, err)
	return s
}

func addNote(t *testing.T, s *db.Store, noteType string, fields map[string]string, tags ...string) (int64, int64) {
	t.Helper()
	id, cards, err := s.AddNote(context.Background(), noteType, fields, tags, "Default", 1)
	require.NoError(t, err)
	return id, cards[0]
}

func TestSQLite_RecalculateAndReview(t *testing.T) {
	ctx := context.Background()
	s := openCollection(t, []string{"Kanji", "Meaning", "Strokes", "Kun", "On", "Freq"})
	cfg := testConfig()
	cfg.KanjiDeckName = "Kanji"

	_, nihonCard := addNote(t, s, "Vocab", map[string]string{"Expression": "日本", "Meaning": "Japan"})
	_, err := s.RecordReview(ctx, nihonCard, 3)
	require.NoError(t, err)
	mizuWord, mizuCard := addNote(t, s, "Vocab", map[string]string{"Expression": "水", "Meaning": "water"})
	addNote(t, s, "Kanji", map[string]string{"Kanji": "山"}, "has_vocab_kanji")

	e := newTestEngine(t, cfg, s, testDictionary())
	sum, err := e.Recalculate(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.Failed)
	assert.Equal(t, 3, sum.Created)
	assert.Equal(t, 1, sum.Suspended)
	assert.Equal(t, 1, sum.TagsRemoved)

	records, err := s.ListCharacterRecords(ctx, "Kanji", "Kanji")
	require.NoError(t, err)
	byLit := map[string]db.CharacterRecord{}
	for _, r := range records {
		byLit[r.Literal] = r
	}
	require.Len(t, byLit, 4)
	assert.True(t, byLit["山"].Cards[0].Suspended)
	assert.Empty(t, byLit["山"].Tags)

	hi, err := s.Note(ctx, byLit["日"].NoteID)
	require.NoError(t, err)
	assert.Equal(t, "day; sun", hi.Fields["Meaning"])
	assert.Equal(t, "1", hi.Fields["Freq"])
	assert.ElementsMatch(t, []string{"has_vocab_kanji", "auto_kanji_card"}, hi.Tags)
	// Created cards queue after every existing card, highest frequency first.
	assert.Greater(t, byLit["日"].Cards[0].Due, byLit["山"].Cards[0].Due)
	assert.Less(t, byLit["日"].Cards[0].Due, byLit["水"].Cards[0].Due)

	plan, err := e.Plan(ctx)
	require.NoError(t, err)
	assert.True(t, plan.Empty(), "got %v", steps(plan))

	// Tag 水 as new-only, then review the word: the hook promotes it.
	cfg.OnlyNewVocabTag = "kanji_new"
	_, err = e.Recalculate(ctx)
	require.NoError(t, err)
	mizu, err := s.Note(ctx, byLit["水"].NoteID)
	require.NoError(t, err)
	require.Contains(t, mizu.Tags, "kanji_new")

	noteID, err := s.RecordReview(ctx, mizuCard, 1)
	require.NoError(t, err)
	require.Equal(t, mizuWord, noteID)

	rev, err := e.OnReview(ctx, ReviewEvent{NoteID: mizuWord})
	require.NoError(t, err)
	assert.True(t, rev.Incremental)
	assert.Zero(t, rev.Failed)
	assert.Equal(t, 1, rev.Tagged)
	assert.Equal(t, 1, rev.TagsRemoved)

	mizu, err = s.Note(ctx, byLit["水"].NoteID)
	require.NoError(t, err)
	assert.Contains(t, mizu.Tags, "has_vocab_kanji")
	assert.NotContains(t, mizu.Tags, "kanji_new")
}

func TestSQLite_FailedStepsRollBackAlone(t *testing.T) {
	ctx := context.Background()
	// No Freq field: every create is rejected by the store.
	s := openCollection(t, []string{"Kanji", "Meaning", "Strokes", "Kun", "On"})
	cfg := testConfig()

	_, word := addNote(t, s, "Vocab", map[string]string{"Expression": "日本"})
	_, err := s.RecordReview(ctx, word, 1)
	require.NoError(t, err)
	yama, _ := addNote(t, s, "Kanji", map[string]string{"Kanji": "山"}, "has_vocab_kanji")

	e := newTestEngine(t, cfg, s, testDictionary())
	sum, err := e.Recalculate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Failed, "two creates and the four tags that depend on them")
	assert.Zero(t, sum.Created)
	assert.Equal(t, 1, sum.TagsRemoved)
	assert.Equal(t, 1, sum.Suspended)

	notes, err := s.NotesByType(ctx, "Kanji")
	require.NoError(t, err)
	require.Len(t, notes, 1, "rejected creates leave nothing behind")
	assert.Equal(t, yama, notes[0].ID)
	assert.True(t, notes[0].Cards[0].Suspended)
}

func TestSQLite_ReviewPrefilter(t *testing.T) {
	ctx := context.Background()
	s := openCollection(t, []string{"Kanji", "Meaning", "Strokes", "Kun", "On", "Freq"})
	cfg := testConfig()
	cfg.VocabNoteTypes = []config.VocabNoteType{{Name: "Vocab", Fields: []string{"Expression"}}}

	// 金 only appears in an unconfigured field; the store may return the
	// note but it must not count.
	addNote(t, s, "Vocab", map[string]string{"Expression": "山", "Meaning": "金"})
	e := newTestEngine(t, cfg, s, testDictionary())

	plan, err := e.PlanForGlyphs(ctx, []string{"金"})
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	plan, err = e.PlanForGlyphs(ctx, []string{"山"})
	require.NoError(t, err)
	require.NotEmpty(t, plan.Actions)
	assert.Equal(t, CreateCharacterNote, plan.Actions[0].Kind)
}

func TestSQLite_ReviewPrefilterCharacterReference(t *testing.T) {
	ctx := context.Background()
	s := openCollection(t, []string{"Kanji", "Meaning", "Strokes", "Kun", "On", "Freq"})
	cfg := testConfig()

	// &#39135; is 食 once markup is decoded.
	_, c := addNote(t, s, "Vocab", map[string]string{"Expression": "&#39135;事"})
	_, err := s.RecordReview(ctx, c, 1)
	require.NoError(t, err)
	e := newTestEngine(t, cfg, s, testDictionary())

	full, err := e.Plan(ctx)
	require.NoError(t, err)
	want := full.ForLiterals([]string{"食"})
	require.NotEmpty(t, want)

	got, err := e.PlanForGlyphs(ctx, []string{"食"})
	require.NoError(t, err)
	if diff := cmp.Diff(want, got.Actions, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("restricted plan differs (-full +restricted):\n%s", diff)
	}
}
