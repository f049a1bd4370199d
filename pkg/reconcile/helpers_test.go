package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/japaniel/kanjisync/pkg/config"
	"github.com/japaniel/kanjisync/pkg/db"
	"github.com/japaniel/kanjisync/pkg/dictionary"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.VocabNoteTypes = []config.VocabNoteType{{Name: "Vocab", Fields: []string{"Expression"}}}
	cfg.KanjiNoteType = config.KanjiNoteType{
		Name: "Kanji",
		Fields: map[string]string{
			config.FieldKanji:       "Kanji",
			config.FieldDefinition:  "Meaning",
			config.FieldStrokeCount: "Strokes",
			config.FieldKunyomi:     "Kun",
			config.FieldOnyomi:      "On",
			config.FieldFrequency:   "Freq",
		},
	}
	return cfg
}

func testDictionary() *dictionary.Table {
	return dictionary.NewTable([]dictionary.Entry{
		{Literal: "日", Meaning: "day; sun", StrokeCount: 4, Kunyomi: []string{"ひ"}, Onyomi: []string{"ニチ", "ジツ"}, Frequency: 1},
		{Literal: "本", Meaning: "book", StrokeCount: 5, Frequency: 10},
		{Literal: "食", Meaning: "eat", StrokeCount: 9, Frequency: 328},
		{Literal: "水", Meaning: "water", StrokeCount: 4, Frequency: 223},
		{Literal: "火", Meaning: "fire", StrokeCount: 4, Frequency: 574},
		{Literal: "山", Meaning: "mountain", StrokeCount: 3, Frequency: 131},
		{Literal: "屋", Meaning: "roof; shop", StrokeCount: 9},
		{Literal: "金", Meaning: "gold", StrokeCount: 8, Frequency: 53},
	})
}

func card(reps, interval int, suspended bool) db.CardState {
	return db.CardState{Reps: reps, Interval: interval, Suspended: suspended}
}

func vocab(s *memStore, expr string, tags []string, cards ...db.CardState) int64 {
	return s.add("Vocab", map[string]string{"Expression": expr}, tags, cards...)
}

func kanji(s *memStore, lit string, tags []string, cards ...db.CardState) int64 {
	return s.add("Kanji", map[string]string{"Kanji": lit}, tags, cards...)
}

func newTestEngine(t *testing.T, cfg *config.Config, store Store, dict dictionary.Source) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, store, StaticDictionary{Source: dict})
	require.NoError(t, err)
	return e
}

// step is a compact view of an action for assertions.
type step struct {
	Kind    ActionKind
	Literal string
	Tag     string
}

func steps(p *Plan) []step {
	out := make([]step, 0, len(p.Actions))
	for _, a := range p.Actions {
		out = append(out, step{Kind: a.Kind, Literal: a.Literal, Tag: a.Tag})
	}
	return out
}

func mustPlan(t *testing.T, e *Engine) *Plan {
	t.Helper()
	p, err := e.Plan(context.Background())
	require.NoError(t, err)
	return p
}
