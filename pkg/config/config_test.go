package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.VocabNoteTypes = []VocabNoteType{{Name: "Vocab", Fields: []string{"Expression"}}}
	cfg.KanjiNoteType = KanjiNoteType{Name: "Kanji", Fields: map[string]string{FieldKanji: "Character"}}
	cfg.normalize()
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "has_vocab_kanji", cfg.ExistingTag)
	assert.Equal(t, "auto_kanji_card", cfg.CreatedTag)
	assert.Equal(t, ReorderFrequency, cfg.ReorderMode)
	assert.True(t, cfg.RealtimeReview)
	assert.Equal(t, 21, cfg.KnownKanjiInterval)
}

func TestConfig_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kanjisync.yaml")

	cfg := validConfig()
	cfg.NoVocabTag = "no_vocab"
	cfg.ReorderMode = ReorderVocab
	cfg.DictionaryFile = "dict/kanji.json"
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "no_vocab", loaded.NoVocabTag)
	assert.Equal(t, ReorderVocab, loaded.ReorderMode)
	assert.Equal(t, "Character", loaded.KanjiNoteType.LiteralField())
	require.Len(t, loaded.VocabNoteTypes, 1)
	assert.Equal(t, []string{"Expression"}, loaded.VocabNoteTypes[0].Fields)
	assert.Equal(t, filepath.Join(dir, "dict", "kanji.json"), loaded.DictionaryPath())
	require.NoError(t, loaded.Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "kanjidic2.xml", cfg.DictionaryFile)
	for _, k := range KanjiFieldKeys {
		_, ok := cfg.KanjiNoteType.Fields[k]
		assert.True(t, ok, "field key %s should be present", k)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KANJISYNC_EXISTING_TAG", "from_env")
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("existing_tag: from_file\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.ExistingTag)
}

func TestLoad_TrimsFieldsAndTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	raw := `
vocab_note_types:
  - note_type: " Voc "
    fields: ["Expression", " ", "Reading "]
kanji_note_type:
  name: Kanji
  fields:
    Kanji: " Character "
existing_tag: "  reviewed  "
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Voc", cfg.VocabNoteTypes[0].Name)
	assert.Equal(t, []string{"Expression", "Reading"}, cfg.VocabNoteTypes[0].Fields)
	assert.Equal(t, "Character", cfg.KanjiNoteType.LiteralField())
	assert.Equal(t, "reviewed", cfg.ExistingTag)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		setting string
	}{
		{"no vocab", func(c *Config) { c.VocabNoteTypes = nil }, "vocab_note_types"},
		{"vocab without fields", func(c *Config) { c.VocabNoteTypes[0].Fields = nil }, "vocab_note_types"},
		{"no kanji type", func(c *Config) { c.KanjiNoteType.Name = "" }, "kanji_note_type.name"},
		{"no kanji field", func(c *Config) { c.KanjiNoteType.Fields[FieldKanji] = "" }, "kanji_note_type.fields.kanji"},
		{"bad reorder", func(c *Config) { c.ReorderMode = "random" }, "reorder_mode"},
		{"bad ranges", func(c *Config) { c.GlyphRanges = []string{"zz-9FFF"} }, "glyph_ranges"},
		{"auto suspend without tag", func(c *Config) { c.AutoSuspendVocab = true; c.AutoSuspendTag = "" }, "auto_suspend_tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var cerr *ConfigurationError
			require.True(t, errors.As(err, &cerr), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.setting, cerr.Setting)
		})
	}
	require.NoError(t, validConfig().Validate())
}

func TestRanges(t *testing.T) {
	cfg := validConfig()
	cfg.GlyphRanges = []string{"U+3400-4DBF", "4E00-9FFF", "3005"}
	ranges, err := cfg.Ranges()
	require.NoError(t, err)
	assert.Equal(t, []RuneRange{{0x3400, 0x4DBF}, {0x4E00, 0x9FFF}, {0x3005, 0x3005}}, ranges)

	cfg.GlyphRanges = []string{"9FFF-4E00"}
	_, err = cfg.Ranges()
	assert.Error(t, err)
}

func TestOwnedTags(t *testing.T) {
	cfg := validConfig()
	cfg.OnlyNewVocabTag = "only_new"
	assert.Equal(t, []string{"has_vocab_kanji", "only_new", "kanjicards_unsuspended"}, cfg.OwnedTags())
	assert.Contains(t, cfg.TrackingTags(), "auto_kanji_card")
	assert.NotContains(t, cfg.OwnedTags(), "auto_kanji_card")
}
