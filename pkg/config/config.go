package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Reorder modes for newly created kanji notes.
const (
	ReorderFrequency        = "frequency"
	ReorderVocab            = "vocab"
	ReorderFirstEncountered = "first_encountered"
)

// Dictionary formats.
const (
	FormatAuto     = "auto"
	FormatKanjidic = "kanjidic"
	FormatFlat     = "flat"
)

// Logical field names of the kanji note type.
const (
	FieldKanji       = "kanji"
	FieldDefinition  = "definition"
	FieldStrokeCount = "stroke_count"
	FieldKunyomi     = "kunyomi"
	FieldOnyomi      = "onyomi"
	FieldFrequency   = "frequency"
)

// KanjiFieldKeys lists the logical kanji note fields in display order.
var KanjiFieldKeys = []string{
	FieldKanji, FieldDefinition, FieldStrokeCount, FieldKunyomi, FieldOnyomi, FieldFrequency,
}

// VocabNoteType names a vocabulary note type and the fields scanned for kanji.
type VocabNoteType struct {
	Name   string   `yaml:"note_type" mapstructure:"note_type"`
	Fields []string `yaml:"fields" mapstructure:"fields"`
}

// KanjiNoteType names the kanji note type and maps logical fields to real field names.
type KanjiNoteType struct {
	Name   string            `yaml:"name" mapstructure:"name"`
	Fields map[string]string `yaml:"fields" mapstructure:"fields"`
}

// LiteralField returns the field that stores the kanji character.
func (k KanjiNoteType) LiteralField() string {
	return strings.TrimSpace(k.Fields[FieldKanji])
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format     string `yaml:"format" mapstructure:"format"` // json or console
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Config holds all kanjisync settings.
type Config struct {
	VocabNoteTypes []VocabNoteType `yaml:"vocab_note_types" mapstructure:"vocab_note_types"`
	KanjiNoteType  KanjiNoteType   `yaml:"kanji_note_type" mapstructure:"kanji_note_type"`

	ExistingTag     string `yaml:"existing_tag" mapstructure:"existing_tag"`
	CreatedTag      string `yaml:"created_tag" mapstructure:"created_tag"`
	OnlyNewVocabTag string `yaml:"only_new_vocab_tag" mapstructure:"only_new_vocab_tag"`
	NoVocabTag      string `yaml:"no_vocab_tag" mapstructure:"no_vocab_tag"`
	UnsuspendedTag  string `yaml:"unsuspended_tag" mapstructure:"unsuspended_tag"`

	DictionaryFile   string `yaml:"dictionary_file" mapstructure:"dictionary_file"`
	DictionaryFormat string `yaml:"dictionary_format" mapstructure:"dictionary_format"`
	DictionaryURL    string `yaml:"dictionary_url" mapstructure:"dictionary_url"`

	KanjiDeckName  string `yaml:"kanji_deck_name" mapstructure:"kanji_deck_name"`
	RealtimeReview bool   `yaml:"realtime_review" mapstructure:"realtime_review"`
	ReorderMode    string `yaml:"reorder_mode" mapstructure:"reorder_mode"`

	IgnoreSuspendedVocab bool   `yaml:"ignore_suspended_vocab" mapstructure:"ignore_suspended_vocab"`
	AutoSuspendVocab     bool   `yaml:"auto_suspend_vocab" mapstructure:"auto_suspend_vocab"`
	AutoSuspendTag       string `yaml:"auto_suspend_tag" mapstructure:"auto_suspend_tag"`
	KnownKanjiInterval   int    `yaml:"known_kanji_interval" mapstructure:"known_kanji_interval"`

	SkipProperNouns bool     `yaml:"skip_proper_nouns" mapstructure:"skip_proper_nouns"`
	GlyphRanges     []string `yaml:"glyph_ranges" mapstructure:"glyph_ranges"` // e.g. "3400-9FFF"

	DatabasePath string        `yaml:"database_path" mapstructure:"database_path"`
	Logging      LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// baseDir is the directory of the loaded config file; relative paths resolve against it.
	baseDir string
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() *Config {
	return &Config{
		KanjiNoteType: KanjiNoteType{
			Fields: map[string]string{},
		},
		ExistingTag:        "has_vocab_kanji",
		CreatedTag:         "auto_kanji_card",
		UnsuspendedTag:     "kanjicards_unsuspended",
		DictionaryFile:     "kanjidic2.xml",
		DictionaryFormat:   FormatAuto,
		DictionaryURL:      "http://www.edrdg.org/kanjidic/kanjidic2.xml.gz",
		RealtimeReview:     true,
		ReorderMode:        ReorderFrequency,
		AutoSuspendTag:     "kanjicards_autosuspended",
		KnownKanjiInterval: 21,
		GlyphRanges:        []string{"3400-9FFF", "F900-FAFF"},
		DatabasePath:       "kanjisync.db",
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("existing_tag", d.ExistingTag)
	v.SetDefault("created_tag", d.CreatedTag)
	v.SetDefault("only_new_vocab_tag", d.OnlyNewVocabTag)
	v.SetDefault("no_vocab_tag", d.NoVocabTag)
	v.SetDefault("unsuspended_tag", d.UnsuspendedTag)
	v.SetDefault("dictionary_file", d.DictionaryFile)
	v.SetDefault("dictionary_format", d.DictionaryFormat)
	v.SetDefault("dictionary_url", d.DictionaryURL)
	v.SetDefault("kanji_deck_name", d.KanjiDeckName)
	v.SetDefault("realtime_review", d.RealtimeReview)
	v.SetDefault("reorder_mode", d.ReorderMode)
	v.SetDefault("ignore_suspended_vocab", d.IgnoreSuspendedVocab)
	v.SetDefault("auto_suspend_vocab", d.AutoSuspendVocab)
	v.SetDefault("auto_suspend_tag", d.AutoSuspendTag)
	v.SetDefault("known_kanji_interval", d.KnownKanjiInterval)
	v.SetDefault("skip_proper_nouns", d.SkipProperNouns)
	v.SetDefault("glyph_ranges", d.GlyphRanges)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
}

// Load reads the configuration file at path, applying defaults and
// KANJISYNC_* environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("KANJISYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	baseDir := ""
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
		if abs, err := filepath.Abs(path); err == nil {
			baseDir = filepath.Dir(abs)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	cfg.baseDir = baseDir
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// normalize trims tag names and drops empty vocab fields.
func (c *Config) normalize() {
	c.ExistingTag = strings.TrimSpace(c.ExistingTag)
	c.CreatedTag = strings.TrimSpace(c.CreatedTag)
	c.OnlyNewVocabTag = strings.TrimSpace(c.OnlyNewVocabTag)
	c.NoVocabTag = strings.TrimSpace(c.NoVocabTag)
	c.UnsuspendedTag = strings.TrimSpace(c.UnsuspendedTag)
	c.AutoSuspendTag = strings.TrimSpace(c.AutoSuspendTag)
	c.ReorderMode = strings.ToLower(strings.TrimSpace(c.ReorderMode))
	c.DictionaryFormat = strings.ToLower(strings.TrimSpace(c.DictionaryFormat))
	if c.DictionaryFormat == "" {
		c.DictionaryFormat = FormatAuto
	}

	var vocab []VocabNoteType
	for _, vt := range c.VocabNoteTypes {
		vt.Name = strings.TrimSpace(vt.Name)
		var fields []string
		for _, f := range vt.Fields {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		vt.Fields = fields
		vocab = append(vocab, vt)
	}
	c.VocabNoteTypes = vocab

	fields := make(map[string]string, len(KanjiFieldKeys))
	for k, v := range c.KanjiNoteType.Fields {
		fields[strings.ToLower(k)] = strings.TrimSpace(v)
	}
	for _, k := range KanjiFieldKeys {
		if _, ok := fields[k]; !ok {
			fields[k] = ""
		}
	}
	c.KanjiNoteType.Fields = fields
	c.KanjiNoteType.Name = strings.TrimSpace(c.KanjiNoteType.Name)
}

// ResolvePath makes p absolute relative to the config file directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.baseDir == "" {
		return p
	}
	return filepath.Join(c.baseDir, p)
}

// DictionaryPath returns the resolved dictionary file path.
func (c *Config) DictionaryPath() string {
	return c.ResolvePath(c.DictionaryFile)
}

// ActiveVocabNoteTypes returns the vocab note types that name at least one field.
func (c *Config) ActiveVocabNoteTypes() []VocabNoteType {
	var out []VocabNoteType
	for _, vt := range c.VocabNoteTypes {
		if vt.Name != "" && len(vt.Fields) > 0 {
			out = append(out, vt)
		}
	}
	return out
}

// OwnedTags returns the tags reconciliation may remove from kanji notes.
// The created tag is deliberately absent: it is only ever added.
func (c *Config) OwnedTags() []string {
	var out []string
	for _, t := range []string{c.ExistingTag, c.OnlyNewVocabTag, c.NoVocabTag, c.UnsuspendedTag} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// TrackingTags returns every tag that marks a kanji note as managed by kanjisync.
func (c *Config) TrackingTags() []string {
	out := c.OwnedTags()
	if c.CreatedTag != "" {
		out = append(out, c.CreatedTag)
	}
	return out
}
