package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ConfigurationError reports a setting that prevents a recalculation from starting.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// Validate checks the settings needed before any scanning begins.
func (c *Config) Validate() error {
	if len(c.ActiveVocabNoteTypes()) == 0 {
		return &ConfigurationError{Setting: "vocab_note_types", Reason: "no kanji-bearing vocabulary fields configured"}
	}
	if c.KanjiNoteType.Name == "" {
		return &ConfigurationError{Setting: "kanji_note_type.name", Reason: "no kanji note type selected"}
	}
	if c.KanjiNoteType.LiteralField() == "" {
		return &ConfigurationError{Setting: "kanji_note_type.fields.kanji", Reason: "no field assigned to store the kanji character"}
	}
	switch c.ReorderMode {
	case ReorderFrequency, ReorderVocab, ReorderFirstEncountered:
	default:
		return &ConfigurationError{Setting: "reorder_mode", Reason: fmt.Sprintf("unknown mode %q", c.ReorderMode)}
	}
	switch c.DictionaryFormat {
	case FormatAuto, FormatKanjidic, FormatFlat:
	default:
		return &ConfigurationError{Setting: "dictionary_format", Reason: fmt.Sprintf("unknown format %q", c.DictionaryFormat)}
	}
	if c.DictionaryFile == "" {
		return &ConfigurationError{Setting: "dictionary_file", Reason: "dictionary file path is not configured"}
	}
	if c.AutoSuspendVocab && c.AutoSuspendTag == "" {
		return &ConfigurationError{Setting: "auto_suspend_tag", Reason: "required when auto_suspend_vocab is enabled"}
	}
	if c.KnownKanjiInterval < 0 {
		return &ConfigurationError{Setting: "known_kanji_interval", Reason: "must not be negative"}
	}
	if _, err := c.Ranges(); err != nil {
		return &ConfigurationError{Setting: "glyph_ranges", Reason: err.Error()}
	}
	return nil
}

// RuneRange is an inclusive code-point range.
type RuneRange struct {
	Lo, Hi rune
}

// Ranges parses GlyphRanges entries of the form "3400-9FFF" (hex, optional U+ prefix).
func (c *Config) Ranges() ([]RuneRange, error) {
	out := make([]RuneRange, 0, len(c.GlyphRanges))
	for _, raw := range c.GlyphRanges {
		lo, hi, ok := strings.Cut(strings.TrimSpace(raw), "-")
		if !ok {
			hi = lo
		}
		l, err := parseCodePoint(lo)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", raw, err)
		}
		h, err := parseCodePoint(hi)
		if err != nil {
			return nil, fmt.Errorf("range %q: %w", raw, err)
		}
		if h < l {
			return nil, fmt.Errorf("range %q: upper bound below lower bound", raw)
		}
		out = append(out, RuneRange{Lo: l, Hi: h})
	}
	return out, nil
}

func parseCodePoint(s string) (rune, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "U+"), "u+")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid code point %q", s)
	}
	return rune(v), nil
}
