package glyph

import (
	"strings"
	"unicode/utf8"

	"github.com/japaniel/kanjisync/pkg/config"
)

// DefaultRanges are the CJK Unified Ideographs (including Extension A) and the
// CJK Compatibility Ideographs blocks.
var DefaultRanges = []config.RuneRange{
	{Lo: 0x3400, Hi: 0x9FFF},
	{Lo: 0xF900, Hi: 0xFAFF},
}

// Extractor finds qualifying glyphs in vocabulary field text.
type Extractor struct {
	ranges  []config.RuneRange
	lexical *Lexical
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRanges replaces the default code-point ranges.
func WithRanges(r []config.RuneRange) Option {
	return func(e *Extractor) {
		if len(r) > 0 {
			e.ranges = append([]config.RuneRange(nil), r...)
		}
	}
}

// WithLexical enables the proper-noun filter.
func WithLexical(l *Lexical) Option {
	return func(e *Extractor) { e.lexical = l }
}

// NewExtractor returns an Extractor using DefaultRanges unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{ranges: DefaultRanges}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig builds an Extractor from the glyph settings of cfg.
func FromConfig(cfg *config.Config) (*Extractor, error) {
	ranges, err := cfg.Ranges()
	if err != nil {
		return nil, err
	}
	opts := []Option{WithRanges(ranges)}
	if cfg.SkipProperNouns {
		l, err := NewLexical()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLexical(l))
	}
	return NewExtractor(opts...), nil
}

// Qualifies reports whether r falls in one of the configured ranges.
func (e *Extractor) Qualifies(r rune) bool {
	for _, rg := range e.ranges {
		if r >= rg.Lo && r <= rg.Hi {
			return true
		}
	}
	return false
}

// Extract returns the distinct qualifying glyphs of text in first-occurrence order.
// Markup is stripped before scanning. Undecodable bytes are skipped.
func (e *Extractor) Extract(text string) []string {
	if text == "" {
		return nil
	}
	plain := StripMarkup(text)

	var excluded map[string]bool
	if e.lexical != nil {
		excluded = e.lexical.ProperNounOnly(plain, e.Qualifies)
	}

	var out []string
	seen := make(map[rune]bool)
	for i := 0; i < len(plain); {
		r, size := utf8.DecodeRuneInString(plain[i:])
		i += size
		if r == utf8.RuneError && size <= 1 {
			continue
		}
		if seen[r] || !e.Qualifies(r) {
			continue
		}
		seen[r] = true
		if excluded[string(r)] {
			continue
		}
		out = append(out, string(r))
	}
	return out
}

// ExtractFields scans the named fields in order and merges their glyphs.
// Names missing from fields are ignored.
func (e *Extractor) ExtractFields(fields map[string]string, names []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range names {
		v, ok := fields[name]
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		for _, g := range e.Extract(v) {
			if !seen[g] {
				seen[g] = true
				out = append(out, g)
			}
		}
	}
	return out
}
