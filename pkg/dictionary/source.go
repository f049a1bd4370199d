package dictionary

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDictionaryNotFound is returned when the dictionary file does not exist.
var ErrDictionaryNotFound = errors.New("dictionary file not found")

// ParseError reports a malformed dictionary file.
type ParseError struct {
	Path   string
	Line   int // 0 when unknown
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if loc == "" {
		loc = "<input>"
	}
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
		if e.Column > 0 {
			loc = fmt.Sprintf("%s:%d", loc, e.Column)
		}
	}
	return fmt.Sprintf("parse dictionary %s: %v", loc, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Entry is the reference data for one glyph.
type Entry struct {
	Literal     string
	Meaning     string // glosses joined with "; "
	StrokeCount int    // 0 when unknown
	Kunyomi     []string
	Onyomi      []string
	Frequency   int // 0 when unranked
}

// KunyomiText returns the kun readings joined for display in a note field.
func (e Entry) KunyomiText() string { return strings.Join(e.Kunyomi, "; ") }

// OnyomiText returns the on readings joined for display in a note field.
func (e Entry) OnyomiText() string { return strings.Join(e.Onyomi, "; ") }

// Source answers glyph lookups. Implementations are read-only after load and
// safe for concurrent use.
type Source interface {
	Lookup(literal string) (Entry, bool)
	Len() int
}

// Table is an in-memory Source keyed by literal.
type Table struct {
	entries map[string]Entry
}

// NewTable builds a Table from entries. Later duplicates of a literal are ignored.
func NewTable(entries []Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Literal == "" {
			continue
		}
		if _, ok := t.entries[e.Literal]; ok {
			continue
		}
		t.entries[e.Literal] = e
	}
	return t
}

// Lookup returns the entry for literal. The returned slices are copies.
func (t *Table) Lookup(literal string) (Entry, bool) {
	e, ok := t.entries[literal]
	if !ok {
		return Entry{}, false
	}
	e.Kunyomi = append([]string(nil), e.Kunyomi...)
	e.Onyomi = append([]string(nil), e.Onyomi...)
	return e, true
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// appendUnique appends s to list unless it is blank or already present.
func appendUnique(list []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return list
	}
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
