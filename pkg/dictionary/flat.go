package dictionary

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

// flatEntry is the per-literal object of the flat JSON format. Numeric fields
// accept numbers or digit strings; reading fields accept arrays or "; "-joined strings.
type flatEntry struct {
	Meaning     *string         `json:"meaning"`
	Definition  *string         `json:"definition"`
	StrokeCount json.RawMessage `json:"stroke_count"`
	Kunyomi     json.RawMessage `json:"kunyomi"`
	Onyomi      json.RawMessage `json:"onyomi"`
	Frequency   json.RawMessage `json:"frequency"`
}

// LoadFlat parses a flat JSON dictionary file.
func LoadFlat(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDictionaryNotFound, path)
		}
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	t, err := ParseFlat(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return t, nil
}

// ParseFlat decodes a JSON object mapping literal to entry object.
func ParseFlat(data []byte) (*Table, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, jsonParseError(data, err)
	}
	if top == nil {
		return nil, &ParseError{Line: 1, Column: 1, Err: errors.New("top level must be an object")}
	}
	if len(top) == 0 {
		return nil, &ParseError{Line: 1, Column: 1, Err: errors.New("no entries")}
	}
	offsets := entryOffsets(data)
	entryError := func(lit string, err error) error {
		pe := &ParseError{Err: fmt.Errorf("entry %q: %w", lit, err)}
		if off, ok := offsets[lit]; ok {
			pe.Line, pe.Column = position(data, off)
		}
		return pe
	}

	literals := make([]string, 0, len(top))
	for lit := range top {
		literals = append(literals, lit)
	}
	sort.Strings(literals)

	entries := make([]Entry, 0, len(top))
	for _, lit := range literals {
		raw := bytes.TrimSpace(top[lit])
		if len(raw) == 0 || raw[0] != '{' {
			return nil, entryError(lit, errors.New("must be an object"))
		}
		var fe flatEntry
		if err := json.Unmarshal(raw, &fe); err != nil {
			return nil, entryError(lit, err)
		}
		e := Entry{
			Literal:     strings.TrimSpace(lit),
			StrokeCount: flatInt(fe.StrokeCount),
			Kunyomi:     flatReadings(fe.Kunyomi),
			Onyomi:      flatReadings(fe.Onyomi),
			Frequency:   flatInt(fe.Frequency),
		}
		switch {
		case fe.Meaning != nil:
			e.Meaning = strings.TrimSpace(*fe.Meaning)
		case fe.Definition != nil:
			e.Meaning = strings.TrimSpace(*fe.Definition)
		}
		entries = append(entries, e)
	}
	return NewTable(entries), nil
}

// entryOffsets maps each top-level key of an already validated object to the
// byte offset of its value. A repeated key keeps its last offset, as
// json.Unmarshal keeps its last value.
func entryOffsets(data []byte) map[string]int64 {
	out := map[string]int64{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return out
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		key, ok := tok.(string)
		if !ok {
			return out
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return out
		}
		out[key] = dec.InputOffset() - int64(len(raw))
	}
	return out
}

// flatInt accepts a JSON number or a digit string. Anything else is 0.
func flatInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	switch x := v.(type) {
	case float64:
		if x < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int(x)
	case string:
		s := strings.TrimSpace(x)
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func flatReadings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, r := range list {
			out = appendUnique(out, r)
		}
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var out []string
		for _, r := range strings.Split(s, ";") {
			out = appendUnique(out, r)
		}
		return out
	}
	return nil
}

func jsonParseError(data []byte, err error) error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		line, col := position(data, syn.Offset)
		return &ParseError{Line: line, Column: col, Err: err}
	}
	var typ *json.UnmarshalTypeError
	if errors.As(err, &typ) {
		line, col := position(data, typ.Offset)
		return &ParseError{Line: line, Column: col, Err: errors.New("top level must be an object")}
	}
	return &ParseError{Err: err}
}
