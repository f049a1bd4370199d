package dictionary

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// KANJIDIC2 element shapes. Only the fields we use are mapped.
type kdCharacter struct {
	Literal string `xml:"literal"`
	Misc    struct {
		StrokeCounts []string `xml:"stroke_count"`
		Freq         string   `xml:"freq"`
	} `xml:"misc"`
	ReadingMeaning struct {
		Groups []struct {
			Readings []struct {
				Type  string `xml:"r_type,attr"`
				Value string `xml:",chardata"`
			} `xml:"reading"`
			Meanings []struct {
				Lang  string `xml:"m_lang,attr"`
				Value string `xml:",chardata"`
			} `xml:"meaning"`
		} `xml:"rmgroup"`
	} `xml:"reading_meaning"`
}

func (c kdCharacter) entry() Entry {
	e := Entry{Literal: strings.TrimSpace(c.Literal)}
	for _, sc := range c.Misc.StrokeCounts {
		if n, err := strconv.Atoi(strings.TrimSpace(sc)); err == nil {
			e.StrokeCount = n
			break
		}
	}
	if n, err := strconv.Atoi(strings.TrimSpace(c.Misc.Freq)); err == nil && n > 0 {
		e.Frequency = n
	}

	var meanings []string
	for _, g := range c.ReadingMeaning.Groups {
		for _, r := range g.Readings {
			switch r.Type {
			case "ja_on":
				e.Onyomi = appendUnique(e.Onyomi, r.Value)
			case "ja_kun":
				e.Kunyomi = appendUnique(e.Kunyomi, r.Value)
			}
		}
		for _, m := range g.Meanings {
			if m.Lang == "" || m.Lang == "en" {
				meanings = appendUnique(meanings, m.Value)
			}
		}
	}
	e.Meaning = strings.Join(meanings, "; ")
	return e
}

// LoadKanjidic parses a KANJIDIC2 XML file.
func LoadKanjidic(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDictionaryNotFound, path)
		}
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	t, err := ParseKanjidic(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return t, nil
}

// ParseKanjidic decodes KANJIDIC2 XML, streaming over <character> elements.
func ParseKanjidic(data []byte) (*Table, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = xml.HTMLEntity

	fail := func(err error) error {
		line, col := position(data, dec.InputOffset())
		return &ParseError{Line: line, Column: col, Err: err}
	}

	var (
		entries []Entry
		rootOK  bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fail(err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !rootOK {
			if se.Name.Local != "kanjidic2" {
				return nil, fail(fmt.Errorf("unexpected root element <%s>, want <kanjidic2>", se.Name.Local))
			}
			rootOK = true
			continue
		}
		if se.Name.Local != "character" {
			if err := dec.Skip(); err != nil {
				return nil, fail(err)
			}
			continue
		}
		var c kdCharacter
		if err := dec.DecodeElement(&c, &se); err != nil {
			return nil, fail(err)
		}
		if e := c.entry(); e.Literal != "" {
			entries = append(entries, e)
		}
	}
	if !rootOK {
		return nil, &ParseError{Err: errors.New("missing <kanjidic2> root element")}
	}
	if len(entries) == 0 {
		return nil, &ParseError{Err: errors.New("no character entries")}
	}
	return NewTable(entries), nil
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (int, int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	prefix := data[:offset]
	line := bytes.Count(prefix, []byte{'\n'}) + 1
	col := int(offset) - bytes.LastIndexByte(prefix, '\n')
	return line, col
}
