package glyph

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// StripMarkup returns the text content of an HTML fragment.
// Ruby annotations (<rt>, <rp>) are dropped so furigana does not leak into the
// text, and script/style bodies are skipped. Plain text passes through unchanged.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skipDepth := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input; either way we keep what we have.
			return b.String()
		case html.TextToken:
			if skipDepth == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipped(atom.Lookup(name)) {
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipped(atom.Lookup(name)) && skipDepth > 0 {
				skipDepth--
			}
		}
	}
}

func skipped(a atom.Atom) bool {
	switch a {
	case atom.Rt, atom.Rp, atom.Script, atom.Style:
		return true
	}
	return false
}
