package glyph

import (
	"sync"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token is a single morpheme from the tokenizer.
type Token struct {
	Surface    string
	PrimaryPOS string // e.g. "名詞"
	SubPOS     string // e.g. "固有名詞"
}

// ProperNoun reports whether the token is tagged 名詞/固有名詞.
func (t Token) ProperNoun() bool {
	return t.PrimaryPOS == "名詞" && t.SubPOS == "固有名詞"
}

// Lexical wraps a kagome tokenizer with the IPA dictionary.
type Lexical struct {
	mu sync.Mutex
	t  *tokenizer.Tokenizer
}

// NewLexical creates a tokenizer instance. Loading the IPA dictionary is slow,
// so callers should create one and share it.
func NewLexical() (*Lexical, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Lexical{t: t}, nil
}

// Tokenize splits text into morphemes, dropping unknown-class dummies.
func (l *Lexical) Tokenize(text string) []Token {
	l.mu.Lock()
	raw := l.t.Tokenize(text)
	l.mu.Unlock()

	out := make([]Token, 0, len(raw))
	for _, tok := range raw {
		if tok.Class == tokenizer.DUMMY {
			continue
		}
		features := tok.Features()
		t := Token{Surface: tok.Surface}
		if len(features) > 0 {
			t.PrimaryPOS = features[0]
		}
		if len(features) > 1 {
			t.SubPOS = features[1]
		}
		out = append(out, t)
	}
	return out
}

// ProperNounOnly returns the qualifying glyphs of text that appear only inside
// proper-noun tokens.
func (l *Lexical) ProperNounOnly(text string, qualifies func(rune) bool) map[string]bool {
	proper := make(map[string]bool)
	common := make(map[string]bool)
	for _, tok := range l.Tokenize(text) {
		for _, r := range tok.Surface {
			if !qualifies(r) {
				continue
			}
			if tok.ProperNoun() {
				proper[string(r)] = true
			} else {
				common[string(r)] = true
			}
		}
	}
	for g := range common {
		delete(proper, g)
	}
	return proper
}
