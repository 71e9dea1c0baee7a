// Package search implements tokenization, relevance scoring, and batched
// corpus scanning for free-text note queries.
package search

import (
	"strings"
	"unicode"
)

// TagMarker prefixes tokens that name a tag rather than a word.
const TagMarker = '#'

// Tokenizer normalizes raw text into an ordered token sequence. It case-folds
// (unless CaseSensitive), strips punctuation, and collapses whitespace.
// Tokens beginning with the tag marker are preserved as distinct tag-tokens,
// including hierarchical segments ("#work/projects").
//
// Tokenization is deterministic and side-effect-free; empty or
// whitespace-only input yields an empty sequence.
type Tokenizer struct {
	CaseSensitive bool
}

// Tokenize splits text into normalized tokens.
func (t Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var b strings.Builder
	inTag := false

	flush := func() {
		if b.Len() == 0 {
			inTag = false
			return
		}
		tok := b.String()
		b.Reset()
		if inTag {
			tok = strings.TrimRight(tok, "/-_")
		}
		inTag = false
		if tok == "" || tok == string(TagMarker) {
			return
		}
		if !t.CaseSensitive {
			tok = strings.ToLower(tok)
		}
		tokens = append(tokens, tok)
	}

	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == TagMarker && b.Len() == 0:
			b.WriteRune(r)
			inTag = true
		case inTag && (r == '/' || r == '-' || r == '_'):
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// IsTagToken reports whether tok names a tag.
func IsTagToken(tok string) bool {
	return len(tok) > 0 && tok[0] == TagMarker
}
