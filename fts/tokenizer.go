package fts

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Bigram is one tokenized unit: a pair of consecutive runes and its
// position (a 0-based rune offset into the normalized text, not a byte
// offset) used for phrase matching.
type Bigram struct {
	Text string
	Pos  uint32
}

// Tokenize normalizes text to NFKC, lowercases it, and splits it into
// overlapping two-rune bigrams. Bigram positions are rune offsets into the
// normalized text, so consecutive bigrams of a phrase have consecutive
// positions regardless of each rune's UTF-8 width — this is what makes
// phrase matching a simple "positions form a consecutive run" check.
//
// Single-rune input produces one bigram (the rune paired with itself),
// matching how short queries and single-character documents still get an
// indexable token instead of producing nothing.
func Tokenize(text string) []Bigram {
	normalized := norm.NFKC.String(text)
	normalized = strings.ToLower(normalized)
	runes := []rune(normalized)

	if len(runes) == 0 {
		return nil
	}
	if len(runes) == 1 {
		return []Bigram{{Text: string([]rune{runes[0], runes[0]}), Pos: 0}}
	}

	bigrams := make([]Bigram, 0, len(runes)-1)
	for i := 0; i < len(runes)-1; i++ {
		bigrams = append(bigrams, Bigram{
			Text: string([]rune{runes[i], runes[i+1]}),
			Pos:  uint32(i),
		})
	}
	return bigrams
}

// TokenizeQuery normalizes and bigram-splits a raw phrase for query
// matching, without emitting boolean operator syntax — callers that need
// to parse +/-/"phrase" operators do so before calling this on each
// extracted phrase/term.
func TokenizeQuery(text string) []Bigram {
	return Tokenize(text)
}
