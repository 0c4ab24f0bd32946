package tokenizer

import (
	"iter"
	"slices"
)

// Collect drains seq into a slice.
func Collect(seq iter.Seq[Token]) []Token {
	return slices.Collect(seq)
}

// TokenSet accumulates distinct tokens. It is not safe for concurrent use;
// parallel producers should each fill their own set and Merge afterwards.
type TokenSet struct {
	tokens map[Token]struct{}
}

func NewTokenSet() *TokenSet {
	return &TokenSet{tokens: make(map[Token]struct{})}
}

func (s *TokenSet) Add(tok Token) {
	s.tokens[tok] = struct{}{}
}

// AddAll inserts every token of seq and returns how many were produced,
// duplicates included.
func (s *TokenSet) AddAll(seq iter.Seq[Token]) int {
	n := 0
	for tok := range seq {
		s.tokens[tok] = struct{}{}
		n++
	}
	return n
}

// Merge folds other into s.
func (s *TokenSet) Merge(other *TokenSet) {
	for tok := range other.tokens {
		s.tokens[tok] = struct{}{}
	}
}

func (s *TokenSet) Len() int {
	return len(s.tokens)
}

// Sorted returns the distinct tokens in byte order, ready to be fed to a
// term dictionary builder.
func (s *TokenSet) Sorted() []Token {
	out := make([]Token, 0, len(s.tokens))
	for tok := range s.tokens {
		out = append(out, tok)
	}
	slices.SortFunc(out, Token.Compare)
	return out
}
