// Package tokenizer splits log text into overlapping character n-grams.
// Windows are measured in Unicode scalar values rather than bytes, so
// multi-byte text such as CJK is never cut mid-character, and every window
// is lower-cased before it becomes a Token.
package tokenizer

import (
	"iter"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

// Tokenizer turns text into a lazy sequence of Tokens. Implementations must
// be safe for concurrent use and must return an identical sequence every
// time the same text is tokenized.
type Tokenizer interface {
	Tokenize(text string) iter.Seq[Token]
}

// NGramTokenizer emits every window of exactly n consecutive scalar values,
// sliding one scalar at a time.
type NGramTokenizer struct {
	n int
}

// New returns an NGramTokenizer of width n. Widths below 1 are rejected.
func New(n int) (*NGramTokenizer, error) {
	if n < 1 {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "ngram size must be at least 1, got %d", n)
	}
	return &NGramTokenizer{n: n}, nil
}

// Size returns the configured n-gram width.
func (t *NGramTokenizer) Size() int {
	return t.n
}

// Tokenize returns the n-grams of text. Nothing is computed until the
// sequence is ranged over, and ranging over it again starts from scratch.
func (t *NGramTokenizer) Tokenize(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		it := t.Iterator(text)
		for {
			tok, ok := it.Next()
			if !ok || !yield(tok) {
				return
			}
		}
	}
}

// Iterator returns a pull-style cursor over the n-grams of text.
func (t *NGramTokenizer) Iterator(text string) *Iterator {
	return &Iterator{text: text, n: t.n, end: -1}
}

// Count returns how many tokens Tokenize would produce for text.
func (t *NGramTokenizer) Count(text string) int {
	scalars := utf8.RuneCountInString(text)
	if scalars < t.n {
		return 0
	}
	return scalars - t.n + 1
}

// Iterator walks the windows of a single text. start and end are the byte
// offsets of the current window; end is -1 before the first call to Next.
type Iterator struct {
	text  string
	n     int
	start int
	end   int
	done  bool
}

// Next returns the next token, or false once the text is exhausted.
func (it *Iterator) Next() (Token, bool) {
	if it.done {
		return Token{}, false
	}
	if it.end < 0 {
		end, ok := advance(it.text, 0, it.n)
		if !ok {
			it.done = true
			return Token{}, false
		}
		it.end = end
	} else {
		if it.end >= len(it.text) {
			it.done = true
			return Token{}, false
		}
		_, size := utf8.DecodeRuneInString(it.text[it.start:])
		it.start += size
		_, size = utf8.DecodeRuneInString(it.text[it.end:])
		it.end += size
	}
	return NewToken(it.text[it.start:it.end]), true
}

// advance moves count scalar values forward from off and returns the new
// byte offset, or false if the text ends first.
func advance(text string, off, count int) (int, bool) {
	for i := 0; i < count; i++ {
		if off >= len(text) {
			return off, false
		}
		_, size := utf8.DecodeRuneInString(text[off:])
		off += size
	}
	return off, true
}
