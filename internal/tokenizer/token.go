package tokenizer

import (
	"bytes"
	"strings"
	"unicode"
	"unicode/utf8"
	"unsafe"
)

// InlineCap is the largest term, in bytes, stored inside the Token value
// itself. Longer terms live in a heap-allocated string.
const InlineCap = 15

// Token is a single lower-cased n-gram. Short terms are kept inline in a
// fixed array so building one does not allocate; longer terms fall back to
// a string. The representation is an implementation detail: Compare and
// Equal only ever look at the bytes.
//
// Token values are immutable. The slice returned by Bytes aliases the
// token's storage and must not be modified.
type Token struct {
	heap string
	n    uint8
	buf  [InlineCap]byte
}

// NewToken lower-cases s and wraps it in a Token.
func NewToken(s string) Token {
	var t Token
	for _, r := range s {
		l := unicode.ToLower(r)
		size := utf8.RuneLen(l)
		if size < 0 {
			l, size = utf8.RuneError, 3
		}
		if int(t.n)+size > InlineCap {
			return Token{heap: strings.ToLower(s)}
		}
		utf8.EncodeRune(t.buf[t.n:], l)
		t.n += uint8(size)
	}
	return t
}

// Inline reports whether t is stored inline.
func (t *Token) Inline() bool {
	return t.heap == ""
}

// Len returns the number of bytes in the term.
func (t *Token) Len() int {
	if t.heap != "" {
		return len(t.heap)
	}
	return int(t.n)
}

func (t *Token) Bytes() []byte {
	if t.heap != "" {
		return unsafe.Slice(unsafe.StringData(t.heap), len(t.heap))
	}
	return t.buf[:t.n:t.n]
}

func (t Token) String() string {
	if t.heap != "" {
		return t.heap
	}
	return string(t.buf[:t.n])
}

// Compare orders tokens byte-lexicographically.
func (t Token) Compare(other Token) int {
	return bytes.Compare(t.Bytes(), other.Bytes())
}

func (t Token) Equal(other Token) bool {
	return bytes.Equal(t.Bytes(), other.Bytes())
}
