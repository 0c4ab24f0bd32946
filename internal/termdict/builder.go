// Package termdict compiles sorted, de-duplicated terms into a finite-state
// transducer that maps every term to a dense integer id. Shared prefixes and
// suffixes collapse into shared automaton states, and the loaded dictionary
// supports ordered, prefix and range walks that a hash map could not.
package termdict

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/blevesearch/vellum"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/metrics"
)

// Builder streams strictly increasing terms into an FST written to W. Ids
// are assigned in insertion order starting at 0. A Builder has a single
// writer and is consumed by Build.
type Builder[W io.Writer] struct {
	sink    W
	out     *countingWriter
	fst     *vellum.Builder
	nextID  uint64
	last    []byte
	hasLast bool
	err     error
	done    bool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option tweaks a Builder.
type Option func(*options)

type options struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// WithMetrics reports build statistics to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger overrides the builder's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewBuilder starts a dictionary that will be encoded into w.
func NewBuilder[W io.Writer](w W, opts ...Option) (*Builder[W], error) {
	o := options{logger: slog.Default().With("component", "termdict")}
	for _, opt := range opts {
		opt(&o)
	}
	out := &countingWriter{w: w}
	fst, err := vellum.New(out, nil)
	if err != nil {
		return nil, fmt.Errorf("creating fst builder: %w", err)
	}
	return &Builder[W]{
		sink:    w,
		out:     out,
		fst:     fst,
		metrics: o.metrics,
		logger:  o.logger,
	}, nil
}

// Insert binds term to the next id. term must sort strictly after the
// previously inserted term; otherwise ErrOutOfOrderInsert is returned, no id
// is consumed, and the builder refuses all further work.
func (b *Builder[W]) Insert(term []byte) error {
	if b.done {
		return apperrors.New(apperrors.ErrBuilderFinalized, "insert after build")
	}
	if b.err != nil {
		return b.err
	}
	if b.hasLast && bytes.Compare(term, b.last) <= 0 {
		b.err = apperrors.Newf(apperrors.ErrOutOfOrderInsert,
			"term %q does not sort after %q (id %d)", term, b.last, b.nextID-1)
		b.metrics.DictionaryInsertRejected()
		return b.err
	}
	if err := b.fst.Insert(term, b.nextID); err != nil {
		b.err = fmt.Errorf("inserting term %q: %w", term, err)
		return b.err
	}
	b.last = append(b.last[:0], term...)
	b.hasLast = true
	b.nextID++
	return nil
}

// InsertToken is Insert for a tokenizer.Token.
func (b *Builder[W]) InsertToken(tok tokenizer.Token) error {
	return b.Insert(tok.Bytes())
}

// Len returns the number of accepted terms, which is also the next id.
func (b *Builder[W]) Len() uint64 {
	return b.nextID
}

// BytesWritten returns how many encoded bytes have reached the sink so far.
func (b *Builder[W]) BytesWritten() int64 {
	return b.out.n
}

// Build flushes the remaining transducer state and hands the sink back. The
// builder cannot be used afterwards. A builder poisoned by a failed Insert
// fails here as well.
func (b *Builder[W]) Build() (W, error) {
	var zero W
	if b.done {
		return zero, apperrors.New(apperrors.ErrBuilderFinalized, "build called twice")
	}
	b.done = true
	if b.err != nil {
		return zero, fmt.Errorf("building poisoned dictionary: %w", b.err)
	}
	if err := b.fst.Close(); err != nil {
		return zero, fmt.Errorf("finishing fst: %w", err)
	}
	b.logger.Info("term dictionary built",
		"terms", b.nextID,
		"bytes_written", b.out.n,
	)
	b.metrics.DictionaryBuilt(b.nextID, b.out.n)
	return b.sink, nil
}

// BuildFromTokens encodes tokens, which must already be sorted and unique,
// into w.
func BuildFromTokens[W io.Writer](w W, tokens []tokenizer.Token, opts ...Option) (W, error) {
	var zero W
	b, err := NewBuilder(w, opts...)
	if err != nil {
		return zero, err
	}
	for _, tok := range tokens {
		if err := b.InsertToken(tok); err != nil {
			return zero, err
		}
	}
	return b.Build()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
