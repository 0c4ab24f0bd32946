package termdict

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/blevesearch/vellum"
)

// Dictionary is a read-only view over an encoded term dictionary.
type Dictionary struct {
	fst    *vellum.FST
	logger *slog.Logger
}

// Load decodes a dictionary previously produced by Builder.Build. data must
// stay untouched while the Dictionary is in use.
func Load(data []byte) (*Dictionary, error) {
	fst, err := vellum.Load(data)
	if err != nil {
		return nil, fmt.Errorf("loading term dictionary: %w", err)
	}
	return &Dictionary{fst: fst, logger: slog.Default().With("component", "termdict")}, nil
}

// Get returns the id bound to term.
func (d *Dictionary) Get(term []byte) (uint64, bool, error) {
	id, ok, err := d.fst.Get(term)
	if err != nil {
		return 0, false, fmt.Errorf("looking up term %q: %w", term, err)
	}
	return id, ok, nil
}

// Len returns the number of terms.
func (d *Dictionary) Len() int {
	return d.fst.Len()
}

// All walks every term in byte order. The yielded key is only valid until
// the next iteration step.
func (d *Dictionary) All() iter.Seq2[[]byte, uint64] {
	return d.Range(nil, nil)
}

// errStopWalk ends a walk early without reporting an error.
var errStopWalk = errors.New("stop walk")

// Range walks terms in [start, end). A nil bound is open. An iteration
// failure ends the sequence and is logged; use Walk to receive it.
func (d *Dictionary) Range(start, end []byte) iter.Seq2[[]byte, uint64] {
	return func(yield func([]byte, uint64) bool) {
		err := d.Walk(start, end, func(key []byte, id uint64) error {
			if !yield(key, id) {
				return errStopWalk
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			d.logger.Error("term dictionary iteration failed", "start", start, "end", end, "error", err)
		}
	}
}

// Walk calls fn for every term in [start, end) in byte order and returns the
// first error from fn or from the underlying iterator. The key passed to fn
// is only valid during the call.
func (d *Dictionary) Walk(start, end []byte, fn func(term []byte, id uint64) error) error {
	itr, err := d.fst.Iterator(start, end)
	return walk(itr, err, fn)
}

func walk(itr vellum.Iterator, err error, fn func([]byte, uint64) error) error {
	for err == nil {
		key, id := itr.Current()
		if err := fn(key, id); err != nil {
			return err
		}
		err = itr.Next()
	}
	if errors.Is(err, vellum.ErrIteratorDone) {
		return nil
	}
	return fmt.Errorf("walking term dictionary: %w", err)
}

// Prefix walks every term starting with prefix.
func (d *Dictionary) Prefix(prefix []byte) iter.Seq2[[]byte, uint64] {
	return d.Range(prefix, prefixEnd(prefix))
}

// Terms copies every term out in order.
func (d *Dictionary) Terms() ([][]byte, error) {
	out := make([][]byte, 0, d.Len())
	err := d.Walk(nil, nil, func(key []byte, _ uint64) error {
		out = append(out, append([]byte(nil), key...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dictionary) Close() error {
	return d.fst.Close()
}

// prefixEnd returns the smallest key greater than every key that starts
// with prefix, or nil when no such key exists.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Merge k-way merges the sorted term streams of dicts into a new dictionary
// written to w. Terms present in several inputs appear once, and ids are
// renumbered contiguously from 0 in merged order.
func Merge[W io.Writer](w W, dicts []*Dictionary, opts ...Option) (W, error) {
	var zero W
	itrs := make([]vellum.Iterator, 0, len(dicts))
	for i, d := range dicts {
		itr, err := d.fst.Iterator(nil, nil)
		if errors.Is(err, vellum.ErrIteratorDone) {
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("opening iterator on dictionary %d: %w", i, err)
		}
		itrs = append(itrs, itr)
	}

	b, err := NewBuilder(w, opts...)
	if err != nil {
		return zero, err
	}
	if len(itrs) == 0 {
		return b.Build()
	}

	merged, err := vellum.NewMergeIterator(itrs, func([]uint64) uint64 { return 0 })
	for err == nil {
		key, _ := merged.Current()
		if err := b.Insert(key); err != nil {
			return zero, fmt.Errorf("merging term %q: %w", key, err)
		}
		err = merged.Next()
	}
	if !errors.Is(err, vellum.ErrIteratorDone) {
		return zero, fmt.Errorf("merging dictionaries: %w", err)
	}
	return b.Build()
}
