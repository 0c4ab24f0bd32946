// Package indexer runs the dictionary build pipeline: input lines are parsed,
// tokenized in parallel into per-worker token sets, merged, compiled into a
// term dictionary and written to the blob store.
package indexer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/ingest/parser"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/termdict"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/metrics"
)

// DictionarySuffix is appended to a blob key to name the dictionary built
// from that blob.
const DictionarySuffix = ".term"

// Catalog is where built dictionaries are recorded. *catalog.Catalog
// satisfies it.
type Catalog interface {
	Record(ctx context.Context, e catalog.Entry) error
}

// Options configures an Indexer. Zero Workers and BatchSize fall back to 1
// and 1024.
type Options struct {
	Tokenizer tokenizer.Tokenizer
	Parser    parser.Parser
	Store     store.BlobStore
	Catalog   Catalog
	Workers   int
	BatchSize int
	Metrics   *metrics.Metrics
}

// Stats counts what a collection pass saw.
type Stats struct {
	Lines   int64
	Skipped int64
	Tokens  int64
}

func (s *Stats) add(o Stats) {
	s.Lines += o.Lines
	s.Skipped += o.Skipped
	s.Tokens += o.Tokens
}

// Result describes one stored dictionary.
type Result struct {
	Key    string
	Source string
	Stats  Stats
	Terms  uint64
	Bytes  int64
}

type Indexer struct {
	tokenizer tokenizer.Tokenizer
	parser    parser.Parser
	store     store.BlobStore
	catalog   Catalog
	workers   int
	batchSize int
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(opts Options) (*Indexer, error) {
	if opts.Tokenizer == nil || opts.Parser == nil || opts.Store == nil {
		return nil, apperrors.New(apperrors.ErrConfiguration, "indexer needs a tokenizer, a parser and a store")
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1024
	}
	return &Indexer{
		tokenizer: opts.Tokenizer,
		parser:    opts.Parser,
		store:     opts.Store,
		catalog:   opts.Catalog,
		workers:   opts.Workers,
		batchSize: opts.BatchSize,
		metrics:   opts.Metrics,
		logger:    slog.Default().With("component", "indexer", "format", opts.Parser.Name()),
	}, nil
}

// Collect reads r line by line and returns the distinct tokens of every
// parsed field. Malformed lines are logged and skipped. Each worker fills
// its own set; the sets are merged once all input is consumed.
func (ix *Indexer) Collect(ctx context.Context, r io.Reader) (*tokenizer.TokenSet, Stats, error) {
	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan []string, ix.workers)
	sets := make([]*tokenizer.TokenSet, ix.workers)
	var lines, skipped, produced atomic.Int64

	for i := range sets {
		set := tokenizer.NewTokenSet()
		sets[i] = set
		g.Go(func() error {
			for batch := range batches {
				if err := gctx.Err(); err != nil {
					return err
				}
				for _, line := range batch {
					lines.Add(1)
					fields, err := ix.parser.Parse(line)
					if err != nil {
						skipped.Add(1)
						ix.metrics.LineProcessed("skipped")
						ix.logger.Warn("skipping malformed line", "error", err)
						continue
					}
					n := 0
					for _, f := range fields {
						n += set.AddAll(ix.tokenizer.Tokenize(f))
					}
					produced.Add(int64(n))
					ix.metrics.TokensAdded(n)
					ix.metrics.LineProcessed("indexed")
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(batches)
		send := func(batch []string) error {
			select {
			case batches <- batch:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		br := bufio.NewReaderSize(r, 64*1024)
		batch := make([]string, 0, ix.batchSize)
		for {
			line, err := br.ReadString('\n')
			if len(line) > 0 {
				batch = append(batch, line)
				if len(batch) == ix.batchSize {
					if err := send(batch); err != nil {
						return err
					}
					batch = make([]string, 0, ix.batchSize)
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
		}
		if len(batch) > 0 {
			return send(batch)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}
	merged := sets[0]
	for _, s := range sets[1:] {
		merged.Merge(s)
	}
	return merged, Stats{Lines: lines.Load(), Skipped: skipped.Load(), Tokens: produced.Load()}, nil
}

// Store compiles set into a dictionary, writes it under key and records it
// in the catalog when one is configured.
func (ix *Indexer) Store(ctx context.Context, key, source string, set *tokenizer.TokenSet) (Result, error) {
	sorted := set.Sorted()
	buf, err := termdict.BuildFromTokens(&bytes.Buffer{}, sorted, termdict.WithMetrics(ix.metrics))
	if err != nil {
		return Result{}, fmt.Errorf("building dictionary %s: %w", key, err)
	}
	if err := ix.store.Put(key, buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("storing dictionary %s: %w", key, err)
	}
	res := Result{Key: key, Source: source, Terms: uint64(len(sorted)), Bytes: int64(buf.Len())}
	if ix.catalog != nil {
		if err := ix.catalog.Record(ctx, catalog.Entry{
			Key:       key,
			TermCount: res.Terms,
			ByteSize:  res.Bytes,
			Source:    source,
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}

// IndexReader builds the dictionary for one stream and stores it under key.
func (ix *Indexer) IndexReader(ctx context.Context, key, source string, r io.Reader) (Result, error) {
	set, stats, err := ix.Collect(ctx, r)
	if err != nil {
		return Result{}, err
	}
	res, err := ix.Store(ctx, key, source, set)
	res.Stats = stats
	if err != nil {
		return res, err
	}
	ix.logResult(res)
	return res, nil
}

// IndexFiles builds one dictionary over the union of all files.
func (ix *Indexer) IndexFiles(ctx context.Context, key string, paths ...string) (Result, error) {
	if len(paths) == 0 {
		return Result{}, apperrors.New(apperrors.ErrConfiguration, "no input files")
	}
	total := tokenizer.NewTokenSet()
	var stats Stats
	for _, p := range paths {
		ix.logger.Info("parsing file", "path", p)
		set, s, err := ix.collectFile(ctx, p)
		if err != nil {
			return Result{}, err
		}
		total.Merge(set)
		stats.add(s)
	}
	res, err := ix.Store(ctx, key, strings.Join(paths, ","), total)
	res.Stats = stats
	if err != nil {
		return res, err
	}
	ix.logResult(res)
	return res, nil
}

func (ix *Indexer) collectFile(ctx context.Context, path string) (*tokenizer.TokenSet, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("opening input %s: %w", path, err)
	}
	defer f.Close()
	set, stats, err := ix.Collect(ctx, f)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("collecting %s: %w", path, err)
	}
	return set, stats, nil
}

// IndexBlob tokenizes a blob already in the store and writes its dictionary
// next to it, under key+DictionarySuffix.
func (ix *Indexer) IndexBlob(ctx context.Context, key string) (Result, error) {
	data, err := ix.store.Get(key)
	if err != nil {
		return Result{}, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return ix.IndexReader(ctx, key+DictionarySuffix, key, bytes.NewReader(data))
}

// MergeStored merges the dictionaries stored under keys into one stored
// under out, renumbering ids over the union of their terms.
func (ix *Indexer) MergeStored(ctx context.Context, out string, keys ...string) (Result, error) {
	dicts := make([]*termdict.Dictionary, 0, len(keys))
	defer func() {
		for _, d := range dicts {
			d.Close()
		}
	}()
	for _, k := range keys {
		data, err := ix.store.Get(k)
		if err != nil {
			return Result{}, fmt.Errorf("reading dictionary %s: %w", k, err)
		}
		d, err := termdict.Load(data)
		if err != nil {
			return Result{}, fmt.Errorf("loading dictionary %s: %w", k, err)
		}
		dicts = append(dicts, d)
	}

	buf, err := termdict.Merge(&bytes.Buffer{}, dicts, termdict.WithMetrics(ix.metrics))
	if err != nil {
		return Result{}, err
	}
	merged, err := termdict.Load(buf.Bytes())
	if err != nil {
		return Result{}, fmt.Errorf("reloading merged dictionary: %w", err)
	}
	terms := uint64(merged.Len())
	merged.Close()

	if err := ix.store.Put(out, buf.Bytes()); err != nil {
		return Result{}, fmt.Errorf("storing dictionary %s: %w", out, err)
	}
	res := Result{Key: out, Source: strings.Join(keys, ","), Terms: terms, Bytes: int64(buf.Len())}
	if ix.catalog != nil {
		if err := ix.catalog.Record(ctx, catalog.Entry{Key: out, TermCount: terms, ByteSize: res.Bytes, Source: res.Source}); err != nil {
			return res, err
		}
	}
	ix.logResult(res)
	return res, nil
}

func (ix *Indexer) logResult(res Result) {
	ix.logger.Info("dictionary stored",
		"key", res.Key,
		"source", res.Source,
		"lines", res.Stats.Lines,
		"skipped", res.Stats.Skipped,
		"tokens", res.Stats.Tokens,
		"terms", res.Terms,
		"bytes", res.Bytes,
	)
}
