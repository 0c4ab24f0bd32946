// Command indexer builds a term dictionary from log files.
//
// Each input file is parsed line by line, every extracted field is split
// into lower-cased n-grams, and the distinct n-grams of all files are
// compiled into one FST dictionary stored under the output key. With -merge
// the arguments are instead keys of stored dictionaries to merge.
//
// Usage:
//
//	go run ./cmd/indexer [-config configs/development.yaml] [-format json] [-output final.term] file...
//	go run ./cmd/indexer -merge -output merged.term a.term b.term
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/ingest/parser"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to config file; defaults apply when empty")
	format := flag.String("format", "", "input format: json, apache or raw (overrides config)")
	ngram := flag.Int("ngram", 0, "n-gram size (overrides config)")
	output := flag.String("output", "", "store key of the dictionary (overrides config)")
	merge := flag.Bool("merge", false, "merge the stored dictionaries named by the arguments")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *format != "" {
		cfg.Indexer.Format = *format
	}
	if *ngram > 0 {
		cfg.Tokenizer.NGram = *ngram
	}
	if *output != "" {
		cfg.Indexer.OutputKey = *output
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	logger.Setup(cfg.Logging)

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: indexer [flags] file...")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := run(cfg, *merge, flag.Args()); err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, merge bool, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	s, err := store.New(cfg.Store, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(s); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}()
	tk, err := tokenizer.New(cfg.Tokenizer.NGram)
	if err != nil {
		return err
	}
	p, err := parser.New(cfg.Indexer.Format)
	if err != nil {
		return err
	}
	opts := indexer.Options{
		Tokenizer: tk,
		Parser:    p,
		Store:     s,
		Workers:   cfg.Indexer.Workers,
		BatchSize: cfg.Indexer.BatchSize,
		Metrics:   m,
	}

	if cfg.Catalog.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to catalog: %w", err)
		}
		defer db.Close()
		cat := catalog.New(db.DB)
		if err := cat.EnsureSchema(ctx); err != nil {
			return err
		}
		opts.Catalog = cat
	}

	ix, err := indexer.New(opts)
	if err != nil {
		return err
	}
	slog.Info("starting indexer",
		"format", cfg.Indexer.Format,
		"ngram", cfg.Tokenizer.NGram,
		"workers", cfg.Indexer.Workers,
		"inputs", len(args),
	)
	if merge {
		_, err = ix.MergeStored(ctx, cfg.Indexer.OutputKey, args...)
	} else {
		_, err = ix.IndexFiles(ctx, cfg.Indexer.OutputKey, args...)
	}
	return err
}
