// Command ingestion starts the raw record ingestion service.
//
// The service accepts records via POST /api/v1/records (one record per body,
// or one per line with Content-Type application/x-ndjson) and, when Kafka is
// enabled, from the raw records topic. Every record is appended to the
// write-ahead log before it is acknowledged. Metrics and health probes are
// served on the metrics port.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/store"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/wal"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/middleware"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	m := metrics.New(prometheus.DefaultRegisterer)
	fs, err := store.NewFSStore(cfg.Store.Root)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	log, err := wal.Open(fs, wal.Options{
		Dir:            cfg.WAL.Dir,
		MaxSegmentSize: cfg.WAL.MaxSegmentSize,
		Metrics:        m,
	})
	if err != nil {
		slog.Error("failed to open wal", "error", err)
		os.Exit(1)
	}
	sink := ingest.NewSink(log, cfg.WAL, m)
	defer func() {
		if err := sink.Close(); err != nil {
			slog.Error("closing wal", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	sink.StartSyncLoop(ctx)

	checker := health.NewChecker()
	checker.Register("wal", func(context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d readable segments", len(log.Segments())),
		}
	})
	checker.Register("store", health.Probe(func(context.Context) error {
		_, err := fs.List(cfg.WAL.Dir)
		return err
	}))
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, checker.Routes())
		defer shutdownMetrics(context.Background())
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RawRecords, sink.KafkaHandler())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("consumer error", "error", err)
			}
		}()
		slog.Info("consuming raw records from kafka",
			"topic", cfg.Kafka.Topics.RawRecords,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	h := ingest.NewHandler(sink, cfg.Server.MaxBodyBytes)
	mux := http.NewServeMux()
	h.Routes(mux)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.RequestID(middleware.Metrics(m)(mux)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
