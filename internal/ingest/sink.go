// Package ingest accepts raw records from HTTP and Kafka and appends them to
// the write-ahead log. A record is acknowledged only after its append, and
// the fsync policy configured for the sink, have succeeded.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/wal"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/resilience"
)

const (
	SourceHTTP  = "http"
	SourceKafka = "kafka"
)

// Sink appends records to a WAL, retrying transient failures and syncing
// every cfg.SyncEvery records. With SyncEvery at zero durability is left to
// the sync loop.
type Sink struct {
	wal     *wal.WAL
	cfg     config.WALConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
	pending atomic.Int64
	retry   resilience.RetryConfig
}

func NewSink(w *wal.WAL, cfg config.WALConfig, m *metrics.Metrics) *Sink {
	return &Sink{
		wal:     w,
		cfg:     cfg,
		metrics: m,
		logger:  slog.Default().With("component", "ingest-sink"),
		retry:   resilience.ForWAL(cfg, retryable),
	}
}

// Encoding errors are properties of the record, not of the log.
func retryable(err error) bool {
	return !errors.Is(err, apperrors.ErrEncoding)
}

// Append writes one record and returns where it landed.
func (s *Sink) Append(ctx context.Context, source string, payload []byte) (wal.SegmentOffset, error) {
	offs, err := s.AppendBatch(ctx, source, [][]byte{payload})
	if err != nil {
		return wal.SegmentOffset{}, err
	}
	return offs[0], nil
}

// AppendBatch writes the records in order. When the batch crosses the sync
// threshold the log is synced once, after the last record.
func (s *Sink) AppendBatch(ctx context.Context, source string, payloads [][]byte) ([]wal.SegmentOffset, error) {
	offs := make([]wal.SegmentOffset, 0, len(payloads))
	for _, p := range payloads {
		rec, err := wal.NewWriteRecord(p)
		if err != nil {
			s.metrics.RecordIngested(source, "rejected")
			return offs, err
		}
		var off wal.SegmentOffset
		err = resilience.Retry(ctx, "wal-append", s.retry, func() error {
			var err error
			off, err = s.wal.Append(rec)
			return err
		})
		if err != nil {
			s.metrics.RecordIngested(source, "failed")
			return offs, err
		}
		offs = append(offs, off)
	}

	if s.cfg.SyncEvery > 0 && s.pending.Add(int64(len(payloads))) >= int64(s.cfg.SyncEvery) {
		s.pending.Store(0)
		if err := s.wal.Fsync(); err != nil {
			for range payloads {
				s.metrics.RecordIngested(source, "failed")
			}
			return offs, err
		}
	}
	for range payloads {
		s.metrics.RecordIngested(source, "accepted")
	}
	return offs, nil
}

// Sync flushes everything appended so far.
func (s *Sink) Sync() error {
	s.pending.Store(0)
	return s.wal.Fsync()
}

// StartSyncLoop syncs the log every cfg.SyncInterval until ctx is done, then
// performs a final sync.
func (s *Sink) StartSyncLoop(ctx context.Context) {
	if s.cfg.SyncInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SyncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sync loop stopping, performing final sync")
				if err := s.Sync(); err != nil {
					s.logger.Error("final sync failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := s.Sync(); err != nil {
					s.logger.Error("periodic sync failed", "error", err)
				}
			}
		}
	}()
}

// Close syncs and closes the underlying log.
func (s *Sink) Close() error {
	return s.wal.Close()
}

// KafkaHandler appends each consumed message value as one record. Empty
// messages are dropped so they get committed instead of redelivered.
func (s *Sink) KafkaHandler() kafka.MessageHandler {
	return func(ctx context.Context, _ []byte, value []byte) error {
		if len(value) == 0 {
			s.metrics.RecordIngested(SourceKafka, "rejected")
			s.logger.Debug("dropping empty kafka message")
			return nil
		}
		_, err := s.Append(ctx, SourceKafka, value)
		return err
	}
}
