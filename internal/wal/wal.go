// Package wal implements the write-ahead log that durably buffers raw
// records before compaction. Records are framed into numbered segments in a
// SegmentStore. Exactly one segment is active at a time; it is opened on the
// first append and sealed on rotation, failure or close. Sealed segments
// never change again, so readers can scan them while appends continue.
//
// A record is durable only once Fsync has returned after its Append.
package wal

import (
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/metrics"
)

const segmentExt = ".seg"

// SegmentStore is the storage the log writes segments into. FSStore
// satisfies it.
type SegmentStore interface {
	OpenAppend(key string) (store.AppendHandle, error)
	OpenRead(key string) (io.ReadCloser, error)
	List(prefix string) ([]string, error)
}

// Options configures a WAL.
type Options struct {
	// Dir is the key prefix segments are stored under.
	Dir string
	// MaxSegmentSize triggers rotation before an append would push the
	// active segment past it. A single larger record still gets written,
	// alone, into a fresh segment.
	MaxSegmentSize int64
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// SegmentOffset locates a record: the segment id and the byte offset of
// its frame within that segment.
type SegmentOffset struct {
	Segment uint64
	Offset  int64
}

func (o SegmentOffset) String() string {
	return fmt.Sprintf("%d@%d", o.Segment, o.Offset)
}

// SegmentInfo describes the readable part of one segment.
type SegmentInfo struct {
	ID     uint64
	Key    string
	Size   int64
	Sealed bool
}

type segment struct {
	id     uint64
	key    string
	handle store.AppendHandle
	size   int64
	synced int64
}

// WAL is safe for concurrent use. Appends, fsyncs and rotation serialize on
// one lock; Segments, OpenSegment and Replay never take it.
type WAL struct {
	store  SegmentStore
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	active *segment
	nextID uint64
	closed bool

	// stateMu guards sealed and the active segment's identity and synced
	// watermark. Writers hold it only to publish state changes.
	stateMu sync.RWMutex
	sealed  []SegmentInfo
}

// Open discovers the segments already under opts.Dir, seals them, and
// returns a log whose next append starts a new segment.
func Open(s SegmentStore, opts Options) (*WAL, error) {
	if opts.Dir == "" {
		opts.Dir = "wal"
	}
	if opts.MaxSegmentSize <= FrameOverhead {
		return nil, apperrors.Newf(apperrors.ErrConfiguration, "max segment size %d cannot hold a record", opts.MaxSegmentSize)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "wal")
	}
	w := &WAL{
		store:  s,
		opts:   opts,
		logger: opts.Logger,
	}

	keys, err := s.List(opts.Dir)
	if err != nil {
		opts.Metrics.WALError("open")
		return nil, apperrors.Wrap(apperrors.ErrWAL, err, "listing segments")
	}
	for _, key := range keys {
		id, ok := parseSegmentKey(key)
		if !ok {
			continue
		}
		size, err := w.measure(key)
		if err != nil {
			opts.Metrics.WALError("open")
			return nil, err
		}
		w.sealed = append(w.sealed, SegmentInfo{ID: id, Key: key, Size: size, Sealed: true})
		if id >= w.nextID {
			w.nextID = id + 1
		}
	}
	sort.Slice(w.sealed, func(i, j int) bool { return w.sealed[i].ID < w.sealed[j].ID })

	w.logger.Info("wal opened",
		"dir", opts.Dir,
		"existing_segments", len(w.sealed),
		"next_segment", w.nextID,
	)
	return w, nil
}

func (w *WAL) measure(key string) (int64, error) {
	r, err := w.store.OpenRead(key)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrWAL, err, "opening segment "+key)
	}
	defer r.Close()
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrWAL, err, "measuring segment "+key)
	}
	return n, nil
}

func (w *WAL) segmentKey(id uint64) string {
	return path.Join(w.opts.Dir, fmt.Sprintf("%020d%s", id, segmentExt))
}

func parseSegmentKey(key string) (uint64, bool) {
	base := path.Base(key)
	if !strings.HasSuffix(base, segmentExt) {
		return 0, false
	}
	id, err := strconv.ParseUint(strings.TrimSuffix(base, segmentExt), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Append writes rec as one frame to the active segment, opening or
// rotating segments as needed. On failure the active segment is sealed at
// its last complete record and abandoned, so a retry lands in a new one.
func (w *WAL) Append(rec WriteRecord) (SegmentOffset, error) {
	if uint64(rec.Length) != uint64(len(rec.Payload)) {
		return SegmentOffset{}, apperrors.Newf(apperrors.ErrEncoding, "length field %d does not match %d byte payload", rec.Length, len(rec.Payload))
	}
	frame := rec.AppendFrame(make([]byte, 0, rec.FrameSize()))

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return SegmentOffset{}, apperrors.New(apperrors.ErrWAL, "append to closed wal")
	}
	if w.active != nil && w.active.size > 0 && w.active.size+int64(len(frame)) > w.opts.MaxSegmentSize {
		if err := w.sealLocked(); err != nil {
			w.opts.Metrics.WALError("rotate")
			return SegmentOffset{}, err
		}
	}
	if w.active == nil {
		if err := w.openLocked(); err != nil {
			w.opts.Metrics.WALError("open")
			return SegmentOffset{}, err
		}
	}

	seg := w.active
	n, err := seg.handle.Write(frame)
	if err == nil && n < len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.opts.Metrics.WALError("append")
		w.abandonLocked(true)
		return SegmentOffset{}, apperrors.Wrap(apperrors.ErrWAL, err, "appending to "+seg.key)
	}
	offset := SegmentOffset{Segment: seg.id, Offset: seg.size}
	seg.size += int64(len(frame))
	w.opts.Metrics.WALAppended(len(frame), seg.size)
	return offset, nil
}

// Fsync flushes the active segment to stable storage and makes everything
// appended so far visible to readers. It is a no-op without an active
// segment. A failed fsync abandons the segment.
func (w *WAL) Fsync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked()
}

func (w *WAL) syncLocked() error {
	seg := w.active
	if seg == nil || seg.synced == seg.size {
		return nil
	}
	start := time.Now()
	if err := seg.handle.Sync(); err != nil {
		w.opts.Metrics.WALError("fsync")
		w.abandonLocked(false)
		return apperrors.Wrap(apperrors.ErrWAL, err, "syncing "+seg.key)
	}
	w.opts.Metrics.WALSynced(time.Since(start).Seconds())

	w.stateMu.Lock()
	seg.synced = seg.size
	w.stateMu.Unlock()
	return nil
}

// Rotate syncs and seals the active segment. The next append opens a new
// one.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.active == nil {
		return nil
	}
	if err := w.sealLocked(); err != nil {
		w.opts.Metrics.WALError("rotate")
		return err
	}
	return nil
}

// Close syncs and seals the active segment and rejects further appends.
// Closing twice is a no-op.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.active == nil {
		return nil
	}
	return w.sealLocked()
}

func (w *WAL) openLocked() error {
	id := w.nextID
	key := w.segmentKey(id)
	h, err := w.store.OpenAppend(key)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrWAL, err, "opening segment "+key)
	}
	w.nextID++

	w.stateMu.Lock()
	w.active = &segment{id: id, key: key, handle: h}
	w.stateMu.Unlock()

	w.logger.Info("wal segment opened", "segment", id, "key", key)
	return nil
}

func (w *WAL) sealLocked() error {
	if err := w.syncLocked(); err != nil {
		return err
	}
	seg := w.active
	if seg == nil {
		// syncLocked abandoned it
		return nil
	}
	if err := seg.handle.Close(); err != nil {
		w.abandonLocked(false)
		return apperrors.Wrap(apperrors.ErrWAL, err, "closing "+seg.key)
	}
	w.publishSealed(seg, seg.size)
	w.logger.Info("wal segment sealed", "segment", seg.id, "bytes", seg.size)
	return nil
}

// abandonLocked seals the active segment at its last durable byte. With
// trySync, complete frames written since the last fsync are flushed first
// and kept if that succeeds. Readers never see bytes past the watermark:
// after a failed fsync the kernel may have dropped them.
func (w *WAL) abandonLocked(trySync bool) {
	seg := w.active
	if seg == nil {
		return
	}
	visible := seg.synced
	if trySync && seg.synced < seg.size {
		if err := seg.handle.Sync(); err != nil {
			w.logger.Warn("syncing abandoned segment", "segment", seg.id, "error", err)
		} else {
			visible = seg.size
		}
	}
	if err := seg.handle.Close(); err != nil {
		w.logger.Warn("closing abandoned segment", "segment", seg.id, "error", err)
	}
	w.publishSealed(seg, visible)
	w.logger.Warn("wal segment abandoned", "segment", seg.id, "bytes", visible, "discarded", seg.size-visible)
}

func (w *WAL) publishSealed(seg *segment, size int64) {
	w.stateMu.Lock()
	w.sealed = append(w.sealed, SegmentInfo{ID: seg.id, Key: seg.key, Size: size, Sealed: true})
	w.active = nil
	w.stateMu.Unlock()
	w.opts.Metrics.WALRotated()
}

// Segments lists sealed segments in id order followed by the durable prefix
// of the active segment, if it has one.
func (w *WAL) Segments() []SegmentInfo {
	w.stateMu.RLock()
	defer w.stateMu.RUnlock()
	out := make([]SegmentInfo, len(w.sealed), len(w.sealed)+1)
	copy(out, w.sealed)
	if seg := w.active; seg != nil && seg.synced > 0 {
		out = append(out, SegmentInfo{ID: seg.id, Key: seg.key, Size: seg.synced})
	}
	return out
}

// OpenSegment returns a reader over the first info.Size bytes of a segment.
func (w *WAL) OpenSegment(info SegmentInfo) (*Reader, error) {
	rc, err := w.store.OpenRead(info.Key)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrWAL, err, "opening segment "+info.Key)
	}
	r := NewReader(io.LimitReader(rc, info.Size))
	r.closer = rc
	r.limit = info.Size
	return r, nil
}

// Replay calls fn for every readable record in segment order. A torn frame
// at the end of a segment, left by a crash mid-append, ends that segment
// with a warning. Checksum mismatches and errors from fn stop the replay.
func (w *WAL) Replay(fn func(SegmentOffset, WriteRecord) error) error {
	for _, info := range w.Segments() {
		if err := w.replaySegment(info, fn); err != nil {
			return err
		}
	}
	return nil
}

func (w *WAL) replaySegment(info SegmentInfo, fn func(SegmentOffset, WriteRecord) error) error {
	r, err := w.OpenSegment(info)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		off := SegmentOffset{Segment: info.ID, Offset: r.Offset()}
		rec, err := r.Next()
		switch {
		case err == io.EOF:
			return nil
		case err == io.ErrUnexpectedEOF:
			w.logger.Warn("torn record at segment tail", "segment", info.ID, "offset", off.Offset)
			return nil
		case err != nil:
			return fmt.Errorf("replaying segment %d at offset %d: %w", info.ID, off.Offset, err)
		}
		if err := fn(off, rec); err != nil {
			return err
		}
	}
}
