package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/metrics"
)

func newStore(t *testing.T) *store.FSStore {
	t.Helper()
	s, err := store.NewFSStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func openWAL(t *testing.T, s SegmentStore, maxSize int64) *WAL {
	t.Helper()
	w, err := Open(s, Options{Dir: "wal", MaxSegmentSize: maxSize})
	require.NoError(t, err)
	return w
}

func appendString(t *testing.T, w *WAL, payload string) SegmentOffset {
	t.Helper()
	rec, err := NewWriteRecord([]byte(payload))
	require.NoError(t, err)
	off, err := w.Append(rec)
	require.NoError(t, err)
	return off
}

func replayAll(t *testing.T, w *WAL) []string {
	t.Helper()
	var out []string
	require.NoError(t, w.Replay(func(_ SegmentOffset, rec WriteRecord) error {
		out = append(out, string(rec.Payload))
		return nil
	}))
	return out
}

func TestAppendIsLazy(t *testing.T) {
	s := newStore(t)
	w := openWAL(t, s, 1<<20)

	keys, err := s.List("wal")
	require.NoError(t, err)
	assert.Empty(t, keys, "no segment before the first append")

	require.NoError(t, w.Fsync(), "fsync without an active segment is a no-op")

	appendString(t, w, "first")
	keys, err = s.List("wal")
	require.NoError(t, err)
	assert.Equal(t, []string{"wal/00000000000000000000.seg"}, keys)
	require.NoError(t, w.Close())
}

func TestDurableAfterFsyncAndClose(t *testing.T) {
	s := newStore(t)
	w := openWAL(t, s, 1<<20)
	payload := []byte("2024-01-01T00:00:00Z GET /index.html 200")
	rec, err := NewWriteRecord(payload)
	require.NoError(t, err)
	off, err := w.Append(rec)
	require.NoError(t, err)
	assert.Equal(t, SegmentOffset{Segment: 0, Offset: 0}, off)
	require.NoError(t, w.Fsync())
	require.NoError(t, w.Close())

	// a fresh read of the segment sees length, payload, then checksum
	raw, err := s.Get("wal/00000000000000000000.seg")
	require.NoError(t, err)
	require.Len(t, raw, FrameOverhead+len(payload))
	assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, payload, raw[4:4+len(payload)])
	assert.Equal(t, Checksum(payload), binary.LittleEndian.Uint32(raw[4+len(payload):]))

	reopened := openWAL(t, s, 1<<20)
	segs := reopened.Segments()
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Sealed)
	assert.Equal(t, int64(len(raw)), segs[0].Size)
	assert.Equal(t, []string{string(payload)}, replayAll(t, reopened))
}

func TestRotationBySize(t *testing.T) {
	s := newStore(t)
	// 20 byte payloads frame to 28 bytes, two per 64 byte segment
	w := openWAL(t, s, 64)
	var offsets []SegmentOffset
	for i := 0; i < 5; i++ {
		offsets = append(offsets, appendString(t, w, fmt.Sprintf("record-%013d", i)))
	}
	assert.Equal(t, []SegmentOffset{
		{0, 0}, {0, 28}, {1, 0}, {1, 28}, {2, 0},
	}, offsets)
	require.NoError(t, w.Close())

	segs := w.Segments()
	require.Len(t, segs, 3)
	for i, want := range []int64{56, 56, 28} {
		assert.Equal(t, uint64(i), segs[i].ID)
		assert.Equal(t, want, segs[i].Size)
		assert.True(t, segs[i].Sealed)
	}
	assert.Len(t, replayAll(t, w), 5)
}

func TestOversizedRecordGetsOwnSegment(t *testing.T) {
	w := openWAL(t, newStore(t), 32)
	appendString(t, w, "tiny")
	off := appendString(t, w, "this payload is far larger than one segment")
	assert.Equal(t, SegmentOffset{Segment: 1, Offset: 0}, off)
	next := appendString(t, w, "tiny")
	assert.Equal(t, SegmentOffset{Segment: 2, Offset: 0}, next)
	require.NoError(t, w.Close())
}

func TestSegmentsExposeOnlyDurablePrefix(t *testing.T) {
	w := openWAL(t, newStore(t), 1<<20)
	appendString(t, w, "a")
	appendString(t, w, "b")
	assert.Empty(t, w.Segments(), "nothing is visible before fsync")

	require.NoError(t, w.Fsync())
	segs := w.Segments()
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Sealed)
	assert.Equal(t, int64(2*(FrameOverhead+1)), segs[0].Size)

	appendString(t, w, "c")
	assert.Equal(t, []string{"a", "b"}, replayAll(t, w))

	require.NoError(t, w.Fsync())
	assert.Equal(t, []string{"a", "b", "c"}, replayAll(t, w))
	require.NoError(t, w.Close())
}

func TestReopenStartsFreshSegment(t *testing.T) {
	s := newStore(t)
	w := openWAL(t, s, 1<<20)
	appendString(t, w, "before restart")
	require.NoError(t, w.Close())

	w = openWAL(t, s, 1<<20)
	off := appendString(t, w, "after restart")
	assert.Equal(t, SegmentOffset{Segment: 1, Offset: 0}, off)
	require.NoError(t, w.Close())
	assert.Equal(t, []string{"before restart", "after restart"}, replayAll(t, w))
}

func TestRotateAndClose(t *testing.T) {
	w := openWAL(t, newStore(t), 1<<20)
	require.NoError(t, w.Rotate(), "rotate without an active segment is a no-op")
	appendString(t, w, "x")
	require.NoError(t, w.Rotate())
	assert.Equal(t, SegmentOffset{Segment: 1}, appendString(t, w, "y"))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	rec, err := NewWriteRecord([]byte("z"))
	require.NoError(t, err)
	_, err = w.Append(rec)
	assert.ErrorIs(t, err, apperrors.ErrWAL)
}

func TestAppendRejectsInconsistentRecord(t *testing.T) {
	w := openWAL(t, newStore(t), 1<<20)
	_, err := w.Append(WriteRecord{Length: 10, Payload: []byte("abc")})
	assert.ErrorIs(t, err, apperrors.ErrEncoding)
}

func TestOpenRejectsTinySegments(t *testing.T) {
	_, err := Open(newStore(t), Options{MaxSegmentSize: FrameOverhead})
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
}

type flakyStore struct {
	*store.FSStore
	mu        sync.Mutex
	failWrite bool
	failSync  bool
}

func (s *flakyStore) OpenAppend(key string) (store.AppendHandle, error) {
	h, err := s.FSStore.OpenAppend(key)
	if err != nil {
		return nil, err
	}
	return &flakyHandle{AppendHandle: h, s: s}, nil
}

type flakyHandle struct {
	store.AppendHandle
	s *flakyStore
}

// Write fails after writing a few bytes, like a disk filling up mid-frame.
func (h *flakyHandle) Write(p []byte) (int, error) {
	h.s.mu.Lock()
	fail := h.s.failWrite
	h.s.failWrite = false
	h.s.mu.Unlock()
	if fail {
		n, _ := h.AppendHandle.Write(p[:3])
		return n, errors.New("no space left on device")
	}
	return h.AppendHandle.Write(p)
}

// Sync fails the way fsync reports a lost writeback.
func (h *flakyHandle) Sync() error {
	h.s.mu.Lock()
	fail := h.s.failSync
	h.s.mu.Unlock()
	if fail {
		return errors.New("input/output error")
	}
	return h.AppendHandle.Sync()
}

func TestFailedAppendAbandonsSegment(t *testing.T) {
	fs := &flakyStore{FSStore: newStore(t)}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w, err := Open(fs, Options{Dir: "wal", MaxSegmentSize: 1 << 20, Metrics: m})
	require.NoError(t, err)

	appendString(t, w, "kept")
	fs.failWrite = true
	rec, err := NewWriteRecord([]byte("lost"))
	require.NoError(t, err)
	_, err = w.Append(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrWAL)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WALErrorsTotal.WithLabelValues("append")))

	// the retry goes to a brand new segment
	off, err := w.Append(rec)
	require.NoError(t, err)
	assert.Equal(t, SegmentOffset{Segment: 1, Offset: 0}, off)
	require.NoError(t, w.Close())

	// the abandoned segment is sealed at its last complete frame
	assert.Equal(t, []string{"kept", "lost"}, replayAll(t, w))

	// after a restart the torn bytes are on disk; replay skips them
	reopened := openWAL(t, fs.FSStore, 1<<20)
	segs := reopened.Segments()
	require.Len(t, segs, 2)
	assert.Equal(t, int64(FrameOverhead+4+3), segs[0].Size)
	assert.Equal(t, []string{"kept", "lost"}, replayAll(t, reopened))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.WALAppendsTotal))
}

func TestFailedFsyncHidesUnsyncedRecords(t *testing.T) {
	fs := &flakyStore{FSStore: newStore(t)}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	w, err := Open(fs, Options{Dir: "wal", MaxSegmentSize: 1 << 20, Metrics: m})
	require.NoError(t, err)

	appendString(t, w, "synced")
	require.NoError(t, w.Fsync())
	appendString(t, w, "never-synced")

	fs.mu.Lock()
	fs.failSync = true
	fs.mu.Unlock()
	err = w.Fsync()
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrWAL)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WALErrorsTotal.WithLabelValues("fsync")))

	// sealed at the last successful fsync, not at the bytes written
	segs := w.Segments()
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Sealed)
	assert.Equal(t, int64(FrameOverhead+len("synced")), segs[0].Size)
	assert.Equal(t, []string{"synced"}, replayAll(t, w))

	fs.mu.Lock()
	fs.failSync = false
	fs.mu.Unlock()
	off := appendString(t, w, "after")
	assert.Equal(t, SegmentOffset{Segment: 1, Offset: 0}, off)
	require.NoError(t, w.Fsync())
	assert.Equal(t, []string{"synced", "after"}, replayAll(t, w))
}

func TestReplayStopsOnCorruption(t *testing.T) {
	s := newStore(t)
	w := openWAL(t, s, 1<<20)
	appendString(t, w, "fine")
	appendString(t, w, "flipped")
	require.NoError(t, w.Close())

	key := "wal/00000000000000000000.seg"
	raw, err := s.Get(key)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, s.Put(key, raw))

	err = openWAL(t, s, 1<<20).Replay(func(SegmentOffset, WriteRecord) error { return nil })
	assert.ErrorIs(t, err, apperrors.ErrChecksumMismatch)
}

func TestReplayPropagatesCallbackError(t *testing.T) {
	w := openWAL(t, newStore(t), 1<<20)
	appendString(t, w, "a")
	appendString(t, w, "b")
	require.NoError(t, w.Close())

	stop := errors.New("stop")
	calls := 0
	err := w.Replay(func(SegmentOffset, WriteRecord) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestConcurrentAppendsWithReaders(t *testing.T) {
	w := openWAL(t, newStore(t), 4096)
	const writers, perWriter = 8, 50

	done := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			assert.NoError(t, w.Replay(func(SegmentOffset, WriteRecord) error { return nil }))
		}
	}()

	var wg sync.WaitGroup
	for g := 0; g < writers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec, err := NewWriteRecord([]byte(fmt.Sprintf("w%d-%d", g, i)))
				if !assert.NoError(t, err) {
					return
				}
				_, err = w.Append(rec)
				assert.NoError(t, err)
				if i%10 == 0 {
					assert.NoError(t, w.Fsync())
				}
			}
		}(g)
	}
	wg.Wait()
	close(done)
	readers.Wait()
	require.NoError(t, w.Close())

	seen := make(map[string]bool)
	for _, p := range replayAll(t, w) {
		assert.False(t, seen[p], "duplicate record %s", p)
		seen[p] = true
	}
	assert.Len(t, seen, writers*perWriter)
}

func TestParseSegmentKey(t *testing.T) {
	id, ok := parseSegmentKey("wal/00000000000000000042.seg")
	assert.True(t, ok)
	assert.Equal(t, uint64(42), id)

	for _, key := range []string{"wal/README", "wal/x.seg", "wal/42.tmp"} {
		_, ok := parseSegmentKey(key)
		assert.False(t, ok, key)
	}
}

func BenchmarkAppend(b *testing.B) {
	s, err := store.NewFSStore(b.TempDir())
	if err != nil {
		b.Fatal(err)
	}
	w, err := Open(s, Options{Dir: "wal", MaxSegmentSize: 64 << 20})
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()
	rec, err := NewWriteRecord([]byte(`127.0.0.1 - - [10/Oct/2000:13:55:36 -0700] "GET /apache_pb.gif HTTP/1.0" 200 2326`))
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := w.Append(rec); err != nil {
			b.Fatal(err)
		}
	}
}
