package wal

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

func TestNewWriteRecord(t *testing.T) {
	payload := []byte(`{"level":"info","msg":"hello"}`)
	rec, err := NewWriteRecord(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(payload)), rec.Length)
	assert.Equal(t, Checksum(payload), rec.Checksum)
	assert.NoError(t, rec.Verify())
	assert.Equal(t, FrameOverhead+len(payload), rec.FrameSize())

	frame := rec.AppendFrame(nil)
	require.Len(t, frame, rec.FrameSize())
	assert.Equal(t, uint32(len(payload)), binary.LittleEndian.Uint32(frame[0:4]), "length comes first")
	assert.Equal(t, payload, frame[4:4+len(payload)])
	assert.Equal(t, rec.Checksum, binary.LittleEndian.Uint32(frame[4+len(payload):]), "checksum trails the payload")
}

func TestEmptyPayload(t *testing.T) {
	rec, err := NewWriteRecord(nil)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), rec.Length)
	assert.NoError(t, rec.Verify())

	r := NewReader(bytes.NewReader(rec.AppendFrame(nil)))
	got, err := r.Next()
	require.NoError(t, err)
	assert.Empty(t, got.Payload)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestEncodeLengthLimit(t *testing.T) {
	n, err := encodeLength(MaxPayloadSize)
	require.NoError(t, err)
	assert.Equal(t, uint32(MaxPayloadSize), n)

	_, err = encodeLength(MaxPayloadSize + 1)
	assert.ErrorIs(t, err, apperrors.ErrEncoding)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	rec, err := NewWriteRecord([]byte("payload"))
	require.NoError(t, err)

	bad := rec
	bad.Payload = []byte("paylaod")
	assert.ErrorIs(t, bad.Verify(), apperrors.ErrChecksumMismatch)

	short := rec
	short.Length = 3
	assert.ErrorIs(t, short.Verify(), apperrors.ErrEncoding)
}

func frames(t *testing.T, payloads ...string) []byte {
	t.Helper()
	var out []byte
	for _, p := range payloads {
		rec, err := NewWriteRecord([]byte(p))
		require.NoError(t, err)
		out = rec.AppendFrame(out)
	}
	return out
}

func TestReaderSequence(t *testing.T) {
	data := frames(t, "one", "two", "three")
	r := NewReader(bytes.NewReader(data))

	var got []string
	var offsets []int64
	for {
		off := r.Offset()
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, string(rec.Payload))
		offsets = append(offsets, off)
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.Equal(t, []int64{0, 11, 22}, offsets)
	assert.Equal(t, int64(len(data)), r.Offset())
}

func TestReaderTornTail(t *testing.T) {
	data := frames(t, "complete", "torn-record")
	body := len("torn-record")
	// inside the length, inside the payload, before the trailer, inside the trailer
	for _, cut := range []int{1, 3, HeaderSize + 3, HeaderSize + body, HeaderSize + body + 2} {
		r := NewReader(bytes.NewReader(data[:len(data)-FrameOverhead-body+cut]))
		rec, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, "complete", string(rec.Payload))

		_, err = r.Next()
		assert.Equal(t, io.ErrUnexpectedEOF, err, "cut after %d bytes", cut)
	}
}

func TestReaderChecksumMismatch(t *testing.T) {
	data := frames(t, "good", "evil")
	data[len(data)-1] ^= 0x20
	r := NewReader(bytes.NewReader(data))
	_, err := r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	assert.ErrorIs(t, err, apperrors.ErrChecksumMismatch)
	assert.ErrorIs(t, err, apperrors.ErrWAL)
	assert.Equal(t, "checksum", apperrors.Kind(err))
}

func TestReaderLimitRejectsOversizedLength(t *testing.T) {
	var hdr [FrameOverhead]byte
	binary.LittleEndian.PutUint32(hdr[0:4], 1<<30)
	r := NewReader(bytes.NewReader(hdr[:]))
	r.limit = FrameOverhead
	_, err := r.Next()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}
