package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

// Reader decodes frames sequentially from a segment stream.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
	offset int64
	limit  int64
	hdr    [HeaderSize]byte
	trl    [TrailerSize]byte
}

// NewReader reads frames from r. The caller owns r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), limit: -1}
}

// Offset is the position of the next frame.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next returns the next record. It returns io.EOF at a clean end of stream,
// io.ErrUnexpectedEOF for a truncated frame, and an error matching
// ErrChecksumMismatch when the payload fails verification.
func (r *Reader) Next() (WriteRecord, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		return WriteRecord{}, err
	}
	length := binary.LittleEndian.Uint32(r.hdr[:])
	if r.limit >= 0 && int64(length) > r.limit-r.offset-FrameOverhead {
		return WriteRecord{}, io.ErrUnexpectedEOF
	}

	// grow with the data actually read so a corrupt length cannot force a
	// huge allocation up front
	var buf bytes.Buffer
	buf.Grow(int(min(length, 64<<10)))
	n, err := io.CopyN(&buf, r.r, int64(length))
	if n < int64(length) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return WriteRecord{}, err
	}
	if _, err := io.ReadFull(r.r, r.trl[:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return WriteRecord{}, err
	}
	sum := binary.LittleEndian.Uint32(r.trl[:])

	rec := WriteRecord{Checksum: sum, Length: length, Payload: buf.Bytes()}
	if err := rec.Verify(); err != nil {
		return WriteRecord{}, apperrors.Wrap(apperrors.ErrWAL, err, "corrupt frame")
	}
	r.offset += int64(FrameOverhead) + int64(length)
	return rec, nil
}

// Close releases the underlying segment when the reader was opened by
// WAL.OpenSegment.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
