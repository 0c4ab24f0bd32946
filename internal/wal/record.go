package wal

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

const (
	// HeaderSize is the u32 length prefix of a frame.
	HeaderSize = 4
	// TrailerSize is the u32 checksum that follows the payload.
	TrailerSize = 4
	// FrameOverhead is the fixed per-record cost on disk.
	FrameOverhead = HeaderSize + TrailerSize
	// MaxPayloadSize is the largest payload the u32 length field can carry.
	MaxPayloadSize = math.MaxUint32
)

// WriteRecord is one framed WAL entry. Length always equals len(Payload)
// and Checksum is computed over Payload.
type WriteRecord struct {
	Checksum uint32
	Length   uint32
	Payload  []byte
}

// NewWriteRecord frames payload. It fails with ErrEncoding when payload is
// too large for the length field.
func NewWriteRecord(payload []byte) (WriteRecord, error) {
	n, err := encodeLength(uint64(len(payload)))
	if err != nil {
		return WriteRecord{}, err
	}
	return WriteRecord{
		Checksum: Checksum(payload),
		Length:   n,
		Payload:  payload,
	}, nil
}

func encodeLength(n uint64) (uint32, error) {
	if n > MaxPayloadSize {
		return 0, apperrors.Newf(apperrors.ErrEncoding, "payload of %d bytes exceeds the %d byte frame limit", n, uint64(MaxPayloadSize))
	}
	return uint32(n), nil
}

// Checksum is xxhash64 of payload truncated to its low 32 bits.
func Checksum(payload []byte) uint32 {
	return uint32(xxhash.Sum64(payload))
}

// Verify checks Length and Checksum against Payload.
func (r WriteRecord) Verify() error {
	if uint64(r.Length) != uint64(len(r.Payload)) {
		return apperrors.Newf(apperrors.ErrEncoding, "length field %d does not match %d byte payload", r.Length, len(r.Payload))
	}
	if got := Checksum(r.Payload); got != r.Checksum {
		return apperrors.Newf(apperrors.ErrChecksumMismatch, "stored %08x, computed %08x", r.Checksum, got)
	}
	return nil
}

// FrameSize is the number of bytes the record occupies on disk.
func (r WriteRecord) FrameSize() int {
	return FrameOverhead + len(r.Payload)
}

// AppendFrame appends the on-disk frame of r to dst: little-endian u32
// length, payload, little-endian u32 checksum.
func (r WriteRecord) AppendFrame(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, r.Length)
	dst = append(dst, r.Payload...)
	return binary.LittleEndian.AppendUint32(dst, r.Checksum)
}
