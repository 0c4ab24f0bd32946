package ingest

import "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/wal"

// Position is a record's location in the write-ahead log.
type Position struct {
	Segment uint64 `json:"segment"`
	Offset  int64  `json:"offset"`
}

func positionOf(o wal.SegmentOffset) Position {
	return Position{Segment: o.Segment, Offset: o.Offset}
}

// IngestResponse is returned once a request's records are in the log.
type IngestResponse struct {
	Status  string   `json:"status"`
	Records int      `json:"records"`
	First   Position `json:"first"`
	Last    Position `json:"last"`
}
