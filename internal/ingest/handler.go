package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/logger"
)

// NDJSONContentType marks a body carrying one record per line.
const NDJSONContentType = "application/x-ndjson"

type Handler struct {
	sink         *Sink
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewHandler(sink *Sink, maxBodyBytes int64) *Handler {
	return &Handler{
		sink:         sink,
		maxBodyBytes: maxBodyBytes,
		logger:       slog.Default().With("component", "ingest-handler"),
	}
}

// Routes registers the handler's endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/records", h.Ingest)
	mux.HandleFunc("GET /health", h.Health)
}

// Ingest appends the request body as one record, or as one record per
// non-blank line when the body is NDJSON.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "reading request body failed")
		return
	}

	records := splitRecords(r.Header.Get("Content-Type"), body)
	if err := ValidateRecords(records); err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	offs, err := h.sink.AppendBatch(ctx, SourceHTTP, records)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed",
			"error", err,
			"appended", len(offs),
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	resp := IngestResponse{
		Status:  "accepted",
		Records: len(offs),
		First:   positionOf(offs[0]),
		Last:    positionOf(offs[len(offs)-1]),
	}
	log.Info("records ingested",
		"records", resp.Records,
		"first", offs[0].String(),
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

func splitRecords(contentType string, body []byte) [][]byte {
	mt, _, _ := mime.ParseMediaType(contentType)
	if mt != NDJSONContentType {
		if len(body) == 0 {
			return nil
		}
		return [][]byte{body}
	}
	var out [][]byte
	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
