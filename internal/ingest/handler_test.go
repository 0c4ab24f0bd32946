package ingest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/log-ingest-engine/internal/wal"
)

func serve(t *testing.T, h *Handler, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	h.Routes(mux)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIngestRawBody(t *testing.T) {
	sink, w, _ := newSink(t, 1)
	rec := serve(t, NewHandler(sink, 1024), "text/plain", "one line\nstays one record")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp IngestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, 1, resp.Records)
	assert.Equal(t, []string{"one line\nstays one record"}, payloads(w))
}

func TestIngestNDJSON(t *testing.T) {
	sink, w, _ := newSink(t, 1)
	body := `{"msg":"a"}` + "\r\n\n" + `{"msg":"b"}` + "\n"
	rec := serve(t, NewHandler(sink, 1024), NDJSONContentType+"; charset=utf-8", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp IngestResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Records)
	assert.Equal(t, Position{Segment: 0, Offset: 0}, resp.First)
	assert.Equal(t, Position{Segment: 0, Offset: int64(wal.FrameOverhead + len(`{"msg":"a"}`))}, resp.Last)
	assert.Equal(t, []string{`{"msg":"a"}`, `{"msg":"b"}`}, payloads(w))
}

func TestIngestRejectsEmptyBody(t *testing.T) {
	sink, w, _ := newSink(t, 1)
	rec := serve(t, NewHandler(sink, 1024), NDJSONContentType, "\n  \n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")
	assert.Empty(t, payloads(w))
}

func TestIngestRejectsInvalidUTF8(t *testing.T) {
	sink, _, _ := newSink(t, 1)
	rec := serve(t, NewHandler(sink, 1024), NDJSONContentType, "fine\n\xff\xfe\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "records[1]")
}

func TestIngestBodyLimit(t *testing.T) {
	sink, _, _ := newSink(t, 1)
	rec := serve(t, NewHandler(sink, 8), "", strings.Repeat("x", 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestIngestAfterCloseIsUnavailable(t *testing.T) {
	sink, _, _ := newSink(t, 1)
	require.NoError(t, sink.Close())
	rec := serve(t, NewHandler(sink, 1024), "", "late")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	sink, _, _ := newSink(t, 1)
	mux := http.NewServeMux()
	NewHandler(sink, 0).Routes(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
