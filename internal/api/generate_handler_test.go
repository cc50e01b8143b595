package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialads/notegen/internal/api"
	"github.com/socialads/notegen/internal/domain"
	"github.com/socialads/notegen/internal/metrics"
	"github.com/socialads/notegen/internal/pipeline"
)

type stubGenerator struct {
	result *pipeline.Result
	err    error
	gotReq pipeline.Request
}

func (s *stubGenerator) Generate(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	s.gotReq = req
	return s.result, s.err
}

func newTestRouter(note, trending api.Generator) http.Handler {
	return api.NewRouter(api.Deps{
		NoteGenerator:     note,
		TrendingGenerator: trending,
	}, api.Config{}).SetupRoutes()
}

func postGenerate(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeFailure(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["timestamp"])
	return body
}

func TestGenerate_Success(t *testing.T) {
	gen := &stubGenerator{result: &pipeline.Result{
		Note:   domain.Candidate{ID: "note-1", Title: "标题"},
		Image:  "https://assets.example.com/x.png",
		TaskID: "task-123",
	}}
	handler := newTestRouter(gen, nil)

	rec := postGenerate(t, handler, "/api/v1/generate",
		`{"accountId": "acct-1", "phoneNumber": "13800000000"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acct-1", gen.gotReq.AccountID)
	assert.Equal(t, "13800000000", gen.gotReq.PhoneNumber)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "task-123", body["taskId"])
	assert.Equal(t, "https://assets.example.com/x.png", body["image"])
}

func TestGenerate_MissingFields(t *testing.T) {
	handler := newTestRouter(&stubGenerator{}, nil)

	rec := postGenerate(t, handler, "/api/v1/generate", `{"accountId": "acct-1"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeFailure(t, rec)
	assert.Equal(t, "invalid request", body["error"])
}

func TestGenerate_NoCandidates(t *testing.T) {
	handler := newTestRouter(&stubGenerator{err: domain.ErrNotFound}, nil)

	rec := postGenerate(t, handler, "/api/v1/generate",
		`{"accountId": "acct-1", "phoneNumber": "13800000000"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeFailure(t, rec)
	assert.Equal(t, "no candidates available", body["error"])
}

func TestGenerate_AttemptsExhausted(t *testing.T) {
	genErr := &pipeline.AttemptsExhaustedError{
		CandidateIDs: []string{"note-1", "note-2"},
		Err:          errors.New("search down"),
	}
	handler := newTestRouter(&stubGenerator{err: genErr}, nil)

	rec := postGenerate(t, handler, "/api/v1/generate",
		`{"accountId": "acct-1", "phoneNumber": "13800000000"}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeFailure(t, rec)
	assert.Equal(t, "generation attempts exhausted", body["error"])
	assert.Contains(t, body["message"], "note-1")
}

func TestGenerate_InternalError(t *testing.T) {
	handler := newTestRouter(&stubGenerator{err: errors.New("insert failed")}, nil)

	rec := postGenerate(t, handler, "/api/v1/generate",
		`{"accountId": "acct-1", "phoneNumber": "13800000000"}`)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeFailure(t, rec)
	assert.Equal(t, "internal error", body["error"])
}

func TestGenerateTrending_RoutesToTrendingPipeline(t *testing.T) {
	note := &stubGenerator{err: errors.New("should not be called")}
	trending := &stubGenerator{result: &pipeline.Result{TaskID: "task-456"}}
	handler := newTestRouter(note, trending)

	rec := postGenerate(t, handler, "/api/v1/generate/trending",
		`{"accountId": "acct-1", "phoneNumber": "13800000000"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acct-1", trending.gotReq.AccountID)
}

func TestGenerateTrending_NotConfigured(t *testing.T) {
	handler := newTestRouter(&stubGenerator{}, nil)

	rec := postGenerate(t, handler, "/api/v1/generate/trending",
		`{"accountId": "acct-1", "phoneNumber": "13800000000"}`)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	decodeFailure(t, rec)
}

func TestHealth(t *testing.T) {
	router := api.NewRouter(api.Deps{
		NoteGenerator: &stubGenerator{},
		DBPing:        func(context.Context) error { return nil },
		RedisPing:     func(context.Context) error { return errors.New("connection refused") },
	}, api.Config{}).SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, true, body["database"].(map[string]any)["connected"])
	assert.Equal(t, false, body["redis"].(map[string]any)["connected"])
}

func TestMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	tracker := metrics.NewTracker(registry)
	tracker.RunCompleted("xhs", true)

	router := api.NewRouter(api.Deps{
		NoteGenerator: &stubGenerator{},
		Metrics:       registry,
	}, api.Config{}).SetupRoutes()

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notegen_pipeline_runs_total")
}
