package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddock-labs/raceday-cli/internal/config"
	"github.com/paddock-labs/raceday-cli/internal/model"
	"github.com/paddock-labs/raceday-cli/internal/resilience"
	"github.com/paddock-labs/raceday-cli/internal/store"
)

// stubRunner records Run calls and serves canned sessions.
type stubRunner struct {
	mu       sync.Mutex
	runs     []config.RunConfig
	sessions map[string]*model.AnalysisSession
	list     []model.AnalysisSession
}

func (s *stubRunner) Run(ctx context.Context, run config.RunConfig) (*model.AnalysisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return &model.AnalysisSession{ID: run.SessionID, Status: model.StatusCompleted}, nil
}

func (s *stubRunner) Status(ctx context.Context, id string) (*model.AnalysisSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, resilience.ErrSessionNotFound
	}
	return sess, nil
}

func (s *stubRunner) List(ctx context.Context, filter store.SessionFilter) ([]model.AnalysisSession, error) {
	return s.list, nil
}

func TestBuildRouter_HealthEndpoint(t *testing.T) {
	router := buildRouter(context.Background(), &stubRunner{}, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_Analyze_ReturnsSessionID(t *testing.T) {
	runner := &stubRunner{}
	router := buildRouter(context.Background(), runner, "test-model")

	payload, _ := json.Marshal(map[string]any{
		"track": "DMR",
		"date":  "09/05/2025",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["session_id"])
	assert.Equal(t, "pending", resp["status"])
}

func TestBuildRouter_Analyze_MissingTrackRejected(t *testing.T) {
	runner := &stubRunner{}
	router := buildRouter(context.Background(), runner, "")

	payload, _ := json.Marshal(map[string]any{"date": "09/05/2025"})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Empty(t, runner.runs)
}

func TestBuildRouter_Analyze_InvalidBodyRejected(t *testing.T) {
	router := buildRouter(context.Background(), &stubRunner{}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewReader([]byte("{not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBuildRouter_Status_UnknownSession(t *testing.T) {
	router := buildRouter(context.Background(), &stubRunner{sessions: map[string]*model.AnalysisSession{}}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/status/nope", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBuildRouter_Status_KnownSession(t *testing.T) {
	runner := &stubRunner{sessions: map[string]*model.AnalysisSession{
		"abc": {ID: "abc", Track: "DMR", Status: model.StatusAnalyzing, Progress: 80},
	}}
	router := buildRouter(context.Background(), runner, "")

	req := httptest.NewRequest(http.MethodGet, "/api/status/abc", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var sess model.AnalysisSession
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sess))
	assert.Equal(t, "abc", sess.ID)
	assert.Equal(t, model.StatusAnalyzing, sess.Status)
}

func TestBuildRouter_Sessions_EmptyListIsArray(t *testing.T) {
	router := buildRouter(context.Background(), &stubRunner{}, "")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]\n", rr.Body.String())
}
