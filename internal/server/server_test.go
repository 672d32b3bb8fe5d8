package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/qcherd/pkg/engine"
	"github.com/3leaps/qcherd/pkg/status"
)

func TestServer_NotFoundEnvelope(t *testing.T) {
	srv := New("127.0.0.1", 0, "test")

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := New("127.0.0.1", 0, "test")

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_CycleBeforeFirstPublish(t *testing.T) {
	srv := New("127.0.0.1", 0, "test")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cycle", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NO_CYCLE", body.Error.Code)
}

func TestServer_PublishCycleVisible(t *testing.T) {
	srv := New("127.0.0.1", 0, "test")

	srv.PublishCycle(engine.CycleSummary{
		CycleID:    "c-1",
		StartedAt:  time.Now(),
		JobsSeen:   2,
		Submitted:  1,
		SnapshotOK: true,
	}, []engine.JobStatus{
		{Name: "fe2", State: status.StateInFlight, Action: engine.ActionNone},
		{Name: "mn1", State: status.StateNotSubmitted, Action: engine.ActionSubmit},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cycle", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var sum engine.CycleSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, "c-1", sum.CycleID)
	assert.Equal(t, 2, sum.JobsSeen)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var jobs []engine.JobStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&jobs))
	require.Len(t, jobs, 2)
	assert.Equal(t, "fe2", jobs[0].Name)
	assert.Equal(t, status.StateInFlight, jobs[0].State)
}

func TestServer_Healthz(t *testing.T) {
	srv := New("127.0.0.1", 0, "test")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
