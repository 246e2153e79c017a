package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/traffic-data-etl/internal/adapter/http"
	"github.com/couchcryptid/traffic-data-etl/internal/ledger"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockRuns struct {
	runs  []ledger.SyncRun
	err   error
	limit int
}

func (m *mockRuns) Recent(_ context.Context, n int) ([]ledger.SyncRun, error) {
	m.limit = n
	return m.runs, m.err
}

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, nil, slog.Default())
}

func serve(srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("pipeline has not completed a run yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "pipeline has not completed a run yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRunsNotRoutedWithoutLedger(t *testing.T) {
	rec := serve(newTestServer(nil), "/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsEndpoint(t *testing.T) {
	finished := time.Date(2025, time.November, 10, 12, 5, 0, 0, time.UTC)
	runs := &mockRuns{runs: []ledger.SyncRun{{
		RunID:       "run-1",
		SegmentID:   "9000008372",
		WindowStart: finished.Add(-5 * time.Hour).Truncate(time.Hour),
		WindowEnd:   finished.Truncate(time.Hour),
		RowsAdded:   5,
		Status:      ledger.StatusOK,
		FinishedAt:  finished,
	}}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, runs, slog.Default())

	rec := serve(srv, "/runs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, runs.limit)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "run-1", body[0]["run_id"])
	assert.Equal(t, "ok", body[0]["status"])
	assert.InDelta(t, 5, body[0]["rows_added"], 0)
	assert.NotContains(t, body[0], "error")

	rec = serve(srv, "/runs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, runs.limit)
}

func TestRunsEndpoint_Errors(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, &mockRuns{err: errors.New("disk I/O error")}, slog.Default())

	assert.Equal(t, http.StatusBadRequest, serve(srv, "/runs?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, serve(srv, "/runs?limit=abc").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(srv, "/runs").Code)
}
