package telraam

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
)

const (
	testAPIKey        = "test-key"
	testSegmentID     = "9000008372"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

var (
	windowStart = time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2025, time.November, 1, 3, 0, 0, 0, time.UTC)
)

func testClient(baseURL string) *Client {
	return &Client{
		apiKey:     testAPIKey,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		maxRetries: 3,
		retryBase:  time.Millisecond,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_FetchHourly_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/reports/traffic", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("X-Api-Key"))

		var body reportRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, reportRequest{
			ID:        testSegmentID,
			TimeStart: "2025-11-01 00:00:00Z",
			TimeEnd:   "2025-11-01 03:00:00Z",
			Level:     "segments",
			Format:    "per-hour",
		}, body)

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"report": [
			{"instance_id": -1, "segment_id": 9000008372, "date": "2025-11-01T00:00:00.000Z", "interval": "hourly",
			 "uptime": 0.72, "heavy": 1.4, "car": 52.8, "bike": 4.2, "pedestrian": 0, "v85": 38.5,
			 "car_speed_hist_0to70plus": [1, 2, 3], "timezone": "Europe/Brussels"},
			{"date": "2025-11-01 01:00:00+00:00", "uptime": null, "car": 12, "car_lft": 7}
		]}`)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	obs, err := c.FetchHourly(context.Background(), testSegmentID, windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, obs, 2)

	first := obs[0]
	assert.Equal(t, testSegmentID, first.SegmentID)
	assert.True(t, first.Timestamp.Equal(windowStart))
	assert.Equal(t, domain.Float(0.72), first.Uptime)
	assert.Equal(t, domain.Float(38.5), first.V85)
	assert.Equal(t, map[string]float64{"heavy": 1.4, "car": 52.8, "bike": 4.2, "pedestrian": 0}, first.Counts)

	second := obs[1]
	assert.True(t, second.Timestamp.Equal(windowStart.Add(time.Hour)))
	assert.False(t, second.Uptime.Valid)
	assert.Equal(t, map[string]float64{"car": 12, "car_lft": 7}, second.Counts)

	assert.InDelta(t, 1, testutil.ToFloat64(c.metrics.TrafficRequests.WithLabelValues("success")), 0)
}

func TestClient_FetchHourly_EmptyReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"report": []}`)
	}))
	defer srv.Close()

	obs, err := testClient(srv.URL).FetchHourly(context.Background(), testSegmentID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestClient_FetchHourly_RateLimitedThreeCallsMax(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	obs, err := c.FetchHourly(context.Background(), testSegmentID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, int32(3), calls.Load())
	assert.InDelta(t, 2, testutil.ToFloat64(c.metrics.RateLimitRetries), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(c.metrics.TrafficRequests.WithLabelValues("rate_limited")), 0)
}

func TestClient_FetchHourly_RecoversAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, `{"report": [{"date": "2025-11-01T02:00:00Z", "car": 3}]}`)
	}))
	defer srv.Close()

	obs, err := testClient(srv.URL).FetchHourly(context.Background(), testSegmentID, windowStart, windowEnd)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_FetchHourly_ServerErrorIsNoData(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	obs, err := testClient(srv.URL).FetchHourly(context.Background(), testSegmentID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, obs)
	assert.Equal(t, int32(1), calls.Load(), "only 429 is retried")
}

func TestClient_FetchHourly_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	obs, err := c.FetchHourly(context.Background(), testSegmentID, windowStart, windowEnd)
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestClient_FetchHourly_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>maintenance</html>`},
		{"report not a list", `{"report": "none"}`},
		{"row without date", `{"report": [{"car": 3}]}`},
		{"unparseable date", `{"report": [{"date": "yesterday", "car": 3}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set(headerContentType, contentTypeJSON)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).FetchHourly(context.Background(), testSegmentID, windowStart, windowEnd)
			require.ErrorIs(t, err, domain.ErrSchema)
		})
	}
}

func TestClient_FetchHourly_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.retryBase = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.FetchHourly(ctx, testSegmentID, windowStart, windowEnd)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
