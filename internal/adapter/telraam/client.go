// Package telraam fetches hourly per-segment traffic reports from the Telraam
// API.
package telraam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/traffic-data-etl/internal/config"
	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
)

// Telraam expects UTC times in this layout in the request body.
const timeLayout = "2006-01-02 15:04:05Z"

var errRateLimited = errors.New("rate limited")

// Client calls the Telraam traffic report endpoint.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryBase  time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Telraam client from the job configuration.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: cfg.TelraamAPIKey,
		httpClient: &http.Client{
			Timeout: cfg.TelraamTimeout,
		},
		baseURL:    cfg.TelraamBaseURL,
		maxRetries: cfg.TelraamMaxRetries,
		retryBase:  cfg.TelraamRetryBase,
		metrics:    metrics,
		logger:     logger,
	}
}

// FetchHourly requests the hourly report for segmentID over [start, end).
//
// HTTP 429 is retried after retryBase × attempt, up to maxRetries calls in
// total. Exhausted retries, network failures and other non-2xx statuses are
// logged and yield an empty result with a nil error: the caller treats them as
// "no new data" and tries again on the next run. A response that cannot be
// mapped is returned as domain.ErrSchema.
func (c *Client) FetchHourly(ctx context.Context, segmentID string, start, end time.Time) ([]domain.HourlyObservation, error) {
	body, err := json.Marshal(reportRequest{
		ID:        segmentID,
		TimeStart: start.UTC().Format(timeLayout),
		TimeEnd:   end.UTC().Format(timeLayout),
		Level:     "segments",
		Format:    "per-hour",
	})
	if err != nil {
		return nil, fmt.Errorf("encode report request: %w", err)
	}

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		rows, err := c.doRequest(ctx, body)
		switch {
		case err == nil:
			if len(rows) == 0 {
				c.metrics.TrafficRequests.WithLabelValues("empty").Inc()
				return nil, nil
			}
			obs, err := mapRows(segmentID, rows)
			if err != nil {
				c.metrics.TrafficRequests.WithLabelValues("error").Inc()
				return nil, err
			}
			c.metrics.TrafficRequests.WithLabelValues("success").Inc()
			return obs, nil

		case errors.Is(err, errRateLimited):
			c.metrics.TrafficRequests.WithLabelValues("rate_limited").Inc()
			if attempt == c.maxRetries {
				break
			}
			wait := c.retryBase * time.Duration(attempt)
			c.logger.Warn("telraam rate limit, backing off",
				"segment", segmentID, "attempt", attempt, "wait", wait)
			c.metrics.RateLimitRetries.Inc()
			if !sharedretry.SleepWithContext(ctx, wait) {
				return nil, ctx.Err()
			}

		case errors.Is(err, domain.ErrSchema):
			c.metrics.TrafficRequests.WithLabelValues("error").Inc()
			return nil, err

		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.metrics.TrafficRequests.WithLabelValues("error").Inc()
			c.logger.Error("telraam request failed, treating as no data",
				"segment", segmentID, "error", err)
			return nil, nil
		}
	}

	c.logger.Error("telraam rate limit retries exhausted, treating as no data",
		"segment", segmentID, "attempts", c.maxRetries)
	return nil, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]map[string]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reports/traffic", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.TrafficAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("traffic report request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("telraam API error: status %d: %s", resp.StatusCode, msg)
	}

	var report reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode traffic report: %w: %w", domain.ErrSchema, err)
	}
	return report.Report, nil
}

// Telraam API request and response types.

type reportRequest struct {
	ID        string `json:"id"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
	Level     string `json:"level"`
	Format    string `json:"format"`
}

type reportResponse struct {
	Report []map[string]json.RawMessage `json:"report"`
}
