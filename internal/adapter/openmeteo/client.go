// Package openmeteo fetches historical hourly weather from the Open-Meteo
// archive API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/traffic-data-etl/internal/config"
	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
)

// HourlyVariables are requested in this order.
var HourlyVariables = []string{
	"temperature_2m",
	"precipitation",
	"rain",
	"snowfall",
	"cloudcover",
	"windspeed_10m",
	"sunshine_duration",
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
)

// BackoffConfig controls exponential backoff between attempts.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client calls the archive endpoint for one place.
type Client struct {
	httpClient *http.Client
	baseURL    string
	lat, lon   float64
	loc        *time.Location
	backoff    BackoffConfig
	circuit    *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client for the configured place and zone.
func NewClient(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.WeatherTimeout},
		baseURL:    cfg.WeatherBaseURL,
		lat:        cfg.WeatherLat,
		lon:        cfg.WeatherLon,
		loc:        cfg.Location,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: newBreaker(),
		metrics: metrics,
		logger:  logger,
	}
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
	})
}

// FetchHourly returns hourly weather for the local dates from start through
// end inclusive. Timestamps are localized in the client's zone; null values in
// the response stay invalid rather than becoming zero.
//
// Rate limiting, 5xx responses, timeouts and an open circuit breaker are
// returned as domain.ErrTransientFetch after retries. A response whose arrays
// cannot be aligned is domain.ErrSchema.
func (c *Client) FetchHourly(ctx context.Context, start, end time.Time) ([]domain.WeatherObservation, error) {
	params := url.Values{
		"latitude":   {strconv.FormatFloat(c.lat, 'f', -1, 64)},
		"longitude":  {strconv.FormatFloat(c.lon, 'f', -1, 64)},
		"start_date": {start.In(c.loc).Format(time.DateOnly)},
		"end_date":   {end.In(c.loc).Format(time.DateOnly)},
		"hourly":     {strings.Join(HourlyVariables, ",")},
		"timezone":   {c.loc.String()},
	}
	fullURL := c.baseURL + "?" + params.Encode()

	resp, err := c.doRequestWithResilience(ctx, fullURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("decode weather response: %w: %w", domain.ErrSchema, err)
	}
	rows, err := payload.Hourly.observations(c.loc)
	if err != nil {
		c.metrics.WeatherRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	c.metrics.WeatherRequests.WithLabelValues("success").Inc()
	return rows, nil
}

// doRequestWithResilience executes the request through the circuit breaker,
// retrying transient failures with exponential backoff.
func (c *Client) doRequestWithResilience(ctx context.Context, fullURL string) (*http.Response, error) {
	delay := c.backoff.InitialInterval
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		result, err := c.circuit.Execute(func() (any, error) {
			return c.do(ctx, fullURL)
		})
		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, errors.New("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.metrics.WeatherRequests.WithLabelValues("breaker_open").Inc()
			return nil, fmt.Errorf("%w: weather circuit breaker: %v", domain.ErrTransientFetch, err)
		}
		if !errors.Is(err, domain.ErrTransientFetch) {
			c.metrics.WeatherRequests.WithLabelValues("error").Inc()
			return nil, err
		}
		if attempt >= c.backoff.MaxRetries {
			c.metrics.WeatherRequests.WithLabelValues("transient").Inc()
			return nil, err
		}

		c.logger.Warn("weather request failed, retrying", "attempt", attempt+1, "wait", delay, "error", err)
		if !sharedretry.SleepWithContext(ctx, delay) {
			return nil, ctx.Err()
		}
		delay = sharedretry.NextBackoff(delay, c.backoff.MaxInterval)
	}
}

func (c *Client) do(ctx context.Context, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.WeatherAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: weather request: %v", domain.ErrTransientFetch, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrTransientFetch, errRateLimited)
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %w: status %d", domain.ErrTransientFetch, errServerError, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		defer resp.Body.Close()
		var apiErr errorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Reason != "" {
			return nil, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, apiErr.Reason)
		}
		return nil, fmt.Errorf("open-meteo API error: status %d: %s", resp.StatusCode, body)
	}
	return resp, nil
}
