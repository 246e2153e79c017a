// Package pipeline runs the job end to end, from segment sync to the merged
// dataset and its sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/ingest"
	"github.com/couchcryptid/traffic-data-etl/internal/integrate"
	"github.com/couchcryptid/traffic-data-etl/internal/ledger"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
)

// Syncer keeps segment histories current and combines them.
type Syncer interface {
	SyncAll(ctx context.Context, segs []domain.Segment) ([]ingest.SegmentResult, error)
	Combine(segs []domain.Segment) ([]domain.SegmentObservation, error)
}

// TrafficSource reads the stored combined traffic.
type TrafficSource interface {
	LoadRequired() ([]domain.SegmentObservation, error)
}

// WeatherFetcher returns hourly weather for the local dates [start, end].
type WeatherFetcher interface {
	FetchHourly(ctx context.Context, start, end time.Time) ([]domain.WeatherObservation, error)
}

// WeatherRepository persists the fetched weather.
type WeatherRepository interface {
	Load() ([]domain.WeatherObservation, error)
	Save(rows []domain.WeatherObservation) error
}

// MergedRepository persists the merged dataset.
type MergedRepository interface {
	Save(records []domain.MergedRecord) error
}

// Publisher sends merged records downstream.
type Publisher interface {
	Publish(ctx context.Context, runID string, records []domain.MergedRecord) error
}

// Exporter writes merged records to a file in another format.
type Exporter interface {
	Export(path string, records []domain.MergedRecord) error
}

// RunRecorder keeps a history of segment syncs.
type RunRecorder interface {
	Record(ctx context.Context, runs []ledger.SyncRun) error
}

// Stages wires the pipeline. Publisher, Exporter and Ledger are optional.
type Stages struct {
	Sync         Syncer
	Traffic      TrafficSource
	Weather      WeatherFetcher
	WeatherStore WeatherRepository
	Merged       MergedRepository
	Calendar     integrate.CalendarLookup
	Publisher    Publisher
	Exporter     Exporter
	ExportPath   string
	Ledger       RunRecorder
}

// Result summarizes one invocation.
type Result struct {
	RunID       string
	Segments    []ingest.SegmentResult
	RowsAdded   int
	TrafficRows int
	WeatherRows int
	Join        integrate.JoinStats
	Report      integrate.Report
	Warnings    []string
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Pipeline orchestrates sync, merge and publish.
type Pipeline struct {
	stages   Stages
	segments []domain.Segment
	loc      *time.Location
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool
}

// New creates a Pipeline over segments, aligning joins to loc.
func New(stages Stages, segments []domain.Segment, loc *time.Location, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		stages:   stages,
		segments: segments,
		loc:      loc,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once a merged dataset has been written, or an
// error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Sync brings every segment up to date and rewrites the combined traffic file.
func (p *Pipeline) Sync(ctx context.Context) (Result, error) {
	return p.execute(ctx, "sync", func(ctx context.Context, res *Result, logger *slog.Logger) (bool, error) {
		_, err := p.sync(ctx, res, logger)
		return false, err
	})
}

// Integrate rebuilds the merged dataset from the stored combined traffic.
func (p *Pipeline) Integrate(ctx context.Context) (Result, error) {
	return p.execute(ctx, "integrate", func(ctx context.Context, res *Result, logger *slog.Logger) (bool, error) {
		traffic, err := p.stages.Traffic.LoadRequired()
		if err != nil {
			return false, fmt.Errorf("load traffic: %w", err)
		}
		return p.merge(ctx, traffic, res, logger)
	})
}

// Run syncs and then integrates. Segment failures do not prevent the merge
// from running on the data already stored; they are returned afterwards.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	return p.execute(ctx, "run", func(ctx context.Context, res *Result, logger *slog.Logger) (bool, error) {
		var errs *multierror.Error
		traffic, err := p.sync(ctx, res, logger)
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		if traffic == nil {
			if traffic, err = p.stages.Traffic.LoadRequired(); err != nil {
				return false, multierror.Append(errs, fmt.Errorf("load traffic: %w", err)).ErrorOrNil()
			}
		}
		merged, err := p.merge(ctx, traffic, res, logger)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		return merged, errs.ErrorOrNil()
	})
}

type step func(ctx context.Context, res *Result, logger *slog.Logger) (merged bool, err error)

// execute wraps a step with the per-run id, metrics and readiness.
func (p *Pipeline) execute(ctx context.Context, kind string, fn step) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", res.RunID, "kind", kind)
	logger.Info("pipeline started", "segments", len(p.segments))

	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	merged, err := fn(ctx, &res, logger)
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.metrics.ValidationWarnings.Add(float64(len(res.Warnings)))
	if merged {
		p.ready.Store(true)
	}

	switch {
	case err == nil:
		p.metrics.RunsTotal.WithLabelValues("success").Inc()
		p.metrics.LastSuccess.SetToCurrentTime()
		logger.Info("pipeline finished",
			"rows_added", res.RowsAdded,
			"warnings", len(res.Warnings),
			"duration", time.Since(start),
		)
	case merged:
		p.metrics.RunsTotal.WithLabelValues("partial").Inc()
		logger.Warn("pipeline finished with errors", "error", err, "duration", time.Since(start))
	default:
		p.metrics.RunsTotal.WithLabelValues("failure").Inc()
		logger.Error("pipeline failed", "error", err, "duration", time.Since(start))
	}
	return res, err
}

// sync runs every segment, records the outcomes and combines the histories.
// The returned traffic is nil when no segment has stored data.
func (p *Pipeline) sync(ctx context.Context, res *Result, logger *slog.Logger) ([]domain.SegmentObservation, error) {
	results, syncErr := p.stages.Sync.SyncAll(ctx, p.segments)
	res.Segments = results
	for _, r := range results {
		res.RowsAdded += r.RowsAdded
	}
	p.record(ctx, res.RunID, results, logger)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var errs *multierror.Error
	if syncErr != nil {
		errs = multierror.Append(errs, fmt.Errorf("sync: %w", syncErr))
	}
	traffic, err := p.stages.Sync.Combine(p.segments)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	res.TrafficRows = len(traffic)
	return traffic, errs.ErrorOrNil()
}

// merge fetches weather for the traffic's dates, joins, validates and writes
// the merged dataset. merged reports whether the dataset was written; sink
// failures come back as an error after that.
func (p *Pipeline) merge(ctx context.Context, traffic []domain.SegmentObservation, res *Result, logger *slog.Logger) (bool, error) {
	if len(traffic) == 0 {
		return false, errors.New("no traffic data to integrate")
	}
	res.TrafficRows = len(traffic)

	weather := p.weather(ctx, traffic, res, logger)
	records, stats := integrate.Integrate(traffic, weather, p.stages.Calendar, p.loc)
	res.Join = stats
	if stats.DuplicateWeatherHours > 0 {
		res.warn(fmt.Sprintf("%d duplicate weather hours, kept the last row of each", stats.DuplicateWeatherHours))
	}

	res.Report = integrate.Validate(records)
	res.Warnings = append(res.Warnings, res.Report.Warnings...)
	logger.Info("merged dataset validated", "report", res.Report)

	if err := p.stages.Merged.Save(records); err != nil {
		return false, fmt.Errorf("save merged dataset: %w", err)
	}
	p.metrics.MergedRecords.Set(float64(len(records)))
	logger.Info("merged dataset saved",
		"records", len(records),
		"weather_matched", stats.WeatherMatched,
	)

	var errs *multierror.Error
	if p.stages.Publisher != nil {
		if err := p.stages.Publisher.Publish(ctx, res.RunID, records); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("publish: %w", err))
		}
	}
	if p.stages.Exporter != nil {
		if err := p.stages.Exporter.Export(p.stages.ExportPath, records); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("export: %w", err))
		}
	}
	return true, errs.ErrorOrNil()
}

// weather fetches and stores weather for the dates traffic covers. A failed
// fetch falls back to the stored file and is reported as a warning.
func (p *Pipeline) weather(ctx context.Context, traffic []domain.SegmentObservation, res *Result, logger *slog.Logger) []domain.WeatherObservation {
	start, end, ok := integrate.WeatherRange(traffic, p.loc)
	if !ok {
		return nil
	}

	obs, err := p.stages.Weather.FetchHourly(ctx, start, end)
	if err == nil {
		res.WeatherRows = len(obs)
		if err := p.stages.WeatherStore.Save(obs); err != nil {
			res.warn(fmt.Sprintf("save weather: %v", err))
			logger.Warn("save weather failed", "error", err)
		}
		logger.Info("weather fetched", "rows", len(obs),
			"start", start.Format(time.DateOnly), "end", end.Format(time.DateOnly))
		return obs
	}

	res.warn(fmt.Sprintf("weather fetch failed: %v", err))
	logger.Warn("weather fetch failed, using stored weather", "error", err,
		"transient", errors.Is(err, domain.ErrTransientFetch))
	stored, loadErr := p.stages.WeatherStore.Load()
	if loadErr != nil {
		res.warn(fmt.Sprintf("load stored weather: %v", loadErr))
		logger.Warn("load stored weather failed", "error", loadErr)
		return nil
	}
	res.WeatherRows = len(stored)
	return stored
}

// record stores segment outcomes in the ledger. Ledger failures are logged.
func (p *Pipeline) record(ctx context.Context, runID string, results []ingest.SegmentResult, logger *slog.Logger) {
	if p.stages.Ledger == nil || len(results) == 0 {
		return
	}
	now := domain.Clock().Now().UTC()
	runs := make([]ledger.SyncRun, 0, len(results))
	for _, r := range results {
		run := ledger.SyncRun{
			RunID:       runID,
			SegmentID:   r.Segment.ID,
			WindowStart: r.Window.Start,
			WindowEnd:   r.Window.End,
			RowsAdded:   r.RowsAdded,
			Status:      syncStatus(r),
			FinishedAt:  now,
		}
		if r.Err != nil {
			run.Error = r.Err.Error()
		}
		runs = append(runs, run)
	}
	if err := p.stages.Ledger.Record(context.WithoutCancel(ctx), runs); err != nil {
		logger.Warn("record sync runs failed", "error", err)
	}
}

func syncStatus(r ingest.SegmentResult) string {
	switch {
	case r.Err != nil:
		return ledger.StatusFailed
	case r.Window.Empty():
		return ledger.StatusUpToDate
	case r.Fetched == 0:
		return ledger.StatusNoData
	default:
		return ledger.StatusOK
	}
}
