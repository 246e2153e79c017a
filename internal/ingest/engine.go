// Package ingest keeps each segment's local history in step with the sensor
// API and combines the histories into one dataset.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
)

// TrafficFetcher returns hourly observations for a segment over [start, end).
type TrafficFetcher interface {
	FetchHourly(ctx context.Context, segmentID string, start, end time.Time) ([]domain.HourlyObservation, error)
}

// SegmentRepository persists one segment's full history.
type SegmentRepository interface {
	Load(seg domain.Segment) ([]domain.HourlyObservation, error)
	Save(seg domain.Segment, rows []domain.HourlyObservation) error
}

// CombinedRepository persists the union of all segment histories.
type CombinedRepository interface {
	Save(rows []domain.SegmentObservation) error
}

// SegmentResult describes one segment's sync.
type SegmentResult struct {
	Segment   domain.Segment
	Window    domain.FetchWindow
	Fetched   int
	RowsAdded int
	Err       error
}

// Engine runs incremental syncs. It is not safe for concurrent runs against
// the same data directory.
type Engine struct {
	fetcher  TrafficFetcher
	segments SegmentRepository
	combined CombinedRepository
	epoch    time.Time
	delay    time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewEngine creates an Engine. epoch is where an empty history starts and
// delay is the pause between consecutive segments in SyncAll.
func NewEngine(f TrafficFetcher, segments SegmentRepository, combined CombinedRepository, epoch time.Time, delay time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		fetcher:  f,
		segments: segments,
		combined: combined,
		epoch:    epoch,
		delay:    delay,
		metrics:  metrics,
		logger:   logger,
	}
}

// Sync brings one segment up to the current hour and returns the number of
// hours that were not stored before.
func (e *Engine) Sync(ctx context.Context, seg domain.Segment) (int, error) {
	res := e.sync(ctx, seg)
	return res.RowsAdded, res.Err
}

// SyncAll syncs segments one after another with the configured delay between
// them. A failing segment does not stop the others; all failures are returned
// together.
func (e *Engine) SyncAll(ctx context.Context, segs []domain.Segment) ([]SegmentResult, error) {
	var errs *multierror.Error
	results := make([]SegmentResult, 0, len(segs))

	for i, seg := range segs {
		if i > 0 && e.delay > 0 {
			select {
			case <-ctx.Done():
				return results, multierror.Append(errs, ctx.Err()).ErrorOrNil()
			case <-domain.Clock().After(e.delay):
			}
		}
		res := e.sync(ctx, seg)
		if res.Err != nil {
			errs = multierror.Append(errs, res.Err)
		}
		results = append(results, res)
	}
	return results, errs.ErrorOrNil()
}

func (e *Engine) sync(ctx context.Context, seg domain.Segment) SegmentResult {
	start := time.Now()
	defer func() {
		e.metrics.SyncDuration.WithLabelValues(seg.Name).Observe(time.Since(start).Seconds())
	}()

	res := SegmentResult{Segment: seg}
	existing, err := e.segments.Load(seg)
	if errors.Is(err, domain.ErrNoTimestampColumn) {
		e.logger.Warn("stored history has no timestamp column, refetching from epoch",
			"segment", seg.Name, "error", err)
		existing, err = nil, nil
	}
	if err != nil {
		res.Err = fmt.Errorf("segment %s: load history: %w", seg.Name, err)
		return res
	}

	res.Window = domain.NextWindow(seg.ID, existing, e.epoch, domain.CurrentHour())
	if res.Window.Empty() {
		e.logger.Info("no new hours to fetch", "segment", seg.Name, "stored", len(existing))
		return res
	}

	e.logger.Info("fetching traffic", "segment", seg.Name, "window", res.Window.String(), "hours", res.Window.Hours())
	fetched, err := e.fetcher.FetchHourly(ctx, seg.ID, res.Window.Start, res.Window.End)
	if err != nil {
		res.Err = fmt.Errorf("segment %s: fetch: %w", seg.Name, err)
		return res
	}
	res.Fetched = len(fetched)
	e.metrics.RowsFetched.WithLabelValues(seg.Name).Add(float64(len(fetched)))
	if len(fetched) == 0 {
		e.logger.Info("no new data returned", "segment", seg.Name)
		return res
	}

	for i := range fetched {
		if fetched[i].SegmentID == "" {
			fetched[i].SegmentID = seg.ID
		}
	}
	merged, added := domain.MergeObservations(existing, fetched)
	if err := e.segments.Save(seg, merged); err != nil {
		res.Err = fmt.Errorf("segment %s: %w", seg.Name, err)
		return res
	}
	res.RowsAdded = added
	e.metrics.RowsAdded.WithLabelValues(seg.Name).Add(float64(added))
	e.logger.Info("segment updated", "segment", seg.Name, "fetched", len(fetched), "added", added, "total", len(merged))
	return res
}

// Combine loads every segment's history, tags rows with the street label and
// writes the union ordered by timestamp then segment id. Segments without a
// stored history are skipped; when none has data nothing is written.
func (e *Engine) Combine(segs []domain.Segment) ([]domain.SegmentObservation, error) {
	var rows []domain.SegmentObservation
	for _, seg := range segs {
		obs, err := e.segments.Load(seg)
		if errors.Is(err, domain.ErrNoTimestampColumn) {
			e.logger.Warn("skipping history without timestamp column", "segment", seg.Name, "error", err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("combine: segment %s: %w", seg.Name, err)
		}
		if len(obs) == 0 {
			e.logger.Warn("no stored history to combine", "segment", seg.Name)
			continue
		}
		label := seg.Label()
		for _, o := range obs {
			if o.SegmentID == "" {
				o.SegmentID = seg.ID
			}
			rows = append(rows, domain.SegmentObservation{HourlyObservation: o, StreetName: label})
		}
		e.logger.Debug("loaded segment history", "segment", seg.Name, "rows", len(obs))
	}
	if len(rows) == 0 {
		e.logger.Warn("no segment data found to combine")
		return nil, nil
	}

	domain.SortSegmentObservations(rows)
	if err := e.combined.Save(rows); err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	e.logger.Info("combined traffic saved", "rows", len(rows), "segments", len(segs))
	return rows, nil
}
