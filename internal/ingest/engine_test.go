package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
	"github.com/couchcryptid/traffic-data-etl/internal/store"
)

var (
	streetA = domain.Segment{ID: "9000008372", Name: "sintmartenslatemlaan"}
	streetB = domain.Segment{ID: "9000009940", Name: "graaf_karel_de_goedelaan"}
	epoch   = time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
)

// fakeFetcher serves one row per hour up to availableUntil (exclusive).
type fakeFetcher struct {
	mu             sync.Mutex
	availableUntil time.Time
	errs           map[string]error
	calls          []domain.FetchWindow
}

func (f *fakeFetcher) FetchHourly(_ context.Context, segmentID string, start, end time.Time) ([]domain.HourlyObservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.FetchWindow{SegmentID: segmentID, Start: start, End: end})
	if err := f.errs[segmentID]; err != nil {
		return nil, err
	}
	var rows []domain.HourlyObservation
	for ts := start; ts.Before(end) && ts.Before(f.availableUntil); ts = ts.Add(time.Hour) {
		rows = append(rows, domain.HourlyObservation{
			Timestamp: ts,
			Uptime:    domain.Float(0.5),
			Counts:    map[string]float64{domain.ModeCar: float64(ts.Hour()), domain.ModeBike: 1},
		})
	}
	return rows, nil
}

func freezeClock(t *testing.T, now time.Time) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClockAt(now)
	domain.SetClock(fc)
	t.Cleanup(func() { domain.SetClock(nil) })
	return fc
}

func newTestEngine(t *testing.T, f TrafficFetcher, delay time.Duration) (*Engine, *store.SegmentStore, *store.RawStore) {
	t.Helper()
	dir := t.TempDir()
	segments := store.NewSegmentStore(dir)
	raw := store.NewRawStore(dir)
	e := NewEngine(f, segments, raw, epoch, delay,
		observability.NewMetricsForTesting(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	return e, segments, raw
}

func TestSync_EmptyStoreStartsAtEpoch(t *testing.T) {
	freezeClock(t, time.Date(2025, time.November, 1, 3, 25, 0, 0, time.UTC))
	f := &fakeFetcher{availableUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, segments, _ := newTestEngine(t, f, 0)

	added, err := e.Sync(context.Background(), streetA)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	require.Len(t, f.calls, 1)
	assert.Equal(t, epoch, f.calls[0].Start)
	assert.Equal(t, time.Date(2025, time.November, 1, 3, 0, 0, 0, time.UTC), f.calls[0].End)

	stored, err := segments.Load(streetA)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	assert.Equal(t, streetA.ID, stored[0].SegmentID)
}

func TestSync_NoTimestampColumnStartsAtEpoch(t *testing.T) {
	freezeClock(t, time.Date(2025, time.November, 1, 3, 25, 0, 0, time.UTC))
	f := &fakeFetcher{availableUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, segments, _ := newTestEngine(t, f, 0)
	require.NoError(t, os.WriteFile(segments.Path(streetA), []byte("segment_id,car\n9000008372,5\n"), 0o600))

	added, err := e.Sync(context.Background(), streetA)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	require.Len(t, f.calls, 1)
	assert.Equal(t, epoch, f.calls[0].Start)
	assert.Equal(t, time.Date(2025, time.November, 1, 3, 0, 0, 0, time.UTC), f.calls[0].End)

	stored, err := segments.Load(streetA)
	require.NoError(t, err, "the rewritten file has a date column")
	assert.Len(t, stored, 3)
}

func TestSync_ResumesAfterLatestStoredHour(t *testing.T) {
	fc := freezeClock(t, time.Date(2025, time.November, 1, 9, 0, 0, 0, time.UTC))
	f := &fakeFetcher{availableUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, _, _ := newTestEngine(t, f, 0)

	_, err := e.Sync(context.Background(), streetA)
	require.NoError(t, err)

	fc.Advance(2*time.Hour + 10*time.Minute)
	added, err := e.Sync(context.Background(), streetA)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	require.Len(t, f.calls, 2)
	assert.Equal(t, time.Date(2025, time.November, 1, 9, 0, 0, 0, time.UTC), f.calls[1].Start,
		"latest stored hour is 08:00Z so the next window starts at 09:00Z")
	assert.Equal(t, time.Date(2025, time.November, 1, 11, 0, 0, 0, time.UTC), f.calls[1].End)
}

func TestSync_IdempotentWithoutNewData(t *testing.T) {
	fc := freezeClock(t, time.Date(2025, time.November, 2, 0, 0, 0, 0, time.UTC))
	f := &fakeFetcher{availableUntil: time.Date(2025, time.November, 2, 0, 0, 0, 0, time.UTC)}
	e, segments, _ := newTestEngine(t, f, 0)

	added, err := e.Sync(context.Background(), streetA)
	require.NoError(t, err)
	assert.Equal(t, 24, added)
	first, err := os.ReadFile(segments.Path(streetA))
	require.NoError(t, err)

	t.Run("same hour leaves an empty window", func(t *testing.T) {
		added, err := e.Sync(context.Background(), streetA)
		require.NoError(t, err)
		assert.Zero(t, added)
		assert.Len(t, f.calls, 1, "no request for an empty window")
	})

	t.Run("upstream has nothing new", func(t *testing.T) {
		fc.Advance(3 * time.Hour)
		added, err := e.Sync(context.Background(), streetA)
		require.NoError(t, err)
		assert.Zero(t, added)
	})

	second, err := os.ReadFile(segments.Path(streetA))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestSync_FetchErrorLeavesStoreUntouched(t *testing.T) {
	freezeClock(t, time.Date(2025, time.November, 1, 5, 0, 0, 0, time.UTC))
	f := &fakeFetcher{errs: map[string]error{streetA.ID: domain.ErrSchema}}
	e, segments, _ := newTestEngine(t, f, 0)

	added, err := e.Sync(context.Background(), streetA)
	require.ErrorIs(t, err, domain.ErrSchema)
	assert.Zero(t, added)

	_, err = os.Stat(segments.Path(streetA))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSyncAll_CollectsErrorsAndContinues(t *testing.T) {
	freezeClock(t, time.Date(2025, time.November, 1, 2, 0, 0, 0, time.UTC))
	f := &fakeFetcher{
		availableUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		errs:           map[string]error{streetA.ID: domain.ErrSchema},
	}
	e, segments, _ := newTestEngine(t, f, 0)

	results, err := e.SyncAll(context.Background(), []domain.Segment{streetA, streetB})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSchema)
	assert.Contains(t, err.Error(), "sintmartenslatemlaan")

	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 2, results[1].RowsAdded)
	assert.Equal(t, 2, results[1].Window.Hours())

	stored, err := segments.Load(streetB)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestSyncAll_WaitsBetweenSegments(t *testing.T) {
	fc := freezeClock(t, time.Date(2025, time.November, 1, 1, 0, 0, 0, time.UTC))
	f := &fakeFetcher{availableUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, _, _ := newTestEngine(t, f, 2*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := e.SyncAll(ctx, []domain.Segment{streetA, streetB})
		done <- err
	}()

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	f.mu.Lock()
	assert.Len(t, f.calls, 1, "second segment waits for the delay")
	f.mu.Unlock()

	fc.Advance(2 * time.Second)
	require.NoError(t, <-done)
	assert.Len(t, f.calls, 2)
}

func TestSyncAll_CancelledDuringDelay(t *testing.T) {
	fc := freezeClock(t, time.Date(2025, time.November, 1, 1, 0, 0, 0, time.UTC))
	f := &fakeFetcher{availableUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, _, _ := newTestEngine(t, f, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.SyncAll(ctx, []domain.Segment{streetA, streetB})
		done <- err
	}()

	require.NoError(t, fc.BlockUntilContext(context.Background(), 1))
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestCombine(t *testing.T) {
	freezeClock(t, time.Date(2025, time.November, 1, 2, 0, 0, 0, time.UTC))
	f := &fakeFetcher{availableUntil: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	e, _, raw := newTestEngine(t, f, 0)

	t.Run("nothing stored writes nothing", func(t *testing.T) {
		rows, err := e.Combine([]domain.Segment{streetA, streetB})
		require.NoError(t, err)
		assert.Empty(t, rows)
		_, err = raw.LoadRequired()
		require.ErrorIs(t, err, domain.ErrMissingUpstreamFile)
	})

	_, err := e.SyncAll(context.Background(), []domain.Segment{streetB, streetA})
	require.NoError(t, err)

	t.Run("union sorted by time then segment", func(t *testing.T) {
		rows, err := e.Combine([]domain.Segment{streetB, streetA})
		require.NoError(t, err)
		require.Len(t, rows, 4)

		assert.Equal(t, streetA.ID, rows[0].SegmentID)
		assert.Equal(t, "Sintmartenslatemlaan", rows[0].StreetName)
		assert.Equal(t, streetB.ID, rows[1].SegmentID)
		assert.Equal(t, "Graaf Karel De Goedelaan", rows[1].StreetName)
		assert.True(t, rows[0].Timestamp.Equal(rows[1].Timestamp))
		assert.True(t, rows[2].Timestamp.After(rows[1].Timestamp))

		loaded, err := raw.LoadRequired()
		require.NoError(t, err)
		assert.Len(t, loaded, 4)
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := os.ReadFile(raw.Path())
		require.NoError(t, err)
		_, err = e.Combine([]domain.Segment{streetA, streetB})
		require.NoError(t, err)
		second, err := os.ReadFile(raw.Path())
		require.NoError(t, err)
		assert.Equal(t, string(first), string(second))
	})
}
