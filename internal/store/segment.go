package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

const (
	segmentIDColumn  = "segment_id"
	streetNameColumn = "street_name"
	uptimeColumn     = "uptime"
	v85Column        = "v85"
)

var trafficColumns = set(timestampColumn, segmentIDColumn, streetNameColumn, uptimeColumn, v85Column)

// SegmentStore keeps one CSV per segment with its full hourly history in UTC.
type SegmentStore struct {
	dir string
}

// NewSegmentStore returns a store rooted at dir.
func NewSegmentStore(dir string) *SegmentStore {
	return &SegmentStore{dir: dir}
}

// Path is the segment's file, <dir>/<name>_per-hour.csv.
func (s *SegmentStore) Path(seg domain.Segment) string {
	return filepath.Join(s.dir, seg.Name+"_per-hour.csv")
}

// Load returns the stored history for seg. A segment with no file yet has an
// empty history. A file without a date column is domain.ErrNoTimestampColumn.
func (s *SegmentStore) Load(seg domain.Segment) ([]domain.HourlyObservation, error) {
	obs, err := s.load(seg)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return obs, err
}

// LoadRequired is Load for callers that cannot proceed without the file.
func (s *SegmentStore) LoadRequired(seg domain.Segment) ([]domain.HourlyObservation, error) {
	obs, err := s.load(seg)
	if err != nil {
		return nil, missing(s.Path(seg), err)
	}
	return obs, nil
}

func (s *SegmentStore) load(seg domain.Segment) ([]domain.HourlyObservation, error) {
	t, err := readTable(s.Path(seg))
	if err != nil {
		return nil, err
	}
	if _, ok := t.index[timestampColumn]; !ok && len(t.header) > 0 {
		return nil, fmt.Errorf("%s: missing column %q: %w", t.path, timestampColumn, domain.ErrNoTimestampColumn)
	}
	modes := modeColumns(t.header, trafficColumns)

	obs := make([]domain.HourlyObservation, 0, len(t.rows))
	for i, row := range t.rows {
		o, err := t.observation(row, i+2, modes)
		if err != nil {
			return nil, err
		}
		if o.SegmentID == "" {
			o.SegmentID = seg.ID
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// Save replaces the segment's file with rows.
func (s *SegmentStore) Save(seg domain.Segment, rows []domain.HourlyObservation) error {
	modes := domain.Modes(rows)
	header := append([]string{timestampColumn, segmentIDColumn, uptimeColumn, v85Column}, modes...)

	out := make([][]string, len(rows))
	for i, o := range rows {
		id := o.SegmentID
		if id == "" {
			id = seg.ID
		}
		out[i] = append([]string{
			formatTime(o.Timestamp.UTC()),
			id,
			formatFloat(o.Uptime),
			formatFloat(o.V85),
		}, countCells(o.Counts, modes)...)
	}
	if err := writeAtomic(s.Path(seg), header, out); err != nil {
		return fmt.Errorf("save segment %s: %w", seg.Name, err)
	}
	return nil
}

func (t *table) observation(row []string, line int, modes []string) (domain.HourlyObservation, error) {
	ts, err := t.timestamp(row, line, time.UTC)
	if err != nil {
		return domain.HourlyObservation{}, err
	}
	uptime, err := t.float(row, uptimeColumn, line)
	if err != nil {
		return domain.HourlyObservation{}, err
	}
	v85, err := t.float(row, v85Column, line)
	if err != nil {
		return domain.HourlyObservation{}, err
	}
	counts, err := t.counts(row, modes, line)
	if err != nil {
		return domain.HourlyObservation{}, err
	}
	return domain.HourlyObservation{
		SegmentID: t.get(row, segmentIDColumn),
		Timestamp: ts.UTC(),
		Uptime:    uptime,
		V85:       v85,
		Counts:    counts,
	}, nil
}
