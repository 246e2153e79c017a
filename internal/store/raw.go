package store

import (
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// RawFile is the combined per-segment dataset.
const RawFile = "traffic_two_streets_raw.csv"

// RawStore holds the union of all segment histories tagged with street names.
type RawStore struct {
	path string
}

// NewRawStore returns a store for <dir>/traffic_two_streets_raw.csv.
func NewRawStore(dir string) *RawStore {
	return &RawStore{path: filepath.Join(dir, RawFile)}
}

// Path returns the file location.
func (s *RawStore) Path() string { return s.path }

// Save replaces the combined file.
func (s *RawStore) Save(rows []domain.SegmentObservation) error {
	plain := make([]domain.HourlyObservation, len(rows))
	for i, r := range rows {
		plain[i] = r.HourlyObservation
	}
	modes := domain.Modes(plain)
	header := append([]string{timestampColumn, segmentIDColumn, streetNameColumn, uptimeColumn, v85Column}, modes...)

	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string{
			formatTime(r.Timestamp.UTC()),
			r.SegmentID,
			r.StreetName,
			formatFloat(r.Uptime),
			formatFloat(r.V85),
		}, countCells(r.Counts, modes)...)
	}
	if err := writeAtomic(s.path, header, out); err != nil {
		return fmt.Errorf("save combined traffic: %w", err)
	}
	return nil
}

// LoadRequired reads the combined file, failing with ErrMissingUpstreamFile
// when it has not been produced yet.
func (s *RawStore) LoadRequired() ([]domain.SegmentObservation, error) {
	t, err := readTable(s.path, timestampColumn, segmentIDColumn, streetNameColumn)
	if err != nil {
		return nil, missing(s.path, err)
	}
	modes := modeColumns(t.header, trafficColumns)

	rows := make([]domain.SegmentObservation, 0, len(t.rows))
	for i, row := range t.rows {
		o, err := t.observation(row, i+2, modes)
		if err != nil {
			return nil, err
		}
		rows = append(rows, domain.SegmentObservation{
			HourlyObservation: o,
			StreetName:        t.get(row, streetNameColumn),
		})
	}
	return rows, nil
}
