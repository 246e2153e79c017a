package store

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// MergedFile is the integrated dataset consumed by the forecasting layer.
const MergedFile = "traffic_weather_calendar_integrated.csv"

// Calendar columns of the merged dataset.
const (
	IsHolidayColumn        = "is_holiday"
	IsSchoolVacationColumn = "is_school_vacation"
	HolidayNameColumn      = "holiday_name"
	VacationNameColumn     = "vacation_name"
)

var calendarColumns = []string{IsHolidayColumn, IsSchoolVacationColumn, HolidayNameColumn, VacationNameColumn}

var mergedKnown = func() map[string]bool {
	known := set(calendarColumns...)
	for c := range trafficColumns {
		known[c] = true
	}
	for _, c := range WeatherColumns {
		known[c] = true
	}
	return known
}()

// MergedColumns is the downstream schema for a dataset carrying modes.
func MergedColumns(modes []string) []string {
	cols := []string{timestampColumn, segmentIDColumn, streetNameColumn, uptimeColumn, v85Column}
	cols = append(cols, modes...)
	cols = append(cols, WeatherColumns...)
	return append(cols, calendarColumns...)
}

// MergedStore reads and writes the integrated dataset.
type MergedStore struct {
	path string
	loc  *time.Location
}

// NewMergedStore returns a store for <dir>/traffic_weather_calendar_integrated.csv.
func NewMergedStore(dir string, loc *time.Location) *MergedStore {
	return NewMergedStoreAt(filepath.Join(dir, MergedFile), loc)
}

// NewMergedStoreAt returns a store for an explicit file path.
func NewMergedStoreAt(path string, loc *time.Location) *MergedStore {
	return &MergedStore{path: path, loc: loc}
}

// Path returns the file location.
func (s *MergedStore) Path() string { return s.path }

// Save replaces the dataset. Timestamps are written in the store's zone.
func (s *MergedStore) Save(records []domain.MergedRecord) error {
	modes := mergedModes(records)
	out := make([][]string, len(records))
	for i := range records {
		r := &records[i]
		row := []string{
			formatTime(r.Timestamp.In(s.loc)),
			r.SegmentID,
			r.StreetName,
			formatFloat(r.Uptime),
			formatFloat(r.V85),
		}
		row = append(row, countCells(r.Counts, modes)...)
		row = append(row, weatherCells(r.Weather)...)
		row = append(row,
			strconv.FormatBool(r.Calendar.IsHoliday),
			strconv.FormatBool(r.Calendar.IsSchoolVacation),
			r.Calendar.HolidayName,
			r.Calendar.VacationName,
		)
		out[i] = row
	}
	if err := writeAtomic(s.path, MergedColumns(modes), out); err != nil {
		return fmt.Errorf("save merged dataset: %w", err)
	}
	return nil
}

// LoadRequired reads the dataset, failing with ErrMissingUpstreamFile when it
// is absent. A row whose weather cells are all empty loads with nil Weather.
func (s *MergedStore) LoadRequired() ([]domain.MergedRecord, error) {
	records, err := s.load()
	if err != nil {
		return nil, missing(s.path, err)
	}
	return records, nil
}

// Exists reports whether the dataset has been written.
func (s *MergedStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *MergedStore) load() ([]domain.MergedRecord, error) {
	required := append([]string{timestampColumn, segmentIDColumn}, WeatherColumns...)
	t, err := readTable(s.path, required...)
	if err != nil {
		return nil, err
	}
	modes := modeColumns(t.header, mergedKnown)

	records := make([]domain.MergedRecord, 0, len(t.rows))
	for i, row := range t.rows {
		line := i + 2
		o, err := t.observation(row, line, modes)
		if err != nil {
			return nil, err
		}
		ts := o.Timestamp.In(s.loc)

		rec := domain.MergedRecord{
			Timestamp:  ts,
			SegmentID:  o.SegmentID,
			StreetName: t.get(row, streetNameColumn),
			Uptime:     o.Uptime,
			V85:        o.V85,
			Counts:     o.Counts,
			Calendar: domain.CalendarFlag{
				Date:         domain.LocalDate(ts),
				HolidayName:  t.get(row, HolidayNameColumn),
				VacationName: t.get(row, VacationNameColumn),
			},
		}
		if rec.Calendar.IsHoliday, err = t.bool(row, IsHolidayColumn, line); err != nil {
			return nil, err
		}
		if rec.Calendar.IsSchoolVacation, err = t.bool(row, IsSchoolVacationColumn, line); err != nil {
			return nil, err
		}
		if slices.ContainsFunc(WeatherColumns, func(c string) bool { return t.get(row, c) != "" }) {
			w, err := t.weather(row, line)
			if err != nil {
				return nil, err
			}
			w.Timestamp = ts
			rec.Weather = w
		}
		records = append(records, rec)
	}
	return records, nil
}

func mergedModes(records []domain.MergedRecord) []string {
	obs := make([]domain.HourlyObservation, len(records))
	for i, r := range records {
		obs[i] = domain.HourlyObservation{Counts: r.Counts}
	}
	return domain.Modes(obs)
}
