package store

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Weather columns, shared by the weather file and the merged dataset.
const (
	TemperatureColumn      = "temperature_c"
	PrecipitationColumn    = "precipitation_mm"
	RainColumn             = "rain_mm"
	SnowfallColumn         = "snowfall_cm"
	CloudCoverColumn       = "cloud_cover_pct"
	WindSpeedColumn        = "wind_speed_kmh"
	SunshineDurationColumn = "sunshine_duration_s"
)

// WeatherColumns is the fixed order of weather variables in every file.
var WeatherColumns = []string{
	TemperatureColumn,
	PrecipitationColumn,
	RainColumn,
	SnowfallColumn,
	CloudCoverColumn,
	WindSpeedColumn,
	SunshineDurationColumn,
}

// WeatherStore keeps the hourly weather for one place.
type WeatherStore struct {
	path string
	loc  *time.Location
}

// NewWeatherStore returns a store for <dir>/weather_<place>.csv. Loaded
// timestamps are expressed in loc.
func NewWeatherStore(dir, place string, loc *time.Location) *WeatherStore {
	return &WeatherStore{path: filepath.Join(dir, "weather_"+place+".csv"), loc: loc}
}

// Path returns the file location.
func (s *WeatherStore) Path() string { return s.path }

// Save replaces the weather file.
func (s *WeatherStore) Save(rows []domain.WeatherObservation) error {
	header := append([]string{timestampColumn}, WeatherColumns...)
	out := make([][]string, len(rows))
	for i, w := range rows {
		out[i] = append([]string{formatTime(w.Timestamp)}, weatherCells(&w)...)
	}
	if err := writeAtomic(s.path, header, out); err != nil {
		return fmt.Errorf("save weather: %w", err)
	}
	return nil
}

// Load reads the weather file; a missing file yields no rows.
func (s *WeatherStore) Load() ([]domain.WeatherObservation, error) {
	rows, err := s.load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return rows, err
}

// LoadRequired reads the weather file, failing with ErrMissingUpstreamFile
// when it is absent.
func (s *WeatherStore) LoadRequired() ([]domain.WeatherObservation, error) {
	rows, err := s.load()
	if err != nil {
		return nil, missing(s.path, err)
	}
	return rows, nil
}

func (s *WeatherStore) load() ([]domain.WeatherObservation, error) {
	t, err := readTable(s.path, append([]string{timestampColumn}, WeatherColumns...)...)
	if err != nil {
		return nil, err
	}
	rows := make([]domain.WeatherObservation, 0, len(t.rows))
	for i, row := range t.rows {
		ts, err := t.timestamp(row, i+2, s.loc)
		if err != nil {
			return nil, err
		}
		w, err := t.weather(row, i+2)
		if err != nil {
			return nil, err
		}
		w.Timestamp = ts.In(s.loc)
		rows = append(rows, *w)
	}
	return rows, nil
}

// sqlNull binds a column to the field it fills.
type sqlNull struct {
	column string
	dst    *sql.NullFloat64
}

func weatherCells(w *domain.WeatherObservation) []string {
	if w == nil {
		return make([]string, len(WeatherColumns))
	}
	return []string{
		formatFloat(w.TemperatureC),
		formatFloat(w.PrecipitationMM),
		formatFloat(w.RainMM),
		formatFloat(w.SnowfallCM),
		formatFloat(w.CloudCoverPct),
		formatFloat(w.WindSpeedKMH),
		formatFloat(w.SunshineDurationS),
	}
}

func (t *table) weather(row []string, line int) (*domain.WeatherObservation, error) {
	var w domain.WeatherObservation
	fields := []*sqlNull{
		{TemperatureColumn, &w.TemperatureC},
		{PrecipitationColumn, &w.PrecipitationMM},
		{RainColumn, &w.RainMM},
		{SnowfallColumn, &w.SnowfallCM},
		{CloudCoverColumn, &w.CloudCoverPct},
		{WindSpeedColumn, &w.WindSpeedKMH},
		{SunshineDurationColumn, &w.SunshineDurationS},
	}
	for _, f := range fields {
		v, err := t.float(row, f.column, line)
		if err != nil {
			return nil, err
		}
		*f.dst = v
	}
	return &w, nil
}
