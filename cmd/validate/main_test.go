package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/traffic-data-etl/internal/calendar"
	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/store"
)

func brussels(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	return loc
}

func record(seg string, ts time.Time, withWeather bool) domain.MergedRecord {
	r := domain.MergedRecord{
		Timestamp:  ts,
		SegmentID:  seg,
		StreetName: "Street " + seg,
		Uptime:     domain.Float(0.8),
		Counts:     map[string]float64{domain.ModeCar: 42},
		Calendar:   calendar.BelgianDefault().FlagsFor(ts),
	}
	if withWeather {
		r.Weather = &domain.WeatherObservation{Timestamp: ts, TemperatureC: domain.Float(6.5)}
	}
	return r
}

func writeMerged(t *testing.T, loc *time.Location, records ...domain.MergedRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), store.MergedFile)
	require.NoError(t, store.NewMergedStoreAt(path, loc).Save(records))
	return path
}

func TestRun_Pass(t *testing.T) {
	loc := brussels(t)
	ts := time.Date(2025, time.December, 25, 10, 0, 0, 0, loc)
	path := writeMerged(t, loc, record("1", ts, true), record("2", ts, true))

	var out bytes.Buffer
	assert.Equal(t, 0, run(&out, path, loc))
	assert.Contains(t, out.String(), "RESULT: PASS")
	assert.Contains(t, out.String(), "Holiday records:    2")
}

func TestRun_MissingWeatherWarnsOnly(t *testing.T) {
	loc := brussels(t)
	ts := time.Date(2025, time.November, 3, 9, 0, 0, 0, loc)
	path := writeMerged(t, loc, record("1", ts, false))

	var out bytes.Buffer
	assert.Equal(t, 0, run(&out, path, loc))
	assert.Contains(t, out.String(), "WARN (1)")
	assert.Contains(t, out.String(), "has no weather")
}

func TestRun_DuplicatesFail(t *testing.T) {
	loc := brussels(t)
	ts := time.Date(2025, time.November, 3, 9, 0, 0, 0, loc)
	path := writeMerged(t, loc, record("1", ts, true), record("1", ts, true))

	var out bytes.Buffer
	assert.Equal(t, 1, run(&out, path, loc))
	assert.Contains(t, out.String(), "duplicates row 1")
	assert.Contains(t, out.String(), "RESULT: FAIL")
}

func TestRun_MissingFile(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, run(&out, filepath.Join(t.TempDir(), "absent.csv"), time.UTC))
	assert.Contains(t, out.String(), "FATAL")
}

func TestValidateCalendar_DetectsMismatch(t *testing.T) {
	ts := time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC)
	rec := record("1", ts, true)
	rec.Calendar.IsSchoolVacation = false

	p := validateCalendar([]domain.MergedRecord{rec}, calendar.BelgianDefault())
	require.Len(t, p.errors, 1)
	assert.Contains(t, p.errors[0], "2025-07-15")
}
