package parquet

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

func TestNewRow(t *testing.T) {
	ts := time.Date(2025, time.November, 11, 8, 0, 0, 0, time.UTC)
	row := NewRow(&domain.MergedRecord{
		Timestamp: ts,
		SegmentID: "9000009940",
		Counts:    map[string]float64{domain.ModeCar: 40, "car_lft": 20},
		Weather:   &domain.WeatherObservation{TemperatureC: domain.Float(5)},
		Calendar:  domain.CalendarFlag{IsHoliday: true, HolidayName: "Armistice Day"},
	})

	assert.Equal(t, ts.UnixMilli(), row.Timestamp)
	require.NotNil(t, row.Car)
	assert.InDelta(t, 40, *row.Car, 0)
	assert.Nil(t, row.Bike)
	assert.Nil(t, row.Uptime)
	require.NotNil(t, row.TemperatureC)
	assert.Nil(t, row.RainMM)
	assert.True(t, row.IsHoliday)
}

func TestExporter_Export(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exports", "merged.parquet")
	start := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

	records := []domain.MergedRecord{
		{
			Timestamp:  start,
			SegmentID:  "9000008372",
			StreetName: "Sintmartenslatemlaan",
			Uptime:     domain.Float(0.5),
			Counts:     map[string]float64{domain.ModeCar: 10, domain.ModeBike: 2},
			Weather:    &domain.WeatherObservation{TemperatureC: domain.Float(7.25), PrecipitationMM: domain.Float(0)},
		},
		{
			Timestamp:  start.Add(time.Hour),
			SegmentID:  "9000008372",
			StreetName: "Sintmartenslatemlaan",
			Counts:     map[string]float64{domain.ModeCar: 12},
		},
	}

	require.NoError(t, NewExporter(slog.New(slog.NewTextHandler(io.Discard, nil))).Export(path, records))

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	require.Equal(t, int64(2), pr.GetNumRows())
	rows := make([]Row, 2)
	require.NoError(t, pr.Read(&rows))

	assert.Equal(t, start.UnixMilli(), rows[0].Timestamp)
	assert.Equal(t, "Sintmartenslatemlaan", rows[0].StreetName)
	require.NotNil(t, rows[0].TemperatureC)
	assert.InDelta(t, 7.25, *rows[0].TemperatureC, 0)
	require.NotNil(t, rows[0].PrecipitationMM)
	assert.Zero(t, *rows[0].PrecipitationMM)
	assert.Nil(t, rows[1].TemperatureC)
	assert.Nil(t, rows[1].Bike)
}
