// Package parquet exports the merged dataset as a flat Parquet file for
// columnar consumers.
package parquet

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	goparquet "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Row is one merged record in Parquet form. Extra sensor modes beyond the
// core four are not exported.
type Row struct {
	Timestamp         int64    `parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	SegmentID         string   `parquet:"name=segment_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	StreetName        string   `parquet:"name=street_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	Uptime            *float64 `parquet:"name=uptime,type=DOUBLE,repetitiontype=OPTIONAL"`
	V85               *float64 `parquet:"name=v85,type=DOUBLE,repetitiontype=OPTIONAL"`
	Pedestrian        *float64 `parquet:"name=pedestrian,type=DOUBLE,repetitiontype=OPTIONAL"`
	Bike              *float64 `parquet:"name=bike,type=DOUBLE,repetitiontype=OPTIONAL"`
	Car               *float64 `parquet:"name=car,type=DOUBLE,repetitiontype=OPTIONAL"`
	Heavy             *float64 `parquet:"name=heavy,type=DOUBLE,repetitiontype=OPTIONAL"`
	TemperatureC      *float64 `parquet:"name=temperature_c,type=DOUBLE,repetitiontype=OPTIONAL"`
	PrecipitationMM   *float64 `parquet:"name=precipitation_mm,type=DOUBLE,repetitiontype=OPTIONAL"`
	RainMM            *float64 `parquet:"name=rain_mm,type=DOUBLE,repetitiontype=OPTIONAL"`
	SnowfallCM        *float64 `parquet:"name=snowfall_cm,type=DOUBLE,repetitiontype=OPTIONAL"`
	CloudCoverPct     *float64 `parquet:"name=cloud_cover_pct,type=DOUBLE,repetitiontype=OPTIONAL"`
	WindSpeedKMH      *float64 `parquet:"name=wind_speed_kmh,type=DOUBLE,repetitiontype=OPTIONAL"`
	SunshineDurationS *float64 `parquet:"name=sunshine_duration_s,type=DOUBLE,repetitiontype=OPTIONAL"`
	IsHoliday         bool     `parquet:"name=is_holiday,type=BOOLEAN"`
	IsSchoolVacation  bool     `parquet:"name=is_school_vacation,type=BOOLEAN"`
	HolidayName       string   `parquet:"name=holiday_name,type=BYTE_ARRAY,convertedtype=UTF8"`
	VacationName      string   `parquet:"name=vacation_name,type=BYTE_ARRAY,convertedtype=UTF8"`
}

// Exporter writes merged records to Parquet files.
type Exporter struct {
	logger *slog.Logger
}

// NewExporter creates an Exporter.
func NewExporter(logger *slog.Logger) *Exporter {
	return &Exporter{logger: logger}
}

// Export replaces path with records encoded as SNAPPY-compressed Parquet.
func (e *Exporter) Export(path string, records []domain.MergedRecord) error {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(Row), 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = goparquet.CompressionCodec_SNAPPY

	for i := range records {
		if err := pw.Write(NewRow(&records[i])); err != nil {
			return fmt.Errorf("write parquet row %d: %w", i, err)
		}
	}
	if err := writeStop(pw); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write parquet file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename parquet file: %w", err)
	}
	e.logger.Info("parquet export written", "path", path, "records", len(records), "bytes", buf.Len())
	return nil
}

// writeStop flushes the writer. WriteStop can panic on malformed rows, so the
// panic is turned into an error.
func writeStop(pw *writer.ParquetWriter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stop parquet writer: panic: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("stop parquet writer: %w", err)
	}
	return nil
}

// NewRow flattens a merged record.
func NewRow(r *domain.MergedRecord) Row {
	row := Row{
		Timestamp:        r.Timestamp.UnixMilli(),
		SegmentID:        r.SegmentID,
		StreetName:       r.StreetName,
		Uptime:           optional(r.Uptime.Float64, r.Uptime.Valid),
		V85:              optional(r.V85.Float64, r.V85.Valid),
		Pedestrian:       count(r.Counts, domain.ModePedestrian),
		Bike:             count(r.Counts, domain.ModeBike),
		Car:              count(r.Counts, domain.ModeCar),
		Heavy:            count(r.Counts, domain.ModeHeavy),
		IsHoliday:        r.Calendar.IsHoliday,
		IsSchoolVacation: r.Calendar.IsSchoolVacation,
		HolidayName:      r.Calendar.HolidayName,
		VacationName:     r.Calendar.VacationName,
	}
	if w := r.Weather; w != nil {
		row.TemperatureC = optional(w.TemperatureC.Float64, w.TemperatureC.Valid)
		row.PrecipitationMM = optional(w.PrecipitationMM.Float64, w.PrecipitationMM.Valid)
		row.RainMM = optional(w.RainMM.Float64, w.RainMM.Valid)
		row.SnowfallCM = optional(w.SnowfallCM.Float64, w.SnowfallCM.Valid)
		row.CloudCoverPct = optional(w.CloudCoverPct.Float64, w.CloudCoverPct.Valid)
		row.WindSpeedKMH = optional(w.WindSpeedKMH.Float64, w.WindSpeedKMH.Valid)
		row.SunshineDurationS = optional(w.SunshineDurationS.Float64, w.SunshineDurationS.Valid)
	}
	return row
}

func count(counts map[string]float64, mode string) *float64 {
	v, ok := counts[mode]
	return optional(v, ok)
}

func optional(v float64, valid bool) *float64 {
	if !valid {
		return nil
	}
	return &v
}
