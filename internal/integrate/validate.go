package integrate

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Report summarizes the quality of a merged dataset.
type Report struct {
	Total              int
	Start, End         time.Time
	Segments           int
	MissingWeather     int
	MissingTraffic     int
	Duplicates         int
	TemperatureMin     sql.NullFloat64
	TemperatureMax     sql.NullFloat64
	PrecipitationHours int
	HolidayRecords     int
	VacationRecords    int
	Warnings           []string
}

// OK reports whether validation raised no warnings.
func (r Report) OK() bool {
	return len(r.Warnings) == 0
}

// LogValue implements slog.LogValuer.
func (r Report) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("total", r.Total),
		slog.Int("segments", r.Segments),
		slog.Int("missing_weather", r.MissingWeather),
		slog.Int("missing_traffic", r.MissingTraffic),
		slog.Int("duplicates", r.Duplicates),
		slog.Int("precipitation_hours", r.PrecipitationHours),
		slog.Int("holiday_records", r.HolidayRecords),
		slog.Int("vacation_records", r.VacationRecords),
	}
	if r.Total > 0 {
		attrs = append(attrs,
			slog.Time("start", r.Start),
			slog.Time("end", r.End))
	}
	if r.TemperatureMin.Valid {
		attrs = append(attrs,
			slog.Float64("temperature_min", r.TemperatureMin.Float64),
			slog.Float64("temperature_max", r.TemperatureMax.Float64))
	}
	return slog.GroupValue(attrs...)
}

// Validate inspects records without modifying them. A record is missing
// weather when it has no temperature and missing traffic when it has no car
// count. Duplicates counts records beyond the first per (segment, instant).
func Validate(records []domain.MergedRecord) Report {
	r := Report{Total: len(records)}
	seen := make(map[domain.Key]bool, len(records))
	segments := make(map[string]bool)

	for i := range records {
		rec := &records[i]
		if i == 0 || rec.Timestamp.Before(r.Start) {
			r.Start = rec.Timestamp
		}
		if i == 0 || rec.Timestamp.After(r.End) {
			r.End = rec.Timestamp
		}
		segments[rec.SegmentID] = true

		if seen[rec.Key()] {
			r.Duplicates++
		}
		seen[rec.Key()] = true

		if _, ok := rec.Counts[domain.ModeCar]; !ok {
			r.MissingTraffic++
		}

		if rec.Weather == nil || !rec.Weather.TemperatureC.Valid {
			r.MissingWeather++
		} else {
			temp := rec.Weather.TemperatureC.Float64
			if !r.TemperatureMin.Valid || temp < r.TemperatureMin.Float64 {
				r.TemperatureMin = domain.Float(temp)
			}
			if !r.TemperatureMax.Valid || temp > r.TemperatureMax.Float64 {
				r.TemperatureMax = domain.Float(temp)
			}
		}
		if rec.Weather != nil && rec.Weather.PrecipitationMM.Valid && rec.Weather.PrecipitationMM.Float64 > 0 {
			r.PrecipitationHours++
		}

		if rec.Calendar.IsHoliday {
			r.HolidayRecords++
		}
		if rec.Calendar.IsSchoolVacation {
			r.VacationRecords++
		}
	}
	r.Segments = len(segments)

	if r.Duplicates > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d duplicate (segment, timestamp) records", r.Duplicates))
	}
	if r.MissingWeather > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d records without weather data", r.MissingWeather))
	}
	return r
}
