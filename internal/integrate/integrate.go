// Package integrate joins combined traffic with hourly weather and calendar
// flags, and checks the result for data quality problems.
package integrate

import (
	"maps"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// CalendarLookup returns the flags for the local date of t.
type CalendarLookup interface {
	FlagsFor(t time.Time) domain.CalendarFlag
}

// JoinStats summarizes how the inputs lined up.
type JoinStats struct {
	TrafficRows           int
	WeatherRows           int
	WeatherMatched        int
	DuplicateWeatherHours int
}

// Integrate left-joins traffic with weather on the exact instant and with the
// calendar on the local date. Every traffic row yields exactly one record;
// rows without a weather match carry nil Weather. All timestamps are expressed
// in loc and the output is ordered by timestamp then segment id. When weather
// repeats an hour the last row wins and the repeat is counted in JoinStats.
func Integrate(traffic []domain.SegmentObservation, weather []domain.WeatherObservation, cal CalendarLookup, loc *time.Location) ([]domain.MergedRecord, JoinStats) {
	stats := JoinStats{TrafficRows: len(traffic), WeatherRows: len(weather)}

	byInstant := make(map[int64]*domain.WeatherObservation, len(weather))
	for i := range weather {
		w := weather[i]
		w.Timestamp = w.Timestamp.In(loc)
		key := w.Timestamp.UnixNano()
		if _, dup := byInstant[key]; dup {
			stats.DuplicateWeatherHours++
		}
		byInstant[key] = &w
	}

	records := make([]domain.MergedRecord, 0, len(traffic))
	for _, t := range traffic {
		ts := domain.NormalizeTrafficTime(t.Timestamp, loc)
		rec := domain.MergedRecord{
			Timestamp:  ts,
			SegmentID:  t.SegmentID,
			StreetName: t.StreetName,
			Uptime:     t.Uptime,
			V85:        t.V85,
			Counts:     maps.Clone(t.Counts),
			Calendar:   domain.CalendarFlag{Date: domain.LocalDate(ts)},
		}
		if w, ok := byInstant[ts.UnixNano()]; ok {
			cp := *w
			rec.Weather = &cp
			stats.WeatherMatched++
		}
		if cal != nil {
			rec.Calendar = cal.FlagsFor(ts)
		}
		records = append(records, rec)
	}

	domain.SortMerged(records)
	return records, stats
}

// WeatherRange returns the first and last local dates covered by traffic, as
// instants in loc. ok is false when traffic is empty.
func WeatherRange(traffic []domain.SegmentObservation, loc *time.Location) (start, end time.Time, ok bool) {
	for i, t := range traffic {
		ts := t.Timestamp.In(loc)
		if i == 0 || ts.Before(start) {
			start = ts
		}
		if i == 0 || ts.After(end) {
			end = ts
		}
	}
	return start, end, len(traffic) > 0
}
