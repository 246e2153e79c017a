// Command validate checks a merged traffic, weather and calendar CSV for
// integrity: unique (segment, hour) keys, hour-aligned timestamps, plausible
// values, weather coverage and calendar flags that agree with the Belgian
// calendar. It exits 1 when a blocking check fails.
//
// Usage:
//
//	go run ./cmd/validate -file data/traffic_weather_calendar_integrated.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/calendar"
	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/integrate"
	"github.com/couchcryptid/traffic-data-etl/internal/store"
)

// maxErrorsShown caps the detail lines printed per phase.
const maxErrorsShown = 20

// phase tracks pass/fail for a validation phase. Advisory phases print a
// warning instead of failing the command.
type phase struct {
	name     string
	advisory bool
	errors   []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "data/"+store.MergedFile, "path to the merged CSV")
	tz := flag.String("tz", "Europe/Brussels", "timezone the merged timestamps are aligned to")
	flag.Parse()

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: invalid -tz: %v\n", err)
		os.Exit(1)
	}

	if code := run(os.Stdout, *file, loc); code != 0 {
		os.Exit(code)
	}
}

func run(out io.Writer, path string, loc *time.Location) int {
	fmt.Fprintln(out, "=== Merged Dataset Validation ===")
	fmt.Fprintln(out)

	records, err := store.NewMergedStoreAt(path, loc).LoadRequired()
	if err != nil {
		fmt.Fprintf(out, "FATAL: load merged CSV: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateUniqueness(records),
		validateHourAlignment(records),
		validateRanges(records),
		validateWeatherCoverage(records),
		validateCalendar(records, calendar.BelgianDefault()),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		switch {
		case p.passed():
		case p.advisory:
			status = fmt.Sprintf("\033[33mWARN (%d)\033[0m", len(p.errors))
		default:
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	report := integrate.Validate(records)
	fmt.Fprintln(out)
	printReport(out, report)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i == maxErrorsShown {
				fmt.Fprintf(out, "  ... and %d more\n", len(p.errors)-maxErrorsShown)
				break
			}
			fmt.Fprintf(out, "  %s\n", e)
		}
	}

	fmt.Fprintln(out)
	if !allPassed {
		fmt.Fprintln(out, "RESULT: FAIL")
		return 1
	}
	fmt.Fprintln(out, "RESULT: PASS")
	return 0
}

func printReport(out io.Writer, r integrate.Report) {
	fmt.Fprintf(out, "Records:            %d across %d segments\n", r.Total, r.Segments)
	if r.Total > 0 {
		fmt.Fprintf(out, "Range:              %s .. %s\n", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "Missing weather:    %d\n", r.MissingWeather)
	fmt.Fprintf(out, "Missing traffic:    %d\n", r.MissingTraffic)
	fmt.Fprintf(out, "Duplicates:         %d\n", r.Duplicates)
	if r.TemperatureMin.Valid {
		fmt.Fprintf(out, "Temperature:        %.1f .. %.1f C\n", r.TemperatureMin.Float64, r.TemperatureMax.Float64)
	}
	fmt.Fprintf(out, "Precipitation hrs:  %d\n", r.PrecipitationHours)
	fmt.Fprintf(out, "Holiday records:    %d\n", r.HolidayRecords)
	fmt.Fprintf(out, "Vacation records:   %d\n", r.VacationRecords)
}

// ── Phases ──

func validateUniqueness(records []domain.MergedRecord) *phase {
	p := &phase{name: "Phase 1: Unique (segment, hour) keys"}
	seen := make(map[domain.Key]int, len(records))
	for i := range records {
		key := records[i].Key()
		if first, ok := seen[key]; ok {
			p.errorf("row %d: segment %s at %s duplicates row %d",
				i+1, records[i].SegmentID, records[i].Timestamp.Format(time.RFC3339), first+1)
			continue
		}
		seen[key] = i
	}
	return p
}

func validateHourAlignment(records []domain.MergedRecord) *phase {
	p := &phase{name: "Phase 2: Hour-aligned timestamps"}
	for i := range records {
		if !domain.HourAligned(records[i].Timestamp) {
			p.errorf("row %d: %s is not on the hour", i+1, records[i].Timestamp.Format(time.RFC3339))
		}
	}
	return p
}

func validateRanges(records []domain.MergedRecord) *phase {
	p := &phase{name: "Phase 3: Plausible values"}
	for i := range records {
		r := &records[i]
		if r.SegmentID == "" {
			p.errorf("row %d: empty segment_id", i+1)
		}
		if r.Uptime.Valid && (r.Uptime.Float64 < 0 || r.Uptime.Float64 > 1) {
			p.errorf("row %d: uptime %.3f outside [0, 1]", i+1, r.Uptime.Float64)
		}
		for mode, v := range r.Counts {
			if v < 0 {
				p.errorf("row %d: negative %s count %.1f", i+1, mode, v)
			}
		}
		if r.Weather == nil {
			continue
		}
		if t := r.Weather.TemperatureC; t.Valid && (t.Float64 < -40 || t.Float64 > 50) {
			p.errorf("row %d: temperature %.1f C is implausible", i+1, t.Float64)
		}
		if c := r.Weather.CloudCoverPct; c.Valid && (c.Float64 < 0 || c.Float64 > 100) {
			p.errorf("row %d: cloud cover %.1f%% outside [0, 100]", i+1, c.Float64)
		}
	}
	return p
}

func validateWeatherCoverage(records []domain.MergedRecord) *phase {
	p := &phase{name: "Phase 4: Weather coverage", advisory: true}
	for i := range records {
		w := records[i].Weather
		if w == nil || !w.TemperatureC.Valid {
			p.errorf("row %d: segment %s at %s has no weather",
				i+1, records[i].SegmentID, records[i].Timestamp.Format(time.RFC3339))
		}
	}
	return p
}

func validateCalendar(records []domain.MergedRecord, cal *calendar.Calendar) *phase {
	p := &phase{name: "Phase 5: Calendar flags", advisory: true}
	for i := range records {
		got := records[i].Calendar
		want := cal.FlagsFor(records[i].Timestamp)
		if got.IsHoliday != want.IsHoliday || got.IsSchoolVacation != want.IsSchoolVacation {
			p.errorf("row %d: %s flags holiday=%t vacation=%t, calendar says holiday=%t vacation=%t",
				i+1, records[i].Timestamp.Format(time.DateOnly),
				got.IsHoliday, got.IsSchoolVacation, want.IsHoliday, want.IsSchoolVacation)
		}
	}
	return p
}
