package domain

import (
	"database/sql"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Transport modes reported per hour by Telraam. The sensor may return more
// columns (directional splits, speed histograms); those are kept as extra modes.
const (
	ModePedestrian = "pedestrian"
	ModeBike       = "bike"
	ModeCar        = "car"
	ModeHeavy      = "heavy"
)

// CoreModes is the stable column order for the modes every segment reports.
var CoreModes = []string{ModePedestrian, ModeBike, ModeCar, ModeHeavy}

// Segment is a physical sensor location.
type Segment struct {
	ID   string `mapstructure:"id" json:"id"`
	Name string `mapstructure:"name" json:"name"`
}

// Label returns the human-readable street name, e.g.
// "graaf_karel_de_goedelaan" -> "Graaf Karel De Goedelaan".
func (s Segment) Label() string {
	words := strings.Fields(strings.ReplaceAll(s.Name, "_", " "))
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

// HourlyObservation is one per-hour report for one segment.
type HourlyObservation struct {
	SegmentID string
	Timestamp time.Time
	Uptime    sql.NullFloat64
	V85       sql.NullFloat64
	// Counts maps transport mode to the hour's count. An absent key is missing data.
	Counts map[string]float64
}

// Count returns the count for mode and whether it was reported.
func (o HourlyObservation) Count(mode string) (float64, bool) {
	v, ok := o.Counts[mode]
	return v, ok
}

// Modes returns the core modes followed by any extra modes in sorted order.
func Modes(obs []HourlyObservation) []string {
	extra := make(map[string]struct{})
	for _, o := range obs {
		for m := range o.Counts {
			if !slices.Contains(CoreModes, m) {
				extra[m] = struct{}{}
			}
		}
	}
	return append(slices.Clone(CoreModes), slices.Sorted(maps.Keys(extra))...)
}

// SegmentObservation is an observation tagged with its segment's street label,
// as produced by combining the per-segment stores.
type SegmentObservation struct {
	HourlyObservation
	StreetName string
}

// WeatherObservation is one hour of historical weather for the configured place.
type WeatherObservation struct {
	Timestamp         time.Time
	TemperatureC      sql.NullFloat64
	PrecipitationMM   sql.NullFloat64
	RainMM            sql.NullFloat64
	SnowfallCM        sql.NullFloat64
	CloudCoverPct     sql.NullFloat64
	WindSpeedKMH      sql.NullFloat64
	SunshineDurationS sql.NullFloat64
}

// CalendarFlag describes one calendar day.
type CalendarFlag struct {
	Date             time.Time
	IsHoliday        bool
	IsSchoolVacation bool
	HolidayName      string
	VacationName     string
}

// Label joins the holiday and vacation names, empty for an ordinary day.
func (f CalendarFlag) Label() string {
	switch {
	case f.HolidayName != "" && f.VacationName != "":
		return f.HolidayName + " / " + f.VacationName
	case f.HolidayName != "":
		return f.HolidayName
	default:
		return f.VacationName
	}
}

// MergedRecord is one row of the integrated dataset: traffic for one segment
// and hour, the weather for that hour, and the day's calendar flags.
type MergedRecord struct {
	Timestamp  time.Time
	SegmentID  string
	StreetName string
	Uptime     sql.NullFloat64
	V85        sql.NullFloat64
	Counts     map[string]float64
	// Weather is nil when no weather row matched the hour.
	Weather  *WeatherObservation
	Calendar CalendarFlag
}

// Key identifies a merged record.
type Key struct {
	SegmentID string
	UnixNano  int64
}

// Key returns the record's (segment, instant) identity.
func (r MergedRecord) Key() Key {
	return Key{SegmentID: r.SegmentID, UnixNano: r.Timestamp.UnixNano()}
}

// Float returns a valid NullFloat64.
func Float(v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: true}
}
