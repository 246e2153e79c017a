package openmeteo

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Open-Meteo archive response types. Values are pointers so that JSON null
// stays distinguishable from zero.

type archiveResponse struct {
	Hourly hourly `json:"hourly"`
}

type hourly struct {
	Time             []string   `json:"time"`
	Temperature      []*float64 `json:"temperature_2m"`
	Precipitation    []*float64 `json:"precipitation"`
	Rain             []*float64 `json:"rain"`
	Snowfall         []*float64 `json:"snowfall"`
	CloudCover       []*float64 `json:"cloudcover"`
	WindSpeed        []*float64 `json:"windspeed_10m"`
	SunshineDuration []*float64 `json:"sunshine_duration"`
}

type errorResponse struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

func (h hourly) observations(loc *time.Location) ([]domain.WeatherObservation, error) {
	if h.Time == nil {
		return nil, fmt.Errorf("%w: weather response has no hourly.time", domain.ErrSchema)
	}
	columns := map[string][]*float64{
		"temperature_2m":    h.Temperature,
		"precipitation":     h.Precipitation,
		"rain":              h.Rain,
		"snowfall":          h.Snowfall,
		"cloudcover":        h.CloudCover,
		"windspeed_10m":     h.WindSpeed,
		"sunshine_duration": h.SunshineDuration,
	}
	for _, name := range HourlyVariables {
		if got := len(columns[name]); got != len(h.Time) {
			return nil, fmt.Errorf("%w: hourly.%s has %d values for %d timestamps", domain.ErrSchema, name, got, len(h.Time))
		}
	}

	walls := make([]time.Time, len(h.Time))
	for i, s := range h.Time {
		t, err := time.Parse("2006-01-02T15:04", s)
		if err != nil {
			return nil, fmt.Errorf("%w: hourly.time[%d] %q", domain.ErrSchema, i, s)
		}
		walls[i] = t
	}
	stamps := domain.LocalizeSeries(walls, loc)

	rows := make([]domain.WeatherObservation, len(stamps))
	for i, ts := range stamps {
		rows[i] = domain.WeatherObservation{
			Timestamp:         ts,
			TemperatureC:      nullable(h.Temperature[i]),
			PrecipitationMM:   nullable(h.Precipitation[i]),
			RainMM:            nullable(h.Rain[i]),
			SnowfallCM:        nullable(h.Snowfall[i]),
			CloudCoverPct:     nullable(h.CloudCover[i]),
			WindSpeedKMH:      nullable(h.WindSpeed[i]),
			SunshineDurationS: nullable(h.SunshineDuration[i]),
		}
	}
	return rows, nil
}

func nullable(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return domain.Float(*v)
}
