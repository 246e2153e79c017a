// Package domain models hourly traffic counts from Telraam sensors, hourly
// historical weather from Open-Meteo, and the holiday/vacation calendar used to
// enrich them.
//
// # Data Sources
//
// Traffic counts come from the Telraam reports API
// (https://telraam-api.net/v1/reports/traffic). One request covers one segment
// (a physical sensor location) over a [start, end) window and returns one row
// per hour. Weather comes from the Open-Meteo archive API
// (https://archive-api.open-meteo.com/v1/archive) for a single location.
//
// # Telraam Conventions
//
// Timestamps:
//
//	"date" is the start of the hour in UTC, e.g. "2025-11-10T08:00:00.000Z".
//	Stored files may carry naive timestamps ("2025-11-10 08:00:00"); those are
//	always read as UTC.
//
// Counts:
//
//	pedestrian, bike, car, heavy are per-hour counts extrapolated by the
//	sensor's uptime, so they are fractional. A column that is absent or empty
//	is missing data, never zero.
//
//	uptime is the fraction of the hour the sensor was counting (0..1).
//	v85 is the 85th percentile car speed in km/h.
//
// # Open-Meteo Conventions
//
// The archive returns parallel arrays under "hourly". With a "timezone"
// parameter the "time" array holds naive local wall clocks ("2025-11-10T09:00"),
// so the autumn daylight-saving hour appears twice and the spring one not at
// all. [LocalizeSeries] turns such a series into instants. JSON nulls are kept
// as invalid [sql.NullFloat64] values so "no rain" and "no data" stay distinct.
//
// # Alignment
//
// All joins happen on instants expressed in one configured local zone
// (Europe/Brussels by default). Traffic is normalized with
// [NormalizeTrafficTime]; weather with [LocalizeSeries]. Calendar flags are
// joined on the local calendar date.
package domain
