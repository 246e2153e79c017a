package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

// Layouts that carry an explicit UTC offset.
var offsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05-07:00",
}

// Layouts without an offset; the caller decides which zone they are in.
var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseTimestamp parses s, interpreting a timestamp without an offset as a
// wall clock in naiveLoc.
func ParseTimestamp(s string, naiveLoc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range offsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return LocalizeNaive(t, naiveLoc, false), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrSchema, s)
}

// NormalizeTrafficTime expresses a traffic timestamp in loc. Naive traffic
// timestamps must have been parsed as UTC (see ParseTimestamp).
func NormalizeTrafficTime(t time.Time, loc *time.Location) time.Time {
	return t.In(loc)
}

// LocalizeNaive interprets the wall clock of wall (its own location is
// ignored) as a time in loc.
//
// In a daylight-saving gap the wall clock does not exist; the result is
// shifted forward by the gap. In an overlap the wall clock occurs twice; the
// earlier instant is returned unless preferLater is set.
func LocalizeNaive(wall time.Time, loc *time.Location, preferLater bool) time.Time {
	y, mo, d := wall.Date()
	h, mi, s := wall.Clock()
	asUTC := time.Date(y, mo, d, h, mi, s, wall.Nanosecond(), time.UTC)

	_, offBefore := asUTC.Add(-24 * time.Hour).In(loc).Zone()
	_, offAfter := asUTC.Add(24 * time.Hour).In(loc).Zone()

	var candidates []time.Time
	for _, off := range []int{offBefore, offAfter} {
		c := asUTC.Add(-time.Duration(off) * time.Second).In(loc)
		if sameWallClock(c, asUTC) && !slices.ContainsFunc(candidates, c.Equal) {
			candidates = append(candidates, c)
		}
	}

	switch len(candidates) {
	case 0:
		return asUTC.Add(-time.Duration(offBefore) * time.Second).In(loc)
	case 1:
		return candidates[0]
	}
	slices.SortFunc(candidates, func(a, b time.Time) int { return a.Compare(b) })
	if preferLater {
		return candidates[len(candidates)-1]
	}
	return candidates[0]
}

// LocalizeSeries localizes an ascending series of wall clocks in loc. The
// repeated hour at the end of daylight saving time is resolved by keeping the
// series strictly increasing: its second occurrence maps to the later instant.
func LocalizeSeries(walls []time.Time, loc *time.Location) []time.Time {
	out := make([]time.Time, len(walls))
	for i, w := range walls {
		t := LocalizeNaive(w, loc, false)
		if i > 0 && !t.After(out[i-1]) {
			if later := LocalizeNaive(w, loc, true); later.After(out[i-1]) {
				t = later
			}
		}
		out[i] = t
	}
	return out
}

// LocalDate returns the calendar date of t, read in t's own location, as
// midnight UTC so it can be used as a day key.
func LocalDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sameWallClock(t, wall time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := wall.Date()
	h1, mi1, s1 := t.Clock()
	h2, mi2, s2 := wall.Clock()
	return y1 == y2 && m1 == m2 && d1 == d2 && h1 == h2 && mi1 == mi2 && s1 == s2
}
