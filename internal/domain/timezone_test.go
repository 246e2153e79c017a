package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brussels(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Brussels")
	require.NoError(t, err)
	return loc
}

// naiveWall drops the zone of t, keeping its wall clock, the way Open-Meteo
// reports local time.
func naiveWall(t time.Time) time.Time {
	y, m, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, m, d, h, mi, s, 0, time.UTC)
}

func TestNormalization_RoundTripAcrossDST(t *testing.T) {
	loc := brussels(t)

	days := map[string]time.Time{
		"spring forward": time.Date(2025, 3, 29, 12, 0, 0, 0, time.UTC),
		"fall back":      time.Date(2025, 10, 25, 12, 0, 0, 0, time.UTC),
		"ordinary":       time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC),
	}

	for name, start := range days {
		t.Run(name, func(t *testing.T) {
			var instants, walls []time.Time
			for h := 0; h < 48; h++ {
				instant := start.Add(time.Duration(h) * time.Hour)
				instants = append(instants, instant)
				walls = append(walls, naiveWall(instant.In(loc)))
			}

			localized := LocalizeSeries(walls, loc)

			for i, instant := range instants {
				traffic := NormalizeTrafficTime(naiveWall(instant), loc)
				assert.True(t, traffic.Equal(localized[i]),
					"hour %d: traffic %s != weather %s", i, traffic, localized[i])
				assert.Equal(t, traffic, localized[i].In(loc))
			}
		})
	}
}

func TestLocalizeNaive(t *testing.T) {
	loc := brussels(t)

	t.Run("winter offset", func(t *testing.T) {
		got := LocalizeNaive(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC), loc, false)
		assert.Equal(t, time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), got.UTC())
	})

	t.Run("summer offset", func(t *testing.T) {
		got := LocalizeNaive(time.Date(2025, 7, 15, 9, 0, 0, 0, time.UTC), loc, false)
		assert.Equal(t, time.Date(2025, 7, 15, 7, 0, 0, 0, time.UTC), got.UTC())
	})

	t.Run("gap shifts forward", func(t *testing.T) {
		got := LocalizeNaive(time.Date(2025, 3, 30, 2, 30, 0, 0, time.UTC), loc, false)
		assert.Equal(t, time.Date(2025, 3, 30, 1, 30, 0, 0, time.UTC), got.UTC())
		assert.Equal(t, 3, got.Hour())
	})

	t.Run("overlap picks earlier or later", func(t *testing.T) {
		wall := time.Date(2025, 10, 26, 2, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2025, 10, 26, 0, 0, 0, 0, time.UTC), LocalizeNaive(wall, loc, false).UTC())
		assert.Equal(t, time.Date(2025, 10, 26, 1, 0, 0, 0, time.UTC), LocalizeNaive(wall, loc, true).UTC())
	})
}

func TestParseTimestamp(t *testing.T) {
	loc := brussels(t)

	tests := []struct {
		name  string
		input string
		naive *time.Location
		want  time.Time
	}{
		{"telraam RFC3339", "2025-11-10T08:00:00.000Z", time.UTC, time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)},
		{"pandas UTC", "2025-11-10 08:00:00+00:00", time.UTC, time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)},
		{"naive as UTC", "2025-11-10 08:00:00", time.UTC, time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)},
		{"naive as local", "2025-11-10T09:00", loc, time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)},
		{"offset ignores naive zone", "2025-11-10T09:00:00+01:00", time.UTC, time.Date(2025, 11, 10, 8, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input, tt.naive)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseTimestamp("yesterday", time.UTC)
		require.ErrorIs(t, err, ErrSchema)
	})
}

func TestLocalDate(t *testing.T) {
	loc := brussels(t)
	// 23:30Z on the 24th is already the 25th in Brussels.
	ts := time.Date(2025, 12, 24, 23, 30, 0, 0, time.UTC).In(loc)
	assert.Equal(t, time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC), LocalDate(ts))
}
