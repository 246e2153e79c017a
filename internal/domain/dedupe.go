package domain

import (
	"slices"
	"strings"
	"time"
)

// MergeObservations unions stored and freshly fetched observations for one
// segment. Rows are keyed by exact instant; when both sides carry the same
// hour the fetched row wins (keep-last). The result is sorted ascending and
// added counts the fetched hours that were not stored before.
func MergeObservations(existing, fetched []HourlyObservation) (merged []HourlyObservation, added int) {
	index := make(map[int64]int, len(existing)+len(fetched))
	merged = make([]HourlyObservation, 0, len(existing)+len(fetched))

	put := func(o HourlyObservation) bool {
		key := o.Timestamp.UnixNano()
		if i, ok := index[key]; ok {
			merged[i] = o
			return false
		}
		index[key] = len(merged)
		merged = append(merged, o)
		return true
	}

	for _, o := range existing {
		put(o)
	}
	for _, o := range fetched {
		if put(o) {
			added++
		}
	}

	SortObservations(merged)
	return merged, added
}

// SortObservations orders observations by timestamp, then segment id.
func SortObservations(obs []HourlyObservation) {
	slices.SortStableFunc(obs, func(a, b HourlyObservation) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.SegmentID, b.SegmentID)
	})
}

// SortSegmentObservations orders tagged observations by timestamp, then segment id.
func SortSegmentObservations(obs []SegmentObservation) {
	slices.SortStableFunc(obs, func(a, b SegmentObservation) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.SegmentID, b.SegmentID)
	})
}

// SortMerged orders merged records by timestamp, then segment id.
func SortMerged(records []MergedRecord) {
	slices.SortStableFunc(records, func(a, b MergedRecord) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.SegmentID, b.SegmentID)
	})
}

// HourAligned reports whether t sits exactly on an hour boundary.
func HourAligned(t time.Time) bool {
	return t.Equal(t.Truncate(time.Hour))
}
