package domain

import (
	"fmt"
	"time"
)

// DefaultProjectEpoch is where a segment's history starts when nothing is stored.
var DefaultProjectEpoch = time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

// FetchWindow is the [Start, End) range requested from the sensor API.
type FetchWindow struct {
	SegmentID string
	Start     time.Time
	End       time.Time
}

// Empty reports whether there is nothing new to fetch.
func (w FetchWindow) Empty() bool {
	return !w.End.After(w.Start)
}

// Hours is the number of whole hours the window covers, 0 when empty.
func (w FetchWindow) Hours() int {
	if w.Empty() {
		return 0
	}
	return int(w.End.Sub(w.Start) / time.Hour)
}

func (w FetchWindow) String() string {
	return fmt.Sprintf("%s [%s, %s)", w.SegmentID,
		w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// NextWindow decides what to request for a segment given what is already
// stored. With nothing stored it starts at epoch; otherwise one hour after the
// latest stored timestamp. End is now truncated to the hour. When End is not
// after Start the returned window is Empty and Start is left as computed.
func NextWindow(segmentID string, existing []HourlyObservation, epoch, now time.Time) FetchWindow {
	start := epoch.UTC()
	if latest, ok := MaxTimestamp(existing); ok {
		start = latest.UTC().Add(time.Hour)
	}
	return FetchWindow{
		SegmentID: segmentID,
		Start:     start,
		End:       now.UTC().Truncate(time.Hour),
	}
}

// MaxTimestamp returns the latest timestamp in obs, false when obs is empty.
func MaxTimestamp(obs []HourlyObservation) (time.Time, bool) {
	var latest time.Time
	for i, o := range obs {
		if i == 0 || o.Timestamp.After(latest) {
			latest = o.Timestamp
		}
	}
	return latest, len(obs) > 0
}
