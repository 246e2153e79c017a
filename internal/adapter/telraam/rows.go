package telraam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/traffic-data-etl/internal/domain"
)

// Report fields that are not per-mode counts.
var metaFields = map[string]bool{
	"date":        true,
	"uptime":      true,
	"v85":         true,
	"instance_id": true,
	"segment_id":  true,
	"interval":    true,
	"timezone":    true,
}

// mapRows converts report rows to observations. Every numeric field that is
// not metadata becomes a mode count; arrays (speed histograms), strings and
// nulls are skipped.
func mapRows(segmentID string, rows []map[string]json.RawMessage) ([]domain.HourlyObservation, error) {
	obs := make([]domain.HourlyObservation, 0, len(rows))
	for i, row := range rows {
		o, err := mapRow(segmentID, row)
		if err != nil {
			return nil, fmt.Errorf("report row %d: %w", i, err)
		}
		obs = append(obs, o)
	}
	return obs, nil
}

func mapRow(segmentID string, row map[string]json.RawMessage) (domain.HourlyObservation, error) {
	var date string
	if err := json.Unmarshal(row["date"], &date); err != nil || date == "" {
		return domain.HourlyObservation{}, fmt.Errorf("%w: missing or non-string date", domain.ErrSchema)
	}
	ts, err := domain.ParseTimestamp(date, time.UTC)
	if err != nil {
		return domain.HourlyObservation{}, err
	}

	o := domain.HourlyObservation{
		SegmentID: segmentID,
		Timestamp: ts.UTC(),
		Counts:    make(map[string]float64),
	}
	if v, ok := number(row["uptime"]); ok {
		o.Uptime = domain.Float(v)
	}
	if v, ok := number(row["v85"]); ok {
		o.V85 = domain.Float(v)
	}
	for key, raw := range row {
		if metaFields[key] {
			continue
		}
		if v, ok := number(raw); ok {
			o.Counts[key] = v
		}
	}
	return o, nil
}

// number decodes raw when it is a JSON number.
func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}
