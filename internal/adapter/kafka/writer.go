package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/traffic-data-etl/internal/config"
	"github.com/couchcryptid/traffic-data-etl/internal/domain"
	"github.com/couchcryptid/traffic-data-etl/internal/observability"
)

// publishBatchSize bounds how many messages go into one WriteMessages call.
const publishBatchSize = 1000

// messageWriter is the subset of *kafkago.Writer used by Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes merged records to a Kafka topic.
type Writer struct {
	writer  messageWriter
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes records and writes them to the sink topic in batches.
// Messages are keyed by segment id, so records of one segment share a
// partition and consumers see them in order.
func (w *Writer) Publish(ctx context.Context, runID string, records []domain.MergedRecord) error {
	for start := 0; start < len(records); start += publishBatchSize {
		end := min(start+publishBatchSize, len(records))
		msgs := make([]kafkago.Message, 0, end-start)
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(runID, &records[i])
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish merged records: %w", err)
		}
		w.metrics.RecordsPublished.Add(float64(len(msgs)))
	}
	w.logger.Info("merged records published", "records", len(records), "run_id", runID)
	return nil
}

// Close flushes pending messages and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// Message is the JSON payload of one merged record.
type Message struct {
	Timestamp         time.Time          `json:"timestamp"`
	SegmentID         string             `json:"segment_id"`
	StreetName        string             `json:"street_name"`
	Uptime            *float64           `json:"uptime"`
	V85               *float64           `json:"v85"`
	Counts            map[string]float64 `json:"counts"`
	TemperatureC      *float64           `json:"temperature_c"`
	PrecipitationMM   *float64           `json:"precipitation_mm"`
	RainMM            *float64           `json:"rain_mm"`
	SnowfallCM        *float64           `json:"snowfall_cm"`
	CloudCoverPct     *float64           `json:"cloud_cover_pct"`
	WindSpeedKMH      *float64           `json:"wind_speed_kmh"`
	SunshineDurationS *float64           `json:"sunshine_duration_s"`
	IsHoliday         bool               `json:"is_holiday"`
	IsSchoolVacation  bool               `json:"is_school_vacation"`
	HolidayName       string             `json:"holiday_name,omitempty"`
	VacationName      string             `json:"vacation_name,omitempty"`
}

// NewMessage flattens a merged record; missing values become JSON null.
func NewMessage(r *domain.MergedRecord) Message {
	m := Message{
		Timestamp:        r.Timestamp,
		SegmentID:        r.SegmentID,
		StreetName:       r.StreetName,
		Uptime:           ptr(r.Uptime.Float64, r.Uptime.Valid),
		V85:              ptr(r.V85.Float64, r.V85.Valid),
		Counts:           r.Counts,
		IsHoliday:        r.Calendar.IsHoliday,
		IsSchoolVacation: r.Calendar.IsSchoolVacation,
		HolidayName:      r.Calendar.HolidayName,
		VacationName:     r.Calendar.VacationName,
	}
	if w := r.Weather; w != nil {
		m.TemperatureC = ptr(w.TemperatureC.Float64, w.TemperatureC.Valid)
		m.PrecipitationMM = ptr(w.PrecipitationMM.Float64, w.PrecipitationMM.Valid)
		m.RainMM = ptr(w.RainMM.Float64, w.RainMM.Valid)
		m.SnowfallCM = ptr(w.SnowfallCM.Float64, w.SnowfallCM.Valid)
		m.CloudCoverPct = ptr(w.CloudCoverPct.Float64, w.CloudCoverPct.Valid)
		m.WindSpeedKMH = ptr(w.WindSpeedKMH.Float64, w.WindSpeedKMH.Valid)
		m.SunshineDurationS = ptr(w.SunshineDurationS.Float64, w.SunshineDurationS.Valid)
	}
	return m
}

// serializeToMessage marshals a merged record into a Kafka message keyed by
// segment. The hour travels in the timestamp header.
func serializeToMessage(runID string, r *domain.MergedRecord) (kafkago.Message, error) {
	data, err := json.Marshal(NewMessage(r))
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize merged record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.SegmentID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "segment_id", Value: []byte(r.SegmentID)},
			{Key: "timestamp", Value: []byte(r.Timestamp.UTC().Format(time.RFC3339))},
			{Key: "run_id", Value: []byte(runID)},
		},
	}, nil
}

func ptr(v float64, valid bool) *float64 {
	if !valid {
		return nil
	}
	return &v
}
