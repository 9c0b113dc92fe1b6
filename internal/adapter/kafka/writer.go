package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/balloon-reliability-service/internal/config"
	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

// Message types carried in the event_type header.
const (
	EventReliabilityRecord = "reliability_record"
	EventEnrichmentOutcome = "enrichment_outcome"
)

// Writer publishes reliability records and enrichment outcomes to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// recordMessage is the wire form of one scored object.
type recordMessage struct {
	RunID    int64     `json:"run_id"`
	ScoredAt time.Time `json:"scored_at"`
	domain.ReliabilityRecord
}

// PublishRecords publishes every record of a run in a single WriteMessages call.
func (w *Writer) PublishRecords(ctx context.Context, runID int64, records []domain.ReliabilityRecord, scoredAt time.Time) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeRecord(runID, records[i], scoredAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records for run %d: %w", len(msgs), runID, err)
	}
	w.logger.Debug("records published", "run_id", runID, "count", len(msgs))
	return nil
}

// PublishOutcome publishes the result of one enrichment invocation.
func (w *Writer) PublishOutcome(ctx context.Context, out domain.EnrichmentOutcome, at time.Time) error {
	msg, err := serializeOutcome(out, at)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish outcome for run %d: %w", out.RunID, err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeRecord keys the message by run and object so one object's history
// for a run lands on a single partition.
func serializeRecord(runID int64, rec domain.ReliabilityRecord, scoredAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(recordMessage{RunID: runID, ScoredAt: scoredAt.UTC(), ReliabilityRecord: rec})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize reliability record: %w", err)
	}
	return kafkago.Message{
		Key:     []byte(fmt.Sprintf("%d:%d", runID, rec.ObjectID)),
		Value:   data,
		Headers: headers(EventReliabilityRecord, runID, scoredAt),
	}, nil
}

func serializeOutcome(out domain.EnrichmentOutcome, at time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize enrichment outcome: %w", err)
	}
	return kafkago.Message{
		Key:     []byte(strconv.FormatInt(out.RunID, 10)),
		Value:   data,
		Headers: headers(EventEnrichmentOutcome, out.RunID, at),
	}, nil
}

func headers(eventType string, runID int64, at time.Time) []kafkago.Header {
	return []kafkago.Header{
		{Key: "event_type", Value: []byte(eventType)},
		{Key: "run_id", Value: []byte(strconv.FormatInt(runID, 10))},
		{Key: "processed_at", Value: []byte(at.UTC().Format(time.RFC3339))},
	}
}
