package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/disaster-risk-service/internal/assess"
	"github.com/couchcryptid/disaster-risk-service/internal/config"
)

const (
	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes assessments to a Kafka topic.
// It implements assess.Publisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured assessment topic.
// Concurrent Publish calls are batched by the underlying writer.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAssessmentTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes one assessment, retrying transient failures
// with exponential backoff until ctx is done.
func (w *Writer) Publish(ctx context.Context, a assess.Assessment) error {
	msg, err := serializeToMessage(a)
	if err != nil {
		return err
	}

	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err = w.writer.WriteMessages(ctx, msg)
		if err == nil {
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("publish assessment %s after %d attempts: %w", a.ID, attempt, err)
		}
		w.logger.Warn("publish failed, retrying", "assessment_id", a.ID, "attempt", attempt, "backoff", backoff, "error", err)
		if !sharedretry.SleepWithContext(ctx, backoff) {
			return fmt.Errorf("publish assessment %s: %w", a.ID, ctx.Err())
		}
		backoff = sharedretry.NextBackoff(backoff, maxBackoff)
	}
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an Assessment into a Kafka message keyed by
// place so all assessments of one location land on the same partition.
func serializeToMessage(a assess.Assessment) (kafkago.Message, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize assessment: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(fmt.Sprintf("%.4f,%.4f", a.Place.Geo.Lat, a.Place.Geo.Lon)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "assessment_id", Value: []byte(a.ID)},
			{Key: "risk_level", Value: []byte(a.Decision.Level)},
			{Key: "top_class", Value: []byte(a.Decision.TopClass)},
			{Key: "assessed_at", Value: []byte(a.AssessedAt.Format(time.RFC3339))},
		},
	}, nil
}
