package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/ltv-stats-service/internal/config"
	"github.com/couchcryptid/ltv-stats-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Notifier produces a message to a Kafka topic for every published snapshot.
// It implements snapshot.Notifier.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured snapshot topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond, // one message per event
	}
	return &Notifier{writer: w, logger: logger}
}

// Name identifies the sink in logs and metrics.
func (n *Notifier) Name() string { return "kafka" }

// Notify publishes the event, keyed by snapshot ID.
func (n *Notifier) Notify(ctx context.Context, event domain.SnapshotEvent) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write snapshot event: %w", err)
	}
	n.logger.Debug("snapshot event sent", "topic", n.writer.Topic, "snapshot_id", event.SnapshotID)
	return nil
}

// Close flushes pending writes and closes the underlying Kafka writer.
func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a SnapshotEvent into a Kafka message.
func serializeToMessage(event domain.SnapshotEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.SnapshotID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte("snapshot_published")},
			{Key: "loaded_at", Value: []byte(event.LoadedAt.Format(time.RFC3339))},
			{Key: "records", Value: []byte(strconv.Itoa(event.Records))},
		},
	}, nil
}
