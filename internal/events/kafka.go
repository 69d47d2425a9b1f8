package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/MrWong99/sandakan/pkg/domain"
)

// DefaultTopic is the Kafka topic used when none is configured.
const DefaultTopic = "ingestion-jobs"

// Ensure KafkaPublisher implements the Publisher interface.
var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher emits JobStatusEvent messages keyed by job id so all
// events of one job land on the same partition in order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafka builds a publisher against the given brokers. topic falls back
// to DefaultTopic when empty.
func NewKafka(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
			WriteTimeout:           5 * time.Second,
		},
	}
}

// PublishJobStatus implements Publisher. Delivery failures are logged and
// swallowed.
func (p *KafkaPublisher) PublishJobStatus(ctx context.Context, jobID domain.JobID, documentID *domain.DocumentID, status domain.JobStatus, errorMessage string) {
	event := JobStatusEvent{
		JobID:      jobID.String(),
		Status:     status.String(),
		Error:      errorMessage,
		OccurredAt: time.Now().UTC(),
	}
	if documentID != nil {
		event.DocumentID = documentID.String()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("marshal job status event", "error", err, "job_id", event.JobID)
		return
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.JobID),
		Value: payload,
	})
	if err != nil {
		slog.Warn("publish job status event failed",
			"error", err,
			"job_id", event.JobID,
			"status", event.Status)
	}
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
