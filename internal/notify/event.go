package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/portfolio/backend/internal/model"
)

// EventTypeSubmitted is the type field of published submission events.
const EventTypeSubmitted = "contact.submitted"

// SubmissionEvent is the JSON payload published for every stored submission.
type SubmissionEvent struct {
	EventID    string                  `json:"event_id"`
	Type       string                  `json:"type"`
	OccurredAt time.Time               `json:"occurred_at"`
	Submission *model.SubmissionRecord `json:"submission"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventNotifier publishes submissions to a Kafka topic.
type EventNotifier struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

// NewKafkaEventNotifier creates an EventNotifier writing synchronously to topic.
func NewKafkaEventNotifier(brokers []string, topic string) (*EventNotifier, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka notifier: brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			slog.Error(fmt.Sprintf("kafka writer: "+msg, args...))
		}),
	}
	return newEventNotifier(w, topic), nil
}

func newEventNotifier(w messageWriter, topic string) *EventNotifier {
	return &EventNotifier{writer: w, topic: topic, now: time.Now}
}

var _ Notifier = (*EventNotifier)(nil)

func (n *EventNotifier) Notify(ctx context.Context, rec *model.SubmissionRecord) error {
	ev := SubmissionEvent{
		EventID:    uuid.NewString(),
		Type:       EventTypeSubmitted,
		OccurredAt: n.now().UTC(),
		Submission: rec,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal submission event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(rec.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(EventTypeSubmitted)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", n.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (n *EventNotifier) Close() error {
	return n.writer.Close()
}
