package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// message is the JSON value published for every event.
type message struct {
	Type       string         `json:"type"`
	EmployeeID string         `json:"employee_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// KafkaNotifier publishes events keyed by employee id, so one employee's
// events stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
}

// kafkaBatchTimeout caps how long a message waits for its batch to fill.
const kafkaBatchTimeout = 10 * time.Millisecond

// NewKafkaWriter builds the writer used by NewKafkaNotifier. Writes are
// asynchronous: Notify returns once the message is queued, so a slow or
// unreachable broker never holds up the request that raised the event.
// Delivery failures are logged by the completion callback.
func NewKafkaWriter(brokers []string, logger *zap.Logger) *kafka.Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("kafka")
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           kafkaBatchTimeout,
		Completion:             deliveryLogger(logger),
		ErrorLogger:            kafka.LoggerFunc(logger.Sugar().Errorf),
	}
}

// deliveryLogger reports every message of a batch the broker did not accept.
func deliveryLogger(logger *zap.Logger) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range messages {
			logger.Error("leave event not delivered",
				zap.String("topic", m.Topic),
				zap.ByteString("employee_id", m.Key),
				zap.Error(err),
			)
		}
	}
}

func NewKafkaNotifier(writer messageWriter, topic string) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, topic: topic}
}

func (k *KafkaNotifier) Notify(ctx context.Context, event leave.Event) error {
	payload, err := json.Marshal(message{
		Type:       string(event.Type),
		EmployeeID: string(event.EmployeeID),
		Payload:    event.Payload,
		OccurredAt: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.Type, err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(event.EmployeeID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
