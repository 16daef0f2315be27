package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes cart events to a topic, keyed by session so that one
// shopper's events stay ordered within a partition.
type KafkaNotifier struct {
	writer messageWriter
	log    *slog.Logger
}

func NewKafkaNotifier(topic string, logger *slog.Logger, brokers ...string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Async:                  true,
	}
	return newKafkaNotifier(w, logger)
}

func newKafkaNotifier(w messageWriter, logger *slog.Logger) *KafkaNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaNotifier{writer: w, log: logger}
}

func (n *KafkaNotifier) Notify(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		n.log.Error("failed to marshal cart event", "action", string(e.Action), "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(e.SessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("cart." + string(e.Action))},
			{Key: "level", Value: []byte(e.Level)},
		},
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.log.Warn("failed to publish cart event", "action", string(e.Action), "error", err)
	}
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
