package notify

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/segmentio/kafka-go"
)

const defaultPublishTimeout = 5 * time.Second

// MessageWriter is the part of kafka.Writer the notifier needs
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter creates a writer publishing to topic
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// KafkaNotifier publishes rendered messages for a mail worker to deliver
type KafkaNotifier struct {
	writer    MessageWriter
	templates *Templates
	timeout   time.Duration
}

// NewKafkaNotifier creates a notifier over writer. templates may be nil
// when messages always carry a body.
func NewKafkaNotifier(writer MessageWriter, templates *Templates) *KafkaNotifier {
	return &KafkaNotifier{
		writer:    writer,
		templates: templates,
		timeout:   defaultPublishTimeout,
	}
}

// WithTimeout sets the publish timeout
func (k *KafkaNotifier) WithTimeout(timeout time.Duration) *KafkaNotifier {
	if timeout > 0 {
		k.timeout = timeout
	}
	return k
}

// Notify implements Notifier
func (k *KafkaNotifier) Notify(ctx context.Context, msg Message) error {
	msg, err := k.templates.RenderMessage(msg)
	if err != nil {
		return err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "kafka: failed to encode message")
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(msg.Event)},
		},
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "kafka: publish failed").
			WithMetadata(map[string]any{"event": msg.Event})
	}

	return nil
}

// Close flushes and closes the writer
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
