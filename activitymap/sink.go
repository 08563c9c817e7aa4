package activitymap

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/notify"
	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes normalized activity records, keyed by object id
type KafkaSink struct {
	writer  notify.MessageWriter
	opts    []Option
	timeout time.Duration
}

var _ identity.ActivitySink = (*KafkaSink)(nil)

// NewKafkaSink creates a sink over writer
func NewKafkaSink(writer notify.MessageWriter, opts ...Option) *KafkaSink {
	return &KafkaSink{writer: writer, opts: opts, timeout: 5 * time.Second}
}

// Record implements identity.ActivitySink
func (s *KafkaSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	record := Normalize(event, s.opts...)

	data, err := json.Marshal(record)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "activity: failed to encode record")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.ObjectID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "verb", Value: []byte(record.Verb)},
		},
	}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "activity: publish failed").
			WithMetadata(map[string]any{"verb": record.Verb})
	}

	return nil
}

// Close closes the underlying writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
