// Package broker adapts the Watermill publisher and router to the two broker
// operations the pipeline needs: publishing a result under a key and
// consuming a topic with a handler that always acknowledges.
package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
	idspkg "github.com/drblury/routeflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/routeflow/internal/runtime/metadata"
)

// PublishFailure reports a result that could not be handed to the broker.
type PublishFailure struct {
	Topic string
	Key   string
	Cause error
}

func (f *PublishFailure) Error() string {
	return fmt.Sprintf("publish to %q (key %q): %v", f.Topic, f.Key, f.Cause)
}

func (f *PublishFailure) Unwrap() error {
	return f.Cause
}

// Producer publishes run results. It is safe for concurrent use as long as
// the underlying publisher is.
type Producer struct {
	publisher message.Publisher
	logger    loggingpkg.ServiceLogger
	now       func() time.Time
}

// NewProducer wraps publisher.
func NewProducer(publisher message.Publisher, logger loggingpkg.ServiceLogger) (*Producer, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	return &Producer{publisher: publisher, logger: logger, now: time.Now}, nil
}

// NewMessage builds the broker message for value. The key travels as the
// partition_key header; transports that partition by key read it from there.
func NewMessage(key, value string, headers metadatapkg.Metadata) *message.Message {
	msg := message.NewMessage(idspkg.CreateULID(), []byte(value))
	msg.Metadata = metadatapkg.ToWatermill(headers)
	if key != "" {
		msg.Metadata.Set(metadatapkg.KeyPartitionKey, key)
	}
	return msg
}

// Publish sends value to topic. Any failure is returned as *PublishFailure.
func (p *Producer) Publish(ctx context.Context, topic, key, value string, headers metadatapkg.Metadata) error {
	if topic == "" {
		return &PublishFailure{Topic: topic, Key: key, Cause: errspkg.ErrTopicRequired}
	}

	msg := NewMessage(key, value, headers)
	msg.Metadata.Set(metadatapkg.KeyPublishedAt, p.now().UTC().Format(time.RFC3339Nano))
	if ctx != nil {
		msg.SetContext(ctx)
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		return &PublishFailure{Topic: topic, Key: key, Cause: err}
	}

	p.logger.Debug("Published run result", loggingpkg.LogFields{
		"topic":        topic,
		"key":          key,
		"message_uuid": msg.UUID,
		"run_id":       headers.Get(metadatapkg.KeyRunID),
	})
	return nil
}

// Close closes the underlying publisher.
func (p *Producer) Close() error {
	return p.publisher.Close()
}
