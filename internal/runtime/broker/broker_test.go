package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/routeflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/routeflow/internal/runtime/metadata"
	"github.com/drblury/routeflow/transport/channel"
)

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(string, ...*message.Message) error { return p.err }
func (p failingPublisher) Close() error                             { return nil }

func TestNewProducerValidation(t *testing.T) {
	_, err := NewProducer(nil, loggingpkg.NewNopServiceLogger())
	assert.ErrorIs(t, err, errspkg.ErrPublisherRequired)

	_, err = NewProducer(failingPublisher{}, nil)
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("42", `{"id":42}`, metadatapkg.New(metadatapkg.KeyRunID, "run-1"))

	assert.Len(t, msg.UUID, 26)
	assert.Equal(t, `{"id":42}`, string(msg.Payload))
	assert.Equal(t, "42", msg.Metadata.Get(metadatapkg.KeyPartitionKey))
	assert.Equal(t, "run-1", msg.Metadata.Get(metadatapkg.KeyRunID))

	unkeyed := NewMessage("", "v", nil)
	assert.Empty(t, unkeyed.Metadata.Get(metadatapkg.KeyPartitionKey))
}

func TestProducerPublish(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, "my-topic")
	require.NoError(t, err)

	producer, err := NewProducer(pubSub, loggingpkg.NewNopServiceLogger())
	require.NoError(t, err)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	producer.now = func() time.Time { return fixed }

	require.NoError(t, producer.Publish(ctx, "my-topic", "7", "body-b", metadatapkg.New(metadatapkg.KeyRunID, "run-7")))

	select {
	case msg := <-messages:
		assert.Equal(t, "body-b", string(msg.Payload))
		assert.Equal(t, "7", msg.Metadata.Get(metadatapkg.KeyPartitionKey))
		assert.Equal(t, "run-7", msg.Metadata.Get(metadatapkg.KeyRunID))
		assert.Equal(t, "2024-05-01T12:00:00Z", msg.Metadata.Get(metadatapkg.KeyPublishedAt))
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("message not published")
	}
}

func TestProducerPublishFailure(t *testing.T) {
	cause := errors.New("broker down")
	producer, err := NewProducer(failingPublisher{err: cause}, loggingpkg.NewNopServiceLogger())
	require.NoError(t, err)

	err = producer.Publish(context.Background(), "my-topic", "1", "v", nil)

	var failure *PublishFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "my-topic", failure.Topic)
	assert.Equal(t, "1", failure.Key)
	assert.ErrorIs(t, err, cause)
}

func TestProducerPublishRequiresTopic(t *testing.T) {
	producer, err := NewProducer(failingPublisher{}, loggingpkg.NewNopServiceLogger())
	require.NoError(t, err)

	err = producer.Publish(context.Background(), "", "1", "v", nil)
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)
}

func TestRegisterConsumerValidation(t *testing.T) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	handle := func(context.Context, Delivery) {}

	_, err = RegisterConsumer(nil, Subscription{})
	assert.ErrorIs(t, err, errspkg.ErrRouterRequired)
	_, err = RegisterConsumer(router, Subscription{Topic: "t", Handle: handle})
	assert.ErrorIs(t, err, errspkg.ErrSubscriberRequired)
	_, err = RegisterConsumer(router, Subscription{Subscriber: pubSub, Handle: handle})
	assert.ErrorIs(t, err, errspkg.ErrTopicRequired)
	_, err = RegisterConsumer(router, Subscription{Subscriber: pubSub, Topic: "t"})
	assert.ErrorIs(t, err, errspkg.ErrHandlerRequired)
}

func TestRegisterConsumerDeliversInOrderAndAcks(t *testing.T) {
	pubSub := gochannel.NewGoChannel(channel.PubSubConfig(), watermill.NopLogger{})
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NopLogger{})
	require.NoError(t, err)

	received := make(chan Delivery, 3)
	_, err = RegisterConsumer(router, Subscription{
		HandlerName: "resume",
		Topic:       "my-topic",
		Subscriber:  pubSub,
		Handle: func(ctx context.Context, d Delivery) {
			received <- d
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	for _, body := range []string{"not json", `{"id":1}`, `{"id":2}`} {
		msg := NewMessage("", body, metadatapkg.New(metadatapkg.KeyCorrelationID, body))
		require.NoError(t, pubSub.Publish("my-topic", msg))
	}

	var bodies []string
	for i := 0; i < 3; i++ {
		select {
		case d := <-received:
			bodies = append(bodies, d.Body)
			assert.Equal(t, d.Body, d.Metadata.Get(metadatapkg.KeyCorrelationID))
			assert.NotEmpty(t, d.UUID)
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %v", bodies)
		}
	}
	assert.Equal(t, []string{"not json", `{"id":1}`, `{"id":2}`}, bodies)

	require.NoError(t, router.Close())
}

func TestRegisterConsumerRecoversPanicAndAcks(t *testing.T) {
	pubSub := gochannel.NewGoChannel(channel.PubSubConfig(), watermill.NopLogger{})
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NopLogger{})
	require.NoError(t, err)

	received := make(chan string, 2)
	panics := make(chan error, 2)
	_, err = RegisterConsumer(router, Subscription{
		HandlerName: "resume",
		Topic:       "my-topic",
		Subscriber:  pubSub,
		Handle: func(ctx context.Context, d Delivery) {
			if d.Body == "explode" {
				panic("boom")
			}
			received <- d.Body
		},
		OnPanic: func(ctx context.Context, d Delivery, err error) {
			assert.Equal(t, "explode", d.Body)
			panics <- err
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	// each publish returns only once the message was acked
	require.NoError(t, pubSub.Publish("my-topic", NewMessage("", "explode", nil)))
	require.NoError(t, pubSub.Publish("my-topic", NewMessage("", `{"id":1}`, nil)))

	select {
	case err := <-panics:
		assert.ErrorIs(t, err, errspkg.ErrConsumerPanic)
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("panic was not reported")
	}
	select {
	case body := <-received:
		assert.Equal(t, `{"id":1}`, body)
	case <-time.After(2 * time.Second):
		t.Fatal("next message was not consumed")
	}
	assert.Empty(t, panics)

	require.NoError(t, router.Close())
}
