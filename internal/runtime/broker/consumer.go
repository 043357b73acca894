package broker

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/routeflow/internal/runtime/errors"
	metadatapkg "github.com/drblury/routeflow/internal/runtime/metadata"
)

// Delivery is one consumed message as seen by a consume handler.
type Delivery struct {
	UUID     string
	Body     string
	Metadata metadatapkg.Metadata
}

// ConsumeFunc handles one delivery. It has no error return: every delivery is
// acknowledged once the function returns.
type ConsumeFunc func(ctx context.Context, d Delivery)

// PanicFunc is told about a panic recovered from a ConsumeFunc. The delivery
// is acknowledged afterwards like any other.
type PanicFunc func(ctx context.Context, d Delivery, err error)

// Subscription describes a consume loop to attach to a router.
type Subscription struct {
	HandlerName string
	Topic       string
	Subscriber  message.Subscriber
	Handle      ConsumeFunc
	// OnPanic is optional.
	OnPanic PanicFunc
}

// RegisterConsumer adds a no-publish handler for sub to router. The consumer
// group and initial offset are properties of the subscriber built by the
// transport, so they are fixed before this call.
func RegisterConsumer(router *message.Router, sub Subscription) (*message.Handler, error) {
	if router == nil {
		return nil, errspkg.ErrRouterRequired
	}
	if sub.Subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	if sub.Topic == "" {
		return nil, errspkg.ErrTopicRequired
	}
	if sub.Handle == nil {
		return nil, errspkg.ErrHandlerRequired
	}

	h := router.AddNoPublisherHandler(
		sub.HandlerName,
		sub.Topic,
		sub.Subscriber,
		func(msg *message.Message) error {
			consume(msg.Context(), Delivery{
				UUID:     msg.UUID,
				Body:     string(msg.Payload),
				Metadata: metadatapkg.FromWatermill(msg.Metadata),
			}, sub.Handle, sub.OnPanic)
			return nil
		},
	)
	return h, nil
}

// consume runs handle and swallows a panic so the message is still acked;
// without a poison queue a nacked message would be redelivered forever.
func consume(ctx context.Context, d Delivery, handle ConsumeFunc, onPanic PanicFunc) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(ctx, d, fmt.Errorf("%w: %v", errspkg.ErrConsumerPanic, r))
		}
	}()
	handle(ctx, d)
}
