// Package kafka provides the Kafka transport for routeflow. Published results
// are keyed by the partition_key metadata so results for the same parameter
// land on the same partition, and the consumer group starts from the
// configured initial offset when it has no committed position.
package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/routeflow/internal/runtime/metadata"
	"github.com/drblury/routeflow/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.Register(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a new Kafka transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	marshaler := kafka.NewWithPartitioningMarshaler(PartitionKey)

	publisherSarama := kafka.DefaultSaramaSyncPublisherConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		publisherSarama.ClientID = id
	}

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: publisherSarama,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriberSarama, err := SubscriberSaramaConfig(cfg)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
			OverwriteSaramaConfig: subscriberSarama,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	logger.Info("Kafka transport ready", watermill.LogFields{
		"brokers":        strings.Join(brokers, ","),
		"consumer_group": cfg.GetKafkaConsumerGroup(),
		"initial_offset": cfg.GetKafkaInitialOffset(),
	})

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// SubscriberSaramaConfig maps the initial offset policy onto sarama. An empty
// policy means earliest.
func SubscriberSaramaConfig(cfg transport.Config) (*sarama.Config, error) {
	saramaCfg := kafka.DefaultSaramaSubscriberConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		saramaCfg.ClientID = id
	}

	switch strings.ToLower(cfg.GetKafkaInitialOffset()) {
	case "", "earliest":
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	case "latest":
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		return nil, fmt.Errorf("kafka: unknown initial offset %q", cfg.GetKafkaInitialOffset())
	}
	return saramaCfg, nil
}

// PartitionKey returns the record key for msg: the partition_key metadata, or
// the message UUID when none was set.
func PartitionKey(topic string, msg *message.Message) (string, error) {
	if key := msg.Metadata.Get(metadata.KeyPartitionKey); key != "" {
		return key, nil
	}
	return msg.UUID, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}
