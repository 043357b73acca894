package transport

// Capabilities describes the delivery guarantees a transport gives the
// consume-and-resume flow.
type Capabilities struct {
	Name string

	// PreservesOrder is true when messages published with the same partition
	// key are delivered in publish order.
	PreservesOrder bool

	// ConsumerGroups is true when the initial offset policy and consumer group
	// settings are honoured.
	ConsumerGroups bool

	// PartitionKeys is true when the publish key selects the partition.
	PartitionKeys bool

	// Durable is true when an unacknowledged message survives a restart of
	// the consumer, which makes delivery at-least-once.
	Durable bool
}

// Predefined capability sets for the built-in transports.
var (
	KafkaCapabilities = Capabilities{
		Name:           "kafka",
		PreservesOrder: true,
		ConsumerGroups: true,
		PartitionKeys:  true,
		Durable:        true,
	}

	ChannelCapabilities = Capabilities{
		Name:           "channel",
		PreservesOrder: true,
	}

	RabbitMQCapabilities = Capabilities{
		Name:           "rabbitmq",
		PreservesOrder: true,
		Durable:        true,
	}

	NATSCapabilities = Capabilities{
		Name:           "nats",
		PreservesOrder: true,
	}

	AWSCapabilities = Capabilities{
		Name:    "aws",
		Durable: true,
	}

	HTTPCapabilities = Capabilities{
		Name: "http",
	}
)

// OrdersByKey reports whether two results published under the same key are
// consumed in publish order even with several consumers sharing the topic.
func (c Capabilities) OrdersByKey() bool {
	return c.PreservesOrder && c.PartitionKeys
}
