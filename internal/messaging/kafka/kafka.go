package kafka

import (
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	wkafka "github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/vinicioflores/GreenCarrot/internal/messaging"
)

const clientID = "greencarrot-relay"

// NewPublisher creates a Kafka publisher. Messages are partitioned by their
// key metadata so events for the same truck stay ordered.
func NewPublisher(brokers []string) (*messaging.WatermillPublisher, error) {
	pub, err := wkafka.NewPublisher(wkafka.PublisherConfig{
		Brokers:               brokers,
		Marshaler:             wkafka.NewWithPartitioningMarshaler(partitionKey),
		OverwriteSaramaConfig: saramaConfig(),
	}, watermill.NewSlogLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	return messaging.NewWatermillPublisher(pub), nil
}

func saramaConfig() *sarama.Config {
	cfg := wkafka.DefaultSaramaSyncPublisherConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	return cfg
}

func partitionKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(messaging.MetadataKey), nil
}
