// Package kafka implements the pkg/messaging Broker/Producer/Consumer
// interfaces on top of IBM/sarama.
package kafka

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
)

// Config configures the Kafka broker.
type Config struct {
	// Brokers is the list of seed broker addresses.
	Brokers []string `env:"KAFKA_BOOTSTRAP" env-required:"true"`

	// ClientID identifies this process to the cluster.
	ClientID string `env:"KAFKA_CLIENT_ID" env-default:"flare"`

	// Idempotent enables exactly-once producer semantics per partition.
	Idempotent bool `env:"KAFKA_PRODUCER_IDEMPOTENT" env-default:"true"`

	// BatchSize is the max number of messages buffered before a flush.
	BatchSize int `env:"KAFKA_PRODUCER_BATCH_SIZE" env-default:"100"`

	// BatchTimeout is the max time a batch is held open before a flush.
	BatchTimeout time.Duration `env:"KAFKA_PRODUCER_BATCH_TIMEOUT" env-default:"50ms"`

	// Compression selects the producer compression codec.
	Compression string `env:"KAFKA_PRODUCER_COMPRESSION" env-default:"snappy"`
}

// Broker implements messaging.Broker on top of a shared sarama client.
type Broker struct {
	cfg    Config
	client sarama.Client
	admin  sarama.ClusterAdmin
}

// New dials the Kafka cluster and returns a ready Broker.
func New(cfg Config) (*Broker, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Idempotent = cfg.Idempotent
	if cfg.Idempotent {
		sc.Net.MaxOpenRequests = 1
	}
	sc.Producer.Compression = compressionCodec(cfg.Compression)
	sc.Producer.Flush.Messages = cfg.BatchSize
	sc.Producer.Flush.Frequency = cfg.BatchTimeout
	sc.Consumer.Return.Errors = true
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Version = sarama.V2_8_0_0

	client, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to kafka")
	}

	admin, err := sarama.NewClusterAdminFromClient(client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kafka admin client")
	}

	return &Broker{cfg: cfg, client: client, admin: admin}, nil
}

func compressionCodec(name string) sarama.CompressionCodec {
	switch name {
	case "gzip":
		return sarama.CompressionGZIP
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	case "none":
		return sarama.CompressionNone
	default:
		return sarama.CompressionSnappy
	}
}

func (b *Broker) Producer(topic string) (messaging.Producer, error) {
	sp, err := sarama.NewSyncProducerFromClient(b.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kafka producer")
	}
	return &producer{broker: b, topic: topic, producer: sp}, nil
}

// Consumer returns a consumer-group backed Consumer. group must be
// non-empty; Kafka has no broadcast/fanout mode, unlike some brokers this
// package also fronts.
func (b *Broker) Consumer(topic string, group string) (messaging.Consumer, error) {
	if group == "" {
		return nil, errors.InvalidArgument("kafka consumer requires a non-empty group", nil)
	}
	cg, err := sarama.NewConsumerGroupFromClient(group, b.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kafka consumer group")
	}
	return &consumer{topic: topic, group: group, cg: cg}, nil
}

func (b *Broker) Close() error {
	_ = b.admin.Close()
	return b.client.Close()
}

func (b *Broker) Healthy(ctx context.Context) bool {
	brokers := b.client.Brokers()
	for _, br := range brokers {
		if connected, _ := br.Connected(); connected {
			return true
		}
	}
	return false
}
