package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dray-io/fimcondense/internal/codec"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Compression codec.Name

	// CreateTopic creates Topic with Partitions partitions on startup. An
	// existing topic is not an error.
	CreateTopic bool
	Partitions  int32

	// DeliveryTimeout fails a record that has not been acknowledged in
	// time. Zero means 10s.
	DeliveryTimeout time.Duration
}

// Producer is the subset of *kgo.Client the sink uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaSink publishes each flush record as a JSON message keyed by index.
type KafkaSink struct {
	producer Producer
	topic    string
}

// NewKafkaSink connects to the brokers and optionally creates the topic.
func NewKafkaSink(ctx context.Context, cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("audit: kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("audit: kafka topic is required")
	}

	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kafkaCompression(cfg.Compression)),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("audit: kafka client: %w", err)
	}

	if cfg.CreateTopic {
		partitions := cfg.Partitions
		if partitions <= 0 {
			partitions = 1
		}
		// -1 uses the broker's default replication factor.
		resp, err := kadm.NewClient(client).CreateTopic(ctx, partitions, -1, nil, cfg.Topic)
		if err == nil {
			err = resp.Err
		}
		if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("audit: create topic %q: %w", cfg.Topic, err)
		}
	}

	return NewKafkaSinkWithProducer(client, cfg.Topic), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: p, topic: topic}
}

// Write produces rec and waits for the acknowledgement or for ctx to end.
func (k *KafkaSink) Write(ctx context.Context, rec FlushRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encode flush %s: %w", rec.FlushID, err)
	}

	results := k.producer.ProduceSync(ctx, &kgo.Record{
		Topic: k.topic,
		Key:   []byte(rec.Index),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "flush-id", Value: []byte(rec.FlushID)},
			{Key: "trigger", Value: []byte(rec.Trigger)},
		},
	})
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("audit: produce flush %s: %w", rec.FlushID, err)
	}
	return nil
}

// Close closes the producer.
func (k *KafkaSink) Close() error {
	k.producer.Close()
	return nil
}

func kafkaCompression(n codec.Name) kgo.CompressionCodec {
	switch n {
	case codec.Gzip:
		return kgo.GzipCompression()
	case codec.Snappy:
		return kgo.SnappyCompression()
	case codec.LZ4:
		return kgo.Lz4Compression()
	case codec.Zstd:
		return kgo.ZstdCompression()
	default:
		return kgo.NoCompression()
	}
}

var _ Sink = (*KafkaSink)(nil)
