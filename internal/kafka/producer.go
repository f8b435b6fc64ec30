package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/domain"
)

// Publisher sends snapshot submissions to the import topic. Messages are
// keyed by player so one player's snapshots stay on one partition in order.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

// NewPublisher connects a synchronous producer to the configured brokers
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewPublisherWithProducer(producer, cfg.Topic, logger), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, topic: topic, logger: logger}
}

// Publish sends a batch of submissions
func (p *Publisher) Publish(subs []domain.SnapshotSubmission) error {
	if len(subs) == 0 {
		return nil
	}

	msgs := make([]*sarama.ProducerMessage, 0, len(subs))
	for _, sub := range subs {
		data, err := json.Marshal(sub)
		if err != nil {
			return fmt.Errorf("marshaling submission for %s: %w", sub.PlayerID, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(sub.PlayerID),
			Value: sarama.ByteEncoder(data),
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		var perrs sarama.ProducerErrors
		if errors.As(err, &perrs) {
			p.logger.Error("failed to publish submissions", "failed", len(perrs), "total", len(msgs))
		}
		return fmt.Errorf("publishing submissions: %w", err)
	}

	p.logger.Debug("published submissions", "count", len(msgs), "topic", p.topic)
	return nil
}

// Close flushes and closes the producer
func (p *Publisher) Close() error {
	return p.producer.Close()
}
