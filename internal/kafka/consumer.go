package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/trainer-leaderboard/internal/config"
	"github.com/trainer-leaderboard/internal/domain"
	"github.com/trainer-leaderboard/internal/metrics"
)

// ImportHandler records imported snapshots
type ImportHandler interface {
	SubmitBatch(ctx context.Context, subs []domain.SnapshotSubmission) []domain.BatchItemResult
}

// Consumer consumes snapshot import messages from Kafka
type Consumer struct {
	config        *config.KafkaConfig
	handler       ImportHandler
	metrics       *metrics.Metrics
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan bool
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg *config.KafkaConfig, handler ImportHandler, m *metrics.Metrics, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return newConsumer(cfg, handler, m, logger, consumerGroup), nil
}

func newConsumer(cfg *config.KafkaConfig, handler ImportHandler, m *metrics.Metrics, logger *slog.Logger, group sarama.ConsumerGroup) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		config:        cfg,
		handler:       handler,
		metrics:       m,
		logger:        logger,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan bool),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start() error {
	c.logger.Info("starting Kafka consumer",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &consumerGroupHandler{
				consumer: c,
				ready:    c.ready,
			}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Error("error from consumer", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	select {
	case <-c.ready:
		c.logger.Info("Kafka consumer ready")
	case <-c.ctx.Done():
		return c.ctx.Err()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() error {
	c.logger.Info("stopping Kafka consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// decode parses one import message. Imports default to the import source.
func decode(value []byte) (domain.SnapshotSubmission, error) {
	var sub domain.SnapshotSubmission
	if err := json.Unmarshal(value, &sub); err != nil {
		return sub, fmt.Errorf("unmarshaling submission: %w", err)
	}
	if sub.PlayerID == "" {
		return sub, fmt.Errorf("%w: missing player_id", domain.ErrInvalidRequest)
	}
	if sub.ObservedAt.IsZero() {
		return sub, fmt.Errorf("%w: missing observed_at", domain.ErrInvalidRequest)
	}
	if len(sub.Values) == 0 {
		return sub, fmt.Errorf("%w: no values", domain.ErrInvalidRequest)
	}
	if sub.Source == "" {
		sub.Source = domain.SourceImport
	}
	return sub, nil
}

// messageID derives a snapshot ID from a message's position in the log, so a
// message redelivered after a rebalance upserts the row it already wrote.
func messageID(topic string, partition int32, offset int64) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "kafka://%s/%d/%d", topic, partition, offset))
}

// retryable reports whether a failed submission might succeed later.
// Rejections and bad input never will.
func retryable(err error) bool {
	if _, rejected := domain.IsRejected(err); rejected {
		return false
	}
	return !domain.IsNotFoundError(err) && !errors.Is(err, domain.ErrInvalidRequest)
}

// process submits a batch, retrying items that failed for transient reasons
func (c *Consumer) process(ctx context.Context, batch []domain.SnapshotSubmission) {
	pending := batch
	for attempt := 0; len(pending) > 0; attempt++ {
		var retry []domain.SnapshotSubmission
		for i, res := range c.handler.SubmitBatch(ctx, pending) {
			switch {
			case res.Err == nil:
				c.metrics.Import(metrics.OutcomeAccepted)
			case retryable(res.Err) && attempt < c.config.RetryAttempts:
				retry = append(retry, pending[i])
			case retryable(res.Err):
				c.metrics.Import(metrics.OutcomeError)
				c.logger.Error("dropping import after retries",
					"player_id", res.PlayerID,
					"attempts", attempt+1,
					"error", res.Err,
				)
			default:
				c.metrics.Import(metrics.OutcomeRejected)
			}
		}
		if len(retry) == 0 {
			return
		}

		c.logger.Warn("retrying imports", "count", len(retry), "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.config.RetryDelay):
		}
		pending = retry
	}
}

// consumerGroupHandler implements sarama.ConsumerGroupHandler
type consumerGroupHandler struct {
	consumer *Consumer
	ready    chan bool
}

// Setup is called at the beginning of a new session
func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.ready)
	return nil
}

// Cleanup is called at the end of a session
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim processes messages from a topic partition. Offsets are marked
// only after the batch holding them has been processed.
func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c := h.consumer
	cfg := c.config
	batch := make([]domain.SnapshotSubmission, 0, cfg.BatchSize)
	var last *sarama.ConsumerMessage
	batchTimer := time.NewTimer(cfg.BatchTimeout)
	defer batchTimer.Stop()

	processBatch := func() {
		if len(batch) > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			c.process(ctx, batch)
			cancel()
			c.logger.Debug("processed import batch", "batch_size", len(batch))
			batch = batch[:0]
		}
		if last != nil {
			session.MarkMessage(last, "")
			last = nil
		}
	}

	for {
		select {
		case <-session.Context().Done():
			processBatch()
			return nil

		case <-batchTimer.C:
			processBatch()
			batchTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				processBatch()
				return nil
			}
			last = message

			sub, err := decode(message.Value)
			if err != nil {
				c.metrics.Import(metrics.OutcomeRejected)
				c.logger.Warn("invalid import message",
					"error", err,
					"offset", message.Offset,
					"partition", message.Partition,
				)
				continue
			}
			sub.ID = messageID(message.Topic, message.Partition, message.Offset)

			batch = append(batch, sub)
			if len(batch) >= cfg.BatchSize {
				processBatch()
				batchTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}
