package kafka

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trainer-leaderboard/internal/domain"
)

func TestPublish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	observed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "ash" {
			return errors.New("message not keyed by player")
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		sub, err := decode(value)
		if err != nil {
			return err
		}
		if !sub.ObservedAt.Equal(observed) || !sub.Values["total_xp"].Equal(decimal.NewFromInt(1234)) {
			return errors.New("submission did not round trip")
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	p := NewPublisherWithProducer(producer, "snapshot-imports", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := p.Publish([]domain.SnapshotSubmission{
		{PlayerID: "ash", ObservedAt: observed, Values: map[string]decimal.Decimal{"total_xp": decimal.NewFromInt(1234)}},
		{PlayerID: "misty", ObservedAt: observed, Values: map[string]decimal.Decimal{"total_xp": decimal.NewFromInt(99)}},
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPublishFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewPublisherWithProducer(producer, "snapshot-imports", slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := p.Publish([]domain.SnapshotSubmission{{PlayerID: "ash"}})
	assert.Error(t, err)
	require.NoError(t, p.Close())
}

func TestPublishEmpty(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	p := NewPublisherWithProducer(producer, "snapshot-imports", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, p.Publish(nil))
	require.NoError(t, p.Close())
}

func TestSubmissionJSONFieldNames(t *testing.T) {
	data, err := json.Marshal(domain.SnapshotSubmission{PlayerID: "ash", Override: true})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"double_check_confirmation":true`)
}
