package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/logctx"
)

func TestKafkaPublisher_PublishStatusChanged(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "payment.status_changed" {
			return errors.New("wrong topic")
		}
		key, _ := msg.Key.Encode()
		if string(key) != "pay_1" {
			return errors.New("wrong key")
		}
		val, _ := msg.Value.Encode()
		var evt PaymentStatusChanged
		if err := json.Unmarshal(val, &evt); err != nil {
			return err
		}
		if evt.EventType != EventTypePaymentStatusChanged || evt.To != models.PaymentStatusPaid {
			return errors.New("wrong payload")
		}
		if headerCarrier(msg.Headers).Get("x-request-id") != "trace-1" {
			return errors.New("missing trace header")
		}
		return nil
	})

	p := NewKafkaPublisher(producer, "payment.status_changed", zap.NewNop().Sugar())
	ctx := context.WithValue(context.Background(), logctx.KeyTraceID, "trace-1")
	err := p.PublishStatusChanged(ctx, PaymentStatusChanged{
		PaymentID: "pay_1",
		From:      models.PaymentStatusPending,
		To:        models.PaymentStatusPaid,
		Source:    models.StatusChangeSourceWebhook,
	})
	require.NoError(t, err)
	require.NoError(t, producer.Close())
}

func TestKafkaPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, mocks.NewTestConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewKafkaPublisher(producer, "payment.status_changed", zap.NewNop().Sugar())
	err := p.PublishStatusChanged(context.Background(), PaymentStatusChanged{PaymentID: "pay_1"})
	require.Error(t, err)
	require.True(t, errors.Is(err, sarama.ErrOutOfBrokers))
	require.NoError(t, producer.Close())
}

func TestNewPublisher_NoBrokersIsNop(t *testing.T) {
	p, err := NewPublisher(fxtest.NewLifecycle(t), &config.Config{}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.IsType(t, NopPublisher{}, p)
	require.NoError(t, p.PublishStatusChanged(context.Background(), PaymentStatusChanged{}))
}
