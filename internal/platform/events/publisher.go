package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sari/payments/internal/models"
	"github.com/sari/payments/pkg/config"
	"github.com/sari/payments/pkg/logctx"
)

const EventTypePaymentStatusChanged = "payment.status_changed"

// PaymentStatusChanged is emitted after a payment status change is committed.
type PaymentStatusChanged struct {
	EventType  string                    `json:"event_type"`
	PaymentID  string                    `json:"payment_id"`
	MerchantID string                    `json:"merchant_id"`
	ChargeID   string                    `json:"charge_id"`
	OrderID    *string                   `json:"order_id,omitempty"`
	BookingID  *string                   `json:"booking_id,omitempty"`
	From       models.PaymentStatus      `json:"from"`
	To         models.PaymentStatus      `json:"to"`
	Amount     int64                     `json:"amount"`
	Currency   string                    `json:"currency"`
	Source     models.StatusChangeSource `json:"source"`
	OccurredAt time.Time                 `json:"occurred_at"`
}

type Publisher interface {
	PublishStatusChanged(ctx context.Context, evt PaymentStatusChanged) error
}

// KafkaPublisher writes events keyed by payment id, so a consumer sees the
// changes of one payment in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.SugaredLogger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.SugaredLogger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, evt PaymentStatusChanged) error {
	if evt.EventType == "" {
		evt.EventType = EventTypePaymentStatusChanged
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.PaymentID),
		Value: sarama.ByteEncoder(b),
	}
	carrier := make(headerCarrier, 0)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)
	if tid := logctx.TraceID(ctx); tid != "" {
		carrier.Set("x-request-id", tid)
	}
	msg.Headers = []sarama.RecordHeader(carrier)

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	logctx.FromCtx(ctx, p.log).Infow("payment event published",
		"topic", p.topic,
		"payment_id", evt.PaymentID,
		"to", evt.To,
		"partition", partition,
		"offset", offset,
	)
	return nil
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishStatusChanged(context.Context, PaymentStatusChanged) error { return nil }

// headerCarrier adapts Kafka record headers to propagation.TextMapCarrier.
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}

func newProducerConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Version = sarama.V2_8_0_0
	return cfg
}

func NewPublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Infow("kafka brokers not configured, payment events disabled")
		return NopPublisher{}, nil
	}
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, newProducerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	log.Infow("kafka producer initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})
	return NewKafkaPublisher(producer, cfg.Kafka.Topic, log), nil
}

var Module = fx.Options(
	fx.Provide(NewPublisher),
)
