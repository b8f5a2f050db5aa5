package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/quickpay/internal/application/relay"
	"github.com/orris-inc/quickpay/internal/shared/biztime"
	"github.com/orris-inc/quickpay/internal/shared/goroutine"
	"github.com/orris-inc/quickpay/internal/shared/logger"
)

const defaultPaymentEventChannel = "quickpay:payment:events"

// PaymentEventMessage is the wire form of a terminal payment outcome.
type PaymentEventMessage struct {
	relay.PaymentEvent
	InstanceID string `json:"instance_id"`
}

// PaymentEventBus publishes relayer outcomes over Redis Pub/Sub so API instances
// and downstream consumers learn about settlement without polling.
type PaymentEventBus struct {
	client     *redis.Client
	channel    string
	logger     logger.Interface
	instanceID string
}

var _ relay.Notifier = (*PaymentEventBus)(nil)

func NewPaymentEventBus(client *redis.Client, channel string, log logger.Interface) *PaymentEventBus {
	if channel == "" {
		channel = defaultPaymentEventChannel
	}
	return &PaymentEventBus{
		client:     client,
		channel:    channel,
		logger:     log,
		instanceID: uuid.NewString(),
	}
}

// InstanceID identifies events published by this process.
func (b *PaymentEventBus) InstanceID() string {
	return b.instanceID
}

// PublishPaymentEvent implements relay.Notifier.
func (b *PaymentEventBus) PublishPaymentEvent(ctx context.Context, event relay.PaymentEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = biztime.NowUTC()
	}
	data, err := json.Marshal(PaymentEventMessage{PaymentEvent: event, InstanceID: b.instanceID})
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish payment event",
			"payment_id", event.PaymentID,
			"status", event.Status,
			"error", err,
		)
		return fmt.Errorf("failed to publish payment event: %w", err)
	}

	b.logger.Debugw("payment event published",
		"payment_id", event.PaymentID,
		"status", event.Status,
	)
	return nil
}

// Subscribe delivers every payment event to handler until ctx is cancelled,
// reconnecting with exponential backoff when the subscription drops.
func (b *PaymentEventBus) Subscribe(ctx context.Context, handler func(PaymentEventMessage)) error {
	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		err := b.subscribe(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		b.logger.Warnw("payment event subscription disconnected, reconnecting",
			"channel", b.channel,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, maxBackoff)
	}
}

func (b *PaymentEventBus) subscribe(ctx context.Context, handler func(PaymentEventMessage)) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to channel %s: %w", b.channel, err)
	}
	b.logger.Infow("subscribed to payment events", "channel", b.channel)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event PaymentEventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warnw("failed to unmarshal payment event",
					"payload", msg.Payload,
					"error", err,
				)
				continue
			}
			goroutine.SafeGo(b.logger, "payment-event-handler", func() {
				handler(event)
			})
		}
	}
}
