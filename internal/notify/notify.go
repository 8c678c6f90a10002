// Package notify delivers order confirmations.
//
// RedisPublisher publishes a JSON confirmation event on a pub/sub channel for
// the mailer to pick up. LogNotifier only writes the confirmation to the log
// and is used when no Redis address is configured.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

// DefaultChannel is the pub/sub channel confirmations are published on.
const DefaultChannel = "orders.confirmed"

// Publisher is the subset of the Redis client used by RedisPublisher.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

var _ order.Notifier = (*RedisPublisher)(nil)

// RedisPublisher implements order.Notifier on Redis pub/sub.
type RedisPublisher struct {
	client  Publisher
	channel string
}

// NewRedisPublisher returns a publisher writing to channel.
func NewRedisPublisher(client Publisher, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

// OrderConfirmed publishes the confirmation event and waits for Redis to
// acknowledge it.
func (p *RedisPublisher) OrderConfirmed(ctx context.Context, o *order.Order, to auth.Principal) error {
	payload := EncodeConfirmation(o, to)
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish confirmation for order %s", o.ID)
	}
	zctx.From(ctx).Debug("Order confirmation published",
		zap.String("order_id", o.ID),
		zap.String("channel", p.channel),
	)
	return nil
}

var _ order.Notifier = LogNotifier{}

// LogNotifier implements order.Notifier by logging the confirmation.
type LogNotifier struct{}

// OrderConfirmed logs the confirmation that would have been sent.
func (LogNotifier) OrderConfirmed(ctx context.Context, o *order.Order, to auth.Principal) error {
	zctx.From(ctx).Info("Order confirmed",
		zap.String("order_id", o.ID),
		zap.String("subject", Subject(o)),
		zap.String("to", to.Email),
		zap.String("total", o.TotalPrice.StringFixed(2)),
		zap.String("status", string(o.Status)),
	)
	return nil
}

// Subject is the human-facing confirmation title.
func Subject(o *order.Order) string {
	return "Order confirmation #" + o.Reference()
}

// EncodeConfirmation renders the confirmation event as JSON.
func EncodeConfirmation(o *order.Order, to auth.Principal) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("type", func(e *jx.Encoder) { e.Str("order.confirmed") })
		e.Field("order_id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("reference", func(e *jx.Encoder) { e.Str(o.Reference()) })
		e.Field("subject", func(e *jx.Encoder) { e.Str(Subject(o)) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.TotalPrice.StringFixed(2)) })
		e.Field("item_count", func(e *jx.Encoder) { e.Int(len(o.Items)) })
		e.Field("paid_at", func(e *jx.Encoder) { e.Str(o.PaidAt.UTC().Format(time.RFC3339)) })
		e.Field("to", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(to.ID) })
				e.Field("name", func(e *jx.Encoder) { e.Str(to.Name) })
				e.Field("email", func(e *jx.Encoder) { e.Str(to.Email) })
			})
		})
	})

	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out
}

// PingCheck returns a readiness check for the Redis connection.
func PingCheck(client redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Wrap(err, "redis ping")
		}
		return nil
	}
}

