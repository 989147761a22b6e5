package cache

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"playersync/pkg/metrics"
	"playersync/pkg/model"
	"playersync/pkg/replication"
	"playersync/pkg/retry"
)

// Notifier is told about every applied replication message. It runs on the
// worker pool, never on the listener goroutine.
type Notifier func(ctx context.Context, msg replication.Message)

type notifierBox struct {
	v atomic.Pointer[Notifier]
}

// SetNotifier registers n, replacing any previous notifier. nil removes it.
func (c *Cache[V]) SetNotifier(n Notifier) {
	if n == nil {
		c.notifier.v.Store(nil)
		return
	}
	c.notifier.v.Store(&n)
}

// Ready is closed once the first subscription is confirmed
func (c *Cache[V]) Ready() <-chan struct{} {
	return c.ready
}

// Listen consumes the kind's replication channel until ctx is done,
// resubscribing with backoff whenever the subscription breaks.
func (c *Cache[V]) Listen(ctx context.Context) error {
	channel := c.pub.Channel()

	opts := c.retry
	opts.Classifier = func(error) bool { return ctx.Err() == nil }
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("replication subscription lost, resubscribing",
			zap.String("channel", channel),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	err := retry.Do(ctx, func() error {
		return c.listenOnce(ctx, channel)
	}, opts)
	if ctx.Err() != nil {
		c.logger.Info("replication listener stopped", zap.String("channel", channel))
		return nil
	}
	return err
}

func (c *Cache[V]) listenOnce(ctx context.Context, channel string) error {
	sub, err := c.shared.Subscribe(ctx, channel)
	if err != nil {
		return err
	}
	// Receive does not observe cancellation, closing the subscription unblocks it
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer func() {
		stop()
		_ = sub.Close()
	}()

	c.readyOne.Do(func() { close(c.ready) })
	c.logger.Info("listening for replication messages", zap.String("channel", channel))

	for {
		payload, err := sub.Receive(ctx)
		if err != nil {
			return err
		}
		c.handle(ctx, channel, payload)
	}
}

func (c *Cache[V]) handle(ctx context.Context, channel, raw string) {
	msg, err := replication.Parse(channel, raw)
	if err != nil {
		c.malformed(raw, err)
		return
	}

	if c.kind == model.KindEconomy {
		v, err := c.codec.Decode(msg.Payload)
		if err != nil {
			c.malformed(raw, err)
			return
		}
		c.local.store(model.Key{Player: msg.Player}, v)
	} else {
		switch msg.Operation {
		case model.OpClear, model.OpLoad:
			// No stored snapshot changed
		default:
			if msg.Payload != "" {
				c.local.delete(model.Key{Player: msg.Player, Name: msg.Payload})
			}
		}
	}

	metrics.ReplicationReceivedTotal.WithLabelValues(string(c.kind)).Inc()
	c.logger.Debug("applied replication message",
		zap.String("player", msg.Player.String()),
		zap.String("op", string(msg.Operation)),
	)
	c.notify(ctx, msg)
}

func (c *Cache[V]) notify(ctx context.Context, msg replication.Message) {
	n := c.notifier.v.Load()
	if n == nil || c.pool == nil {
		return
	}
	notifier := *n
	if err := c.pool.Submit(ctx, func(jobCtx context.Context) {
		notifier(jobCtx, msg)
	}); err != nil {
		c.logger.Warn("failed to dispatch notifier", zap.Error(err))
	}
}

func (c *Cache[V]) malformed(raw string, err error) {
	metrics.ReplicationMalformedTotal.WithLabelValues(string(c.kind)).Inc()
	c.logger.Warn("discarding malformed replication message", zap.String("raw", raw), zap.Error(err))
}
