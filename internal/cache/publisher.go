package cache

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playersync/pkg/logger"
	"playersync/pkg/metrics"
	"playersync/pkg/model"
	"playersync/pkg/replication"
	"playersync/pkg/sharedcache"
)

// Shared is the shared cache tier as seen by a Cache
type Shared interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Publish(ctx context.Context, channel, payload string) error
	Subscribe(ctx context.Context, channel string) (sharedcache.Subscription, error)
}

// Publisher announces changes of one kind on its replication channel.
// Processes that write the durable store without a Cache use it directly.
type Publisher struct {
	kind    model.Kind
	channel string
	shared  Shared
	logger  *logger.Logger
}

// NewPublisher creates a publisher for kind on the channel under prefix
func NewPublisher(kind model.Kind, prefix string, shared Shared, l *logger.Logger) *Publisher {
	return &Publisher{
		kind:    kind,
		channel: kind.Channel(prefix),
		shared:  shared,
		logger:  l,
	}
}

// Announce publishes "<player>:<op>:<payload>". Failures are logged, never returned.
func (p *Publisher) Announce(ctx context.Context, player uuid.UUID, op model.Operation, payload string) {
	msg := replication.Message{Channel: p.channel, Player: player, Operation: op, Payload: payload}
	if err := p.shared.Publish(ctx, p.channel, msg.Encode()); err != nil {
		metrics.SharedCacheErrorsTotal.WithLabelValues(string(p.kind), "publish").Inc()
		p.logger.Warn("failed to publish replication message",
			zap.String("channel", p.channel),
			zap.String("player", player.String()),
			zap.String("op", string(op)),
			zap.Error(err),
		)
		return
	}
	metrics.ReplicationPublishedTotal.WithLabelValues(string(p.kind)).Inc()
}

// Drop removes shared cache entries so the next read goes to the durable store
func (p *Publisher) Drop(ctx context.Context, keys ...model.Key) {
	if len(keys) == 0 {
		return
	}
	rendered := make([]string, len(keys))
	for i, k := range keys {
		rendered[i] = p.kind.CacheKey(k)
	}
	if err := p.shared.Delete(ctx, rendered...); err != nil {
		metrics.SharedCacheErrorsTotal.WithLabelValues(string(p.kind), "delete").Inc()
		p.logger.Warn("failed to drop shared cache entries", zap.Strings("keys", rendered), zap.Error(err))
	}
}

// Channel is the pub/sub channel messages go out on
func (p *Publisher) Channel() string {
	return p.channel
}
