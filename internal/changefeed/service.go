// Package changefeed republishes out-of-band durable changes as replication
// messages. It tails the MongoDB change stream of the player collections, so
// edits made directly in the database reach every node's local cache.
package changefeed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playersync/pkg/changestream"
	"playersync/pkg/logger"
	"playersync/pkg/metrics"
	"playersync/pkg/model"
	"playersync/pkg/replication"
	"playersync/pkg/retry"
	"playersync/pkg/token"
)

// Publisher drops stale shared entries and announces a change
type Publisher interface {
	Drop(ctx context.Context, keys ...model.Key)
	Announce(ctx context.Context, player uuid.UUID, op model.Operation, payload string)
}

// Change is a change event translated into replication terms
type Change struct {
	Kind    model.Kind
	Key     model.Key
	Op      model.Operation
	Payload string
}

var errSkip = errors.New("event carries no replicable change")

// Service coordinates the change feed components
type Service struct {
	logger     *logger.Logger
	tokenStore token.Store
	watcher    changestream.Watcher
	publishers map[string]Publisher
	kinds      map[string]model.Kind
	retryOpts  retry.RetryOptions
	watchOpts  retry.RetryOptions
}

// NewService creates a change feed over the given publishers, keyed by kind
func NewService(
	logger *logger.Logger,
	tokenStore token.Store,
	watcher changestream.Watcher,
	publishers map[model.Kind]Publisher,
) *Service {
	s := &Service{
		logger:     logger.Named("changefeed"),
		tokenStore: tokenStore,
		watcher:    watcher,
		publishers: make(map[string]Publisher, len(publishers)),
		kinds:      make(map[string]model.Kind, len(publishers)),
		retryOpts:  retry.DefaultOptions(),
		watchOpts:  retry.ForeverOptions(),
	}
	for kind, p := range publishers {
		s.publishers[kind.Collection()] = p
		s.kinds[kind.Collection()] = kind
	}
	return s
}

// Collections lists the durable collections the feed needs to watch
func (s *Service) Collections() []string {
	out := make([]string, 0, len(s.kinds))
	for _, kind := range model.Kinds {
		if _, ok := s.kinds[kind.Collection()]; ok {
			out = append(out, kind.Collection())
		}
	}
	return out
}

// Run tails the change stream until ctx is cancelled, reopening it from the
// last saved token after failures
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting change feed", zap.Strings("collections", s.Collections()))
	defer func() {
		if err := s.watcher.Close(); err != nil {
			s.logger.Warn("failed to close change stream", zap.Error(err))
		}
	}()

	opts := s.watchOpts
	opts.Classifier = func(error) bool { return ctx.Err() == nil }
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("change stream interrupted, reopening",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}
	err := retry.Do(ctx, func() error { return s.runOnce(ctx) }, opts)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Service) runOnce(ctx context.Context) error {
	resumeToken, err := s.tokenStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load resume token: %w", err)
	}

	eventChan, errChan := s.watcher.Watch(ctx, resumeToken)
	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				if err := <-errChan; err != nil {
					return fmt.Errorf("watcher error: %w", err)
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("change stream closed")
			}
			if err := s.processEvent(ctx, event); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) processEvent(ctx context.Context, event changestream.ChangeEvent) error {
	change, err := s.Translate(event)
	switch {
	case errors.Is(err, errSkip):
		s.logger.Debug("skipping change event", zap.String("event_id", event.ID), zap.Error(err))
	case err != nil:
		s.logger.Warn("unreadable change event", zap.String("event_id", event.ID), zap.Error(err))
	default:
		pub := s.publishers[event.Namespace.Collection]
		pub.Drop(ctx, change.Key)
		if change.Op != "" {
			pub.Announce(ctx, change.Key.Player, change.Op, change.Payload)
		}
		metrics.ChangeFeedEventsTotal.WithLabelValues(string(change.Kind)).Inc()
	}

	if len(event.ResumeToken) == 0 {
		return nil
	}
	err = retry.Do(ctx, func() error {
		return s.tokenStore.Save(ctx, event.ResumeToken)
	}, s.retryOpts)
	if err != nil {
		return fmt.Errorf("failed to save resume token after retries: %w", err)
	}
	metrics.ChangeFeedTokenSavesTotal.Inc()

	s.logger.Debug("processed event successfully", zap.String("event_id", event.ID))
	return nil
}

// Translate maps a change event to the replication message receivers expect.
// Balance changes carry the new balance. Snapshot changes carry the snapshot
// name so receivers drop their local copy. A Change with an empty Op only
// invalidates the shared entry.
func (s *Service) Translate(event changestream.ChangeEvent) (Change, error) {
	kind, ok := s.kinds[event.Namespace.Collection]
	if !ok {
		return Change{}, fmt.Errorf("%w: collection %q is not replicated", errSkip, event.Namespace.Collection)
	}
	doc := event.Document()
	if len(doc) == 0 {
		return Change{}, fmt.Errorf("%w: %s event has no document image", errSkip, event.OperationType)
	}

	rawPlayer, _ := doc["player_uuid"].(string)
	player, err := model.ParsePlayerID(rawPlayer)
	if err != nil {
		return Change{}, err
	}
	change := Change{Kind: kind, Key: model.Key{Player: player}}

	if kind == model.KindEconomy {
		if event.OperationType == changestream.OpDelete {
			return change, nil
		}
		balance, err := number(doc["balance"])
		if err != nil {
			return Change{}, err
		}
		change.Op = model.OpSet
		change.Payload = replication.FormatBalance(balance)
		return change, nil
	}

	name, _ := doc["name"].(string)
	if name == "" {
		return Change{}, fmt.Errorf("%w: snapshot document has no name", model.ErrDecode)
	}
	change.Key.Name = name
	change.Payload = name
	switch event.OperationType {
	case changestream.OpInsert, changestream.OpReplace:
		change.Op = model.OpSave
	case changestream.OpUpdate:
		change.Op = model.OpUpdate
	case changestream.OpDelete:
		change.Op = model.OpDelete
	default:
		return Change{}, fmt.Errorf("%w: operation %q", errSkip, event.OperationType)
	}
	return change, nil
}

func number(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: balance has type %T", model.ErrDecode, v)
}
