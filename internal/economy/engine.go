// Package economy validates and applies balance mutations
package economy

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playersync/pkg/audit"
	"playersync/pkg/logger"
	"playersync/pkg/metrics"
	"playersync/pkg/model"
	"playersync/pkg/store"
)

// Config holds balance rules
type Config struct {
	StartingBalance float64
	MinBalance      float64
	// MaxBalance <= 0 means unbounded
	MaxBalance float64
}

// DefaultConfig matches the defaults of the config package
func DefaultConfig() Config {
	return Config{StartingBalance: 1000, MinBalance: 0, MaxBalance: 0}
}

// Engine applies balance operations through a Tier. Atomic increments go to
// the store directly so concurrent adds from several processes never lose updates.
type Engine struct {
	tier   Tier
	store  store.BalanceStore
	cfg    Config
	audit  audit.Sink
	logger *logger.Logger
	source string
}

// Option customizes an Engine
type Option func(*Engine)

// WithAudit sets the sink receiving mutation events
func WithAudit(s audit.Sink) Option {
	return func(e *Engine) { e.audit = s }
}

// WithLogger sets the engine logger
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.logger = l.Named("economy") }
}

// WithSource tags audit events with the origin (node id, "rpc")
func WithSource(source string) Option {
	return func(e *Engine) { e.source = source }
}

// NewEngine creates an engine
func NewEngine(tier Tier, s store.BalanceStore, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		tier:   tier,
		store:  s,
		cfg:    cfg,
		audit:  audit.Nop{},
		logger: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine's balance rules
func (e *Engine) Config() Config {
	return e.cfg
}

// Balance returns the player's balance, creating the record on first access
func (e *Engine) Balance(ctx context.Context, player uuid.UUID) (float64, error) {
	return e.tier.Read(ctx, player)
}

// Has reports whether the player holds at least amount
func (e *Engine) Has(ctx context.Context, player uuid.UUID, amount float64) (bool, error) {
	current, err := e.tier.Read(ctx, player)
	if err != nil {
		return false, err
	}
	return current >= amount, nil
}

// Set replaces the balance
func (e *Engine) Set(ctx context.Context, player uuid.UUID, value float64) error {
	err := e.set(ctx, player, value)
	e.record(model.OpSet, err)
	if err == nil {
		e.emit(ctx, audit.NewEvent(audit.EventBalanceSet, player, value).WithBalance(value))
	}
	return err
}

func (e *Engine) set(ctx context.Context, player uuid.UUID, value float64) error {
	if !finite(value) {
		return fmt.Errorf("%w: %v", model.ErrInvalidAmount, value)
	}
	if !e.inBounds(value) {
		return fmt.Errorf("%w: %v not in %s", model.ErrOutOfBounds, value, e.bounds())
	}

	_, err := e.tier.Commit(ctx, player, model.OpSet, func(ctx context.Context) (float64, error) {
		_, err := e.store.SetBalance(ctx, player, value)
		return value, err
	})
	return err
}

// Add credits amount and returns the new balance
func (e *Engine) Add(ctx context.Context, player uuid.UUID, amount float64) (float64, error) {
	balance, err := e.add(ctx, player, amount)
	e.record(model.OpAdd, err)
	if err == nil {
		e.emit(ctx, audit.NewEvent(audit.EventBalanceAdd, player, amount).WithBalance(balance))
	}
	return balance, err
}

func (e *Engine) add(ctx context.Context, player uuid.UUID, amount float64) (float64, error) {
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	current, err := e.tier.Read(ctx, player)
	if err != nil {
		return 0, err
	}
	if !e.inBounds(current + amount) {
		return 0, fmt.Errorf("%w: %v + %v not in %s", model.ErrOutOfBounds, current, amount, e.bounds())
	}

	return e.tier.Commit(ctx, player, model.OpAdd, func(ctx context.Context) (float64, error) {
		return e.store.IncrementBalance(ctx, player, amount, e.cfg.StartingBalance)
	})
}

// Remove debits amount and returns the new balance
func (e *Engine) Remove(ctx context.Context, player uuid.UUID, amount float64) (float64, error) {
	balance, err := e.remove(ctx, player, amount)
	e.record(model.OpRemove, err)
	if err == nil {
		e.emit(ctx, audit.NewEvent(audit.EventBalanceRemove, player, amount).WithBalance(balance))
	}
	return balance, err
}

func (e *Engine) remove(ctx context.Context, player uuid.UUID, amount float64) (float64, error) {
	if err := validAmount(amount); err != nil {
		return 0, err
	}
	current, err := e.tier.Read(ctx, player)
	if err != nil {
		return 0, err
	}
	if current < amount {
		return 0, fmt.Errorf("%w: has %v, needs %v", model.ErrInsufficientFunds, current, amount)
	}
	if !e.inBounds(current - amount) {
		return 0, fmt.Errorf("%w: %v - %v not in %s", model.ErrOutOfBounds, current, amount, e.bounds())
	}

	return e.tier.Commit(ctx, player, model.OpRemove, func(ctx context.Context) (float64, error) {
		return e.store.IncrementBalance(ctx, player, -amount, e.cfg.StartingBalance)
	})
}

// Transfer moves amount from one player to another. The debit happens first;
// if the credit fails the debit is reverted. A failed revert is reported as
// model.ErrCompensationFailed.
func (e *Engine) Transfer(ctx context.Context, from, to uuid.UUID, amount float64) error {
	err := e.transfer(ctx, from, to, amount)
	e.record("transfer", err)
	if err == nil {
		e.emit(ctx, audit.NewEvent(audit.EventTransfer, from, amount).WithCounterparty(to))
	}
	return err
}

func (e *Engine) transfer(ctx context.Context, from, to uuid.UUID, amount float64) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if from == to {
		return model.ErrSamePlayer
	}

	if _, err := e.remove(ctx, from, amount); err != nil {
		return err
	}

	_, addErr := e.add(ctx, to, amount)
	if addErr == nil {
		return nil
	}

	if _, err := e.add(ctx, from, amount); err != nil {
		metrics.TransferCompensationFailuresTotal.Inc()
		e.logger.Error("transfer compensation failed, funds are in limbo", err,
			zap.String("from", from.String()),
			zap.String("to", to.String()),
			zap.Float64("amount", amount),
			zap.NamedError("credit_error", addErr),
		)
		e.emit(ctx, audit.NewEvent(audit.EventCompensationFailed, from, amount).
			WithCounterparty(to).
			WithError(errors.Join(addErr, err)))
		return fmt.Errorf("%w: credit: %w, refund: %w", model.ErrCompensationFailed, addErr, err)
	}

	e.logger.Warn("transfer credit failed, sender refunded",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Float64("amount", amount),
		zap.Error(addErr),
	)
	return fmt.Errorf("transfer credit: %w", addErr)
}

func (e *Engine) inBounds(v float64) bool {
	if v < e.cfg.MinBalance {
		return false
	}
	return e.cfg.MaxBalance <= 0 || v <= e.cfg.MaxBalance
}

func (e *Engine) bounds() string {
	if e.cfg.MaxBalance <= 0 {
		return fmt.Sprintf("[%v, +inf)", e.cfg.MinBalance)
	}
	return fmt.Sprintf("[%v, %v]", e.cfg.MinBalance, e.cfg.MaxBalance)
}

func (e *Engine) record(op model.Operation, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, model.ErrValidation):
		result = "rejected"
	default:
		result = "error"
	}
	metrics.MutationsTotal.WithLabelValues(string(op), result).Inc()
}

func (e *Engine) emit(ctx context.Context, ev audit.Event) {
	ev.Source = e.source
	e.audit.Emit(ctx, ev)
}

func validAmount(amount float64) error {
	if !finite(amount) || amount <= 0 {
		return fmt.Errorf("%w: %v", model.ErrInvalidAmount, amount)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
