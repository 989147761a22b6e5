// Package audit records balance mutations on a Kafka topic
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"playersync/pkg/model"
)

// EventType names what happened
type EventType string

const (
	EventBalanceSet         EventType = "balance.set"
	EventBalanceAdd         EventType = "balance.add"
	EventBalanceRemove      EventType = "balance.remove"
	EventTransfer           EventType = "balance.transfer"
	EventCompensationFailed EventType = "balance.transfer_compensation_failed"
)

// Event is one audit record
type Event struct {
	ID           uuid.UUID  `json:"id"`
	Type         EventType  `json:"type"`
	Player       uuid.UUID  `json:"player"`
	Counterparty *uuid.UUID `json:"counterparty,omitempty"`
	Amount       float64    `json:"amount"`
	Balance      *float64   `json:"balance,omitempty"`
	Source       string     `json:"source,omitempty"`
	Error        string     `json:"error,omitempty"`
	Time         time.Time  `json:"time"`
}

// NewEvent fills in the id and timestamp
func NewEvent(typ EventType, player uuid.UUID, amount float64) Event {
	return Event{
		ID:     uuid.New(),
		Type:   typ,
		Player: player,
		Amount: amount,
		Time:   time.Now().UTC(),
	}
}

// WithBalance records the balance after the mutation
func (e Event) WithBalance(balance float64) Event {
	e.Balance = &balance
	return e
}

// WithCounterparty records the other side of a transfer
func (e Event) WithCounterparty(other uuid.UUID) Event {
	e.Counterparty = &other
	return e
}

// WithError records the failure that produced the event
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// Marshal encodes the event as JSON
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a JSON event
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: audit event: %w", model.ErrDecode, err)
	}
	return e, nil
}

// Sink receives audit events. Emit never blocks on delivery and never fails the caller.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Nop discards events
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Recorder keeps events in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything emitted so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
