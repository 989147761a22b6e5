package replication

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"playersync/pkg/model"
)

// ClearAll is the payload of a clear message, which targets every snapshot of a player
const ClearAll = "all"

// Message is one change notification exchanged over a pub/sub channel
type Message struct {
	Channel   string
	Player    uuid.UUID
	Operation model.Operation
	Payload   string
}

// Encode renders the wire form "<player_id>:<operation>:<payload>"
func (m Message) Encode() string {
	return fmt.Sprintf("%s:%s:%s", m.Player, m.Operation, m.Payload)
}

// Parse decodes a raw pub/sub payload. Only the first two colons separate fields,
// so the payload itself may contain colons.
func Parse(channel, raw string) (Message, error) {
	if strings.TrimSpace(raw) == "" {
		return Message{}, errors.New("empty message")
	}

	parts := strings.SplitN(raw, ":", 3)
	if len(parts) < 2 {
		return Message{}, fmt.Errorf("missing operation in %q", raw)
	}

	player, err := uuid.Parse(parts[0])
	if err != nil {
		return Message{}, fmt.Errorf("invalid player id %q: %w", parts[0], err)
	}

	op := model.Operation(parts[1])
	if op == "" {
		return Message{}, errors.New("missing operation type")
	}
	if !op.Valid() {
		return Message{}, fmt.Errorf("unknown operation %q", op)
	}

	msg := Message{
		Channel:   channel,
		Player:    player,
		Operation: op,
	}
	if len(parts) == 3 {
		msg.Payload = parts[2]
	}
	return msg, nil
}

// FormatBalance renders a balance payload without losing precision
func FormatBalance(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseBalance decodes a balance payload. Non-finite values are rejected.
func ParseBalance(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: balance %q: %w", model.ErrDecode, s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: balance %q is not finite", model.ErrDecode, s)
	}
	return v, nil
}
