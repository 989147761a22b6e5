package audit

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"playersync/pkg/logger"
	"playersync/pkg/metrics"
)

// Config holds Kafka settings for the audit topic
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events asynchronously, keyed by player so that one
// player's events stay ordered within a partition.
type KafkaSink struct {
	writer messageWriter
	logger *logger.Logger
}

// NewKafkaSink creates a sink writing to cfg.Topic
func NewKafkaSink(cfg Config, l *logger.Logger) *KafkaSink {
	l = l.Named("audit")
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Async:    true,
		Balancer: &kafka.Hash{},
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				metrics.AuditPublishErrorsTotal.Add(float64(len(messages)))
				l.Error("failed to deliver audit events", err, zap.Int("count", len(messages)))
			}
		},
	}

	return &KafkaSink{
		writer: writer,
		logger: l,
	}
}

func (s *KafkaSink) Emit(ctx context.Context, e Event) {
	value, err := e.Marshal()
	if err != nil {
		metrics.AuditPublishErrorsTotal.Inc()
		s.logger.Error("failed to encode audit event", err, zap.String("type", string(e.Type)))
		return
	}

	msg := kafka.Message{
		Key:   []byte(e.Player.String()),
		Value: value,
	}
	// Async writer: this only fails on structural errors
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		metrics.AuditPublishErrorsTotal.Inc()
		s.logger.Error("failed to queue audit event", err, zap.String("type", string(e.Type)))
	}
}

// Close flushes pending events and shuts down the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Reader tails the audit topic
type Reader struct {
	reader *kafka.Reader
}

// NewReader creates a reader. Without a GroupID it reads partition 0 from the end.
func NewReader(cfg Config) *Reader {
	rc := kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	}
	if cfg.GroupID == "" {
		rc.StartOffset = kafka.LastOffset
	}

	return &Reader{reader: kafka.NewReader(rc)}
}

// Events streams decoded events until ctx is done or the reader fails.
// Undecodable records are reported on the error channel and skipped.
func (r *Reader) Events(ctx context.Context) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		for {
			m, err := r.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("failed to read audit event: %w", err)
				return
			}

			e, err := Unmarshal(m.Value)
			if err != nil {
				select {
				case errs <- err:
				default:
				}
				continue
			}

			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs
}

// Close shuts down the reader
func (r *Reader) Close() error {
	return r.reader.Close()
}
