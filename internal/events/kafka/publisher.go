// Package kafka publishes ledger events to a Kafka topic for external
// indexers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/opolis/payledger/internal/ledger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "payledger.events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a ledger.EventSink that writes each event as one JSON message.
type Publisher struct {
	writer messageWriter
	logger *zap.Logger
}

// NewPublisher creates a Publisher writing to topic on brokers.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, logger)
}

func newPublisher(w messageWriter, logger *zap.Logger) *Publisher {
	return &Publisher{writer: w, logger: logger}
}

// Publish implements ledger.EventSink. Events for the same payroll or member
// share a key, so a partition sees them in order.
func (p *Publisher) Publish(ctx context.Context, ev ledger.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(messageKey(ev)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", ev.Kind, err)
	}
	p.logger.Debug("event published to kafka", zap.String("kind", string(ev.Kind)))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func messageKey(ev ledger.Event) string {
	switch ev.Kind {
	case ledger.EventPaid, ledger.EventOpsPayrollWithdraw:
		return "payroll/" + strconv.FormatUint(ev.PayrollID, 10)
	case ledger.EventStaked, ledger.EventOpsStakeWithdraw:
		return "member/" + strconv.FormatUint(ev.MemberID, 10)
	default:
		return "config"
	}
}

var _ ledger.EventSink = (*Publisher)(nil)
