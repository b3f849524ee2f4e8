// Package kafka carries order insert events over a Kafka topic: a Feed for
// the relay and a publishing decorator for the order repository.
package kafka

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/prefab-storefront/internal/domain/order"
	"github.com/xenking/prefab-storefront/internal/domain/relay"
)

// messageReader abstracts kafka.Reader for testability.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// messageWriter abstracts kafka.Writer for testability.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ relay.Feed = (*Feed)(nil)

// Feed reads order insert payloads from a topic.
type Feed struct {
	reader messageReader
}

// NewFeed joins group on topic. Without a group the feed starts at the end
// of partition 0.
func NewFeed(brokers []string, topic, group string) *Feed {
	cfg := kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  group,
		MaxBytes: 10e6, // 10MB
	}
	if group == "" {
		cfg.StartOffset = kafka.LastOffset
	}
	return &Feed{reader: kafka.NewReader(cfg)}
}

// Next returns the value of the next message.
func (f *Feed) Next(ctx context.Context) ([]byte, error) {
	m, err := f.reader.ReadMessage(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read message")
	}
	return m.Value, nil
}

// Close closes the reader.
func (f *Feed) Close() error {
	return f.reader.Close()
}

var _ order.Repository = (*PublishingOrders)(nil)

// PublishingOrders wraps an order repository and publishes every created
// order to a topic. A failed publish is logged; the order stays created.
type PublishingOrders struct {
	next    order.Repository
	writer  messageWriter
	lg      *zap.Logger
	timeout time.Duration
}

// NewPublishingOrders publishes to topic on brokers.
func NewPublishingOrders(next order.Repository, brokers []string, topic string, lg *zap.Logger) *PublishingOrders {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &PublishingOrders{
		next: next,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
		lg:      lg,
		timeout: 5 * time.Second,
	}
}

// Create stores the order, then publishes it keyed by order id.
func (p *PublishingOrders) Create(ctx context.Context, o *order.Order) error {
	if err := p.next.Create(ctx, o); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{Key: []byte(o.ID), Value: EncodeInsert(o)}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.lg.Warn("Publishing order insert failed", zap.String("order_id", o.ID), zap.Error(err))
	}
	return nil
}

// ListByUser delegates to the wrapped repository.
func (p *PublishingOrders) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return p.next.ListByUser(ctx, userID)
}

// Close flushes and closes the writer.
func (p *PublishingOrders) Close() error {
	return p.writer.Close()
}

// EncodeInsert renders the insert event in the shape the relay decodes.
func EncodeInsert(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("customer_name")
	e.Str(o.CustomerName)
	e.FieldStart("total_amount")
	e.Str(o.TotalAmount.StringFixed(2))
	e.ObjEnd()
	return e.Bytes()
}
