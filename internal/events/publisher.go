package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	// EventsExchange is the topic exchange all storefront events go to.
	EventsExchange = "storefront.events"
	// OrderPlacedRoutingKey routes order placed events.
	OrderPlacedRoutingKey = "order.placed.v1"

	publishTimeout = 3 * time.Second
)

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher publishes order events over AMQP.
type Publisher struct {
	ch       Channel
	conn     *amqp.Connection
	producer string
	now      func() time.Time
}

var _ order.Publisher = (*Publisher)(nil)

// Dial connects to the broker and opens a publisher on a fresh channel.
// The returned close function releases both the channel and the connection.
func Dial(url, producer string) (*Publisher, func() error, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Dial: amqp.DefaultDial(10 * time.Second),
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "dial amqp")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Wrap(err, "open channel")
	}
	p, err := NewPublisher(ch, producer)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	p.conn = conn
	closeFn := func() error {
		if err := p.Close(); err != nil {
			_ = conn.Close()
			return err
		}
		return conn.Close()
	}
	return p, closeFn, nil
}

// IsClosed reports whether the broker connection opened by Dial is gone.
func (p *Publisher) IsClosed() bool {
	return p.conn != nil && p.conn.IsClosed()
}

// NewPublisher declares the events exchange on ch and returns a Publisher.
func NewPublisher(ch Channel, producer string) (*Publisher, error) {
	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return nil, errors.Wrapf(err, "declare %s", EventsExchange)
	}
	return &Publisher{ch: ch, producer: producer, now: time.Now}, nil
}

// Close closes the underlying channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}

// PublishOrderPlaced implements order.Publisher.
func (p *Publisher) PublishOrderPlaced(ctx context.Context, o *order.Order) error {
	env := BuildOrderPlacedEnvelope(o, p.producer, p.now())

	var e jx.Encoder
	env.Encode(&e)

	if err := p.publishJSON(ctx, OrderPlacedRoutingKey, env.EventID, e.Bytes()); err != nil {
		return errors.Wrapf(err, "publish %s", OrderPlacedRoutingKey)
	}
	return nil
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID string, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		EventsExchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    p.now().UTC(),
			Body:         body,
		},
	)
}
