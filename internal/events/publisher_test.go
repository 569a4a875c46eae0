package events

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
	deadline bool
}

type fakeChannel struct {
	declared   []string
	published  []published
	declareErr error
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	_, ok := ctx.Deadline()
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg, deadline: ok})
	return f.publishErr
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func testOrder(t *testing.T) *order.Order {
	t.Helper()
	lines := []pricing.LineItem{
		{ProductID: "A", UnitPrice: decimal.NewFromInt(500000), Quantity: 2, DiscountPercent: decimal.NewFromInt(10)},
	}
	promo := &pricing.Promotion{Kind: pricing.PromotionPercentage, Value: decimal.NewFromInt(10)}
	res, err := pricing.Compute(lines, promo, decimal.Zero)
	require.NoError(t, err)
	return &order.Order{
		ID:         "order-1",
		Lines:      lines,
		Promotion:  promo,
		CouponCode: "TENOFF",
		Pricing:    res,
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewPublisher_DeclaresExchange(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "storefront-api")
	require.NoError(t, err)
	assert.Equal(t, []string{"storefront.events:topic"}, ch.declared)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestNewPublisher_DeclareError(t *testing.T) {
	_, err := NewPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "storefront-api")
	require.Error(t, err)
}

func TestPublishOrderPlaced(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, "storefront-api")
	require.NoError(t, err)

	require.NoError(t, p.PublishOrderPlaced(context.Background(), testOrder(t)))
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, EventsExchange, got.exchange)
	assert.Equal(t, OrderPlacedRoutingKey, got.key)
	assert.True(t, got.deadline, "publish is bounded by a timeout")
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.NotEmpty(t, got.msg.MessageId)

	fields := map[string]string{}
	var payload map[string]string
	err = jx.DecodeBytes(got.msg.Body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "payload" {
			payload = map[string]string{}
			return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
				raw, err := d.Raw()
				payload[string(key)] = raw.String()
				return err
			})
		}
		raw, err := d.Raw()
		fields[string(key)] = raw.String()
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, `"OrderPlaced"`, fields["eventName"])
	assert.Equal(t, `1`, fields["eventVersion"])
	assert.Equal(t, `"order-1"`, fields["partitionKey"])
	assert.Equal(t, `"storefront-api"`, fields["producer"])
	assert.Equal(t, `"`+got.msg.MessageId+`"`, fields["eventId"])

	assert.Equal(t, `"order-1"`, payload["orderId"])
	assert.Equal(t, `"TENOFF"`, payload["couponCode"])
	assert.Equal(t, `900000`, payload["subtotal"])
	assert.Equal(t, `90000`, payload["promotionDiscount"])
	assert.Equal(t, `810000`, payload["grandTotal"])
	assert.Equal(t, `"2026-01-02T03:04:05Z"`, payload["placedAt"])
}

func TestPublishOrderPlaced_Error(t *testing.T) {
	ch := &fakeChannel{publishErr: amqp.ErrClosed}
	p, err := NewPublisher(ch, "storefront-api")
	require.NoError(t, err)

	err = p.PublishOrderPlaced(context.Background(), testOrder(t))
	require.ErrorIs(t, err, amqp.ErrClosed)
}
