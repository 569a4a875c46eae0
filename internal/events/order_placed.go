package events

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderPlacedEventName    = "OrderPlaced"
	orderPlacedEventVersion = 1
)

// OrderPlacedLine is one priced line of a placed order.
type OrderPlacedLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Net       decimal.Decimal
}

// OrderPlaced is the v1 payload of the order placed event.
type OrderPlaced struct {
	OrderID           string
	CouponCode        string
	Lines             []OrderPlacedLine
	Subtotal          decimal.Decimal
	PromotionDiscount decimal.Decimal
	Shipping          decimal.Decimal
	GrandTotal        decimal.Decimal
	PlacedAt          time.Time
}

// Encode implements Payload.
func (p OrderPlaced) Encode(e *jx.Encoder) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("orderId", func(e *jx.Encoder) { e.Str(p.OrderID) })
		if p.CouponCode != "" {
			e.Field("couponCode", func(e *jx.Encoder) { e.Str(p.CouponCode) })
		}
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range p.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
						e.Field("unitPrice", encodeDecimal(l.UnitPrice))
						e.Field("net", encodeDecimal(l.Net))
					})
				}
			})
		})
		e.Field("subtotal", encodeDecimal(p.Subtotal))
		e.Field("promotionDiscount", encodeDecimal(p.PromotionDiscount))
		e.Field("shipping", encodeDecimal(p.Shipping))
		e.Field("grandTotal", encodeDecimal(p.GrandTotal))
		e.Field("placedAt", func(e *jx.Encoder) { e.Str(p.PlacedAt.Format(time.RFC3339Nano)) })
	})
}

// OrderPlacedEnvelope is the enveloped order placed event.
type OrderPlacedEnvelope = EventEnvelope[OrderPlaced]

// BuildOrderPlacedEnvelope builds the event for a placed order.
func BuildOrderPlacedEnvelope(o *order.Order, producer string, now time.Time) OrderPlacedEnvelope {
	lines := make([]OrderPlacedLine, 0, len(o.Pricing.Lines))
	for i, l := range o.Pricing.Lines {
		lines = append(lines, OrderPlacedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: o.Lines[i].UnitPrice,
			Net:       l.Net,
		})
	}

	return OrderPlacedEnvelope{
		EventName:    orderPlacedEventName,
		EventVersion: orderPlacedEventVersion,
		EventID:      uuid.NewString(),
		Producer:     producer,
		PartitionKey: o.ID,
		OccurredAt:   now.UTC(),
		Payload: OrderPlaced{
			OrderID:           o.ID,
			CouponCode:        o.CouponCode,
			Lines:             lines,
			Subtotal:          o.Pricing.Subtotal,
			PromotionDiscount: o.Pricing.PromotionDiscount,
			Shipping:          o.Pricing.Shipping,
			GrandTotal:        o.Pricing.GrandTotal,
			PlacedAt:          o.CreatedAt,
		},
	}
}

func encodeDecimal(v decimal.Decimal) func(e *jx.Encoder) {
	return func(e *jx.Encoder) { e.Num(jx.Num(v.String())) }
}
