package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

// Order represents a placed customer order with its pricing snapshot.
type Order struct {
	ID         string
	Lines      []pricing.LineItem
	Promotion  *pricing.Promotion
	CouponCode string
	Shipping   decimal.Decimal
	Pricing    pricing.Result
	CreatedAt  time.Time
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
}

// Publisher announces placed orders to other services.
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, o *Order) error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// PublishOrderPlaced implements Publisher.
func (NopPublisher) PublishOrderPlaced(context.Context, *Order) error { return nil }
