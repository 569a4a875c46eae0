package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems = errors.New("items required")
	ErrNotFound   = errors.New("order not found")
)

// ReconciliationError indicates that a stored order total no longer matches
// the total derived from its own lines.
type ReconciliationError struct {
	OrderID  string
	Stored   decimal.Decimal
	Computed decimal.Decimal
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("order %s: stored total %s does not match computed total %s",
		e.OrderID, e.Stored, e.Computed)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items      []pricing.LineItem
	CouponCode string
}

// Service encapsulates checkout and order detail logic.
type Service struct {
	coupons   coupon.Validator
	orders    Repository
	publisher Publisher
	shipping  decimal.Decimal
	now       func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	coupons coupon.Validator,
	orders Repository,
	publisher Publisher,
	shipping decimal.Decimal,
) *Service {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Service{
		coupons:   coupons,
		orders:    orders,
		publisher: publisher,
		shipping:  shipping,
		now:       time.Now,
	}
}

// PlaceOrder prices the items, applies the coupon, persists the order,
// redeems the coupon and publishes an event.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	seen := make(map[string]struct{}, len(req.Items))
	for _, item := range req.Items {
		if err := pricing.ValidateLineItem(item); err != nil {
			return nil, err
		}
		if _, dup := seen[item.ProductID]; dup {
			return nil, &pricing.InvalidLineItemError{
				ProductID: item.ProductID,
				Reason:    "duplicate product id",
			}
		}
		seen[item.ProductID] = struct{}{}
	}

	var promo *pricing.Promotion
	if req.CouponCode != "" {
		_, p, err := s.coupons.Validate(ctx, req.CouponCode, req.Items)
		if err != nil {
			return nil, errors.Wrap(err, "validate coupon")
		}
		promo = &p
	}

	res, err := pricing.Compute(req.Items, promo, s.shipping)
	if err != nil {
		return nil, errors.Wrap(err, "compute pricing")
	}

	o := &Order{
		ID:         uuid.New().String(),
		Lines:      req.Items,
		Promotion:  promo,
		CouponCode: req.CouponCode,
		Shipping:   s.shipping,
		Pricing:    res,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	if req.CouponCode != "" {
		if err := s.coupons.Redeem(ctx, req.CouponCode); err != nil {
			lg.Warn("Redeem coupon", zap.String("coupon", req.CouponCode), zap.Error(err))
		}
	}
	if err := s.publisher.PublishOrderPlaced(ctx, o); err != nil {
		lg.Warn("Publish order placed", zap.Error(err))
	}

	lg.Info("Order placed",
		zap.Int("lines", len(o.Lines)),
		zap.Stringer("grand_total", o.Pricing.GrandTotal),
	)
	return o, nil
}

// Get loads an order and re-derives its pricing from the stored lines and
// promotion.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %s", id)
	}

	res, err := pricing.Compute(o.Lines, o.Promotion, o.Shipping)
	if err != nil {
		return nil, errors.Wrapf(err, "compute pricing for order %s", id)
	}
	if !res.GrandTotal.Equal(o.Pricing.GrandTotal) {
		return nil, &ReconciliationError{
			OrderID:  o.ID,
			Stored:   o.Pricing.GrandTotal,
			Computed: res.GrandTotal,
		}
	}

	o.Pricing = res
	return o, nil
}
