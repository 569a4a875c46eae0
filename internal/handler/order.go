package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
)

// Checkout places an order from the selected lines of the cart. The cart is
// destroyed once the order is placed.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := h.cartID(r)

	var placed *order.Order
	err := h.carts.Checkout(ctx, id, func(ctx context.Context, items []pricing.LineItem, code string) error {
		o, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{Items: items, CouponCode: code})
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		if isCouponError(err) {
			h.couponsRejected.Add(ctx, 1)
		}
		h.writeError(w, r, err)
		return
	}

	h.ordersPlaced.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("coupon", placed.CouponCode != ""),
	))
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("order.id", placed.ID))

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		h.encodeOrder(e, placed)
	})
}

// GetOrder returns the order with pricing re-derived from its lines.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("orderId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		h.encodeOrder(e, o)
	})
}
