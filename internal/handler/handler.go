// Package handler serves the storefront HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/httpmiddleware"
	"github.com/xenking/storefront/pkg/money"
)

// CartService is the cart session API used by the handlers.
type CartService interface {
	Create(ctx context.Context, lines []cart.AddItem) (*cart.Snapshot, error)
	Get(ctx context.Context, id string) (*cart.Snapshot, error)
	AddItem(ctx context.Context, id string, req cart.AddItem) (*cart.Snapshot, error)
	SetQuantity(ctx context.Context, id, productID string, quantity int) (*cart.Snapshot, error)
	Toggle(ctx context.Context, id, productID string) (*cart.Snapshot, error)
	SelectAll(ctx context.Context, id string, selected bool) (*cart.Snapshot, error)
	Remove(ctx context.Context, id, productID string) (*cart.Snapshot, error)
	ApplyCoupon(ctx context.Context, id, code string) (*cart.Snapshot, error)
	ClearCoupon(ctx context.Context, id string) (*cart.Snapshot, error)
	Checkout(ctx context.Context, id string, place cart.CheckoutFunc) error
}

// OrderService places and loads orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	Get(ctx context.Context, id string) (*order.Order, error)
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	ImageBaseURL string
	Currency     money.Currency
	// CouponLimit guards coupon attempts. Nil disables limiting.
	CouponLimit httpmiddleware.Middleware
}

// Handler implements the HTTP API on top of the domain services.
type Handler struct {
	products product.Repository
	carts    CartService
	orders   OrderService

	imageBaseURL string
	couponLimit  httpmiddleware.Middleware
	money        *money.Formatter

	ordersPlaced    metric.Int64Counter
	couponsRejected metric.Int64Counter
	itemsRejected   metric.Int64Counter
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	carts CartService,
	orders OrderService,
	mp metric.MeterProvider,
) (*Handler, error) {
	meter := mp.Meter("github.com/xenking/storefront/internal/handler")

	h := &Handler{
		products:     products,
		carts:        carts,
		orders:       orders,
		imageBaseURL: cfg.ImageBaseURL,
		couponLimit:  cfg.CouponLimit,
		money:        money.NewFormatter(cfg.Currency),
	}

	var err error
	if h.ordersPlaced, err = meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders placed through checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	if h.couponsRejected, err = meter.Int64Counter("storefront.coupons.rejected",
		metric.WithDescription("Coupon codes rejected on apply or checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "coupons counter")
	}
	if h.itemsRejected, err = meter.Int64Counter("storefront.quote.items_rejected",
		metric.WithDescription("Line items excluded from quotes as malformed"),
	); err != nil {
		return nil, errors.Wrap(err, "items counter")
	}
	return h, nil
}

// Register mounts all API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/product", h.ListProducts)
	mux.HandleFunc("GET /api/product/{productId}", h.GetProduct)

	mux.HandleFunc("POST /api/pricing/quote", h.Quote)

	mux.HandleFunc("POST /api/cart", h.CreateCart)
	mux.HandleFunc("GET /api/cart/{cartId}", h.GetCart)
	mux.HandleFunc("POST /api/cart/{cartId}/items", h.AddCartItem)
	mux.HandleFunc("PUT /api/cart/{cartId}/items/{productId}", h.SetCartItemQuantity)
	mux.HandleFunc("DELETE /api/cart/{cartId}/items/{productId}", h.RemoveCartItem)
	mux.HandleFunc("POST /api/cart/{cartId}/items/{productId}/toggle", h.ToggleCartItem)
	mux.HandleFunc("PUT /api/cart/{cartId}/selection", h.SelectCartItems)
	mux.Handle("PUT /api/cart/{cartId}/coupon", h.limitCoupons(http.HandlerFunc(h.ApplyCoupon)))
	mux.HandleFunc("DELETE /api/cart/{cartId}/coupon", h.ClearCoupon)
	mux.HandleFunc("POST /api/cart/{cartId}/checkout", h.Checkout)

	mux.HandleFunc("GET /api/order/{orderId}", h.GetOrder)
}

func (h *Handler) limitCoupons(next http.Handler) http.Handler {
	if h.couponLimit == nil {
		return next
	}
	return h.couponLimit(next)
}

// badRequestError marks a request body that could not be decoded.
type badRequestError struct {
	err error
}

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &badRequestError{err: err}
}

// writeError maps domain errors to API error responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, msg)
}

func classify(err error) (int, string) {
	var (
		badReq *badRequestError
		recErr *order.ReconciliationError
	)
	switch {
	case errors.As(err, &badReq):
		return http.StatusBadRequest, badReq.Error()
	case errors.Is(err, cart.ErrCartNotFound):
		return http.StatusNotFound, "cart not found"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.As(err, &recErr):
		return http.StatusInternalServerError, "order total mismatch"
	case errors.Is(err, coupon.ErrInvalidCoupon):
		return http.StatusUnprocessableEntity, "invalid coupon code"
	case errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusUnprocessableEntity, "coupon expired"
	case errors.Is(err, coupon.ErrCouponUsageLimitReached):
		return http.StatusUnprocessableEntity, "coupon usage limit reached"
	case errors.Is(err, order.ErrEmptyItems):
		return http.StatusUnprocessableEntity, "no items selected"
	case errors.Is(err, pricing.ErrInvalidLineItem),
		errors.Is(err, pricing.ErrInvalidPromotion),
		errors.Is(err, pricing.ErrInvalidShipping):
		var liErr *pricing.InvalidLineItemError
		if errors.As(err, &liErr) {
			return http.StatusUnprocessableEntity, liErr.Error()
		}
		return http.StatusUnprocessableEntity, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func isCouponError(err error) bool {
	return errors.Is(err, coupon.ErrInvalidCoupon) ||
		errors.Is(err, coupon.ErrCouponExpired) ||
		errors.Is(err, coupon.ErrCouponUsageLimitReached)
}

func (h *Handler) amount(v decimal.Decimal) string {
	return h.money.Format(v)
}
