// Package cart holds the mutable line items of shopping carts and derives
// their pricing on every read.
package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

// ErrCartNotFound is returned for an unknown cart id.
var ErrCartNotFound = errors.New("cart not found")

// AddItem requests quantity units of a catalog product.
type AddItem struct {
	ProductID string
	Quantity  int
}

// Snapshot is the read model of a cart: its lines and the pricing derived
// from them at the time of the read.
type Snapshot struct {
	ID    string
	Items []Item
	// CouponCode is the code the customer applied, if any.
	CouponCode string
	// CouponApplied is false when the cart no longer satisfies the coupon.
	CouponApplied bool
	Promotion     *pricing.Promotion
	Pricing       pricing.Result
}

// CheckoutFunc places an order for the selected lines of a cart.
type CheckoutFunc func(ctx context.Context, items []pricing.LineItem, couponCode string) error

type session struct {
	mu     sync.Mutex
	store  *Store
	coupon *coupon.Rule
	// closed is set once the cart has been checked out.
	closed bool
}

// Service keeps carts in memory, one Store per cart id. Each cart is locked
// for the duration of an operation.
type Service struct {
	products product.Repository
	coupons  coupon.Validator
	shipping decimal.Decimal

	mu    sync.RWMutex
	carts map[string]*session
}

// NewService creates a cart Service with the required domain dependencies.
func NewService(products product.Repository, coupons coupon.Validator, shipping decimal.Decimal) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		shipping: shipping,
		carts:    make(map[string]*session),
	}
}

// Create opens a new cart, optionally seeded with catalog products.
func (s *Service) Create(ctx context.Context, lines []AddItem) (*Snapshot, error) {
	store := NewStore(s.shipping)
	for _, l := range lines {
		item, err := s.catalogItem(ctx, l)
		if err != nil {
			return nil, err
		}
		if err := store.Add(item); err != nil {
			return nil, err
		}
	}

	id := uuid.New().String()
	sess := &session{store: store}

	s.mu.Lock()
	s.carts[id] = sess
	s.mu.Unlock()

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return snapshot(id, sess)
}

// Get returns the current snapshot of the cart.
func (s *Service) Get(_ context.Context, id string) (*Snapshot, error) {
	return s.mutate(id, func(*session) error { return nil })
}

// AddItem adds quantity units of a catalog product to the cart.
func (s *Service) AddItem(ctx context.Context, id string, req AddItem) (*Snapshot, error) {
	if _, err := s.lookup(id); err != nil {
		return nil, err
	}
	item, err := s.catalogItem(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.mutate(id, func(sess *session) error {
		return sess.store.Add(item)
	})
}

// SetQuantity changes the quantity of a line; zero or less removes it.
func (s *Service) SetQuantity(_ context.Context, id, productID string, quantity int) (*Snapshot, error) {
	return s.mutate(id, func(sess *session) error {
		sess.store.SetQuantity(productID, quantity)
		return nil
	})
}

// Toggle flips the selection of a line.
func (s *Service) Toggle(_ context.Context, id, productID string) (*Snapshot, error) {
	return s.mutate(id, func(sess *session) error {
		sess.store.ToggleSelection(productID)
		return nil
	})
}

// SelectAll selects or deselects every line.
func (s *Service) SelectAll(_ context.Context, id string, selected bool) (*Snapshot, error) {
	return s.mutate(id, func(sess *session) error {
		sess.store.SelectAll(selected)
		return nil
	})
}

// Remove deletes a line from the cart.
func (s *Service) Remove(_ context.Context, id, productID string) (*Snapshot, error) {
	return s.mutate(id, func(sess *session) error {
		sess.store.Remove(productID)
		return nil
	})
}

// ApplyCoupon validates the code against the selected lines and attaches it
// to the cart. A rejected code leaves the cart unchanged.
func (s *Service) ApplyCoupon(ctx context.Context, id, code string) (*Snapshot, error) {
	return s.mutate(id, func(sess *session) error {
		rule, _, err := s.coupons.Validate(ctx, code, sess.store.Selected())
		if err != nil {
			return errors.Wrap(err, "validate coupon")
		}
		sess.coupon = rule
		return nil
	})
}

// ClearCoupon detaches any coupon from the cart.
func (s *Service) ClearCoupon(_ context.Context, id string) (*Snapshot, error) {
	return s.mutate(id, func(sess *session) error {
		sess.coupon = nil
		return nil
	})
}

// Checkout hands the selected lines to place and deletes the cart once the
// order has been placed. The cart stays intact when place fails. Concurrent
// checkouts of one cart place at most one order; the others observe
// ErrCartNotFound.
func (s *Service) Checkout(ctx context.Context, id string, place CheckoutFunc) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return ErrCartNotFound
	}

	snap, err := snapshot(id, sess)
	if err != nil {
		return err
	}
	code := ""
	if snap.CouponApplied {
		code = snap.CouponCode
	}
	if err := place(ctx, sess.store.Selected(), code); err != nil {
		return err
	}

	sess.closed = true
	s.Delete(ctx, id)
	return nil
}

// Delete drops the cart. Unknown ids are ignored.
func (s *Service) Delete(_ context.Context, id string) {
	s.mu.Lock()
	delete(s.carts, id)
	s.mu.Unlock()
}

func (s *Service) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.carts[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrCartNotFound
	}
	return sess, nil
}

func (s *Service) mutate(id string, fn func(*session) error) (*Snapshot, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return nil, ErrCartNotFound
	}

	if err := fn(sess); err != nil {
		return nil, err
	}
	return snapshot(id, sess)
}

func (s *Service) catalogItem(ctx context.Context, req AddItem) (Item, error) {
	if req.Quantity < 1 {
		return Item{}, &pricing.InvalidLineItemError{
			ProductID: req.ProductID,
			Reason:    fmt.Sprintf("quantity %d must be at least 1", req.Quantity),
		}
	}
	p, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return Item{}, errors.Wrapf(err, "get product %s", req.ProductID)
	}
	return Item{LineItem: p.LineItem(req.Quantity), Selected: true}, nil
}

// snapshot re-resolves the attached coupon against the current selection and
// prices the cart. Callers must hold sess.mu.
func snapshot(id string, sess *session) (*Snapshot, error) {
	snap := &Snapshot{ID: id}

	var promo *pricing.Promotion
	if sess.coupon != nil {
		snap.CouponCode = sess.coupon.Code
		if p, err := coupon.Resolve(sess.coupon, sess.store.Selected()); err == nil {
			promo = &p
			snap.CouponApplied = true
		}
	}
	if err := sess.store.ApplyPromotion(promo); err != nil {
		return nil, errors.Wrap(err, "apply promotion")
	}

	res, err := sess.store.Pricing()
	if err != nil {
		return nil, errors.Wrap(err, "compute pricing")
	}

	snap.Items = sess.store.Items()
	snap.Promotion = sess.store.Promotion()
	snap.Pricing = res
	return snap, nil
}
