package cart

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

// Item is a line item held by a cart together with its selection flag.
type Item struct {
	pricing.LineItem
	// Selected marks whether the line counts toward the checkout total.
	Selected bool
}

// Store owns the line items of one cart and derives pricing on read.
//
// A Store is not safe for concurrent use.
type Store struct {
	items     []Item
	promotion *pricing.Promotion
	shipping  decimal.Decimal
}

// NewStore creates an empty cart with a fixed shipping cost.
func NewStore(shipping decimal.Decimal) *Store {
	return &Store{shipping: shipping}
}

// Add validates the item and appends it. Adding a product that is already in
// the cart increases the existing line's quantity and keeps its selection.
// A merge that would overflow the quantity is rejected and leaves the line
// unchanged.
func (s *Store) Add(item Item) error {
	if err := pricing.ValidateLineItem(item.LineItem); err != nil {
		return err
	}
	if i := s.index(item.ProductID); i >= 0 {
		if item.Quantity > math.MaxInt-s.items[i].Quantity {
			return &pricing.InvalidLineItemError{
				ProductID: item.ProductID,
				Reason:    "quantity overflows",
			}
		}
		s.items[i].Quantity += item.Quantity
		return nil
	}
	s.items = append(s.items, item)
	return nil
}

// ToggleSelection flips the selection of the given product. It reports
// whether the product was present; an absent product is a no-op.
func (s *Store) ToggleSelection(productID string) bool {
	i := s.index(productID)
	if i < 0 {
		return false
	}
	s.items[i].Selected = !s.items[i].Selected
	return true
}

// SelectAll sets the selection flag of every line.
func (s *Store) SelectAll(selected bool) {
	for i := range s.items {
		s.items[i].Selected = selected
	}
}

// SetQuantity sets the quantity of the given product. A quantity of zero or
// less removes the line instead of storing it.
func (s *Store) SetQuantity(productID string, quantity int) bool {
	if quantity <= 0 {
		return s.Remove(productID)
	}
	i := s.index(productID)
	if i < 0 {
		return false
	}
	s.items[i].Quantity = quantity
	return true
}

// Remove deletes the line for the given product, if present.
func (s *Store) Remove(productID string) bool {
	i := s.index(productID)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// ApplyPromotion replaces the order-level promotion, or clears it when p is
// nil. An invalid promotion is declined and the current one is kept.
func (s *Store) ApplyPromotion(p *pricing.Promotion) error {
	if p == nil {
		s.promotion = nil
		return nil
	}
	if err := p.Validate(); err != nil {
		return err
	}
	promo := *p
	s.promotion = &promo
	return nil
}

// Promotion returns a copy of the current promotion, or nil.
func (s *Store) Promotion() *pricing.Promotion {
	if s.promotion == nil {
		return nil
	}
	p := *s.promotion
	return &p
}

// Pricing computes the totals of the selected lines.
func (s *Store) Pricing() (pricing.Result, error) {
	return pricing.Compute(s.Selected(), s.promotion, s.shipping)
}

// Selected returns the line items that currently count toward the total.
func (s *Store) Selected() []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(s.items))
	for _, it := range s.items {
		if it.Selected {
			out = append(out, it.LineItem)
		}
	}
	return out
}

// Items returns a copy of all lines in insertion order.
func (s *Store) Items() []Item {
	return slices.Clone(s.items)
}

// Item returns the line for the given product.
func (s *Store) Item(productID string) (Item, bool) {
	i := s.index(productID)
	if i < 0 {
		return Item{}, false
	}
	return s.items[i], true
}

// Len returns the number of lines.
func (s *Store) Len() int {
	return len(s.items)
}

func (s *Store) index(productID string) int {
	return slices.IndexFunc(s.items, func(it Item) bool {
		return it.ProductID == productID
	})
}
