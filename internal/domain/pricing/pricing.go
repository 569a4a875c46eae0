// Package pricing computes cart and order totals from line items and an
// optional order-level promotion.
//
// All arithmetic is done on decimal values. Nothing is rounded here; callers
// that render amounts use Result.Round.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// PromotionKind enumerates the supported order-level promotion strategies.
type PromotionKind string

const (
	// PromotionPercentage takes a percentage off the subtotal.
	PromotionPercentage PromotionKind = "percentage"
	// PromotionFixedAmount takes a fixed amount off the subtotal, capped at the subtotal.
	PromotionFixedAmount PromotionKind = "fixed_amount"
)

var (
	// ErrInvalidLineItem is matched by every *InvalidLineItemError.
	ErrInvalidLineItem = errors.New("invalid line item")
	// ErrInvalidPromotion is returned for malformed promotion values.
	ErrInvalidPromotion = errors.New("invalid promotion")
	// ErrInvalidShipping is returned for a negative shipping cost.
	ErrInvalidShipping = errors.New("invalid shipping cost")
)

var hundred = decimal.NewFromInt(100)

// LineItem is one product entry within a cart or order.
type LineItem struct {
	ProductID string
	// UnitPrice is the catalog price of one unit before any discount.
	UnitPrice decimal.Decimal
	Quantity  int
	// DiscountPercent is in [0, 100] and applies to UnitPrice.
	DiscountPercent decimal.Decimal
}

// InvalidLineItemError describes why a line item was rejected.
type InvalidLineItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidLineItemError) Error() string {
	return fmt.Sprintf("invalid line item %q: %s", e.ProductID, e.Reason)
}

// Is reports ErrInvalidLineItem as a match so callers can use errors.Is.
func (e *InvalidLineItemError) Is(target error) bool {
	return target == ErrInvalidLineItem
}

// ValidateLineItem checks the invariants the engine relies on.
func ValidateLineItem(item LineItem) error {
	switch {
	case item.ProductID == "":
		return &InvalidLineItemError{Reason: "product id required"}
	case item.Quantity < 1:
		return &InvalidLineItemError{ProductID: item.ProductID, Reason: "quantity must be at least 1"}
	case item.UnitPrice.IsNegative():
		return &InvalidLineItemError{ProductID: item.ProductID, Reason: "unit price must not be negative"}
	case item.DiscountPercent.IsNegative() || item.DiscountPercent.GreaterThan(hundred):
		return &InvalidLineItemError{ProductID: item.ProductID, Reason: "discount percent must be within [0, 100]"}
	}
	return nil
}

// Promotion is an order-level discount distinct from per-item discounts.
type Promotion struct {
	Kind  PromotionKind
	Value decimal.Decimal
}

// Validate checks the promotion value against its kind.
func (p Promotion) Validate() error {
	switch p.Kind {
	case PromotionPercentage:
		if p.Value.IsNegative() || p.Value.GreaterThan(hundred) {
			return errors.Wrapf(ErrInvalidPromotion, "percentage %s outside [0, 100]", p.Value)
		}
	case PromotionFixedAmount:
		if p.Value.IsNegative() {
			return errors.Wrapf(ErrInvalidPromotion, "fixed amount %s is negative", p.Value)
		}
	default:
		return errors.Wrapf(ErrInvalidPromotion, "unsupported kind %q", p.Kind)
	}
	return nil
}

// LineResult is the priced breakdown of a single line item.
type LineResult struct {
	ProductID string
	Quantity  int
	// Gross is UnitPrice * Quantity.
	Gross decimal.Decimal
	// Discount is the per-item discount for the whole line.
	Discount decimal.Decimal
	// Net is Gross - Discount; it contributes to the subtotal.
	Net decimal.Decimal
}

// Result is derived from a set of line items and is never stored on its own.
type Result struct {
	Subtotal          decimal.Decimal
	ItemDiscount      decimal.Decimal
	PromotionDiscount decimal.Decimal
	Shipping          decimal.Decimal
	GrandTotal        decimal.Decimal
	Lines             []LineResult
}

// Compute prices exactly the given items. The promotion is optional. Items
// must already be filtered by the caller, e.g. to the selected cart lines.
func Compute(items []LineItem, promo *Promotion, shipping decimal.Decimal) (Result, error) {
	if shipping.IsNegative() {
		return Result{}, errors.Wrapf(ErrInvalidShipping, "shipping %s", shipping)
	}
	if promo != nil {
		if err := promo.Validate(); err != nil {
			return Result{}, err
		}
	}

	res := Result{
		Subtotal:          decimal.Zero,
		ItemDiscount:      decimal.Zero,
		PromotionDiscount: decimal.Zero,
		Shipping:          shipping,
		Lines:             make([]LineResult, 0, len(items)),
	}
	for _, item := range items {
		if err := ValidateLineItem(item); err != nil {
			return Result{}, err
		}
		line := priceLine(item)
		res.Lines = append(res.Lines, line)
		res.Subtotal = res.Subtotal.Add(line.Net)
		res.ItemDiscount = res.ItemDiscount.Add(line.Discount)
	}

	if promo != nil {
		res.PromotionDiscount = promotionDiscount(*promo, res.Subtotal)
	}

	res.GrandTotal = floorAtZero(res.Subtotal.Sub(res.PromotionDiscount).Add(shipping))
	return res, nil
}

func priceLine(item LineItem) LineResult {
	qty := decimal.NewFromInt(int64(item.Quantity))
	gross := item.UnitPrice.Mul(qty)
	discount := gross.Mul(item.DiscountPercent).Div(hundred)
	return LineResult{
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		Gross:     gross,
		Discount:  discount,
		Net:       gross.Sub(discount),
	}
}

func promotionDiscount(p Promotion, subtotal decimal.Decimal) decimal.Decimal {
	switch p.Kind {
	case PromotionPercentage:
		return subtotal.Mul(p.Value).Div(hundred)
	case PromotionFixedAmount:
		return decimal.Min(p.Value, subtotal)
	}
	return decimal.Zero
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Round returns a copy of r with every amount rounded to the given number of
// decimal places. It is meant for display only.
func (r Result) Round(places int32) Result {
	out := Result{
		Subtotal:          r.Subtotal.Round(places),
		ItemDiscount:      r.ItemDiscount.Round(places),
		PromotionDiscount: r.PromotionDiscount.Round(places),
		Shipping:          r.Shipping.Round(places),
		GrandTotal:        r.GrandTotal.Round(places),
		Lines:             make([]LineResult, len(r.Lines)),
	}
	for i, l := range r.Lines {
		out.Lines[i] = LineResult{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Gross:     l.Gross.Round(places),
			Discount:  l.Discount.Round(places),
			Net:       l.Net.Round(places),
		}
	}
	return out
}
