package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

var hundred = decimal.NewFromInt(100)

// Resolve normalizes the rule into an order-level promotion for the given
// items. It returns ErrInvalidCoupon when the items do not satisfy the rule's
// minimum item count requirement.
func Resolve(rule *Rule, items []pricing.LineItem) (pricing.Promotion, error) {
	if rule.MinItems > 0 && totalQuantity(items) < rule.MinItems {
		return pricing.Promotion{}, ErrInvalidCoupon
	}

	var p pricing.Promotion
	switch rule.DiscountType {
	case DiscountPercentage:
		p = pricing.Promotion{Kind: pricing.PromotionPercentage, Value: rule.Value}
	case DiscountFixed:
		p = pricing.Promotion{Kind: pricing.PromotionFixedAmount, Value: rule.Value}
	case DiscountFreeLowest:
		p = pricing.Promotion{Kind: pricing.PromotionFixedAmount, Value: lowestUnitPrice(items)}
	default:
		return pricing.Promotion{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	if err := p.Validate(); err != nil {
		return pricing.Promotion{}, errors.Wrapf(err, "coupon %s", rule.Code)
	}
	return p, nil
}

// totalQuantity returns the sum of quantities across all items.
func totalQuantity(items []pricing.LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// lowestUnitPrice returns the lowest unit price after per-item discounts.
// If items is empty it returns zero.
func lowestUnitPrice(items []pricing.LineItem) decimal.Decimal {
	if len(items) == 0 {
		return decimal.Zero
	}
	lowest := netUnitPrice(items[0])
	for _, item := range items[1:] {
		if p := netUnitPrice(item); p.LessThan(lowest) {
			lowest = p
		}
	}
	return lowest
}

func netUnitPrice(item pricing.LineItem) decimal.Decimal {
	return item.UnitPrice.Mul(hundred.Sub(item.DiscountPercent)).Div(hundred)
}
