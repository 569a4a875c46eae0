package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	// DiscountPercent is the catalog markdown in [0, 100].
	DiscountPercent decimal.Decimal
	Category        string
	Image           Image
}

// Image holds responsive image URLs for a product.
type Image struct {
	Thumbnail string
	Mobile    string
	Tablet    string
	Desktop   string
}

// LineItem builds the pricing line for qty units of the product.
func (p Product) LineItem(qty int) pricing.LineItem {
	return pricing.LineItem{
		ProductID:       p.ID,
		UnitPrice:       p.Price,
		Quantity:        qty,
		DiscountPercent: p.DiscountPercent,
	}
}

// DiscountedPrice returns the unit price after the catalog markdown.
func (p Product) DiscountedPrice() decimal.Decimal {
	return p.Price.Sub(p.Price.Mul(p.DiscountPercent).Div(decimal.NewFromInt(100)))
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
