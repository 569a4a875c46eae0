package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
)

const (
	createOrderSQL = `INSERT INTO orders (id, lines, promotion_kind, promotion_value, coupon_code,
			shipping, subtotal, item_discount, promotion_discount, grand_total, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderSQL = `SELECT id, lines, promotion_kind, promotion_value, coupon_code,
			shipping, subtotal, item_discount, promotion_discount, grand_total, created_at
		FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The line items are stored as a JSONB array.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	var (
		kind  *string
		value decimal.NullDecimal
	)
	if o.Promotion != nil {
		k := string(o.Promotion.Kind)
		kind = &k
		value = decimal.NewNullDecimal(o.Promotion.Value)
	}

	_, err := r.pool.Exec(ctx, createOrderSQL,
		o.ID, encodeLines(o.Lines), kind, value, o.CouponCode,
		o.Shipping, o.Pricing.Subtotal, o.Pricing.ItemDiscount,
		o.Pricing.PromotionDiscount, o.Pricing.GrandTotal, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get loads an order by id. Returns order.ErrNotFound for an unknown id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o     order.Order
		lines []byte
		kind  *string
		value decimal.NullDecimal
	)
	if err := row.Scan(
		&o.ID, &lines, &kind, &value, &o.CouponCode,
		&o.Shipping, &o.Pricing.Subtotal, &o.Pricing.ItemDiscount,
		&o.Pricing.PromotionDiscount, &o.Pricing.GrandTotal, &o.CreatedAt,
	); err != nil {
		return o, err
	}

	items, err := decodeLines(lines)
	if err != nil {
		return o, errors.Wrap(err, "decode lines")
	}
	o.Lines = items
	o.Pricing.Shipping = o.Shipping
	if kind != nil && value.Valid {
		o.Promotion = &pricing.Promotion{Kind: pricing.PromotionKind(*kind), Value: value.Decimal}
	}
	return o, nil
}

func encodeLines(items []pricing.LineItem) []byte {
	var e jx.Encoder
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
				e.Field("unitPrice", func(e *jx.Encoder) { e.Str(it.UnitPrice.String()) })
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				e.Field("discountPercent", func(e *jx.Encoder) { e.Str(it.DiscountPercent.String()) })
			})
		}
	})
	return e.Bytes()
}

func decodeLines(data []byte) ([]pricing.LineItem, error) {
	var items []pricing.LineItem
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var it pricing.LineItem
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "productId":
				v, err := d.Str()
				it.ProductID = v
				return err
			case "unitPrice":
				v, err := decodeDecimalString(d)
				it.UnitPrice = v
				return err
			case "quantity":
				v, err := d.Int()
				it.Quantity = v
				return err
			case "discountPercent":
				v, err := decodeDecimalString(d)
				it.DiscountPercent = v
				return err
			default:
				return d.Skip()
			}
		}); err != nil {
			return err
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

// decodeDecimalString reads a decimal stored as a JSON string so that JSONB
// never normalizes its precision.
func decodeDecimalString(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}
