// Package ingest converts backend JSON payloads into pricing engine inputs.
//
// Records that cannot be trusted are dropped with a reason instead of failing
// the whole payload, so one bad product never blocks the cart.
package ingest

import (
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/pricing"
)

var hundred = decimal.NewFromInt(100)

// percentPlaces bounds the scale of a percent derived from an absolute
// discount amount.
const percentPlaces = 24

// Record is a decoded backend line item with its selection flag.
type Record struct {
	pricing.LineItem
	Selected bool
}

// Rejection describes a record that was excluded from a batch.
type Rejection struct {
	Index     int
	ProductID string
	Reason    string
}

// Batch is the result of decoding a line item payload.
type Batch struct {
	Records  []Record
	Rejected []Rejection
}

// LineItems returns the line items of the selected records.
func (b Batch) LineItems() []pricing.LineItem {
	out := make([]pricing.LineItem, 0, len(b.Records))
	for _, r := range b.Records {
		if r.Selected {
			out = append(out, r.LineItem)
		}
	}
	return out
}

// DecodeLineItems decodes a JSON array of line item records.
//
// Each record accepts productId, unitPrice (number or numeric string),
// quantity, and either discountPercent or discountAmount (absolute per unit).
// selected defaults to true. Only a syntactically broken document is an error.
func DecodeLineItems(data []byte) (Batch, error) {
	b, err := decodeBatch(jx.DecodeBytes(data))
	if err != nil {
		return Batch{}, errors.Wrap(err, "decode line items")
	}
	return b, nil
}

func decodeBatch(d *jx.Decoder) (Batch, error) {
	var b Batch
	idx := 0
	err := d.Arr(func(d *jx.Decoder) error {
		i := idx
		idx++

		raw, err := d.Raw()
		if err != nil {
			return errors.Wrapf(err, "item %d", i)
		}
		rec, id, err := decodeRecord(raw)
		if err != nil {
			b.Rejected = append(b.Rejected, Rejection{Index: i, ProductID: id, Reason: err.Error()})
			return nil
		}
		b.Records = append(b.Records, rec)
		return nil
	})
	return b, err
}

func decodeRecord(raw jx.Raw) (Record, string, error) {
	rec := Record{Selected: true}
	var (
		discountPercent *decimal.Decimal
		discountAmount  *decimal.Decimal
		hasPrice        bool
		hasQuantity     bool
	)

	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "productId", "id":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "productId")
			}
			rec.ProductID = v
		case "unitPrice", "price":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "unitPrice")
			}
			rec.UnitPrice = v
			hasPrice = true
		case "quantity":
			v, err := d.Int()
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			rec.Quantity = v
			hasQuantity = true
		case "discountPercent":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "discountPercent")
			}
			discountPercent = &v
		case "discountAmount":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "discountAmount")
			}
			discountAmount = &v
		case "selected":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "selected")
			}
			rec.Selected = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Record{}, rec.ProductID, err
	}

	switch {
	case !hasPrice:
		return Record{}, rec.ProductID, errors.New("missing unitPrice")
	case !hasQuantity:
		return Record{}, rec.ProductID, errors.New("missing quantity")
	case discountPercent != nil && discountAmount != nil:
		return Record{}, rec.ProductID, errors.New("both discountPercent and discountAmount set")
	case discountPercent != nil:
		rec.DiscountPercent = *discountPercent
	case discountAmount != nil:
		pct, err := amountToPercent(rec.UnitPrice, *discountAmount)
		if err != nil {
			return Record{}, rec.ProductID, err
		}
		rec.DiscountPercent = pct
	}

	if err := pricing.ValidateLineItem(rec.LineItem); err != nil {
		var liErr *pricing.InvalidLineItemError
		if errors.As(err, &liErr) {
			return Record{}, rec.ProductID, errors.New(liErr.Reason)
		}
		return Record{}, rec.ProductID, err
	}
	return rec, rec.ProductID, nil
}

// amountToPercent converts an absolute per-unit discount into a percent of
// the unit price. A quotient that does not terminate is rounded to
// percentPlaces, so the priced net may differ from unitPrice-amount by less
// than 1e-20 per unit; amounts rendered at currency precision are exact.
func amountToPercent(unitPrice, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, errors.Errorf("discountAmount %s is negative", amount)
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	if !unitPrice.IsPositive() {
		return decimal.Zero, errors.Errorf("discountAmount %s on a zero price", amount)
	}
	if amount.GreaterThan(unitPrice) {
		return decimal.Zero, errors.Errorf("discountAmount %s exceeds unitPrice %s", amount, unitPrice)
	}
	return amount.Mul(hundred).DivRound(unitPrice, percentPlaces), nil
}

// DecodePromotion decodes an order promotion object. A JSON null yields nil.
// Unknown kinds and out-of-range values return pricing.ErrInvalidPromotion.
func DecodePromotion(data []byte) (*pricing.Promotion, error) {
	return decodePromotion(jx.DecodeBytes(data))
}

func decodePromotion(d *jx.Decoder) (*pricing.Promotion, error) {
	if d.Next() == jx.Null {
		if err := d.Null(); err != nil {
			return nil, errors.Wrap(err, "decode promotion")
		}
		return nil, nil
	}

	var (
		p        pricing.Promotion
		kind     string
		hasValue bool
	)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "kind", "type":
			v, err := d.Str()
			if err != nil {
				return errors.Wrap(err, "kind")
			}
			kind = v
		case "value", "amount":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "value")
			}
			p.Value = v
			hasValue = true
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode promotion")
	}

	k, ok := promotionKind(kind)
	if !ok {
		return nil, errors.Wrapf(pricing.ErrInvalidPromotion, "unknown kind %q", kind)
	}
	if !hasValue {
		return nil, errors.Wrap(pricing.ErrInvalidPromotion, "missing value")
	}
	p.Kind = k
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func promotionKind(s string) (pricing.PromotionKind, bool) {
	switch strings.ToLower(s) {
	case "percentage", "percent":
		return pricing.PromotionPercentage, true
	case "fixedamount", "fixed_amount", "fixed":
		return pricing.PromotionFixedAmount, true
	default:
		return "", false
	}
}

// decodeDecimal reads a JSON number or numeric string as an exact decimal.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return decimal.Zero, errors.Errorf("%q is not a number", s)
		}
		return v, nil
	default:
		return decimal.Zero, errors.Errorf("unexpected %s", d.Next())
	}
}

// Quote is a decoded stateless pricing request.
type Quote struct {
	Batch
	Promotion *pricing.Promotion
	// PromotionErr is set when the request carried a promotion that was
	// ignored because it is invalid.
	PromotionErr error
	Shipping     decimal.Decimal
}

// DecodeQuote decodes {"items":[...],"promotion":{...},"shippingCost":n}.
// An invalid promotion is reported through PromotionErr and pricing proceeds
// without it.
func DecodeQuote(data []byte) (Quote, error) {
	var q Quote
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "items":
			b, err := decodeBatch(d)
			if err != nil {
				return errors.Wrap(err, "items")
			}
			q.Batch = b
		case "promotion":
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, "promotion")
			}
			p, err := decodePromotion(jx.DecodeBytes(raw))
			if err != nil {
				if !errors.Is(err, pricing.ErrInvalidPromotion) {
					return err
				}
				q.PromotionErr = err
				return nil
			}
			q.Promotion = p
		case "shippingCost", "shipping":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "shippingCost")
			}
			q.Shipping = v
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Quote{}, errors.Wrap(err, "decode quote")
	}
	if q.Shipping.IsNegative() {
		return Quote{}, errors.Wrapf(pricing.ErrInvalidShipping, "shipping %s", q.Shipping)
	}
	return q, nil
}
