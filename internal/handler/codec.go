package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
)

const maxBodyBytes = 1 << 20

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, badRequest(errors.Wrap(err, "read body"))
	}
	return data, nil
}

// decodeObject reads a JSON object body field by field. An empty body is
// treated as an empty object when allowEmpty is set.
func decodeObject(w http.ResponseWriter, r *http.Request, allowEmpty bool, field func(d *jx.Decoder, key string) error) error {
	data, err := readBody(w, r)
	if err != nil {
		return err
	}
	if len(data) == 0 && allowEmpty {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(field); err != nil {
		return badRequest(errors.Wrap(err, "decode body"))
	}
	return nil
}

func decodeAddItem(d *jx.Decoder) (cart.AddItem, error) {
	var req cart.AddItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			req.ProductID = v
			return err
		case "quantity":
			v, err := d.Int()
			req.Quantity = v
			return err
		default:
			return d.Skip()
		}
	})
	return req, err
}

func writeJSON(w http.ResponseWriter, status int, enc func(e *jx.Encoder)) {
	var e jx.Encoder
	enc(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func decimalField(e *jx.Encoder, name string, v decimal.Decimal) {
	e.FieldStart(name)
	encodeDecimal(e, v)
}

func strField(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func (h *Handler) encodeProduct(e *jx.Encoder, p product.Product) {
	base := h.imageBaseURL
	e.ObjStart()
	strField(e, "id", p.ID)
	strField(e, "name", p.Name)
	decimalField(e, "price", p.Price)
	decimalField(e, "discountPercent", p.DiscountPercent)
	strField(e, "category", p.Category)
	e.FieldStart("image")
	e.ObjStart()
	strField(e, "thumbnail", base+p.Image.Thumbnail)
	strField(e, "mobile", base+p.Image.Mobile)
	strField(e, "tablet", base+p.Image.Tablet)
	strField(e, "desktop", base+p.Image.Desktop)
	e.ObjEnd()
	e.FieldStart("display")
	e.ObjStart()
	strField(e, "price", h.amount(p.Price))
	strField(e, "discountedPrice", h.amount(p.DiscountedPrice()))
	e.ObjEnd()
	e.ObjEnd()
}

func encodeLineItem(e *jx.Encoder, it pricing.LineItem) {
	strField(e, "productId", it.ProductID)
	decimalField(e, "unitPrice", it.UnitPrice)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	decimalField(e, "discountPercent", it.DiscountPercent)
}

func encodePromotion(e *jx.Encoder, p *pricing.Promotion) {
	if p == nil {
		e.Null()
		return
	}
	e.ObjStart()
	strField(e, "kind", string(p.Kind))
	decimalField(e, "value", p.Value)
	e.ObjEnd()
}

func (h *Handler) encodePricing(e *jx.Encoder, res pricing.Result) {
	e.ObjStart()
	decimalField(e, "subtotal", res.Subtotal)
	decimalField(e, "itemDiscount", res.ItemDiscount)
	decimalField(e, "promotionDiscount", res.PromotionDiscount)
	decimalField(e, "shipping", res.Shipping)
	decimalField(e, "grandTotal", res.GrandTotal)
	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range res.Lines {
		e.ObjStart()
		strField(e, "productId", l.ProductID)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		decimalField(e, "gross", l.Gross)
		decimalField(e, "discount", l.Discount)
		decimalField(e, "net", l.Net)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("display")
	e.ObjStart()
	strField(e, "subtotal", h.amount(res.Subtotal))
	strField(e, "itemDiscount", h.amount(res.ItemDiscount))
	strField(e, "promotionDiscount", h.amount(res.PromotionDiscount))
	strField(e, "shipping", h.amount(res.Shipping))
	strField(e, "grandTotal", h.amount(res.GrandTotal))
	e.ObjEnd()
	e.ObjEnd()
}

func (h *Handler) encodeSnapshot(e *jx.Encoder, s *cart.Snapshot) {
	e.ObjStart()
	strField(e, "id", s.ID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range s.Items {
		e.ObjStart()
		encodeLineItem(e, it.LineItem)
		e.FieldStart("selected")
		e.Bool(it.Selected)
		e.ObjEnd()
	}
	e.ArrEnd()
	if s.CouponCode != "" {
		strField(e, "couponCode", s.CouponCode)
	}
	e.FieldStart("couponApplied")
	e.Bool(s.CouponApplied)
	e.FieldStart("promotion")
	encodePromotion(e, s.Promotion)
	e.FieldStart("pricing")
	h.encodePricing(e, s.Pricing)
	e.ObjEnd()
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	strField(e, "id", o.ID)
	if o.CouponCode != "" {
		strField(e, "couponCode", o.CouponCode)
	}
	strField(e, "createdAt", o.CreatedAt.Format(time.RFC3339))
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Lines {
		e.ObjStart()
		encodeLineItem(e, it)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("promotion")
	encodePromotion(e, o.Promotion)
	e.FieldStart("pricing")
	h.encodePricing(e, o.Pricing)
	e.ObjEnd()
}
