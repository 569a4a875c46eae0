package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/cart"
)

func (h *Handler) cartID(r *http.Request) string {
	id := r.PathValue("cartId")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("cart.id", id))
	return id
}

func (h *Handler) writeSnapshot(w http.ResponseWriter, r *http.Request, status int, snap *cart.Snapshot, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, status, func(e *jx.Encoder) {
		h.encodeSnapshot(e, snap)
	})
}

// CreateCart opens a cart, optionally seeded with {"items":[{productId, quantity}]}.
func (h *Handler) CreateCart(w http.ResponseWriter, r *http.Request) {
	var lines []cart.AddItem
	err := decodeObject(w, r, true, func(d *jx.Decoder, key string) error {
		if key != "items" {
			return d.Skip()
		}
		return d.Arr(func(d *jx.Decoder) error {
			item, err := decodeAddItem(d)
			if err != nil {
				return err
			}
			lines = append(lines, item)
			return nil
		})
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.carts.Create(r.Context(), lines)
	h.writeSnapshot(w, r, http.StatusCreated, snap, err)
}

// GetCart returns the cart with freshly derived pricing.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	snap, err := h.carts.Get(r.Context(), h.cartID(r))
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// AddCartItem adds {productId, quantity} to the cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	id := h.cartID(r)
	data, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := decodeAddItem(jx.DecodeBytes(data))
	if err != nil {
		h.writeError(w, r, badRequest(errors.Wrap(err, "decode body")))
		return
	}

	snap, err := h.carts.AddItem(r.Context(), id, req)
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// SetCartItemQuantity sets {quantity}; zero or less removes the line.
func (h *Handler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	id := h.cartID(r)
	quantity, found := 0, false
	err := decodeObject(w, r, false, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		v, err := d.Int()
		quantity, found = v, true
		return err
	})
	if err == nil && !found {
		err = badRequest(errors.New("quantity is required"))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.carts.SetQuantity(r.Context(), id, r.PathValue("productId"), quantity)
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// RemoveCartItem deletes a line.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	snap, err := h.carts.Remove(r.Context(), h.cartID(r), r.PathValue("productId"))
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// ToggleCartItem flips the selection of a line.
func (h *Handler) ToggleCartItem(w http.ResponseWriter, r *http.Request) {
	snap, err := h.carts.Toggle(r.Context(), h.cartID(r), r.PathValue("productId"))
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// SelectCartItems selects or deselects every line with {selected}.
func (h *Handler) SelectCartItems(w http.ResponseWriter, r *http.Request) {
	id := h.cartID(r)
	selected, found := false, false
	err := decodeObject(w, r, false, func(d *jx.Decoder, key string) error {
		if key != "selected" {
			return d.Skip()
		}
		v, err := d.Bool()
		selected, found = v, true
		return err
	})
	if err == nil && !found {
		err = badRequest(errors.New("selected is required"))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.carts.SelectAll(r.Context(), id, selected)
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// ApplyCoupon attaches {couponCode} to the cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := h.cartID(r)
	var code string
	err := decodeObject(w, r, false, func(d *jx.Decoder, key string) error {
		if key != "couponCode" {
			return d.Skip()
		}
		v, err := d.Str()
		code = v
		return err
	})
	if err == nil && code == "" {
		err = badRequest(errors.New("couponCode is required"))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	snap, err := h.carts.ApplyCoupon(ctx, id, code)
	if isCouponError(err) {
		h.couponsRejected.Add(ctx, 1)
	}
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}

// ClearCoupon detaches the coupon.
func (h *Handler) ClearCoupon(w http.ResponseWriter, r *http.Request) {
	snap, err := h.carts.ClearCoupon(r.Context(), h.cartID(r))
	h.writeSnapshot(w, r, http.StatusOK, snap, err)
}
