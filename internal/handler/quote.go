package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/ingest"
)

// Quote prices a raw backend payload without touching any cart. Malformed
// items are excluded and reported, and an invalid promotion is ignored.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q, err := ingest.DecodeQuote(data)
	if err != nil {
		if !errors.Is(err, pricing.ErrInvalidShipping) {
			err = badRequest(err)
		}
		h.writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if n := len(q.Rejected); n > 0 {
		h.itemsRejected.Add(ctx, int64(n))
		zctx.From(ctx).Debug("Quote items rejected", zap.Int("count", n))
	}

	res, err := pricing.Compute(q.LineItems(), q.Promotion, q.Shipping)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("pricing")
		h.encodePricing(e, res)
		e.FieldStart("promotion")
		encodePromotion(e, q.Promotion)
		e.FieldStart("promotionIgnored")
		e.Bool(q.PromotionErr != nil)
		e.FieldStart("rejected")
		e.ArrStart()
		for _, rej := range q.Rejected {
			e.ObjStart()
			e.FieldStart("index")
			e.Int(rej.Index)
			if rej.ProductID != "" {
				strField(e, "productId", rej.ProductID)
			}
			strField(e, "reason", rej.Reason)
			e.ObjEnd()
		}
		e.ArrEnd()
		e.ObjEnd()
	})
}
