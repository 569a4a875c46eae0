package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/pkg/money"
)

// --- Mock implementations ---

type mockProductRepo struct {
	products []product.Product
	listErr  error
}

func (m *mockProductRepo) List(context.Context) ([]product.Product, error) {
	return m.products, m.listErr
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for i := range m.products {
		if m.products[i].ID == id {
			return &m.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (m *mockProductRepo) GetByIDs(context.Context, []string) ([]product.Product, error) {
	return nil, nil
}

type mockCouponRepo struct {
	rules map[string]*coupon.Rule
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	r, ok := m.rules[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return r, nil
}

func (m *mockCouponRepo) IncrementUses(_ context.Context, code string) error {
	m.rules[code].Uses++
	return nil
}

func (m *mockCouponRepo) Upsert(context.Context, coupon.Rule) error { return nil }

type mockOrderRepo struct {
	orders map[string]*order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// --- Helpers ---

type testEnv struct {
	mux     *http.ServeMux
	orders  *mockOrderRepo
	coupons *mockCouponRepo
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	products := &mockProductRepo{products: []product.Product{
		{ID: "A", Name: "Sneaker", Price: d("500000"), DiscountPercent: d("10"), Category: "Shoes",
			Image: product.Image{Thumbnail: "a.jpg"}},
		{ID: "B", Name: "Sock", Price: d("100000"), DiscountPercent: d("5"), Category: "Apparel"},
	}}
	coupons := &mockCouponRepo{rules: map[string]*coupon.Rule{
		"TENOFF": {Code: "TENOFF", DiscountType: coupon.DiscountPercentage, Value: d("10")},
		"ONCE":   {Code: "ONCE", DiscountType: coupon.DiscountFixed, Value: d("1000"), MaxUses: 1, Uses: 1},
	}}
	orders := &mockOrderRepo{orders: make(map[string]*order.Order)}

	validator := coupon.NewRepoValidator(coupons)
	shipping := decimal.Zero
	carts := cart.NewService(products, validator, shipping)
	orderSvc := order.NewService(validator, orders, nil, shipping)

	h, err := NewHandler(Config{
		ImageBaseURL: "https://cdn.test/",
		Currency:     money.Currency{Symbol: "Rp", Precision: 0, Thousand: ".", Decimal: ","},
	}, products, carts, orderSvc, noop.NewMeterProvider())
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{mux: mux, orders: orders, coupons: coupons}
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, req)
	return w
}

// field extracts a raw JSON value by a dotted path of object keys.
func field(t *testing.T, body []byte, path ...string) string {
	t.Helper()
	d := jx.DecodeBytes(body)
	for _, key := range path {
		var raw jx.Raw
		found := false
		require.NoError(t, d.ObjBytes(func(d *jx.Decoder, k []byte) error {
			if string(k) != key || found {
				return d.Skip()
			}
			v, err := d.Raw()
			raw, found = v, true
			return err
		}))
		require.True(t, found, "field %q in %s", key, body)
		d = jx.DecodeBytes(raw)
	}
	raw, err := d.Raw()
	require.NoError(t, err)
	return raw.String()
}

func (env *testEnv) createCart(t *testing.T) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/cart",
		`{"items":[{"productId":"A","quantity":2},{"productId":"B","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return strings.Trim(field(t, w.Body.Bytes(), "id"), `"`)
}

// --- Tests ---

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/product", "")
	require.Equal(t, http.StatusOK, w.Code)

	var ids []string
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Arr(func(d *jx.Decoder) error {
		return d.ObjBytes(func(d *jx.Decoder, k []byte) error {
			if string(k) != "id" {
				return d.Skip()
			}
			v, err := d.Str()
			ids = append(ids, v)
			return err
		})
	}))
	assert.Equal(t, []string{"A", "B"}, ids)
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/product/A", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.Bytes()
	assert.Equal(t, `500000`, field(t, body, "price"))
	assert.Equal(t, `"https://cdn.test/a.jpg"`, field(t, body, "image", "thumbnail"))
	assert.Equal(t, `"Rp450.000"`, field(t, body, "display", "discountedPrice"))

	w = env.do(t, http.MethodGet, "/api/product/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"message":"product not found"}`, w.Body.String())
}

func TestListProducts_Error(t *testing.T) {
	h, err := NewHandler(Config{}, &mockProductRepo{listErr: errors.New("db down")}, nil, nil, noop.NewMeterProvider())
	require.NoError(t, err)
	mux := http.NewServeMux()
	h.Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/product", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestQuote(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/pricing/quote", `{
		"items":[
			{"productId":"A","unitPrice":500000,"quantity":2,"discountPercent":10},
			{"productId":"B","unitPrice":100000,"quantity":1,"discountPercent":5},
			{"productId":"C","unitPrice":100,"quantity":0}
		],
		"promotion":{"kind":"percentage","value":10}
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.Bytes()

	assert.Equal(t, `995000`, field(t, body, "pricing", "subtotal"))
	assert.Equal(t, `99500`, field(t, body, "pricing", "promotionDiscount"))
	assert.Equal(t, `895500`, field(t, body, "pricing", "grandTotal"))
	assert.Equal(t, `"Rp895.500"`, field(t, body, "pricing", "display", "grandTotal"))
	assert.Equal(t, `false`, field(t, body, "promotionIgnored"))
	assert.Contains(t, field(t, body, "rejected"), `"productId":"C"`)
}

func TestQuote_InvalidPromotionIgnored(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/pricing/quote", `{
		"items":[{"productId":"A","unitPrice":100000,"quantity":1}],
		"promotion":{"kind":"fixedAmount","value":-5},
		"shippingCost":30000
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.Bytes()

	assert.Equal(t, `true`, field(t, body, "promotionIgnored"))
	assert.Equal(t, `null`, field(t, body, "promotion"))
	assert.Equal(t, `130000`, field(t, body, "pricing", "grandTotal"))
}

func TestQuote_BadBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/pricing/quote", `{"items":[`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/pricing/quote", `{"items":[],"shippingCost":-1}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCart(t)
	base := "/api/cart/" + id

	w := env.do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `995000`, field(t, w.Body.Bytes(), "pricing", "grandTotal"))

	w = env.do(t, http.MethodPost, base+"/items/B/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `900000`, field(t, w.Body.Bytes(), "pricing", "subtotal"))

	w = env.do(t, http.MethodPut, base+"/selection", `{"selected":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `995000`, field(t, w.Body.Bytes(), "pricing", "subtotal"))

	w = env.do(t, http.MethodPut, base+"/items/A", `{"quantity":3}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `1445000`, field(t, w.Body.Bytes(), "pricing", "subtotal"))

	w = env.do(t, http.MethodPut, base+"/items/A", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `95000`, field(t, w.Body.Bytes(), "pricing", "subtotal"))

	w = env.do(t, http.MethodPost, base+"/items", `{"productId":"A","quantity":1}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `545000`, field(t, w.Body.Bytes(), "pricing", "subtotal"))

	w = env.do(t, http.MethodDelete, base+"/items/B", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `450000`, field(t, w.Body.Bytes(), "pricing", "subtotal"))
}

func TestCart_Errors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCart(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "unknown cart", method: http.MethodGet, path: "/api/cart/missing", status: http.StatusNotFound},
		{name: "unknown product", method: http.MethodPost, path: "/api/cart/" + id + "/items",
			body: `{"productId":"Z","quantity":1}`, status: http.StatusNotFound},
		{name: "zero quantity add", method: http.MethodPost, path: "/api/cart/" + id + "/items",
			body: `{"productId":"A","quantity":0}`, status: http.StatusUnprocessableEntity},
		{name: "malformed add", method: http.MethodPost, path: "/api/cart/" + id + "/items",
			body: `{"productId":`, status: http.StatusBadRequest},
		{name: "missing quantity", method: http.MethodPut, path: "/api/cart/" + id + "/items/A",
			body: `{}`, status: http.StatusBadRequest},
		{name: "missing selected", method: http.MethodPut, path: "/api/cart/" + id + "/selection",
			body: `{}`, status: http.StatusBadRequest},
		{name: "missing coupon code", method: http.MethodPut, path: "/api/cart/" + id + "/coupon",
			body: `{}`, status: http.StatusBadRequest},
		{name: "unknown coupon", method: http.MethodPut, path: "/api/cart/" + id + "/coupon",
			body: `{"couponCode":"NOPE"}`, status: http.StatusUnprocessableEntity},
		{name: "exhausted coupon", method: http.MethodPut, path: "/api/cart/" + id + "/coupon",
			body: `{"couponCode":"ONCE"}`, status: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCart(t)
	base := "/api/cart/" + id

	w := env.do(t, http.MethodPut, base+"/coupon", `{"couponCode":"TENOFF"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, `true`, field(t, w.Body.Bytes(), "couponApplied"))
	assert.Equal(t, `895500`, field(t, w.Body.Bytes(), "pricing", "grandTotal"))

	w = env.do(t, http.MethodPost, base+"/checkout", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := w.Body.Bytes()
	orderID := strings.Trim(field(t, body, "id"), `"`)
	assert.Equal(t, `"TENOFF"`, field(t, body, "couponCode"))
	assert.Equal(t, `895500`, field(t, body, "pricing", "grandTotal"))
	assert.Contains(t, env.orders.orders, orderID)
	assert.Equal(t, 1, env.coupons.rules["TENOFF"].Uses)

	w = env.do(t, http.MethodGet, base, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "cart is gone after checkout")

	w = env.do(t, http.MethodGet, "/api/order/"+orderID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `895500`, field(t, w.Body.Bytes(), "pricing", "grandTotal"))
	assert.Equal(t, `{"kind":"percentage","value":10}`, field(t, w.Body.Bytes(), "promotion"))
}

func TestCheckout_NothingSelected(t *testing.T) {
	env := newTestEnv(t)
	id := env.createCart(t)

	w := env.do(t, http.MethodPut, "/api/cart/"+id+"/selection", `{"selected":false}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/api/cart/"+id+"/checkout", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, http.MethodGet, "/api/cart/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code, "failed checkout keeps the cart")
}

func TestGetOrder_Reconciliation(t *testing.T) {
	env := newTestEnv(t)
	lines := []pricing.LineItem{{ProductID: "A", UnitPrice: d("10"), Quantity: 1, DiscountPercent: decimal.Zero}}
	env.orders.orders["bad"] = &order.Order{
		ID:      "bad",
		Lines:   lines,
		Pricing: pricing.Result{GrandTotal: d("99")},
	}

	w := env.do(t, http.MethodGet, "/api/order/bad", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":500,"message":"order total mismatch"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/order/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
