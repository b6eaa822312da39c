package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"carsucart/cart"
	"carsucart/globals"
	"carsucart/memstore"
	"carsucart/models"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func as(r *http.Request, userID string) *http.Request {
	ctx := context.WithValue(r.Context(), globals.UserIDKey, userID)
	return r.WithContext(context.WithValue(ctx, globals.RoleKey, []string{globals.RoleBuyer}))
}

func newHandler(t *testing.T) (*cart.Handler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	_, err := store.Products().Create(context.Background(), models.Product{
		Name: "Shirt", Price: 299.5, Category: "apparel", Variants: []string{"S", "M"}, Stock: 10, Active: true,
	})
	require.NoError(t, err)
	_, err = store.Products().Create(context.Background(), models.Product{
		Name: "Retired", Price: 10, Category: "apparel", Stock: 10, Active: false,
	})
	require.NoError(t, err)
	return cart.NewHandler(store.Cart(), store.Products(), zap.NewNop()), store
}

func post(h *cart.Handler, user, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.AddToCart(rec, as(httptest.NewRequest(http.MethodPost, "/cart", strings.NewReader(body)), user), nil)
	return rec
}

func TestAddToCartMergesSameVariant(t *testing.T) {
	h, store := newHandler(t)

	require.Equal(t, http.StatusCreated, post(h, "u1", `{"id":1,"variant":"M","quantity":2}`).Code)
	require.Equal(t, http.StatusCreated, post(h, "u1", `{"id":1,"variant":"M"}`).Code)
	require.Equal(t, http.StatusCreated, post(h, "u1", `{"id":1,"variant":"S","quantity":1}`).Code)

	items, err := store.Cart().Items(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, models.LineKey{ID: 1, Variant: "M"}, items[0].Key())
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 299.5, items[0].Price)

	other, _ := store.Cart().Items(context.Background(), "u2")
	assert.Empty(t, other)
}

func TestAddToCartRejects(t *testing.T) {
	h, _ := newHandler(t)

	assert.Equal(t, http.StatusBadRequest, post(h, "u1", `{"id":0}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h, "u1", `{"id":1,"variant":"XXL"}`).Code)
	assert.Equal(t, http.StatusNotFound, post(h, "u1", `{"id":2}`).Code)
	assert.Equal(t, http.StatusNotFound, post(h, "u1", `{"id":42}`).Code)
}

func TestUpdateCartItemClampsQuantity(t *testing.T) {
	h, store := newHandler(t)
	require.Equal(t, http.StatusCreated, post(h, "u1", `{"id":1,"variant":"S","quantity":4}`).Code)

	rec := httptest.NewRecorder()
	r := as(httptest.NewRequest(http.MethodPut, "/cart/1", strings.NewReader(`{"variant":"S","quantity":0}`)), "u1")
	h.UpdateCartItem(rec, r, httprouter.Params{{Key: "id", Value: "1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	items, _ := store.Cart().Items(context.Background(), "u1")
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)

	rec = httptest.NewRecorder()
	r = as(httptest.NewRequest(http.MethodPut, "/cart/1", strings.NewReader(`{"variant":"M","quantity":3}`)), "u1")
	h.UpdateCartItem(rec, r, httprouter.Params{{Key: "id", Value: "1"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveAndClear(t *testing.T) {
	h, store := newHandler(t)
	post(h, "u1", `{"id":1,"variant":"S"}`)
	post(h, "u1", `{"id":1,"variant":"M"}`)

	rec := httptest.NewRecorder()
	h.RemoveCartItem(rec, as(httptest.NewRequest(http.MethodDelete, "/cart/1?variant=S", nil), "u1"),
		httprouter.Params{{Key: "id", Value: "1"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.GetCart(rec, as(httptest.NewRequest(http.MethodGet, "/cart", nil), "u1"), nil)
	var body struct {
		Data []models.CartItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "M", body.Data[0].Variant)

	rec = httptest.NewRecorder()
	h.ClearCart(rec, as(httptest.NewRequest(http.MethodDelete, "/cart", nil), "u1"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items, _ := store.Cart().Items(context.Background(), "u1")
	assert.Empty(t, items)
}

func TestCouponApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := cart.Coupon{Code: "save10", Discount: 10, ExpiresAt: now.Add(time.Hour), Active: true}

	got, msg := c.Apply(decimal.RequireFromString("199.99"), now)
	assert.Empty(t, msg)
	assert.Equal(t, "20", got.String())

	_, msg = c.Apply(decimal.NewFromInt(100), now.Add(2*time.Hour))
	assert.Equal(t, "Coupon expired", msg)

	c.Active = false
	_, msg = c.Apply(decimal.NewFromInt(100), now)
	assert.Equal(t, "Coupon inactive", msg)
}

func TestValidateCouponHandler(t *testing.T) {
	store := memstore.New()
	store.AddCoupon(cart.Coupon{Code: " WELCOME ", Discount: 15, ExpiresAt: time.Now().Add(time.Hour), Active: true})
	h := cart.ValidateCouponHandler(store.Coupons())

	tests := []struct {
		body     string
		valid    bool
		discount float64
	}{
		{`{"code":"welcome","cart":200}`, true, 30},
		{`{"code":"WELCOME","cart":200}`, true, 30},
		{`{"code":"nope","cart":200}`, false, 0},
		{`{"code":"","cart":200}`, false, 0},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/cart/coupon", strings.NewReader(tt.body)), nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Data cart.CouponResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.valid, body.Data.Valid, tt.body)
		assert.Equal(t, tt.discount, body.Data.Discount, tt.body)
	}
}
