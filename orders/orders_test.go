package orders_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"carsucart/cart"
	"carsucart/globals"
	"carsucart/memstore"
	"carsucart/models"
	"carsucart/orders"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, ev models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func as(r *http.Request, userID string, roles ...string) *http.Request {
	ctx := context.WithValue(r.Context(), globals.UserIDKey, userID)
	return r.WithContext(context.WithValue(ctx, globals.RoleKey, roles))
}

type fixture struct {
	store *memstore.Store
	pub   *recordingPublisher
	h     *orders.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	for _, p := range []models.Product{
		{Name: "Notebook", Price: 199.99, Category: "school", Stock: 5, Active: true, SellerID: "s1"},
		{Name: "Pen", Price: 25, Category: "school", Stock: 1, Active: true, SellerID: "s2"},
	} {
		_, err := store.Products().Create(ctx, p)
		require.NoError(t, err)
	}
	store.AddCoupon(cart.Coupon{Code: "SAVE10", Discount: 10, ExpiresAt: time.Now().Add(time.Hour), Active: true})

	pub := &recordingPublisher{}
	h := orders.NewHandler(store.Orders(), store.Cart(), store.Products(), store.Coupons(), pub, zap.NewNop())
	return &fixture{store: store, pub: pub, h: h}
}

func (f *fixture) addLine(t *testing.T, user string, id int64, qty int) {
	t.Helper()
	p, err := f.store.Products().Get(context.Background(), id)
	require.NoError(t, err)
	_, err = f.store.Cart().Add(context.Background(), models.CartItem{
		UserID: user, ID: id, Name: p.Name, Price: 1, Quantity: qty,
	})
	require.NoError(t, err)
}

func (f *fixture) place(user, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.h.PlaceOrder(rec, as(httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)), user, globals.RoleBuyer), nil)
	return rec
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) models.Order {
	t.Helper()
	var body struct {
		Success bool         `json:"success"`
		Data    models.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	return body.Data
}

func TestPlaceOrderPricesFromCatalog(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, "u1", 1, 3)

	rec := f.place("u1", `{"shipping_address":"Dorm 4","payment_method":"GCash","coupon_code":"save10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decodeOrder(t, rec)

	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, "gcash", o.PaymentMethod)
	assert.Equal(t, 599.97, o.Subtotal)
	assert.Equal(t, 60.0, o.Discount)
	assert.Equal(t, 539.97, o.TotalAmount)
	assert.Equal(t, "save10", o.CouponCode)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 199.99, o.Items[0].Price)
	assert.Len(t, o.PickupCode, 8)

	p, _ := f.store.Products().Get(context.Background(), 1)
	assert.Equal(t, 2, p.Stock)
	items, _ := f.store.Cart().Items(context.Background(), "u1")
	assert.Empty(t, items)
}

func TestPlaceOrderRejects(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.place("u1", `{"shipping_address":"Dorm 4"}`).Code, "empty cart")

	f.addLine(t, "u1", 1, 1)
	assert.Equal(t, http.StatusBadRequest, f.place("u1", `{"shipping_address":" "}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.place("u1", `{"shipping_address":"x","payment_method":"barter"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.place("u1", `{"shipping_address":"x","coupon_code":"bogus"}`).Code)
}

func TestPlaceOrderReleasesStockWhenLaterLineShort(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, "u1", 1, 2)
	f.addLine(t, "u1", 2, 3)

	rec := f.place("u1", `{"shipping_address":"Dorm 4"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	notebook, _ := f.store.Products().Get(context.Background(), 1)
	pen, _ := f.store.Products().Get(context.Background(), 2)
	assert.Equal(t, 5, notebook.Stock)
	assert.Equal(t, 1, pen.Stock)

	items, _ := f.store.Cart().Items(context.Background(), "u1")
	assert.Len(t, items, 2, "cart is kept when checkout fails")
}

func (f *fixture) setStatus(id, status, user string, roles ...string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/orders/"+id+"/status", strings.NewReader(`{"status":"`+status+`"}`))
	f.h.UpdateStatus(rec, as(r, user, roles...), httprouter.Params{{Key: "id", Value: id}})
	return rec
}

func TestUpdateStatusRules(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, "u1", 1, 1)
	require.Equal(t, http.StatusCreated, f.place("u1", `{"shipping_address":"Dorm 4"}`).Code)

	assert.Equal(t, http.StatusConflict, f.setStatus("1", "shipped", "root", globals.RoleAdmin).Code)
	assert.Equal(t, http.StatusBadRequest, f.setStatus("1", "lost", "root", globals.RoleAdmin).Code)
	assert.Equal(t, http.StatusForbidden, f.setStatus("1", "processing", "s2", globals.RoleSeller).Code)
	assert.Equal(t, http.StatusForbidden, f.setStatus("1", "processing", "u1", globals.RoleBuyer).Code)
	assert.Equal(t, http.StatusNotFound, f.setStatus("9", "processing", "root", globals.RoleAdmin).Code)

	rec := f.setStatus("1", "processing", "s1", globals.RoleSeller)
	require.Equal(t, http.StatusOK, rec.Code)
	o := decodeOrder(t, rec)
	assert.Equal(t, models.StatusProcessing, o.Status)
	assert.False(t, o.NotificationRead)

	assert.Equal(t, http.StatusForbidden, f.setStatus("1", "cancelled", "u1", globals.RoleBuyer).Code,
		"buyers may only cancel pending orders")

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, int64(1), ev.OrderID)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, models.StatusProcessing, ev.Status)
	assert.True(t, ev.UpdatedAt.Equal(o.UpdatedAt))
}

func TestBuyerCancelReleasesStock(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, "u1", 1, 2)
	require.Equal(t, http.StatusCreated, f.place("u1", `{"shipping_address":"Dorm 4"}`).Code)

	p, _ := f.store.Products().Get(context.Background(), 1)
	require.Equal(t, 3, p.Stock)

	require.Equal(t, http.StatusOK, f.setStatus("1", "cancelled", "u1", globals.RoleBuyer).Code)
	p, _ = f.store.Products().Get(context.Background(), 1)
	assert.Equal(t, 5, p.Stock)

	assert.Equal(t, http.StatusConflict, f.setStatus("1", "processing", "root", globals.RoleAdmin).Code,
		"cancelled is terminal")
}

func TestMarkNotificationReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, "u1", 1, 1)
	require.Equal(t, http.StatusCreated, f.place("u1", `{"shipping_address":"Dorm 4"}`).Code)
	require.Equal(t, http.StatusOK, f.setStatus("1", "processing", "root", globals.RoleAdmin).Code)

	ps := httprouter.Params{{Key: "id", Value: "1"}}
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		f.h.MarkNotificationRead(rec, as(httptest.NewRequest(http.MethodPut, "/orders/1/notification-read", nil), "u1"), ps)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	o, _ := f.store.Orders().Get(context.Background(), 1)
	assert.True(t, o.NotificationRead)

	rec := httptest.NewRecorder()
	f.h.MarkNotificationRead(rec, as(httptest.NewRequest(http.MethodPut, "/orders/1/notification-read", nil), "u2"), ps)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersOnlyOwn(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, "u1", 1, 1)
	f.place("u1", `{"shipping_address":"Dorm 4"}`)
	f.addLine(t, "u2", 1, 1)
	f.place("u2", `{"shipping_address":"Dorm 5"}`)

	rec := httptest.NewRecorder()
	f.h.ListOrders(rec, as(httptest.NewRequest(http.MethodGet, "/orders", nil), "u1"), nil)
	var body struct {
		Data struct {
			Data  []models.Order `json:"data"`
			Total int64          `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data.Data, 1)
	assert.Equal(t, "u1", body.Data.Data[0].UserID)

	rec = httptest.NewRecorder()
	f.h.ListAllOrders(rec, as(httptest.NewRequest(http.MethodGet, "/admin/orders?status=pending", nil), "root", globals.RoleAdmin), nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body.Data.Total)

	rec = httptest.NewRecorder()
	f.h.ListAllOrders(rec, as(httptest.NewRequest(http.MethodGet, "/admin/orders?status=lost", nil), "root", globals.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvoice(t *testing.T) {
	f := newFixture(t)
	f.addLine(t, "u1", 1, 1)
	require.Equal(t, http.StatusCreated, f.place("u1", `{"shipping_address":"Dorm 4","coupon_code":"SAVE10"}`).Code)

	rec := httptest.NewRecorder()
	f.h.Invoice(rec, as(httptest.NewRequest(http.MethodGet, "/orders/1/invoice", nil), "u1"), httprouter.Params{{Key: "id", Value: "1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestPickupPayload(t *testing.T) {
	assert.Equal(t, "CARSU|7|AB12CD34", orders.PickupPayload(models.Order{ID: 7, PickupCode: "AB12CD34"}))
}
