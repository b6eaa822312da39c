package pay_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"carsucart/globals"
	"carsucart/memstore"
	"carsucart/models"
	"carsucart/pay"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHandler(t *testing.T) (*pay.Handler, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	_, err := store.Orders().Create(context.Background(), models.Order{
		UserID: "u1", TotalAmount: 539.97, Status: models.StatusPending, PaymentStatus: models.PaymentUnpaid,
	})
	require.NoError(t, err)
	return pay.NewHandler(store.Payments(), store.Orders(), zap.NewNop()), store
}

func pay1(h *pay.Handler, user, key, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/payments", strings.NewReader(body))
	if key != "" {
		r.Header.Set("Idempotency-Key", key)
	}
	ctx := context.WithValue(r.Context(), globals.UserIDKey, user)
	rec := httptest.NewRecorder()
	h.CreatePayment(rec, r.WithContext(ctx), nil)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) models.Payment {
	t.Helper()
	var body struct {
		Data models.Payment `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data
}

func TestCreatePaymentReplaysIdempotencyKey(t *testing.T) {
	h, store := newHandler(t)
	body := `{"order_id":1,"method":"gcash","amount":539.97,"reference":"GC-1"}`

	first := pay1(h, "u1", "k1", body)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	p := decode(t, first)
	assert.Equal(t, models.PaymentPaid, p.Status)

	second := pay1(h, "u1", "k1", body)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, p.ID, decode(t, second).ID)

	o, _ := store.Orders().Get(context.Background(), 1)
	assert.Equal(t, models.PaymentPaid, o.PaymentStatus)

	// the order is paid now, so a fresh key is refused
	assert.Equal(t, http.StatusConflict, pay1(h, "u1", "k2", body).Code)
}

func TestCreatePaymentCODIsPending(t *testing.T) {
	h, store := newHandler(t)
	rec := pay1(h, "u1", "", `{"order_id":1,"method":"COD","amount":539.97}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.PaymentPending, decode(t, rec).Status)

	o, _ := store.Orders().Get(context.Background(), 1)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, "cod", o.PaymentMethod)
}

func TestCreatePaymentRejects(t *testing.T) {
	h, store := newHandler(t)
	_, err := store.Orders().Create(context.Background(), models.Order{
		UserID: "u1", TotalAmount: 10, Status: models.StatusCancelled,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		user string
		body string
		want int
	}{
		{"bad json", "u1", `{`, http.StatusBadRequest},
		{"amount mismatch", "u1", `{"order_id":1,"method":"cod","amount":500}`, http.StatusBadRequest},
		{"missing reference", "u1", `{"order_id":1,"method":"card","amount":539.97}`, http.StatusBadRequest},
		{"unknown method", "u1", `{"order_id":1,"method":"iou","amount":539.97}`, http.StatusBadRequest},
		{"other user", "u2", `{"order_id":1,"method":"cod","amount":539.97}`, http.StatusNotFound},
		{"cancelled", "u1", `{"order_id":2,"method":"cod","amount":10}`, http.StatusConflict},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := pay1(h, tt.user, fmt.Sprint("key-", i), tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCreatePaymentOnePerOrder(t *testing.T) {
	h, store := newHandler(t)
	cod := `{"order_id":1,"method":"cod","amount":539.97}`

	require.Equal(t, http.StatusCreated, pay1(h, "u1", "", cod).Code)

	again := pay1(h, "u1", "", cod)
	assert.Equal(t, http.StatusConflict, again.Code, again.Body.String())
	card := pay1(h, "u1", "", `{"order_id":1,"method":"card","amount":539.97,"reference":"CARD-1"}`)
	assert.Equal(t, http.StatusConflict, card.Code, card.Body.String())

	o, _ := store.Orders().Get(context.Background(), 1)
	assert.Equal(t, models.PaymentPending, o.PaymentStatus)
	assert.Equal(t, "cod", o.PaymentMethod)
}

func TestCreatePaymentConcurrentWithoutKey(t *testing.T) {
	h, _ := newHandler(t)
	body := `{"order_id":1,"method":"card","amount":539.97,"reference":"CARD-1"}`

	const n = 8
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = pay1(h, "u1", "", body).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		if c == http.StatusCreated {
			created++
		} else {
			assert.Equal(t, http.StatusConflict, c)
		}
	}
	assert.Equal(t, 1, created)
}
