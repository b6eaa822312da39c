package orderfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"carsucart/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSource struct {
	mu       sync.Mutex
	orders   []models.Order
	err      error
	ackErr   error
	acks     []int64
	refreshN int
}

func (f *fakeSource) AllOrders(context.Context) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshN++
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.Order(nil), f.orders...), nil
}

func (f *fakeSource) MarkOrderNotificationRead(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, id)
	return f.ackErr
}

func (f *fakeSource) set(orders ...models.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = orders
}

func order(id int64, status string, read bool) models.Order {
	return models.Order{ID: id, UserID: "u1", Status: models.OrderStatus(status), NotificationRead: read}
}

func TestMapStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want models.OrderStatus
		ok   bool
	}{
		{"pending", models.StatusPending, true},
		{" Processing ", models.StatusProcessing, true},
		{"SHIPPED", models.StatusShipped, true},
		{"out-for-delivery", models.StatusShipped, true},
		{"ready for pickup", models.StatusShipped, true},
		{"completed", models.StatusDelivered, true},
		{"canceled", models.StatusCancelled, true},
		{"teleported", models.StatusPending, false},
		{"", models.StatusPending, false},
	}
	for _, tt := range tests {
		got, ok := MapStatus(tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
	}
}

func TestRefreshMapsStatusesAndCountsUnread(t *testing.T) {
	src := &fakeSource{}
	src.set(order(1, "completed", true), order(2, "Shipped", false), order(3, "canceled", false))
	a := New(src, nil)

	require.NoError(t, a.Refresh(context.Background()))
	orders := a.Orders()
	require.Len(t, orders, 3)
	assert.Equal(t, models.StatusDelivered, orders[0].Status)
	assert.Equal(t, models.StatusShipped, orders[1].Status)
	assert.Equal(t, models.StatusCancelled, orders[2].Status)
	assert.Equal(t, 2, a.Unread())
	assert.False(t, a.RefreshedAt().IsZero())
}

func TestFailedRefreshKeepsState(t *testing.T) {
	src := &fakeSource{}
	src.set(order(1, "pending", false))
	a := New(src, nil)
	require.NoError(t, a.Refresh(context.Background()))

	boom := errors.New("offline")
	src.err = boom
	src.set()
	err := a.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, a.LastError(), boom)
	assert.Len(t, a.Orders(), 1)
	assert.Equal(t, 1, a.Unread())

	src.err = nil
	require.NoError(t, a.Refresh(context.Background()))
	assert.NoError(t, a.LastError())
	assert.Empty(t, a.Orders())
}

func TestMarkNotificationAsReadIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	src.set(order(1, "shipped", false), order(2, "processing", false), order(3, "pending", true))
	a := New(src, nil)
	require.NoError(t, a.Refresh(context.Background()))

	ctx := context.Background()
	require.NoError(t, a.MarkNotificationAsRead(ctx, 1))
	require.NoError(t, a.MarkNotificationAsRead(ctx, 1))

	assert.Equal(t, 1, a.Unread())
	o2, _ := a.Order(2)
	assert.False(t, o2.NotificationRead)
	o3, _ := a.Order(3)
	assert.True(t, o3.NotificationRead)
	assert.Equal(t, []int64{1}, src.acks)

	assert.ErrorIs(t, a.MarkNotificationAsRead(ctx, 99), ErrUnknownOrder)
}

func TestLocalAckSurvivesRefreshUntilStatusChanges(t *testing.T) {
	src := &fakeSource{ackErr: errors.New("server down")}
	src.set(order(1, "processing", false))
	a := New(src, nil)
	ctx := context.Background()
	require.NoError(t, a.Refresh(ctx))

	require.NoError(t, a.MarkNotificationAsRead(ctx, 1), "failed server ack is not an error")
	require.NoError(t, a.Refresh(ctx))
	assert.Zero(t, a.Unread(), "same status stays read")

	src.set(order(1, "shipped", false))
	require.NoError(t, a.Refresh(ctx))
	assert.Equal(t, 1, a.Unread(), "new status is unread again")
}

func TestApplyEvent(t *testing.T) {
	src := &fakeSource{}
	now := time.Now()
	o := order(1, "pending", true)
	o.UpdatedAt = now
	src.set(o)
	a := New(src, nil)
	require.NoError(t, a.Refresh(context.Background()))

	assert.False(t, a.ApplyEvent(models.OrderEvent{OrderID: 2, Status: models.StatusShipped}), "unknown order")
	assert.False(t, a.ApplyEvent(models.OrderEvent{OrderID: 1, Status: "bogus"}))
	assert.False(t, a.ApplyEvent(models.OrderEvent{OrderID: 1, Status: models.StatusProcessing, UpdatedAt: now.Add(-time.Minute)}),
		"stale event")

	require.True(t, a.ApplyEvent(models.OrderEvent{OrderID: 1, Status: models.StatusProcessing, UpdatedAt: now.Add(time.Second)}))
	got, _ := a.Order(1)
	assert.Equal(t, models.StatusProcessing, got.Status)
	assert.False(t, got.NotificationRead)
	assert.Equal(t, 1, a.Unread())
}

func TestRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{}
	src.set(order(1, "pending", false))
	a := New(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.refreshN >= 3
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, a.Unread())
}

func TestListenAppliesPushedEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{not json`))
		_ = conn.WriteJSON(models.OrderEvent{OrderID: 1, UserID: "u1", Status: models.StatusShipped})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	src := &fakeSource{}
	src.set(order(1, "processing", true))
	a := New(src, nil)
	require.NoError(t, a.Refresh(context.Background()))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Listen(ctx, wsURL, "tok") }()

	require.Eventually(t, func() bool {
		o, _ := a.Order(1)
		return o.Status == models.StatusShipped
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, a.Unread())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestListenRejectedDial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := New(&fakeSource{}, nil)
	err := a.Listen(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"), "")
	assert.Error(t, err)
}
