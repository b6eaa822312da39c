// Package orderfeed tracks the buyer's orders and which status changes
// they have not yet seen.
package orderfeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"carsucart/models"

	"go.uber.org/zap"
)

var ErrUnknownOrder = errors.New("order not loaded")

// Source is where orders come from. *remote.Client satisfies it.
type Source interface {
	AllOrders(ctx context.Context) ([]models.Order, error)
	MarkOrderNotificationRead(ctx context.Context, id int64) error
}

var statusAliases = map[string]models.OrderStatus{
	"pending":          models.StatusPending,
	"placed":           models.StatusPending,
	"new":              models.StatusPending,
	"awaiting_payment": models.StatusPending,
	"processing":       models.StatusProcessing,
	"confirmed":        models.StatusProcessing,
	"preparing":        models.StatusProcessing,
	"to_ship":          models.StatusProcessing,
	"shipped":          models.StatusShipped,
	"in_transit":       models.StatusShipped,
	"out_for_delivery": models.StatusShipped,
	"ready_for_pickup": models.StatusShipped,
	"delivered":        models.StatusDelivered,
	"completed":        models.StatusDelivered,
	"received":         models.StatusDelivered,
	"cancelled":        models.StatusCancelled,
	"canceled":         models.StatusCancelled,
	"refunded":         models.StatusCancelled,
}

// MapStatus folds a backend status string onto the five known statuses.
// Unrecognized values map to pending with ok false.
func MapStatus(raw string) (models.OrderStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if s, ok := statusAliases[key]; ok {
		return s, true
	}
	return models.StatusPending, false
}

type Aggregator struct {
	mu     sync.Mutex
	orders []models.Order
	index  map[int64]int
	// acked holds the status each order had when the buyer last dismissed
	// its notification.
	acked       map[int64]models.OrderStatus
	lastErr     error
	refreshedAt time.Time

	src Source
	log *zap.Logger
}

func New(src Source, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		index: map[int64]int{},
		acked: map[int64]models.OrderStatus{},
		src:   src,
		log:   log,
	}
}

// Orders returns a copy of the loaded orders in server order.
func (a *Aggregator) Orders() []models.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Order(nil), a.orders...)
}

func (a *Aggregator) Order(id int64) (models.Order, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.index[id]
	if !ok {
		return models.Order{}, false
	}
	return a.orders[i], true
}

// Unread counts orders whose latest status the buyer has not seen.
func (a *Aggregator) Unread() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, o := range a.orders {
		if !o.NotificationRead {
			n++
		}
	}
	return n
}

// LastError is the error of the most recent failed refresh, or nil once a
// refresh succeeds.
func (a *Aggregator) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *Aggregator) RefreshedAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.refreshedAt
}

// Refresh reloads every order. On failure the previous orders are kept.
func (a *Aggregator) Refresh(ctx context.Context) error {
	fetched, err := a.src.AllOrders(ctx)
	if err != nil {
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		a.log.Warn("order refresh failed, keeping previous orders", zap.Error(err))
		return fmt.Errorf("refresh orders: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	orders := make([]models.Order, 0, len(fetched))
	index := make(map[int64]int, len(fetched))
	for _, o := range fetched {
		status, ok := MapStatus(string(o.Status))
		if !ok {
			a.log.Warn("unknown order status", zap.Int64("order", o.ID), zap.String("status", string(o.Status)))
		}
		o.Status = status
		o.NotificationRead = a.seen(o)
		index[o.ID] = len(orders)
		orders = append(orders, o)
	}
	for id := range a.acked {
		if _, ok := index[id]; !ok {
			delete(a.acked, id)
		}
	}

	a.orders, a.index = orders, index
	a.lastErr = nil
	a.refreshedAt = time.Now()
	return nil
}

// seen reports whether o's current status has been acknowledged, either by
// the server or locally. Must hold a.mu.
func (a *Aggregator) seen(o models.Order) bool {
	if acked, ok := a.acked[o.ID]; ok {
		if acked == o.Status {
			return true
		}
		delete(a.acked, o.ID)
	}
	return o.NotificationRead
}

// MarkNotificationAsRead flips one order's flag. Calling it again is a
// no-op. The server is told on a best-effort basis; a failed
// acknowledgement is logged and the local flag kept.
func (a *Aggregator) MarkNotificationAsRead(ctx context.Context, id int64) error {
	a.mu.Lock()
	i, ok := a.index[id]
	if !ok {
		a.mu.Unlock()
		return ErrUnknownOrder
	}
	if a.orders[i].NotificationRead {
		a.mu.Unlock()
		return nil
	}
	a.orders[i].NotificationRead = true
	a.acked[id] = a.orders[i].Status
	a.mu.Unlock()

	if err := a.src.MarkOrderNotificationRead(ctx, id); err != nil {
		a.log.Warn("acknowledge order notification", zap.Int64("order", id), zap.Error(err))
	}
	return nil
}

// MarkAllAsRead acknowledges every unread order.
func (a *Aggregator) MarkAllAsRead(ctx context.Context) {
	a.mu.Lock()
	var ids []int64
	for _, o := range a.orders {
		if !o.NotificationRead {
			ids = append(ids, o.ID)
		}
	}
	a.mu.Unlock()
	for _, id := range ids {
		_ = a.MarkNotificationAsRead(ctx, id)
	}
}

// ApplyEvent applies a pushed status change and reports whether it changed
// a loaded order. Events for orders not loaded yet wait for the next refresh.
func (a *Aggregator) ApplyEvent(ev models.OrderEvent) bool {
	status, ok := MapStatus(string(ev.Status))
	if !ok {
		a.log.Warn("unknown order status in event", zap.Int64("order", ev.OrderID), zap.String("status", string(ev.Status)))
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	i, found := a.index[ev.OrderID]
	if !found {
		return false
	}
	o := &a.orders[i]
	if o.Status == status || (!ev.UpdatedAt.IsZero() && ev.UpdatedAt.Before(o.UpdatedAt)) {
		return false
	}
	o.Status = status
	if !ev.UpdatedAt.IsZero() {
		o.UpdatedAt = ev.UpdatedAt
	}
	o.NotificationRead = a.acked[o.ID] == status
	return true
}

// Run refreshes immediately and then every interval until ctx is done.
// Refresh failures are recorded and do not stop the loop.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_ = a.Refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
