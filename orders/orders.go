package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"carsucart/cart"
	"carsucart/globals"
	"carsucart/models"
	"carsucart/products"
	"carsucart/utils"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartSource is the part of the cart store checkout needs.
type CartSource interface {
	Items(ctx context.Context, userID string) ([]models.CartItem, error)
	Clear(ctx context.Context, userID string) error
}

// Inventory resolves authoritative prices and holds stock for placed orders.
type Inventory interface {
	Get(ctx context.Context, id int64) (models.Product, error)
	ReserveStock(ctx context.Context, id int64, qty int) error
	ReleaseStock(ctx context.Context, id int64, qty int) error
}

// Publisher announces order status changes.
type Publisher interface {
	PublishOrderEvent(ctx context.Context, ev models.OrderEvent) error
}

type Handler struct {
	repo      Repository
	carts     CartSource
	inventory Inventory
	coupons   cart.CouponRepository
	publisher Publisher
	log       *zap.Logger
	now       func() time.Time
}

func NewHandler(repo Repository, carts CartSource, inventory Inventory, coupons cart.CouponRepository, publisher Publisher, log *zap.Logger) *Handler {
	return &Handler{
		repo:      repo,
		carts:     carts,
		inventory: inventory,
		coupons:   coupons,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

var paymentMethods = map[string]bool{"cod": true, "gcash": true, "card": true}

// checkoutError carries the status code a failed checkout step answers with.
type checkoutError struct {
	status int
	msg    string
}

func (e *checkoutError) Error() string { return e.msg }

// POST /orders turns the caller's server cart into an order. Prices come
// from the catalog, never from the cart lines.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req models.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid order payload")
		return
	}
	req.ShippingAddress = strings.TrimSpace(req.ShippingAddress)
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.ShippingAddress == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Shipping address is required")
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "cod"
	}
	if !paymentMethods[req.PaymentMethod] {
		utils.RespondWithError(w, http.StatusBadRequest, "Unsupported payment method")
		return
	}

	userID := utils.GetUserIDFromRequest(r)
	order, err := h.checkout(ctx, userID, req)
	var ce *checkoutError
	if errors.As(err, &ce) {
		utils.RespondWithError(w, ce.status, ce.msg)
		return
	}
	if err != nil {
		h.log.Error("place order", zap.String("user", userID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Order creation failed")
		return
	}

	if err := h.carts.Clear(ctx, userID); err != nil {
		h.log.Warn("clear cart after checkout", zap.Int64("order", order.ID), zap.Error(err))
	}
	h.log.Info("order placed", zap.Int64("order", order.ID), zap.String("user", userID),
		zap.Float64("total", order.TotalAmount))
	utils.RespondWithData(w, http.StatusCreated, order)
}

func (h *Handler) checkout(ctx context.Context, userID string, req models.CheckoutRequest) (models.Order, error) {
	lines, err := h.carts.Items(ctx, userID)
	if err != nil {
		return models.Order{}, err
	}
	if len(lines) == 0 {
		return models.Order{}, &checkoutError{http.StatusBadRequest, "Cart is empty"}
	}

	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		p, err := h.inventory.Get(ctx, line.ID)
		if errors.Is(err, products.ErrNotFound) || (err == nil && !p.Active) {
			return models.Order{}, &checkoutError{http.StatusConflict, line.Name + " is no longer available"}
		}
		if err != nil {
			return models.Order{}, err
		}
		lineTotal := decimal.NewFromFloat(p.Price).Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
		subtotal = subtotal.Add(lineTotal)
		items = append(items, models.OrderItem{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      p.Name,
			Image:     p.Image,
			Variant:   line.Variant,
			Price:     p.Price,
			Quantity:  line.Quantity,
			Subtotal:  lineTotal.InexactFloat64(),
		})
	}

	discount := decimal.Zero
	code := cart.NormalizeCode(req.CouponCode)
	if code != "" && h.coupons != nil {
		coupon, err := h.coupons.FindCoupon(ctx, code)
		if errors.Is(err, cart.ErrCouponNotFound) {
			return models.Order{}, &checkoutError{http.StatusBadRequest, "Coupon not found"}
		}
		if err != nil {
			return models.Order{}, err
		}
		var msg string
		if discount, msg = coupon.Apply(subtotal, h.now()); msg != "" {
			return models.Order{}, &checkoutError{http.StatusBadRequest, msg}
		}
	}

	if err := h.reserve(ctx, items); err != nil {
		return models.Order{}, err
	}

	now := h.now()
	order, err := h.repo.Create(ctx, models.Order{
		UserID:           userID,
		Items:            items,
		Subtotal:         subtotal.InexactFloat64(),
		Discount:         discount.InexactFloat64(),
		CouponCode:       code,
		TotalAmount:      subtotal.Sub(discount).Round(2).InexactFloat64(),
		Status:           models.StatusPending,
		PaymentStatus:    models.PaymentUnpaid,
		PaymentMethod:    req.PaymentMethod,
		ShippingAddress:  req.ShippingAddress,
		PickupCode:       strings.ToUpper(uuid.NewString()[:8]),
		OrderDate:        now,
		UpdatedAt:        now,
		NotificationRead: true,
	})
	if err != nil {
		h.release(items)
		return models.Order{}, err
	}
	return order, nil
}

// reserve holds stock for every item, handing back what it already took
// when a later item cannot be filled.
func (h *Handler) reserve(ctx context.Context, items []models.OrderItem) error {
	for i, it := range items {
		err := h.inventory.ReserveStock(ctx, it.ProductID, it.Quantity)
		if err == nil {
			continue
		}
		h.release(items[:i])
		if errors.Is(err, products.ErrOutOfStock) {
			return &checkoutError{http.StatusConflict, "Not enough stock for " + it.Name}
		}
		return err
	}
	return nil
}

func (h *Handler) release(items []models.OrderItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, it := range items {
		if err := h.inventory.ReleaseStock(ctx, it.ProductID, it.Quantity); err != nil {
			h.log.Error("release stock", zap.Int64("product", it.ProductID), zap.Int("qty", it.Quantity), zap.Error(err))
		}
	}
}

// GET /orders
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := utils.ParseQueryOptions(r, 10, 50)
	items, total, err := h.repo.ListByUser(r.Context(), utils.GetUserIDFromRequest(r), q)
	if err != nil {
		h.log.Error("list orders", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve orders")
		return
	}
	utils.RespondWithPage(w, items, models.NewPage(q.Page, q.PerPage, total))
}

// GET /admin/orders
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := utils.ParseQueryOptions(r, 20, 100)
	if q.Status != "" && !models.OrderStatus(q.Status).Valid() {
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}
	items, total, err := h.repo.List(r.Context(), q)
	if err != nil {
		h.log.Error("list all orders", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve orders")
		return
	}
	utils.RespondWithPage(w, items, models.NewPage(q.Page, q.PerPage, total))
}

// GET /orders/:id
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	order, ok := h.loadVisible(w, r, ps)
	if !ok {
		return
	}
	utils.RespondWithData(w, http.StatusOK, order)
}

// PUT /orders/:id/status
//
// Admins may make any legal transition; sellers only on orders that contain
// one of their products; buyers may only cancel their own pending order.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := utils.ParseID(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	next := models.OrderStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	if !next.Valid() {
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown status")
		return
	}

	ctx := r.Context()
	order, err := h.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		h.log.Error("get order", zap.Int64("order", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve order")
		return
	}

	if !mayChangeStatus(r, order, next) {
		utils.RespondWithError(w, http.StatusForbidden, "Forbidden")
		return
	}
	if !order.Status.CanTransition(next) {
		utils.RespondWithError(w, http.StatusConflict, "Cannot move order from "+string(order.Status)+" to "+string(next))
		return
	}

	updated, err := h.repo.UpdateStatus(ctx, id, order.Status, next)
	if errors.Is(err, ErrStatusConflict) {
		utils.RespondWithError(w, http.StatusConflict, "Order was updated by someone else")
		return
	}
	if err != nil {
		h.log.Error("update order status", zap.Int64("order", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update order")
		return
	}

	if next == models.StatusCancelled {
		h.release(updated.Items)
	}

	ev := models.OrderEvent{OrderID: updated.ID, UserID: updated.UserID, Status: updated.Status, UpdatedAt: updated.UpdatedAt}
	if h.publisher != nil {
		if err := h.publisher.PublishOrderEvent(ctx, ev); err != nil {
			h.log.Warn("publish order event", zap.Int64("order", id), zap.Error(err))
		}
	}
	h.log.Info("order status changed", zap.Int64("order", id),
		zap.String("from", string(order.Status)), zap.String("to", string(next)))
	utils.RespondWithData(w, http.StatusOK, updated)
}

func mayChangeStatus(r *http.Request, o models.Order, next models.OrderStatus) bool {
	if utils.HasRole(r, globals.RoleAdmin) {
		return true
	}
	userID := utils.GetUserIDFromRequest(r)
	if utils.HasRole(r, globals.RoleSeller) {
		for _, it := range o.Items {
			if it.SellerID == userID {
				return true
			}
		}
	}
	return o.UserID == userID && o.Status == models.StatusPending && next == models.StatusCancelled
}

// PUT /orders/:id/notification-read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	order, ok := h.loadVisible(w, r, ps)
	if !ok {
		return
	}
	if !order.NotificationRead {
		if err := h.repo.MarkNotificationRead(r.Context(), order.ID); err != nil {
			h.log.Error("mark notification read", zap.Int64("order", order.ID), zap.Error(err))
			utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update order")
			return
		}
	}
	utils.RespondWithData(w, http.StatusOK, map[string]any{"id": order.ID, "notification_read": true})
}

// loadVisible fetches the order named by :id if the caller owns it or is an admin.
func (h *Handler) loadVisible(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (models.Order, bool) {
	id, ok := utils.ParseID(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid order id")
		return models.Order{}, false
	}
	order, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return order, false
	}
	if err != nil {
		h.log.Error("get order", zap.Int64("order", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve order")
		return order, false
	}
	if order.UserID != utils.GetUserIDFromRequest(r) && !utils.HasRole(r, globals.RoleAdmin) {
		// do not reveal other users' order ids
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return order, false
	}
	return order, true
}
