package pay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"carsucart/models"
	"carsucart/orders"
	"carsucart/utils"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderBook is the part of the order store payments touch.
type OrderBook interface {
	Get(ctx context.Context, id int64) (models.Order, error)
	ClaimPayment(ctx context.Context, id int64, status, method string) error
	ReleasePayment(ctx context.Context, id int64) error
}

type Handler struct {
	repo   Repository
	orders OrderBook
	log    *zap.Logger
}

func NewHandler(repo Repository, orders OrderBook, log *zap.Logger) *Handler {
	return &Handler{repo: repo, orders: orders, log: log}
}

type paymentRequest struct {
	OrderID   int64   `json:"order_id"`
	Method    string  `json:"method"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference"`
}

// POST /payments records a payment against one of the caller's orders.
// The gateway itself is external: non-COD methods must carry the gateway
// reference and are recorded as paid.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := utils.GetUserIDFromRequest(r)
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		key = userID + ":" + key
		if p, found, err := h.repo.FindByKey(ctx, key); err != nil {
			h.log.Error("idempotency lookup", zap.Error(err))
		} else if found {
			w.Header().Set("Idempotent-Replayed", "true")
			utils.RespondWithData(w, http.StatusOK, p)
			return
		}
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payment payload")
		return
	}
	req.Method = strings.ToLower(strings.TrimSpace(req.Method))

	order, err := h.orders.Get(ctx, req.OrderID)
	if errors.Is(err, orders.ErrNotFound) || (err == nil && order.UserID != userID) {
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
		return
	}
	if err != nil {
		h.log.Error("get order for payment", zap.Int64("order", req.OrderID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve order")
		return
	}

	if msg := validate(req, order); msg != "" {
		status := http.StatusBadRequest
		if order.Status == models.StatusCancelled || paymentTaken(order) {
			status = http.StatusConflict
		}
		utils.RespondWithError(w, status, msg)
		return
	}

	p := models.Payment{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		UserID:    userID,
		Method:    req.Method,
		Amount:    order.TotalAmount,
		Reference: req.Reference,
		Status:    models.PaymentPaid,
		CreatedAt: time.Now(),
	}
	if req.Method == "cod" {
		p.Status = models.PaymentPending
	}

	// claiming the order first lets exactly one payment through
	err = h.orders.ClaimPayment(ctx, order.ID, p.Status, p.Method)
	if errors.Is(err, orders.ErrPaymentTaken) {
		h.replayOrConflict(ctx, w, key)
		return
	}
	if err != nil {
		h.log.Error("claim order payment", zap.Int64("order", order.ID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record payment")
		return
	}

	if err := h.repo.Create(ctx, key, p); err != nil {
		if rerr := h.orders.ReleasePayment(ctx, order.ID); rerr != nil {
			h.log.Error("release order payment", zap.Int64("order", order.ID), zap.Error(rerr))
		}
		if errors.Is(err, ErrDuplicateKey) {
			h.replayOrConflict(ctx, w, key)
			return
		}
		h.log.Error("create payment", zap.Int64("order", order.ID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to record payment")
		return
	}
	utils.RespondWithData(w, http.StatusCreated, p)
}

// replayOrConflict answers a request that lost a race: with the stored
// payment when its key already produced one, else 409.
func (h *Handler) replayOrConflict(ctx context.Context, w http.ResponseWriter, key string) {
	if key != "" {
		if prior, found, err := h.repo.FindByKey(ctx, key); err == nil && found {
			w.Header().Set("Idempotent-Replayed", "true")
			utils.RespondWithData(w, http.StatusOK, prior)
			return
		}
	}
	utils.RespondWithError(w, http.StatusConflict, "Order already has a payment")
}

func paymentTaken(o models.Order) bool {
	return o.PaymentStatus == models.PaymentPending || o.PaymentStatus == models.PaymentPaid
}

var methods = map[string]bool{"cod": true, "gcash": true, "card": true}

func validate(req paymentRequest, order models.Order) string {
	switch {
	case !methods[req.Method]:
		return "Unsupported payment method"
	case req.Method != "cod" && strings.TrimSpace(req.Reference) == "":
		return "Payment reference is required"
	case order.Status == models.StatusCancelled:
		return "Order is cancelled"
	case paymentTaken(order):
		return "Order already has a payment"
	}
	// the server total is authoritative; the client only echoes it
	if !decimal.NewFromFloat(req.Amount).Round(2).Equal(decimal.NewFromFloat(order.TotalAmount).Round(2)) {
		return "Amount does not match order total"
	}
	return ""
}
