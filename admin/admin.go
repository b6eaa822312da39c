package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"carsucart/models"
	"carsucart/products"
	"carsucart/utils"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// OrderStats summarizes orders for the dashboard.
type OrderStats interface {
	Stats(ctx context.Context) (map[models.OrderStatus]int64, float64, error)
}

// Visibility toggles a product on the storefront.
type Visibility interface {
	SetActive(ctx context.Context, id int64, active bool) error
}

type Handler struct {
	catalog    products.Repository
	visibility Visibility
	orders     OrderStats
	log        *zap.Logger
}

func NewHandler(catalog products.Repository, visibility Visibility, orders OrderStats, log *zap.Logger) *Handler {
	return &Handler{catalog: catalog, visibility: visibility, orders: orders, log: log}
}

// GET /admin/dashboard
//
// Response: 200 OK { products, active_products, orders, orders_by_status, revenue }
// Revenue counts delivered orders only.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	total, active, err := h.catalog.Count(ctx)
	if err != nil {
		h.log.Error("count products", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}
	byStatus, revenue, err := h.orders.Stats(ctx)
	if err != nil {
		h.log.Error("order stats", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to build dashboard")
		return
	}

	d := models.Dashboard{
		Products:       total,
		ActiveProducts: active,
		OrdersByStatus: map[models.OrderStatus]int64{},
		Revenue:        revenue,
	}
	for _, s := range []models.OrderStatus{models.StatusPending, models.StatusProcessing,
		models.StatusShipped, models.StatusDelivered, models.StatusCancelled} {
		d.OrdersByStatus[s] = byStatus[s]
		d.Orders += byStatus[s]
	}
	utils.RespondWithData(w, http.StatusOK, d)
}

// GET /admin/products lists products including inactive ones.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := products.Query{QueryOptions: utils.ParseQueryOptions(r, 20, 100), IncludeInactive: true}
	items, total, err := h.catalog.List(r.Context(), q)
	if err != nil {
		h.log.Error("admin list products", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}
	utils.RespondWithPage(w, items, models.NewPage(q.Page, q.PerPage, total))
}

// PUT /admin/products/:id/active
func (h *Handler) SetProductActive(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := utils.ParseID(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	var body struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Active == nil {
		utils.RespondWithError(w, http.StatusBadRequest, "active is required")
		return
	}

	err := h.visibility.SetActive(r.Context(), id, *body.Active)
	if errors.Is(err, products.ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		h.log.Error("set product active", zap.Int64("product", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update product")
		return
	}
	utils.RespondWithData(w, http.StatusOK, map[string]any{"id": id, "active": *body.Active})
}
