package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"carsucart/models"
	"carsucart/utils"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Catalog resolves the authoritative product a line refers to.
type Catalog interface {
	Get(ctx context.Context, id int64) (models.Product, error)
}

type Handler struct {
	repo    Repository
	catalog Catalog
	log     *zap.Logger
}

func NewHandler(repo Repository, catalog Catalog, log *zap.Logger) *Handler {
	return &Handler{repo: repo, catalog: catalog, log: log}
}

type lineInput struct {
	ID       int64  `json:"id"`
	Variant  string `json:"variant"`
	Quantity int    `json:"quantity"`
}

// GET /cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	items, err := h.repo.Items(ctx, utils.GetUserIDFromRequest(r))
	if err != nil {
		h.log.Error("get cart", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Could not retrieve cart")
		return
	}
	if items == nil {
		items = []models.CartItem{}
	}
	utils.RespondWithData(w, http.StatusOK, items)
}

// POST /cart adds a line or increments an existing (id, variant) line.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var in lineInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if in.Quantity < 1 {
		in.Quantity = 1
	}

	p, err := h.catalog.Get(ctx, in.ID)
	if err != nil || !p.Active {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	if len(p.Variants) > 0 && !slices.Contains(p.Variants, in.Variant) {
		utils.RespondWithError(w, http.StatusBadRequest, "Unknown variant")
		return
	}

	line, err := h.repo.Add(ctx, models.CartItem{
		UserID:   utils.GetUserIDFromRequest(r),
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		Image:    p.Image,
		Variant:  in.Variant,
		Quantity: in.Quantity,
	})
	if err != nil {
		h.log.Error("add to cart", zap.Int64("product", in.ID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to add to cart")
		return
	}
	utils.RespondWithData(w, http.StatusCreated, line)
}

// PUT /cart/:id sets a line's quantity, clamped to at least one.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := utils.ParseID(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	var in lineInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if in.Quantity < 1 {
		in.Quantity = 1
	}

	key := models.LineKey{ID: id, Variant: in.Variant}
	line, err := h.repo.SetQuantity(r.Context(), utils.GetUserIDFromRequest(r), key, in.Quantity)
	if errors.Is(err, ErrLineNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Item is not in the cart")
		return
	}
	if err != nil {
		h.log.Error("update cart", zap.Int64("product", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update cart")
		return
	}
	utils.RespondWithData(w, http.StatusOK, line)
}

// DELETE /cart/:id?variant=
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := utils.ParseID(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	key := models.LineKey{ID: id, Variant: r.URL.Query().Get("variant")}
	err := h.repo.Remove(r.Context(), utils.GetUserIDFromRequest(r), key)
	if errors.Is(err, ErrLineNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Item is not in the cart")
		return
	}
	if err != nil {
		h.log.Error("remove cart line", zap.Int64("product", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to remove item")
		return
	}
	utils.RespondWithData(w, http.StatusOK, map[string]string{"status": "removed"})
}

// DELETE /cart
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := h.repo.Clear(r.Context(), utils.GetUserIDFromRequest(r)); err != nil {
		h.log.Error("clear cart", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to clear cart")
		return
	}
	utils.RespondWithData(w, http.StatusOK, map[string]string{"status": "cleared"})
}
