package products

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"carsucart/globals"
	"carsucart/models"
	"carsucart/utils"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// Cache holds rendered storefront listings. It is optional.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte) error
	Invalidate(ctx context.Context) error
}

type Handler struct {
	repo  Repository
	cache Cache
	log   *zap.Logger
}

func NewHandler(repo Repository, cache Cache, log *zap.Logger) *Handler {
	return &Handler{repo: repo, cache: cache, log: log}
}

// GET /products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	q := Query{QueryOptions: utils.ParseQueryOptions(r, 12, 60)}
	key := fmt.Sprintf("list:%d:%d:%s:%s:%s", q.Page, q.PerPage, q.Category, q.Sort, strings.ToLower(q.Search))

	if h.cache != nil {
		if body, ok := h.cache.Get(ctx, key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			w.Write(body)
			return
		}
	}

	items, total, err := h.repo.List(ctx, q)
	if err != nil {
		h.log.Error("list products", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve products")
		return
	}
	if items == nil {
		items = []models.Product{}
	}

	env := utils.Envelope{Success: true, Data: utils.Paginated[models.Product]{
		Data: items,
		Page: models.NewPage(q.Page, q.PerPage, total),
	}}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(env); err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, buf.Bytes()); err != nil {
			h.log.Warn("cache product page", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

// GET /products/:id
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id, ok := utils.ParseID(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return
	}

	p, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) || (err == nil && !p.Active && !canManage(r, p)) {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return
	}
	if err != nil {
		h.log.Error("get product", zap.Int64("id", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return
	}
	utils.RespondWithData(w, http.StatusOK, p)
}

// GET /categories
func (h *Handler) GetCategories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	cats, err := h.repo.Categories(r.Context())
	if err != nil {
		h.log.Error("list categories", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve categories")
		return
	}
	if cats == nil {
		cats = []models.Category{}
	}
	utils.RespondWithData(w, http.StatusOK, cats)
}

type productInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Image       string   `json:"image"`
	Category    string   `json:"category"`
	Variants    []string `json:"variants"`
	Stock       int      `json:"stock"`
}

func (in productInput) validate() string {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return "Name is required"
	case in.Price <= 0:
		return "Price must be positive"
	case in.Stock < 0:
		return "Stock cannot be negative"
	case strings.TrimSpace(in.Category) == "":
		return "Category is required"
	}
	return ""
}

func (in productInput) apply(p *models.Product) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Price = in.Price
	p.Image = in.Image
	p.Category = strings.TrimSpace(in.Category)
	p.Variants = in.Variants
	p.Stock = in.Stock
}

// POST /products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var in productInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if msg := in.validate(); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}

	p := models.Product{SellerID: utils.GetUserIDFromRequest(r), Active: true}
	in.apply(&p)

	created, err := h.repo.Create(r.Context(), p)
	if err != nil {
		h.log.Error("create product", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create product")
		return
	}
	h.invalidate(r.Context())
	utils.RespondWithData(w, http.StatusCreated, created)
}

// PUT /products/:id
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, ok := h.loadOwned(w, r, ps)
	if !ok {
		return
	}

	var in productInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if msg := in.validate(); msg != "" {
		utils.RespondWithError(w, http.StatusBadRequest, msg)
		return
	}
	in.apply(&p)

	if err := h.repo.Update(r.Context(), p); err != nil {
		h.log.Error("update product", zap.Int64("id", p.ID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to update product")
		return
	}
	h.invalidate(r.Context())
	utils.RespondWithData(w, http.StatusOK, p)
}

// DELETE /products/:id
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	p, ok := h.loadOwned(w, r, ps)
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), p.ID); err != nil {
		h.log.Error("delete product", zap.Int64("id", p.ID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to delete product")
		return
	}
	h.invalidate(r.Context())
	utils.RespondWithData(w, http.StatusOK, map[string]int64{"id": p.ID})
}

// SetActive flips a product's storefront visibility.
func (h *Handler) SetActive(ctx context.Context, id int64, active bool) error {
	if err := h.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	h.invalidate(ctx)
	return nil
}

func (h *Handler) loadOwned(w http.ResponseWriter, r *http.Request, ps httprouter.Params) (models.Product, bool) {
	id, ok := utils.ParseID(ps.ByName("id"))
	if !ok {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid product id")
		return models.Product{}, false
	}
	p, err := h.repo.Get(r.Context(), id)
	if errors.Is(err, ErrNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "Product not found")
		return p, false
	}
	if err != nil {
		h.log.Error("get product", zap.Int64("id", id), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve product")
		return p, false
	}
	if !canManage(r, p) {
		utils.RespondWithError(w, http.StatusForbidden, "Forbidden")
		return p, false
	}
	return p, true
}

func canManage(r *http.Request, p models.Product) bool {
	if utils.HasRole(r, globals.RoleAdmin) {
		return true
	}
	return p.SellerID != "" && p.SellerID == utils.GetUserIDFromRequest(r)
}

func (h *Handler) invalidate(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx); err != nil {
		h.log.Warn("invalidate product cache", zap.Error(err))
	}
}
