package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"carsucart/models"
	"carsucart/utils"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// PurchaseChecker answers whether a user received a product.
type PurchaseChecker interface {
	HasDelivered(ctx context.Context, userID string, productID int64) (bool, error)
}

// Ratings folds a new rating into the product's aggregate.
type Ratings interface {
	AddRating(ctx context.Context, id int64, rating int) error
}

type Handler struct {
	repo      Repository
	purchases PurchaseChecker
	ratings   Ratings
	log       *zap.Logger
}

func NewHandler(repo Repository, purchases PurchaseChecker, ratings Ratings, log *zap.Logger) *Handler {
	return &Handler{repo: repo, purchases: purchases, ratings: ratings, log: log}
}

// GET /reviews?product_id=
//
// Answers a bare JSON array; older storefront builds read it that way.
func (h *Handler) GetReviews(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		utils.RespondWithError(w, http.StatusBadRequest, "product_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	list, err := h.repo.ListByProduct(ctx, productID, limit)
	if err != nil {
		h.log.Error("list reviews", zap.Int64("product", productID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve reviews")
		return
	}
	if list == nil {
		list = []models.Review{}
	}
	utils.RespondWithJSON(w, http.StatusOK, list)
}

// POST /reviews
func (h *Handler) AddReview(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx := r.Context()
	userID := utils.GetUserIDFromRequest(r)

	var review models.Review
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid review data")
		return
	}
	review.Comment = strings.TrimSpace(review.Comment)
	if review.ProductID <= 0 || review.Rating < 1 || review.Rating > 5 || review.Comment == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid review data")
		return
	}

	bought, err := h.purchases.HasDelivered(ctx, userID, review.ProductID)
	if err != nil {
		h.log.Error("check purchase", zap.Int64("product", review.ProductID), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !bought {
		utils.RespondWithError(w, http.StatusForbidden, "You can only review products you have received")
		return
	}

	review.ID = uuid.NewString()
	review.UserID = userID
	review.CreatedAt = time.Now()

	err = h.repo.Create(ctx, review)
	if errors.Is(err, ErrDuplicate) {
		utils.RespondWithError(w, http.StatusConflict, "You have already reviewed this product")
		return
	}
	if err != nil {
		h.log.Error("insert review", zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to save review")
		return
	}

	if err := h.ratings.AddRating(ctx, review.ProductID, review.Rating); err != nil {
		h.log.Warn("update product rating", zap.Int64("product", review.ProductID), zap.Error(err))
	}
	utils.RespondWithData(w, http.StatusCreated, review)
}
