package cart

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"carsucart/db"
	"carsucart/utils"

	"github.com/julienschmidt/httprouter"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrCouponNotFound = errors.New("coupon not found")

type Coupon struct {
	Code      string    `bson:"code" json:"code"`
	Discount  float64   `bson:"discount" json:"discount"` // % value e.g. 10 means 10%
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	Active    bool      `bson:"active" json:"active"`
}

type CouponRequest struct {
	Code string  `json:"code"`
	Cart float64 `json:"cart"` // cart subtotal
}

type CouponResponse struct {
	Valid    bool    `json:"valid"`
	Discount float64 `json:"discount"` // absolute amount, not %
	Message  string  `json:"message"`
}

type CouponRepository interface {
	FindCoupon(ctx context.Context, code string) (Coupon, error)
}

type MongoCoupons struct {
	db *db.DB
}

func NewMongoCoupons(d *db.DB) *MongoCoupons {
	return &MongoCoupons{db: d}
}

func (m *MongoCoupons) FindCoupon(ctx context.Context, code string) (Coupon, error) {
	var c Coupon
	err := m.db.CouponCollection.FindOne(ctx, bson.M{"code": code}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return c, ErrCouponNotFound
	}
	return c, err
}

// NormalizeCode lower-cases and trims a coupon code.
func NormalizeCode(code string) string {
	return strings.TrimSpace(strings.ToLower(code))
}

// Apply checks the coupon at now and returns the absolute discount for
// subtotal, rounded to cents. An empty message means the coupon is usable.
func (c Coupon) Apply(subtotal decimal.Decimal, now time.Time) (decimal.Decimal, string) {
	if !c.Active {
		return decimal.Zero, "Coupon inactive"
	}
	if now.After(c.ExpiresAt) {
		return decimal.Zero, "Coupon expired"
	}
	if !subtotal.IsPositive() {
		return decimal.Zero, ""
	}
	pct := decimal.NewFromFloat(c.Discount)
	return subtotal.Mul(pct).Div(decimal.NewFromInt(100)).Round(2), ""
}

// POST /cart/coupon
func ValidateCouponHandler(coupons CouponRepository) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req CouponRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, "Invalid request")
			return
		}

		code := NormalizeCode(req.Code)
		if code == "" {
			utils.RespondWithData(w, http.StatusOK, CouponResponse{Valid: false, Message: "No coupon provided"})
			return
		}

		coupon, err := coupons.FindCoupon(r.Context(), code)
		if err != nil {
			utils.RespondWithData(w, http.StatusOK, CouponResponse{Valid: false, Message: "Coupon not found"})
			return
		}

		discount, msg := coupon.Apply(decimal.NewFromFloat(req.Cart), time.Now())
		if msg != "" {
			utils.RespondWithData(w, http.StatusOK, CouponResponse{Valid: false, Message: msg})
			return
		}
		utils.RespondWithData(w, http.StatusOK, CouponResponse{
			Valid:    true,
			Discount: discount.InexactFloat64(),
			Message:  "Coupon applied successfully",
		})
	}
}
