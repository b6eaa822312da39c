package routes

import (
	"carsucart/admin"
	"carsucart/cart"
	"carsucart/middleware"
	"carsucart/notify"
	"carsucart/orders"
	"carsucart/pay"
	"carsucart/products"
	"carsucart/ratelim"
	"carsucart/reviews"

	"github.com/julienschmidt/httprouter"
)

// Deps is everything the routes hand requests to.
type Deps struct {
	Auth        *middleware.Auth
	RateLimiter *ratelim.RateLimiter
	Products    *products.Handler
	Cart        *cart.Handler
	Coupons     cart.CouponRepository
	Orders      *orders.Handler
	Payments    *pay.Handler
	Reviews     *reviews.Handler
	Admin       *admin.Handler
	Hub         *notify.Hub
}

func RoutesWrapper(router *httprouter.Router, d Deps) {
	AddHealthRoutes(router)
	AddProductRoutes(router, d)
	AddCartRoutes(router, d)
	AddOrderRoutes(router, d)
	AddPayRoutes(router, d)
	AddReviewsRoutes(router, d)
	AddAdminRoutes(router, d)
	AddNotifyRoutes(router, d)
}

// New returns a router with every API route registered.
func New(d Deps) *httprouter.Router {
	router := httprouter.New()
	RoutesWrapper(router, d)
	return router
}
