package routes

import (
	"fmt"
	"net/http"

	"carsucart/cart"
	"carsucart/globals"
	"carsucart/middleware"
	"carsucart/notify"

	"github.com/julienschmidt/httprouter"
)

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func AddHealthRoutes(router *httprouter.Router) {
	router.GET("/health", Index)
}

// user authenticates the caller and then rate limits by user id.
func user(d Deps) middleware.Middleware {
	return middleware.Chain(d.Auth.Authenticate, d.RateLimiter.Limit)
}

func roles(d Deps, rs ...string) middleware.Middleware {
	return middleware.Chain(d.Auth.Roles(rs...), d.RateLimiter.Limit)
}

func AddProductRoutes(router *httprouter.Router, d Deps) {
	router.GET("/products", d.Products.ListProducts)
	router.GET("/products/:id", d.Auth.OptionalAuth(d.Products.GetProduct))
	router.GET("/categories", d.Products.GetCategories)

	manage := roles(d, globals.RoleSeller, globals.RoleAdmin)
	router.POST("/products", manage(d.Products.CreateProduct))
	router.PUT("/products/:id", manage(d.Products.UpdateProduct))
	router.DELETE("/products/:id", manage(d.Products.DeleteProduct))
}

func AddCartRoutes(router *httprouter.Router, d Deps) {
	auth := user(d)
	router.GET("/cart", d.Auth.Authenticate(d.Cart.GetCart))
	router.POST("/cart", auth(d.Cart.AddToCart))
	router.PUT("/cart/:id", auth(d.Cart.UpdateCartItem))
	router.DELETE("/cart/:id", auth(d.Cart.RemoveCartItem))
	router.DELETE("/cart", auth(d.Cart.ClearCart))
	if d.Coupons != nil {
		router.POST("/cart/coupon", auth(cart.ValidateCouponHandler(d.Coupons)))
	}
}

func AddOrderRoutes(router *httprouter.Router, d Deps) {
	auth := user(d)
	router.POST("/orders", auth(d.Orders.PlaceOrder))
	router.GET("/orders", d.Auth.Authenticate(d.Orders.ListOrders))
	router.GET("/orders/:id", d.Auth.Authenticate(d.Orders.GetOrder))
	router.GET("/orders/:id/invoice", auth(d.Orders.Invoice))
	// the handler narrows buyers to cancelling their own pending orders
	router.PUT("/orders/:id/status", auth(d.Orders.UpdateStatus))
	router.PUT("/orders/:id/notification-read", auth(d.Orders.MarkNotificationRead))
}

func AddPayRoutes(router *httprouter.Router, d Deps) {
	router.POST("/payments", user(d)(d.Payments.CreatePayment))
}

func AddReviewsRoutes(router *httprouter.Router, d Deps) {
	router.GET("/reviews", d.Reviews.GetReviews)
	router.POST("/reviews", user(d)(d.Reviews.AddReview))
}

func AddAdminRoutes(router *httprouter.Router, d Deps) {
	admin := roles(d, globals.RoleAdmin)
	router.GET("/admin/dashboard", admin(d.Admin.Dashboard))
	router.GET("/admin/orders", admin(d.Orders.ListAllOrders))
	router.PUT("/admin/orders/:id/status", admin(d.Orders.UpdateStatus))
	router.GET("/admin/products", admin(d.Admin.ListProducts))
	router.PUT("/admin/products/:id/active", admin(d.Admin.SetProductActive))
}

func AddNotifyRoutes(router *httprouter.Router, d Deps) {
	if d.Hub == nil {
		return
	}
	router.GET("/ws/orders", d.Auth.Authenticate(notify.WebSocketHandler(d.Hub)))
}
