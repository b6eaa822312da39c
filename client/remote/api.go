package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"carsucart/models"

	"github.com/google/uuid"
)

// ListOptions selects one page of a listing. Zero values are left to the
// server defaults.
type ListOptions struct {
	Page     int
	PerPage  int
	Search   string
	Category string
	Sort     string
	Status   string
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(o.PerPage))
	}
	if o.Search != "" {
		v.Set("q", o.Search)
	}
	if o.Category != "" {
		v.Set("category", o.Category)
	}
	if o.Sort != "" {
		v.Set("sort", o.Sort)
	}
	if o.Status != "" {
		v.Set("status", o.Status)
	}
	return v
}

func idPath(prefix string, id int64, suffix string) string {
	return prefix + strconv.FormatInt(id, 10) + suffix
}

func (c *Client) Products(ctx context.Context, opts ListOptions) (List[models.Product], error) {
	return getList[models.Product](ctx, c, "/products", opts.values())
}

func (c *Client) Product(ctx context.Context, id int64) (models.Product, error) {
	return send[models.Product](ctx, c, call{method: http.MethodGet, path: idPath("/products/", id, "")})
}

func (c *Client) Categories(ctx context.Context) ([]models.Category, error) {
	l, err := getList[models.Category](ctx, c, "/categories", nil)
	return l.Items, err
}

func (c *Client) Cart(ctx context.Context) ([]models.CartItem, error) {
	l, err := getList[models.CartItem](ctx, c, "/cart", nil)
	return l.Items, err
}

type cartLine struct {
	ID       int64  `json:"id,omitempty"`
	Variant  string `json:"variant,omitempty"`
	Quantity int    `json:"quantity"`
}

// AddCartItem adds item.Quantity units of the line and returns the
// server's merged line.
func (c *Client) AddCartItem(ctx context.Context, item models.CartItem) (models.CartItem, error) {
	return send[models.CartItem](ctx, c, call{
		method: http.MethodPost,
		path:   "/cart",
		body:   cartLine{ID: item.ID, Variant: item.Variant, Quantity: item.Quantity},
	})
}

func (c *Client) UpdateCartItem(ctx context.Context, id int64, variant string, qty int) error {
	_, err := c.do(ctx, call{
		method: http.MethodPut,
		path:   idPath("/cart/", id, ""),
		body:   cartLine{Variant: variant, Quantity: qty},
	})
	return err
}

func (c *Client) RemoveCartItem(ctx context.Context, id int64, variant string) error {
	var q url.Values
	if variant != "" {
		q = url.Values{"variant": {variant}}
	}
	_, err := c.do(ctx, call{method: http.MethodDelete, path: idPath("/cart/", id, ""), query: q})
	return err
}

func (c *Client) ClearCart(ctx context.Context) error {
	_, err := c.do(ctx, call{method: http.MethodDelete, path: "/cart"})
	return err
}

// CouponResult is the server's verdict on a coupon for a cart subtotal.
type CouponResult struct {
	Valid    bool    `json:"valid"`
	Discount float64 `json:"discount"`
	Message  string  `json:"message"`
}

func (c *Client) ValidateCoupon(ctx context.Context, code string, subtotal float64) (CouponResult, error) {
	return send[CouponResult](ctx, c, call{
		method: http.MethodPost,
		path:   "/cart/coupon",
		body:   map[string]any{"code": code, "cart": subtotal},
	})
}

func (c *Client) PlaceOrder(ctx context.Context, req models.CheckoutRequest) (models.Order, error) {
	return send[models.Order](ctx, c, call{method: http.MethodPost, path: "/orders", body: req})
}

func (c *Client) Orders(ctx context.Context, opts ListOptions) (List[models.Order], error) {
	return getList[models.Order](ctx, c, "/orders", opts.values())
}

func (c *Client) Order(ctx context.Context, id int64) (models.Order, error) {
	return send[models.Order](ctx, c, call{method: http.MethodGet, path: idPath("/orders/", id, "")})
}

func (c *Client) UpdateOrderStatus(ctx context.Context, id int64, status models.OrderStatus) (models.Order, error) {
	return send[models.Order](ctx, c, call{
		method: http.MethodPut,
		path:   idPath("/orders/", id, "/status"),
		body:   map[string]string{"status": string(status)},
	})
}

func (c *Client) MarkOrderNotificationRead(ctx context.Context, id int64) error {
	_, err := c.do(ctx, call{method: http.MethodPut, path: idPath("/orders/", id, "/notification-read")})
	return err
}

// PaymentRequest is the body of POST /payments.
type PaymentRequest struct {
	OrderID   int64   `json:"order_id"`
	Method    string  `json:"method"`
	Amount    float64 `json:"amount"`
	Reference string  `json:"reference,omitempty"`
}

// CreatePayment records a payment. Retries must reuse key so the server
// replays the first result; an empty key gets a fresh one.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest, key string) (models.Payment, error) {
	if key == "" {
		key = uuid.NewString()
	}
	return send[models.Payment](ctx, c, call{
		method: http.MethodPost,
		path:   "/payments",
		body:   req,
		header: http.Header{"Idempotency-Key": {key}},
	})
}

func (c *Client) PostReview(ctx context.Context, productID int64, rating int, comment string) (models.Review, error) {
	return send[models.Review](ctx, c, call{
		method: http.MethodPost,
		path:   "/reviews",
		body:   models.Review{ProductID: productID, Rating: rating, Comment: comment},
	})
}

func (c *Client) Reviews(ctx context.Context, productID int64) ([]models.Review, error) {
	l, err := getList[models.Review](ctx, c, "/reviews", url.Values{"product_id": {strconv.FormatInt(productID, 10)}})
	return l.Items, err
}

func (c *Client) AdminOrders(ctx context.Context, opts ListOptions) (List[models.Order], error) {
	return getList[models.Order](ctx, c, "/admin/orders", opts.values())
}

func (c *Client) AdminProducts(ctx context.Context, opts ListOptions) (List[models.Product], error) {
	return getList[models.Product](ctx, c, "/admin/products", opts.values())
}

func (c *Client) SetProductActive(ctx context.Context, id int64, active bool) error {
	_, err := c.do(ctx, call{
		method: http.MethodPut,
		path:   idPath("/admin/products/", id, "/active"),
		body:   map[string]bool{"active": active},
	})
	return err
}

func (c *Client) Dashboard(ctx context.Context) (models.Dashboard, error) {
	return send[models.Dashboard](ctx, c, call{method: http.MethodGet, path: "/admin/dashboard"})
}

// AllOrders walks every page of the caller's orders.
func (c *Client) AllOrders(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	for page := 1; ; page++ {
		l, err := c.Orders(ctx, ListOptions{Page: page, PerPage: 50})
		if err != nil {
			return nil, fmt.Errorf("orders page %d: %w", page, err)
		}
		out = append(out, l.Items...)
		if l.Shape != ShapePaginated || page >= l.Page.LastPage || len(l.Items) == 0 {
			break
		}
	}
	if out == nil {
		out = []models.Order{}
	}
	return out, nil
}
