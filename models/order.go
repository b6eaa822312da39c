package models

import "time"

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// Valid reports whether s is one of the five known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type OrderItem struct {
	ProductID int64   `json:"product_id" bson:"productId"`
	SellerID  string  `json:"seller_id,omitempty" bson:"sellerId"`
	Name      string  `json:"name" bson:"name"`
	Image     string  `json:"image,omitempty" bson:"image"`
	Variant   string  `json:"variant,omitempty" bson:"variant"`
	Price     float64 `json:"price" bson:"price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
	Subtotal  float64 `json:"subtotal" bson:"subtotal"`
}

type Order struct {
	ID               int64       `json:"id" bson:"_id"`
	UserID           string      `json:"user_id" bson:"userId"`
	Items            []OrderItem `json:"items" bson:"items"`
	Subtotal         float64     `json:"subtotal" bson:"subtotal"`
	Discount         float64     `json:"discount" bson:"discount"`
	CouponCode       string      `json:"coupon_code,omitempty" bson:"couponCode,omitempty"`
	TotalAmount      float64     `json:"total_amount" bson:"totalAmount"`
	Status           OrderStatus `json:"status" bson:"status"`
	PaymentStatus    string      `json:"payment_status" bson:"paymentStatus"`
	PaymentMethod    string      `json:"payment_method,omitempty" bson:"paymentMethod"`
	ShippingAddress  string      `json:"shipping_address" bson:"shippingAddress"`
	PickupCode       string      `json:"pickup_code,omitempty" bson:"pickupCode"`
	OrderDate        time.Time   `json:"order_date" bson:"orderDate"`
	UpdatedAt        time.Time   `json:"updated_at" bson:"updatedAt"`
	NotificationRead bool        `json:"notification_read" bson:"notificationRead"`
}

// HasProduct reports whether any line of the order is for productID.
func (o Order) HasProduct(productID int64) bool {
	for _, it := range o.Items {
		if it.ProductID == productID {
			return true
		}
	}
	return false
}

// OrderEvent is pushed to subscribers when an order changes status.
type OrderEvent struct {
	OrderID   int64       `json:"order_id"`
	UserID    string      `json:"user_id"`
	Status    OrderStatus `json:"status"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Payment states recorded on an order.
const (
	PaymentUnpaid  = "unpaid"
	PaymentPending = "pending"
	PaymentPaid    = "paid"
)

// CheckoutRequest is the body of POST /orders.
type CheckoutRequest struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
	CouponCode      string `json:"coupon_code,omitempty"`
}
