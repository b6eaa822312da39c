package models

import "time"

type Product struct {
	ID          int64     `json:"id" bson:"_id"`
	SellerID    string    `json:"seller_id" bson:"sellerId"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Price       float64   `json:"price" bson:"price"`
	Image       string    `json:"image" bson:"image"`
	Category    string    `json:"category" bson:"category"`
	Variants    []string  `json:"variants,omitempty" bson:"variants,omitempty"`
	Stock       int       `json:"stock" bson:"stock"`
	Rating      float64   `json:"rating" bson:"rating"`
	Reviews     int       `json:"reviews" bson:"reviews"`
	Active      bool      `json:"active" bson:"active"`
	CreatedAt   time.Time `json:"created_at" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updated_at" bson:"updatedAt"`
}

type Category struct {
	ID   int64  `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
	Slug string `json:"slug" bson:"slug"`
}

type Review struct {
	ID        string    `json:"id" bson:"_id"`
	ProductID int64     `json:"product_id" bson:"productId"`
	UserID    string    `json:"user_id" bson:"userId"`
	Rating    int       `json:"rating" bson:"rating"`
	Comment   string    `json:"comment" bson:"comment"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}

type Payment struct {
	ID        string    `json:"id" bson:"_id"`
	OrderID   int64     `json:"order_id" bson:"orderId"`
	UserID    string    `json:"user_id" bson:"userId"`
	Method    string    `json:"method" bson:"method"`
	Amount    float64   `json:"amount" bson:"amount"`
	Reference string    `json:"reference,omitempty" bson:"reference,omitempty"`
	Status    string    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"created_at" bson:"createdAt"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	Products       int64                 `json:"products"`
	ActiveProducts int64                 `json:"active_products"`
	Orders         int64                 `json:"orders"`
	OrdersByStatus map[OrderStatus]int64 `json:"orders_by_status"`
	Revenue        float64               `json:"revenue"`
}

// Page describes one page of a paginated listing.
type Page struct {
	CurrentPage int   `json:"current_page"`
	LastPage    int   `json:"last_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
}

// NewPage computes LastPage from total and perPage.
func NewPage(page, perPage int, total int64) Page {
	last := 1
	if perPage > 0 && total > 0 {
		last = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Page{CurrentPage: page, LastPage: last, PerPage: perPage, Total: total}
}
