package models

import "time"

// CartItem is one cart line. Lines are unique by (ID, Variant).
type CartItem struct {
	UserID   string    `json:"-" bson:"userId"`
	ID       int64     `json:"id" bson:"productId"`
	Name     string    `json:"name" bson:"name"`
	Price    float64   `json:"price" bson:"price"` // unit price at the time it was added
	Image    string    `json:"image" bson:"image"`
	Variant  string    `json:"variant,omitempty" bson:"variant"`
	Quantity int       `json:"quantity" bson:"quantity"`
	AddedAt  time.Time `json:"added_at,omitempty" bson:"addedAt"`
}

// LineKey identifies a cart line.
type LineKey struct {
	ID      int64
	Variant string
}

func (c CartItem) Key() LineKey {
	return LineKey{ID: c.ID, Variant: c.Variant}
}

// WishlistItem is a favorited product. Unique by ID.
type WishlistItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image"`
	Category string  `json:"category"`
	Rating   float64 `json:"rating"`
	Reviews  int     `json:"reviews"`
}
