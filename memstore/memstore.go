// Package memstore keeps every API collection in process memory. It backs
// `serve --memory` for local storefront work and the handler tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"carsucart/cart"
	"carsucart/models"
	"carsucart/orders"
	"carsucart/pay"
	"carsucart/products"
	"carsucart/reviews"
	"carsucart/utils"
)

type Store struct {
	mu sync.Mutex

	products   map[int64]models.Product
	categories []models.Category
	carts      map[string][]models.CartItem
	coupons    map[string]cart.Coupon
	orders     map[int64]models.Order
	payments   map[string]models.Payment
	keys       map[string]string
	reviews    []models.Review

	productSeq int64
	orderSeq   int64
}

func New() *Store {
	return &Store{
		products: map[int64]models.Product{},
		carts:    map[string][]models.CartItem{},
		coupons:  map[string]cart.Coupon{},
		orders:   map[int64]models.Order{},
		payments: map[string]models.Payment{},
		keys:     map[string]string{},
	}
}

// Products returns the store as a products.Repository.
func (s *Store) Products() products.Repository { return productRepo{s} }

// Cart returns the store as a cart.Repository.
func (s *Store) Cart() cart.Repository { return cartRepo{s} }

// Orders returns the store as an orders.Repository.
func (s *Store) Orders() orders.Repository { return orderRepo{s} }

// Payments returns the store as a pay.Repository.
func (s *Store) Payments() pay.Repository { return paymentRepo{s} }

// Reviews returns the store as a reviews.Repository.
func (s *Store) Reviews() reviews.Repository { return reviewRepo{s} }

// Coupons returns the store as a cart.CouponRepository.
func (s *Store) Coupons() cart.CouponRepository { return couponRepo{s} }

// AddCategory seeds a category.
func (s *Store) AddCategory(c models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, c)
}

// AddCoupon seeds a coupon; the code is normalized.
func (s *Store) AddCoupon(c cart.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = cart.NormalizeCode(c.Code)
	s.coupons[c.Code] = c
}

func page[T any](all []T, q utils.QueryOptions) []T {
	start := int(q.Skip())
	if start >= len(all) {
		return []T{}
	}
	end := start + q.PerPage
	if end > len(all) {
		end = len(all)
	}
	return append([]T(nil), all[start:end]...)
}

// --- products ---

type productRepo struct{ s *Store }

func (r productRepo) List(_ context.Context, q products.Query) ([]models.Product, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	needle := strings.ToLower(q.Search)
	var all []models.Product
	for _, p := range r.s.products {
		if !q.IncludeInactive && !p.Active {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), needle) {
			continue
		}
		all = append(all, p)
	}

	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		switch q.Sort {
		case "price_asc":
			if a.Price != b.Price {
				return a.Price < b.Price
			}
		case "price_desc":
			if a.Price != b.Price {
				return a.Price > b.Price
			}
		case "rating":
			if a.Rating != b.Rating {
				return a.Rating > b.Rating
			}
		default:
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	return page(all, q.QueryOptions), int64(len(all)), nil
}

func (r productRepo) Get(_ context.Context, id int64) (models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return p, products.ErrNotFound
	}
	return p, nil
}

func (r productRepo) Create(_ context.Context, p models.Product) (models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.productSeq++
	p.ID = r.s.productSeq
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.products[p.ID] = p
	return p, nil
}

func (r productRepo) Update(_ context.Context, p models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[p.ID]; !ok {
		return products.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	r.s.products[p.ID] = p
	return nil
}

func (r productRepo) SetActive(_ context.Context, id int64, active bool) error {
	return r.mutate(id, func(p *models.Product) error {
		p.Active = active
		return nil
	})
}

func (r productRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.products[id]; !ok {
		return products.ErrNotFound
	}
	delete(r.s.products, id)
	return nil
}

func (r productRepo) Categories(context.Context) ([]models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.Category(nil), r.s.categories...), nil
}

func (r productRepo) ReserveStock(_ context.Context, id int64, qty int) error {
	err := r.mutate(id, func(p *models.Product) error {
		if !p.Active || p.Stock < qty {
			return products.ErrOutOfStock
		}
		p.Stock -= qty
		return nil
	})
	if err == products.ErrNotFound {
		return products.ErrOutOfStock
	}
	return err
}

func (r productRepo) ReleaseStock(_ context.Context, id int64, qty int) error {
	err := r.mutate(id, func(p *models.Product) error {
		p.Stock += qty
		return nil
	})
	if err == products.ErrNotFound {
		return nil
	}
	return err
}

func (r productRepo) AddRating(_ context.Context, id int64, rating int) error {
	return r.mutate(id, func(p *models.Product) error {
		p.Rating = (p.Rating*float64(p.Reviews) + float64(rating)) / float64(p.Reviews+1)
		p.Reviews++
		return nil
	})
}

func (r productRepo) Count(context.Context) (int64, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var active int64
	for _, p := range r.s.products {
		if p.Active {
			active++
		}
	}
	return int64(len(r.s.products)), active, nil
}

func (r productRepo) mutate(id int64, fn func(*models.Product) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return products.ErrNotFound
	}
	if err := fn(&p); err != nil {
		return err
	}
	r.s.products[id] = p
	return nil
}

// --- cart ---

type cartRepo struct{ s *Store }

func (r cartRepo) Items(_ context.Context, userID string) ([]models.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]models.CartItem(nil), r.s.carts[userID]...), nil
}

func (r cartRepo) Add(_ context.Context, item models.CartItem) (models.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lines := r.s.carts[item.UserID]
	for i := range lines {
		if lines[i].Key() == item.Key() {
			lines[i].Quantity += item.Quantity
			lines[i].Name, lines[i].Price, lines[i].Image = item.Name, item.Price, item.Image
			return lines[i], nil
		}
	}
	item.AddedAt = time.Now()
	r.s.carts[item.UserID] = append(lines, item)
	return item, nil
}

func (r cartRepo) SetQuantity(_ context.Context, userID string, key models.LineKey, qty int) (models.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lines := r.s.carts[userID]
	for i := range lines {
		if lines[i].Key() == key {
			lines[i].Quantity = qty
			return lines[i], nil
		}
	}
	return models.CartItem{}, cart.ErrLineNotFound
}

func (r cartRepo) Remove(_ context.Context, userID string, key models.LineKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lines := r.s.carts[userID]
	for i := range lines {
		if lines[i].Key() == key {
			r.s.carts[userID] = append(lines[:i:i], lines[i+1:]...)
			return nil
		}
	}
	return cart.ErrLineNotFound
}

func (r cartRepo) Clear(_ context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.carts, userID)
	return nil
}

type couponRepo struct{ s *Store }

func (r couponRepo) FindCoupon(_ context.Context, code string) (cart.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[code]
	if !ok {
		return c, cart.ErrCouponNotFound
	}
	return c, nil
}

// --- orders ---

type orderRepo struct{ s *Store }

func (r orderRepo) Create(_ context.Context, o models.Order) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.orderSeq++
	o.ID = r.s.orderSeq
	r.s.orders[o.ID] = o
	return o, nil
}

func (r orderRepo) Get(_ context.Context, id int64) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return o, orders.ErrNotFound
	}
	return o, nil
}

func (r orderRepo) filter(keep func(models.Order) bool, q utils.QueryOptions) ([]models.Order, int64) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var all []models.Order
	for _, o := range r.s.orders {
		if keep(o) {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return page(all, q), int64(len(all))
}

func (r orderRepo) ListByUser(_ context.Context, userID string, q utils.QueryOptions) ([]models.Order, int64, error) {
	items, total := r.filter(func(o models.Order) bool { return o.UserID == userID }, q)
	return items, total, nil
}

func (r orderRepo) List(_ context.Context, q utils.QueryOptions) ([]models.Order, int64, error) {
	items, total := r.filter(func(o models.Order) bool {
		return q.Status == "" || string(o.Status) == q.Status
	}, q)
	return items, total, nil
}

func (r orderRepo) UpdateStatus(_ context.Context, id int64, from, to models.OrderStatus) (models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return o, orders.ErrNotFound
	}
	if o.Status != from {
		return o, orders.ErrStatusConflict
	}
	o.Status = to
	o.NotificationRead = false
	o.UpdatedAt = time.Now()
	r.s.orders[id] = o
	return o, nil
}

func (r orderRepo) MarkNotificationRead(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return orders.ErrNotFound
	}
	o.NotificationRead = true
	r.s.orders[id] = o
	return nil
}

func (r orderRepo) ClaimPayment(_ context.Context, id int64, status, method string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return orders.ErrNotFound
	}
	if o.PaymentStatus == models.PaymentPending || o.PaymentStatus == models.PaymentPaid {
		return orders.ErrPaymentTaken
	}
	o.PaymentStatus, o.PaymentMethod = status, method
	r.s.orders[id] = o
	return nil
}

func (r orderRepo) ReleasePayment(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil
	}
	o.PaymentStatus, o.PaymentMethod = models.PaymentUnpaid, ""
	r.s.orders[id] = o
	return nil
}

func (r orderRepo) HasDelivered(_ context.Context, userID string, productID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.orders {
		if o.UserID == userID && o.Status == models.StatusDelivered && o.HasProduct(productID) {
			return true, nil
		}
	}
	return false, nil
}

func (r orderRepo) Stats(context.Context) (map[models.OrderStatus]int64, float64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := map[models.OrderStatus]int64{}
	var revenue float64
	for _, o := range r.s.orders {
		counts[o.Status]++
		if o.Status == models.StatusDelivered {
			revenue += o.TotalAmount
		}
	}
	return counts, revenue, nil
}

// --- payments ---

type paymentRepo struct{ s *Store }

func (r paymentRepo) FindByKey(_ context.Context, key string) (models.Payment, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.keys[key]
	if !ok {
		return models.Payment{}, false, nil
	}
	p, ok := r.s.payments[id]
	return p, ok, nil
}

func (r paymentRepo) Create(_ context.Context, key string, p models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if key != "" {
		if _, taken := r.s.keys[key]; taken {
			return pay.ErrDuplicateKey
		}
		r.s.keys[key] = p.ID
	}
	r.s.payments[p.ID] = p
	return nil
}

// --- reviews ---

type reviewRepo struct{ s *Store }

func (r reviewRepo) Create(_ context.Context, rv models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.reviews {
		if existing.UserID == rv.UserID && existing.ProductID == rv.ProductID {
			return reviews.ErrDuplicate
		}
	}
	r.s.reviews = append(r.s.reviews, rv)
	return nil
}

func (r reviewRepo) ListByProduct(_ context.Context, productID int64, limit int) ([]models.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Review
	for i := len(r.s.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.reviews[i].ProductID == productID {
			out = append(out, r.s.reviews[i])
		}
	}
	return out, nil
}
