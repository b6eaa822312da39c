// Package cartstore holds the buyer's cart in memory. With a Syncer
// attached every mutation is applied locally first, sent to the API, and
// undone if the API refuses it.
package cartstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"carsucart/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrLineNotFound = errors.New("cart line not found")

// Syncer mirrors cart mutations to the server. *remote.Client satisfies it.
type Syncer interface {
	Cart(ctx context.Context) ([]models.CartItem, error)
	AddCartItem(ctx context.Context, item models.CartItem) (models.CartItem, error)
	UpdateCartItem(ctx context.Context, id int64, variant string, qty int) error
	RemoveCartItem(ctx context.Context, id int64, variant string) error
	ClearCart(ctx context.Context) error
}

type Option func(*Store)

func WithSyncer(s Syncer) Option {
	return func(st *Store) { st.sync = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(st *Store) { st.log = l }
}

// Store is safe for concurrent use. Lines keep insertion order.
type Store struct {
	mu    sync.Mutex
	lines []models.CartItem
	index map[models.LineKey]int

	// versions[k] is the seq of the last mutation that touched line k; a
	// rollback only lands if nothing newer touched the line.
	versions map[models.LineKey]uint64
	seq      uint64

	// inflight counts unanswered sync calls per line. A line whose calls
	// overlapped is not reconciled from their responses, since the server
	// may have applied them in another order.
	inflight   map[models.LineKey]int
	overlapped map[models.LineKey]bool
	// clears counts ClearCart calls started; clearing those unanswered.
	clears   uint64
	clearing int

	sync Syncer
	log  *zap.Logger
}

func New(opts ...Option) *Store {
	s := &Store{
		index:    map[models.LineKey]int{},
		versions:   map[models.LineKey]uint64{},
		inflight:   map[models.LineKey]int{},
		overlapped: map[models.LineKey]bool{},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Items returns a copy of the lines in insertion order.
func (s *Store) Items() []models.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CartItem(nil), s.lines...)
}

// Len is the number of distinct lines.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines)
}

// TotalItems is the sum of line quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// TotalPrice is the sum of price times quantity, rounded to cents. It is
// for display; the server total is authoritative at checkout.
func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total.Round(2)
}

// AddToCart inserts item or increments the quantity of the line with the
// same (id, variant). A quantity below one counts as one.
func (s *Store) AddToCart(ctx context.Context, item models.CartItem) error {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	key := item.Key()

	s.mu.Lock()
	prev, existed := s.line(key)
	if existed {
		s.lines[s.index[key]].Quantity += item.Quantity
	} else {
		s.insert(len(s.lines), item)
	}
	ver := s.touch(key)
	s.enter(key)
	clears := s.clears
	s.mu.Unlock()

	if s.sync == nil {
		return nil
	}
	merged, err := s.sync.AddCartItem(ctx, item)
	if err != nil {
		s.rollback(key, ver, prev, existed, -1)
		return fmt.Errorf("add to cart: %w", err)
	}
	s.reconcile(key, ver, clears, merged)
	return nil
}

// UpdateQuantity sets a line's quantity, clamped to at least one. It never
// removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, id int64, variant string, qty int) error {
	if qty < 1 {
		qty = 1
	}
	key := models.LineKey{ID: id, Variant: variant}

	s.mu.Lock()
	prev, ok := s.line(key)
	if !ok {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	s.lines[s.index[key]].Quantity = qty
	ver := s.touch(key)
	s.enter(key)
	s.mu.Unlock()

	if s.sync == nil {
		return nil
	}
	if err := s.sync.UpdateCartItem(ctx, id, variant, qty); err != nil {
		s.rollback(key, ver, prev, true, -1)
		return fmt.Errorf("update cart line: %w", err)
	}
	s.settle(key)
	return nil
}

func (s *Store) RemoveFromCart(ctx context.Context, id int64, variant string) error {
	key := models.LineKey{ID: id, Variant: variant}

	s.mu.Lock()
	prev, ok := s.line(key)
	if !ok {
		s.mu.Unlock()
		return ErrLineNotFound
	}
	pos := s.index[key]
	s.remove(pos)
	ver := s.touch(key)
	s.enter(key)
	s.mu.Unlock()

	if s.sync == nil {
		return nil
	}
	if err := s.sync.RemoveCartItem(ctx, id, variant); err != nil {
		s.rollback(key, ver, prev, true, pos)
		return fmt.Errorf("remove cart line: %w", err)
	}
	s.settle(key)
	return nil
}

// ClearCart empties the cart, typically after checkout.
func (s *Store) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	prev := s.lines
	s.lines = nil
	s.index = map[models.LineKey]int{}
	s.seq++
	ver := s.seq
	for _, l := range prev {
		s.versions[l.Key()] = ver
	}
	if s.sync != nil {
		s.clears++
		s.clearing++
	}
	s.mu.Unlock()

	if s.sync == nil {
		return nil
	}
	err := s.sync.ClearCart(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearing--
	if err != nil {
		if s.seq == ver {
			s.replace(prev)
		} else {
			s.log.Debug("skip stale cart clear rollback")
		}
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

// Load replaces the local lines with the server cart.
func (s *Store) Load(ctx context.Context) error {
	if s.sync == nil {
		return nil
	}
	items, err := s.sync.Cart(ctx)
	if err != nil {
		return fmt.Errorf("load cart: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	for k := range s.index {
		s.versions[k] = s.seq
	}
	merged := make([]models.CartItem, 0, len(items))
	at := make(map[models.LineKey]int, len(items))
	for _, it := range items {
		if it.Quantity < 1 {
			it.Quantity = 1
		}
		if i, dup := at[it.Key()]; dup {
			merged[i].Quantity += it.Quantity
			continue
		}
		at[it.Key()] = len(merged)
		merged = append(merged, it)
		s.versions[it.Key()] = s.seq
	}
	s.replace(merged)
	return nil
}

// reconcile copies the server's view of a line over the local one when
// this response is the last word on it: no newer local mutation, no
// overlapping sync call and no clear since the call started.
func (s *Store) reconcile(key models.LineKey, ver, clears uint64, server models.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alone := s.leave(key)
	if !alone || s.versions[key] != ver || s.clears != clears || s.clearing > 0 {
		return
	}
	i, ok := s.index[key]
	if !ok || server.Key() != key || server.Quantity < 1 {
		return
	}
	l := &s.lines[i]
	l.Quantity = server.Quantity
	if server.Price > 0 {
		l.Price = server.Price
	}
	if server.Name != "" {
		l.Name = server.Name
	}
	if server.Image != "" {
		l.Image = server.Image
	}
}

// settle marks a successful sync call on key as answered.
func (s *Store) settle(key models.LineKey) {
	s.mu.Lock()
	s.leave(key)
	s.mu.Unlock()
}

// enter records a sync call on key. Must hold s.mu.
func (s *Store) enter(key models.LineKey) {
	if s.sync == nil {
		return
	}
	s.inflight[key]++
	if s.inflight[key] > 1 {
		s.overlapped[key] = true
	}
}

// leave records an answered sync call and reports whether it had the line
// to itself the whole time. Must hold s.mu.
func (s *Store) leave(key models.LineKey) bool {
	s.inflight[key]--
	if s.inflight[key] > 0 {
		return false
	}
	alone := !s.overlapped[key]
	delete(s.inflight, key)
	delete(s.overlapped, key)
	return alone
}

// rollback restores prev (or drops the line when it did not exist) unless
// a newer mutation touched key since version ver. pos >= 0 reinserts a
// removed line at its old position.
func (s *Store) rollback(key models.LineKey, ver uint64, prev models.CartItem, existed bool, pos int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leave(key)
	if s.versions[key] != ver {
		s.log.Debug("skip stale cart rollback", zap.Int64("product", key.ID), zap.String("variant", key.Variant))
		return
	}
	s.log.Warn("cart sync failed, reverting line", zap.Int64("product", key.ID), zap.String("variant", key.Variant))

	i, present := s.index[key]
	switch {
	case !existed && present:
		s.remove(i)
	case existed && present:
		s.lines[i] = prev
	case existed && !present:
		if pos < 0 || pos > len(s.lines) {
			pos = len(s.lines)
		}
		s.insert(pos, prev)
	}
}

func (s *Store) line(key models.LineKey) (models.CartItem, bool) {
	i, ok := s.index[key]
	if !ok {
		return models.CartItem{}, false
	}
	return s.lines[i], true
}

func (s *Store) touch(key models.LineKey) uint64 {
	s.seq++
	s.versions[key] = s.seq
	return s.seq
}

func (s *Store) insert(pos int, item models.CartItem) {
	s.lines = append(s.lines, models.CartItem{})
	copy(s.lines[pos+1:], s.lines[pos:])
	s.lines[pos] = item
	s.reindex(pos)
}

func (s *Store) remove(pos int) {
	delete(s.index, s.lines[pos].Key())
	s.lines = append(s.lines[:pos], s.lines[pos+1:]...)
	s.reindex(pos)
}

func (s *Store) replace(lines []models.CartItem) {
	s.lines = lines
	s.index = make(map[models.LineKey]int, len(lines))
	s.reindex(0)
}

func (s *Store) reindex(from int) {
	for i := from; i < len(s.lines); i++ {
		s.index[s.lines[i].Key()] = i
	}
}
