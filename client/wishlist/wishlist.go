// Package wishlist keeps the buyer's favorited products and persists them
// through a Repository after every change.
package wishlist

import (
	"context"
	"fmt"
	"sync"

	"carsucart/models"

	"go.uber.org/zap"
)

type Store struct {
	mu    sync.Mutex
	items []models.WishlistItem
	index map[int64]int

	// saveMu orders writes to the repository; mu is never held across I/O.
	saveMu sync.Mutex
	repo   Repository
	log    *zap.Logger
}

// Open loads the stored wishlist from repo.
func Open(ctx context.Context, repo Repository, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	items, err := repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load wishlist: %w", err)
	}
	s := &Store{repo: repo, log: log}
	s.reset(dedupe(items))
	return s, nil
}

func dedupe(items []models.WishlistItem) []models.WishlistItem {
	seen := make(map[int64]bool, len(items))
	out := make([]models.WishlistItem, 0, len(items))
	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}
	return out
}

func (s *Store) reset(items []models.WishlistItem) {
	s.items = items
	s.index = make(map[int64]int, len(items))
	for i, it := range items {
		s.index[it.ID] = i
	}
}

func (s *Store) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a copy in the order the items were added.
func (s *Store) Items() []models.WishlistItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.WishlistItem(nil), s.items...)
}

// Add is a no-op when the product is already on the list.
func (s *Store) Add(ctx context.Context, item models.WishlistItem) error {
	_, err := s.mutate(ctx, func() bool {
		if _, ok := s.index[item.ID]; ok {
			return false
		}
		s.items = append(s.items, item)
		s.index[item.ID] = len(s.items) - 1
		return true
	})
	return err
}

// Remove is a no-op when the product is not on the list.
func (s *Store) Remove(ctx context.Context, id int64) error {
	_, err := s.mutate(ctx, func() bool { return s.drop(id) })
	return err
}

// Toggle adds item if absent, removes it otherwise, and reports whether it
// is on the list afterwards.
func (s *Store) Toggle(ctx context.Context, item models.WishlistItem) (bool, error) {
	var added bool
	_, err := s.mutate(ctx, func() bool {
		if s.drop(item.ID) {
			added = false
			return true
		}
		s.items = append(s.items, item)
		s.index[item.ID] = len(s.items) - 1
		added = true
		return true
	})
	if err != nil {
		return !added, err
	}
	return added, nil
}

func (s *Store) drop(id int64) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	s.reset(s.items)
	return true
}

// mutate applies change under the lock and saves the result. A failed
// save restores the previous list.
func (s *Store) mutate(ctx context.Context, change func() bool) (bool, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	prev := append([]models.WishlistItem(nil), s.items...)
	if !change() {
		s.mu.Unlock()
		return false, nil
	}
	snapshot := append([]models.WishlistItem(nil), s.items...)
	s.mu.Unlock()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.mu.Lock()
		s.reset(prev)
		s.mu.Unlock()
		s.log.Warn("wishlist save failed, change reverted", zap.Error(err))
		return false, fmt.Errorf("save wishlist: %w", err)
	}
	return true, nil
}
