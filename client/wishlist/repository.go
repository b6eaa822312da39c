package wishlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"carsucart/models"

	"github.com/redis/go-redis/v9"
)

// Repository persists the whole wishlist. Save replaces what was stored.
type Repository interface {
	Load(ctx context.Context) ([]models.WishlistItem, error)
	Save(ctx context.Context, items []models.WishlistItem) error
}

type MemoryRepository struct {
	mu    sync.Mutex
	items []models.WishlistItem
}

func NewMemoryRepository(items ...models.WishlistItem) *MemoryRepository {
	return &MemoryRepository{items: items}
}

func (m *MemoryRepository) Load(context.Context) ([]models.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.WishlistItem(nil), m.items...), nil
}

func (m *MemoryRepository) Save(_ context.Context, items []models.WishlistItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append([]models.WishlistItem(nil), items...)
	return nil
}

// FileRepository keeps the wishlist as a JSON array on disk.
type FileRepository struct {
	path string
}

func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

func (f *FileRepository) Load(context.Context) ([]models.WishlistItem, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read wishlist: %w", err)
	}
	var items []models.WishlistItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode wishlist %s: %w", f.path, err)
	}
	return items, nil
}

func (f *FileRepository) Save(_ context.Context, items []models.WishlistItem) error {
	if items == nil {
		items = []models.WishlistItem{}
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wishlist: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create wishlist dir: %w", err)
	}

	// Write to a unique temp file in the same directory, then rename over
	// the target so concurrent writers never share a temp file.
	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return f.discard(tmpPath, fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return f.discard(tmpPath, fmt.Errorf("close temp file: %w", err))
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return f.discard(tmpPath, fmt.Errorf("chmod temp file: %w", err))
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return f.discard(tmpPath, fmt.Errorf("rename temp file: %w", err))
	}
	return nil
}

// discard removes a leftover temp file and folds any failure into err.
func (f *FileRepository) discard(tmpPath string, err error) error {
	if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return errors.Join(err, fmt.Errorf("remove temp file: %w", rmErr))
	}
	return err
}

// RedisRepository stores one user's wishlist under a single key so a
// signed-in buyer sees it on every device.
type RedisRepository struct {
	conn *redis.Client
	key  string
}

func NewRedisRepository(conn *redis.Client, userID string) *RedisRepository {
	return &RedisRepository{conn: conn, key: "wishlist:" + userID}
}

func (r *RedisRepository) Load(ctx context.Context) ([]models.WishlistItem, error) {
	raw, err := r.conn.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}
	var items []models.WishlistItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return items, nil
}

func (r *RedisRepository) Save(ctx context.Context, items []models.WishlistItem) error {
	if items == nil {
		items = []models.WishlistItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode wishlist: %w", err)
	}
	return r.conn.Set(ctx, r.key, raw, 0).Err()
}
