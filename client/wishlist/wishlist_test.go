package wishlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"carsucart/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingRepo struct {
	MemoryRepository
	fail bool
}

func (f *failingRepo) Save(ctx context.Context, items []models.WishlistItem) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.MemoryRepository.Save(ctx, items)
}

func item(id int64) models.WishlistItem {
	return models.WishlistItem{ID: id, Name: "p", Price: float64(id) * 10, Category: "c", Rating: 4.5, Reviews: 2}
}

func TestToggleRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, NewMemoryRepository(), nil)
	require.NoError(t, err)

	on, err := s.Toggle(ctx, item(1))
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, s.Contains(1))

	on, err = s.Toggle(ctx, item(1))
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, s.Contains(1))
	assert.Zero(t, s.Count())
}

func TestAddAndRemoveAreIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	s, err := Open(ctx, repo, nil)
	require.NoError(t, err)

	require.NoError(t, s.Add(ctx, item(1)))
	require.NoError(t, s.Add(ctx, item(2)))
	require.NoError(t, s.Add(ctx, item(1)))
	assert.Equal(t, 2, s.Count())

	require.NoError(t, s.Remove(ctx, 1))
	require.NoError(t, s.Remove(ctx, 1))
	assert.Equal(t, []models.WishlistItem{item(2)}, s.Items())

	stored, _ := repo.Load(ctx)
	assert.Equal(t, []models.WishlistItem{item(2)}, stored)
}

func TestFailedSaveReverts(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{}
	s, err := Open(ctx, repo, nil)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, item(1)))

	repo.fail = true
	on, err := s.Toggle(ctx, item(2))
	assert.Error(t, err)
	assert.False(t, on)
	assert.False(t, s.Contains(2))

	on, err = s.Toggle(ctx, item(1))
	assert.Error(t, err)
	assert.True(t, on)
	assert.True(t, s.Contains(1))
	assert.Equal(t, 1, s.Count())
}

func TestFileRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "wishlist.json")

	s, err := Open(ctx, NewFileRepository(path), nil)
	require.NoError(t, err)
	assert.Zero(t, s.Count(), "missing file is an empty wishlist")

	for _, id := range []int64{3, 1, 2} {
		require.NoError(t, s.Add(ctx, item(id)))
	}
	require.NoError(t, s.Remove(ctx, 1))

	reopened, err := Open(ctx, NewFileRepository(path), nil)
	require.NoError(t, err)
	if diff := cmp.Diff(s.Items(), reopened.Items()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileRepositoryConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wishlist.json")

	var wg sync.WaitGroup
	for i := int64(1); i <= 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			// separate repositories stand in for separate processes
			assert.NoError(t, NewFileRepository(path).Save(ctx, []models.WishlistItem{item(id)}))
		}(i)
	}
	wg.Wait()

	items, err := NewFileRepository(path).Load(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1, "the file holds exactly one writer's complete list")

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileRepositoryCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wishlist.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := Open(context.Background(), NewFileRepository(path), nil)
	assert.Error(t, err)
}

func TestOpenDropsDuplicates(t *testing.T) {
	s, err := Open(context.Background(), NewMemoryRepository(item(1), item(2), item(1)), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Count())
}
