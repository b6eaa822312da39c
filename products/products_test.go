package products_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"carsucart/globals"
	"carsucart/memstore"
	"carsucart/models"
	"carsucart/products"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCache struct {
	mu          sync.Mutex
	vals        map[string][]byte
	invalidated int
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok
}

func (c *memCache) Set(_ context.Context, key string, val []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[key] = val
	return nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals = map[string][]byte{}
	c.invalidated++
	return nil
}

func as(r *http.Request, userID string, roles ...string) *http.Request {
	ctx := context.WithValue(r.Context(), globals.UserIDKey, userID)
	return r.WithContext(context.WithValue(ctx, globals.RoleKey, roles))
}

type listBody struct {
	Success bool `json:"success"`
	Data    struct {
		Data        []models.Product `json:"data"`
		CurrentPage int              `json:"current_page"`
		LastPage    int              `json:"last_page"`
		Total       int64            `json:"total"`
	} `json:"data"`
}

func seed(t *testing.T, repo products.Repository, ps ...models.Product) []models.Product {
	t.Helper()
	out := make([]models.Product, 0, len(ps))
	for _, p := range ps {
		created, err := repo.Create(context.Background(), p)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func TestListProductsHidesInactiveAndPaginates(t *testing.T) {
	store := memstore.New()
	repo := store.Products()
	seed(t, repo,
		models.Product{Name: "Lanyard", Price: 50, Category: "merch", Active: true},
		models.Product{Name: "Hoodie", Price: 700, Category: "merch", Active: true},
		models.Product{Name: "Old tote", Price: 90, Category: "merch", Active: false},
	)
	h := products.NewHandler(repo, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.ListProducts(rec, httptest.NewRequest(http.MethodGet, "/products?per_page=1&sort=price_asc", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body listBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.EqualValues(t, 2, body.Data.Total)
	assert.Equal(t, 2, body.Data.LastPage)
	require.Len(t, body.Data.Data, 1)
	assert.Equal(t, "Lanyard", body.Data.Data[0].Name)
}

func TestListProductsUsesCache(t *testing.T) {
	store := memstore.New()
	repo := store.Products()
	seed(t, repo, models.Product{Name: "Mug", Price: 120, Category: "merch", Active: true})
	cache := &memCache{vals: map[string][]byte{}}
	h := products.NewHandler(repo, cache, zap.NewNop())

	first := httptest.NewRecorder()
	h.ListProducts(first, httptest.NewRequest(http.MethodGet, "/products", nil), nil)
	assert.Empty(t, first.Header().Get("X-Cache"))

	second := httptest.NewRecorder()
	h.ListProducts(second, httptest.NewRequest(http.MethodGet, "/products", nil), nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	require.NoError(t, h.SetActive(context.Background(), 1, false))
	assert.Equal(t, 1, cache.invalidated)
}

func TestGetProduct(t *testing.T) {
	store := memstore.New()
	repo := store.Products()
	ps := seed(t, repo,
		models.Product{Name: "Cap", Price: 250, Category: "merch", Active: true, SellerID: "s1"},
		models.Product{Name: "Draft", Price: 10, Category: "merch", Active: false, SellerID: "s1"},
	)
	h := products.NewHandler(repo, nil, zap.NewNop())

	tests := []struct {
		name string
		id   string
		req  func(*http.Request) *http.Request
		want int
	}{
		{"active", "1", nil, http.StatusOK},
		{"bad id", "abc", nil, http.StatusBadRequest},
		{"missing", "99", nil, http.StatusNotFound},
		{"inactive to public", "2", nil, http.StatusNotFound},
		{"inactive to owner", "2", func(r *http.Request) *http.Request { return as(r, "s1", globals.RoleSeller) }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/products/"+tt.id, nil)
			if tt.req != nil {
				r = tt.req(r)
			}
			rec := httptest.NewRecorder()
			h.GetProduct(rec, r, httprouter.Params{{Key: "id", Value: tt.id}})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "Cap", ps[0].Name)
}

func TestCreateAndUpdateProductOwnership(t *testing.T) {
	store := memstore.New()
	repo := store.Products()
	h := products.NewHandler(repo, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	body := `{"name":"Tumbler","price":350,"category":"merch","stock":5}`
	h.CreateProduct(rec, as(httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body)), "s1", globals.RoleSeller), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	got, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SellerID)
	assert.True(t, got.Active)

	update := `{"name":"Tumbler XL","price":400,"category":"merch","stock":5}`
	ps := httprouter.Params{{Key: "id", Value: "1"}}

	rec = httptest.NewRecorder()
	h.UpdateProduct(rec, as(httptest.NewRequest(http.MethodPut, "/products/1", strings.NewReader(update)), "s2", globals.RoleSeller), ps)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.UpdateProduct(rec, as(httptest.NewRequest(http.MethodPut, "/products/1", strings.NewReader(update)), "root", globals.RoleAdmin), ps)
	assert.Equal(t, http.StatusOK, rec.Code)

	got, _ = repo.Get(context.Background(), 1)
	assert.Equal(t, "Tumbler XL", got.Name)
	assert.Equal(t, "s1", got.SellerID)
}

func TestCreateProductValidation(t *testing.T) {
	h := products.NewHandler(memstore.New().Products(), nil, zap.NewNop())
	for _, body := range []string{
		`{`,
		`{"name":"","price":1,"category":"x"}`,
		`{"name":"a","price":0,"category":"x"}`,
		`{"name":"a","price":1,"category":"x","stock":-1}`,
		`{"name":"a","price":1}`,
	} {
		rec := httptest.NewRecorder()
		h.CreateProduct(rec, as(httptest.NewRequest(http.MethodPost, "/products", strings.NewReader(body)), "s1", globals.RoleSeller), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
