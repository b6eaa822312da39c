package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "MONGO_DB", "RATE_LIMIT_RPS", "PRODUCT_CACHE_TTL", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, _ := Load()
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "carsucart", cfg.MongoDB)
	assert.Equal(t, 5.0, cfg.RateLimitRPS)
	assert.Equal(t, 30*time.Second, cfg.ProductCacheTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("PRODUCT_CACHE_TTL", "1m")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://carsucart.app")

	cfg, _ := Load()
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 3, cfg.RateLimitBurst)
	assert.Equal(t, time.Minute, cfg.ProductCacheTTL)
	assert.Equal(t, []string{"http://localhost:5173", "https://carsucart.app"}, cfg.CORSOrigins)
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "lots")
	cfg, _ := Load()
	assert.Equal(t, 10, cfg.RateLimitBurst)
}
