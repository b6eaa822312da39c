package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	LogLevel string
	Port     string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string

	JWTSecret   []byte
	CORSOrigins []string

	RateLimitRPS    float64
	RateLimitBurst  int
	ProductCacheTTL time.Duration
}

// Load reads .env when present, then the process environment.
// It reports whether a .env file was found.
func Load() (Config, bool) {
	found := godotenv.Load() == nil

	port := getEnv("PORT", ":8080")
	if port[0] != ':' {
		port = ":" + port
	}

	return Config{
		AppEnv:          getEnv("APP_ENV", "dev"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		Port:            port,
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:         getEnv("MONGO_DB", "carsucart"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:       []byte(getEnv("JWT_SECRET", "change-me")),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPS:    getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:  getEnvInt("RATE_LIMIT_BURST", 10),
		ProductCacheTTL: getEnvDuration("PRODUCT_CACHE_TTL", 30*time.Second),
	}, found
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
