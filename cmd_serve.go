package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carsucart/admin"
	"carsucart/cart"
	"carsucart/config"
	"carsucart/db"
	"carsucart/logging"
	"carsucart/memstore"
	"carsucart/middleware"
	"carsucart/notify"
	"carsucart/orders"
	"carsucart/pay"
	"carsucart/products"
	"carsucart/ratelim"
	"carsucart/rdx"
	"carsucart/reviews"
	"carsucart/routes"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var memoryMode bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the marketplace API",
	Long: `Start the HTTP API. Mongo backs every collection unless --memory
is given. Redis is optional: when REDIS_ADDR is set it caches product
listings and fans order events out to every instance.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&memoryMode, "memory", false, "keep all data in process memory")
}

// stores is the persistence the handlers are built on.
type stores struct {
	products products.Repository
	cart     cart.Repository
	coupons  cart.CouponRepository
	orders   orders.Repository
	payments pay.Repository
	reviews  reviews.Repository
	close    func(context.Context) error
}

func memoryStores() stores {
	s := memstore.New()
	return stores{
		products: s.Products(),
		cart:     s.Cart(),
		coupons:  s.Coupons(),
		orders:   s.Orders(),
		payments: s.Payments(),
		reviews:  s.Reviews(),
		close:    func(context.Context) error { return nil },
	}
}

func mongoStores(ctx context.Context, cfg config.Config) (stores, error) {
	d, err := db.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return stores{}, err
	}
	if err := d.EnsureIndexes(ctx); err != nil {
		_ = d.Close(context.Background())
		return stores{}, err
	}
	return stores{
		products: products.NewMongoRepository(d),
		cart:     cart.NewMongoRepository(d),
		coupons:  cart.NewMongoCoupons(d),
		orders:   orders.NewMongoRepository(d),
		payments: pay.NewMongoRepository(d),
		reviews:  reviews.NewMongoRepository(d),
		close:    d.Close,
	}, nil
}

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// Hijack keeps websocket upgrades working behind the logger.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// loggingMiddleware logs each request method, path, status and duration.
func loggingMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("took", time.Since(start)),
		)
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, foundEnv := config.Load()
	log, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	if !foundEnv {
		log.Info("no .env file found; using process environment")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st stores
	if memoryMode {
		log.Warn("running with in-memory storage; data is lost on exit")
		st = memoryStores()
	} else {
		if st, err = mongoStores(ctx, cfg); err != nil {
			return err
		}
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.close(closeCtx); err != nil {
			log.Warn("close storage", zap.Error(err))
		}
	}()

	hub := notify.NewHub(log)
	limiter := ratelim.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	var (
		cache     products.Cache
		publisher orders.Publisher = hub
		bridge    *rdx.Bridge
		redisConn *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisConn, err = rdx.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer redisConn.Close()
		cache = rdx.NewCache(redisConn, "products", cfg.ProductCacheTTL)
		bridge = rdx.NewBridge(redisConn, log)
		publisher = bridge
	}

	catalog := products.NewHandler(st.products, cache, log)
	router := routes.New(routes.Deps{
		Auth:        middleware.NewAuth(cfg.JWTSecret),
		RateLimiter: limiter,
		Products:    catalog,
		Cart:        cart.NewHandler(st.cart, st.products, log),
		Coupons:     st.coupons,
		Orders:      orders.NewHandler(st.orders, st.cart, st.products, st.coupons, publisher, log),
		Payments:    pay.NewHandler(st.payments, st.orders, log),
		Reviews:     reviews.NewHandler(st.reviews, st.orders, st.products, log),
		Admin:       admin.NewHandler(st.products, catalog, st.orders, log),
		Hub:         hub,
	})

	// CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		ExposedHeaders:   []string{"Idempotent-Replayed", "X-Cache"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              cfg.Port,
		Handler:           loggingMiddleware(log, securityHeaders(corsHandler)),
		ReadTimeout:       7 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}
	server.RegisterOnShutdown(func() {
		log.Info("shutting down order notification hub")
		hub.Stop()
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		limiter.Janitor()
		return nil
	})
	if bridge != nil {
		g.Go(func() error { return bridge.Subscribe(gctx, hub.Deliver) })
	}
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", cfg.Port), zap.Bool("memory", memoryMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		defer hub.Stop()
		log.Info("shutdown signal received; shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		limiter.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	log.Info("server stopped cleanly")
	return nil
}
