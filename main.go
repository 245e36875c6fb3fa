package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/allclear/allclear/backend/go-services/handlers"
	"github.com/allclear/allclear/backend/go-services/internal/auth"
	"github.com/allclear/allclear/backend/go-services/internal/authz"
	"github.com/allclear/allclear/backend/go-services/internal/config"
	"github.com/allclear/allclear/backend/go-services/internal/database"
	"github.com/allclear/allclear/backend/go-services/internal/kv"
	"github.com/allclear/allclear/backend/go-services/internal/people"
	"github.com/allclear/allclear/backend/go-services/internal/sessions"
	"github.com/allclear/allclear/backend/go-services/internal/sms"
	"github.com/allclear/allclear/backend/go-services/pkg/logger"
	"github.com/allclear/allclear/backend/go-services/pkg/metrics"
	"github.com/allclear/allclear/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v replica=%v redis=%v", cfg.MongoDB.URI != "", cfg.MongoDB.ReplicaURI != "", cfg.Redis.Host != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// sessions and tokens live in Redis; there is nothing to serve without it
	if cfg.Redis.Host == "" {
		logger.Fatalf("REDIS_HOST is required")
	}
	redisClient, err := kv.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatalf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
	}
	defer func() { _ = redisClient.Close() }()
	store := kv.NewRedisStore(redisClient)

	sessionStore := sessions.NewStore(store, sessions.WithDurations(cfg.Session.ShortDuration, cfg.Session.LongDuration))
	gate := authz.NewGate(sessionStore)
	sender, err := sms.New(cfg.Auth.SMSSender)
	if err != nil {
		logger.Fatalf("invalid sms configuration: %v", err)
	}
	challenge, err := auth.NewChallenge(store, sender, cfg.Auth)
	if err != nil {
		logger.Fatalf("invalid auth configuration: %v", err)
	}

	var stores *database.Stores
	if cfg.MongoDB.URI != "" {
		stores = openStores(ctx, cfg.MongoDB)
		if stores != nil {
			defer func() { _ = stores.Close(context.Background()) }()
		}
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors(cfg.Session.Header))
	if stores != nil {
		r.Use(middleware.StoreRouting(stores.Router))
	}
	r.Use(middleware.SessionMiddleware(gate, middleware.SessionOptions{
		Header:       cfg.Session.Header,
		Public:       []string{"/health", "/ready", "/metrics", handlers.PathAuth, handlers.PathConfirm},
		RegisterPath: handlers.PathRegister,
	}))
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready only when every configured store answers
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["redis"] = redisClient.Ping(c.Request.Context()).Err() == nil
		ready = ready && deps["redis"]
		if cfg.MongoDB.URI != "" {
			deps["mongo"] = stores != nil && stores.Router.Ping(c.Request.Context()) == nil
			ready = ready && deps["mongo"]
		}

		status, label := http.StatusOK, "ready"
		if !ready {
			status, label = http.StatusServiceUnavailable, "not_ready"
		}
		c.JSON(status, gin.H{"status": label, "deps": deps, "uptime": time.Since(startTime).String()})
	})

	if stores != nil {
		repo := people.NewMongoRepository(stores.Router)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warnf("failed to ensure people indexes: %v", err)
		}
		handlers.NewAuthHandler(challenge, people.NewService(repo), sessionStore, gate).Register(r)
	} else {
		logger.Warnf("auth handlers not registered because MongoDB is unavailable")
	}

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting auth service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

// openStores connects to MongoDB with backoff to tolerate startup races.
func openStores(ctx context.Context, cfg config.MongoDBConfig) *database.Stores {
	const maxAttempts = 5
	backoff := time.Second
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		stores, err := database.Open(ctx, cfg)
		if err == nil {
			return stores
		}
		logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, err)
		if attempt < maxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff *= 2
		}
	}
	return nil
}

// cors is a permissive policy for development clients.
func cors(sessionHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+sessionHeader)
		h.Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
