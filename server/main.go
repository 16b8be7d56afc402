package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"seatly/api/routes"
	"seatly/internal/bookings"
	"seatly/internal/holds"
	"seatly/internal/notifier"
	"seatly/internal/payments"
	"seatly/internal/shared/clock"
	"seatly/internal/shared/config"
	"seatly/internal/shared/database"
	"seatly/internal/shared/validation"
	"seatly/pkg/cache"
	"seatly/pkg/logger"
	"seatly/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	// Load config
	cfg := config.Load()

	// Set Gin mode (debug/release)
	gin.SetMode(cfg.GinMode)

	// Custom binding validators (slotdate, slottime) used by request models
	if err := validation.Register(); err != nil {
		appLogger.Error("Failed to register request validators", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize DB
	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect:", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Snapshot cache shares the Redis instance behind the seat locks
	if err := cache.Init(cache.Config{
		Address:  cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}); err != nil {
		appLogger.Error("Failed to initialize snapshot cache", slog.Any("error", err))
		appLogger.Info("Continuing without snapshot caching")
	} else {
		defer cache.Close()
	}

	// Preload the seat-set lock scripts (critical for admission concurrency)
	if db.Redis != nil {
		seatLock := holds.NewRedisSeatLock(db.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := seatLock.PreloadScripts(ctx); err != nil {
			appLogger.Error("Failed to preload Redis Lua scripts", slog.Any("error", err))
			// Continue without failing - scripts will be loaded on first use
		} else {
			appLogger.Info("Redis Lua scripts preloaded for seat-set locking")
		}
		cancel()
	}

	systemClock := clock.NewSystem()
	instanceID := uuid.NewString()

	// Change notifier: in-process hub for SSE subscribers, plus a Kafka
	// outbox/relay pair when running more than one engine instance.
	hub := notifier.NewHub(appLogger)
	router := routes.NewRouter(cfg, db, hub, systemClock, payments.NewSimulatedGateway())
	index := router.BuildIndex()

	fanout := notifier.Fanout{hub, index}

	var producer *notifier.KafkaDeltaProducer
	if cfg.Kafka.Enabled {
		producerConfig := notifier.DefaultKafkaProducerConfig()
		producerConfig.Brokers = cfg.Kafka.Brokers
		producerConfig.DeltaTopic = cfg.Kafka.DeltaTopic
		producerConfig.InstanceID = instanceID

		producer, err = notifier.NewKafkaDeltaProducer(producerConfig)
		if err != nil {
			appLogger.Error("Failed to initialize delta producer", slog.Any("error", err))
			appLogger.Info("Continuing without Kafka - deltas stay instance-local")
		} else {
			fanout = append(fanout, producer)
			defer producer.Close()
			appLogger.Info("Kafka delta outbox initialized",
				slog.String("topic", cfg.Kafka.DeltaTopic),
			)
		}
	}
	router.SetPublisher(fanout)

	var relay *notifier.Relay
	if cfg.Kafka.Enabled && producer != nil {
		relayConfig := notifier.DefaultRelayConfig()
		relayConfig.Brokers = cfg.Kafka.Brokers
		relayConfig.DeltaTopic = cfg.Kafka.DeltaTopic
		relayConfig.GroupID = cfg.Kafka.GroupID
		relayConfig.InstanceID = instanceID

		relay, err = notifier.NewRelay(relayConfig, notifier.Fanout{hub, index}, appLogger)
		if err != nil {
			appLogger.Error("Failed to initialize delta relay", slog.Any("error", err))
		} else {
			relay.Start(context.Background())
			defer func() {
				if err := relay.Stop(); err != nil {
					appLogger.Error("Error stopping delta relay", slog.Any("error", err))
				}
			}()
			appLogger.Info("Delta relay consuming", slog.String("group", cfg.Kafka.GroupID))
		}
	}

	// Initialize Rate Limiter
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiterConfig := &ratelimit.Config{
			Enabled:          cfg.RateLimit.Enabled,
			WindowDuration:   cfg.RateLimit.WindowDuration,
			DefaultRequests:  cfg.RateLimit.DefaultRequests,
			PublicRequests:   cfg.RateLimit.PublicRequests,
			HoldRequests:     cfg.RateLimit.HoldRequests,
			CheckoutRequests: cfg.RateLimit.CheckoutRequests,
			HealthRequests:   cfg.RateLimit.HealthRequests,
			WhitelistedIPs:   cfg.RateLimit.WhitelistedIPs,
		}

		rateLimiter = ratelimit.NewRateLimiter(db.GetRedis(), rateLimiterConfig)
		appLogger.Info("Rate limiter initialized",
			slog.Bool("enabled", cfg.RateLimit.Enabled),
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	// Setup routes so the hold and ledger services exist for recovery
	engine := setupEngine(cfg, router, rateLimiter)

	// Startup reconciliation: settle checkouts a previous process abandoned
	bookingRepo, holdRepo := router.RecoveryDeps()
	// A draft is stale once its hold cannot possibly be alive anymore
	recovery := bookings.NewRecovery(bookingRepo, holdRepo, fanout, systemClock, cfg.Hold.MaxLifetime+cfg.Payment.ChargeTimeout)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := recovery.Run(ctx); err != nil {
			appLogger.Error("Startup recovery failed", slog.Any("error", err))
			os.Exit(1)
		}
		cancel()
	}

	// Background sweeper for lapsed holds
	sweeper := holds.NewSweeper(router.HoldService(), cfg.Hold.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	// HTTP server
	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("api_status", fmt.Sprintf("http://localhost:%s%s/status", cfg.Port, cfg.GetAPIBasePath())),
			slog.String("version", cfg.APIVersion),
			slog.Bool("redis_cache", db.Redis != nil),
			slog.Bool("kafka_relay", relay != nil),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupEngine(cfg *config.Config, appRouter *routes.Router, rateLimiter *ratelimit.RateLimiter) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	// Built-in middleware: logs requests + recovers from panics
	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	// CORS configuration
	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true // allow every origin dynamically
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-RateLimit-*"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Global rate limiting middleware (applied to all routes)
	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
		appLogger.Info("Rate limiting middleware applied to all routes")
	}

	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
