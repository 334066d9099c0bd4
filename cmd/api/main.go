package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/iamgideonidoko/beacon/internal/config"
	"github.com/iamgideonidoko/beacon/internal/handlers"
	"github.com/iamgideonidoko/beacon/internal/middleware"
	"github.com/iamgideonidoko/beacon/internal/repository"
	"github.com/iamgideonidoko/beacon/internal/services"
	"github.com/iamgideonidoko/beacon/pkg/cache"
	"github.com/iamgideonidoko/beacon/pkg/clock"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/validator"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Monitoring.LogLevel))
	logger.Info("Starting beacon collector", map[string]any{
		"version":     version,
		"environment": cfg.API.Environment,
	})

	var repo *repository.Repository
	err = repository.WithRetry(context.Background(), repository.DefaultRetryConfig, func() error {
		var retryErr error
		repo, retryErr = repository.NewRepository(
			cfg.Database.URL,
			cfg.Database.MaxConns,
			cfg.Database.MaxIdleConns,
		)
		return retryErr
	})
	if err != nil {
		logger.Error("Failed to connect to database", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.HealthCheck(context.Background()); err != nil {
		logger.Error("Database health check failed", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("Connected to PostgreSQL")

	var redisCache *cache.Cache
	err = repository.WithRetry(context.Background(), repository.DefaultRetryConfig, func() error {
		var retryErr error
		redisCache, retryErr = cache.NewCache(
			cfg.Redis.URL,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.MetricsTTL,
		)
		return retryErr
	})
	if err != nil {
		logger.Error("Failed to connect to Redis", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer redisCache.Close()
	logger.Info("Connected to Redis")

	schemas, err := validator.CompileSchemas()
	if err != nil {
		logger.Error("Failed to compile schemas", map[string]any{"error": err.Error()})
		os.Exit(1)
	}

	ingestService := services.NewIngestService(repo, redisCache, &cfg.Ingest, clock.Real())
	handler := handlers.NewHandler(ingestService, schemas, handlers.Options{
		MaxBatchSize: cfg.Ingest.MaxBatchSize,
		MaxBodyBytes: cfg.API.BodyLimit,
		AnonymizeIP:  cfg.Security.AnonymizeIP,
		Dependencies: map[string]handlers.Pinger{
			"database": repo.HealthCheck,
			"redis":    redisCache.Ping,
		},
	})

	app := fiber.New(fiber.Config{
		ServerHeader:            "beacon",
		AppName:                 "beacon collector v" + version,
		BodyLimit:               cfg.API.BodyLimit,
		EnableTrustedProxyCheck: len(cfg.Security.TrustedProxies) > 0,
		TrustedProxies:          cfg.Security.TrustedProxies,
		ProxyHeader:             proxyHeader(cfg.Security.TrustedProxies),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			logger.Error("Request error", map[string]any{
				"error": err.Error(),
				"path":  c.Path(),
				"code":  code,
			})
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS(cfg.Security.CORSOrigins))

	rateLimiter := middleware.NewRateLimiter(redisCache, &cfg.RateLimit)
	handler.Register(app, rateLimiter.LimitByIP(), rateLimiter.LimitByDevice())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(ctx); err != nil {
			logger.Warn("Shutdown incomplete", map[string]any{"error": err.Error()})
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	logger.Info("Collector listening", map[string]any{"address": addr})

	if err := app.Listen(addr); err != nil {
		logger.Error("Server error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

func proxyHeader(trusted []string) string {
	if len(trusted) == 0 {
		return ""
	}
	return fiber.HeaderXForwardedFor
}
