package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-ops-dashboard/internal/ai"
	"go-ops-dashboard/internal/auth"
	"go-ops-dashboard/internal/cache"
	"go-ops-dashboard/internal/config"
	"go-ops-dashboard/internal/database"
	"go-ops-dashboard/internal/handlers"
	"go-ops-dashboard/internal/logger"
	"go-ops-dashboard/internal/money"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid config: ", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		log.Fatal("Failed to build logger: ", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database
	auth.Init(cfg.JWT.Secret, cfg.JWT.Expiration)
	if cfg.JWT.Secret == "" {
		zl.Warn("jwt.secret is empty, using the development secret")
	}
	database.BaseCurrency = money.Currency(cfg.Currency.Base)

	if err := database.Connect(cfg.Database, logger.NewGormLogger(zl, logger.GormLevel(cfg.Log.Level)), zl); err != nil {
		zl.Fatal("Database connection failed", zap.Error(err))
	}
	defer func() { _ = database.Close() }()

	if err := database.Migrate(); err != nil {
		zl.Fatal("Migration failed", zap.Error(err))
	}
	if cfg.Auth.AdminUsername != "" {
		created, err := database.SeedAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		if err != nil {
			zl.Fatal("Failed to seed admin user", zap.Error(err))
		}
		if created {
			zl.Info("Seeded first admin user", zap.String("username", cfg.Auth.AdminUsername))
		}
	}

	// 3. Report cache: Redis when configured, process memory otherwise
	var reportCache cache.Cache = cache.NewMemory()
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zl.Warn("Redis unavailable, caching in memory", zap.Error(err))
		} else {
			defer func() { _ = rc.Close() }()
			reportCache = rc
			zl.Info("Report cache on Redis", zap.String("addr", cfg.Redis.Addr))
		}
	}

	// 4. Routes
	router := handlers.NewRouter(handlers.Options{
		Logger:            zl,
		Cache:             reportCache,
		CacheTTL:          cfg.Cache.TTL,
		Assistant:         ai.New(cfg.AI.APIKey, cfg.AI.Model, zl),
		AllowRegistration: cfg.Auth.AllowRegistration,
		CORSAllowOrigins:  cfg.HTTP.CORSAllowOrigins,
		UploadsDir:        cfg.Uploads.Dir,
		BaseURL:           cfg.App.BaseURL,
		WebDir:            cfg.Web.Dir,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Serve until interrupted
	go func() {
		zl.Info("Server starting", zap.String("url", cfg.App.BaseURL), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Forced shutdown", zap.Error(err))
	}
}
