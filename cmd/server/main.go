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

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/cache"
	"github.com/segyhp/library-engine/internal/config"
	"github.com/segyhp/library-engine/internal/handler"
	"github.com/segyhp/library-engine/internal/logger"
	"github.com/segyhp/library-engine/internal/metrics"
	"github.com/segyhp/library-engine/internal/notification"
	"github.com/segyhp/library-engine/internal/repository"
	"github.com/segyhp/library-engine/internal/service"
)

func main() {
	// A missing .env is fine; the environment wins anyway.
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Logging.Level, cfg.LogFormat())
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	// Initialize database
	db, err := initDB(cfg)
	if err != nil {
		zl.Fatal("Failed to initialize database", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	defer db.Close()

	// Initialize Redis
	redisClient := initRedis(cfg)
	defer redisClient.Close()

	m, err := metrics.New(metrics.Options{})
	if err != nil {
		zl.Fatal("Failed to register metrics", zap.Error(err))
	}

	store := repository.NewPostgresStore(db)

	// Initialize service
	loanService := service.NewLoanService(store, cfg,
		service.WithStatsCache(cache.NewStatsCache(redisClient, cfg.Redis.StatsTTL)),
		service.WithNotifier(notification.NewPublisher(redisClient, cfg.Redis.NotifyChannel)),
		service.WithMetrics(m),
		service.WithLogger(zl),
	)

	// Setup routes
	router := handler.NewRouter(handler.Router{
		Loans:   handler.NewLoanHandler(loanService, zl),
		Health:  handler.NewHealthHandler(store, redisClient, cfg.GetHealthTimeout()),
		Logger:  zl,
		Metrics: m,
	})

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		zl.Info("Server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zl.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zl.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zl.Info("Server exited")
}

// initDB opens the pool with the configured driver. "postgres" is lib/pq and
// "pgx" is the pgx stdlib adapter; both speak to the same schema.
func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
