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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/config"
	"github.com/segyhp/library-engine/internal/logger"
	"github.com/segyhp/library-engine/internal/metrics"
	"github.com/segyhp/library-engine/internal/notification"
	"github.com/segyhp/library-engine/internal/repository"
	"github.com/segyhp/library-engine/internal/scheduler"
	"github.com/segyhp/library-engine/internal/service"
)

func main() {
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

	zl.Info("Starting library scheduler...", zap.String("timezone", cfg.Scheduler.Timezone))

	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		zl.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	m, err := metrics.New(metrics.Options{})
	if err != nil {
		zl.Fatal("Failed to register metrics", zap.Error(err))
	}

	metricsServer := metrics.NewServer(":"+cfg.Scheduler.MetricsPort, prometheus.DefaultGatherer)
	go func() {
		zl.Info("Metrics listener starting", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("Metrics listener failed", zap.Error(err))
		}
	}()

	loanService := service.NewLoanService(repository.NewPostgresStore(db), cfg,
		service.WithNotifier(notification.NewPublisher(redisClient, cfg.Redis.NotifyChannel)),
		service.WithMetrics(m),
		service.WithLogger(zl),
	)

	// Initialize cron scheduler
	s, err := scheduler.New(cfg, loanService, zl)
	if err != nil {
		zl.Fatal("Error scheduling due reminder job", zap.Error(err), zap.String("cron", cfg.Scheduler.ReminderCron))
	}

	// Start the scheduler
	s.Start()
	zl.Info("Scheduler started successfully", zap.String("reminder_cron", cfg.Scheduler.ReminderCron))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("Shutting down scheduler...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Stop(ctx)
	if err := metricsServer.Shutdown(ctx); err != nil {
		zl.Warn("Metrics listener forced to shutdown", zap.Error(err))
	}
	zl.Info("Scheduler stopped")
}
