package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/velis74/notify-engine/internal/config"
	"github.com/velis74/notify-engine/internal/infra/postgresql"
	infraredis "github.com/velis74/notify-engine/internal/infra/redis"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/queue"
	"github.com/velis74/notify-engine/internal/repository"
	"github.com/velis74/notify-engine/internal/service"
	"go.uber.org/zap"
)

// schedulerLockKey is shared by every scheduler replica; the TTL'd lock
// keeps their passes mutually exclusive.
const schedulerLockKey = "scheduler:run"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	lock, err := infraredis.NewRunLock(rdb, schedulerLockKey, 0)
	if err != nil {
		logger.Fatal("run lock initialization failed", zap.Error(err))
	}

	notifications := repository.NewGormNotificationRepo(db)
	submitter := service.NewQueueSubmitter(queue.NewRabbitMQPublisher(rabbit))

	scheduler, err := service.NewBeatScheduler(
		notifications,
		lock,
		submitter,
		time.Duration(cfg.SchedulerIntervalSec)*time.Second,
		time.Duration(cfg.SchedulerLookaheadSec)*time.Second,
		cfg.SchedulerScanLimit,
		logger,
	)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}
	scheduler.SetMetrics(observability.NewMetrics())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("notify-engine scheduler started",
		zap.Int("intervalSec", cfg.SchedulerIntervalSec),
		zap.Int("lookaheadSec", cfg.SchedulerLookaheadSec),
	)
	if err := scheduler.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("scheduler terminated", zap.Error(err))
	}
	logger.Info("notify-engine scheduler stopped")
}
