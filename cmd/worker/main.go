package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/velis74/notify-engine/internal/channel"
	"github.com/velis74/notify-engine/internal/config"
	"github.com/velis74/notify-engine/internal/infra/postgresql"
	infraredis "github.com/velis74/notify-engine/internal/infra/redis"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/provider"
	"github.com/velis74/notify-engine/internal/queue"
	"github.com/velis74/notify-engine/internal/repository"
	"github.com/velis74/notify-engine/internal/service"
	"go.uber.org/zap"
)

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

	providers, err := newProviderRegistry(cfg)
	if err != nil {
		logger.Fatal("provider registry initialization failed", zap.Error(err))
	}

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec, map[string]int{
		channel.SMSChannelName: cfg.SMSRateLimitPerSec,
	})
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	notifications := repository.NewGormNotificationRepo(db)
	reports := repository.NewGormDeliveryReportRepo(db)
	profiles := repository.NewGormProfileRepo(db)
	usage := repository.NewGormUsageRepo(db)

	channels, err := newChannelRegistry(cfg, channel.Deps{
		Resolver: channel.NewResolver(profiles, logger),
		Registry: providers,
		Reports:  reports,
		Limiter:  limiter,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		logger.Fatal("channel registry initialization failed", zap.Error(err))
	}

	meter, err := service.NewRedisQuotaMeter(rdb, usage, cfg.MeterMonthlyLimit, map[string]float64{
		channel.SMSChannelName:   cfg.MeterSMSItemPrice,
		channel.EmailChannelName: cfg.MeterMailItemPrice,
		channel.PushChannelName:  cfg.MeterPushItemPrice,
	}, logger)
	if err != nil {
		logger.Fatal("quota meter initialization failed", zap.Error(err))
	}

	dispatcher, err := service.NewDispatcher(channels, notifications, meter, logger)
	if err != nil {
		logger.Fatal("dispatcher initialization failed", zap.Error(err))
	}
	dispatcher.SetMetrics(metrics)

	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)
	worker, err := service.NewWorkerService(notifications, consumer, dispatcher, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("notify-engine worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Start(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("worker terminated", zap.Error(err))
	}
	logger.Info("notify-engine worker stopped")
}

func newChannelRegistry(cfg *config.Config, deps channel.Deps) (*channel.Registry, error) {
	registry := channel.NewRegistry()

	mail, err := channel.NewEmailChannel(config.ProviderChain(cfg.EmailProviders), deps)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(mail); err != nil {
		return nil, err
	}

	sms, err := channel.NewSMSChannel(config.ProviderChain(cfg.SMSProviders), cfg.SMSFallbackProvider, deps)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(sms); err != nil {
		return nil, err
	}

	push, err := channel.NewPushChannel(config.ProviderChain(cfg.PushProviders), deps)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(push); err != nil {
		return nil, err
	}

	return registry, nil
}

// newProviderRegistry registers every gateway the environment configures.
// Chains referencing an unregistered provider fail over at send time.
func newProviderRegistry(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if cfg.SMTPHost != "" {
		p, err := provider.NewSMTPProvider(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	if cfg.SMSGateEndpoint != "" {
		p, err := provider.NewSMSGateProvider(cfg.SMSGateEndpoint, cfg.SMSGateAPIKey, cfg.DLRCallbackURL)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	if cfg.SMSRelayEndpoint != "" {
		p, err := provider.NewSMSRelayProvider(cfg.SMSRelayEndpoint, cfg.SMSRelayUsername, cfg.SMSRelayPassword)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	if cfg.PushGateEndpoint != "" {
		p, err := provider.NewPushGateProvider(cfg.PushGateEndpoint, cfg.PushGateAPIKey)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}
