package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/velis74/notify-engine/internal/config"
	"github.com/velis74/notify-engine/internal/handler"
	"github.com/velis74/notify-engine/internal/infra/postgresql"
	"github.com/velis74/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/velis74/notify-engine/internal/infra/redis"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/provider"
	"github.com/velis74/notify-engine/internal/repository"
	"github.com/velis74/notify-engine/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

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

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
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

	providers, err := newProviderRegistry(cfg)
	if err != nil {
		logger.Fatal("provider registry initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	reports := repository.NewGormDeliveryReportRepo(db)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	if err := handler.RegisterDeliveryReportRoutes(app, reports, providers, logger, metrics); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down api server")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Error("api shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("notify-engine api started", zap.Int("port", cfg.APIPort))
	if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
		logger.Fatal("api server terminated", zap.Error(err))
	}
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
