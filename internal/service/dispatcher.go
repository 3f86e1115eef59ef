package service

import (
	"context"
	"fmt"
	"time"

	"github.com/velis74/notify-engine/internal/channel"
	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/repository"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// repoOpener opens the notification repository backing an alternate storage
// route. The returned close func releases the underlying connection.
type repoOpener func(dsn string) (repository.NotificationRepository, func() error, error)

// Dispatcher coordinates one notification across its required channels: it
// resolves each channel, gates the send through the meter, and persists the
// sent/failed bookkeeping once at the end.
type Dispatcher struct {
	channels      *channel.Registry
	notifications repository.NotificationRepository
	meter         Meter
	logger        *zap.Logger
	metrics       *observability.Metrics
	openRepo      repoOpener
	now           func() time.Time
}

func NewDispatcher(
	channels *channel.Registry,
	notifications repository.NotificationRepository,
	meter Meter,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if channels == nil {
		return nil, fmt.Errorf("%w: channel registry is required", domain.ErrValidation)
	}
	if meter == nil {
		meter = NopMeter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		channels:      channels,
		notifications: notifications,
		meter:         meter,
		logger:        logger,
		openRepo:      openGormRepo,
		now:           time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// MakeSend runs the full dispatch for one notification. Channel failures are
// recorded, never propagated: the returned error covers only coordinator-
// level problems such as an unreachable alternate store. An empty required
// channel list is a complete no-op with no writes.
func (d *Dispatcher) MakeSend(ctx context.Context, n *domain.Notification, dctx domain.DispatchContext) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	required := n.RequiredChannelList()
	if len(required) == 0 {
		return nil
	}

	logger := observability.WithContextLogger(d.logger, ctx).With(zap.String("notificationId", n.ID))

	notifications := d.notifications
	if dctx.DatabaseDSN != "" {
		repo, closeRepo, err := d.openRepo(dctx.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("failed to open alternate storage route: %w", err)
		}
		defer func() {
			if err := closeRepo(); err != nil {
				logger.Warn("failed to close alternate storage route", zap.Error(err))
			}
		}()
		notifications = repo
	}

	var sentChannels, failedChannels []string
	exceptions := ""

	for _, name := range required {
		start := d.now()
		sent, err := d.sendChannel(ctx, name, n, dctx)
		d.metrics.ObserveDispatchDuration(name, d.now().Sub(start))

		if err != nil {
			failedChannels = append(failedChannels, name)
			exceptions += err.Error() + "\n\n"
			logger.Warn("channel dispatch failed",
				zap.String("channel", name),
				zap.Error(err),
			)
			continue
		}

		sentChannels = append(sentChannels, name)
		logger.Info("channel dispatched",
			zap.String("channel", name),
			zap.Int("sent", sent),
		)
	}

	n.SentChannels = domain.JoinChannelList(sentChannels)
	n.FailedChannels = domain.JoinChannelList(failedChannels)
	if exceptions != "" {
		combined := exceptions
		if n.Exceptions != nil && *n.Exceptions != "" {
			combined = *n.Exceptions + exceptions
		}
		n.Exceptions = &combined
	}

	// sent_at marks the first dispatch attempt and is never overwritten.
	if n.SentAt == nil {
		sentAt := d.now().UTC()
		n.SentAt = &sentAt
	}

	// Ad-hoc notifications that were never persisted get no bookkeeping row.
	if n.CreatedAt.IsZero() || notifications == nil {
		return nil
	}

	if err := notifications.MarkDispatched(ctx, n); err != nil {
		return fmt.Errorf("failed to persist dispatch outcome: %w", err)
	}
	return nil
}

func (d *Dispatcher) sendChannel(
	ctx context.Context,
	name string,
	n *domain.Notification,
	dctx domain.DispatchContext,
) (int, error) {
	ch, err := d.channels.Resolve(name)
	if err != nil {
		return 0, err
	}

	return d.meter.Log(ctx, MeterRequest{
		UserID:         n.UserID,
		NotificationID: n.ID,
		Channel:        name,
		Comment:        n.Message.Summary(),
	}, func(ctx context.Context) (int, error) {
		return ch.Send(ctx, n, dctx)
	})
}

func openGormRepo(dsn string) (repository.NotificationRepository, func() error, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect alternate database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to access alternate database handle: %w", err)
	}

	return repository.NewGormNotificationRepo(db), sqlDB.Close, nil
}
