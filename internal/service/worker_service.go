package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/queue"
	"github.com/velis74/notify-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// coordinator is the slice of Dispatcher the worker needs.
type coordinator interface {
	MakeSend(ctx context.Context, n *domain.Notification, dctx domain.DispatchContext) error
}

// WorkerService consumes the dispatch queue and runs the full channel
// dispatch for each claimed deferred notification.
type WorkerService struct {
	notifications repository.NotificationRepository
	consumer      queue.Consumer
	dispatcher    coordinator
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
}

func NewWorkerService(
	notifications repository.NotificationRepository,
	consumer queue.Consumer,
	dispatcher coordinator,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("%w: notification repository is required", domain.ErrValidation)
	}
	if consumer == nil {
		return nil, fmt.Errorf("%w: queue consumer is required", domain.ErrValidation)
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("%w: dispatcher is required", domain.ErrValidation)
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		notifications: notifications,
		consumer:      consumer,
		dispatcher:    dispatcher,
		logger:        logger,
		concurrency:   concurrency,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start consumes the dispatch queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.DispatchQueueName),
			)

			err := s.consumer.Consume(groupCtx, queue.DispatchQueueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// processMessage dispatches one queued notification. Missing and
// already-sent rows are acked and skipped; dispatch errors are returned so
// the delivery is redelivered or dead-lettered by the broker.
func (s *WorkerService) processMessage(ctx context.Context, msg queue.DispatchMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	ctx = observability.WithNotificationID(ctx, msg.NotificationID)

	notification, err := s.notifications.GetByID(ctx, msg.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("queued notification no longer exists, skipping",
			zap.String("notificationId", msg.NotificationID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load queued notification: %w", err)
	}

	if notification.SentAt != nil {
		s.logger.Info("queued notification already dispatched, skipping",
			zap.String("notificationId", msg.NotificationID),
		)
		return nil
	}

	s.metrics.IncWorkerInFlight(queue.DispatchQueueName)
	defer s.metrics.DecWorkerInFlight(queue.DispatchQueueName)

	if err := s.dispatcher.MakeSend(ctx, notification, domain.DispatchContext{}); err != nil {
		return fmt.Errorf("dispatch failed: %w", err)
	}

	return nil
}
