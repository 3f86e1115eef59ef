package service

import (
	"context"
	"fmt"
	"time"

	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/observability"
	"github.com/velis74/notify-engine/internal/queue"
	"github.com/velis74/notify-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultBeatInterval  = time.Minute
	defaultBeatLookahead = 5 * time.Minute
	defaultBeatScanLimit = 100
)

// RunLock serializes scheduler passes across processes. Acquire reports
// false when another pass still holds the lock; the lock expires on its own
// if the holder dies, so a crashed pass cannot block scheduling forever.
type RunLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Submitter hands a claimed notification over for dispatch.
type Submitter interface {
	Submit(ctx context.Context, n domain.Notification) error
}

// QueueSubmitter publishes claimed notifications to the dispatch work queue.
type QueueSubmitter struct {
	publisher queue.Publisher
}

func NewQueueSubmitter(publisher queue.Publisher) *QueueSubmitter {
	return &QueueSubmitter{publisher: publisher}
}

func (s *QueueSubmitter) Submit(ctx context.Context, n domain.Notification) error {
	msg := queue.DispatchMessage{
		NotificationID: n.ID,
		Level:          n.Level,
	}
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}
	return s.publisher.Publish(ctx, queue.DispatchQueueName, msg)
}

// BeatScheduler periodically claims due deferred notifications and submits
// them for dispatch. Passes are mutually exclusive via the run lock, and
// claiming is idempotent per notification, so overlapping schedulers never
// double-dispatch.
type BeatScheduler struct {
	notifications repository.NotificationRepository
	lock          RunLock
	submitter     Submitter
	logger        *zap.Logger
	metrics       *observability.Metrics
	interval      time.Duration
	lookahead     time.Duration
	limit         int
	now           func() time.Time
	onFailure     func(err error)
}

func NewBeatScheduler(
	notifications repository.NotificationRepository,
	lock RunLock,
	submitter Submitter,
	interval time.Duration,
	lookahead time.Duration,
	limit int,
	logger *zap.Logger,
) (*BeatScheduler, error) {
	if notifications == nil {
		return nil, fmt.Errorf("%w: notification repository is required", domain.ErrValidation)
	}
	if lock == nil {
		return nil, fmt.Errorf("%w: run lock is required", domain.ErrValidation)
	}
	if submitter == nil {
		return nil, fmt.Errorf("%w: submitter is required", domain.ErrValidation)
	}
	if interval <= 0 {
		interval = defaultBeatInterval
	}
	if lookahead <= 0 {
		lookahead = defaultBeatLookahead
	}
	if limit <= 0 {
		limit = defaultBeatScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BeatScheduler{
		notifications: notifications,
		lock:          lock,
		submitter:     submitter,
		logger:        logger,
		interval:      interval,
		lookahead:     lookahead,
		limit:         limit,
		now:           time.Now,
	}, nil
}

func (s *BeatScheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SetFailureHook registers a callback invoked when a pass fails, in addition
// to logging. Intended for alerting integrations.
func (s *BeatScheduler) SetFailureHook(hook func(err error)) {
	if s == nil {
		return
	}
	s.onFailure = hook
}

func (s *BeatScheduler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.failed(err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.failed(err)
			}
		}
	}
}

// RunOnce executes a single scheduler pass: take the run lock, claim every
// due notification and submit it for dispatch. A pass that cannot take the
// lock is a silent skip, not an error.
func (s *BeatScheduler) RunOnce(ctx context.Context) error {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire scheduler run lock: %w", err)
	}
	if !acquired {
		s.logger.Debug("previous scheduler pass still active, skipping")
		s.metrics.SchedulerRunObserved("skipped_locked")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logger.Error("failed to release scheduler run lock", zap.Error(err))
		}
	}()

	due, err := s.notifications.GetDueForDispatch(ctx, s.now().UTC(), s.lookahead, s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch due notifications: %w", err)
	}

	for i := range due {
		notification := due[i]

		claimed, err := s.notifications.ClaimForDispatch(ctx, notification.ID, s.now().UTC())
		if err != nil {
			s.logger.Error("failed to claim due notification",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			continue
		}
		if !claimed {
			// Another pass won the row between select and claim.
			s.logger.Debug("due notification already claimed",
				zap.String("notificationId", notification.ID),
			)
			continue
		}

		if err := s.submitter.Submit(ctx, notification); err != nil {
			s.logger.Error("failed to submit claimed notification, releasing claim",
				zap.String("notificationId", notification.ID),
				zap.Error(err),
			)
			if releaseErr := s.notifications.ReleaseClaim(ctx, notification.ID); releaseErr != nil {
				s.logger.Error("failed to release claim",
					zap.String("notificationId", notification.ID),
					zap.Error(releaseErr),
				)
			}
			continue
		}

		s.logger.Info("deferred notification submitted for dispatch",
			zap.String("notificationId", notification.ID),
		)
	}

	s.metrics.SchedulerRunObserved("dispatched")
	return nil
}

func (s *BeatScheduler) failed(err error) {
	s.logger.Error("scheduler pass failed", zap.Error(err))
	s.metrics.SchedulerRunObserved("failed")
	if s.onFailure != nil {
		s.onFailure(err)
	}
}
