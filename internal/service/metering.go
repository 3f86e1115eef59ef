package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/velis74/notify-engine/internal/domain"
	"github.com/velis74/notify-engine/internal/repository"
	"go.uber.org/zap"
)

// usageKeyTTL keeps a monthly counter alive well past its month so a billing
// export late in the next cycle still sees it.
const usageKeyTTL = 45 * 24 * time.Hour

// MeterRequest identifies one channel send for quota and usage accounting.
type MeterRequest struct {
	UserID         string
	NotificationID string
	Channel        string
	Comment        string
}

// Meter gates a channel send behind usage accounting. Implementations call
// onSuccess exactly once when the send is allowed and record the returned
// sent count; a quota rejection returns ErrQuotaExceeded without calling it.
type Meter interface {
	Log(ctx context.Context, req MeterRequest, onSuccess func(ctx context.Context) (int, error)) (int, error)
}

// NopMeter performs no accounting and always allows the send.
type NopMeter struct{}

func (NopMeter) Log(ctx context.Context, req MeterRequest, onSuccess func(ctx context.Context) (int, error)) (int, error) {
	return onSuccess(ctx)
}

// RedisQuotaMeter enforces a monthly per-user unit budget in Redis and
// appends an audit row per counted send. Accounting failures are logged and
// fail open: a broken billing backend must not stop deliveries.
type RedisQuotaMeter struct {
	client       redis.UniversalClient
	usage        repository.UsageRepository
	monthlyLimit float64
	prices       map[string]float64
	logger       *zap.Logger
	now          func() time.Time
}

func NewRedisQuotaMeter(
	client redis.UniversalClient,
	usage repository.UsageRepository,
	monthlyLimit float64,
	prices map[string]float64,
	logger *zap.Logger,
) (*RedisQuotaMeter, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", domain.ErrValidation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RedisQuotaMeter{
		client:       client,
		usage:        usage,
		monthlyLimit: monthlyLimit,
		prices:       prices,
		logger:       logger,
		now:          time.Now,
	}, nil
}

func (m *RedisQuotaMeter) Log(
	ctx context.Context,
	req MeterRequest,
	onSuccess func(ctx context.Context) (int, error),
) (int, error) {
	// System-originated notifications carry no user and are not metered.
	if req.UserID == "" {
		return onSuccess(ctx)
	}

	key := m.usageKey(req.UserID)
	if m.monthlyLimit > 0 {
		used, err := m.client.Get(ctx, key).Float64()
		if err != nil && !errors.Is(err, redis.Nil) {
			m.logger.Error("usage counter unavailable, allowing send",
				zap.String("userId", req.UserID),
				zap.Error(err),
			)
		} else if used >= m.monthlyLimit {
			return 0, fmt.Errorf("%w: user %q used %.2f of %.2f units this month",
				domain.ErrQuotaExceeded, req.UserID, used, m.monthlyLimit)
		}
	}

	count, err := onSuccess(ctx)
	if err != nil || count <= 0 {
		return count, err
	}

	price := m.prices[req.Channel]
	cost := price * float64(count)
	if cost > 0 {
		pipe := m.client.TxPipeline()
		pipe.IncrByFloat(ctx, key, cost)
		pipe.Expire(ctx, key, usageKeyTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			m.logger.Error("failed to record usage counter",
				zap.String("userId", req.UserID),
				zap.Float64("cost", cost),
				zap.Error(err),
			)
		}
	}

	if m.usage != nil {
		record := &domain.UsageRecord{
			ID:             uuid.NewString(),
			UserID:         req.UserID,
			NotificationID: req.NotificationID,
			Channel:        req.Channel,
			ItemPrice:      price,
			Count:          count,
			Comment:        req.Comment,
			CreatedAt:      m.now().UTC(),
		}
		if err := m.usage.Create(ctx, record); err != nil {
			m.logger.Error("failed to persist usage record",
				zap.String("userId", req.UserID),
				zap.String("notificationId", req.NotificationID),
				zap.Error(err),
			)
		}
	}

	return count, nil
}

func (m *RedisQuotaMeter) usageKey(userID string) string {
	return fmt.Sprintf("usage:%s:%s", userID, m.now().UTC().Format("2006-01"))
}
