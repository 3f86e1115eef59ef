package repository

import (
	"context"
	"errors"
	"time"

	"github.com/velis74/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// NotificationRepository is the storage port for notification dispatch.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	GetDueForDispatch(ctx context.Context, now time.Time, lookahead time.Duration, limit int) ([]domain.Notification, error)
	ClaimForDispatch(ctx context.Context, id string, now time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id string) error
	MarkDispatched(ctx context.Context, n *domain.Notification) error
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	// Delayed notifications become due at their delay time.
	if model.SendAt == nil {
		model.SendAt = model.DelayedTo
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := r.db.WithContext(ctx).
		Preload("Message").
		First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

// GetDueForDispatch returns scheduled, unsent, unclaimed notifications whose
// send time falls inside [<=now+lookahead]. The lookahead window avoids
// boundary misses between scheduler ticks.
func (r *GormNotificationRepo) GetDueForDispatch(
	ctx context.Context,
	now time.Time,
	lookahead time.Duration,
	limit int,
) ([]domain.Notification, error) {
	var models []NotificationModel
	err := r.db.WithContext(ctx).
		Preload("Message").
		Where("send_at IS NOT NULL AND sent_at IS NULL AND claimed_at IS NULL AND send_at <= ?", now.Add(lookahead)).
		Order("send_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

// ClaimForDispatch marks a due notification as taken by one scheduler pass.
// The conditional update makes the claim atomic: of two concurrent ticks
// selecting the same row, exactly one sees RowsAffected == 1.
func (r *GormNotificationRepo) ClaimForDispatch(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND sent_at IS NULL AND claimed_at IS NULL", id).
		Update("claimed_at", now)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ReleaseClaim returns an unsent notification to the due pool, e.g. after a
// failed queue submission.
func (r *GormNotificationRepo) ReleaseClaim(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ? AND sent_at IS NULL", id).
		Update("claimed_at", nil).Error
}

// MarkDispatched persists the dispatch outcome: exactly sent_at,
// sent_channels, failed_channels and exceptions, nothing else.
func (r *GormNotificationRepo) MarkDispatched(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.SentAt == nil {
		return domain.ErrValidation
	}

	result := r.db.WithContext(ctx).
		Model(&NotificationModel{}).
		Where("id = ?", n.ID).
		Updates(map[string]any{
			"sent_at":         n.SentAt,
			"sent_channels":   n.SentChannels,
			"failed_channels": n.FailedChannels,
			"exceptions":      n.Exceptions,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
