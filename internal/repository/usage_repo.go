package repository

import (
	"context"

	"github.com/velis74/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// UsageRepository records metering entries for the licensing side.
type UsageRepository interface {
	Create(ctx context.Context, record *domain.UsageRecord) error
}

type GormUsageRepo struct {
	db *gorm.DB
}

func NewGormUsageRepo(db *gorm.DB) *GormUsageRepo {
	return &GormUsageRepo{db: db}
}

func (r *GormUsageRepo) Create(ctx context.Context, record *domain.UsageRecord) error {
	return r.db.WithContext(ctx).Create(usageModelFromDomain(record)).Error
}
