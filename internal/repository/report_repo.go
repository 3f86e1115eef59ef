package repository

import (
	"context"
	"errors"

	"github.com/velis74/notify-engine/internal/domain"
	"gorm.io/gorm"
)

// DeliveryReportRepository is the storage port for per-send delivery
// reports. A row is created once at send time and mutated at most once when
// the provider calls back with its payload.
type DeliveryReportRepository interface {
	Create(ctx context.Context, report *domain.DeliveryReport) error
	GetByID(ctx context.Context, id string) (*domain.DeliveryReport, error)
	AttachPayload(ctx context.Context, id string, payload string) error
	UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error
}

type GormDeliveryReportRepo struct {
	db *gorm.DB
}

func NewGormDeliveryReportRepo(db *gorm.DB) *GormDeliveryReportRepo {
	return &GormDeliveryReportRepo{db: db}
}

func (r *GormDeliveryReportRepo) Create(ctx context.Context, report *domain.DeliveryReport) error {
	if err := report.Validate(); err != nil {
		return err
	}

	model := reportModelFromDomain(report)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*report = *reportModelToDomain(model)
	return nil
}

func (r *GormDeliveryReportRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryReport, error) {
	var model DeliveryReportModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return reportModelToDomain(&model), nil
}

func (r *GormDeliveryReportRepo) AttachPayload(ctx context.Context, id string, payload string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryReportModel{}).
		Where("id = ?", id).
		Update("payload", payload)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormDeliveryReportRepo) UpdateStatus(ctx context.Context, id string, status domain.DeliveryStatus) error {
	if !status.IsValid() {
		return domain.ErrValidation
	}

	result := r.db.WithContext(ctx).
		Model(&DeliveryReportModel{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
