package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/velis74/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createDeliveryReportsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_delivery_reports",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryReportModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_delivery_reports_notification_id ON delivery_reports (notification_id)`,
				`CREATE INDEX IF NOT EXISTS idx_delivery_reports_status ON delivery_reports (status)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryReportModel{})
		},
	}
}
