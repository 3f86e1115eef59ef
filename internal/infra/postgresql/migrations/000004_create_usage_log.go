package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/velis74/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createUsageLogTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_usage_log",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.UsageLogModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_usage_log_user_created ON notification_usage_log (user_id, created_at)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.UsageLogModel{})
		},
	}
}
