package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/velis74/notify-engine/internal/repository"
	"gorm.io/gorm"
)

func createMessagesAndNotificationsTables() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_messages_and_notifications",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageModel{}, &repository.NotificationModel{}); err != nil {
				return err
			}
			indexes := []string{
				// Due scan for the deferred-dispatch beat. Claimed rows keep
				// claimed_at set so concurrent beats skip them.
				`CREATE INDEX IF NOT EXISTS idx_notifications_due ON notifications (send_at) WHERE sent_at IS NULL AND send_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications (created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.NotificationModel{}, &repository.MessageModel{})
		},
	}
}
