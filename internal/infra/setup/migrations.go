package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	gormpersistence "dormdesign/internal/infra/persistence/gorm"
)

// MigrateDB 创建或更新持久化存储所需的表结构。
// rooms 表的 template_id 唯一索引保证克隆链接不会冲突。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}
	if err := db.AutoMigrate(&gormpersistence.RoomRecord{}); err != nil {
		logrus.Errorf("Failed to auto-migrate rooms table: %v", err)
		return fmt.Errorf("failed to migrate rooms table: %w", err)
	}
	logrus.Info("Database migration completed successfully")
	return nil
}
