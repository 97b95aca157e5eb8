// Package migrations はバックアップ用テーブルを作成します。
package migrations

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"hotelling/models"
)

// AutoMigrateDB はマイグレーションを実行する関数
func AutoMigrateDB(db *gorm.DB, logger *zap.Logger) error {
	if err := db.AutoMigrate(&models.SessionBackup{}); err != nil {
		return fmt.Errorf("error migrating tables: %w", err)
	}
	logger.Info("session_backups table is up to date")
	return nil
}
