package models

import (
	"gorm.io/gorm"
)

// SessionBackup はスナップショットをPostgreSQLに保存するためのモデル
type SessionBackup struct {
	gorm.Model
	SessionID string `gorm:"index;not null"`
	Turn      int    `gorm:"not null"`
	Phase     string `gorm:"not null"`
	Blob      []byte `gorm:"type:bytea;not null"` // SessionSnapshotのJSON
}
