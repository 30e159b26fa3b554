// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormPlayerArchive 玩家下线时的最终快照
type GormPlayerArchive struct {
	gorm.Model
	SessionID string  `gorm:"index;not null"`
	Name      string  `gorm:"not null"`
	PosX      float64 `gorm:"not null"`
	PosY      float64 `gorm:"not null"`
	PosZ      float64 `gorm:"not null"`
	Health    int     `gorm:"default:100"`
	Armor     int     `gorm:"default:0"`
	Money     int     `gorm:"default:0"`
	Level     int     `gorm:"default:1"`
	Job       string  `gorm:"default:'Unemployed'"`
}

// GormChatLog 聊天记录
type GormChatLog struct {
	gorm.Model
	SessionID string `gorm:"index;not null"`
	Player    string `gorm:"not null"`
	Message   string `gorm:"not null"`
	Type      string `gorm:"default:'chat'"`
}
