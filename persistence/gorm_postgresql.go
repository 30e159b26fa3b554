// persistence/gorm_postgresql.go
package persistence

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/rpserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormPostgreSQL, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// 自动迁移表结构
	if err := db.AutoMigrate(&models.GormPlayerArchive{}, &models.GormChatLog{}); err != nil {
		return nil, err
	}

	return &GormPostgreSQL{db: db}, nil
}

// SavePlayerArchive 保存玩家下线快照
func (p *GormPostgreSQL) SavePlayerArchive(player models.Player) error {
	archive := models.GormPlayerArchive{
		SessionID: player.ID,
		Name:      player.Name,
		PosX:      player.Position.X,
		PosY:      player.Position.Y,
		PosZ:      player.Position.Z,
		Health:    player.Health,
		Armor:     player.Armor,
		Money:     player.Money,
		Level:     player.Level,
		Job:       player.Job,
	}
	return p.db.Create(&archive).Error
}

// SaveChatLog 保存一条聊天记录
func (p *GormPostgreSQL) SaveChatLog(sessionID string, message models.ChatMessage) error {
	entry := models.GormChatLog{
		SessionID: sessionID,
		Player:    message.Player,
		Message:   message.Message,
		Type:      message.Type,
	}
	return p.db.Create(&entry).Error
}

// RecentChat 最近的聊天记录，按时间倒序
func (p *GormPostgreSQL) RecentChat(limit int) ([]models.GormChatLog, error) {
	var logs []models.GormChatLog
	err := p.db.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// Stats 归档库汇总
func (p *GormPostgreSQL) Stats() (ArchiveStats, error) {
	var stats ArchiveStats
	if err := p.db.Model(&models.GormPlayerArchive{}).Count(&stats.ArchivedPlayers).Error; err != nil {
		return stats, err
	}
	if err := p.db.Model(&models.GormChatLog{}).Count(&stats.ChatLines).Error; err != nil {
		return stats, err
	}
	return stats, nil
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
