// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// PostgreSQL 驱动
	_ "github.com/lib/pq"

	"github.com/wfunc/rpserver/models"
)

// PostgreSQL 不经过GORM的原生 database/sql 实现，
// 给不想拖ORM的部署留的一条路，表结构与GORM实现一致。
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(host string, port int, user, password, dbname string) (*PostgreSQL, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	p := &PostgreSQL{db: db}
	if err := p.createTables(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PostgreSQL) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS gorm_player_archives (
			id SERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now(),
			deleted_at TIMESTAMPTZ,
			session_id TEXT NOT NULL,
			name TEXT NOT NULL,
			pos_x DOUBLE PRECISION NOT NULL,
			pos_y DOUBLE PRECISION NOT NULL,
			pos_z DOUBLE PRECISION NOT NULL,
			health INT DEFAULT 100,
			armor INT DEFAULT 0,
			money INT DEFAULT 0,
			level INT DEFAULT 1,
			job TEXT DEFAULT 'Unemployed'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gorm_player_archives_session_id ON gorm_player_archives (session_id)`,
		`CREATE TABLE IF NOT EXISTS gorm_chat_logs (
			id SERIAL PRIMARY KEY,
			created_at TIMESTAMPTZ DEFAULT now(),
			updated_at TIMESTAMPTZ DEFAULT now(),
			deleted_at TIMESTAMPTZ,
			session_id TEXT NOT NULL,
			player TEXT NOT NULL,
			message TEXT NOT NULL,
			type TEXT DEFAULT 'chat'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gorm_chat_logs_session_id ON gorm_chat_logs (session_id)`,
	}

	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SavePlayerArchive 保存玩家下线快照
func (p *PostgreSQL) SavePlayerArchive(player models.Player) error {
	_, err := p.db.Exec(
		`INSERT INTO gorm_player_archives
			(session_id, name, pos_x, pos_y, pos_z, health, armor, money, level, job)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		player.ID, player.Name,
		player.Position.X, player.Position.Y, player.Position.Z,
		player.Health, player.Armor, player.Money, player.Level, player.Job,
	)
	return err
}

// SaveChatLog 保存一条聊天记录
func (p *PostgreSQL) SaveChatLog(sessionID string, message models.ChatMessage) error {
	_, err := p.db.Exec(
		`INSERT INTO gorm_chat_logs (session_id, player, message, type)
		VALUES ($1, $2, $3, $4)`,
		sessionID, message.Player, message.Message, message.Type,
	)
	return err
}

// RecentChat 最近的聊天记录，按时间倒序
func (p *PostgreSQL) RecentChat(limit int) ([]models.GormChatLog, error) {
	rows, err := p.db.Query(
		`SELECT id, session_id, player, message, type, created_at
		FROM gorm_chat_logs
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.GormChatLog
	for rows.Next() {
		var entry models.GormChatLog
		if err := rows.Scan(&entry.ID, &entry.SessionID, &entry.Player, &entry.Message, &entry.Type, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// Stats 归档库汇总
func (p *PostgreSQL) Stats() (ArchiveStats, error) {
	var stats ArchiveStats
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM gorm_player_archives WHERE deleted_at IS NULL`).Scan(&stats.ArchivedPlayers); err != nil {
		return stats, err
	}
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM gorm_chat_logs WHERE deleted_at IS NULL`).Scan(&stats.ChatLines); err != nil {
		return stats, err
	}
	return stats, nil
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
