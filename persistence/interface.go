// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/wfunc/rpserver/models"
)

// ArchiveStats 归档库的汇总数字
type ArchiveStats struct {
	ArchivedPlayers int64 `json:"archived_players"`
	ChatLines       int64 `json:"chat_lines"`
}

// Database 归档数据库接口。中继核心不依赖它，
// 只有归档服务在事件路径之外写入。
type Database interface {
	SavePlayerArchive(player models.Player) error
	SaveChatLog(sessionID string, message models.ChatMessage) error
	RecentChat(limit int) ([]models.GormChatLog, error)
	Stats() (ArchiveStats, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound = errors.New("record not found")
)
