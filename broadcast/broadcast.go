// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/rpserver/logger"
	"github.com/wfunc/rpserver/session"
)

var (
	ErrSessionNotFound = errors.New("session not found")
)

// 广播接口。所有发送都是 fire-and-forget：
// 发送失败只影响那一个客户端，永远不会中断其它会话的分发。
type Broadcaster interface {
	BroadcastToIdentified(msgID uint16, data []byte)
	BroadcastToOthers(excludeSessionID string, msgID uint16, data []byte)
	SendTo(sessionID string, msgID uint16, data []byte) error
}

// SessionBroadcaster 基于会话注册表的广播器
type SessionBroadcaster struct {
	sessionManager *session.Manager
}

func NewSessionBroadcaster(sessionManager *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{
		sessionManager: sessionManager,
	}
}

// BroadcastToIdentified 发给调用瞬间所有 Identified 的会话
func (b *SessionBroadcaster) BroadcastToIdentified(msgID uint16, data []byte) {
	for _, s := range b.sessionManager.IdentifiedSessions() {
		if err := s.Send(msgID, data); err != nil {
			// 死连接或队列已满，丢掉这一条，由读循环负责清理会话
			logger.Log.Debugf("Dropping broadcast to session %s: %v", s.GetID(), err)
		}
	}
}

// BroadcastToOthers 发给除 excludeSessionID 外的所有 Identified 会话
func (b *SessionBroadcaster) BroadcastToOthers(excludeSessionID string, msgID uint16, data []byte) {
	for _, s := range b.sessionManager.IdentifiedSessions() {
		if s.GetID() == excludeSessionID {
			continue
		}
		if err := s.Send(msgID, data); err != nil {
			logger.Log.Debugf("Dropping broadcast to session %s: %v", s.GetID(), err)
		}
	}
}

// SendTo 定向发送
func (b *SessionBroadcaster) SendTo(sessionID string, msgID uint16, data []byte) error {
	s, exists := b.sessionManager.Get(sessionID)
	if !exists {
		return ErrSessionNotFound
	}
	return s.Send(msgID, data)
}
