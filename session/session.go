// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/rpserver/network"
)

// State 会话生命周期状态。连接建立后是 Connected，
// 第一个 playerSpawn 事件把它变成 Identified，断开是终态。
type State int

const (
	StateConnected State = iota
	StateIdentified
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateIdentified:
		return "identified"
	case StateDisconnected:
		return "disconnected"
	}
	return "unknown"
}

var ErrSessionDisconnected = errors.New("session already disconnected")

type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	state      State
	lastActive time.Time
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		state:      StateConnected,
		lastActive: now,
	}
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) State() State {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.state
}

// Identify Connected → Identified。重复识别（再次spawn）是合法的。
func (s *Session) Identify() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateDisconnected {
		return ErrSessionDisconnected
	}
	s.state = StateIdentified
	return nil
}

// MarkDisconnected 进入终态。幂等：第二次调用返回 false。
func (s *Session) MarkDisconnected() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.state == StateDisconnected {
		return false
	}
	s.state = StateDisconnected
	return true
}

// Touch 刷新活跃时间
func (s *Session) Touch() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.lastActive = time.Now()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) Send(msgID uint16, data []byte) error {
	return s.Conn.Send(msgID, data)
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager 会话注册表，判断"这个会话还活着吗"的唯一权威。
// 断线重连不做任何延续：新连接永远得到全新的会话ID。
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

// OnConnect 为新连接分配会话ID并登记，初始状态 Connected
func (m *Manager) OnConnect(conn network.Connection) *Session {
	sess := NewSession(uuid.New().String(), conn)

	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[sess.ID] = sess
	return sess
}

// OnDisconnect 将会话置为终态并从注册表移除。
// 传输层可能对同一连接多次触发断开，第二次调用返回 (nil, false)。
func (m *Manager) OnDisconnect(sessionID string) (*Session, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	sess, exists := m.sessions[sessionID]
	if !exists {
		return nil, false
	}
	if !sess.MarkDisconnected() {
		return nil, false
	}
	delete(m.sessions, sessionID)
	return sess, true
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	sess, exists := m.sessions[sessionID]
	return sess, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// IdentifiedSessions 返回当前处于 Identified 状态的会话快照。
// 广播的"所有人"指的就是这个集合在调用瞬间的内容。
func (m *Manager) IdentifiedSessions() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if sess.State() == StateIdentified {
			result = append(result, sess)
		}
	}
	return result
}

// SweepIdle 返回空闲时间超过 timeout 的会话，由调用方负责断开
func (m *Manager) SweepIdle(timeout time.Duration) []*Session {
	if timeout <= 0 {
		return nil
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	cutoff := time.Now().Add(-timeout)
	var idle []*Session
	for _, sess := range m.sessions {
		if sess.LastActive().Before(cutoff) {
			idle = append(idle, sess)
		}
	}
	return idle
}
