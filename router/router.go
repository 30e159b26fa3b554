// router/router.go
package router

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/rpserver/broadcast"
	"github.com/wfunc/rpserver/config"
	"github.com/wfunc/rpserver/logger"
	"github.com/wfunc/rpserver/models"
	"github.com/wfunc/rpserver/monitor"
	"github.com/wfunc/rpserver/network"
	"github.com/wfunc/rpserver/session"
	"github.com/wfunc/rpserver/store"
)

// 错误分类。所有错误都就地吸收：记日志、回一条错误消息，连接不受影响。
var (
	ErrBadRequest    = errors.New("bad request")
	ErrNotIdentified = errors.New("not identified")
	ErrNotFound      = errors.New("not found")
)

// Archiver 下线归档钩子。归档永远在事件处理路径之外异步执行。
type Archiver interface {
	ArchivePlayer(player models.Player)
	ArchiveChat(sessionID string, message models.ChatMessage)
}

// ErrorPayload 发给客户端的错误消息体
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PlayerMovedPayload 位置增量广播
type PlayerMovedPayload struct {
	ID       string         `json:"id"`
	Position models.Vector3 `json:"position"`
}

// JobStartedPayload 工作确认
type JobStartedPayload struct {
	Job    string `json:"job"`
	Salary int    `json:"salary"`
}

// Router 唯一一个校验入站事件、写实体存储、决定广播范围的组件。
// 实体存储和会话注册表只被它改写，读API只读快照。
//
// mu 把所有变更点串成全序：事件A触发的广播全部入队之后，
// 才会处理另一个会话的事件B。入队是非阻塞的，慢客户端不会把锁拖住。
type Router struct {
	mu          sync.Mutex
	store       *store.Store
	sessions    *session.Manager
	broadcaster broadcast.Broadcaster
	game        *config.GameConfig
	monitor     *monitor.Monitor
	archiver    Archiver
}

func NewRouter(st *store.Store, sessions *session.Manager, b broadcast.Broadcaster, game *config.GameConfig, mon *monitor.Monitor) *Router {
	return &Router{
		store:       st,
		sessions:    sessions,
		broadcaster: b,
		game:        game,
		monitor:     mon,
	}
}

// SetArchiver 挂接归档服务（可选）
func (r *Router) SetArchiver(a Archiver) {
	r.archiver = a
}

// HandlePacket 处理一条入站数据包。错误不会让连接断开。
func (r *Router) HandlePacket(sess *session.Session, packet *network.Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.monitor.IncEventsReceived()
	sess.Touch()

	event, err := DecodeEvent(packet)
	if err != nil {
		r.reject(sess, err)
		return
	}

	// playerSpawn 和心跳在任何状态下都接受，其余事件要求先识别
	switch event.(type) {
	case PlayerSpawnEvent, HeartbeatEvent:
	default:
		if sess.State() != session.StateIdentified {
			r.reject(sess, ErrNotIdentified)
			return
		}
	}

	switch ev := event.(type) {
	case HeartbeatEvent:
		r.store.TouchPlayer(sess.GetID())
	case PlayerSpawnEvent:
		r.handlePlayerSpawn(sess, ev)
	case PlayerMoveEvent:
		r.handlePlayerMove(sess, ev)
	case ChatMessageEvent:
		r.handleChatMessage(sess, ev)
	case VehicleSpawnEvent:
		r.handleVehicleSpawn(sess, ev)
	case VehicleDespawnEvent:
		r.handleVehicleDespawn(sess, ev)
	case StartJobEvent:
		r.handleStartJob(sess, ev)
	}
}

func (r *Router) handlePlayerSpawn(sess *session.Session, ev PlayerSpawnEvent) {
	// 缺省值与原始游戏模式保持一致
	if ev.Name == "" {
		ev.Name = "Unknown"
	}
	if ev.Health == 0 {
		ev.Health = 100
	}
	if ev.Money == 0 {
		ev.Money = r.game.StartingMoney
	}
	if ev.Level == 0 {
		ev.Level = 1
	}
	if ev.Job == "" {
		ev.Job = "Unemployed"
	}

	player := models.Player{
		ID:       sess.GetID(),
		Name:     ev.Name,
		Position: ev.Position,
		Health:   ev.Health,
		Armor:    ev.Armor,
		Money:    ev.Money,
		Level:    ev.Level,
		Job:      ev.Job,
	}

	stored, err := r.store.UpsertPlayer(player)
	if err != nil {
		r.reject(sess, err)
		return
	}

	if err := sess.Identify(); err != nil {
		// 会话在处理途中进入终态，回滚本次写入
		r.store.RemovePlayer(sess.GetID())
		return
	}

	logger.Log.Infof("Player %s spawned at (%.1f, %.1f, %.1f)", stored.Name, stored.Position.X, stored.Position.Y, stored.Position.Z)
	r.broadcastPlayerList()
}

func (r *Router) handlePlayerMove(sess *session.Session, ev PlayerMoveEvent) {
	_, err := r.store.UpdatePlayerPosition(sess.GetID(), ev.Position)
	if err != nil {
		// 已识别但存储里没有记录，说明会话正在拆除，按 NotFound 静默处理
		r.monitor.IncEventsRejected("not_found")
		return
	}

	payload := PlayerMovedPayload{ID: sess.GetID(), Position: ev.Position}
	data, _ := json.Marshal(payload)
	r.broadcaster.BroadcastToOthers(sess.GetID(), network.MsgTypePlayerMoved, data)
	r.observeFanout(-1)
}

func (r *Router) handleChatMessage(sess *session.Session, ev ChatMessageEvent) {
	player, exists := r.store.GetPlayer(sess.GetID())
	if !exists {
		r.monitor.IncEventsRejected("not_found")
		return
	}
	r.store.TouchPlayer(sess.GetID())

	msgType := ev.Type
	switch msgType {
	case "chat", "ooc", "me", "do", "admin":
	default:
		msgType = "chat"
	}

	message := models.ChatMessage{
		Player:    player.Name,
		Message:   ev.Message,
		Timestamp: time.Now(),
		Type:      msgType,
	}

	data, _ := json.Marshal(message)
	r.broadcaster.BroadcastToIdentified(network.MsgTypeChatMessage, data)
	r.observeFanout(0)
	r.monitor.IncChatMessages()
	logger.Log.Infof("[CHAT] %s: %s", player.Name, ev.Message)

	if r.archiver != nil {
		r.archiver.ArchiveChat(sess.GetID(), message)
	}
}

func (r *Router) handleVehicleSpawn(sess *session.Session, ev VehicleSpawnEvent) {
	vehicle := models.Vehicle{
		ID:       ev.ID,
		Model:    ev.Model,
		Position: ev.Position,
		Owner:    sess.GetID(),
		Locked:   false,
		Health:   100,
		Fuel:     100,
	}

	if _, err := r.store.UpsertVehicle(vehicle); err != nil {
		r.reject(sess, err)
		return
	}
	r.store.TouchPlayer(sess.GetID())

	logger.Log.Infof("Vehicle %s (%s) spawned by session %s", ev.ID, ev.Model, sess.GetID())
	r.broadcastVehicleList()
}

func (r *Router) handleVehicleDespawn(sess *session.Session, ev VehicleDespawnEvent) {
	vehicle, exists := r.store.GetVehicle(ev.ID)
	if !exists {
		r.reject(sess, ErrNotFound)
		return
	}
	// 只有车主能回收自己的车，无主车辆谁都可以回收
	if vehicle.Owner != "" && vehicle.Owner != sess.GetID() {
		r.reject(sess, ErrBadRequest)
		return
	}

	r.store.RemoveVehicle(ev.ID)
	r.store.TouchPlayer(sess.GetID())

	logger.Log.Infof("Vehicle %s despawned by session %s", ev.ID, sess.GetID())
	r.broadcastVehicleList()
}

func (r *Router) handleStartJob(sess *session.Session, ev StartJobEvent) {
	salary := ev.Salary
	if job, known := r.game.FindJob(ev.Job); known {
		salary = job.Salary
	} else {
		// 原始游戏模式接受任意工作名，保持宽松但记一笔
		logger.Log.Warnf("Session %s started unconfigured job %q", sess.GetID(), ev.Job)
		if salary == 0 {
			salary = 100
		}
	}

	player, err := r.store.UpdatePlayerJob(sess.GetID(), ev.Job, salary)
	if err != nil {
		r.monitor.IncEventsRejected("not_found")
		return
	}

	logger.Log.Infof("Player %s started job: %s", player.Name, ev.Job)
	r.broadcastPlayerList()

	ack := JobStartedPayload{Job: ev.Job, Salary: salary}
	data, _ := json.Marshal(ack)
	if err := r.broadcaster.SendTo(sess.GetID(), network.MsgTypeJobStarted, data); err != nil {
		logger.Log.Debugf("Dropping job ack to session %s: %v", sess.GetID(), err)
	}
}

// HandleDisconnect 处理传输层断开。幂等：第二次调用是无操作。
// 车辆策略：车主名下的车辆标记为无主，保留在世界里。
func (r *Router) HandleDisconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, first := r.sessions.OnDisconnect(sessionID)
	if !first {
		logger.Log.Debugf("Duplicate disconnect for session %s ignored", sessionID)
		return
	}

	player, hadPlayer := r.store.GetPlayer(sessionID)
	r.store.RemovePlayer(sessionID)
	orphaned := r.store.MarkVehiclesOwnerless(sessionID)

	if hadPlayer {
		logger.Log.Infof("Player %s disconnected (session %s, %d vehicles left ownerless)", player.Name, sessionID, orphaned)
		r.broadcastPlayerList()
		if orphaned > 0 {
			r.broadcastVehicleList()
		}
		if r.archiver != nil {
			r.archiver.ArchivePlayer(player)
		}
	} else {
		logger.Log.Infof("Session %s disconnected before identifying", sessionID)
	}

	sess.Close()
}

// SweepVehicles 执行一次TTL清理，有车辆被移除时广播新的车辆列表
func (r *Router) SweepVehicles(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.store.SweepVehicles(ttl)
	if len(removed) == 0 {
		return
	}
	logger.Log.Infof("Vehicle TTL sweep removed %d vehicles", len(removed))
	r.broadcastVehicleList()
}

// SweepIdleSessions 强制断开超过空闲时限的会话
func (r *Router) SweepIdleSessions(timeout time.Duration) {
	for _, sess := range r.sessions.SweepIdle(timeout) {
		logger.Log.Warnf("Session %s idle for over %v, forcing disconnect", sess.GetID(), timeout)
		r.HandleDisconnect(sess.GetID())
	}
}

func (r *Router) broadcastPlayerList() {
	players := r.store.SnapshotPlayers()
	data, _ := json.Marshal(players)
	r.broadcaster.BroadcastToIdentified(network.MsgTypePlayerListUpdate, data)
	r.observeFanout(0)
	r.monitor.SetOnlinePlayers(len(players))
}

func (r *Router) broadcastVehicleList() {
	vehicles := r.store.SnapshotVehicles()
	data, _ := json.Marshal(vehicles)
	r.broadcaster.BroadcastToIdentified(network.MsgTypeVehicleListUpdate, data)
	r.observeFanout(0)
	r.monitor.SetSpawnedVehicles(len(vehicles))
}

// observeFanout 记录本次广播到达的会话数。delta 用于排除发送者自己。
func (r *Router) observeFanout(delta int) {
	size := len(r.sessions.IdentifiedSessions()) + delta
	if size < 0 {
		size = 0
	}
	r.monitor.ObserveFanout(size)
}

// reject 吸收一个失败的事件：记指标、记日志、回错误消息
func (r *Router) reject(sess *session.Session, err error) {
	payload := ErrorPayload{Message: err.Error()}
	switch {
	case errors.Is(err, ErrNotIdentified):
		payload.Code = "not_identified"
	case errors.Is(err, ErrNotFound):
		payload.Code = "not_found"
	default:
		payload.Code = "bad_request"
	}

	r.monitor.IncEventsRejected(payload.Code)
	logger.Log.Warnf("Rejected event from session %s: %v", sess.GetID(), err)

	data, _ := json.Marshal(payload)
	if sendErr := sess.Send(network.MsgTypeError, data); sendErr != nil {
		logger.Log.Debugf("Dropping error reply to session %s: %v", sess.GetID(), sendErr)
	}
}
