package server

import (
	"encoding/json"
	"net/http"
	netrpc "net/rpc"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/wfunc/rpserver/broadcast"
	"github.com/wfunc/rpserver/config"
	"github.com/wfunc/rpserver/logger"
	"github.com/wfunc/rpserver/models"
	"github.com/wfunc/rpserver/monitor"
	"github.com/wfunc/rpserver/network"
	"github.com/wfunc/rpserver/persistence"
	"github.com/wfunc/rpserver/router"
	rpserver_rpc "github.com/wfunc/rpserver/rpc"
	"github.com/wfunc/rpserver/services"
	"github.com/wfunc/rpserver/session"
	"github.com/wfunc/rpserver/store"
	"github.com/wfunc/rpserver/timer"
)

const serverVersion = "1.0.0"

type GameServer struct {
	cfg            *config.Config
	upgrader       websocket.Upgrader
	store          *store.Store
	sessionManager *session.Manager
	broadcaster    broadcast.Broadcaster
	router         *router.Router
	archive        *services.ArchiveService
	rpcServer      *rpserver_rpc.Server
	monitor        *monitor.Monitor
	timers         *timer.Manager
	mux            *mux.Router
	shutdownChan   chan struct{}
}

// NewGameServer 组装中继服务器。db 为 nil 时归档功能关闭。
func NewGameServer(cfg *config.Config, db persistence.Database, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		cfg:            cfg,
		store:          store.NewStore(cfg.Game.MaxVehicles),
		sessionManager: session.NewManager(),
		monitor:        mon,
		timers:         timer.NewManager(),
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	s.broadcaster = broadcast.NewSessionBroadcaster(s.sessionManager)
	s.router = router.NewRouter(s.store, s.sessionManager, s.broadcaster, &cfg.Game, mon)

	if db != nil {
		s.archive = services.NewArchiveService(db)
		s.router.SetArchiver(s.archive)
	}

	// 初始化RPC服务器
	rpcServer, err := rpserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	// 注册RPC服务
	adminService := rpserver_rpc.NewAdminService(s.store, s.router, s.broadcaster)
	netrpc.Register(adminService)

	s.mux = mux.NewRouter()
	s.setupRoutes()
	s.scheduleSweeps()

	return s
}

func (s *GameServer) setupRoutes() {
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/players", s.handlePlayers).Methods("GET")
	api.HandleFunc("/vehicles", s.handleVehicles).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/chat", s.handleChatHistory).Methods("GET")
}

// scheduleSweeps 注册周期清理：空闲会话强制下线、车辆TTL回收
func (s *GameServer) scheduleSweeps() {
	if timeout := s.cfg.Game.IdleTimeout; timeout > 0 {
		s.timers.Schedule(timeout, timeout/2, func() {
			s.router.SweepIdleSessions(timeout)
		})
	}
	if ttl := s.cfg.Game.VehicleTTL; ttl > 0 {
		s.timers.Schedule(ttl, ttl/2, func() {
			s.router.SweepVehicles(ttl)
		})
	}
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()
	s.monitor.StartServer(s.cfg.Server.MetricsAddress)

	logger.Log.Infof("Game server listening on %s", s.cfg.Server.HTTPAddress)
	return http.ListenAndServe(s.cfg.Server.HTTPAddress, s.mux)
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.timers.Stop()
	s.rpcServer.Stop()
	if s.archive != nil {
		s.archive.Close()
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Game.MaxPlayers > 0 && s.sessionManager.Count() >= s.cfg.Game.MaxPlayers {
		http.Error(w, "server full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)
	sess := s.sessionManager.OnConnect(wsConn)

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		s.router.HandleDisconnect(sess.GetID())
	}()

	// 单个会话的事件按接收顺序串行处理
	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			if timeout := s.cfg.Game.IdleTimeout; timeout > 0 {
				wsConn.SetReadDeadline(time.Now().Add(2 * timeout))
			}
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.router.HandlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    s.monitor.Uptime().Seconds(),
	})
}

func (s *GameServer) handlePlayers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.SnapshotPlayers())
}

func (s *GameServer) handleVehicles(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.SnapshotVehicles())
}

func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	players, vehicles := s.store.Counts()
	respondJSON(w, http.StatusOK, models.ServerStats{
		TotalPlayers:  players,
		TotalVehicles: vehicles,
		Uptime:        s.monitor.Uptime().Seconds(),
		MaxPlayers:    s.cfg.Game.MaxPlayers,
		ServerVersion: serverVersion,
	})
}

// handleChatHistory 归档库里最近的聊天记录。没有配置归档时返回404。
func (s *GameServer) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, "chat archive not enabled", http.StatusNotFound)
		return
	}
	logs, err := s.archive.RecentChat(50)
	if err != nil {
		logger.Log.Errorf("Failed to load chat history: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
