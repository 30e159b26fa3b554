package rpc

import (
	"encoding/json"
	"net"
	netrpc "net/rpc"
	"time"

	"github.com/wfunc/rpserver/broadcast"
	"github.com/wfunc/rpserver/logger"
	"github.com/wfunc/rpserver/models"
	"github.com/wfunc/rpserver/network"
	"github.com/wfunc/rpserver/router"
	"github.com/wfunc/rpserver/store"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go netrpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes operator methods over net/rpc.
type AdminService struct {
	store       *store.Store
	router      *router.Router
	broadcaster broadcast.Broadcaster
}

// NewAdminService creates a new AdminService.
func NewAdminService(st *store.Store, rt *router.Router, b broadcast.Broadcaster) *AdminService {
	return &AdminService{store: st, router: rt, broadcaster: b}
}

type GetStatsArgs struct{}

type GetStatsReply struct {
	TotalPlayers  int
	TotalVehicles int
}

// GetStats returns the current entity counts.
func (a *AdminService) GetStats(args *GetStatsArgs, reply *GetStatsReply) error {
	players, vehicles := a.store.Counts()
	reply.TotalPlayers = players
	reply.TotalVehicles = vehicles
	return nil
}

type KickPlayerArgs struct {
	SessionID string
	Reason    string
}

type KickPlayerReply struct {
	Kicked bool
}

// KickPlayer force-disconnects a session. Kicking an unknown session is a no-op.
func (a *AdminService) KickPlayer(args *KickPlayerArgs, reply *KickPlayerReply) error {
	_, exists := a.store.GetPlayer(args.SessionID)
	if exists {
		logger.Log.Warnf("Admin kicked session %s: %s", args.SessionID, args.Reason)
		a.router.HandleDisconnect(args.SessionID)
	}
	reply.Kicked = exists
	return nil
}

type BroadcastNoticeArgs struct {
	Message string
}

type BroadcastNoticeReply struct{}

// BroadcastNotice sends an admin chat message to every identified session.
func (a *AdminService) BroadcastNotice(args *BroadcastNoticeArgs, reply *BroadcastNoticeReply) error {
	message := models.ChatMessage{
		Player:    "SERVER",
		Message:   args.Message,
		Timestamp: time.Now(),
		Type:      "admin",
	}
	data, _ := json.Marshal(message)
	a.broadcaster.BroadcastToIdentified(network.MsgTypeChatMessage, data)
	return nil
}
