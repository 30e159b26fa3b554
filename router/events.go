// router/events.go
package router

import (
	"encoding/json"
	"fmt"

	"github.com/wfunc/rpserver/models"
	"github.com/wfunc/rpserver/network"
)

// Event 入站事件的封闭集合。每种线上事件对应一个变体，
// 新事件必须加到这里和 Router 的分发 switch 里，漏掉是编译期可见的。
type Event interface {
	eventName() string
}

type HeartbeatEvent struct{}

type PlayerSpawnEvent struct {
	Name     string         `json:"name"`
	Position models.Vector3 `json:"position"`
	Health   int            `json:"health"`
	Armor    int            `json:"armor"`
	Money    int            `json:"money"`
	Level    int            `json:"level"`
	Job      string         `json:"job"`
}

type PlayerMoveEvent struct {
	Position models.Vector3 `json:"position"`
}

type ChatMessageEvent struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type VehicleSpawnEvent struct {
	ID       string         `json:"id"`
	Model    string         `json:"model"`
	Position models.Vector3 `json:"position"`
}

type VehicleDespawnEvent struct {
	ID string `json:"id"`
}

type StartJobEvent struct {
	Job    string `json:"job"`
	Salary int    `json:"salary"`
}

func (HeartbeatEvent) eventName() string      { return "heartbeat" }
func (PlayerSpawnEvent) eventName() string    { return "playerSpawn" }
func (PlayerMoveEvent) eventName() string     { return "playerMove" }
func (ChatMessageEvent) eventName() string    { return "chatMessage" }
func (VehicleSpawnEvent) eventName() string   { return "vehicleSpawn" }
func (VehicleDespawnEvent) eventName() string { return "vehicleDespawn" }
func (StartJobEvent) eventName() string       { return "startJob" }

// playerMoveWire 解码用。position 必填，用指针区分"缺字段"和原点坐标。
type playerMoveWire struct {
	Position *models.Vector3 `json:"position"`
}

type vehicleSpawnWire struct {
	ID       string          `json:"id"`
	Model    string          `json:"model"`
	Position *models.Vector3 `json:"position"`
}

// DecodeEvent 把线上数据包解码成类型化事件。
// 未知消息ID、非法JSON、缺少必填字段都归为 ErrBadRequest。
func DecodeEvent(packet *network.Packet) (Event, error) {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		return HeartbeatEvent{}, nil

	case network.MsgTypePlayerSpawn:
		var ev PlayerSpawnEvent
		if err := json.Unmarshal(packet.Data, &ev); err != nil {
			return nil, fmt.Errorf("%w: playerSpawn: %v", ErrBadRequest, err)
		}
		return ev, nil

	case network.MsgTypePlayerMove:
		var wire playerMoveWire
		if err := json.Unmarshal(packet.Data, &wire); err != nil {
			return nil, fmt.Errorf("%w: playerMove: %v", ErrBadRequest, err)
		}
		if wire.Position == nil {
			return nil, fmt.Errorf("%w: playerMove: missing position", ErrBadRequest)
		}
		return PlayerMoveEvent{Position: *wire.Position}, nil

	case network.MsgTypeChatMessage:
		var ev ChatMessageEvent
		if err := json.Unmarshal(packet.Data, &ev); err != nil {
			return nil, fmt.Errorf("%w: chatMessage: %v", ErrBadRequest, err)
		}
		if ev.Message == "" {
			return nil, fmt.Errorf("%w: chatMessage: missing message", ErrBadRequest)
		}
		return ev, nil

	case network.MsgTypeVehicleSpawn:
		var wire vehicleSpawnWire
		if err := json.Unmarshal(packet.Data, &wire); err != nil {
			return nil, fmt.Errorf("%w: vehicleSpawn: %v", ErrBadRequest, err)
		}
		if wire.ID == "" || wire.Model == "" || wire.Position == nil {
			return nil, fmt.Errorf("%w: vehicleSpawn: missing id, model or position", ErrBadRequest)
		}
		return VehicleSpawnEvent{ID: wire.ID, Model: wire.Model, Position: *wire.Position}, nil

	case network.MsgTypeVehicleDespawn:
		var ev VehicleDespawnEvent
		if err := json.Unmarshal(packet.Data, &ev); err != nil {
			return nil, fmt.Errorf("%w: vehicleDespawn: %v", ErrBadRequest, err)
		}
		if ev.ID == "" {
			return nil, fmt.Errorf("%w: vehicleDespawn: missing id", ErrBadRequest)
		}
		return ev, nil

	case network.MsgTypeStartJob:
		var ev StartJobEvent
		if err := json.Unmarshal(packet.Data, &ev); err != nil {
			return nil, fmt.Errorf("%w: startJob: %v", ErrBadRequest, err)
		}
		if ev.Job == "" {
			return nil, fmt.Errorf("%w: startJob: missing job", ErrBadRequest)
		}
		return ev, nil

	default:
		return nil, fmt.Errorf("%w: unknown message type %d", ErrBadRequest, packet.MsgID)
	}
}
