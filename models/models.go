// models/models.go
package models

import (
	"time"
)

// Vector3 世界坐标
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Player 玩家数据模型，以会话ID为主键
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Position Vector3   `json:"position"`
	Health   int       `json:"health"`
	Armor    int       `json:"armor"`
	Money    int       `json:"money"`
	Level    int       `json:"level"`
	Job      string    `json:"job"`
	LastSeen time.Time `json:"lastSeen"`
}

// Vehicle 车辆数据模型，ID由客户端提供
type Vehicle struct {
	ID       string  `json:"id"`
	Model    string  `json:"model"`
	Position Vector3 `json:"position"`
	Owner    string  `json:"owner"` // 车主的会话ID，车主下线后为空
	Locked   bool    `json:"locked"`
	Health   int     `json:"health"`
	Fuel     int     `json:"fuel"`
}

// ChatMessage 聊天消息，只广播不存储
type ChatMessage struct {
	Player    string    `json:"player"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"` // chat/ooc/me/do/admin
}

// ServerStats 服务器统计信息（用于 /api/stats）
type ServerStats struct {
	TotalPlayers  int     `json:"totalPlayers"`
	TotalVehicles int     `json:"totalVehicles"`
	Uptime        float64 `json:"uptime"`
	MaxPlayers    int     `json:"maxPlayers"`
	ServerVersion string  `json:"serverVersion"`
}
