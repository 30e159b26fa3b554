package network

// 客户端 → 服务器
const (
	MsgTypeHeartbeat      = 1
	MsgTypePlayerSpawn    = 101
	MsgTypePlayerMove     = 102
	MsgTypeChatMessage    = 103
	MsgTypeVehicleSpawn   = 104
	MsgTypeVehicleDespawn = 105
	MsgTypeStartJob       = 106
)

// 服务器 → 客户端（聊天消息两个方向共用 MsgTypeChatMessage）
const (
	MsgTypePlayerListUpdate  = 301
	MsgTypeVehicleListUpdate = 302
	MsgTypePlayerMoved       = 303
	MsgTypeJobStarted        = 305
	MsgTypeError             = 400
)
