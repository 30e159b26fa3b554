// store/store.go
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/rpserver/models"
)

var (
	ErrEmptyName       = errors.New("player name must not be empty")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrVehicleCapacity = errors.New("vehicle capacity reached")
)

// vehicleEntry 车辆记录加上内部元数据（TTL 清理用）
type vehicleEntry struct {
	vehicle   models.Vehicle
	spawnedAt time.Time
}

// Store 持有权威的玩家和车辆状态。所有读写都在同一把锁下进行，
// 除了自身状态外没有任何副作用，不做 I/O。
type Store struct {
	players     map[string]*models.Player
	vehicles    map[string]*vehicleEntry
	maxVehicles int
	mutex       sync.RWMutex
}

// NewStore 创建实体存储。maxVehicles <= 0 表示不限制车辆数量。
func NewStore(maxVehicles int) *Store {
	return &Store{
		players:     make(map[string]*models.Player),
		vehicles:    make(map[string]*vehicleEntry),
		maxVehicles: maxVehicles,
	}
}

// clamp 将 v 限制在 [lo, hi] 区间内
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UpsertPlayer 插入或覆盖玩家记录。数值字段在写入前收敛到合法域:
// health/armor ∈ [0,100]，money ≥ 0。
func (s *Store) UpsertPlayer(player models.Player) (models.Player, error) {
	if player.Name == "" {
		return models.Player{}, ErrEmptyName
	}

	player.Health = clamp(player.Health, 0, 100)
	player.Armor = clamp(player.Armor, 0, 100)
	if player.Money < 0 {
		player.Money = 0
	}
	player.LastSeen = time.Now()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored := player
	s.players[player.ID] = &stored
	return stored, nil
}

// UpdatePlayerPosition 更新位置并刷新 lastSeen
func (s *Store) UpdatePlayerPosition(id string, position models.Vector3) (models.Player, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	player, exists := s.players[id]
	if !exists {
		return models.Player{}, ErrPlayerNotFound
	}

	player.Position = position
	player.LastSeen = time.Now()
	return *player, nil
}

// UpdatePlayerJob 切换工作并结算工资。salary 为负时金钱收敛到 0。
func (s *Store) UpdatePlayerJob(id string, job string, salary int) (models.Player, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	player, exists := s.players[id]
	if !exists {
		return models.Player{}, ErrPlayerNotFound
	}

	player.Job = job
	player.Money += salary
	if player.Money < 0 {
		player.Money = 0
	}
	player.LastSeen = time.Now()
	return *player, nil
}

// TouchPlayer 刷新 lastSeen（心跳、聊天等不改状态的事件）
func (s *Store) TouchPlayer(id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if player, exists := s.players[id]; exists {
		player.LastSeen = time.Now()
	}
}

// GetPlayer 获取单个玩家的副本
func (s *Store) GetPlayer(id string) (models.Player, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	player, exists := s.players[id]
	if !exists {
		return models.Player{}, false
	}
	return *player, true
}

// RemovePlayer 移除玩家。幂等：不存在时返回 false，不报错。
func (s *Store) RemovePlayer(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.players[id]; !exists {
		return false
	}
	delete(s.players, id)
	return true
}

// UpsertVehicle 插入或覆盖车辆记录。新增车辆受容量上限约束，
// 覆盖已有ID的车辆不受限制（客户端提供的ID可能重复使用）。
func (s *Store) UpsertVehicle(vehicle models.Vehicle) (models.Vehicle, error) {
	vehicle.Health = clamp(vehicle.Health, 0, 100)
	vehicle.Fuel = clamp(vehicle.Fuel, 0, 100)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	entry, exists := s.vehicles[vehicle.ID]
	if !exists {
		if s.maxVehicles > 0 && len(s.vehicles) >= s.maxVehicles {
			return models.Vehicle{}, ErrVehicleCapacity
		}
		entry = &vehicleEntry{spawnedAt: time.Now()}
		s.vehicles[vehicle.ID] = entry
	}
	entry.vehicle = vehicle
	return vehicle, nil
}

// GetVehicle 获取单个车辆的副本
func (s *Store) GetVehicle(id string) (models.Vehicle, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, exists := s.vehicles[id]
	if !exists {
		return models.Vehicle{}, false
	}
	return entry.vehicle, true
}

// RemoveVehicle 移除车辆。幂等。
func (s *Store) RemoveVehicle(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.vehicles[id]; !exists {
		return false
	}
	delete(s.vehicles, id)
	return true
}

// MarkVehiclesOwnerless 把某个玩家名下的所有车辆标记为无主。
// 车主下线后车辆保留在世界里，返回被处理的车辆数。
func (s *Store) MarkVehiclesOwnerless(ownerID string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	count := 0
	for _, entry := range s.vehicles {
		if entry.vehicle.Owner == ownerID {
			entry.vehicle.Owner = ""
			count++
		}
	}
	return count
}

// SweepVehicles 移除存在时间超过 ttl 的车辆，返回被移除的车辆ID。
// ttl <= 0 时不做任何事。
func (s *Store) SweepVehicles(ttl time.Duration) []string {
	if ttl <= 0 {
		return nil
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	cutoff := time.Now().Add(-ttl)
	var removed []string
	for id, entry := range s.vehicles {
		if entry.spawnedAt.Before(cutoff) {
			delete(s.vehicles, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// SnapshotPlayers 返回当前所有玩家的不可变副本
func (s *Store) SnapshotPlayers() []models.Player {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	players := make([]models.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, *player)
	}
	return players
}

// SnapshotVehicles 返回当前所有车辆的不可变副本
func (s *Store) SnapshotVehicles() []models.Vehicle {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	vehicles := make([]models.Vehicle, 0, len(s.vehicles))
	for _, entry := range s.vehicles {
		vehicles = append(vehicles, entry.vehicle)
	}
	return vehicles
}

// Counts 返回玩家数和车辆数
func (s *Store) Counts() (players int, vehicles int) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.players), len(s.vehicles)
}
