package router

import (
	"encoding/binary"
	"encoding/json"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/rpserver/broadcast"
	"github.com/wfunc/rpserver/config"
	"github.com/wfunc/rpserver/logger"
	"github.com/wfunc/rpserver/models"
	"github.com/wfunc/rpserver/network"
	"github.com/wfunc/rpserver/session"
	"github.com/wfunc/rpserver/store"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

// recordingConn captures everything sent to a client.
type recordingConn struct {
	mutex sync.Mutex
	sent  []sentPacket
}

type sentPacket struct {
	msgID uint16
	data  []byte
}

func (c *recordingConn) Send(msgID uint16, data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.sent = append(c.sent, sentPacket{msgID: msgID, data: data})
	return nil
}

func (c *recordingConn) Close() error                         { return nil }
func (c *recordingConn) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (c *recordingConn) SetReadDeadline(deadline time.Time)   {}
func (c *recordingConn) ReadPacket() (*network.Packet, error) { return nil, nil }

func (c *recordingConn) countOf(msgID uint16) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	count := 0
	for _, p := range c.sent {
		if p.msgID == msgID {
			count++
		}
	}
	return count
}

func (c *recordingConn) lastOf(msgID uint16) ([]byte, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].msgID == msgID {
			return c.sent[i].data, true
		}
	}
	return nil, false
}

type testRig struct {
	store    *store.Store
	sessions *session.Manager
	router   *Router
}

func newTestRig() *testRig {
	st := store.NewStore(0)
	sm := session.NewManager()
	b := broadcast.NewSessionBroadcaster(sm)
	game := &config.GameConfig{
		MaxPlayers:    50,
		StartingMoney: 1000,
		Jobs: []config.JobConfig{
			{Name: "taxi", Salary: 150},
			{Name: "police", Salary: 200},
		},
	}
	return &testRig{
		store:    st,
		sessions: sm,
		router:   NewRouter(st, sm, b, game, nil),
	}
}

func (r *testRig) connect() (*session.Session, *recordingConn) {
	conn := &recordingConn{}
	return r.sessions.OnConnect(conn), conn
}

func packet(msgID uint16, payload interface{}) *network.Packet {
	data, _ := json.Marshal(payload)
	return &network.Packet{MsgID: msgID, Data: data, Length: uint16(len(data))}
}

func (r *testRig) spawn(sess *session.Session, name string) {
	r.router.HandlePacket(sess, packet(network.MsgTypePlayerSpawn, map[string]interface{}{
		"name":     name,
		"position": map[string]float64{"x": 0, "y": 0, "z": 0},
		"health":   100,
		"armor":    0,
		"money":    1000,
		"level":    1,
		"job":      "Unemployed",
	}))
}

func TestPlayerSpawn_StoresPlayerAndBroadcasts(t *testing.T) {
	rig := newTestRig()
	sess, conn := rig.connect()

	rig.spawn(sess, "Bob")

	if sess.State() != session.StateIdentified {
		t.Fatalf("Session should be identified after spawn, got %v", sess.State())
	}

	player, exists := rig.store.GetPlayer(sess.GetID())
	if !exists {
		t.Fatal("Store should contain the spawned player")
	}
	if player.ID != sess.GetID() {
		t.Errorf("Player id should be the session id, got %s", player.ID)
	}
	if player.Name != "Bob" {
		t.Errorf("Expected name Bob, got %s", player.Name)
	}

	data, ok := conn.lastOf(network.MsgTypePlayerListUpdate)
	if !ok {
		t.Fatal("Spawning player should receive the player list broadcast")
	}
	var list []models.Player
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("Player list payload should be a JSON array: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Bob" {
		t.Errorf("Unexpected player list: %+v", list)
	}
}

func TestPlayerSpawn_AppliesDefaults(t *testing.T) {
	rig := newTestRig()
	sess, _ := rig.connect()

	rig.router.HandlePacket(sess, packet(network.MsgTypePlayerSpawn, map[string]interface{}{}))

	player, exists := rig.store.GetPlayer(sess.GetID())
	if !exists {
		t.Fatal("Spawn with an empty payload should still create a player")
	}
	if player.Name != "Unknown" {
		t.Errorf("Expected default name Unknown, got %s", player.Name)
	}
	if player.Health != 100 || player.Money != 1000 || player.Level != 1 || player.Job != "Unemployed" {
		t.Errorf("Defaults not applied: %+v", player)
	}
}

func TestPlayerMove_UpdatesPositionAndNotifiesOthers(t *testing.T) {
	rig := newTestRig()
	mover, moverConn := rig.connect()
	watcher, watcherConn := rig.connect()
	rig.spawn(mover, "Bob")
	rig.spawn(watcher, "Alice")

	before, _ := rig.store.GetPlayer(mover.GetID())

	time.Sleep(2 * time.Millisecond)
	rig.router.HandlePacket(mover, packet(network.MsgTypePlayerMove, map[string]interface{}{
		"position": map[string]float64{"x": 5, "y": 5, "z": 5},
	}))

	player, _ := rig.store.GetPlayer(mover.GetID())
	want := models.Vector3{X: 5, Y: 5, Z: 5}
	if player.Position != want {
		t.Errorf("Expected position %+v, got %+v", want, player.Position)
	}
	if !player.LastSeen.After(before.LastSeen) {
		t.Error("lastSeen should advance on an accepted move")
	}

	// 位置增量发给其他人，不发给移动者自己
	if watcherConn.countOf(network.MsgTypePlayerMoved) != 1 {
		t.Error("Watcher should receive the position delta")
	}
	if moverConn.countOf(network.MsgTypePlayerMoved) != 0 {
		t.Error("Mover should not receive its own position delta")
	}

	data, _ := watcherConn.lastOf(network.MsgTypePlayerMoved)
	var moved PlayerMovedPayload
	if err := json.Unmarshal(data, &moved); err != nil {
		t.Fatalf("Bad playerMoved payload: %v", err)
	}
	if moved.ID != mover.GetID() || moved.Position != want {
		t.Errorf("Unexpected playerMoved payload: %+v", moved)
	}
}

func TestPlayerMove_MissingPositionIsBadRequest(t *testing.T) {
	rig := newTestRig()
	sess, conn := rig.connect()
	rig.spawn(sess, "Bob")

	rig.router.HandlePacket(sess, packet(network.MsgTypePlayerMove, map[string]interface{}{}))

	data, ok := conn.lastOf(network.MsgTypeError)
	if !ok {
		t.Fatal("Malformed move should produce an error reply")
	}
	var payload ErrorPayload
	json.Unmarshal(data, &payload)
	if payload.Code != "bad_request" {
		t.Errorf("Expected bad_request, got %s", payload.Code)
	}

	// 连接不受影响，后续事件照常处理
	rig.router.HandlePacket(sess, packet(network.MsgTypePlayerMove, map[string]interface{}{
		"position": map[string]float64{"x": 1, "y": 2, "z": 3},
	}))
	player, _ := rig.store.GetPlayer(sess.GetID())
	if player.Position != (models.Vector3{X: 1, Y: 2, Z: 3}) {
		t.Error("Session should keep working after a rejected event")
	}
}

func TestChatMessage_BeforeIdentifyRejected(t *testing.T) {
	rig := newTestRig()
	identified, identifiedConn := rig.connect()
	rig.spawn(identified, "Alice")

	stranger, strangerConn := rig.connect()
	chatBefore := identifiedConn.countOf(network.MsgTypeChatMessage)

	rig.router.HandlePacket(stranger, packet(network.MsgTypeChatMessage, map[string]string{
		"message": "hi",
	}))

	data, ok := strangerConn.lastOf(network.MsgTypeError)
	if !ok {
		t.Fatal("Chat before spawn should produce an error reply")
	}
	var payload ErrorPayload
	json.Unmarshal(data, &payload)
	if payload.Code != "not_identified" {
		t.Errorf("Expected not_identified, got %s", payload.Code)
	}

	if identifiedConn.countOf(network.MsgTypeChatMessage) != chatBefore {
		t.Error("Rejected chat must not be broadcast")
	}
	if stranger.State() != session.StateConnected {
		t.Error("Rejected event must not tear down the session")
	}
}

func TestChatMessage_BroadcastIncludesSender(t *testing.T) {
	rig := newTestRig()
	alice, aliceConn := rig.connect()
	bob, bobConn := rig.connect()
	rig.spawn(alice, "Alice")
	rig.spawn(bob, "Bob")

	rig.router.HandlePacket(alice, packet(network.MsgTypeChatMessage, map[string]string{
		"message": "hello there",
	}))

	for name, conn := range map[string]*recordingConn{"alice": aliceConn, "bob": bobConn} {
		data, ok := conn.lastOf(network.MsgTypeChatMessage)
		if !ok {
			t.Fatalf("%s should receive the chat broadcast", name)
		}
		var msg models.ChatMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Bad chat payload: %v", err)
		}
		if msg.Player != "Alice" || msg.Message != "hello there" || msg.Type != "chat" {
			t.Errorf("Unexpected chat payload for %s: %+v", name, msg)
		}
		if msg.Timestamp.IsZero() {
			t.Error("Chat message should carry a timestamp")
		}
	}
}

func TestChatMessage_UnknownTypeFallsBackToChat(t *testing.T) {
	rig := newTestRig()
	sess, conn := rig.connect()
	rig.spawn(sess, "Alice")

	rig.router.HandlePacket(sess, packet(network.MsgTypeChatMessage, map[string]string{
		"message": "rolls a cigarette",
		"type":    "me",
	}))
	data, _ := conn.lastOf(network.MsgTypeChatMessage)
	var msg models.ChatMessage
	json.Unmarshal(data, &msg)
	if msg.Type != "me" {
		t.Errorf("Known type should pass through, got %s", msg.Type)
	}

	rig.router.HandlePacket(sess, packet(network.MsgTypeChatMessage, map[string]string{
		"message": "hi",
		"type":    "shout",
	}))
	data, _ = conn.lastOf(network.MsgTypeChatMessage)
	json.Unmarshal(data, &msg)
	if msg.Type != "chat" {
		t.Errorf("Unknown type should fall back to chat, got %s", msg.Type)
	}
}

func TestVehicleSpawn_OwnerAndBroadcast(t *testing.T) {
	rig := newTestRig()
	sess, conn := rig.connect()
	rig.spawn(sess, "Bob")

	rig.router.HandlePacket(sess, packet(network.MsgTypeVehicleSpawn, map[string]interface{}{
		"id":       "v1",
		"model":    "Adder",
		"position": map[string]float64{"x": 1, "y": 1, "z": 1},
	}))

	vehicle, exists := rig.store.GetVehicle("v1")
	if !exists {
		t.Fatal("Vehicle should be stored")
	}
	if vehicle.Owner != sess.GetID() {
		t.Errorf("Vehicle owner should be the spawning session, got %q", vehicle.Owner)
	}
	if vehicle.Health != 100 || vehicle.Fuel != 100 || vehicle.Locked {
		t.Errorf("Vehicle defaults wrong: %+v", vehicle)
	}

	if conn.countOf(network.MsgTypeVehicleListUpdate) != 1 {
		t.Error("Vehicle spawn should broadcast the vehicle list")
	}
}

func TestVehicleSurvivesOwnerDisconnect(t *testing.T) {
	rig := newTestRig()
	owner, _ := rig.connect()
	watcher, watcherConn := rig.connect()
	rig.spawn(owner, "Bob")
	rig.spawn(watcher, "Alice")

	rig.router.HandlePacket(owner, packet(network.MsgTypeVehicleSpawn, map[string]interface{}{
		"id":       "v1",
		"model":    "Adder",
		"position": map[string]float64{"x": 1, "y": 1, "z": 1},
	}))

	rig.router.HandleDisconnect(owner.GetID())

	// 车主下线后车辆保留，标记为无主
	vehicle, exists := rig.store.GetVehicle("v1")
	if !exists {
		t.Fatal("Vehicle must survive its owner's disconnect")
	}
	if vehicle.Owner != "" {
		t.Errorf("Vehicle should be ownerless, got owner %q", vehicle.Owner)
	}

	// 剩余会话收到玩家列表和车辆列表更新
	data, ok := watcherConn.lastOf(network.MsgTypePlayerListUpdate)
	if !ok {
		t.Fatal("Remaining sessions should receive a player list update")
	}
	var list []models.Player
	json.Unmarshal(data, &list)
	if len(list) != 1 || list[0].Name != "Alice" {
		t.Errorf("Player list after disconnect should contain only Alice: %+v", list)
	}
}

func TestHandleDisconnect_Idempotent(t *testing.T) {
	rig := newTestRig()
	sess, _ := rig.connect()
	rig.spawn(sess, "Bob")

	rig.router.HandleDisconnect(sess.GetID())
	playersAfterFirst := rig.store.SnapshotPlayers()

	rig.router.HandleDisconnect(sess.GetID())
	playersAfterSecond := rig.store.SnapshotPlayers()

	if len(playersAfterFirst) != 0 || len(playersAfterSecond) != 0 {
		t.Errorf("Disconnect twice should leave the store empty: %d, %d",
			len(playersAfterFirst), len(playersAfterSecond))
	}
}

func TestVehicleDespawn_OwnerOnly(t *testing.T) {
	rig := newTestRig()
	owner, ownerConn := rig.connect()
	other, otherConn := rig.connect()
	rig.spawn(owner, "Bob")
	rig.spawn(other, "Alice")

	rig.router.HandlePacket(owner, packet(network.MsgTypeVehicleSpawn, map[string]interface{}{
		"id":       "v1",
		"model":    "Adder",
		"position": map[string]float64{"x": 1, "y": 1, "z": 1},
	}))

	// 非车主回收被拒绝
	rig.router.HandlePacket(other, packet(network.MsgTypeVehicleDespawn, map[string]string{"id": "v1"}))
	if _, exists := rig.store.GetVehicle("v1"); !exists {
		t.Fatal("Non-owner despawn must not remove the vehicle")
	}
	if _, ok := otherConn.lastOf(network.MsgTypeError); !ok {
		t.Error("Non-owner despawn should produce an error reply")
	}

	// 车主回收成功
	rig.router.HandlePacket(owner, packet(network.MsgTypeVehicleDespawn, map[string]string{"id": "v1"}))
	if _, exists := rig.store.GetVehicle("v1"); exists {
		t.Fatal("Owner despawn should remove the vehicle")
	}

	// 未知车辆是 NotFound
	rig.router.HandlePacket(owner, packet(network.MsgTypeVehicleDespawn, map[string]string{"id": "ghost"}))
	data, ok := ownerConn.lastOf(network.MsgTypeError)
	if !ok {
		t.Fatal("Despawning an unknown vehicle should produce an error reply")
	}
	var payload ErrorPayload
	json.Unmarshal(data, &payload)
	if payload.Code != "not_found" {
		t.Errorf("Expected not_found, got %s", payload.Code)
	}
}

func TestStartJob_CatalogSalaryAndAck(t *testing.T) {
	rig := newTestRig()
	sess, conn := rig.connect()
	rig.spawn(sess, "Bob")

	// 客户端报的工资被目录里的配置覆盖
	rig.router.HandlePacket(sess, packet(network.MsgTypeStartJob, map[string]interface{}{
		"job":    "taxi",
		"salary": 99999,
	}))

	player, _ := rig.store.GetPlayer(sess.GetID())
	if player.Job != "taxi" {
		t.Errorf("Expected job taxi, got %s", player.Job)
	}
	if player.Money != 1150 {
		t.Errorf("Expected catalog salary applied (1000+150), got %d", player.Money)
	}

	data, ok := conn.lastOf(network.MsgTypeJobStarted)
	if !ok {
		t.Fatal("Sender should receive a direct jobStarted ack")
	}
	var ack JobStartedPayload
	json.Unmarshal(data, &ack)
	if ack.Job != "taxi" || ack.Salary != 150 {
		t.Errorf("Unexpected ack: %+v", ack)
	}

	if conn.countOf(network.MsgTypePlayerListUpdate) < 2 {
		t.Error("startJob should broadcast an updated player list")
	}
}

func TestStartJob_UnconfiguredJobKeepsClientSalary(t *testing.T) {
	rig := newTestRig()
	sess, _ := rig.connect()
	rig.spawn(sess, "Bob")

	rig.router.HandlePacket(sess, packet(network.MsgTypeStartJob, map[string]interface{}{
		"job":    "streamer",
		"salary": 55,
	}))

	player, _ := rig.store.GetPlayer(sess.GetID())
	if player.Job != "streamer" || player.Money != 1055 {
		t.Errorf("Unconfigured job should keep the supplied salary: %+v", player)
	}
}

func TestBroadcastReachesOnlyIdentifiedSessions(t *testing.T) {
	rig := newTestRig()
	alice, _ := rig.connect()
	rig.spawn(alice, "Alice")

	lurker, lurkerConn := rig.connect() // connected, never spawns
	bob, _ := rig.connect()
	rig.spawn(bob, "Bob")

	if lurkerConn.countOf(network.MsgTypePlayerListUpdate) != 0 {
		t.Error("A session that never identified must not receive broadcasts")
	}
	if lurker.State() != session.StateConnected {
		t.Error("Lurker should remain connected")
	}
}

func TestUnknownMessageTypeIsBadRequest(t *testing.T) {
	rig := newTestRig()
	sess, conn := rig.connect()
	rig.spawn(sess, "Bob")

	rig.router.HandlePacket(sess, &network.Packet{MsgID: 999, Data: []byte("{}")})

	data, ok := conn.lastOf(network.MsgTypeError)
	if !ok {
		t.Fatal("Unknown message type should produce an error reply")
	}
	var payload ErrorPayload
	json.Unmarshal(data, &payload)
	if payload.Code != "bad_request" {
		t.Errorf("Expected bad_request, got %s", payload.Code)
	}
}

func TestDecodeEvent_RoundTripFraming(t *testing.T) {
	// DecodeEvent 配合 network 封包格式工作
	payload, _ := json.Marshal(map[string]string{"message": "hi"})
	framed := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint16(framed[0:2], network.MsgTypeChatMessage)
	binary.BigEndian.PutUint16(framed[2:4], uint16(len(payload)))
	copy(framed[4:], payload)

	pkt := &network.Packet{
		MsgID:  binary.BigEndian.Uint16(framed[0:2]),
		Length: binary.BigEndian.Uint16(framed[2:4]),
		Data:   framed[4:],
	}

	event, err := DecodeEvent(pkt)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	chat, ok := event.(ChatMessageEvent)
	if !ok {
		t.Fatalf("Expected ChatMessageEvent, got %T", event)
	}
	if chat.Message != "hi" {
		t.Errorf("Expected message hi, got %s", chat.Message)
	}
}

func TestSweepVehiclesBroadcasts(t *testing.T) {
	rig := newTestRig()
	sess, conn := rig.connect()
	rig.spawn(sess, "Bob")

	rig.router.HandlePacket(sess, packet(network.MsgTypeVehicleSpawn, map[string]interface{}{
		"id":       "v1",
		"model":    "Adder",
		"position": map[string]float64{"x": 1, "y": 1, "z": 1},
	}))
	listUpdates := conn.countOf(network.MsgTypeVehicleListUpdate)

	time.Sleep(5 * time.Millisecond)
	rig.router.SweepVehicles(time.Millisecond)

	if _, exists := rig.store.GetVehicle("v1"); exists {
		t.Fatal("TTL sweep should remove the expired vehicle")
	}
	if conn.countOf(network.MsgTypeVehicleListUpdate) != listUpdates+1 {
		t.Error("TTL sweep that removed vehicles should broadcast the vehicle list")
	}

	// 没有车辆可清时不广播
	rig.router.SweepVehicles(time.Millisecond)
	if conn.countOf(network.MsgTypeVehicleListUpdate) != listUpdates+1 {
		t.Error("Sweep with nothing to remove must not broadcast")
	}
}

func TestSweepIdleSessionsForcesDisconnect(t *testing.T) {
	rig := newTestRig()
	sess, _ := rig.connect()
	rig.spawn(sess, "Bob")

	time.Sleep(5 * time.Millisecond)
	rig.router.SweepIdleSessions(time.Millisecond)

	if _, exists := rig.store.GetPlayer(sess.GetID()); exists {
		t.Error("Idle sweep should remove the player")
	}
	if rig.sessions.Count() != 0 {
		t.Errorf("Idle sweep should drop the session, %d left", rig.sessions.Count())
	}
}
