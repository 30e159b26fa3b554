package main

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	MsgTypePlayerSpawn  = 101
	MsgTypePlayerMove   = 102
	MsgTypeChatMessage  = 103
	MsgTypeVehicleSpawn = 104
	MsgTypeStartJob     = 106
)

// send formats and sends a message to the WebSocket server.
func send(c *websocket.Conn, msgID uint16, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func main() {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: "localhost:3000", Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			if len(message) < 4 {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			msgID := binary.BigEndian.Uint16(message[0:2])
			data := message[4:]
			log.Printf("<- RECV (ID: %d): %s", msgID, string(data))
		}
	}()

	// Spawn immediately so the session is identified
	log.Println("Spawning player...")
	spawn := map[string]interface{}{
		"name":     fmt.Sprintf("TestPlayer%d", rand.Intn(1000)),
		"position": map[string]float64{"x": -1037.74, "y": -2738.04, "z": 20.17},
		"health":   100,
		"armor":    0,
		"money":    1000,
		"level":    1,
		"job":      "Unemployed",
	}
	if err := send(c, MsgTypePlayerSpawn, spawn); err != nil {
		log.Println("Write error:", err)
		return
	}

	log.Println("Client started. Commands: move | chat <text> | car | job <name>")

	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		default:
			text, _ := reader.ReadString('\n')
			text = strings.TrimSpace(text)

			var err error
			switch {
			case text == "move":
				err = send(c, MsgTypePlayerMove, map[string]interface{}{
					"position": map[string]float64{
						"x": rand.Float64() * 100,
						"y": rand.Float64() * 100,
						"z": 20,
					},
				})
			case strings.HasPrefix(text, "chat "):
				err = send(c, MsgTypeChatMessage, map[string]string{
					"message": strings.TrimPrefix(text, "chat "),
				})
			case text == "car":
				err = send(c, MsgTypeVehicleSpawn, map[string]interface{}{
					"id":       fmt.Sprintf("veh_%d", rand.Intn(10000)),
					"model":    "Adder",
					"position": map[string]float64{"x": 1, "y": 1, "z": 1},
				})
			case strings.HasPrefix(text, "job "):
				err = send(c, MsgTypeStartJob, map[string]interface{}{
					"job":    strings.TrimPrefix(text, "job "),
					"salary": 150,
				})
			case text == "":
				continue
			default:
				log.Printf("Unknown command: %q", text)
				continue
			}

			if err != nil {
				log.Println("Write error:", err)
				return
			}
			log.Printf("-> SENT: %s", text)
		}
	}
}
