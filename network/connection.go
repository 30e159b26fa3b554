// network/connection.go
package network

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 每个连接的发送队列长度。队列满说明客户端已经跟不上广播，直接断开。
const sendQueueSize = 256

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendQueueFull    = errors.New("send queue full")
)

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

type Connection interface {
	Send(msgID uint16, data []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetReadDeadline(deadline time.Time)
	ReadPacket() (*Packet, error)
}

// WSConnection 封装 websocket 连接。写操作经过带缓冲的发送队列，
// 由独立的 writePump 协程执行，Send 永远不会因为慢客户端而阻塞。
type WSConnection struct {
	conn      *websocket.Conn
	sendQueue chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	c := &WSConnection{
		conn:      conn,
		sendQueue: make(chan []byte, sendQueueSize),
		closed:    make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send 封包并入队: 2字节消息ID + 2字节数据长度 + 数据
func (c *WSConnection) Send(msgID uint16, data []byte) error {
	packet := make([]byte, 4+len(data))
	binary.BigEndian.PutUint16(packet[0:2], msgID)
	binary.BigEndian.PutUint16(packet[2:4], uint16(len(data)))
	copy(packet[4:], data)

	select {
	case <-c.closed:
		return ErrConnectionClosed
	case c.sendQueue <- packet:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (c *WSConnection) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case packet := <-c.sendQueue:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, packet); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *WSConnection) ReadPacket() (*Packet, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if len(data) < 4 {
		return nil, io.ErrShortBuffer
	}

	msgID := binary.BigEndian.Uint16(data[0:2])
	length := binary.BigEndian.Uint16(data[2:4])

	if len(data) < int(4+length) {
		return nil, io.ErrShortBuffer
	}

	return &Packet{
		MsgID:  msgID,
		Length: length,
		Data:   data[4 : 4+length],
	}, nil
}

func (c *WSConnection) SetReadDeadline(deadline time.Time) {
	c.conn.SetReadDeadline(deadline)
}

func (c *WSConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
	return nil
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}
