// websocket.go

package game

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
)

const (
	// 写入超时时间
	writeWait = 10 * time.Second

	// 读取超时时间
	pongWait = 60 * time.Second

	// 发送 ping 的间隔时间
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512 * 1024 // 512KB

	// 发送队列长度
	sendBuffer = 256
)

// 自定义关闭码
const (
	CloseInvalidToken   = 4001
	ClosePlayerNotFound = 4003
	CloseBattleNotFound = 4004
	CloseNotParticipant = 4005
)

var (
	// ErrConnectionClosed 连接已关闭
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendQueueFull 发送队列已满
	ErrSendQueueFull = errors.New("send queue full")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 允许所有跨域请求
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message 客户端消息
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PlayerConnection 玩家连接
type PlayerConnection struct {
	ID       string
	PlayerID int64
	Send     chan []byte

	mu     sync.Mutex
	closed bool
}

// NewPlayerConnection 创建玩家连接
func NewPlayerConnection(playerID int64) *PlayerConnection {
	return &PlayerConnection{
		ID:       uuid.New().String(),
		PlayerID: playerID,
		Send:     make(chan []byte, sendBuffer),
	}
}

// Deliver 序列化并放入发送队列，不阻塞
func (c *PlayerConnection) Deliver(ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 关闭发送通道，可重复调用
func (c *PlayerConnection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Closed 连接是否已关闭
func (c *PlayerConnection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readPump 从WebSocket读取数据，返回时连接已不可读
func readPump(conn *websocket.Conn, onMessage func(data []byte)) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				return err
			}
			return nil
		}
		onMessage(message)
	}
}

// writePump 向WebSocket写入数据，Send 关闭后发送关闭帧并退出
func writePump(conn *websocket.Conn, player *PlayerConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-player.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 添加队列中的其他消息
			n := len(player.Send)
			for i := 0; i < n; i++ {
				next, ok := <-player.Send
				if !ok {
					break
				}
				w.Write([]byte("\n"))
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeWithCode 发送带关闭码的关闭帧后断开
func closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}

// parseMessage 解析客户端消息
func parseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type == "" {
		return msg, errors.New("missing message type")
	}
	return msg, nil
}
