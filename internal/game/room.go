package game

import (
	"sync"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
)

// Hub 管理通知连接与PvE战斗房间
// 一个玩家可以同时持有多个连接（多端登录），投递失败的连接被移除
type Hub struct {
	mu      sync.RWMutex
	players map[int64]map[string]*PlayerConnection
	rooms   map[string]map[string]*PlayerConnection
	logger  log.Logger
}

// NewHub 创建连接中心
func NewHub(logger log.Logger) *Hub {
	return &Hub{
		players: make(map[int64]map[string]*PlayerConnection),
		rooms:   make(map[string]map[string]*PlayerConnection),
		logger:  logger,
	}
}

// Register 登记玩家通知连接
func (h *Hub) Register(c *PlayerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.players[c.PlayerID]
	if !ok {
		conns = make(map[string]*PlayerConnection)
		h.players[c.PlayerID] = conns
	}
	conns[c.ID] = c
	h.logger.Info("玩家已连接", "player_id", c.PlayerID, "conn_id", c.ID)
}

// Unregister 移除连接并关闭发送通道
func (h *Hub) Unregister(c *PlayerConnection) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()
	if removed {
		h.logger.Info("玩家已断开连接", "player_id", c.PlayerID, "conn_id", c.ID)
	}
	c.Close()
}

func (h *Hub) removeLocked(c *PlayerConnection) bool {
	removed := false
	if conns, ok := h.players[c.PlayerID]; ok {
		if _, ok := conns[c.ID]; ok {
			delete(conns, c.ID)
			removed = true
		}
		if len(conns) == 0 {
			delete(h.players, c.PlayerID)
		}
	}
	for name, members := range h.rooms {
		if _, ok := members[c.ID]; ok {
			delete(members, c.ID)
			removed = true
		}
		if len(members) == 0 {
			delete(h.rooms, name)
		}
	}
	return removed
}

// JoinRoom 订阅房间
func (h *Hub) JoinRoom(room string, c *PlayerConnection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*PlayerConnection)
		h.rooms[room] = members
	}
	members[c.ID] = c
	h.logger.Debug("加入房间", "room", room, "player_id", c.PlayerID)
}

// SendToPlayer 推送给玩家的所有通知连接
func (h *Hub) SendToPlayer(playerID int64, ev models.Event) {
	h.mu.RLock()
	targets := make([]*PlayerConnection, 0, len(h.players[playerID]))
	for _, c := range h.players[playerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliverAll(targets, ev)
}

// SendToRoom 推送给房间内所有连接
func (h *Hub) SendToRoom(room string, ev models.Event) {
	h.mu.RLock()
	targets := make([]*PlayerConnection, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliverAll(targets, ev)
}

func (h *Hub) deliverAll(targets []*PlayerConnection, ev models.Event) {
	for _, c := range targets {
		if err := c.Deliver(ev); err != nil {
			h.logger.Warn("推送失败，移除连接", "player_id", c.PlayerID, "conn_id", c.ID,
				"event", ev.Type, "error", err)
			h.Unregister(c)
		}
	}
}

// Online 玩家是否有通知连接
func (h *Hub) Online(playerID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.players[playerID]) > 0
}

// RoomSize 房间连接数
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// CloseAll 关闭全部连接
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := make(map[string]*PlayerConnection)
	for _, conns := range h.players {
		for id, c := range conns {
			all[id] = c
		}
	}
	for _, members := range h.rooms {
		for id, c := range members {
			all[id] = c
		}
	}
	h.players = make(map[int64]map[string]*PlayerConnection)
	h.rooms = make(map[string]map[string]*PlayerConnection)
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
}
