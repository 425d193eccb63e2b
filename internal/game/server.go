package game

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/metrics"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pve"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pvp"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

// TokenVerifier 校验令牌并返回玩家ID
type TokenVerifier interface {
	Parse(token string) (int64, error)
}

// BattleStates 读取PvE战斗快照
type BattleStates interface {
	GetBattleState(ctx context.Context, battleID int64) (*models.BattleState, error)
}

// LiveBattles 查询实时PvP战斗
type LiveBattles interface {
	GetOrRecover(ctx context.Context, battleID string) (*pvp.Engine, error)
}

// Deps 游戏服务器依赖
type Deps struct {
	Hub     *Hub
	Store   store.Store
	Tokens  TokenVerifier
	PvE     BattleStates
	Battles LiveBattles
	Metrics *metrics.CombatMetrics
	Logger  log.Logger
	// MetricsHandler 为空时使用默认注册表
	MetricsHandler http.Handler
}

// GameServer WebSocket 推送服务器
type GameServer struct {
	config     *config.Config
	hub        *Hub
	store      store.Store
	tokens     TokenVerifier
	pve        BattleStates
	battles    LiveBattles
	metrics    *metrics.CombatMetrics
	logger     log.Logger
	metricsH   http.Handler
	httpServer *http.Server

	mu        sync.Mutex
	isRunning bool
}

// NewGameServer 创建游戏服务器
func NewGameServer(cfg *config.Config, deps Deps) *GameServer {
	metricsH := deps.MetricsHandler
	if metricsH == nil {
		metricsH = promhttp.Handler()
	}
	return &GameServer{
		config:   cfg,
		hub:      deps.Hub,
		store:    deps.Store,
		tokens:   deps.Tokens,
		pve:      deps.PvE,
		battles:  deps.Battles,
		metrics:  deps.Metrics,
		logger:   deps.Logger.With("component", "game"),
		metricsH: metricsH,
	}
}

// Hub 连接中心
func (s *GameServer) Hub() *Hub {
	return s.hub
}

// Start 启动游戏服务器
func (s *GameServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("服务器已经在运行")
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Server.GamePort),
		Handler: s.Handler(),
	}

	go func() {
		s.logger.Info("游戏服务器启动", "port", s.config.Server.GamePort)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务器错误", err)
		}
	}()

	s.isRunning = true
	return nil
}

// Stop 停止游戏服务器
func (s *GameServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}

	s.hub.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP服务器关闭错误: %w", err)
	}

	s.isRunning = false
	s.logger.Info("游戏服务器已停止")
	return nil
}

// Handler 创建HTTP处理器
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// 玩家通知
	mux.HandleFunc("GET /ws", s.handleNotifyConnection)
	// PvE战斗房间
	mux.HandleFunc("GET /ws/battle/{id}", s.handleRoomConnection)
	// PvP实时战斗
	mux.HandleFunc("GET /ws/pvp/{battleId}", s.handlePvPConnection)

	mux.Handle("GET /metrics", s.metricsH)

	// 健康检查端点
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}

// authenticate 升级后校验令牌与玩家，失败时以关闭码断开
func (s *GameServer) authenticate(ctx context.Context, conn *websocket.Conn, r *http.Request) (int64, bool) {
	playerID, err := s.tokens.Parse(r.URL.Query().Get("token"))
	if err != nil {
		closeWithCode(conn, CloseInvalidToken, "Invalid token")
		return 0, false
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetPlayer(ctx, playerID)
		return err
	})
	if store.IsNotFound(err) {
		closeWithCode(conn, ClosePlayerNotFound, "Player not found")
		return 0, false
	}
	if err != nil {
		s.logger.Error("查询玩家失败", err, "player_id", playerID)
		closeWithCode(conn, websocket.CloseInternalServerErr, "Internal error")
		return 0, false
	}
	return playerID, true
}

func (s *GameServer) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket升级失败", "error", err, "path", r.URL.Path)
		return nil, false
	}
	return conn, true
}

// handleNotifyConnection 玩家通知连接
func (s *GameServer) handleNotifyConnection(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	playerID, ok := s.authenticate(r.Context(), conn, r)
	if !ok {
		return
	}

	pc := NewPlayerConnection(playerID)
	s.hub.Register(pc)
	s.metrics.IncConnections()
	defer s.metrics.DecConnections()

	go writePump(conn, pc)
	err := readPump(conn, func(data []byte) { s.handlePassiveMessage(pc, data) })
	if err != nil {
		s.logger.Warn("WebSocket错误", "error", err, "player_id", playerID)
	}
	s.hub.Unregister(pc)
}

// handleRoomConnection PvE战斗房间连接，加入后推送完整状态
func (s *GameServer) handleRoomConnection(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	playerID, ok := s.authenticate(r.Context(), conn, r)
	if !ok {
		return
	}

	battleID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		closeWithCode(conn, CloseBattleNotFound, "Battle not found")
		return
	}
	state, err := s.pve.GetBattleState(r.Context(), battleID)
	if err != nil {
		if !xerrors.Is(err, xerrors.CodeResourceNotFound) {
			s.logger.Error("读取战斗状态失败", err, "battle_id", battleID)
		}
		closeWithCode(conn, CloseBattleNotFound, "Battle not found")
		return
	}

	pc := NewPlayerConnection(playerID)
	room := pve.RoomName(battleID)
	s.hub.JoinRoom(room, pc)
	s.metrics.IncConnections()
	defer s.metrics.DecConnections()

	go writePump(conn, pc)
	if err := pc.Deliver(models.NewEvent(models.EventBattleStateFull, state)); err != nil {
		s.logger.Warn("推送战斗状态失败", "battle_id", battleID, "error", err)
	}
	err = readPump(conn, func(data []byte) { s.handlePassiveMessage(pc, data) })
	if err != nil {
		s.logger.Warn("WebSocket错误", "error", err, "player_id", playerID, "battle_id", battleID)
	}
	s.hub.Unregister(pc)
}

// handlePassiveMessage 只读连接只响应心跳
func (s *GameServer) handlePassiveMessage(pc *PlayerConnection, data []byte) {
	msg, err := parseMessage(data)
	if err != nil {
		s.reply(pc, models.ErrorEvent("Invalid message format"))
		return
	}
	switch msg.Type {
	case "ping":
		s.reply(pc, models.NewEvent(models.EventPong, pongPayload{Timestamp: time.Now().UTC()}))
	default:
		s.reply(pc, models.ErrorEvent("Unknown message type: "+msg.Type))
	}
}

type pongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

func (s *GameServer) reply(pc *PlayerConnection, ev models.Event) {
	if err := pc.Deliver(ev); err != nil {
		s.logger.Warn("回复失败", "player_id", pc.PlayerID, "event", ev.Type, "error", err)
	}
}

// errorMessage 客户端可见的错误说明
func errorMessage(err error) string {
	var appErr *xerrors.AppError
	if errors.As(err, &appErr) && appErr.Code != xerrors.CodeInternalError {
		return appErr.Message
	}
	return "Internal error"
}
