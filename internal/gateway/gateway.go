package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
)

// Deps 网关依赖
type Deps struct {
	PvE         PvEService
	Duels       DuelService
	Leaderboard LeaderboardReader
	Tokens      *TokenManager
	// RateCounter 为空时使用进程内计数
	RateCounter RateCounter
	Logger      log.Logger
}

// Gateway HTTP API网关
type Gateway struct {
	config     *config.Config
	deps       Deps
	logger     log.Logger
	httpServer *http.Server

	mu        sync.Mutex
	isRunning bool
}

// NewGateway 创建新的网关
func NewGateway(cfg *config.Config, deps Deps) *Gateway {
	if deps.RateCounter == nil {
		deps.RateCounter = NewMemoryCounter()
	}
	return &Gateway{
		config: cfg,
		deps:   deps,
		logger: deps.Logger.With("component", "gateway"),
	}
}

// Start 启动网关
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.isRunning {
		return fmt.Errorf("网关已经在运行")
	}

	g.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", g.config.Server.GatewayPort),
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		g.logger.Info("API网关启动", "port", g.config.Server.GatewayPort)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("HTTP服务器错误", err)
		}
	}()

	g.isRunning = true
	return nil
}

// Stop 停止网关
func (g *Gateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isRunning {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP服务器关闭错误: %w", err)
	}

	g.isRunning = false
	g.logger.Info("API网关已停止")
	return nil
}

// Handler 创建HTTP处理器
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	auth := AuthMiddleware(g.deps.Tokens)

	battles := NewBattleHandler(g.deps.PvE)
	battles.RegisterHandlers(mux, auth)
	NewDuelHandler(g.deps.Duels).RegisterHandlers(mux, auth)
	NewStatsHandler(g.deps.Leaderboard, g.logger).RegisterHandlers(mux, auth)

	// 开发环境直接签发令牌
	if g.config.Server.Debug {
		mux.HandleFunc("POST /auth/dev-token", g.handleDevToken)
		battles.RegisterDevHandlers(mux, auth)
	}

	// 健康检查端点
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return g.applyMiddleware(mux)
}

// applyMiddleware 应用中间件
func (g *Gateway) applyMiddleware(handler http.Handler) http.Handler {
	rateLimiter := NewRateLimiter(g.deps.RateCounter, g.config.Server.RateLimitPerMinute, g.logger)

	// 按顺序应用中间件（从内到外）
	handler = rateLimiter.Middleware(handler)
	handler = CORSMiddleware(handler)
	handler = SecurityMiddleware(handler)
	handler = LoggingMiddleware(g.logger)(handler)

	return handler
}

// DevTokenRequest 开发令牌请求
type DevTokenRequest struct {
	PlayerID int64 `json:"player_id" validate:"required,gt=0"`
}

func (g *Gateway) handleDevToken(w http.ResponseWriter, r *http.Request) {
	var req DevTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := g.deps.Tokens.Issue(req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	g.logger.Warn("签发开发令牌", "player_id", req.PlayerID)
	writeSuccess(w, "签发成功", map[string]any{"token": token, "player_id": req.PlayerID})
}
