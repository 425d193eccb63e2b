package gateway

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

// RateCounter 统计客户端在当前窗口内的请求数
type RateCounter interface {
	// Allow 记录一次请求，超过 limit 时返回 false
	Allow(ctx context.Context, client string, limit int, window time.Duration) (bool, error)
}

// MemoryCounter 进程内滑动窗口计数
type MemoryCounter struct {
	mu      sync.Mutex
	clients map[string][]time.Time
	now     func() time.Time
}

// NewMemoryCounter 创建内存计数器
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{clients: make(map[string][]time.Time), now: time.Now}
}

// Allow 实现 RateCounter
func (c *MemoryCounter) Allow(_ context.Context, client string, limit int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-window)
	valid := c.clients[client][:0]
	for _, t := range c.clients[client] {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) >= limit {
		c.clients[client] = valid
		return false, nil
	}
	c.clients[client] = append(valid, now)
	return true, nil
}

// Sweep 删除窗口内没有请求的客户端
func (c *MemoryCounter) Sweep(window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.now().Add(-window)
	for client, times := range c.clients {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(c.clients, client)
		}
	}
}

// RedisCounter 基于 INCR 的固定窗口计数，多实例共享
type RedisCounter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisCounter 创建Redis计数器
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client, prefix: "ratelimit:", now: time.Now}
}

// Allow 实现 RateCounter
func (c *RedisCounter) Allow(ctx context.Context, client string, limit int, window time.Duration) (bool, error) {
	slot := c.now().UnixNano() / int64(window)
	key := fmt.Sprintf("%s%s:%d", c.prefix, client, slot)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	return incr.Val() <= int64(limit), nil
}

// RateLimiter 请求频率限制器
type RateLimiter struct {
	counter           RateCounter
	RequestsPerMinute int
	logger            log.Logger
}

// NewRateLimiter 创建新的频率限制器
func NewRateLimiter(counter RateCounter, requestsPerMinute int, logger log.Logger) *RateLimiter {
	return &RateLimiter{counter: counter, RequestsPerMinute: requestsPerMinute, logger: logger}
}

// Middleware 频率限制中间件；计数失败时放行
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.RequestsPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		clientIP := getClientIP(r)
		ok, err := rl.counter.Allow(r.Context(), clientIP, rl.RequestsPerMinute, time.Minute)
		if err != nil {
			rl.logger.Warn("频率计数失败", "client_ip", clientIP, "error", err)
		}
		if !ok {
			writeError(w, xerrors.Newf(xerrors.CodeRateLimited,
				"Too many requests, at most %d per minute", rl.RequestsPerMinute))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// getClientIP 获取客户端IP
func getClientIP(r *http.Request) string {
	// 检查X-Forwarded-For头，取第一个地址
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// SecurityMiddleware 安全头中间件
func SecurityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Server", "PixelStorm")
		next.ServeHTTP(w, r)
	})
}

// CORSMiddleware CORS中间件
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "86400")

		// 处理预检请求
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware 请求日志，附带请求ID
func LoggingMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", requestID)

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)

			args := []any{
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status", recorder.statusCode,
				"duration", time.Since(start),
			}
			if recorder.statusCode >= http.StatusInternalServerError {
				logger.Warn("请求失败", args...)
				return
			}
			logger.Info("请求完成", args...)
		})
	}
}

// responseRecorder 响应记录器
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader 记录状态码
func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}
