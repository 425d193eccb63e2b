package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

// DefaultTokenTTL 令牌有效期
const DefaultTokenTTL = 24 * time.Hour

// TokenManager 签发与校验 HS256 令牌，sub 为玩家ID
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager 创建令牌管理器
func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
}

// SetClock 替换时钟，测试使用
func (m *TokenManager) SetClock(now func() time.Time) {
	m.now = now
}

// Issue 为玩家签发令牌
func (m *TokenManager) Issue(playerID int64) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(playerID, 10),
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", xerrors.Wrap(err, xerrors.CodeInternalError, "签发令牌失败")
	}
	return signed, nil
}

// Parse 校验令牌并返回玩家ID
func (m *TokenManager) Parse(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return 0, xerrors.Wrap(err, xerrors.CodeInvalidToken, "Invalid or expired token")
	}
	playerID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || playerID <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidToken, "Invalid token subject")
	}
	return playerID, nil
}

type playerIDKey struct{}

// WithPlayerID 把已认证的玩家ID放入上下文
func WithPlayerID(ctx context.Context, playerID int64) context.Context {
	return context.WithValue(ctx, playerIDKey{}, playerID)
}

// PlayerIDFrom 读取已认证的玩家ID
func PlayerIDFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(playerIDKey{}).(int64)
	return id, ok
}

// bearerToken 从 Authorization 头或 token 查询参数读取令牌
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if after, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(after)
		}
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware 校验令牌，失败返回 401
func AuthMiddleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				writeError(w, xerrors.New(xerrors.CodeInvalidToken, "Missing token"))
				return
			}
			playerID, err := tokens.Parse(raw)
			if err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPlayerID(r.Context(), playerID)))
		})
	}
}
