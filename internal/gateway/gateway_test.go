package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pve"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pvp"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Code    int             `json:"code"`
}

type fakeLeaderboard struct {
	calls   int
	entries []models.LeaderboardEntry
}

func (f *fakeLeaderboard) Top(_ context.Context, _ models.LeaderboardType, limit int) ([]models.LeaderboardEntry, error) {
	f.calls++
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func (f *fakeLeaderboard) Rank(_ context.Context, board models.LeaderboardType, playerID int64) (int, error) {
	if board == models.LeaderboardWins && playerID == 1 {
		return 1, nil
	}
	return -1, nil
}

type gatewayFixture struct {
	handler http.Handler
	tokens  *TokenManager
	st      *store.MemoryStore
	board   *fakeLeaderboard
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Server.Debug = true
	return cfg
}

func newGatewayFixture(t *testing.T, mutate func(*config.Config)) *gatewayFixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	st := store.NewMemoryStore()
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		for _, p := range []*models.Player{
			{ID: 1, Username: "alice", Level: 5, Gold: 500, Stamina: 100, StaminaMax: 100, BaseHP: 100, Attack: 30, Defense: 10},
			{ID: 2, Username: "bob", Level: 5, Gold: 1000, Stamina: 100, StaminaMax: 100, BaseHP: 100, Attack: 25, Defense: 12},
			{ID: 3, Username: "carol", Level: 5, Gold: 1000, Stamina: 100, StaminaMax: 100, BaseHP: 100, Attack: 20, Defense: 10},
		} {
			if err := tx.CreatePlayer(context.Background(), p); err != nil {
				return err
			}
		}
		return nil
	}))

	calc := combat.NewCalculator(combat.NewSource(7), 0)
	registry := pvp.NewRegistry(calc, cfg.PvP, nil, log.NewNop())
	board := &fakeLeaderboard{entries: []models.LeaderboardEntry{
		{PlayerID: 1, Score: 12, Rank: 1},
		{PlayerID: 2, Score: 9, Rank: 2},
	}}
	tokens := NewTokenManager(cfg.Auth)
	gw := NewGateway(&cfg, Deps{
		PvE:         pve.NewService(st, calc, nil, nil, nil, log.NewNop(), cfg.Combat),
		Duels:       pvp.NewDuelService(st, registry, nil, nil, nil, log.NewNop(), cfg.PvP),
		Leaderboard: board,
		Tokens:      tokens,
		Logger:      log.NewNop(),
	})
	return &gatewayFixture{handler: gw.Handler(), tokens: tokens, st: st, board: board}
}

func (f *gatewayFixture) token(t *testing.T, playerID int64) string {
	t.Helper()
	token, err := f.tokens.Issue(playerID)
	require.NoError(t, err)
	return token
}

func (f *gatewayFixture) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestTokenManager(t *testing.T) {
	cfg := testConfig().Auth
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewTokenManager(cfg)
	m.SetClock(func() time.Time { return now })

	token, err := m.Issue(42)
	require.NoError(t, err)
	id, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	other := NewTokenManager(config.AuthConfig{JWTSecret: "other", Issuer: cfg.Issuer})
	other.SetClock(func() time.Time { return now })
	forged, err := other.Issue(42)
	require.NoError(t, err)

	wrongIssuer := NewTokenManager(config.AuthConfig{JWTSecret: cfg.JWTSecret, Issuer: "someone-else"})
	wrongIssuer.SetClock(func() time.Time { return now })
	foreign, err := wrongIssuer.Issue(42)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		clock time.Time
	}{
		{"签名密钥不同", forged, now},
		{"签发方不同", foreign, now},
		{"令牌过期", token, now.Add(DefaultTokenTTL + time.Minute)},
		{"格式错误", "not-a-token", now},
		{"空令牌", "", now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := tt.clock
			m.SetClock(func() time.Time { return clock })
			_, err := m.Parse(tt.token)
			assert.True(t, xerrors.Is(err, xerrors.CodeInvalidToken), "got %v", err)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	f := newGatewayFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/pve/battles", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, int(xerrors.CodeInvalidToken), env.Code)

	rec, _ = f.do(t, http.MethodGet, "/pve/battles", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/pve/battles", f.token(t, 1), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestPvEEndpoints(t *testing.T) {
	f := newGatewayFixture(t, nil)
	token := f.token(t, 1)

	rec, env := f.do(t, http.MethodPost, "/pve/battles", token, CreateBattleRequest{Difficulty: "easy", WaveNumber: 1, RequiredLevel: 1})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var state models.BattleState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	require.NotEmpty(t, state.Enemies)
	battleID := state.Battle.ID
	enemyID := state.Enemies[0].ID

	rec, env = f.do(t, http.MethodGet, "/pve/battles", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var battles []models.Battle
	require.NoError(t, json.Unmarshal(env.Data, &battles))
	assert.Len(t, battles, 1)

	base := fmt.Sprintf("/pve/battles/%d", battleID)
	rec, env = f.do(t, http.MethodPost, base+"/attack", token, AttackRequest{EnemyID: enemyID, AttackType: "quick"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "无人加入时战斗未开始")
	assert.Equal(t, int(xerrors.CodeBattleStateInvalid), env.Code)

	rec, env = f.do(t, http.MethodPost, base+"/join", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	rec, env = f.do(t, http.MethodPost, base+"/attack", f.token(t, 3), AttackRequest{EnemyID: enemyID, AttackType: "quick"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "未加入不能攻击")
	assert.Equal(t, int(xerrors.CodeNotParticipant), env.Code)

	rec, env = f.do(t, http.MethodPost, base+"/attack", token, AttackRequest{EnemyID: enemyID, AttackType: "quick"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var attack pve.AttackResult
	require.NoError(t, json.Unmarshal(env.Data, &attack))
	assert.Positive(t, attack.Damage)

	rec, _ = f.do(t, http.MethodGet, base, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = f.do(t, http.MethodPost, base+"/loot", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "战斗未结束不能领奖")
	assert.Equal(t, int(xerrors.CodeBattleStateInvalid), env.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"攻击方式非法", http.MethodPost, base + "/attack", map[string]any{"enemy_id": enemyID, "attack_type": "kick"}, http.StatusBadRequest},
		{"缺少敌人ID", http.MethodPost, base + "/attack", map[string]any{"attack_type": "quick"}, http.StatusBadRequest},
		{"未知字段", http.MethodPost, base + "/attack", map[string]any{"enemy_id": enemyID, "attack_type": "quick", "x": 1}, http.StatusBadRequest},
		{"战斗不存在", http.MethodGet, "/pve/battles/999", nil, http.StatusNotFound},
		{"战斗ID非法", http.MethodGet, "/pve/battles/abc", nil, http.StatusBadRequest},
		{"难度非法", http.MethodPost, "/pve/battles", map[string]any{"difficulty": "nightmare", "wave": 1}, http.StatusBadRequest},
		{"列表难度非法", http.MethodGet, "/pve/battles?difficulty=nightmare", nil, http.StatusBadRequest},
		{"阈值非降序", http.MethodPost, "/pve/raids", map[string]any{"difficulty": "hard", "phase_thresholds": []int{50, 75}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.status, rec.Code, env.Message)
			assert.False(t, env.Success)
		})
	}
}

func TestDuelEndpoints(t *testing.T) {
	f := newGatewayFixture(t, nil)
	alice, bob, carol := f.token(t, 1), f.token(t, 2), f.token(t, 3)

	rec, env := f.do(t, http.MethodPost, "/pvp/challenges", alice, ChallengeRequest{DefenderID: 2, GoldStake: 100, Message: "fight me"})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var duel models.Duel
	require.NoError(t, json.Unmarshal(env.Data, &duel))
	assert.Equal(t, models.DuelPending, duel.Status)

	rec, env = f.do(t, http.MethodPost, "/pvp/challenges", bob, ChallengeRequest{DefenderID: 1, GoldStake: 50})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, int(xerrors.CodeDuelConflict), env.Code)

	rec, env = f.do(t, http.MethodGet, "/pvp/duels?box=received", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var received []models.Duel
	require.NoError(t, json.Unmarshal(env.Data, &received))
	require.Len(t, received, 1)
	assert.Equal(t, duel.ID, received[0].ID)

	duelPath := fmt.Sprintf("/pvp/duels/%d", duel.ID)
	rec, _ = f.do(t, http.MethodGet, duelPath, carol, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "旁观者不能查看")

	rec, _ = f.do(t, http.MethodPost, duelPath+"/respond", bob, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "必须给出 accept")

	rec, _ = f.do(t, http.MethodPost, duelPath+"/respond", alice, RespondRequest{Accept: ptr(true)})
	assert.Equal(t, http.StatusForbidden, rec.Code, "挑战者不能回应")

	rec, env = f.do(t, http.MethodPost, duelPath+"/respond", bob, RespondRequest{Accept: ptr(true)})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	assert.Equal(t, "已接受挑战", env.Message)

	rec, env = f.do(t, http.MethodPost, duelPath+"/start", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var start pvp.StartResult
	require.NoError(t, json.Unmarshal(env.Data, &start))
	assert.Contains(t, start.BattleID, fmt.Sprintf("pvp_%d_", duel.ID))

	rec, env = f.do(t, http.MethodPost, duelPath+"/cancel", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int(xerrors.CodeDuelStateInvalid), env.Code)

	rec, env = f.do(t, http.MethodGet, "/pvp/stats/2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, float64(0), stats["win_rate"])
	assert.Equal(t, float64(models.DefaultRating), stats["rating"])

	rec, _ = f.do(t, http.MethodGet, "/pvp/duels?box=everything", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLeaderboardCaching(t *testing.T) {
	f := newGatewayFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/pvp/leaderboard?type=wins&limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	var entries []models.LeaderboardEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].PlayerID)

	rec, _ = f.do(t, http.MethodGet, "/pvp/leaderboard?type=wins&limit=1", "", nil)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.Equal(t, 1, f.board.calls)

	req := httptest.NewRequest(http.MethodGet, "/pvp/leaderboard?type=wins&limit=1", nil)
	req.Header.Set("If-None-Match", rec.Header().Get("ETag"))
	cached := httptest.NewRecorder()
	f.handler.ServeHTTP(cached, req)
	assert.Equal(t, http.StatusNotModified, cached.Code)

	rec, _ = f.do(t, http.MethodGet, "/pvp/leaderboard?type=elo", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/pvp/leaderboard?type=elo", "", nil)
	assert.Empty(t, rec.Header().Get("X-Cache"), "错误响应不缓存")

	rec, env = f.do(t, http.MethodGet, "/pvp/leaderboard/rank", f.token(t, 1), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ranks RankView
	require.NoError(t, json.Unmarshal(env.Data, &ranks))
	assert.Equal(t, 1, ranks.Ranks[models.LeaderboardWins])
	assert.Equal(t, -1, ranks.Ranks[models.LeaderboardGold])
}

func TestLeaderboardDisabled(t *testing.T) {
	h := NewStatsHandler(nil, log.NewNop())
	mux := http.NewServeMux()
	h.RegisterHandlers(mux, func(next http.Handler) http.Handler { return next })

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pvp/leaderboard", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	f := newGatewayFixture(t, func(cfg *config.Config) { cfg.Server.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodGet, "/health", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, int(xerrors.CodeRateLimited), env.Code)
}

func TestMemoryCounterSlidingWindow(t *testing.T) {
	c := NewMemoryCounter()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		now = now.Add(10 * time.Second)
	}
	ok, _ := c.Allow(ctx, "1.2.3.4", 3, time.Minute)
	assert.False(t, ok, "窗口内超限")
	ok, _ = c.Allow(ctx, "5.6.7.8", 3, time.Minute)
	assert.True(t, ok, "不同客户端互不影响")

	now = now.Add(35 * time.Second)
	ok, _ = c.Allow(ctx, "1.2.3.4", 3, time.Minute)
	assert.True(t, ok, "最早的请求滑出窗口")

	now = now.Add(2 * time.Minute)
	c.Sweep(time.Minute)
	assert.Empty(t, c.clients)
}

func TestDevToken(t *testing.T) {
	f := newGatewayFixture(t, nil)
	rec, env := f.do(t, http.MethodPost, "/auth/dev-token", "", DevTokenRequest{PlayerID: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	id, err := f.tokens.Parse(out.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	prod := newGatewayFixture(t, func(cfg *config.Config) { cfg.Server.Debug = false })
	rec, _ = prod.do(t, http.MethodPost, "/auth/dev-token", "", DevTokenRequest{PlayerID: 2})
	assert.Equal(t, http.StatusNotFound, rec.Code, "非调试模式不开放")
}

func TestDevKillRoute(t *testing.T) {
	f := newGatewayFixture(t, nil)
	token := f.token(t, 1)

	rec, env := f.do(t, http.MethodPost, "/pve/raids", token, CreateRaidRequest{Difficulty: "hard", RequiredLevel: 1})
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var state models.BattleState
	require.NoError(t, json.Unmarshal(env.Data, &state))
	base := fmt.Sprintf("/pve/battles/%d", state.Battle.ID)
	killPath := fmt.Sprintf("/dev/pve/battles/%d/kill", state.Battle.ID)

	rec, env = f.do(t, http.MethodPost, base+"/join", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)

	rec, env = f.do(t, http.MethodPost, killPath, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, env.Message)
	var participant models.Participant
	require.NoError(t, json.Unmarshal(env.Data, &participant))
	assert.True(t, participant.IsDead)

	rec, env = f.do(t, http.MethodPost, base+"/attack", token, AttackRequest{EnemyID: state.Enemies[0].ID, AttackType: "quick"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int(xerrors.CodePlayerDead), env.Code)

	rec, _ = f.do(t, http.MethodPost, killPath, f.token(t, 3), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "未加入的玩家")

	prod := newGatewayFixture(t, func(cfg *config.Config) { cfg.Server.Debug = false })
	rec, _ = prod.do(t, http.MethodPost, killPath, prod.token(t, 1), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "非调试模式不开放")
}

func ptr[T any](v T) *T { return &v }
