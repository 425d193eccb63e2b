// battle.go

package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pve"
)

// PvEService PvE战斗会话
type PvEService interface {
	ListBattles(ctx context.Context, filter pve.ListFilter) ([]*models.Battle, error)
	GetBattleState(ctx context.Context, battleID int64) (*models.BattleState, error)
	Join(ctx context.Context, battleID, playerID int64) (*pve.JoinResult, error)
	Attack(ctx context.Context, battleID, playerID, enemyID int64, attackType models.AttackType) (*pve.AttackResult, error)
	Resurrect(ctx context.Context, battleID, playerID int64, useInstant bool) (*pve.ResurrectResult, error)
	ClaimLoot(ctx context.Context, battleID, playerID int64) (*pve.LootResult, error)
	CreateBattle(ctx context.Context, spec pve.BattleSpec) (*models.BattleState, error)
	CreateBossRaid(ctx context.Context, spec pve.BossRaidSpec) (*models.BattleState, error)
	KillParticipant(ctx context.Context, battleID, playerID int64) (*models.Participant, error)
}

// BattleHandler PvE战斗接口
type BattleHandler struct {
	service PvEService
}

// NewBattleHandler 创建PvE战斗处理器
func NewBattleHandler(service PvEService) *BattleHandler {
	return &BattleHandler{service: service}
}

// RegisterHandlers 注册HTTP处理器
func (h *BattleHandler) RegisterHandlers(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("GET /pve/battles", auth(http.HandlerFunc(h.handleList)))
	mux.Handle("POST /pve/battles", auth(http.HandlerFunc(h.handleCreateBattle)))
	mux.Handle("POST /pve/raids", auth(http.HandlerFunc(h.handleCreateRaid)))
	mux.Handle("GET /pve/battles/{id}", auth(http.HandlerFunc(h.handleState)))
	mux.Handle("POST /pve/battles/{id}/join", auth(http.HandlerFunc(h.handleJoin)))
	mux.Handle("POST /pve/battles/{id}/attack", auth(http.HandlerFunc(h.handleAttack)))
	mux.Handle("POST /pve/battles/{id}/resurrect", auth(http.HandlerFunc(h.handleResurrect)))
	mux.Handle("POST /pve/battles/{id}/loot", auth(http.HandlerFunc(h.handleClaimLoot)))
}

// RegisterDevHandlers 注册调试接口，仅在调试模式下使用
func (h *BattleHandler) RegisterDevHandlers(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("POST /dev/pve/battles/{id}/kill", auth(http.HandlerFunc(h.handleKill)))
}

// CreateBattleRequest 创建波次战斗
type CreateBattleRequest struct {
	Difficulty    string `json:"difficulty" validate:"required,oneof=easy medium hard epic legendary"`
	WaveNumber    int    `json:"wave" validate:"required,min=1,max=100"`
	RequiredLevel int    `json:"required_level" validate:"min=0,max=100"`
	MaxPlayers    int    `json:"max_players" validate:"min=0,max=50"`
}

// CreateRaidRequest 创建Boss团战
type CreateRaidRequest struct {
	BossName        string `json:"boss_name" validate:"max=64"`
	Difficulty      string `json:"difficulty" validate:"required,oneof=easy medium hard epic legendary"`
	RequiredLevel   int    `json:"required_level" validate:"min=0,max=100"`
	MinPlayers      int    `json:"min_players" validate:"min=0,max=50"`
	MaxPlayers      int    `json:"max_players" validate:"min=0,max=50"`
	PhaseThresholds []int  `json:"phase_thresholds" validate:"max=10,dive,min=1,max=99"`
}

// AttackRequest 攻击
type AttackRequest struct {
	EnemyID    int64  `json:"enemy_id" validate:"required,gt=0"`
	AttackType string `json:"attack_type" validate:"required,oneof=quick normal power critical ultimate"`
}

// ResurrectRequest 复活
type ResurrectRequest struct {
	UseInstant bool `json:"use_instant"`
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.Newf(xerrors.CodeInvalidParams, "Invalid %s", name)
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, xerrors.Newf(xerrors.CodeInvalidParams, "Invalid %s", name)
	}
	return v, nil
}

// playerFrom 读取认证中间件写入的玩家ID
func playerFrom(r *http.Request) int64 {
	id, _ := PlayerIDFrom(r.Context())
	return id
}

func (h *BattleHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := pve.ListFilter{
		Kind:       models.BattleKind(q.Get("kind")),
		Difficulty: models.Difficulty(q.Get("difficulty")),
	}
	if filter.Difficulty != "" && !filter.Difficulty.Valid() {
		writeError(w, xerrors.Newf(xerrors.CodeInvalidParams, "Unknown difficulty: %s", filter.Difficulty))
		return
	}
	var err error
	if filter.Limit, err = queryInt(r, "limit", 20); err != nil {
		writeError(w, err)
		return
	}
	if filter.PlayerLevel, err = queryInt(r, "level", 0); err != nil {
		writeError(w, err)
		return
	}

	battles, err := h.service.ListBattles(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if battles == nil {
		battles = []*models.Battle{}
	}
	writeSuccess(w, "查询成功", battles)
}

func (h *BattleHandler) handleCreateBattle(w http.ResponseWriter, r *http.Request) {
	var req CreateBattleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, err := h.service.CreateBattle(r.Context(), pve.BattleSpec{
		Difficulty:    models.Difficulty(req.Difficulty),
		WaveNumber:    req.WaveNumber,
		RequiredLevel: req.RequiredLevel,
		MaxPlayers:    req.MaxPlayers,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "创建成功", state)
}

func (h *BattleHandler) handleCreateRaid(w http.ResponseWriter, r *http.Request) {
	var req CreateRaidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, err := h.service.CreateBossRaid(r.Context(), pve.BossRaidSpec{
		BossName:        req.BossName,
		Difficulty:      models.Difficulty(req.Difficulty),
		RequiredLevel:   req.RequiredLevel,
		MinPlayers:      req.MinPlayers,
		MaxPlayers:      req.MaxPlayers,
		PhaseThresholds: req.PhaseThresholds,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "创建成功", state)
}

func (h *BattleHandler) handleState(w http.ResponseWriter, r *http.Request) {
	battleID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := h.service.GetBattleState(r.Context(), battleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "查询成功", state)
}

func (h *BattleHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	battleID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.Join(r.Context(), battleID, playerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, res.Message, res)
}

func (h *BattleHandler) handleAttack(w http.ResponseWriter, r *http.Request) {
	battleID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req AttackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.Attack(r.Context(), battleID, playerFrom(r), req.EnemyID, models.AttackType(req.AttackType))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "攻击成功", res)
}

func (h *BattleHandler) handleResurrect(w http.ResponseWriter, r *http.Request) {
	battleID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req ResurrectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	res, err := h.service.Resurrect(r.Context(), battleID, playerFrom(r), req.UseInstant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "复活成功", res)
}

func (h *BattleHandler) handleClaimLoot(w http.ResponseWriter, r *http.Request) {
	battleID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.ClaimLoot(r.Context(), battleID, playerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "领取成功", res)
}

// handleKill 让调用者在Boss团战中阵亡，用于调试复活流程
func (h *BattleHandler) handleKill(w http.ResponseWriter, r *http.Request) {
	battleID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	participant, err := h.service.KillParticipant(r.Context(), battleID, playerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "已阵亡", participant)
}
