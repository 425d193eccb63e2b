// duel.go

package gateway

import (
	"context"
	"net/http"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pvp"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

// DuelService PvP决斗生命周期
type DuelService interface {
	Challenge(ctx context.Context, challengerID, defenderID int64, stake int, message string) (*models.Duel, error)
	Respond(ctx context.Context, duelID, playerID int64, accept bool) (*pvp.RespondResult, error)
	Cancel(ctx context.Context, duelID, playerID int64) (*models.Duel, error)
	Get(ctx context.Context, duelID int64) (*models.Duel, error)
	List(ctx context.Context, playerID int64, box store.DuelBox, limit int) ([]*models.Duel, error)
	StartBattle(ctx context.Context, duelID, playerID int64) (*pvp.StartResult, error)
	Stats(ctx context.Context, playerID int64) (*models.PvPStats, error)
}

// DuelHandler PvP决斗接口
type DuelHandler struct {
	service DuelService
}

// NewDuelHandler 创建决斗处理器
func NewDuelHandler(service DuelService) *DuelHandler {
	return &DuelHandler{service: service}
}

// RegisterHandlers 注册HTTP处理器
func (h *DuelHandler) RegisterHandlers(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("POST /pvp/challenges", auth(http.HandlerFunc(h.handleChallenge)))
	mux.Handle("GET /pvp/duels", auth(http.HandlerFunc(h.handleList)))
	mux.Handle("GET /pvp/duels/{id}", auth(http.HandlerFunc(h.handleGet)))
	mux.Handle("POST /pvp/duels/{id}/respond", auth(http.HandlerFunc(h.handleRespond)))
	mux.Handle("POST /pvp/duels/{id}/cancel", auth(http.HandlerFunc(h.handleCancel)))
	mux.Handle("POST /pvp/duels/{id}/start", auth(http.HandlerFunc(h.handleStart)))
	mux.Handle("GET /pvp/stats", auth(http.HandlerFunc(h.handleMyStats)))
	mux.Handle("GET /pvp/stats/{playerId}", auth(http.HandlerFunc(h.handlePlayerStats)))
}

// ChallengeRequest 发起挑战
type ChallengeRequest struct {
	DefenderID int64  `json:"defender_id" validate:"required,gt=0"`
	GoldStake  int    `json:"gold_stake" validate:"required,gt=0"`
	Message    string `json:"message" validate:"max=200"`
}

// RespondRequest 回应挑战
type RespondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

func (h *DuelHandler) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	duel, err := h.service.Challenge(r.Context(), playerFrom(r), req.DefenderID, req.GoldStake, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "挑战已发出", duel)
}

func (h *DuelHandler) handleList(w http.ResponseWriter, r *http.Request) {
	box := store.DuelBox(r.URL.Query().Get("box"))
	switch box {
	case "":
		box = store.DuelBoxActive
	case store.DuelBoxReceived, store.DuelBoxSent, store.DuelBoxActive, store.DuelBoxHistory:
	default:
		writeError(w, xerrors.Newf(xerrors.CodeInvalidParams, "Unknown duel box: %s", box))
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	duels, err := h.service.List(r.Context(), playerFrom(r), box, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if duels == nil {
		duels = []*models.Duel{}
	}
	writeSuccess(w, "查询成功", duels)
}

func (h *DuelHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	duelID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	duel, err := h.service.Get(r.Context(), duelID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !duel.Involves(playerFrom(r)) {
		writeError(w, xerrors.New(xerrors.CodeNotParticipant, "You are not a participant in this duel"))
		return
	}
	writeSuccess(w, "查询成功", duel)
}

func (h *DuelHandler) handleRespond(w http.ResponseWriter, r *http.Request) {
	duelID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req RespondRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.Respond(r.Context(), duelID, playerFrom(r), *req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}
	message := "已拒绝挑战"
	if res.Accepted {
		message = "已接受挑战"
	}
	writeSuccess(w, message, res)
}

func (h *DuelHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	duelID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	duel, err := h.service.Cancel(r.Context(), duelID, playerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "挑战已取消", duel)
}

func (h *DuelHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	duelID, err := pathID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.service.StartBattle(r.Context(), duelID, playerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "战斗已创建", res)
}

func (h *DuelHandler) handleMyStats(w http.ResponseWriter, r *http.Request) {
	h.writeStats(w, r, playerFrom(r))
}

func (h *DuelHandler) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	playerID, err := pathID(r, "playerId")
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeStats(w, r, playerID)
}

func (h *DuelHandler) writeStats(w http.ResponseWriter, r *http.Request, playerID int64) {
	stats, err := h.service.Stats(r.Context(), playerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, "查询成功", statsView{PvPStats: stats, WinRate: stats.WinRate()})
}

// statsView 附带胜率的统计
type statsView struct {
	*models.PvPStats
	WinRate float64 `json:"win_rate"`
}
