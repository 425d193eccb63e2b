// stats.go

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

// LeaderboardReader PvP排行榜读取
type LeaderboardReader interface {
	Top(ctx context.Context, board models.LeaderboardType, limit int) ([]models.LeaderboardEntry, error)
	Rank(ctx context.Context, board models.LeaderboardType, playerID int64) (int, error)
}

// leaderboardTTL 排行榜响应缓存时间
const leaderboardTTL = 30 * time.Second

// StatsHandler 排行榜接口
type StatsHandler struct {
	board  LeaderboardReader
	cache  *ResponseCache
	logger log.Logger
}

// NewStatsHandler 创建排行榜处理器；board 为空时排行榜不可用
func NewStatsHandler(board LeaderboardReader, logger log.Logger) *StatsHandler {
	return &StatsHandler{
		board:  board,
		cache:  NewResponseCache(leaderboardTTL, 256),
		logger: logger,
	}
}

// RegisterHandlers 注册HTTP处理器
func (h *StatsHandler) RegisterHandlers(mux *http.ServeMux, auth func(http.Handler) http.Handler) {
	mux.Handle("GET /pvp/leaderboard", h.cache.Middleware(http.HandlerFunc(h.handleLeaderboard)))
	mux.Handle("GET /pvp/leaderboard/rank", auth(http.HandlerFunc(h.handleRank)))
}

// RankView 玩家在各榜单的名次，-1 表示未上榜
type RankView struct {
	PlayerID int64                          `json:"player_id"`
	Ranks    map[models.LeaderboardType]int `json:"ranks"`
}

func parseBoard(raw string) (models.LeaderboardType, error) {
	switch board := models.LeaderboardType(raw); board {
	case "":
		return models.LeaderboardWins, nil
	case models.LeaderboardWins, models.LeaderboardGold, models.LeaderboardStreak:
		return board, nil
	default:
		return "", xerrors.Newf(xerrors.CodeInvalidParams, "Unknown leaderboard type: %s", raw)
	}
}

func (h *StatsHandler) available(w http.ResponseWriter) bool {
	if h.board == nil {
		writeError(w, xerrors.New(xerrors.CodeResourceNotFound, "Leaderboard is not enabled"))
		return false
	}
	return true
}

func (h *StatsHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	board, err := parseBoard(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, err)
		return
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := h.board.Top(r.Context(), board, limit)
	if err != nil {
		h.logger.Error("读取排行榜失败", err, "board", board)
		writeError(w, xerrors.Wrap(err, xerrors.CodeInternalError, "读取排行榜失败"))
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	writeSuccess(w, "查询成功", entries)
}

func (h *StatsHandler) handleRank(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	playerID := playerFrom(r)
	view := RankView{PlayerID: playerID, Ranks: make(map[models.LeaderboardType]int)}
	for _, board := range []models.LeaderboardType{models.LeaderboardWins, models.LeaderboardGold, models.LeaderboardStreak} {
		rank, err := h.board.Rank(r.Context(), board, playerID)
		if err != nil {
			h.logger.Error("读取排名失败", err, "board", board, "player_id", playerID)
			writeError(w, xerrors.Wrap(err, xerrors.CodeInternalError, "读取排名失败"))
			return
		}
		view.Ranks[board] = rank
	}
	writeSuccess(w, "查询成功", view)
}
