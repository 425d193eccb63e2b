package game

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pvp"
)

// actionPayload 客户端 action 消息
type actionPayload struct {
	Action string `json:"action"`
}

// handlePvPConnection PvP实时战斗连接
// 战斗不在内存中时尝试从决斗记录重建
func (s *GameServer) handlePvPConnection(w http.ResponseWriter, r *http.Request) {
	conn, ok := s.upgrade(w, r)
	if !ok {
		return
	}
	playerID, ok := s.authenticate(r.Context(), conn, r)
	if !ok {
		return
	}

	battleID := r.PathValue("battleId")
	engine, err := s.battles.GetOrRecover(r.Context(), battleID)
	if err != nil {
		if !xerrors.Is(err, xerrors.CodeResourceNotFound) && !xerrors.Is(err, xerrors.CodeBattleStateInvalid) {
			s.logger.Error("查询实时战斗失败", err, "battle_id", battleID)
		}
		closeWithCode(conn, CloseBattleNotFound, errorMessage(err))
		return
	}
	if !engine.Involves(playerID) {
		closeWithCode(conn, CloseNotParticipant, "You are not a participant in this battle")
		return
	}

	logger := s.logger.With("battle_id", battleID, "player_id", playerID)
	pc := NewPlayerConnection(playerID)
	s.metrics.IncConnections()
	defer s.metrics.DecConnections()

	go writePump(conn, pc)
	if err := engine.Attach(playerID, pc); err != nil {
		closeWithCode(conn, CloseNotParticipant, errorMessage(err))
		pc.Close()
		return
	}
	logger.Info("玩家进入实时战斗")

	err = readPump(conn, func(data []byte) { s.handleBattleMessage(engine, pc, data) })
	if err != nil {
		logger.Warn("WebSocket错误", "error", err)
	}
	engine.Detach(playerID, pc)
	pc.Close()
	logger.Info("玩家离开实时战斗")
}

// handleBattleMessage 处理实时战斗消息，错误只回复给发送方
func (s *GameServer) handleBattleMessage(engine *pvp.Engine, pc *PlayerConnection, data []byte) {
	msg, err := parseMessage(data)
	if err != nil {
		s.reply(pc, models.ErrorEvent("Invalid message format"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch msg.Type {
	case "ready":
		err = engine.MarkReady(pc.PlayerID)
	case "action":
		var p actionPayload
		if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &p) != nil {
			s.reply(pc, models.ErrorEvent("Invalid action payload"))
			return
		}
		var action pvp.Action
		action, err = pvp.ParseAction(p.Action)
		if err == nil {
			err = engine.SubmitAction(ctx, pc.PlayerID, action)
		}
	case "forfeit":
		err = engine.Forfeit(ctx, pc.PlayerID)
	case "ping":
		s.reply(pc, models.NewEvent(models.EventPong, pvp.Header{
			BattleID:  engine.ID(),
			Timestamp: time.Now().UTC(),
		}))
	default:
		s.reply(pc, models.ErrorEvent("Unknown message type: "+msg.Type))
		return
	}

	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeInternalError {
			s.logger.Error("处理实时战斗消息失败", err, "battle_id", engine.ID(), "type", msg.Type)
		}
		s.reply(pc, models.ErrorEvent(errorMessage(err)))
	}
}
