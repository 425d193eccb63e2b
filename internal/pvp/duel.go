// duel.go

package pvp

import (
	"context"
	"fmt"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/metrics"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

// Notifier 玩家通知通道
type Notifier interface {
	SendToPlayer(playerID int64, ev models.Event)
}

// Leaderboard 排行榜写入，*models.PvPLeaderboard 满足该接口
type Leaderboard interface {
	UpdateStats(ctx context.Context, stats *models.PvPStats) error
}

type nopNotifier struct{}

func (nopNotifier) SendToPlayer(int64, models.Event) {}

// DuelService 决斗生命周期
type DuelService struct {
	store    store.Store
	registry *Registry
	notifier Notifier
	board    Leaderboard
	metrics  *metrics.CombatMetrics
	logger   log.Logger
	cfg      config.PvPConfig
	now      func() time.Time
}

// NewDuelService 创建决斗服务，并把结算与重建能力挂到 registry 上
// board 可以为 nil
func NewDuelService(st store.Store, registry *Registry, notifier Notifier, board Leaderboard,
	m *metrics.CombatMetrics, logger log.Logger, cfg config.PvPConfig) *DuelService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	s := &DuelService{
		store:    st,
		registry: registry,
		notifier: notifier,
		board:    board,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
	if registry != nil {
		registry.attach(s, s)
	}
	return s
}

// SetClock 替换时钟，测试使用
func (s *DuelService) SetClock(now func() time.Time) {
	s.now = now
}

// ChallengeReceived 挑战通知
type ChallengeReceived struct {
	DuelID         int64     `json:"duel_id"`
	ChallengerID   int64     `json:"challenger_id"`
	ChallengerName string    `json:"challenger_name"`
	GoldStake      int       `json:"gold_stake"`
	Message        string    `json:"message,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// ChallengeResponse 应战结果通知
type ChallengeResponse struct {
	DuelID       int64  `json:"duel_id"`
	DefenderID   int64  `json:"defender_id"`
	DefenderName string `json:"defender_name"`
	Accepted     bool   `json:"accepted"`
	Penalty      int    `json:"penalty"`
}

// ChallengeCancelled 取消通知
type ChallengeCancelled struct {
	DuelID         int64  `json:"duel_id"`
	ChallengerName string `json:"challenger_name"`
}

// BattleCreated 开战通知
type BattleCreated struct {
	BattleID string                `json:"battle_id"`
	DuelID   int64                 `json:"duel_id"`
	Opponent models.CombatSnapshot `json:"opponent"`
}

// DuelCompleted 结算通知
type DuelCompleted struct {
	DuelID     int64  `json:"duel_id"`
	WinnerID   *int64 `json:"winner_id"`
	GoldStake  int    `json:"gold_stake"`
	GoldReward int    `json:"gold_reward"`
}

// RespondResult 应战结果
type RespondResult struct {
	Duel     *models.Duel `json:"duel"`
	Accepted bool         `json:"accepted"`
	// Penalty 实际扣除的拒绝罚金，应战方金币不足时为0
	Penalty int `json:"penalty"`
}

// StartResult 开战结果
type StartResult struct {
	BattleID string                `json:"battle_id"`
	DuelID   int64                 `json:"duel_id"`
	Player1  models.CombatSnapshot `json:"player1"`
	Player2  models.CombatSnapshot `json:"player2"`
}

func lockDuel(ctx context.Context, tx store.Tx, duelID int64) (*models.Duel, error) {
	duel, err := tx.LockDuel(ctx, duelID)
	if store.IsNotFound(err) {
		return nil, xerrors.NewNotFoundError("duel", duelID)
	}
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "查询决斗失败")
	}
	return duel, nil
}

// lockPair 按ID升序锁定两名玩家，返回顺序与入参一致
func lockPair(ctx context.Context, tx store.Tx, a, b int64) (*models.Player, *models.Player, error) {
	first, second := a, b
	if first > second {
		first, second = second, first
	}
	locked := make(map[int64]*models.Player, 2)
	for _, id := range []int64{first, second} {
		p, err := tx.LockPlayer(ctx, id)
		if store.IsNotFound(err) {
			return nil, nil, xerrors.NewNotFoundError("player", id)
		}
		if err != nil {
			return nil, nil, xerrors.Wrap(err, xerrors.CodeInternalError, "查询玩家失败")
		}
		locked[id] = p
	}
	return locked[a], locked[b], nil
}

func wrapStorage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return xerrors.Wrap(err, xerrors.CodeInternalError, msg)
}

// expire 把已过期的待响应挑战标记为 EXPIRED
func (s *DuelService) expire(ctx context.Context, tx store.Tx, duel *models.Duel) (bool, error) {
	if !duel.IsExpired(s.now()) {
		return false, nil
	}
	duel.Status = models.DuelExpired
	if err := tx.UpdateDuel(ctx, duel); err != nil {
		return false, wrapStorage(err, "更新决斗失败")
	}
	s.logger.Debug("挑战已过期", "duel_id", duel.ID)
	return true, nil
}

// Challenge 发起挑战
func (s *DuelService) Challenge(ctx context.Context, challengerID, defenderID int64, stake int, message string) (*models.Duel, error) {
	if challengerID == defenderID {
		return nil, xerrors.New(xerrors.CodeInvalidParams, "Cannot challenge yourself")
	}
	if stake < s.cfg.MinStake {
		return nil, xerrors.Newf(xerrors.CodeInvalidParams, "Gold stake must be at least %d", s.cfg.MinStake)
	}

	var (
		duel           *models.Duel
		challengerName string
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		challenger, defender, err := lockPair(ctx, tx, challengerID, defenderID)
		if err != nil {
			return err
		}
		if challenger.Gold < int64(stake) {
			return xerrors.Newf(xerrors.CodeInsufficientGold, "Insufficient gold. You have %d, need %d",
				challenger.Gold, stake)
		}
		if defender.Gold < int64(stake) {
			return xerrors.New(xerrors.CodeInsufficientGold, "Opponent has insufficient gold for this stake")
		}

		existing, err := tx.FindActiveDuelBetween(ctx, challengerID, defenderID)
		switch {
		case store.IsNotFound(err):
		case err != nil:
			return wrapStorage(err, "查询决斗失败")
		default:
			expired, err := s.expire(ctx, tx, existing)
			if err != nil {
				return err
			}
			if !expired {
				return xerrors.New(xerrors.CodeDuelConflict,
					"An active challenge already exists between you and this player").
					WithMetadata("duel_id", existing.ID)
			}
		}

		now := s.now()
		duel = &models.Duel{
			ChallengerID: challengerID,
			DefenderID:   defenderID,
			GoldStake:    stake,
			Status:       models.DuelPending,
			Message:      message,
			CreatedAt:    now,
			ExpiresAt:    now.Add(s.cfg.ChallengeTTL()),
		}
		challengerName = challenger.Username
		return wrapStorage(tx.CreateDuel(ctx, duel), "创建决斗失败")
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDuel(string(models.DuelPending))
	s.logger.Info("发起挑战", "duel_id", duel.ID, "challenger_id", challengerID,
		"defender_id", defenderID, "gold_stake", stake)
	s.notifier.SendToPlayer(defenderID, models.NewEvent(models.EventChallengeReceived, ChallengeReceived{
		DuelID:         duel.ID,
		ChallengerID:   challengerID,
		ChallengerName: challengerName,
		GoldStake:      stake,
		Message:        message,
		ExpiresAt:      duel.ExpiresAt,
	}))
	return duel, nil
}

// Respond 应战方接受或拒绝挑战
func (s *DuelService) Respond(ctx context.Context, duelID, playerID int64, accept bool) (*RespondResult, error) {
	var (
		res          *RespondResult
		expired      bool
		defenderName string
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		duel, err := lockDuel(ctx, tx, duelID)
		if err != nil {
			return err
		}
		if duel.DefenderID != playerID {
			return xerrors.New(xerrors.CodeNotParticipant, "You are not the defender of this duel")
		}
		if duel.Status != models.DuelPending {
			return xerrors.Newf(xerrors.CodeDuelStateInvalid, "Duel is not pending (current status: %s)", duel.Status)
		}
		// 过期需要落库，因此先提交再返回错误
		if expired, err = s.expire(ctx, tx, duel); err != nil || expired {
			return err
		}

		challenger, defender, err := lockPair(ctx, tx, duel.ChallengerID, duel.DefenderID)
		if err != nil {
			return err
		}
		defenderName = defender.Username
		res = &RespondResult{Duel: duel, Accepted: accept}

		if accept {
			if challenger.Gold < int64(duel.GoldStake) {
				return xerrors.New(xerrors.CodeInsufficientGold, "Challenger no longer has sufficient gold")
			}
			if defender.Gold < int64(duel.GoldStake) {
				return xerrors.New(xerrors.CodeInsufficientGold, "You no longer have sufficient gold")
			}
			now := s.now()
			duel.Status = models.DuelAccepted
			duel.AcceptedAt = &now
			return wrapStorage(tx.UpdateDuel(ctx, duel), "更新决斗失败")
		}

		duel.Status = models.DuelDeclined
		if err := tx.UpdateDuel(ctx, duel); err != nil {
			return wrapStorage(err, "更新决斗失败")
		}
		penalty := duel.GoldStake * s.cfg.DeclinePenaltyPercent / 100
		if penalty <= 0 || defender.Gold < int64(penalty) {
			return nil
		}
		defender.Gold -= int64(penalty)
		challenger.Gold += int64(penalty)
		if err := tx.UpdatePlayer(ctx, defender); err != nil {
			return wrapStorage(err, "更新玩家失败")
		}
		if err := tx.UpdatePlayer(ctx, challenger); err != nil {
			return wrapStorage(err, "更新玩家失败")
		}
		res.Penalty = penalty
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.metrics.RecordDuel(string(models.DuelExpired))
		return nil, xerrors.New(xerrors.CodeDuelExpired, "Challenge has expired")
	}

	s.metrics.RecordDuel(string(res.Duel.Status))
	s.logger.Info("挑战已响应", "duel_id", duelID, "player_id", playerID,
		"accepted", accept, "penalty", res.Penalty)
	s.notifier.SendToPlayer(res.Duel.ChallengerID, models.NewEvent(models.EventChallengeResponse, ChallengeResponse{
		DuelID:       duelID,
		DefenderID:   playerID,
		DefenderName: defenderName,
		Accepted:     accept,
		Penalty:      res.Penalty,
	}))
	return res, nil
}

// Cancel 挑战方撤回挑战
func (s *DuelService) Cancel(ctx context.Context, duelID, playerID int64) (*models.Duel, error) {
	var (
		duel           *models.Duel
		expired        bool
		challengerName string
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if duel, err = lockDuel(ctx, tx, duelID); err != nil {
			return err
		}
		if duel.ChallengerID != playerID {
			return xerrors.New(xerrors.CodeNotParticipant, "You are not the challenger of this duel")
		}
		if duel.Status != models.DuelPending {
			return xerrors.Newf(xerrors.CodeDuelStateInvalid, "Cannot cancel duel (current status: %s)", duel.Status)
		}
		if expired, err = s.expire(ctx, tx, duel); err != nil || expired {
			return err
		}
		challenger, err := tx.GetPlayer(ctx, playerID)
		if err == nil {
			challengerName = challenger.Username
		}
		duel.Status = models.DuelCancelled
		return wrapStorage(tx.UpdateDuel(ctx, duel), "更新决斗失败")
	})
	if err != nil {
		return nil, err
	}
	if expired {
		s.metrics.RecordDuel(string(models.DuelExpired))
		return nil, xerrors.New(xerrors.CodeDuelExpired, "Challenge has expired")
	}

	s.metrics.RecordDuel(string(models.DuelCancelled))
	s.logger.Info("挑战已取消", "duel_id", duelID, "player_id", playerID)
	s.notifier.SendToPlayer(duel.DefenderID, models.NewEvent(models.EventChallengeCancelled, ChallengeCancelled{
		DuelID:         duelID,
		ChallengerName: challengerName,
	}))
	return duel, nil
}

// Get 查询决斗，访问时检查过期
func (s *DuelService) Get(ctx context.Context, duelID int64) (*models.Duel, error) {
	var duel *models.Duel
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if duel, err = lockDuel(ctx, tx, duelID); err != nil {
			return err
		}
		_, err = s.expire(ctx, tx, duel)
		return err
	})
	if err != nil {
		return nil, err
	}
	return duel, nil
}

// List 按分类列出玩家的决斗，已过期的待响应挑战落库后归入历史
func (s *DuelService) List(ctx context.Context, playerID int64, box store.DuelBox, limit int) ([]*models.Duel, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*models.Duel
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		duels, err := tx.ListDuels(ctx, playerID, box, limit)
		if err != nil {
			return wrapStorage(err, "查询决斗列表失败")
		}
		out = make([]*models.Duel, 0, len(duels))
		for _, d := range duels {
			expired, err := s.expire(ctx, tx, d)
			if err != nil {
				return err
			}
			if expired && box != store.DuelBoxHistory {
				continue
			}
			out = append(out, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BattleID 生成实时战斗ID
func BattleID(duelID int64, at time.Time) string {
	return fmt.Sprintf("pvp_%d_%d", duelID, at.Unix())
}

// StartBattle 为已接受的决斗开启实时战斗
func (s *DuelService) StartBattle(ctx context.Context, duelID, playerID int64) (*StartResult, error) {
	var setup BattleSetup
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		duel, err := lockDuel(ctx, tx, duelID)
		if err != nil {
			return err
		}
		if !duel.Involves(playerID) {
			return xerrors.New(xerrors.CodeNotParticipant, "You are not a participant in this duel")
		}
		if duel.Status != models.DuelAccepted {
			return xerrors.Newf(xerrors.CodeDuelStateInvalid, "Duel is not ready for battle (status: %s)", duel.Status)
		}
		challenger, defender, err := lockPair(ctx, tx, duel.ChallengerID, duel.DefenderID)
		if err != nil {
			return err
		}

		now := s.now()
		duel.Status = models.DuelInProgress
		duel.StartedAt = &now
		duel.BattleID = BattleID(duel.ID, now)
		if err := tx.UpdateDuel(ctx, duel); err != nil {
			return wrapStorage(err, "更新决斗失败")
		}
		setup = BattleSetup{
			BattleID:  duel.BattleID,
			DuelID:    duel.ID,
			Player1:   challenger.Snapshot(),
			Player2:   defender.Snapshot(),
			GoldStake: duel.GoldStake,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.registry.Create(setup); err != nil {
		return nil, err
	}
	s.metrics.RecordDuel(string(models.DuelInProgress))
	s.logger.Info("实时战斗已创建", "duel_id", duelID, "battle_id", setup.BattleID)

	s.notifier.SendToPlayer(setup.Player1.PlayerID, models.NewEvent(models.EventBattleCreated, BattleCreated{
		BattleID: setup.BattleID, DuelID: duelID, Opponent: setup.Player2,
	}))
	s.notifier.SendToPlayer(setup.Player2.PlayerID, models.NewEvent(models.EventBattleCreated, BattleCreated{
		BattleID: setup.BattleID, DuelID: duelID, Opponent: setup.Player1,
	}))
	return &StartResult{
		BattleID: setup.BattleID,
		DuelID:   duelID,
		Player1:  setup.Player1,
		Player2:  setup.Player2,
	}, nil
}

// Complete 结算决斗；winnerID 为 nil 表示平局，不转移金币
func (s *DuelService) Complete(ctx context.Context, duelID int64, winnerID *int64) (*models.Duel, error) {
	var (
		duel    *models.Duel
		updated []*models.PvPStats
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if duel, err = lockDuel(ctx, tx, duelID); err != nil {
			return err
		}
		if duel.Status != models.DuelInProgress && duel.Status != models.DuelAccepted {
			return xerrors.Newf(xerrors.CodeDuelStateInvalid, "Duel cannot be completed (current status: %s)", duel.Status)
		}
		if winnerID != nil && !duel.Involves(*winnerID) {
			return xerrors.New(xerrors.CodeInvalidParams, "Winner must be a duel participant")
		}
		challenger, defender, err := lockPair(ctx, tx, duel.ChallengerID, duel.DefenderID)
		if err != nil {
			return err
		}
		challengerStats, err := tx.GetPvPStats(ctx, duel.ChallengerID)
		if err != nil {
			return wrapStorage(err, "查询PvP统计失败")
		}
		defenderStats, err := tx.GetPvPStats(ctx, duel.DefenderID)
		if err != nil {
			return wrapStorage(err, "查询PvP统计失败")
		}

		now := s.now()
		duel.Status = models.DuelCompleted
		duel.CompletedAt = &now
		duel.WinnerID = winnerID

		if winnerID == nil {
			challengerStats.RecordDraw()
			defenderStats.RecordDraw()
		} else {
			winner, loser := challenger, defender
			winnerStats, loserStats := challengerStats, defenderStats
			if *winnerID == duel.DefenderID {
				winner, loser = defender, challenger
				winnerStats, loserStats = defenderStats, challengerStats
			}
			loser.Gold -= int64(duel.GoldStake)
			winner.Gold += int64(duel.GoldStake) * 2
			winnerStats.RecordWin(duel.GoldStake)
			loserStats.RecordLoss(duel.GoldStake)
			if err := tx.UpdatePlayer(ctx, winner); err != nil {
				return wrapStorage(err, "更新玩家失败")
			}
			if err := tx.UpdatePlayer(ctx, loser); err != nil {
				return wrapStorage(err, "更新玩家失败")
			}
		}

		if err := tx.UpdateDuel(ctx, duel); err != nil {
			return wrapStorage(err, "更新决斗失败")
		}
		for _, st := range []*models.PvPStats{challengerStats, defenderStats} {
			if err := tx.SavePvPStats(ctx, st); err != nil {
				return wrapStorage(err, "保存PvP统计失败")
			}
		}
		updated = []*models.PvPStats{challengerStats, defenderStats}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordDuel(string(models.DuelCompleted))
	s.logger.Info("决斗已结算", "duel_id", duelID, "winner_id", winnerID, "gold_stake", duel.GoldStake)

	if s.board != nil {
		for _, st := range updated {
			if err := s.board.UpdateStats(ctx, st); err != nil {
				s.logger.Warn("更新排行榜失败", "player_id", st.PlayerID, "error", err)
			}
		}
	}

	reward := 0
	if winnerID != nil {
		reward = duel.GoldStake * 2
	}
	ev := models.NewEvent(models.EventDuelCompleted, DuelCompleted{
		DuelID: duelID, WinnerID: winnerID, GoldStake: duel.GoldStake, GoldReward: reward,
	})
	s.notifier.SendToPlayer(duel.ChallengerID, ev)
	s.notifier.SendToPlayer(duel.DefenderID, ev)
	return duel, nil
}

// Settle 实时战斗结算入口
func (s *DuelService) Settle(ctx context.Context, duelID int64, winnerID *int64) error {
	_, err := s.Complete(ctx, duelID, winnerID)
	return err
}

// RecoverBattle 根据持久化的决斗记录重建实时战斗参数，血量与回合从头开始
func (s *DuelService) RecoverBattle(ctx context.Context, battleID string) (BattleSetup, error) {
	var setup BattleSetup
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		duel, err := tx.GetDuelByBattleID(ctx, battleID)
		if store.IsNotFound(err) {
			return xerrors.NewNotFoundError("battle", battleID)
		}
		if err != nil {
			return wrapStorage(err, "查询决斗失败")
		}
		if duel.Status != models.DuelAccepted && duel.Status != models.DuelInProgress {
			return xerrors.Newf(xerrors.CodeBattleStateInvalid, "Battle is no longer active (status: %s)", duel.Status)
		}
		challenger, err := tx.GetPlayer(ctx, duel.ChallengerID)
		if err != nil {
			return wrapStorage(err, "查询玩家失败")
		}
		defender, err := tx.GetPlayer(ctx, duel.DefenderID)
		if err != nil {
			return wrapStorage(err, "查询玩家失败")
		}
		setup = BattleSetup{
			BattleID:  battleID,
			DuelID:    duel.ID,
			Player1:   challenger.Snapshot(),
			Player2:   defender.Snapshot(),
			GoldStake: duel.GoldStake,
			Recovered: true,
		}
		return nil
	})
	if err != nil {
		return BattleSetup{}, err
	}
	s.logger.Warn("实时战斗已从决斗记录重建，进行中的血量已重置", "battle_id", battleID, "duel_id", setup.DuelID)
	return setup, nil
}

// Stats 查询玩家PvP统计
func (s *DuelService) Stats(ctx context.Context, playerID int64) (*models.PvPStats, error) {
	var stats *models.PvPStats
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		stats, err = tx.GetPvPStats(ctx, playerID)
		return wrapStorage(err, "查询PvP统计失败")
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
