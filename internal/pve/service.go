// service.go

package pve

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/metrics"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/progression"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

// Notifier 推送通道，投递失败由实现方自行处理
type Notifier interface {
	SendToRoom(room string, ev models.Event)
	SendToPlayer(playerID int64, ev models.Event)
}

type nopNotifier struct{}

func (nopNotifier) SendToRoom(string, models.Event)  {}
func (nopNotifier) SendToPlayer(int64, models.Event) {}

// RoomName PvE战斗房间名
func RoomName(battleID int64) string {
	return fmt.Sprintf("battle:%d", battleID)
}

// Service PvE战斗会话
type Service struct {
	store    store.Store
	calc     *combat.Calculator
	gen      *Generator
	pool     *PoolManager
	notifier Notifier
	metrics  *metrics.CombatMetrics
	logger   log.Logger
	cfg      config.CombatConfig
	now      func() time.Time
	locks    *battleLocks
}

// NewService 创建PvE服务
func NewService(st store.Store, calc *combat.Calculator, pool *PoolManager, notifier Notifier,
	m *metrics.CombatMetrics, logger log.Logger, cfg config.CombatConfig) *Service {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Service{
		store:    st,
		calc:     calc,
		gen:      NewGenerator(calc),
		pool:     pool,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		locks:    newBattleLocks(),
	}
}

// SetClock 替换时钟，测试使用
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// JoinResult 加入结果
type JoinResult struct {
	Message     string              `json:"message"`
	Rejoined    bool                `json:"rejoined"`
	Participant *models.Participant `json:"participant"`
}

// PhaseTransition Boss阶段变化
type PhaseTransition struct {
	PreviousPhase int     `json:"previous_phase"`
	NewPhase      int     `json:"new_phase"`
	HPPercent     float64 `json:"hp_percent"`
	Description   string  `json:"description"`
}

// AttackResult 攻击结果
type AttackResult struct {
	BattleID         int64             `json:"battle_id"`
	PlayerID         int64             `json:"player_id"`
	EnemyID          int64             `json:"enemy_id"`
	AttackType       models.AttackType `json:"attack_type"`
	Damage           int               `json:"damage"`
	IsCritical       bool              `json:"is_critical"`
	EnemyHPRemaining int               `json:"enemy_hp_remaining"`
	EnemyDefeated    bool              `json:"enemy_defeated"`
	BattleCompleted  bool              `json:"battle_completed"`
	StaminaCost      int               `json:"stamina_cost"`
	StaminaRemaining int               `json:"stamina_remaining"`
	PhaseTransition  *PhaseTransition  `json:"phase_transition,omitempty"`
}

// ResurrectResult 复活结果
type ResurrectResult struct {
	BattleID          int64 `json:"battle_id"`
	PlayerID          int64 `json:"player_id"`
	UsedInstant       bool  `json:"used_instant"`
	GemsSpent         int   `json:"gems_spent"`
	ResurrectionCount int   `json:"resurrection_count"`
}

// LootResult 领奖结果
type LootResult struct {
	BattleID            int64              `json:"battle_id"`
	PlayerID            int64              `json:"player_id"`
	Gold                int                `json:"gold"`
	XP                  int                `json:"xp"`
	Items               []models.LootItem  `json:"items"`
	ContributionPercent float64            `json:"contribution_percent"`
	LevelUp             progression.Result `json:"level_up_info"`
}

// ListFilter 战斗列表筛选
type ListFilter struct {
	Kind       models.BattleKind
	Difficulty models.Difficulty
	// PlayerLevel 大于0时只返回等级满足的战斗
	PlayerLevel int
	Limit       int
}

func lockBattle(ctx context.Context, tx store.Tx, battleID int64) (*models.Battle, error) {
	battle, err := tx.LockBattle(ctx, battleID)
	if store.IsNotFound(err) {
		return nil, xerrors.NewNotFoundError("battle", battleID)
	}
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "查询战斗失败")
	}
	return battle, nil
}

func lockPlayer(ctx context.Context, tx store.Tx, playerID int64) (*models.Player, error) {
	player, err := tx.LockPlayer(ctx, playerID)
	if store.IsNotFound(err) {
		return nil, xerrors.NewNotFoundError("player", playerID)
	}
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.CodeInternalError, "查询玩家失败")
	}
	return player, nil
}

func wrapStorage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return xerrors.Wrap(err, xerrors.CodeInternalError, msg)
}

// Join 加入战斗；已在战斗中的玩家重复加入直接成功
func (s *Service) Join(ctx context.Context, battleID, playerID int64) (*JoinResult, error) {
	var (
		res     *JoinResult
		started bool
	)
	unlock := s.locks.lock(battleID)
	defer unlock()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		battle, err := lockBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		existing, err := tx.LockParticipant(ctx, battleID, playerID)
		if err != nil && !store.IsNotFound(err) {
			return wrapStorage(err, "查询参与者失败")
		}
		player, err := lockPlayer(ctx, tx, playerID)
		if err != nil {
			return err
		}

		switch {
		case battle.Status == models.BattleStatusCompleted:
			return xerrors.New(xerrors.CodeBattleStateInvalid, "Battle is already completed")
		case battle.Status == models.BattleStatusAbandoned:
			return xerrors.New(xerrors.CodeBattleStateInvalid, "Battle has been abandoned")
		case player.Level < battle.RequiredLevel:
			return xerrors.Newf(xerrors.CodeLevelTooLow, "Requires level %d", battle.RequiredLevel)
		case player.Stamina < battle.StaminaCost:
			return xerrors.Newf(xerrors.CodeInsufficientStamina, "Not enough stamina (need %d, have %d)",
				battle.StaminaCost, player.Stamina)
		}

		if existing != nil && existing.IsActive {
			res = &JoinResult{Message: "Rejoined battle successfully", Rejoined: true, Participant: existing}
			return nil
		}

		active, err := tx.CountActiveParticipants(ctx, battleID)
		if err != nil {
			return wrapStorage(err, "统计参与者失败")
		}
		if active >= battle.MaxPlayers {
			return xerrors.New(xerrors.CodeBattleFull, "Battle is full")
		}

		player.Stamina -= battle.StaminaCost
		if err := tx.UpdatePlayer(ctx, player); err != nil {
			return wrapStorage(err, "更新玩家失败")
		}

		// 曾经离开的参与者重新激活，保留原有伤害统计
		participant := existing
		if participant != nil {
			participant.IsActive = true
			err = tx.UpdateParticipant(ctx, participant)
		} else {
			participant = &models.Participant{BattleID: battleID, PlayerID: playerID, IsActive: true, JoinedAt: s.now()}
			err = tx.CreateParticipant(ctx, participant)
		}
		if err != nil {
			return wrapStorage(err, "写入参与者失败")
		}

		if battle.Status == models.BattleStatusWaiting {
			now := s.now()
			battle.Status = models.BattleStatusInProgress
			battle.StartedAt = &now
			if err := tx.UpdateBattle(ctx, battle); err != nil {
				return wrapStorage(err, "更新战斗失败")
			}
			started = true
		}

		res = &JoinResult{Message: "Joined battle successfully", Participant: participant}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !res.Rejoined {
		s.logger.Info("玩家加入战斗", "battle_id", battleID, "player_id", playerID, "started", started)
		s.notifier.SendToRoom(RoomName(battleID), models.NewEvent(models.EventPlayerJoined, map[string]any{
			"battle_id": battleID,
			"player_id": playerID,
		}))
	}
	return res, nil
}

// Attack 玩家攻击敌人
// 加锁顺序 battle -> enemy -> participant -> player，并发击杀最后一个敌人时只有一次完成判定
func (s *Service) Attack(ctx context.Context, battleID, playerID, enemyID int64, attackType models.AttackType) (*AttackResult, error) {
	spec, ok := attackType.Spec()
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidParams, "Unknown attack type: %s", attackType)
	}

	var (
		res        *AttackResult
		battleKind models.BattleKind
		difficulty models.Difficulty
		bossName   string
	)
	unlock := s.locks.lock(battleID)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		battle, err := lockBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		enemy, err := tx.LockEnemy(ctx, battleID, enemyID)
		if store.IsNotFound(err) {
			return xerrors.New(xerrors.CodeResourceNotFound, "Enemy not found")
		}
		if err != nil {
			return wrapStorage(err, "查询敌人失败")
		}
		if enemy.IsDefeated {
			return xerrors.New(xerrors.CodeEnemyDefeated, "Enemy already defeated")
		}
		if battle.Status != models.BattleStatusInProgress {
			return xerrors.New(xerrors.CodeBattleStateInvalid, "Battle not in progress")
		}

		participant, err := tx.LockParticipant(ctx, battleID, playerID)
		if err != nil && !store.IsNotFound(err) {
			return wrapStorage(err, "查询参与者失败")
		}
		if participant == nil || !participant.IsActive {
			return xerrors.New(xerrors.CodeNotParticipant, "Not in this battle")
		}

		now := s.now()
		if battle.IsBossRaid() && participant.IsDead {
			if remaining := participant.CooldownRemaining(now, s.cfg.DeathCooldown()); remaining > 0 {
				secs := int(remaining.Seconds())
				return xerrors.Newf(xerrors.CodePlayerDead,
					"You are dead! Wait %dm %ds or use a resurrection potion", secs/60, secs%60).
					WithMetadata("cooldown_remaining", secs)
			}
		}

		player, err := lockPlayer(ctx, tx, playerID)
		if err != nil {
			return err
		}
		if player.Stamina < spec.StaminaCost {
			return xerrors.Newf(xerrors.CodeInsufficientStamina, "Not enough stamina! Need %d, have %d",
				spec.StaminaCost, player.Stamina).
				WithMetadata("stamina_required", spec.StaminaCost).
				WithMetadata("stamina_current", player.Stamina)
		}
		player.Stamina -= spec.StaminaCost

		critical := s.calc.RollCritical(spec.CritBonus)
		damage := combat.Scale(s.calc.Damage(player.Attack, enemy.Defense, critical), spec.DamageMultiplier)

		defeated := enemy.ApplyDamage(damage, now)
		participant.TotalDamageDealt += int64(damage)
		participant.AttacksCount++

		if err := tx.UpdateEnemy(ctx, enemy); err != nil {
			return wrapStorage(err, "更新敌人失败")
		}
		if err := tx.UpdateParticipant(ctx, participant); err != nil {
			return wrapStorage(err, "更新参与者失败")
		}
		if err := tx.UpdatePlayer(ctx, player); err != nil {
			return wrapStorage(err, "更新玩家失败")
		}

		living, err := tx.CountLivingEnemies(ctx, battleID)
		if err != nil {
			return wrapStorage(err, "统计敌人失败")
		}
		battleChanged := false
		if living == 0 {
			battle.Status = models.BattleStatusCompleted
			battle.CompletedAt = &now
			battleChanged = true
		}

		var transition *PhaseTransition
		if battle.IsBossRaid() && !defeated {
			if transition = CheckPhaseTransition(battle, enemy); transition != nil {
				battleChanged = true
			}
		}
		if battleChanged {
			if err := tx.UpdateBattle(ctx, battle); err != nil {
				return wrapStorage(err, "更新战斗失败")
			}
		}

		battleKind, difficulty, bossName = battle.Kind, battle.Difficulty, enemy.Name
		res = &AttackResult{
			BattleID:         battleID,
			PlayerID:         playerID,
			EnemyID:          enemyID,
			AttackType:       attackType,
			Damage:           damage,
			IsCritical:       critical,
			EnemyHPRemaining: enemy.HPCurrent,
			EnemyDefeated:    defeated,
			BattleCompleted:  living == 0,
			StaminaCost:      spec.StaminaCost,
			StaminaRemaining: player.Stamina,
			PhaseTransition:  transition,
		}
		return nil
	})
	if err != nil {
		unlock()
		return nil, err
	}

	s.metrics.RecordAttack(string(attackType))
	s.logger.Debug("攻击结算", "battle_id", battleID, "player_id", playerID, "enemy_id", enemyID,
		"damage", res.Damage, "critical", res.IsCritical, "defeated", res.EnemyDefeated)

	room := RoomName(battleID)
	s.notifier.SendToRoom(room, models.NewEvent(models.EventAttack, res))
	if t := res.PhaseTransition; t != nil {
		s.metrics.RecordPhaseChange()
		s.logger.Info("Boss进入新阶段", "battle_id", battleID, "boss", bossName,
			"previous_phase", t.PreviousPhase, "new_phase", t.NewPhase)
		s.notifier.SendToRoom(room, models.NewEvent(models.EventBossPhaseChange, t))
	}
	if res.BattleCompleted {
		s.metrics.RecordBattleCompleted(string(battleKind), string(difficulty))
		s.logger.Info("战斗完成", "battle_id", battleID, "kind", battleKind)
		s.notifier.SendToRoom(room, models.NewEvent(models.EventBattleCompleted, map[string]any{
			"battle_id": battleID,
		}))
	}
	unlock()

	if res.BattleCompleted {
		s.onBattleCompleted(ctx, battleID)
	}
	return res, nil
}

func (s *Service) onBattleCompleted(ctx context.Context, battleID int64) {
	if s.pool == nil {
		return
	}
	if _, err := s.pool.EnsurePool(ctx); err != nil {
		s.logger.Error("战斗完成后补充战斗池失败", err, "battle_id", battleID)
	}
}

// CheckPhaseTransition 检查Boss是否进入下一阶段，直接修改 battle.CurrentPhase
// 按阈值顺序只推进第一个符合条件的阶段，一次攻击跨越多个阈值也只前进一档
func CheckPhaseTransition(battle *models.Battle, boss *models.Enemy) *PhaseTransition {
	if !battle.IsBossRaid() {
		return nil
	}
	thresholds := battle.PhaseThresholds
	if len(thresholds) == 0 {
		thresholds = DefaultPhaseThresholds
	}
	hpPercent := boss.HPPercent()
	current := battle.CurrentPhase

	for i, threshold := range thresholds {
		phase := i + 2
		if battle.PhaseCount > 0 && phase > battle.PhaseCount {
			break
		}
		if phase > current && hpPercent <= float64(threshold) {
			battle.CurrentPhase = phase
			return &PhaseTransition{
				PreviousPhase: current,
				NewPhase:      phase,
				HPPercent:     hpPercent,
				Description:   phaseDescription(boss.Name, phase),
			}
		}
	}
	return nil
}

func phaseDescription(name string, phase int) string {
	switch phase {
	case 2:
		return name + " enters Phase 2! The battle intensifies!"
	case 3:
		return name + " enters Phase 3! This is getting dangerous!"
	default:
		return name + " enters the FINAL PHASE! Give it everything!"
	}
}

// KillParticipant 标记Boss团战参与者阵亡；已阵亡时不重复计时
// Boss反击等死亡规则由外部调用，调试模式下网关提供 /dev 入口
func (s *Service) KillParticipant(ctx context.Context, battleID, playerID int64) (*models.Participant, error) {
	var (
		participant *models.Participant
		killed      bool
	)
	unlock := s.locks.lock(battleID)
	defer unlock()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		battle, err := lockBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		if !battle.IsBossRaid() {
			return xerrors.New(xerrors.CodeBattleStateInvalid, "Only boss raid participants can die")
		}
		if battle.Status != models.BattleStatusInProgress {
			return xerrors.New(xerrors.CodeBattleStateInvalid, "Battle not in progress")
		}
		participant, err = tx.LockParticipant(ctx, battleID, playerID)
		if store.IsNotFound(err) {
			return xerrors.New(xerrors.CodeNotParticipant, "Not in this battle")
		}
		if err != nil {
			return wrapStorage(err, "查询参与者失败")
		}
		if participant.IsDead {
			return nil
		}
		now := s.now()
		participant.IsDead = true
		participant.DeathTimestamp = &now
		killed = true
		return wrapStorage(tx.UpdateParticipant(ctx, participant), "更新参与者失败")
	})
	if err != nil {
		return nil, err
	}

	if killed {
		s.logger.Info("参与者阵亡", "battle_id", battleID, "player_id", playerID)
		s.notifier.SendToRoom(RoomName(battleID), models.NewEvent(models.EventPlayerDied, map[string]any{
			"battle_id":          battleID,
			"player_id":          playerID,
			"cooldown_remaining": int(s.cfg.DeathCooldown().Seconds()),
		}))
	}
	return participant, nil
}

// Resurrect 复活阵亡的参与者；useInstant 时消耗宝石立即复活，否则需等待冷却结束
func (s *Service) Resurrect(ctx context.Context, battleID, playerID int64, useInstant bool) (*ResurrectResult, error) {
	var res *ResurrectResult
	unlock := s.locks.lock(battleID)
	defer unlock()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := lockBattle(ctx, tx, battleID); err != nil {
			return err
		}
		participant, err := tx.LockParticipant(ctx, battleID, playerID)
		if store.IsNotFound(err) {
			return xerrors.New(xerrors.CodeNotParticipant, "Not in this battle")
		}
		if err != nil {
			return wrapStorage(err, "查询参与者失败")
		}
		if !participant.IsDead {
			return xerrors.New(xerrors.CodeBattleStateInvalid, "Player is not dead")
		}
		player, err := lockPlayer(ctx, tx, playerID)
		if err != nil {
			return err
		}

		spent := 0
		if useInstant {
			cost := int64(s.cfg.InstantResurrectGems)
			if player.Gems < cost {
				return xerrors.Newf(xerrors.CodeInsufficientGems, "Not enough gems (need %d, have %d)", cost, player.Gems)
			}
			player.Gems -= cost
			spent = int(cost)
			if err := tx.UpdatePlayer(ctx, player); err != nil {
				return wrapStorage(err, "更新玩家失败")
			}
		} else if remaining := participant.CooldownRemaining(s.now(), s.cfg.DeathCooldown()); remaining > 0 {
			secs := int(remaining.Seconds())
			return xerrors.Newf(xerrors.CodeCooldownActive, "Must wait %dm %ds to resurrect naturally", secs/60, secs%60).
				WithMetadata("cooldown_remaining", secs)
		}

		participant.IsDead = false
		participant.DeathTimestamp = nil
		participant.ResurrectionCount++
		if err := tx.UpdateParticipant(ctx, participant); err != nil {
			return wrapStorage(err, "更新参与者失败")
		}

		res = &ResurrectResult{
			BattleID:          battleID,
			PlayerID:          playerID,
			UsedInstant:       useInstant,
			GemsSpent:         spent,
			ResurrectionCount: participant.ResurrectionCount,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("参与者复活", "battle_id", battleID, "player_id", playerID, "instant", useInstant)
	s.notifier.SendToRoom(RoomName(battleID), models.NewEvent(models.EventPlayerResurrect, res))
	return res, nil
}

// ClaimLoot 领取战斗奖励，每名参与者只能领取一次
func (s *Service) ClaimLoot(ctx context.Context, battleID, playerID int64) (*LootResult, error) {
	var res *LootResult
	unlock := s.locks.lock(battleID)
	defer unlock()
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		battle, err := lockBattle(ctx, tx, battleID)
		if err != nil {
			return err
		}
		if battle.Status != models.BattleStatusCompleted {
			return xerrors.New(xerrors.CodeBattleStateInvalid, "Battle not completed")
		}
		participant, err := tx.LockParticipant(ctx, battleID, playerID)
		if store.IsNotFound(err) {
			return xerrors.New(xerrors.CodeNotParticipant, "Not in this battle")
		}
		if err != nil {
			return wrapStorage(err, "查询参与者失败")
		}
		if participant.HasClaimedLoot {
			return xerrors.New(xerrors.CodeAlreadyClaimed, "Already claimed loot")
		}

		all, err := tx.ListParticipants(ctx, battleID)
		if err != nil {
			return wrapStorage(err, "查询参与者失败")
		}
		contribution := ContributionPercent(participant, all)

		gold, xp := battle.GoldReward, battle.XPReward
		if contribution > 50 {
			gold = int(float64(gold) * 1.2)
			xp = int(float64(xp) * 1.2)
		}

		player, err := lockPlayer(ctx, tx, playerID)
		if err != nil {
			return err
		}
		player.Gold += int64(gold)
		levelUp := progression.AwardXP(player, xp, fmt.Sprintf("battle_%d", battleID))

		items := []models.LootItem{}
		if s.calc.Chance(DropChance(battle.Difficulty)) {
			items = append(items, GenerateItem(s.calc, battle))
			if err := tx.AddItems(ctx, playerID, items); err != nil {
				return wrapStorage(err, "写入战利品失败")
			}
		}
		if err := tx.UpdatePlayer(ctx, player); err != nil {
			return wrapStorage(err, "更新玩家失败")
		}

		rounded := math.Round(contribution*100) / 100
		participant.HasClaimedLoot = true
		participant.RewardsSnapshot = &models.Rewards{
			Gold:                gold,
			XP:                  xp,
			Items:               items,
			ContributionPercent: rounded,
			LeveledUp:           levelUp.LeveledUp,
			NewLevel:            levelUp.NewLevel,
		}
		if err := tx.UpdateParticipant(ctx, participant); err != nil {
			return wrapStorage(err, "更新参与者失败")
		}

		res = &LootResult{
			BattleID:            battleID,
			PlayerID:            playerID,
			Gold:                gold,
			XP:                  xp,
			Items:               items,
			ContributionPercent: rounded,
			LevelUp:             levelUp,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rarity := ""
	if len(res.Items) > 0 {
		rarity = string(res.Items[0].Rarity)
	}
	s.metrics.RecordLootClaim(rarity)
	s.logger.Info("领取战斗奖励", "battle_id", battleID, "player_id", playerID,
		"gold", res.Gold, "xp", res.XP, "items", len(res.Items), "leveled_up", res.LevelUp.LeveledUp)
	s.notifier.SendToRoom(RoomName(battleID), models.NewEvent(models.EventLootClaimed, res))
	return res, nil
}

// ContributionPercent 参与者伤害占比（百分比）；总伤害为0时平均分配
func ContributionPercent(p *models.Participant, all []*models.Participant) float64 {
	var total int64
	for _, other := range all {
		total += other.TotalDamageDealt
	}
	if total > 0 {
		return float64(p.TotalDamageDealt) / float64(total) * 100
	}
	if len(all) == 0 {
		return 100
	}
	return 100 / float64(len(all))
}

// GetBattleState 读取战斗、敌人与参与者
func (s *Service) GetBattleState(ctx context.Context, battleID int64) (*models.BattleState, error) {
	var state *models.BattleState
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		battle, err := tx.GetBattle(ctx, battleID)
		if store.IsNotFound(err) {
			return xerrors.NewNotFoundError("battle", battleID)
		}
		if err != nil {
			return wrapStorage(err, "查询战斗失败")
		}
		enemies, err := tx.ListEnemies(ctx, battleID)
		if err != nil {
			return wrapStorage(err, "查询敌人失败")
		}
		participants, err := tx.ListParticipants(ctx, battleID)
		if err != nil {
			return wrapStorage(err, "查询参与者失败")
		}
		state = &models.BattleState{Battle: battle, Enemies: enemies, Participants: participants}
		return nil
	})
	return state, err
}

// ListBattles 列出可加入的战斗，读取前先补充战斗池
func (s *Service) ListBattles(ctx context.Context, filter ListFilter) ([]*models.Battle, error) {
	if s.pool != nil {
		if _, err := s.pool.EnsurePool(ctx); err != nil {
			return nil, err
		}
	}

	f := store.BattleFilter{
		Statuses:    []models.BattleStatus{models.BattleStatusWaiting, models.BattleStatusInProgress},
		Difficulty:  filter.Difficulty,
		NewestFirst: true,
	}
	if filter.Kind != "" {
		f.Kinds = []models.BattleKind{filter.Kind}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var out []*models.Battle
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		battles, err := tx.ListBattles(ctx, f)
		if err != nil {
			return wrapStorage(err, "查询战斗列表失败")
		}
		for _, b := range battles {
			if filter.PlayerLevel > 0 && b.RequiredLevel > filter.PlayerLevel {
				continue
			}
			out = append(out, b)
			if len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// CreateBattle 创建普通波次战斗
func (s *Service) CreateBattle(ctx context.Context, spec BattleSpec) (*models.BattleState, error) {
	if !spec.Difficulty.Valid() {
		return nil, xerrors.Newf(xerrors.CodeInvalidParams, "Unknown difficulty: %s", spec.Difficulty)
	}
	battle, enemies := s.gen.StandardBattle(spec)
	return s.persist(ctx, battle, enemies)
}

// CreateBossRaid 创建Boss团战
func (s *Service) CreateBossRaid(ctx context.Context, spec BossRaidSpec) (*models.BattleState, error) {
	if !spec.Difficulty.Valid() {
		return nil, xerrors.Newf(xerrors.CodeInvalidParams, "Unknown difficulty: %s", spec.Difficulty)
	}
	if spec.BossName == "" {
		spec.BossName = BossNames[s.calc.Intn(len(BossNames))]
	}
	for i := 1; i < len(spec.PhaseThresholds); i++ {
		if spec.PhaseThresholds[i] >= spec.PhaseThresholds[i-1] {
			return nil, xerrors.New(xerrors.CodeInvalidParams, "Phase thresholds must be descending")
		}
	}
	battle, boss := s.gen.BossRaid(spec)
	return s.persist(ctx, battle, []*models.Enemy{boss})
}

func (s *Service) persist(ctx context.Context, battle *models.Battle, enemies []*models.Enemy) (*models.BattleState, error) {
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		return wrapStorage(tx.CreateBattle(ctx, battle, enemies), "创建战斗失败")
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("创建战斗", "battle_id", battle.ID, "kind", battle.Kind,
		"difficulty", battle.Difficulty, "enemies", len(enemies))
	return &models.BattleState{Battle: battle, Enemies: enemies, Participants: []*models.Participant{}}, nil
}
