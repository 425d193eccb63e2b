// battle.go

package models

import (
	"time"
)

// BattleKind 战斗类型
type BattleKind string

const (
	// BattleKindStandard 普通波次战斗
	BattleKindStandard BattleKind = "STANDARD"
	// BattleKindBossRaid Boss团战
	BattleKindBossRaid BattleKind = "BOSS_RAID"
)

// BattleStatus 战斗状态
type BattleStatus string

const (
	BattleStatusWaiting    BattleStatus = "WAITING"
	BattleStatusInProgress BattleStatus = "IN_PROGRESS"
	BattleStatusCompleted  BattleStatus = "COMPLETED"
	// BattleStatusAbandoned 预留状态，当前没有自动触发
	BattleStatusAbandoned BattleStatus = "ABANDONED"
)

// Battle PvE战斗
type Battle struct {
	ID            int64        `json:"id"`
	Name          string       `json:"name"`
	Kind          BattleKind   `json:"kind"`
	Status        BattleStatus `json:"status"`
	Difficulty    Difficulty   `json:"difficulty"`
	WaveNumber    int          `json:"wave_number"`
	RequiredLevel int          `json:"required_level"`
	StaminaCost   int          `json:"stamina_cost"`
	MaxPlayers    int          `json:"max_players"`
	GoldReward    int          `json:"gold_reward"`
	XPReward      int          `json:"xp_reward"`

	// Boss团战字段
	BossName        string `json:"boss_name,omitempty"`
	MinPlayers      int    `json:"min_players,omitempty"`
	PhaseCount      int    `json:"phase_count,omitempty"`
	CurrentPhase    int    `json:"current_phase,omitempty"`
	PhaseThresholds []int  `json:"phase_thresholds,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsBossRaid 是否为Boss团战
func (b *Battle) IsBossRaid() bool {
	return b.Kind == BattleKindBossRaid
}

// IsOver 战斗是否已结束（完成或放弃）
func (b *Battle) IsOver() bool {
	return b.Status == BattleStatusCompleted || b.Status == BattleStatusAbandoned
}

// Enemy 战斗中的敌人
type Enemy struct {
	ID         int64      `json:"id"`
	BattleID   int64      `json:"battle_id"`
	Type       EnemyType  `json:"enemy_type"`
	Name       string     `json:"name"`
	Level      int        `json:"level"`
	HPMax      int        `json:"hp_max"`
	HPCurrent  int        `json:"hp_current"`
	Attack     int        `json:"attack"`
	Defense    int        `json:"defense"`
	IsBoss     bool       `json:"is_boss"`
	IsDefeated bool       `json:"is_defeated"`
	DefeatedAt *time.Time `json:"defeated_at,omitempty"`
}

// HPPercent 当前血量百分比
func (e *Enemy) HPPercent() float64 {
	if e.HPMax <= 0 {
		return 0
	}
	return float64(e.HPCurrent) / float64(e.HPMax) * 100
}

// ApplyDamage 扣除血量（不低于0），返回本次是否击败
// 已击败的敌人不会再次被标记
func (e *Enemy) ApplyDamage(damage int, now time.Time) bool {
	if e.IsDefeated {
		return false
	}
	e.HPCurrent = max(0, e.HPCurrent-damage)
	if e.HPCurrent == 0 {
		e.IsDefeated = true
		e.DefeatedAt = &now
		return true
	}
	return false
}

// Participant 战斗参与者
type Participant struct {
	ID               int64 `json:"id"`
	BattleID         int64 `json:"battle_id"`
	PlayerID         int64 `json:"player_id"`
	TotalDamageDealt int64 `json:"total_damage_dealt"`
	AttacksCount     int   `json:"attacks_count"`
	IsActive         bool  `json:"is_active"`

	// 仅Boss团战使用
	IsDead            bool       `json:"is_dead"`
	DeathTimestamp    *time.Time `json:"death_timestamp,omitempty"`
	ResurrectionCount int        `json:"resurrection_count"`

	HasClaimedLoot  bool      `json:"has_claimed_loot"`
	RewardsSnapshot *Rewards  `json:"rewards_snapshot,omitempty"`
	JoinedAt        time.Time `json:"joined_at"`
}

// CooldownRemaining 距离可自然复活的剩余时间
func (p *Participant) CooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	if !p.IsDead || p.DeathTimestamp == nil {
		return 0
	}
	return max(0, cooldown-now.Sub(*p.DeathTimestamp))
}

// Rewards 领取奖励时的快照
type Rewards struct {
	Gold                int        `json:"gold"`
	XP                  int        `json:"xp"`
	Items               []LootItem `json:"items"`
	ContributionPercent float64    `json:"contribution_percent"`
	LeveledUp           bool       `json:"leveled_up"`
	NewLevel            int        `json:"new_level,omitempty"`
}

// LootItem 掉落装备
type LootItem struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Slot          string `json:"slot"`
	Rarity        Rarity `json:"rarity"`
	RequiredLevel int    `json:"required_level"`
	AttackBonus   int    `json:"attack_bonus"`
	DefenseBonus  int    `json:"defense_bonus"`
	HPBonus       int    `json:"hp_bonus"`
}

// BattleState 战斗完整状态
type BattleState struct {
	Battle       *Battle        `json:"battle"`
	Enemies      []*Enemy       `json:"enemies"`
	Participants []*Participant `json:"participants"`
}

// 注意：表结构定义在 pkg/db/schema.go
