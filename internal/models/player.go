// player.go

package models

import (
	"time"
)

// Player 玩家战斗相关属性
// AttackPower/DefensePower 已包含装备、宠物与增益加成，由外部聚合后写入
type Player struct {
	ID         int64     `json:"id"`
	Username   string    `json:"username"`
	Level      int       `json:"level"`
	Exp        int64     `json:"exp"`
	StatPoints int       `json:"stat_points"`
	Gold       int64     `json:"gold"`
	Gems       int64     `json:"gems"`
	Stamina    int       `json:"stamina"`
	StaminaMax int       `json:"stamina_max"`
	BaseHP     int       `json:"base_hp"`
	Attack     int       `json:"attack_power"`
	Defense    int       `json:"defense_power"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MaxHP 战斗快照使用的最大血量
func (p *Player) MaxHP() int {
	return p.BaseHP + p.Level*10
}

// CombatSnapshot PvP开战时的属性快照
type CombatSnapshot struct {
	PlayerID int64  `json:"id"`
	Name     string `json:"name"`
	Attack   int    `json:"attack"`
	Defense  int    `json:"defense"`
	MaxHP    int    `json:"max_hp"`
}

// Snapshot 生成属性快照
func (p *Player) Snapshot() CombatSnapshot {
	return CombatSnapshot{
		PlayerID: p.ID,
		Name:     p.Username,
		Attack:   p.Attack,
		Defense:  p.Defense,
		MaxHP:    p.MaxHP(),
	}
}
