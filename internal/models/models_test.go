package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnemyApplyDamage(t *testing.T) {
	now := time.Now()
	e := &Enemy{HPMax: 50, HPCurrent: 50}

	assert.False(t, e.ApplyDamage(25, now))
	assert.Equal(t, 25, e.HPCurrent)

	assert.True(t, e.ApplyDamage(40, now), "血量归零时标记击败")
	assert.Equal(t, 0, e.HPCurrent, "血量不低于0")
	assert.True(t, e.IsDefeated)
	assert.NotNil(t, e.DefeatedAt)

	assert.False(t, e.ApplyDamage(10, now.Add(time.Second)), "已击败的敌人不会再次被击败")
	assert.Equal(t, now, *e.DefeatedAt)
}

func TestParticipantCooldownRemaining(t *testing.T) {
	died := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &Participant{IsDead: true, DeathTimestamp: &died}

	assert.Equal(t, 600*time.Second, p.CooldownRemaining(died.Add(300*time.Second), 900*time.Second))
	assert.Equal(t, time.Duration(0), p.CooldownRemaining(died.Add(901*time.Second), 900*time.Second))

	alive := &Participant{}
	assert.Equal(t, time.Duration(0), alive.CooldownRemaining(died, 900*time.Second))
}

func TestAttackSpecTable(t *testing.T) {
	tests := []struct {
		attack  AttackType
		stamina int
		mult    float64
		bonus   float64
	}{
		{AttackQuick, 5, 0.7, 0},
		{AttackNormal, 10, 1.0, 0},
		{AttackPower, 20, 1.5, 0.05},
		{AttackCritical, 35, 2.2, 0.15},
		{AttackUltimate, 50, 3.0, 0.25},
	}
	for _, tt := range tests {
		t.Run(string(tt.attack), func(t *testing.T) {
			spec, ok := tt.attack.Spec()
			assert.True(t, ok)
			assert.Equal(t, tt.stamina, spec.StaminaCost)
			assert.Equal(t, tt.mult, spec.DamageMultiplier)
			assert.Equal(t, tt.bonus, spec.CritBonus)
		})
	}

	_, ok := AttackType("fireball").Spec()
	assert.False(t, ok, "未知攻击方式")
}

func TestDuelExpiry(t *testing.T) {
	now := time.Now()
	d := &Duel{Status: DuelPending, ExpiresAt: now.Add(-time.Second)}
	assert.True(t, d.IsExpired(now))

	d.Status = DuelAccepted
	assert.False(t, d.IsExpired(now), "只有待响应的挑战会过期")
}

func TestPvPStatsStreaks(t *testing.T) {
	s := NewPvPStats(1)
	s.RecordWin(100)
	s.RecordWin(100)
	s.RecordWin(50)
	assert.Equal(t, 3, s.CurrentStreak)
	assert.Equal(t, 3, s.BestStreak)
	assert.EqualValues(t, 500, s.GoldWon)

	s.RecordLoss(100)
	assert.Equal(t, 0, s.CurrentStreak)
	assert.Equal(t, 3, s.BestStreak, "最高连胜不回退")
	assert.EqualValues(t, 350, s.GoldWagered)

	s.RecordWin(10)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 3, s.BestStreak)

	s.RecordDraw()
	assert.Equal(t, 6, s.TotalMatches())
	assert.InDelta(t, 66.67, s.WinRate(), 0.01)
	assert.Equal(t, DefaultRating, s.Rating)
}

func TestDifficultyTables(t *testing.T) {
	assert.Equal(t, 0, DifficultyEasy.Index())
	assert.Equal(t, 4, DifficultyLegendary.Index())
	assert.False(t, Difficulty("nightmare").Valid())
	assert.Equal(t, 2.5, DifficultyHard.Multiplier().HP)

	for _, d := range Difficulties {
		total := 0
		for _, w := range d.RarityWeights() {
			total += w.Weight
		}
		assert.Equal(t, 100, total, "%s 权重和为100", d)
	}
}

func TestPlayerSnapshot(t *testing.T) {
	p := &Player{ID: 7, Username: "kai", Level: 5, BaseHP: 100, Attack: 30, Defense: 12}
	snap := p.Snapshot()
	assert.Equal(t, 150, snap.MaxHP)
	assert.Equal(t, 30, snap.Attack)
	assert.Equal(t, "kai", snap.Name)
}
