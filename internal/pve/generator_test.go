package pve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
)

func TestStandardBattle(t *testing.T) {
	gen := NewGenerator(combat.NewCalculator(fixedSource{}, 0))

	battle, enemies := gen.StandardBattle(BattleSpec{Difficulty: models.DifficultyMedium, WaveNumber: 3, RequiredLevel: 1})
	assert.Equal(t, "Medium Battle - Wave 3", battle.Name)
	assert.Equal(t, 450, battle.GoldReward)
	assert.Equal(t, 225, battle.XPReward)
	assert.Equal(t, 0, battle.StaminaCost)
	require.Len(t, enemies, 5)

	// level = 1 + 2*2 = 5，GOBLIN 倍率
	e := enemies[0]
	assert.Equal(t, models.EnemyGoblin, e.Type)
	assert.Equal(t, 5, e.Level)
	assert.Equal(t, 525, e.HPMax)
	assert.Equal(t, e.HPMax, e.HPCurrent)
	assert.Equal(t, 33, e.Attack)
	assert.Equal(t, 16, e.Defense)

	_, many := gen.StandardBattle(BattleSpec{Difficulty: models.DifficultyEasy, WaveNumber: 20})
	assert.Len(t, many, maxWaveEnemies)
}

func TestBossRaid(t *testing.T) {
	gen := NewGenerator(combat.NewCalculator(fixedSource{}, 0))

	battle, boss := gen.BossRaid(BossRaidSpec{BossName: "Malakar", Difficulty: models.DifficultyEasy})
	assert.Equal(t, models.BattleKindBossRaid, battle.Kind)
	assert.Equal(t, "Malakar (Easy)", battle.Name)
	assert.Equal(t, 4, battle.PhaseCount)
	assert.Equal(t, 1, battle.CurrentPhase)
	assert.Equal(t, []int{75, 50, 25}, battle.PhaseThresholds)
	assert.Equal(t, 10, battle.RequiredLevel)
	assert.Equal(t, 3, battle.MinPlayers)
	assert.Equal(t, 20, battle.MaxPlayers)
	assert.Equal(t, BossRaidStaminaCost, battle.StaminaCost)
	assert.Equal(t, 5000, battle.GoldReward)
	assert.Equal(t, 2500, battle.XPReward)

	assert.True(t, boss.IsBoss)
	assert.Equal(t, models.EnemyDragon, boss.Type)
	assert.Equal(t, "Chieftain Malakar", boss.Name)
	assert.Equal(t, 15, boss.Level)
	assert.Equal(t, (5000+15*500)*30, boss.HPMax)
	assert.Equal(t, (50+15*10)*3, boss.Attack)
	assert.Equal(t, (30+15*5)*2, boss.Defense)

	battle.PhaseThresholds[0] = 99
	assert.Equal(t, 75, DefaultPhaseThresholds[0], "阈值切片不共享")
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, []models.Difficulty{models.DifficultyHard, models.DifficultyEpic}, parseTier("hard|epic"))
	assert.Equal(t, []models.Difficulty{models.DifficultyEasy}, parseTier(" Easy "))
	assert.Empty(t, parseTier("nightmare"))
}

func TestGenerateItem(t *testing.T) {
	calc := combat.NewCalculator(combat.NewSource(11), 0)
	battle := &models.Battle{Difficulty: models.DifficultyLegendary, RequiredLevel: 10}

	for i := 0; i < 50; i++ {
		item := GenerateItem(calc, battle)
		assert.NotEmpty(t, item.ID)
		assert.Contains(t, []models.Rarity{models.RarityEpic, models.RarityLegendary}, item.Rarity)
		assert.Contains(t, models.EquipmentSlots, item.Slot)
		assert.Equal(t, 10, item.RequiredLevel)
		if item.Slot == "weapon" {
			assert.Positive(t, item.AttackBonus)
			assert.Zero(t, item.DefenseBonus)
		}
	}
}

func TestDropChance(t *testing.T) {
	assert.InDelta(t, 0.1, DropChance(models.DifficultyEasy), 1e-9)
	assert.InDelta(t, 0.5, DropChance(models.DifficultyLegendary), 1e-9)
}
