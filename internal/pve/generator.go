// generator.go

package pve

import (
	"fmt"
	"strings"

	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
)

// Boss团战倍率
const (
	bossHPMult   = 30.0
	bossAtkMult  = 3.0
	bossDefMult  = 2.0
	bossGoldMult = 5.0
	bossXPMult   = 5.0

	// BossRaidStaminaCost 加入Boss团战消耗的体力
	BossRaidStaminaCost = 20
	// maxWaveEnemies 单波敌人数量上限
	maxWaveEnemies = 10
)

// DefaultPhaseThresholds Boss阶段血量阈值（百分比，降序）
var DefaultPhaseThresholds = []int{75, 50, 25}

// BossNames 战斗池轮换的Boss名
var BossNames = []string{
	"Dark Lord Malakar",
	"Ancient Dragon Infernus",
	"The Lich King",
	"Titan of Chaos",
	"Shadow Empress",
}

var waveEnemyTypes = []models.EnemyType{models.EnemyGoblin, models.EnemyOrc, models.EnemyTroll}

var bossTitles = map[models.Difficulty][]string{
	models.DifficultyEasy:      {"Chieftain %s", "Elder %s", "Captain %s"},
	models.DifficultyMedium:    {"Warlord %s", "Champion %s", "Commander %s"},
	models.DifficultyHard:      {"Lord %s", "%s the Destroyer", "%s the Terrible"},
	models.DifficultyEpic:      {"Dark Lord %s", "%s the Conqueror", "Supreme %s"},
	models.DifficultyLegendary: {"%s the Ancient", "%s the Immortal", "Eternal %s"},
}

// BattleSpec 普通波次战斗参数
type BattleSpec struct {
	Difficulty    models.Difficulty
	WaveNumber    int
	RequiredLevel int
	MaxPlayers    int
}

// BossRaidSpec Boss团战参数
type BossRaidSpec struct {
	BossName        string
	Difficulty      models.Difficulty
	RequiredLevel   int
	MinPlayers      int
	MaxPlayers      int
	PhaseThresholds []int
}

// Generator 生成战斗与敌人，不涉及持久化
type Generator struct {
	calc *combat.Calculator
}

// NewGenerator 创建生成器
func NewGenerator(calc *combat.Calculator) *Generator {
	return &Generator{calc: calc}
}

// StandardBattle 生成普通波次战斗
func (g *Generator) StandardBattle(spec BattleSpec) (*models.Battle, []*models.Enemy) {
	wave := max(1, spec.WaveNumber)
	reqLevel := max(1, spec.RequiredLevel)
	maxPlayers := spec.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = 10
	}
	mult := spec.Difficulty.Multiplier()

	battle := &models.Battle{
		Name:          fmt.Sprintf("%s Battle - Wave %d", title(string(spec.Difficulty)), wave),
		Kind:          models.BattleKindStandard,
		Status:        models.BattleStatusWaiting,
		Difficulty:    spec.Difficulty,
		WaveNumber:    wave,
		RequiredLevel: reqLevel,
		MaxPlayers:    maxPlayers,
		MinPlayers:    1,
		GoldReward:    int(float64(100*wave) * mult.Gold),
		XPReward:      int(float64(50*wave) * mult.XP),
		PhaseCount:    1,
		CurrentPhase:  1,
	}

	level := reqLevel + (wave-1)*2
	count := min(2+wave, maxWaveEnemies)
	enemies := make([]*models.Enemy, 0, count)
	for i := 0; i < count; i++ {
		et := waveEnemyTypes[g.calc.Intn(len(waveEnemyTypes))]
		stats := et.Stats()
		hp := int(float64(100+level*50) * stats.HP * mult.HP)
		enemies = append(enemies, &models.Enemy{
			Type:      et,
			Name:      stats.Names[g.calc.Intn(len(stats.Names))],
			Level:     level,
			HPMax:     hp,
			HPCurrent: hp,
			Attack:    int(float64(10+level*5) * stats.Attack * mult.Attack),
			Defense:   int(float64(5+level*3) * stats.Defense * mult.Defense),
		})
	}
	return battle, enemies
}

// BossRaid 生成Boss团战，阶段数为阈值数加一
func (g *Generator) BossRaid(spec BossRaidSpec) (*models.Battle, *models.Enemy) {
	thresholds := spec.PhaseThresholds
	if len(thresholds) == 0 {
		thresholds = DefaultPhaseThresholds
	}
	reqLevel := spec.RequiredLevel
	if reqLevel <= 0 {
		reqLevel = 10
	}
	minPlayers := spec.MinPlayers
	if minPlayers <= 0 {
		minPlayers = 3
	}
	maxPlayers := spec.MaxPlayers
	if maxPlayers <= 0 {
		maxPlayers = 20
	}
	mult := spec.Difficulty.Multiplier()

	battle := &models.Battle{
		Name:            fmt.Sprintf("%s (%s)", spec.BossName, title(string(spec.Difficulty))),
		Kind:            models.BattleKindBossRaid,
		Status:          models.BattleStatusWaiting,
		Difficulty:      spec.Difficulty,
		WaveNumber:      1,
		RequiredLevel:   reqLevel,
		StaminaCost:     BossRaidStaminaCost,
		MaxPlayers:      maxPlayers,
		MinPlayers:      minPlayers,
		GoldReward:      int(1000 * mult.Gold * bossGoldMult),
		XPReward:        int(500 * mult.XP * bossXPMult),
		BossName:        spec.BossName,
		PhaseCount:      len(thresholds) + 1,
		CurrentPhase:    1,
		PhaseThresholds: append([]int(nil), thresholds...),
	}

	level := reqLevel + 5
	titles := bossTitles[spec.Difficulty]
	if len(titles) == 0 {
		titles = bossTitles[models.DifficultyHard]
	}
	hp := int(float64(5000+level*500) * mult.HP * bossHPMult)
	boss := &models.Enemy{
		Type:      models.EnemyDragon,
		Name:      fmt.Sprintf(titles[g.calc.Intn(len(titles))], spec.BossName),
		Level:     level,
		HPMax:     hp,
		HPCurrent: hp,
		Attack:    int(float64(50+level*10) * mult.Attack * bossAtkMult),
		Defense:   int(float64(30+level*5) * mult.Defense * bossDefMult),
		IsBoss:    true,
	}
	return battle, boss
}

// parseTier 解析 "hard|epic" 形式的难度配置
func parseTier(tier string) []models.Difficulty {
	var out []models.Difficulty
	for _, part := range strings.Split(tier, "|") {
		d := models.Difficulty(strings.TrimSpace(strings.ToLower(part)))
		if d.Valid() {
			out = append(out, d)
		}
	}
	return out
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
