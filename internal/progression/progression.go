// progression.go

package progression

import (
	"math"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
)

const (
	// MaxLevel 等级上限
	MaxLevel = 100
	// BaseXPRequirement 升到2级所需经验
	BaseXPRequirement = 100
	// XPScalingFactor 每级经验需求增长率
	XPScalingFactor = 1.15
	// StatPointsPerLevel 每级属性点
	StatPointsPerLevel = 3
	// MilestoneBonusPoints 每10级额外属性点
	MilestoneBonusPoints = 5
)

// Result 经验结算结果
type Result struct {
	LeveledUp        bool   `json:"leveled_up"`
	OldLevel         int    `json:"old_level"`
	NewLevel         int    `json:"new_level"`
	LevelsGained     int    `json:"levels_gained"`
	StatPointsEarned int    `json:"stat_points_earned"`
	TotalXP          int64  `json:"total_xp"`
	XPGained         int    `json:"xp_gained"`
	Source           string `json:"source,omitempty"`
}

// XPForLevel 从 level-1 升到 level 所需经验
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	// 加上极小量抵消浮点误差，100*1.15 应为 115
	return int64(math.Floor(BaseXPRequirement*math.Pow(XPScalingFactor, float64(level-2)) + 1e-9))
}

// StatPointsForLevel 达到 level 时获得的属性点
func StatPointsForLevel(level int) int {
	if level > 0 && level%10 == 0 {
		return StatPointsPerLevel + MilestoneBonusPoints
	}
	return StatPointsPerLevel
}

// AwardXP 为玩家增加经验并处理升级
// 直接修改 player，调用方负责在同一事务内持久化
// player.Exp 保存当前等级内的进度；满级后多余经验丢弃
func AwardXP(player *models.Player, amount int, source string) Result {
	res := Result{
		OldLevel: player.Level,
		NewLevel: player.Level,
		XPGained: amount,
		Source:   source,
	}
	if amount <= 0 || player.Level >= MaxLevel {
		res.TotalXP = player.Exp
		return res
	}

	player.Exp += int64(amount)
	for player.Level < MaxLevel {
		need := XPForLevel(player.Level + 1)
		if player.Exp < need {
			break
		}
		player.Exp -= need
		player.Level++
		res.StatPointsEarned += StatPointsForLevel(player.Level)
	}
	if player.Level >= MaxLevel {
		player.Exp = 0
	}

	res.NewLevel = player.Level
	res.LevelsGained = res.NewLevel - res.OldLevel
	res.LeveledUp = res.LevelsGained > 0
	res.TotalXP = player.Exp
	if res.LeveledUp {
		player.StatPoints += res.StatPointsEarned
		player.Stamina = player.StaminaMax
	}
	return res
}
