package combat

import "math"

const (
	// DefaultCritChance 基础暴击率
	DefaultCritChance = 0.10
	// CritMultiplier 暴击伤害倍数
	CritMultiplier = 2
	// VarianceLow 伤害浮动下限
	VarianceLow = 0.9
	// VarianceHigh 伤害浮动上限
	VarianceHigh = 1.1
)

// BaseDamage 不含暴击与浮动的基础伤害，至少为1
func BaseDamage(attackPower, defensePower int) int {
	return max(1, attackPower-int(math.Floor(float64(defensePower)*0.5)))
}

// Calculator 伤害计算器
type Calculator struct {
	rng        Source
	critChance float64
}

// NewCalculator 创建伤害计算器，rng 为 nil 时使用时间种子
func NewCalculator(rng Source, critChance float64) *Calculator {
	if rng == nil {
		rng = NewTimeSource()
	}
	if critChance <= 0 {
		critChance = DefaultCritChance
	}
	return &Calculator{rng: rng, critChance: critChance}
}

// Damage 计算一次伤害：基础伤害、暴击翻倍、±10%浮动，结果至少为1
func (c *Calculator) Damage(attackPower, defensePower int, critical bool) int {
	dmg := BaseDamage(attackPower, defensePower)
	if critical {
		dmg *= CritMultiplier
	}
	return max(1, c.Variance(dmg))
}

// RollCritical 按基础暴击率加额外加成判定是否暴击
func (c *Calculator) RollCritical(bonus float64) bool {
	return c.Chance(c.critChance + bonus)
}

// Chance 以概率 p 返回 true
func (c *Calculator) Chance(p float64) bool {
	return c.rng.Float64() < p
}

// Variance 对数值施加 ±10% 均匀浮动并截断为整数
func (c *Calculator) Variance(value int) int {
	return int(float64(value) * c.Uniform(VarianceLow, VarianceHigh))
}

// Uniform 返回 [lo, hi) 区间的均匀随机数
func (c *Calculator) Uniform(lo, hi float64) float64 {
	return lo + c.rng.Float64()*(hi-lo)
}

// Intn 返回 [0, n) 的随机整数
func (c *Calculator) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return c.rng.Intn(n)
}

// Scale 按倍率缩放伤害，结果至少为1
func Scale(damage int, multiplier float64) int {
	return max(1, int(float64(damage)*multiplier))
}
