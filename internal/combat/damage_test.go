package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource 每次返回同一个值
type fixedSource struct {
	f float64
	n int
}

func (s fixedSource) Float64() float64 { return s.f }
func (s fixedSource) Intn(int) int     { return s.n }

func TestBaseDamage(t *testing.T) {
	tests := []struct {
		name     string
		atk, def int
		want     int
	}{
		{"攻击高于防御", 30, 10, 25},
		{"防御向下取整", 30, 11, 25},
		{"攻击被防御抵消时至少为1", 5, 100, 1},
		{"零攻击", 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseDamage(tt.atk, tt.def))
		})
	}
}

func TestDamageVarianceBounds(t *testing.T) {
	calc := NewCalculator(NewSource(42), 0)
	for i := 0; i < 2000; i++ {
		dmg := calc.Damage(30, 10, false)
		require.GreaterOrEqual(t, dmg, 22)
		require.LessOrEqual(t, dmg, 27)

		crit := calc.Damage(30, 10, true)
		require.GreaterOrEqual(t, crit, 45)
		require.LessOrEqual(t, crit, 55)
	}
}

func TestDamageNeverBelowOne(t *testing.T) {
	calc := NewCalculator(fixedSource{f: 0}, 0)
	assert.Equal(t, 1, calc.Damage(1, 1000, false), "0.9倍浮动截断后仍不低于1")
}

func TestDamageDeterministicWithFixedSource(t *testing.T) {
	low := NewCalculator(fixedSource{f: 0}, 0)
	assert.Equal(t, 22, low.Damage(30, 10, false))

	high := NewCalculator(fixedSource{f: 0.75}, 0)
	assert.Equal(t, 26, high.Damage(30, 10, false))
	assert.Equal(t, 52, high.Damage(30, 10, true))
}

func TestRollCritical(t *testing.T) {
	calc := NewCalculator(fixedSource{f: 0.12}, 0)
	assert.False(t, calc.RollCritical(0), "0.12 不小于基础暴击率0.10")
	assert.True(t, calc.RollCritical(0.05))
}

func TestCriticalRateDistribution(t *testing.T) {
	calc := NewCalculator(NewSource(7), 0)
	crits := 0
	const n = 20000
	for i := 0; i < n; i++ {
		if calc.RollCritical(0) {
			crits++
		}
	}
	rate := float64(crits) / n
	assert.InDelta(t, 0.10, rate, 0.01)
}

func TestScale(t *testing.T) {
	assert.Equal(t, 1, Scale(1, 0.7), "倍率后仍保证至少1点伤害")
	assert.Equal(t, 37, Scale(25, 1.5))
	assert.Equal(t, 75, Scale(25, 3.0))
}
