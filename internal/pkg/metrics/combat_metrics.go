package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CombatMetrics 战斗业务指标收集器
// 所有方法都允许 nil 接收者，未注入指标时直接跳过
type CombatMetrics struct {
	PvEAttacksTotal       *prometheus.CounterVec
	PvEBattlesCompleted   *prometheus.CounterVec
	BossPhaseChangesTotal prometheus.Counter
	LootClaimsTotal       *prometheus.CounterVec
	DuelsTotal            *prometheus.CounterVec
	PvPBattlesTotal       *prometheus.CounterVec
	TurnResolveDuration   prometheus.Histogram
	LiveBattles           prometheus.Gauge
	WSConnections         prometheus.Gauge
}

// Default 默认指标实例，注册到 prometheus.DefaultRegisterer
var Default = NewCombatMetrics("arena", prometheus.DefaultRegisterer)

// TurnBuckets 回合结算耗时分布（秒）
var TurnBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1}

// NewCombatMetrics 在指定注册表上创建指标
func NewCombatMetrics(namespace string, registerer prometheus.Registerer) *CombatMetrics {
	factory := promauto.With(registerer)

	return &CombatMetrics{
		PvEAttacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pve",
				Name:      "attacks_total",
				Help:      "Total number of accepted PvE attacks by attack type",
			},
			[]string{"attack_type"},
		),
		PvEBattlesCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pve",
				Name:      "battles_completed_total",
				Help:      "Total number of completed PvE battles",
			},
			[]string{"kind", "difficulty"},
		),
		BossPhaseChangesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pve",
				Name:      "boss_phase_changes_total",
				Help:      "Total number of boss phase transitions",
			},
		),
		LootClaimsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pve",
				Name:      "loot_claims_total",
				Help:      "Total number of loot claims by best dropped rarity (none when nothing dropped)",
			},
			[]string{"rarity"},
		),
		DuelsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pvp",
				Name:      "duels_total",
				Help:      "Total number of duel state transitions by resulting status",
			},
			[]string{"status"},
		),
		PvPBattlesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pvp",
				Name:      "battles_total",
				Help:      "Total number of finished live PvP battles by result (win/draw/forfeit)",
			},
			[]string{"result"},
		),
		TurnResolveDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pvp",
				Name:      "turn_resolve_seconds",
				Help:      "Time spent resolving one PvP turn",
				Buckets:   TurnBuckets,
			},
		),
		LiveBattles: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "pvp",
				Name:      "live_battles",
				Help:      "Current number of live PvP battles held in memory",
			},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ws",
				Name:      "connections",
				Help:      "Current number of open websocket connections",
			},
		),
	}
}

// RecordAttack 记录一次PvE攻击
func (m *CombatMetrics) RecordAttack(attackType string) {
	if m == nil {
		return
	}
	m.PvEAttacksTotal.WithLabelValues(attackType).Inc()
}

// RecordBattleCompleted 记录PvE战斗完成
func (m *CombatMetrics) RecordBattleCompleted(kind, difficulty string) {
	if m == nil {
		return
	}
	m.PvEBattlesCompleted.WithLabelValues(kind, difficulty).Inc()
}

// RecordPhaseChange 记录Boss阶段切换
func (m *CombatMetrics) RecordPhaseChange() {
	if m == nil {
		return
	}
	m.BossPhaseChangesTotal.Inc()
}

// RecordLootClaim 记录战利品领取
func (m *CombatMetrics) RecordLootClaim(rarity string) {
	if m == nil {
		return
	}
	if rarity == "" {
		rarity = "none"
	}
	m.LootClaimsTotal.WithLabelValues(rarity).Inc()
}

// RecordDuel 记录决斗状态变化
func (m *CombatMetrics) RecordDuel(status string) {
	if m == nil {
		return
	}
	m.DuelsTotal.WithLabelValues(status).Inc()
}

// RecordPvPBattle 记录PvP战斗结束
func (m *CombatMetrics) RecordPvPBattle(result string) {
	if m == nil {
		return
	}
	m.PvPBattlesTotal.WithLabelValues(result).Inc()
}

// ObserveTurn 记录回合结算耗时
func (m *CombatMetrics) ObserveTurn(d time.Duration) {
	if m == nil {
		return
	}
	m.TurnResolveDuration.Observe(d.Seconds())
}

// SetLiveBattles 设置内存中的PvP战斗数量
func (m *CombatMetrics) SetLiveBattles(n int) {
	if m == nil {
		return
	}
	m.LiveBattles.Set(float64(n))
}

// IncConnections 连接数+1
func (m *CombatMetrics) IncConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecConnections 连接数-1
func (m *CombatMetrics) DecConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
