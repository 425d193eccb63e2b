// registry.go

package pvp

import (
	"context"
	"sync"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/metrics"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

// Recoverer 根据持久化记录重建实时战斗参数
type Recoverer interface {
	RecoverBattle(ctx context.Context, battleID string) (BattleSetup, error)
}

// Registry 进程内实时战斗表
// 锁顺序：engine.mu 可以在持有时调用 Registry，Registry 持锁时不得进入 engine
type Registry struct {
	mu      sync.Mutex
	battles map[string]*Engine

	calc      *combat.Calculator
	settler   Settler
	recoverer Recoverer
	cfg       config.PvPConfig
	metrics   *metrics.CombatMetrics
	logger    log.Logger
	now       func() time.Time
}

// NewRegistry 创建实时战斗表
func NewRegistry(calc *combat.Calculator, cfg config.PvPConfig, m *metrics.CombatMetrics, logger log.Logger) *Registry {
	return &Registry{
		battles: make(map[string]*Engine),
		calc:    calc,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock 替换时钟，测试使用
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *Registry) attach(settler Settler, recoverer Recoverer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settler = settler
	r.recoverer = recoverer
}

func (r *Registry) newEngineLocked(setup BattleSetup) *Engine {
	e := newEngine(setup, engineOptions{
		calc:          r.calc,
		settler:       r.settler,
		metrics:       r.metrics,
		logger:        r.logger,
		now:           r.now,
		actionTimeout: r.cfg.ActionTimeout(),
		onFinish: func(e *Engine) {
			r.ScheduleRemoval(e, r.cfg.CleanupDelay())
		},
	})
	r.battles[setup.BattleID] = e
	r.metrics.SetLiveBattles(len(r.battles))
	return e
}

// Create 登记新的实时战斗
func (r *Registry) Create(setup BattleSetup) (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.battles[setup.BattleID]; ok {
		return nil, xerrors.Newf(xerrors.CodeBattleStateInvalid, "Battle %s already exists", setup.BattleID)
	}
	e := r.newEngineLocked(setup)
	r.logger.Info("实时战斗已登记", "battle_id", setup.BattleID, "duel_id", setup.DuelID)
	return e, nil
}

// Get 查询实时战斗
func (r *Registry) Get(battleID string) (*Engine, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.battles[battleID]
	return e, ok
}

// GetOrRecover 查询实时战斗，不存在时尝试从决斗记录重建
func (r *Registry) GetOrRecover(ctx context.Context, battleID string) (*Engine, error) {
	if e, ok := r.Get(battleID); ok {
		return e, nil
	}
	r.mu.Lock()
	recoverer := r.recoverer
	r.mu.Unlock()
	if recoverer == nil {
		return nil, xerrors.NewNotFoundError("battle", battleID)
	}

	setup, err := recoverer.RecoverBattle(ctx, battleID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 并发重建时以先登记者为准
	if e, ok := r.battles[battleID]; ok {
		return e, nil
	}
	return r.newEngineLocked(setup), nil
}

// Remove 移除实时战斗
func (r *Registry) Remove(battleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.battles[battleID]; !ok {
		return
	}
	delete(r.battles, battleID)
	r.metrics.SetLiveBattles(len(r.battles))
	r.logger.Info("实时战斗已清理", "battle_id", battleID)
}

// removeIfSame 只移除仍为 e 的登记项
func (r *Registry) removeIfSame(e *Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.battles[e.id]; !ok || cur != e {
		return
	}
	delete(r.battles, e.id)
	r.metrics.SetLiveBattles(len(r.battles))
	r.logger.Info("实时战斗已清理", "battle_id", e.id)
}

// ScheduleRemoval 延迟移除，期间迟到的消息仍可投递
func (r *Registry) ScheduleRemoval(e *Engine, delay time.Duration) {
	if delay <= 0 {
		r.removeIfSame(e)
		return
	}
	time.AfterFunc(delay, func() { r.removeIfSame(e) })
}

// SweepFinished 清理结束超过 olderThan 的战斗，返回清理数量
func (r *Registry) SweepFinished(olderThan time.Duration) int {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.battles))
	for _, e := range r.battles {
		engines = append(engines, e)
	}
	cutoff := r.now().Add(-olderThan)
	r.mu.Unlock()

	removed := 0
	for _, e := range engines {
		if e.Phase() != PhaseFinished || e.FinishedAt().After(cutoff) {
			continue
		}
		r.removeIfSame(e)
		removed++
	}
	if removed > 0 {
		r.logger.Info("清理已结束的实时战斗", "count", removed)
	}
	return removed
}

// Count 实时战斗数量
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.battles)
}
