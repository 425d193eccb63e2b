// pool.go

package pve

import (
	"context"
	"slices"
	"sync"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

// 战斗池生成参数
const (
	poolRequiredLevel  = 1
	poolMaxPlayers     = 10
	poolMaxWave        = 5
	poolBossLevel      = 10
	poolBossMinPlayers = 3
	poolBossMaxPlayers = 10
)

var poolBossDifficulties = []models.Difficulty{models.DifficultyHard, models.DifficultyEpic}

// PoolReport 一次补充的结果
type PoolReport struct {
	StandardBattles int `json:"standard_battles"`
	BossRaids       int `json:"boss_raids"`
	Created         int `json:"created"`
	Retired         int `json:"retired"`
}

// PoolManager 维持可加入的战斗供给
type PoolManager struct {
	mu     sync.Mutex
	store  store.Store
	gen    *Generator
	cfg    config.PoolConfig
	logger log.Logger
}

// NewPoolManager 创建战斗池管理器
func NewPoolManager(st store.Store, gen *Generator, cfg config.PoolConfig, logger log.Logger) *PoolManager {
	return &PoolManager{store: st, gen: gen, cfg: cfg, logger: logger}
}

// EnsurePool 为每个难度档保证一场等待中的普通战斗，补足Boss团战，并清理超出保留数量的已完成战斗
// 同一进程内串行执行，避免并发补充产生重复战斗
func (m *PoolManager) EnsurePool(ctx context.Context) (PoolReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report PoolReport
	err := m.store.InTx(ctx, func(tx store.Tx) error {
		report = PoolReport{}

		waiting, err := tx.ListBattles(ctx, store.BattleFilter{
			Statuses: []models.BattleStatus{models.BattleStatusWaiting},
		})
		if err != nil {
			return wrapStorage(err, "查询战斗池失败")
		}

		var standing []models.Difficulty
		bossCount := 0
		for _, b := range waiting {
			if b.IsBossRaid() {
				bossCount++
			} else {
				standing = append(standing, b.Difficulty)
			}
		}

		for _, tier := range m.cfg.StandardTiers {
			options := parseTier(tier)
			if len(options) == 0 {
				continue
			}
			if idx := slices.IndexFunc(standing, func(d models.Difficulty) bool {
				return slices.Contains(options, d)
			}); idx >= 0 {
				// 已有的战斗只抵消一个档位
				standing = slices.Delete(standing, idx, idx+1)
				report.StandardBattles++
				continue
			}

			difficulty := options[m.gen.calc.Intn(len(options))]
			battle, enemies := m.gen.StandardBattle(BattleSpec{
				Difficulty:    difficulty,
				WaveNumber:    1 + m.gen.calc.Intn(poolMaxWave),
				RequiredLevel: poolRequiredLevel,
				MaxPlayers:    poolMaxPlayers,
			})
			if err := tx.CreateBattle(ctx, battle, enemies); err != nil {
				return wrapStorage(err, "创建战斗失败")
			}
			m.logger.Info("战斗池补充普通战斗", "battle_id", battle.ID, "difficulty", difficulty)
			report.StandardBattles++
			report.Created++
		}

		report.BossRaids = bossCount
		for i := bossCount; i < m.cfg.BossRaidCount; i++ {
			battle, boss := m.gen.BossRaid(BossRaidSpec{
				BossName:      BossNames[m.gen.calc.Intn(len(BossNames))],
				Difficulty:    poolBossDifficulties[m.gen.calc.Intn(len(poolBossDifficulties))],
				RequiredLevel: poolBossLevel,
				MinPlayers:    poolBossMinPlayers,
				MaxPlayers:    poolBossMaxPlayers,
			})
			if err := tx.CreateBattle(ctx, battle, []*models.Enemy{boss}); err != nil {
				return wrapStorage(err, "创建Boss团战失败")
			}
			m.logger.Info("战斗池补充Boss团战", "battle_id", battle.ID, "boss", battle.BossName)
			report.BossRaids++
			report.Created++
		}

		if m.cfg.CompletedRetention > 0 {
			completed, err := tx.ListBattles(ctx, store.BattleFilter{
				Statuses:    []models.BattleStatus{models.BattleStatusCompleted},
				NewestFirst: true,
			})
			if err != nil {
				return wrapStorage(err, "查询已完成战斗失败")
			}
			if len(completed) > m.cfg.CompletedRetention {
				var ids []int64
				for _, b := range completed[m.cfg.CompletedRetention:] {
					ids = append(ids, b.ID)
				}
				if err := tx.DeleteBattles(ctx, ids); err != nil {
					return wrapStorage(err, "清理已完成战斗失败")
				}
				report.Retired = len(ids)
			}
		}
		return nil
	})
	if err != nil {
		return PoolReport{}, err
	}

	if report.Created > 0 || report.Retired > 0 {
		m.logger.Info("战斗池已更新", "created", report.Created, "retired", report.Retired,
			"standard", report.StandardBattles, "boss_raids", report.BossRaids)
	}
	return report, nil
}
