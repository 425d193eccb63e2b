package tasks

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pve"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

const (
	// sweepSpec 清理已结束实时战斗的周期
	sweepSpec = "*/30 * * * * *"
	// rebuildSpec 重建排行榜的周期
	rebuildSpec = "0 */5 * * * *"
	// rebuildLimit 重建时读取的统计条数上限
	rebuildLimit = 10000
	jobTimeout   = 30 * time.Second
)

// PoolKeeper 战斗池补充
type PoolKeeper interface {
	EnsurePool(ctx context.Context) (pve.PoolReport, error)
}

// BattleSweeper 实时战斗清理
type BattleSweeper interface {
	SweepFinished(olderThan time.Duration) int
}

// LeaderboardRebuilder 排行榜重建
type LeaderboardRebuilder interface {
	Rebuild(ctx context.Context, all []*models.PvPStats) error
}

// Scheduler 定时任务：补充战斗池、清理实时战斗、重建排行榜
type Scheduler struct {
	pool    PoolKeeper
	battles BattleSweeper
	board   LeaderboardRebuilder
	store   store.Store
	cfg     *config.Config
	logger  log.Logger
	cron    *cron.Cron
}

// NewScheduler 创建定时任务实例，pool、battles、board 都可以为 nil
func NewScheduler(cfg *config.Config, st store.Store, pool PoolKeeper, battles BattleSweeper,
	board LeaderboardRebuilder, logger log.Logger) *Scheduler {
	return &Scheduler{
		pool:    pool,
		battles: battles,
		board:   board,
		store:   st,
		cfg:     cfg,
		logger:  logger.With("component", "tasks"),
	}
}

// Start 注册并启动定时任务
func (s *Scheduler) Start() error {
	// 秒 分 时 日 月 周
	s.cron = cron.New(cron.WithSeconds())

	jobs := []struct {
		name string
		spec string
		run  func()
		on   bool
	}{
		{"补充战斗池", s.cfg.Pool.UpkeepCron, s.EnsurePool, s.pool != nil},
		{"清理实时战斗", sweepSpec, s.SweepBattles, s.battles != nil},
		{"重建排行榜", rebuildSpec, s.RebuildLeaderboard, s.board != nil && s.store != nil},
	}
	for _, job := range jobs {
		if !job.on {
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			s.logger.Error("【定时任务】添加任务失败", err, "job", job.name, "spec", job.spec)
			return err
		}
		s.logger.Info("【定时任务】已注册", "job", job.name, "spec", job.spec)
	}

	s.cron.Start()
	s.logger.Info("【定时任务】已启动")
	return nil
}

// Stop 停止定时任务并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.logger.Info("【定时任务】正在停止定时任务...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("【定时任务】定时任务已停止")
}

// EnsurePool 补充战斗池
func (s *Scheduler) EnsurePool() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	report, err := s.pool.EnsurePool(ctx)
	if err != nil {
		s.logger.Error("【定时任务】补充战斗池失败", err)
		return
	}
	if report.Created > 0 || report.Retired > 0 {
		s.logger.Info("【定时任务】战斗池已补充",
			"created", report.Created,
			"retired", report.Retired,
			"standard_battles", report.StandardBattles,
			"boss_raids", report.BossRaids)
	}
}

// SweepBattles 清理结束超过保留时长的实时战斗
func (s *Scheduler) SweepBattles() {
	if n := s.battles.SweepFinished(s.cfg.PvP.CleanupDelay()); n > 0 {
		s.logger.Debug("【定时任务】实时战斗清理完成", "removed", n)
	}
}

// RebuildLeaderboard 用数据库中的统计重建排行榜
func (s *Scheduler) RebuildLeaderboard() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	var all []*models.PvPStats
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		all, err = tx.ListPvPStats(ctx, rebuildLimit)
		return err
	})
	if err != nil {
		s.logger.Error("【定时任务】读取PvP统计失败", err)
		return
	}
	if err := s.board.Rebuild(ctx, all); err != nil {
		s.logger.Error("【定时任务】重建排行榜失败", err, "players", len(all))
		return
	}
	s.logger.Info("【定时任务】排行榜重建完成", "players", len(all))
}
