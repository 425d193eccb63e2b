package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pve"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

type fakeSweeper struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakeSweeper) SweepFinished(olderThan time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, olderThan)
	return 1
}

type fakeRebuilder struct {
	got []*models.PvPStats
	err error
}

func (f *fakeRebuilder) Rebuild(_ context.Context, all []*models.PvPStats) error {
	f.got = all
	return f.err
}

type failingPool struct{ calls int }

func (f *failingPool) EnsurePool(context.Context) (pve.PoolReport, error) {
	f.calls++
	return pve.PoolReport{}, errors.New("boom")
}

func TestEnsurePoolJobCreatesBattles(t *testing.T) {
	cfg := config.Default()
	st := store.NewMemoryStore()
	pool := pve.NewPoolManager(st, pve.NewGenerator(combat.NewCalculator(combat.NewSource(1), 0)), cfg.Pool, log.NewNop())
	s := NewScheduler(&cfg, st, pool, nil, nil, log.NewNop())

	s.EnsurePool()

	var battles []*models.Battle
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		battles, err = tx.ListBattles(context.Background(), store.BattleFilter{})
		return err
	}))
	assert.NotEmpty(t, battles)

	// 再次执行不重复创建
	s.EnsurePool()
	var again []*models.Battle
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		again, err = tx.ListBattles(context.Background(), store.BattleFilter{})
		return err
	}))
	assert.Len(t, again, len(battles))
}

func TestJobErrorsAreSwallowed(t *testing.T) {
	cfg := config.Default()
	pool := &failingPool{}
	board := &fakeRebuilder{err: errors.New("redis down")}
	s := NewScheduler(&cfg, store.NewMemoryStore(), pool, nil, board, log.NewNop())

	assert.NotPanics(t, s.EnsurePool)
	assert.NotPanics(t, s.RebuildLeaderboard)
	assert.Equal(t, 1, pool.calls)
}

func TestSweepUsesCleanupDelay(t *testing.T) {
	cfg := config.Default()
	cfg.PvP.CleanupDelaySeconds = 42
	sweeper := &fakeSweeper{}
	s := NewScheduler(&cfg, nil, nil, sweeper, nil, log.NewNop())

	s.SweepBattles()
	require.Len(t, sweeper.calls, 1)
	assert.Equal(t, 42*time.Second, sweeper.calls[0])
}

func TestRebuildLeaderboardReadsStore(t *testing.T) {
	cfg := config.Default()
	st := store.NewMemoryStore()
	require.NoError(t, st.InTx(context.Background(), func(tx store.Tx) error {
		for _, stats := range []*models.PvPStats{
			{PlayerID: 1, Wins: 3, Rating: models.DefaultRating},
			{PlayerID: 2, Wins: 7, Rating: models.DefaultRating},
		} {
			if err := tx.SavePvPStats(context.Background(), stats); err != nil {
				return err
			}
		}
		return nil
	}))
	board := &fakeRebuilder{}
	s := NewScheduler(&cfg, st, nil, nil, board, log.NewNop())

	s.RebuildLeaderboard()
	require.Len(t, board.got, 2)
	assert.Equal(t, int64(2), board.got[0].PlayerID, "按胜场降序")
}

func TestStartRegistersOnlyAvailableJobs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{"默认配置", nil, false},
		{"非法表达式", func(c *config.Config) { c.Pool.UpkeepCron = "not a cron" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			s := NewScheduler(&cfg, store.NewMemoryStore(), &failingPool{}, &fakeSweeper{}, nil, log.NewNop())
			err := s.Start()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.cron.Entries(), 2, "未配置排行榜时不注册重建任务")
			s.Stop()
		})
	}
}
