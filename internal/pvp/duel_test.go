package pvp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/PixelStorm-Arena/config"
	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
	"github.com/jacl-coder/PixelStorm-Arena/internal/store"
)

// fixedSource 固定随机值：Float64 恒为 f，Intn 恒为 0
type fixedSource struct{ f float64 }

func (s fixedSource) Float64() float64 { return s.f }
func (s fixedSource) Intn(int) int      { return 0 }

type sentEvent struct {
	playerID int64
	ev       models.Event
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (n *recordingNotifier) SendToPlayer(playerID int64, ev models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEvent{playerID: playerID, ev: ev})
}

func (n *recordingNotifier) to(playerID int64, eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.playerID == playerID && s.ev.Type == eventType {
			c++
		}
	}
	return c
}

type fakeBoard struct {
	mu      sync.Mutex
	updates map[int64]models.PvPStats
	err     error
}

func (b *fakeBoard) UpdateStats(_ context.Context, stats *models.PvPStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updates == nil {
		b.updates = make(map[int64]models.PvPStats)
	}
	b.updates[stats.PlayerID] = *stats
	return b.err
}

type duelFixture struct {
	svc      *DuelService
	st       *store.MemoryStore
	registry *Registry
	notifier *recordingNotifier
	board    *fakeBoard
	now      time.Time
}

func newDuelFixture(t *testing.T) *duelFixture {
	t.Helper()
	f := &duelFixture{
		st:       store.NewMemoryStore(),
		notifier: &recordingNotifier{},
		board:    &fakeBoard{},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	cfg := config.Default().PvP
	f.registry = NewRegistry(combat.NewCalculator(fixedSource{f: 0.5}, 0), cfg, nil, log.NewNop())
	f.registry.SetClock(f.clock)
	f.svc = NewDuelService(f.st, f.registry, f.notifier, f.board, nil, log.NewNop(), cfg)
	f.svc.SetClock(f.clock)
	return f
}

func (f *duelFixture) clock() time.Time { return f.now }

func (f *duelFixture) seedPlayer(t *testing.T, p *models.Player) {
	t.Helper()
	require.NoError(t, f.st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreatePlayer(context.Background(), p)
	}))
}

func (f *duelFixture) player(t *testing.T, id int64) *models.Player {
	t.Helper()
	var p *models.Player
	require.NoError(t, f.st.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		p, err = tx.GetPlayer(context.Background(), id)
		return err
	}))
	return p
}

func (f *duelFixture) setGold(t *testing.T, id, gold int64) {
	t.Helper()
	p := f.player(t, id)
	p.Gold = gold
	require.NoError(t, f.st.InTx(context.Background(), func(tx store.Tx) error {
		return tx.UpdatePlayer(context.Background(), p)
	}))
}

func (f *duelFixture) duel(t *testing.T, id int64) *models.Duel {
	t.Helper()
	var d *models.Duel
	require.NoError(t, f.st.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		d, err = tx.GetDuel(context.Background(), id)
		return err
	}))
	return d
}

func (f *duelFixture) stats(t *testing.T, id int64) *models.PvPStats {
	t.Helper()
	s, err := f.svc.Stats(context.Background(), id)
	require.NoError(t, err)
	return s
}

func seedPair(t *testing.T, f *duelFixture, challengerGold, defenderGold int64) {
	t.Helper()
	f.seedPlayer(t, &models.Player{ID: 1, Username: "alice", Level: 5, Gold: challengerGold, BaseHP: 100, Attack: 30, Defense: 10})
	f.seedPlayer(t, &models.Player{ID: 2, Username: "bob", Level: 5, Gold: defenderGold, BaseHP: 100, Attack: 25, Defense: 12})
}

func TestDuelSettlementScenario(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "来一局")
	require.NoError(t, err)
	assert.Equal(t, models.DuelPending, duel.Status)
	assert.Equal(t, f.now.Add(15*time.Minute), duel.ExpiresAt)
	assert.Equal(t, 1, f.notifier.to(2, models.EventChallengeReceived))

	res, err := f.svc.Respond(ctx, duel.ID, 2, true)
	require.NoError(t, err)
	assert.Equal(t, models.DuelAccepted, res.Duel.Status)
	assert.Equal(t, 1, f.notifier.to(1, models.EventChallengeResponse))

	started, err := f.svc.StartBattle(ctx, duel.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("pvp_%d_%d", duel.ID, f.now.Unix()), started.BattleID)
	assert.Equal(t, 1, f.notifier.to(1, models.EventBattleCreated))
	assert.Equal(t, 1, f.notifier.to(2, models.EventBattleCreated))
	assert.Equal(t, 1, f.registry.Count())

	winner := int64(2)
	completed, err := f.svc.Complete(ctx, duel.ID, &winner)
	require.NoError(t, err)
	assert.Equal(t, models.DuelCompleted, completed.Status)
	require.NotNil(t, completed.WinnerID)
	assert.Equal(t, winner, *completed.WinnerID)

	assert.Equal(t, int64(400), f.player(t, 1).Gold, "败者扣除赌注")
	assert.Equal(t, int64(1200), f.player(t, 2).Gold, "胜者获得双倍赌注")

	winnerStats := f.stats(t, 2)
	assert.Equal(t, 1, winnerStats.Wins)
	assert.Equal(t, 1, winnerStats.CurrentStreak)
	assert.Equal(t, 1, winnerStats.BestStreak)
	assert.Equal(t, int64(200), winnerStats.GoldWon)
	assert.Equal(t, int64(100), winnerStats.GoldWagered)

	loserStats := f.stats(t, 1)
	assert.Equal(t, 1, loserStats.Losses)
	assert.Equal(t, 0, loserStats.CurrentStreak)
	assert.Equal(t, int64(100), loserStats.GoldLost)

	assert.Len(t, f.board.updates, 2)
	assert.Equal(t, 1, f.notifier.to(1, models.EventDuelCompleted))
	assert.Equal(t, 1, f.notifier.to(2, models.EventDuelCompleted))

	_, err = f.svc.Complete(ctx, duel.ID, &winner)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeDuelStateInvalid))
	assert.Equal(t, int64(400), f.player(t, 1).Gold, "重复结算不重复转账")
	assert.Equal(t, int64(1200), f.player(t, 2).Gold)
}

func TestChallengeRejections(t *testing.T) {
	tests := []struct {
		name       string
		challenger int64
		defender   int64
		stake      int
		prepare    func(t *testing.T, f *duelFixture)
		code       xerrors.ErrorCode
	}{
		{name: "挑战自己", challenger: 1, defender: 1, stake: 100, code: xerrors.CodeInvalidParams},
		{name: "赌注低于下限", challenger: 1, defender: 2, stake: 5, code: xerrors.CodeInvalidParams},
		{name: "对手不存在", challenger: 1, defender: 99, stake: 100, code: xerrors.CodeResourceNotFound},
		{name: "挑战方金币不足", challenger: 1, defender: 2, stake: 600, code: xerrors.CodeInsufficientGold},
		{
			name: "对手金币不足", challenger: 1, defender: 2, stake: 100,
			prepare: func(t *testing.T, f *duelFixture) { f.setGold(t, 2, 50) },
			code:    xerrors.CodeInsufficientGold,
		},
		{
			name: "反向已有进行中的挑战", challenger: 1, defender: 2, stake: 100,
			prepare: func(t *testing.T, f *duelFixture) {
				_, err := f.svc.Challenge(context.Background(), 2, 1, 50, "")
				require.NoError(t, err)
			},
			code: xerrors.CodeDuelConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDuelFixture(t)
			seedPair(t, f, 500, 1000)
			if tt.prepare != nil {
				tt.prepare(t, f)
			}
			before := len(f.notifier.sent)

			_, err := f.svc.Challenge(context.Background(), tt.challenger, tt.defender, tt.stake, "")
			require.Error(t, err)
			assert.Equal(t, tt.code, xerrors.CodeOf(err))
			assert.Len(t, f.notifier.sent, before, "失败时不推送")
		})
	}
}

func TestChallengeExpiresLazily(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)

	f.now = f.now.Add(16 * time.Minute)
	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeDuelExpired))
	assert.Equal(t, models.DuelExpired, f.duel(t, duel.ID).Status, "过期状态已落库")

	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	assert.True(t, xerrors.Is(err, xerrors.CodeDuelStateInvalid))

	again, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err, "过期挑战不阻塞新的挑战")
	assert.NotEqual(t, duel.ID, again.ID)
}

func TestChallengeReplacesExpiredPending(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	first, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Minute)
	_, err = f.svc.Challenge(ctx, 2, 1, 100, "")
	require.NoError(t, err)
	assert.Equal(t, models.DuelExpired, f.duel(t, first.ID).Status)
}

func TestRespondDecline(t *testing.T) {
	tests := []struct {
		name         string
		defenderGold int64
		wantPenalty  int
	}{
		{name: "扣除10%罚金", defenderGold: 1000, wantPenalty: 10},
		{name: "金币不足不扣罚金", defenderGold: 5, wantPenalty: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newDuelFixture(t)
			seedPair(t, f, 500, 1000)

			duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
			require.NoError(t, err)
			f.setGold(t, 2, tt.defenderGold)

			res, err := f.svc.Respond(ctx, duel.ID, 2, false)
			require.NoError(t, err)
			assert.False(t, res.Accepted)
			assert.Equal(t, tt.wantPenalty, res.Penalty)
			assert.Equal(t, models.DuelDeclined, f.duel(t, duel.ID).Status)
			assert.Equal(t, tt.defenderGold-int64(tt.wantPenalty), f.player(t, 2).Gold)
			assert.Equal(t, int64(500+tt.wantPenalty), f.player(t, 1).Gold)
		})
	}
}

func TestRespondRejections(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, duel.ID, 1, true)
	assert.True(t, xerrors.Is(err, xerrors.CodeNotParticipant), "挑战方不能应战")

	_, err = f.svc.Respond(ctx, 999, 2, true)
	assert.True(t, xerrors.Is(err, xerrors.CodeResourceNotFound))

	f.setGold(t, 1, 20)
	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	assert.True(t, xerrors.Is(err, xerrors.CodeInsufficientGold))
	assert.Equal(t, models.DuelPending, f.duel(t, duel.ID).Status, "拒绝时状态不变")
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, duel.ID, 2)
	assert.True(t, xerrors.Is(err, xerrors.CodeNotParticipant))

	cancelled, err := f.svc.Cancel(ctx, duel.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DuelCancelled, cancelled.Status)
	assert.Equal(t, 1, f.notifier.to(2, models.EventChallengeCancelled))

	_, err = f.svc.Cancel(ctx, duel.ID, 1)
	assert.True(t, xerrors.Is(err, xerrors.CodeDuelStateInvalid))
}

func TestCompleteDraw(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	require.NoError(t, err)

	completed, err := f.svc.Complete(ctx, duel.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.DuelCompleted, completed.Status)
	assert.Nil(t, completed.WinnerID)
	assert.Equal(t, int64(500), f.player(t, 1).Gold, "平局不转移金币")
	assert.Equal(t, int64(1000), f.player(t, 2).Gold)
	assert.Equal(t, 1, f.stats(t, 1).Draws)
	assert.Equal(t, 1, f.stats(t, 2).Draws)
}

func TestCompleteRejectsOutsider(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)

	winner := int64(1)
	_, err = f.svc.Complete(ctx, duel.ID, &winner)
	assert.True(t, xerrors.Is(err, xerrors.CodeDuelStateInvalid), "待响应的决斗不能结算")

	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	require.NoError(t, err)
	outsider := int64(3)
	_, err = f.svc.Complete(ctx, duel.ID, &outsider)
	assert.True(t, xerrors.Is(err, xerrors.CodeInvalidParams))
	assert.Equal(t, models.DuelAccepted, f.duel(t, duel.ID).Status)
}

func TestCompleteLeaderboardFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	f.board.err = errors.New("redis down")
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	require.NoError(t, err)

	winner := int64(1)
	_, err = f.svc.Complete(ctx, duel.ID, &winner)
	require.NoError(t, err, "排行榜失败不影响结算")
	assert.Equal(t, int64(700), f.player(t, 1).Gold)
}

func TestStartBattleRejections(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)
	f.seedPlayer(t, &models.Player{ID: 3, Username: "carol", Level: 1, Gold: 100})

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)

	_, err = f.svc.StartBattle(ctx, duel.ID, 1)
	assert.True(t, xerrors.Is(err, xerrors.CodeDuelStateInvalid), "未接受的决斗不能开战")

	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	require.NoError(t, err)
	_, err = f.svc.StartBattle(ctx, duel.ID, 3)
	assert.True(t, xerrors.Is(err, xerrors.CodeNotParticipant))
	assert.Equal(t, 0, f.registry.Count())
}

func TestListDuels(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)
	f.seedPlayer(t, &models.Player{ID: 3, Username: "carol", Level: 1, Gold: 1000})

	expiring, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)
	f.now = f.now.Add(10 * time.Minute)
	fresh, err := f.svc.Challenge(ctx, 3, 2, 100, "")
	require.NoError(t, err)
	f.now = f.now.Add(6 * time.Minute)

	received, err := f.svc.List(ctx, 2, store.DuelBoxReceived, 0)
	require.NoError(t, err)
	require.Len(t, received, 1, "过期挑战不出现在待处理列表")
	assert.Equal(t, fresh.ID, received[0].ID)

	history, err := f.svc.List(ctx, 2, store.DuelBoxHistory, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, expiring.ID, history[0].ID)
	assert.Equal(t, models.DuelExpired, history[0].Status)
}

func TestRecoverBattle(t *testing.T) {
	ctx := context.Background()
	f := newDuelFixture(t)
	seedPair(t, f, 500, 1000)

	duel, err := f.svc.Challenge(ctx, 1, 2, 100, "")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, duel.ID, 2, true)
	require.NoError(t, err)
	started, err := f.svc.StartBattle(ctx, duel.ID, 2)
	require.NoError(t, err)

	f.registry.Remove(started.BattleID)
	require.Equal(t, 0, f.registry.Count())

	engine, err := f.registry.GetOrRecover(ctx, started.BattleID)
	require.NoError(t, err)
	state := engine.State()
	assert.True(t, state.Recovered)
	assert.Equal(t, PhaseWaiting, state.Phase)
	assert.Equal(t, 1, state.Turn)
	assert.Equal(t, 150, state.Player1.HP, "按当前属性满血重建")
	assert.Equal(t, 150, state.Player2.HP)
	assert.Equal(t, 1, f.registry.Count())

	again, err := f.registry.GetOrRecover(ctx, started.BattleID)
	require.NoError(t, err)
	assert.Same(t, engine, again)

	_, err = f.registry.GetOrRecover(ctx, "pvp_404_0")
	assert.True(t, xerrors.Is(err, xerrors.CodeResourceNotFound))

	winner := int64(1)
	_, err = f.svc.Complete(ctx, duel.ID, &winner)
	require.NoError(t, err)
	f.registry.Remove(started.BattleID)
	_, err = f.registry.GetOrRecover(ctx, started.BattleID)
	assert.True(t, xerrors.Is(err, xerrors.CodeBattleStateInvalid), "已结算的决斗不再重建")
}
