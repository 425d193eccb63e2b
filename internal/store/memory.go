package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
)

// MemoryStore 内存实现，单进程开发与测试使用
// 事务之间完全串行；事务失败时丢弃工作副本，等价于回滚
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	nextID       int64
	battles      map[int64]*models.Battle
	enemies      map[int64]*models.Enemy
	participants map[int64]*models.Participant
	players      map[int64]*models.Player
	items        map[int64][]models.LootItem
	duels        map[int64]*models.Duel
	stats        map[int64]*models.PvPStats
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		battles:      make(map[int64]*models.Battle),
		enemies:      make(map[int64]*models.Enemy),
		participants: make(map[int64]*models.Participant),
		players:      make(map[int64]*models.Player),
		items:        make(map[int64][]models.LootItem),
		duels:        make(map[int64]*models.Duel),
		stats:        make(map[int64]*models.PvPStats),
	}}
}

// InTx 实现 Store
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Items 玩家获得的全部装备，测试使用
func (m *MemoryStore) Items(playerID int64) []models.LootItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.items[playerID])
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:       s.nextID,
		battles:      make(map[int64]*models.Battle, len(s.battles)),
		enemies:      make(map[int64]*models.Enemy, len(s.enemies)),
		participants: make(map[int64]*models.Participant, len(s.participants)),
		players:      make(map[int64]*models.Player, len(s.players)),
		items:        make(map[int64][]models.LootItem, len(s.items)),
		duels:        make(map[int64]*models.Duel, len(s.duels)),
		stats:        make(map[int64]*models.PvPStats, len(s.stats)),
	}
	for k, v := range s.battles {
		c.battles[k] = copyBattle(v)
	}
	for k, v := range s.enemies {
		c.enemies[k] = copyEnemy(v)
	}
	for k, v := range s.participants {
		c.participants[k] = copyParticipant(v)
	}
	for k, v := range s.players {
		p := *v
		c.players[k] = &p
	}
	for k, v := range s.items {
		c.items[k] = slices.Clone(v)
	}
	for k, v := range s.duels {
		c.duels[k] = copyDuel(v)
	}
	for k, v := range s.stats {
		st := *v
		c.stats[k] = &st
	}
	return c
}

func (s *memState) newID() int64 {
	s.nextID++
	return s.nextID
}

type memTx struct {
	s *memState
}

// ---- 战斗 ----

func (t *memTx) CreateBattle(ctx context.Context, battle *models.Battle, enemies []*models.Enemy) error {
	battle.ID = t.s.newID()
	if battle.CreatedAt.IsZero() {
		battle.CreatedAt = time.Now()
	}
	t.s.battles[battle.ID] = copyBattle(battle)
	for _, e := range enemies {
		e.ID = t.s.newID()
		e.BattleID = battle.ID
		t.s.enemies[e.ID] = copyEnemy(e)
	}
	return nil
}

func (t *memTx) GetBattle(ctx context.Context, id int64) (*models.Battle, error) {
	b, ok := t.s.battles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBattle(b), nil
}

func (t *memTx) LockBattle(ctx context.Context, id int64) (*models.Battle, error) {
	return t.GetBattle(ctx, id)
}

func (t *memTx) UpdateBattle(ctx context.Context, battle *models.Battle) error {
	if _, ok := t.s.battles[battle.ID]; !ok {
		return ErrNotFound
	}
	t.s.battles[battle.ID] = copyBattle(battle)
	return nil
}

func (t *memTx) ListBattles(ctx context.Context, filter BattleFilter) ([]*models.Battle, error) {
	var out []*models.Battle
	for _, b := range t.s.battles {
		if len(filter.Kinds) > 0 && !slices.Contains(filter.Kinds, b.Kind) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, b.Status) {
			continue
		}
		if filter.Difficulty != "" && b.Difficulty != filter.Difficulty {
			continue
		}
		out = append(out, copyBattle(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.NewestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (t *memTx) DeleteBattles(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		delete(t.s.battles, id)
		for eid, e := range t.s.enemies {
			if e.BattleID == id {
				delete(t.s.enemies, eid)
			}
		}
		for pid, p := range t.s.participants {
			if p.BattleID == id {
				delete(t.s.participants, pid)
			}
		}
	}
	return nil
}

func (t *memTx) ListEnemies(ctx context.Context, battleID int64) ([]*models.Enemy, error) {
	var out []*models.Enemy
	for _, e := range t.s.enemies {
		if e.BattleID == battleID {
			out = append(out, copyEnemy(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) LockEnemy(ctx context.Context, battleID, enemyID int64) (*models.Enemy, error) {
	e, ok := t.s.enemies[enemyID]
	if !ok || e.BattleID != battleID {
		return nil, ErrNotFound
	}
	return copyEnemy(e), nil
}

func (t *memTx) UpdateEnemy(ctx context.Context, enemy *models.Enemy) error {
	if _, ok := t.s.enemies[enemy.ID]; !ok {
		return ErrNotFound
	}
	t.s.enemies[enemy.ID] = copyEnemy(enemy)
	return nil
}

func (t *memTx) CountLivingEnemies(ctx context.Context, battleID int64) (int, error) {
	n := 0
	for _, e := range t.s.enemies {
		if e.BattleID == battleID && !e.IsDefeated {
			n++
		}
	}
	return n, nil
}

func (t *memTx) CreateParticipant(ctx context.Context, p *models.Participant) error {
	for _, existing := range t.s.participants {
		if existing.BattleID == p.BattleID && existing.PlayerID == p.PlayerID {
			return ErrDuplicate
		}
	}
	p.ID = t.s.newID()
	t.s.participants[p.ID] = copyParticipant(p)
	return nil
}

func (t *memTx) LockParticipant(ctx context.Context, battleID, playerID int64) (*models.Participant, error) {
	for _, p := range t.s.participants {
		if p.BattleID == battleID && p.PlayerID == playerID {
			return copyParticipant(p), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	if _, ok := t.s.participants[p.ID]; !ok {
		return ErrNotFound
	}
	t.s.participants[p.ID] = copyParticipant(p)
	return nil
}

func (t *memTx) ListParticipants(ctx context.Context, battleID int64) ([]*models.Participant, error) {
	var out []*models.Participant
	for _, p := range t.s.participants {
		if p.BattleID == battleID {
			out = append(out, copyParticipant(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) CountActiveParticipants(ctx context.Context, battleID int64) (int, error) {
	n := 0
	for _, p := range t.s.participants {
		if p.BattleID == battleID && p.IsActive {
			n++
		}
	}
	return n, nil
}

// ---- 玩家 ----

func (t *memTx) CreatePlayer(ctx context.Context, p *models.Player) error {
	if p.ID == 0 {
		p.ID = t.s.newID()
	}
	cp := *p
	t.s.players[p.ID] = &cp
	return nil
}

func (t *memTx) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	p, ok := t.s.players[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) LockPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return t.GetPlayer(ctx, id)
}

func (t *memTx) UpdatePlayer(ctx context.Context, p *models.Player) error {
	if _, ok := t.s.players[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	t.s.players[p.ID] = &cp
	return nil
}

func (t *memTx) AddItems(ctx context.Context, playerID int64, items []models.LootItem) error {
	t.s.items[playerID] = append(t.s.items[playerID], items...)
	return nil
}

// ---- 决斗 ----

func (t *memTx) CreateDuel(ctx context.Context, d *models.Duel) error {
	d.ID = t.s.newID()
	t.s.duels[d.ID] = copyDuel(d)
	return nil
}

func (t *memTx) GetDuel(ctx context.Context, id int64) (*models.Duel, error) {
	d, ok := t.s.duels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDuel(d), nil
}

func (t *memTx) LockDuel(ctx context.Context, id int64) (*models.Duel, error) {
	return t.GetDuel(ctx, id)
}

func (t *memTx) UpdateDuel(ctx context.Context, d *models.Duel) error {
	if _, ok := t.s.duels[d.ID]; !ok {
		return ErrNotFound
	}
	t.s.duels[d.ID] = copyDuel(d)
	return nil
}

func (t *memTx) FindActiveDuelBetween(ctx context.Context, a, b int64) (*models.Duel, error) {
	for _, d := range t.s.duels {
		if d.Status.IsActive() && d.Involves(a) && d.Involves(b) {
			return copyDuel(d), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) GetDuelByBattleID(ctx context.Context, battleID string) (*models.Duel, error) {
	for _, d := range t.s.duels {
		if d.BattleID == battleID {
			return copyDuel(d), nil
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) ListDuels(ctx context.Context, playerID int64, box DuelBox, limit int) ([]*models.Duel, error) {
	var out []*models.Duel
	for _, d := range t.s.duels {
		if matchDuelBox(d, playerID, box) {
			out = append(out, copyDuel(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchDuelBox(d *models.Duel, playerID int64, box DuelBox) bool {
	switch box {
	case DuelBoxReceived:
		return d.DefenderID == playerID && d.Status == models.DuelPending
	case DuelBoxSent:
		return d.ChallengerID == playerID && d.Status == models.DuelPending
	case DuelBoxActive:
		return d.Involves(playerID) && (d.Status == models.DuelAccepted || d.Status == models.DuelInProgress)
	default:
		return d.Involves(playerID) && !d.Status.IsActive()
	}
}

func (t *memTx) GetPvPStats(ctx context.Context, playerID int64) (*models.PvPStats, error) {
	if s, ok := t.s.stats[playerID]; ok {
		cp := *s
		return &cp, nil
	}
	return models.NewPvPStats(playerID), nil
}

func (t *memTx) SavePvPStats(ctx context.Context, stats *models.PvPStats) error {
	cp := *stats
	t.s.stats[stats.PlayerID] = &cp
	return nil
}

func (t *memTx) ListPvPStats(ctx context.Context, limit int) ([]*models.PvPStats, error) {
	out := make([]*models.PvPStats, 0, len(t.s.stats))
	for _, s := range t.s.stats {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wins > out[j].Wins })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- 深拷贝 ----

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyBattle(b *models.Battle) *models.Battle {
	c := *b
	c.PhaseThresholds = slices.Clone(b.PhaseThresholds)
	c.StartedAt = copyTime(b.StartedAt)
	c.CompletedAt = copyTime(b.CompletedAt)
	return &c
}

func copyEnemy(e *models.Enemy) *models.Enemy {
	c := *e
	c.DefeatedAt = copyTime(e.DefeatedAt)
	return &c
}

func copyParticipant(p *models.Participant) *models.Participant {
	c := *p
	c.DeathTimestamp = copyTime(p.DeathTimestamp)
	if p.RewardsSnapshot != nil {
		r := *p.RewardsSnapshot
		r.Items = slices.Clone(p.RewardsSnapshot.Items)
		c.RewardsSnapshot = &r
	}
	return &c
}

func copyDuel(d *models.Duel) *models.Duel {
	c := *d
	if d.WinnerID != nil {
		w := *d.WinnerID
		c.WinnerID = &w
	}
	c.AcceptedAt = copyTime(d.AcceptedAt)
	c.StartedAt = copyTime(d.StartedAt)
	c.CompletedAt = copyTime(d.CompletedAt)
	return &c
}
