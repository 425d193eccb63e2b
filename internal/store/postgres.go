package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

// maxTxAttempts 序列化冲突时的最大尝试次数
const maxTxAttempts = 3

// PostgresStore PostgreSQL实现
type PostgresStore struct {
	db     *sql.DB
	logger log.Logger
}

// NewPostgresStore 创建PostgreSQL存储
func NewPostgresStore(db *sql.DB, logger log.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// InTx 实现 Store；遇到序列化失败或死锁时整体重试
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isConflict(err) {
			return err
		}
		s.logger.Warn("事务冲突，准备重试", "attempt", attempt, "error", err)
	}
	return xerrors.Wrap(err, xerrors.CodeStorageConflict, "storage conflict, please retry")
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&pgTx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// isConflict 是否为可重试的并发冲突
func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// mapErr 统一转换驱动错误
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// ---- 战斗 ----

const battleColumns = `id, name, kind, status, difficulty, wave_number, required_level, stamina_cost,
	max_players, min_players, gold_reward, xp_reward, boss_name, phase_count, current_phase,
	phase_thresholds, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBattle(row rowScanner) (*models.Battle, error) {
	var (
		b                      models.Battle
		thresholds             []int64
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Name, &b.Kind, &b.Status, &b.Difficulty, &b.WaveNumber,
		&b.RequiredLevel, &b.StaminaCost, &b.MaxPlayers, &b.MinPlayers, &b.GoldReward,
		&b.XPReward, &b.BossName, &b.PhaseCount, &b.CurrentPhase, pq.Array(&thresholds),
		&b.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	for _, v := range thresholds {
		b.PhaseThresholds = append(b.PhaseThresholds, int(v))
	}
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completedAt)
	return &b, nil
}

func int64s(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

func (t *pgTx) CreateBattle(ctx context.Context, b *models.Battle, enemies []*models.Enemy) error {
	phaseCount, currentPhase := max(1, b.PhaseCount), max(1, b.CurrentPhase)
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO battles (name, kind, status, difficulty, wave_number, required_level, stamina_cost,
			max_players, min_players, gold_reward, xp_reward, boss_name, phase_count, current_phase,
			phase_thresholds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at`,
		b.Name, b.Kind, b.Status, b.Difficulty, b.WaveNumber, b.RequiredLevel, b.StaminaCost,
		b.MaxPlayers, b.MinPlayers, b.GoldReward, b.XPReward, b.BossName, phaseCount, currentPhase,
		pq.Array(int64s(b.PhaseThresholds)),
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("创建战斗失败: %w", mapErr(err))
	}

	for _, e := range enemies {
		e.BattleID = b.ID
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO battle_enemies (battle_id, enemy_type, name, level, hp_max, hp_current, attack, defense, is_boss)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			e.BattleID, e.Type, e.Name, e.Level, e.HPMax, e.HPCurrent, e.Attack, e.Defense, e.IsBoss,
		).Scan(&e.ID)
		if err != nil {
			return fmt.Errorf("创建敌人失败: %w", mapErr(err))
		}
	}
	return nil
}

func (t *pgTx) GetBattle(ctx context.Context, id int64) (*models.Battle, error) {
	return scanBattle(t.tx.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = $1`, id))
}

func (t *pgTx) LockBattle(ctx context.Context, id int64) (*models.Battle, error) {
	return scanBattle(t.tx.QueryRowContext(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateBattle(ctx context.Context, b *models.Battle) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE battles SET status = $2, current_phase = $3, started_at = $4, completed_at = $5
		WHERE id = $1`,
		b.ID, b.Status, b.CurrentPhase, nullTime(b.StartedAt), nullTime(b.CompletedAt))
	return checkAffected(res, err)
}

func (t *pgTx) ListBattles(ctx context.Context, f BattleFilter) ([]*models.Battle, error) {
	var (
		conds []string
		args  []any
	)
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		args = append(args, pq.Array(kinds))
		conds = append(conds, fmt.Sprintf("kind = ANY($%d)", len(args)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.Difficulty != "" {
		args = append(args, f.Difficulty)
		conds = append(conds, fmt.Sprintf("difficulty = $%d", len(args)))
	}

	query := `SELECT ` + battleColumns + ` FROM battles`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if f.NewestFirst {
		query += ` ORDER BY id DESC`
	} else {
		query += ` ORDER BY id`
	}
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询战斗列表失败: %w", err)
	}
	defer rows.Close()

	var out []*models.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (t *pgTx) DeleteBattles(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM battles WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

const enemyColumns = `id, battle_id, enemy_type, name, level, hp_max, hp_current, attack, defense,
	is_boss, is_defeated, defeated_at`

func scanEnemy(row rowScanner) (*models.Enemy, error) {
	var (
		e          models.Enemy
		defeatedAt sql.NullTime
	)
	err := row.Scan(&e.ID, &e.BattleID, &e.Type, &e.Name, &e.Level, &e.HPMax, &e.HPCurrent,
		&e.Attack, &e.Defense, &e.IsBoss, &e.IsDefeated, &defeatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	e.DefeatedAt = timePtr(defeatedAt)
	return &e, nil
}

func (t *pgTx) ListEnemies(ctx context.Context, battleID int64) ([]*models.Enemy, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+enemyColumns+` FROM battle_enemies WHERE battle_id = $1 ORDER BY id`, battleID)
	if err != nil {
		return nil, fmt.Errorf("查询敌人失败: %w", err)
	}
	defer rows.Close()

	var out []*models.Enemy
	for rows.Next() {
		e, err := scanEnemy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *pgTx) LockEnemy(ctx context.Context, battleID, enemyID int64) (*models.Enemy, error) {
	return scanEnemy(t.tx.QueryRowContext(ctx,
		`SELECT `+enemyColumns+` FROM battle_enemies WHERE id = $1 AND battle_id = $2 FOR UPDATE`,
		enemyID, battleID))
}

func (t *pgTx) UpdateEnemy(ctx context.Context, e *models.Enemy) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE battle_enemies SET hp_current = $2, is_defeated = $3, defeated_at = $4
		WHERE id = $1`,
		e.ID, e.HPCurrent, e.IsDefeated, nullTime(e.DefeatedAt))
	return checkAffected(res, err)
}

func (t *pgTx) CountLivingEnemies(ctx context.Context, battleID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM battle_enemies WHERE battle_id = $1 AND NOT is_defeated`, battleID).Scan(&n)
	return n, err
}

const participantColumns = `id, battle_id, player_id, total_damage_dealt, attacks_count, is_active,
	is_dead, death_timestamp, resurrection_count, has_claimed_loot, rewards_snapshot, joined_at`

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p         models.Participant
		deathTime sql.NullTime
		rewards   []byte
	)
	err := row.Scan(&p.ID, &p.BattleID, &p.PlayerID, &p.TotalDamageDealt, &p.AttacksCount,
		&p.IsActive, &p.IsDead, &deathTime, &p.ResurrectionCount, &p.HasClaimedLoot, &rewards, &p.JoinedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	p.DeathTimestamp = timePtr(deathTime)
	if len(rewards) > 0 {
		p.RewardsSnapshot = &models.Rewards{}
		if err := json.Unmarshal(rewards, p.RewardsSnapshot); err != nil {
			return nil, fmt.Errorf("解析奖励快照失败: %w", err)
		}
	}
	return &p, nil
}

func (t *pgTx) CreateParticipant(ctx context.Context, p *models.Participant) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO battle_participants (battle_id, player_id, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, joined_at`,
		p.BattleID, p.PlayerID, p.IsActive,
	).Scan(&p.ID, &p.JoinedAt)
	return mapErr(err)
}

func (t *pgTx) LockParticipant(ctx context.Context, battleID, playerID int64) (*models.Participant, error) {
	return scanParticipant(t.tx.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM battle_participants WHERE battle_id = $1 AND player_id = $2 FOR UPDATE`,
		battleID, playerID))
}

func (t *pgTx) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	var rewards []byte
	if p.RewardsSnapshot != nil {
		data, err := json.Marshal(p.RewardsSnapshot)
		if err != nil {
			return err
		}
		rewards = data
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE battle_participants SET total_damage_dealt = $2, attacks_count = $3, is_active = $4,
			is_dead = $5, death_timestamp = $6, resurrection_count = $7, has_claimed_loot = $8,
			rewards_snapshot = $9
		WHERE id = $1`,
		p.ID, p.TotalDamageDealt, p.AttacksCount, p.IsActive, p.IsDead, nullTime(p.DeathTimestamp),
		p.ResurrectionCount, p.HasClaimedLoot, rewards)
	return checkAffected(res, err)
}

func (t *pgTx) ListParticipants(ctx context.Context, battleID int64) ([]*models.Participant, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM battle_participants WHERE battle_id = $1 ORDER BY id`, battleID)
	if err != nil {
		return nil, fmt.Errorf("查询参与者失败: %w", err)
	}
	defer rows.Close()

	var out []*models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgTx) CountActiveParticipants(ctx context.Context, battleID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM battle_participants WHERE battle_id = $1 AND is_active`, battleID).Scan(&n)
	return n, err
}

// ---- 玩家 ----

const playerColumns = `id, username, level, exp, stat_points, gold, gems, stamina, stamina_max,
	base_hp, attack_power, defense_power, created_at, updated_at`

func scanPlayer(row rowScanner) (*models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.Username, &p.Level, &p.Exp, &p.StatPoints, &p.Gold, &p.Gems,
		&p.Stamina, &p.StaminaMax, &p.BaseHP, &p.Attack, &p.Defense, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (t *pgTx) CreatePlayer(ctx context.Context, p *models.Player) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO players (username, level, exp, stat_points, gold, gems, stamina, stamina_max,
			base_hp, attack_power, defense_power)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`,
		p.Username, p.Level, p.Exp, p.StatPoints, p.Gold, p.Gems, p.Stamina, p.StaminaMax,
		p.BaseHP, p.Attack, p.Defense,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return mapErr(err)
}

func (t *pgTx) GetPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return scanPlayer(t.tx.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
}

func (t *pgTx) LockPlayer(ctx context.Context, id int64) (*models.Player, error) {
	return scanPlayer(t.tx.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdatePlayer(ctx context.Context, p *models.Player) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE players SET level = $2, exp = $3, stat_points = $4, gold = $5, gems = $6,
			stamina = $7, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`,
		p.ID, p.Level, p.Exp, p.StatPoints, p.Gold, p.Gems, p.Stamina)
	return checkAffected(res, err)
}

func (t *pgTx) AddItems(ctx context.Context, playerID int64, items []models.LootItem) error {
	for i := range items {
		item := &items[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO player_items (id, player_id, name, slot, rarity, required_level,
				attack_bonus, defense_bonus, hp_bonus)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			item.ID, playerID, item.Name, item.Slot, item.Rarity, item.RequiredLevel,
			item.AttackBonus, item.DefenseBonus, item.HPBonus)
		if err != nil {
			return fmt.Errorf("写入装备失败: %w", mapErr(err))
		}
	}
	return nil
}

// ---- 决斗 ----

const duelColumns = `id, challenger_id, defender_id, gold_stake, status, winner_id, battle_id,
	message, created_at, expires_at, accepted_at, started_at, completed_at`

func scanDuel(row rowScanner) (*models.Duel, error) {
	var (
		d                                  models.Duel
		winner                             sql.NullInt64
		acceptedAt, startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&d.ID, &d.ChallengerID, &d.DefenderID, &d.GoldStake, &d.Status, &winner,
		&d.BattleID, &d.Message, &d.CreatedAt, &d.ExpiresAt, &acceptedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	if winner.Valid {
		w := winner.Int64
		d.WinnerID = &w
	}
	d.AcceptedAt = timePtr(acceptedAt)
	d.StartedAt = timePtr(startedAt)
	d.CompletedAt = timePtr(completedAt)
	return &d, nil
}

func (t *pgTx) CreateDuel(ctx context.Context, d *models.Duel) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO duels (challenger_id, defender_id, gold_stake, status, message, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		d.ChallengerID, d.DefenderID, d.GoldStake, d.Status, d.Message, d.CreatedAt, d.ExpiresAt,
	).Scan(&d.ID)
	return mapErr(err)
}

func (t *pgTx) GetDuel(ctx context.Context, id int64) (*models.Duel, error) {
	return scanDuel(t.tx.QueryRowContext(ctx, `SELECT `+duelColumns+` FROM duels WHERE id = $1`, id))
}

func (t *pgTx) LockDuel(ctx context.Context, id int64) (*models.Duel, error) {
	return scanDuel(t.tx.QueryRowContext(ctx, `SELECT `+duelColumns+` FROM duels WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateDuel(ctx context.Context, d *models.Duel) error {
	var winner sql.NullInt64
	if d.WinnerID != nil {
		winner = sql.NullInt64{Int64: *d.WinnerID, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE duels SET status = $2, winner_id = $3, battle_id = $4, accepted_at = $5,
			started_at = $6, completed_at = $7
		WHERE id = $1`,
		d.ID, d.Status, winner, d.BattleID, nullTime(d.AcceptedAt), nullTime(d.StartedAt),
		nullTime(d.CompletedAt))
	return checkAffected(res, err)
}

func (t *pgTx) FindActiveDuelBetween(ctx context.Context, a, b int64) (*models.Duel, error) {
	return scanDuel(t.tx.QueryRowContext(ctx, `
		SELECT `+duelColumns+` FROM duels
		WHERE ((challenger_id = $1 AND defender_id = $2) OR (challenger_id = $2 AND defender_id = $1))
			AND status IN ('PENDING', 'ACCEPTED', 'IN_PROGRESS')
		LIMIT 1`, a, b))
}

func (t *pgTx) GetDuelByBattleID(ctx context.Context, battleID string) (*models.Duel, error) {
	return scanDuel(t.tx.QueryRowContext(ctx,
		`SELECT `+duelColumns+` FROM duels WHERE battle_id = $1 ORDER BY id DESC LIMIT 1`, battleID))
}

func (t *pgTx) ListDuels(ctx context.Context, playerID int64, box DuelBox, limit int) ([]*models.Duel, error) {
	var cond string
	switch box {
	case DuelBoxReceived:
		cond = `defender_id = $1 AND status = 'PENDING'`
	case DuelBoxSent:
		cond = `challenger_id = $1 AND status = 'PENDING'`
	case DuelBoxActive:
		cond = `(challenger_id = $1 OR defender_id = $1) AND status IN ('ACCEPTED', 'IN_PROGRESS')`
	default:
		cond = `(challenger_id = $1 OR defender_id = $1) AND status NOT IN ('PENDING', 'ACCEPTED', 'IN_PROGRESS')`
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+duelColumns+` FROM duels WHERE `+cond+` ORDER BY id DESC LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("查询决斗列表失败: %w", err)
	}
	defer rows.Close()

	var out []*models.Duel
	for rows.Next() {
		d, err := scanDuel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const statsColumns = `player_id, wins, losses, draws, gold_won, gold_lost, gold_wagered,
	current_streak, best_streak, rating`

func scanStats(row rowScanner) (*models.PvPStats, error) {
	var s models.PvPStats
	err := row.Scan(&s.PlayerID, &s.Wins, &s.Losses, &s.Draws, &s.GoldWon, &s.GoldLost,
		&s.GoldWagered, &s.CurrentStreak, &s.BestStreak, &s.Rating)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (t *pgTx) GetPvPStats(ctx context.Context, playerID int64) (*models.PvPStats, error) {
	s, err := scanStats(t.tx.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM pvp_stats WHERE player_id = $1 FOR UPDATE`, playerID))
	if IsNotFound(err) {
		return models.NewPvPStats(playerID), nil
	}
	return s, err
}

func (t *pgTx) SavePvPStats(ctx context.Context, s *models.PvPStats) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO pvp_stats (player_id, wins, losses, draws, gold_won, gold_lost, gold_wagered,
			current_streak, best_streak, rating)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (player_id) DO UPDATE SET
			wins = EXCLUDED.wins, losses = EXCLUDED.losses, draws = EXCLUDED.draws,
			gold_won = EXCLUDED.gold_won, gold_lost = EXCLUDED.gold_lost,
			gold_wagered = EXCLUDED.gold_wagered, current_streak = EXCLUDED.current_streak,
			best_streak = EXCLUDED.best_streak, rating = EXCLUDED.rating,
			updated_at = CURRENT_TIMESTAMP`,
		s.PlayerID, s.Wins, s.Losses, s.Draws, s.GoldWon, s.GoldLost, s.GoldWagered,
		s.CurrentStreak, s.BestStreak, s.Rating)
	return mapErr(err)
}

func (t *pgTx) ListPvPStats(ctx context.Context, limit int) ([]*models.PvPStats, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+statsColumns+` FROM pvp_stats ORDER BY wins DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询PvP统计失败: %w", err)
	}
	defer rows.Close()

	var out []*models.PvPStats
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
