package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, log.NewNop()), mock
}

var enemyCols = []string{"id", "battle_id", "enemy_type", "name", "level", "hp_max", "hp_current",
	"attack", "defense", "is_boss", "is_defeated", "defeated_at"}

func TestPostgresLockEnemyForUpdate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM battle_enemies WHERE id = $1 AND battle_id = $2 FOR UPDATE")).
		WithArgs(int64(7), int64(3)).
		WillReturnRows(sqlmock.NewRows(enemyCols).
			AddRow(7, 3, "ORC", "Orc Grunt", 5, 300, 120, 30, 12, false, false, nil))
	mock.ExpectCommit()

	var got *models.Enemy
	err := s.InTx(context.Background(), func(tx Tx) error {
		var err error
		got, err = tx.LockEnemy(context.Background(), 3, 7)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnemyOrc, got.Type)
	assert.Equal(t, 120, got.HPCurrent)
	assert.Nil(t, got.DefeatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresNotFoundRollsBack(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM battles WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.LockBattle(context.Background(), 99)
		return err
	})
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRetriesSerializationFailure(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE battle_enemies SET hp_current")).
		WillReturnError(&pq.Error{Code: "40001"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE battle_enemies SET hp_current")).
		WithArgs(int64(7), 0, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now()
	calls := 0
	err := s.InTx(context.Background(), func(tx Tx) error {
		calls++
		return tx.UpdateEnemy(context.Background(), &models.Enemy{ID: 7, IsDefeated: true, DefeatedAt: &now})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConflictSurfacesAfterRetries(t *testing.T) {
	s, mock := newMockStore(t)

	for i := 0; i < maxTxAttempts; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("UPDATE players SET")).
			WillReturnError(&pq.Error{Code: "40P01"})
		mock.ExpectRollback()
	}

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.UpdatePlayer(context.Background(), &models.Player{ID: 1})
	})
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, xerrors.CodeStorageConflict))

	var appErr *xerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.Retryable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresScanBattleThresholds(t *testing.T) {
	s, mock := newMockStore(t)

	cols := []string{"id", "name", "kind", "status", "difficulty", "wave_number", "required_level",
		"stamina_cost", "max_players", "min_players", "gold_reward", "xp_reward", "boss_name",
		"phase_count", "current_phase", "phase_thresholds", "created_at", "started_at", "completed_at"}
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM battles WHERE id = $1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(5, "Lord Malakar", "BOSS_RAID", "IN_PROGRESS",
			"hard", 1, 10, 20, 20, 3, 12500, 6250, "Lord Malakar", 4, 2, "{75,50,25}",
			created, created, nil))
	mock.ExpectCommit()

	var b *models.Battle
	err := s.InTx(context.Background(), func(tx Tx) error {
		var err error
		b, err = tx.GetBattle(context.Background(), 5)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []int{75, 50, 25}, b.PhaseThresholds)
	assert.True(t, b.IsBossRaid())
	assert.Equal(t, 2, b.CurrentPhase)
	require.NotNil(t, b.StartedAt)
	assert.Nil(t, b.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMissingStatsDefaults(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pvp_stats WHERE player_id = $1")).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectCommit()

	var stats *models.PvPStats
	err := s.InTx(context.Background(), func(tx Tx) error {
		var err error
		stats, err = tx.GetPvPStats(context.Background(), 42)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), stats.PlayerID)
	assert.Equal(t, models.DefaultRating, stats.Rating)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUniqueViolationIsDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO battle_participants")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "battle_participants_battle_id_player_id_key"})
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx Tx) error {
		return tx.CreateParticipant(context.Background(), &models.Participant{BattleID: 1, PlayerID: 2, IsActive: true})
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}
