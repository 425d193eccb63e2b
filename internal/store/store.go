package store

import (
	"context"
	"errors"

	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 唯一约束冲突
	ErrDuplicate = errors.New("duplicate record")
)

// Store 持久化入口，所有读写都在事务中完成
type Store interface {
	// InTx 在一个事务内执行 fn；fn 返回错误时整体回滚
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx 事务内可用的操作
// Lock* 方法会对行加锁直到事务结束；加锁顺序固定为 battle -> enemy -> participant -> player，
// 决斗结算为 duel -> player(按ID升序)
type Tx interface {
	BattleRepository
	PlayerRepository
	DuelRepository
}

// BattleFilter 战斗查询条件，空字段表示不过滤
type BattleFilter struct {
	Kinds      []models.BattleKind
	Statuses   []models.BattleStatus
	Difficulty models.Difficulty
	// NewestFirst 按创建时间倒序
	NewestFirst bool
	Limit       int
}

// BattleRepository 战斗、敌人、参与者
type BattleRepository interface {
	CreateBattle(ctx context.Context, battle *models.Battle, enemies []*models.Enemy) error
	GetBattle(ctx context.Context, id int64) (*models.Battle, error)
	LockBattle(ctx context.Context, id int64) (*models.Battle, error)
	UpdateBattle(ctx context.Context, battle *models.Battle) error
	ListBattles(ctx context.Context, filter BattleFilter) ([]*models.Battle, error)
	DeleteBattles(ctx context.Context, ids []int64) error

	ListEnemies(ctx context.Context, battleID int64) ([]*models.Enemy, error)
	LockEnemy(ctx context.Context, battleID, enemyID int64) (*models.Enemy, error)
	UpdateEnemy(ctx context.Context, enemy *models.Enemy) error
	CountLivingEnemies(ctx context.Context, battleID int64) (int, error)

	CreateParticipant(ctx context.Context, p *models.Participant) error
	LockParticipant(ctx context.Context, battleID, playerID int64) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, p *models.Participant) error
	ListParticipants(ctx context.Context, battleID int64) ([]*models.Participant, error)
	CountActiveParticipants(ctx context.Context, battleID int64) (int, error)
}

// PlayerRepository 玩家属性与背包
type PlayerRepository interface {
	CreatePlayer(ctx context.Context, p *models.Player) error
	GetPlayer(ctx context.Context, id int64) (*models.Player, error)
	LockPlayer(ctx context.Context, id int64) (*models.Player, error)
	UpdatePlayer(ctx context.Context, p *models.Player) error
	AddItems(ctx context.Context, playerID int64, items []models.LootItem) error
}

// DuelBox 决斗列表分类
type DuelBox string

const (
	DuelBoxReceived DuelBox = "received"
	DuelBoxSent     DuelBox = "sent"
	DuelBoxActive   DuelBox = "active"
	DuelBoxHistory  DuelBox = "history"
)

// DuelRepository 决斗与PvP统计
type DuelRepository interface {
	CreateDuel(ctx context.Context, d *models.Duel) error
	GetDuel(ctx context.Context, id int64) (*models.Duel, error)
	LockDuel(ctx context.Context, id int64) (*models.Duel, error)
	UpdateDuel(ctx context.Context, d *models.Duel) error
	// FindActiveDuelBetween 查找两名玩家之间（不区分方向）的非终态决斗
	FindActiveDuelBetween(ctx context.Context, a, b int64) (*models.Duel, error)
	GetDuelByBattleID(ctx context.Context, battleID string) (*models.Duel, error)
	ListDuels(ctx context.Context, playerID int64, box DuelBox, limit int) ([]*models.Duel, error)

	// GetPvPStats 不存在时返回初始统计
	GetPvPStats(ctx context.Context, playerID int64) (*models.PvPStats, error)
	SavePvPStats(ctx context.Context, stats *models.PvPStats) error
	ListPvPStats(ctx context.Context, limit int) ([]*models.PvPStats, error)
}

// IsNotFound 是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
