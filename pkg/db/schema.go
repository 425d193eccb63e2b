// schema.go

package db

import "context"

// 统一的数据库表结构定义

// CreateAllTablesSQL 创建所有表的SQL语句
const CreateAllTablesSQL = `
-- 玩家表（战斗相关属性，攻防已包含装备加成）
CREATE TABLE IF NOT EXISTS players (
    id BIGSERIAL PRIMARY KEY,
    username VARCHAR(50) UNIQUE NOT NULL,
    level INT NOT NULL DEFAULT 1,
    exp BIGINT NOT NULL DEFAULT 0,
    stat_points INT NOT NULL DEFAULT 0,
    gold BIGINT NOT NULL DEFAULT 0 CHECK (gold >= 0),
    gems BIGINT NOT NULL DEFAULT 0 CHECK (gems >= 0),
    stamina INT NOT NULL DEFAULT 100 CHECK (stamina >= 0),
    stamina_max INT NOT NULL DEFAULT 100,
    base_hp INT NOT NULL DEFAULT 100,
    attack_power INT NOT NULL DEFAULT 10,
    defense_power INT NOT NULL DEFAULT 5,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

-- 玩家装备表（战利品）
CREATE TABLE IF NOT EXISTS player_items (
    id UUID PRIMARY KEY,
    player_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    name VARCHAR(100) NOT NULL,
    slot VARCHAR(20) NOT NULL,
    rarity VARCHAR(20) NOT NULL,
    required_level INT NOT NULL DEFAULT 1,
    attack_bonus INT NOT NULL DEFAULT 0,
    defense_bonus INT NOT NULL DEFAULT 0,
    hp_bonus INT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

-- PvE战斗表
CREATE TABLE IF NOT EXISTS battles (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    kind VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'WAITING',
    difficulty VARCHAR(20) NOT NULL,
    wave_number INT NOT NULL DEFAULT 1,
    required_level INT NOT NULL DEFAULT 1,
    stamina_cost INT NOT NULL DEFAULT 0,
    max_players INT NOT NULL DEFAULT 10,
    min_players INT NOT NULL DEFAULT 1,
    gold_reward INT NOT NULL DEFAULT 0,
    xp_reward INT NOT NULL DEFAULT 0,
    boss_name VARCHAR(100) NOT NULL DEFAULT '',
    phase_count INT NOT NULL DEFAULT 1,
    current_phase INT NOT NULL DEFAULT 1,
    phase_thresholds INT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    started_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,
    CHECK (current_phase >= 1 AND current_phase <= phase_count)
);

-- 战斗敌人表
CREATE TABLE IF NOT EXISTS battle_enemies (
    id BIGSERIAL PRIMARY KEY,
    battle_id BIGINT NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
    enemy_type VARCHAR(20) NOT NULL,
    name VARCHAR(100) NOT NULL,
    level INT NOT NULL,
    hp_max INT NOT NULL,
    hp_current INT NOT NULL CHECK (hp_current >= 0),
    attack INT NOT NULL,
    defense INT NOT NULL,
    is_boss BOOLEAN NOT NULL DEFAULT FALSE,
    is_defeated BOOLEAN NOT NULL DEFAULT FALSE,
    defeated_at TIMESTAMP WITH TIME ZONE,
    CHECK (is_defeated = (hp_current = 0))
);

-- 战斗参与者表
CREATE TABLE IF NOT EXISTS battle_participants (
    id BIGSERIAL PRIMARY KEY,
    battle_id BIGINT NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
    player_id BIGINT NOT NULL REFERENCES players(id) ON DELETE CASCADE,
    total_damage_dealt BIGINT NOT NULL DEFAULT 0,
    attacks_count INT NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    is_dead BOOLEAN NOT NULL DEFAULT FALSE,
    death_timestamp TIMESTAMP WITH TIME ZONE,
    resurrection_count INT NOT NULL DEFAULT 0,
    has_claimed_loot BOOLEAN NOT NULL DEFAULT FALSE,
    rewards_snapshot JSONB,
    joined_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (battle_id, player_id)
);

-- 决斗表
CREATE TABLE IF NOT EXISTS duels (
    id BIGSERIAL PRIMARY KEY,
    challenger_id BIGINT NOT NULL REFERENCES players(id),
    defender_id BIGINT NOT NULL REFERENCES players(id),
    gold_stake INT NOT NULL CHECK (gold_stake > 0),
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    winner_id BIGINT REFERENCES players(id),
    battle_id VARCHAR(64) NOT NULL DEFAULT '',
    message VARCHAR(200) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
    accepted_at TIMESTAMP WITH TIME ZONE,
    started_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,
    CHECK (challenger_id <> defender_id)
);

-- 同一对玩家之间（不区分方向）最多一场非终态决斗
CREATE UNIQUE INDEX IF NOT EXISTS uq_duels_active_pair ON duels (
    LEAST(challenger_id, defender_id), GREATEST(challenger_id, defender_id)
) WHERE status IN ('PENDING', 'ACCEPTED', 'IN_PROGRESS');

-- PvP统计表
CREATE TABLE IF NOT EXISTS pvp_stats (
    player_id BIGINT PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
    wins INT NOT NULL DEFAULT 0,
    losses INT NOT NULL DEFAULT 0,
    draws INT NOT NULL DEFAULT 0,
    gold_won BIGINT NOT NULL DEFAULT 0,
    gold_lost BIGINT NOT NULL DEFAULT 0,
    gold_wagered BIGINT NOT NULL DEFAULT 0,
    current_streak INT NOT NULL DEFAULT 0,
    best_streak INT NOT NULL DEFAULT 0,
    rating INT NOT NULL DEFAULT 1000,
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
);

-- 创建索引以提高查询性能
CREATE INDEX IF NOT EXISTS idx_battles_kind_status ON battles(kind, status);
CREATE INDEX IF NOT EXISTS idx_battle_enemies_battle_id ON battle_enemies(battle_id);
CREATE INDEX IF NOT EXISTS idx_battle_participants_battle_id ON battle_participants(battle_id);
CREATE INDEX IF NOT EXISTS idx_player_items_player_id ON player_items(player_id);
CREATE INDEX IF NOT EXISTS idx_duels_challenger ON duels(challenger_id, status);
CREATE INDEX IF NOT EXISTS idx_duels_defender ON duels(defender_id, status);
CREATE INDEX IF NOT EXISTS idx_duels_battle_id ON duels(battle_id);
`

// DropAllTablesSQL 删除所有表（按依赖关系顺序）
const DropAllTablesSQL = `
DROP TABLE IF EXISTS pvp_stats CASCADE;
DROP TABLE IF EXISTS duels CASCADE;
DROP TABLE IF EXISTS battle_participants CASCADE;
DROP TABLE IF EXISTS battle_enemies CASCADE;
DROP TABLE IF EXISTS battles CASCADE;
DROP TABLE IF EXISTS player_items CASCADE;
DROP TABLE IF EXISTS players CASCADE;
`

// InitAllTables 初始化所有数据库表
func InitAllTables(ctx context.Context) error {
	_, err := DB.ExecContext(ctx, CreateAllTablesSQL)
	return err
}

// DropAllTables 删除所有表和数据
func DropAllTables(ctx context.Context) error {
	_, err := DB.ExecContext(ctx, DropAllTablesSQL)
	return err
}
