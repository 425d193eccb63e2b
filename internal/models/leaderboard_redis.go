package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// LeaderboardType 排行榜类型
type LeaderboardType string

const (
	// LeaderboardWins 胜场排行榜
	LeaderboardWins LeaderboardType = "wins"
	// LeaderboardGold 净赢金币排行榜
	LeaderboardGold LeaderboardType = "gold"
	// LeaderboardStreak 最高连胜排行榜
	LeaderboardStreak LeaderboardType = "streak"
)

// 排行榜Redis键名
const (
	LeaderboardWinsKey   = "pvp:leaderboard:wins"
	LeaderboardGoldKey   = "pvp:leaderboard:gold"
	LeaderboardStreakKey = "pvp:leaderboard:streak"

	// PvPStatsPrefix 玩家PvP统计缓存键前缀
	PvPStatsPrefix = "pvp:stats:"

	// StatsCacheTTL 统计缓存时间
	StatsCacheTTL = 5 * time.Minute
)

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	PlayerID int64   `json:"player_id"`
	Username string  `json:"username,omitempty"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
}

// PvPLeaderboard Redis PvP排行榜
type PvPLeaderboard struct {
	client *redis.Client
}

// NewPvPLeaderboard 创建Redis排行榜
func NewPvPLeaderboard(client *redis.Client) *PvPLeaderboard {
	return &PvPLeaderboard{client: client}
}

// Key 排行榜键名，未知类型回落到胜场榜
func (t LeaderboardType) Key() string {
	switch t {
	case LeaderboardGold:
		return LeaderboardGoldKey
	case LeaderboardStreak:
		return LeaderboardStreakKey
	default:
		return LeaderboardWinsKey
	}
}

// UpdateStats 写入一名玩家最新的统计到各排行榜并刷新缓存
func (rl *PvPLeaderboard) UpdateStats(ctx context.Context, stats *PvPStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	member := strconv.FormatInt(stats.PlayerID, 10)

	_, err = rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, LeaderboardWinsKey, &redis.Z{Score: float64(stats.Wins), Member: member})
		pipe.ZAdd(ctx, LeaderboardGoldKey, &redis.Z{Score: float64(stats.GoldWon - stats.GoldLost), Member: member})
		pipe.ZAdd(ctx, LeaderboardStreakKey, &redis.Z{Score: float64(stats.BestStreak), Member: member})
		pipe.Set(ctx, statsKey(stats.PlayerID), data, StatsCacheTTL)
		return nil
	})
	return err
}

// Top 获取排行榜前 limit 名
func (rl *PvPLeaderboard) Top(ctx context.Context, board LeaderboardType, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	members, err := rl.client.ZRevRangeWithScores(ctx, board.Key(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(members))
	for i, member := range members {
		id, ok := member.Member.(string)
		if !ok {
			continue
		}
		playerID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{PlayerID: playerID, Score: member.Score, Rank: i + 1})
	}
	return entries, nil
}

// Rank 获取玩家排名，未上榜返回 -1
func (rl *PvPLeaderboard) Rank(ctx context.Context, board LeaderboardType, playerID int64) (int, error) {
	rank, err := rl.client.ZRevRank(ctx, board.Key(), strconv.FormatInt(playerID, 10)).Result()
	if err != nil {
		if err == redis.Nil {
			return -1, nil
		}
		return -1, err
	}
	return int(rank) + 1, nil
}

// CachedStats 读取缓存的统计，未命中返回 nil
func (rl *PvPLeaderboard) CachedStats(ctx context.Context, playerID int64) (*PvPStats, error) {
	data, err := rl.client.Get(ctx, statsKey(playerID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var stats PvPStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Rebuild 用完整统计重建排行榜
func (rl *PvPLeaderboard) Rebuild(ctx context.Context, all []*PvPStats) error {
	if err := rl.client.Del(ctx, LeaderboardWinsKey, LeaderboardGoldKey, LeaderboardStreakKey).Err(); err != nil {
		return err
	}
	for _, stats := range all {
		if err := rl.UpdateStats(ctx, stats); err != nil {
			return err
		}
	}
	return nil
}

func statsKey(playerID int64) string {
	return fmt.Sprintf("%s%d", PvPStatsPrefix, playerID)
}
