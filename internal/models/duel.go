// duel.go

package models

import (
	"time"
)

// DuelStatus 决斗状态
type DuelStatus string

const (
	DuelPending    DuelStatus = "PENDING"
	DuelAccepted   DuelStatus = "ACCEPTED"
	DuelInProgress DuelStatus = "IN_PROGRESS"
	DuelCompleted  DuelStatus = "COMPLETED"
	DuelDeclined   DuelStatus = "DECLINED"
	DuelCancelled  DuelStatus = "CANCELLED"
	DuelExpired    DuelStatus = "EXPIRED"
)

// ActiveDuelStatuses 非终态
var ActiveDuelStatuses = []DuelStatus{DuelPending, DuelAccepted, DuelInProgress}

// IsActive 是否为非终态
func (s DuelStatus) IsActive() bool {
	for _, v := range ActiveDuelStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Duel PvP决斗挑战
type Duel struct {
	ID           int64      `json:"id"`
	ChallengerID int64      `json:"challenger_id"`
	DefenderID   int64      `json:"defender_id"`
	GoldStake    int        `json:"gold_stake"`
	Status       DuelStatus `json:"status"`
	WinnerID     *int64     `json:"winner_id,omitempty"`
	BattleID     string     `json:"battle_id,omitempty"`
	Message      string     `json:"message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsExpired 待响应的挑战是否已过期
func (d *Duel) IsExpired(now time.Time) bool {
	return d.Status == DuelPending && now.After(d.ExpiresAt)
}

// Involves 玩家是否为决斗一方
func (d *Duel) Involves(playerID int64) bool {
	return d.ChallengerID == playerID || d.DefenderID == playerID
}

// Opponent 返回对手ID
func (d *Duel) Opponent(playerID int64) int64 {
	if d.ChallengerID == playerID {
		return d.DefenderID
	}
	return d.ChallengerID
}

// DefaultRating 初始积分
const DefaultRating = 1000

// PvPStats 玩家PvP统计
type PvPStats struct {
	PlayerID      int64 `json:"player_id"`
	Wins          int   `json:"wins"`
	Losses        int   `json:"losses"`
	Draws         int   `json:"draws"`
	GoldWon       int64 `json:"gold_won"`
	GoldLost      int64 `json:"gold_lost"`
	GoldWagered   int64 `json:"gold_wagered"`
	CurrentStreak int   `json:"current_streak"`
	BestStreak    int   `json:"best_streak"`
	Rating        int   `json:"rating"`
}

// NewPvPStats 创建初始统计
func NewPvPStats(playerID int64) *PvPStats {
	return &PvPStats{PlayerID: playerID, Rating: DefaultRating}
}

// TotalMatches 总场次
func (s *PvPStats) TotalMatches() int {
	return s.Wins + s.Losses + s.Draws
}

// WinRate 胜率（百分比）
func (s *PvPStats) WinRate() float64 {
	total := s.TotalMatches()
	if total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(total) * 100
}

// RecordWin 记录一场胜利
func (s *PvPStats) RecordWin(stake int) {
	s.Wins++
	s.GoldWon += int64(stake) * 2
	s.GoldWagered += int64(stake)
	s.CurrentStreak++
	s.BestStreak = max(s.BestStreak, s.CurrentStreak)
}

// RecordLoss 记录一场失败
func (s *PvPStats) RecordLoss(stake int) {
	s.Losses++
	s.GoldLost += int64(stake)
	s.GoldWagered += int64(stake)
	s.CurrentStreak = 0
}

// RecordDraw 记录一场平局，不涉及金币
func (s *PvPStats) RecordDraw() {
	s.Draws++
	s.CurrentStreak = 0
}
