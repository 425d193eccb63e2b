package models

// 推送事件类型
const (
	// PvE 战斗房间
	EventAttack          = "attack"
	EventBossPhaseChange = "boss_phase_change"
	EventPlayerJoined    = "player_joined"
	EventPlayerDied      = "player_died"
	EventPlayerResurrect = "player_resurrected"
	EventLootClaimed     = "loot_claimed"
	EventBattleCompleted = "battle_completed"
	EventBattleStateFull = "battle_state_full"

	// PvP 通知
	EventChallengeReceived  = "challenge_received"
	EventChallengeResponse  = "challenge_response"
	EventChallengeCancelled = "challenge_cancelled"
	EventBattleCreated      = "battle_created"
	EventDuelCompleted      = "duel_completed"

	// PvP 实时战斗
	EventBattleState       = "battle_state"
	EventPlayerReady       = "player_ready"
	EventBattleStart       = "battle_start"
	EventOpponentSubmitted = "opponent_action_submitted"
	EventTurnResult        = "turn_result"
	EventRequestAction     = "request_action"
	EventBattleForfeit     = "battle_forfeit"
	EventBattleEnd         = "battle_end"
	EventPong              = "pong"
	EventError             = "error"
)

// Event 推送给客户端的消息
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// NewEvent 创建事件
func NewEvent(eventType string, payload any) Event {
	return Event{Type: eventType, Payload: payload}
}

// ErrorEvent 错误消息
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Payload: map[string]any{"message": message}}
}
