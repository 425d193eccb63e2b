// engine.go

package pvp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jacl-coder/PixelStorm-Arena/internal/combat"
	"github.com/jacl-coder/PixelStorm-Arena/internal/models"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/log"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/metrics"
	"github.com/jacl-coder/PixelStorm-Arena/internal/pkg/xerrors"
)

// Phase 实时战斗阶段
type Phase string

const (
	PhaseWaiting  Phase = "WAITING"
	PhaseReady    Phase = "READY"
	PhaseCombat   Phase = "COMBAT"
	PhaseFinished Phase = "FINISHED"
)

// Action 回合动作
type Action string

const (
	ActionAttack  Action = "ATTACK"
	ActionDefend  Action = "DEFEND"
	ActionSpecial Action = "SPECIAL"
)

// actionModifier 动作对输出伤害与防御除数的修正
type actionModifier struct {
	damage  float64
	defense float64
}

var actionTable = map[Action]actionModifier{
	ActionAttack:  {damage: 1.0, defense: 1.0},
	ActionDefend:  {damage: 0.5, defense: 2.0},
	ActionSpecial: {damage: 1.0, defense: 1.0},
}

const (
	// SpecialHitChance 特殊攻击命中率
	SpecialHitChance = 0.3
	// SpecialHitMultiplier 特殊攻击命中倍率
	SpecialHitMultiplier = 2.0
	// SpecialMissMultiplier 特殊攻击未命中倍率
	SpecialMissMultiplier = 0.8
)

// ParseAction 解析客户端动作，大小写不敏感
func ParseAction(s string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := actionTable[a]; !ok {
		return "", xerrors.Newf(xerrors.CodeInvalidParams, "Unknown action: %s", s)
	}
	return a, nil
}

// Conn 战斗连接，Deliver 不得阻塞，失败时返回错误
type Conn interface {
	Deliver(ev models.Event) error
}

// Settler 结算决斗，winnerID 为 nil 表示平局
type Settler interface {
	Settle(ctx context.Context, duelID int64, winnerID *int64) error
}

// BattleSetup 创建实时战斗所需的参数
type BattleSetup struct {
	BattleID  string
	DuelID    int64
	Player1   models.CombatSnapshot
	Player2   models.CombatSnapshot
	GoldStake int
	// Recovered 由决斗记录重建
	Recovered bool
}

// TurnRecord 一回合的结算记录
type TurnRecord struct {
	Turn    int              `json:"turn"`
	Actions map[int64]Action `json:"actions"`
	Damage  map[int64]int    `json:"damage"`
	HP      map[int64]int    `json:"hp"`
	Effects []string         `json:"effects"`
}

type fighter struct {
	snap    models.CombatSnapshot
	hp      int
	ready   bool
	pending Action
	conn    Conn
}

// Engine 一场实时决斗的内存状态机，所有状态变更在 mu 下串行
type Engine struct {
	mu sync.Mutex

	id        string
	duelID    int64
	stake     int
	recovered bool
	sides     [2]*fighter

	phase    Phase
	turn     int
	history  []TurnRecord
	winnerID *int64
	settled  bool

	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time

	calc          *combat.Calculator
	settler       Settler
	metrics       *metrics.CombatMetrics
	logger        log.Logger
	now           func() time.Time
	actionTimeout time.Duration
	turnTimer     *time.Timer
	onFinish      func(*Engine)
}

type engineOptions struct {
	calc          *combat.Calculator
	settler       Settler
	metrics       *metrics.CombatMetrics
	logger        log.Logger
	now           func() time.Time
	actionTimeout time.Duration
	onFinish      func(*Engine)
}

func newEngine(setup BattleSetup, opts engineOptions) *Engine {
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.logger == nil {
		opts.logger = log.NewNop()
	}
	return &Engine{
		id:        setup.BattleID,
		duelID:    setup.DuelID,
		stake:     setup.GoldStake,
		recovered: setup.Recovered,
		sides: [2]*fighter{
			{snap: setup.Player1, hp: setup.Player1.MaxHP},
			{snap: setup.Player2, hp: setup.Player2.MaxHP},
		},
		phase:         PhaseWaiting,
		turn:          1,
		createdAt:     opts.now(),
		calc:          opts.calc,
		settler:       opts.settler,
		metrics:       opts.metrics,
		logger:        opts.logger.With("battle_id", setup.BattleID, "duel_id", setup.DuelID),
		now:           opts.now,
		actionTimeout: opts.actionTimeout,
		onFinish:      opts.onFinish,
	}
}

// ID 战斗ID
func (e *Engine) ID() string { return e.id }

// DuelID 对应的决斗ID
func (e *Engine) DuelID() int64 { return e.duelID }

// Involves 玩家是否为战斗一方
func (e *Engine) Involves(playerID int64) bool {
	return e.side(playerID) != nil
}

func (e *Engine) side(playerID int64) *fighter {
	for _, f := range e.sides {
		if f.snap.PlayerID == playerID {
			return f
		}
	}
	return nil
}

func (e *Engine) opponent(playerID int64) *fighter {
	if e.sides[0].snap.PlayerID == playerID {
		return e.sides[1]
	}
	return e.sides[0]
}

// ---- 推送 ----

// Header 每条战斗推送都携带的字段
type Header struct {
	BattleID  string    `json:"battle_id"`
	Timestamp time.Time `json:"timestamp"`
}

// FighterView 一方的公开状态
type FighterView struct {
	models.CombatSnapshot
	HP    int  `json:"hp"`
	Ready bool `json:"ready"`
	// Submitted 本回合是否已出招，不暴露具体动作
	Submitted bool `json:"submitted"`
}

// StateView 战斗快照
type StateView struct {
	Header
	DuelID    int64        `json:"duel_id"`
	Phase     Phase        `json:"phase"`
	Turn      int          `json:"turn"`
	GoldStake int          `json:"gold_stake"`
	Player1   FighterView  `json:"player1"`
	Player2   FighterView  `json:"player2"`
	WinnerID  *int64       `json:"winner_id"`
	Recovered bool         `json:"recovered"`
	Log       []TurnRecord `json:"battle_log"`
}

// PlayerReadyPayload 准备通知
type PlayerReadyPayload struct {
	Header
	PlayerID     int64 `json:"player_id"`
	ReadyCount   int   `json:"ready_count"`
	TotalPlayers int   `json:"total_players"`
}

// BattleStartPayload 开战通知
type BattleStartPayload struct {
	Header
	Turn      int         `json:"turn"`
	Player1   FighterView `json:"player1"`
	Player2   FighterView `json:"player2"`
	GoldStake int         `json:"gold_stake"`
}

// TurnPayload 回合号通知
type TurnPayload struct {
	Header
	Turn int `json:"turn"`
}

// TurnResultPayload 回合结算通知
type TurnResultPayload struct {
	Header
	TurnRecord
}

// ForfeitPayload 认输通知
type ForfeitPayload struct {
	Header
	ForfeiterID int64  `json:"forfeiter_id"`
	WinnerID    *int64 `json:"winner_id"`
}

// BattleEndPayload 战斗结束通知
type BattleEndPayload struct {
	Header
	WinnerID   *int64        `json:"winner_id"`
	WinnerName *string       `json:"winner_name"`
	GoldReward int           `json:"gold_reward"`
	FinalHP    map[int64]int `json:"final_hp"`
	TotalTurns int           `json:"total_turns"`
}

func (e *Engine) header() Header {
	return Header{BattleID: e.id, Timestamp: e.now().UTC()}
}

// deliver 单个连接投递失败时记录日志并移除该连接，不影响战斗流程
func (e *Engine) deliver(f *fighter, ev models.Event) {
	if f.conn == nil {
		return
	}
	if err := f.conn.Deliver(ev); err != nil {
		e.logger.Warn("推送失败，移除连接", "player_id", f.snap.PlayerID, "type", ev.Type, "error", err)
		f.conn = nil
	}
}

func (e *Engine) broadcast(ev models.Event) {
	for _, f := range e.sides {
		e.deliver(f, ev)
	}
}

func (e *Engine) view(f *fighter) FighterView {
	return FighterView{
		CombatSnapshot: f.snap,
		HP:             f.hp,
		Ready:          f.ready,
		Submitted:      f.pending != "",
	}
}

func (e *Engine) stateLocked() StateView {
	history := make([]TurnRecord, len(e.history))
	copy(history, e.history)
	return StateView{
		Header:    e.header(),
		DuelID:    e.duelID,
		Phase:     e.phase,
		Turn:      e.turn,
		GoldStake: e.stake,
		Player1:   e.view(e.sides[0]),
		Player2:   e.view(e.sides[1]),
		WinnerID:  e.winnerID,
		Recovered: e.recovered,
		Log:       history,
	}
}

// State 当前战斗快照
func (e *Engine) State() StateView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// Phase 当前阶段
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// FinishedAt 结束时间，未结束返回零值
func (e *Engine) FinishedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishedAt
}

// Attach 登记玩家连接并推送当前状态，同一玩家的旧连接被替换
func (e *Engine) Attach(playerID int64, conn Conn) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.side(playerID)
	if f == nil {
		return xerrors.New(xerrors.CodeNotParticipant, "You are not a participant in this battle")
	}
	f.conn = conn
	e.deliver(f, models.NewEvent(models.EventBattleState, e.stateLocked()))
	return nil
}

// Detach 注销连接；只有仍是当前登记的连接时才移除
func (e *Engine) Detach(playerID int64, conn Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if f := e.side(playerID); f != nil && f.conn == conn {
		f.conn = nil
	}
}

// MarkReady 玩家准备，双方都准备后立即开战
func (e *Engine) MarkReady(playerID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.side(playerID)
	if f == nil {
		return xerrors.New(xerrors.CodeNotParticipant, "You are not a participant in this battle")
	}
	if e.phase != PhaseWaiting || f.ready {
		return nil
	}
	f.ready = true

	count := 0
	for _, s := range e.sides {
		if s.ready {
			count++
		}
	}
	e.broadcast(models.NewEvent(models.EventPlayerReady, PlayerReadyPayload{
		Header:       e.header(),
		PlayerID:     playerID,
		ReadyCount:   count,
		TotalPlayers: len(e.sides),
	}))
	if count == len(e.sides) {
		e.phase = PhaseReady
		e.startLocked()
	}
	return nil
}

func (e *Engine) startLocked() {
	e.phase = PhaseCombat
	e.startedAt = e.now()
	e.logger.Info("实时战斗开始")
	e.broadcast(models.NewEvent(models.EventBattleStart, BattleStartPayload{
		Header:    e.header(),
		Turn:      e.turn,
		Player1:   e.view(e.sides[0]),
		Player2:   e.view(e.sides[1]),
		GoldStake: e.stake,
	}))
	e.armTurnTimerLocked()
}

// SubmitAction 提交本回合动作，双方都提交后同步结算
func (e *Engine) SubmitAction(ctx context.Context, playerID int64, action Action) error {
	if _, ok := actionTable[action]; !ok {
		return xerrors.Newf(xerrors.CodeInvalidParams, "Unknown action: %s", action)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.side(playerID)
	if f == nil {
		return xerrors.New(xerrors.CodeNotParticipant, "You are not a participant in this battle")
	}
	if e.phase != PhaseCombat {
		return xerrors.Newf(xerrors.CodeBattleStateInvalid, "Battle is not in combat (phase: %s)", e.phase)
	}
	f.pending = action
	e.deliver(e.opponent(playerID), models.NewEvent(models.EventOpponentSubmitted, TurnPayload{
		Header: e.header(),
		Turn:   e.turn,
	}))
	if e.sides[0].pending != "" && e.sides[1].pending != "" {
		e.resolveTurnLocked(ctx)
	}
	return nil
}

// outgoing 计算一方本回合造成的伤害
func (e *Engine) outgoing(attacker, defender *fighter, effects *[]string) int {
	mod := actionTable[attacker.pending]
	damageMult := mod.damage
	switch attacker.pending {
	case ActionDefend:
		*effects = append(*effects, attacker.snap.Name+" is defending!")
	case ActionSpecial:
		if e.calc.Chance(SpecialHitChance) {
			damageMult = SpecialHitMultiplier
			*effects = append(*effects, attacker.snap.Name+" lands a CRITICAL hit!")
		} else {
			damageMult = SpecialMissMultiplier
			*effects = append(*effects, attacker.snap.Name+"'s special attack missed!")
		}
	}
	base := combat.BaseDamage(attacker.snap.Attack, defender.snap.Defense)
	dealt := int(float64(base) * damageMult / actionTable[defender.pending].defense)
	return e.calc.Variance(dealt)
}

func (e *Engine) resolveTurnLocked(ctx context.Context) {
	start := time.Now()
	e.stopTurnTimerLocked()

	p1, p2 := e.sides[0], e.sides[1]
	var effects []string
	dealt1 := e.outgoing(p1, p2, &effects)
	dealt2 := e.outgoing(p2, p1, &effects)

	p1.hp = max(0, p1.hp-dealt2)
	p2.hp = max(0, p2.hp-dealt1)

	rec := TurnRecord{
		Turn:    e.turn,
		Actions: map[int64]Action{p1.snap.PlayerID: p1.pending, p2.snap.PlayerID: p2.pending},
		Damage:  map[int64]int{p1.snap.PlayerID: dealt2, p2.snap.PlayerID: dealt1},
		HP:      map[int64]int{p1.snap.PlayerID: p1.hp, p2.snap.PlayerID: p2.hp},
		Effects: effects,
	}
	e.history = append(e.history, rec)
	p1.pending, p2.pending = "", ""

	e.broadcast(models.NewEvent(models.EventTurnResult, TurnResultPayload{Header: e.header(), TurnRecord: rec}))
	e.metrics.ObserveTurn(time.Since(start))

	if p1.hp <= 0 || p2.hp <= 0 {
		switch {
		case p1.hp <= 0 && p2.hp <= 0:
			e.finishLocked(ctx, nil, "draw")
		case p1.hp <= 0:
			e.finishLocked(ctx, &p2.snap.PlayerID, "win")
		default:
			e.finishLocked(ctx, &p1.snap.PlayerID, "win")
		}
		return
	}

	e.turn++
	e.broadcast(models.NewEvent(models.EventRequestAction, TurnPayload{Header: e.header(), Turn: e.turn}))
	e.armTurnTimerLocked()
}

// Forfeit 认输，对手直接获胜
func (e *Engine) Forfeit(ctx context.Context, playerID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.Involves(playerID) {
		return xerrors.New(xerrors.CodeNotParticipant, "You are not a participant in this battle")
	}
	if e.phase == PhaseFinished {
		return xerrors.New(xerrors.CodeBattleStateInvalid, "Battle already finished")
	}
	e.stopTurnTimerLocked()
	winner := e.opponent(playerID).snap.PlayerID
	e.broadcast(models.NewEvent(models.EventBattleForfeit, ForfeitPayload{
		Header:      e.header(),
		ForfeiterID: playerID,
		WinnerID:    &winner,
	}))
	e.finishLocked(ctx, &winner, "forfeit")
	return nil
}

// finishLocked 结束战斗并结算一次
func (e *Engine) finishLocked(ctx context.Context, winnerID *int64, result string) {
	e.phase = PhaseFinished
	e.finishedAt = e.now()
	e.winnerID = winnerID
	e.metrics.RecordPvPBattle(result)

	// 持锁结算：battle_end 必须在结算提交之后发出，数据库变慢时该场战斗的其他消息会一起等待
	if !e.settled && e.settler != nil {
		e.settled = true
		if err := e.settler.Settle(ctx, e.duelID, winnerID); err != nil {
			e.logger.Error("决斗结算失败", err, "winner_id", winnerID)
		}
	}

	end := BattleEndPayload{
		Header:     e.header(),
		WinnerID:   winnerID,
		FinalHP:    map[int64]int{e.sides[0].snap.PlayerID: e.sides[0].hp, e.sides[1].snap.PlayerID: e.sides[1].hp},
		TotalTurns: e.turn,
	}
	if winnerID != nil {
		name := e.side(*winnerID).snap.Name
		end.WinnerName = &name
		end.GoldReward = e.stake * 2
	}
	e.logger.Info("实时战斗结束", "winner_id", winnerID, "result", result, "turns", e.turn)
	e.broadcast(models.NewEvent(models.EventBattleEnd, end))

	if e.onFinish != nil {
		e.onFinish(e)
	}
}

// ---- 出招超时 ----

func (e *Engine) armTurnTimerLocked() {
	if e.actionTimeout <= 0 {
		return
	}
	turn := e.turn
	e.turnTimer = time.AfterFunc(e.actionTimeout, func() { e.onActionTimeout(turn) })
}

func (e *Engine) stopTurnTimerLocked() {
	if e.turnTimer != nil {
		e.turnTimer.Stop()
		e.turnTimer = nil
	}
}

// onActionTimeout 超时未出招的一方按防御处理
func (e *Engine) onActionTimeout(turn int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseCombat || e.turn != turn {
		return
	}
	for _, f := range e.sides {
		if f.pending == "" {
			f.pending = ActionDefend
			e.logger.Info("出招超时，按防御处理", "player_id", f.snap.PlayerID, "turn", turn)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	e.resolveTurnLocked(ctx)
}
