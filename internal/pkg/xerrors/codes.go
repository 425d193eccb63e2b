package xerrors

import "fmt"

// ErrorCode 错误码类型
type ErrorCode int

// String 返回错误码的字符串表示
func (c ErrorCode) String() string {
	if msg, ok := codeMessages[c]; ok {
		return fmt.Sprintf("%d (%s)", c, msg)
	}
	return fmt.Sprintf("%d (未定义的错误码)", c)
}

// Message 返回错误码对应的默认消息
func (c ErrorCode) Message() string {
	if msg, ok := codeMessages[c]; ok {
		return msg
	}
	return "未知错误"
}

const (
	// 1xxxxx: 通用错误码
	CodeInternalError    ErrorCode = 100001 // 内部服务错误
	CodeInvalidParams    ErrorCode = 100002 // 参数错误
	CodeResourceNotFound ErrorCode = 100404 // 资源不存在
	CodeStorageConflict  ErrorCode = 100409 // 并发写冲突
	CodeRateLimited      ErrorCode = 100429 // 请求频率限制

	// 2xxxxx: 认证
	CodeInvalidToken ErrorCode = 200002 // 无效令牌

	// 4xxxxx: PvE 战斗
	CodeBattleStateInvalid  ErrorCode = 400001 // 战斗状态不允许该操作
	CodeNotParticipant      ErrorCode = 400002 // 不是战斗参与者
	CodeInsufficientStamina ErrorCode = 400003 // 体力不足
	CodeLevelTooLow         ErrorCode = 400004 // 等级不足
	CodeBattleFull          ErrorCode = 400005 // 战斗人数已满
	CodePlayerDead          ErrorCode = 400006 // 玩家已阵亡
	CodeCooldownActive      ErrorCode = 400007 // 复活冷却中
	CodeAlreadyClaimed      ErrorCode = 400008 // 奖励已领取
	CodeEnemyDefeated       ErrorCode = 400009 // 敌人已被击败
	CodeInsufficientGems    ErrorCode = 400010 // 宝石不足

	// 5xxxxx: PvP 决斗
	CodeInsufficientGold ErrorCode = 500001 // 金币不足
	CodeDuelConflict     ErrorCode = 500002 // 双方已有进行中的决斗
	CodeDuelExpired      ErrorCode = 500003 // 挑战已过期
	CodeDuelStateInvalid ErrorCode = 500004 // 决斗状态不允许该操作
)

var codeMessages = map[ErrorCode]string{
	CodeInternalError:    "内部服务错误",
	CodeInvalidParams:    "参数错误",
	CodeResourceNotFound: "资源不存在",
	CodeStorageConflict:  "并发写冲突，请重试",
	CodeRateLimited:      "请求过于频繁",

	CodeInvalidToken: "无效令牌",

	CodeBattleStateInvalid:  "战斗状态不允许该操作",
	CodeNotParticipant:      "不是战斗参与者",
	CodeInsufficientStamina: "体力不足",
	CodeLevelTooLow:         "等级不足",
	CodeBattleFull:          "战斗人数已满",
	CodePlayerDead:          "玩家已阵亡",
	CodeCooldownActive:      "复活冷却中",
	CodeAlreadyClaimed:      "奖励已领取",
	CodeEnemyDefeated:       "敌人已被击败",
	CodeInsufficientGems:    "宝石不足",

	CodeInsufficientGold: "金币不足",
	CodeDuelConflict:     "双方已有进行中的决斗",
	CodeDuelExpired:      "挑战已过期",
	CodeDuelStateInvalid: "决斗状态不允许该操作",
}

// getCategoryByCode 根据错误码段确定分类
func getCategoryByCode(code ErrorCode) string {
	switch {
	case code >= 100000 && code < 200000:
		return "system"
	case code >= 200000 && code < 300000:
		return "auth"
	case code >= 400000 && code < 500000:
		return "pve"
	case code >= 500000 && code < 600000:
		return "pvp"
	default:
		return "unknown"
	}
}
