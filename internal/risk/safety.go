package risk

import (
	"MantlePilot/internal/intent"
)

// SafetyLevel 是由数值分数推导出的四级安全等级。
type SafetyLevel string

const (
	LevelHigh   SafetyLevel = "high"
	LevelMedium SafetyLevel = "medium"
	LevelLow    SafetyLevel = "low"
	LevelDanger SafetyLevel = "danger"
)

// SafetyAssessment 汇总一次动作的安全评分。
type SafetyAssessment struct {
	Score    int         `json:"score"`
	Level    SafetyLevel `json:"level"`
	Warnings []string    `json:"warnings,omitempty"`
}

// 地址风险扣分。
var addressPenalties = map[AddressRisk]int{
	RiskDangerous:  -70,
	RiskSuspicious: -40,
	RiskUnknown:    -20,
	RiskSafe:       0,
}

// 动作类型的基础调整分。
var kindAdjustments = map[intent.Kind]int{
	intent.KindPriceQuery:   0,
	intent.KindTransfer:     -10,
	intent.KindSwap:         -25,
	intent.KindStake:        -10,
	intent.KindClaimRewards: 5,
	intent.KindUnstake:      -5,
}

// unknownKindPenalty 是兜底路径：评分器永远不抛错，
// 无法识别的动作类型也要得到一个有效的（偏低的）分数。
const unknownKindPenalty = -60

// Score 把地址风险、金额量级与动作基础风险合成 0-100 的安全分。
// 所有调整项彼此独立、只做加法，先求和再截断，因而与求值顺序无关，
// 测试可以直接用算术验证。amount 为 nil 表示动作不涉及金额。
func Score(action *intent.ContractAction, address AddressAssessment, amount *float64) SafetyAssessment {
	score := 100
	var warnings []string

	score += addressPenalties[address.Risk]

	if amount != nil {
		score += amountPenalty(*amount)
	}

	if action == nil {
		score += unknownKindPenalty
		warnings = append(warnings, "Action kind is unrecognized; treating it as high risk.")
	} else if adjustment, ok := kindAdjustments[action.Kind]; ok {
		score += adjustment
	} else {
		score += unknownKindPenalty
		warnings = append(warnings, "Action kind is unrecognized; treating it as high risk.")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return SafetyAssessment{
		Score:    score,
		Level:    levelOf(score),
		Warnings: warnings,
	}
}

func amountPenalty(amount float64) int {
	switch {
	case amount > 1000:
		return -30
	case amount > 100:
		return -15
	case amount > 10:
		return -5
	default:
		return 0
	}
}

// levelOf 将分数映射到安全等级。映射对分数单调：分数越高等级越好。
func levelOf(score int) SafetyLevel {
	switch {
	case score >= 80:
		return LevelHigh
	case score >= 60:
		return LevelMedium
	case score >= 30:
		return LevelLow
	default:
		return LevelDanger
	}
}
