package risk

import (
	"fmt"
	"strings"

	"MantlePilot/internal/tokens"
)

// AddressRisk 表示目标地址的风险等级。
type AddressRisk string

const (
	RiskSafe       AddressRisk = "safe"
	RiskUnknown    AddressRisk = "unknown"
	RiskSuspicious AddressRisk = "suspicious"
	RiskDangerous  AddressRisk = "dangerous"
)

// AddressAssessment 是地址风险分析的结果。
// 这是一个保守的启发式判断，绝不能当作权威的安全验证展示给用户。
type AddressAssessment struct {
	Risk     AddressRisk `json:"risk"`
	Warnings []string    `json:"warnings"`
}

// similarityThreshold 超过该相似度但又非精确匹配的地址视为仿冒嫌疑。
const similarityThreshold = 0.8

// AssessAddress 按固定顺序对目标地址做风险分级，第一条命中的规则获胜：
// 全零地址 → dangerous；允许清单精确匹配 → safe；
// 与清单地址按位相似度超过阈值 → suspicious；其余 → unknown。
func AssessAddress(address string) AddressAssessment {
	normalized := strings.ToLower(strings.TrimSpace(address))

	if normalized == strings.ToLower(tokens.ZeroAddress) {
		return AddressAssessment{
			Risk:     RiskDangerous,
			Warnings: []string{"This is the zero address: funds will be lost permanently."},
		}
	}

	for _, contract := range tokens.KnownContracts() {
		if normalized == strings.ToLower(contract.Address) {
			return AddressAssessment{Risk: RiskSafe}
		}
	}

	for _, contract := range tokens.KnownContracts() {
		score := similarity(normalized, strings.ToLower(contract.Address))
		if score > similarityThreshold {
			return AddressAssessment{
				Risk: RiskSuspicious,
				Warnings: []string{fmt.Sprintf(
					"Address closely resembles %s (%s) but does not match exactly; this is a common spoofing pattern.",
					contract.Name, contract.Address)},
			}
		}
	}

	return AddressAssessment{
		Risk:     RiskUnknown,
		Warnings: []string{"Address is not on the known-contract list; exercise caution."},
	}
}

// similarity 计算同位字符相同的比例，除以较长字符串的长度。
func similarity(a, b string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shorter := len(a)
	longer := len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	same := 0
	for i := 0; i < shorter; i++ {
		if a[i] == b[i] {
			same++
		}
	}
	return float64(same) / float64(longer)
}
