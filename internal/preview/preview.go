package preview

import (
	"fmt"
	"strconv"
	"strings"

	"MantlePilot/internal/intent"
	"MantlePilot/internal/risk"
	"MantlePilot/internal/tokens"
)

// TransactionPreview 是展示给用户的交易前摘要。创建后不可变，
// 服务端绝不在返回之后修改它；"已点击执行"之类的 UI 状态不属于这里。
// 其中的金额换算仅为示意，绝不能作为执行依据。
type TransactionPreview struct {
	Description        string           `json:"description"`
	BeforeBalance      string           `json:"before_balance"`
	AfterBalance       string           `json:"after_balance"`
	NetChange          string           `json:"net_change"`
	GasCost            string           `json:"gas_cost"`
	Risks              []string         `json:"risks"`
	Warnings           []string         `json:"warnings"`
	TimeEstimate       string           `json:"time_estimate"`
	SafetyScore        int              `json:"safety_score"`
	SafetyLevel        risk.SafetyLevel `json:"safety_level"`
	SuccessProbability int              `json:"success_probability"`
	ContractVerified   bool             `json:"contract_verified"`
	AddressRisk        risk.AddressRisk `json:"address_risk"`
}

// Option 配置预览合成。
type Option func(*synthesizer)

// WithRateLookup 替换默认的示意汇率表。
func WithRateLookup(rates tokens.RateLookup) Option {
	return func(s *synthesizer) {
		if rates != nil {
			s.rates = rates
		}
	}
}

// WithLiveBalance 注入链上查询到的当前余额（原生代币计）。
// 未注入时余额叙述退化为估算口径。
func WithLiveBalance(balance float64) Option {
	return func(s *synthesizer) {
		s.balance = &balance
	}
}

type synthesizer struct {
	rates   tokens.RateLookup
	balance *float64
}

// 各动作类型的固定 gas 费文案与耗时估计。
var gasCosts = map[intent.Kind]string{
	intent.KindTransfer:     "~0.0004 MNT (21000 gas)",
	intent.KindSwap:         "~0.003 MNT (150000 gas)",
	intent.KindStake:        "~0.0024 MNT (120000 gas)",
	intent.KindClaimRewards: "~0.0016 MNT (80000 gas)",
	intent.KindUnstake:      "~0.002 MNT (100000 gas)",
	intent.KindPriceQuery:   "none (read-only call)",
}

var timeEstimates = map[intent.Kind]string{
	intent.KindTransfer:     "under 30 seconds",
	intent.KindSwap:         "under 1 minute",
	intent.KindStake:        "under 1 minute",
	intent.KindClaimRewards: "under 30 seconds",
	intent.KindUnstake:      "1-2 minutes",
	intent.KindPriceQuery:   "immediate",
}

// 成功率启发值。地址风险为 dangerous 时统一压到 25%。
var successDefaults = map[intent.Kind]int{
	intent.KindTransfer:     98,
	intent.KindSwap:         95,
	intent.KindStake:        97,
	intent.KindClaimRewards: 98,
	intent.KindUnstake:      97,
	intent.KindPriceQuery:   99,
}

// Synthesize 把评分后的动作转换为人类可读的交易预览。
// 输出完全由输入决定，可直接断言。
func Synthesize(action *intent.ContractAction, safety risk.SafetyAssessment, address risk.AddressAssessment, opts ...Option) *TransactionPreview {
	s := &synthesizer{rates: tokens.DefaultRates()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	p := &TransactionPreview{
		SafetyScore:      safety.Score,
		SafetyLevel:      safety.Level,
		ContractVerified: address.Risk == risk.RiskSafe,
		AddressRisk:      address.Risk,
		GasCost:          gasCosts[action.Kind],
		TimeEstimate:     timeEstimates[action.Kind],
	}

	p.Warnings = append(p.Warnings, address.Warnings...)
	p.Warnings = append(p.Warnings, safety.Warnings...)

	switch action.Kind {
	case intent.KindTransfer:
		s.fillTransfer(p, action)
	case intent.KindSwap:
		s.fillSwap(p, action)
	case intent.KindStake:
		s.fillStake(p, action)
	case intent.KindClaimRewards:
		s.fillClaim(p, action)
	case intent.KindUnstake:
		s.fillUnstake(p, action)
	case intent.KindPriceQuery:
		s.fillPriceQuery(p, action)
	default:
		p.Description = "Unrecognized action."
		p.BeforeBalance = s.balanceNarrative()
		p.AfterBalance = "unknown"
		p.NetChange = "unknown"
		p.GasCost = "unknown"
		p.TimeEstimate = "unknown"
		p.Risks = append(p.Risks, "The requested action could not be categorized.")
	}

	p.SuccessProbability = successDefaults[action.Kind]
	if p.SuccessProbability == 0 {
		p.SuccessProbability = 50
	}
	if address.Risk == risk.RiskDangerous {
		p.SuccessProbability = 25
	}

	return p
}

func (s *synthesizer) fillTransfer(p *TransactionPreview, action *intent.ContractAction) {
	amount := parseAmount(action.Param(intent.ParamAmount))
	p.Description = fmt.Sprintf("Send %s MNT to %s",
		action.Param(intent.ParamAmount), shortAddress(action.Param(intent.ParamRecipient)))
	p.BeforeBalance = s.balanceNarrative()
	p.AfterBalance = s.afterNarrative(-amount)
	p.NetChange = s.usdChange(-amount, tokens.NativeSymbol)
	p.Risks = append(p.Risks,
		"Transfers are irreversible once confirmed on-chain.",
		"Double-check the recipient address before signing.")
}

func (s *synthesizer) fillSwap(p *TransactionPreview, action *intent.ContractAction) {
	amount := parseAmount(action.Param(intent.ParamAmount))
	tokenIn := action.Param(intent.ParamTokenIn)
	tokenOut := action.Param(intent.ParamTokenOut)
	p.Description = fmt.Sprintf("Swap %s %s for %s on Agni Finance",
		action.Param(intent.ParamAmount), tokenIn, tokenOut)
	p.BeforeBalance = s.balanceNarrative()
	p.AfterBalance = fmt.Sprintf("%s %s less, %s received at the quoted rate",
		action.Param(intent.ParamAmount), tokenIn, tokenOut)
	p.NetChange = s.usdChange(0, tokenIn) + fmt.Sprintf(" (swapping ≈%s of %s)", s.usdValue(amount, tokenIn), tokenIn)
	p.Risks = append(p.Risks,
		"Price slippage can change the final output amount.",
		"Pool liquidity affects the effective exchange rate.")
}

func (s *synthesizer) fillStake(p *TransactionPreview, action *intent.ContractAction) {
	amount := parseAmount(action.Param(intent.ParamAmount))
	p.Description = fmt.Sprintf("Stake %s MNT with the Mantle staking contract",
		action.Param(intent.ParamAmount))
	p.BeforeBalance = s.balanceNarrative()
	p.AfterBalance = s.afterNarrative(-amount)
	p.NetChange = fmt.Sprintf("%s MNT moves into the staking position (≈%s)",
		action.Param(intent.ParamAmount), s.usdValue(amount, tokens.NativeSymbol))
	p.Risks = append(p.Risks,
		"Staked funds are locked until unstaked.",
		"Unstaking is subject to a cooldown period.")
	p.Warnings = append(p.Warnings,
		"Staking rewards accrue starting from the next epoch, not immediately.")
	if from := action.Param(intent.ParamConvertedFrom); from != "" {
		p.Warnings = append(p.Warnings, fmt.Sprintf(
			"You asked to stake %s, but only native MNT staking is supported; the request was converted to MNT.",
			strings.ToUpper(from)))
	}
}

func (s *synthesizer) fillClaim(p *TransactionPreview, action *intent.ContractAction) {
	p.Description = "Claim accumulated staking rewards"
	p.BeforeBalance = s.balanceNarrative()
	p.AfterBalance = "balance increases by the pending reward amount"
	p.NetChange = "positive (pending rewards, amount determined on-chain)"
	p.Risks = append(p.Risks,
		"Claiming has no effect if no rewards have accrued yet.")
}

func (s *synthesizer) fillUnstake(p *TransactionPreview, action *intent.ContractAction) {
	p.Description = "Unstake MNT from the Mantle staking contract"
	p.BeforeBalance = s.balanceNarrative()
	p.AfterBalance = "staked position returns to the wallet after the cooldown"
	p.NetChange = "neutral (funds move from staking back to wallet)"
	p.Risks = append(p.Risks,
		"Unstaking forfeits rewards that have not been claimed.",
		"A cooldown period applies before funds are withdrawable.")
}

func (s *synthesizer) fillPriceQuery(p *TransactionPreview, action *intent.ContractAction) {
	p.Description = fmt.Sprintf("Read current market prices for %s",
		action.Param(intent.ParamTokens))
	p.BeforeBalance = s.balanceNarrative()
	p.AfterBalance = p.BeforeBalance
	p.NetChange = "none (read-only)"
	p.Risks = append(p.Risks, "Quoted prices are indicative and may lag the market.")
}

// balanceNarrative 在没有链上数据时退化为估算口径。
func (s *synthesizer) balanceNarrative() string {
	if s.balance != nil {
		return fmt.Sprintf("%.4f MNT (live)", *s.balance)
	}
	return "current wallet balance (not queried)"
}

func (s *synthesizer) afterNarrative(delta float64) string {
	if s.balance != nil {
		return fmt.Sprintf("%.4f MNT (estimated)", *s.balance+delta)
	}
	if delta < 0 {
		return fmt.Sprintf("decreases by %s MNT plus gas", strconv.FormatFloat(-delta, 'f', -1, 64))
	}
	return fmt.Sprintf("increases by %s MNT", strconv.FormatFloat(delta, 'f', -1, 64))
}

func (s *synthesizer) usdChange(delta float64, symbol string) string {
	if delta == 0 {
		return "no net change expected"
	}
	sign := "-"
	if delta > 0 {
		sign = "+"
		delta = -delta
	}
	return fmt.Sprintf("%s%s", sign, s.usdValue(-delta, symbol))
}

func (s *synthesizer) usdValue(amount float64, symbol string) string {
	rate, ok := s.rates.USDRate(symbol)
	if !ok {
		return fmt.Sprintf("%s %s", strconv.FormatFloat(amount, 'f', -1, 64), symbol)
	}
	return fmt.Sprintf("$%.2f (illustrative rate)", amount*rate)
}

func parseAmount(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return value
}

func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}
