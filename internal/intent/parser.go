package intent

import (
	"regexp"
	"strings"

	xerrors "MantlePilot/internal/errors"
	"MantlePilot/internal/tokens"
)

// 解析规则按固定顺序自上而下求值，第一条命中的规则获胜，
// 后续规则不再尝试。顺序本身是策略的一部分，调整即破坏可复现性。
var (
	transferPattern = regexp.MustCompile(`(?i)\bsend\s+(\d+(?:\.\d+)?)\s+mnt\s+to\s+(\S+)`)
	swapPattern     = regexp.MustCompile(`(?i)\bswap\s+(\d+(?:\.\d+)?)\s+([a-z]+)\s+(?:for|to)\s+([a-z]+)`)
	stakePattern    = regexp.MustCompile(`(?i)\bstake\b(?:\s+(\d+(?:\.\d+)?)(?:\s+([a-z]+))?)?`)
	wordStake       = regexp.MustCompile(`(?i)\bstake\b`)
	wordUnstake     = regexp.MustCompile(`(?i)\bunstake\b`)
)

// defaultStakeAmount 在用户没有给出数量时使用。
const defaultStakeAmount = "1"

// 各动作类型的固定 gas 估算值（单位 gas）。
const (
	gasTransfer = 21000
	gasSwap     = 150000
	gasStake    = 120000
	gasClaim    = 80000
	gasUnstake  = 100000
)

// Parse 从自然语言查询中抽取结构化动作。
// 返回 (nil, nil) 表示没有规则命中（no-match）：这不是错误，
// 调用方应请求用户澄清。仅当转账目标地址形状非法时返回
// ADDRESS_MALFORMED 错误，此时不应再做任何评分。
func Parse(query, userAddress string) (*ContractAction, error) {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil, nil
	}

	// 规则 1：转账 send <amount> MNT to <address>。
	if match := transferPattern.FindStringSubmatch(normalized); match != nil {
		recipient := strings.TrimSpace(match[2])
		if !tokens.IsValidAddress(recipient) {
			return nil, xerrors.New(xerrors.CodeAddressMalformed,
				"transfer recipient is not a valid hex address",
				xerrors.WithMetadata("recipient", recipient))
		}
		return &ContractAction{
			Kind:          KindTransfer,
			TargetAddress: tokens.Normalize(recipient),
			FunctionName:  "transfer",
			Parameters: map[string]string{
				ParamRecipient: tokens.Normalize(recipient),
				ParamAmount:    match[1],
				ParamFrom:      userAddress,
			},
			EstimatedGasUnits: gasTransfer,
		}, nil
	}

	// 规则 2：兑换 swap <amount> <tokenA> for <tokenB>。
	// 任一符号不在代币表中时规则不命中，继续尝试后续规则。
	if match := swapPattern.FindStringSubmatch(normalized); match != nil {
		tokenIn, okIn := tokens.Resolve(match[2])
		tokenOut, okOut := tokens.Resolve(match[3])
		if okIn && okOut {
			return &ContractAction{
				Kind:          KindSwap,
				TargetAddress: tokens.SwapRouterAddress(),
				FunctionName:  "exactInputSingle",
				Parameters: map[string]string{
					ParamAmount:       match[1],
					ParamTokenIn:      tokenIn.Symbol,
					ParamTokenOut:     tokenOut.Symbol,
					ParamTokenInAddr:  tokenIn.Address,
					ParamTokenOutAddr: tokenOut.Address,
					ParamFrom:         userAddress,
				},
				EstimatedGasUnits: gasSwap,
			}, nil
		}
	}

	// 规则 3：行情查询。
	if containsAnyWord(normalized, "price", "market", "feed") {
		return &ContractAction{
			Kind:          KindPriceQuery,
			TargetAddress: tokens.PriceOracleAddress,
			FunctionName:  "latestAnswer",
			Parameters: map[string]string{
				ParamTokens: strings.Join(tokens.Supported(), ","),
			},
		}, nil
	}

	// 规则 4：质押。数量缺省为固定值；"eth" 代币提示会被替换为
	// 原生质押代币，替换事实通过参数透出，预览层必须向用户提示。
	if wordStake.MatchString(normalized) && !wordUnstake.MatchString(normalized) {
		amount := defaultStakeAmount
		converted := ""
		if match := stakePattern.FindStringSubmatch(normalized); match != nil {
			if match[1] != "" {
				amount = match[1]
			}
			if hint := strings.ToLower(match[2]); hint == "eth" || hint == "weth" {
				converted = hint
			}
		}
		params := map[string]string{
			ParamAmount: amount,
			ParamToken:  tokens.NativeSymbol,
			ParamFrom:   userAddress,
		}
		if converted != "" {
			params[ParamConvertedFrom] = converted
		}
		return &ContractAction{
			Kind:              KindStake,
			TargetAddress:     tokens.StakingContractAddress(),
			FunctionName:      "stake",
			Parameters:        params,
			EstimatedGasUnits: gasStake,
		}, nil
	}

	// 规则 5：领取质押奖励。
	if strings.Contains(normalized, "claim") &&
		(strings.Contains(normalized, "reward") || strings.Contains(normalized, "staking")) {
		return &ContractAction{
			Kind:              KindClaimRewards,
			TargetAddress:     tokens.StakingContractAddress(),
			FunctionName:      "claimRewards",
			Parameters:        map[string]string{ParamFrom: userAddress},
			EstimatedGasUnits: gasClaim,
		}, nil
	}

	// 规则 6：解除质押。
	if wordUnstake.MatchString(normalized) ||
		(strings.Contains(normalized, "withdraw") && strings.Contains(normalized, "staking")) {
		return &ContractAction{
			Kind:              KindUnstake,
			TargetAddress:     tokens.StakingContractAddress(),
			FunctionName:      "unstake",
			Parameters:        map[string]string{ParamFrom: userAddress},
			EstimatedGasUnits: gasUnstake,
		}, nil
	}

	return nil, nil
}

func containsAnyWord(text string, words ...string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
