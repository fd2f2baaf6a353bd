package intent

// Kind 枚举所有受支持的链上动作类型。
type Kind string

const (
	KindTransfer     Kind = "transfer"
	KindSwap         Kind = "swap"
	KindStake        Kind = "stake"
	KindClaimRewards Kind = "claim_rewards"
	KindUnstake      Kind = "unstake"
	KindPriceQuery   Kind = "price_query"
	KindUnknown      Kind = "unknown"
)

// 常用参数键。解析器写入、预览合成器读取。
const (
	ParamRecipient     = "recipient"
	ParamAmount        = "amount"
	ParamFrom          = "from"
	ParamTokenIn       = "token_in"
	ParamTokenOut      = "token_out"
	ParamTokenInAddr   = "token_in_address"
	ParamTokenOutAddr  = "token_out_address"
	ParamToken         = "token"
	ParamTokens        = "tokens"
	ParamConvertedFrom = "converted_from"
)

// ContractAction 是从自然语言中抽取出的结构化动作描述。
// 除 price_query 指向固定喂价合约外，Kind 不为 unknown 时
// TargetAddress 必须是合法的 20 字节十六进制地址。
type ContractAction struct {
	Kind              Kind              `json:"kind"`
	TargetAddress     string            `json:"target_address"`
	FunctionName      string            `json:"function_name"`
	Parameters        map[string]string `json:"parameters"`
	EstimatedGasUnits uint64            `json:"estimated_gas_units"`
}

// Param 返回指定参数值，缺失时返回空字符串。
func (a *ContractAction) Param(key string) string {
	if a == nil || a.Parameters == nil {
		return ""
	}
	return a.Parameters[key]
}
