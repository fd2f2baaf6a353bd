package tokens

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Token 描述一个内置支持的代币。
type Token struct {
	Symbol   string
	Address  string
	Decimals int
	Native   bool
}

// Contract 描述一个已知安全的合约。
type Contract struct {
	Name    string
	Address string
}

// NativeSymbol 是 Mantle 网络的原生代币符号。
const NativeSymbol = "MNT"

// ZeroAddress 是全零地址，向其转账会导致资金永久丢失。
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// PriceOracleAddress 是价格查询使用的固定喂价合约地址。
const PriceOracleAddress = "0x7f7a1b7E02F66BbF0e8BBe7fd0b0bc5a59a2091b"

// 内置代币表。地址为 Mantle 主网部署，符号索引统一使用大写。
var tokenTable = map[string]Token{
	"MNT":  {Symbol: "MNT", Address: "0x78c1b0C915c4FAA5FffA6CAbf0219DA63d7f4cb8", Decimals: 18, Native: true},
	"WMNT": {Symbol: "WMNT", Address: "0x78c1b0C915c4FAA5FffA6CAbf0219DA63d7f4cb8", Decimals: 18},
	"USDC": {Symbol: "USDC", Address: "0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9", Decimals: 6},
	"USDT": {Symbol: "USDT", Address: "0x201EBa5CC46D216Ce6DC03F6a759e8E766e956aE", Decimals: 6},
	"WETH": {Symbol: "WETH", Address: "0xdEAddEaDdeadDEadDEADDEAddEADDEAddead1111", Decimals: 18},
	"METH": {Symbol: "mETH", Address: "0xcDA86A272531e8640cD7F1a92c01839911B90bb0", Decimals: 18},
}

// 已知安全合约的允许清单。风险分析器以此为基准做精确匹配与相似度比对。
var knownContracts = []Contract{
	{Name: "Agni Finance Router", Address: "0x319B69888b0d11cEC22caA5034e25FfFBDc88421"},
	{Name: "Mantle Staking", Address: "0xeD884f0460A634C69dbb7def54858465808AACEf"},
	{Name: "USDC Token", Address: "0x09Bc4E0D864854c6aFB6eB9A9cdF58aC190D0dF9"},
	{Name: "WMNT Token", Address: "0x78c1b0C915c4FAA5FffA6CAbf0219DA63d7f4cb8"},
	{Name: "Price Oracle", Address: PriceOracleAddress},
}

// SwapRouterAddress 返回默认 DEX 路由合约地址。
func SwapRouterAddress() string {
	return knownContracts[0].Address
}

// StakingContractAddress 返回质押合约地址。
func StakingContractAddress() string {
	return knownContracts[1].Address
}

// Resolve 按符号查找代币，大小写不敏感。
func Resolve(symbol string) (Token, bool) {
	token, ok := tokenTable[strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}

// Supported 返回所有受支持的代币符号，顺序固定。
func Supported() []string {
	return []string{"MNT", "WMNT", "USDC", "USDT", "WETH", "mETH"}
}

// KnownContracts 返回已知安全合约清单的副本。
func KnownContracts() []Contract {
	out := make([]Contract, len(knownContracts))
	copy(out, knownContracts)
	return out
}

// IsValidAddress 校验字符串是否为合法的 20 字节十六进制地址。
func IsValidAddress(addr string) bool {
	return common.IsHexAddress(strings.TrimSpace(addr))
}

// Normalize 将地址转换为 EIP-55 校验和格式，便于做精确比较与展示。
func Normalize(addr string) string {
	if !common.IsHexAddress(addr) {
		return strings.TrimSpace(addr)
	}
	return common.HexToAddress(addr).Hex()
}

// RateLookup 返回代币的美元参考价。预览文案使用该报价估算余额变化，
// 报价仅用于展示，绝不能作为执行依据；后续可以替换为真实喂价数据源。
type RateLookup interface {
	USDRate(symbol string) (float64, bool)
}

// StaticRates 是内置的示意汇率表。
type StaticRates map[string]float64

// USDRate 实现 RateLookup。
func (r StaticRates) USDRate(symbol string) (float64, bool) {
	rate, ok := r[strings.ToUpper(strings.TrimSpace(symbol))]
	return rate, ok
}

// DefaultRates 返回默认的示意汇率表。
func DefaultRates() StaticRates {
	return StaticRates{
		"MNT":  0.65,
		"WMNT": 0.65,
		"USDC": 1.0,
		"USDT": 1.0,
		"WETH": 2450.0,
		"METH": 2520.0,
	}
}
