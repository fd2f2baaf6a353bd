package registry

// Category 表示一次请求的处理类别。
type Category string

const (
	CategoryConversational Category = "conversational"
	CategoryAnalysis       Category = "analysis"
	CategoryExecution      Category = "execution"
)

// HandlerID 唯一标识一个请求处理器。
type HandlerID string

const (
	HandlerChat      HandlerID = "chat"
	HandlerBalance   HandlerID = "balance"
	HandlerPortfolio HandlerID = "portfolio"
	HandlerRisk      HandlerID = "risk_report"
	HandlerTransfer  HandlerID = "transfer"
	HandlerSwap      HandlerID = "swap"
	HandlerStaking   HandlerID = "staking"
	HandlerMarket    HandlerID = "market"
)

// ActionCapability 描述一个处理器的静态能力：
// 所属类别、是否需要钱包身份、是否需要交易确认。
// 表内容在进程生命周期内不可变。
type ActionCapability struct {
	ID                  HandlerID
	Category            Category
	RequiresWallet      bool
	RequiresTransaction bool
}

var capabilities = map[HandlerID]ActionCapability{
	HandlerChat:      {ID: HandlerChat, Category: CategoryConversational},
	HandlerBalance:   {ID: HandlerBalance, Category: CategoryAnalysis, RequiresWallet: true},
	HandlerPortfolio: {ID: HandlerPortfolio, Category: CategoryAnalysis, RequiresWallet: true},
	HandlerRisk:      {ID: HandlerRisk, Category: CategoryAnalysis, RequiresWallet: true},
	HandlerTransfer:  {ID: HandlerTransfer, Category: CategoryExecution, RequiresWallet: true, RequiresTransaction: true},
	HandlerSwap:      {ID: HandlerSwap, Category: CategoryExecution, RequiresWallet: true, RequiresTransaction: true},
	HandlerStaking:   {ID: HandlerStaking, Category: CategoryExecution, RequiresWallet: true, RequiresTransaction: true},
	HandlerMarket:    {ID: HandlerMarket, Category: CategoryExecution},
}

// Lookup 返回处理器的能力描述。
func Lookup(id HandlerID) (ActionCapability, bool) {
	capability, ok := capabilities[id]
	return capability, ok
}

// All 返回全部能力描述的副本，顺序固定。
func All() []ActionCapability {
	ids := []HandlerID{
		HandlerChat,
		HandlerBalance,
		HandlerPortfolio,
		HandlerRisk,
		HandlerTransfer,
		HandlerSwap,
		HandlerStaking,
		HandlerMarket,
	}
	out := make([]ActionCapability, 0, len(ids))
	for _, id := range ids {
		out = append(out, capabilities[id])
	}
	return out
}
