package classify

import (
	"strings"

	"MantlePilot/internal/registry"
)

// Result 描述一次查询分类的输出。每次请求都会重新计算，不做任何缓存。
type Result struct {
	Category            registry.Category    `json:"category"`
	Handlers            []registry.HandlerID `json:"handlers"`
	RequiresWallet      bool                 `json:"requires_wallet"`
	RequiresTransaction bool                 `json:"requires_transaction"`
}

// minStructuredLength 以下的消息直接按闲聊处理，不做结构化分析。
const minStructuredLength = 8

// 短问候语清单。命中后完全绕过结构化处理。
var greetings = map[string]struct{}{
	"hi":        {},
	"hello":     {},
	"hey":       {},
	"thanks":    {},
	"thank you": {},
	"ok":        {},
	"okay":      {},
	"yo":        {},
	"gm":        {},
}

// 执行类意图短语。命中任一短语即归入执行类别，优先级最高：
// 执行类关键词与分析类关键词冲突时始终由执行类胜出，该顺序是
// 既定策略，不能调整。
var executionPhrases = []string{
	"swap", "trade", "stake", "unstake", "claim", "send", "transfer",
	"withdraw", "price", "market", "feed", "buy", "sell",
}

// 分析类意图短语。仅在用户已连接钱包时生效。
var analysisPhrases = []string{
	"balance", "portfolio", "holding", "risk", "exposure", "history",
}

// 执行类内部的二级关键词表，按固定顺序求值。
var executionHandlers = []struct {
	handler  registry.HandlerID
	keywords []string
}{
	{registry.HandlerStaking, []string{"stake", "unstake", "claim", "staking"}},
	{registry.HandlerSwap, []string{"swap", "trade", "buy", "sell"}},
	{registry.HandlerTransfer, []string{"send", "transfer"}},
	{registry.HandlerMarket, []string{"price", "market", "feed"}},
}

// 分析类内部的二级关键词表。
var analysisHandlers = []struct {
	handler  registry.HandlerID
	keywords []string
}{
	{registry.HandlerBalance, []string{"balance", "holding"}},
	{registry.HandlerRisk, []string{"risk", "exposure"}},
	{registry.HandlerPortfolio, []string{"portfolio", "history"}},
}

// Classify 将自由文本映射到处理类别与候选处理器列表。
// 纯函数：相同输入永远得到相同输出。
func Classify(query string, hasWallet bool) Result {
	normalized := strings.ToLower(strings.TrimSpace(query))

	if isSmallTalk(normalized) {
		return conversational()
	}

	if containsAny(normalized, executionPhrases) {
		handler := matchHandler(normalized, executionHandlers, registry.HandlerMarket)
		return buildResult(registry.CategoryExecution, handler, registry.HandlerMarket)
	}

	if hasWallet && containsAny(normalized, analysisPhrases) {
		handler := matchHandler(normalized, analysisHandlers, registry.HandlerPortfolio)
		return buildResult(registry.CategoryAnalysis, handler, registry.HandlerPortfolio)
	}

	return conversational()
}

// isSmallTalk 判断消息是否应绕过结构化处理。
func isSmallTalk(normalized string) bool {
	if len(normalized) < minStructuredLength {
		return true
	}
	_, ok := greetings[normalized]
	return ok
}

func conversational() Result {
	return Result{
		Category: registry.CategoryConversational,
		Handlers: []registry.HandlerID{registry.HandlerChat},
	}
}

func buildResult(category registry.Category, handler, fallback registry.HandlerID) Result {
	handlers := []registry.HandlerID{handler}
	if handler != fallback {
		handlers = append(handlers, fallback)
	}
	handlers = append(handlers, registry.HandlerChat)

	requiresWallet := false
	requiresTransaction := false
	if capability, ok := registry.Lookup(handler); ok {
		requiresWallet = capability.RequiresWallet
		requiresTransaction = capability.RequiresTransaction
	}
	return Result{
		Category:            category,
		Handlers:            handlers,
		RequiresWallet:      requiresWallet,
		RequiresTransaction: requiresTransaction,
	}
}

func containsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

func matchHandler(text string, table []struct {
	handler  registry.HandlerID
	keywords []string
}, fallback registry.HandlerID) registry.HandlerID {
	for _, entry := range table {
		for _, keyword := range entry.keywords {
			if strings.Contains(text, keyword) {
				return entry.handler
			}
		}
	}
	return fallback
}
