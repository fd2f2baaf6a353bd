package assistant

import (
	"context"
	stdErrors "errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"MantlePilot/internal/classify"
	xerrors "MantlePilot/internal/errors"
	"MantlePilot/internal/intent"
	"MantlePilot/internal/knowledge"
	"MantlePilot/internal/llm"
	"MantlePilot/internal/preview"
	"MantlePilot/internal/registry"
	"MantlePilot/internal/risk"
	"MantlePilot/internal/tokens"
	"MantlePilot/internal/web3"
	"MantlePilot/pkg/logger"
)

// Request 描述一次用户提问。
type Request struct {
	ID            string        `json:"id,omitempty"`
	Query         string        `json:"query"`
	WalletAddress string        `json:"wallet_address,omitempty"`
	ChainID       string        `json:"chain_id,omitempty"`
	History       []llm.Message `json:"history,omitempty"`
}

// OutcomeType 标识协调器给出的结论类别，前端据此决定渲染方式。
type OutcomeType string

const (
	OutcomeText                OutcomeType = "text"
	OutcomeWalletRequired      OutcomeType = "wallet_required"
	OutcomeTransactionRequired OutcomeType = "transaction_required"
	OutcomeClarification       OutcomeType = "clarification"
	OutcomeValidation          OutcomeType = "validation"
)

// Outcome 汇总一次提问处理的全部结果。
type Outcome struct {
	Type      OutcomeType                 `json:"type"`
	Reply     string                      `json:"reply"`
	Category  registry.Category           `json:"category"`
	Handlers  []registry.HandlerID        `json:"handlers,omitempty"`
	Action    *intent.ContractAction      `json:"action,omitempty"`
	Preview   *preview.TransactionPreview `json:"preview,omitempty"`
	Degraded  bool                        `json:"degraded,omitempty"`
	CreatedAt int64                       `json:"created_at"`
}

// Coordinator 串联分类、解析、风险评估与大模型，是系统的业务核心。
type Coordinator struct {
	llmClient  llm.Client
	chain      web3.Reader
	knowledge  knowledge.Provider
	rates      tokens.RateLookup
	llmTimeout time.Duration
}

// Option 定义可选的 Coordinator 配置。
type Option func(*Coordinator)

// WithKnowledgeProvider 配置知识库，用于在推理前补充上下文。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(c *Coordinator) {
		c.knowledge = provider
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout <= 0 {
			c.llmTimeout = 0
			return
		}
		c.llmTimeout = timeout
	}
}

// WithChainReader 配置链上只读客户端，用于余额查询与预览增强。
func WithChainReader(reader web3.Reader) Option {
	return func(c *Coordinator) {
		c.chain = reader
	}
}

// WithRateLookup 替换默认的示意汇率表。
func WithRateLookup(rates tokens.RateLookup) Option {
	return func(c *Coordinator) {
		if rates != nil {
			c.rates = rates
		}
	}
}

// New 创建一个 Coordinator。大模型客户端可以为空：
// 此时对话类提问会退化为固定的降级回复。
func New(llmClient llm.Client, opts ...Option) *Coordinator {
	co := &Coordinator{
		llmClient: llmClient,
		rates:     tokens.DefaultRates(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(co)
		}
	}
	return co
}

const welcomeReply = "Hi! I'm MantlePilot, your DeFi assistant on the Mantle network. " +
	"Ask me about tokens, swaps on Agni Finance, MNT staking, or connect a wallet to check balances."

const degradedReply = "I couldn't reach the language model just now, so here's the short version: " +
	"I can help with token transfers, Agni Finance swaps, MNT staking and wallet safety on Mantle. " +
	"Try rephrasing your question, or ask about a specific action."

// Process 处理一次用户提问并给出结论。只有内部前置条件被破坏时才返回
// error；可预期的用户侧问题（缺钱包、地址非法、意图不明）都以 Outcome
// 的形式表达。
func (c *Coordinator) Process(ctx context.Context, req Request) (*Outcome, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return c.finish(req, &Outcome{
			Type:  OutcomeText,
			Reply: welcomeReply,
		}), nil
	}

	hasWallet := strings.TrimSpace(req.WalletAddress) != ""
	cls := classify.Classify(query, hasWallet)

	outcome := &Outcome{
		Category: cls.Category,
		Handlers: cls.Handlers,
	}

	if cls.RequiresWallet && !hasWallet {
		outcome.Type = OutcomeWalletRequired
		outcome.Reply = "This request needs a connected wallet. Connect one and ask again."
		return c.finish(req, outcome), nil
	}

	switch cls.Category {
	case registry.CategoryExecution:
		return c.processExecution(ctx, req, query, outcome)
	case registry.CategoryAnalysis:
		return c.processAnalysis(ctx, req, query, outcome)
	default:
		return c.processConversational(ctx, req, query, outcome)
	}
}

func (c *Coordinator) processExecution(ctx context.Context, req Request, query string, outcome *Outcome) (*Outcome, error) {
	action, err := intent.Parse(query, req.WalletAddress)
	if err != nil {
		if xerrors.CodeOf(err) != xerrors.CodeAddressMalformed {
			return nil, err
		}
		outcome.Type = OutcomeValidation
		outcome.Reply = "The recipient doesn't look like a valid address. " +
			"Addresses start with 0x followed by 40 hex characters; please paste the full address."
		return c.finish(req, outcome), nil
	}
	if action == nil {
		outcome.Type = OutcomeClarification
		outcome.Reply = "I can tell you want to do something on-chain, but I couldn't pin down the exact action. " +
			"Try something like \"send 5 MNT to 0x...\", \"swap 10 MNT for USDC\" or \"stake 10 MNT\"."
		return c.finish(req, outcome), nil
	}

	address := risk.AssessAddress(action.TargetAddress)
	safety := risk.Score(action, address, amountOf(action))

	opts := []preview.Option{preview.WithRateLookup(c.rates)}
	if balance, ok := c.liveBalance(ctx, req.WalletAddress); ok {
		opts = append(opts, preview.WithLiveBalance(balance))
	}
	pv := preview.Synthesize(action, safety, address, opts...)

	outcome.Action = action
	outcome.Preview = pv
	if action.Kind == intent.KindPriceQuery {
		// 行情查询是只读调用，无需签名，直接作为文本结论返回。
		outcome.Type = OutcomeText
		outcome.Reply = pv.Description
	} else {
		outcome.Type = OutcomeTransactionRequired
		outcome.Reply = fmt.Sprintf("%s. Safety score %d/100 (%s). Review the preview and confirm in your wallet.",
			pv.Description, pv.SafetyScore, pv.SafetyLevel)
	}
	return c.finish(req, outcome), nil
}

func (c *Coordinator) processAnalysis(ctx context.Context, req Request, query string, outcome *Outcome) (*Outcome, error) {
	if hasHandler(outcome.Handlers, registry.HandlerBalance) && c.chain != nil {
		balance, err := c.chain.NativeBalance(ctx, req.WalletAddress)
		if err == nil {
			mnt := weiToNative(balance)
			reply := fmt.Sprintf("Your wallet holds %s MNT", formatAmount(mnt))
			if rate, ok := c.rates.USDRate(tokens.NativeSymbol); ok {
				reply += fmt.Sprintf(" (≈$%.2f at an illustrative rate)", mnt*rate)
			}
			outcome.Type = OutcomeText
			outcome.Reply = reply + "."
			return c.finish(req, outcome), nil
		}
		logger.L().Warn("链上余额查询失败，退回大模型回答",
			"wallet", req.WalletAddress, "error", err)
	}
	return c.replyWithLLM(ctx, req, query, outcome)
}

func (c *Coordinator) processConversational(ctx context.Context, req Request, query string, outcome *Outcome) (*Outcome, error) {
	return c.replyWithLLM(ctx, req, query, outcome)
}

// replyWithLLM 调用大模型生成回复；协作方失败时降级为固定文案而不是
// 让整个请求失败。
func (c *Coordinator) replyWithLLM(ctx context.Context, req Request, query string, outcome *Outcome) (*Outcome, error) {
	outcome.Type = OutcomeText

	if c.llmClient == nil {
		outcome.Reply = degradedReply
		outcome.Degraded = true
		return c.finish(req, outcome), nil
	}

	llmCtx := ctx
	if c.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, c.llmTimeout)
		defer cancel()
	}

	response, err := c.llmClient.Generate(llmCtx, llm.Request{
		Query:         query,
		WalletAddress: req.WalletAddress,
		Category:      string(outcome.Category),
		History:       req.History,
		Knowledge:     c.collectKnowledge(query, string(outcome.Category)),
	})
	if err != nil {
		wrapped := xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "大模型推理失败")
		if stdErrors.Is(err, context.DeadlineExceeded) {
			wrapped = xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		logger.L().Warn("大模型调用失败，使用降级回复", "error", wrapped)
		outcome.Reply = degradedReply
		outcome.Degraded = true
		return c.finish(req, outcome), nil
	}

	outcome.Reply = response.Reply
	return c.finish(req, outcome), nil
}

// collectKnowledge 从知识库中检索相关内容以供大模型参考。
func (c *Coordinator) collectKnowledge(query, category string) []llm.KnowledgeCard {
	if c.knowledge == nil {
		return nil
	}
	snippets := c.knowledge.Query(query, category)
	if len(snippets) == 0 {
		return nil
	}
	cards := make([]llm.KnowledgeCard, 0, len(snippets))
	for _, snippet := range snippets {
		if strings.TrimSpace(snippet.Title) == "" && strings.TrimSpace(snippet.Content) == "" {
			continue
		}
		cards = append(cards, llm.KnowledgeCard{
			Title:   snippet.Title,
			Content: snippet.Content,
		})
	}
	return cards
}

// liveBalance 查询钱包的原生代币余额，任何失败都静默降级。
func (c *Coordinator) liveBalance(ctx context.Context, wallet string) (float64, bool) {
	if c.chain == nil || strings.TrimSpace(wallet) == "" {
		return 0, false
	}
	balance, err := c.chain.NativeBalance(ctx, wallet)
	if err != nil {
		logger.L().Debug("预览余额查询失败", "wallet", wallet, "error", err)
		return 0, false
	}
	return weiToNative(balance), true
}

func (c *Coordinator) finish(req Request, outcome *Outcome) *Outcome {
	outcome.CreatedAt = time.Now().Unix()
	logger.Audit().Info("请求处理完成",
		"request_id", req.ID,
		"category", outcome.Category,
		"outcome", outcome.Type,
		"degraded", outcome.Degraded,
	)
	return outcome
}

func hasHandler(handlers []registry.HandlerID, target registry.HandlerID) bool {
	for _, handler := range handlers {
		if handler == target {
			return true
		}
	}
	return false
}

func amountOf(action *intent.ContractAction) *float64 {
	raw := action.Param(intent.ParamAmount)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &value
}

func weiToNative(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	value, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return value
}

func formatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', 4, 64)
}
