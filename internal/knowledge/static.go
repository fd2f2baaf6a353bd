package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider 定义知识库检索的通用接口。
type Provider interface {
	Query(query, category string) []Snippet
}

// Snippet 描述可供大模型引用的一段知识。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
}

// StaticProvider 通过加载 JSON 文件提供静态知识检索能力。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// NewBuiltinProvider 返回内置的 Mantle 生态知识库，
// 在未配置外部知识文件时作为缺省数据源。
func NewBuiltinProvider(maxResults int) *StaticProvider {
	return NewStaticProvider(builtinSnippets, maxResults)
}

// LoadStaticProvider 从 JSON 文件加载知识条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据用户提问和分类标签进行简单匹配。
func (p *StaticProvider) Query(query, category string) []Snippet {
	if p == nil {
		return nil
	}

	query = strings.ToLower(strings.TrimSpace(query))
	category = strings.ToLower(strings.TrimSpace(category))

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, query, category) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(snippet Snippet, query, category string) bool {
	if len(snippet.Keywords) == 0 {
		return true
	}
	for _, keyword := range snippet.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(query, normalized) || strings.Contains(category, normalized) {
			return true
		}
	}
	if len(snippet.Tags) == 0 {
		return false
	}
	for _, tag := range snippet.Tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if strings.Contains(query, normalized) || strings.Contains(category, normalized) {
			return true
		}
	}
	return false
}

// 内置知识条目，覆盖助手最常被问到的生态概念。
var builtinSnippets = []Snippet{
	{
		Title:    "Agni Finance",
		Content:  "Agni Finance is the leading decentralized exchange on the Mantle network. Swaps are routed through its concentrated-liquidity pools; the router contract is the canonical entry point for token exchanges.",
		Keywords: []string{"agni", "swap", "dex", "exchange"},
		Tags:     []string{"conversational"},
	},
	{
		Title:    "MNT token",
		Content:  "MNT is the native gas and governance token of the Mantle network. Gas fees on Mantle are paid in MNT and are typically a fraction of a cent.",
		Keywords: []string{"mnt", "mantle", "gas", "token"},
		Tags:     []string{"conversational"},
	},
	{
		Title:    "Mantle staking",
		Content:  "Native MNT staking locks tokens with the Mantle staking contract. Rewards accrue per epoch and unstaking is subject to a cooldown period before funds return to the wallet.",
		Keywords: []string{"stake", "staking", "unstake", "reward"},
		Tags:     []string{"execution"},
	},
	{
		Title:    "Wallet safety",
		Content:  "Never share a seed phrase. Verify contract addresses character by character: spoofed addresses that resemble well-known contracts are a common phishing pattern.",
		Keywords: []string{"safe", "safety", "phishing", "scam", "risk"},
		Tags:     []string{"analysis"},
	},
}

// Ensure StaticProvider 实现 Provider 接口。
var _ Provider = (*StaticProvider)(nil)
