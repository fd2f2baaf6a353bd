package llm

import "context"

// Request 描述发送给大模型的对话上下文。
type Request struct {
	Query         string
	WalletAddress string
	Category      string
	History       []Message
	Knowledge     []KnowledgeCard
}

// Response 是大模型生成的回复。
type Response struct {
	Reply string
}

// Message 表示一条历史对话消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// KnowledgeCard 表示提供给大模型的知识切片，帮助生成更加准确的回复。
type KnowledgeCard struct {
	Title   string
	Content string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
