package request

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "MantlePilot/internal/errors"
)

// MemoryStore 以内存方式保存请求状态，主要用于测试。
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if req == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "request 不能为空")
	}
	if req.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求 ID 不能为空")
	}
	if _, ok := m.requests[req.ID]; ok {
		return ErrRequestConflict
	}
	now := time.Now().Unix()
	if req.CreatedAt == 0 {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

// Get 返回请求。
func (m *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return cloneRequest(req), nil
}

// Claim 将请求状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	switch req.Status {
	case StatusSucceeded:
		return cloneRequest(req), ErrRequestCompleted
	case StatusRunning:
		return cloneRequest(req), ErrRequestConflict
	}
	if req.Attempts >= req.MaxRetries {
		return cloneRequest(req), ErrRequestExhausted
	}
	req.Status = StatusRunning
	req.Attempts++
	req.LastError = ""
	req.ErrorCode = ""
	req.UpdatedAt = time.Now().Unix()
	return cloneRequest(req), nil
}

// MarkSucceeded 记录处理结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = StatusSucceeded
	req.Outcome = &outcome
	req.LastError = ""
	req.ErrorCode = ""
	req.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记请求失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	req.Status = StatusFailed
	req.LastError = lastError
	req.ErrorCode = string(code)
	req.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回最近请求。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Request, 0, len(m.requests))
	for _, req := range m.requests {
		if !matchesListFilters(req, opts) {
			continue
		}
		results = append(results, cloneRequest(req))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []*Request{}, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的请求数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (RequestStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := RequestStats{}
	for _, req := range m.requests {
		if !matchesListFilters(req, opts) {
			continue
		}
		stats.Total++
		switch req.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if req.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = req.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (req.UpdatedAt != 0 && req.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = req.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneRequest(req *Request) *Request {
	clone := *req
	if req.Outcome != nil {
		outcomeCopy := *req.Outcome
		clone.Outcome = &outcomeCopy
	}
	clone.Metadata = cloneMetadata(req.Metadata)
	return &clone
}

func matchesListFilters(req *Request, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if req.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.UpdatedGTE > 0 && req.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && req.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.HasOutcome != nil && requestHasOutcome(req) != *opts.HasOutcome {
		return false
	}
	if opts.Query != "" && !matchesQuery(req, opts.Query) {
		return false
	}
	return true
}

func matchesQuery(req *Request, query string) bool {
	needle := strings.ToLower(query)
	fields := []string{req.ID, req.Query, req.WalletAddress, req.LastError}
	if req.Outcome != nil {
		fields = append(fields, req.Outcome.Reply, req.Outcome.ActionKind)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func requestHasOutcome(req *Request) bool {
	if req == nil || req.Outcome == nil {
		return false
	}
	return req.Outcome.Type != "" || req.Outcome.Reply != ""
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
