package mantlepilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the MantlePilot REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// ChatRequest is the payload accepted by the chat and request endpoints.
type ChatRequest struct {
	ID            string `json:"id,omitempty"`
	Query         string `json:"query"`
	WalletAddress string `json:"wallet_address,omitempty"`
	ChainID       string `json:"chain_id,omitempty"`
}

// Outcome is the assistant's conclusion for a synchronous chat call.
type Outcome struct {
	Type     string          `json:"type"`
	Reply    string          `json:"reply"`
	Category string          `json:"category"`
	Handlers []string        `json:"handlers,omitempty"`
	Action   json.RawMessage `json:"action,omitempty"`
	Preview  json.RawMessage `json:"preview,omitempty"`
	Degraded bool            `json:"degraded,omitempty"`
}

// RequestRecord mirrors the persisted state of an asynchronous request.
type RequestRecord struct {
	ID            string          `json:"id"`
	Query         string          `json:"query"`
	WalletAddress string          `json:"wallet_address,omitempty"`
	ChainID       string          `json:"chain_id,omitempty"`
	Status        string          `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxRetries    int             `json:"max_retries"`
	LastError     string          `json:"last_error,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	Outcome       *RequestOutcome `json:"outcome,omitempty"`
	CreatedAt     int64           `json:"created_at"`
	UpdatedAt     int64           `json:"updated_at"`
}

// RequestOutcome is the condensed outcome stored with a completed request.
type RequestOutcome struct {
	Type        string `json:"type"`
	Reply       string `json:"reply"`
	Category    string `json:"category"`
	ActionKind  string `json:"action_kind,omitempty"`
	SafetyScore int    `json:"safety_score,omitempty"`
	SafetyLevel string `json:"safety_level,omitempty"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// ListOptions narrows down the requests returned by ListRequests.
type ListOptions struct {
	Limit    int
	Offset   int
	Statuses []string
	Query    string
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mantlepilot api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the MantlePilot API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken stores the bearer token attached to subsequent calls.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Chat sends a query for synchronous processing and returns the outcome.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (Outcome, error) {
	var outcome Outcome
	if err := c.post(ctx, "/api/v1/chat", req, &outcome); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// SubmitRequest enqueues a query for asynchronous processing.
func (c *Client) SubmitRequest(ctx context.Context, req ChatRequest) (RequestRecord, error) {
	var record RequestRecord
	if err := c.post(ctx, "/api/v1/requests", req, &record); err != nil {
		return RequestRecord{}, err
	}
	return record, nil
}

// GetRequest fetches the state of a previously submitted request.
func (c *Client) GetRequest(ctx context.Context, id string) (RequestRecord, error) {
	var record RequestRecord
	if err := c.get(ctx, "/api/v1/requests/"+url.PathEscape(id), &record); err != nil {
		return RequestRecord{}, err
	}
	return record, nil
}

// ListRequests returns requests matching the supplied filters.
func (c *Client) ListRequests(ctx context.Context, opts ListOptions) ([]RequestRecord, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if len(opts.Statuses) > 0 {
		joined := ""
		for i, status := range opts.Statuses {
			if i > 0 {
				joined += ","
			}
			joined += status
		}
		query.Set("status", joined)
	}
	if opts.Query != "" {
		query.Set("q", opts.Query)
	}
	endpoint := "/api/v1/requests"
	if encoded := query.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	var records []RequestRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// WaitForRequest polls until the request reaches a terminal status.
func (c *Client) WaitForRequest(ctx context.Context, id string, interval time.Duration) (RequestRecord, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		record, err := c.GetRequest(ctx, id)
		if err != nil {
			return RequestRecord{}, err
		}
		if record.Status == "succeeded" || record.Status == "failed" {
			return record, nil
		}
		select {
		case <-ctx.Done():
			return RequestRecord{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(bytes.TrimSpace(data)),
		}
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
