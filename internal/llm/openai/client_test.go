package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"MantlePilot/internal/llm"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestGenerateSendsChatCompletion(t *testing.T) {
	var captured struct {
		Model    string        `json:"model"`
		Messages []llm.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "  MNT is the native token of Mantle.  "}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	resp, err := client.Generate(context.Background(), llm.Request{
		Query:         "what is MNT",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Knowledge: []llm.KnowledgeCard{
			{Title: "MNT token", Content: "MNT is the native gas token."},
		},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Reply != "MNT is the native token of Mantle." {
		t.Fatalf("unexpected reply: %q", resp.Reply)
	}
	if captured.Model != "test-model" {
		t.Fatalf("unexpected model: %s", captured.Model)
	}
	if len(captured.Messages) != 2 {
		t.Fatalf("expected system + user message, got %d", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Fatalf("first message should be system, got %s", captured.Messages[0].Role)
	}
	user := captured.Messages[1].Content
	if !strings.Contains(user, "what is MNT") || !strings.Contains(user, "MNT token") {
		t.Fatalf("user prompt missing query or knowledge: %q", user)
	}
}

func TestGenerateTrimsHistoryToSixMessages(t *testing.T) {
	var captured struct {
		Messages []llm.Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	history := make([]llm.Message, 10)
	for i := range history {
		history[i] = llm.Message{Role: "user", Content: "older"}
	}
	history[9].Content = "newest"

	if _, err := client.Generate(context.Background(), llm.Request{Query: "q", History: history}); err != nil {
		t.Fatalf("generate: %v", err)
	}
	// system + 6 history + user
	if len(captured.Messages) != 8 {
		t.Fatalf("expected 8 messages, got %d", len(captured.Messages))
	}
	if captured.Messages[6].Content != "newest" {
		t.Fatalf("history should keep the most recent entries, got %q", captured.Messages[6].Content)
	}
}

func TestGenerateSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Query: "q"}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestGenerateRejectsEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Generate(context.Background(), llm.Request{Query: "q"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
