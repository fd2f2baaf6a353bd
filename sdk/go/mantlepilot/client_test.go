package mantlepilot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret-token" {
			t.Fatalf("expected bearer token, got %q", got)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if req.Query != "stake 10 MNT" {
			t.Fatalf("unexpected query: %q", req.Query)
		}
		_ = json.NewEncoder(w).Encode(Outcome{
			Type:     "transaction_required",
			Category: "execution",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	client.SetAccessToken("secret-token")

	outcome, err := client.Chat(context.Background(), ChatRequest{Query: "stake 10 MNT"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if outcome.Type != "transaction_required" {
		t.Fatalf("unexpected outcome type: %s", outcome.Type)
	}
}

func TestSubmitAndGetRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/requests" && r.Method == http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(RequestRecord{ID: "req-1", Status: "pending"})
		case r.URL.Path == "/api/v1/requests/req-1" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(RequestRecord{
				ID:     "req-1",
				Status: "succeeded",
				Outcome: &RequestOutcome{
					Type:  "text",
					Reply: "done",
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	record, err := client.SubmitRequest(context.Background(), ChatRequest{Query: "what is MNT"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if record.ID != "req-1" {
		t.Fatalf("unexpected request id: %s", record.ID)
	}

	final, err := client.GetRequest(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Outcome == nil || final.Outcome.Reply != "done" {
		t.Fatalf("unexpected outcome: %+v", final.Outcome)
	}
}

func TestListRequestsEncodesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/requests" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		query := r.URL.Query()
		if query.Get("limit") != "5" {
			t.Fatalf("unexpected limit: %s", query.Get("limit"))
		}
		if query.Get("status") != "pending,running" {
			t.Fatalf("unexpected status: %s", query.Get("status"))
		}
		_ = json.NewEncoder(w).Encode([]RequestRecord{{ID: "req-1"}})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	records, err := client.ListRequests(context.Background(), ListOptions{
		Limit:    5,
		Statuses: []string{"pending", "running"},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ID != "req-1" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "非法的请求 ID", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetRequest(context.Background(), "bad id")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}
