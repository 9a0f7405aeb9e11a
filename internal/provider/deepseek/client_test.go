package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/provider"
)

func chatCompletionResponse(t *testing.T, content string, usage map[string]int) []byte {
	t.Helper()
	body := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	if usage != nil {
		body["usage"] = map[string]any{
			"prompt_tokens":     usage["prompt"],
			"completion_tokens": usage["completion"],
			"total_tokens":      usage["total"],
		}
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal fixture response: %v", err)
	}
	return encoded
}

func TestParseTaskReturnsFieldsAndMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q, want Bearer test-key", got)
		}
		w.Write(chatCompletionResponse(t, `{"title":"write report","priority":"high"}`, map[string]int{"prompt": 10, "completion": 5, "total": 15}))
	}))
	defer srv.Close()

	client := New(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second})
	req := provider.ParseTaskRequest{Input: "write the quarterly report by friday"}
	result, err := client.ParseTask(context.Background(), req)
	if err != nil {
		t.Fatalf("ParseTask() error = %v", err)
	}
	if result.Fields["title"] != "write report" {
		t.Fatalf("ParseTask() fields = %v, want title=write report", result.Fields)
	}
	if result.Reasoning.TokensUsed["total"] != 15 {
		t.Fatalf("ParseTask() tokens_used = %v, want total=15", result.Reasoning.TokensUsed)
	}
	if result.Reasoning.CorrelationID == "" {
		t.Fatal("ParseTask() correlation id = \"\", want non-empty")
	}
}

func TestInvokeChatStripsCodeFence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatCompletionResponse(t, "```json\n{\"ok\":true}\n```", nil))
	}))
	defer srv.Close()

	client := New(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second})
	result, err := client.GenerateRecommendations(context.Background(), map[string]any{"tasks": []string{}})
	if err != nil {
		t.Fatalf("GenerateRecommendations() error = %v", err)
	}
	if result.Fields["ok"] != true {
		t.Fatalf("GenerateRecommendations() fields = %v, want ok=true", result.Fields)
	}
}

func TestInvokeChatRetriesOnRateLimitThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(chatCompletionResponse(t, `{"plan":"ok"}`, nil))
	}))
	defer srv.Close()

	client := New(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second})
	result, err := client.PlanSchedule(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("PlanSchedule() error = %v", err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2 (one retry after 429)", attempts)
	}
	if result.Fields["plan"] != "ok" {
		t.Fatalf("PlanSchedule() fields = %v, want plan=ok", result.Fields)
	}
}

func TestInvokeChatFailsImmediatelyOnUnauthorized(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(Config{APIKey: "bad-key", BaseURL: srv.URL, Timeout: 2 * time.Second})
	_, err := client.GenerateRecommendations(context.Background(), map[string]any{})
	if err == nil {
		t.Fatal("GenerateRecommendations() error = nil, want provider error")
	}
	var provErr *apperr.Provider
	if !isProviderErr(err, &provErr) {
		t.Fatalf("GenerateRecommendations() error = %v, want *apperr.Provider", err)
	}
	if provErr.Kind != apperr.ProviderMissingAPIKey {
		t.Fatalf("GenerateRecommendations() provider error kind = %v, want missing_api_key", provErr.Kind)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (401 is not retryable)", attempts)
	}
}

func TestPingSucceedsAgainstModelsEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Errorf("request path = %q, want /v1/models", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: 2 * time.Second})
	meta, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	if meta.ProviderID != "deepseek" {
		t.Fatalf("Ping() ProviderID = %q, want deepseek", meta.ProviderID)
	}
}

func isProviderErr(err error, target **apperr.Provider) bool {
	if provErr, ok := err.(*apperr.Provider); ok {
		*target = provErr
		return true
	}
	return false
}
