// Package deepseek implements provider.Client against DeepSeek's
// chat-completions API: request/response shape, retry-with-backoff,
// and the provider-error classification for 4xx/5xx/connect/timeout
// failures.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/provider"
)

const defaultBaseURL = "https://api.deepseek.com"

var backoffSchedule = []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}

type operation struct {
	name         string
	systemPrompt string
	temperature  float64
}

var (
	opParseTask = operation{name: "parseTask", systemPrompt: taskParsingSystemPrompt, temperature: 0.2}
	opRecommend = operation{name: "generateRecommendations", systemPrompt: recommendationsSystemPrompt, temperature: 0.4}
	opSchedule  = operation{name: "planSchedule", systemPrompt: schedulePlanningSystemPrompt, temperature: 0.3}
)

const (
	taskParsingSystemPrompt     = "You are a task-parsing assistant. Read the user's free-text input and return a single JSON object describing the task: title, description, priority, tags, and a due date if one is implied. Respond with JSON only."
	recommendationsSystemPrompt = "You are a productivity assistant. Given the user's current tasks and context, return a single JSON object with prioritized recommendations for what to work on next. Respond with JSON only."
	schedulePlanningSystemPrompt = "You are a scheduling assistant. Given a set of tasks, constraints and preferences, return a single JSON object describing a schedule plan: a set of time blocks mapping tasks to start/end times. Respond with JSON only."
)

// Client is a provider.Client backed by DeepSeek's HTTP API.
type Client struct {
	http    *http.Client
	apiKey  string
	baseURL string
	model   string
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string // defaults to https://api.deepseek.com
	Model   string // defaults to deepseek-chat
	Timeout time.Duration
}

// New builds a Client from cfg. apiKey must be non-empty; callers decide
// whether to construct a Client at all based on whether a key is configured.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = "deepseek-chat"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
	}
}

var _ provider.Client = (*Client)(nil)

// ParseTask sends a single task-parsing chat completion request.
func (c *Client) ParseTask(ctx context.Context, req provider.ParseTaskRequest) (provider.ParsedTask, error) {
	payload := map[string]any{"input": req.Input}
	if req.Context != nil {
		payload["context"] = req.Context
	}

	result, err := c.invokeChat(ctx, opParseTask, payload)
	if err != nil {
		return provider.ParsedTask{}, err
	}

	return provider.ParsedTask{
		Fields:      result.content,
		Reasoning:   result.metadata(),
		Source:      "online",
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// GenerateRecommendations sends a single recommendations chat completion request.
func (c *Client) GenerateRecommendations(ctx context.Context, payload map[string]any) (provider.Recommendation, error) {
	result, err := c.invokeChat(ctx, opRecommend, payload)
	if err != nil {
		return provider.Recommendation{}, err
	}
	return provider.Recommendation{Fields: result.content, Telemetry: result.metadata()}, nil
}

// PlanSchedule sends a single schedule-planning chat completion request.
func (c *Client) PlanSchedule(ctx context.Context, payload map[string]any) (provider.SchedulePlan, error) {
	result, err := c.invokeChat(ctx, opSchedule, payload)
	if err != nil {
		return provider.SchedulePlan{}, err
	}
	return provider.SchedulePlan{Fields: result.content, Telemetry: result.metadata()}, nil
}

// Ping checks connectivity and authentication against the models endpoint.
func (c *Client) Ping(ctx context.Context) (provider.Metadata, error) {
	correlationID := uuid.NewString()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return provider.Metadata{}, apperr.NewOther("build ping request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return provider.Metadata{}, errFromTransport(err, correlationID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return provider.Metadata{}, errFromStatus(resp.StatusCode, correlationID)
	}

	return provider.Metadata{
		ProviderID:    "deepseek",
		Model:         c.model,
		LatencyMS:     time.Since(start).Milliseconds(),
		CorrelationID: correlationID,
	}, nil
}

type chatResult struct {
	content       map[string]any
	tokensUsed    map[string]int64
	latencyMS     int64
	correlationID string
}

func (r chatResult) metadata() provider.Metadata {
	return provider.Metadata{
		ProviderID:    "deepseek",
		LatencyMS:     r.latencyMS,
		TokensUsed:    r.tokensUsed,
		CorrelationID: r.correlationID,
	}
}

// invokeChat posts a chat-completions request, retrying transient
// failures per backoffSchedule. Retryable status classes are 429 and
// 5xx; retryable transport errors are timeouts and connect failures.
// Non-retryable failures (400, 401, 403, 404, and malformed JSON
// responses) return on the first attempt.
func (c *Client) invokeChat(ctx context.Context, op operation, payload map[string]any) (chatResult, error) {
	correlationID := uuid.NewString()
	userContent, err := json.Marshal(payload)
	if err != nil {
		return chatResult{}, apperr.NewOther("marshal provider request payload", err)
	}

	body := map[string]any{
		"model":           c.model,
		"temperature":     op.temperature,
		"top_p":           0.9,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]string{
			{"role": "system", "content": op.systemPrompt},
			{"role": "user", "content": string(userContent)},
		},
	}
	encodedBody, err := json.Marshal(body)
	if err != nil {
		return chatResult{}, apperr.NewOther("marshal provider request body", err)
	}

	var lastErr error
	for attempt, delay := range backoffSchedule {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return chatResult{}, apperr.NewOther("provider call cancelled", ctx.Err())
			}
		}

		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(encodedBody))
		if err != nil {
			return chatResult{}, apperr.NewOther("build provider request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			providerErr := errFromTransport(err, correlationID)
			if !isRetryableProviderErr(providerErr) || attempt == len(backoffSchedule)-1 {
				return chatResult{}, providerErr
			}
			lastErr = providerErr
			continue
		}

		latencyMS := time.Since(start).Milliseconds()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			providerErr := errFromStatus(resp.StatusCode, correlationID)
			if !isRetryableProviderErr(providerErr) || attempt == len(backoffSchedule)-1 {
				return chatResult{}, providerErr
			}
			lastErr = providerErr
			continue
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return chatResult{}, apperr.NewProvider(apperr.ProviderInvalidResponse, fmt.Sprintf("failed to read provider response: %v", err), correlationID)
		}

		result, err := parseChatResponse(raw, correlationID)
		if err != nil {
			return chatResult{}, err
		}
		result.latencyMS = latencyMS
		result.correlationID = correlationID
		return result, nil
	}

	if lastErr != nil {
		return chatResult{}, lastErr
	}
	return chatResult{}, apperr.NewProvider(apperr.ProviderDeepseekUnavailable, "provider request failed", correlationID)
}

func parseChatResponse(raw []byte, correlationID string) (chatResult, error) {
	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
			TotalTokens      int64 `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return chatResult{}, apperr.NewProvider(apperr.ProviderInvalidResponse, fmt.Sprintf("failed to parse provider response: %v", err), correlationID)
	}
	if len(envelope.Choices) == 0 {
		return chatResult{}, apperr.NewProvider(apperr.ProviderInvalidResponse, "provider response missing message content", correlationID)
	}

	content := cleanCodeFence(envelope.Choices[0].Message.Content)
	var fields map[string]any
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return chatResult{}, apperr.NewProvider(apperr.ProviderInvalidResponse, fmt.Sprintf("provider response content is not JSON: %v", err), correlationID)
	}

	tokens := make(map[string]int64)
	if envelope.Usage.PromptTokens > 0 {
		tokens["prompt"] = envelope.Usage.PromptTokens
	}
	if envelope.Usage.CompletionTokens > 0 {
		tokens["completion"] = envelope.Usage.CompletionTokens
	}
	if envelope.Usage.TotalTokens > 0 {
		tokens["total"] = envelope.Usage.TotalTokens
	}

	return chatResult{content: fields, tokensUsed: tokens}, nil
}

// cleanCodeFence strips a ```json ... ``` or ``` ... ``` wrapper some
// providers add around otherwise-valid JSON content.
func cleanCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	without := strings.TrimPrefix(trimmed, "```json")
	without = strings.TrimPrefix(without, "```JSON")
	without = strings.TrimPrefix(without, "```")
	without = strings.TrimSuffix(strings.TrimSpace(without), "```")
	return strings.TrimSpace(without)
}

func errFromStatus(status int, correlationID string) *apperr.Provider {
	switch status {
	case http.StatusUnauthorized:
		return apperr.NewProvider(apperr.ProviderMissingAPIKey, "provider API key is invalid or unauthorized", correlationID)
	case http.StatusForbidden:
		return apperr.NewProvider(apperr.ProviderForbidden, "provider denied the request", correlationID)
	case http.StatusTooManyRequests:
		return apperr.NewProvider(apperr.ProviderRateLimited, "provider rate limit exceeded, retry later", correlationID)
	case http.StatusBadRequest:
		return apperr.NewProvider(apperr.ProviderInvalidRequest, "provider rejected the request as malformed", correlationID)
	case http.StatusNotFound:
		return apperr.NewProvider(apperr.ProviderInvalidRequest, "provider endpoint not found", correlationID)
	default:
		if status >= 500 {
			return apperr.NewProvider(apperr.ProviderDeepseekUnavailable, fmt.Sprintf("provider temporarily unavailable (status %d)", status), correlationID)
		}
		return apperr.NewProvider(apperr.ProviderUnknown, fmt.Sprintf("provider returned status %d", status), correlationID)
	}
}

func errFromTransport(err error, correlationID string) *apperr.Provider {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.NewProvider(apperr.ProviderHTTPTimeout, "provider request timed out", correlationID)
	}
	return apperr.NewProvider(apperr.ProviderDeepseekUnavailable, fmt.Sprintf("provider request failed: %v", err), correlationID)
}

func isRetryableProviderErr(err *apperr.Provider) bool {
	switch err.Kind {
	case apperr.ProviderRateLimited, apperr.ProviderHTTPTimeout, apperr.ProviderDeepseekUnavailable:
		return true
	default:
		return false
	}
}
