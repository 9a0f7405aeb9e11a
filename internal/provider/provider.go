// Package provider defines the contract planning uses to obtain an
// AI-sourced plan option, task parse, or recommendation set from an
// external LLM. Its one concrete implementation lives in
// internal/provider/deepseek; nothing in this package talks HTTP.
package provider

import "context"

// Metadata describes the provider call that produced a result: which
// provider and model answered, how long it took, and (when the
// provider reports it) token usage and a correlation id for log
// correlation between the core and the provider's own logs.
type Metadata struct {
	ProviderID    string
	Model         string
	LatencyMS     int64
	TokensUsed    map[string]int64
	CorrelationID string
}

// ParseTaskRequest is free-text task input plus optional surrounding
// context (existing tags, recent tasks) the provider can use to
// disambiguate it.
type ParseTaskRequest struct {
	Input   string
	Context map[string]any
}

// ParsedTask is the provider's structured reading of a ParseTaskRequest.
// Fields is the provider's JSON response verbatim — spec.md leaves the
// parsed-task schema to the UI layer, so the core passes it through
// rather than re-modeling a schema it doesn't otherwise consume.
type ParsedTask struct {
	Fields     map[string]any
	Reasoning  Metadata
	Source     string // "online" when answered live, "cache" on a cache hit
	GeneratedAt string
}

// Recommendation is the provider's response to a recommendations request.
type Recommendation struct {
	Fields    map[string]any
	Telemetry Metadata
}

// SchedulePlan is the provider's response to a schedule-planning request,
// consumed by the planning service as its AI-sourced plan option.
type SchedulePlan struct {
	Fields    map[string]any
	Telemetry Metadata
}

// Client is the contract the planning service calls when an API key is
// configured. On any failure the caller fails the request outright —
// falling back to the local optimizer happens only when no provider is
// configured at all, never as a recovery from a provider error.
type Client interface {
	ParseTask(ctx context.Context, req ParseTaskRequest) (ParsedTask, error)
	GenerateRecommendations(ctx context.Context, payload map[string]any) (Recommendation, error)
	PlanSchedule(ctx context.Context, payload map[string]any) (SchedulePlan, error)
	Ping(ctx context.Context) (Metadata, error)
}
