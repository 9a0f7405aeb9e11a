// Package apperr provides the structured error taxonomy shared across
// cognicore's service layers: validation, not-found, state-conflict,
// database, io, provider, and tool-execution failures. Service code
// returns these types directly; the tool-dispatch layer maps them to
// user-facing strings (see Describe).
package apperr

import (
	"errors"
	"fmt"
)

// FieldMessage pairs a JSON-schema instance path with a human message,
// used by Validation errors produced from schema-validation failures.
type FieldMessage struct {
	InstancePath string `json:"instance_path"`
	Message      string `json:"message"`
}

// Validation signals bad input, including tool-call schema violations.
type Validation struct {
	Message string
	Details []FieldMessage
}

func (e *Validation) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (%d detail(s))", e.Message, len(e.Details))
}

// NewValidation builds a Validation error with no structured detail.
func NewValidation(format string, args ...any) *Validation {
	return &Validation{Message: fmt.Sprintf(format, args...)}
}

// NotFound signals a read or write that targeted an absent row.
type NotFound struct {
	Resource string
	ID       string
}

func (e *NotFound) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NewNotFound builds a NotFound error for resource/id.
func NewNotFound(resource, id string) *NotFound {
	return &NotFound{Resource: resource, ID: id}
}

// Conflict signals a state-machine violation (e.g. re-applying a session).
type Conflict struct {
	Message string
}

func (e *Conflict) Error() string { return e.Message }

// NewConflict builds a Conflict error.
func NewConflict(format string, args ...any) *Conflict {
	return &Conflict{Message: fmt.Sprintf(format, args...)}
}

// Database wraps an underlying store failure.
type Database struct {
	Op  string
	Err error
}

func (e *Database) Error() string { return fmt.Sprintf("database: %s: %v", e.Op, e.Err) }
func (e *Database) Unwrap() error { return e.Err }

// NewDatabase wraps err with the operation that failed.
func NewDatabase(op string, err error) *Database {
	return &Database{Op: op, Err: err}
}

// Io wraps a filesystem or network-socket failure outside the database.
type Io struct {
	Op  string
	Err error
}

func (e *Io) Error() string { return fmt.Sprintf("io: %s: %v", e.Op, e.Err) }
func (e *Io) Unwrap() error { return e.Err }

// NewIo wraps err with the operation that failed.
func NewIo(op string, err error) *Io {
	return &Io{Op: op, Err: err}
}

// ProviderKind enumerates the externally-sourced provider failure classes.
type ProviderKind string

const (
	ProviderMissingAPIKey       ProviderKind = "missing_api_key"
	ProviderInvalidRequest      ProviderKind = "invalid_request"
	ProviderInvalidResponse     ProviderKind = "invalid_response"
	ProviderForbidden           ProviderKind = "forbidden"
	ProviderRateLimited         ProviderKind = "rate_limited"
	ProviderHTTPTimeout         ProviderKind = "http_timeout"
	ProviderDeepseekUnavailable ProviderKind = "deepseek_unavailable"
	ProviderUnknown             ProviderKind = "unknown"
)

// Provider wraps an externally-sourced LLM-provider failure.
type Provider struct {
	Kind          ProviderKind
	Message       string
	CorrelationID string
	Detail        string
}

func (e *Provider) Error() string {
	if e.CorrelationID == "" {
		return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("provider %s: %s (correlation_id=%s)", e.Kind, e.Message, e.CorrelationID)
}

// NewProvider builds a Provider error of the given kind.
func NewProvider(kind ProviderKind, message, correlationID string) *Provider {
	return &Provider{Kind: kind, Message: message, CorrelationID: correlationID}
}

// ToolExecutionFailed signals a tool handler that ran but returned failure.
type ToolExecutionFailed struct {
	ToolName string
	Reason   string
}

func (e *ToolExecutionFailed) Error() string {
	return fmt.Sprintf("tool %q failed: %s", e.ToolName, e.Reason)
}

// NewToolExecutionFailed builds a ToolExecutionFailed error.
func NewToolExecutionFailed(toolName, reason string) *ToolExecutionFailed {
	return &ToolExecutionFailed{ToolName: toolName, Reason: reason}
}

// Other is the catch-all for errors that do not fit the taxonomy above.
type Other struct {
	Message string
	Err     error
}

func (e *Other) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}
func (e *Other) Unwrap() error { return e.Err }

// NewOther wraps err under a descriptive message.
func NewOther(message string, err error) *Other {
	return &Other{Message: message, Err: err}
}

// Describe converts any error into the fixed user-facing mapping from
// spec §7. Unrecognized errors fall back to their own Error() text.
func Describe(err error) string {
	if err == nil {
		return ""
	}

	var notFound *NotFound
	if errors.As(err, &notFound) {
		return "resource not found"
	}

	var database *Database
	if errors.As(err, &database) {
		return "database operation failed, please retry"
	}

	var validation *Validation
	if errors.As(err, &validation) {
		msg := "parameter validation failed"
		for i, d := range validation.Details {
			if i >= 3 {
				break
			}
			msg += fmt.Sprintf("; %s: %s", d.InstancePath, d.Message)
		}
		return msg
	}

	var conflict *Conflict
	if errors.As(err, &conflict) {
		return conflict.Message
	}

	var provider *Provider
	if errors.As(err, &provider) {
		return provider.Message
	}

	var toolFailed *ToolExecutionFailed
	if errors.As(err, &toolFailed) {
		return toolFailed.Reason
	}

	return err.Error()
}

// IsNotFound reports whether err is (or wraps) a NotFound.
func IsNotFound(err error) bool {
	var nf *NotFound
	return errors.As(err, &nf)
}

// IsConflict reports whether err is (or wraps) a Conflict.
func IsConflict(err error) bool {
	var c *Conflict
	return errors.As(err, &c)
}

// IsValidation reports whether err is (or wraps) a Validation.
func IsValidation(err error) bool {
	var v *Validation
	return errors.As(err, &v)
}
