// Package tools hosts the callable-tool registry: named, JSON-Schema
// validated functions that the planning and conversation layers invoke by
// name, plus bounded-concurrency execution of a batch of calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/semaphore"

	"github.com/antigravity-dev/cognicore/internal/apperr"
)

const (
	defaultTimeout      = 15 * time.Second
	fastTimeout         = 3 * time.Second
	slowTimeout         = 30 * time.Second
	defaultConcurrency  = 5
)

// Handler executes a tool call. arguments is the raw JSON argument object;
// the registry has already validated it against the tool's schema by the
// time Handler runs.
type Handler func(ctx context.Context, arguments json.RawMessage) (any, error)

// Definition describes one registered tool.
type Definition struct {
	Name        string
	Description string
	Parameters  json.RawMessage

	handler Handler
	schema  *jsonschema.Schema
}

// Call is one requested invocation, keyed by ToolCallID so results can be
// matched back to requests after concurrent execution.
type Call struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Result is the outcome of one Call. Exactly one of Value/Error is set.
type Result struct {
	ToolCallID string `json:"tool_call_id"`
	Value      any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// FunctionSchema is the OpenAI-style function-calling schema for one tool.
type FunctionSchema struct {
	Type     string           `json:"type"`
	Function FunctionSchemaFn `json:"function"`
}

// FunctionSchemaFn is the "function" object inside a FunctionSchema.
type FunctionSchemaFn struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Registry holds the set of callable tools and the timeout applied to each
// individual call.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Definition
	timeout time.Duration
}

// New builds a Registry with the default 15s per-call timeout.
func New() *Registry {
	return &Registry{tools: make(map[string]*Definition), timeout: defaultTimeout}
}

// NewWithFastTimeout builds a Registry for tools expected to return quickly
// (read-only lookups), with a 3s per-call timeout.
func NewWithFastTimeout() *Registry {
	return &Registry{tools: make(map[string]*Definition), timeout: fastTimeout}
}

// NewWithSlowTimeout builds a Registry for tools that may run long (external
// provider calls), with a 30s per-call timeout.
func NewWithSlowTimeout() *Registry {
	return &Registry{tools: make(map[string]*Definition), timeout: slowTimeout}
}

// NewWithTimeout builds a Registry with a caller-supplied per-call timeout.
func NewWithTimeout(timeout time.Duration) *Registry {
	return &Registry{tools: make(map[string]*Definition), timeout: timeout}
}

// Register adds a tool to the registry. parameters must be a JSON Schema
// object describing the call's argument shape. Registering a name twice is
// a validation error.
func (r *Registry) Register(name, description string, parameters json.RawMessage, handler Handler) error {
	var decoded any
	if err := json.Unmarshal(parameters, &decoded); err != nil {
		return apperr.NewValidation("tool %q parameters are not valid JSON: %v", name, err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		return apperr.NewValidation("tool %q parameters must be a JSON object schema", name)
	}

	resourceURL := "tool/" + name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, decoded); err != nil {
		return apperr.NewValidation("tool %q parameters schema is invalid: %v", name, err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return apperr.NewValidation("tool %q parameters schema is invalid: %v", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return apperr.NewValidation("tool %q is already registered", name)
	}
	r.tools[name] = &Definition{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		handler:     handler,
		schema:      schema,
	}
	return nil
}

func (r *Registry) lookup(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// HasTool reports whether name is registered.
func (r *Registry) HasTool(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// ToolCount returns the number of registered tools.
func (r *Registry) ToolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ToolNames returns the registered tool names in sorted order.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Schemas returns the OpenAI-style function-calling schema for every
// registered tool, sorted by name for deterministic output.
func (r *Registry) Schemas() []FunctionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	schemas := make([]FunctionSchema, 0, len(r.tools))
	for _, name := range r.sortedNamesLocked() {
		def := r.tools[name]
		schemas = append(schemas, FunctionSchema{
			Type: "function",
			Function: FunctionSchemaFn{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return schemas
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateCall checks that call names a registered tool and that its
// arguments satisfy that tool's parameter schema.
func (r *Registry) ValidateCall(call Call) error {
	def, ok := r.lookup(call.Name)
	if !ok {
		return apperr.NewValidation("tool %q is not registered", call.Name)
	}

	arguments := call.Arguments
	if len(arguments) == 0 {
		arguments = []byte("{}")
	}
	var instance any
	if err := json.Unmarshal(arguments, &instance); err != nil {
		return apperr.NewValidation("tool %q arguments are not valid JSON: %v", call.Name, err)
	}

	if err := def.schema.Validate(instance); err != nil {
		return &apperr.Validation{
			Message: fmt.Sprintf("tool %q call does not satisfy its parameter schema", call.Name),
			Details: validationDetails(err),
		}
	}
	return nil
}

func validationDetails(err error) []apperr.FieldMessage {
	valErr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []apperr.FieldMessage{{InstancePath: "", Message: err.Error()}}
	}
	var details []apperr.FieldMessage
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			details = append(details, apperr.FieldMessage{
				InstancePath: e.InstanceLocation,
				Message:      e.Error(),
			})
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(valErr)
	if len(details) > 5 {
		details = details[:5]
	}
	return details
}

// Execute validates and runs a single call, enforcing the registry's
// per-call timeout. It never returns an error: failures are reported inside
// the returned Result so a batch of calls can always be matched 1:1 against
// their results.
func (r *Registry) Execute(ctx context.Context, call Call) Result {
	if err := r.ValidateCall(call); err != nil {
		return Result{ToolCallID: call.ID, Error: apperr.Describe(err)}
	}

	def, _ := r.lookup(call.Name)

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := def.handler(timeoutCtx, call.Arguments)
		done <- outcome{value, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return Result{ToolCallID: call.ID, Error: apperr.Describe(apperr.NewToolExecutionFailed(call.Name, out.err.Error()))}
		}
		return Result{ToolCallID: call.ID, Value: out.value}
	case <-timeoutCtx.Done():
		return Result{ToolCallID: call.ID, Error: fmt.Sprintf("tool %q timed out after %s", call.Name, r.timeout)}
	}
}

// ExecuteAll runs calls with the default concurrency limit of 5.
func (r *Registry) ExecuteAll(ctx context.Context, calls []Call) []Result {
	return r.ExecuteAllWithConcurrency(ctx, calls, defaultConcurrency)
}

// ExecuteAllWithConcurrency runs calls with at most maxConcurrent running at
// once, returning results in the same order as calls.
func (r *Registry) ExecuteAllWithConcurrency(ctx context.Context, calls []Call, maxConcurrent int) []Result {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	results := make([]Result, len(calls))
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call Call) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = Result{ToolCallID: call.ID, Error: fmt.Sprintf("tool %q was not scheduled: %v", call.Name, err)}
				return
			}
			defer sem.Release(1)
			results[i] = r.Execute(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

// ExecuteAllWithTimeout runs calls through a temporary registry that shares
// this one's tools but applies a different per-call timeout, at the default
// concurrency limit.
func (r *Registry) ExecuteAllWithTimeout(ctx context.Context, calls []Call, timeout time.Duration) []Result {
	r.mu.RLock()
	clone := &Registry{tools: r.tools, timeout: timeout}
	r.mu.RUnlock()
	return clone.ExecuteAll(ctx, calls)
}
