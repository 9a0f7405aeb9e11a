package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
)

const echoSchema = `{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`

func echoHandler(_ context.Context, arguments json.RawMessage) (any, error) {
	var input struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(arguments, &input); err != nil {
		return nil, err
	}
	return input.Text, nil
}

func TestRegisterRejectsDuplicateNames(t *testing.T) {
	reg := New()
	if err := reg.Register("echo", "echoes text", json.RawMessage(echoSchema), echoHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := reg.Register("echo", "echoes text again", json.RawMessage(echoSchema), echoHandler)
	if !apperr.IsValidation(err) {
		t.Fatalf("Register() error = %v, want Validation", err)
	}
}

func TestRegisterRejectsNonObjectSchema(t *testing.T) {
	reg := New()
	err := reg.Register("echo", "echoes text", json.RawMessage(`["not", "an", "object"]`), echoHandler)
	if !apperr.IsValidation(err) {
		t.Fatalf("Register() error = %v, want Validation", err)
	}
}

func TestValidateCallRejectsMissingRequiredField(t *testing.T) {
	reg := New()
	if err := reg.Register("echo", "echoes text", json.RawMessage(echoSchema), echoHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	err := reg.ValidateCall(Call{ID: "1", Name: "echo", Arguments: json.RawMessage(`{}`)})
	if !apperr.IsValidation(err) {
		t.Fatalf("ValidateCall() error = %v, want Validation", err)
	}
}

func TestExecuteRunsHandlerAndReturnsValue(t *testing.T) {
	reg := New()
	if err := reg.Register("echo", "echoes text", json.RawMessage(echoSchema), echoHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	result := reg.Execute(context.Background(), Call{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"hi"}`)})
	if result.Error != "" {
		t.Fatalf("Execute() error = %q, want none", result.Error)
	}
	if result.Value != "hi" {
		t.Fatalf("Execute() value = %v, want %q", result.Value, "hi")
	}
}

func TestExecuteReportsUnknownTool(t *testing.T) {
	reg := New()
	result := reg.Execute(context.Background(), Call{ID: "call-1", Name: "missing", Arguments: json.RawMessage(`{}`)})
	if result.Error == "" {
		t.Fatal("Execute() error = \"\", want a not-registered message")
	}
}

func TestExecuteTimesOutSlowHandlers(t *testing.T) {
	reg := NewWithTimeout(10 * time.Millisecond)
	slow := func(ctx context.Context, _ json.RawMessage) (any, error) {
		select {
		case <-time.After(200 * time.Millisecond):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := reg.Register("slow", "sleeps", json.RawMessage(`{"type":"object"}`), slow); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	result := reg.Execute(context.Background(), Call{ID: "call-1", Name: "slow", Arguments: json.RawMessage(`{}`)})
	if result.Error == "" {
		t.Fatal("Execute() error = \"\", want a timeout message")
	}
}

func TestExecuteReportsHandlerFailure(t *testing.T) {
	reg := New()
	failing := func(_ context.Context, _ json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	}
	if err := reg.Register("failing", "always fails", json.RawMessage(`{"type":"object"}`), failing); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	result := reg.Execute(context.Background(), Call{ID: "call-1", Name: "failing", Arguments: json.RawMessage(`{}`)})
	if result.Error == "" {
		t.Fatal("Execute() error = \"\", want a failure message")
	}
}

func TestExecuteAllWithConcurrencyPreservesOrder(t *testing.T) {
	reg := New()
	if err := reg.Register("echo", "echoes text", json.RawMessage(echoSchema), echoHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	calls := []Call{
		{ID: "1", Name: "echo", Arguments: json.RawMessage(`{"text":"a"}`)},
		{ID: "2", Name: "echo", Arguments: json.RawMessage(`{"text":"b"}`)},
		{ID: "3", Name: "echo", Arguments: json.RawMessage(`{"text":"c"}`)},
	}
	results := reg.ExecuteAllWithConcurrency(context.Background(), calls, 2)
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	want := []string{"a", "b", "c"}
	for i, r := range results {
		if r.Value != want[i] {
			t.Fatalf("results[%d].Value = %v, want %q", i, r.Value, want[i])
		}
	}
}

func TestToolNamesAndSchemasAreSorted(t *testing.T) {
	reg := New()
	if err := reg.Register("zeta", "z tool", json.RawMessage(`{"type":"object"}`), echoHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register("alpha", "a tool", json.RawMessage(`{"type":"object"}`), echoHandler); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	names := reg.ToolNames()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Fatalf("ToolNames() = %v, want [alpha zeta]", names)
	}
	schemas := reg.Schemas()
	if len(schemas) != 2 || schemas[0].Function.Name != "alpha" || schemas[1].Function.Name != "zeta" {
		t.Fatalf("Schemas() order = %+v, want alpha before zeta", schemas)
	}
	if reg.ToolCount() != 2 {
		t.Fatalf("ToolCount() = %d, want 2", reg.ToolCount())
	}
}
