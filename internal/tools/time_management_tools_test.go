package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/domain"
)

func TestTimeManagementToolsCreateAndListTimeBlock(t *testing.T) {
	tasks := openTestTaskRepo(t)
	blocks := NewTimeBlockStore()
	reg := New()
	if err := RegisterTimeManagementTools(reg, blocks, tasks); err != nil {
		t.Fatalf("RegisterTimeManagementTools() error = %v", err)
	}

	start := time.Now().UTC().Add(time.Hour).Format(time.RFC3339)
	created := mustExecute(t, reg, "create_time_block", `{"title":"deep work","start_datetime":"`+start+`","duration_minutes":90}`)
	blockID, _ := created["id"].(string)
	if blockID == "" {
		t.Fatal("created time block has no id")
	}

	listed := mustExecute(t, reg, "list_time_items", `{"date_range":"today"}`)
	if count, _ := listed["count"].(int); count != 1 {
		t.Fatalf("list_time_items count = %v, want 1", listed["count"])
	}

	updated := mustExecute(t, reg, "update_time_item", `{"id":"`+blockID+`","title":"deep work (updated)"}`)
	if updated["title"] != "deep work (updated)" {
		t.Fatalf("updated title = %v, want 'deep work (updated)'", updated["title"])
	}
}

func TestTimeManagementToolsListIncludesTaskDeadlines(t *testing.T) {
	tasks := openTestTaskRepo(t)
	blocks := NewTimeBlockStore()
	reg := New()
	if err := RegisterTimeManagementTools(reg, blocks, tasks); err != nil {
		t.Fatalf("RegisterTimeManagementTools() error = %v", err)
	}

	due := time.Now().UTC().Add(2 * time.Hour)
	task := &domain.Task{Title: "file taxes", Status: domain.StatusTodo, Priority: domain.PriorityHigh, DueAt: &due}
	if err := tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("tasks.Create() error = %v", err)
	}

	listed := mustExecute(t, reg, "list_time_items", `{"date_range":"today","item_type":"deadline"}`)
	if count, _ := listed["count"].(int); count != 1 {
		t.Fatalf("list_time_items(deadline) count = %v, want 1", listed["count"])
	}
}

func TestTimeManagementToolsQuickSchedule(t *testing.T) {
	tasks := openTestTaskRepo(t)
	blocks := NewTimeBlockStore()
	reg := New()
	if err := RegisterTimeManagementTools(reg, blocks, tasks); err != nil {
		t.Fatalf("RegisterTimeManagementTools() error = %v", err)
	}

	scheduled := mustExecute(t, reg, "quick_schedule", `{"title":"standup","when":"today_9am"}`)
	if scheduled["id"] == "" || scheduled["id"] == nil {
		t.Fatalf("scheduled id = %v, want non-empty", scheduled["id"])
	}
}

func TestTimeManagementToolsQuickScheduleRejectsBadWhen(t *testing.T) {
	tasks := openTestTaskRepo(t)
	blocks := NewTimeBlockStore()
	reg := New()
	if err := RegisterTimeManagementTools(reg, blocks, tasks); err != nil {
		t.Fatalf("RegisterTimeManagementTools() error = %v", err)
	}

	result := reg.Execute(context.Background(), Call{ID: "1", Name: "quick_schedule", Arguments: json.RawMessage(`{"title":"x","when":"whenever"}`)})
	if result.Error == "" {
		t.Fatal("Execute(quick_schedule) error = \"\", want a validation message")
	}
}
