package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/store"
)

func openTestTaskRepo(t *testing.T) *repo.TaskRepository {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return repo.NewTaskRepository(st)
}

func mustExecute(t *testing.T, reg *Registry, name string, args string) map[string]any {
	t.Helper()
	result := reg.Execute(context.Background(), Call{ID: "1", Name: name, Arguments: json.RawMessage(args)})
	if result.Error != "" {
		t.Fatalf("Execute(%s) error = %v", name, result.Error)
	}
	value, ok := result.Value.(map[string]any)
	if !ok {
		t.Fatalf("Execute(%s) value = %#v, want map[string]any", name, result.Value)
	}
	return value
}

func TestTaskToolsCreateListUpdateDelete(t *testing.T) {
	tasks := openTestTaskRepo(t)
	reg := New()
	if err := RegisterTaskTools(reg, tasks); err != nil {
		t.Fatalf("RegisterTaskTools() error = %v", err)
	}

	created := mustExecute(t, reg, "create_task", `{"title":"write the report","priority":"high","tags":["work"]}`)
	task, ok := created["task"].(map[string]any)
	if !ok {
		t.Fatalf("created[\"task\"] = %#v, want map", created["task"])
	}
	taskID, _ := task["id"].(string)
	if taskID == "" {
		t.Fatal("created task has no id")
	}

	listed := mustExecute(t, reg, "list_tasks", `{}`)
	if count, _ := listed["count"].(int); count != 1 {
		t.Fatalf("list_tasks count = %v, want 1", listed["count"])
	}

	updated := mustExecute(t, reg, "update_task", `{"task_id":"`+taskID+`","status":"done"}`)
	updatedTask, _ := updated["task"].(map[string]any)
	if updatedTask["status"] != "done" {
		t.Fatalf("updated task status = %v, want done", updatedTask["status"])
	}

	searched := mustExecute(t, reg, "search_tasks", `{"query":"report"}`)
	if count, _ := searched["count"].(int); count != 1 {
		t.Fatalf("search_tasks count = %v, want 1", searched["count"])
	}

	deleted := mustExecute(t, reg, "delete_task", `{"task_id":"`+taskID+`"}`)
	if deleted["deleted_task_id"] != taskID {
		t.Fatalf("deleted_task_id = %v, want %v", deleted["deleted_task_id"], taskID)
	}

	listedAfterDelete := mustExecute(t, reg, "list_tasks", `{}`)
	if count, _ := listedAfterDelete["count"].(int); count != 0 {
		t.Fatalf("list_tasks count after delete = %v, want 0", listedAfterDelete["count"])
	}
}

func TestTaskToolsUpdateUnknownTaskIsValidationError(t *testing.T) {
	tasks := openTestTaskRepo(t)
	reg := New()
	if err := RegisterTaskTools(reg, tasks); err != nil {
		t.Fatalf("RegisterTaskTools() error = %v", err)
	}

	result := reg.Execute(context.Background(), Call{ID: "1", Name: "update_task", Arguments: json.RawMessage(`{"task_id":"missing","status":"done"}`)})
	if result.Error == "" {
		t.Fatal("Execute(update_task) error = \"\", want a not-found message")
	}
}

func TestTaskToolsListFiltersByTag(t *testing.T) {
	tasks := openTestTaskRepo(t)
	reg := New()
	if err := RegisterTaskTools(reg, tasks); err != nil {
		t.Fatalf("RegisterTaskTools() error = %v", err)
	}

	mustExecute(t, reg, "create_task", `{"title":"alpha","tags":["urgent"]}`)
	mustExecute(t, reg, "create_task", `{"title":"beta","tags":["later"]}`)

	filtered := mustExecute(t, reg, "list_tasks", `{"tag":"urgent"}`)
	if count, _ := filtered["count"].(int); count != 1 {
		t.Fatalf("list_tasks(tag=urgent) count = %v, want 1", filtered["count"])
	}
}
