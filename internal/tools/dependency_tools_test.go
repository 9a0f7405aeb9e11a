package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/cognicore/internal/dependency"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/store"
)

func openTestDependencyService(t *testing.T) (*dependency.Service, *repo.TaskRepository) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	tasks := repo.NewTaskRepository(st)
	deps := repo.NewDependencyRepository(st)
	return dependency.NewService(deps, tasks), tasks
}

func createTestTask(t *testing.T, tasks *repo.TaskRepository, title string) string {
	t.Helper()
	task := &domain.Task{ID: title + "-id", Title: title, Status: domain.StatusTodo, Priority: domain.PriorityMedium}
	if err := tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("tasks.Create() error = %v", err)
	}
	return task.ID
}

func TestDependencyToolsAddAndGraph(t *testing.T) {
	svc, tasks := openTestDependencyService(t)
	reg := New()
	if err := RegisterDependencyTools(reg, svc); err != nil {
		t.Fatalf("RegisterDependencyTools() error = %v", err)
	}

	a := createTestTask(t, tasks, "design")
	b := createTestTask(t, tasks, "implement")

	added := mustExecute(t, reg, "add_task_dependency", `{"predecessor_id":"`+a+`","successor_id":"`+b+`"}`)
	if added["dependency_id"] == "" || added["dependency_id"] == nil {
		t.Fatalf("added dependency_id = %v, want non-empty", added["dependency_id"])
	}

	graph := mustExecute(t, reg, "get_dependency_graph", `{}`)
	if graph["graph"] == nil {
		t.Fatal("get_dependency_graph returned no graph")
	}

	ready := mustExecute(t, reg, "get_ready_tasks", `{}`)
	if count, _ := ready["count"].(int); count != 1 {
		t.Fatalf("get_ready_tasks count = %v, want 1 (only the predecessor is ready)", ready["count"])
	}
}

func TestDependencyToolsValidateDetectsCycle(t *testing.T) {
	svc, tasks := openTestDependencyService(t)
	reg := New()
	if err := RegisterDependencyTools(reg, svc); err != nil {
		t.Fatalf("RegisterDependencyTools() error = %v", err)
	}

	a := createTestTask(t, tasks, "a")
	b := createTestTask(t, tasks, "b")

	mustExecute(t, reg, "add_task_dependency", `{"predecessor_id":"`+a+`","successor_id":"`+b+`"}`)

	validated := mustExecute(t, reg, "validate_dependency", `{"predecessor_id":"`+b+`","successor_id":"`+a+`"}`)
	if validated["is_valid"] != false {
		t.Fatalf("is_valid = %v, want false (would create a cycle)", validated["is_valid"])
	}
	if validated["would_create_cycle"] != true {
		t.Fatalf("would_create_cycle = %v, want true", validated["would_create_cycle"])
	}
}

func TestDependencyToolsRemove(t *testing.T) {
	svc, tasks := openTestDependencyService(t)
	reg := New()
	if err := RegisterDependencyTools(reg, svc); err != nil {
		t.Fatalf("RegisterDependencyTools() error = %v", err)
	}

	a := createTestTask(t, tasks, "a")
	b := createTestTask(t, tasks, "b")
	added := mustExecute(t, reg, "add_task_dependency", `{"predecessor_id":"`+a+`","successor_id":"`+b+`"}`)
	depID, _ := added["dependency_id"].(string)

	result := reg.Execute(context.Background(), Call{ID: "1", Name: "remove_task_dependency", Arguments: json.RawMessage(`{"dependency_id":"`+depID+`"}`)})
	if result.Error != "" {
		t.Fatalf("Execute(remove_task_dependency) error = %v", result.Error)
	}

	metrics := mustExecute(t, reg, "get_dependency_metrics", `{}`)
	metricsValue, _ := metrics["metrics"].(map[string]any)
	if metricsValue["total_dependencies"] != 0 {
		t.Fatalf("total_dependencies = %v, want 0 after removal", metricsValue["total_dependencies"])
	}
}
