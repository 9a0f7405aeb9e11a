package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/cognicore/internal/goals"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/store"
)

func openTestGoalsService(t *testing.T) (*goals.Service, *repo.TaskRepository) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	tasks := repo.NewTaskRepository(st)
	return goals.NewService(repo.NewGoalsRepository(st), tasks), tasks
}

func TestGoalToolsCreateListUpdateDelete(t *testing.T) {
	svc, _ := openTestGoalsService(t)
	reg := New()
	if err := RegisterGoalTools(reg, svc); err != nil {
		t.Fatalf("RegisterGoalTools() error = %v", err)
	}

	created := mustExecute(t, reg, "create_goal", `{"title":"ship v2","target_date":"2026-12-31"}`)
	goal, ok := created["goal"].(map[string]any)
	if !ok {
		t.Fatalf("create_goal goal = %v, want map", created["goal"])
	}
	goalID, _ := goal["id"].(string)
	if goalID == "" {
		t.Fatal("create_goal returned empty goal id")
	}

	listed := mustExecute(t, reg, "list_goals", `{}`)
	if listed["count"] != 1 {
		t.Fatalf("list_goals count = %v, want 1", listed["count"])
	}

	updated := mustExecute(t, reg, "update_goal", `{"goal_id":"`+goalID+`","status":"completed"}`)
	updatedGoal, ok := updated["goal"].(map[string]any)
	if !ok || updatedGoal["status"] != "completed" {
		t.Fatalf("update_goal goal = %v, want status completed", updated["goal"])
	}

	deleted := mustExecute(t, reg, "delete_goal", `{"goal_id":"`+goalID+`"}`)
	if deleted["deleted_goal_id"] != goalID {
		t.Fatalf("delete_goal deleted_goal_id = %v, want %q", deleted["deleted_goal_id"], goalID)
	}

	afterDelete := mustExecute(t, reg, "list_goals", `{}`)
	if afterDelete["count"] != 0 {
		t.Fatalf("list_goals after delete count = %v, want 0", afterDelete["count"])
	}
}

func TestGoalToolsRejectsUnknownStatus(t *testing.T) {
	svc, _ := openTestGoalsService(t)
	reg := New()
	if err := RegisterGoalTools(reg, svc); err != nil {
		t.Fatalf("RegisterGoalTools() error = %v", err)
	}

	created := mustExecute(t, reg, "create_goal", `{"title":"ship v2"}`)
	goal := created["goal"].(map[string]any)
	goalID := goal["id"].(string)

	result := reg.Execute(context.Background(), Call{ID: "1", Name: "update_goal", Arguments: json.RawMessage(`{"goal_id":"`+goalID+`","status":"bogus"}`)})
	if result.Error == "" {
		t.Fatal("update_goal with unknown status error = \"\", want validation error")
	}
}

func TestGoalToolsLinkAndUnlinkTask(t *testing.T) {
	svc, tasks := openTestGoalsService(t)
	reg := New()
	if err := RegisterGoalTools(reg, svc); err != nil {
		t.Fatalf("RegisterGoalTools() error = %v", err)
	}

	taskID := createTestTask(t, tasks, "write design doc")
	created := mustExecute(t, reg, "create_goal", `{"title":"launch"}`)
	goal := created["goal"].(map[string]any)
	goalID := goal["id"].(string)

	mustExecute(t, reg, "link_task_to_goal", `{"goal_id":"`+goalID+`","task_id":"`+taskID+`"}`)

	listed := mustExecute(t, reg, "list_goals", `{}`)
	goalsList, ok := listed["goals"].([]map[string]any)
	if !ok || len(goalsList) != 1 {
		t.Fatalf("list_goals goals = %v, want one goal", listed["goals"])
	}
	taskIDs, ok := goalsList[0]["task_ids"].([]string)
	if !ok || len(taskIDs) != 1 || taskIDs[0] != taskID {
		t.Fatalf("list_goals goal task_ids = %v, want [%s]", goalsList[0]["task_ids"], taskID)
	}

	mustExecute(t, reg, "unlink_task_from_goal", `{"goal_id":"`+goalID+`","task_id":"`+taskID+`"}`)

	afterUnlink := mustExecute(t, reg, "list_goals", `{}`)
	afterGoalsList := afterUnlink["goals"].([]map[string]any)
	afterTaskIDs := afterGoalsList[0]["task_ids"].([]string)
	if len(afterTaskIDs) != 0 {
		t.Fatalf("list_goals goal task_ids after unlink = %v, want empty", afterTaskIDs)
	}
}
