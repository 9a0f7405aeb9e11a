package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
)

const taskPropertiesSchema = `{
	"title": {"type": "string", "description": "The title of the task (required, max 160 characters)"},
	"description": {"type": "string", "description": "Detailed description of the task"},
	"priority": {"type": "string", "enum": ["low", "medium", "high", "urgent"], "description": "Priority level (default: medium)"},
	"status": {"type": "string", "enum": ["backlog", "todo", "in_progress", "blocked", "done", "archived"], "description": "Current status (default: todo)"},
	"due_at": {"type": "string", "format": "date-time", "description": "Due date in RFC3339 format"},
	"tags": {"type": "array", "items": {"type": "string"}, "description": "Tags to categorize the task"},
	"estimated_hours": {"type": "number", "description": "Estimated hours to complete the task"}
}`

// RegisterTaskTools wires create_task, update_task, delete_task, list_tasks
// and search_tasks against tasks.
func RegisterTaskTools(reg *Registry, tasks *repo.TaskRepository) error {
	if err := reg.Register("create_task", "Create a new task with the specified details",
		json.RawMessage(fmt.Sprintf(`{"type":"object","properties":%s,"required":["title"]}`, taskPropertiesSchema)),
		createTaskHandler(tasks)); err != nil {
		return err
	}

	if err := reg.Register("update_task", "Update an existing task's fields",
		json.RawMessage(fmt.Sprintf(`{"type":"object","properties":{"task_id":{"type":"string","description":"The ID of the task to update (required)"},%s},"required":["task_id"]}`,
			taskPropertiesSchema[1:len(taskPropertiesSchema)-1])),
		updateTaskHandler(tasks)); err != nil {
		return err
	}

	if err := reg.Register("delete_task", "Delete a task by ID",
		json.RawMessage(`{"type":"object","properties":{"task_id":{"type":"string","description":"The ID of the task to delete (required)"}},"required":["task_id"]}`),
		deleteTaskHandler(tasks)); err != nil {
		return err
	}

	if err := reg.Register("list_tasks",
		"List tasks with optional status/priority/tag filters. Use when the user asks to show, list or view their tasks.",
		json.RawMessage(`{"type":"object","properties":{
			"status":{"type":"string","enum":["backlog","todo","in_progress","blocked","done","archived"],"description":"Filter by status"},
			"priority":{"type":"string","enum":["low","medium","high","urgent"],"description":"Filter by priority"},
			"tag":{"type":"string","description":"Filter by a specific tag"}
		}}`),
		listTasksHandler(tasks)); err != nil {
		return err
	}

	if err := reg.Register("search_tasks",
		"Search tasks by keyword matching against titles and descriptions. Provide the search term as 'query'.",
		json.RawMessage(`{"type":"object","properties":{
			"query":{"type":"string","description":"Search query to match against titles and descriptions (required)"},
			"status":{"type":"string","enum":["backlog","todo","in_progress","blocked","done","archived"],"description":"Filter results by status"},
			"priority":{"type":"string","enum":["low","medium","high","urgent"],"description":"Filter results by priority"}
		},"required":["query"]}`),
		searchTasksHandler(tasks)); err != nil {
		return err
	}
	return nil
}

type createTaskParams struct {
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Priority        string   `json:"priority"`
	Status          string   `json:"status"`
	DueAt           string   `json:"due_at"`
	Tags            []string `json:"tags"`
	EstimatedHours  *float64 `json:"estimated_hours"`
}

func createTaskHandler(tasks *repo.TaskRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params createTaskParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		priority := domain.PriorityMedium
		if params.Priority != "" {
			priority = domain.Priority(params.Priority)
		}
		status := domain.StatusTodo
		if params.Status != "" {
			status = domain.Status(params.Status)
		}

		var dueAt *time.Time
		if params.DueAt != "" {
			parsed, err := time.Parse(time.RFC3339, params.DueAt)
			if err != nil {
				return nil, apperr.NewValidation("due_at %q is not RFC3339", params.DueAt)
			}
			dueAt = &parsed
		}

		now := time.Now().UTC()
		task := &domain.Task{
			ID:             uuid.NewString(),
			Title:          params.Title,
			Description:    params.Description,
			Status:         status,
			Priority:       priority,
			Tags:           params.Tags,
			DueAt:          dueAt,
			EstimatedHours: params.EstimatedHours,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tasks.Create(ctx, task); err != nil {
			return nil, err
		}

		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Task created successfully.\n\nTitle: %s\nStatus: %s\nPriority: %s\nID: %s",
				task.Title, task.Status, task.Priority, task.ID),
			"task": formatTaskForAI(task),
		}, nil
	}
}

type updateTaskParams struct {
	TaskID      string   `json:"task_id"`
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Priority    *string  `json:"priority"`
	Status      *string  `json:"status"`
	DueAt       *string  `json:"due_at"`
	Tags        []string `json:"tags"`
}

func updateTaskHandler(tasks *repo.TaskRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params updateTaskParams
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		task, err := tasks.Get(ctx, params.TaskID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.NewValidation("task %q not found; check the task ID and try again", params.TaskID)
			}
			return nil, err
		}

		if params.Title != nil {
			task.Title = *params.Title
		}
		if params.Description != nil {
			task.Description = *params.Description
		}
		if params.Priority != nil {
			task.Priority = domain.Priority(*params.Priority)
		}
		if params.Status != nil {
			task.Status = domain.Status(*params.Status)
		}
		if params.DueAt != nil {
			parsed, err := time.Parse(time.RFC3339, *params.DueAt)
			if err != nil {
				return nil, apperr.NewValidation("due_at %q is not RFC3339", *params.DueAt)
			}
			task.DueAt = &parsed
		}
		if params.Tags != nil {
			task.Tags = params.Tags
		}

		if err := tasks.Update(ctx, task); err != nil {
			return nil, err
		}

		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Task updated successfully.\n\nTitle: %s\nStatus: %s\nPriority: %s\nID: %s",
				task.Title, task.Status, task.Priority, task.ID),
			"task": formatTaskForAI(task),
		}, nil
	}
}

func deleteTaskHandler(tasks *repo.TaskRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		task, err := tasks.Get(ctx, params.TaskID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.NewValidation("task %q not found; check the task ID and try again", params.TaskID)
			}
			return nil, err
		}

		if err := tasks.Delete(ctx, params.TaskID); err != nil {
			return nil, err
		}

		return map[string]any{
			"success":         true,
			"message":         fmt.Sprintf("Task deleted successfully.\n\nDeleted task: %s\nID: %s", task.Title, task.ID),
			"deleted_task_id": task.ID,
		}, nil
	}
}

func listTasksHandler(tasks *repo.TaskRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Status   string `json:"status"`
			Priority string `json:"priority"`
			Tag      string `json:"tag"`
		}
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
			}
		}

		all, err := tasks.List(ctx, domain.Status(params.Status))
		if err != nil {
			return nil, err
		}

		filtered := all[:0]
		for _, t := range all {
			if params.Priority != "" && !strings.EqualFold(string(t.Priority), params.Priority) {
				continue
			}
			if params.Tag != "" && !hasTagFold(t.Tags, params.Tag) {
				continue
			}
			filtered = append(filtered, t)
		}

		return map[string]any{
			"success": true,
			"message": formatTasksSummary(filtered),
			"count":   len(filtered),
			"tasks":   formatTasksForAI(filtered),
		}, nil
	}
}

func searchTasksHandler(tasks *repo.TaskRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Query    string `json:"query"`
			Status   string `json:"status"`
			Priority string `json:"priority"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		matches, err := tasks.Search(ctx, params.Query)
		if err != nil {
			return nil, err
		}

		filtered := matches[:0]
		for _, t := range matches {
			if params.Status != "" && !strings.EqualFold(string(t.Status), params.Status) {
				continue
			}
			if params.Priority != "" && !strings.EqualFold(string(t.Priority), params.Priority) {
				continue
			}
			filtered = append(filtered, t)
		}

		var message string
		if len(filtered) == 0 {
			message = fmt.Sprintf("No tasks found matching query: %q", params.Query)
		} else {
			message = fmt.Sprintf("Search results for %q:\n\n%s", params.Query, formatTasksSummary(filtered))
		}

		return map[string]any{
			"success": true,
			"message": message,
			"query":   params.Query,
			"count":   len(filtered),
			"tasks":   formatTasksForAI(filtered),
		}, nil
	}
}

func hasTagFold(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}

func formatTaskForAI(t *domain.Task) map[string]any {
	return map[string]any{
		"id":               t.ID,
		"title":            t.Title,
		"description":      t.Description,
		"status":           string(t.Status),
		"priority":         t.Priority,
		"due_at":           t.DueAt,
		"tags":             t.Tags,
		"estimated_hours":  t.EstimatedHours,
		"created_at":       t.CreatedAt,
		"updated_at":       t.UpdatedAt,
	}
}

func formatTasksForAI(tasks []*domain.Task) []map[string]any {
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, formatTaskForAI(t))
	}
	return out
}

func formatTasksSummary(tasks []*domain.Task) string {
	if len(tasks) == 0 {
		return "No tasks found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d task(s):\n\n", len(tasks))

	statusCounts := make(map[domain.Status]int)
	for i, t := range tasks {
		fmt.Fprintf(&b, "%d. [%s] %s (%s)\n", i+1, strings.ToUpper(string(t.Status)), t.Title, t.Priority)
		if t.Description != "" {
			desc := t.Description
			if len(desc) > 100 {
				desc = desc[:100] + "..."
			}
			fmt.Fprintf(&b, "   Description: %s\n", desc)
		}
		if t.DueAt != nil {
			fmt.Fprintf(&b, "   Due: %s\n", t.DueAt.Format(time.RFC3339))
		}
		if len(t.Tags) > 0 {
			fmt.Fprintf(&b, "   Tags: %s\n", strings.Join(t.Tags, ", "))
		}
		fmt.Fprintf(&b, "   ID: %s\n\n", t.ID)
		statusCounts[t.Status]++
	}

	b.WriteString("Summary by status:\n")
	for _, status := range []domain.Status{domain.StatusBacklog, domain.StatusTodo, domain.StatusInProgress, domain.StatusBlocked, domain.StatusDone, domain.StatusArchived} {
		if count, ok := statusCounts[status]; ok {
			fmt.Fprintf(&b, "  - %s: %d\n", status, count)
		}
	}
	return b.String()
}
