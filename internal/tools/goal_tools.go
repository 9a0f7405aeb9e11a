package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/goals"
)

// RegisterGoalTools wires create_goal, update_goal, delete_goal,
// list_goals, link_task_to_goal and unlink_task_from_goal against svc.
func RegisterGoalTools(reg *Registry, svc *goals.Service) error {
	if err := reg.Register("create_goal", "Create a new goal to track progress toward an objective",
		json.RawMessage(`{"type":"object","properties":{
			"title":{"type":"string","description":"The title of the goal (required)"},
			"description":{"type":"string","description":"Detailed description of the goal"},
			"target_date":{"type":"string","format":"date","description":"Target completion date, ISO format (YYYY-MM-DD)"}
		},"required":["title"]}`),
		createGoalHandler(svc)); err != nil {
		return err
	}

	if err := reg.Register("update_goal", "Update an existing goal's fields",
		json.RawMessage(`{"type":"object","properties":{
			"goal_id":{"type":"string","description":"The ID of the goal to update (required)"},
			"title":{"type":"string","description":"New title"},
			"description":{"type":"string","description":"New description"},
			"status":{"type":"string","enum":["active","completed","abandoned"],"description":"New status"},
			"target_date":{"type":"string","format":"date","description":"New target completion date, ISO format (YYYY-MM-DD)"}
		},"required":["goal_id"]}`),
		updateGoalHandler(svc)); err != nil {
		return err
	}

	if err := reg.Register("delete_goal", "Delete a goal by ID",
		json.RawMessage(`{"type":"object","properties":{"goal_id":{"type":"string","description":"The ID of the goal to delete (required)"}},"required":["goal_id"]}`),
		deleteGoalHandler(svc)); err != nil {
		return err
	}

	if err := reg.Register("list_goals", "List all goals, including their associated task IDs",
		json.RawMessage(`{"type":"object","properties":{}}`),
		listGoalsHandler(svc)); err != nil {
		return err
	}

	if err := reg.Register("link_task_to_goal", "Associate a task with a goal it contributes to",
		json.RawMessage(`{"type":"object","properties":{
			"goal_id":{"type":"string","description":"The goal ID (required)"},
			"task_id":{"type":"string","description":"The task ID (required)"}
		},"required":["goal_id","task_id"]}`),
		linkTaskToGoalHandler(svc)); err != nil {
		return err
	}

	if err := reg.Register("unlink_task_from_goal", "Remove the association between a task and a goal",
		json.RawMessage(`{"type":"object","properties":{
			"goal_id":{"type":"string","description":"The goal ID (required)"},
			"task_id":{"type":"string","description":"The task ID (required)"}
		},"required":["goal_id","task_id"]}`),
		unlinkTaskFromGoalHandler(svc)); err != nil {
		return err
	}

	return nil
}

func createGoalHandler(svc *goals.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			TargetDate  string `json:"target_date"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		g := &domain.Goal{
			Title:       params.Title,
			Description: params.Description,
		}
		if params.TargetDate != "" {
			g.TargetDate = &params.TargetDate
		}
		if err := svc.Create(ctx, g); err != nil {
			return nil, err
		}

		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Goal created successfully.\n\nTitle: %s\nID: %s", g.Title, g.ID),
			"goal":    formatGoalForAI(g, nil),
		}, nil
	}
}

func updateGoalHandler(svc *goals.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			GoalID      string  `json:"goal_id"`
			Title       *string `json:"title"`
			Description *string `json:"description"`
			Status      *string `json:"status"`
			TargetDate  *string `json:"target_date"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		g, err := svc.Get(ctx, params.GoalID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.NewValidation("goal %q not found; check the goal ID and try again", params.GoalID)
			}
			return nil, err
		}

		if params.Title != nil {
			g.Title = *params.Title
		}
		if params.Description != nil {
			g.Description = *params.Description
		}
		if params.Status != nil {
			g.Status = *params.Status
		}
		if params.TargetDate != nil {
			g.TargetDate = params.TargetDate
		}

		if err := svc.Update(ctx, g); err != nil {
			return nil, err
		}

		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Goal updated successfully.\n\nTitle: %s\nStatus: %s\nID: %s", g.Title, g.Status, g.ID),
			"goal":    formatGoalForAI(g, nil),
		}, nil
	}
}

func deleteGoalHandler(svc *goals.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			GoalID string `json:"goal_id"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		g, err := svc.Get(ctx, params.GoalID)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.NewValidation("goal %q not found; check the goal ID and try again", params.GoalID)
			}
			return nil, err
		}

		if err := svc.Delete(ctx, params.GoalID); err != nil {
			return nil, err
		}

		return map[string]any{
			"success":         true,
			"message":         fmt.Sprintf("Goal deleted successfully.\n\nDeleted goal: %s\nID: %s", g.Title, g.ID),
			"deleted_goal_id": g.ID,
		}, nil
	}
}

func listGoalsHandler(svc *goals.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		all, err := svc.List(ctx)
		if err != nil {
			return nil, err
		}

		formatted := make([]map[string]any, 0, len(all))
		for _, g := range all {
			taskIDs, err := svc.TasksForGoal(ctx, g.ID)
			if err != nil {
				return nil, err
			}
			formatted = append(formatted, formatGoalForAI(g, taskIDs))
		}

		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Found %d goal(s).", len(all)),
			"count":   len(all),
			"goals":   formatted,
		}, nil
	}
}

func linkTaskToGoalHandler(svc *goals.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			GoalID string `json:"goal_id"`
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		if err := svc.AssociateTask(ctx, params.GoalID, params.TaskID); err != nil {
			return nil, err
		}

		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Task %s linked to goal %s.", params.TaskID, params.GoalID),
		}, nil
	}
}

func unlinkTaskFromGoalHandler(svc *goals.Service) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			GoalID string `json:"goal_id"`
			TaskID string `json:"task_id"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		if err := svc.DisassociateTask(ctx, params.GoalID, params.TaskID); err != nil {
			return nil, err
		}

		return map[string]any{
			"success": true,
			"message": fmt.Sprintf("Task %s unlinked from goal %s.", params.TaskID, params.GoalID),
		}, nil
	}
}

func formatGoalForAI(g *domain.Goal, taskIDs []string) map[string]any {
	return map[string]any{
		"id":          g.ID,
		"title":       g.Title,
		"description": g.Description,
		"status":      g.Status,
		"target_date": g.TargetDate,
		"created_at":  g.CreatedAt,
		"updated_at":  g.UpdatedAt,
		"task_ids":    taskIDs,
	}
}
