// Package goals is a thin CRUD owner for user-defined objectives and
// their task associations — the goals and goal_task_associations
// tables exist in the schema but no other module claims them.
package goals

import (
	"context"
	"strings"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
)

// GoalStatuses is the closed vocabulary for Goal.Status.
var GoalStatuses = map[string]bool{
	"active":    true,
	"completed": true,
	"abandoned": true,
}

// Service validates and persists goals on top of GoalsRepository.
type Service struct {
	goals *repo.GoalsRepository
	tasks *repo.TaskRepository
}

// NewService builds a Service over goals and tasks.
func NewService(goals *repo.GoalsRepository, tasks *repo.TaskRepository) *Service {
	return &Service{goals: goals, tasks: tasks}
}

// Create validates and inserts a new goal, defaulting status to "active".
func (s *Service) Create(ctx context.Context, g *domain.Goal) error {
	if strings.TrimSpace(g.Title) == "" {
		return apperr.NewValidation("goal title must not be empty")
	}
	if g.Status == "" {
		g.Status = "active"
	}
	if !GoalStatuses[g.Status] {
		return apperr.NewValidation("goal status must be one of active, completed, abandoned")
	}
	return s.goals.Create(ctx, g)
}

// Update validates and persists every field of g.
func (s *Service) Update(ctx context.Context, g *domain.Goal) error {
	if strings.TrimSpace(g.Title) == "" {
		return apperr.NewValidation("goal title must not be empty")
	}
	if !GoalStatuses[g.Status] {
		return apperr.NewValidation("goal status must be one of active, completed, abandoned")
	}
	return s.goals.Update(ctx, g)
}

// Get fetches a goal by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Goal, error) {
	return s.goals.Get(ctx, id)
}

// List returns every goal.
func (s *Service) List(ctx context.Context) ([]*domain.Goal, error) {
	return s.goals.List(ctx)
}

// Delete removes a goal and its associations.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.goals.Delete(ctx, id)
}

// AssociateTask links taskID to goalID, failing validation if either
// side doesn't exist.
func (s *Service) AssociateTask(ctx context.Context, goalID, taskID string) error {
	if _, err := s.goals.Get(ctx, goalID); err != nil {
		if apperr.IsNotFound(err) {
			return apperr.NewValidation("goal %q not found", goalID)
		}
		return err
	}
	if _, err := s.tasks.Get(ctx, taskID); err != nil {
		if apperr.IsNotFound(err) {
			return apperr.NewValidation("task %q not found", taskID)
		}
		return err
	}
	return s.goals.Associate(ctx, goalID, taskID)
}

// DisassociateTask removes the link between goalID and taskID.
func (s *Service) DisassociateTask(ctx context.Context, goalID, taskID string) error {
	return s.goals.Disassociate(ctx, goalID, taskID)
}

// TasksForGoal returns the task ids associated with goalID.
func (s *Service) TasksForGoal(ctx context.Context, goalID string) ([]string, error) {
	return s.goals.ListTasksForGoal(ctx, goalID)
}
