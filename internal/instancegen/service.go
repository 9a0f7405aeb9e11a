package instancegen

import (
	"context"
	"strings"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
)

// EditScope controls how far an instance update propagates across a series.
type EditScope int

const (
	EditThisInstance EditScope = iota
	EditThisAndFuture
	EditAllInstances
)

// DeleteScope controls how far an instance deletion propagates across a series.
type DeleteScope int

const (
	DeleteThisInstance DeleteScope = iota
	DeleteThisAndFuture
	DeleteAllInstances
)

// InstanceUpdate carries only the fields a caller wants to change; nil
// means leave as-is.
type InstanceUpdate struct {
	Title       *string
	Description *string
	Status      *domain.Status
	Priority    *domain.Priority
	DueAt       **time.Time
	CompletedAt **time.Time
}

// Service manages the lifecycle of materialized task instances:
// retrieval, scoped update/delete, completion and exception marking.
type Service struct {
	instances *repo.RecurrenceRepository
}

// NewService builds an instance lifecycle service over repo.
func NewService(instances *repo.RecurrenceRepository) *Service {
	return &Service{instances: instances}
}

// GetInstance fetches a single instance by id.
func (s *Service) GetInstance(ctx context.Context, id string) (*domain.TaskInstance, error) {
	return s.instances.GetInstance(ctx, id)
}

// ListForTemplate returns every instance belonging to templateID, ordered by date.
func (s *Service) ListForTemplate(ctx context.Context, templateID string) ([]*domain.TaskInstance, error) {
	return s.instances.ListInstancesForTemplate(ctx, templateID)
}

// UpdateInstance applies update to the instance(s) selected by scope,
// validating the requested fields first.
func (s *Service) UpdateInstance(ctx context.Context, id string, update InstanceUpdate, scope EditScope) ([]*domain.TaskInstance, error) {
	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	switch scope {
	case EditThisInstance:
		updated, err := s.updateSingle(ctx, id, update)
		if err != nil {
			return nil, err
		}
		return []*domain.TaskInstance{updated}, nil
	case EditThisAndFuture:
		return s.updateFrom(ctx, instance.TemplateID, instance.InstanceDate, update)
	case EditAllInstances:
		return s.updateAll(ctx, instance.TemplateID, update)
	default:
		return nil, apperr.NewValidation("unknown edit scope")
	}
}

// DeleteInstance removes the instance(s) selected by scope and reports how many rows were deleted.
func (s *Service) DeleteInstance(ctx context.Context, id string, scope DeleteScope) (int64, error) {
	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return 0, err
	}

	switch scope {
	case DeleteThisInstance:
		return s.instances.DeleteInstance(ctx, id)
	case DeleteThisAndFuture:
		return s.instances.DeleteInstancesFromDate(ctx, instance.TemplateID, instance.InstanceDate)
	case DeleteAllInstances:
		return s.instances.DeleteInstancesForTemplate(ctx, instance.TemplateID)
	default:
		return 0, apperr.NewValidation("unknown delete scope")
	}
}

// CompleteInstance marks an instance done and stamps its completion time.
func (s *Service) CompleteInstance(ctx context.Context, id string) (*domain.TaskInstance, error) {
	done := domain.StatusDone
	now := time.Now().UTC()
	nowPtr := &now
	return s.updateSingle(ctx, id, InstanceUpdate{Status: &done, CompletedAt: &nowPtr})
}

// MarkAsException flags an instance as diverged from its template,
// without otherwise changing it.
func (s *Service) MarkAsException(ctx context.Context, id string) (*domain.TaskInstance, error) {
	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	instance.IsException = true
	if err := s.instances.UpdateInstance(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// UpcomingInstances returns todo instances due within the next n days.
func (s *Service) UpcomingInstances(ctx context.Context, templateID string, n int) ([]*domain.TaskInstance, error) {
	all, err := s.instances.ListInstancesForTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	horizon := now.AddDate(0, 0, n)
	var out []*domain.TaskInstance
	for _, inst := range all {
		if inst.Status != domain.StatusTodo {
			continue
		}
		if inst.InstanceDate.Before(now) || inst.InstanceDate.After(horizon) {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// OverdueInstances returns todo instances whose due_at has already passed.
func (s *Service) OverdueInstances(ctx context.Context, templateID string) ([]*domain.TaskInstance, error) {
	all, err := s.instances.ListInstancesForTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []*domain.TaskInstance
	for _, inst := range all {
		if inst.Status != domain.StatusTodo {
			continue
		}
		if inst.DueAt != nil && inst.DueAt.Before(now) {
			out = append(out, inst)
		}
	}
	return out, nil
}

// updateSingle persists update onto one instance, marking it an
// exception since it now diverges from its template-generated form.
func (s *Service) updateSingle(ctx context.Context, id string, update InstanceUpdate) (*domain.TaskInstance, error) {
	instance, err := s.instances.GetInstance(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUpdate(instance, update)
	instance.IsException = true

	if err := s.instances.UpdateInstance(ctx, instance); err != nil {
		return nil, err
	}
	return instance, nil
}

func (s *Service) updateFrom(ctx context.Context, templateID string, from time.Time, update InstanceUpdate) ([]*domain.TaskInstance, error) {
	instances, err := s.instances.ListInstancesFromDate(ctx, templateID, from)
	if err != nil {
		return nil, err
	}
	var out []*domain.TaskInstance
	for _, inst := range instances {
		updated, err := s.updateSingle(ctx, inst.ID, update)
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

func (s *Service) updateAll(ctx context.Context, templateID string, update InstanceUpdate) ([]*domain.TaskInstance, error) {
	instances, err := s.instances.ListInstancesForTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	var out []*domain.TaskInstance
	for _, inst := range instances {
		updated, err := s.updateSingle(ctx, inst.ID, update)
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

func applyUpdate(instance *domain.TaskInstance, update InstanceUpdate) {
	if update.Title != nil {
		instance.Title = *update.Title
	}
	if update.Description != nil {
		instance.Description = *update.Description
	}
	if update.Status != nil {
		instance.Status = *update.Status
	}
	if update.Priority != nil {
		instance.Priority = *update.Priority
	}
	if update.DueAt != nil {
		instance.DueAt = *update.DueAt
	}
	if update.CompletedAt != nil {
		instance.CompletedAt = *update.CompletedAt
	}
}

func validateUpdate(update InstanceUpdate) error {
	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return apperr.NewValidation("title cannot be empty")
		}
		if len(*update.Title) > 200 {
			return apperr.NewValidation("title cannot exceed 200 characters")
		}
	}
	if update.Description != nil && len(*update.Description) > 1000 {
		return apperr.NewValidation("description cannot exceed 1000 characters")
	}
	if update.Status != nil && !domain.ValidStatus(*update.Status) {
		return apperr.NewValidation("status must be one of: backlog, todo, in_progress, blocked, done, archived")
	}
	if update.Priority != nil && !domain.ValidPriority(*update.Priority) {
		return apperr.NewValidation("priority must be one of: low, medium, high, urgent")
	}
	return nil
}
