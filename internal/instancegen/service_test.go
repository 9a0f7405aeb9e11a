package instancegen

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/store"
)

func openTestService(t *testing.T) (*Service, *repo.RecurrenceRepository) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	recur := repo.NewRecurrenceRepository(st)
	return NewService(recur), recur
}

func seedInstance(t *testing.T, recur *repo.RecurrenceRepository, templateID string) *domain.TaskInstance {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	minutes := 30
	template := &domain.RecurringTaskTemplate{
		ID:               templateID,
		Title:            "Test Template",
		Description:      "Test template description",
		RecurrenceRule:   "FREQ=DAILY",
		Priority:         domain.PriorityMedium,
		Tags:             []string{},
		EstimatedMinutes: &minutes,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := recur.CreateTemplate(ctx, template); err != nil {
		t.Fatalf("CreateTemplate() error = %v", err)
	}

	instance := &domain.TaskInstance{
		TemplateID:   templateID,
		InstanceDate: now,
		Title:        "Test Instance",
		Description:  "Test description",
		Status:       domain.StatusTodo,
		Priority:     domain.PriorityMedium,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := recur.CreateInstance(ctx, instance); err != nil {
		t.Fatalf("CreateInstance() error = %v", err)
	}
	return instance
}

func TestServiceGetInstance(t *testing.T) {
	svc, recur := openTestService(t)
	instance := seedInstance(t, recur, "template_1")

	got, err := svc.GetInstance(context.Background(), instance.ID)
	if err != nil {
		t.Fatalf("GetInstance() error = %v", err)
	}
	if got.Title != "Test Instance" || got.Status != domain.StatusTodo {
		t.Fatalf("GetInstance() = %+v, want title/status matching seed", got)
	}
}

func TestServiceUpdateSingleInstance(t *testing.T) {
	svc, recur := openTestService(t)
	instance := seedInstance(t, recur, "template_1")

	title := "Updated Title"
	status := domain.StatusInProgress
	priority := domain.PriorityHigh
	update := InstanceUpdate{Title: &title, Status: &status, Priority: &priority}

	updated, err := svc.UpdateInstance(context.Background(), instance.ID, update, EditThisInstance)
	if err != nil {
		t.Fatalf("UpdateInstance() error = %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("len(updated) = %d, want 1", len(updated))
	}
	got := updated[0]
	if got.Title != "Updated Title" || got.Status != domain.StatusInProgress || got.Priority != domain.PriorityHigh {
		t.Fatalf("updated instance = %+v, want title/status/priority matching update", got)
	}
	if !got.IsException {
		t.Fatal("updated instance IsException = false, want true")
	}
}

func TestServiceCompleteInstance(t *testing.T) {
	svc, recur := openTestService(t)
	instance := seedInstance(t, recur, "template_1")

	completed, err := svc.CompleteInstance(context.Background(), instance.ID)
	if err != nil {
		t.Fatalf("CompleteInstance() error = %v", err)
	}
	if completed.Status != domain.StatusDone {
		t.Fatalf("completed.Status = %v, want done", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Fatal("completed.CompletedAt = nil, want set")
	}
}

func TestServiceDeleteSingleInstance(t *testing.T) {
	svc, recur := openTestService(t)
	instance := seedInstance(t, recur, "template_1")

	deleted, err := svc.DeleteInstance(context.Background(), instance.ID, DeleteThisInstance)
	if err != nil {
		t.Fatalf("DeleteInstance() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	if _, err := svc.GetInstance(context.Background(), instance.ID); err == nil {
		t.Fatal("GetInstance() after delete succeeded, want error")
	}
}

func TestServiceMarkAsException(t *testing.T) {
	svc, recur := openTestService(t)
	instance := seedInstance(t, recur, "template_1")

	if instance.IsException {
		t.Fatal("seed instance IsException = true, want false")
	}

	marked, err := svc.MarkAsException(context.Background(), instance.ID)
	if err != nil {
		t.Fatalf("MarkAsException() error = %v", err)
	}
	if !marked.IsException {
		t.Fatal("marked.IsException = false, want true")
	}
}

func TestServiceListForTemplate(t *testing.T) {
	svc, recur := openTestService(t)
	seedInstance(t, recur, "template_1")
	seedInstance(t, recur, "template_2")

	instances, err := svc.ListForTemplate(context.Background(), "template_1")
	if err != nil {
		t.Fatalf("ListForTemplate() error = %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("len(instances) = %d, want 1", len(instances))
	}
	if instances[0].TemplateID != "template_1" {
		t.Fatalf("instances[0].TemplateID = %q, want template_1", instances[0].TemplateID)
	}
}

func TestServiceValidationErrors(t *testing.T) {
	svc, recur := openTestService(t)
	instance := seedInstance(t, recur, "template_1")
	ctx := context.Background()

	emptyTitle := ""
	if _, err := svc.UpdateInstance(ctx, instance.ID, InstanceUpdate{Title: &emptyTitle}, EditThisInstance); err == nil {
		t.Fatal("UpdateInstance() with empty title succeeded, want error")
	}

	badStatus := domain.Status("invalid_status")
	if _, err := svc.UpdateInstance(ctx, instance.ID, InstanceUpdate{Status: &badStatus}, EditThisInstance); err == nil {
		t.Fatal("UpdateInstance() with invalid status succeeded, want error")
	}

	badPriority := domain.Priority("invalid_priority")
	if _, err := svc.UpdateInstance(ctx, instance.ID, InstanceUpdate{Priority: &badPriority}, EditThisInstance); err == nil {
		t.Fatal("UpdateInstance() with invalid priority succeeded, want error")
	}
}
