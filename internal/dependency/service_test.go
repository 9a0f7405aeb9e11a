package dependency

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/store"
)

func newTestService(t *testing.T) (*Service, *repo.TaskRepository) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tasks := repo.NewTaskRepository(st)
	deps := repo.NewDependencyRepository(st)
	return NewService(deps, tasks), tasks
}

func createTask(t *testing.T, tasks *repo.TaskRepository, title string) *domain.Task {
	t.Helper()
	now := time.Now().UTC()
	task := &domain.Task{Title: title, Status: domain.StatusTodo, Priority: domain.PriorityMedium, CreatedAt: now, UpdatedAt: now}
	if err := tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return task
}

func TestAddDependencyRejectsSelfDependency(t *testing.T) {
	svc, tasks := newTestService(t)
	a := createTask(t, tasks, "a")

	_, err := svc.AddDependency(context.Background(), a.ID, a.ID, domain.DependencyFinishToStart)
	if !apperr.IsValidation(err) {
		t.Fatalf("AddDependency(a, a) error = %v, want Validation", err)
	}
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()
	a := createTask(t, tasks, "a")
	b := createTask(t, tasks, "b")
	c := createTask(t, tasks, "c")

	if _, err := svc.AddDependency(ctx, a.ID, b.ID, domain.DependencyFinishToStart); err != nil {
		t.Fatalf("AddDependency(a, b) error = %v", err)
	}
	if _, err := svc.AddDependency(ctx, b.ID, c.ID, domain.DependencyFinishToStart); err != nil {
		t.Fatalf("AddDependency(b, c) error = %v", err)
	}

	if _, err := svc.AddDependency(ctx, c.ID, a.ID, domain.DependencyFinishToStart); !apperr.IsValidation(err) {
		t.Fatalf("AddDependency(c, a) error = %v, want Validation (cycle)", err)
	}
}

func TestAddDependencyRejectsDuplicate(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()
	a := createTask(t, tasks, "a")
	b := createTask(t, tasks, "b")

	if _, err := svc.AddDependency(ctx, a.ID, b.ID, domain.DependencyFinishToStart); err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	if _, err := svc.AddDependency(ctx, a.ID, b.ID, domain.DependencyFinishToStart); !apperr.IsValidation(err) {
		t.Fatalf("duplicate AddDependency() error = %v, want Validation", err)
	}
}

func TestGraphTopologicalOrderAndReady(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()
	a := createTask(t, tasks, "a")
	b := createTask(t, tasks, "b")
	c := createTask(t, tasks, "c")

	if _, err := svc.AddDependency(ctx, a.ID, b.ID, domain.DependencyFinishToStart); err != nil {
		t.Fatalf("AddDependency(a, b) error = %v", err)
	}
	if _, err := svc.AddDependency(ctx, b.ID, c.ID, domain.DependencyFinishToStart); err != nil {
		t.Fatalf("AddDependency(b, c) error = %v", err)
	}

	graph, err := svc.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if len(graph.TopologicalOrder) != 3 {
		t.Fatalf("TopologicalOrder = %v, want 3 entries", graph.TopologicalOrder)
	}
	posA, posB, posC := indexOf(graph.TopologicalOrder, a.ID), indexOf(graph.TopologicalOrder, b.ID), indexOf(graph.TopologicalOrder, c.ID)
	if !(posA < posB && posB < posC) {
		t.Fatalf("TopologicalOrder = %v, want a before b before c", graph.TopologicalOrder)
	}

	if !graph.Nodes[a.ID].Ready {
		t.Fatal("node a.Ready = false, want true (no predecessors)")
	}
	if graph.Nodes[b.ID].Ready {
		t.Fatal("node b.Ready = true, want false (predecessor a not done)")
	}

	critical := graph.CriticalPath
	if len(critical) != 3 || critical[0] != a.ID || critical[2] != c.ID {
		t.Fatalf("CriticalPath = %v, want [a, b, c]", critical)
	}
}

func TestRemoveDependency(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()
	a := createTask(t, tasks, "a")
	b := createTask(t, tasks, "b")

	id, err := svc.AddDependency(ctx, a.ID, b.ID, domain.DependencyFinishToStart)
	if err != nil {
		t.Fatalf("AddDependency() error = %v", err)
	}
	if err := svc.RemoveDependency(ctx, id); err != nil {
		t.Fatalf("RemoveDependency() error = %v", err)
	}
	if err := svc.RemoveDependency(ctx, id); !apperr.IsNotFound(err) {
		t.Fatalf("second RemoveDependency() error = %v, want NotFound", err)
	}
}

func TestCriticalPathToGoalNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.CriticalPath(context.Background(), "does-not-exist"); !apperr.IsNotFound(err) {
		t.Fatalf("CriticalPath() error = %v, want NotFound", err)
	}
}
