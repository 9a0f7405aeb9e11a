package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/store"
)

// DependencyRepository is the CRUD boundary for task_dependencies edges.
type DependencyRepository struct {
	db *sql.DB
}

// NewDependencyRepository builds a DependencyRepository over st's connection pool.
func NewDependencyRepository(st *store.Store) *DependencyRepository {
	return &DependencyRepository{db: st.DB()}
}

// Create inserts a directed dependency edge.
func (r *DependencyRepository) Create(ctx context.Context, d *domain.TaskDependency) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_dependencies (id, predecessor_id, successor_id, dependency_type, created_at)
		VALUES (?,?,?,?,?)
	`, d.ID, d.PredecessorID, d.SuccessorID, string(d.Kind), d.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.NewDatabase("insert task dependency", err)
	}
	return nil
}

// Delete removes a dependency edge by id.
func (r *DependencyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id = ?`, id)
	if err != nil {
		return apperr.NewDatabase("delete task dependency", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("delete task dependency rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("task_dependency", id)
	}
	return nil
}

// ListAll returns every dependency edge, for building the full graph.
func (r *DependencyRepository) ListAll(ctx context.Context) ([]domain.TaskDependency, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, predecessor_id, successor_id, dependency_type, created_at FROM task_dependencies
	`)
	if err != nil {
		return nil, apperr.NewDatabase("list task dependencies", err)
	}
	defer rows.Close()

	var out []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		var kind, createdAt string
		if err := rows.Scan(&d.ID, &d.PredecessorID, &d.SuccessorID, &kind, &createdAt); err != nil {
			return nil, apperr.NewDatabase("scan task dependency", err)
		}
		d.Kind = domain.DependencyKind(kind)
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListForTask returns every edge where task is predecessor or successor.
func (r *DependencyRepository) ListForTask(ctx context.Context, taskID string) ([]domain.TaskDependency, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, predecessor_id, successor_id, dependency_type, created_at
		FROM task_dependencies WHERE predecessor_id = ? OR successor_id = ?
	`, taskID, taskID)
	if err != nil {
		return nil, apperr.NewDatabase("list task dependencies for task", err)
	}
	defer rows.Close()

	var out []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		var kind, createdAt string
		if err := rows.Scan(&d.ID, &d.PredecessorID, &d.SuccessorID, &kind, &createdAt); err != nil {
			return nil, apperr.NewDatabase("scan task dependency", err)
		}
		d.Kind = domain.DependencyKind(kind)
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetByID fetches a single dependency edge, or NotFound if absent.
func (r *DependencyRepository) GetByID(ctx context.Context, id string) (*domain.TaskDependency, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, predecessor_id, successor_id, dependency_type, created_at
		FROM task_dependencies WHERE id = ?
	`, id)

	var d domain.TaskDependency
	var kind, createdAt string
	err := row.Scan(&d.ID, &d.PredecessorID, &d.SuccessorID, &kind, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("task_dependency", id)
	}
	if err != nil {
		return nil, apperr.NewDatabase("get task dependency", err)
	}
	d.Kind = domain.DependencyKind(kind)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &d, nil
}

// UpdateKind changes a dependency edge's type.
func (r *DependencyRepository) UpdateKind(ctx context.Context, id string, kind domain.DependencyKind) error {
	result, err := r.db.ExecContext(ctx, `UPDATE task_dependencies SET dependency_type = ? WHERE id = ?`, string(kind), id)
	if err != nil {
		return apperr.NewDatabase("update task dependency type", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update task dependency type rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("task_dependency", id)
	}
	return nil
}

// ReadyTask is a minimal projection of the ready_tasks view: a task
// with no incomplete predecessor.
type ReadyTask struct {
	ID       string
	Title    string
	Status   domain.Status
	Priority domain.Priority
	DueAt    *time.Time
}

// ReadyTasks returns every task with no incomplete predecessor,
// ordered by priority then due date.
func (r *DependencyRepository) ReadyTasks(ctx context.Context) ([]ReadyTask, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, status, priority, due_at FROM ready_tasks
		ORDER BY CASE priority
			WHEN 'urgent' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0
		END DESC, due_at ASC
	`)
	if err != nil {
		return nil, apperr.NewDatabase("list ready tasks", err)
	}
	defer rows.Close()

	var out []ReadyTask
	for rows.Next() {
		var rt ReadyTask
		var status, priority string
		var dueAt sql.NullString
		if err := rows.Scan(&rt.ID, &rt.Title, &status, &priority, &dueAt); err != nil {
			return nil, apperr.NewDatabase("scan ready task", err)
		}
		rt.Status = domain.Status(status)
		rt.Priority = domain.Priority(priority)
		rt.DueAt = parseNullableTime(dueAt)
		out = append(out, rt)
	}
	return out, rows.Err()
}

// Exists reports whether an edge with this exact (predecessor, successor)
// pair is already present, mirroring the schema's UNIQUE constraint.
func (r *DependencyRepository) Exists(ctx context.Context, predecessorID, successorID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_dependencies WHERE predecessor_id = ? AND successor_id = ?`,
		predecessorID, successorID,
	).Scan(&count)
	if err != nil {
		return false, apperr.NewDatabase("check task dependency exists", err)
	}
	return count > 0, nil
}
