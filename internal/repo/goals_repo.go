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

// GoalsRepository is the CRUD boundary for goals and their task associations.
type GoalsRepository struct {
	db *sql.DB
}

// NewGoalsRepository builds a GoalsRepository over st's connection pool.
func NewGoalsRepository(st *store.Store) *GoalsRepository {
	return &GoalsRepository{db: st.DB()}
}

// Create inserts a new goal.
func (r *GoalsRepository) Create(ctx context.Context, g *domain.Goal) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	if g.CreatedAt == "" {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, title, description, status, target_date, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)
	`, g.ID, g.Title, g.Description, g.Status, g.TargetDate, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return apperr.NewDatabase("insert goal", err)
	}
	return nil
}

// Update persists every field of g and bumps updated_at.
func (r *GoalsRepository) Update(ctx context.Context, g *domain.Goal) error {
	g.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE goals SET title=?, description=?, status=?, target_date=?, updated_at=? WHERE id=?
	`, g.Title, g.Description, g.Status, g.TargetDate, g.UpdatedAt, g.ID)
	if err != nil {
		return apperr.NewDatabase("update goal", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update goal rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("goal", g.ID)
	}
	return nil
}

// Get fetches a goal by id.
func (r *GoalsRepository) Get(ctx context.Context, id string) (*domain.Goal, error) {
	var g domain.Goal
	var description, targetDate sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, status, target_date, created_at, updated_at FROM goals WHERE id = ?`, id,
	).Scan(&g.ID, &g.Title, &description, &g.Status, &targetDate, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("goal", id)
	}
	if err != nil {
		return nil, apperr.NewDatabase("get goal", err)
	}
	if description.Valid {
		g.Description = description.String
	}
	if targetDate.Valid {
		g.TargetDate = &targetDate.String
	}
	return &g, nil
}

// List returns every goal ordered by created_at.
func (r *GoalsRepository) List(ctx context.Context) ([]*domain.Goal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, status, target_date, created_at, updated_at FROM goals ORDER BY created_at`)
	if err != nil {
		return nil, apperr.NewDatabase("list goals", err)
	}
	defer rows.Close()

	var out []*domain.Goal
	for rows.Next() {
		var g domain.Goal
		var description, targetDate sql.NullString
		if err := rows.Scan(&g.ID, &g.Title, &description, &g.Status, &targetDate, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, apperr.NewDatabase("scan goal", err)
		}
		if description.Valid {
			g.Description = description.String
		}
		if targetDate.Valid {
			g.TargetDate = &targetDate.String
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

// Delete removes a goal (associations cascade).
func (r *GoalsRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM goal_task_associations WHERE goal_id = ?`, id); err != nil {
		return apperr.NewDatabase("delete goal associations", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return apperr.NewDatabase("delete goal", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("delete goal rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("goal", id)
	}
	return nil
}

// Associate links a goal to a contributing task. A duplicate pair
// surfaces as a Conflict per the schema's UNIQUE(goal_id, task_id).
func (r *GoalsRepository) Associate(ctx context.Context, goalID, taskID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goal_task_associations (id, goal_id, task_id, created_at) VALUES (?,?,?,?)
	`, uuid.NewString(), goalID, taskID, time.Now().UTC().Format(time.RFC3339))
	if isUniqueConstraintErr(err) {
		return apperr.NewConflict("task is already associated with this goal")
	}
	if err != nil {
		return apperr.NewDatabase("associate goal task", err)
	}
	return nil
}

// Disassociate removes the link between a goal and a task, if present.
func (r *GoalsRepository) Disassociate(ctx context.Context, goalID, taskID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM goal_task_associations WHERE goal_id = ? AND task_id = ?`, goalID, taskID)
	if err != nil {
		return apperr.NewDatabase("disassociate goal task", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("disassociate goal task rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("goal_task_association", goalID+":"+taskID)
	}
	return nil
}

// ListTasksForGoal returns the task ids associated with a goal.
func (r *GoalsRepository) ListTasksForGoal(ctx context.Context, goalID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT task_id FROM goal_task_associations WHERE goal_id = ?`, goalID)
	if err != nil {
		return nil, apperr.NewDatabase("list goal tasks", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, apperr.NewDatabase("scan goal task", err)
		}
		out = append(out, taskID)
	}
	return out, rows.Err()
}
