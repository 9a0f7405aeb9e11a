package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/store"
)

// RecurrenceRepository is the CRUD/JSON-column boundary for recurring
// task templates and their materialized instances.
type RecurrenceRepository struct {
	db *sql.DB
}

// NewRecurrenceRepository builds a RecurrenceRepository over st's connection pool.
func NewRecurrenceRepository(st *store.Store) *RecurrenceRepository {
	return &RecurrenceRepository{db: st.DB()}
}

// CreateTemplate inserts a new recurring task template.
func (r *RecurrenceRepository) CreateTemplate(ctx context.Context, t *domain.RecurringTaskTemplate) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return apperr.NewOther("encode template tags", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recurring_task_templates (
			id, title, description, recurrence_rule, priority, tags,
			estimated_minutes, created_at, updated_at, is_active
		) VALUES (?,?,?,?,?,?,?,?,?,?)
	`, t.ID, t.Title, t.Description, t.RecurrenceRule, string(t.Priority), string(tags),
		nullableInt(t.EstimatedMinutes), t.CreatedAt.UTC().Format(time.RFC3339),
		t.UpdatedAt.UTC().Format(time.RFC3339), boolToInt(t.IsActive))
	if err != nil {
		return apperr.NewDatabase("insert recurring task template", err)
	}
	return nil
}

// UpdateTemplate persists every field of t and bumps updated_at.
func (r *RecurrenceRepository) UpdateTemplate(ctx context.Context, t *domain.RecurringTaskTemplate) error {
	t.UpdatedAt = time.Now().UTC()
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return apperr.NewOther("encode template tags", err)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE recurring_task_templates SET
			title=?, description=?, recurrence_rule=?, priority=?, tags=?,
			estimated_minutes=?, updated_at=?, is_active=?
		WHERE id=?
	`, t.Title, t.Description, t.RecurrenceRule, string(t.Priority), string(tags),
		nullableInt(t.EstimatedMinutes), t.UpdatedAt.Format(time.RFC3339), boolToInt(t.IsActive), t.ID)
	if err != nil {
		return apperr.NewDatabase("update recurring task template", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update recurring task template rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("recurring_task_template", t.ID)
	}
	return nil
}

// GetTemplate fetches a template by id.
func (r *RecurrenceRepository) GetTemplate(ctx context.Context, id string) (*domain.RecurringTaskTemplate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, recurrence_rule, priority, tags,
		       estimated_minutes, created_at, updated_at, is_active
		FROM recurring_task_templates WHERE id = ?
	`, id)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("recurring_task_template", id)
	}
	if err != nil {
		return nil, apperr.NewDatabase("get recurring task template", err)
	}
	return t, nil
}

// ListActiveTemplates returns every template with is_active = true.
func (r *RecurrenceRepository) ListActiveTemplates(ctx context.Context) ([]*domain.RecurringTaskTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, description, recurrence_rule, priority, tags,
		       estimated_minutes, created_at, updated_at, is_active
		FROM recurring_task_templates WHERE is_active = 1 ORDER BY created_at
	`)
	if err != nil {
		return nil, apperr.NewDatabase("list recurring task templates", err)
	}
	defer rows.Close()

	var out []*domain.RecurringTaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, apperr.NewDatabase("scan recurring task template", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTemplate removes a template (instances cascade).
func (r *RecurrenceRepository) DeleteTemplate(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM recurring_task_templates WHERE id = ?`, id)
	if err != nil {
		return apperr.NewDatabase("delete recurring task template", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("delete recurring task template rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("recurring_task_template", id)
	}
	return nil
}

func scanTemplate(s scanner) (*domain.RecurringTaskTemplate, error) {
	var (
		t                         domain.RecurringTaskTemplate
		priority                  string
		tagsJSON                  string
		description               sql.NullString
		estimatedMinutes          sql.NullInt64
		createdAt, updatedAt      string
		isActive                  int
	)
	if err := s.Scan(&t.ID, &t.Title, &description, &t.RecurrenceRule, &priority, &tagsJSON,
		&estimatedMinutes, &createdAt, &updatedAt, &isActive); err != nil {
		return nil, err
	}
	t.Priority = domain.Priority(priority)
	if description.Valid {
		t.Description = description.String
	}
	_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
	if estimatedMinutes.Valid {
		minutes := int(estimatedMinutes.Int64)
		t.EstimatedMinutes = &minutes
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	t.IsActive = isActive != 0
	return &t, nil
}

// CreateInstance inserts one materialized occurrence. The schema's
// UNIQUE(template_id, instance_date) makes a duplicate (template, date)
// pair surface as a Conflict rather than a silent overwrite.
func (r *RecurrenceRepository) CreateInstance(ctx context.Context, inst *domain.TaskInstance) error {
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO task_instances (
			id, template_id, instance_date, title, description, status, priority,
			due_at, completed_at, is_exception, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, inst.ID, inst.TemplateID, inst.InstanceDate.UTC().Format(time.RFC3339), inst.Title, inst.Description,
		string(inst.Status), string(inst.Priority), nullableTime(inst.DueAt), nullableTime(inst.CompletedAt),
		boolToInt(inst.IsException), inst.CreatedAt.UTC().Format(time.RFC3339), inst.UpdatedAt.UTC().Format(time.RFC3339))
	if isUniqueConstraintErr(err) {
		return apperr.NewConflict("a task instance already exists for this template and date")
	}
	if err != nil {
		return apperr.NewDatabase("insert task instance", err)
	}
	return nil
}

// UpdateInstance persists mutable fields (title/description/status/priority/due/completed/exception).
func (r *RecurrenceRepository) UpdateInstance(ctx context.Context, inst *domain.TaskInstance) error {
	inst.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE task_instances SET
			title=?, description=?, status=?, priority=?, due_at=?, completed_at=?,
			is_exception=?, updated_at=?
		WHERE id=?
	`, inst.Title, inst.Description, string(inst.Status), string(inst.Priority),
		nullableTime(inst.DueAt), nullableTime(inst.CompletedAt), boolToInt(inst.IsException),
		inst.UpdatedAt.Format(time.RFC3339), inst.ID)
	if err != nil {
		return apperr.NewDatabase("update task instance", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update task instance rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("task_instance", inst.ID)
	}
	return nil
}

// ListInstancesForTemplate returns every instance of a template ordered by date.
func (r *RecurrenceRepository) ListInstancesForTemplate(ctx context.Context, templateID string) ([]*domain.TaskInstance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, template_id, instance_date, title, description, status, priority,
		       due_at, completed_at, is_exception, created_at, updated_at
		FROM task_instances WHERE template_id = ? ORDER BY instance_date
	`, templateID)
	if err != nil {
		return nil, apperr.NewDatabase("list task instances", err)
	}
	defer rows.Close()

	var out []*domain.TaskInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, apperr.NewDatabase("scan task instance", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// GetInstance fetches a single materialized instance by id.
func (r *RecurrenceRepository) GetInstance(ctx context.Context, id string) (*domain.TaskInstance, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, template_id, instance_date, title, description, status, priority,
		       due_at, completed_at, is_exception, created_at, updated_at
		FROM task_instances WHERE id = ?
	`, id)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("task_instance", id)
	}
	if err != nil {
		return nil, apperr.NewDatabase("get task instance", err)
	}
	return inst, nil
}

// ListInstancesFromDate returns every instance of template on or after from, ordered by date.
func (r *RecurrenceRepository) ListInstancesFromDate(ctx context.Context, templateID string, from time.Time) ([]*domain.TaskInstance, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, template_id, instance_date, title, description, status, priority,
		       due_at, completed_at, is_exception, created_at, updated_at
		FROM task_instances WHERE template_id = ? AND instance_date >= ? ORDER BY instance_date
	`, templateID, from.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, apperr.NewDatabase("list task instances from date", err)
	}
	defer rows.Close()

	var out []*domain.TaskInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, apperr.NewDatabase("scan task instance", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// DeleteInstance removes a single instance.
func (r *RecurrenceRepository) DeleteInstance(ctx context.Context, id string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM task_instances WHERE id = ?`, id)
	if err != nil {
		return 0, apperr.NewDatabase("delete task instance", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.NewDatabase("delete task instance rows affected", err)
	}
	if affected == 0 {
		return 0, apperr.NewNotFound("task_instance", id)
	}
	return affected, nil
}

// DeleteInstancesFromDate removes every instance of template on or after from.
func (r *RecurrenceRepository) DeleteInstancesFromDate(ctx context.Context, templateID string, from time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM task_instances WHERE template_id = ? AND instance_date >= ?`,
		templateID, from.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, apperr.NewDatabase("delete task instances from date", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.NewDatabase("delete task instances from date rows affected", err)
	}
	return affected, nil
}

// DeleteInstancesForTemplate removes every instance belonging to template,
// leaving the template row itself intact.
func (r *RecurrenceRepository) DeleteInstancesForTemplate(ctx context.Context, templateID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM task_instances WHERE template_id = ?`, templateID)
	if err != nil {
		return 0, apperr.NewDatabase("delete task instances for template", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, apperr.NewDatabase("delete task instances for template rows affected", err)
	}
	return affected, nil
}

// InstanceExistsForDate reports whether template already has an
// instance materialized for the given date.
func (r *RecurrenceRepository) InstanceExistsForDate(ctx context.Context, templateID string, date time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM task_instances WHERE template_id = ? AND instance_date = ?`,
		templateID, date.UTC().Format(time.RFC3339),
	).Scan(&count)
	if err != nil {
		return false, apperr.NewDatabase("check task instance exists", err)
	}
	return count > 0, nil
}

func scanInstance(s scanner) (*domain.TaskInstance, error) {
	var (
		inst                         domain.TaskInstance
		instanceDate                 string
		description                  sql.NullString
		status, priority             string
		dueAt, completedAt           sql.NullString
		isException                  int
		createdAt, updatedAt         string
	)
	if err := s.Scan(&inst.ID, &inst.TemplateID, &instanceDate, &inst.Title, &description, &status, &priority,
		&dueAt, &completedAt, &isException, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	inst.InstanceDate, _ = time.Parse(time.RFC3339, instanceDate)
	if description.Valid {
		inst.Description = description.String
	}
	inst.Status = domain.Status(status)
	inst.Priority = domain.Priority(priority)
	inst.DueAt = parseNullableTime(dueAt)
	inst.CompletedAt = parseNullableTime(completedAt)
	inst.IsException = isException != 0
	inst.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	inst.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &inst, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// isUniqueConstraintErr detects SQLite's UNIQUE constraint violation
// message without importing the driver's internal error type.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
