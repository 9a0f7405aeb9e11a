// Package repo maps domain records onto SQL rows: JSON-column
// (de)serialization, CRUD primitives, and NotFound detection on
// zero-row writes. Services consume typed domain records; repo never
// enforces business semantics (cycle-freeness, state machines) — that
// lives one layer up.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/store"
)

// TaskRepository is the CRUD/JSON-column boundary for domain.Task.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository builds a TaskRepository over st's connection pool.
func NewTaskRepository(st *store.Store) *TaskRepository {
	return &TaskRepository{db: st.DB()}
}

const taskColumns = `
	id, title, description, status, priority, tags,
	start_at, due_at, completed_at, estimated_minutes, estimated_hours,
	planned_start_at, created_at, updated_at,
	ai_summary, ai_next_action, ai_confidence, ai_complexity_score,
	ai_suggested_start_at, ai_focus_mode, ai_efficiency_prediction,
	ai_cot_steps, ai_cot_summary, ai_metadata, ai_source, ai_generated_at
`

// Create inserts a new task row.
func (r *TaskRepository) Create(ctx context.Context, t *domain.Task) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	row, err := taskToRow(t)
	if err != nil {
		return apperr.NewOther("encode task", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?,?,?,?,?,?, ?,?,?,?,?, ?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?,?)
	`, row.args()...)
	if err != nil {
		return apperr.NewDatabase("insert task", err)
	}
	return nil
}

// Get fetches a task by id.
func (r *TaskRepository) Get(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("task", id)
	}
	if err != nil {
		return nil, apperr.NewDatabase("get task", err)
	}
	return t, nil
}

// List returns tasks ordered by created_at, optionally filtered by status.
func (r *TaskRepository) List(ctx context.Context, status domain.Status) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.NewDatabase("list tasks", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.NewDatabase("scan task", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Search returns tasks whose title or description contains query (case-insensitive).
func (r *TaskRepository) Search(ctx context.Context, query string) ([]*domain.Task, error) {
	like := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE title LIKE ? OR description LIKE ? ORDER BY created_at`,
		like, like,
	)
	if err != nil {
		return nil, apperr.NewDatabase("search tasks", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.NewDatabase("scan task", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update persists every field of t and bumps updated_at.
func (r *TaskRepository) Update(ctx context.Context, t *domain.Task) error {
	t.UpdatedAt = time.Now().UTC()
	row, err := taskToRow(t)
	if err != nil {
		return apperr.NewOther("encode task", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET
			title=?, description=?, status=?, priority=?, tags=?,
			start_at=?, due_at=?, completed_at=?, estimated_minutes=?, estimated_hours=?,
			planned_start_at=?, created_at=?, updated_at=?,
			ai_summary=?, ai_next_action=?, ai_confidence=?, ai_complexity_score=?,
			ai_suggested_start_at=?, ai_focus_mode=?, ai_efficiency_prediction=?,
			ai_cot_steps=?, ai_cot_summary=?, ai_metadata=?, ai_source=?, ai_generated_at=?
		WHERE id=?
	`, row.title, row.description, row.status, row.priority, row.tags,
		row.startAt, row.dueAt, row.completedAt, row.estimatedMinutes, row.estimatedHours,
		row.plannedStartAt, row.createdAt, row.updatedAt,
		row.aiSummary, row.aiNextAction, row.aiConfidence, row.aiComplexityScore,
		row.aiSuggestedStartAt, row.aiFocusMode, row.aiEfficiencyPrediction,
		row.aiCotSteps, row.aiCotSummary, row.aiMetadata, row.aiSource, row.aiGeneratedAt,
		row.id,
	)
	if err != nil {
		return apperr.NewDatabase("update task", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update task rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("task", t.ID)
	}
	return nil
}

// Delete removes a task by id (dependency edges cascade).
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM task_dependencies WHERE predecessor_id = ? OR successor_id = ?`, id, id); err != nil {
		return apperr.NewDatabase("delete task dependencies", err)
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return apperr.NewDatabase("delete task", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("delete task rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("task", id)
	}
	return nil
}

// taskRow is the flat SQL-shaped projection of a domain.Task.
type taskRow struct {
	id, title, status, priority, tags                                    string
	description, startAt, dueAt, completedAt, plannedStartAt             sql.NullString
	estimatedMinutes                                                     sql.NullInt64
	estimatedHours                                                       sql.NullFloat64
	createdAt, updatedAt                                                 string
	aiSummary, aiNextAction, aiSuggestedStartAt, aiFocusMode             sql.NullString
	aiEfficiencyPrediction, aiCotSteps, aiCotSummary, aiMetadata         sql.NullString
	aiSource, aiGeneratedAt                                              sql.NullString
	aiConfidence, aiComplexityScore                                      sql.NullFloat64
}

func (row *taskRow) args() []any {
	return []any{
		row.id, row.title, row.description, row.status, row.priority, row.tags,
		row.startAt, row.dueAt, row.completedAt, row.estimatedMinutes, row.estimatedHours,
		row.plannedStartAt, row.createdAt, row.updatedAt,
		row.aiSummary, row.aiNextAction, row.aiConfidence, row.aiComplexityScore,
		row.aiSuggestedStartAt, row.aiFocusMode, row.aiEfficiencyPrediction,
		row.aiCotSteps, row.aiCotSummary, row.aiMetadata, row.aiSource, row.aiGeneratedAt,
	}
}

func taskToRow(t *domain.Task) (*taskRow, error) {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, err
	}
	row := &taskRow{
		id:        t.ID,
		title:     t.Title,
		status:    string(t.Status),
		priority:  string(t.Priority),
		tags:      string(tags),
		createdAt: t.CreatedAt.UTC().Format(time.RFC3339),
		updatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
	row.description = nullableString(t.Description)
	row.startAt = nullableTime(t.StartAt)
	row.dueAt = nullableTime(t.DueAt)
	row.completedAt = nullableTime(t.CompletedAt)
	row.plannedStartAt = nullableTime(t.PlannedStartAt)
	if t.EstimatedMinutes != nil {
		row.estimatedMinutes = sql.NullInt64{Int64: int64(*t.EstimatedMinutes), Valid: true}
	}
	if t.EstimatedHours != nil {
		row.estimatedHours = sql.NullFloat64{Float64: *t.EstimatedHours, Valid: true}
	}

	if t.AI != nil {
		row.aiSummary = nullableString(t.AI.Summary)
		row.aiNextAction = nullableString(t.AI.NextAction)
		if t.AI.Confidence != nil {
			row.aiConfidence = sql.NullFloat64{Float64: *t.AI.Confidence, Valid: true}
		}
		if t.AI.ComplexityScore != nil {
			row.aiComplexityScore = sql.NullFloat64{Float64: *t.AI.ComplexityScore, Valid: true}
		}
		row.aiSuggestedStartAt = nullableTime(t.AI.SuggestedStartAt)
		if t.AI.FocusModeRecommended {
			row.aiFocusMode = sql.NullString{String: "true", Valid: true}
		}
		row.aiEfficiencyPrediction = nullableString(t.AI.EfficiencyPrediction)
		if len(t.AI.ChainOfThoughtSteps) > 0 {
			encoded, err := json.Marshal(t.AI.ChainOfThoughtSteps)
			if err != nil {
				return nil, err
			}
			row.aiCotSteps = sql.NullString{String: string(encoded), Valid: true}
		}
		if len(t.AI.Metadata) > 0 {
			encoded, err := json.Marshal(t.AI.Metadata)
			if err != nil {
				return nil, err
			}
			row.aiMetadata = sql.NullString{String: string(encoded), Valid: true}
		}
		row.aiSource = nullableString(string(t.AI.Source))
		row.aiGeneratedAt = nullableTime(t.AI.GeneratedAt)
	}

	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*domain.Task, error) {
	var row taskRow
	if err := s.Scan(
		&row.id, &row.title, &row.description, &row.status, &row.priority, &row.tags,
		&row.startAt, &row.dueAt, &row.completedAt, &row.estimatedMinutes, &row.estimatedHours,
		&row.plannedStartAt, &row.createdAt, &row.updatedAt,
		&row.aiSummary, &row.aiNextAction, &row.aiConfidence, &row.aiComplexityScore,
		&row.aiSuggestedStartAt, &row.aiFocusMode, &row.aiEfficiencyPrediction,
		&row.aiCotSteps, &row.aiCotSummary, &row.aiMetadata, &row.aiSource, &row.aiGeneratedAt,
	); err != nil {
		return nil, err
	}

	t := &domain.Task{
		ID:       row.id,
		Title:    row.title,
		Status:   domain.Status(row.status),
		Priority: domain.Priority(row.priority),
	}
	if row.description.Valid {
		t.Description = row.description.String
	}
	_ = json.Unmarshal([]byte(row.tags), &t.Tags)

	t.CreatedAt, _ = time.Parse(time.RFC3339, row.createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, row.updatedAt)
	t.StartAt = parseNullableTime(row.startAt)
	t.DueAt = parseNullableTime(row.dueAt)
	t.CompletedAt = parseNullableTime(row.completedAt)
	t.PlannedStartAt = parseNullableTime(row.plannedStartAt)

	if row.estimatedMinutes.Valid {
		minutes := int(row.estimatedMinutes.Int64)
		t.EstimatedMinutes = &minutes
	}
	if row.estimatedHours.Valid {
		t.EstimatedHours = &row.estimatedHours.Float64
	}

	if row.aiSummary.Valid || row.aiNextAction.Valid || row.aiConfidence.Valid ||
		row.aiComplexityScore.Valid || row.aiSuggestedStartAt.Valid || row.aiFocusMode.Valid ||
		row.aiEfficiencyPrediction.Valid || row.aiCotSteps.Valid || row.aiMetadata.Valid ||
		row.aiSource.Valid || row.aiGeneratedAt.Valid {
		ai := &domain.AIInsights{}
		if row.aiSummary.Valid {
			ai.Summary = row.aiSummary.String
		}
		if row.aiNextAction.Valid {
			ai.NextAction = row.aiNextAction.String
		}
		if row.aiConfidence.Valid {
			ai.Confidence = &row.aiConfidence.Float64
		}
		if row.aiComplexityScore.Valid {
			ai.ComplexityScore = &row.aiComplexityScore.Float64
		}
		ai.SuggestedStartAt = parseNullableTime(row.aiSuggestedStartAt)
		ai.FocusModeRecommended = row.aiFocusMode.Valid && row.aiFocusMode.String == "true"
		if row.aiEfficiencyPrediction.Valid {
			ai.EfficiencyPrediction = row.aiEfficiencyPrediction.String
		}
		if row.aiCotSteps.Valid {
			_ = json.Unmarshal([]byte(row.aiCotSteps.String), &ai.ChainOfThoughtSteps)
		}
		if row.aiMetadata.Valid {
			_ = json.Unmarshal([]byte(row.aiMetadata.String), &ai.Metadata)
		}
		if row.aiSource.Valid {
			ai.Source = domain.AISource(row.aiSource.String)
		}
		ai.GeneratedAt = parseNullableTime(row.aiGeneratedAt)
		t.AI = ai
	}

	return t, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	parsed, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &parsed
}
