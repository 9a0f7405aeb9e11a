package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/store"
)

// PlanningRepository is the CRUD/JSON-column boundary for planning
// sessions, their ranked options, and each option's time blocks.
type PlanningRepository struct {
	db *sql.DB
}

// NewPlanningRepository builds a PlanningRepository over st's connection pool.
func NewPlanningRepository(st *store.Store) *PlanningRepository {
	return &PlanningRepository{db: st.DB()}
}

// CreateSession inserts a new planning session row (without options/blocks).
func (r *PlanningRepository) CreateSession(ctx context.Context, s *domain.PlanningSession) error {
	taskIDs, err := json.Marshal(s.TaskIDs)
	if err != nil {
		return apperr.NewOther("encode task ids", err)
	}
	constraints, err := json.Marshal(s.Constraints)
	if err != nil {
		return apperr.NewOther("encode constraints", err)
	}
	snapshot, err := json.Marshal(s.PersonalizationSnapshot)
	if err != nil {
		return apperr.NewOther("encode personalization snapshot", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO planning_sessions (
			id, task_ids, constraints, generated_at, status,
			selected_option_id, personalization_snapshot, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?)
	`,
		s.ID, string(taskIDs), string(constraints), s.GeneratedAt.UTC().Format(time.RFC3339), string(s.Status),
		nullableString(s.SelectedOptionID), string(snapshot),
		s.CreatedAt.UTC().Format(time.RFC3339), s.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return apperr.NewDatabase("insert planning session", err)
	}
	return nil
}

// UpdateSession persists status/selected_option_id/updated_at for an
// existing session.
func (r *PlanningRepository) UpdateSession(ctx context.Context, s *domain.PlanningSession) error {
	s.UpdatedAt = time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		UPDATE planning_sessions SET status=?, selected_option_id=?, updated_at=? WHERE id=?
	`, string(s.Status), nullableString(s.SelectedOptionID), s.UpdatedAt.Format(time.RFC3339), s.ID)
	if err != nil {
		return apperr.NewDatabase("update planning session", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update planning session rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("planning_session", s.ID)
	}
	return nil
}

// GetSession fetches a session's header row only (no options/blocks).
func (r *PlanningRepository) GetSession(ctx context.Context, id string) (*domain.PlanningSession, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, task_ids, constraints, generated_at, status,
		       selected_option_id, personalization_snapshot, created_at, updated_at
		FROM planning_sessions WHERE id = ?
	`, id)
	s, err := scanPlanningSession(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("planning_session", id)
	}
	if err != nil {
		return nil, apperr.NewDatabase("get planning session", err)
	}
	return s, nil
}

// ListRecentSessions returns up to limit sessions ordered newest-first.
func (r *PlanningRepository) ListRecentSessions(ctx context.Context, limit int) ([]*domain.PlanningSession, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_ids, constraints, generated_at, status,
		       selected_option_id, personalization_snapshot, created_at, updated_at
		FROM planning_sessions ORDER BY generated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, apperr.NewDatabase("list planning sessions", err)
	}
	defer rows.Close()

	var out []*domain.PlanningSession
	for rows.Next() {
		s, err := scanPlanningSession(rows)
		if err != nil {
			return nil, apperr.NewDatabase("scan planning session", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanPlanningSession(s scanner) (*domain.PlanningSession, error) {
	var (
		id, taskIDsJSON, generatedAt, status, createdAt, updatedAt string
		constraintsJSON, snapshotJSON                              sql.NullString
		selectedOptionID                                           sql.NullString
	)
	if err := s.Scan(&id, &taskIDsJSON, &constraintsJSON, &generatedAt, &status,
		&selectedOptionID, &snapshotJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	session := &domain.PlanningSession{
		ID:     id,
		Status: domain.SessionStatus(status),
	}
	_ = json.Unmarshal([]byte(taskIDsJSON), &session.TaskIDs)
	if constraintsJSON.Valid {
		_ = json.Unmarshal([]byte(constraintsJSON.String), &session.Constraints)
	}
	if snapshotJSON.Valid {
		_ = json.Unmarshal([]byte(snapshotJSON.String), &session.PersonalizationSnapshot)
	}
	if selectedOptionID.Valid {
		session.SelectedOptionID = selectedOptionID.String
	}
	session.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
	session.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	session.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return session, nil
}

// CreateOption inserts one ranked option belonging to a session.
func (r *PlanningRepository) CreateOption(ctx context.Context, o *domain.PlanningOption) error {
	rationale, err := json.Marshal(o.Rationale)
	if err != nil {
		return apperr.NewOther("encode rationale", err)
	}
	conflicts, err := json.Marshal(o.Conflicts)
	if err != nil {
		return apperr.NewOther("encode conflicts", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO planning_options (
			id, session_id, rank, score, summary, rationale, risk_notes, is_fallback, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)
	`, o.ID, o.SessionID, o.Rank, o.Score, o.Summary, string(rationale), riskNotesOrConflicts(o.RiskNotes, conflicts),
		boolToInt(o.IsFallback), o.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return apperr.NewDatabase("insert planning option", err)
	}
	return nil
}

// riskNotesOrConflicts packs the option's free-text risk notes and its
// structured conflict list into the single risk_notes column as a small
// JSON envelope, since the schema keeps one text column for both.
func riskNotesOrConflicts(notes string, conflictsJSON []byte) string {
	envelope := struct {
		Notes     string          `json:"notes,omitempty"`
		Conflicts json.RawMessage `json:"conflicts,omitempty"`
	}{Notes: notes, Conflicts: conflictsJSON}
	encoded, _ := json.Marshal(envelope)
	return string(encoded)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// UpdateOption persists an option's risk notes and conflict list after
// conflict detection has been re-run against overridden blocks.
func (r *PlanningRepository) UpdateOption(ctx context.Context, o *domain.PlanningOption) error {
	conflicts, err := json.Marshal(o.Conflicts)
	if err != nil {
		return apperr.NewOther("encode conflicts", err)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE planning_options SET risk_notes = ? WHERE id = ?
	`, riskNotesOrConflicts(o.RiskNotes, conflicts), o.ID)
	if err != nil {
		return apperr.NewDatabase("update planning option", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update planning option rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("planning_option", o.ID)
	}
	return nil
}

// GetOption fetches a single option by id.
func (r *PlanningRepository) GetOption(ctx context.Context, id string) (*domain.PlanningOption, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, rank, score, summary, rationale, risk_notes, is_fallback, created_at
		FROM planning_options WHERE id = ?
	`, id)

	var (
		optID, sessionID, summary, createdAt string
		rank                                  int
		score                                 sql.NullFloat64
		rationaleJSON, riskNotesJSON          sql.NullString
		isFallback                            int
	)
	err := row.Scan(&optID, &sessionID, &rank, &score, &summary, &rationaleJSON, &riskNotesJSON, &isFallback, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NewNotFound("planning_option", id)
	}
	if err != nil {
		return nil, apperr.NewDatabase("get planning option", err)
	}

	opt := &domain.PlanningOption{ID: optID, SessionID: sessionID, Rank: rank, Summary: summary, IsFallback: isFallback != 0}
	if score.Valid {
		opt.Score = score.Float64
	}
	if rationaleJSON.Valid {
		_ = json.Unmarshal([]byte(rationaleJSON.String), &opt.Rationale)
	}
	if riskNotesJSON.Valid {
		var envelope struct {
			Notes     string            `json:"notes"`
			Conflicts []domain.Conflict `json:"conflicts"`
		}
		if err := json.Unmarshal([]byte(riskNotesJSON.String), &envelope); err == nil {
			opt.RiskNotes = envelope.Notes
			opt.Conflicts = envelope.Conflicts
		}
	}
	opt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return opt, nil
}

// ListOptionsForSession returns a session's options ordered by rank,
// each with its conflicts decoded but without time blocks attached.
func (r *PlanningRepository) ListOptionsForSession(ctx context.Context, sessionID string) ([]*domain.PlanningOption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, rank, score, summary, rationale, risk_notes, is_fallback, created_at
		FROM planning_options WHERE session_id = ? ORDER BY rank ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.NewDatabase("list planning options", err)
	}
	defer rows.Close()

	var out []*domain.PlanningOption
	for rows.Next() {
		var (
			id, optSessionID, summary, createdAt string
			rank                                  int
			score                                 sql.NullFloat64
			rationaleJSON, riskNotesJSON          sql.NullString
			isFallback                            int
		)
		if err := rows.Scan(&id, &optSessionID, &rank, &score, &summary, &rationaleJSON, &riskNotesJSON, &isFallback, &createdAt); err != nil {
			return nil, apperr.NewDatabase("scan planning option", err)
		}
		opt := &domain.PlanningOption{
			ID: id, SessionID: optSessionID, Rank: rank, Summary: summary,
			IsFallback: isFallback != 0,
		}
		if score.Valid {
			opt.Score = score.Float64
		}
		if rationaleJSON.Valid {
			_ = json.Unmarshal([]byte(rationaleJSON.String), &opt.Rationale)
		}
		if riskNotesJSON.Valid {
			var envelope struct {
				Notes     string             `json:"notes"`
				Conflicts []domain.Conflict  `json:"conflicts"`
			}
			if err := json.Unmarshal([]byte(riskNotesJSON.String), &envelope); err == nil {
				opt.RiskNotes = envelope.Notes
				opt.Conflicts = envelope.Conflicts
			}
		}
		opt.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, opt)
	}
	return out, rows.Err()
}

// CreateTimeBlock inserts one scheduled block for an option.
func (r *PlanningRepository) CreateTimeBlock(ctx context.Context, b *domain.TimeBlock) error {
	flags, err := json.Marshal(b.ConflictFlags)
	if err != nil {
		return apperr.NewOther("encode conflict flags", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO planning_time_blocks (
			id, option_id, task_id, start_at, end_at, flexibility, confidence,
			conflict_flags, applied_at, actual_start_at, actual_end_at, status
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, b.ID, b.OptionID, b.TaskID, b.StartAt.UTC().Format(time.RFC3339), b.EndAt.UTC().Format(time.RFC3339),
		string(b.Flexibility), b.Confidence, string(flags),
		nullableTime(b.AppliedAt), nullableTime(b.ActualStartAt), nullableTime(b.ActualEndAt), string(b.Status))
	if err != nil {
		return apperr.NewDatabase("insert time block", err)
	}
	return nil
}

// UpdateTimeBlock persists an applied/overridden block's mutable fields.
func (r *PlanningRepository) UpdateTimeBlock(ctx context.Context, b *domain.TimeBlock) error {
	flags, err := json.Marshal(b.ConflictFlags)
	if err != nil {
		return apperr.NewOther("encode conflict flags", err)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE planning_time_blocks SET
			start_at=?, end_at=?, flexibility=?, confidence=?, conflict_flags=?,
			applied_at=?, actual_start_at=?, actual_end_at=?, status=?
		WHERE id=?
	`, b.StartAt.UTC().Format(time.RFC3339), b.EndAt.UTC().Format(time.RFC3339),
		string(b.Flexibility), b.Confidence, string(flags),
		nullableTime(b.AppliedAt), nullableTime(b.ActualStartAt), nullableTime(b.ActualEndAt), string(b.Status), b.ID)
	if err != nil {
		return apperr.NewDatabase("update time block", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperr.NewDatabase("update time block rows affected", err)
	}
	if affected == 0 {
		return apperr.NewNotFound("time_block", b.ID)
	}
	return nil
}

// ListTimeBlocksForOption returns an option's blocks ordered by start time.
func (r *PlanningRepository) ListTimeBlocksForOption(ctx context.Context, optionID string) ([]domain.TimeBlock, error) {
	return r.listTimeBlocks(ctx, `WHERE option_id = ? ORDER BY start_at ASC`, optionID)
}

// ListTimeBlocksForTask returns every block ever scheduled for a task,
// across sessions, ordered by start time.
func (r *PlanningRepository) ListTimeBlocksForTask(ctx context.Context, taskID string) ([]domain.TimeBlock, error) {
	return r.listTimeBlocks(ctx, `WHERE task_id = ? ORDER BY start_at ASC`, taskID)
}

func (r *PlanningRepository) listTimeBlocks(ctx context.Context, where string, arg string) ([]domain.TimeBlock, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, option_id, task_id, start_at, end_at, flexibility, confidence,
		       conflict_flags, applied_at, actual_start_at, actual_end_at, status
		FROM planning_time_blocks `+where, arg)
	if err != nil {
		return nil, apperr.NewDatabase("list time blocks", err)
	}
	defer rows.Close()

	var out []domain.TimeBlock
	for rows.Next() {
		var (
			id, optionID, taskID, startAt, endAt, status string
			flexibility                                   sql.NullString
			confidence                                     sql.NullFloat64
			flagsJSON                                       sql.NullString
			appliedAt, actualStartAt, actualEndAt           sql.NullString
		)
		if err := rows.Scan(&id, &optionID, &taskID, &startAt, &endAt, &flexibility, &confidence,
			&flagsJSON, &appliedAt, &actualStartAt, &actualEndAt, &status); err != nil {
			return nil, apperr.NewDatabase("scan time block", err)
		}
		block := domain.TimeBlock{
			ID: id, OptionID: optionID, TaskID: taskID,
			Flexibility: domain.Flexibility(flexibility.String),
			Status:      domain.BlockStatus(status),
		}
		if confidence.Valid {
			block.Confidence = confidence.Float64
		}
		block.StartAt, _ = time.Parse(time.RFC3339, startAt)
		block.EndAt, _ = time.Parse(time.RFC3339, endAt)
		if flagsJSON.Valid {
			_ = json.Unmarshal([]byte(flagsJSON.String), &block.ConflictFlags)
		}
		block.AppliedAt = parseNullableTime(appliedAt)
		block.ActualStartAt = parseNullableTime(actualStartAt)
		block.ActualEndAt = parseNullableTime(actualEndAt)
		out = append(out, block)
	}
	return out, rows.Err()
}

// GetSchedulingPreferences returns the singleton preferences row, or a
// default with BufferMinutes 15 and PreferCompact true when none has been
// stored yet.
func (r *PlanningRepository) GetSchedulingPreferences(ctx context.Context) (*domain.SchedulingPreferences, error) {
	var data, updatedAt string
	err := r.db.QueryRowContext(ctx, `SELECT data, updated_at FROM schedule_preferences WHERE id = 'default'`).
		Scan(&data, &updatedAt)
	if err == sql.ErrNoRows {
		return &domain.SchedulingPreferences{ID: "default", BufferMinutes: 15, PreferCompact: true}, nil
	}
	if err != nil {
		return nil, apperr.NewDatabase("get scheduling preferences", err)
	}
	prefs := &domain.SchedulingPreferences{ID: "default"}
	_ = json.Unmarshal([]byte(data), prefs)
	prefs.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return prefs, nil
}

// UpsertSchedulingPreferences replaces the singleton preferences row.
func (r *PlanningRepository) UpsertSchedulingPreferences(ctx context.Context, prefs *domain.SchedulingPreferences) error {
	prefs.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(prefs)
	if err != nil {
		return apperr.NewOther("encode scheduling preferences", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedule_preferences (id, data, updated_at) VALUES ('default', ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, string(data), prefs.UpdatedAt.Format(time.RFC3339))
	if err != nil {
		return apperr.NewDatabase("upsert scheduling preferences", err)
	}
	return nil
}
