package store

import (
	"database/sql"
	"fmt"
)

// userVersion is the latest schema version this build knows how to reach.
const userVersion = 9

// migrate advances the schema from whatever version is persisted in
// PRAGMA user_version up to userVersion, recording one migration_history
// row per applied version along with its rollback script (empty when
// the migration is additive-only and has nothing to undo). Each step
// is idempotent over "already at >= N+1": ensure_column-style
// introspection means reruns of a step that already applied are no-ops.
func migrate(db *sql.DB) error {
	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	steps := []struct {
		version     int
		description string
		apply       func(*sql.DB) error
		rollback    string
	}{
		{1, "Add AI-enhanced task fields and parse cache", migrateToV1, ""},
		{2, "Add planning sessions and time blocks", migrateToV2, ""},
		{3, "Add analytics snapshots and app settings", migrateToV3, ""},
		{4, "Add productivity scores and recommendation system", migrateToV4, ""},
		{5, "Add AI settings and enhanced cache", migrateToV5, ""},
		{6, "Add vault legacy migration flag", migrateToV6, ""},
		{7, "Add conversations and memory config", migrateToV7,
			`DROP TABLE IF EXISTS conversations; DROP TABLE IF EXISTS memory_config;`},
		{8, "Add recurring tasks and task dependencies", migrateToV8,
			`DROP VIEW IF EXISTS ready_tasks;
			 DROP TABLE IF EXISTS task_dependencies;
			 DROP TABLE IF EXISTS task_instances;
			 DROP TABLE IF EXISTS recurring_task_templates;`},
		{9, "Add goals and goal-task associations", migrateToV9,
			`DROP TABLE IF EXISTS goal_task_associations; DROP TABLE IF EXISTS goals;`},
	}

	for _, step := range steps {
		if current >= step.version {
			continue
		}
		if err := step.apply(db); err != nil {
			return fmt.Errorf("migration v%d (%s): %w", step.version, step.description, err)
		}
		if err := setVersion(db, step.version); err != nil {
			return fmt.Errorf("migration v%d: persist version: %w", step.version, err)
		}
		if err := recordMigration(db, step.version, step.description, step.rollback); err != nil {
			return fmt.Errorf("migration v%d: record history: %w", step.version, err)
		}
		current = step.version
	}

	if current != userVersion {
		if err := setVersion(db, userVersion); err != nil {
			return fmt.Errorf("persist final schema version: %w", err)
		}
	}
	return nil
}

func currentVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

func setVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version))
	return err
}

func recordMigration(db *sql.DB, version int, description, rollbackSQL string) error {
	var rollback any
	if rollbackSQL != "" {
		rollback = rollbackSQL
	}
	_, err := db.Exec(
		`INSERT OR REPLACE INTO migration_history (version, description, applied_at, rollback_sql) VALUES (?, ?, ?, ?)`,
		version, description, NowRFC3339(), rollback,
	)
	return err
}

// MigrationInfo describes one applied schema migration.
type MigrationInfo struct {
	Version     int
	Description string
	AppliedAt   string
}

// MigrationHistory returns every applied migration in version order.
func (s *Store) MigrationHistory() ([]MigrationInfo, error) {
	rows, err := s.db.Query(`SELECT version, description, applied_at FROM migration_history ORDER BY version`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MigrationInfo
	for rows.Next() {
		var info MigrationInfo
		if err := rows.Scan(&info.Version, &info.Description, &info.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// RollbackToVersion replays recorded rollback scripts for every version
// greater than targetVersion, in descending order, then persists
// targetVersion and prunes the superseded history rows. A version with
// no recorded rollback script is skipped (its effects remain).
func (s *Store) RollbackToVersion(targetVersion int) error {
	current, err := currentVersion(s.db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if targetVersion >= current {
		return nil
	}

	rows, err := s.db.Query(
		`SELECT version, rollback_sql FROM migration_history WHERE version > ? ORDER BY version DESC`,
		targetVersion,
	)
	if err != nil {
		return fmt.Errorf("list rollback scripts: %w", err)
	}

	type rollbackEntry struct {
		version int
		sql     sql.NullString
	}
	var entries []rollbackEntry
	for rows.Next() {
		var e rollbackEntry
		if err := rows.Scan(&e.version, &e.sql); err != nil {
			rows.Close()
			return fmt.Errorf("scan rollback script: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range entries {
		if !e.sql.Valid || e.sql.String == "" {
			continue
		}
		if _, err := s.db.Exec(e.sql.String); err != nil {
			return fmt.Errorf("rollback v%d: %w", e.version, err)
		}
	}

	if err := setVersion(s.db, targetVersion); err != nil {
		return fmt.Errorf("persist rolled-back version: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM migration_history WHERE version > ?`, targetVersion); err != nil {
		return fmt.Errorf("prune migration history: %w", err)
	}
	return nil
}

// ensureColumn adds column to table (with the given DDL type/default
// fragment) only if it is absent, mirroring an introspection-first
// ALTER TABLE so reruns are no-ops.
func ensureColumn(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return fmt.Errorf("check column %s.%s: %w", table, column, err)
	}
	if exists {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition))
	return err
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func migrateToV1(db *sql.DB) error {
	columns := []struct{ name, definition string }{
		{"planned_start_at", "TEXT"},
		{"estimated_hours", "REAL"},
		{"task_type", "TEXT"},
		{"ai_summary", "TEXT"},
		{"ai_complexity_score", "REAL"},
		{"ai_next_action", "TEXT"},
		{"ai_confidence", "REAL"},
		{"ai_suggested_start_at", "TEXT"},
		{"ai_focus_mode", "TEXT"},
		{"ai_efficiency_prediction", "TEXT"},
		{"ai_cot_steps", "TEXT"},
		{"ai_cot_summary", "TEXT"},
		{"ai_metadata", "TEXT"},
		{"ai_source", "TEXT"},
		{"ai_generated_at", "TEXT"},
	}
	for _, c := range columns {
		if err := ensureColumn(db, "tasks", c.name, c.definition); err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_parse_cache (
			semantic_hash TEXT PRIMARY KEY,
			raw_input TEXT NOT NULL,
			output_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_ai_parse_cache_expires_at ON ai_parse_cache(expires_at);
	`)
	return err
}

func migrateToV2(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS planning_sessions (
			id TEXT PRIMARY KEY,
			task_ids TEXT NOT NULL,
			constraints TEXT,
			generated_at TEXT NOT NULL,
			status TEXT NOT NULL,
			selected_option_id TEXT,
			personalization_snapshot TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_planning_sessions_status ON planning_sessions(status);
		CREATE INDEX IF NOT EXISTS idx_planning_sessions_generated_at ON planning_sessions(generated_at);

		CREATE TABLE IF NOT EXISTS planning_options (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			rank INTEGER NOT NULL,
			score REAL,
			summary TEXT,
			rationale TEXT,
			risk_notes TEXT,
			is_fallback INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES planning_sessions(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_planning_options_session_id ON planning_options(session_id);
		CREATE INDEX IF NOT EXISTS idx_planning_options_rank ON planning_options(rank);

		CREATE TABLE IF NOT EXISTS planning_time_blocks (
			id TEXT PRIMARY KEY,
			option_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			start_at TEXT NOT NULL,
			end_at TEXT NOT NULL,
			flexibility TEXT,
			confidence REAL,
			conflict_flags TEXT,
			applied_at TEXT,
			actual_start_at TEXT,
			actual_end_at TEXT,
			status TEXT NOT NULL DEFAULT 'draft',
			FOREIGN KEY (option_id) REFERENCES planning_options(id) ON DELETE CASCADE,
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_planning_time_blocks_option_id ON planning_time_blocks(option_id);
		CREATE INDEX IF NOT EXISTS idx_planning_time_blocks_task_id ON planning_time_blocks(task_id);
		CREATE INDEX IF NOT EXISTS idx_planning_time_blocks_status ON planning_time_blocks(status);

		CREATE TABLE IF NOT EXISTS schedule_preferences (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(
		`INSERT OR IGNORE INTO schedule_preferences (id, data, updated_at) VALUES (?, ?, ?)`,
		"default", "{}", NowRFC3339(),
	)
	return err
}

func migrateToV3(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS analytics_snapshots (
			snapshot_date TEXT PRIMARY KEY,
			total_tasks_completed INTEGER NOT NULL,
			completion_rate REAL NOT NULL,
			overdue_tasks INTEGER NOT NULL,
			total_focus_minutes INTEGER NOT NULL,
			productivity_score REAL NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_analytics_snapshots_created_at ON analytics_snapshots(created_at);

		CREATE TABLE IF NOT EXISTS app_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_app_settings_updated_at ON app_settings(updated_at);
	`)
	return err
}

func migrateToV4(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS productivity_scores (
			snapshot_date TEXT PRIMARY KEY,
			composite_score REAL NOT NULL,
			dimension_scores TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS recommendation_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generated_at TEXT NOT NULL,
			context_hash TEXT NOT NULL,
			plans TEXT NOT NULL,
			source TEXT NOT NULL CHECK(source IN ('deepseek', 'cached', 'heuristic')),
			expires_at TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_recommendation_sessions_context_hash ON recommendation_sessions(context_hash);

		CREATE TABLE IF NOT EXISTS recommendation_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			user_action TEXT NOT NULL CHECK(user_action IN ('accepted', 'rejected', 'adjusted')),
			responded_at TEXT NOT NULL,
			FOREIGN KEY (session_id) REFERENCES recommendation_sessions(id) ON DELETE CASCADE
		);

		CREATE TABLE IF NOT EXISTS workload_forecasts (
			horizon TEXT NOT NULL CHECK(horizon IN ('7d', '14d', '30d')),
			generated_at TEXT NOT NULL,
			risk_level TEXT NOT NULL CHECK(risk_level IN ('ok', 'warning', 'critical')),
			total_hours REAL NOT NULL,
			PRIMARY KEY (horizon, generated_at)
		);

		CREATE TABLE IF NOT EXISTS wellness_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			window_start TEXT NOT NULL,
			trigger_reason TEXT NOT NULL CHECK(trigger_reason IN ('focus_streak', 'work_streak')),
			recommended_break_minutes INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ai_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			surface TEXT NOT NULL CHECK(surface IN ('score', 'recommendation', 'forecast')),
			sentiment TEXT NOT NULL CHECK(sentiment IN ('up', 'down')),
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS community_exports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generated_at TEXT NOT NULL,
			payload_path TEXT NOT NULL
		);
	`)
	return err
}

func migrateToV5(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ai_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS ai_cache (
			cache_key TEXT PRIMARY KEY,
			operation TEXT NOT NULL CHECK(operation IN ('parse','recommend','schedule')),
			semantic_hash TEXT NOT NULL,
			response_json TEXT NOT NULL,
			created_at TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			hit_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_ai_cache_semantic_hash ON ai_cache(semantic_hash);
		CREATE INDEX IF NOT EXISTS idx_ai_cache_expires_at ON ai_cache(expires_at);
	`)
	return err
}

func migrateToV6(db *sql.DB) error {
	_, err := db.Exec(
		`INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO NOTHING`,
		"vault_legacy_migrated", "false", NowRFC3339(),
	)
	return err
}

func migrateToV7(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			last_message_at TEXT NOT NULL,
			message_count INTEGER DEFAULT 0,
			archived BOOLEAN DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_last_message_at ON conversations(last_message_at);

		CREATE TABLE IF NOT EXISTS memory_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

func migrateToV8(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS recurring_task_templates (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			recurrence_rule TEXT NOT NULL,
			priority TEXT DEFAULT 'medium',
			tags TEXT,
			estimated_minutes INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			is_active BOOLEAN DEFAULT TRUE
		);

		CREATE TABLE IF NOT EXISTS task_instances (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL,
			instance_date TEXT NOT NULL,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT DEFAULT 'todo',
			priority TEXT DEFAULT 'medium',
			due_at TEXT,
			completed_at TEXT,
			is_exception BOOLEAN DEFAULT FALSE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			FOREIGN KEY (template_id) REFERENCES recurring_task_templates(id) ON DELETE CASCADE,
			UNIQUE(template_id, instance_date)
		);

		CREATE TABLE IF NOT EXISTS task_dependencies (
			id TEXT PRIMARY KEY,
			predecessor_id TEXT NOT NULL,
			successor_id TEXT NOT NULL,
			dependency_type TEXT DEFAULT 'finish_to_start',
			created_at TEXT NOT NULL,
			FOREIGN KEY (predecessor_id) REFERENCES tasks(id) ON DELETE CASCADE,
			FOREIGN KEY (successor_id) REFERENCES tasks(id) ON DELETE CASCADE,
			UNIQUE(predecessor_id, successor_id)
		);

		CREATE INDEX IF NOT EXISTS idx_recurring_task_templates_is_active ON recurring_task_templates(is_active);
		CREATE INDEX IF NOT EXISTS idx_task_instances_template_date ON task_instances(template_id, instance_date);
		CREATE INDEX IF NOT EXISTS idx_task_instances_status ON task_instances(status);
		CREATE INDEX IF NOT EXISTS idx_task_dependencies_predecessor ON task_dependencies(predecessor_id);
		CREATE INDEX IF NOT EXISTS idx_task_dependencies_successor ON task_dependencies(successor_id);

		CREATE VIEW IF NOT EXISTS ready_tasks AS
		SELECT t.id, t.title, t.status, t.priority, t.due_at
		FROM tasks t
		WHERE t.status != 'done'
		AND NOT EXISTS (
			SELECT 1 FROM task_dependencies td
			JOIN tasks pt ON td.predecessor_id = pt.id
			WHERE td.successor_id = t.id
			AND pt.status != 'done'
		);
	`)
	return err
}

func migrateToV9(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS goals (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			status TEXT DEFAULT 'not_started',
			target_date TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS goal_task_associations (
			id TEXT PRIMARY KEY,
			goal_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (goal_id) REFERENCES goals(id) ON DELETE CASCADE,
			FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
			UNIQUE(goal_id, task_id)
		);

		CREATE INDEX IF NOT EXISTS idx_goals_status ON goals(status);
		CREATE INDEX IF NOT EXISTS idx_goal_task_associations_goal_id ON goal_task_associations(goal_id);
		CREATE INDEX IF NOT EXISTS idx_goal_task_associations_task_id ON goal_task_associations(task_id);
	`)
	return err
}
