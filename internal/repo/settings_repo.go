package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/store"
)

// SettingsRepository is a narrow key/value boundary over app_settings.
// The settings service uses it for the vault migration flag and for the
// legacy obfuscated API key, which it reads once and then deletes.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository builds a SettingsRepository over st's connection pool.
func NewSettingsRepository(st *store.Store) *SettingsRepository {
	return &SettingsRepository{db: st.DB()}
}

// Get returns the value stored under key, and whether it was present.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.NewDatabase("get app setting", err)
	}
	return value, true, nil
}

// Set upserts key=value.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return apperr.NewDatabase("set app setting", err)
	}
	return nil
}

// Delete removes key, if present.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM app_settings WHERE key = ?`, key)
	if err != nil {
		return apperr.NewDatabase("delete app setting", err)
	}
	return nil
}

// AISettingsRepository is the analogous key/value boundary over
// ai_settings. The settings service stores the vault-encrypted DeepSeek
// API key there.
type AISettingsRepository struct {
	db *sql.DB
}

// NewAISettingsRepository builds an AISettingsRepository over st's connection pool.
func NewAISettingsRepository(st *store.Store) *AISettingsRepository {
	return &AISettingsRepository{db: st.DB()}
}

// Get returns the value stored under key, and whether it was present.
func (r *AISettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM ai_settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.NewDatabase("get ai setting", err)
	}
	return value, true, nil
}

// Set upserts key=value.
func (r *AISettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ai_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return apperr.NewDatabase("set ai setting", err)
	}
	return nil
}

// Delete removes key, if present.
func (r *AISettingsRepository) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ai_settings WHERE key = ?`, key)
	if err != nil {
		return apperr.NewDatabase("delete ai setting", err)
	}
	return nil
}
