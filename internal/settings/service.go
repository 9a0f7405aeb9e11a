// Package settings owns the singleton AppSettings record: workday
// bounds, theme, AI feedback opt-out, and the encrypted DeepSeek API
// key. It is the only place in cognicore that ever sees the API key's
// plaintext; every other caller sees the masked view.
package settings

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/vault"
)

const (
	keyAPIKey          = "deepseek_api_key"
	keyWorkdayStart    = "workday_start_minute"
	keyWorkdayEnd      = "workday_end_minute"
	keyTheme           = "theme"
	keyAIFeedbackOpt   = "ai_feedback_opt_out"

	defaultWorkdayStartMinute = 9 * 60
	defaultWorkdayEndMinute   = 18 * 60
)

// UpdateInput carries the fields a settings update may touch. A nil
// field means "leave unchanged"; ClearAPIKey, when true, removes the
// stored key regardless of APIKey.
type UpdateInput struct {
	APIKey             *string
	ClearAPIKey        bool
	WorkdayStartMinute *int
	WorkdayEndMinute   *int
	Theme              *string
	AIFeedbackOptOut   *bool
}

// Service owns AppSettings's read/update/clear lifecycle, including API
// key masking and vault-backed encryption.
type Service struct {
	settings *repo.SettingsRepository
	ai       *repo.AISettingsRepository
	vault    *vault.Vault
	logger   *slog.Logger

	mu    sync.RWMutex
	cache *domain.AppSettings
}

// NewService builds a Service over settings, ai and v. logger may be nil,
// in which case slog.Default() is used.
func NewService(settingsRepo *repo.SettingsRepository, aiRepo *repo.AISettingsRepository, v *vault.Vault, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{settings: settingsRepo, ai: aiRepo, vault: v, logger: logger}
}

// Get returns the current settings, loading and caching them from the
// database on first call.
func (s *Service) Get(ctx context.Context) (*domain.AppSettings, error) {
	s.mu.RLock()
	if s.cache != nil {
		cached := *s.cache
		s.mu.RUnlock()
		return &cached, nil
	}
	s.mu.RUnlock()

	loaded, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache = loaded
	s.mu.Unlock()

	cached := *loaded
	return &cached, nil
}

// Update applies input to the current settings and persists the result.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*domain.AppSettings, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	workdayStart := current.WorkdayStartMinute
	if input.WorkdayStartMinute != nil {
		if err := ensureValidMinute(*input.WorkdayStartMinute); err != nil {
			return nil, err
		}
		workdayStart = *input.WorkdayStartMinute
	}
	workdayEnd := current.WorkdayEndMinute
	if input.WorkdayEndMinute != nil {
		if err := ensureValidMinute(*input.WorkdayEndMinute); err != nil {
			return nil, err
		}
		workdayEnd = *input.WorkdayEndMinute
	}
	if workdayStart >= workdayEnd {
		return nil, apperr.NewValidation("invalid workday range: start must be before end")
	}

	theme := current.Theme
	if input.Theme != nil {
		normalized := domain.Theme(strings.ToLower(strings.TrimSpace(*input.Theme)))
		if normalized == "" {
			return nil, apperr.NewValidation("theme must not be empty")
		}
		if !domain.ValidTheme(normalized) {
			return nil, apperr.NewValidation("theme must be one of system, light, dark")
		}
		theme = normalized
	}

	aiFeedbackOptOut := current.AIFeedbackOptOut
	if input.AIFeedbackOptOut != nil {
		optOut := *input.AIFeedbackOptOut
		aiFeedbackOptOut = &optOut
	}

	if err := s.settings.Set(ctx, keyWorkdayStart, strconv.Itoa(workdayStart)); err != nil {
		return nil, err
	}
	if err := s.settings.Set(ctx, keyWorkdayEnd, strconv.Itoa(workdayEnd)); err != nil {
		return nil, err
	}
	if err := s.settings.Set(ctx, keyTheme, string(theme)); err != nil {
		return nil, err
	}
	if aiFeedbackOptOut != nil {
		if err := s.settings.Set(ctx, keyAIFeedbackOpt, strconv.FormatBool(*aiFeedbackOptOut)); err != nil {
			return nil, err
		}
	}

	hasAPIKey := current.HasAPIKey
	apiKeyMasked := current.APIKeyMasked
	switch {
	case input.ClearAPIKey:
		if err := s.ai.Delete(ctx, keyAPIKey); err != nil {
			return nil, err
		}
		if err := s.settings.Delete(ctx, keyAPIKey); err != nil {
			return nil, err
		}
		hasAPIKey = false
		apiKeyMasked = ""
	case input.APIKey != nil:
		trimmed := strings.TrimSpace(*input.APIKey)
		if trimmed == "" {
			return nil, apperr.NewValidation("API key must not be empty")
		}
		ciphertext, err := s.vault.Encrypt([]byte(trimmed))
		if err != nil {
			return nil, err
		}
		if err := s.ai.Set(ctx, keyAPIKey, ciphertext); err != nil {
			return nil, err
		}
		if err := s.settings.Delete(ctx, keyAPIKey); err != nil {
			return nil, err
		}
		hasAPIKey = true
		apiKeyMasked = maskAPIKey(trimmed)
	}

	updated := &domain.AppSettings{
		APIKeyMasked:       apiKeyMasked,
		HasAPIKey:          hasAPIKey,
		WorkdayStartMinute: workdayStart,
		WorkdayEndMinute:   workdayEnd,
		Theme:              theme,
		AIFeedbackOptOut:   aiFeedbackOptOut,
	}

	s.mu.Lock()
	s.cache = updated
	s.mu.Unlock()

	cached := *updated
	return &cached, nil
}

// ClearSensitive removes the stored API key and its vault master secret.
// A failure to clear the master secret is logged, not returned, matching
// the rest of the settings surface's best-effort cleanup posture.
func (s *Service) ClearSensitive(ctx context.Context) error {
	if err := s.ai.Delete(ctx, keyAPIKey); err != nil {
		return err
	}
	if err := s.settings.Delete(ctx, keyAPIKey); err != nil {
		return err
	}
	if err := s.vault.ClearMasterSecret(); err != nil {
		s.logger.Warn("failed to clear vault master secret", "error", err)
	}

	s.mu.Lock()
	if s.cache != nil {
		s.cache.HasAPIKey = false
		s.cache.APIKeyMasked = ""
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) load(ctx context.Context) (*domain.AppSettings, error) {
	workdayStart := defaultWorkdayStartMinute
	if raw, ok, err := s.settings.Get(ctx, keyWorkdayStart); err != nil {
		return nil, err
	} else if ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			workdayStart = parsed
		}
	}

	workdayEnd := defaultWorkdayEndMinute
	if raw, ok, err := s.settings.Get(ctx, keyWorkdayEnd); err != nil {
		return nil, err
	} else if ok {
		if parsed, err := strconv.Atoi(raw); err == nil {
			workdayEnd = parsed
		}
	}
	if workdayStart >= workdayEnd {
		s.logger.Warn("stored workday range invalid, falling back to defaults", "start", workdayStart, "end", workdayEnd)
		workdayStart, workdayEnd = defaultWorkdayStartMinute, defaultWorkdayEndMinute
	}

	theme := domain.ThemeSystem
	if raw, ok, err := s.settings.Get(ctx, keyTheme); err != nil {
		return nil, err
	} else if ok {
		candidate := domain.Theme(strings.ToLower(raw))
		if domain.ValidTheme(candidate) {
			theme = candidate
		}
	}

	var aiFeedbackOptOut *bool
	if raw, ok, err := s.settings.Get(ctx, keyAIFeedbackOpt); err != nil {
		return nil, err
	} else if ok {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			aiFeedbackOptOut = &parsed
		}
	}

	hasAPIKey, masked, err := s.loadAPIKey(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.AppSettings{
		APIKeyMasked:       masked,
		HasAPIKey:          hasAPIKey,
		WorkdayStartMinute: workdayStart,
		WorkdayEndMinute:   workdayEnd,
		Theme:              theme,
		AIFeedbackOptOut:   aiFeedbackOptOut,
	}, nil
}

// loadAPIKey reads the stored key, masked for display, migrating a legacy
// value along the way if one is found. See resolveAPIKey.
func (s *Service) loadAPIKey(ctx context.Context) (bool, string, error) {
	plain, ok, err := s.resolveAPIKey(ctx)
	if err != nil || !ok {
		return ok, "", err
	}
	return true, maskAPIKey(plain), nil
}

// resolveAPIKey reads the vault-encrypted key, migrating a pre-vault legacy
// value (left behind in app_settings before the vault existed) on first
// encounter. A legacy value is not plaintext: pre-v1 installs stored
// base64(XOR(plaintext, secret)), where secret is derived from the database
// path (see vault.DecryptLegacyAPIKey). It must be decoded before it can be
// re-encrypted under the vault, or migration produces garbage ciphertext.
func (s *Service) resolveAPIKey(ctx context.Context) (string, bool, error) {
	if cipher, ok, err := s.ai.Get(ctx, keyAPIKey); err != nil {
		return "", false, err
	} else if ok {
		plain, err := s.vault.Decrypt(cipher)
		if err != nil {
			s.logger.Warn("failed to decrypt stored API key", "error", err)
			return "", false, nil
		}
		return string(plain), true, nil
	}

	legacy, ok, err := s.settings.Get(ctx, keyAPIKey)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}

	plain, err := s.vault.DecryptLegacyAPIKey(legacy)
	if err != nil {
		s.logger.Warn("failed to decode legacy API key", "error", err)
		return "", false, nil
	}

	ciphertext, err := s.vault.Encrypt([]byte(plain))
	if err != nil {
		s.logger.Warn("failed to migrate legacy API key into the vault", "error", err)
		return plain, true, nil
	}
	if err := s.ai.Set(ctx, keyAPIKey, ciphertext); err != nil {
		s.logger.Warn("failed to persist migrated API key", "error", err)
		return plain, true, nil
	}
	if err := s.settings.Delete(ctx, keyAPIKey); err != nil {
		s.logger.Warn("failed to remove legacy API key entry", "error", err)
	}
	return plain, true, nil
}

// DecryptedAPIKey returns the stored DeepSeek API key in plaintext, for
// internal callers (the provider adapter) that need the real credential
// rather than the masked value exposed through Get. It migrates a legacy
// pre-vault value the same way resolveAPIKey does, so a provider resolver
// running before anyone has ever called Get still finds an install's
// existing key. ok is false when no key is configured.
func (s *Service) DecryptedAPIKey(ctx context.Context) (string, bool, error) {
	return s.resolveAPIKey(ctx)
}

func maskAPIKey(value string) string {
	runes := []rune(value)
	if len(runes) <= 4 {
		return strings.Repeat("*", len(runes))
	}
	return strings.Repeat("*", len(runes)-4) + string(runes[len(runes)-4:])
}

func ensureValidMinute(value int) error {
	if value < 0 || value > 1440 {
		return apperr.NewValidation("workday minute must be between 0 and 1440")
	}
	return nil
}
