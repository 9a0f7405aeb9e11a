package tools

import (
	"context"
	"encoding/json"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
)

// RegisterPreferencesTools wires get_scheduling_preferences and
// update_scheduling_preferences against planning's singleton
// SchedulingPreferences row.
func RegisterPreferencesTools(reg *Registry, planning *repo.PlanningRepository) error {
	if err := reg.Register("get_scheduling_preferences",
		"Get the user's current scheduling preferences (focus window, buffer time between blocks, compact scheduling)",
		json.RawMessage(`{"type":"object","properties":{}}`),
		getSchedulingPreferencesHandler(planning)); err != nil {
		return err
	}

	if err := reg.Register("update_scheduling_preferences",
		"Update the user's scheduling preferences",
		json.RawMessage(`{"type":"object","properties":{
			"focus_start_minute":{"type":"integer","description":"Minute of day (0-1440) the user's focus window starts"},
			"focus_end_minute":{"type":"integer","description":"Minute of day (0-1440) the user's focus window ends"},
			"buffer_minutes":{"type":"integer","description":"Minutes of buffer to leave between scheduled blocks"},
			"prefer_compact_schedule":{"type":"boolean","description":"Whether to prefer fewer, denser blocks over spread-out ones"}
		}}`),
		updateSchedulingPreferencesHandler(planning)); err != nil {
		return err
	}

	return nil
}

func getSchedulingPreferencesHandler(planning *repo.PlanningRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		prefs, err := planning.GetSchedulingPreferences(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success":     true,
			"message":     "Current scheduling preferences retrieved.",
			"preferences": formatSchedulingPreferencesForAI(prefs),
		}, nil
	}
}

func updateSchedulingPreferencesHandler(planning *repo.PlanningRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			FocusStartMinute     *int  `json:"focus_start_minute"`
			FocusEndMinute       *int  `json:"focus_end_minute"`
			BufferMinutes        *int  `json:"buffer_minutes"`
			PreferCompactSchedule *bool `json:"prefer_compact_schedule"`
		}
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
			}
		}

		prefs, err := planning.GetSchedulingPreferences(ctx)
		if err != nil {
			return nil, err
		}

		if params.FocusStartMinute != nil {
			if *params.FocusStartMinute < 0 || *params.FocusStartMinute > 1440 {
				return nil, apperr.NewValidation("focus_start_minute must be between 0 and 1440")
			}
			prefs.FocusStartMinute = params.FocusStartMinute
		}
		if params.FocusEndMinute != nil {
			if *params.FocusEndMinute < 0 || *params.FocusEndMinute > 1440 {
				return nil, apperr.NewValidation("focus_end_minute must be between 0 and 1440")
			}
			prefs.FocusEndMinute = params.FocusEndMinute
		}
		if prefs.FocusStartMinute != nil && prefs.FocusEndMinute != nil && *prefs.FocusStartMinute >= *prefs.FocusEndMinute {
			return nil, apperr.NewValidation("focus_start_minute must be before focus_end_minute")
		}
		if params.BufferMinutes != nil {
			if *params.BufferMinutes < 0 {
				return nil, apperr.NewValidation("buffer_minutes must not be negative")
			}
			prefs.BufferMinutes = *params.BufferMinutes
		}
		if params.PreferCompactSchedule != nil {
			prefs.PreferCompact = *params.PreferCompactSchedule
		}

		if err := planning.UpsertSchedulingPreferences(ctx, prefs); err != nil {
			return nil, err
		}

		return map[string]any{
			"success":     true,
			"message":     "Scheduling preferences updated.",
			"preferences": formatSchedulingPreferencesForAI(prefs),
		}, nil
	}
}

func formatSchedulingPreferencesForAI(p *domain.SchedulingPreferences) map[string]any {
	return map[string]any{
		"focus_start_minute":      p.FocusStartMinute,
		"focus_end_minute":        p.FocusEndMinute,
		"buffer_minutes":          p.BufferMinutes,
		"prefer_compact_schedule": p.PreferCompact,
		"updated_at":              p.UpdatedAt,
	}
}
