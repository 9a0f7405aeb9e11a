package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/store"
)

func openTestPlanningRepo(t *testing.T) *repo.PlanningRepository {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return repo.NewPlanningRepository(st)
}

func TestPreferencesToolsGetReturnsDefaults(t *testing.T) {
	planning := openTestPlanningRepo(t)
	reg := New()
	if err := RegisterPreferencesTools(reg, planning); err != nil {
		t.Fatalf("RegisterPreferencesTools() error = %v", err)
	}

	got := mustExecute(t, reg, "get_scheduling_preferences", `{}`)
	prefs, ok := got["preferences"].(map[string]any)
	if !ok {
		t.Fatalf("get_scheduling_preferences preferences = %v, want map", got["preferences"])
	}
	if prefs["buffer_minutes"] != 15 {
		t.Fatalf("get_scheduling_preferences buffer_minutes = %v, want 15", prefs["buffer_minutes"])
	}
	if prefs["prefer_compact_schedule"] != true {
		t.Fatalf("get_scheduling_preferences prefer_compact_schedule = %v, want true", prefs["prefer_compact_schedule"])
	}
}

func TestPreferencesToolsUpdatePersists(t *testing.T) {
	planning := openTestPlanningRepo(t)
	reg := New()
	if err := RegisterPreferencesTools(reg, planning); err != nil {
		t.Fatalf("RegisterPreferencesTools() error = %v", err)
	}

	updated := mustExecute(t, reg, "update_scheduling_preferences",
		`{"focus_start_minute":540,"focus_end_minute":720,"buffer_minutes":30,"prefer_compact_schedule":false}`)
	prefs := updated["preferences"].(map[string]any)
	if prefs["buffer_minutes"] != 30 {
		t.Fatalf("update_scheduling_preferences buffer_minutes = %v, want 30", prefs["buffer_minutes"])
	}
	if prefs["prefer_compact_schedule"] != false {
		t.Fatalf("update_scheduling_preferences prefer_compact_schedule = %v, want false", prefs["prefer_compact_schedule"])
	}

	reloaded := mustExecute(t, reg, "get_scheduling_preferences", `{}`)
	reloadedPrefs := reloaded["preferences"].(map[string]any)
	if reloadedPrefs["buffer_minutes"] != 30 {
		t.Fatalf("get_scheduling_preferences after update buffer_minutes = %v, want 30", reloadedPrefs["buffer_minutes"])
	}
}

func TestPreferencesToolsRejectsInvertedFocusWindow(t *testing.T) {
	planning := openTestPlanningRepo(t)
	reg := New()
	if err := RegisterPreferencesTools(reg, planning); err != nil {
		t.Fatalf("RegisterPreferencesTools() error = %v", err)
	}

	result := reg.Execute(context.Background(), Call{ID: "1", Name: "update_scheduling_preferences",
		Arguments: []byte(`{"focus_start_minute":720,"focus_end_minute":540}`)})
	if result.Error == "" {
		t.Fatal("update_scheduling_preferences with inverted focus window error = \"\", want validation error")
	}
}
