package scheduling

import (
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/domain"
)

func dt(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrInt(n int) *int              { return &n }

func TestGeneratePlanOptionsDetectsConflictsAndSortsByScore(t *testing.T) {
	seed := uint64(7)
	optimizer := NewOptimizer(&seed)

	tasks := []SchedulableTask{
		{
			ID:               "task-1",
			Title:            "Spec Draft",
			DueAt:            ptrTime(dt(2025, time.May, 1, 12, 0)),
			EarliestStartAt:  ptrTime(dt(2025, time.May, 1, 9, 0)),
			EstimatedMinutes: ptrInt(150),
			PriorityWeight:   0.9,
			IsParallelizable: false,
		},
		{
			ID:               "task-2",
			Title:            "API Wiring",
			DueAt:            ptrTime(dt(2025, time.May, 1, 16, 0)),
			EstimatedMinutes: ptrInt(120),
			PriorityWeight:   0.7,
			IsParallelizable: true,
		},
		{
			ID:               "task-3",
			Title:            "Review",
			DueAt:            ptrTime(dt(2025, time.May, 1, 18, 0)),
			EarliestStartAt:  ptrTime(dt(2025, time.May, 1, 13, 0)),
			EstimatedMinutes: ptrInt(120),
			PriorityWeight:   0.5,
			IsParallelizable: false,
		},
	}

	maxFocus := 210
	constraints := domain.ScheduleConstraints{
		AvailabilityWindows: []domain.AvailabilityWindow{
			{Start: dt(2025, time.May, 1, 9, 0), End: dt(2025, time.May, 1, 13, 0)},
		},
		ExistingEvents: []domain.ExternalEvent{
			{ID: "event-1", Start: dt(2025, time.May, 1, 10, 0), End: dt(2025, time.May, 1, 11, 0), Type: "meeting"},
		},
		MaxDailyFocusMinutes: &maxFocus,
	}

	preferences := domain.SchedulingPreferences{
		FocusStartMinute: ptrInt(8*60 + 30),
		FocusEndMinute:   ptrInt(12*60 + 30),
		BufferMinutes:    15,
		PreferCompact:    true,
	}

	options, err := optimizer.GeneratePlanOptions(tasks, constraints, preferences)
	if err != nil {
		t.Fatalf("GeneratePlanOptions() error = %v", err)
	}
	if len(options) < 2 {
		t.Fatalf("len(options) = %d, want at least 2", len(options))
	}
	for i := 0; i+1 < len(options); i++ {
		if options[i].Score < options[i+1].Score {
			t.Fatalf("options not sorted by descending score: %v", options)
		}
	}

	foundFallback := false
	for _, opt := range options {
		if opt.IsFallback {
			foundFallback = true
		}
	}
	if !foundFallback {
		t.Fatal("expected at least one fallback option")
	}

	var withConflicts *PlanOption
	for i := range options {
		if len(options[i].Conflicts) > 0 {
			withConflicts = &options[i]
			break
		}
	}
	if withConflicts == nil {
		t.Fatal("expected at least one option with conflicts")
	}
	first := withConflicts.Conflicts[0]
	if first.ConflictType != string(domain.ConflictCalendarOverlap) {
		t.Fatalf("first conflict type = %q, want calendar-overlap", first.ConflictType)
	}
	if first.Severity != domain.SeverityHigh {
		t.Fatalf("first conflict severity = %v, want High", first.Severity)
	}
}

func TestDetectConflictsPrioritizesHighSeverityAndDailyLimits(t *testing.T) {
	start := dt(2025, time.May, 2, 9, 0)
	block := TimeBlockCandidate{
		ID:      "block-1",
		TaskID:  "task-1",
		StartAt: start,
		EndAt:   start.Add(120 * time.Minute),
	}

	overlapping := domain.ExternalEvent{
		ID:    "event",
		Start: start.Add(30 * time.Minute),
		End:   start.Add(90 * time.Minute),
	}

	limit := 60
	conflicts := DetectConflicts([]TimeBlockCandidate{block}, []domain.ExternalEvent{overlapping}, &limit)
	if len(conflicts) != 2 {
		t.Fatalf("len(conflicts) = %d, want 2", len(conflicts))
	}
	if conflicts[0].ConflictType != string(domain.ConflictCalendarOverlap) {
		t.Fatalf("conflicts[0].ConflictType = %q, want calendar-overlap", conflicts[0].ConflictType)
	}
	if conflicts[0].Severity != domain.SeverityHigh {
		t.Fatalf("conflicts[0].Severity = %v, want High", conflicts[0].Severity)
	}

	foundOverload := false
	for _, c := range conflicts {
		if c.ConflictType == string(domain.ConflictDailyOverload) {
			foundOverload = true
		}
	}
	if !foundOverload {
		t.Fatal("expected a daily-overload conflict")
	}
}
