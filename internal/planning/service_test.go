package planning

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/provider"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/store"
)

// fakeProviderClient is a test double for provider.Client that returns a
// single canned schedule plan instead of calling out to a real LLM.
type fakeProviderClient struct {
	plan provider.SchedulePlan
	err  error
}

func (f *fakeProviderClient) ParseTask(context.Context, provider.ParseTaskRequest) (provider.ParsedTask, error) {
	return provider.ParsedTask{}, nil
}

func (f *fakeProviderClient) GenerateRecommendations(context.Context, map[string]any) (provider.Recommendation, error) {
	return provider.Recommendation{}, nil
}

func (f *fakeProviderClient) PlanSchedule(context.Context, map[string]any) (provider.SchedulePlan, error) {
	if f.err != nil {
		return provider.SchedulePlan{}, f.err
	}
	return f.plan, nil
}

func (f *fakeProviderClient) Ping(context.Context) (provider.Metadata, error) {
	return provider.Metadata{}, nil
}

func newTestService(t *testing.T) (*Service, *repo.TaskRepository) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tasks := repo.NewTaskRepository(st)
	planningRepo := repo.NewPlanningRepository(st)
	return NewService(planningRepo, tasks, nil), tasks
}

func createTask(t *testing.T, tasks *repo.TaskRepository, title string, priority domain.Priority, dueAt time.Time, minutes int) *domain.Task {
	t.Helper()
	now := time.Now().UTC()
	task := &domain.Task{
		Title: title, Status: domain.StatusTodo, Priority: priority,
		DueAt: &dueAt, EstimatedMinutes: &minutes,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := tasks.Create(context.Background(), task); err != nil {
		t.Fatalf("Create(%q) error = %v", title, err)
	}
	return task
}

func TestGeneratePlanRejectsEmptyTaskList(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.GeneratePlan(context.Background(), GenerateInput{})
	if !apperr.IsValidation(err) {
		t.Fatalf("GeneratePlan() error = %v, want Validation", err)
	}
}

func TestGeneratePlanProducesRankedOptions(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()

	due := time.Date(2026, time.May, 1, 18, 0, 0, 0, time.UTC)
	a := createTask(t, tasks, "Write draft", domain.PriorityHigh, due, 90)
	b := createTask(t, tasks, "Review draft", domain.PriorityMedium, due.Add(2*time.Hour), 60)

	windowStart := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, time.May, 1, 17, 0, 0, 0, time.UTC)
	constraints := &domain.ScheduleConstraints{
		AvailabilityWindows: []domain.AvailabilityWindow{{Start: windowStart, End: windowEnd}},
	}

	session, err := svc.GeneratePlan(ctx, GenerateInput{TaskIDs: []string{a.ID, b.ID}, Constraints: constraints})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	if session.Status != domain.SessionPending {
		t.Fatalf("session.Status = %v, want pending", session.Status)
	}
	if len(session.Options) < 2 {
		t.Fatalf("len(session.Options) = %d, want at least 2", len(session.Options))
	}
	for i := 0; i+1 < len(session.Options); i++ {
		if session.Options[i].Score < session.Options[i+1].Score {
			t.Fatalf("options not ranked by descending score: %+v", session.Options)
		}
	}
	for _, opt := range session.Options {
		if len(opt.Blocks) == 0 {
			t.Fatalf("option %s has no blocks", opt.ID)
		}
	}
}

func TestApplyOptionMarksSessionAppliedAndUpdatesTask(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()

	due := time.Date(2026, time.May, 1, 18, 0, 0, 0, time.UTC)
	a := createTask(t, tasks, "Write draft", domain.PriorityHigh, due, 60)

	windowStart := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, time.May, 1, 17, 0, 0, 0, time.UTC)
	constraints := &domain.ScheduleConstraints{
		AvailabilityWindows: []domain.AvailabilityWindow{{Start: windowStart, End: windowEnd}},
	}

	session, err := svc.GeneratePlan(ctx, GenerateInput{TaskIDs: []string{a.ID}, Constraints: constraints})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	option := session.Options[0]

	applied, err := svc.ApplyOption(ctx, session.ID, option.ID, nil)
	if err != nil {
		t.Fatalf("ApplyOption() error = %v", err)
	}
	if applied.Status != domain.SessionApplied {
		t.Fatalf("applied.Status = %v, want applied", applied.Status)
	}
	if applied.SelectedOptionID != option.ID {
		t.Fatalf("applied.SelectedOptionID = %q, want %q", applied.SelectedOptionID, option.ID)
	}

	updatedTask, err := tasks.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if updatedTask.PlannedStartAt == nil {
		t.Fatal("updatedTask.PlannedStartAt = nil, want set after applying plan")
	}

	if _, err := svc.ApplyOption(ctx, session.ID, option.ID, nil); !apperr.IsConflict(err) {
		t.Fatalf("second ApplyOption() error = %v, want Conflict", err)
	}
}

func TestApplyOptionRejectsOverrideThatExitsAvailabilityWindows(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()

	due := time.Date(2026, time.May, 1, 18, 0, 0, 0, time.UTC)
	a := createTask(t, tasks, "Write draft", domain.PriorityHigh, due, 60)

	windowStart := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, time.May, 1, 17, 0, 0, 0, time.UTC)
	constraints := &domain.ScheduleConstraints{
		AvailabilityWindows: []domain.AvailabilityWindow{{Start: windowStart, End: windowEnd}},
	}

	session, err := svc.GeneratePlan(ctx, GenerateInput{TaskIDs: []string{a.ID}, Constraints: constraints})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	option := session.Options[0]
	block := option.Blocks[0]

	// Default scheduling preferences have PreferCompact true, so an override
	// that pushes the block outside every availability window must be
	// rejected rather than silently accepted.
	outsideStart := windowEnd.Add(time.Hour)
	outsideEnd := outsideStart.Add(time.Hour)
	overrides := []BlockOverride{{BlockID: block.ID, StartAt: &outsideStart, EndAt: &outsideEnd}}

	if _, err := svc.ApplyOption(ctx, session.ID, option.ID, overrides); !apperr.IsValidation(err) {
		t.Fatalf("ApplyOption() with out-of-window override error = %v, want Validation", err)
	}
}

func TestApplyOptionAllowsOverrideOutsideWindowsWhenPreferCompactFalse(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()

	if err := svc.planning.UpsertSchedulingPreferences(ctx, &domain.SchedulingPreferences{ID: "default", PreferCompact: false}); err != nil {
		t.Fatalf("UpsertSchedulingPreferences() error = %v", err)
	}

	due := time.Date(2026, time.May, 1, 18, 0, 0, 0, time.UTC)
	a := createTask(t, tasks, "Write draft", domain.PriorityHigh, due, 60)

	windowStart := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, time.May, 1, 17, 0, 0, 0, time.UTC)
	constraints := &domain.ScheduleConstraints{
		AvailabilityWindows: []domain.AvailabilityWindow{{Start: windowStart, End: windowEnd}},
	}

	session, err := svc.GeneratePlan(ctx, GenerateInput{TaskIDs: []string{a.ID}, Constraints: constraints})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	option := session.Options[0]
	block := option.Blocks[0]

	outsideStart := windowEnd.Add(time.Hour)
	outsideEnd := outsideStart.Add(time.Hour)
	overrides := []BlockOverride{{BlockID: block.ID, StartAt: &outsideStart, EndAt: &outsideEnd}}

	if _, err := svc.ApplyOption(ctx, session.ID, option.ID, overrides); err != nil {
		t.Fatalf("ApplyOption() with PreferCompact=false error = %v, want success", err)
	}
}

func TestApplyOptionAllowsOverrideWithinAvailabilityWindows(t *testing.T) {
	svc, tasks := newTestService(t)
	ctx := context.Background()

	due := time.Date(2026, time.May, 1, 18, 0, 0, 0, time.UTC)
	a := createTask(t, tasks, "Write draft", domain.PriorityHigh, due, 60)

	windowStart := time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, time.May, 1, 17, 0, 0, 0, time.UTC)
	constraints := &domain.ScheduleConstraints{
		AvailabilityWindows: []domain.AvailabilityWindow{{Start: windowStart, End: windowEnd}},
	}

	session, err := svc.GeneratePlan(ctx, GenerateInput{TaskIDs: []string{a.ID}, Constraints: constraints})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	option := session.Options[0]
	block := option.Blocks[0]

	insideStart := windowStart.Add(time.Hour)
	insideEnd := insideStart.Add(30 * time.Minute)
	overrides := []BlockOverride{{BlockID: block.ID, StartAt: &insideStart, EndAt: &insideEnd}}

	if _, err := svc.ApplyOption(ctx, session.ID, option.ID, overrides); err != nil {
		t.Fatalf("ApplyOption() with in-window override error = %v, want success", err)
	}
}

func TestGeneratePlanUsesProviderWhenConfigured(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tasks := repo.NewTaskRepository(st)
	planningRepo := repo.NewPlanningRepository(st)

	now := time.Now().UTC()
	due := now.Add(48 * time.Hour)
	task := createTask(t, tasks, "write report", domain.PriorityHigh, due, 60)

	start := now.Add(2 * time.Hour)
	end := start.Add(time.Hour)
	client := &fakeProviderClient{
		plan: provider.SchedulePlan{
			Fields: map[string]any{
				"blocks": []any{
					map[string]any{
						"task_id":  task.ID,
						"start_at": start.Format(time.RFC3339),
						"end_at":   end.Format(time.RFC3339),
					},
				},
				"rationale": []any{
					map[string]any{"thought": "report is due soon", "result": "scheduled first"},
				},
			},
		},
	}
	resolver := func(context.Context) (provider.Client, bool, error) { return client, true, nil }

	svc := NewService(planningRepo, tasks, resolver)
	ctx := context.Background()

	session, err := svc.GeneratePlan(ctx, GenerateInput{TaskIDs: []string{task.ID}})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	if len(session.Options) != 1 {
		t.Fatalf("len(session.Options) = %d, want 1 (single AI-sourced option)", len(session.Options))
	}
	option := session.Options[0]
	if len(option.Blocks) != 1 {
		t.Fatalf("len(option.Blocks) = %d, want 1", len(option.Blocks))
	}
	if option.Blocks[0].TaskID != task.ID {
		t.Fatalf("option.Blocks[0].TaskID = %q, want %q", option.Blocks[0].TaskID, task.ID)
	}
	if len(option.Rationale) != 1 || option.Rationale[0].Thought != "report is due soon" {
		t.Fatalf("option.Rationale = %+v, want one step carrying the provider's thought", option.Rationale)
	}
}

func TestGeneratePlanPropagatesProviderFailure(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "cognicore.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	tasks := repo.NewTaskRepository(st)
	planningRepo := repo.NewPlanningRepository(st)

	now := time.Now().UTC()
	task := createTask(t, tasks, "write report", domain.PriorityHigh, now.Add(48*time.Hour), 60)

	client := &fakeProviderClient{err: apperr.NewProvider(apperr.ProviderRateLimited, "rate limited", "corr-1")}
	resolver := func(context.Context) (provider.Client, bool, error) { return client, true, nil }

	svc := NewService(planningRepo, tasks, resolver)
	if _, err := svc.GeneratePlan(context.Background(), GenerateInput{TaskIDs: []string{task.ID}}); err == nil {
		t.Fatal("GeneratePlan() error = nil, want provider failure propagated, not silently falling back to the optimizer")
	}
}
