// Package planning turns a set of tasks into a ranked, persisted
// schedule: it drives the scheduling optimizer, stores the resulting
// session/options/blocks, and lets a caller apply one option or adjust
// an applied option's blocks in place.
package planning

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/provider"
	"github.com/antigravity-dev/cognicore/internal/repo"
	"github.com/antigravity-dev/cognicore/internal/scheduling"
)

// ProviderResolver supplies an AI provider client configured with whatever
// credentials the caller currently has on file. ok is false when no API key
// is configured, in which case GeneratePlan falls back to the local
// optimizer instead of calling out to a provider.
type ProviderResolver func(ctx context.Context) (client provider.Client, ok bool, err error)

// Service builds and mutates planning sessions on top of the scheduling
// optimizer and the task/planning repositories.
type Service struct {
	planning        *repo.PlanningRepository
	tasks           *repo.TaskRepository
	resolveProvider ProviderResolver
}

// NewService builds a Service over the given repositories. resolveProvider
// may be nil, in which case GeneratePlan always uses the local optimizer.
func NewService(planning *repo.PlanningRepository, tasks *repo.TaskRepository, resolveProvider ProviderResolver) *Service {
	return &Service{planning: planning, tasks: tasks, resolveProvider: resolveProvider}
}

// GenerateInput names the tasks to schedule and the constraints to
// schedule them within. A nil Seed defaults the optimizer's tie-break seed.
type GenerateInput struct {
	TaskIDs     []string
	Constraints *domain.ScheduleConstraints
	Seed        *uint64
}

// BlockOverride adjusts one block's start/end/flexibility before conflicts
// are re-checked, used by both ApplyOption and ResolveConflicts.
type BlockOverride = domain.BlockOverride

// GeneratePlan runs the configured provider, or the optimizer when no
// provider is configured, over the named tasks and persists a new session
// with every generated option and its time blocks.
func (s *Service) GeneratePlan(ctx context.Context, input GenerateInput) (*domain.PlanningSession, error) {
	if len(input.TaskIDs) == 0 {
		return nil, apperr.NewValidation("at least one task is required to generate a plan")
	}

	tasks := make([]*domain.Task, 0, len(input.TaskIDs))
	tasksByID := make(map[string]*domain.Task, len(input.TaskIDs))
	for _, id := range input.TaskIDs {
		task, err := s.tasks.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
		tasksByID[task.ID] = task
	}

	constraints := domain.ScheduleConstraints{}
	if input.Constraints != nil {
		constraints = *input.Constraints
	}

	preferences, err := s.planning.GetSchedulingPreferences(ctx)
	if err != nil {
		return nil, err
	}

	schedulable := make([]scheduling.SchedulableTask, 0, len(tasks))
	for _, task := range tasks {
		schedulable = append(schedulable, mapSchedulableTask(task))
	}

	generated, err := s.generateOptions(ctx, schedulable, tasks, constraints, *preferences, input.Seed)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &domain.PlanningSession{
		ID:                      uuid.NewString(),
		TaskIDs:                 input.TaskIDs,
		Constraints:             constraints,
		GeneratedAt:             now,
		Status:                  domain.SessionPending,
		PersonalizationSnapshot: *preferences,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.planning.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	for _, option := range generated {
		record := domain.PlanningOption{
			ID:         option.ID,
			SessionID:  session.ID,
			Rank:       option.Rank,
			Score:      option.Score,
			Summary:    buildOptionSummary(option, tasksByID),
			Rationale:  option.Rationale,
			RiskNotes:  strings.Join(option.RiskNotes, "\n"),
			Conflicts:  option.Conflicts,
			IsFallback: option.IsFallback,
			CreatedAt:  now,
		}
		if err := s.planning.CreateOption(ctx, &record); err != nil {
			return nil, err
		}

		for _, block := range option.Blocks {
			row := domain.TimeBlock{
				ID:            block.ID,
				OptionID:      option.ID,
				TaskID:        block.TaskID,
				StartAt:       block.StartAt,
				EndAt:         block.EndAt,
				Flexibility:   block.Flexibility,
				Confidence:    block.Confidence,
				ConflictFlags: block.ConflictFlags,
				Status:        domain.BlockDraft,
			}
			if err := s.planning.CreateTimeBlock(ctx, &row); err != nil {
				return nil, err
			}
		}
	}

	return s.LoadSession(ctx, session.ID)
}

// generateOptions picks the plan source: a configured AI provider gets a
// single provider-sourced option, otherwise the local optimizer produces
// its usual ranked set. A provider failure is returned as-is and never
// silently falls back to the optimizer, so a misconfigured key surfaces
// instead of masquerading as a locally-computed plan.
func (s *Service) generateOptions(
	ctx context.Context,
	schedulable []scheduling.SchedulableTask,
	tasks []*domain.Task,
	constraints domain.ScheduleConstraints,
	preferences domain.SchedulingPreferences,
	seed *uint64,
) ([]scheduling.PlanOption, error) {
	if s.resolveProvider != nil {
		client, ok, err := s.resolveProvider(ctx)
		if err != nil {
			return nil, err
		}
		if ok {
			option, err := s.generateProviderOption(ctx, client, tasks, constraints, preferences)
			if err != nil {
				return nil, err
			}
			return []scheduling.PlanOption{option}, nil
		}
	}

	optimizer := scheduling.NewOptimizer(seed)
	return optimizer.GeneratePlanOptions(schedulable, constraints, preferences)
}

// generateProviderOption asks the provider to plan the same tasks and
// folds its response into the same PlanOption shape the optimizer
// produces, so persistence and conflict detection don't need to know
// which source produced it.
func (s *Service) generateProviderOption(
	ctx context.Context,
	client provider.Client,
	tasks []*domain.Task,
	constraints domain.ScheduleConstraints,
	preferences domain.SchedulingPreferences,
) (scheduling.PlanOption, error) {
	payload := buildSchedulePayload(tasks, constraints, preferences)
	plan, err := client.PlanSchedule(ctx, payload)
	if err != nil {
		return scheduling.PlanOption{}, err
	}

	blocks, err := parseProviderBlocks(plan.Fields, tasks)
	if err != nil {
		return scheduling.PlanOption{}, apperr.NewProvider(apperr.ProviderInvalidResponse, err.Error(), plan.Telemetry.CorrelationID)
	}

	conflicts := scheduling.DetectConflicts(blocks, constraints.ExistingEvents, constraints.MaxDailyFocusMinutes)

	return scheduling.PlanOption{
		ID:        uuid.NewString(),
		Label:     "AI-recommended",
		Rank:      1,
		Score:     1.0,
		Blocks:    blocks,
		Rationale: parseProviderRationale(plan.Fields),
		Conflicts: conflicts,
		RiskNotes: parseProviderRiskNotes(plan.Fields),
	}, nil
}

// buildSchedulePayload shapes the JSON-stringified request body the
// provider adapter sends as the chat completion's user message.
func buildSchedulePayload(tasks []*domain.Task, constraints domain.ScheduleConstraints, preferences domain.SchedulingPreferences) map[string]any {
	taskPayload := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		taskPayload = append(taskPayload, map[string]any{
			"id":                task.ID,
			"title":             task.Title,
			"due_at":            task.DueAt,
			"estimated_minutes": task.EffortMinutes(),
			"priority":          string(task.Priority),
		})
	}
	return map[string]any{
		"tasks": taskPayload,
		"preferences": map[string]any{
			"focus_start_minute":      preferences.FocusStartMinute,
			"focus_end_minute":        preferences.FocusEndMinute,
			"buffer_minutes":          preferences.BufferMinutes,
			"prefer_compact_schedule": preferences.PreferCompact,
		},
		"planning_start_at":        constraints.PlanningStartAt,
		"planning_end_at":          constraints.PlanningEndAt,
		"max_daily_focus_minutes":  constraints.MaxDailyFocusMinutes,
	}
}

// parseProviderBlocks reads the response's "blocks" array. Each entry is
// expected to carry task_id, start_at, end_at (RFC3339), and optionally
// flexibility and confidence; entries referencing an unknown task or an
// unparsable timestamp are skipped rather than failing the whole plan.
func parseProviderBlocks(fields map[string]any, tasks []*domain.Task) ([]scheduling.TimeBlockCandidate, error) {
	knownTasks := make(map[string]bool, len(tasks))
	for _, task := range tasks {
		knownTasks[task.ID] = true
	}

	raw, ok := fields["blocks"].([]any)
	if !ok {
		return nil, fmt.Errorf("provider response is missing a \"blocks\" array")
	}

	blocks := make([]scheduling.TimeBlockCandidate, 0, len(raw))
	for _, entry := range raw {
		block, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		taskID, _ := block["task_id"].(string)
		if !knownTasks[taskID] {
			continue
		}
		startAt, ok := parseProviderTime(block["start_at"])
		if !ok {
			continue
		}
		endAt, ok := parseProviderTime(block["end_at"])
		if !ok || !startAt.Before(endAt) {
			continue
		}

		flexibility := domain.FlexibilityFlexible
		if raw, ok := block["flexibility"].(string); ok && raw != "" {
			flexibility = domain.Flexibility(raw)
		}
		confidence := 0.7
		if raw, ok := block["confidence"].(float64); ok {
			confidence = raw
		}

		blocks = append(blocks, scheduling.TimeBlockCandidate{
			ID:          uuid.NewString(),
			TaskID:      taskID,
			StartAt:     startAt,
			EndAt:       endAt,
			Flexibility: flexibility,
			Confidence:  confidence,
		})
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("provider response produced no usable time blocks")
	}
	return blocks, nil
}

func parseProviderTime(value any) (time.Time, bool) {
	text, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	parsed, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// parseProviderRationale reads an optional "rationale" array of
// {step, thought, result} objects, tolerating whichever subset is present.
func parseProviderRationale(fields map[string]any) []domain.RationaleStep {
	raw, ok := fields["rationale"].([]any)
	if !ok {
		return nil
	}
	steps := make([]domain.RationaleStep, 0, len(raw))
	for i, entry := range raw {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		step := domain.RationaleStep{Step: i + 1}
		if thought, ok := item["thought"].(string); ok {
			step.Thought = thought
		}
		if result, ok := item["result"].(string); ok {
			step.Result = result
		}
		steps = append(steps, step)
	}
	return steps
}

func parseProviderRiskNotes(fields map[string]any) []string {
	raw, ok := fields["risk_notes"].([]any)
	if !ok {
		return nil
	}
	notes := make([]string, 0, len(raw))
	for _, entry := range raw {
		if note, ok := entry.(string); ok {
			notes = append(notes, note)
		} else {
			notes = append(notes, strconv.Quote(fmt.Sprint(entry)))
		}
	}
	return notes
}

// LoadSession reassembles a session with every option's blocks. Conflicts
// stay on the option they were found for; no combined or deduplicated
// conflict list is built for the session.
func (s *Service) LoadSession(ctx context.Context, sessionID string) (*domain.PlanningSession, error) {
	session, err := s.planning.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	options, err := s.planning.ListOptionsForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	full := make([]domain.PlanningOption, 0, len(options))
	for _, opt := range options {
		blocks, err := s.planning.ListTimeBlocksForOption(ctx, opt.ID)
		if err != nil {
			return nil, err
		}
		opt.Blocks = blocks
		full = append(full, *opt)
	}
	session.Options = full

	return session, nil
}

// ApplyOption selects one option within a session: it applies any block
// overrides, re-checks conflicts, marks the chosen option's blocks
// "planned", marks the session applied, and pushes each task's earliest
// scheduled start back onto the task record.
func (s *Service) ApplyOption(ctx context.Context, sessionID, optionID string, overrides []BlockOverride) (*domain.PlanningSession, error) {
	session, err := s.planning.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.SessionApplied {
		return nil, apperr.NewConflict("planning session %s has already been applied", sessionID)
	}

	option, err := s.planning.GetOption(ctx, optionID)
	if err != nil {
		return nil, err
	}
	if option.SessionID != sessionID {
		return nil, apperr.NewValidation("option %s does not belong to session %s", optionID, sessionID)
	}

	blocks, err := s.planning.ListTimeBlocksForOption(ctx, optionID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, apperr.NewValidation("option %s has no time blocks to apply", optionID)
	}

	if err := applyOverrides(blocks, overrides, session.Constraints, session.PersonalizationSnapshot); err != nil {
		return nil, err
	}

	conflicts := scheduling.DetectConflicts(toCandidates(blocks), session.Constraints.ExistingEvents, session.Constraints.MaxDailyFocusMinutes)
	updateBlockConflictFlags(blocks, conflicts)

	option.Conflicts = conflicts
	if err := s.planning.UpdateOption(ctx, option); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for i := range blocks {
		blocks[i].AppliedAt = &now
		blocks[i].Status = domain.BlockPlanned
		if err := s.planning.UpdateTimeBlock(ctx, &blocks[i]); err != nil {
			return nil, err
		}
	}

	session.Status = domain.SessionApplied
	session.SelectedOptionID = optionID
	if err := s.planning.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	for taskID, startAt := range earliestStartByTask(blocks) {
		task, err := s.tasks.Get(ctx, taskID)
		if err != nil {
			continue
		}
		start := startAt
		if task.PlannedStartAt == nil || !task.PlannedStartAt.Equal(start) {
			task.PlannedStartAt = &start
			if err := s.tasks.Update(ctx, task); err != nil {
				return nil, err
			}
		}
	}

	return s.LoadSession(ctx, sessionID)
}

// ResolveConflicts applies adjustments to an option's blocks and re-runs
// conflict detection, without changing the session or option's applied
// state.
func (s *Service) ResolveConflicts(ctx context.Context, sessionID, optionID string, adjustments []BlockOverride) (*domain.PlanningSession, error) {
	session, err := s.planning.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	option, err := s.planning.GetOption(ctx, optionID)
	if err != nil {
		return nil, err
	}
	if option.SessionID != sessionID {
		return nil, apperr.NewValidation("option %s does not belong to session %s", optionID, sessionID)
	}

	blocks, err := s.planning.ListTimeBlocksForOption(ctx, optionID)
	if err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, apperr.NewValidation("option %s has no time blocks to adjust", optionID)
	}

	if err := applyOverrides(blocks, adjustments, session.Constraints, session.PersonalizationSnapshot); err != nil {
		return nil, err
	}

	conflicts := scheduling.DetectConflicts(toCandidates(blocks), session.Constraints.ExistingEvents, session.Constraints.MaxDailyFocusMinutes)
	updateBlockConflictFlags(blocks, conflicts)

	option.Conflicts = conflicts
	if err := s.planning.UpdateOption(ctx, option); err != nil {
		return nil, err
	}

	for i := range blocks {
		if err := s.planning.UpdateTimeBlock(ctx, &blocks[i]); err != nil {
			return nil, err
		}
	}

	session.UpdatedAt = time.Now().UTC()
	if err := s.planning.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	return s.LoadSession(ctx, sessionID)
}

func mapSchedulableTask(task *domain.Task) scheduling.SchedulableTask {
	earliest := task.StartAt
	if earliest == nil {
		earliest = task.PlannedStartAt
	}
	return scheduling.SchedulableTask{
		ID:               task.ID,
		Title:            task.Title,
		DueAt:            task.DueAt,
		EarliestStartAt:  earliest,
		EstimatedMinutes: task.EffortMinutes(),
		PriorityWeight:   priorityWeight(task.Priority),
		IsParallelizable: hasParallelTag(task.Tags),
	}
}

func priorityWeight(priority domain.Priority) float64 {
	switch priority {
	case domain.PriorityUrgent:
		return 1.2
	case domain.PriorityHigh:
		return 1.0
	case domain.PriorityMedium:
		return 0.7
	case domain.PriorityLow:
		return 0.4
	default:
		return 0.6
	}
}

func hasParallelTag(tags []string) bool {
	for _, tag := range tags {
		lower := strings.ToLower(tag)
		if lower == "parallel" || lower == "parallelizable" {
			return true
		}
	}
	return false
}

func buildOptionSummary(option scheduling.PlanOption, tasks map[string]*domain.Task) string {
	var titles []string
	seen := make(map[string]bool)
	for _, block := range option.Blocks {
		task, ok := tasks[block.TaskID]
		if !ok || seen[task.Title] {
			continue
		}
		seen[task.Title] = true
		titles = append(titles, task.Title)
	}

	preview := titles
	if len(preview) > 3 {
		preview = preview[:3]
	}

	suffix := ""
	if option.IsFallback {
		suffix = " (fallback)"
	}

	if len(preview) == 0 {
		return fmt.Sprintf("%s%s has %d time blocks, overall score %.1f", option.Label, suffix, len(option.Blocks), option.Score)
	}
	return fmt.Sprintf("%s%s has %d time blocks covering %s, overall score %.1f",
		option.Label, suffix, len(option.Blocks), strings.Join(preview, ", "), option.Score)
}

func toCandidates(blocks []domain.TimeBlock) []scheduling.TimeBlockCandidate {
	out := make([]scheduling.TimeBlockCandidate, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, scheduling.TimeBlockCandidate{
			ID:            b.ID,
			TaskID:        b.TaskID,
			StartAt:       b.StartAt,
			EndAt:         b.EndAt,
			Flexibility:   b.Flexibility,
			Confidence:    b.Confidence,
			ConflictFlags: b.ConflictFlags,
		})
	}
	return out
}

// applyOverrides applies each override's start/end/flexibility to its block.
// Unless the session's preferences explicitly waive it (PreferCompact ==
// false), an override that leaves the block outside every one of the
// session's configured availability windows is rejected: a caller dragging a
// block around is expected to stay inside the windows the plan was generated
// against, not silently schedule outside them.
func applyOverrides(blocks []domain.TimeBlock, overrides []BlockOverride, constraints domain.ScheduleConstraints, preferences domain.SchedulingPreferences) error {
	if len(overrides) == 0 {
		return nil
	}

	index := make(map[string]int, len(blocks))
	for i, b := range blocks {
		index[b.ID] = i
	}

	enforceWindows := preferences.PreferCompact && len(constraints.AvailabilityWindows) > 0

	for _, override := range overrides {
		pos, ok := index[override.BlockID]
		if !ok {
			return apperr.NewValidation("attempted to adjust a time block that does not exist: %s", override.BlockID)
		}
		block := &blocks[pos]

		if override.StartAt != nil {
			block.StartAt = *override.StartAt
		}
		if override.EndAt != nil {
			block.EndAt = *override.EndAt
		}
		if !block.StartAt.Before(block.EndAt) {
			return apperr.NewValidation("time block %s has a start time that is not before its end time", block.ID)
		}
		if override.Flexibility != nil {
			block.Flexibility = *override.Flexibility
		}

		if enforceWindows && !withinAnyWindow(block.StartAt, block.EndAt, constraints.AvailabilityWindows) {
			return apperr.NewValidation("override for time block %s exits every availability window", block.ID)
		}
	}

	return nil
}

// withinAnyWindow reports whether [start, end) falls entirely inside at
// least one of windows.
func withinAnyWindow(start, end time.Time, windows []domain.AvailabilityWindow) bool {
	for _, w := range windows {
		if !start.Before(w.Start) && !end.After(w.End) {
			return true
		}
	}
	return false
}

// updateBlockConflictFlags folds each conflict's type onto its related
// block's flag list, without dropping flags the packing pass already set.
func updateBlockConflictFlags(blocks []domain.TimeBlock, conflicts []domain.Conflict) {
	flagsByBlock := make(map[string][]domain.ConflictFlag, len(blocks))
	for _, b := range blocks {
		flagsByBlock[b.ID] = append([]domain.ConflictFlag(nil), b.ConflictFlags...)
	}

	for _, c := range conflicts {
		if c.RelatedBlockID == "" {
			continue
		}
		flags := flagsByBlock[c.RelatedBlockID]
		flag := domain.ConflictFlag(c.ConflictType)
		exists := false
		for _, f := range flags {
			if f == flag {
				exists = true
				break
			}
		}
		if !exists {
			flags = append(flags, flag)
		}
		flagsByBlock[c.RelatedBlockID] = flags
	}

	for i := range blocks {
		blocks[i].ConflictFlags = flagsByBlock[blocks[i].ID]
	}
}

// earliestStartByTask reduces a block list to each task's earliest
// scheduled start time, used to push plans back onto task records.
func earliestStartByTask(blocks []domain.TimeBlock) map[string]time.Time {
	result := make(map[string]time.Time)
	for _, b := range blocks {
		existing, ok := result[b.TaskID]
		if !ok || b.StartAt.Before(existing) {
			result[b.TaskID] = b.StartAt
		}
	}
	return result
}
