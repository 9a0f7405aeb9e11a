package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/repo"
)

// timeBlock is an ad hoc scheduled interval, distinct from a task's due
// date and from a planning session's generated TimeBlock.
type timeBlock struct {
	ID          string
	Title       string
	Description string
	StartAt     time.Time
	EndAt       time.Time
	Tags        []string
}

// TimeBlockStore holds ad hoc time blocks created through the unified
// time-management tools, mirroring CalendarStore's bounded in-memory scope.
type TimeBlockStore struct {
	mu     sync.RWMutex
	blocks map[string]timeBlock
}

// NewTimeBlockStore builds an empty TimeBlockStore.
func NewTimeBlockStore() *TimeBlockStore {
	return &TimeBlockStore{blocks: make(map[string]timeBlock)}
}

func (s *TimeBlockStore) list() []timeBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]timeBlock, 0, len(s.blocks))
	for _, b := range s.blocks {
		out = append(out, b)
	}
	return out
}

func (s *TimeBlockStore) put(b timeBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[b.ID] = b
}

func (s *TimeBlockStore) get(id string) (timeBlock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	return b, ok
}

// timeItem is the unified shape list/search_time_items return, covering
// both ad hoc time blocks and task deadlines.
type timeItem struct {
	ID          string
	Title       string
	Description string
	ItemType    string // "time_block" or "deadline"
	StartAt     time.Time
	EndAt       *time.Time
	Status      string
	Priority    string
	Tags        []string
}

// RegisterTimeManagementTools wires list_time_items, create_time_block,
// update_time_item, search_time_items and quick_schedule against blocks and
// tasks, presenting a single schedule-plus-deadlines view.
func RegisterTimeManagementTools(reg *Registry, blocks *TimeBlockStore, tasks *repo.TaskRepository) error {
	if err := reg.Register("list_time_items",
		"List time-based items (scheduled time blocks and task deadlines) for a date range. Use this when the user asks to view their schedule, see what's planned, or review time management for today, this week, this month, or a custom range.",
		json.RawMessage(`{"type":"object","properties":{
			"date_range":{"type":"string","enum":["today","week","month","custom"],"description":"Time range for listing items (default: today)"},
			"start_date":{"type":"string","format":"date","description":"Start date for a custom range in YYYY-MM-DD format"},
			"end_date":{"type":"string","format":"date","description":"End date for a custom range in YYYY-MM-DD format"},
			"item_type":{"type":"string","enum":["time_block","deadline","all"],"description":"Filter by item type (default: all)"},
			"status_filter":{"type":"array","items":{"type":"string"},"description":"Filter by task status: backlog, todo, in_progress, blocked, done, archived"}
		}}`),
		listTimeItemsHandler(blocks, tasks)); err != nil {
		return err
	}

	if err := reg.Register("create_time_block",
		"Create a scheduled time block. Use when the user wants to schedule something at a specific time, such as 'schedule a meeting at 2pm' or 'book time for deep work'.",
		json.RawMessage(`{"type":"object","properties":{
			"title":{"type":"string","description":"Title of the time-blocked item (required)"},
			"start_datetime":{"type":"string","format":"date-time","description":"Start time in RFC3339 format (required)"},
			"duration_minutes":{"type":"integer","description":"Duration in minutes, must be > 0 (required)"},
			"description":{"type":"string","description":"Detailed description of the time block"},
			"tags":{"type":"array","items":{"type":"string"},"description":"Tags to categorize the time block"}
		},"required":["title","start_datetime","duration_minutes"]}`),
		createTimeBlockHandler(blocks)); err != nil {
		return err
	}

	if err := reg.Register("update_time_item",
		"Update an existing scheduled time block. Use when the user wants to reschedule, resize, or rename an item previously created with create_time_block or quick_schedule.",
		json.RawMessage(`{"type":"object","properties":{
			"id":{"type":"string","description":"ID of the time block to update (required)"},
			"title":{"type":"string","description":"New title"},
			"start_datetime":{"type":"string","format":"date-time","description":"New start time in RFC3339 format"},
			"end_datetime":{"type":"string","format":"date-time","description":"New end time in RFC3339 format"},
			"duration_minutes":{"type":"integer","description":"New duration in minutes, applied from the (possibly new) start time"},
			"description":{"type":"string","description":"New description"}
		},"required":["id"]}`),
		updateTimeItemHandler(blocks)); err != nil {
		return err
	}

	if err := reg.Register("search_time_items",
		"Search for time-based items (time blocks and deadlines) by keyword across titles, descriptions and tags.",
		json.RawMessage(`{"type":"object","properties":{
			"query":{"type":"string","description":"Search query to match against titles, descriptions and tags (required)"},
			"date_range":{"type":"string","enum":["today","week","month","all"],"description":"Time range to search within (default: all)"},
			"item_type":{"type":"string","enum":["time_block","deadline","all"],"description":"Filter by item type (default: all)"}
		},"required":["query"]}`),
		searchTimeItemsHandler(blocks, tasks)); err != nil {
		return err
	}

	if err := reg.Register("quick_schedule",
		"Quickly schedule a time block using natural time expressions like 'today_9am', 'tomorrow_2pm' or 'next_week_monday', or an explicit RFC3339 datetime.",
		json.RawMessage(`{"type":"object","properties":{
			"title":{"type":"string","description":"Title for the quick scheduled item (required)"},
			"when":{"type":"string","description":"today_9am, tomorrow_2pm, next_week_monday, or an RFC3339 datetime (required)"},
			"duration_minutes":{"type":"integer","description":"Duration in minutes (default 60)"},
			"description":{"type":"string","description":"Description"}
		},"required":["title","when"]}`),
		quickScheduleHandler(blocks)); err != nil {
		return err
	}

	return nil
}

func dateRangeBounds(rangeName, startDate, endDate string, now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch rangeName {
	case "week":
		return today, today.AddDate(0, 0, 7), nil
	case "month":
		return today, today.AddDate(0, 1, 0), nil
	case "custom":
		if startDate == "" || endDate == "" {
			return time.Time{}, time.Time{}, apperr.NewValidation("a custom date range requires both start_date and end_date")
		}
		start, err := time.Parse("2006-01-02", startDate)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.NewValidation("start_date %q is not YYYY-MM-DD", startDate)
		}
		end, err := time.Parse("2006-01-02", endDate)
		if err != nil {
			return time.Time{}, time.Time{}, apperr.NewValidation("end_date %q is not YYYY-MM-DD", endDate)
		}
		return start, end.AddDate(0, 0, 1), nil
	case "all":
		return time.Time{}, today.AddDate(1, 0, 0), nil
	default:
		return today, today.AddDate(0, 0, 1), nil
	}
}

func collectTimeItems(blocks *TimeBlockStore, tasks []*domain.Task, rangeStart, rangeEnd time.Time, itemType string, statusFilter []string) []timeItem {
	var items []timeItem

	if itemType == "" || itemType == "all" || itemType == "time_block" {
		for _, b := range blocks.list() {
			if !rangeStart.IsZero() && b.StartAt.Before(rangeStart) {
				continue
			}
			if !rangeEnd.IsZero() && !b.StartAt.Before(rangeEnd) {
				continue
			}
			endAt := b.EndAt
			items = append(items, timeItem{
				ID: b.ID, Title: b.Title, Description: b.Description,
				ItemType: "time_block", StartAt: b.StartAt, EndAt: &endAt, Tags: b.Tags,
			})
		}
	}

	if itemType == "" || itemType == "all" || itemType == "deadline" {
		for _, t := range tasks {
			if t.DueAt == nil {
				continue
			}
			if !rangeStart.IsZero() && t.DueAt.Before(rangeStart) {
				continue
			}
			if !rangeEnd.IsZero() && !t.DueAt.Before(rangeEnd) {
				continue
			}
			if len(statusFilter) > 0 && !statusMatches(string(t.Status), statusFilter) {
				continue
			}
			items = append(items, timeItem{
				ID: t.ID, Title: t.Title, Description: t.Description,
				ItemType: "deadline", StartAt: *t.DueAt,
				Status: string(t.Status), Priority: string(t.Priority), Tags: t.Tags,
			})
		}
	}

	sortTimeItemsByStart(items)
	return items
}

func statusMatches(status string, filter []string) bool {
	for _, s := range filter {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}

func sortTimeItemsByStart(items []timeItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].StartAt.Before(items[j-1].StartAt); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func listTimeItemsHandler(blocks *TimeBlockStore, tasks *repo.TaskRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			DateRange    string   `json:"date_range"`
			StartDate    string   `json:"start_date"`
			EndDate      string   `json:"end_date"`
			ItemType     string   `json:"item_type"`
			StatusFilter []string `json:"status_filter"`
		}
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &params); err != nil {
				return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
			}
		}
		if params.DateRange == "" {
			params.DateRange = "today"
		}

		rangeStart, rangeEnd, err := dateRangeBounds(params.DateRange, params.StartDate, params.EndDate, time.Now().UTC())
		if err != nil {
			return nil, err
		}

		allTasks, err := tasks.List(ctx, "")
		if err != nil {
			return nil, err
		}

		items := collectTimeItems(blocks, allTasks, rangeStart, rangeEnd, params.ItemType, params.StatusFilter)

		return map[string]any{
			"success": true,
			"items":   formatTimeItemsForAI(items),
			"summary": formatTimeItemsSummary(items),
			"count":   len(items),
		}, nil
	}
}

func createTimeBlockHandler(blocks *TimeBlockStore) Handler {
	return func(_ context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Title           string   `json:"title"`
			StartDatetime   string   `json:"start_datetime"`
			DurationMinutes int      `json:"duration_minutes"`
			Description     string   `json:"description"`
			Tags            []string `json:"tags"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}
		if strings.TrimSpace(params.Title) == "" {
			return nil, apperr.NewValidation("title is required")
		}
		if params.DurationMinutes <= 0 {
			return nil, apperr.NewValidation("duration_minutes must be greater than 0")
		}

		startAt, err := time.Parse(time.RFC3339, params.StartDatetime)
		if err != nil {
			return nil, apperr.NewValidation("start_datetime %q is not a valid RFC3339 datetime", params.StartDatetime)
		}
		endAt := startAt.Add(time.Duration(params.DurationMinutes) * time.Minute)

		block := timeBlock{
			ID: uuid.NewString(), Title: params.Title, Description: params.Description,
			StartAt: startAt, EndAt: endAt, Tags: params.Tags,
		}
		blocks.put(block)

		return map[string]any{
			"success":           true,
			"id":                block.ID,
			"title":             block.Title,
			"start_at":          block.StartAt,
			"end_at":            block.EndAt,
			"duration_minutes":  params.DurationMinutes,
			"formatted_display": formatTimeBlockDisplay(block),
			"message":           fmt.Sprintf("Time block %q created.", block.Title),
		}, nil
	}
}

func updateTimeItemHandler(blocks *TimeBlockStore) Handler {
	return func(_ context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			ID              string  `json:"id"`
			Title           *string `json:"title"`
			StartDatetime   *string `json:"start_datetime"`
			EndDatetime     *string `json:"end_datetime"`
			DurationMinutes *int    `json:"duration_minutes"`
			Description     *string `json:"description"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		existing, ok := blocks.get(params.ID)
		if !ok {
			return nil, apperr.NewValidation("time block %q not found; check the ID and try again", params.ID)
		}

		updated := existing
		if params.Title != nil {
			updated.Title = *params.Title
		}
		if params.Description != nil {
			updated.Description = *params.Description
		}
		if params.StartDatetime != nil {
			start, err := time.Parse(time.RFC3339, *params.StartDatetime)
			if err != nil {
				return nil, apperr.NewValidation("start_datetime %q is not a valid RFC3339 datetime", *params.StartDatetime)
			}
			duration := updated.EndAt.Sub(updated.StartAt)
			updated.StartAt = start
			updated.EndAt = start.Add(duration)
		}
		if params.EndDatetime != nil {
			end, err := time.Parse(time.RFC3339, *params.EndDatetime)
			if err != nil {
				return nil, apperr.NewValidation("end_datetime %q is not a valid RFC3339 datetime", *params.EndDatetime)
			}
			updated.EndAt = end
		}
		if params.DurationMinutes != nil {
			if *params.DurationMinutes <= 0 {
				return nil, apperr.NewValidation("duration_minutes must be greater than 0")
			}
			updated.EndAt = updated.StartAt.Add(time.Duration(*params.DurationMinutes) * time.Minute)
		}
		if !updated.EndAt.After(updated.StartAt) {
			return nil, apperr.NewValidation("end time must be after start time")
		}

		blocks.put(updated)

		return map[string]any{
			"success":           true,
			"id":                updated.ID,
			"title":             updated.Title,
			"start_at":          updated.StartAt,
			"end_at":            updated.EndAt,
			"formatted_display": formatTimeBlockDisplay(updated),
			"message":           fmt.Sprintf("Time block %q updated.", updated.Title),
		}, nil
	}
}

func searchTimeItemsHandler(blocks *TimeBlockStore, tasks *repo.TaskRepository) Handler {
	return func(ctx context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Query     string `json:"query"`
			DateRange string `json:"date_range"`
			ItemType  string `json:"item_type"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}
		if strings.TrimSpace(params.Query) == "" {
			return nil, apperr.NewValidation("query is required")
		}
		if params.DateRange == "" {
			params.DateRange = "all"
		}

		rangeStart, rangeEnd, err := dateRangeBounds(params.DateRange, "", "", time.Now().UTC())
		if err != nil {
			return nil, err
		}

		allTasks, err := tasks.List(ctx, "")
		if err != nil {
			return nil, err
		}

		items := collectTimeItems(blocks, allTasks, rangeStart, rangeEnd, params.ItemType, nil)

		queryLower := strings.ToLower(params.Query)
		var matched []timeItem
		for _, it := range items {
			if strings.Contains(strings.ToLower(it.Title), queryLower) ||
				strings.Contains(strings.ToLower(it.Description), queryLower) ||
				hasTagFold(it.Tags, params.Query) {
				matched = append(matched, it)
			}
		}

		return map[string]any{
			"success": true,
			"query":   params.Query,
			"items":   formatTimeItemsForAI(matched),
			"summary": fmt.Sprintf("Search results for %q (%d found):\n\n%s", params.Query, len(matched), formatTimeItemsSummary(matched)),
			"count":   len(matched),
		}, nil
	}
}

func quickScheduleHandler(blocks *TimeBlockStore) Handler {
	return func(_ context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Title           string `json:"title"`
			When            string `json:"when"`
			DurationMinutes int    `json:"duration_minutes"`
			Description     string `json:"description"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}
		if strings.TrimSpace(params.Title) == "" {
			return nil, apperr.NewValidation("title is required")
		}
		duration := params.DurationMinutes
		if duration <= 0 {
			duration = 60
		}

		startAt, err := parseQuickScheduleTime(params.When, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		endAt := startAt.Add(time.Duration(duration) * time.Minute)

		block := timeBlock{
			ID: uuid.NewString(), Title: params.Title, Description: params.Description,
			StartAt: startAt, EndAt: endAt,
		}
		blocks.put(block)

		return map[string]any{
			"success":           true,
			"id":                block.ID,
			"title":             block.Title,
			"start_at":          block.StartAt,
			"end_at":            block.EndAt,
			"formatted_display": formatTimeBlockDisplay(block),
			"message":           fmt.Sprintf("Scheduled %q.", block.Title),
		}, nil
	}
}

var quickScheduleTimes = map[string][2]int{
	"9am": {9, 0}, "10am": {10, 0}, "11am": {11, 0}, "12pm": {12, 0},
	"1pm": {13, 0}, "2pm": {14, 0}, "3pm": {15, 0}, "4pm": {16, 0},
	"5pm": {17, 0}, "6pm": {18, 0},
}

// parseQuickScheduleTime handles "today_9am", "tomorrow_2pm",
// "next_week_monday" (defaulting to 9am), and falls back to parsing when as
// an RFC3339 datetime.
func parseQuickScheduleTime(when string, now time.Time) (time.Time, error) {
	datePart, timePart, ok := strings.Cut(when, "_")
	if !ok {
		t, err := time.Parse(time.RFC3339, when)
		if err != nil {
			return time.Time{}, apperr.NewValidation("invalid 'when' value %q; use today_9am, tomorrow_2pm, next_week_monday, or an RFC3339 datetime", when)
		}
		return t, nil
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	var targetDate time.Time
	switch datePart {
	case "today":
		targetDate = today
	case "tomorrow":
		targetDate = today.AddDate(0, 0, 1)
	case "next":
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		daysUntilMonday := (7 - daysSinceMonday) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		targetDate = today.AddDate(0, 0, daysUntilMonday)
		timePart = strings.TrimPrefix(timePart, "week_monday")
		if timePart == "" {
			timePart = "9am"
		}
	default:
		t, err := time.Parse(time.RFC3339, when)
		if err != nil {
			return time.Time{}, apperr.NewValidation("invalid 'when' value %q; use today_9am, tomorrow_2pm, next_week_monday, or an RFC3339 datetime", when)
		}
		return t, nil
	}

	clock, ok := quickScheduleTimes[timePart]
	if !ok {
		return time.Time{}, apperr.NewValidation("invalid time %q; use one of 9am, 10am, 11am, 12pm, 1pm, 2pm, 3pm, 4pm, 5pm, 6pm", timePart)
	}
	return time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), clock[0], clock[1], 0, 0, time.UTC), nil
}

func formatTimeBlockDisplay(b timeBlock) string {
	return fmt.Sprintf("%s: %s to %s", b.Title, b.StartAt.Format("2006-01-02 15:04"), b.EndAt.Format("2006-01-02 15:04"))
}

func formatTimeItemsForAI(items []timeItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		entry := map[string]any{
			"id":          it.ID,
			"title":       it.Title,
			"description": it.Description,
			"type":        it.ItemType,
			"start_at":    it.StartAt,
			"tags":        it.Tags,
		}
		if it.EndAt != nil {
			entry["end_at"] = *it.EndAt
		}
		if it.Status != "" {
			entry["status"] = it.Status
		}
		if it.Priority != "" {
			entry["priority"] = it.Priority
		}
		out = append(out, entry)
	}
	return out
}

func formatTimeItemsSummary(items []timeItem) string {
	if len(items) == 0 {
		return "No time items found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d time item(s):\n\n", len(items))
	for _, it := range items {
		label := "time block"
		if it.ItemType == "deadline" {
			label = "deadline"
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", label, it.Title, it.StartAt.Format("2006-01-02 15:04"))
	}
	return b.String()
}
