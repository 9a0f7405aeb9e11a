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
)

// CalendarStore holds the external events a session has told the assistant
// about, so calendar tools can detect overlaps without depending on an
// external calendar integration.
type CalendarStore struct {
	mu     sync.RWMutex
	events map[string]domain.ExternalEvent
}

// NewCalendarStore builds an empty CalendarStore.
func NewCalendarStore() *CalendarStore {
	return &CalendarStore{events: make(map[string]domain.ExternalEvent)}
}

func (s *CalendarStore) list() []domain.ExternalEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ExternalEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	return out
}

func (s *CalendarStore) put(e domain.ExternalEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
}

func (s *CalendarStore) get(id string) (domain.ExternalEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	return e, ok
}

// RegisterCalendarTools wires get_calendar_events, create_calendar_event and
// update_calendar_event against store.
func RegisterCalendarTools(reg *Registry, store *CalendarStore) error {
	if err := reg.Register("get_calendar_events", "Retrieve calendar events for a specified date range",
		json.RawMessage(`{"type":"object","properties":{
			"start_date":{"type":"string","format":"date","description":"Start date in YYYY-MM-DD format (required)"},
			"end_date":{"type":"string","format":"date","description":"End date in YYYY-MM-DD format (required)"},
			"event_type":{"type":"string","description":"Filter by event type"}
		},"required":["start_date","end_date"]}`),
		getCalendarEventsHandler(store)); err != nil {
		return err
	}

	if err := reg.Register("create_calendar_event", "Create a new calendar event with the specified details",
		json.RawMessage(`{"type":"object","properties":{
			"title":{"type":"string","description":"The title of the event (required)"},
			"date":{"type":"string","format":"date","description":"Date of the event in YYYY-MM-DD format (required)"},
			"start_time":{"type":"string","format":"time","description":"Start time in HH:MM 24-hour format (required)"},
			"duration_minutes":{"type":"integer","description":"Duration of the event in minutes (required)"},
			"event_type":{"type":"string","description":"Type of event, e.g. meeting, focus, break"}
		},"required":["title","date","start_time","duration_minutes"]}`),
		createCalendarEventHandler(store)); err != nil {
		return err
	}

	if err := reg.Register("update_calendar_event", "Update an existing calendar event's fields",
		json.RawMessage(`{"type":"object","properties":{
			"event_id":{"type":"string","description":"The ID of the event to update (required)"},
			"title":{"type":"string","description":"New title for the event"},
			"date":{"type":"string","format":"date","description":"New date in YYYY-MM-DD format"},
			"start_time":{"type":"string","format":"time","description":"New start time in HH:MM 24-hour format"},
			"duration_minutes":{"type":"integer","description":"New duration in minutes"},
			"event_type":{"type":"string","description":"New event type"}
		},"required":["event_id"]}`),
		updateCalendarEventHandler(store)); err != nil {
		return err
	}
	return nil
}

func getCalendarEventsHandler(store *CalendarStore) Handler {
	return func(_ context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date"`
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		startDate, err := time.Parse("2006-01-02", params.StartDate)
		if err != nil {
			return nil, apperr.NewValidation("start_date %q is not YYYY-MM-DD", params.StartDate)
		}
		endDate, err := time.Parse("2006-01-02", params.EndDate)
		if err != nil {
			return nil, apperr.NewValidation("end_date %q is not YYYY-MM-DD", params.EndDate)
		}
		if endDate.Before(startDate) {
			return nil, apperr.NewValidation("end date must be on or after start date")
		}
		endOfRange := endDate.AddDate(0, 0, 1)

		var filtered []domain.ExternalEvent
		for _, e := range store.list() {
			if e.Start.Before(startDate) || !e.Start.Before(endOfRange) {
				continue
			}
			if params.EventType != "" && !strings.EqualFold(e.Type, params.EventType) {
				continue
			}
			filtered = append(filtered, e)
		}
		sortEventsByStart(filtered)

		return map[string]any{
			"success":    true,
			"message":    formatEventsSummary(filtered),
			"start_date": params.StartDate,
			"end_date":   params.EndDate,
			"count":      len(filtered),
			"events":     formatEventsForAI(filtered),
		}, nil
	}
}

func createCalendarEventHandler(store *CalendarStore) Handler {
	return func(_ context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			Title            string `json:"title"`
			Date             string `json:"date"`
			StartTime        string `json:"start_time"`
			DurationMinutes  int    `json:"duration_minutes"`
			EventType        string `json:"event_type"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}
		if params.DurationMinutes <= 0 {
			return nil, apperr.NewValidation("duration_minutes must be greater than 0")
		}

		startAt, err := combineDateTime(params.Date, params.StartTime)
		if err != nil {
			return nil, err
		}
		endAt := startAt.Add(time.Duration(params.DurationMinutes) * time.Minute)

		event := domain.ExternalEvent{ID: uuid.NewString(), Start: startAt, End: endAt, Type: params.EventType}
		conflicts := checkConflicts(startAt, endAt, store.list(), "")
		store.put(event)

		message := fmt.Sprintf("Calendar event created successfully.\n\nTitle: %s\nDate: %s\nTime: %s to %s\nDuration: %d minutes\nID: %s",
			params.Title, params.Date, startAt.Format("2006-01-02 15:04"), endAt.Format("2006-01-02 15:04"), params.DurationMinutes, event.ID)
		message = appendConflictNotes(message, conflicts)

		return map[string]any{
			"success":       true,
			"message":       message,
			"event":         formatEventForAI(event),
			"conflicts":     conflicts,
			"has_conflicts": len(conflicts) > 0,
		}, nil
	}
}

func updateCalendarEventHandler(store *CalendarStore) Handler {
	return func(_ context.Context, arguments json.RawMessage) (any, error) {
		var params struct {
			EventID         string  `json:"event_id"`
			Title           *string `json:"title"`
			Date            *string `json:"date"`
			StartTime       *string `json:"start_time"`
			DurationMinutes *int    `json:"duration_minutes"`
			EventType       *string `json:"event_type"`
		}
		if err := json.Unmarshal(arguments, &params); err != nil {
			return nil, apperr.NewValidation("failed to parse tool parameters: %v", err)
		}

		existing, ok := store.get(params.EventID)
		if !ok {
			return nil, apperr.NewValidation("event %q not found; check the event ID and try again", params.EventID)
		}

		updatedStart := existing.Start
		updatedEnd := existing.End
		duration := existing.End.Sub(existing.Start)

		switch {
		case params.Date != nil && params.StartTime != nil:
			start, err := combineDateTime(*params.Date, *params.StartTime)
			if err != nil {
				return nil, err
			}
			updatedStart = start
			if params.DurationMinutes != nil {
				if *params.DurationMinutes <= 0 {
					return nil, apperr.NewValidation("duration_minutes must be greater than 0")
				}
				duration = time.Duration(*params.DurationMinutes) * time.Minute
			}
			updatedEnd = updatedStart.Add(duration)
		case params.Date != nil:
			date, err := time.Parse("2006-01-02", *params.Date)
			if err != nil {
				return nil, apperr.NewValidation("date %q is not YYYY-MM-DD", *params.Date)
			}
			updatedStart = time.Date(date.Year(), date.Month(), date.Day(), existing.Start.Hour(), existing.Start.Minute(), 0, 0, existing.Start.Location())
			updatedEnd = updatedStart.Add(duration)
		case params.StartTime != nil:
			t, err := time.Parse("15:04", *params.StartTime)
			if err != nil {
				return nil, apperr.NewValidation("start_time %q is not HH:MM", *params.StartTime)
			}
			updatedStart = time.Date(existing.Start.Year(), existing.Start.Month(), existing.Start.Day(), t.Hour(), t.Minute(), 0, 0, existing.Start.Location())
			if params.DurationMinutes != nil {
				if *params.DurationMinutes <= 0 {
					return nil, apperr.NewValidation("duration_minutes must be greater than 0")
				}
				duration = time.Duration(*params.DurationMinutes) * time.Minute
			}
			updatedEnd = updatedStart.Add(duration)
		case params.DurationMinutes != nil:
			if *params.DurationMinutes <= 0 {
				return nil, apperr.NewValidation("duration_minutes must be greater than 0")
			}
			updatedEnd = updatedStart.Add(time.Duration(*params.DurationMinutes) * time.Minute)
		}

		eventType := existing.Type
		if params.EventType != nil {
			eventType = *params.EventType
		}

		updated := domain.ExternalEvent{ID: params.EventID, Start: updatedStart, End: updatedEnd, Type: eventType}
		conflicts := checkConflicts(updatedStart, updatedEnd, store.list(), params.EventID)
		store.put(updated)

		message := fmt.Sprintf("Calendar event updated successfully.\n\nTime: %s to %s\nID: %s",
			updatedStart.Format("2006-01-02 15:04"), updatedEnd.Format("2006-01-02 15:04"), params.EventID)
		if params.Title != nil {
			message = fmt.Sprintf("Calendar event updated successfully.\n\nTitle: %s\nTime: %s to %s\nID: %s",
				*params.Title, updatedStart.Format("2006-01-02 15:04"), updatedEnd.Format("2006-01-02 15:04"), params.EventID)
		}
		message = appendConflictNotes(message, conflicts)

		return map[string]any{
			"success":       true,
			"message":       message,
			"event":         formatEventForAI(updated),
			"conflicts":     conflicts,
			"has_conflicts": len(conflicts) > 0,
		}, nil
	}
}

func combineDateTime(dateStr, timeStr string) (time.Time, error) {
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return time.Time{}, apperr.NewValidation("date %q is not YYYY-MM-DD", dateStr)
	}
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		return time.Time{}, apperr.NewValidation("start_time %q is not HH:MM", timeStr)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func checkConflicts(newStart, newEnd time.Time, existing []domain.ExternalEvent, excludeID string) []string {
	var conflicts []string
	for _, e := range existing {
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		if newStart.Before(e.End) && newEnd.After(e.Start) {
			conflicts = append(conflicts, fmt.Sprintf("Conflicts with event %s (%s to %s)",
				e.ID, e.Start.Format("2006-01-02 15:04"), e.End.Format("2006-01-02 15:04")))
		}
	}
	return conflicts
}

func appendConflictNotes(message string, conflicts []string) string {
	if len(conflicts) == 0 {
		return message
	}
	message += "\n\nScheduling conflicts detected:\n"
	for _, c := range conflicts {
		message += "  - " + c + "\n"
	}
	return message
}

func sortEventsByStart(events []domain.ExternalEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].Start.Before(events[j-1].Start); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

func formatEventForAI(e domain.ExternalEvent) map[string]any {
	return map[string]any{
		"id":            e.ID,
		"start_at":      e.Start,
		"end_at":        e.End,
		"event_type":    e.Type,
		"start_display": e.Start.Format("2006-01-02 15:04"),
		"end_display":   e.End.Format("2006-01-02 15:04"),
	}
}

func formatEventsForAI(events []domain.ExternalEvent) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, e := range events {
		out = append(out, formatEventForAI(e))
	}
	return out
}

func formatEventsSummary(events []domain.ExternalEvent) string {
	if len(events) == 0 {
		return "No events found in the specified date range."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d event(s):\n\n", len(events))
	for i, e := range events {
		fmt.Fprintf(&b, "%d. Event ID: %s\n", i+1, e.ID)
		fmt.Fprintf(&b, "   Time: %s to %s\n", e.Start.Format("2006-01-02 15:04"), e.End.Format("2006-01-02 15:04"))
		if e.Type != "" {
			fmt.Fprintf(&b, "   Type: %s\n", e.Type)
		}
		b.WriteString("\n")
	}
	return b.String()
}
