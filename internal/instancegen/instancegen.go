// Package instancegen materializes domain.TaskInstance rows from an
// rrule.Rule by walking forward from a start date and computing each
// next occurrence in turn, bounded by the rule's own COUNT/UNTIL and a
// caller-supplied generation horizon.
package instancegen

import (
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
	"github.com/antigravity-dev/cognicore/internal/rrule"
)

// Config bounds one generation run.
type Config struct {
	HorizonDays int // default 30
	MaxInstances int // default 1000
	StartDate   *time.Time // defaults to time.Now().UTC()
}

// DefaultConfig mirrors the defaults a caller gets by leaving Config zero.
func DefaultConfig() Config {
	return Config{HorizonDays: 30, MaxInstances: 1000}
}

// GenerateInstances walks rule forward from config.StartDate (or now)
// for config.HorizonDays, producing up to min(rule.Count, config.MaxInstances)
// TaskInstance rows for templateID/title.
func GenerateInstances(templateID, title string, rule rrule.Rule, config Config) ([]*domain.TaskInstance, error) {
	horizonDays := config.HorizonDays
	if horizonDays == 0 {
		horizonDays = 30
	}
	maxInstances := config.MaxInstances
	if maxInstances == 0 {
		maxInstances = 1000
	}

	startDate := time.Now().UTC()
	if config.StartDate != nil {
		startDate = config.StartDate.UTC()
	}
	endDate := startDate.AddDate(0, 0, horizonDays)

	maxCount := maxInstances
	if rule.Count != 0 && rule.Count < maxCount {
		maxCount = rule.Count
	}

	effectiveEnd := endDate
	if rule.Until != nil && rule.Until.Before(effectiveEnd) {
		effectiveEnd = *rule.Until
	}

	var instances []*domain.TaskInstance
	searchDate := startDate
	now := time.Now().UTC()

	for len(instances) < maxCount {
		next, err := NextOccurrence(rule, searchDate)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		if next.After(effectiveEnd) {
			break
		}

		instances = append(instances, &domain.TaskInstance{
			ID:           uuid.NewString(),
			TemplateID:   templateID,
			InstanceDate: *next,
			Title:        title,
			Status:       domain.StatusTodo,
			Priority:     domain.PriorityMedium,
			CreatedAt:    now,
			UpdatedAt:    now,
		})

		searchDate = next.Add(time.Second)
	}

	return instances, nil
}

// NextOccurrence computes the next time the rule fires strictly after fromDate.
func NextOccurrence(rule rrule.Rule, fromDate time.Time) (*time.Time, error) {
	switch rule.Freq {
	case rrule.Daily:
		return nextDailyOccurrence(rule, fromDate)
	case rrule.Weekly:
		return nextWeeklyOccurrence(rule, fromDate)
	case rrule.Monthly:
		return nextMonthlyOccurrence(rule, fromDate)
	case rrule.Yearly:
		return nextYearlyOccurrence(rule, fromDate)
	default:
		return nil, apperr.NewValidation("unsupported frequency: %s", rule.Freq)
	}
}

func interval(n int) int {
	if n == 0 {
		return 1
	}
	return n
}

func nextDailyOccurrence(rule rrule.Rule, fromDate time.Time) (*time.Time, error) {
	midnight := time.Date(fromDate.Year(), fromDate.Month(), fromDate.Day(), 0, 0, 0, 0, time.UTC)
	next := midnight.AddDate(0, 0, interval(rule.Interval))
	return &next, nil
}

// nextWeeklyOccurrence searches day by day (bounded to 52 weeks) for
// the next date on one of rule.ByDay's weekdays, honoring the interval
// by skipping whole weeks once a week boundary is crossed. With no
// ByDay constraint, the next occurrence is simply interval weeks out.
func nextWeeklyOccurrence(rule rrule.Rule, fromDate time.Time) (*time.Time, error) {
	step := interval(rule.Interval)

	if len(rule.ByDay) == 0 {
		next := fromDate.AddDate(0, 0, 7*step)
		return &next, nil
	}

	targets := make(map[time.Weekday]bool, len(rule.ByDay))
	for _, e := range rule.ByDay {
		targets[e.Weekday] = true
	}

	current := fromDate
	weeksAdded := 0
	limit := fromDate.AddDate(0, 0, 7*52)

	for {
		if targets[current.Weekday()] && current.After(fromDate) {
			return &current, nil
		}

		current = current.AddDate(0, 0, 1)

		if current.Weekday() == fromDate.Weekday() && current.After(fromDate) {
			weeksAdded++
			if weeksAdded < step {
				current = current.AddDate(0, 0, 7*(step-1))
			}
		}

		if current.After(limit) {
			return nil, nil
		}
	}
}

func nextMonthlyOccurrence(rule rrule.Rule, fromDate time.Time) (*time.Time, error) {
	step := interval(rule.Interval)

	switch {
	case len(rule.ByMonthDay) > 0:
		return findNextMonthlyByDay(fromDate, rule.ByMonthDay, step)
	case len(rule.ByDay) > 0:
		return findNextMonthlyByWeekday(fromDate, rule.ByDay, step)
	default:
		next := fromDate.AddDate(0, step, 0)
		return &next, nil
	}
}

func nextYearlyOccurrence(rule rrule.Rule, fromDate time.Time) (*time.Time, error) {
	step := interval(rule.Interval)
	targetYear := fromDate.Year() + step

	months := rule.ByMonth
	if len(months) == 0 {
		months = []int{int(fromDate.Month())}
	}
	days := rule.ByMonthDay
	if len(days) == 0 {
		days = []int{fromDate.Day()}
	}

	for _, month := range months {
		for _, day := range days {
			candidate := dateWithMonthDay(targetYear, month, day)
			if candidate != nil && candidate.After(fromDate) {
				return candidate, nil
			}
		}
	}
	return nil, nil
}

// findNextMonthlyByDay searches up to 24 months ahead (2 years) for the
// next date matching one of monthDays.
func findNextMonthlyByDay(fromDate time.Time, monthDays []int, step int) (*time.Time, error) {
	year, month := fromDate.Year(), int(fromDate.Month())

	for i := 0; i < 24; i++ {
		for _, day := range monthDays {
			if candidate := dateWithMonthDay(year, month, day); candidate != nil && candidate.After(fromDate) {
				return candidate, nil
			}
		}
		month += step
		for month > 12 {
			month -= 12
			year++
		}
	}
	return nil, nil
}

// findNextMonthlyByWeekday searches up to 60 months ahead (5 years)
// for the next date matching one of entries (e.g. "1st Monday", "last Friday").
func findNextMonthlyByWeekday(fromDate time.Time, entries []rrule.ByDayEntry, step int) (*time.Time, error) {
	year, month := fromDate.Year(), int(fromDate.Month())

	for i := 0; i < 60; i++ {
		candidates := monthlyWeekdayCandidates(year, month, entries)
		for _, candidate := range candidates {
			if candidate.After(fromDate) {
				c := candidate
				return &c, nil
			}
		}

		month += step
		for month > 12 {
			month -= 12
			year++
		}
	}
	return nil, nil
}

// monthlyWeekdayCandidates resolves each BYDAY entry (weekday + optional
// ordinal position, e.g. 1MO or -1FR) to the matching date(s) within
// year/month, sorted and deduplicated.
func monthlyWeekdayCandidates(year, month int, entries []rrule.ByDayEntry) []time.Time {
	lastDay := lastDayOfMonth(year, month)

	occurrences := map[time.Weekday][]time.Time{}
	for day := 1; day <= lastDay; day++ {
		date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		occurrences[date.Weekday()] = append(occurrences[date.Weekday()], date)
	}

	var candidates []time.Time
	for _, entry := range entries {
		dates := occurrences[entry.Weekday]
		if len(dates) == 0 {
			continue
		}
		if entry.Position == 0 {
			candidates = append(candidates, dates...)
			continue
		}
		idx := entry.Position - 1
		if entry.Position < 0 {
			idx = len(dates) + entry.Position
		}
		if idx < 0 || idx >= len(dates) {
			continue
		}
		candidates = append(candidates, dates[idx])
	}

	sortTimes(candidates)
	return dedupTimes(candidates)
}

func sortTimes(times []time.Time) {
	for i := 1; i < len(times); i++ {
		for j := i; j > 0 && times[j].Before(times[j-1]); j-- {
			times[j], times[j-1] = times[j-1], times[j]
		}
	}
}

func dedupTimes(times []time.Time) []time.Time {
	if len(times) == 0 {
		return times
	}
	out := times[:1]
	for _, t := range times[1:] {
		if !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

// dateWithMonthDay resolves a BYMONTHDAY value (positive counts from
// the 1st, negative counts back from the last day) to a concrete date,
// or nil if out of range for the month.
func dateWithMonthDay(year, month, day int) *time.Time {
	lastDay := lastDayOfMonth(year, month)
	target := day
	if day < 0 {
		target = lastDay + day + 1
	}
	if target < 1 || target > lastDay {
		return nil
	}
	date := time.Date(year, time.Month(month), target, 0, 0, 0, 0, time.UTC)
	return &date
}

func lastDayOfMonth(year, month int) int {
	firstOfNext := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1).Day()
}
