// Package rrule parses and serializes the RFC 5545 RRULE subset
// cognicore's recurring task templates rely on: FREQ, INTERVAL, COUNT,
// UNTIL, BYDAY (with optional ordinal position), BYMONTHDAY, and
// BYMONTH.
package rrule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antigravity-dev/cognicore/internal/apperr"
)

// Frequency is one of RRULE's four supported repetition bases.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

func parseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(s) {
	case "DAILY":
		return Daily, nil
	case "WEEKLY":
		return Weekly, nil
	case "MONTHLY":
		return Monthly, nil
	case "YEARLY":
		return Yearly, nil
	default:
		return "", apperr.NewValidation("invalid frequency: %s", s)
	}
}

// weekdayCodes maps time.Weekday to RRULE's two-letter day codes, and back.
var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func weekdayToCode(w time.Weekday) string { return weekdayCodes[int(w)] }

func codeToWeekday(code string) (time.Weekday, error) {
	for i, c := range weekdayCodes {
		if c == code {
			return time.Weekday(i), nil
		}
	}
	return 0, apperr.NewValidation("invalid weekday: %s", code)
}

// ByDayEntry is a BYDAY token: a weekday with an optional ordinal
// position (e.g. the "1" in "1MO", or the "-1" in "-1FR").
type ByDayEntry struct {
	Weekday  time.Weekday
	Position int // 0 means unset
}

func formatByDayEntry(e ByDayEntry) string {
	if e.Position == 0 {
		return weekdayToCode(e.Weekday)
	}
	return fmt.Sprintf("%d%s", e.Position, weekdayToCode(e.Weekday))
}

// Rule is a parsed recurrence rule.
type Rule struct {
	Freq        Frequency
	Interval    int // 0 means unset (treated as 1)
	Count       int // 0 means unset
	Until       *time.Time
	ByDay       []ByDayEntry
	ByMonthDay  []int
	ByMonth     []int
}

// New builds a bare rule with only a frequency set.
func New(freq Frequency) Rule {
	return Rule{Freq: freq}
}

// WithInterval sets INTERVAL, 1-999.
func (r Rule) WithInterval(interval int) (Rule, error) {
	if interval <= 0 || interval > 999 {
		return r, apperr.NewValidation("interval must be between 1 and 999")
	}
	r.Interval = interval
	return r, nil
}

// WithCount sets COUNT, 1-9999.
func (r Rule) WithCount(count int) (Rule, error) {
	if count <= 0 || count > 9999 {
		return r, apperr.NewValidation("count must be between 1 and 9999")
	}
	r.Count = count
	return r, nil
}

// WithUntil sets UNTIL.
func (r Rule) WithUntil(until time.Time) Rule {
	u := until.UTC()
	r.Until = &u
	return r
}

// WithByDay sets BYDAY, 1-31 entries, each position in [-53,53]\{0}.
func (r Rule) WithByDay(entries []ByDayEntry) (Rule, error) {
	if len(entries) == 0 {
		return r, apperr.NewValidation("byday cannot be empty")
	}
	if len(entries) > 31 {
		return r, apperr.NewValidation("byday cannot have more than 31 entries")
	}
	for _, e := range entries {
		if e.Position != 0 && (e.Position < -53 || e.Position > 53) {
			return r, apperr.NewValidation("byday position must be between -53 and 53, excluding 0")
		}
	}
	r.ByDay = entries
	return r, nil
}

// WithByMonthDay sets BYMONTHDAY, each value in [-31,31]\{0}.
func (r Rule) WithByMonthDay(days []int) (Rule, error) {
	if len(days) == 0 {
		return r, apperr.NewValidation("bymonthday cannot be empty")
	}
	for _, d := range days {
		if d == 0 || d < -31 || d > 31 {
			return r, apperr.NewValidation("bymonthday values must be between -31 and 31, excluding 0")
		}
	}
	r.ByMonthDay = days
	return r, nil
}

// WithByMonth sets BYMONTH, each value in [1,12].
func (r Rule) WithByMonth(months []int) (Rule, error) {
	if len(months) == 0 {
		return r, apperr.NewValidation("bymonth cannot be empty")
	}
	for _, m := range months {
		if m <= 0 || m > 12 {
			return r, apperr.NewValidation("bymonth values must be between 1 and 12")
		}
	}
	r.ByMonth = months
	return r, nil
}

// Validate checks cross-field and frequency-specific constraints a
// field-by-field With* call cannot see on its own.
func (r Rule) Validate() error {
	if r.Count != 0 && r.Until != nil {
		return apperr.NewValidation("cannot specify both count and until")
	}

	switch r.Freq {
	case Daily:
		if r.ByDay != nil || r.ByMonthDay != nil || r.ByMonth != nil {
			return apperr.NewValidation("daily frequency cannot use byday, bymonthday, or bymonth")
		}
	case Weekly:
		if r.ByMonthDay != nil || r.ByMonth != nil {
			return apperr.NewValidation("weekly frequency cannot use bymonthday or bymonth")
		}
		for _, e := range r.ByDay {
			if e.Position != 0 {
				return apperr.NewValidation("weekly frequency cannot use positional byday values")
			}
		}
	case Monthly:
		if r.ByDay != nil && r.ByMonthDay != nil {
			return apperr.NewValidation("monthly frequency cannot use both byday and bymonthday")
		}
		if r.ByMonth != nil {
			return apperr.NewValidation("monthly frequency cannot use bymonth")
		}
	case Yearly:
		// any combination of BY* rules is permitted
	}
	return nil
}

// Parse parses an RRULE string (an optional "RRULE:" prefix is
// stripped) into a validated Rule.
func Parse(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "RRULE:")
	if s == "" {
		return Rule{}, apperr.NewValidation("rrule string cannot be empty")
	}

	params := map[string]string{}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return Rule{}, apperr.NewValidation("invalid rrule format")
		}
		params[strings.ToUpper(key)] = value
	}

	freqStr, ok := params["FREQ"]
	if !ok {
		return Rule{}, apperr.NewValidation("freq parameter is required")
	}
	freq, err := parseFrequency(freqStr)
	if err != nil {
		return Rule{}, err
	}
	rule := New(freq)

	if v, ok := params["INTERVAL"]; ok {
		interval, err := strconv.Atoi(v)
		if err != nil {
			return Rule{}, apperr.NewValidation("invalid interval value")
		}
		if rule, err = rule.WithInterval(interval); err != nil {
			return Rule{}, err
		}
	}

	if v, ok := params["COUNT"]; ok {
		count, err := strconv.Atoi(v)
		if err != nil {
			return Rule{}, apperr.NewValidation("invalid count value")
		}
		if rule, err = rule.WithCount(count); err != nil {
			return Rule{}, err
		}
	}

	if v, ok := params["UNTIL"]; ok {
		until, err := parseUntil(v)
		if err != nil {
			return Rule{}, err
		}
		rule = rule.WithUntil(until)
	}

	if v, ok := params["BYDAY"]; ok {
		entries, err := parseByDay(v)
		if err != nil {
			return Rule{}, err
		}
		if rule, err = rule.WithByDay(entries); err != nil {
			return Rule{}, err
		}
	}

	if v, ok := params["BYMONTHDAY"]; ok {
		days, err := parseIntList(v, -31, 31, "month day")
		if err != nil {
			return Rule{}, err
		}
		if rule, err = rule.WithByMonthDay(days); err != nil {
			return Rule{}, err
		}
	}

	if v, ok := params["BYMONTH"]; ok {
		months, err := parseIntList(v, 1, 12, "month")
		if err != nil {
			return Rule{}, err
		}
		if rule, err = rule.WithByMonth(months); err != nil {
			return Rule{}, err
		}
	}

	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// String serializes a Rule back into RRULE text.
func (r Rule) String() string {
	parts := []string{fmt.Sprintf("FREQ=%s", r.Freq)}

	if r.Interval != 0 {
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", r.Interval))
	}
	if r.Count != 0 {
		parts = append(parts, fmt.Sprintf("COUNT=%d", r.Count))
	}
	if r.Until != nil {
		parts = append(parts, "UNTIL="+r.Until.Format("20060102T150405Z"))
	}
	if len(r.ByDay) > 0 {
		tokens := make([]string, len(r.ByDay))
		for i, e := range r.ByDay {
			tokens[i] = formatByDayEntry(e)
		}
		parts = append(parts, "BYDAY="+strings.Join(tokens, ","))
	}
	if len(r.ByMonthDay) > 0 {
		tokens := make([]string, len(r.ByMonthDay))
		for i, d := range r.ByMonthDay {
			tokens[i] = strconv.Itoa(d)
		}
		parts = append(parts, "BYMONTHDAY="+strings.Join(tokens, ","))
	}
	if len(r.ByMonth) > 0 {
		tokens := make([]string, len(r.ByMonth))
		for i, m := range r.ByMonth {
			tokens[i] = strconv.Itoa(m)
		}
		parts = append(parts, "BYMONTH="+strings.Join(tokens, ","))
	}

	return strings.Join(parts, ";")
}

func parseUntil(s string) (time.Time, error) {
	switch {
	case len(s) == 8:
		t, err := time.Parse("20060102", s)
		if err != nil {
			return time.Time{}, apperr.NewValidation("invalid until date")
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC), nil
	case len(s) == 16 && strings.HasSuffix(s, "Z"):
		t, err := time.Parse("20060102T150405Z", s)
		if err != nil {
			return time.Time{}, apperr.NewValidation("invalid until datetime")
		}
		return t.UTC(), nil
	default:
		return time.Time{}, apperr.NewValidation("until must be in YYYYMMDD or YYYYMMDDTHHMMSSZ format")
	}
}

func parseByDay(s string) ([]ByDayEntry, error) {
	var entries []ByDayEntry
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		token = strings.ToUpper(token)
		if len(token) < 2 {
			return nil, apperr.NewValidation("invalid byday entry: %s", token)
		}
		numberPart, weekdayPart := token[:len(token)-2], token[len(token)-2:]
		weekday, err := codeToWeekday(weekdayPart)
		if err != nil {
			return nil, err
		}

		var position int
		if numberPart != "" {
			position, err = strconv.Atoi(numberPart)
			if err != nil {
				return nil, apperr.NewValidation("invalid byday position: %s", token)
			}
			if position == 0 || position < -53 || position > 53 {
				return nil, apperr.NewValidation("byday position must be between -53 and 53, excluding 0")
			}
		}
		entries = append(entries, ByDayEntry{Weekday: weekday, Position: position})
	}
	if len(entries) == 0 {
		return nil, apperr.NewValidation("byday cannot be empty")
	}
	return entries, nil
}

func parseIntList(s string, min, max int, label string) ([]int, error) {
	var values []int
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		value, err := strconv.Atoi(token)
		if err != nil {
			return nil, apperr.NewValidation("invalid %s: %s", label, token)
		}
		if value == 0 || value < min || value > max {
			return nil, apperr.NewValidation("%s must be between %d and %d, excluding 0", label, min, max)
		}
		values = append(values, value)
	}
	return values, nil
}
