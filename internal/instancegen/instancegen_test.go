package instancegen

import (
	"testing"
	"time"

	"github.com/antigravity-dev/cognicore/internal/rrule"
)

func mustParse(t *testing.T, s string) rrule.Rule {
	t.Helper()
	r, err := rrule.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", s, err)
	}
	return r
}

func utc(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestGenerateDailyInstances(t *testing.T) {
	rule := mustParse(t, "FREQ=DAILY;COUNT=5")
	start := utc(2025, time.January, 1)
	config := Config{HorizonDays: 10, MaxInstances: 100, StartDate: &start}

	instances, err := GenerateInstances("template_1", "Daily Task", rule, config)
	if err != nil {
		t.Fatalf("GenerateInstances() error = %v", err)
	}
	if len(instances) != 5 {
		t.Fatalf("len(instances) = %d, want 5", len(instances))
	}
	if instances[0].InstanceDate.Day() != 2 {
		t.Fatalf("instances[0].InstanceDate.Day() = %d, want 2", instances[0].InstanceDate.Day())
	}
	if instances[1].InstanceDate.Day() != 3 {
		t.Fatalf("instances[1].InstanceDate.Day() = %d, want 3", instances[1].InstanceDate.Day())
	}
	if instances[4].InstanceDate.Day() != 6 {
		t.Fatalf("instances[4].InstanceDate.Day() = %d, want 6", instances[4].InstanceDate.Day())
	}
}

func TestGenerateWeeklyInstances(t *testing.T) {
	rule := mustParse(t, "FREQ=WEEKLY;BYDAY=MO,WE,FR")
	start := utc(2025, time.January, 1) // Wednesday
	config := Config{HorizonDays: 14, MaxInstances: 10, StartDate: &start}

	instances, err := GenerateInstances("template_1", "Weekly Task", rule, config)
	if err != nil {
		t.Fatalf("GenerateInstances() error = %v", err)
	}
	if len(instances) < 3 {
		t.Fatalf("len(instances) = %d, want >= 3", len(instances))
	}
	for _, inst := range instances {
		wd := inst.InstanceDate.Weekday()
		if wd != time.Monday && wd != time.Wednesday && wd != time.Friday {
			t.Fatalf("instance weekday = %v, want Mon/Wed/Fri", wd)
		}
	}
}

func TestGenerateMonthlyByDay(t *testing.T) {
	rule := mustParse(t, "FREQ=MONTHLY;BYMONTHDAY=15")
	start := utc(2025, time.January, 1)
	config := Config{HorizonDays: 90, MaxInstances: 5, StartDate: &start}

	instances, err := GenerateInstances("template_1", "Monthly Task", rule, config)
	if err != nil {
		t.Fatalf("GenerateInstances() error = %v", err)
	}
	if len(instances) < 3 {
		t.Fatalf("len(instances) = %d, want >= 3", len(instances))
	}
	for _, inst := range instances {
		if inst.InstanceDate.Day() != 15 {
			t.Fatalf("instance day = %d, want 15", inst.InstanceDate.Day())
		}
	}
}

func TestGenerateMonthlyPositionalByDay(t *testing.T) {
	rule := mustParse(t, "FREQ=MONTHLY;BYDAY=1MO,-1FR")
	start := utc(2025, time.January, 1)
	config := Config{HorizonDays: 90, MaxInstances: 10, StartDate: &start}

	instances, err := GenerateInstances("template_1", "Monthly Positional", rule, config)
	if err != nil {
		t.Fatalf("GenerateInstances() error = %v", err)
	}
	if len(instances) < 4 {
		t.Fatalf("len(instances) = %d, want >= 4", len(instances))
	}

	first := instances[0].InstanceDate
	second := instances[1].InstanceDate
	if !sameDate(first, utc(2025, time.January, 6)) {
		t.Fatalf("instances[0] = %v, want 2025-01-06", first)
	}
	if !sameDate(second, utc(2025, time.January, 31)) {
		t.Fatalf("instances[1] = %v, want 2025-01-31", second)
	}

	var sawFeb3, sawFeb28 bool
	for _, inst := range instances {
		if inst.InstanceDate.Month() != time.February {
			continue
		}
		if sameDate(inst.InstanceDate, utc(2025, time.February, 3)) {
			sawFeb3 = true
		}
		if sameDate(inst.InstanceDate, utc(2025, time.February, 28)) {
			sawFeb28 = true
		}
	}
	if !sawFeb3 {
		t.Fatal("expected a February 3 instance (1st Monday)")
	}
	if !sawFeb28 {
		t.Fatal("expected a February 28 instance (last Friday)")
	}
}

func TestGenerateWithUntilLimit(t *testing.T) {
	rule := mustParse(t, "FREQ=DAILY;UNTIL=20250105T000000Z")
	start := utc(2025, time.January, 1)
	config := Config{HorizonDays: 30, MaxInstances: 100, StartDate: &start}

	instances, err := GenerateInstances("template_1", "Limited Task", rule, config)
	if err != nil {
		t.Fatalf("GenerateInstances() error = %v", err)
	}
	if len(instances) > 5 {
		t.Fatalf("len(instances) = %d, want <= 5", len(instances))
	}
	limit := utc(2025, time.January, 5)
	for _, inst := range instances {
		if inst.InstanceDate.After(limit) {
			t.Fatalf("instance date %v after limit %v", inst.InstanceDate, limit)
		}
	}
}

func TestCalculateNextOccurrenceDaily(t *testing.T) {
	rule := mustParse(t, "FREQ=DAILY;INTERVAL=2")
	from := utc(2025, time.January, 1)

	next, err := NextOccurrence(rule, from)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if next == nil {
		t.Fatal("NextOccurrence() = nil, want set")
	}
	if next.Day() != 3 {
		t.Fatalf("next.Day() = %d, want 3", next.Day())
	}
}

func TestCalculateNextOccurrenceWeekly(t *testing.T) {
	rule := mustParse(t, "FREQ=WEEKLY;BYDAY=FR")
	from := utc(2025, time.January, 1) // Wednesday

	next, err := NextOccurrence(rule, from)
	if err != nil {
		t.Fatalf("NextOccurrence() error = %v", err)
	}
	if next == nil {
		t.Fatal("NextOccurrence() = nil, want set")
	}
	if next.Weekday() != time.Friday {
		t.Fatalf("next.Weekday() = %v, want Friday", next.Weekday())
	}
	if next.Day() != 3 {
		t.Fatalf("next.Day() = %d, want 3", next.Day())
	}
}

func TestLastDayOfMonth(t *testing.T) {
	cases := []struct {
		year, month, want int
	}{
		{2025, 1, 31},
		{2025, 2, 28},
		{2024, 2, 29},
		{2025, 4, 30},
	}
	for _, c := range cases {
		if got := lastDayOfMonth(c.year, c.month); got != c.want {
			t.Errorf("lastDayOfMonth(%d, %d) = %d, want %d", c.year, c.month, got, c.want)
		}
	}
}

func TestDateWithMonthDayNegative(t *testing.T) {
	date := dateWithMonthDay(2025, 1, -1)
	if date == nil || date.Day() != 31 {
		t.Fatalf("dateWithMonthDay(2025, 1, -1) = %v, want day 31", date)
	}

	date = dateWithMonthDay(2025, 2, -2)
	if date == nil || date.Day() != 27 {
		t.Fatalf("dateWithMonthDay(2025, 2, -2) = %v, want day 27", date)
	}
}

func TestMonthlyWeekdayCandidatesFirstWeekday(t *testing.T) {
	candidates := monthlyWeekdayCandidates(2025, 1, []rrule.ByDayEntry{{Weekday: time.Monday, Position: 1}})
	if len(candidates) != 1 || candidates[0].Day() != 6 {
		t.Fatalf("first Monday candidates = %v, want [Jan 6]", candidates)
	}

	candidates = monthlyWeekdayCandidates(2025, 1, []rrule.ByDayEntry{{Weekday: time.Friday, Position: 1}})
	if len(candidates) != 1 || candidates[0].Day() != 3 {
		t.Fatalf("first Friday candidates = %v, want [Jan 3]", candidates)
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
