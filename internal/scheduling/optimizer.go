// Package scheduling turns a flat list of schedulable tasks into ranked,
// deterministic plan options: greedily packed time blocks across the
// caller's available windows, scored on lateness, conflicts, and focus-time
// alignment.
package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/cognicore/internal/apperr"
	"github.com/antigravity-dev/cognicore/internal/domain"
)

// SchedulableTask is one unit of work the optimizer may place into a block.
type SchedulableTask struct {
	ID               string
	Title            string
	DueAt            *time.Time
	EarliestStartAt  *time.Time
	EstimatedMinutes *int
	PriorityWeight   float64
	IsParallelizable bool
}

// TimeBlockCandidate is one scheduled interval produced for a plan option,
// before it has been persisted against a session/option id.
type TimeBlockCandidate struct {
	ID            string
	TaskID        string
	StartAt       time.Time
	EndAt         time.Time
	Flexibility   domain.Flexibility
	Confidence    float64
	ConflictFlags []domain.ConflictFlag
}

// PlanOption is one ranked, scored schedule candidate.
type PlanOption struct {
	ID         string
	Label      string
	Rank       int
	Score      float64
	IsFallback bool
	Blocks     []TimeBlockCandidate
	Rationale  []domain.RationaleStep
	Conflicts  []domain.Conflict
	RiskNotes  []string
}

type planVariant int

const (
	variantDeadlineFirst planVariant = iota
	variantPriorityFirst
	variantFocusAligned
)

func (v planVariant) label() string {
	switch v {
	case variantDeadlineFirst:
		return "Deadline first"
	case variantPriorityFirst:
		return "Priority first"
	case variantFocusAligned:
		return "Focus-aligned"
	default:
		return "Unknown"
	}
}

type parsedWindow struct {
	start time.Time
	end   time.Time
}

// Optimizer generates plan options with a fixed seed, so the same inputs
// always produce the same tie-breaking order and fallback window.
type Optimizer struct {
	seed uint64
}

// NewOptimizer builds an Optimizer. A nil seed defaults to 42.
func NewOptimizer(seed *uint64) *Optimizer {
	if seed == nil {
		return &Optimizer{seed: 42}
	}
	return &Optimizer{seed: *seed}
}

// GeneratePlanOptions builds DeadlineFirst and PriorityFirst variants,
// adding a FocusAligned variant when the preferences name a focus window,
// then ranks the results by score, highest first.
func (o *Optimizer) GeneratePlanOptions(tasks []SchedulableTask, constraints domain.ScheduleConstraints, preferences domain.SchedulingPreferences) ([]PlanOption, error) {
	if len(tasks) == 0 {
		return nil, apperr.NewValidation("no tasks available for planning")
	}

	windows, err := o.prepareWindows(tasks, constraints)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, apperr.NewValidation("no available time window found")
	}
	planningStart := windows[0].start

	variants := []planVariant{variantDeadlineFirst, variantPriorityFirst}
	if preferences.FocusStartMinute != nil || preferences.FocusEndMinute != nil {
		variants = append(variants, variantFocusAligned)
	}

	options := make([]PlanOption, 0, len(variants))
	for idx, variant := range variants {
		blocks, rationale, riskNotes, fallback, err := o.buildBlocksForVariant(tasks, variant, windows, planningStart, preferences)
		if err != nil {
			return nil, err
		}

		conflicts := DetectConflicts(blocks, constraints.ExistingEvents, constraints.MaxDailyFocusMinutes)

		score := o.scoreOption(blocks, tasks, preferences, conflicts)

		options = append(options, PlanOption{
			ID:         uuid.NewString(),
			Label:      variant.label(),
			Rank:       idx + 1,
			Score:      score,
			IsFallback: fallback,
			Blocks:     blocks,
			Rationale:  rationale,
			Conflicts:  conflicts,
			RiskNotes:  riskNotes,
		})
	}

	sort.SliceStable(options, func(i, j int) bool { return options[i].Score > options[j].Score })
	for idx := range options {
		options[idx].Rank = idx + 1
	}

	return options, nil
}

func (o *Optimizer) buildBlocksForVariant(
	tasks []SchedulableTask,
	variant planVariant,
	windows []parsedWindow,
	planningStart time.Time,
	preferences domain.SchedulingPreferences,
) ([]TimeBlockCandidate, []domain.RationaleStep, []string, bool, error) {
	ordered := o.orderTasks(tasks, variant)

	rationale := []domain.RationaleStep{{
		Step:    1,
		Thought: fmt.Sprintf("Ordered %d tasks using the %s strategy", len(ordered), variant.label()),
	}}

	var blocks []TimeBlockCandidate
	var riskNotes []string
	fallback := false
	bufferMinutes := preferences.BufferMinutes
	if bufferMinutes < 0 {
		bufferMinutes = 0
	}

	cursorWindowIdx := 0
	cursorTime := planningStart

	for _, task := range ordered {
		if task.EarliestStartAt != nil && cursorTime.Before(*task.EarliestStartAt) {
			cursorTime = *task.EarliestStartAt
		}

		remaining := 60
		if task.EstimatedMinutes != nil {
			remaining = *task.EstimatedMinutes
		}
		if remaining < 15 {
			remaining = 15
		}
		firstBlock := true

		for remaining > 0 {
			if cursorWindowIdx >= len(windows) {
				fallback = true
				break
			}

			current := windows[cursorWindowIdx]
			if !cursorTime.Before(current.end) {
				cursorWindowIdx++
				if cursorWindowIdx < len(windows) {
					cursorTime = windows[cursorWindowIdx].start
					continue
				}
				fallback = true
				break
			}

			alignedStart := clampTimeToWindow(cursorTime, current.start)
			availableMinutes := durationMinutes(alignedStart, current.end)

			if availableMinutes <= 0 {
				cursorWindowIdx++
				if cursorWindowIdx < len(windows) {
					cursorTime = windows[cursorWindowIdx].start
					continue
				}
				fallback = true
				break
			}

			blockMinutes := availableMinutes
			if remaining < blockMinutes {
				blockMinutes = remaining
			}
			endTime := addMinutes(alignedStart, blockMinutes)

			var flags []domain.ConflictFlag
			if !firstBlock {
				flags = append(flags, domain.ConflictSplitTask)
			}

			if task.DueAt != nil {
				due := *task.DueAt
				if endTime.After(due) {
					flags = append(flags, domain.ConflictDeadlineRisk)
					riskNotes = append(riskNotes, fmt.Sprintf(
						"Task %s is planned to finish past its due time of %s", task.Title, due.Format(time.RFC3339)))
				} else if due.Sub(endTime) < 30*time.Minute {
					riskNotes = append(riskNotes, fmt.Sprintf(
						"Task %s has only %d minutes of buffer before its due time", task.Title, int(due.Sub(endTime).Minutes())))
				}
			}

			if !preferences.PreferCompact && blockMinutes > 120 {
				flags = append(flags, domain.ConflictLongSession)
			}

			flexibility := domain.FlexibilityFixed
			if task.IsParallelizable {
				flexibility = domain.FlexibilityFlexible
			}

			blocks = append(blocks, TimeBlockCandidate{
				ID:            uuid.NewString(),
				TaskID:        task.ID,
				StartAt:       alignedStart,
				EndAt:         endTime,
				Flexibility:   flexibility,
				Confidence:    o.estimateConfidence(blockMinutes, preferences, flags),
				ConflictFlags: flags,
			})

			remaining -= blockMinutes
			cursorTime = addMinutes(endTime, bufferMinutes)
			firstBlock = false

			if remaining > 0 {
				rationale = append(rationale, domain.RationaleStep{
					Step:    len(rationale) + 1,
					Thought: fmt.Sprintf("Task %s needs to be split, %d minutes remaining", task.Title, remaining),
				})
			}
		}

		if remaining > 0 {
			riskNotes = append(riskNotes, fmt.Sprintf("Task %s could not be fully scheduled, %d minutes unplaced", task.Title, remaining))
			fallback = true
		}
	}

	rationale = append(rationale, domain.RationaleStep{
		Step:    len(rationale) + 1,
		Thought: "Finished generating time blocks",
		Result:  fmt.Sprintf("Produced %d time blocks", len(blocks)),
	})

	return blocks, rationale, riskNotes, fallback, nil
}

func (o *Optimizer) orderTasks(tasks []SchedulableTask, variant planVariant) []SchedulableTask {
	ordered := make([]SchedulableTask, len(tasks))
	copy(ordered, tasks)

	less := func(a, b SchedulableTask) bool {
		switch variant {
		case variantDeadlineFirst:
			if cmp := compareDatetimeOpt(a.DueAt, b.DueAt); cmp != 0 {
				return cmp < 0
			}
			return o.tieBreaker(a, b) < 0
		case variantPriorityFirst:
			if a.PriorityWeight != b.PriorityWeight {
				return a.PriorityWeight > b.PriorityWeight
			}
			if cmp := compareDatetimeOpt(a.DueAt, b.DueAt); cmp != 0 {
				return cmp < 0
			}
			return o.tieBreaker(a, b) < 0
		case variantFocusAligned:
			if cmp := compareDatetimeOpt(a.EarliestStartAt, b.EarliestStartAt); cmp != 0 {
				return cmp < 0
			}
			if cmp := compareDatetimeOpt(a.DueAt, b.DueAt); cmp != 0 {
				return cmp < 0
			}
			return o.tieBreaker(a, b) < 0
		default:
			return false
		}
	}

	sort.SliceStable(ordered, func(i, j int) bool { return less(ordered[i], ordered[j]) })
	return ordered
}

func (o *Optimizer) tieBreaker(a, b SchedulableTask) int {
	ah, bh := deterministicHash(a.ID, o.seed), deterministicHash(b.ID, o.seed)
	switch {
	case ah < bh:
		return -1
	case ah > bh:
		return 1
	default:
		return 0
	}
}

func (o *Optimizer) prepareWindows(tasks []SchedulableTask, constraints domain.ScheduleConstraints) ([]parsedWindow, error) {
	var windows []parsedWindow
	for _, w := range constraints.AvailabilityWindows {
		if err := ensureWindow(w.Start, w.End); err != nil {
			return nil, err
		}
		windows = append(windows, parsedWindow{start: w.Start, end: w.End})
	}

	if len(windows) == 0 {
		var fallbackStart time.Time
		switch {
		case constraints.PlanningStartAt != nil:
			fallbackStart = *constraints.PlanningStartAt
		default:
			if earliest := earliestTaskTime(tasks); earliest != nil {
				fallbackStart = *earliest
			} else {
				fallbackStart = currentFixedOffset(o.seed)
			}
		}

		fallbackEnd := fallbackStart.AddDate(0, 0, 3)
		if constraints.PlanningEndAt != nil {
			fallbackEnd = *constraints.PlanningEndAt
		}

		for dayStart := fallbackStart; dayStart.Before(fallbackEnd); dayStart = dayStart.AddDate(0, 0, 1) {
			windowStart := dateAt(dayStart, 9, 0)
			windowEnd := dateAt(dayStart, 18, 0)

			if err := ensureWindow(windowStart, windowEnd); err != nil {
				return nil, err
			}
			windows = append(windows, parsedWindow{start: windowStart, end: windowEnd})
		}
	}

	sort.SliceStable(windows, func(i, j int) bool { return windows[i].start.Before(windows[j].start) })
	return windows, nil
}

func (o *Optimizer) scoreOption(blocks []TimeBlockCandidate, tasks []SchedulableTask, preferences domain.SchedulingPreferences, conflicts []domain.Conflict) float64 {
	tasksByID := make(map[string]SchedulableTask, len(tasks))
	for _, t := range tasks {
		tasksByID[t.ID] = t
	}

	latenessPenalty := 0.0
	for _, block := range blocks {
		task, ok := tasksByID[block.TaskID]
		if !ok || task.DueAt == nil {
			continue
		}
		if block.EndAt.After(*task.DueAt) {
			lateMinutes := block.EndAt.Sub(*task.DueAt).Minutes()
			if lateMinutes > 0 {
				latenessPenalty += lateMinutes
			}
		}
	}

	conflictPenalty := 0.0
	for _, c := range conflicts {
		switch c.Severity {
		case domain.SeverityLow:
			conflictPenalty += 10.0
		case domain.SeverityMedium:
			conflictPenalty += 30.0
		case domain.SeverityHigh:
			conflictPenalty += 60.0
		}
	}

	focusBonus := 0.0
	if preferences.FocusStartMinute != nil && preferences.FocusEndMinute != nil {
		rangeStart, rangeEnd := *preferences.FocusStartMinute, *preferences.FocusEndMinute
		alignedMinutes, totalMinutes := 0.0, 0.0
		for _, block := range blocks {
			blockMinutes := block.EndAt.Sub(block.StartAt).Minutes()
			totalMinutes += blockMinutes

			startMinute := midnightMinutesOf(block.StartAt)
			endMinute := midnightMinutesOf(block.EndAt)
			alignedMinutes += float64(overlapInMinutes(startMinute, endMinute, rangeStart, rangeEnd))
		}
		if totalMinutes > 0 {
			focusBonus = (alignedMinutes / totalMinutes) * 80.0
		}
	}

	base := 100.0 - latenessPenalty*0.2 - conflictPenalty + focusBonus

	if preferences.PreferCompact {
		compactPenalty := 0.0
		for i := 0; i+1 < len(blocks); i++ {
			gap := blocks[i+1].StartAt.Sub(blocks[i].EndAt).Minutes()
			if gap < 0 {
				gap = -gap
			}
			compactPenalty += gap
		}
		base -= compactPenalty * 0.05
	}

	if base < 0 {
		return 0
	}
	return base
}

func (o *Optimizer) estimateConfidence(blockMinutes int, preferences domain.SchedulingPreferences, flags []domain.ConflictFlag) float64 {
	confidence := 0.85
	if blockMinutes > 120 {
		confidence -= 0.1
	}
	if preferences.BufferMinutes < 10 {
		confidence -= 0.05
	}
	for _, f := range flags {
		if f == domain.ConflictDeadlineRisk {
			confidence -= 0.2
			break
		}
	}
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// DetectConflicts flags overlaps with existing calendar events and days
// whose scheduled minutes exceed the caller's daily focus budget, most
// severe first.
func DetectConflicts(blocks []TimeBlockCandidate, existingEvents []domain.ExternalEvent, maxDailyMinutes *int) []domain.Conflict {
	var conflicts []domain.Conflict

	for _, block := range blocks {
		for _, event := range existingEvents {
			if overlaps(block.StartAt, block.EndAt, event.Start, event.End) {
				conflicts = append(conflicts, domain.Conflict{
					ConflictType:   string(domain.ConflictCalendarOverlap),
					Severity:       domain.SeverityHigh,
					Message:        fmt.Sprintf("Time block [%s - %s] conflicts with event %s", block.StartAt.Format(time.RFC3339), block.EndAt.Format(time.RFC3339), event.ID),
					RelatedBlockID: block.ID,
					RelatedEventID: event.ID,
				})
			}
		}
	}

	dayTotals := make(map[string]int)
	var days []string
	for _, block := range blocks {
		day := block.StartAt.Format("2006-01-02")
		if _, seen := dayTotals[day]; !seen {
			days = append(days, day)
		}
		dayTotals[day] += durationMinutes(block.StartAt, block.EndAt)
	}
	sort.Strings(days)

	if maxDailyMinutes != nil {
		for _, day := range days {
			minutes := dayTotals[day]
			if minutes > *maxDailyMinutes {
				conflicts = append(conflicts, domain.Conflict{
					ConflictType: string(domain.ConflictDailyOverload),
					Severity:     domain.SeverityMedium,
					Message:      fmt.Sprintf("%s has %d minutes scheduled, over the %d minute limit", day, minutes, *maxDailyMinutes),
				})
			}
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool { return severityRank(conflicts[i].Severity) < severityRank(conflicts[j].Severity) })
	return conflicts
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityHigh:
		return 0
	case domain.SeverityMedium:
		return 1
	default:
		return 2
	}
}

// compareDatetimeOpt orders two optional instants the way a missing due
// date or start time sorts after any present one: -1 if a<b, 1 if a>b,
// 0 if equal or both absent.
func compareDatetimeOpt(a, b *time.Time) int {
	switch {
	case a != nil && b != nil:
		switch {
		case a.Before(*b):
			return -1
		case a.After(*b):
			return 1
		default:
			return 0
		}
	case a != nil && b == nil:
		return -1
	case a == nil && b != nil:
		return 1
	default:
		return 0
	}
}

func earliestTaskTime(tasks []SchedulableTask) *time.Time {
	var earliest *time.Time
	for _, task := range tasks {
		if task.EarliestStartAt != nil {
			parsed := *task.EarliestStartAt
			if earliest == nil || parsed.Before(*earliest) {
				v := parsed
				earliest = &v
			}
		}
		if task.DueAt != nil {
			parsed := *task.DueAt
			if earliest == nil || parsed.Before(*earliest) {
				v := parsed.Add(-2 * time.Hour)
				earliest = &v
			}
		}
	}
	return earliest
}

// currentFixedOffset nudges the seconds field of "now" by the seed so plan
// generation stays deterministic within a test run without affecting any
// minute-level scheduling decision.
func currentFixedOffset(seed uint64) time.Time {
	adjustment := time.Duration(seed%60) * time.Second
	return time.Now().UTC().Add(adjustment)
}

func overlapInMinutes(start, end, rangeStart, rangeEnd int) int {
	if start >= rangeEnd || end <= rangeStart {
		return 0
	}
	effectiveStart, effectiveEnd := start, end
	if effectiveStart < rangeStart {
		effectiveStart = rangeStart
	}
	if effectiveEnd > rangeEnd {
		effectiveEnd = rangeEnd
	}
	if effectiveEnd < effectiveStart {
		return 0
	}
	return effectiveEnd - effectiveStart
}

func dateAt(day time.Time, hour, minute int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location())
}

func deterministicHash(value string, seed uint64) uint64 {
	hash := seed
	for i := 0; i < len(value); i++ {
		hash ^= uint64(value[i])
		hash *= 1099511628211
	}
	return hash
}

// The remaining helpers stand in for the wire-format time utilities a
// string-based implementation would need (parse/format/clamp/overlap);
// since blocks here carry time.Time end to end, only the pure time-math
// is needed.

func ensureWindow(start, end time.Time) error {
	if !start.Before(end) {
		return apperr.NewValidation("invalid time window: start %s is not before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

func clampTimeToWindow(cursor, windowStart time.Time) time.Time {
	if cursor.Before(windowStart) {
		return windowStart
	}
	return cursor
}

func durationMinutes(a, b time.Time) int {
	return int(b.Sub(a).Minutes())
}

func addMinutes(t time.Time, minutes int) time.Time {
	return t.Add(time.Duration(minutes) * time.Minute)
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

func midnightMinutesOf(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
