package broadcast

import (
	"strconv"
	"strings"
	"time"

	"castline/internal/domain"
)

// windowOpen reports whether the campaign may send at the given instant.
// StartHour > EndHour describes an overnight window that wraps midnight.
func windowOpen(w *domain.OperatingWindow, now time.Time) bool {
	if w == nil {
		return true
	}
	h := now.Hour()
	if w.StartHour <= w.EndHour {
		return h >= w.StartHour && h < w.EndHour
	}
	return h >= w.StartHour || h < w.EndHour
}

// NextRun computes the next due time after a run that happened at now.
// One-shot campaigns return the empty string: no further runs.
func NextRun(s domain.Schedule, now time.Time) string {
	switch s.Type {
	case domain.ScheduleOnce:
		return ""
	case domain.ScheduleDaily:
		return formatRun(atClock(now.AddDate(0, 0, 1), s.Time))
	case domain.ScheduleWeekly:
		for offset := 1; offset <= 7; offset++ {
			candidate := now.AddDate(0, 0, offset)
			if weekdayScheduled(s.DaysOfWeek, candidate.Weekday()) {
				return formatRun(atClock(candidate, s.Time))
			}
		}
		// Unreachable for validated schedules; a full week ahead keeps a
		// malformed row from hot-looping.
		return formatRun(atClock(now.AddDate(0, 0, 7), s.Time))
	default:
		return ""
	}
}

// InitialRun computes the first due time for a freshly created or resumed
// campaign. Today's slot counts when it is still ahead of now; a missed
// one-shot slot becomes due immediately.
func InitialRun(s domain.Schedule, now time.Time) string {
	today := atClock(now, s.Time)
	switch s.Type {
	case domain.ScheduleOnce:
		if today.After(now) {
			return formatRun(today)
		}
		return formatRun(now)
	case domain.ScheduleDaily:
		if today.After(now) {
			return formatRun(today)
		}
		return formatRun(atClock(now.AddDate(0, 0, 1), s.Time))
	case domain.ScheduleWeekly:
		for offset := 0; offset <= 7; offset++ {
			candidate := atClock(now.AddDate(0, 0, offset), s.Time)
			if weekdayScheduled(s.DaysOfWeek, candidate.Weekday()) && candidate.After(now) {
				return formatRun(candidate)
			}
		}
		return formatRun(atClock(now.AddDate(0, 0, 7), s.Time))
	default:
		return ""
	}
}

func weekdayScheduled(days []int, wd time.Weekday) bool {
	for _, d := range days {
		if d == int(wd) {
			return true
		}
	}
	return false
}

// atClock pins day's date to the schedule's HH:MM. A malformed clock falls
// back to midnight; validation upstream makes that a non-case.
func atClock(day time.Time, clock string) time.Time {
	hour, minute := 0, 0
	if parts := strings.Split(clock, ":"); len(parts) == 2 {
		if h, err := strconv.Atoi(parts[0]); err == nil {
			hour = h
		}
		if m, err := strconv.Atoi(parts[1]); err == nil {
			minute = m
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func formatRun(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
