// Package calendar derives the month grid shown by the client: a fixed,
// Monday-aligned sequence of day cells covering the month of a reference
// date, with the known events bucketed into their start days.
package calendar

import (
	"time"

	"github.com/iQuickDev/legacy-calendar-client/internal/model"
)

// Day is one cell of the month grid. Days are derived values: they are
// rebuilt from the event list and the cursor on demand and never persisted.
type Day struct {
	Date           time.Time
	IsCurrentMonth bool
	IsToday        bool
	Events         []model.Event
}

// BuildGrid produces the day cells for the month containing reference.
// "Today" is evaluated against the wall clock at build time.
func BuildGrid(reference time.Time, events []model.Event) []Day {
	return BuildGridAt(reference, events, time.Now())
}

// BuildGridAt is BuildGrid with an explicit clock. The grid always spans
// whole weeks: it begins on the Monday on or before the first of the month
// and ends on the Sunday on or after the last, yielding 28, 35 or 42 cells.
// The function is pure; identical inputs yield an identical grid.
func BuildGridAt(reference time.Time, events []model.Event, now time.Time) []Day {
	loc := reference.Location()

	monthStart := time.Date(reference.Year(), reference.Month(), 1, 0, 0, 0, 0, loc)
	gridStart := monthStart.AddDate(0, 0, -mondayOffset(monthStart))

	monthEnd := monthStart.AddDate(0, 1, -1)
	gridEnd := monthEnd.AddDate(0, 0, 6-mondayOffset(monthEnd))

	today := truncateToDay(now.In(loc))

	days := make([]Day, 0, 42)
	for d := gridStart; !d.After(gridEnd); d = d.AddDate(0, 0, 1) {
		days = append(days, Day{
			Date:           d,
			IsCurrentMonth: d.Month() == monthStart.Month() && d.Year() == monthStart.Year(),
			IsToday:        d.Equal(today),
			Events:         eventsOn(d, events),
		})
	}
	return days
}

// EventsOn returns the events starting on the calendar day of date, in the
// original list order. Events without a start time never match; events
// spanning midnight are bucketed under their start day only.
func EventsOn(date time.Time, events []model.Event) []model.Event {
	return eventsOn(truncateToDay(date), events)
}

func eventsOn(day time.Time, events []model.Event) []model.Event {
	var matched []model.Event
	for _, ev := range events {
		if !ev.HasStart() {
			continue
		}
		start := truncateToDay(ev.StartTime.In(day.Location()))
		if start.Equal(day) {
			matched = append(matched, ev)
		}
	}
	return matched
}

// mondayOffset returns how many days t lies after the preceding Monday,
// i.e. 0 for Monday through 6 for Sunday. The week boundary is fixed to
// Monday and not locale-dependent.
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
