// Package ics serializes the client's event list to an iCalendar feed so
// a month can be imported into other calendar applications.
package ics

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/iQuickDev/legacy-calendar-client/internal/model"
)

const prodID = "-//legacy-calendar-client//EN"

// Export writes the given events as a VCALENDAR. Events without a start
// time are skipped; an event without an end time is exported with a
// one-hour default duration so importers render something sensible.
func Export(w io.Writer, events []model.Event) error {
	return ExportAt(w, events, time.Now())
}

// ExportAt is Export with an explicit timestamp used for DTSTAMP.
func ExportAt(w io.Writer, events []model.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, ev := range events {
		if !ev.HasStart() {
			continue
		}

		ve := cal.AddEvent(fmt.Sprintf("event-%d@legacy-calendar", ev.ID))
		ve.SetDtStampTime(now.UTC())
		ve.SetStartAt(ev.StartTime.UTC())
		if !ev.EndTime.IsZero() {
			ve.SetEndAt(ev.EndTime.UTC())
		} else {
			ve.SetEndAt(ev.StartTime.Add(time.Hour).UTC())
		}
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.Host != nil {
			ve.SetOrganizer(ev.Host.Username)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("serialize calendar: %w", err)
	}
	return nil
}

// ExportMonth writes only the events whose start falls within the month
// containing reference.
func ExportMonth(w io.Writer, events []model.Event, reference time.Time) error {
	loc := reference.Location()
	monthStart := time.Date(reference.Year(), reference.Month(), 1, 0, 0, 0, 0, loc)
	nextMonth := monthStart.AddDate(0, 1, 0)

	var inMonth []model.Event
	for _, ev := range events {
		if !ev.HasStart() {
			continue
		}
		start := ev.StartTime.In(loc)
		if !start.Before(monthStart) && start.Before(nextMonth) {
			inMonth = append(inMonth, ev)
		}
	}
	return Export(w, inMonth)
}
