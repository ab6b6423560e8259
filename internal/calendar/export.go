// Package calendar renders participant schedules as iCalendar feeds.
package calendar

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/conference"
)

const productID = "-//conference-scheduler//schedule export//EN"

// UIDDomain is appended to every VEVENT UID.
const UIDDomain = "conference"

// ExportParticipant renders one VEVENT per scheduled interval of view. events
// supplies descriptions and kinds; an item whose event is missing is still
// exported with the data the view carries. loc is advertised as the calendar's
// display timezone; times are always written in UTC.
func ExportParticipant(view application.ParticipantSchedule, events []conference.Event, loc *time.Location, stamp time.Time) string {
	if loc == nil {
		loc = time.UTC
	}
	byID := make(map[string]conference.Event, len(events))
	for _, e := range events {
		byID[e.ID] = e
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(calendarName(view))
	cal.SetXWRTimezone(loc.String())

	seen := make(map[string]int, len(events))
	for _, item := range view.Items {
		seen[item.EventID]++
		vevent := cal.AddEvent(UID(item.EventID, seen[item.EventID]))
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(item.Interval.Start)
		vevent.SetEndAt(item.Interval.End)
		vevent.SetSummary(item.EventName)
		vevent.SetLocation(item.RoomID)
		vevent.SetStatus(ical.ObjectStatusConfirmed)
		if item.Role != "" {
			vevent.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(item.Role))
		}
		if e, ok := byID[item.EventID]; ok {
			vevent.SetDescription(describe(e))
		}
	}
	return cal.Serialize()
}

// UID identifies the n-th interval (1-based) of an event.
func UID(eventID string, n int) string {
	return fmt.Sprintf("%s-%d@%s", eventID, n, UIDDomain)
}

func calendarName(view application.ParticipantSchedule) string {
	if view.DisplayName != "" {
		return view.DisplayName
	}
	return view.ParticipantID
}

func describe(e conference.Event) string {
	parts := []string{string(e.Kind)}
	if e.VIPOnly {
		parts = append(parts, "VIP only")
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	return strings.Join(parts, " | ")
}
