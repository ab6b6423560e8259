package application

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

var conferenceDay = time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return conferenceDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func span(fromHour, toHour int) scheduler.Interval {
	return scheduler.Interval{Start: at(fromHour, 0), End: at(toHour, 0)}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%d", prefix, n)
	}
}

// testWorld is a small conference: two rooms, an organizer, two speakers,
// two attendees and a VIP. The clock starts the day before the events.
type testWorld struct {
	ctx         context.Context
	now         time.Time
	coordinator *ScheduleCoordinator
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	st := conference.NewState()
	mustAdd := func(p *conference.Participant) {
		if err := st.AddParticipant(p); err != nil {
			t.Fatalf("failed to add participant %s: %v", p.ID, err)
		}
	}
	mustAdd(conference.NewRoom("hall", conference.RoomSpec{Name: "Hall", Capacity: 10, Features: []string{"Projector"}}))
	mustAdd(conference.NewRoom("annex", conference.RoomSpec{
		Name:      "Annex",
		Capacity:  2,
		OpenHours: []conference.HourRange{{From: 9, To: 17}},
	}))
	mustAdd(conference.NewAccount("org", conference.KindOrganizer, "olga", ""))
	mustAdd(conference.NewAccount("spk1", conference.KindSpeaker, "sam", ""))
	mustAdd(conference.NewAccount("spk2", conference.KindSpeaker, "sue", ""))
	mustAdd(conference.NewAccount("att1", conference.KindAttendee, "ann", ""))
	mustAdd(conference.NewAccount("att2", conference.KindAttendee, "abe", ""))
	mustAdd(conference.NewAccount("vip", conference.KindVIP, "val", ""))

	w := &testWorld{ctx: context.Background(), now: conferenceDay.Add(-24 * time.Hour)}
	w.coordinator = NewScheduleCoordinatorWithLogger(st, sequentialIDs("E"), func() time.Time { return w.now }, time.UTC, discardLogger())
	return w
}

func (w *testWorld) createTalk(t *testing.T, room, host string, capacity int, intervals ...scheduler.Interval) conference.Event {
	t.Helper()
	params := CreateEventParams{Input: EventInput{
		Kind:        "talk",
		Name:        "Talk",
		OrganizerID: "org",
		RoomID:      room,
		Capacity:    capacity,
		Intervals:   intervals,
	}}
	if host != "" {
		params.HostIDs = []string{host}
	}
	result, err := w.coordinator.Create(w.ctx, params)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return result.Event
}

func (w *testWorld) free(t *testing.T, participantID string, iv scheduler.Interval) bool {
	t.Helper()
	free, err := w.coordinator.IsFree(w.ctx, participantID, iv)
	if err != nil {
		t.Fatalf("IsFree(%s) returned error: %v", participantID, err)
	}
	return free
}

func (w *testWorld) assertConsistent(t *testing.T) {
	t.Helper()
	if violations := w.coordinator.CheckInvariants(w.ctx); len(violations) > 0 {
		t.Fatalf("graph inconsistent: %v", violations)
	}
}

func (w *testWorld) assertUnchanged(t *testing.T, before conference.Snapshot) {
	t.Helper()
	after := w.coordinator.Snapshot(w.ctx)
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("expected state to be unchanged\nbefore: %+v\nafter:  %+v", before, after)
	}
}
