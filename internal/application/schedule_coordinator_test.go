package application

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

func TestScheduleCoordinator_RoomTalkSpeakerScenario(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))

	if talk.ID != "E1" {
		t.Fatalf("expected generated id E1, got %q", talk.ID)
	}
	for _, id := range []string{"hall", "spk1"} {
		if w.free(t, id, scheduler.Interval{Start: at(9, 30), End: at(9, 45)}) {
			t.Fatalf("expected %s to be busy during the talk", id)
		}
	}
	if !w.free(t, "org", span(9, 10)) {
		t.Fatalf("organizer time must not be booked")
	}
	if in, _ := w.coordinator.IsInSpecialist(w.ctx, "spk1", talk.ID); !in {
		t.Fatalf("expected host to carry the talk in its specialist set")
	}
	if in, _ := w.coordinator.IsInSpecialist(w.ctx, "org", talk.ID); !in {
		t.Fatalf("expected organizer to carry the talk in its specialist set")
	}

	before := w.coordinator.Snapshot(w.ctx)

	_, err := w.coordinator.Create(w.ctx, CreateEventParams{Input: EventInput{
		Kind: "talk", Name: "Overlap in hall", OrganizerID: "org", RoomID: "hall", Capacity: 5,
		Intervals: []scheduler.Interval{{Start: at(9, 30), End: at(10, 30)}},
	}})
	if !errors.Is(err, ErrIntervalConflict) {
		t.Fatalf("expected room conflict, got %v", err)
	}

	_, err = w.coordinator.Create(w.ctx, CreateEventParams{
		Input: EventInput{
			Kind: "talk", Name: "Speaker double booked", OrganizerID: "org", RoomID: "annex", Capacity: 2,
			Intervals: []scheduler.Interval{{Start: at(9, 30), End: at(10, 30)}},
		},
		HostIDs: []string{"spk1"},
	})
	if !errors.Is(err, ErrIntervalConflict) {
		t.Fatalf("expected speaker conflict, got %v", err)
	}

	w.assertUnchanged(t, before)
	w.assertConsistent(t)
}

func TestScheduleCoordinator_Create_Validates(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	_, err := w.coordinator.Create(w.ctx, CreateEventParams{Input: EventInput{
		Kind:      "concert",
		Capacity:  0,
		Intervals: []scheduler.Interval{{Start: at(10, 0), End: at(9, 0)}},
	}})

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, field := range []string{"kind", "name", "capacity", "organizer_id", "room_id", "intervals"} {
		if _, ok := vErr.FieldErrors[field]; !ok {
			t.Fatalf("expected %s validation error, got %v", field, vErr.FieldErrors)
		}
	}
}

func TestScheduleCoordinator_Create_BusinessRules(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input EventInput
		hosts []string
		want  error
	}{
		{
			name:  "speaker cannot organize",
			input: EventInput{Kind: "party", Name: "P", OrganizerID: "spk1", RoomID: "hall", Capacity: 3, Intervals: []scheduler.Interval{span(9, 10)}},
			want:  ErrNotEligible,
		},
		{
			name:  "unknown room",
			input: EventInput{Kind: "party", Name: "P", OrganizerID: "org", RoomID: "cellar", Capacity: 3, Intervals: []scheduler.Interval{span(9, 10)}},
			want:  ErrNotFound,
		},
		{
			name:  "capacity above room",
			input: EventInput{Kind: "party", Name: "P", OrganizerID: "org", RoomID: "annex", Capacity: 3, Intervals: []scheduler.Interval{span(9, 10)}},
			want:  ErrCapacityExceeded,
		},
		{
			name:  "outside open hours",
			input: EventInput{Kind: "party", Name: "P", OrganizerID: "org", RoomID: "annex", Capacity: 2, Intervals: []scheduler.Interval{span(16, 18)}},
			want:  ErrOutsideOpenHours,
		},
		{
			name:  "talk needs exactly one host",
			input: EventInput{Kind: "talk", Name: "T", OrganizerID: "org", RoomID: "hall", Capacity: 3, Intervals: []scheduler.Interval{span(9, 10)}},
			hosts: []string{"spk1", "spk2"},
			want:  ErrInvalidHostCount,
		},
		{
			name:  "attendee cannot host",
			input: EventInput{Kind: "talk", Name: "T", OrganizerID: "org", RoomID: "hall", Capacity: 3, Intervals: []scheduler.Interval{span(9, 10)}},
			hosts: []string{"att1"},
			want:  ErrNotEligible,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			w := newTestWorld(t)
			before := w.coordinator.Snapshot(w.ctx)
			revision := w.coordinator.Revision()

			_, err := w.coordinator.Create(w.ctx, CreateEventParams{Input: tc.input, HostIDs: tc.hosts})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			w.assertUnchanged(t, before)
			if w.coordinator.Revision() != revision {
				t.Fatalf("failed create must not bump the revision")
			}
		})
	}
}

func TestScheduleCoordinator_Create_ReportsMissingFeatures(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	result, err := w.coordinator.Create(w.ctx, CreateEventParams{Input: EventInput{
		Kind: "party", Name: "Demo night", OrganizerID: "org", RoomID: "hall", Capacity: 5,
		Intervals:        []scheduler.Interval{span(18, 20)},
		RequiredFeatures: []string{"projector", "Computers"},
	}})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !slices.Equal(result.MissingFeatures, []string{"Computers"}) {
		t.Fatalf("expected Computers to be reported missing, got %v", result.MissingFeatures)
	}
}

func TestScheduleCoordinator_CapacityOne(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 1, span(9, 10))

	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att1"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}
	_, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att2")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if !w.free(t, "att2", span(9, 10)) {
		t.Fatalf("rejected attendee must stay free")
	}

	_, err = w.coordinator.AddAttendee(w.ctx, talk.ID, "att1")
	if !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("expected already enrolled, got %v", err)
	}
	w.assertConsistent(t)
}

func TestScheduleCoordinator_AddAttendee_Rules(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))
	other := w.createTalk(t, "annex", "spk2", 2, span(9, 10))

	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "spk1"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected host to be rejected as attendee, got %v", err)
	}
	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "hall"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected room to be rejected as attendee, got %v", err)
	}
	if _, err := w.coordinator.AddAttendee(w.ctx, "missing", "att1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := w.coordinator.AddAttendee(w.ctx, other.ID, "att1"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}
	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att1"); !errors.Is(err, ErrIntervalConflict) {
		t.Fatalf("expected overlapping enrolment to conflict, got %v", err)
	}

	event, err := w.coordinator.RemoveAttendee(w.ctx, other.ID, "att1")
	if err != nil {
		t.Fatalf("RemoveAttendee returned error: %v", err)
	}
	if len(event.AttendeeIDs) != 0 {
		t.Fatalf("expected empty roster, got %v", event.AttendeeIDs)
	}
	if !w.free(t, "att1", span(9, 10)) {
		t.Fatalf("expected attendee time to be released")
	}
	if _, err := w.coordinator.RemoveAttendee(w.ctx, other.ID, "att1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for non-attendee, got %v", err)
	}
	w.assertConsistent(t)
}

func TestScheduleCoordinator_VIPOnly(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	result, err := w.coordinator.Create(w.ctx, CreateEventParams{Input: EventInput{
		Kind: "party", Name: "VIP lounge", OrganizerID: "org", RoomID: "hall", Capacity: 5,
		Intervals: []scheduler.Interval{span(20, 22)},
		VIPOnly:   true,
	}})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	id := result.Event.ID

	if _, err := w.coordinator.AddAttendee(w.ctx, id, "att1"); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected attendee to be rejected, got %v", err)
	}
	if _, err := w.coordinator.AddAttendee(w.ctx, id, "vip"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}
	if in, _ := w.coordinator.IsInSpecialist(w.ctx, "vip", id); !in {
		t.Fatalf("expected VIP attendee to carry the event in its specialist set")
	}

	if _, err := w.coordinator.SetVIP(w.ctx, id, false); err != nil {
		t.Fatalf("SetVIP returned error: %v", err)
	}
	if in, _ := w.coordinator.IsInSpecialist(w.ctx, "vip", id); in {
		t.Fatalf("expected specialist entry to be removed when the event opens up")
	}
	if _, err := w.coordinator.AddAttendee(w.ctx, id, "att1"); err != nil {
		t.Fatalf("expected attendee to join open event, got %v", err)
	}

	event, err := w.coordinator.SetVIP(w.ctx, id, true)
	if err != nil {
		t.Fatalf("SetVIP returned error: %v", err)
	}
	if !event.HasAttendee("att1") {
		t.Fatalf("existing attendees stay enrolled when the event turns VIP only")
	}
	if in, _ := w.coordinator.IsInSpecialist(w.ctx, "vip", id); !in {
		t.Fatalf("expected specialist entry to come back")
	}
	w.assertConsistent(t)
}

func TestScheduleCoordinator_Reschedule(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))
	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att1"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}
	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att2"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}
	party, err := w.coordinator.Create(w.ctx, CreateEventParams{Input: EventInput{
		Kind: "party", Name: "Coffee", OrganizerID: "org", RoomID: "annex", Capacity: 2,
		Intervals: []scheduler.Interval{span(11, 12)},
	}})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if _, err := w.coordinator.AddAttendee(w.ctx, party.Event.ID, "att2"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}

	result, err := w.coordinator.Reschedule(w.ctx, talk.ID, []scheduler.Interval{span(9, 10), span(11, 12)})
	if err != nil {
		t.Fatalf("Reschedule returned error: %v", err)
	}
	if !slices.Equal(result.DroppedAttendees, []string{"att2"}) {
		t.Fatalf("expected att2 to be dropped, got %v", result.DroppedAttendees)
	}
	if !w.free(t, "att2", span(9, 10)) {
		t.Fatalf("dropped attendee must lose the old booking")
	}
	for _, id := range []string{"hall", "spk1", "att1"} {
		if w.free(t, id, span(11, 12)) {
			t.Fatalf("expected %s to move with the event", id)
		}
	}
	w.assertConsistent(t)
}

func TestScheduleCoordinator_Reschedule_IsAtomic(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))
	w.createTalk(t, "annex", "spk1", 2, span(13, 14))
	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att1"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}

	before := w.coordinator.Snapshot(w.ctx)
	revision := w.coordinator.Revision()

	_, err := w.coordinator.Reschedule(w.ctx, talk.ID, []scheduler.Interval{span(13, 14)})
	if !errors.Is(err, ErrIntervalConflict) {
		t.Fatalf("expected host conflict, got %v", err)
	}
	w.assertUnchanged(t, before)
	if w.coordinator.Revision() != revision {
		t.Fatalf("failed reschedule must not bump the revision")
	}

	_, err = w.coordinator.Reschedule(w.ctx, talk.ID, []scheduler.Interval{span(9, 11), span(10, 12)})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for overlapping set, got %v", err)
	}
}

func TestScheduleCoordinator_RollsBackPartialCommit(t *testing.T) {
	t.Parallel()

	operations := map[string]func(w *testWorld, eventID string) error{
		"cancel": func(w *testWorld, eventID string) error {
			return w.coordinator.Cancel(w.ctx, eventID)
		},
		"reschedule": func(w *testWorld, eventID string) error {
			_, err := w.coordinator.Reschedule(w.ctx, eventID, []scheduler.Interval{span(11, 12)})
			return err
		},
	}
	for name, run := range operations {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			w := newTestWorld(t)
			talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))
			if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att1"); err != nil {
				t.Fatalf("AddAttendee returned error: %v", err)
			}
			// The attendee's index no longer matches the roster, so the commit
			// fails only after room and host were released.
			att, ok := w.coordinator.state.Participant("att1")
			if !ok {
				t.Fatalf("att1 missing")
			}
			if err := att.RemoveFromSchedule(talk.ID, talk.Intervals); err != nil {
				t.Fatalf("RemoveFromSchedule returned error: %v", err)
			}

			before := w.coordinator.Snapshot(w.ctx)
			revision := w.coordinator.Revision()

			err := run(w, talk.ID)
			if !errors.Is(err, ErrInvariantViolation) || !errors.Is(err, scheduler.ErrEntryNotFound) {
				t.Fatalf("expected invariant violation wrapping the missing entry, got %v", err)
			}
			w.assertUnchanged(t, before)
			if w.coordinator.Revision() != revision {
				t.Fatalf("rolled back change must not bump the revision")
			}
			for _, id := range []string{"hall", "spk1"} {
				if w.free(t, id, span(9, 10)) {
					t.Fatalf("expected %s to be booked again after rollback", id)
				}
			}
			if in, err := w.coordinator.IsInSpecialist(w.ctx, "spk1", talk.ID); err != nil || !in {
				t.Fatalf("expected host specialist entry to survive the rollback")
			}
		})
	}
}

func TestScheduleCoordinator_IsFree_RejectsEmptyIntervals(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	w.createTalk(t, "hall", "spk1", 5, span(9, 11))

	for name, iv := range map[string]scheduler.Interval{
		"zero width": {Start: at(10, 0), End: at(10, 0)},
		"inverted":   {Start: at(10, 30), End: at(10, 0)},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			free, err := w.coordinator.IsFree(w.ctx, "hall", iv)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || free {
				t.Fatalf("expected ValidationError, got free=%v err=%v", free, err)
			}
			if vErr.FieldErrors["intervals"] != "start must be before end" {
				t.Fatalf("unexpected field errors %v", vErr.FieldErrors)
			}
		})
	}

	free, err := w.coordinator.IsFreeForAll(w.ctx, "hall", []scheduler.Interval{span(11, 12), {Start: at(12, 0), End: at(12, 0)}})
	if err == nil || free {
		t.Fatalf("expected the whole interval list to be rejected, got free=%v err=%v", free, err)
	}
}

func TestScheduleCoordinator_AssignHosts(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	panel, err := w.coordinator.Create(w.ctx, CreateEventParams{
		Input: EventInput{
			Kind: "panel", Name: "Panel", OrganizerID: "org", RoomID: "hall", Capacity: 5,
			Intervals: []scheduler.Interval{span(14, 15)},
		},
		HostIDs: []string{"spk1", "spk2"},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	id := panel.Event.ID

	if _, err := w.coordinator.AssignHosts(w.ctx, id, []string{"spk1"}); !errors.Is(err, ErrInvalidHostCount) {
		t.Fatalf("expected host count error, got %v", err)
	}

	talk := w.createTalk(t, "annex", "", 2, span(9, 10))
	if _, err := w.coordinator.AssignHosts(w.ctx, talk.ID, []string{"spk2"}); err != nil {
		t.Fatalf("AssignHosts returned error: %v", err)
	}
	event, err := w.coordinator.AssignHosts(w.ctx, talk.ID, []string{"spk1"})
	if err != nil {
		t.Fatalf("AssignHosts returned error: %v", err)
	}
	if !slices.Equal(event.HostIDs, []string{"spk1"}) {
		t.Fatalf("expected spk1 to host, got %v", event.HostIDs)
	}
	if !w.free(t, "spk2", span(9, 10)) {
		t.Fatalf("replaced host must be released")
	}
	if in, _ := w.coordinator.IsInSpecialist(w.ctx, "spk2", talk.ID); in {
		t.Fatalf("replaced host must lose the specialist entry")
	}
	w.assertConsistent(t)
}

func TestScheduleCoordinator_ChangeRoom(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 2, span(9, 10))
	blocker := w.createTalk(t, "annex", "spk2", 2, span(9, 10))

	if _, err := w.coordinator.ChangeRoom(w.ctx, talk.ID, "annex"); !errors.Is(err, ErrIntervalConflict) {
		t.Fatalf("expected busy room conflict, got %v", err)
	}
	if err := w.coordinator.Cancel(w.ctx, blocker.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}

	event, err := w.coordinator.ChangeRoom(w.ctx, talk.ID, "annex")
	if err != nil {
		t.Fatalf("ChangeRoom returned error: %v", err)
	}
	if event.RoomID != "annex" {
		t.Fatalf("expected event in annex, got %s", event.RoomID)
	}
	if !w.free(t, "hall", span(9, 10)) || w.free(t, "annex", span(9, 10)) {
		t.Fatalf("expected booking to move from hall to annex")
	}
	w.assertConsistent(t)
}

func TestScheduleCoordinator_SetCapacity(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "annex", "spk1", 2, span(9, 10))
	for _, id := range []string{"att1", "att2"} {
		if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, id); err != nil {
			t.Fatalf("AddAttendee returned error: %v", err)
		}
	}

	if _, err := w.coordinator.SetCapacity(w.ctx, talk.ID, 3); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected room capacity limit, got %v", err)
	}
	event, err := w.coordinator.SetCapacity(w.ctx, talk.ID, 1)
	if err != nil {
		t.Fatalf("SetCapacity returned error: %v", err)
	}
	if len(event.AttendeeIDs) != 2 {
		t.Fatalf("lowering capacity must not evict attendees, got %v", event.AttendeeIDs)
	}
	var vErr *ValidationError
	if _, err := w.coordinator.SetCapacity(w.ctx, talk.ID, 0); !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestScheduleCoordinator_Cancel(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))
	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att1"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}

	if err := w.coordinator.Cancel(w.ctx, talk.ID); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	for _, id := range []string{"hall", "spk1", "att1"} {
		if !w.free(t, id, span(9, 10)) {
			t.Fatalf("expected %s to be free after cancel", id)
		}
	}
	for _, id := range []string{"spk1", "org"} {
		if in, _ := w.coordinator.IsInSpecialist(w.ctx, id, talk.ID); in {
			t.Fatalf("expected %s to lose the specialist entry", id)
		}
	}
	if err := w.coordinator.Cancel(w.ctx, talk.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second cancel, got %v", err)
	}
	w.assertConsistent(t)
}

func TestScheduleCoordinator_Schedule(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))

	view, err := w.coordinator.Schedule(w.ctx, "spk1")
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].EventID != talk.ID || view.Items[0].Role != "host" || view.Items[0].RoomID != "hall" {
		t.Fatalf("unexpected schedule view: %+v", view)
	}
	if view.Kind != conference.KindSpeaker || view.DisplayName != "sam" {
		t.Fatalf("unexpected participant header: %+v", view)
	}

	if _, err := w.coordinator.Schedule(w.ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestScheduleCoordinator_RestoreRoundTrip(t *testing.T) {
	t.Parallel()

	w := newTestWorld(t)
	talk := w.createTalk(t, "hall", "spk1", 5, span(9, 10))
	if _, err := w.coordinator.AddAttendee(w.ctx, talk.ID, "att1"); err != nil {
		t.Fatalf("AddAttendee returned error: %v", err)
	}
	snap := w.coordinator.Snapshot(w.ctx)

	restored := NewScheduleCoordinatorWithLogger(nil, nil, func() time.Time { return w.now }, time.UTC, discardLogger())
	report, err := restored.Restore(w.ctx, snap, conference.RestoreStrict)
	if err != nil {
		t.Fatalf("Restore returned error: %v", err)
	}
	if !report.Clean() {
		t.Fatalf("expected clean restore, got %v", report.Violations)
	}
	if free, _ := restored.IsFree(w.ctx, "att1", span(9, 10)); free {
		t.Fatalf("expected restored attendee to be busy")
	}
	if violations := restored.CheckInvariants(w.ctx); len(violations) > 0 {
		t.Fatalf("restored graph inconsistent: %v", violations)
	}
}
