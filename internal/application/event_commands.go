package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// Create books a new event into its room and registers it with the organizer.
// When params.HostIDs is set the hosts are assigned in the same step; a
// rejected host list leaves no event behind.
func (c *ScheduleCoordinator) Create(ctx context.Context, params CreateEventParams) (result CreateEventResult, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	input := params.Input

	logger := c.loggerWith(ctx, "Create",
		"room_id", input.RoomID,
		"organizer_id", input.OrganizerID,
	)
	defer func() {
		logOutcome(ctx, logger, err, "failed to create event", "event created", "event_id", result.Event.ID)
	}()

	kind, intervals, vErr := validateEventInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		organizer, err := requireAccount(st, input.OrganizerID)
		if err != nil {
			return err
		}
		if organizer.Kind != conference.KindOrganizer {
			return fmt.Errorf("%w: %s %s cannot organize events", ErrNotEligible, organizer.Kind, organizer.ID)
		}
		room, err := requireRoom(st, input.RoomID)
		if err != nil {
			return err
		}
		if input.Capacity > room.Room.Capacity {
			return fmt.Errorf("%w: event capacity %d exceeds room capacity %d", ErrCapacityExceeded, input.Capacity, room.Room.Capacity)
		}
		if !room.Room.Open(intervals, c.location) {
			return fmt.Errorf("%w: room %s", ErrOutsideOpenHours, room.ID)
		}
		if !room.IsFreeForAll(intervals) {
			return busyError(room, intervals)
		}

		id := c.idGenerator()
		if id == "" {
			return fmt.Errorf("event id generator returned an empty id")
		}
		if _, exists := st.Event(id); exists {
			return fmt.Errorf("%w: event %s", ErrAlreadyExists, id)
		}

		features := conference.NormalizeFeatures(input.RequiredFeatures)
		now := c.now()
		event := &conference.Event{
			ID:               id,
			Kind:             kind,
			Name:             strings.TrimSpace(input.Name),
			Description:      input.Description,
			Capacity:         input.Capacity,
			Intervals:        intervals,
			RoomID:           room.ID,
			OrganizerID:      organizer.ID,
			VIPOnly:          input.VIPOnly,
			RequiredFeatures: features,
			CreatedAt:        now,
			UpdatedAt:        now,
		}

		j.PutEvent(event)
		if err := j.Book(room, event.ID, intervals); err != nil {
			return mapDomainError(err)
		}
		j.Mark(organizer, event.ID)

		if len(params.HostIDs) > 0 {
			if err := c.assignHosts(st, j, event, params.HostIDs); err != nil {
				return err
			}
		}
		if err := verifyEvent(st, event.ID); err != nil {
			return err
		}

		result = CreateEventResult{
			Event:           *event.Clone(),
			MissingFeatures: room.Room.MissingFeatures(features),
		}
		return nil
	})
	if err != nil {
		result = CreateEventResult{}
		return
	}
	if len(result.MissingFeatures) > 0 {
		logger.WarnContext(ctx, "room lacks required features", "event_id", result.Event.ID, "missing", result.MissingFeatures)
	}
	return
}

// AssignHosts replaces the host list. Hosts that stay keep their bookings;
// new hosts must be speakers free for every interval of the event.
func (c *ScheduleCoordinator) AssignHosts(ctx context.Context, eventID string, hostIDs []string) (event conference.Event, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "AssignHosts", "event_id", eventID, "host_count", len(hostIDs))
	defer func() {
		logOutcome(ctx, logger, err, "failed to assign hosts", "hosts assigned", "hosts", event.HostIDs)
	}()

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		if err := c.assignHosts(st, j, e, hostIDs); err != nil {
			return err
		}
		if err := verifyEvent(st, e.ID); err != nil {
			return err
		}
		event = *e.Clone()
		return nil
	})
	return
}

func (c *ScheduleCoordinator) assignHosts(st *conference.State, j *conference.Journal, e *conference.Event, hostIDs []string) error {
	hosts := uniqueStrings(hostIDs)
	policy := e.Kind.HostPolicy()
	if !policy.Check(len(hosts)) {
		return fmt.Errorf("%w: %s requires %s hosts, got %d", ErrInvalidHostCount, e.Kind, policy, len(hosts))
	}

	incoming := make([]*conference.Participant, 0, len(hosts))
	keep := make(map[string]struct{}, len(hosts))
	for _, id := range hosts {
		p, err := requireAccount(st, id)
		if err != nil {
			return err
		}
		if p.Kind != conference.KindSpeaker {
			return fmt.Errorf("%w: %s %s cannot host events", ErrNotEligible, p.Kind, p.ID)
		}
		if e.HasAttendee(p.ID) {
			return fmt.Errorf("%w: speaker %s already attends event %s", ErrNotEligible, p.ID, e.ID)
		}
		keep[p.ID] = struct{}{}
		if e.HasHost(p.ID) {
			continue
		}
		if !p.IsFreeForAll(e.Intervals) {
			return busyError(p, e.Intervals)
		}
		incoming = append(incoming, p)
	}

	j.Touch(e)
	for _, id := range e.HostIDs {
		if _, ok := keep[id]; ok {
			continue
		}
		p, err := requireParticipant(st, id)
		if err != nil {
			return fmt.Errorf("%w: host %s vanished", ErrInvariantViolation, id)
		}
		if err := j.Release(p, e.ID, e.Intervals); err != nil {
			return mapDomainError(err)
		}
		e.HostIDs = hostsWithout(e.HostIDs, id)
		if !e.RequiresSpecialist(p) {
			j.Unmark(p, e.ID)
		}
	}
	for _, p := range incoming {
		if err := j.Book(p, e.ID, e.Intervals); err != nil {
			return mapDomainError(err)
		}
		j.Mark(p, e.ID)
	}
	e.HostIDs = hosts
	e.UpdatedAt = c.now()
	return nil
}

// Reschedule moves the event to a new interval set. Only time not already
// held by the event is checked against the room and the hosts; attendees who
// are busy in the new time leave the roster.
func (c *ScheduleCoordinator) Reschedule(ctx context.Context, eventID string, intervals []scheduler.Interval) (result RescheduleResult, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "Reschedule", "event_id", eventID, "interval_count", len(intervals))
	defer func() {
		logOutcome(ctx, logger, err, "failed to reschedule event", "event rescheduled", "dropped_attendees", result.DroppedAttendees)
	}()

	next, normErr := scheduler.Normalize(intervals)
	if normErr != nil {
		vErr := &ValidationError{}
		vErr.add("intervals", intervalMessage(normErr))
		err = vErr
		return
	}

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		if scheduler.SameSet(e.Intervals, next) {
			result = RescheduleResult{Event: *e.Clone()}
			return nil
		}
		room, err := requireRoom(st, e.RoomID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		if !room.Room.Open(next, c.location) {
			return fmt.Errorf("%w: room %s", ErrOutsideOpenHours, room.ID)
		}

		delta := scheduler.Subtract(next, e.Intervals)
		if !room.IsFreeForAll(delta) {
			return busyError(room, delta)
		}
		movers := []*conference.Participant{room}
		for _, id := range e.HostIDs {
			host, err := requireParticipant(st, id)
			if err != nil {
				return fmt.Errorf("%w: host %s vanished", ErrInvariantViolation, id)
			}
			if !host.IsFreeForAll(delta) {
				return busyError(host, delta)
			}
			movers = append(movers, host)
		}

		var kept []string
		var dropped []*conference.Participant
		for _, id := range e.AttendeeIDs {
			p, err := requireParticipant(st, id)
			if err != nil {
				return fmt.Errorf("%w: attendee %s vanished", ErrInvariantViolation, id)
			}
			if p.IsFreeForAll(delta) {
				kept = append(kept, id)
				movers = append(movers, p)
			} else {
				dropped = append(dropped, p)
			}
		}

		previous := e.Intervals
		j.Touch(e)
		for _, p := range movers {
			if err := j.Release(p, e.ID, previous); err != nil {
				return mapDomainError(err)
			}
			if err := j.Book(p, e.ID, next); err != nil {
				return mapDomainError(err)
			}
		}
		e.Intervals = next
		e.AttendeeIDs = kept
		e.UpdatedAt = c.now()
		for _, p := range dropped {
			if err := j.Release(p, e.ID, previous); err != nil {
				return mapDomainError(err)
			}
			if !e.RequiresSpecialist(p) {
				j.Unmark(p, e.ID)
			}
			result.DroppedAttendees = append(result.DroppedAttendees, p.ID)
		}
		if err := verifyEvent(st, e.ID); err != nil {
			return err
		}
		result.Event = *e.Clone()
		return nil
	})
	if err != nil {
		result = RescheduleResult{}
	}
	return
}

// Cancel removes the event and every booking and specialist entry it owns.
func (c *ScheduleCoordinator) Cancel(ctx context.Context, eventID string) (err error) {
	if c == nil {
		return fmt.Errorf("ScheduleCoordinator is nil")
	}
	logger := c.loggerWith(ctx, "Cancel", "event_id", eventID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to cancel event", "event cancelled")
	}()

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		for _, p := range st.ReferencedBy(e) {
			if e.Occupies(p.ID) {
				if err := j.Release(p, e.ID, e.Intervals); err != nil {
					return mapDomainError(err)
				}
			}
			j.Unmark(p, e.ID)
		}
		j.DeleteEvent(e.ID)
		return nil
	})
	return
}

// AddAttendee enrolls an account in the event.
func (c *ScheduleCoordinator) AddAttendee(ctx context.Context, eventID, accountID string) (event conference.Event, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "AddAttendee", "event_id", eventID, "account_id", accountID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to add attendee", "attendee added", "attendee_count", len(event.AttendeeIDs))
	}()

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		p, err := requireAccount(st, accountID)
		if err != nil {
			return err
		}
		if e.HasAttendee(p.ID) {
			return fmt.Errorf("%w: %s in %s", ErrAlreadyEnrolled, p.ID, e.ID)
		}
		if e.Full() {
			return fmt.Errorf("%w: event %s is full (%d)", ErrCapacityExceeded, e.ID, e.Capacity)
		}
		if e.VIPOnly && !p.IsVIP() {
			return fmt.Errorf("%w: event %s is VIP only", ErrNotEligible, e.ID)
		}
		if e.HasHost(p.ID) {
			return fmt.Errorf("%w: %s hosts event %s", ErrNotEligible, p.ID, e.ID)
		}
		if !p.IsFreeForAll(e.Intervals) {
			return busyError(p, e.Intervals)
		}

		j.Touch(e)
		if err := j.Book(p, e.ID, e.Intervals); err != nil {
			return mapDomainError(err)
		}
		e.AttendeeIDs = append(e.AttendeeIDs, p.ID)
		e.UpdatedAt = c.now()
		if e.RequiresSpecialist(p) {
			j.Mark(p, e.ID)
		}
		if err := verifyEvent(st, e.ID); err != nil {
			return err
		}
		event = *e.Clone()
		return nil
	})
	return
}

// RemoveAttendee takes an account off the roster and frees its time.
func (c *ScheduleCoordinator) RemoveAttendee(ctx context.Context, eventID, accountID string) (event conference.Event, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "RemoveAttendee", "event_id", eventID, "account_id", accountID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to remove attendee", "attendee removed", "attendee_count", len(event.AttendeeIDs))
	}()

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		p, err := requireParticipant(st, accountID)
		if err != nil {
			return err
		}
		if !e.HasAttendee(p.ID) {
			return fmt.Errorf("%w: %s does not attend %s", ErrNotFound, p.ID, e.ID)
		}
		if err := j.Release(p, e.ID, e.Intervals); err != nil {
			return mapDomainError(err)
		}
		j.DropAttendee(e, p.ID)
		if !e.RequiresSpecialist(p) {
			j.Unmark(p, e.ID)
		}
		if err := verifyEvent(st, e.ID); err != nil {
			return err
		}
		event = *e.Clone()
		return nil
	})
	return
}

// ChangeRoom moves the event to another room free for all of its intervals.
func (c *ScheduleCoordinator) ChangeRoom(ctx context.Context, eventID, roomID string) (event conference.Event, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "ChangeRoom", "event_id", eventID, "room_id", roomID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to change room", "room changed")
	}()

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		next, err := requireRoom(st, roomID)
		if err != nil {
			return err
		}
		if next.ID == e.RoomID {
			event = *e.Clone()
			return nil
		}
		if e.Capacity > next.Room.Capacity {
			return fmt.Errorf("%w: event capacity %d exceeds room capacity %d", ErrCapacityExceeded, e.Capacity, next.Room.Capacity)
		}
		if !next.Room.Open(e.Intervals, c.location) {
			return fmt.Errorf("%w: room %s", ErrOutsideOpenHours, next.ID)
		}
		if !next.IsFreeForAll(e.Intervals) {
			return busyError(next, e.Intervals)
		}
		previous, err := requireRoom(st, e.RoomID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}

		j.Touch(e)
		if err := j.Release(previous, e.ID, e.Intervals); err != nil {
			return mapDomainError(err)
		}
		if err := j.Book(next, e.ID, e.Intervals); err != nil {
			return mapDomainError(err)
		}
		e.RoomID = next.ID
		e.UpdatedAt = c.now()
		if err := verifyEvent(st, e.ID); err != nil {
			return err
		}
		event = *e.Clone()
		return nil
	})
	return
}

// SetCapacity changes the event capacity. Lowering it below the current
// roster size only blocks new sign-ups; nobody is removed.
func (c *ScheduleCoordinator) SetCapacity(ctx context.Context, eventID string, capacity int) (event conference.Event, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "SetCapacity", "event_id", eventID, "capacity", capacity)
	defer func() {
		logOutcome(ctx, logger, err, "failed to set capacity", "capacity updated")
	}()

	if capacity <= 0 {
		vErr := &ValidationError{}
		vErr.add("capacity", "capacity must be positive")
		err = vErr
		return
	}

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		room, err := requireRoom(st, e.RoomID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		if capacity > room.Room.Capacity {
			return fmt.Errorf("%w: event capacity %d exceeds room capacity %d", ErrCapacityExceeded, capacity, room.Room.Capacity)
		}
		j.Touch(e)
		e.Capacity = capacity
		e.UpdatedAt = c.now()
		event = *e.Clone()
		return nil
	})
	return
}

// SetVIP toggles whether only VIPs may sign up. Current attendees stay; VIP
// attendees gain or lose the specialist entry to match.
func (c *ScheduleCoordinator) SetVIP(ctx context.Context, eventID string, vipOnly bool) (event conference.Event, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "SetVIP", "event_id", eventID, "vip_only", vipOnly)
	defer func() {
		logOutcome(ctx, logger, err, "failed to set VIP flag", "VIP flag updated")
	}()

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		if e.VIPOnly == vipOnly {
			event = *e.Clone()
			return nil
		}
		j.Touch(e)
		e.VIPOnly = vipOnly
		e.UpdatedAt = c.now()
		for _, id := range e.AttendeeIDs {
			p, err := requireParticipant(st, id)
			if err != nil {
				return fmt.Errorf("%w: attendee %s vanished", ErrInvariantViolation, id)
			}
			if e.RequiresSpecialist(p) {
				j.Mark(p, e.ID)
			} else {
				j.Unmark(p, e.ID)
			}
		}
		if err := verifyEvent(st, e.ID); err != nil {
			return err
		}
		event = *e.Clone()
		return nil
	})
	return
}

// SetRequiredFeatures records the features the event needs and reports which
// of them its current room lacks.
func (c *ScheduleCoordinator) SetRequiredFeatures(ctx context.Context, eventID string, features []string) (result CreateEventResult, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "SetRequiredFeatures", "event_id", eventID)
	defer func() {
		logOutcome(ctx, logger, err, "failed to set required features", "required features updated", "missing", result.MissingFeatures)
	}()

	err = c.write(func(st *conference.State, j *conference.Journal) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		room, err := requireRoom(st, e.RoomID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		normalized := conference.NormalizeFeatures(features)
		j.Touch(e)
		e.RequiredFeatures = normalized
		e.UpdatedAt = c.now()
		result = CreateEventResult{Event: *e.Clone(), MissingFeatures: room.Room.MissingFeatures(normalized)}
		return nil
	})
	return
}

func validateEventInput(input EventInput) (conference.EventKind, []scheduler.Interval, *ValidationError) {
	vErr := &ValidationError{}

	kind, err := conference.ParseEventKind(input.Kind)
	if err != nil {
		vErr.add("kind", "kind must be talk, party or panel")
	}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	}
	if strings.TrimSpace(input.OrganizerID) == "" {
		vErr.add("organizer_id", "organizer is required")
	}
	if strings.TrimSpace(input.RoomID) == "" {
		vErr.add("room_id", "room is required")
	}
	intervals, err := scheduler.Normalize(input.Intervals)
	if err != nil {
		vErr.add("intervals", intervalMessage(err))
	}
	return kind, intervals, vErr
}

func intervalMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, scheduler.ErrEmptyIntervalSet):
		return "at least one interval is required"
	case errors.Is(err, scheduler.ErrOverlappingIntervals):
		return "intervals must not overlap"
	default:
		return "start must be before end"
	}
}

func hostsWithout(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
