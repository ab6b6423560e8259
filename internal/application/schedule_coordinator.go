package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// ScheduleCoordinator owns the conference graph and serializes every change
// to it. Mutations validate against the whole graph first, then commit
// through a journal that is rolled back if any step fails.
type ScheduleCoordinator struct {
	mu       sync.RWMutex
	state    *conference.State
	revision uint64

	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	logger      *slog.Logger
}

// NewScheduleCoordinator wires a coordinator around state. A nil state starts an empty conference.
func NewScheduleCoordinator(state *conference.State, idGenerator func() string, now func() time.Time) *ScheduleCoordinator {
	return NewScheduleCoordinatorWithLogger(state, idGenerator, now, nil, nil)
}

// NewScheduleCoordinatorWithLogger wires a coordinator with an explicit
// timezone for room open hours and a logger.
func NewScheduleCoordinatorWithLogger(state *conference.State, idGenerator func() string, now func() time.Time, location *time.Location, logger *slog.Logger) *ScheduleCoordinator {
	if state == nil {
		state = conference.NewState()
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return &ScheduleCoordinator{
		state:       state,
		idGenerator: idGenerator,
		now:         now,
		location:    location,
		logger:      defaultLogger(logger),
	}
}

func (c *ScheduleCoordinator) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, c.logger, "ScheduleCoordinator", operation, attrs...)
}

// read runs fn under the shared lock.
func (c *ScheduleCoordinator) read(fn func(st *conference.State) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c.state)
}

// write runs fn under the exclusive lock. When fn fails every mutation it
// recorded in the journal is undone before the lock is released.
func (c *ScheduleCoordinator) write(fn func(st *conference.State, j *conference.Journal) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	j := conference.NewJournal(c.state)
	if err := fn(c.state, j); err != nil {
		j.Rollback()
		return err
	}
	if j.Len() > 0 {
		c.revision++
	}
	return nil
}

// Revision increases after every committed change.
func (c *ScheduleCoordinator) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.revision
}

// Location returns the timezone used to evaluate room open hours.
func (c *ScheduleCoordinator) Location() *time.Location {
	return c.location
}

// Snapshot returns a deep copy of the conference graph.
func (c *ScheduleCoordinator) Snapshot(ctx context.Context) conference.Snapshot {
	var snap conference.Snapshot
	_ = c.read(func(st *conference.State) error {
		snap = st.Snapshot(c.now())
		return nil
	})
	return snap
}

// Restore replaces the conference graph with one rebuilt from snap.
func (c *ScheduleCoordinator) Restore(ctx context.Context, snap conference.Snapshot, mode conference.RestoreMode) (report conference.RepairReport, err error) {
	if c == nil {
		err = fmt.Errorf("ScheduleCoordinator is nil")
		return
	}
	logger := c.loggerWith(ctx, "Restore",
		"participant_count", len(snap.Participants),
		"event_count", len(snap.Events),
	)
	defer func() {
		for _, v := range report.Violations {
			logger.WarnContext(ctx, "snapshot inconsistency", "participant_id", v.ParticipantID, "event_id", v.EventID, "problem", v.Problem, "repair", v.Repair)
		}
		logOutcome(ctx, logger, err, "failed to restore snapshot", "snapshot restored", "repairs", len(report.Violations))
	}()

	var restored *conference.State
	restored, report, err = conference.Restore(snap, mode)
	if err != nil {
		err = mapDomainError(err)
		return
	}

	c.mu.Lock()
	c.state = restored
	c.revision++
	c.mu.Unlock()
	return
}

// CheckInvariants verifies the whole graph and reports every inconsistency.
func (c *ScheduleCoordinator) CheckInvariants(ctx context.Context) []conference.Violation {
	var out []conference.Violation
	_ = c.read(func(st *conference.State) error {
		out = st.CheckInvariants()
		return nil
	})
	if len(out) > 0 {
		c.loggerWith(ctx, "CheckInvariants").ErrorContext(ctx, "conference graph inconsistent", "violations", len(out), "first", out[0].String())
	}
	return out
}

// IsFree reports whether the participant has nothing booked overlapping iv.
func (c *ScheduleCoordinator) IsFree(ctx context.Context, participantID string, iv scheduler.Interval) (bool, error) {
	return c.IsFreeForAll(ctx, participantID, []scheduler.Interval{iv})
}

// IsFreeForAll reports whether the participant is free for every interval.
// Empty or inverted intervals are rejected before the index is consulted.
func (c *ScheduleCoordinator) IsFreeForAll(ctx context.Context, participantID string, intervals []scheduler.Interval) (bool, error) {
	for _, iv := range intervals {
		if !iv.Valid() {
			vErr := &ValidationError{}
			vErr.add("intervals", intervalMessage(scheduler.ErrInvalidInterval))
			return false, vErr
		}
	}
	var free bool
	err := c.read(func(st *conference.State) error {
		p, err := requireParticipant(st, participantID)
		if err != nil {
			return err
		}
		free = p.IsFreeForAll(intervals)
		return nil
	})
	return free, err
}

// IsInSpecialist reports whether eventID is in the participant's specialist set.
func (c *ScheduleCoordinator) IsInSpecialist(ctx context.Context, participantID, eventID string) (bool, error) {
	var in bool
	err := c.read(func(st *conference.State) error {
		p, err := requireParticipant(st, participantID)
		if err != nil {
			return err
		}
		in = p.IsInSpecialist(eventID)
		return nil
	})
	return in, err
}

// IsVIP reports whether the participant may join VIP-only events.
func (c *ScheduleCoordinator) IsVIP(ctx context.Context, participantID string) (bool, error) {
	var vip bool
	err := c.read(func(st *conference.State) error {
		p, err := requireParticipant(st, participantID)
		if err != nil {
			return err
		}
		vip = p.IsVIP()
		return nil
	})
	return vip, err
}

// Schedule returns the participant's booked intervals with the events that hold them.
func (c *ScheduleCoordinator) Schedule(ctx context.Context, participantID string) (view ParticipantSchedule, err error) {
	err = c.read(func(st *conference.State) error {
		p, err := requireParticipant(st, participantID)
		if err != nil {
			return err
		}
		view = ParticipantSchedule{
			ParticipantID: p.ID,
			Kind:          p.Kind,
			DisplayName:   p.DisplayName(),
			Specialist:    p.Specialist(),
		}
		for _, entry := range p.Schedule() {
			item := ScheduleItem{EventID: entry.Occupant, Interval: entry.Interval}
			if e, ok := st.Event(entry.Occupant); ok {
				item.EventName = e.Name
				item.RoomID = e.RoomID
				item.Role = roleOf(e, p.ID)
			}
			view.Items = append(view.Items, item)
		}
		return nil
	})
	return
}

func roleOf(e *conference.Event, participantID string) string {
	switch {
	case e.RoomID == participantID:
		return "room"
	case e.HasHost(participantID):
		return "host"
	case e.HasAttendee(participantID):
		return "attendee"
	case e.OrganizerID == participantID:
		return "organizer"
	}
	return ""
}

func requireParticipant(st *conference.State, id string) (*conference.Participant, error) {
	p, ok := st.Participant(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("%w: participant %s", ErrNotFound, id)
	}
	return p, nil
}

func requireAccount(st *conference.State, id string) (*conference.Participant, error) {
	p, err := requireParticipant(st, id)
	if err != nil {
		return nil, err
	}
	if !p.Kind.IsAccount() {
		return nil, fmt.Errorf("%w: %s is a room, not an account", ErrNotEligible, id)
	}
	return p, nil
}

func requireRoom(st *conference.State, id string) (*conference.Participant, error) {
	p, ok := st.Participant(strings.TrimSpace(id))
	if !ok || p.Kind != conference.KindRoom {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, id)
	}
	return p, nil
}

func requireEvent(st *conference.State, id string) (*conference.Event, error) {
	e, ok := st.Event(strings.TrimSpace(id))
	if !ok {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, id)
	}
	return e, nil
}

// verifyEvent re-checks the references of a just-mutated event.
func verifyEvent(st *conference.State, eventID string) error {
	if violations := st.CheckEvent(eventID); len(violations) > 0 {
		return fmt.Errorf("%w: %s", ErrInvariantViolation, violations[0])
	}
	return nil
}

func busyError(p *conference.Participant, intervals []scheduler.Interval) error {
	return fmt.Errorf("%w: %s %s is busy with %s", ErrIntervalConflict, p.Kind, p.ID, strings.Join(p.BusyWith(intervals), ", "))
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
