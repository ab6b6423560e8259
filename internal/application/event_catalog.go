package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// EventCatalog answers read-only questions about events.
type EventCatalog struct {
	coordinator *ScheduleCoordinator
	conflicts   *conflictCache
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventCatalog builds a catalog reading through coordinator.
func NewEventCatalog(coordinator *ScheduleCoordinator, now func() time.Time) *EventCatalog {
	return NewEventCatalogWithLogger(coordinator, now, nil)
}

// NewEventCatalogWithLogger builds a catalog with a specified logger.
func NewEventCatalogWithLogger(coordinator *ScheduleCoordinator, now func() time.Time, logger *slog.Logger) *EventCatalog {
	if now == nil {
		now = time.Now
	}
	return &EventCatalog{
		coordinator: coordinator,
		conflicts:   newConflictCache(time.Minute, 256, now),
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (c *EventCatalog) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, c.logger, "EventCatalog", operation, attrs...)
}

// Get returns one event.
func (c *EventCatalog) Get(ctx context.Context, eventID string) (event conference.Event, err error) {
	if c == nil || c.coordinator == nil {
		err = fmt.Errorf("EventCatalog is not configured")
		return
	}
	err = c.coordinator.read(func(st *conference.State) error {
		e, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		event = *e.Clone()
		return nil
	})
	return
}

// List returns the events matching filter ordered by first start.
func (c *EventCatalog) List(ctx context.Context, filter EventFilter) (events []conference.Event, err error) {
	if c == nil || c.coordinator == nil {
		err = fmt.Errorf("EventCatalog is not configured")
		return
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		vErr := &ValidationError{}
		vErr.add("to", "end must be after start")
		err = vErr
		return
	}

	var window *scheduler.Interval
	if filter.From != nil || filter.To != nil {
		iv := scheduler.Interval{Start: time.Time{}, End: time.Unix(1<<62, 0)}
		if filter.From != nil {
			iv.Start = *filter.From
		}
		if filter.To != nil {
			iv.End = *filter.To
		}
		window = &iv
	}

	err = c.coordinator.read(func(st *conference.State) error {
		for _, e := range st.Events() {
			if filter.RoomID != "" && e.RoomID != filter.RoomID {
				continue
			}
			if filter.OrganizerID != "" && e.OrganizerID != filter.OrganizerID {
				continue
			}
			if filter.Kind != "" && e.Kind != filter.Kind {
				continue
			}
			if filter.VIPOnly != nil && e.VIPOnly != *filter.VIPOnly {
				continue
			}
			if window != nil && !overlapsAny(e.Intervals, *window) {
				continue
			}
			events = append(events, *e.Clone())
		}
		return nil
	})
	return
}

// ByRoom lists the events held in a room.
func (c *EventCatalog) ByRoom(ctx context.Context, roomID string) ([]conference.Event, error) {
	if c == nil || c.coordinator == nil {
		return nil, fmt.Errorf("EventCatalog is not configured")
	}
	if err := c.coordinator.read(func(st *conference.State) error {
		_, err := requireRoom(st, roomID)
		return err
	}); err != nil {
		return nil, err
	}
	return c.List(ctx, EventFilter{RoomID: roomID})
}

// ByTimeRange lists the events with any interval overlapping [from, to).
func (c *EventCatalog) ByTimeRange(ctx context.Context, from, to time.Time) ([]conference.Event, error) {
	return c.List(ctx, EventFilter{From: &from, To: &to})
}

// ByKind lists the events of one kind.
func (c *EventCatalog) ByKind(ctx context.Context, kind string) ([]conference.Event, error) {
	parsed, err := conference.ParseEventKind(kind)
	if err != nil {
		vErr := &ValidationError{}
		vErr.add("kind", "kind must be talk, party or panel")
		return nil, vErr
	}
	return c.List(ctx, EventFilter{Kind: parsed})
}

// ForParticipant lists the events that name the participant in any role.
func (c *EventCatalog) ForParticipant(ctx context.Context, participantID string) (events []conference.Event, err error) {
	if c == nil || c.coordinator == nil {
		err = fmt.Errorf("EventCatalog is not configured")
		return
	}
	err = c.coordinator.read(func(st *conference.State) error {
		p, err := requireParticipant(st, participantID)
		if err != nil {
			return err
		}
		for _, e := range st.Events() {
			if e.References(p.ID) {
				events = append(events, *e.Clone())
			}
		}
		return nil
	})
	return
}

// AttendableFor lists the events the account could join right now: not yet
// started, not full, open to the account's VIP status, not already joined or
// hosted, and free in the account's schedule.
func (c *EventCatalog) AttendableFor(ctx context.Context, accountID string) (events []conference.Event, err error) {
	if c == nil || c.coordinator == nil {
		err = fmt.Errorf("EventCatalog is not configured")
		return
	}
	logger := c.loggerWith(ctx, "AttendableFor", "account_id", accountID)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to list attendable events", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "attendable events listed", "result_count", len(events))
	}()

	now := c.now()
	err = c.coordinator.read(func(st *conference.State) error {
		p, err := requireAccount(st, accountID)
		if err != nil {
			return err
		}
		for _, e := range st.Events() {
			switch {
			case e.Started(now), e.Full():
				continue
			case e.VIPOnly && !p.IsVIP():
				continue
			case e.HasAttendee(p.ID), e.HasHost(p.ID):
				continue
			case !p.IsFreeForAll(e.Intervals):
				continue
			}
			events = append(events, *e.Clone())
		}
		return nil
	})
	return
}

// Timeline splits events into upcoming and expired. With vipOnly set only
// VIP-only events are listed.
func (c *EventCatalog) Timeline(ctx context.Context, vipOnly bool) (Timeline, error) {
	if c == nil || c.coordinator == nil {
		return Timeline{}, fmt.Errorf("EventCatalog is not configured")
	}
	var filter EventFilter
	if vipOnly {
		filter.VIPOnly = &vipOnly
	}
	events, err := c.List(ctx, filter)
	if err != nil {
		return Timeline{}, err
	}
	now := c.now()
	var out Timeline
	for _, e := range events {
		if e.Expired(now) {
			out.Expired = append(out.Expired, e)
		} else {
			out.Upcoming = append(out.Upcoming, e)
		}
	}
	return out, nil
}

// Conflicts reports other events that share a room or a person with eventID
// and overlap it. A consistent graph never has any; the report exists for
// diagnostics after restoring external data.
func (c *EventCatalog) Conflicts(ctx context.Context, eventID string) (conflicts []scheduler.Conflict, err error) {
	if c == nil || c.coordinator == nil {
		err = fmt.Errorf("EventCatalog is not configured")
		return
	}

	key := conflictCacheKey(eventID, c.coordinator.Revision())
	if cached, ok := c.conflicts.Get(key); ok {
		return cached, nil
	}

	err = c.coordinator.read(func(st *conference.State) error {
		candidate, err := requireEvent(st, eventID)
		if err != nil {
			return err
		}
		events := st.Events()
		existing := make([]scheduler.Booking, 0, len(events))
		for _, e := range events {
			existing = append(existing, e.Booking())
		}
		conflicts = scheduler.DetectConflicts(existing, candidate.Booking())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		c.loggerWith(ctx, "Conflicts", "event_id", eventID).ErrorContext(ctx, "overlapping bookings detected", "conflict_count", len(conflicts))
	}
	c.conflicts.Store(key, conflicts)
	return conflicts, nil
}

func overlapsAny(intervals []scheduler.Interval, window scheduler.Interval) bool {
	for _, iv := range intervals {
		if iv.Overlaps(window) {
			return true
		}
	}
	return false
}
