package conference

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/example/conference-scheduler/internal/scheduler"
)

// EventKind tags the flavour of an event and with it the host cardinality.
type EventKind string

const (
	EventKindTalk  EventKind = "talk"
	EventKindParty EventKind = "party"
	EventKindPanel EventKind = "panel"
)

// ParseEventKind resolves an event kind name case-insensitively.
func ParseEventKind(value string) (EventKind, error) {
	switch k := EventKind(strings.ToLower(strings.TrimSpace(value))); k {
	case EventKindTalk, EventKindParty, EventKindPanel:
		return k, nil
	case "panel_discussion", "paneldiscussion":
		return EventKindPanel, nil
	default:
		return "", fmt.Errorf("%w: event kind %q", ErrInvalidKind, value)
	}
}

// HostPolicy constrains how many hosts an event may have.
type HostPolicy struct {
	Count int
	Exact bool
}

// Exactly requires n hosts.
func Exactly(n int) HostPolicy { return HostPolicy{Count: n, Exact: true} }

// AtLeast requires n or more hosts.
func AtLeast(n int) HostPolicy { return HostPolicy{Count: n} }

// Check reports whether n hosts satisfy the policy.
func (p HostPolicy) Check(n int) bool {
	if p.Exact {
		return n == p.Count
	}
	return n >= p.Count
}

func (p HostPolicy) String() string {
	if p.Exact {
		return fmt.Sprintf("exactly %d", p.Count)
	}
	return fmt.Sprintf("at least %d", p.Count)
}

// HostPolicy returns the host cardinality for the kind.
func (k EventKind) HostPolicy() HostPolicy {
	switch k {
	case EventKindTalk:
		return Exactly(1)
	case EventKindParty:
		return Exactly(0)
	case EventKindPanel:
		return AtLeast(2)
	default:
		return Exactly(0)
	}
}

// Event is a scheduled session occupying a room, its hosts and its attendees
// during a set of disjoint intervals.
type Event struct {
	ID               string
	Kind             EventKind
	Name             string
	Description      string
	Capacity         int
	Intervals        []scheduler.Interval
	RoomID           string
	OrganizerID      string
	HostIDs          []string
	AttendeeIDs      []string
	VIPOnly          bool
	RequiredFeatures []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasHost reports whether id hosts the event.
func (e *Event) HasHost(id string) bool {
	return slices.Contains(e.HostIDs, id)
}

// HasAttendee reports whether id attends the event.
func (e *Event) HasAttendee(id string) bool {
	return slices.Contains(e.AttendeeIDs, id)
}

// Full reports whether the roster has reached capacity.
func (e *Event) Full() bool {
	return len(e.AttendeeIDs) >= e.Capacity
}

// Occupies reports whether the event books id's time (room, host or attendee).
func (e *Event) Occupies(id string) bool {
	return e.RoomID == id || e.HasHost(id) || e.HasAttendee(id)
}

// References reports whether the event names id in any role.
func (e *Event) References(id string) bool {
	return e.OrganizerID == id || e.Occupies(id)
}

// RequiresSpecialist reports whether p must carry this event in its specialist set.
func (e *Event) RequiresSpecialist(p *Participant) bool {
	if !p.Kind.HasSpecialist() {
		return false
	}
	if e.OrganizerID == p.ID || e.HasHost(p.ID) {
		return true
	}
	return e.VIPOnly && p.IsVIP() && e.HasAttendee(p.ID)
}

// Start returns the start of the earliest interval.
func (e *Event) Start() time.Time {
	if len(e.Intervals) == 0 {
		return time.Time{}
	}
	return e.Intervals[0].Start
}

// End returns the end of the latest interval.
func (e *Event) End() time.Time {
	if len(e.Intervals) == 0 {
		return time.Time{}
	}
	return e.Intervals[len(e.Intervals)-1].End
}

// Started reports whether the first interval has begun at now.
func (e *Event) Started(now time.Time) bool {
	return !now.Before(e.Start())
}

// Expired reports whether the event is past at now. Expiry is measured from
// the earliest interval start, so an event in progress is already expired.
func (e *Event) Expired(now time.Time) bool {
	return e.Started(now)
}

// Booking exposes the event's placement for conflict detection.
func (e *Event) Booking() scheduler.Booking {
	people := make([]string, 0, len(e.HostIDs)+len(e.AttendeeIDs))
	people = append(people, e.HostIDs...)
	people = append(people, e.AttendeeIDs...)
	return scheduler.Booking{
		ID:           e.ID,
		Participants: people,
		RoomID:       e.RoomID,
		Intervals:    append([]scheduler.Interval(nil), e.Intervals...),
	}
}

// Clone returns a deep copy.
func (e *Event) Clone() *Event {
	out := *e
	out.Intervals = append([]scheduler.Interval(nil), e.Intervals...)
	out.HostIDs = append([]string(nil), e.HostIDs...)
	out.AttendeeIDs = append([]string(nil), e.AttendeeIDs...)
	out.RequiredFeatures = append([]string(nil), e.RequiredFeatures...)
	return &out
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
