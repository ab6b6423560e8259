package conference

import (
	"fmt"
	"sort"
	"strings"

	"github.com/example/conference-scheduler/internal/scheduler"
)

// Kind distinguishes the roles a participant can play.
type Kind string

const (
	KindAttendee  Kind = "attendee"
	KindSpeaker   Kind = "speaker"
	KindOrganizer Kind = "organizer"
	KindVIP       Kind = "vip"
	KindRoom      Kind = "room"
)

// ParseKind resolves a kind name case-insensitively.
func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindAttendee, KindSpeaker, KindOrganizer, KindVIP, KindRoom:
		return k, nil
	default:
		return "", fmt.Errorf("%w: participant kind %q", ErrInvalidKind, value)
	}
}

// IsVIP reports whether participants of this kind may join VIP-only events.
func (k Kind) IsVIP() bool {
	return k == KindVIP || k == KindOrganizer || k == KindSpeaker
}

// HasSpecialist reports whether this kind keeps a specialist set.
func (k Kind) HasSpecialist() bool {
	return k == KindSpeaker || k == KindOrganizer || k == KindVIP
}

// IsAccount reports whether the kind denotes a person rather than a room.
func (k Kind) IsAccount() bool {
	return k != KindRoom && k != ""
}

// Participant is anything whose time can be booked: a person or a room.
// Events reference participants by ID and vice versa.
type Participant struct {
	ID           string
	Kind         Kind
	Username     string
	PasswordHash string
	Room         *RoomSpec

	schedule   *scheduler.OverlapIndex
	specialist map[string]struct{}
}

// NewParticipant returns a participant with an empty schedule.
func NewParticipant(id string, kind Kind) *Participant {
	return &Participant{
		ID:         id,
		Kind:       kind,
		schedule:   scheduler.NewOverlapIndex(),
		specialist: make(map[string]struct{}),
	}
}

// NewRoom returns a room participant.
func NewRoom(id string, spec RoomSpec) *Participant {
	p := NewParticipant(id, KindRoom)
	spec.Features = NormalizeFeatures(spec.Features)
	p.Room = &spec
	return p
}

// NewAccount returns a person participant.
func NewAccount(id string, kind Kind, username, passwordHash string) *Participant {
	p := NewParticipant(id, kind)
	p.Username = username
	p.PasswordHash = passwordHash
	return p
}

// DisplayName returns the room name or the username.
func (p *Participant) DisplayName() string {
	if p.Room != nil {
		return p.Room.Name
	}
	return p.Username
}

// IsVIP reports whether the participant may join VIP-only events.
func (p *Participant) IsVIP() bool {
	return p.Kind.IsVIP()
}

// IsFree reports whether iv overlaps nothing in the participant's schedule.
func (p *Participant) IsFree(iv scheduler.Interval) bool {
	return p.schedule.IsFree(iv)
}

// IsFreeForAll reports whether every interval is free. It stops at the first busy one.
func (p *Participant) IsFreeForAll(intervals []scheduler.Interval) bool {
	for _, iv := range intervals {
		if !p.schedule.IsFree(iv) {
			return false
		}
	}
	return true
}

// BusyWith returns the ids of events occupying any of the intervals.
func (p *Participant) BusyWith(intervals []scheduler.Interval) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, iv := range intervals {
		for _, entry := range p.schedule.Conflicts(iv) {
			if _, ok := seen[entry.Occupant]; ok {
				continue
			}
			seen[entry.Occupant] = struct{}{}
			out = append(out, entry.Occupant)
		}
	}
	return out
}

// AddToSchedule books every interval for eventID. Either all intervals are
// booked or none are.
func (p *Participant) AddToSchedule(eventID string, intervals []scheduler.Interval) error {
	for i, iv := range intervals {
		if err := p.schedule.Insert(iv, eventID); err != nil {
			for _, done := range intervals[:i] {
				_ = p.schedule.Remove(done, eventID)
			}
			return fmt.Errorf("participant %s: %w", p.ID, err)
		}
	}
	return nil
}

// RemoveFromSchedule releases every interval held by eventID. Either all
// intervals are released or none are.
func (p *Participant) RemoveFromSchedule(eventID string, intervals []scheduler.Interval) error {
	for i, iv := range intervals {
		if err := p.schedule.Remove(iv, eventID); err != nil {
			for _, done := range intervals[:i] {
				_ = p.schedule.Insert(done, eventID)
			}
			return fmt.Errorf("participant %s: %w", p.ID, err)
		}
	}
	return nil
}

// AddToSpecialist records eventID in the specialist set and reports whether
// it was newly added. Kinds without a specialist set ignore the call.
func (p *Participant) AddToSpecialist(eventID string) bool {
	if !p.Kind.HasSpecialist() {
		return false
	}
	if _, ok := p.specialist[eventID]; ok {
		return false
	}
	p.specialist[eventID] = struct{}{}
	return true
}

// RemoveFromSpecialist drops eventID from the specialist set and reports
// whether it was present.
func (p *Participant) RemoveFromSpecialist(eventID string) bool {
	if _, ok := p.specialist[eventID]; !ok {
		return false
	}
	delete(p.specialist, eventID)
	return true
}

// IsInSpecialist reports whether eventID is in the specialist set.
func (p *Participant) IsInSpecialist(eventID string) bool {
	if !p.Kind.HasSpecialist() {
		return false
	}
	_, ok := p.specialist[eventID]
	return ok
}

// Schedule returns the participant's bookings ascending by start.
func (p *Participant) Schedule() []scheduler.Entry {
	return p.schedule.Entries()
}

// IntervalsFor returns the intervals booked for eventID.
func (p *Participant) IntervalsFor(eventID string) []scheduler.Interval {
	return p.schedule.IntervalsOf(eventID)
}

// ScheduledEvents returns the distinct event ids in the schedule.
func (p *Participant) ScheduledEvents() []string {
	return p.schedule.Occupants()
}

// Specialist returns the specialist set, sorted.
func (p *Participant) Specialist() []string {
	out := make([]string, 0, len(p.specialist))
	for id := range p.specialist {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ChangeKind switches a person between attendee and VIP. The specialist set
// is cleared when the new kind does not keep one.
func (p *Participant) ChangeKind(kind Kind) error {
	allowed := (p.Kind == KindAttendee && kind == KindVIP) || (p.Kind == KindVIP && kind == KindAttendee)
	if !allowed {
		return fmt.Errorf("%w: cannot change %s to %s", ErrInvalidKind, p.Kind, kind)
	}
	p.Kind = kind
	if !kind.HasSpecialist() {
		p.specialist = make(map[string]struct{})
	}
	return nil
}

// Clone returns a deep copy.
func (p *Participant) Clone() *Participant {
	out := *p
	out.Room = p.Room.clone()
	out.schedule = p.schedule.Clone()
	out.specialist = make(map[string]struct{}, len(p.specialist))
	for id := range p.specialist {
		out.specialist[id] = struct{}{}
	}
	return &out
}
