package conference

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/example/conference-scheduler/internal/scheduler"
)

// ScheduleEntry is one booked interval of a participant.
type ScheduleEntry struct {
	EventID string    `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// ParticipantRecord is the serializable form of a participant.
type ParticipantRecord struct {
	ID           string
	Kind         Kind
	Username     string
	PasswordHash string
	Room         *RoomSpec
	Schedule     []ScheduleEntry
	Specialist   []string
}

// Snapshot is a self-contained copy of the conference graph.
type Snapshot struct {
	TakenAt      time.Time
	Participants []ParticipantRecord
	Events       []Event
	Features     []string
}

// Snapshot copies the graph into its serializable form.
func (s *State) Snapshot(takenAt time.Time) Snapshot {
	snap := Snapshot{TakenAt: takenAt, Features: s.Features()}
	for _, p := range s.Participants() {
		record := ParticipantRecord{
			ID:           p.ID,
			Kind:         p.Kind,
			Username:     p.Username,
			PasswordHash: p.PasswordHash,
			Room:         p.Room.clone(),
			Specialist:   p.Specialist(),
		}
		for _, entry := range p.Schedule() {
			record.Schedule = append(record.Schedule, ScheduleEntry{
				EventID: entry.Occupant,
				Start:   entry.Interval.Start,
				End:     entry.Interval.End,
			})
		}
		snap.Participants = append(snap.Participants, record)
	}
	for _, e := range s.Events() {
		snap.Events = append(snap.Events, *e.Clone())
	}
	return snap
}

// Violation describes one inconsistency between events and participant
// schedules, and what was done about it when repairing.
type Violation struct {
	ParticipantID string
	EventID       string
	Problem       string
	Repair        string
}

func (v Violation) String() string {
	out := v.Problem
	if v.EventID != "" {
		out = fmt.Sprintf("event %s: %s", v.EventID, out)
	}
	if v.ParticipantID != "" {
		out = fmt.Sprintf("participant %s: %s", v.ParticipantID, out)
	}
	if v.Repair != "" {
		out += " (" + v.Repair + ")"
	}
	return out
}

// RepairReport lists the inconsistencies found while restoring.
type RepairReport struct {
	Violations []Violation
}

// Clean reports whether nothing had to be repaired.
func (r RepairReport) Clean() bool {
	return len(r.Violations) == 0
}

func (r *RepairReport) add(participantID, eventID, problem, repair string) {
	r.Violations = append(r.Violations, Violation{
		ParticipantID: participantID,
		EventID:       eventID,
		Problem:       problem,
		Repair:        repair,
	})
}

// RestoreMode selects how Restore treats inconsistent snapshots.
type RestoreMode int

const (
	// RestoreRepair drops orphaned references and re-books missing intervals.
	RestoreRepair RestoreMode = iota
	// RestoreStrict rejects any inconsistency.
	RestoreStrict
)

// Restore rebuilds a State from snap. Every schedule index is rebuilt by
// re-insertion, then the event/participant references are cross-checked.
func Restore(snap Snapshot, mode RestoreMode) (*State, RepairReport, error) {
	report := RepairReport{}
	st := &State{
		participants: make(map[string]*Participant),
		events:       make(map[string]*Event),
		usernames:    make(map[string]string),
		features:     make(map[string]string),
	}
	features := snap.Features
	if len(features) == 0 {
		features = DefaultFeatures
	}
	for _, f := range features {
		st.AddFeature(f)
	}

	for _, record := range snap.Participants {
		kind, err := ParseKind(string(record.Kind))
		if err != nil {
			report.add(record.ID, "", err.Error(), "participant dropped")
			continue
		}
		p := NewParticipant(record.ID, kind)
		p.Username = record.Username
		p.PasswordHash = record.PasswordHash
		if kind == KindRoom {
			spec := RoomSpec{}
			if record.Room != nil {
				spec = *record.Room.clone()
			}
			p.Room = &spec
		}
		if err := st.AddParticipant(p); err != nil {
			report.add(record.ID, "", err.Error(), "participant dropped")
		}
	}

	for i := range snap.Events {
		restoreEvent(st, snap.Events[i].Clone(), &report)
	}

	for _, record := range snap.Participants {
		p, ok := st.participants[record.ID]
		if !ok {
			continue
		}
		for _, entry := range record.Schedule {
			iv := scheduler.Interval{Start: entry.Start, End: entry.End}
			e, ok := st.events[entry.EventID]
			switch {
			case !ok:
				report.add(p.ID, entry.EventID, "schedule entry for unknown event", "entry dropped")
				continue
			case !e.Occupies(p.ID):
				report.add(p.ID, e.ID, "schedule entry for event that does not reference participant", "entry dropped")
				continue
			case !containsInterval(e.Intervals, iv):
				report.add(p.ID, e.ID, "schedule entry "+iv.String()+" not in event intervals", "entry dropped")
				continue
			}
			if err := p.schedule.Insert(iv, e.ID); err != nil {
				report.add(p.ID, e.ID, err.Error(), "entry dropped")
			}
		}
	}

	for _, e := range st.Events() {
		reconcileEvent(st, e, &report)
	}

	for _, record := range snap.Participants {
		p, ok := st.participants[record.ID]
		if !ok {
			continue
		}
		for _, id := range record.Specialist {
			e, ok := st.events[id]
			if !ok || !e.RequiresSpecialist(p) {
				report.add(p.ID, id, "unexpected specialist entry", "entry dropped")
				continue
			}
			p.AddToSpecialist(id)
		}
	}
	for _, e := range st.Events() {
		for _, p := range st.ReferencedBy(e) {
			if e.RequiresSpecialist(p) && !p.IsInSpecialist(e.ID) {
				report.add(p.ID, e.ID, "missing specialist entry", "entry added")
				p.AddToSpecialist(e.ID)
			}
		}
	}

	if mode == RestoreStrict && !report.Clean() {
		return nil, report, fmt.Errorf("%w: %d inconsistencies, first: %s", ErrInvariantViolation, len(report.Violations), report.Violations[0])
	}
	return st, report, nil
}

func restoreEvent(st *State, e *Event, report *RepairReport) {
	if _, dup := st.events[e.ID]; dup || e.ID == "" {
		report.add("", e.ID, "duplicate or empty event id", "event dropped")
		return
	}
	intervals, err := scheduler.Normalize(e.Intervals)
	if err != nil {
		report.add("", e.ID, err.Error(), "event dropped")
		return
	}
	e.Intervals = intervals

	if room, ok := st.participants[e.RoomID]; !ok || room.Kind != KindRoom {
		report.add(e.RoomID, e.ID, "event room is missing", "event dropped")
		return
	}
	if organizer, ok := st.participants[e.OrganizerID]; !ok || !organizer.Kind.IsAccount() {
		report.add(e.OrganizerID, e.ID, "event organizer is missing", "event dropped")
		return
	}

	e.HostIDs = keepAccounts(st, e, e.HostIDs, "host", report)
	e.AttendeeIDs = keepAccounts(st, e, e.AttendeeIDs, "attendee", report)
	st.events[e.ID] = e
}

func keepAccounts(st *State, e *Event, ids []string, role string, report *RepairReport) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			report.add(id, e.ID, "duplicate "+role, role+" de-duplicated")
			continue
		}
		seen[id] = struct{}{}
		if p, ok := st.participants[id]; !ok || !p.Kind.IsAccount() {
			report.add(id, e.ID, role+" is missing", role+" dropped")
			continue
		}
		out = append(out, id)
	}
	return out
}

// reconcileEvent makes every occupant hold exactly the event's intervals,
// booking what is missing. An occupant that cannot be booked leaves the
// roster; a room that cannot be booked takes the event down with it.
func reconcileEvent(st *State, e *Event, report *RepairReport) {
	occupants := append([]string{e.RoomID}, e.HostIDs...)
	occupants = append(occupants, e.AttendeeIDs...)
	for _, id := range occupants {
		p := st.participants[id]
		held := p.IntervalsFor(e.ID)
		if scheduler.SameSet(held, e.Intervals) {
			continue
		}
		missing := make([]scheduler.Interval, 0, len(e.Intervals))
		for _, iv := range e.Intervals {
			if !containsInterval(held, iv) {
				missing = append(missing, iv)
			}
		}
		if err := p.AddToSchedule(e.ID, missing); err == nil {
			report.add(id, e.ID, "schedule missing event intervals", "intervals booked")
			continue
		}
		if id == e.RoomID {
			report.add(id, e.ID, "room cannot hold event intervals", "event dropped")
			dropEvent(st, e)
			return
		}
		_ = p.RemoveFromSchedule(e.ID, held)
		e.HostIDs = removeID(e.HostIDs, id)
		e.AttendeeIDs = removeID(e.AttendeeIDs, id)
		report.add(id, e.ID, "participant cannot hold event intervals", "removed from event")
	}
}

func dropEvent(st *State, e *Event) {
	for _, p := range st.ReferencedBy(e) {
		_ = p.RemoveFromSchedule(e.ID, p.IntervalsFor(e.ID))
		p.RemoveFromSpecialist(e.ID)
	}
	delete(st.events, e.ID)
}

// ReferencedBy returns the distinct existing participants e names in any role.
func (s *State) ReferencedBy(e *Event) []*Participant {
	ids := append([]string{e.RoomID, e.OrganizerID}, e.HostIDs...)
	ids = append(ids, e.AttendeeIDs...)
	out := make([]*Participant, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := s.participants[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func containsInterval(set []scheduler.Interval, iv scheduler.Interval) bool {
	return slices.ContainsFunc(set, iv.Equal)
}

// CheckInvariants verifies the bidirectional references of the whole graph
// without changing it.
func (s *State) CheckInvariants() []Violation {
	report := RepairReport{}
	for _, e := range s.Events() {
		s.checkEvent(e, &report)
	}
	for _, p := range s.Participants() {
		for _, id := range p.ScheduledEvents() {
			e, ok := s.events[id]
			if !ok {
				report.add(p.ID, id, "schedule entry for unknown event", "")
				continue
			}
			if !e.Occupies(p.ID) {
				report.add(p.ID, id, "schedule entry for event that does not reference participant", "")
			}
		}
		for _, id := range p.Specialist() {
			e, ok := s.events[id]
			if !ok || !e.RequiresSpecialist(p) {
				report.add(p.ID, id, "unexpected specialist entry", "")
			}
		}
	}
	sort.SliceStable(report.Violations, func(i, j int) bool {
		return report.Violations[i].EventID < report.Violations[j].EventID
	})
	return report.Violations
}

// CheckEvent verifies the references of a single event.
func (s *State) CheckEvent(eventID string) []Violation {
	e, ok := s.events[eventID]
	if !ok {
		return nil
	}
	report := RepairReport{}
	s.checkEvent(e, &report)
	return report.Violations
}

func (s *State) checkEvent(e *Event, report *RepairReport) {
	ids := append([]string{e.RoomID, e.OrganizerID}, e.HostIDs...)
	ids = append(ids, e.AttendeeIDs...)
	for _, id := range ids {
		if _, ok := s.participants[id]; !ok {
			report.add(id, e.ID, "referenced participant is missing", "")
		}
	}
	for _, p := range s.ReferencedBy(e) {
		held := p.IntervalsFor(e.ID)
		if e.Occupies(p.ID) {
			if !scheduler.SameSet(held, e.Intervals) {
				report.add(p.ID, e.ID, "schedule does not match event intervals", "")
			}
		} else if len(held) > 0 {
			report.add(p.ID, e.ID, "schedule holds event that does not occupy participant", "")
		}
		if e.RequiresSpecialist(p) != p.IsInSpecialist(e.ID) {
			report.add(p.ID, e.ID, "specialist set disagrees with event roles", "")
		}
	}
}
