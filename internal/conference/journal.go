package conference

import "github.com/example/conference-scheduler/internal/scheduler"

// Journal applies graph mutations and remembers how to undo them. A failed
// operation calls Rollback to restore the state observed before its first
// mutation.
type Journal struct {
	state *State
	undo  []func()
}

// NewJournal starts an empty journal over s.
func NewJournal(s *State) *Journal {
	return &Journal{state: s}
}

func (j *Journal) push(fn func()) {
	j.undo = append(j.undo, fn)
}

// Len returns the number of recorded mutations.
func (j *Journal) Len() int {
	return len(j.undo)
}

// Rollback undoes every recorded mutation in reverse order.
func (j *Journal) Rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// Book adds eventID's intervals to p's schedule.
func (j *Journal) Book(p *Participant, eventID string, intervals []scheduler.Interval) error {
	if err := p.AddToSchedule(eventID, intervals); err != nil {
		return err
	}
	booked := append([]scheduler.Interval(nil), intervals...)
	j.push(func() { _ = p.RemoveFromSchedule(eventID, booked) })
	return nil
}

// Release removes eventID's intervals from p's schedule.
func (j *Journal) Release(p *Participant, eventID string, intervals []scheduler.Interval) error {
	if err := p.RemoveFromSchedule(eventID, intervals); err != nil {
		return err
	}
	released := append([]scheduler.Interval(nil), intervals...)
	j.push(func() { _ = p.AddToSchedule(eventID, released) })
	return nil
}

// Mark adds eventID to p's specialist set.
func (j *Journal) Mark(p *Participant, eventID string) {
	if p.AddToSpecialist(eventID) {
		j.push(func() { p.RemoveFromSpecialist(eventID) })
	}
}

// Unmark removes eventID from p's specialist set.
func (j *Journal) Unmark(p *Participant, eventID string) {
	if p.RemoveFromSpecialist(eventID) {
		j.push(func() { p.AddToSpecialist(eventID) })
	}
}

// Touch records e's current field values so later in-place edits are undone.
func (j *Journal) Touch(e *Event) {
	before := e.Clone()
	j.push(func() { *e = *before })
}

// PutEvent inserts a new event.
func (j *Journal) PutEvent(e *Event) {
	j.state.events[e.ID] = e
	j.push(func() { delete(j.state.events, e.ID) })
}

// DeleteEvent removes an event.
func (j *Journal) DeleteEvent(id string) {
	e, ok := j.state.events[id]
	if !ok {
		return
	}
	delete(j.state.events, id)
	j.push(func() { j.state.events[id] = e })
}

// AddParticipant registers p.
func (j *Journal) AddParticipant(p *Participant) error {
	if err := j.state.AddParticipant(p); err != nil {
		return err
	}
	j.push(func() { j.state.removeParticipant(p.ID) })
	return nil
}

// ChangeKind switches p between attendee and VIP.
func (j *Journal) ChangeKind(p *Participant, kind Kind) error {
	oldKind := p.Kind
	oldSpecialist := p.Specialist()
	if err := p.ChangeKind(kind); err != nil {
		return err
	}
	j.push(func() {
		p.Kind = oldKind
		p.specialist = make(map[string]struct{}, len(oldSpecialist))
		for _, id := range oldSpecialist {
			p.specialist[id] = struct{}{}
		}
	})
	return nil
}

// AddFeature extends the feature catalog.
func (j *Journal) AddFeature(feature string) bool {
	if !j.state.AddFeature(feature) {
		return false
	}
	j.push(func() { delete(j.state.features, lowerKey(feature)) })
	return true
}

// DropAttendee removes id from e's roster.
func (j *Journal) DropAttendee(e *Event, id string) {
	if !e.HasAttendee(id) {
		return
	}
	prev := e.AttendeeIDs
	e.AttendeeIDs = removeID(e.AttendeeIDs, id)
	j.push(func() { e.AttendeeIDs = prev })
}
