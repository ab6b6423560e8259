package conference

import (
	"fmt"
	"sort"
	"strings"
)

// State is the conference object graph: participants and events addressed by
// id. It performs no locking; callers serialize access.
type State struct {
	participants map[string]*Participant
	events       map[string]*Event
	usernames    map[string]string
	features     map[string]string
}

// NewState returns an empty conference seeded with the default feature catalog.
func NewState() *State {
	s := &State{
		participants: make(map[string]*Participant),
		events:       make(map[string]*Event),
		usernames:    make(map[string]string),
		features:     make(map[string]string),
	}
	for _, f := range DefaultFeatures {
		s.AddFeature(f)
	}
	return s
}

// Participant looks a participant up by id.
func (s *State) Participant(id string) (*Participant, bool) {
	p, ok := s.participants[id]
	return p, ok
}

// ParticipantByUsername looks an account up by username (case-insensitive).
func (s *State) ParticipantByUsername(username string) (*Participant, bool) {
	id, ok := s.usernames[strings.ToLower(username)]
	if !ok {
		return nil, false
	}
	return s.Participant(id)
}

// Event looks an event up by id.
func (s *State) Event(id string) (*Event, bool) {
	e, ok := s.events[id]
	return e, ok
}

// AddParticipant registers p. Ids and account usernames must be unique.
func (s *State) AddParticipant(p *Participant) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: participant id is empty", ErrDuplicate)
	}
	if _, ok := s.participants[p.ID]; ok {
		return fmt.Errorf("%w: participant %s", ErrDuplicate, p.ID)
	}
	if p.Kind.IsAccount() && p.Username != "" {
		key := strings.ToLower(p.Username)
		if _, ok := s.usernames[key]; ok {
			return fmt.Errorf("%w: username %s", ErrDuplicate, p.Username)
		}
		s.usernames[key] = p.ID
	}
	s.participants[p.ID] = p
	return nil
}

func (s *State) removeParticipant(id string) {
	p, ok := s.participants[id]
	if !ok {
		return
	}
	if p.Username != "" {
		delete(s.usernames, strings.ToLower(p.Username))
	}
	delete(s.participants, id)
}

// Participants returns participants of the given kinds (all when none given), sorted by id.
func (s *State) Participants(kinds ...Kind) []*Participant {
	out := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		if len(kinds) > 0 && !containsKind(kinds, p.Kind) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Events returns every event ordered by first start, then id.
func (s *State) Events() []*Event {
	out := make([]*Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	SortEvents(out)
	return out
}

// EventCount returns the number of events.
func (s *State) EventCount() int {
	return len(s.events)
}

// AddFeature adds feature to the catalog. It reports false when already known.
func (s *State) AddFeature(feature string) bool {
	feature = strings.TrimSpace(feature)
	if feature == "" {
		return false
	}
	key := lowerKey(feature)
	if _, ok := s.features[key]; ok {
		return false
	}
	s.features[key] = feature
	return true
}

// HasFeature reports whether feature is in the catalog.
func (s *State) HasFeature(feature string) bool {
	_, ok := s.features[lowerKey(feature)]
	return ok
}

// Features returns the catalog, sorted.
func (s *State) Features() []string {
	out := make([]string, 0, len(s.features))
	for _, f := range s.features {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy of the whole graph.
func (s *State) Clone() *State {
	out := &State{
		participants: make(map[string]*Participant, len(s.participants)),
		events:       make(map[string]*Event, len(s.events)),
		usernames:    make(map[string]string, len(s.usernames)),
		features:     make(map[string]string, len(s.features)),
	}
	for id, p := range s.participants {
		out.participants[id] = p.Clone()
	}
	for id, e := range s.events {
		out.events[id] = e.Clone()
	}
	for k, v := range s.usernames {
		out.usernames[k] = v
	}
	for k, v := range s.features {
		out.features[k] = v
	}
	return out
}

// SortEvents orders events by first start, then id.
func SortEvents(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i].Start(), events[j].Start()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return events[i].ID < events[j].ID
	})
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func lowerKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
