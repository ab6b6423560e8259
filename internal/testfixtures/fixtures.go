package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

var (
	roomCounter    uint64
	accountCounter uint64
	eventCounter   uint64
)

var referenceTime = time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)

// ReferenceTime returns midnight UTC of the first conference day. Fixture
// intervals are expressed relative to it.
func ReferenceTime() time.Time {
	return referenceTime
}

// Slot returns the half-open interval [fromHour, toHour) on the given
// conference day, counted from ReferenceTime.
func Slot(day, fromHour, toHour int) scheduler.Interval {
	base := referenceTime.AddDate(0, 0, day)
	return scheduler.Interval{
		Start: base.Add(time.Duration(fromHour) * time.Hour),
		End:   base.Add(time.Duration(toHour) * time.Hour),
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic room.
type RoomFixture struct {
	ID        string
	Name      string
	Capacity  int
	OpenHours []conference.HourRange
	Features  []string
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a room that is always open and seats 20 people.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		ID:       fmt.Sprintf("room-%03d", idx),
		Name:     fmt.Sprintf("Room %03d", idx),
		Capacity: 20,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the generated room ID.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) {
		f.ID = id
	}
}

// WithRoomName overrides the generated room name.
func WithRoomName(name string) RoomOption {
	return func(f *RoomFixture) {
		f.Name = name
	}
}

// WithRoomCapacity overrides the generated capacity.
func WithRoomCapacity(capacity int) RoomOption {
	return func(f *RoomFixture) {
		f.Capacity = capacity
	}
}

// WithRoomOpenHours restricts the room to the given daily windows.
func WithRoomOpenHours(hours ...conference.HourRange) RoomOption {
	return func(f *RoomFixture) {
		f.OpenHours = append([]conference.HourRange(nil), hours...)
	}
}

// WithRoomFeatures sets the room's equipment.
func WithRoomFeatures(features ...string) RoomOption {
	return func(f *RoomFixture) {
		f.Features = append([]string(nil), features...)
	}
}

// Participant returns the fixture as a room participant.
func (f RoomFixture) Participant() *conference.Participant {
	return conference.NewRoom(f.ID, conference.RoomSpec{
		Name:      f.Name,
		Capacity:  f.Capacity,
		OpenHours: append([]conference.HourRange(nil), f.OpenHours...),
		Features:  append([]string(nil), f.Features...),
	})
}

// Input returns the fixture as application.RoomInput.
func (f RoomFixture) Input() application.RoomInput {
	return application.RoomInput{
		ID:        f.ID,
		Name:      f.Name,
		Capacity:  f.Capacity,
		OpenHours: append([]conference.HourRange(nil), f.OpenHours...),
		Features:  append([]string(nil), f.Features...),
	}
}

// ---------------------------- Account fixtures ----------------------------

// AccountFixture represents a deterministic person.
type AccountFixture struct {
	ID       string
	Kind     conference.Kind
	Username string
	Password string
}

// AccountOption configures the generated account fixture.
type AccountOption func(*AccountFixture)

// NewAccountFixture returns an account of the given kind.
func NewAccountFixture(kind conference.Kind, opts ...AccountOption) AccountFixture {
	idx := atomic.AddUint64(&accountCounter, 1)
	fixture := AccountFixture{
		ID:       fmt.Sprintf("%s-%03d", kind, idx),
		Kind:     kind,
		Username: fmt.Sprintf("%s%03d", kind, idx),
		Password: fmt.Sprintf("password-%03d", idx),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAccountID overrides the generated account ID.
func WithAccountID(id string) AccountOption {
	return func(f *AccountFixture) {
		f.ID = id
	}
}

// WithUsername overrides the generated username.
func WithUsername(username string) AccountOption {
	return func(f *AccountFixture) {
		f.Username = username
	}
}

// WithPassword overrides the generated password.
func WithPassword(password string) AccountOption {
	return func(f *AccountFixture) {
		f.Password = password
	}
}

// Participant returns the fixture as a person participant. The password is
// hashed with hasher; a zero hasher leaves the account without credentials.
func (f AccountFixture) Participant(hasher application.PasswordHasher) (*conference.Participant, error) {
	hash := ""
	if hasher.KeyLength > 0 {
		var err error
		if hash, err = hasher.Hash(f.Password); err != nil {
			return nil, err
		}
	}
	return conference.NewAccount(f.ID, f.Kind, f.Username, hash), nil
}

// Input returns the fixture as application.AccountInput.
func (f AccountFixture) Input() application.AccountInput {
	return application.AccountInput{Kind: string(f.Kind), Username: f.Username, Password: f.Password}
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic event request.
type EventFixture struct {
	Kind             conference.EventKind
	Name             string
	Description      string
	OrganizerID      string
	RoomID           string
	Capacity         int
	Intervals        []scheduler.Interval
	VIPOnly          bool
	RequiredFeatures []string
	HostIDs          []string
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a party from 10 to 11 on the first day. Organizer
// and room must be supplied through options.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	fixture := EventFixture{
		Kind:      conference.EventKindParty,
		Name:      fmt.Sprintf("Event %03d", idx),
		Capacity:  10,
		Intervals: []scheduler.Interval{Slot(0, 10, 11)},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventKind sets the event kind.
func WithEventKind(kind conference.EventKind) EventOption {
	return func(f *EventFixture) {
		f.Kind = kind
	}
}

// WithEventName overrides the generated name.
func WithEventName(name string) EventOption {
	return func(f *EventFixture) {
		f.Name = name
	}
}

// WithEventOrganizer sets the organizer.
func WithEventOrganizer(id string) EventOption {
	return func(f *EventFixture) {
		f.OrganizerID = id
	}
}

// WithEventRoom sets the room.
func WithEventRoom(id string) EventOption {
	return func(f *EventFixture) {
		f.RoomID = id
	}
}

// WithEventCapacity overrides the default capacity.
func WithEventCapacity(capacity int) EventOption {
	return func(f *EventFixture) {
		f.Capacity = capacity
	}
}

// WithEventIntervals replaces the default interval.
func WithEventIntervals(intervals ...scheduler.Interval) EventOption {
	return func(f *EventFixture) {
		f.Intervals = append([]scheduler.Interval(nil), intervals...)
	}
}

// WithEventVIPOnly marks the event VIP only.
func WithEventVIPOnly() EventOption {
	return func(f *EventFixture) {
		f.VIPOnly = true
	}
}

// WithEventHosts sets the hosts assigned on creation.
func WithEventHosts(ids ...string) EventOption {
	return func(f *EventFixture) {
		f.HostIDs = append([]string(nil), ids...)
	}
}

// WithEventRequiredFeatures sets the features the event asks for.
func WithEventRequiredFeatures(features ...string) EventOption {
	return func(f *EventFixture) {
		f.RequiredFeatures = append([]string(nil), features...)
	}
}

// Params returns the fixture as application.CreateEventParams.
func (f EventFixture) Params() application.CreateEventParams {
	return application.CreateEventParams{
		Input: application.EventInput{
			Kind:             string(f.Kind),
			Name:             f.Name,
			Description:      f.Description,
			OrganizerID:      f.OrganizerID,
			RoomID:           f.RoomID,
			Capacity:         f.Capacity,
			Intervals:        append([]scheduler.Interval(nil), f.Intervals...),
			VIPOnly:          f.VIPOnly,
			RequiredFeatures: append([]string(nil), f.RequiredFeatures...),
		},
		HostIDs: append([]string(nil), f.HostIDs...),
	}
}

// ---------------------------- State fixtures ----------------------------

// NewState returns a conference graph holding the given rooms and accounts.
// Account passwords are hashed with hasher.
func NewState(hasher application.PasswordHasher, rooms []RoomFixture, accounts []AccountFixture) (*conference.State, error) {
	st := conference.NewState()
	for _, r := range rooms {
		if err := st.AddParticipant(r.Participant()); err != nil {
			return nil, fmt.Errorf("room %s: %w", r.ID, err)
		}
	}
	for _, a := range accounts {
		p, err := a.Participant(hasher)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.ID, err)
		}
		if err := st.AddParticipant(p); err != nil {
			return nil, fmt.Errorf("account %s: %w", a.ID, err)
		}
	}
	return st, nil
}
