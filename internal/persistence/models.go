package persistence

import "time"

// Snapshot is a stored copy of the whole conference graph.
type Snapshot struct {
	ID           string
	TakenAt      time.Time
	Features     []string
	Participants []Participant
	Events       []Event
	CreatedAt    time.Time
}

// SnapshotSummary describes a stored snapshot without its contents.
type SnapshotSummary struct {
	ID               string
	TakenAt          time.Time
	ParticipantCount int
	EventCount       int
	CreatedAt        time.Time
}

// Participant is a stored person or room together with its bookings.
type Participant struct {
	ID           string
	Kind         string
	Username     string
	PasswordHash string
	Room         *Room
	Schedule     []Booking
	Specialist   []string
}

// Room holds the physical properties of a room participant.
type Room struct {
	Name      string      `json:"name"`
	Capacity  int         `json:"capacity"`
	OpenHours []HourRange `json:"open_hours,omitempty"`
	Features  []string    `json:"features,omitempty"`
}

// HourRange is a daily opening window in whole hours.
type HourRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Booking is one interval of a participant's schedule.
type Booking struct {
	EventID string    `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Span is a half-open time range.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Event is a stored event.
type Event struct {
	ID               string
	Kind             string
	Name             string
	Description      string
	Capacity         int
	RoomID           string
	OrganizerID      string
	HostIDs          []string
	AttendeeIDs      []string
	VIPOnly          bool
	RequiredFeatures []string
	Intervals        []Span
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
