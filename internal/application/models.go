package application

import (
	"time"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// EventInput captures caller provided event fields.
type EventInput struct {
	Kind             string
	Name             string
	Description      string
	OrganizerID      string
	RoomID           string
	Capacity         int
	Intervals        []scheduler.Interval
	VIPOnly          bool
	RequiredFeatures []string
}

// CreateEventParams wraps the data required to create an event.
type CreateEventParams struct {
	Input EventInput
	// HostIDs, when set, are assigned right after creation. A failed
	// assignment cancels the new event.
	HostIDs []string
}

// CreateEventResult reports the created event and any advisory findings.
type CreateEventResult struct {
	Event           conference.Event
	MissingFeatures []string
}

// RescheduleResult reports the moved event and the attendees that had to leave it.
type RescheduleResult struct {
	Event            conference.Event
	DroppedAttendees []string
}

// RoomInput captures caller provided room fields.
type RoomInput struct {
	ID        string
	Name      string
	Capacity  int
	OpenHours []conference.HourRange
	Features  []string
}

// Room is the read model of a room participant.
type Room struct {
	ID        string
	Name      string
	Capacity  int
	OpenHours []conference.HourRange
	Features  []string
	Bookings  int
}

// AvailableRoomsParams narrows the room finder.
type AvailableRoomsParams struct {
	Intervals []scheduler.Interval
	Features  []string
	Capacity  int
}

// AccountInput captures caller provided account fields.
type AccountInput struct {
	Kind     string
	Username string
	Password string
}

// Account is the read model of a person participant. The password hash never leaves the service.
type Account struct {
	ID         string
	Kind       conference.Kind
	Username   string
	IsVIP      bool
	Specialist []string
}

// ScheduleItem is one booked interval in a participant's schedule.
type ScheduleItem struct {
	EventID   string
	EventName string
	Role      string
	RoomID    string
	Interval  scheduler.Interval
}

// ParticipantSchedule is the schedule view of any participant.
type ParticipantSchedule struct {
	ParticipantID string
	Kind          conference.Kind
	DisplayName   string
	Items         []ScheduleItem
	Specialist    []string
}

// Timeline splits events into those still to come (or running) and those that have ended.
type Timeline struct {
	Upcoming []conference.Event
	Expired  []conference.Event
}

// EventFilter narrows catalog listings. Zero values do not filter.
type EventFilter struct {
	RoomID      string
	OrganizerID string
	Kind        conference.EventKind
	From        *time.Time
	To          *time.Time
	VIPOnly     *bool
}

// SnapshotInfo describes a persisted snapshot.
type SnapshotInfo struct {
	ID               string
	TakenAt          time.Time
	ParticipantCount int
	EventCount       int
}
