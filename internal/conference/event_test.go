package conference

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/conference-scheduler/internal/scheduler"
)

func TestHostPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind  EventKind
		hosts int
		ok    bool
	}{
		{EventKindTalk, 0, false},
		{EventKindTalk, 1, true},
		{EventKindTalk, 2, false},
		{EventKindParty, 0, true},
		{EventKindParty, 1, false},
		{EventKindPanel, 1, false},
		{EventKindPanel, 2, true},
		{EventKindPanel, 5, true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.ok, tc.kind.HostPolicy().Check(tc.hosts), "%s with %d hosts", tc.kind, tc.hosts)
	}
	assert.Equal(t, "at least 2", EventKindPanel.HostPolicy().String())
}

func TestParseEventKind(t *testing.T) {
	t.Parallel()

	k, err := ParseEventKind("Panel_Discussion")
	require.NoError(t, err)
	assert.Equal(t, EventKindPanel, k)

	_, err = ParseEventKind("workshop")
	require.ErrorIs(t, err, ErrInvalidKind)
}

func TestEvent_RequiresSpecialist(t *testing.T) {
	t.Parallel()

	e := &Event{ID: "E1", OrganizerID: "org", HostIDs: []string{"spk"}, AttendeeIDs: []string{"vip", "att"}}
	org := NewAccount("org", KindOrganizer, "o", "")
	spk := NewAccount("spk", KindSpeaker, "s", "")
	vip := NewAccount("vip", KindVIP, "v", "")
	att := NewAccount("att", KindAttendee, "a", "")

	assert.True(t, e.RequiresSpecialist(org))
	assert.True(t, e.RequiresSpecialist(spk))
	assert.False(t, e.RequiresSpecialist(vip), "non VIP-only events do not mark attendees")
	assert.False(t, e.RequiresSpecialist(att))

	e.VIPOnly = true
	assert.True(t, e.RequiresSpecialist(vip))
	assert.False(t, e.RequiresSpecialist(att))
}

func TestEvent_TimeQueries(t *testing.T) {
	t.Parallel()

	e := &Event{Intervals: []scheduler.Interval{slot(9, 10), slot(13, 14)}}
	assert.False(t, e.Started(day.Add(8*time.Hour)))
	assert.True(t, e.Started(day.Add(9*time.Hour)))
	assert.False(t, e.Expired(day.Add(8*time.Hour)))
	assert.True(t, e.Expired(day.Add(9*time.Hour+30*time.Minute)), "an event in progress is expired")
	assert.True(t, e.Expired(day.Add(12*time.Hour)))
}

func TestEvent_CloneIsDeep(t *testing.T) {
	t.Parallel()

	e := &Event{ID: "E1", HostIDs: []string{"a"}, AttendeeIDs: []string{"b"}, Intervals: []scheduler.Interval{slot(9, 10)}}
	c := e.Clone()
	c.HostIDs[0] = "x"
	c.AttendeeIDs = append(c.AttendeeIDs, "y")
	c.Intervals[0] = slot(11, 12)

	assert.Equal(t, []string{"a"}, e.HostIDs)
	assert.Equal(t, []string{"b"}, e.AttendeeIDs)
	assert.Equal(t, slot(9, 10), e.Intervals[0])
}

func TestRoomSpec_Open(t *testing.T) {
	t.Parallel()

	spec := &RoomSpec{OpenHours: []HourRange{{From: 8, To: 12}, {From: 13, To: 24}}}
	assert.True(t, spec.Open([]scheduler.Interval{slot(8, 12), slot(13, 14)}, time.UTC))
	assert.True(t, spec.Open([]scheduler.Interval{slot(20, 24)}, time.UTC))
	assert.False(t, spec.Open([]scheduler.Interval{slot(11, 14)}, time.UTC), "interval spanning a break")
	assert.False(t, spec.Open([]scheduler.Interval{slot(7, 9)}, time.UTC))
	assert.False(t, spec.Open([]scheduler.Interval{slot(23, 25)}, time.UTC), "interval crossing midnight")

	always := &RoomSpec{}
	assert.True(t, always.Open([]scheduler.Interval{slot(2, 30)}, time.UTC))

	require.Error(t, HourRange{From: 10, To: 10}.Validate())
	require.NoError(t, HourRange{From: 0, To: 24}.Validate())
}

func TestRoomSpec_Features(t *testing.T) {
	t.Parallel()

	room := NewRoom("hall", RoomSpec{Name: "Hall", Features: []string{"projector", " Table ", "Projector"}})
	assert.Equal(t, []string{"Table", "projector"}, room.Room.Features)
	assert.True(t, room.Room.HasFeature("PROJECTOR"))
	assert.Equal(t, []string{"Computers"}, room.Room.MissingFeatures([]string{"Table", "Computers"}))
}
