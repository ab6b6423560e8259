package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectConflicts(t *testing.T) {
	t.Parallel()

	t.Run("participant overlap produces conflict", func(t *testing.T) {
		t.Parallel()
		existing := []Booking{{ID: "E1", Participants: []string{"ann", "bob"}, RoomID: "hall", Intervals: []Interval{iv(9, 11)}}}
		candidate := Booking{ID: "E2", Participants: []string{"bob"}, RoomID: "studio", Intervals: []Interval{iv(10, 12)}}

		got := DetectConflicts(existing, candidate)
		require.Len(t, got, 1)
		assert.Equal(t, ConflictTypeParticipant, got[0].Type)
		assert.Equal(t, "bob", got[0].Participant)
		assert.Equal(t, "E1", got[0].WithBookingID)
		assert.Equal(t, iv(10, 11), got[0].Overlap)
	})

	t.Run("room overlap produces conflict", func(t *testing.T) {
		t.Parallel()
		existing := []Booking{{ID: "E1", RoomID: "hall", Intervals: []Interval{iv(9, 11)}}}
		candidate := Booking{ID: "E2", RoomID: "hall", Intervals: []Interval{iv(8, 10), iv(13, 14)}}

		got := DetectConflicts(existing, candidate)
		require.Len(t, got, 1)
		assert.Equal(t, ConflictTypeRoom, got[0].Type)
		assert.Equal(t, "hall", got[0].RoomID)
		assert.Equal(t, iv(9, 10), got[0].Overlap)
	})

	t.Run("non-overlapping bookings yield no conflicts", func(t *testing.T) {
		t.Parallel()
		existing := []Booking{{ID: "E1", Participants: []string{"ann"}, RoomID: "hall", Intervals: []Interval{iv(9, 10)}}}
		candidate := Booking{ID: "E2", Participants: []string{"ann"}, RoomID: "hall", Intervals: []Interval{iv(10, 11)}}

		assert.Empty(t, DetectConflicts(existing, candidate))
	})

	t.Run("candidate is not compared with itself", func(t *testing.T) {
		t.Parallel()
		booking := Booking{ID: "E1", Participants: []string{"ann"}, RoomID: "hall", Intervals: []Interval{iv(9, 10)}}

		assert.Empty(t, DetectConflicts([]Booking{booking}, booking))
	})
}
