package scheduler

import "sort"

// Booking is a read-only view of an event's placement: the people and room it
// occupies and the intervals during which it does so.
type Booking struct {
	ID           string
	Participants []string
	RoomID       string
	Intervals    []Interval
}

// ConflictType describes the type of conflict detected between bookings.
type ConflictType string

const (
	// ConflictTypeParticipant indicates a participant is double-booked.
	ConflictTypeParticipant ConflictType = "participant"
	// ConflictTypeRoom indicates a room is double-booked.
	ConflictTypeRoom ConflictType = "room"
)

// Conflict details an overlapping booking relation that callers can present to users.
type Conflict struct {
	WithBookingID string
	Type          ConflictType
	Participant   string
	RoomID        string
	Overlap       Interval
}

// DetectConflicts identifies conflicts for the candidate booking against existing ones.
// Bookings sharing the candidate's ID are ignored. Results are ordered by
// overlap start, then by the conflicting booking ID.
func DetectConflicts(existing []Booking, candidate Booking) []Conflict {
	if len(candidate.Intervals) == 0 {
		return nil
	}

	participants := make(map[string]struct{}, len(candidate.Participants))
	for _, id := range candidate.Participants {
		if id != "" {
			participants[id] = struct{}{}
		}
	}

	var conflicts []Conflict
	for _, other := range existing {
		if other.ID == candidate.ID {
			continue
		}
		overlaps := overlapRegions(candidate.Intervals, other.Intervals)
		if len(overlaps) == 0 {
			continue
		}

		for _, region := range overlaps {
			if candidate.RoomID != "" && candidate.RoomID == other.RoomID {
				conflicts = append(conflicts, Conflict{
					WithBookingID: other.ID,
					Type:          ConflictTypeRoom,
					RoomID:        other.RoomID,
					Overlap:       region,
				})
			}
			shared := make([]string, 0)
			for _, id := range other.Participants {
				if _, ok := participants[id]; ok {
					shared = append(shared, id)
				}
			}
			sort.Strings(shared)
			for _, id := range shared {
				conflicts = append(conflicts, Conflict{
					WithBookingID: other.ID,
					Type:          ConflictTypeParticipant,
					Participant:   id,
					Overlap:       region,
				})
			}
		}
	}

	sort.SliceStable(conflicts, func(i, j int) bool {
		if !conflicts[i].Overlap.Start.Equal(conflicts[j].Overlap.Start) {
			return conflicts[i].Overlap.Start.Before(conflicts[j].Overlap.Start)
		}
		return conflicts[i].WithBookingID < conflicts[j].WithBookingID
	})
	return conflicts
}

func overlapRegions(a, b []Interval) []Interval {
	var out []Interval
	for _, x := range a {
		for _, y := range b {
			if region, ok := x.Intersection(y); ok {
				out = append(out, region)
			}
		}
	}
	return out
}
