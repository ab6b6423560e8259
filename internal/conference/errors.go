package conference

import "errors"

var (
	// ErrParticipantNotFound is returned when an id does not resolve to a participant.
	ErrParticipantNotFound = errors.New("conference: participant not found")
	// ErrEventNotFound is returned when an id does not resolve to an event.
	ErrEventNotFound = errors.New("conference: event not found")
	// ErrDuplicate is returned when an id or username is already taken.
	ErrDuplicate = errors.New("conference: duplicate identifier")
	// ErrInvalidKind is returned for unknown participant or event kinds.
	ErrInvalidKind = errors.New("conference: invalid kind")
	// ErrOutsideOpenHours is returned when an interval does not fit a room's open hours.
	ErrOutsideOpenHours = errors.New("conference: outside room open hours")
	// ErrInvariantViolation is returned when cross-entity references disagree.
	ErrInvariantViolation = errors.New("conference: invariant violation")
)
