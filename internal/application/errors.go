package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique identifier or username is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrIntervalConflict is returned when a participant or room is not free for a requested interval.
	ErrIntervalConflict = errors.New("application: interval conflict")
	// ErrCapacityExceeded is returned when a roster or event would exceed the allowed capacity.
	ErrCapacityExceeded = errors.New("application: capacity exceeded")
	// ErrInvalidHostCount is returned when the number of hosts violates the event kind's policy.
	ErrInvalidHostCount = errors.New("application: invalid host count")
	// ErrNotEligible is returned when a participant may not take the requested role.
	ErrNotEligible = errors.New("application: not eligible")
	// ErrAlreadyEnrolled is returned when an attendee is already on the roster.
	ErrAlreadyEnrolled = errors.New("application: already enrolled")
	// ErrOutsideOpenHours is returned when an interval falls outside the room's open hours.
	ErrOutsideOpenHours = errors.New("application: outside room open hours")
	// ErrInvariantViolation is returned when the object graph was found inconsistent.
	ErrInvariantViolation = errors.New("application: invariant violation")
	// ErrInvalidCredentials is returned when a username and password do not match.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

// mapDomainError translates engine sentinels into application sentinels while
// keeping the original message.
func mapDomainError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, scheduler.ErrIntervalConflict):
		return fmt.Errorf("%w: %w", ErrIntervalConflict, err)
	case errors.Is(err, scheduler.ErrEntryNotFound), errors.Is(err, conference.ErrInvariantViolation):
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	case errors.Is(err, conference.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case errors.Is(err, conference.ErrParticipantNotFound), errors.Is(err, conference.ErrEventNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, conference.ErrOutsideOpenHours):
		return fmt.Errorf("%w: %w", ErrOutsideOpenHours, err)
	case errors.Is(err, conference.ErrInvalidKind):
		return fmt.Errorf("%w: %w", ErrNotEligible, err)
	}
	return err
}
