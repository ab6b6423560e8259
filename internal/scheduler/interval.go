package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrInvalidInterval is returned when an interval does not start strictly before it ends.
	ErrInvalidInterval = errors.New("scheduler: interval start must be before end")
	// ErrEmptyIntervalSet is returned when an operation requires at least one interval.
	ErrEmptyIntervalSet = errors.New("scheduler: interval set is empty")
	// ErrOverlappingIntervals is returned when an interval set contains members that overlap each other.
	ErrOverlappingIntervals = errors.New("scheduler: interval set members overlap")
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval validates and constructs an interval.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: %s >= %s", ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Valid reports whether the interval is non-empty.
func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// Overlaps reports whether the two intervals share any instant. Touching
// boundaries do not overlap.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Intersection returns the overlapping region of the two intervals.
func (iv Interval) Intersection(other Interval) (Interval, bool) {
	if !iv.Overlaps(other) {
		return Interval{}, false
	}
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	return Interval{Start: start, End: end}, true
}

// Equal reports whether both bounds denote the same instants.
func (iv Interval) Equal(other Interval) bool {
	return iv.Start.Equal(other.Start) && iv.End.Equal(other.End)
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// In converts both bounds to the given location.
func (iv Interval) In(loc *time.Location) Interval {
	return Interval{Start: iv.Start.In(loc), End: iv.End.In(loc)}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format(time.RFC3339), iv.End.Format(time.RFC3339))
}

// Normalize validates an interval set and returns a copy sorted by start.
// The set must be non-empty and its members pairwise disjoint.
func Normalize(intervals []Interval) ([]Interval, error) {
	if len(intervals) == 0 {
		return nil, ErrEmptyIntervalSet
	}
	out := make([]Interval, len(intervals))
	copy(out, intervals)
	for _, iv := range out {
		if !iv.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	for i := 1; i < len(out); i++ {
		if out[i-1].Overlaps(out[i]) {
			return nil, fmt.Errorf("%w: %s and %s", ErrOverlappingIntervals, out[i-1], out[i])
		}
	}
	return out, nil
}

// SameSet reports whether two normalized interval sets are identical.
func SameSet(a, b []Interval) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Subtract returns the parts of next that are not covered by prev. Both sets
// must be normalized; the result is normalized as well (possibly empty).
func Subtract(next, prev []Interval) []Interval {
	var out []Interval
	for _, iv := range next {
		remaining := []Interval{iv}
		for _, cut := range prev {
			if !cut.Overlaps(iv) {
				continue
			}
			pieces := remaining[:0:0]
			for _, part := range remaining {
				pieces = append(pieces, cutOut(part, cut)...)
			}
			remaining = pieces
		}
		out = append(out, remaining...)
	}
	return out
}

func cutOut(part, cut Interval) []Interval {
	if !part.Overlaps(cut) {
		return []Interval{part}
	}
	var out []Interval
	if part.Start.Before(cut.Start) {
		out = append(out, Interval{Start: part.Start, End: cut.Start})
	}
	if cut.End.Before(part.End) {
		out = append(out, Interval{Start: cut.End, End: part.End})
	}
	return out
}

// Span returns the interval from the earliest start to the latest end of a
// normalized set.
func Span(intervals []Interval) (Interval, bool) {
	if len(intervals) == 0 {
		return Interval{}, false
	}
	return Interval{Start: intervals[0].Start, End: intervals[len(intervals)-1].End}, true
}
