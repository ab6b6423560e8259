package conference

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/example/conference-scheduler/internal/scheduler"
)

// DefaultFeatures seeds the feature catalog of a new conference.
var DefaultFeatures = []string{"Projector", "Row of chairs", "Table", "Computers"}

// HourRange is a daily window [From, To) expressed in whole hours, 0 <= From < To <= 24.
type HourRange struct {
	From int `yaml:"from" json:"from"`
	To   int `yaml:"to" json:"to"`
}

// Validate checks the hour bounds.
func (h HourRange) Validate() error {
	if h.From < 0 || h.To > 24 || h.From >= h.To {
		return fmt.Errorf("invalid open hours %d-%d", h.From, h.To)
	}
	return nil
}

// Fits reports whether iv lies inside this window on the calendar day of its
// start, evaluated in loc.
func (h HourRange) Fits(iv scheduler.Interval, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	start := iv.Start.In(loc)
	open := time.Date(start.Year(), start.Month(), start.Day(), h.From, 0, 0, 0, loc)
	closeAt := time.Date(start.Year(), start.Month(), start.Day(), h.To, 0, 0, 0, loc)
	return !iv.Start.Before(open) && !iv.End.After(closeAt)
}

func (h HourRange) String() string {
	return fmt.Sprintf("%02d:00-%02d:00", h.From, h.To)
}

// RoomSpec describes the physical properties of a room participant.
type RoomSpec struct {
	Name      string
	Capacity  int
	OpenHours []HourRange
	Features  []string
}

// Open reports whether every interval fits one of the room's windows. A room
// without declared hours is always open.
func (r *RoomSpec) Open(intervals []scheduler.Interval, loc *time.Location) bool {
	if r == nil || len(r.OpenHours) == 0 {
		return true
	}
	for _, iv := range intervals {
		fits := false
		for _, window := range r.OpenHours {
			if window.Fits(iv, loc) {
				fits = true
				break
			}
		}
		if !fits {
			return false
		}
	}
	return true
}

// HasFeature reports whether the room offers feature (case-insensitive).
func (r *RoomSpec) HasFeature(feature string) bool {
	if r == nil {
		return false
	}
	for _, f := range r.Features {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// MissingFeatures returns the subset of required features the room lacks.
func (r *RoomSpec) MissingFeatures(required []string) []string {
	var missing []string
	for _, f := range required {
		if !r.HasFeature(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

func (r *RoomSpec) clone() *RoomSpec {
	if r == nil {
		return nil
	}
	out := *r
	out.OpenHours = append([]HourRange(nil), r.OpenHours...)
	out.Features = append([]string(nil), r.Features...)
	return &out
}

// NormalizeFeatures trims, de-duplicates (case-insensitively) and sorts feature names.
func NormalizeFeatures(features []string) []string {
	seen := make(map[string]struct{}, len(features))
	out := make([]string, 0, len(features))
	for _, f := range features {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		key := strings.ToLower(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
