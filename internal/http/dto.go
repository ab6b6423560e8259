package http

import (
	"errors"
	"strings"
	"time"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// errMalformedInterval surfaces as a 422 on the intervals field.
var errMalformedInterval = &application.ValidationError{FieldErrors: map[string]string{
	"intervals": "interval bounds must be RFC 3339 timestamps",
}}

type intervalDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func toIntervalDTO(iv scheduler.Interval) intervalDTO {
	return intervalDTO{Start: formatTime(iv.Start), End: formatTime(iv.End)}
}

func toIntervalDTOs(intervals []scheduler.Interval) []intervalDTO {
	out := make([]intervalDTO, 0, len(intervals))
	for _, iv := range intervals {
		out = append(out, toIntervalDTO(iv))
	}
	return out
}

// toIntervals rejects the whole list when any bound is not an RFC 3339
// timestamp. Ordering and emptiness are left to the services.
func toIntervals(dtos []intervalDTO) ([]scheduler.Interval, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	out := make([]scheduler.Interval, 0, len(dtos))
	for _, dto := range dtos {
		start, err := parseTime(dto.Start)
		if err != nil {
			return nil, errMalformedInterval
		}
		end, err := parseTime(dto.End)
		if err != nil {
			return nil, errMalformedInterval
		}
		out = append(out, scheduler.Interval{Start: start, End: end})
	}
	return out, nil
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
