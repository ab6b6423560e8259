package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/calendar"
	"github.com/example/conference-scheduler/internal/conference"
)

type scheduleSource interface {
	Schedule(ctx context.Context, participantID string) (application.ParticipantSchedule, error)
	Location() *time.Location
}

type participantEvents interface {
	ForParticipant(ctx context.Context, participantID string) ([]conference.Event, error)
}

// ParticipantHandler renders the schedule of any participant as JSON or as
// an iCalendar feed.
type ParticipantHandler struct {
	schedules scheduleSource
	events    participantEvents
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

func NewParticipantHandler(schedules scheduleSource, events participantEvents, now func() time.Time, logger *slog.Logger) *ParticipantHandler {
	base := defaultLogger(logger)
	if now == nil {
		now = time.Now
	}
	return &ParticipantHandler{schedules: schedules, events: events, now: now, responder: newResponder(base), logger: base}
}

func (h *ParticipantHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	view, ok := h.load(w, r)
	if !ok {
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toScheduleDTO(view))
}

func (h *ParticipantHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	view, ok := h.load(w, r)
	if !ok {
		return
	}

	events, err := h.events.ForParticipant(r.Context(), view.ParticipantID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	body := calendar.ExportParticipant(view, events, h.schedules.Location(), h.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+view.ParticipantID+`.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(body)); err != nil {
		handlerLogger(r.Context(), h.logger, "ParticipantHandler", "Calendar").ErrorContext(r.Context(), "failed to write calendar", "error", err)
	}
}

func (h *ParticipantHandler) load(w http.ResponseWriter, r *http.Request) (application.ParticipantSchedule, bool) {
	if h == nil || h.schedules == nil || h.events == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.ParticipantSchedule{}, false
	}

	participantID, ok := ParticipantIDFromContext(r.Context())
	if !ok || strings.TrimSpace(participantID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidParticipantID)
		return application.ParticipantSchedule{}, false
	}

	view, err := h.schedules.Schedule(r.Context(), participantID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return application.ParticipantSchedule{}, false
	}
	return view, true
}

type scheduleDTO struct {
	ParticipantID string            `json:"participant_id"`
	Kind          string            `json:"kind"`
	DisplayName   string            `json:"display_name,omitempty"`
	Items         []scheduleItemDTO `json:"items"`
	Specialist    []string          `json:"specialist,omitempty"`
}

type scheduleItemDTO struct {
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	Role      string `json:"role"`
	RoomID    string `json:"room_id"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

func toScheduleDTO(view application.ParticipantSchedule) scheduleDTO {
	items := make([]scheduleItemDTO, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, scheduleItemDTO{
			EventID:   item.EventID,
			EventName: item.EventName,
			Role:      item.Role,
			RoomID:    item.RoomID,
			Start:     formatTime(item.Interval.Start),
			End:       formatTime(item.Interval.End),
		})
	}
	return scheduleDTO{
		ParticipantID: view.ParticipantID,
		Kind:          string(view.Kind),
		DisplayName:   view.DisplayName,
		Items:         items,
		Specialist:    view.Specialist,
	}
}
