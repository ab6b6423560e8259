package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

type eventCommands interface {
	Create(ctx context.Context, params application.CreateEventParams) (application.CreateEventResult, error)
	AssignHosts(ctx context.Context, eventID string, hostIDs []string) (conference.Event, error)
	Reschedule(ctx context.Context, eventID string, intervals []scheduler.Interval) (application.RescheduleResult, error)
	Cancel(ctx context.Context, eventID string) error
	AddAttendee(ctx context.Context, eventID, accountID string) (conference.Event, error)
	RemoveAttendee(ctx context.Context, eventID, accountID string) (conference.Event, error)
	ChangeRoom(ctx context.Context, eventID, roomID string) (conference.Event, error)
	SetCapacity(ctx context.Context, eventID string, capacity int) (conference.Event, error)
	SetVIP(ctx context.Context, eventID string, vipOnly bool) (conference.Event, error)
	SetRequiredFeatures(ctx context.Context, eventID string, features []string) (application.CreateEventResult, error)
}

type eventQueries interface {
	Get(ctx context.Context, eventID string) (conference.Event, error)
	List(ctx context.Context, filter application.EventFilter) ([]conference.Event, error)
	Conflicts(ctx context.Context, eventID string) ([]scheduler.Conflict, error)
}

// EventHandler serves the event lifecycle endpoints.
type EventHandler struct {
	commands  eventCommands
	queries   eventQueries
	responder responder
	logger    *slog.Logger
}

func NewEventHandler(commands eventCommands, queries eventQueries, logger *slog.Logger) *EventHandler {
	base := defaultLogger(logger)
	return &EventHandler{commands: commands, queries: queries, responder: newResponder(base), logger: base}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.commands == nil || h.queries == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "organizer_id", req.OrganizerID, "room_id", req.RoomID)
	input, err := req.toInput()
	if err != nil {
		logger.WarnContext(r.Context(), "malformed intervals", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	result, err := h.commands.Create(r.Context(), application.CreateEventParams{Input: input, HostIDs: req.HostIDs})
	if err != nil {
		logger.WarnContext(r.Context(), "event creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("event_id", result.Event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{
		Event:           toEventDTO(result.Event),
		MissingFeatures: result.MissingFeatures,
	})
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	filter, err := buildEventFilter(r.URL.Query())
	if err != nil {
		h.log(r.Context(), "List", "error_kind", "bad_request").WarnContext(r.Context(), "invalid event filter", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	events, err := h.queries.List(r.Context(), filter)
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "event list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	eventID, ok := h.eventID(w, r, "Get")
	if !ok {
		return
	}

	event, err := h.queries.Get(r.Context(), eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Conflicts(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	eventID, ok := h.eventID(w, r, "Conflicts")
	if !ok {
		return
	}

	conflicts, err := h.queries.Conflicts(r.Context(), eventID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, conflictsResponse{Conflicts: toConflictDTOs(conflicts)})
}

func (h *EventHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	eventID, ok := h.eventID(w, r, "Cancel")
	if !ok {
		return
	}

	logger := h.log(r.Context(), "Cancel", "event_id", eventID)
	if err := h.commands.Cancel(r.Context(), eventID); err != nil {
		logger.WarnContext(r.Context(), "event cancel failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event cancelled")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *EventHandler) AssignHosts(w http.ResponseWriter, r *http.Request) {
	var req hostsRequest
	h.mutate(w, r, "AssignHosts", &req, func(ctx context.Context, eventID string) (eventResponse, error) {
		event, err := h.commands.AssignHosts(ctx, eventID, req.HostIDs)
		return eventResponse{Event: toEventDTO(event)}, err
	})
}

func (h *EventHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	var req intervalsRequest
	h.mutate(w, r, "Reschedule", &req, func(ctx context.Context, eventID string) (eventResponse, error) {
		intervals, err := toIntervals(req.Intervals)
		if err != nil {
			return eventResponse{}, err
		}
		result, err := h.commands.Reschedule(ctx, eventID, intervals)
		return eventResponse{Event: toEventDTO(result.Event), DroppedAttendees: result.DroppedAttendees}, err
	})
}

func (h *EventHandler) ChangeRoom(w http.ResponseWriter, r *http.Request) {
	var req roomChangeRequest
	h.mutate(w, r, "ChangeRoom", &req, func(ctx context.Context, eventID string) (eventResponse, error) {
		event, err := h.commands.ChangeRoom(ctx, eventID, strings.TrimSpace(req.RoomID))
		return eventResponse{Event: toEventDTO(event)}, err
	})
}

func (h *EventHandler) SetCapacity(w http.ResponseWriter, r *http.Request) {
	var req capacityRequest
	h.mutate(w, r, "SetCapacity", &req, func(ctx context.Context, eventID string) (eventResponse, error) {
		event, err := h.commands.SetCapacity(ctx, eventID, req.Capacity)
		return eventResponse{Event: toEventDTO(event)}, err
	})
}

func (h *EventHandler) SetVIP(w http.ResponseWriter, r *http.Request) {
	var req vipRequest
	h.mutate(w, r, "SetVIP", &req, func(ctx context.Context, eventID string) (eventResponse, error) {
		event, err := h.commands.SetVIP(ctx, eventID, req.VIPOnly)
		return eventResponse{Event: toEventDTO(event)}, err
	})
}

func (h *EventHandler) SetRequiredFeatures(w http.ResponseWriter, r *http.Request) {
	var req featuresRequest
	h.mutate(w, r, "SetRequiredFeatures", &req, func(ctx context.Context, eventID string) (eventResponse, error) {
		result, err := h.commands.SetRequiredFeatures(ctx, eventID, req.Features)
		return eventResponse{Event: toEventDTO(result.Event), MissingFeatures: result.MissingFeatures}, err
	})
}

func (h *EventHandler) AddAttendee(w http.ResponseWriter, r *http.Request) {
	var req attendeeRequest
	h.mutate(w, r, "AddAttendee", &req, func(ctx context.Context, eventID string) (eventResponse, error) {
		event, err := h.commands.AddAttendee(ctx, eventID, strings.TrimSpace(req.AccountID))
		return eventResponse{Event: toEventDTO(event)}, err
	})
}

func (h *EventHandler) RemoveAttendee(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	eventID, ok := h.eventID(w, r, "RemoveAttendee")
	if !ok {
		return
	}
	accountID, ok := ParticipantIDFromContext(r.Context())
	if !ok || strings.TrimSpace(accountID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidParticipantID)
		return
	}

	logger := h.log(r.Context(), "RemoveAttendee", "event_id", eventID, "account_id", accountID)
	event, err := h.commands.RemoveAttendee(r.Context(), eventID, accountID)
	if err != nil {
		logger.WarnContext(r.Context(), "attendee removal failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attendee removed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

// mutate decodes body, applies the change to the event named by the path and
// renders the result.
func (h *EventHandler) mutate(w http.ResponseWriter, r *http.Request, operation string, body any, apply func(ctx context.Context, eventID string) (eventResponse, error)) {
	if !h.ready(w) {
		return
	}
	eventID, ok := h.eventID(w, r, operation)
	if !ok {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		h.log(r.Context(), operation, "event_id", eventID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), operation, "event_id", eventID)
	response, err := apply(r.Context(), eventID)
	if err != nil {
		logger.WarnContext(r.Context(), "event update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "event updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

func (h *EventHandler) eventID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").WarnContext(r.Context(), "missing event id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return "", false
	}
	return eventID, true
}

type eventRequest struct {
	Kind             string        `json:"kind"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	OrganizerID      string        `json:"organizer_id"`
	RoomID           string        `json:"room_id"`
	Capacity         int           `json:"capacity"`
	Intervals        []intervalDTO `json:"intervals"`
	VIPOnly          bool          `json:"vip_only"`
	RequiredFeatures []string      `json:"required_features"`
	HostIDs          []string      `json:"host_ids"`
}

func (r eventRequest) toInput() (application.EventInput, error) {
	intervals, err := toIntervals(r.Intervals)
	if err != nil {
		return application.EventInput{}, err
	}
	return application.EventInput{
		Kind:             strings.TrimSpace(r.Kind),
		Name:             strings.TrimSpace(r.Name),
		Description:      r.Description,
		OrganizerID:      strings.TrimSpace(r.OrganizerID),
		RoomID:           strings.TrimSpace(r.RoomID),
		Capacity:         r.Capacity,
		Intervals:        intervals,
		VIPOnly:          r.VIPOnly,
		RequiredFeatures: append([]string(nil), r.RequiredFeatures...),
	}, nil
}

type hostsRequest struct {
	HostIDs []string `json:"host_ids"`
}

type intervalsRequest struct {
	Intervals []intervalDTO `json:"intervals"`
}

type roomChangeRequest struct {
	RoomID string `json:"room_id"`
}

type capacityRequest struct {
	Capacity int `json:"capacity"`
}

type vipRequest struct {
	VIPOnly bool `json:"vip_only"`
}

type featuresRequest struct {
	Features []string `json:"features"`
}

type attendeeRequest struct {
	AccountID string `json:"account_id"`
}

type eventResponse struct {
	Event            eventDTO `json:"event"`
	MissingFeatures  []string `json:"missing_features,omitempty"`
	DroppedAttendees []string `json:"dropped_attendees,omitempty"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type eventDTO struct {
	ID               string        `json:"id"`
	Kind             string        `json:"kind"`
	Name             string        `json:"name"`
	Description      string        `json:"description,omitempty"`
	Capacity         int           `json:"capacity"`
	Intervals        []intervalDTO `json:"intervals"`
	RoomID           string        `json:"room_id"`
	OrganizerID      string        `json:"organizer_id"`
	HostIDs          []string      `json:"host_ids"`
	AttendeeIDs      []string      `json:"attendee_ids"`
	VIPOnly          bool          `json:"vip_only"`
	RequiredFeatures []string      `json:"required_features,omitempty"`
	CreatedAt        string        `json:"created_at"`
	UpdatedAt        string        `json:"updated_at"`
}

func toEventDTO(event conference.Event) eventDTO {
	return eventDTO{
		ID:               event.ID,
		Kind:             string(event.Kind),
		Name:             event.Name,
		Description:      event.Description,
		Capacity:         event.Capacity,
		Intervals:        toIntervalDTOs(event.Intervals),
		RoomID:           event.RoomID,
		OrganizerID:      event.OrganizerID,
		HostIDs:          nonNil(event.HostIDs),
		AttendeeIDs:      nonNil(event.AttendeeIDs),
		VIPOnly:          event.VIPOnly,
		RequiredFeatures: event.RequiredFeatures,
		CreatedAt:        formatTime(event.CreatedAt),
		UpdatedAt:        formatTime(event.UpdatedAt),
	}
}

func toEventDTOs(events []conference.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}

type conflictsResponse struct {
	Conflicts []conflictDTO `json:"conflicts"`
}

type conflictDTO struct {
	EventID       string      `json:"event_id"`
	Type          string      `json:"type"`
	ParticipantID string      `json:"participant_id,omitempty"`
	RoomID        string      `json:"room_id,omitempty"`
	Overlap       intervalDTO `json:"overlap"`
}

func toConflictDTOs(conflicts []scheduler.Conflict) []conflictDTO {
	out := make([]conflictDTO, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, conflictDTO{
			EventID:       c.WithBookingID,
			Type:          string(c.Type),
			ParticipantID: c.Participant,
			RoomID:        c.RoomID,
			Overlap:       toIntervalDTO(c.Overlap),
		})
	}
	return out
}

func buildEventFilter(values url.Values) (application.EventFilter, error) {
	filter := application.EventFilter{
		RoomID:      strings.TrimSpace(values.Get("room")),
		OrganizerID: strings.TrimSpace(values.Get("organizer")),
	}

	if kind := strings.TrimSpace(values.Get("kind")); kind != "" {
		parsed, err := conference.ParseEventKind(kind)
		if err != nil {
			return application.EventFilter{}, err
		}
		filter.Kind = parsed
	}

	for key, target := range map[string]**time.Time{"from": &filter.From, "to": &filter.To} {
		raw := strings.TrimSpace(values.Get(key))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return application.EventFilter{}, err
		}
		*target = &ts
	}

	if raw := strings.TrimSpace(values.Get("vip_only")); raw != "" {
		vipOnly, err := strconv.ParseBool(raw)
		if err != nil {
			return application.EventFilter{}, err
		}
		filter.VIPOnly = &vipOnly
	}

	return filter, nil
}
