package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

type roomService interface {
	AddRoom(ctx context.Context, input application.RoomInput) (application.Room, error)
	Get(ctx context.Context, roomID string) (application.Room, error)
	List(ctx context.Context) ([]application.Room, error)
	AvailableRooms(ctx context.Context, params application.AvailableRoomsParams) ([]application.Room, error)
	AddFeature(ctx context.Context, feature string) error
	Features(ctx context.Context) []string
}

type RoomHandler struct {
	service   roomService
	responder responder
	logger    *slog.Logger
}

func NewRoomHandler(service roomService, logger *slog.Logger) *RoomHandler {
	base := defaultLogger(logger)
	return &RoomHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RoomHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "RoomHandler", operation, attrs...)
}

func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode room request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Create", "room_name", req.Name)
	room, err := h.service.AddRoom(r.Context(), req.toInput())
	if err != nil {
		logger.WarnContext(r.Context(), "room creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("room_id", room.ID).InfoContext(r.Context(), "room created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, roomResponse{Room: toRoomDTO(room)})
}

func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	roomID, ok := ParticipantIDFromContext(r.Context())
	if !ok || strings.TrimSpace(roomID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidParticipantID)
		return
	}

	room, err := h.service.Get(r.Context(), roomID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, roomResponse{Room: toRoomDTO(room)})
}

func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	logger := h.log(r.Context(), "List")
	rooms, err := h.service.List(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "room list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(rooms)).DebugContext(r.Context(), "rooms listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: toRoomDTOs(rooms)})
}

// Available answers GET /rooms/available?start=..&end=..[&start=..&end=..]&features=a,b&capacity=n.
func (h *RoomHandler) Available(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	params, err := buildAvailableRoomsParams(r.URL.Query())
	if err != nil {
		h.log(r.Context(), "Available", "error_kind", "bad_request").WarnContext(r.Context(), "invalid room search", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidQuery)
		return
	}

	rooms, err := h.service.AvailableRooms(r.Context(), params)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listRoomsResponse{Rooms: toRoomDTOs(rooms)})
}

func (h *RoomHandler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, featuresResponse{Features: nonNil(h.service.Features(r.Context()))})
}

func (h *RoomHandler) AddFeature(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req featureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "AddFeature", "feature", req.Name)
	if err := h.service.AddFeature(r.Context(), req.Name); err != nil {
		logger.WarnContext(r.Context(), "feature creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "feature added")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, featuresResponse{Features: nonNil(h.service.Features(r.Context()))})
}

type roomRequest struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Capacity  int                    `json:"capacity"`
	OpenHours []conference.HourRange `json:"open_hours"`
	Features  []string               `json:"features"`
}

func (r roomRequest) toInput() application.RoomInput {
	return application.RoomInput{
		ID:        strings.TrimSpace(r.ID),
		Name:      strings.TrimSpace(r.Name),
		Capacity:  r.Capacity,
		OpenHours: append([]conference.HourRange(nil), r.OpenHours...),
		Features:  append([]string(nil), r.Features...),
	}
}

type featureRequest struct {
	Name string `json:"name"`
}

type featuresResponse struct {
	Features []string `json:"features"`
}

type roomResponse struct {
	Room roomDTO `json:"room"`
}

type listRoomsResponse struct {
	Rooms []roomDTO `json:"rooms"`
}

type roomDTO struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Capacity  int                    `json:"capacity"`
	OpenHours []conference.HourRange `json:"open_hours,omitempty"`
	Features  []string               `json:"features"`
	Bookings  int                    `json:"bookings"`
}

func toRoomDTO(room application.Room) roomDTO {
	return roomDTO{
		ID:        room.ID,
		Name:      room.Name,
		Capacity:  room.Capacity,
		OpenHours: room.OpenHours,
		Features:  nonNil(room.Features),
		Bookings:  room.Bookings,
	}
}

func toRoomDTOs(rooms []application.Room) []roomDTO {
	out := make([]roomDTO, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, toRoomDTO(room))
	}
	return out
}

func buildAvailableRoomsParams(values url.Values) (application.AvailableRoomsParams, error) {
	intervals, err := queryIntervals(values)
	if err != nil {
		return application.AvailableRoomsParams{}, err
	}
	params := application.AvailableRoomsParams{
		Intervals: intervals,
		Features:  parseCSV(values.Get("features")),
	}
	if raw := strings.TrimSpace(values.Get("capacity")); raw != "" {
		capacity, err := strconv.Atoi(raw)
		if err != nil {
			return application.AvailableRoomsParams{}, err
		}
		params.Capacity = capacity
	}
	return params, nil
}

// queryIntervals pairs the repeated start and end parameters in order.
func queryIntervals(values url.Values) ([]scheduler.Interval, error) {
	starts, ends := values["start"], values["end"]
	if len(starts) != len(ends) {
		return nil, errors.New("start and end must be given in pairs")
	}
	intervals := make([]scheduler.Interval, 0, len(starts))
	for i := range starts {
		start, err := parseTime(starts[i])
		if err != nil {
			return nil, err
		}
		end, err := parseTime(ends[i])
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, scheduler.Interval{Start: start, End: end})
	}
	return intervals, nil
}
