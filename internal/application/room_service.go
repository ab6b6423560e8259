package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/gosimple/slug"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// RoomService manages the rooms of the conference and the feature catalog.
type RoomService struct {
	coordinator *ScheduleCoordinator
	maxCapacity int
	logger      *slog.Logger
}

// NewRoomService constructs a room service. A maxCapacity of zero leaves room
// capacity unbounded.
func NewRoomService(coordinator *ScheduleCoordinator, maxCapacity int) *RoomService {
	return NewRoomServiceWithLogger(coordinator, maxCapacity, nil)
}

// NewRoomServiceWithLogger constructs a room service with a specified logger.
func NewRoomServiceWithLogger(coordinator *ScheduleCoordinator, maxCapacity int, logger *slog.Logger) *RoomService {
	return &RoomService{coordinator: coordinator, maxCapacity: maxCapacity, logger: defaultLogger(logger)}
}

func (s *RoomService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "RoomService", operation, attrs...)
}

// AddRoom validates input and registers a new room. Without an explicit id
// the room is addressed by the slug of its name.
func (s *RoomService) AddRoom(ctx context.Context, input RoomInput) (room Room, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("RoomService is not configured")
		return
	}

	logger := s.loggerWith(ctx, "AddRoom", "name", input.Name)
	defer func() {
		logOutcome(ctx, logger, err, "failed to add room", "room added", "room_id", room.ID)
	}()

	vErr := s.validateRoomInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = slug.Make(input.Name)
	}
	if !slug.IsSlug(id) {
		vErr.add("id", "id must be a lowercase slug")
		err = vErr
		return
	}

	err = s.coordinator.write(func(st *conference.State, j *conference.Journal) error {
		for _, f := range conference.NormalizeFeatures(input.Features) {
			if !st.HasFeature(f) {
				vErr := &ValidationError{}
				vErr.add("features", fmt.Sprintf("unknown feature %q", f))
				return vErr
			}
		}
		p := conference.NewRoom(id, conference.RoomSpec{
			Name:      strings.TrimSpace(input.Name),
			Capacity:  input.Capacity,
			OpenHours: append([]conference.HourRange(nil), input.OpenHours...),
			Features:  input.Features,
		})
		if err := j.AddParticipant(p); err != nil {
			return mapDomainError(err)
		}
		room = roomView(p)
		return nil
	})
	if err != nil {
		room = Room{}
	}
	return
}

// Get returns one room.
func (s *RoomService) Get(ctx context.Context, roomID string) (room Room, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("RoomService is not configured")
		return
	}
	err = s.coordinator.read(func(st *conference.State) error {
		p, err := requireRoom(st, roomID)
		if err != nil {
			return err
		}
		room = roomView(p)
		return nil
	})
	return
}

// List returns every room sorted by name.
func (s *RoomService) List(ctx context.Context) (rooms []Room, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("RoomService is not configured")
		return
	}
	err = s.coordinator.read(func(st *conference.State) error {
		for _, p := range st.Participants(conference.KindRoom) {
			rooms = append(rooms, roomView(p))
		}
		return nil
	})
	sortRooms(rooms)
	return
}

// Describe returns the room's bookings.
func (s *RoomService) Describe(ctx context.Context, roomID string) (ParticipantSchedule, error) {
	if s == nil || s.coordinator == nil {
		return ParticipantSchedule{}, fmt.Errorf("RoomService is not configured")
	}
	if _, err := s.Get(ctx, roomID); err != nil {
		return ParticipantSchedule{}, err
	}
	return s.coordinator.Schedule(ctx, roomID)
}

// AddFeature extends the feature catalog.
func (s *RoomService) AddFeature(ctx context.Context, feature string) (err error) {
	if s == nil || s.coordinator == nil {
		return fmt.Errorf("RoomService is not configured")
	}
	logger := s.loggerWith(ctx, "AddFeature", "feature", feature)
	defer func() {
		logOutcome(ctx, logger, err, "failed to add feature", "feature added")
	}()

	if strings.TrimSpace(feature) == "" {
		vErr := &ValidationError{}
		vErr.add("feature", "feature is required")
		return vErr
	}
	return s.coordinator.write(func(st *conference.State, j *conference.Journal) error {
		if !j.AddFeature(feature) {
			return fmt.Errorf("%w: feature %s", ErrAlreadyExists, strings.TrimSpace(feature))
		}
		return nil
	})
}

// Features returns the feature catalog.
func (s *RoomService) Features(ctx context.Context) []string {
	if s == nil || s.coordinator == nil {
		return nil
	}
	var out []string
	_ = s.coordinator.read(func(st *conference.State) error {
		out = st.Features()
		return nil
	})
	return out
}

// AvailableRooms lists rooms that are open and free for every interval, have
// every requested feature and seat at least params.Capacity people.
func (s *RoomService) AvailableRooms(ctx context.Context, params AvailableRoomsParams) (rooms []Room, err error) {
	if s == nil || s.coordinator == nil {
		err = fmt.Errorf("RoomService is not configured")
		return
	}
	logger := s.loggerWith(ctx, "AvailableRooms", "interval_count", len(params.Intervals))
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to search rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "rooms searched", "result_count", len(rooms))
	}()

	intervals, normErr := scheduler.Normalize(params.Intervals)
	if normErr != nil {
		vErr := &ValidationError{}
		vErr.add("intervals", intervalMessage(normErr))
		err = vErr
		return
	}

	loc := s.coordinator.Location()
	err = s.coordinator.read(func(st *conference.State) error {
		for _, p := range st.Participants(conference.KindRoom) {
			if p.Room.Capacity < params.Capacity {
				continue
			}
			if len(p.Room.MissingFeatures(params.Features)) > 0 {
				continue
			}
			if !p.Room.Open(intervals, loc) || !p.IsFreeForAll(intervals) {
				continue
			}
			rooms = append(rooms, roomView(p))
		}
		return nil
	})
	sortRooms(rooms)
	return
}

func (s *RoomService) validateRoomInput(input RoomInput) *ValidationError {
	vErr := &ValidationError{}

	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if input.Capacity <= 0 {
		vErr.add("capacity", "capacity must be positive")
	} else if s.maxCapacity > 0 && input.Capacity > s.maxCapacity {
		vErr.add("capacity", fmt.Sprintf("capacity must not exceed %d", s.maxCapacity))
	}
	for _, h := range input.OpenHours {
		if err := h.Validate(); err != nil {
			vErr.add("open_hours", err.Error())
			break
		}
	}
	return vErr
}

func roomView(p *conference.Participant) Room {
	return Room{
		ID:        p.ID,
		Name:      p.Room.Name,
		Capacity:  p.Room.Capacity,
		OpenHours: append([]conference.HourRange(nil), p.Room.OpenHours...),
		Features:  append([]string(nil), p.Room.Features...),
		Bookings:  len(p.Schedule()),
	}
}

func sortRooms(rooms []Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if strings.EqualFold(rooms[i].Name, rooms[j].Name) {
			return rooms[i].ID < rooms[j].ID
		}
		return strings.ToLower(rooms[i].Name) < strings.ToLower(rooms[j].Name)
	})
}
