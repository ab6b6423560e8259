package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/persistence"
	"github.com/example/conference-scheduler/internal/scheduler"
)

// SnapshotService persists the conference graph and restores it on startup.
type SnapshotService struct {
	coordinator *ScheduleCoordinator
	repo        persistence.SnapshotRepository
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger

	mu       sync.Mutex
	saved    bool
	savedRev uint64
}

// NewSnapshotService constructs a SnapshotService instance.
func NewSnapshotService(coordinator *ScheduleCoordinator, repo persistence.SnapshotRepository, idGenerator func() string, now func() time.Time) *SnapshotService {
	return NewSnapshotServiceWithLogger(coordinator, repo, idGenerator, now, nil)
}

// NewSnapshotServiceWithLogger constructs a SnapshotService with an explicit logger.
func NewSnapshotServiceWithLogger(coordinator *ScheduleCoordinator, repo persistence.SnapshotRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SnapshotService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SnapshotService{
		coordinator: coordinator,
		repo:        repo,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SnapshotService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SnapshotService", operation, attrs...)
}

// Save writes the current graph as a new snapshot.
func (s *SnapshotService) Save(ctx context.Context) (info SnapshotInfo, err error) {
	if s == nil || s.coordinator == nil || s.repo == nil {
		return SnapshotInfo{}, fmt.Errorf("snapshot service is not configured")
	}
	logger := s.loggerWith(ctx, "Save")
	defer func() {
		logOutcome(ctx, logger, err, "failed to save snapshot", "snapshot saved",
			"snapshot_id", info.ID,
			"participant_count", info.ParticipantCount,
			"event_count", info.EventCount,
		)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	revision := s.coordinator.Revision()
	snap := s.coordinator.Snapshot(ctx)
	info, err = s.store(ctx, snap)
	if err != nil {
		return
	}
	s.saved = true
	s.savedRev = revision
	return
}

// SaveIfChanged saves only when the graph changed since the last save or load.
// It reports whether a snapshot was written.
func (s *SnapshotService) SaveIfChanged(ctx context.Context) (SnapshotInfo, bool, error) {
	if s == nil || s.coordinator == nil {
		return SnapshotInfo{}, false, fmt.Errorf("snapshot service is not configured")
	}
	s.mu.Lock()
	unchanged := s.saved && s.savedRev == s.coordinator.Revision()
	s.mu.Unlock()
	if unchanged {
		s.loggerWith(ctx, "SaveIfChanged").DebugContext(ctx, "snapshot skipped, no changes", "revision", s.savedRev)
		return SnapshotInfo{}, false, nil
	}
	info, err := s.Save(ctx)
	if err != nil {
		return SnapshotInfo{}, false, err
	}
	return info, true, nil
}

func (s *SnapshotService) store(ctx context.Context, snap conference.Snapshot) (SnapshotInfo, error) {
	id := strings.TrimSpace(s.idGenerator())
	if id == "" {
		return SnapshotInfo{}, fmt.Errorf("snapshot id generator returned empty id")
	}
	record := snapshotToPersistence(id, snap, s.now())
	if err := s.repo.SaveSnapshot(ctx, record); err != nil {
		return SnapshotInfo{}, mapSnapshotRepoError(err)
	}
	return SnapshotInfo{
		ID:               id,
		TakenAt:          record.TakenAt,
		ParticipantCount: len(record.Participants),
		EventCount:       len(record.Events),
	}, nil
}

// LoadLatest restores the newest snapshot into the coordinator. It returns
// ErrNotFound when nothing was saved yet.
func (s *SnapshotService) LoadLatest(ctx context.Context) (SnapshotInfo, conference.RepairReport, error) {
	return s.load(ctx, "LoadLatest", func() (persistence.Snapshot, error) {
		return s.repo.LatestSnapshot(ctx)
	})
}

// Load restores the snapshot with the given id.
func (s *SnapshotService) Load(ctx context.Context, id string) (SnapshotInfo, conference.RepairReport, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		vErr := &ValidationError{}
		vErr.add("id", "snapshot id is required")
		return SnapshotInfo{}, conference.RepairReport{}, vErr
	}
	return s.load(ctx, "Load", func() (persistence.Snapshot, error) {
		return s.repo.GetSnapshot(ctx, id)
	})
}

func (s *SnapshotService) load(ctx context.Context, operation string, fetch func() (persistence.Snapshot, error)) (info SnapshotInfo, report conference.RepairReport, err error) {
	if s == nil || s.coordinator == nil || s.repo == nil {
		err = fmt.Errorf("snapshot service is not configured")
		return
	}
	logger := s.loggerWith(ctx, operation)
	defer func() {
		logOutcome(ctx, logger, err, "failed to load snapshot", "snapshot loaded",
			"snapshot_id", info.ID,
			"repairs", len(report.Violations),
		)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := fetch()
	if err != nil {
		err = mapSnapshotRepoError(err)
		return
	}
	snap, err := snapshotFromPersistence(record)
	if err != nil {
		return
	}
	report, err = s.coordinator.Restore(ctx, snap, conference.RestoreRepair)
	if err != nil {
		return
	}
	info = SnapshotInfo{
		ID:               record.ID,
		TakenAt:          record.TakenAt,
		ParticipantCount: len(record.Participants),
		EventCount:       len(record.Events),
	}
	s.saved = true
	s.savedRev = s.coordinator.Revision()
	if !report.Clean() {
		// Repairs exist only in memory until the next save.
		s.saved = false
	}
	return
}

// List returns stored snapshots newest first.
func (s *SnapshotService) List(ctx context.Context) ([]SnapshotInfo, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("snapshot service is not configured")
	}
	summaries, err := s.repo.ListSnapshots(ctx)
	if err != nil {
		return nil, mapSnapshotRepoError(err)
	}
	out := make([]SnapshotInfo, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, SnapshotInfo{
			ID:               summary.ID,
			TakenAt:          summary.TakenAt,
			ParticipantCount: summary.ParticipantCount,
			EventCount:       summary.EventCount,
		})
	}
	return out, nil
}

// Prune keeps the newest keep snapshots and reports how many were removed.
func (s *SnapshotService) Prune(ctx context.Context, keep int) (removed int, err error) {
	if s == nil || s.repo == nil {
		return 0, fmt.Errorf("snapshot service is not configured")
	}
	logger := s.loggerWith(ctx, "Prune", "keep", keep)
	defer func() {
		logOutcome(ctx, logger, err, "failed to prune snapshots", "snapshots pruned", "removed", removed)
	}()

	if keep < 1 {
		vErr := &ValidationError{}
		vErr.add("keep", "must keep at least one snapshot")
		err = vErr
		return
	}
	removed, err = s.repo.PruneSnapshots(ctx, keep)
	if err != nil {
		err = mapSnapshotRepoError(err)
	}
	return
}

func mapSnapshotRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return fmt.Errorf("%w: snapshot", ErrNotFound)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: snapshot: %v", ErrAlreadyExists, err)
	case errors.Is(err, persistence.ErrCorruptRecord):
		return fmt.Errorf("%w: %v", ErrInvariantViolation, err)
	}
	return err
}

func snapshotToPersistence(id string, snap conference.Snapshot, createdAt time.Time) persistence.Snapshot {
	out := persistence.Snapshot{
		ID:        id,
		TakenAt:   snap.TakenAt,
		Features:  append([]string(nil), snap.Features...),
		CreatedAt: createdAt,
	}
	for _, p := range snap.Participants {
		record := persistence.Participant{
			ID:           p.ID,
			Kind:         string(p.Kind),
			Username:     p.Username,
			PasswordHash: p.PasswordHash,
			Specialist:   append([]string(nil), p.Specialist...),
		}
		if p.Room != nil {
			room := &persistence.Room{
				Name:     p.Room.Name,
				Capacity: p.Room.Capacity,
				Features: append([]string(nil), p.Room.Features...),
			}
			for _, h := range p.Room.OpenHours {
				room.OpenHours = append(room.OpenHours, persistence.HourRange{From: h.From, To: h.To})
			}
			record.Room = room
		}
		for _, entry := range p.Schedule {
			record.Schedule = append(record.Schedule, persistence.Booking{EventID: entry.EventID, Start: entry.Start, End: entry.End})
		}
		out.Participants = append(out.Participants, record)
	}
	for _, e := range snap.Events {
		record := persistence.Event{
			ID:               e.ID,
			Kind:             string(e.Kind),
			Name:             e.Name,
			Description:      e.Description,
			Capacity:         e.Capacity,
			RoomID:           e.RoomID,
			OrganizerID:      e.OrganizerID,
			HostIDs:          append([]string(nil), e.HostIDs...),
			AttendeeIDs:      append([]string(nil), e.AttendeeIDs...),
			VIPOnly:          e.VIPOnly,
			RequiredFeatures: append([]string(nil), e.RequiredFeatures...),
			CreatedAt:        e.CreatedAt,
			UpdatedAt:        e.UpdatedAt,
		}
		for _, iv := range e.Intervals {
			record.Intervals = append(record.Intervals, persistence.Span{Start: iv.Start, End: iv.End})
		}
		out.Events = append(out.Events, record)
	}
	return out
}

func snapshotFromPersistence(record persistence.Snapshot) (conference.Snapshot, error) {
	snap := conference.Snapshot{
		TakenAt:  record.TakenAt,
		Features: append([]string(nil), record.Features...),
	}
	for _, p := range record.Participants {
		participant := conference.ParticipantRecord{
			ID:           p.ID,
			Kind:         conference.Kind(p.Kind),
			Username:     p.Username,
			PasswordHash: p.PasswordHash,
			Specialist:   append([]string(nil), p.Specialist...),
		}
		if p.Room != nil {
			spec := &conference.RoomSpec{
				Name:     p.Room.Name,
				Capacity: p.Room.Capacity,
				Features: append([]string(nil), p.Room.Features...),
			}
			for _, h := range p.Room.OpenHours {
				spec.OpenHours = append(spec.OpenHours, conference.HourRange{From: h.From, To: h.To})
			}
			participant.Room = spec
		}
		for _, b := range p.Schedule {
			participant.Schedule = append(participant.Schedule, conference.ScheduleEntry{EventID: b.EventID, Start: b.Start, End: b.End})
		}
		snap.Participants = append(snap.Participants, participant)
	}
	for _, e := range record.Events {
		kind, err := conference.ParseEventKind(e.Kind)
		if err != nil {
			return conference.Snapshot{}, fmt.Errorf("%w: event %s: %v", ErrInvariantViolation, e.ID, err)
		}
		event := conference.Event{
			ID:               e.ID,
			Kind:             kind,
			Name:             e.Name,
			Description:      e.Description,
			Capacity:         e.Capacity,
			RoomID:           e.RoomID,
			OrganizerID:      e.OrganizerID,
			HostIDs:          append([]string(nil), e.HostIDs...),
			AttendeeIDs:      append([]string(nil), e.AttendeeIDs...),
			VIPOnly:          e.VIPOnly,
			RequiredFeatures: append([]string(nil), e.RequiredFeatures...),
			CreatedAt:        e.CreatedAt,
			UpdatedAt:        e.UpdatedAt,
		}
		for _, span := range e.Intervals {
			event.Intervals = append(event.Intervals, scheduler.Interval{Start: span.Start, End: span.End})
		}
		snap.Events = append(snap.Events, event)
	}
	return snap, nil
}
