package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/example/conference-scheduler/internal/persistence"
)

const (
	dialectSQLite = "sqlite3"

	tableSnapshots    = "snapshots"
	tableParticipants = "snapshot_participants"
	tableEvents       = "snapshot_events"

	colID          = "id"
	colSnapshotID  = "snapshot_id"
	colTakenAt     = "taken_at"
	colCreatedAt   = "created_at"
	colFeatures    = "features"
	colPartCount   = "participant_count"
	colEventCount  = "event_count"
	colKind        = "kind"
	colUsername    = "username"
	colPassword    = "password_hash"
	colRoom        = "room"
	colSchedule    = "schedule"
	colSpecialist  = "specialist"
	colName        = "name"
	colDescription = "description"
	colCapacity    = "capacity"
	colRoomID      = "room_id"
	colOrganizerID = "organizer_id"
	colHostIDs     = "host_ids"
	colAttendeeIDs = "attendee_ids"
	colVIPOnly     = "vip_only"
	colRequired    = "required_features"
	colIntervals   = "intervals"
	colUpdatedAt   = "updated_at"

	// timeLayout keeps fractional seconds at fixed width so TEXT ordering
	// matches chronological ordering for UTC values.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type snapshotRow struct {
	ID               string `db:"id"`
	TakenAt          string `db:"taken_at"`
	Features         string `db:"features"`
	ParticipantCount int    `db:"participant_count"`
	EventCount       int    `db:"event_count"`
	CreatedAt        string `db:"created_at"`
}

type participantRow struct {
	SnapshotID   string         `db:"snapshot_id"`
	ID           string         `db:"id"`
	Kind         string         `db:"kind"`
	Username     string         `db:"username"`
	PasswordHash string         `db:"password_hash"`
	Room         sql.NullString `db:"room"`
	Schedule     string         `db:"schedule"`
	Specialist   string         `db:"specialist"`
}

type eventRow struct {
	SnapshotID       string `db:"snapshot_id"`
	ID               string `db:"id"`
	Kind             string `db:"kind"`
	Name             string `db:"name"`
	Description      string `db:"description"`
	Capacity         int    `db:"capacity"`
	RoomID           string `db:"room_id"`
	OrganizerID      string `db:"organizer_id"`
	HostIDs          string `db:"host_ids"`
	AttendeeIDs      string `db:"attendee_ids"`
	VIPOnly          bool   `db:"vip_only"`
	RequiredFeatures string `db:"required_features"`
	Intervals        string `db:"intervals"`
	CreatedAt        string `db:"created_at"`
	UpdatedAt        string `db:"updated_at"`
}

// SnapshotRepository implements persistence.SnapshotRepository on SQLite.
type SnapshotRepository struct {
	pool    *ConnectionPool
	builder goqu.DialectWrapper
	retry   RetryConfig
}

// NewSnapshotRepository returns a repository over pool.
func NewSnapshotRepository(pool *ConnectionPool) *SnapshotRepository {
	return &SnapshotRepository{
		pool:    pool,
		builder: goqu.Dialect(dialectSQLite),
		retry:   DefaultRetryConfig(),
	}
}

// SaveSnapshot writes the header, participants and events in one transaction.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot persistence.Snapshot) error {
	header, err := encodeSnapshot(snapshot)
	if err != nil {
		return err
	}
	participants := make([]interface{}, 0, len(snapshot.Participants))
	for _, p := range snapshot.Participants {
		row, err := encodeParticipant(snapshot.ID, p)
		if err != nil {
			return err
		}
		participants = append(participants, row)
	}
	events := make([]interface{}, 0, len(snapshot.Events))
	for _, e := range snapshot.Events {
		row, err := encodeEvent(snapshot.ID, e)
		if err != nil {
			return err
		}
		events = append(events, row)
	}

	statements := make([]*goqu.InsertDataset, 0, 3)
	statements = append(statements, r.builder.Insert(tableSnapshots).Rows(header))
	if len(participants) > 0 {
		statements = append(statements, r.builder.Insert(tableParticipants).Rows(participants...))
	}
	if len(events) > 0 {
		statements = append(statements, r.builder.Insert(tableEvents).Rows(events...))
	}

	return withRetry(ctx, r.retry, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			for _, stmt := range statements {
				query, args, err := stmt.Prepared(true).ToSQL()
				if err != nil {
					return fmt.Errorf("sqlite: build insert: %w", err)
				}
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return mapError(err)
				}
			}
			return nil
		})
	})
}

// GetSnapshot loads a snapshot with its contents.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, id string) (persistence.Snapshot, error) {
	query, args, err := r.selectHeaders().
		Where(goqu.C(colID).Eq(id)).
		Prepared(true).ToSQL()
	if err != nil {
		return persistence.Snapshot{}, fmt.Errorf("sqlite: build select: %w", err)
	}
	return r.loadSnapshot(ctx, query, args)
}

// LatestSnapshot loads the snapshot with the newest taken_at.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context) (persistence.Snapshot, error) {
	query, args, err := r.selectHeaders().
		Order(goqu.C(colTakenAt).Desc(), goqu.C(colCreatedAt).Desc()).
		Limit(1).
		Prepared(true).ToSQL()
	if err != nil {
		return persistence.Snapshot{}, fmt.Errorf("sqlite: build select: %w", err)
	}
	return r.loadSnapshot(ctx, query, args)
}

// ListSnapshots returns summaries ordered newest first.
func (r *SnapshotRepository) ListSnapshots(ctx context.Context) ([]persistence.SnapshotSummary, error) {
	query, args, err := r.selectHeaders().
		Order(goqu.C(colTakenAt).Desc(), goqu.C(colCreatedAt).Desc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build select: %w", err)
	}

	var rows []snapshotRow
	if err := r.pool.DB().SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapError(err)
	}
	out := make([]persistence.SnapshotSummary, 0, len(rows))
	for _, row := range rows {
		header, err := decodeSnapshot(row)
		if err != nil {
			return nil, err
		}
		out = append(out, persistence.SnapshotSummary{
			ID:               header.ID,
			TakenAt:          header.TakenAt,
			ParticipantCount: row.ParticipantCount,
			EventCount:       row.EventCount,
			CreatedAt:        header.CreatedAt,
		})
	}
	return out, nil
}

// PruneSnapshots deletes everything but the newest keep snapshots.
func (r *SnapshotRepository) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("sqlite: keep must not be negative, got %d", keep)
	}

	removed := 0
	err := withRetry(ctx, r.retry, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			query, args, err := r.builder.From(tableSnapshots).
				Select(goqu.C(colID)).
				Order(goqu.C(colTakenAt).Desc(), goqu.C(colCreatedAt).Desc()).
				Prepared(true).ToSQL()
			if err != nil {
				return fmt.Errorf("sqlite: build select: %w", err)
			}
			var ids []string
			if err := tx.SelectContext(ctx, &ids, query, args...); err != nil {
				return mapError(err)
			}
			if len(ids) <= keep {
				removed = 0
				return nil
			}
			stale := ids[keep:]

			deletes := []*goqu.DeleteDataset{
				r.builder.Delete(tableEvents).Where(goqu.C(colSnapshotID).In(stale)),
				r.builder.Delete(tableParticipants).Where(goqu.C(colSnapshotID).In(stale)),
				r.builder.Delete(tableSnapshots).Where(goqu.C(colID).In(stale)),
			}
			for _, stmt := range deletes {
				query, args, err := stmt.Prepared(true).ToSQL()
				if err != nil {
					return fmt.Errorf("sqlite: build delete: %w", err)
				}
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return mapError(err)
				}
			}
			removed = len(stale)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *SnapshotRepository) selectHeaders() *goqu.SelectDataset {
	return r.builder.From(tableSnapshots).Select(
		goqu.C(colID), goqu.C(colTakenAt), goqu.C(colFeatures),
		goqu.C(colPartCount), goqu.C(colEventCount), goqu.C(colCreatedAt),
	)
}

func (r *SnapshotRepository) loadSnapshot(ctx context.Context, headerQuery string, headerArgs []interface{}) (persistence.Snapshot, error) {
	var snapshot persistence.Snapshot
	err := r.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		var header snapshotRow
		if err := tx.GetContext(ctx, &header, headerQuery, headerArgs...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return mapError(err)
		}
		decoded, err := decodeSnapshot(header)
		if err != nil {
			return err
		}

		query, args, err := r.builder.From(tableParticipants).
			Select(goqu.C(colSnapshotID), goqu.C(colID), goqu.C(colKind), goqu.C(colUsername),
				goqu.C(colPassword), goqu.C(colRoom), goqu.C(colSchedule), goqu.C(colSpecialist)).
			Where(goqu.C(colSnapshotID).Eq(header.ID)).
			Order(goqu.C(colID).Asc()).
			Prepared(true).ToSQL()
		if err != nil {
			return fmt.Errorf("sqlite: build select: %w", err)
		}
		var participants []participantRow
		if err := tx.SelectContext(ctx, &participants, query, args...); err != nil {
			return mapError(err)
		}
		for _, row := range participants {
			p, err := decodeParticipant(row)
			if err != nil {
				return err
			}
			decoded.Participants = append(decoded.Participants, p)
		}

		query, args, err = r.builder.From(tableEvents).
			Select(goqu.C(colSnapshotID), goqu.C(colID), goqu.C(colKind), goqu.C(colName),
				goqu.C(colDescription), goqu.C(colCapacity), goqu.C(colRoomID), goqu.C(colOrganizerID),
				goqu.C(colHostIDs), goqu.C(colAttendeeIDs), goqu.C(colVIPOnly), goqu.C(colRequired),
				goqu.C(colIntervals), goqu.C(colCreatedAt), goqu.C(colUpdatedAt)).
			Where(goqu.C(colSnapshotID).Eq(header.ID)).
			Order(goqu.C(colID).Asc()).
			Prepared(true).ToSQL()
		if err != nil {
			return fmt.Errorf("sqlite: build select: %w", err)
		}
		var events []eventRow
		if err := tx.SelectContext(ctx, &events, query, args...); err != nil {
			return mapError(err)
		}
		for _, row := range events {
			e, err := decodeEvent(row)
			if err != nil {
				return err
			}
			decoded.Events = append(decoded.Events, e)
		}

		if len(decoded.Participants) != header.ParticipantCount || len(decoded.Events) != header.EventCount {
			return fmt.Errorf("%w: snapshot %s expects %d participants and %d events, found %d and %d",
				persistence.ErrCorruptRecord, header.ID, header.ParticipantCount, header.EventCount,
				len(decoded.Participants), len(decoded.Events))
		}
		snapshot = decoded
		return nil
	})
	if err != nil {
		return persistence.Snapshot{}, err
	}
	return snapshot, nil
}

func encodeSnapshot(s persistence.Snapshot) (snapshotRow, error) {
	if s.ID == "" {
		return snapshotRow{}, fmt.Errorf("%w: snapshot id is required", persistence.ErrConstraintViolation)
	}
	features, err := marshalText(nonNilStrings(s.Features))
	if err != nil {
		return snapshotRow{}, err
	}
	return snapshotRow{
		ID:               s.ID,
		TakenAt:          formatTime(s.TakenAt),
		Features:         features,
		ParticipantCount: len(s.Participants),
		EventCount:       len(s.Events),
		CreatedAt:        formatTime(s.CreatedAt),
	}, nil
}

func decodeSnapshot(row snapshotRow) (persistence.Snapshot, error) {
	takenAt, err := parseTime(row.TakenAt)
	if err != nil {
		return persistence.Snapshot{}, err
	}
	createdAt, err := parseTime(row.CreatedAt)
	if err != nil {
		return persistence.Snapshot{}, err
	}
	var features []string
	if err := unmarshalText(row.Features, &features); err != nil {
		return persistence.Snapshot{}, err
	}
	return persistence.Snapshot{ID: row.ID, TakenAt: takenAt, Features: features, CreatedAt: createdAt}, nil
}

func encodeParticipant(snapshotID string, p persistence.Participant) (participantRow, error) {
	row := participantRow{
		SnapshotID:   snapshotID,
		ID:           p.ID,
		Kind:         p.Kind,
		Username:     p.Username,
		PasswordHash: p.PasswordHash,
	}
	if p.Room != nil {
		room, err := marshalText(p.Room)
		if err != nil {
			return participantRow{}, err
		}
		row.Room = sql.NullString{String: room, Valid: true}
	}
	var err error
	if row.Schedule, err = marshalText(nonNilBookings(p.Schedule)); err != nil {
		return participantRow{}, err
	}
	if row.Specialist, err = marshalText(nonNilStrings(p.Specialist)); err != nil {
		return participantRow{}, err
	}
	return row, nil
}

func decodeParticipant(row participantRow) (persistence.Participant, error) {
	p := persistence.Participant{
		ID:           row.ID,
		Kind:         row.Kind,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
	}
	if row.Room.Valid {
		p.Room = &persistence.Room{}
		if err := unmarshalText(row.Room.String, p.Room); err != nil {
			return persistence.Participant{}, err
		}
	}
	if err := unmarshalText(row.Schedule, &p.Schedule); err != nil {
		return persistence.Participant{}, err
	}
	if err := unmarshalText(row.Specialist, &p.Specialist); err != nil {
		return persistence.Participant{}, err
	}
	return p, nil
}

func encodeEvent(snapshotID string, e persistence.Event) (eventRow, error) {
	row := eventRow{
		SnapshotID:  snapshotID,
		ID:          e.ID,
		Kind:        e.Kind,
		Name:        e.Name,
		Description: e.Description,
		Capacity:    e.Capacity,
		RoomID:      e.RoomID,
		OrganizerID: e.OrganizerID,
		VIPOnly:     e.VIPOnly,
		CreatedAt:   formatTime(e.CreatedAt),
		UpdatedAt:   formatTime(e.UpdatedAt),
	}
	var err error
	if row.HostIDs, err = marshalText(nonNilStrings(e.HostIDs)); err != nil {
		return eventRow{}, err
	}
	if row.AttendeeIDs, err = marshalText(nonNilStrings(e.AttendeeIDs)); err != nil {
		return eventRow{}, err
	}
	if row.RequiredFeatures, err = marshalText(nonNilStrings(e.RequiredFeatures)); err != nil {
		return eventRow{}, err
	}
	if row.Intervals, err = marshalText(e.Intervals); err != nil {
		return eventRow{}, err
	}
	return row, nil
}

func decodeEvent(row eventRow) (persistence.Event, error) {
	e := persistence.Event{
		ID:          row.ID,
		Kind:        row.Kind,
		Name:        row.Name,
		Description: row.Description,
		Capacity:    row.Capacity,
		RoomID:      row.RoomID,
		OrganizerID: row.OrganizerID,
		VIPOnly:     row.VIPOnly,
	}
	var err error
	if e.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return persistence.Event{}, err
	}
	if e.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return persistence.Event{}, err
	}
	columns := []struct {
		name   string
		raw    string
		target interface{}
	}{
		{colHostIDs, row.HostIDs, &e.HostIDs},
		{colAttendeeIDs, row.AttendeeIDs, &e.AttendeeIDs},
		{colRequired, row.RequiredFeatures, &e.RequiredFeatures},
		{colIntervals, row.Intervals, &e.Intervals},
	}
	for _, column := range columns {
		if err := unmarshalText(column.raw, column.target); err != nil {
			return persistence.Event{}, fmt.Errorf("event %s column %s: %w", row.ID, column.name, err)
		}
	}
	return e, nil
}

func marshalText(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("sqlite: encode column: %w", err)
	}
	return string(data), nil
}

func unmarshalText(raw string, v interface{}) error {
	if raw == "" {
		return nil
	}
	if err := json.UnmarshalFromString(raw, v); err != nil {
		return fmt.Errorf("%w: %v", persistence.ErrCorruptRecord, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", persistence.ErrCorruptRecord, err)
	}
	return t, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilBookings(values []persistence.Booking) []persistence.Booking {
	if values == nil {
		return []persistence.Booking{}
	}
	return values
}
