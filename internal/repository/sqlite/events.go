package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/rs/xid"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/model"
)

const eventColumns = `id, user_id, event_type, event_time, event_offset, recorded_at, created_at, org_local_date`

// eventOrder is the newest-first history order. The trailing keys make it
// total, so pagination never reorders equal event times.
const eventOrder = `ORDER BY event_time DESC, recorded_at DESC, created_at DESC, id DESC`

func scanEvent(s rowScanner) (*model.AttendanceEvent, error) {
	var (
		e                                model.AttendanceEvent
		eventType, orgDate               string
		eventTime, recordedAt, createdAt int64
		offset                           int
	)
	if err := s.Scan(&e.ID, &e.UserID, &eventType, &eventTime, &offset, &recordedAt, &createdAt, &orgDate); err != nil {
		return nil, err
	}
	d, err := civil.ParseDate(orgDate)
	if err != nil {
		return nil, fmt.Errorf("parsing org_local_date %q: %w", orgDate, err)
	}
	e.EventType = model.EventType(eventType)
	e.EventTime = withOffset(eventTime, offset)
	e.RecordedAt = fromMicros(recordedAt)
	e.CreatedAt = fromMicros(createdAt)
	e.OrgLocalDate = d
	return &e, nil
}

// AppendEvent inserts one immutable event.
//
// created_at is NOT in the column list: the column default assigns it inside
// the INSERT, and RETURNING hands it back in the same round trip.
func (db *DB) AppendEvent(ctx context.Context, in model.NewEvent) (*model.AttendanceEvent, error) {
	if !in.OrgLocalDate.IsValid() {
		return nil, apperror.ValidationFailed("orgLocalDate", fmt.Sprintf("invalid org-local date %s", in.OrgLocalDate))
	}
	_, offset := in.EventTime.Zone()

	e, err := scanEvent(db.conn.QueryRowContext(ctx,
		`INSERT INTO attendance_events
		     (id, user_id, event_type, event_time, event_offset, recorded_at, org_local_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING `+eventColumns,
		xid.New().String(),
		in.UserID,
		string(in.EventType),
		toMicros(in.EventTime),
		offset,
		toMicros(in.RecordedAt),
		in.OrgLocalDate.String(),
	))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, apperror.NotFound("user", in.UserID)
		}
		return nil, fmt.Errorf("sqlite: appending event for user %s: %w", in.UserID, err)
	}
	return e, nil
}

// GetEvent returns a single event by id.
func (db *DB) GetEvent(ctx context.Context, id string) (*model.AttendanceEvent, error) {
	e, err := scanEvent(db.conn.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM attendance_events WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("sqlite: getting event %s: %w", id, err)
	}
	return e, nil
}

// ListEventsForUser scans idx_attendance_events_user_time.
func (db *DB) ListEventsForUser(ctx context.Context, userID string, f model.EventFilter) ([]model.AttendanceEvent, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if f.From != nil {
		where = append(where, "event_time >= ?")
		args = append(args, toMicros(*f.From))
	}
	if f.To != nil {
		where = append(where, "event_time < ?")
		args = append(args, toMicros(*f.To))
	}

	query := `SELECT ` + eventColumns + ` FROM attendance_events WHERE ` +
		strings.Join(where, " AND ") + " " + eventOrder
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	return db.queryEvents(ctx, query, args...)
}

// ListEventsByOrgDate scans idx_attendance_events_user_org_date.
func (db *DB) ListEventsByOrgDate(ctx context.Context, userID string, from, to civil.Date) ([]model.AttendanceEvent, error) {
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM attendance_events
		 WHERE user_id = ? AND org_local_date BETWEEN ? AND ? `+eventOrder,
		userID, from.String(), to.String(),
	)
}

func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]model.AttendanceEvent, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing events: %w", err)
	}
	defer rows.Close()

	events := []model.AttendanceEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating event rows: %w", err)
	}
	return events, nil
}
