package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/model"
)

const eventColumns = `id, user_id, event_type, event_time, event_offset, recorded_at, created_at, org_local_date`

const eventOrder = `ORDER BY event_time DESC, recorded_at DESC, created_at DESC, id DESC`

func scanEvent(s rowScanner) (*model.AttendanceEvent, error) {
	var (
		e         model.AttendanceEvent
		eventType string
		offset    int
		orgDate   time.Time
	)
	if err := s.Scan(&e.ID, &e.UserID, &eventType, &e.EventTime, &offset, &e.RecordedAt, &e.CreatedAt, &orgDate); err != nil {
		return nil, err
	}
	e.EventType = model.EventType(eventType)
	e.EventTime = withOffset(e.EventTime, offset)
	e.RecordedAt = toUTC(e.RecordedAt)
	e.CreatedAt = toUTC(e.CreatedAt)
	// DATE arrives as midnight UTC; read the calendar fields as they are.
	e.OrgLocalDate = civil.DateOf(orgDate.UTC())
	return &e, nil
}

// AppendEvent inserts one event and returns it with the store-assigned
// created_at.
func (s *Store) AppendEvent(ctx context.Context, in model.NewEvent) (*model.AttendanceEvent, error) {
	if !validID(in.UserID) {
		return nil, apperror.NotFound("user", in.UserID)
	}
	if !in.OrgLocalDate.IsValid() {
		return nil, apperror.ValidationFailed("orgLocalDate", fmt.Sprintf("invalid org-local date %s", in.OrgLocalDate))
	}
	_, offset := in.EventTime.Zone()

	e, err := scanEvent(s.q.QueryRowContext(ctx,
		`INSERT INTO attendance_events
		     (id, user_id, event_type, event_time, event_offset, recorded_at, org_local_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+eventColumns,
		uuid.NewString(),
		in.UserID,
		string(in.EventType),
		in.EventTime.UTC(),
		offset,
		in.RecordedAt.UTC(),
		in.OrgLocalDate.String(),
	))
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return nil, apperror.NotFound("user", in.UserID)
		}
		return nil, fmt.Errorf("postgres: appending event for user %s: %w", in.UserID, err)
	}
	return e, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*model.AttendanceEvent, error) {
	if !validID(id) {
		return nil, apperror.NotFound("event", id)
	}
	e, err := scanEvent(s.q.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM attendance_events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("event", id)
		}
		return nil, fmt.Errorf("postgres: getting event %s: %w", id, err)
	}
	return e, nil
}

func (s *Store) ListEventsForUser(ctx context.Context, userID string, f model.EventFilter) ([]model.AttendanceEvent, error) {
	if !validID(userID) {
		return []model.AttendanceEvent{}, nil
	}

	var (
		where = []string{"user_id = $1"}
		args  = []any{userID}
	)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.From != nil {
		where = append(where, "event_time >= "+next(f.From.UTC()))
	}
	if f.To != nil {
		where = append(where, "event_time < "+next(f.To.UTC()))
	}

	query := `SELECT ` + eventColumns + ` FROM attendance_events WHERE ` +
		strings.Join(where, " AND ") + " " + eventOrder
	if f.Limit > 0 {
		query += " LIMIT " + next(f.Limit)
	}
	return s.queryEvents(ctx, query, args...)
}

func (s *Store) ListEventsByOrgDate(ctx context.Context, userID string, from, to civil.Date) ([]model.AttendanceEvent, error) {
	if !validID(userID) {
		return []model.AttendanceEvent{}, nil
	}
	return s.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM attendance_events
		 WHERE user_id = $1 AND org_local_date BETWEEN $2 AND $3 `+eventOrder,
		userID, from.String(), to.String(),
	)
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]model.AttendanceEvent, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing events: %w", err)
	}
	defer rows.Close()

	events := []model.AttendanceEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning event row: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating event rows: %w", err)
	}
	return events, nil
}
