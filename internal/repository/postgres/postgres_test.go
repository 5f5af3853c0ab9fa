package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/repository"
)

const (
	userID  = "6f1c5a7e-3a3f-4a51-9f8e-2f0d8f2a9b01"
	eventID = "0b8d2e4a-5c61-4f0e-8a2b-7f6d5c4b3a21"
)

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return New(db), mock
}

var (
	userCols  = []string{"id", "name", "email", "picture", "created_at", "updated_at", "deleted_at"}
	eventCols = []string{"id", "user_id", "event_type", "event_time", "event_offset", "recorded_at", "created_at", "org_local_date"}
	t0        = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

// =========================================================================
// USERS
// =========================================================================

func TestCreateUser_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users\s*\(id,\s*name,\s*email,\s*picture\).*RETURNING\s+created_at,\s*updated_at$`).
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", nil).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(t0, t0))

	u := &model.User{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, s.CreateUser(context.Background(), u))
	assert.True(t, validID(u.ID))
	assert.Equal(t, t0, u.CreatedAt)
}

func TestCreateUser_UniqueViolationIsConflict(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "ux_users_email_active"})

	err := s.CreateUser(context.Background(), &model.User{Name: "Ada", Email: "ada@example.com"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestCreateUser_DBError(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	err := s.CreateUser(context.Background(), &model.User{Name: "Ada", Email: "ada@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
	assert.NotErrorIs(t, err, apperror.ErrConflict)
}

func TestGetUserByID_Found(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL$`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userID, "Ada", "ada@example.com", "https://x/a.png", t0, t0, nil))

	u, err := s.GetUserByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	require.NotNil(t, u.Picture)
	assert.Equal(t, "https://x/a.png", *u.Picture)
	assert.Nil(t, u.DeletedAt)
}

func TestGetUserByID_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM\s+users`).WithArgs(userID).WillReturnError(sql.ErrNoRows)

	_, err := s.GetUserByID(context.Background(), userID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetUserByID_MalformedIDSkipsQuery(t *testing.T) {
	s, _ := newStoreWithMock(t)

	_, err := s.GetUserByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestGetActiveUserByEmail(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`WHERE\s+email\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL`).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userID, "Ada", "ada@example.com", nil, t0, t0, nil))

	u, err := s.GetActiveUserByEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, userID, u.ID)
	assert.Nil(t, u.Picture)
}

func TestListActiveUsers_DefaultLimit(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)WHERE\s+deleted_at\s+IS\s+NULL\s+ORDER\s+BY\s+created_at\s+DESC,\s*id\s+DESC\s+LIMIT\s+\$1\s+OFFSET\s+\$2`).
		WithArgs(repository.DefaultListLimit, 0).
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(userID, "Ada", "ada@example.com", nil, t0, t0, nil))

	users, err := s.ListActiveUsers(context.Background(), repository.ListOptions{Offset: -3})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestUpdateUserProfile_NoRowIsNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)
	name := "Ada L."

	mock.ExpectQuery(`(?s)^UPDATE\s+users.*WHERE\s+id\s*=\s*\$1\s+AND\s+deleted_at\s+IS\s+NULL\s+RETURNING`).
		WithArgs(userID, name, nil, t0, false).
		WillReturnError(sql.ErrNoRows)

	_, err := s.UpdateUserProfile(context.Background(), userID, model.ProfileUpdate{Name: &name}, t0)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestUpdateUserProfile_ClearPicture(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^UPDATE\s+users.*picture\s*=\s*CASE\s+WHEN\s+\$5\s+THEN\s+NULL`).
		WithArgs(userID, nil, nil, t0, true).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userID, "Ada", "ada@example.com", nil, t0, t0, nil))

	u, err := s.UpdateUserProfile(context.Background(), userID, model.ProfileUpdate{ClearPicture: true}, t0)
	require.NoError(t, err)
	assert.Nil(t, u.Picture)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteUser_UpdatesThenReadsInTx(t *testing.T) {
	s, mock := newStoreWithMock(t)
	deleted := t0.Add(time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+deleted_at\s*=\s*\$2.*deleted_at\s+IS\s+NULL$`).
		WithArgs(userID, deleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(userID, "Ada", "ada@example.com", nil, t0, deleted, deleted))
	mock.ExpectCommit()

	u, err := s.SoftDeleteUser(context.Background(), userID, deleted)
	require.NoError(t, err)
	require.NotNil(t, u.DeletedAt)
	assert.Equal(t, deleted, *u.DeletedAt)
}

func TestSoftDeleteUser_UnknownRollsBack(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE\s+users`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM\s+users`).WithArgs(userID).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.SoftDeleteUser(context.Background(), userID, t0)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestHardDeleteUser(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectExec(`^DELETE\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+users`).
		WithArgs(userID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.HardDeleteUser(context.Background(), userID))
	assert.ErrorIs(t, s.HardDeleteUser(context.Background(), userID), apperror.ErrNotFound)
}

// =========================================================================
// EVENTS
// =========================================================================

func TestAppendEvent_Success(t *testing.T) {
	s, mock := newStoreWithMock(t)
	created := t0.Add(2 * time.Second)
	cet := time.FixedZone("CET", 3600)
	at := t0.In(cet)
	day := civil.Date{Year: 2024, Month: 3, Day: 1}

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+attendance_events.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6,\s*\$7\)\s*RETURNING\s+id,`).
		WithArgs(sqlmock.AnyArg(), userID, "clockIn", t0, 3600, t0, "2024-03-01").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(eventID, userID, "clockIn", t0, 3600, t0, created, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	e, err := s.AppendEvent(context.Background(), model.NewEvent{
		UserID: userID, EventType: model.EventClockIn, EventTime: at, RecordedAt: t0, OrgLocalDate: day,
	})
	require.NoError(t, err)
	assert.Equal(t, eventID, e.ID)
	assert.Equal(t, created, e.CreatedAt)
	assert.Equal(t, day, e.OrgLocalDate)
	_, off := e.EventTime.Zone()
	assert.Equal(t, 3600, off)
	assert.True(t, e.EventTime.Equal(t0))
}

func TestAppendEvent_ForeignKeyViolationIsNotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+attendance_events`).
		WillReturnError(&pgconn.PgError{Code: codeForeignKeyViolation})

	_, err := s.AppendEvent(context.Background(), model.NewEvent{
		UserID: userID, EventType: model.EventClockIn, EventTime: t0, RecordedAt: t0,
		OrgLocalDate: civil.DateOf(t0),
	})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestAppendEvent_ZeroOrgDateNeverQueries(t *testing.T) {
	s, mock := newStoreWithMock(t)

	_, err := s.AppendEvent(context.Background(), model.NewEvent{
		UserID: userID, EventType: model.EventClockIn, EventTime: t0, RecordedAt: t0,
	})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEvent_NotFound(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`FROM\s+attendance_events\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs(eventID).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetEvent(context.Background(), eventID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestListEventsForUser_BuildsRangeAndLimit(t *testing.T) {
	s, mock := newStoreWithMock(t)
	from, to := t0, t0.Add(24*time.Hour)

	mock.ExpectQuery(`(?s)WHERE\s+user_id\s*=\s*\$1\s+AND\s+event_time\s*>=\s*\$2\s+AND\s+event_time\s*<\s*\$3\s+ORDER\s+BY\s+event_time\s+DESC,\s*recorded_at\s+DESC,\s*created_at\s+DESC,\s*id\s+DESC\s+LIMIT\s+\$4$`).
		WithArgs(userID, from, to, 10).
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(eventID, userID, "clockOut", t0.Add(8*time.Hour), 0, t0, t0, t0))

	events, err := s.ListEventsForUser(context.Background(), userID, model.EventFilter{From: &from, To: &to, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventClockOut, events[0].EventType)
}

func TestListEventsForUser_Unbounded(t *testing.T) {
	s, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+event_time\s+DESC.*id\s+DESC$`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(eventCols))

	events, err := s.ListEventsForUser(context.Background(), userID, model.EventFilter{})
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestListEventsByOrgDate(t *testing.T) {
	s, mock := newStoreWithMock(t)
	d := civil.Date{Year: 2024, Month: 3, Day: 1}

	mock.ExpectQuery(`(?s)WHERE\s+user_id\s*=\s*\$1\s+AND\s+org_local_date\s+BETWEEN\s+\$2\s+AND\s+\$3`).
		WithArgs(userID, "2024-03-01", "2024-03-02").
		WillReturnRows(sqlmock.NewRows(eventCols).
			AddRow(eventID, userID, "clockIn", t0, 0, t0, t0, t0))

	events, err := s.ListEventsByOrgDate(context.Background(), userID, d, d.AddDays(1))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, d, events[0].OrgLocalDate)
}
