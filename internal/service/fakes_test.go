package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/repository"
)

// fakeUserRepo is an in-memory repository.UserRepository. Like the real
// stores it enforces email uniqueness among active users only, and it does
// so under one lock so concurrent creates behave like a unique index.
type fakeUserRepo struct {
	mu     sync.Mutex
	users  map[string]*model.User
	order  []string // insertion order, oldest first
	nextID int

	createErr    error // returned by CreateUser when set
	creates      int
	lookupMisses int // GetActiveUserByEmail reports NotFound this many times
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) CreateUser(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.users {
		if existing.Active() && existing.Email == u.Email {
			return apperror.Conflict("user", "email "+u.Email)
		}
	}
	f.nextID++
	now := model.Truncate(time.Now().UTC())
	u.ID = fmt.Sprintf("user-%d", f.nextID)
	u.CreatedAt, u.UpdatedAt = now, now
	copied := *u
	f.users[u.ID] = &copied
	f.order = append(f.order, u.ID)
	return nil
}

func (f *fakeUserRepo) get(id string, includeDeleted bool) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || (!includeDeleted && !u.Active()) {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.get(id, false)
}

func (f *fakeUserRepo) GetUserIncludingDeleted(_ context.Context, id string) (*model.User, error) {
	return f.get(id, true)
}

func (f *fakeUserRepo) GetActiveUserByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupMisses > 0 {
		f.lookupMisses--
		return nil, apperror.NotFound("user", email)
	}
	for _, u := range f.users {
		if u.Active() && u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, apperror.NotFound("user", email)
}

func (f *fakeUserRepo) ListActiveUsers(_ context.Context, opts repository.ListOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.User{}
	for i := len(f.order) - 1; i >= 0; i-- {
		if u := f.users[f.order[i]]; u.Active() {
			out = append(out, *u)
		}
	}
	if opts.Offset >= len(out) {
		return []model.User{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeUserRepo) UpdateUserProfile(_ context.Context, id string, upd model.ProfileUpdate, at time.Time) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok || !u.Active() {
		return nil, apperror.NotFound("user", id)
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Picture != nil {
		pic := *upd.Picture
		u.Picture = &pic
	}
	if upd.ClearPicture {
		u.Picture = nil
	}
	u.UpdatedAt = at
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) SoftDeleteUser(_ context.Context, id string, at time.Time) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	if u.DeletedAt == nil {
		u.DeletedAt = &at
		u.UpdatedAt = at
	}
	copied := *u
	return &copied, nil
}

func (f *fakeUserRepo) HardDeleteUser(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return apperror.NotFound("user", id)
	}
	delete(f.users, id)
	f.order = slices.DeleteFunc(f.order, func(s string) bool { return s == id })
	return nil
}

// fakeEventRepo is an in-memory repository.EventRepository. It checks the
// user reference against users, standing in for the foreign key, and
// records which access path each query used.
type fakeEventRepo struct {
	mu     sync.Mutex
	users  *fakeUserRepo
	events []model.AttendanceEvent
	nextID int
	clock  func() time.Time

	byOrgDateCalls int
	forUserCalls   int
	lastFilter     model.EventFilter
}

func newFakeEventRepo(users *fakeUserRepo) *fakeEventRepo {
	return &fakeEventRepo{users: users, clock: time.Now}
}

func (f *fakeEventRepo) AppendEvent(_ context.Context, e model.NewEvent) (*model.AttendanceEvent, error) {
	if _, err := f.users.get(e.UserID, true); err != nil {
		return nil, apperror.NotFound("user", e.UserID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	stored := model.AttendanceEvent{
		ID:           fmt.Sprintf("event-%03d", f.nextID),
		UserID:       e.UserID,
		EventType:    e.EventType,
		EventTime:    e.EventTime,
		RecordedAt:   e.RecordedAt,
		CreatedAt:    model.Truncate(f.clock().UTC()),
		OrgLocalDate: e.OrgLocalDate,
	}
	f.events = append(f.events, stored)
	return &stored, nil
}

func (f *fakeEventRepo) GetEvent(_ context.Context, id string) (*model.AttendanceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, apperror.NotFound("event", id)
}

func (f *fakeEventRepo) ListEventsForUser(_ context.Context, userID string, flt model.EventFilter) ([]model.AttendanceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forUserCalls++
	f.lastFilter = flt
	out := f.selectLocked(func(e model.AttendanceEvent) bool {
		return e.UserID == userID &&
			(flt.From == nil || !e.EventTime.Before(*flt.From)) &&
			(flt.To == nil || e.EventTime.Before(*flt.To))
	})
	if flt.Limit > 0 && flt.Limit < len(out) {
		out = out[:flt.Limit]
	}
	return out, nil
}

func (f *fakeEventRepo) ListEventsByOrgDate(_ context.Context, userID string, from, to civil.Date) ([]model.AttendanceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byOrgDateCalls++
	return f.selectLocked(func(e model.AttendanceEvent) bool {
		return e.UserID == userID && !e.OrgLocalDate.Before(from) && !e.OrgLocalDate.After(to)
	}), nil
}

// selectLocked returns matching events newest first, like the stores.
func (f *fakeEventRepo) selectLocked(keep func(model.AttendanceEvent) bool) []model.AttendanceEvent {
	out := []model.AttendanceEvent{}
	for _, e := range f.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b model.AttendanceEvent) int { return model.CompareEvents(b, a) })
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }
