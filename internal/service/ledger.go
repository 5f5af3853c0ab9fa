package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/reconcile"
	"github.com/sakif/attendance-ledger/internal/repository"
	"github.com/sakif/attendance-ledger/internal/temporal"
)

// SummaryLookback is how far before (and after) the requested day
// DailySummary reads events, so a shift that started the previous evening
// can be paired with its clockOut.
const SummaryLookback = 24 * time.Hour

// MaxHistoryLimit caps one page of raw history.
const MaxHistoryLimit = 1000

// LedgerService appends events and answers questions about them.
type LedgerService struct {
	events repository.EventRepository
	users  repository.UserRepository
	zones  *temporal.ZoneRegistry
	split  bool
	logger *slog.Logger
	now    func() time.Time
}

// NewLedgerService wires the ledger. splitAtMidnight is the organization's
// reconciliation policy (see reconcile.Policy).
func NewLedgerService(
	events repository.EventRepository,
	users repository.UserRepository,
	zones *temporal.ZoneRegistry,
	splitAtMidnight bool,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		events: events,
		users:  users,
		zones:  zones,
		split:  splitAtMidnight,
		logger: logger,
		now:    time.Now,
	}
}

// AppendEventInput is one submission. UserID comes from the authenticated
// caller, never from the request body.
type AppendEventInput struct {
	UserID    string
	EventType string
	EventTime time.Time
}

// AppendEvent validates and records one event.
//
// recordedAt is this server's clock when the request arrived; createdAt is
// assigned by the store. An eventTime earlier than events already stored is
// fine: retroactive corrections are new events, never edits.
func (s *LedgerService) AppendEvent(ctx context.Context, in AppendEventInput) (*model.AttendanceEvent, error) {
	recordedAt := model.Truncate(s.now().UTC())

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, apperror.ValidationFailed("userId", "userId is required")
	}
	typ := model.EventType(strings.TrimSpace(in.EventType))
	if typ == "" {
		return nil, apperror.ValidationFailed("eventType", "eventType is required")
	}
	if !typ.Valid() {
		return nil, apperror.ValidationFailed("eventType",
			fmt.Sprintf("unknown eventType %q, expected one of %v", in.EventType, model.EventTypes))
	}
	if in.EventTime.IsZero() {
		return nil, apperror.ValidationFailed("eventTime", "eventTime is required")
	}

	eventTime := model.Truncate(in.EventTime)
	_, orgLoc := s.zones.Organization()

	e, err := s.events.AppendEvent(ctx, model.NewEvent{
		UserID:       userID,
		EventType:    typ,
		EventTime:    eventTime,
		RecordedAt:   recordedAt,
		OrgLocalDate: temporal.LocalDate(eventTime, orgLoc),
	})
	if err != nil {
		return nil, fmt.Errorf("appending event: %w", err)
	}

	s.logger.Info("event appended",
		slog.String("eventID", e.ID),
		slog.String("userID", e.UserID),
		slog.String("eventType", string(e.EventType)),
		slog.Time("eventTime", e.EventTime),
	)
	return e, nil
}

// GetEvent returns an event owned by userID. Someone else's event is
// reported as forbidden.
func (s *LedgerService) GetEvent(ctx context.Context, userID, id string) (*model.AttendanceEvent, error) {
	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.UserID != userID {
		return nil, apperror.Forbidden("event belongs to another user")
	}
	return e, nil
}

// History returns a user's raw events, newest first. Limit 0 returns the
// whole range.
func (s *LedgerService) History(ctx context.Context, userID string, f model.EventFilter) ([]model.AttendanceEvent, error) {
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperror.ValidationFailed("to", "to must be after from")
	}
	if f.Limit < 0 {
		return nil, apperror.ValidationFailed("limit", "limit must not be negative")
	}
	f.Limit = min(f.Limit, MaxHistoryLimit)

	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	events, err := s.events.ListEventsForUser(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	return events, nil
}

// orgDateSlack widens org-date index scans. Stored org-local dates were
// computed in whatever organization zone was configured at append time; two
// zones differ by at most 26 hours, so a stored date is never more than two
// days away from the date in the current zone.
const orgDateSlack = 2

// DayBuckets groups a user's events by local date in zone.
//
// When zone is the organization zone the (user, org-local date) index
// answers, scanned orgDateSlack days wider than r; any other zone is turned
// into an instant range over (user, event_time). Either way temporal.Bucket
// recomputes each event's date in loc, so an organization zone change never
// drops events near midnight.
func (s *LedgerService) DayBuckets(ctx context.Context, userID, zone string, r temporal.DateRange) ([]model.DayBucket, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	loc, err := s.zones.Lookup(zone)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	var events []model.AttendanceEvent
	if orgZone, _ := s.zones.Organization(); zone == orgZone {
		events, err = s.events.ListEventsByOrgDate(ctx, userID,
			r.Start.AddDays(-orgDateSlack), r.End.AddDays(orgDateSlack))
	} else {
		from, to := temporal.Bounds(loc, r)
		events, err = s.events.ListEventsForUser(ctx, userID, model.EventFilter{From: &from, To: &to})
	}
	if err != nil {
		return nil, fmt.Errorf("loading events for buckets: %w", err)
	}
	return temporal.Bucket(events, loc, r), nil
}

// DailySummary reconciles a user's day in zone. It never fails because of
// what the events say; inconsistencies come back as anomalies.
func (s *LedgerService) DailySummary(ctx context.Context, userID, zone string, date civil.Date) (*model.Summary, error) {
	if !date.IsValid() {
		return nil, apperror.ValidationFailed("date", "invalid date")
	}
	loc, err := s.zones.Lookup(zone)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}

	dayStart, dayEnd := temporal.Bounds(loc, temporal.SingleDay(date))
	from, to := dayStart.Add(-SummaryLookback), dayEnd.Add(SummaryLookback)
	events, err := s.events.ListEventsForUser(ctx, userID, model.EventFilter{From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("loading events for summary: %w", err)
	}

	sum := reconcile.ForDate(events, date, reconcile.Policy{Location: loc, SplitAtMidnight: s.split})
	sum.UserID = userID
	sum.Zone = zone

	if len(sum.Anomalies) > 0 {
		s.logger.Warn("attendance anomalies",
			slog.String("userID", userID),
			slog.String("date", date.String()),
			slog.String("zone", zone),
			slog.Int("count", len(sum.Anomalies)),
		)
	}
	return &sum, nil
}

// requireUser turns queries about an unknown user into NotFound instead of
// an empty answer. Soft-deleted users keep their history.
func (s *LedgerService) requireUser(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperror.ValidationFailed("userId", "userId is required")
	}
	if _, err := s.users.GetUserIncludingDeleted(ctx, userID); err != nil {
		return err
	}
	return nil
}
