package temporal

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sakif/attendance-ledger/internal/apperror"
)

// MaxRangeDays bounds a DateRange so one query cannot scan years of events.
const MaxRangeDays = 366

// DateRange is an inclusive range of civil dates.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// SingleDay is the range containing only d.
func SingleDay(d civil.Date) DateRange {
	return DateRange{Start: d, End: d}
}

// ParseDateRange parses two "YYYY-MM-DD" strings and validates the result.
// An empty end means a single day.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := civil.ParseDate(start)
	if err != nil {
		return DateRange{}, apperror.ValidationFailed("from", fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", start))
	}
	e := s
	if end != "" {
		if e, err = civil.ParseDate(end); err != nil {
			return DateRange{}, apperror.ValidationFailed("to", fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", end))
		}
	}
	r := DateRange{Start: s, End: e}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate checks Start <= End and the MaxRangeDays limit.
func (r DateRange) Validate() error {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return apperror.ValidationFailed("date", "invalid date")
	}
	if r.End.Before(r.Start) {
		return apperror.ValidationFailed("to", "range end is before its start")
	}
	if r.Days() > MaxRangeDays {
		return apperror.ValidationFailed("to", fmt.Sprintf("range spans more than %d days", MaxRangeDays))
	}
	return nil
}

// Days is the number of dates in the range.
func (r DateRange) Days() int {
	return r.End.DaysSince(r.Start) + 1
}

// Dates lists every date in the range in order.
func (r DateRange) Dates() []civil.Date {
	out := make([]civil.Date, 0, max(r.Days(), 0))
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		out = append(out, d)
	}
	return out
}

// Contains reports whether d is inside the range.
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Midnight is the first instant of d in loc.
//
// Where a DST transition happens at midnight (America/Santiago,
// America/Havana) 00:00 does not exist and time.Date may normalize it onto
// the previous date. The zone's next transition is then the first instant
// of d.
func Midnight(d civil.Date, loc *time.Location) time.Time {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	if LocalDate(t, loc).Before(d) {
		if _, end := t.ZoneBounds(); !end.IsZero() {
			t = end
		}
	}
	return t
}

// Bounds returns the half-open instant interval [from, to) covering r in
// loc. It is exactly as long as the local days are, so a spring-forward day
// contributes 23 hours.
func Bounds(loc *time.Location, r DateRange) (from, to time.Time) {
	return Midnight(r.Start, loc), Midnight(r.End.AddDays(1), loc)
}

// LocalDate is the calendar date of t in loc.
func LocalDate(t time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(t.In(loc))
}
