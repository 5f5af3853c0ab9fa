// Package reconcile turns raw ledger events into attendance summaries.
//
// Everything here is a pure function of its input: no I/O, no clock, no
// errors. Events that do not fit the state machine
//
//	Idle --clockIn--> Working --breakStart--> OnBreak --breakEnd--> Working --clockOut--> Idle
//
// become model.Anomaly values in the output and are otherwise skipped, so
// any input, however inconsistent, produces a summary.
package reconcile

import (
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/temporal"
)

// Policy holds the organization choices reconciliation depends on.
type Policy struct {
	// Location decides which calendar date a session belongs to.
	Location *time.Location

	// SplitAtMidnight clips sessions at local midnight and credits each part
	// to its own date. When false a session counts in full toward the date
	// of its clockIn.
	SplitAtMidnight bool
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Sort orders events in place by model.CompareEvents.
func Sort(events []model.AttendanceEvent) {
	slices.SortFunc(events, model.CompareEvents)
}

// Sorted returns a sorted copy and leaves events untouched.
func Sorted(events []model.AttendanceEvent) []model.AttendanceEvent {
	out := slices.Clone(events)
	Sort(out)
	return out
}

// timeline is the result of replaying a full event sequence.
type timeline struct {
	sessions  []model.Session
	anomalies []anomaly
}

// anomaly remembers which session, if any, was open when it happened so
// date attribution can follow the session rather than the event's own date.
type anomaly struct {
	model.Anomaly
	session int // index into timeline.sessions, -1 when Idle
}

// replay runs the state machine over events in canonical order.
func replay(events []model.AttendanceEvent) timeline {
	var (
		tl      timeline
		state   = model.StateIdle
		cur     = -1 // open session index
		lastAt  time.Time
		breakID string // event that opened the current break
		flagged = func(e model.AttendanceEvent, kind model.AnomalyKind, msg string) {
			tl.anomalies = append(tl.anomalies, anomaly{
				Anomaly: model.Anomaly{
					EventID:   e.ID,
					EventType: e.EventType,
					At:        e.EventTime,
					State:     state,
					Kind:      kind,
					Message:   msg,
				},
				session: cur,
			})
		}
	)

	for _, e := range Sorted(events) {
		if cur >= 0 {
			lastAt = e.EventTime
		}

		switch e.EventType {
		case model.EventClockIn:
			switch state {
			case model.StateIdle:
				tl.sessions = append(tl.sessions, model.Session{
					ClockInEventID: e.ID,
					ClockIn:        e.EventTime,
					Breaks:         []model.Break{},
				})
				cur = len(tl.sessions) - 1
				lastAt = e.EventTime
				state = model.StateWorking
			case model.StateWorking:
				flagged(e, model.AnomalyDuplicateClockIn, "clockIn while already clocked in")
			case model.StateOnBreak:
				flagged(e, model.AnomalyClockInDuringBreak, "clockIn while on break")
			}

		case model.EventBreakStart:
			switch state {
			case model.StateWorking:
				s := &tl.sessions[cur]
				s.Breaks = append(s.Breaks, model.Break{Start: e.EventTime})
				breakID = e.ID
				state = model.StateOnBreak
			case model.StateIdle:
				flagged(e, model.AnomalyBreakStartOutsideSession, "breakStart without an open session")
			case model.StateOnBreak:
				flagged(e, model.AnomalyBreakStartDuringBreak, "breakStart while already on break")
			}

		case model.EventBreakEnd:
			if state != model.StateOnBreak {
				flagged(e, model.AnomalyBreakEndWithoutBreak, "breakEnd without an open break")
				break
			}
			closeBreak(&tl.sessions[cur], e.EventTime)
			state = model.StateWorking

		case model.EventClockOut:
			switch state {
			case model.StateIdle:
				flagged(e, model.AnomalyClockOutWithoutClockIn, "clockOut without an open session")
			case model.StateOnBreak:
				flagged(e, model.AnomalyClockOutDuringBreak, "clockOut while on break; break closed at clockOut")
				closeBreak(&tl.sessions[cur], e.EventTime)
				fallthrough
			case model.StateWorking:
				closeSession(&tl.sessions[cur], e.EventTime)
				cur = -1
				state = model.StateIdle
			}

		default:
			flagged(e, model.AnomalyUnknownEventType, fmt.Sprintf("unknown event type %q", e.EventType))
		}
	}

	// Input ran out with a session still open: count it up to the last
	// event seen and say so.
	if cur >= 0 {
		s := &tl.sessions[cur]
		if state == model.StateOnBreak {
			b := &s.Breaks[len(s.Breaks)-1]
			b.Duration = lastAt.Sub(b.Start)
			tl.anomalies = append(tl.anomalies, anomaly{
				Anomaly: model.Anomaly{
					EventID: breakID, EventType: model.EventBreakStart,
					At: b.Start, State: state, Kind: model.AnomalyOpenBreak,
					Message: "break has no breakEnd",
				},
				session: cur,
			})
		}
		tl.anomalies = append(tl.anomalies, anomaly{
			Anomaly: model.Anomaly{
				EventID: s.ClockInEventID, EventType: model.EventClockIn,
				At: s.ClockIn, State: state, Kind: model.AnomalyOpenSession,
				Message: "session has no clockOut",
			},
			session: cur,
		})
		s.BreakTime = breakTotal(s.Breaks)
		s.Worked = lastAt.Sub(s.ClockIn) - s.BreakTime
	}

	return tl
}

func closeBreak(s *model.Session, at time.Time) {
	b := &s.Breaks[len(s.Breaks)-1]
	end := at
	b.End = &end
	b.Duration = at.Sub(b.Start)
}

func closeSession(s *model.Session, at time.Time) {
	end := at
	s.ClockOut = &end
	s.Complete = true
	s.BreakTime = breakTotal(s.Breaks)
	s.Worked = at.Sub(s.ClockIn) - s.BreakTime
}

func breakTotal(breaks []model.Break) time.Duration {
	var d time.Duration
	for _, b := range breaks {
		d += b.Duration
	}
	return d
}

// Reconcile replays events and summarizes all of them, with no date
// attribution. Summary.Date is the local date of the first event, if any.
func Reconcile(events []model.AttendanceEvent, p Policy) model.Summary {
	tl := replay(events)

	sum := newSummary()
	if len(events) > 0 {
		sum.Date = temporal.LocalDate(Sorted(events)[0].EventTime, p.location())
	}
	sum.Sessions = append(sum.Sessions, tl.sessions...)
	for _, a := range tl.anomalies {
		sum.Anomalies = append(sum.Anomalies, a.Anomaly)
	}
	return total(sum)
}

// ForDate replays events and keeps what belongs to date d in p.Location.
//
// Feed it more than the day: a session that started the evening before and
// ended after midnight can only be paired if its clockIn is in the input.
//
// Attribution:
//   - a session belongs to the date of its clockIn (or, with
//     SplitAtMidnight, contributes its clipped part to every date it spans)
//   - an anomaly raised inside a session follows that session; any other
//     anomaly belongs to the date of its own event time
func ForDate(events []model.AttendanceEvent, d civil.Date, p Policy) model.Summary {
	loc := p.location()
	tl := replay(events)

	sum := newSummary()
	sum.Date = d

	dayStart, dayEnd := temporal.Bounds(loc, temporal.SingleDay(d))
	attributed := make(map[int]bool, len(tl.sessions))
	for i, s := range tl.sessions {
		if p.SplitAtMidnight {
			clipped, ok := clip(s, dayStart, dayEnd)
			if !ok {
				continue
			}
			sum.Sessions = append(sum.Sessions, clipped)
			attributed[i] = true
			continue
		}
		if temporal.LocalDate(s.ClockIn, loc) == d {
			sum.Sessions = append(sum.Sessions, s)
			attributed[i] = true
		}
	}

	for _, a := range tl.anomalies {
		var keep bool
		if a.session >= 0 && !p.SplitAtMidnight {
			keep = attributed[a.session]
		} else {
			keep = temporal.LocalDate(a.At, loc) == d
		}
		if keep {
			sum.Anomalies = append(sum.Anomalies, a.Anomaly)
		}
	}
	return total(sum)
}

func newSummary() model.Summary {
	return model.Summary{Sessions: []model.Session{}, Anomalies: []model.Anomaly{}}
}

func total(sum model.Summary) model.Summary {
	for _, s := range sum.Sessions {
		sum.Worked += s.Worked
		sum.BreakTime += s.BreakTime
		if !s.Complete {
			sum.Incomplete = true
		}
	}
	for _, a := range sum.Anomalies {
		if a.Kind == model.AnomalyOpenSession || a.Kind == model.AnomalyOpenBreak {
			sum.Incomplete = true
		}
	}
	return sum
}
