package reconcile

import (
	"time"

	"github.com/sakif/attendance-ledger/internal/model"
)

// sessionEnd is ClockOut, or for an open session the last instant counted.
func sessionEnd(s model.Session) time.Time {
	if s.ClockOut != nil {
		return *s.ClockOut
	}
	return s.ClockIn.Add(s.Worked + s.BreakTime)
}

// clip restricts s to [from, to). ok is false when nothing of s falls there.
func clip(s model.Session, from, to time.Time) (model.Session, bool) {
	start, end := s.ClockIn, sessionEnd(s)
	if !start.Before(to) || (end.Compare(from) <= 0 && start.Before(from)) {
		return model.Session{}, false
	}

	out := s
	out.Breaks = make([]model.Break, 0, len(s.Breaks))
	if start.Before(from) {
		out.ClockIn = from
		out.Clipped = true
	}
	if end.After(to) {
		cut := to
		out.ClockOut = &cut
		out.Clipped = true
		end = to
	}

	var breakTime time.Duration
	for _, b := range s.Breaks {
		bStart, bEnd := b.Start, b.Start.Add(b.Duration)
		bStart = later(bStart, out.ClockIn)
		bEnd = earlier(bEnd, end)
		// A break touching the cut only at its edge is not part of this day.
		if bEnd.Before(bStart) || (bEnd.Equal(bStart) && b.Duration > 0) {
			continue
		}
		cb := model.Break{Start: bStart, End: b.End, Duration: bEnd.Sub(bStart)}
		if b.End != nil && b.End.After(end) {
			e := end
			cb.End = &e
		}
		breakTime += cb.Duration
		out.Breaks = append(out.Breaks, cb)
	}

	out.BreakTime = breakTime
	out.Worked = end.Sub(out.ClockIn) - breakTime
	return out, true
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
