package model

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// EventType is the kind of attendance event a user submits.
type EventType string

const (
	EventClockIn    EventType = "clockIn"
	EventClockOut   EventType = "clockOut"
	EventBreakStart EventType = "breakStart"
	EventBreakEnd   EventType = "breakEnd"
)

// EventTypes lists every recognised event type.
var EventTypes = []EventType{EventClockIn, EventClockOut, EventBreakStart, EventBreakEnd}

// Valid reports whether t is one of the four recognised event types.
func (t EventType) Valid() bool {
	switch t {
	case EventClockIn, EventClockOut, EventBreakStart, EventBreakEnd:
		return true
	}
	return false
}

// TimestampPrecision is the resolution every stored timestamp is truncated to.
const TimestampPrecision = time.Microsecond

// Truncate drops sub-microsecond precision (and the monotonic clock reading)
// so a value survives a storage round trip unchanged.
func Truncate(t time.Time) time.Time {
	return t.Truncate(TimestampPrecision)
}

// AttendanceEvent is one immutable row of the ledger.
//
// THREE INDEPENDENT TIMESTAMPS:
//   - EventTime:  when the client says it happened (may be retroactive;
//     keeps the offset it was submitted with)
//   - RecordedAt: when the server received the request
//   - CreatedAt:  when the store wrote the row (assigned by the store's
//     column default, never by Go code)
//
// None is derived from another. A correction is a NEW event; rows are never
// edited, which is why the repository interface has no Update or Delete.
type AttendanceEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	EventType  EventType `json:"eventType"`
	EventTime  time.Time `json:"eventTime"`
	RecordedAt time.Time `json:"recordedAt"`
	CreatedAt  time.Time `json:"createdAt"`

	// OrgLocalDate is EventTime's calendar date in the organization zone,
	// fixed at append time. It backs the (user_id, org_local_date) index.
	OrgLocalDate civil.Date `json:"orgLocalDate"`
}

// NewEvent is the write-side input of the ledger. The store fills ID and
// CreatedAt.
type NewEvent struct {
	UserID       string
	EventType    EventType
	EventTime    time.Time
	RecordedAt   time.Time
	OrgLocalDate civil.Date
}

// EventFilter bounds a history query by EventTime. From is inclusive, To is
// exclusive; nil means unbounded. Limit 0 means no limit.
type EventFilter struct {
	From  *time.Time
	To    *time.Time
	Limit int
}

// CompareEvents orders events the way reconciliation replays them: by
// EventTime, then RecordedAt, then CreatedAt, then ID. The result is total,
// so sorting is deterministic for any input.
func CompareEvents(a, b AttendanceEvent) int {
	if c := a.EventTime.Compare(b.EventTime); c != 0 {
		return c
	}
	if c := a.RecordedAt.Compare(b.RecordedAt); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
