package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// WorkState is the reconciliation state of a user between two events.
type WorkState string

const (
	StateIdle    WorkState = "idle"
	StateWorking WorkState = "working"
	StateOnBreak WorkState = "onBreak"
)

// AnomalyKind classifies an event that is not a valid transition.
type AnomalyKind string

const (
	AnomalyDuplicateClockIn         AnomalyKind = "duplicateClockIn"
	AnomalyClockInDuringBreak       AnomalyKind = "clockInDuringBreak"
	AnomalyClockOutWithoutClockIn   AnomalyKind = "clockOutWithoutClockIn"
	AnomalyClockOutDuringBreak      AnomalyKind = "clockOutDuringBreak"
	AnomalyBreakStartOutsideSession AnomalyKind = "breakStartOutsideSession"
	AnomalyBreakStartDuringBreak    AnomalyKind = "breakStartDuringBreak"
	AnomalyBreakEndWithoutBreak     AnomalyKind = "breakEndWithoutBreak"
	AnomalyOpenSession              AnomalyKind = "openSession"
	AnomalyOpenBreak                AnomalyKind = "openBreak"
	AnomalyUnknownEventType         AnomalyKind = "unknownEventType"
)

// Anomaly is a warning embedded in a summary, never an error.
type Anomaly struct {
	EventID   string      `json:"eventId"`
	EventType EventType   `json:"eventType"`
	At        time.Time   `json:"at"`
	State     WorkState   `json:"state"` // state the event arrived in
	Kind      AnomalyKind `json:"kind"`
	Message   string      `json:"message"`
}

// Break is a breakStart..breakEnd interval nested in a session.
// End is nil while the break is still open.
type Break struct {
	Start    time.Time     `json:"start"`
	End      *time.Time    `json:"end,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Session is a clockIn..clockOut interval. ClockOut is nil while open.
type Session struct {
	ClockInEventID string        `json:"clockInEventId"`
	ClockIn        time.Time     `json:"clockIn"`
	ClockOut       *time.Time    `json:"clockOut,omitempty"`
	Breaks         []Break       `json:"breaks"`
	Worked         time.Duration `json:"worked"`
	BreakTime      time.Duration `json:"breakTime"`
	Complete       bool          `json:"complete"`
	Clipped        bool          `json:"clipped,omitempty"` // cut at a midnight boundary
}

// Summary is the reconciled attendance of one user on one local date.
type Summary struct {
	UserID     string        `json:"userId"`
	Date       civil.Date    `json:"date"`
	Zone       string        `json:"zone"`
	Sessions   []Session     `json:"sessions"`
	Worked     time.Duration `json:"worked"`
	BreakTime  time.Duration `json:"breakTime"`
	Anomalies  []Anomaly     `json:"anomalies"`
	Incomplete bool          `json:"incomplete"`
}

// DayBucket holds the events whose EventTime falls on Date in some zone.
type DayBucket struct {
	Date   civil.Date        `json:"date"`
	Events []AttendanceEvent `json:"events"`
}
