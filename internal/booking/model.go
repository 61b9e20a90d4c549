package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

// Status values match the portal client's uppercase vocabulary.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusRejected  Status = "REJECTED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
)

// Active reports whether the status holds the slot. Only active
// appointments participate in the no-double-booking invariant.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// transitions is the full appointment state machine. Anything absent here
// is an invalid transition.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

type Decision string

const (
	DecisionConfirm Decision = "CONFIRM"
	DecisionReject  Decision = "REJECT"
)

type Appointment struct {
	ID              uuid.UUID
	PractitionerID  uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time // calendar date, midnight UTC
	Time            schedule.TimeOfDay
	DurationMinutes int
	Reason          string
	Notes           string
	DecisionNote    *string
	Status          Status
	CheckedInAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StartAt is the slot's opening instant.
func (a *Appointment) StartAt() time.Time {
	return a.Time.At(a.Date)
}

// EndAt is the slot's closing instant.
func (a *Appointment) EndAt() time.Time {
	return a.StartAt().Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Event is one append-only audit row. Every status change and check-in is
// recorded.
type Event struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

const (
	EventRequested = "APPOINTMENT_REQUESTED"
	EventConfirmed = "APPOINTMENT_CONFIRMED"
	EventRejected  = "APPOINTMENT_REJECTED"
	EventCancelled = "APPOINTMENT_CANCELLED"
	EventCheckedIn = "APPOINTMENT_CHECKED_IN"
	EventCompleted = "APPOINTMENT_COMPLETED"
	EventNoShow    = "APPOINTMENT_NO_SHOW"
)
