package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already has an active appointment")
	ErrSlotBusy            = errors.New("slot is currently being booked, please retry")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUnauthorized        = errors.New("actor may not perform this mutation")
	ErrValidation          = errors.New("invalid booking input")
)

// Repository contains all DB interactions needed by the booking ledger.
type Repository interface {
	// InsertPending creates the appointment if and only if no active
	// appointment holds the same (practitioner, date, time). A loss maps
	// to ErrSlotTaken. This is the serialized insert-if-absent at the
	// heart of booking correctness.
	InsertPending(ctx context.Context, appt *Appointment) error

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// UpdateStatus transitions id from one exact status to another; a
	// concurrent change of the row's status makes this a no-match,
	// reported as ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, note *string) (*Appointment, error)

	// SetCheckedIn stamps arrival on a confirmed appointment.
	SetCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error)

	// BookedTimes lists slot times held by PENDING/CONFIRMED appointments.
	BookedTimes(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status, limit, offset int) ([]Appointment, error)
	ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, status *Status, limit, offset int) ([]Appointment, error)

	// Sweep candidate queries.
	FindStalePending(ctx context.Context, now time.Time) ([]Appointment, error)
	FindCompletable(ctx context.Context, now time.Time) ([]Appointment, error)
	FindNoShowCandidates(ctx context.Context, now time.Time, grace time.Duration) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev Event) error
}
