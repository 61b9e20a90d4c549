package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caredesk/clinic-scheduling/internal/clock"
	"github.com/caredesk/clinic-scheduling/internal/observability/metrics"
	redisclient "github.com/caredesk/clinic-scheduling/internal/redis"
	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

// Directory is the slice of the calendar service the ledger needs:
// existence checks plus the day schedule that fixes slot duration.
type Directory interface {
	GetPractitioner(ctx context.Context, id uuid.UUID) (*schedule.Practitioner, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*schedule.Patient, error)
	ScheduleForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time) (schedule.DaySchedule, error)
}

// SlotSource computes current availability; the slots.Generator implements
// it.
type SlotSource interface {
	Available(ctx context.Context, practitionerID uuid.UUID, date, now time.Time) ([]schedule.TimeOfDay, error)
}

// BookingRequest is the validated input for Request.
type BookingRequest struct {
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Date           time.Time
	Time           schedule.TimeOfDay
	Reason         string
	Notes          string
}

// SweepResult reports what one sweep pass did.
type SweepResult struct {
	Completed        int
	NoShows          int
	CancelledPending int
}

// Service is the booking ledger: the single source of truth for appointment
// existence and status.
type Service struct {
	repo      Repository
	slots     SlotSource
	directory Directory
	locker    redisclient.Locker
	clk       clock.Clock
	grace     time.Duration
	metrics   *metrics.SchedulingMetrics
	logger    zerolog.Logger
}

func NewService(
	repo Repository,
	slots SlotSource,
	directory Directory,
	locker redisclient.Locker,
	clk clock.Clock,
	grace time.Duration,
	m *metrics.SchedulingMetrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		slots:     slots,
		directory: directory,
		locker:    locker,
		clk:       clk,
		grace:     grace,
		metrics:   m,
		logger:    logger.With().Str("component", "booking").Logger(),
	}
}

// Request books a slot for a patient. The slot must be a current member of
// the practitioner's availability; membership is re-checked at write time
// under a per-slot lock, and the insert itself is guarded by the active-slot
// unique index, so two concurrent requests for the same slot produce exactly
// one PENDING appointment.
func (s *Service) Request(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	practitioner, err := s.directory.GetPractitioner(ctx, req.PractitionerID)
	if err != nil {
		return nil, err
	}
	if !practitioner.Active {
		return nil, schedule.ErrPractitionerNotFound
	}
	if _, err := s.directory.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	date := schedule.DateOnly(req.Date)

	// First membership check outside the lock rejects obviously bad input
	// cheaply and distinguishes "taken" from "never offered".
	if err := s.checkSlotOpen(ctx, req.PractitionerID, date, req.Time, now); err != nil {
		s.observeBookingErr(err)
		return nil, err
	}

	var created *Appointment
	key := redisclient.SlotLockKey(req.PractitionerID, date.Format(schedule.DateLayout), req.Time.String())

	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		// Re-validate inside the critical section: the slot may have been
		// taken since the read above.
		if err := s.checkSlotOpen(lockCtx, req.PractitionerID, date, req.Time, now); err != nil {
			return err
		}

		appt := &Appointment{
			PractitionerID:  req.PractitionerID,
			PatientID:       req.PatientID,
			Date:            date,
			Time:            req.Time,
			DurationMinutes: s.slotMinutes(lockCtx, req.PractitionerID, date),
			Reason:          strings.TrimSpace(req.Reason),
			Notes:           req.Notes,
		}
		if err := s.repo.InsertPending(lockCtx, appt); err != nil {
			return err
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventRequested, map[string]any{
			"practitioner_id": req.PractitionerID.String(),
			"patient_id":      req.PatientID.String(),
			"date":            date.Format(schedule.DateLayout),
			"time":            req.Time.String(),
		})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			err = ErrSlotBusy
		}
		s.observeBookingErr(err)
		return nil, err
	}

	s.metrics.ObserveBooking("created")
	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("practitioner_id", created.PractitionerID.String()).
		Str("slot", created.Date.Format(schedule.DateLayout)+" "+created.Time.String()).
		Msg("appointment requested")
	return created, nil
}

// checkSlotOpen verifies (date, time) is currently offered. Held slots map
// to ErrSlotTaken; times the schedule never offers map to ErrValidation.
func (s *Service) checkSlotOpen(ctx context.Context, practitionerID uuid.UUID, date time.Time, t schedule.TimeOfDay, now time.Time) error {
	open, err := s.slots.Available(ctx, practitionerID, date, now)
	if err != nil {
		return err
	}
	for _, o := range open {
		if o == t {
			return nil
		}
	}

	booked, err := s.repo.BookedTimes(ctx, practitionerID, date)
	if err != nil {
		return err
	}
	for _, b := range booked {
		if b == t {
			return ErrSlotTaken
		}
	}
	return fmt.Errorf("%w: %s on %s is not a bookable slot", ErrValidation, t, date.Format(schedule.DateLayout))
}

// slotMinutes resolves the appointment duration from the day's rule,
// falling back to 30 when the calendar read fails mid-booking.
func (s *Service) slotMinutes(ctx context.Context, practitionerID uuid.UUID, date time.Time) int {
	if day, err := s.directory.ScheduleForDate(ctx, practitionerID, date); err == nil && day.Rule != nil {
		return day.Rule.SlotMinutes
	}
	return 30
}

// Decide lets the owning practitioner confirm or reject a pending request.
// Rejection requires a note for the patient.
func (s *Service) Decide(ctx context.Context, appointmentID, practitionerID uuid.UUID, decision Decision, note string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PractitionerID != practitionerID {
		return nil, ErrUnauthorized
	}
	if appt.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot decide a %s appointment", ErrInvalidTransition, appt.Status)
	}

	var to Status
	var eventType string
	var notePtr *string

	switch decision {
	case DecisionConfirm:
		to = StatusConfirmed
		eventType = EventConfirmed
		if n := strings.TrimSpace(note); n != "" {
			notePtr = &n
		}
	case DecisionReject:
		n := strings.TrimSpace(note)
		if n == "" {
			return nil, fmt.Errorf("%w: rejection requires a note", ErrValidation)
		}
		to = StatusRejected
		eventType = EventRejected
		notePtr = &n
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrValidation, decision)
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, StatusPending, to, notePtr)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Row exists but its status moved under us.
			return nil, fmt.Errorf("%w: appointment is no longer pending", ErrInvalidTransition)
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, eventType, map[string]any{"by": practitionerID.String()})
	s.logger.Info().
		Str("appointment_id", updated.ID.String()).
		Str("status", string(updated.Status)).
		Msg("appointment decided")
	return updated, nil
}

// Cancel lets either party withdraw an active appointment before its slot
// time.
func (s *Service) Cancel(ctx context.Context, appointmentID, byUserID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if byUserID != appt.PatientID && byUserID != appt.PractitionerID {
		return nil, ErrUnauthorized
	}
	if !appt.Status.Active() {
		return nil, fmt.Errorf("%w: cannot cancel a %s appointment", ErrInvalidTransition, appt.Status)
	}
	if !s.clk.Now().Before(appt.StartAt()) {
		return nil, fmt.Errorf("%w: slot time has already passed", ErrInvalidTransition)
	}

	updated, err := s.repo.UpdateStatus(ctx, appointmentID, appt.Status, StatusCancelled, nil)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventCancelled, map[string]any{"by": byUserID.String()})
	s.logger.Info().Str("appointment_id", updated.ID.String()).Msg("appointment cancelled")
	return updated, nil
}

// CheckIn records patient arrival on a confirmed appointment. It is what
// separates auto-completion from a no-show in the sweep. Idempotent.
func (s *Service) CheckIn(ctx context.Context, appointmentID, practitionerID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.PractitionerID != practitionerID {
		return nil, ErrUnauthorized
	}
	if appt.CheckedInAt != nil {
		return appt, nil
	}
	if appt.Status != StatusConfirmed {
		return nil, fmt.Errorf("%w: can only check in a CONFIRMED appointment", ErrInvalidTransition)
	}
	now := s.clk.Now()
	if now.Before(appt.StartAt()) {
		return nil, fmt.Errorf("%w: cannot check in before slot start", ErrValidation)
	}

	updated, err := s.repo.SetCheckedIn(ctx, appointmentID, now)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: appointment changed concurrently", ErrInvalidTransition)
		}
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventCheckedIn, map[string]any{"at": now})
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByPatient(ctx, patientID, status, limit, offset)
}

func (s *Service) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, status *Status, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	return s.repo.ListByPractitioner(ctx, practitionerID, status, limit, offset)
}

// Sweep applies the system transitions: checked-in confirmed appointments
// whose slot ended become COMPLETED, confirmed appointments never checked in
// become NO_SHOW once the grace period passes, and pending requests whose
// slot start passed undecided are cancelled. Every update is status-guarded,
// so a concurrent user mutation simply wins.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.clk.Now()
	var res SweepResult

	completable, err := s.repo.FindCompletable(ctx, now)
	if err != nil {
		return res, fmt.Errorf("find completable appointments: %w", err)
	}
	for _, appt := range completable {
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusConfirmed, StatusCompleted, nil); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("sweep complete failed")
			}
			continue
		}
		res.Completed++
		s.metrics.ObserveSweep("completed")
		s.logEvent(ctx, appt.ID, EventCompleted, map[string]any{"reason": "sweep"})
	}

	noShows, err := s.repo.FindNoShowCandidates(ctx, now, s.grace)
	if err != nil {
		return res, fmt.Errorf("find no-show candidates: %w", err)
	}
	for _, appt := range noShows {
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusConfirmed, StatusNoShow, nil); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("sweep no-show failed")
			}
			continue
		}
		res.NoShows++
		s.metrics.ObserveSweep("no_show")
		s.logEvent(ctx, appt.ID, EventNoShow, map[string]any{"reason": "sweep", "grace": s.grace.String()})
	}

	stale, err := s.repo.FindStalePending(ctx, now)
	if err != nil {
		return res, fmt.Errorf("find stale pending appointments: %w", err)
	}
	note := "not confirmed before slot start"
	for _, appt := range stale {
		if _, err := s.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusCancelled, &note); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("sweep stale-pending failed")
			}
			continue
		}
		res.CancelledPending++
		s.metrics.ObserveSweep("cancelled_pending")
		s.logEvent(ctx, appt.ID, EventCancelled, map[string]any{"reason": "sweep", "note": note})
	}

	return res, nil
}

func (s *Service) observeBookingErr(err error) {
	switch {
	case errors.Is(err, ErrSlotTaken):
		s.metrics.ObserveBooking("conflict")
	case errors.Is(err, ErrSlotBusy):
		s.metrics.ObserveBooking("busy")
	case errors.Is(err, ErrValidation):
		s.metrics.ObserveBooking("invalid")
	default:
		s.metrics.ObserveBooking("error")
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	ev := Event{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clk.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert appointment event")
	}
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
