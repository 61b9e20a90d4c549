package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

const appointmentColumns = `id, practitioner_id, patient_id, appointment_date, appointment_time,
	duration_minutes, reason, notes, decision_note, status, checked_in_at, created_at, updated_at`

// uniqueViolation is the Postgres error code raised by the partial unique
// index on active (practitioner, date, time) rows.
const uniqueViolation = "23505"

type PgRepository struct {
	pool schedule.DB
}

func NewPgRepository(pool schedule.DB) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var t pgtype.Time
	var decisionNote *string
	var checkedInAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&a.PatientID,
		&a.Date,
		&t,
		&a.DurationMinutes,
		&a.Reason,
		&a.Notes,
		&decisionNote,
		&a.Status,
		&checkedInAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Time = schedule.TimeOfDayFromPg(t)
	a.DecisionNote = decisionNote
	a.CheckedInAt = checkedInAt
	a.Date = schedule.DateOnly(a.Date)
	return &a, nil
}

func (r *PgRepository) InsertPending(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, practitioner_id, patient_id, appointment_date, appointment_time,
			 duration_minutes, reason, notes, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING', now(), now())
		RETURNING `+appointmentColumns+`
	`, appt.ID, appt.PractitionerID, appt.PatientID, schedule.DateOnly(appt.Date),
		appt.Time.PgTime(), appt.DurationMinutes, appt.Reason, appt.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert pending appointment: %w", err)
	}

	*appt = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, note *string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    decision_note = COALESCE($4, decision_note),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, note)

	return scanAppointment(row)
}

func (r *PgRepository) SetCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET checked_in_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'CONFIRMED'
		  AND checked_in_at IS NULL
		RETURNING `+appointmentColumns+`
	`, id, at)

	return scanAppointment(row)
}

func (r *PgRepository) BookedTimes(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_time
		FROM appointments
		WHERE practitioner_id = $1
		  AND appointment_date = $2
		  AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY appointment_time
	`, practitionerID, schedule.DateOnly(date))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []schedule.TimeOfDay
	for rows.Next() {
		var t pgtype.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		result = append(result, schedule.TimeOfDayFromPg(t))
	}

	return result, rows.Err()
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, status *Status, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY appointment_date DESC, appointment_time DESC
		LIMIT $3 OFFSET $4
	`, patientID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPractitioner(ctx context.Context, practitionerID uuid.UUID, status *Status, limit, offset int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE practitioner_id = $1
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY appointment_date DESC, appointment_time DESC
		LIMIT $3 OFFSET $4
	`, practitionerID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// FindStalePending returns PENDING appointments whose slot start has passed
// undecided.
func (r *PgRepository) FindStalePending(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'PENDING'
		  AND appointment_date + appointment_time < $1
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// FindCompletable returns CONFIRMED, checked-in appointments whose slot has
// ended.
func (r *PgRepository) FindCompletable(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'CONFIRMED'
		  AND checked_in_at IS NOT NULL
		  AND appointment_date + appointment_time + make_interval(mins => duration_minutes) <= $1
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

// FindNoShowCandidates returns CONFIRMED appointments with no check-in whose
// start passed more than the grace period ago.
func (r *PgRepository) FindNoShowCandidates(ctx context.Context, now time.Time, grace time.Duration) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'CONFIRMED'
		  AND checked_in_at IS NULL
		  AND appointment_date + appointment_time + make_interval(secs => $2) <= $1
	`, now.UTC(), grace.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert appointment event: %w", err)
	}
	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
