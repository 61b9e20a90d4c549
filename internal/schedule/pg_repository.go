package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies
// it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PgRepository struct {
	pool DB
}

func NewPgRepository(pool DB) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.FeeCents,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanRule(row pgx.Row) (*ScheduleRule, error) {
	var r ScheduleRule
	var start, end pgtype.Time

	err := row.Scan(
		&r.ID,
		&r.PractitionerID,
		&r.DayOfWeek,
		&start,
		&end,
		&r.SlotMinutes,
		&r.Available,
	)
	if err != nil {
		return nil, err
	}

	r.Start = TimeOfDayFromPg(start)
	r.End = TimeOfDayFromPg(end)
	return &r, nil
}

// Interface methods

func (r *PgRepository) CreatePractitioner(ctx context.Context, p *Practitioner) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO practitioners (id, name, specialty, fee_cents, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, true, now(), now())
		RETURNING id, name, specialty, fee_cents, active, created_at, updated_at
	`, p.ID, p.Name, p.Specialty, p.FeeCents)

	created, err := scanPractitioner(row)
	if err != nil {
		return fmt.Errorf("insert practitioner: %w", err)
	}
	*p = *created
	return nil
}

func (r *PgRepository) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, fee_cents, active, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) ListPractitioners(ctx context.Context, activeOnly bool) ([]Practitioner, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, specialty, fee_cents, active, created_at, updated_at
		FROM practitioners
		WHERE ($1 = false OR active)
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Practitioner
	for rows.Next() {
		p, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	return result, rows.Err()
}

func (r *PgRepository) DeactivatePractitioner(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE practitioners
		SET active = false,
		    updated_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("deactivate practitioner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPractitionerNotFound
	}
	return nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING id, name, email, created_at, updated_at
	`, p.ID, p.Name, p.Email)

	created, err := scanPatient(row)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	*p = *created
	return nil
}

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) ReplaceScheduleRules(ctx context.Context, practitionerID uuid.UUID, rules []ScheduleRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace schedule: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM schedule_rules WHERE practitioner_id = $1
	`, practitionerID); err != nil {
		return fmt.Errorf("clear schedule rules: %w", err)
	}

	for _, rule := range rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO schedule_rules (practitioner_id, day_of_week, start_time, end_time, slot_minutes, is_available)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, practitionerID, rule.DayOfWeek, rule.Start.PgTime(), rule.End.PgTime(), rule.SlotMinutes, rule.Available); err != nil {
			return fmt.Errorf("insert schedule rule: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) ListScheduleRules(ctx context.Context, practitionerID uuid.UUID) ([]ScheduleRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, day_of_week, start_time, end_time, slot_minutes, is_available
		FROM schedule_rules
		WHERE practitioner_id = $1
		ORDER BY day_of_week
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduleRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rule)
	}

	return result, rows.Err()
}

// RuleForDay returns (nil, nil) when the weekday has no rule; absence is a
// normal calendar state, not an error.
func (r *PgRepository) RuleForDay(ctx context.Context, practitionerID uuid.UUID, dayOfWeek int) (*ScheduleRule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, day_of_week, start_time, end_time, slot_minutes, is_available
		FROM schedule_rules
		WHERE practitioner_id = $1 AND day_of_week = $2
	`, practitionerID, dayOfWeek)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rule, nil
}

func (r *PgRepository) AddLeave(ctx context.Context, l *LeaveInterval) error {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO leave_intervals (practitioner_id, start_date, end_date, reason)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, l.PractitionerID, l.StartDate, l.EndDate, l.Reason)

	if err := row.Scan(&l.ID); err != nil {
		return fmt.Errorf("insert leave interval: %w", err)
	}
	return nil
}

func (r *PgRepository) ListLeaves(ctx context.Context, practitionerID uuid.UUID) ([]LeaveInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, start_date, end_date, reason
		FROM leave_intervals
		WHERE practitioner_id = $1
		ORDER BY start_date
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LeaveInterval
	for rows.Next() {
		var l LeaveInterval
		if err := rows.Scan(&l.ID, &l.PractitionerID, &l.StartDate, &l.EndDate, &l.Reason); err != nil {
			return nil, err
		}
		result = append(result, l)
	}

	return result, rows.Err()
}

func (r *PgRepository) OnLeave(ctx context.Context, practitionerID uuid.UUID, date time.Time) (bool, error) {
	var onLeave bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM leave_intervals
			WHERE practitioner_id = $1
			  AND start_date <= $2
			  AND end_date >= $2
		)
	`, practitionerID, DateOnly(date)).Scan(&onLeave)
	if err != nil {
		return false, fmt.Errorf("check leave: %w", err)
	}
	return onLeave, nil
}
