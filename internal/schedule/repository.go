package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrValidation           = errors.New("invalid schedule input")
)

// Repository contains all DB interactions needed by the calendar service.
type Repository interface {
	CreatePractitioner(ctx context.Context, p *Practitioner) error
	GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	ListPractitioners(ctx context.Context, activeOnly bool) ([]Practitioner, error)
	DeactivatePractitioner(ctx context.Context, id uuid.UUID) error

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)

	// ReplaceScheduleRules swaps the full weekly rule set in one transaction.
	ReplaceScheduleRules(ctx context.Context, practitionerID uuid.UUID, rules []ScheduleRule) error
	ListScheduleRules(ctx context.Context, practitionerID uuid.UUID) ([]ScheduleRule, error)
	RuleForDay(ctx context.Context, practitionerID uuid.UUID, dayOfWeek int) (*ScheduleRule, error)

	AddLeave(ctx context.Context, l *LeaveInterval) error
	ListLeaves(ctx context.Context, practitionerID uuid.UUID) ([]LeaveInterval, error)
	OnLeave(ctx context.Context, practitionerID uuid.UUID, date time.Time) (bool, error)
}
