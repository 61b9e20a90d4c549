package schedule

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service is the calendar/schedule store: it owns practitioner and patient
// records, weekly recurring rules, and leave intervals.
type Service struct {
	repo            Repository
	defaultSlotSize int
	logger          zerolog.Logger
}

func NewService(repo Repository, defaultSlotSize int, logger zerolog.Logger) *Service {
	return &Service{
		repo:            repo,
		defaultSlotSize: defaultSlotSize,
		logger:          logger.With().Str("component", "schedule").Logger(),
	}
}

func (s *Service) CreatePractitioner(ctx context.Context, name, specialty string, feeCents int64) (*Practitioner, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: practitioner name is required", ErrValidation)
	}
	if feeCents < 0 {
		return nil, fmt.Errorf("%w: consultation fee cannot be negative", ErrValidation)
	}

	p := &Practitioner{
		Name:      strings.TrimSpace(name),
		Specialty: strings.TrimSpace(specialty),
		FeeCents:  feeCents,
	}
	if err := s.repo.CreatePractitioner(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().Str("practitioner_id", p.ID.String()).Msg("practitioner created")
	return p, nil
}

func (s *Service) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	return s.repo.GetPractitioner(ctx, id)
}

func (s *Service) ListPractitioners(ctx context.Context, activeOnly bool) ([]Practitioner, error) {
	return s.repo.ListPractitioners(ctx, activeOnly)
}

// DeactivatePractitioner retires a practitioner. Records are never deleted.
func (s *Service) DeactivatePractitioner(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.DeactivatePractitioner(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("practitioner_id", id.String()).Msg("practitioner deactivated")
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, name string, email *string) (*Patient, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: patient name is required", ErrValidation)
	}

	p := &Patient{
		Name:  strings.TrimSpace(name),
		Email: email,
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

// ReplaceWeeklySchedule swaps a practitioner's full weekly rule set
// atomically. Last write wins; there is no per-day merge.
func (s *Service) ReplaceWeeklySchedule(ctx context.Context, practitionerID uuid.UUID, rules []ScheduleRule) error {
	if _, err := s.repo.GetPractitioner(ctx, practitionerID); err != nil {
		return err
	}

	seen := make(map[int]bool, len(rules))
	for i := range rules {
		rule := &rules[i]
		rule.PractitionerID = practitionerID

		if rule.DayOfWeek < 0 || rule.DayOfWeek > 6 {
			return fmt.Errorf("%w: day_of_week %d out of range 0..6", ErrValidation, rule.DayOfWeek)
		}
		if seen[rule.DayOfWeek] {
			return fmt.Errorf("%w: duplicate rule for day_of_week %d", ErrValidation, rule.DayOfWeek)
		}
		seen[rule.DayOfWeek] = true

		if rule.SlotMinutes == 0 {
			rule.SlotMinutes = s.defaultSlotSize
		}
		if rule.SlotMinutes < 5 || rule.SlotMinutes > 240 {
			return fmt.Errorf("%w: slot_minutes %d out of range 5..240", ErrValidation, rule.SlotMinutes)
		}
		if rule.Start >= rule.End {
			return fmt.Errorf("%w: start_time %s must be before end_time %s", ErrValidation, rule.Start, rule.End)
		}
	}

	if err := s.repo.ReplaceScheduleRules(ctx, practitionerID, rules); err != nil {
		return err
	}

	s.logger.Info().
		Str("practitioner_id", practitionerID.String()).
		Int("rules", len(rules)).
		Msg("weekly schedule replaced")
	return nil
}

func (s *Service) WeeklySchedule(ctx context.Context, practitionerID uuid.UUID) ([]ScheduleRule, error) {
	if _, err := s.repo.GetPractitioner(ctx, practitionerID); err != nil {
		return nil, err
	}
	return s.repo.ListScheduleRules(ctx, practitionerID)
}

// AddLeave records a blackout interval. Overlaps with existing leave are
// fine; availability treats all intervals as a union.
func (s *Service) AddLeave(ctx context.Context, practitionerID uuid.UUID, startDate, endDate time.Time, reason string) (*LeaveInterval, error) {
	if _, err := s.repo.GetPractitioner(ctx, practitionerID); err != nil {
		return nil, err
	}
	startDate = DateOnly(startDate)
	endDate = DateOnly(endDate)
	if startDate.After(endDate) {
		return nil, fmt.Errorf("%w: leave start_date is after end_date", ErrValidation)
	}

	l := &LeaveInterval{
		PractitionerID: practitionerID,
		StartDate:      startDate,
		EndDate:        endDate,
		Reason:         strings.TrimSpace(reason),
	}
	if err := s.repo.AddLeave(ctx, l); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("practitioner_id", practitionerID.String()).
		Str("from", startDate.Format(DateLayout)).
		Str("to", endDate.Format(DateLayout)).
		Msg("leave added")
	return l, nil
}

func (s *Service) ListLeaves(ctx context.Context, practitionerID uuid.UUID) ([]LeaveInterval, error) {
	if _, err := s.repo.GetPractitioner(ctx, practitionerID); err != nil {
		return nil, err
	}
	return s.repo.ListLeaves(ctx, practitionerID)
}

// ScheduleForDate resolves the calendar for one (practitioner, date):
// the weekday's rule, if any, and whether the date falls inside leave.
func (s *Service) ScheduleForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time) (DaySchedule, error) {
	p, err := s.repo.GetPractitioner(ctx, practitionerID)
	if err != nil {
		return DaySchedule{}, err
	}

	rule, err := s.repo.RuleForDay(ctx, practitionerID, DayOfWeek(date))
	if err != nil {
		return DaySchedule{}, err
	}

	onLeave, err := s.repo.OnLeave(ctx, practitionerID, date)
	if err != nil {
		return DaySchedule{}, err
	}

	return DaySchedule{
		PractitionerActive: p.Active,
		Rule:               rule,
		OnLeave:            onLeave,
	}, nil
}
