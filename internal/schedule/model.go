package schedule

import (
	"time"

	"github.com/google/uuid"
)

type Practitioner struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	FeeCents  int64
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleRule is one weekday of a practitioner's recurring availability.
// At most one rule exists per (practitioner, weekday).
type ScheduleRule struct {
	ID             int64
	PractitionerID uuid.UUID
	DayOfWeek      int // 0=Monday..6=Sunday
	Start          TimeOfDay
	End            TimeOfDay
	SlotMinutes    int
	Available      bool
}

// LeaveInterval blocks new bookings for an inclusive date range regardless of
// the weekly rules. Overlapping intervals are allowed and act as a union.
type LeaveInterval struct {
	ID             int64
	PractitionerID uuid.UUID
	StartDate      time.Time
	EndDate        time.Time
	Reason         string
}

// DaySchedule is the resolved calendar answer for one (practitioner, date).
type DaySchedule struct {
	PractitionerActive bool
	Rule               *ScheduleRule // nil when the weekday has no rule
	OnLeave            bool
}

// Bookable reports whether the day can produce slots at all.
func (d DaySchedule) Bookable() bool {
	return d.PractitionerActive && d.Rule != nil && d.Rule.Available && !d.OnLeave
}
