package slots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

// Calendar resolves the day schedule for a practitioner.
type Calendar interface {
	ScheduleForDate(ctx context.Context, practitionerID uuid.UUID, date time.Time) (schedule.DaySchedule, error)
}

// Ledger exposes the times already held by an active (pending or confirmed)
// appointment. The booking repository implements it.
type Ledger interface {
	BookedTimes(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error)
}

// Generator derives bookable slot start times for a (practitioner, date).
// Slots are never stored; each call is a pure function of the calendar and
// the current ledger state, so repeated calls without mutation return the
// same sequence.
type Generator struct {
	calendar Calendar
	ledger   Ledger
}

func NewGenerator(calendar Calendar, ledger Ledger) *Generator {
	return &Generator{calendar: calendar, ledger: ledger}
}

// Available returns the ordered open slot start times for the date.
// A past date, a day without an enabled rule, a day on leave, or a fully
// booked day all yield an empty sequence; an unknown practitioner surfaces
// schedule.ErrPractitionerNotFound.
func (g *Generator) Available(ctx context.Context, practitionerID uuid.UUID, date time.Time, now time.Time) ([]schedule.TimeOfDay, error) {
	date = schedule.DateOnly(date)
	today := schedule.DateOnly(now)

	// No retroactive booking.
	if date.Before(today) {
		return nil, nil
	}

	day, err := g.calendar.ScheduleForDate(ctx, practitionerID, date)
	if err != nil {
		return nil, fmt.Errorf("resolve day schedule: %w", err)
	}
	if !day.Bookable() {
		return nil, nil
	}

	booked, err := g.ledger.BookedTimes(ctx, practitionerID, date)
	if err != nil {
		return nil, fmt.Errorf("load booked times: %w", err)
	}
	taken := make(map[schedule.TimeOfDay]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	rule := day.Rule
	var out []schedule.TimeOfDay
	// The trailing partial slot is dropped: only slots that fit fully
	// inside [start, end) are offered.
	for t := rule.Start; t.Add(rule.SlotMinutes) <= rule.End; t = t.Add(rule.SlotMinutes) {
		if taken[t] {
			continue
		}
		if date.Equal(today) && !t.At(date).After(now) {
			continue
		}
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Strings formats a slot sequence for the wire.
func Strings(ts []schedule.TimeOfDay) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.String())
	}
	return out
}
