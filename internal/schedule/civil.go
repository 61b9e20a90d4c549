package schedule

import (
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const DateLayout = "2006-01-02"

// TimeOfDay is minutes since midnight. The wire format everywhere is "HH:MM".
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// At anchors the time of day on a calendar date.
func (t TimeOfDay) At(date time.Time) time.Time {
	return DateOnly(date).Add(time.Duration(t) * time.Minute)
}

func (t TimeOfDay) PgTime() pgtype.Time {
	return pgtype.Time{
		Microseconds: int64(t) * 60 * 1_000_000,
		Valid:        true,
	}
}

func TimeOfDayFromPg(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / (60 * 1_000_000))
}

// ParseDate parses "YYYY-MM-DD" into a UTC midnight timestamp.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// DateOnly truncates a timestamp to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DayOfWeek maps a date to the portal's weekday numbering, 0=Monday..6=Sunday.
func DayOfWeek(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}
