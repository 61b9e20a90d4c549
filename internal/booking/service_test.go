package booking

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caredesk/clinic-scheduling/internal/clock"
	redisclient "github.com/caredesk/clinic-scheduling/internal/redis"
	"github.com/caredesk/clinic-scheduling/internal/schedule"
	"github.com/caredesk/clinic-scheduling/internal/slots"
)

// memRepo is an in-memory Repository. Like the Postgres implementation it
// enforces the active-slot uniqueness invariant inside InsertPending.
type memRepo struct {
	mu           sync.Mutex
	appointments map[uuid.UUID]*Appointment
	events       []Event
}

func newMemRepo() *memRepo {
	return &memRepo{appointments: make(map[uuid.UUID]*Appointment)}
}

func (r *memRepo) InsertPending(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appointments {
		if existing.Status.Active() &&
			existing.PractitionerID == appt.PractitionerID &&
			existing.Date.Equal(appt.Date) &&
			existing.Time == appt.Time {
			return ErrSlotTaken
		}
	}

	appt.ID = uuid.New()
	appt.Status = StatusPending
	appt.CreatedAt = time.Now().UTC()
	appt.UpdatedAt = appt.CreatedAt
	cp := *appt
	r.appointments[appt.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *appt
	return &cp, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, note *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appointments[id]
	if !ok || appt.Status != from {
		return nil, ErrAppointmentNotFound
	}
	appt.Status = to
	if note != nil {
		appt.DecisionNote = note
	}
	appt.UpdatedAt = time.Now().UTC()
	cp := *appt
	return &cp, nil
}

func (r *memRepo) SetCheckedIn(_ context.Context, id uuid.UUID, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	appt, ok := r.appointments[id]
	if !ok || appt.Status != StatusConfirmed || appt.CheckedInAt != nil {
		return nil, ErrAppointmentNotFound
	}
	t := at
	appt.CheckedInAt = &t
	cp := *appt
	return &cp, nil
}

func (r *memRepo) BookedTimes(_ context.Context, practitionerID uuid.UUID, date time.Time) ([]schedule.TimeOfDay, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schedule.TimeOfDay
	for _, appt := range r.appointments {
		if appt.Status.Active() && appt.PractitionerID == practitionerID && appt.Date.Equal(date) {
			out = append(out, appt.Time)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, status *Status, limit, _ int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.PatientID != patientID {
			continue
		}
		if status != nil && appt.Status != *status {
			continue
		}
		out = append(out, *appt)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) ListByPractitioner(_ context.Context, practitionerID uuid.UUID, status *Status, limit, _ int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.PractitionerID != practitionerID {
			continue
		}
		if status != nil && appt.Status != *status {
			continue
		}
		out = append(out, *appt)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memRepo) FindStalePending(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.Status == StatusPending && !now.Before(appt.StartAt()) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *memRepo) FindCompletable(_ context.Context, now time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.Status == StatusConfirmed && appt.CheckedInAt != nil && !now.Before(appt.EndAt()) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *memRepo) FindNoShowCandidates(_ context.Context, now time.Time, grace time.Duration) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, appt := range r.appointments {
		if appt.Status == StatusConfirmed && appt.CheckedInAt == nil && !now.Before(appt.StartAt().Add(grace)) {
			out = append(out, *appt)
		}
	}
	return out, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *memRepo) eventTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.EventType)
	}
	return out
}

// memLocker mirrors the Redis locker's try-lock semantics per key.
type memLocker struct {
	locks sync.Map
}

func (l *memLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	v, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return redisclient.ErrLockNotAcquired
	}
	defer mu.Unlock()
	return fn(ctx)
}

// memDirectory backs the booking service with fixed practitioner/patient
// records and a single weekly rule applied to every weekday.
type memDirectory struct {
	practitioners map[uuid.UUID]*schedule.Practitioner
	patients      map[uuid.UUID]*schedule.Patient
	rule          *schedule.ScheduleRule
}

func (d *memDirectory) GetPractitioner(_ context.Context, id uuid.UUID) (*schedule.Practitioner, error) {
	p, ok := d.practitioners[id]
	if !ok {
		return nil, schedule.ErrPractitionerNotFound
	}
	return p, nil
}

func (d *memDirectory) GetPatient(_ context.Context, id uuid.UUID) (*schedule.Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, schedule.ErrPatientNotFound
	}
	return p, nil
}

func (d *memDirectory) ScheduleForDate(_ context.Context, id uuid.UUID, _ time.Time) (schedule.DaySchedule, error) {
	p, ok := d.practitioners[id]
	if !ok {
		return schedule.DaySchedule{}, schedule.ErrPractitionerNotFound
	}
	return schedule.DaySchedule{PractitionerActive: p.Active, Rule: d.rule}, nil
}

type fixture struct {
	svc     *Service
	repo    *memRepo
	clk     *clock.Fixed
	doctor  uuid.UUID
	patient uuid.UUID
	date    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	doctor := uuid.New()
	patient := uuid.New()

	start, err := schedule.ParseTimeOfDay("09:00")
	require.NoError(t, err)
	end, err := schedule.ParseTimeOfDay("17:00")
	require.NoError(t, err)

	dir := &memDirectory{
		practitioners: map[uuid.UUID]*schedule.Practitioner{
			doctor: {ID: doctor, Name: "Dr. Vega", Active: true},
		},
		patients: map[uuid.UUID]*schedule.Patient{
			patient: {ID: patient, Name: "Sam Ode"},
		},
		rule: &schedule.ScheduleRule{Start: start, End: end, SlotMinutes: 30, Available: true},
	}

	repo := newMemRepo()
	clk := clock.NewFixed(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))
	svc := NewService(
		repo,
		slots.NewGenerator(dir, repo),
		dir,
		&memLocker{},
		clk,
		15*time.Minute,
		nil,
		zerolog.Nop(),
	)

	return &fixture{
		svc:     svc,
		repo:    repo,
		clk:     clk,
		doctor:  doctor,
		patient: patient,
		date:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) request(t *testing.T, at string) *Appointment {
	t.Helper()
	tt, err := schedule.ParseTimeOfDay(at)
	require.NoError(t, err)

	appt, err := f.svc.Request(context.Background(), BookingRequest{
		PractitionerID: f.doctor,
		PatientID:      f.patient,
		Date:           f.date,
		Time:           tt,
		Reason:         "checkup",
	})
	require.NoError(t, err)
	return appt
}

func TestRequestCreatesPendingAppointment(t *testing.T) {
	f := newFixture(t)

	appt := f.request(t, "09:30")
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, 30, appt.DurationMinutes)
	assert.NotEqual(t, uuid.Nil, appt.ID)
	assert.Contains(t, f.repo.eventTypes(), EventRequested)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	nine, _ := schedule.ParseTimeOfDay("09:00")

	t.Run("reason required", func(t *testing.T) {
		_, err := f.svc.Request(ctx, BookingRequest{
			PractitionerID: f.doctor, PatientID: f.patient, Date: f.date, Time: nine,
			Reason: "   ",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("unknown practitioner", func(t *testing.T) {
		_, err := f.svc.Request(ctx, BookingRequest{
			PractitionerID: uuid.New(), PatientID: f.patient, Date: f.date, Time: nine,
			Reason: "checkup",
		})
		assert.ErrorIs(t, err, schedule.ErrPractitionerNotFound)
	})

	t.Run("unknown patient", func(t *testing.T) {
		_, err := f.svc.Request(ctx, BookingRequest{
			PractitionerID: f.doctor, PatientID: uuid.New(), Date: f.date, Time: nine,
			Reason: "checkup",
		})
		assert.ErrorIs(t, err, schedule.ErrPatientNotFound)
	})

	t.Run("off-grid time is never offered", func(t *testing.T) {
		offGrid, _ := schedule.ParseTimeOfDay("09:10")
		_, err := f.svc.Request(ctx, BookingRequest{
			PractitionerID: f.doctor, PatientID: f.patient, Date: f.date, Time: offGrid,
			Reason: "checkup",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("past date", func(t *testing.T) {
		_, err := f.svc.Request(ctx, BookingRequest{
			PractitionerID: f.doctor, PatientID: f.patient,
			Date: f.date.AddDate(0, 0, -7), Time: nine,
			Reason: "checkup",
		})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestRequestSameSlotTwiceConflicts(t *testing.T) {
	f := newFixture(t)

	f.request(t, "10:00")

	tt, _ := schedule.ParseTimeOfDay("10:00")
	_, err := f.svc.Request(context.Background(), BookingRequest{
		PractitionerID: f.doctor, PatientID: f.patient, Date: f.date, Time: tt,
		Reason: "second attempt",
	})
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestRequestConcurrentSameSlotHasOneWinner(t *testing.T) {
	f := newFixture(t)
	tt, _ := schedule.ParseTimeOfDay("11:00")

	const n = 32
	results := make(chan error, n)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Request(context.Background(), BookingRequest{
				PractitionerID: f.doctor, PatientID: f.patient, Date: f.date, Time: tt,
				Reason: "race",
			})
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrSlotBusy):
			conflicts++
		default:
			t.Fatalf("unexpected booking error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflicts)

	booked, err := f.repo.BookedTimes(context.Background(), f.doctor, f.date)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeOfDay{tt}, booked)
}

func TestDecide(t *testing.T) {
	t.Run("confirm", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "09:00")

		updated, err := f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionConfirm, "")
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, updated.Status)
		assert.Contains(t, f.repo.eventTypes(), EventConfirmed)
	})

	t.Run("reject requires a note", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "09:00")

		_, err := f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionReject, "  ")
		assert.ErrorIs(t, err, ErrValidation)

		updated, err := f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionReject, "fully booked that week")
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, updated.Status)
		require.NotNil(t, updated.DecisionNote)
		assert.Equal(t, "fully booked that week", *updated.DecisionNote)
	})

	t.Run("only the owning practitioner may decide", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "09:00")

		_, err := f.svc.Decide(context.Background(), appt.ID, uuid.New(), DecisionConfirm, "")
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("deciding a non-pending appointment fails", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "09:00")

		_, err := f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionConfirm, "")
		require.NoError(t, err)

		_, err = f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionConfirm, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("rejecting frees the slot", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "09:00")

		_, err := f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionReject, "no")
		require.NoError(t, err)

		again := f.request(t, "09:00")
		assert.NotEqual(t, appt.ID, again.ID)
	})
}

func TestCancel(t *testing.T) {
	t.Run("patient cancels a pending appointment", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "14:00")

		updated, err := f.svc.Cancel(context.Background(), appt.ID, f.patient)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, updated.Status)
	})

	t.Run("practitioner cancels a confirmed appointment", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "14:00")
		_, err := f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionConfirm, "")
		require.NoError(t, err)

		updated, err := f.svc.Cancel(context.Background(), appt.ID, f.doctor)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, updated.Status)
	})

	t.Run("a stranger may not cancel", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "14:00")

		_, err := f.svc.Cancel(context.Background(), appt.ID, uuid.New())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("cancelling after slot start fails", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "14:00")

		f.clk.Set(appt.StartAt())
		_, err := f.svc.Cancel(context.Background(), appt.ID, f.patient)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("cancelling a terminal appointment fails", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "14:00")
		_, err := f.svc.Cancel(context.Background(), appt.ID, f.patient)
		require.NoError(t, err)

		_, err = f.svc.Cancel(context.Background(), appt.ID, f.patient)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestCheckIn(t *testing.T) {
	confirmed := func(t *testing.T, f *fixture) *Appointment {
		t.Helper()
		appt := f.request(t, "10:00")
		updated, err := f.svc.Decide(context.Background(), appt.ID, f.doctor, DecisionConfirm, "")
		require.NoError(t, err)
		return updated
	}

	t.Run("before slot start fails", func(t *testing.T) {
		f := newFixture(t)
		appt := confirmed(t, f)

		_, err := f.svc.CheckIn(context.Background(), appt.ID, f.doctor)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("stamps arrival and is idempotent", func(t *testing.T) {
		f := newFixture(t)
		appt := confirmed(t, f)

		f.clk.Set(appt.StartAt().Add(2 * time.Minute))
		first, err := f.svc.CheckIn(context.Background(), appt.ID, f.doctor)
		require.NoError(t, err)
		require.NotNil(t, first.CheckedInAt)

		second, err := f.svc.CheckIn(context.Background(), appt.ID, f.doctor)
		require.NoError(t, err)
		assert.Equal(t, first.CheckedInAt.Unix(), second.CheckedInAt.Unix())
	})

	t.Run("pending appointment cannot be checked in", func(t *testing.T) {
		f := newFixture(t)
		appt := f.request(t, "10:00")

		f.clk.Set(appt.StartAt().Add(time.Minute))
		_, err := f.svc.CheckIn(context.Background(), appt.ID, f.doctor)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("only the owning practitioner may check in", func(t *testing.T) {
		f := newFixture(t)
		appt := confirmed(t, f)

		f.clk.Set(appt.StartAt().Add(time.Minute))
		_, err := f.svc.CheckIn(context.Background(), appt.ID, uuid.New())
		assert.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Three appointments on the same day, far enough apart not to collide.
	stale := f.request(t, "09:00")

	attended := f.request(t, "10:00")
	_, err := f.svc.Decide(ctx, attended.ID, f.doctor, DecisionConfirm, "")
	require.NoError(t, err)

	ghosted := f.request(t, "11:00")
	_, err = f.svc.Decide(ctx, ghosted.ID, f.doctor, DecisionConfirm, "")
	require.NoError(t, err)

	// Patient shows up for the 10:00.
	f.clk.Set(attended.StartAt().Add(time.Minute))
	_, err = f.svc.CheckIn(ctx, attended.ID, f.doctor)
	require.NoError(t, err)

	// Before anything has elapsed the sweep is a no-op for the 11:00.
	res, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.CancelledPending) // the 09:00 pending is already stale
	assert.Zero(t, res.Completed)
	assert.Zero(t, res.NoShows)

	got, err := f.svc.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	require.NotNil(t, got.DecisionNote)
	assert.Equal(t, "not confirmed before slot start", *got.DecisionNote)

	// Advance past the 11:00 grace window and the 10:00 slot end.
	f.clk.Set(ghosted.StartAt().Add(16 * time.Minute))
	res, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Completed)
	assert.Equal(t, 1, res.NoShows)
	assert.Zero(t, res.CancelledPending)

	got, err = f.svc.Get(ctx, attended.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = f.svc.Get(ctx, ghosted.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, got.Status)

	// A second pass finds nothing left to do.
	res, err = f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Completed+res.NoShows+res.CancelledPending)
}

func TestSweepWithinGraceLeavesConfirmedAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt := f.request(t, "12:00")
	_, err := f.svc.Decide(ctx, appt.ID, f.doctor, DecisionConfirm, "")
	require.NoError(t, err)

	f.clk.Set(appt.StartAt().Add(10 * time.Minute)) // inside the 15m grace
	res, err := f.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.NoShows)

	got, err := f.svc.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}
