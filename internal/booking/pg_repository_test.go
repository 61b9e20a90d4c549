package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func appointmentRow(appt *Appointment) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "practitioner_id", "patient_id", "appointment_date", "appointment_time",
		"duration_minutes", "reason", "notes", "decision_note", "status",
		"checked_in_at", "created_at", "updated_at",
	}).AddRow(
		appt.ID, appt.PractitionerID, appt.PatientID, appt.Date, appt.Time.PgTime(),
		appt.DurationMinutes, appt.Reason, appt.Notes, appt.DecisionNote, appt.Status,
		appt.CheckedInAt, appt.CreatedAt, appt.UpdatedAt,
	)
}

func sampleAppointment() *Appointment {
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	return &Appointment{
		ID:              uuid.New(),
		PractitionerID:  uuid.New(),
		PatientID:       uuid.New(),
		Date:            time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Time:            schedule.TimeOfDay(10 * 60),
		DurationMinutes: 30,
		Reason:          "checkup",
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestInsertPendingUniqueViolationIsSlotTaken(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation})

	appt := sampleAppointment()
	err := repo.InsertPending(context.Background(), appt)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPendingReturnsCreatedRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	want := sampleAppointment()
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(
			pgxmock.AnyArg(), want.PractitionerID, want.PatientID, want.Date,
			want.Time.PgTime(), want.DurationMinutes, want.Reason, want.Notes,
		).
		WillReturnRows(appointmentRow(want))

	appt := &Appointment{
		PractitionerID:  want.PractitionerID,
		PatientID:       want.PatientID,
		Date:            want.Date,
		Time:            want.Time,
		DurationMinutes: want.DurationMinutes,
		Reason:          want.Reason,
	}
	require.NoError(t, repo.InsertPending(context.Background(), appt))
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, want.Time, appt.Time)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM appointments").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusGuardMiss(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusConfirmed, StatusPending, (*string)(nil)).
		WillReturnError(pgx.ErrNoRows)

	// The row exists but its status is no longer PENDING: the guarded
	// update matches nothing.
	_, err := repo.UpdateStatus(context.Background(), id, StatusPending, StatusConfirmed, nil)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusAppliesNote(t *testing.T) {
	repo, mock := newMockRepo(t)

	want := sampleAppointment()
	note := "fully booked that week"
	want.Status = StatusRejected
	want.DecisionNote = &note

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(want.ID, StatusRejected, StatusPending, &note).
		WillReturnRows(appointmentRow(want))

	got, err := repo.UpdateStatus(context.Background(), want.ID, StatusPending, StatusRejected, &note)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	require.NotNil(t, got.DecisionNote)
	assert.Equal(t, note, *got.DecisionNote)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookedTimesConvertsPgTime(t *testing.T) {
	repo, mock := newMockRepo(t)

	practitionerID := uuid.New()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT appointment_time").
		WithArgs(practitionerID, date).
		WillReturnRows(pgxmock.NewRows([]string{"appointment_time"}).
			AddRow(schedule.TimeOfDay(9 * 60).PgTime()).
			AddRow(schedule.TimeOfDay(14*60 + 30).PgTime()))

	got, err := repo.BookedTimes(context.Background(), practitionerID, date)
	require.NoError(t, err)
	assert.Equal(t, []schedule.TimeOfDay{9 * 60, 14*60 + 30}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvent(t *testing.T) {
	repo, mock := newMockRepo(t)

	apptID := uuid.New()
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO appointment_events").
		WithArgs(EventConfirmed, &apptID, []byte(`{"by":"x"}`), &at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertEvent(context.Background(), Event{
		EventType:     EventConfirmed,
		AppointmentID: &apptID,
		Payload:       []byte(`{"by":"x"}`),
		CreatedAt:     at,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
