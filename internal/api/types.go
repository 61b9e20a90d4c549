package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/caredesk/clinic-scheduling/internal/booking"
	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

type CreateAppointmentRequest struct {
	Doctor          string `json:"doctor"`
	Patient         string `json:"patient,omitempty"` // defaults to the acting user
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	Reason          string `json:"reason"`
	Notes           string `json:"notes,omitempty"`
}

type UpdateAppointmentRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	Doctor          uuid.UUID  `json:"doctor"`
	Patient         uuid.UUID  `json:"patient"`
	AppointmentDate string     `json:"appointment_date"`
	AppointmentTime string     `json:"appointment_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Reason          string     `json:"reason"`
	Notes           string     `json:"notes,omitempty"`
	Note            *string    `json:"note,omitempty"`
	Status          string     `json:"status"`
	CheckedInAt     *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		Doctor:          a.PractitionerID,
		Patient:         a.PatientID,
		AppointmentDate: a.Date.Format(schedule.DateLayout),
		AppointmentTime: a.Time.String(),
		DurationMinutes: a.DurationMinutes,
		Reason:          a.Reason,
		Notes:           a.Notes,
		Note:            a.DecisionNote,
		Status:          string(a.Status),
		CheckedInAt:     a.CheckedInAt,
		CreatedAt:       a.CreatedAt,
	}
}

type AvailabilityResponse struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"available_slots"`
}

type CreateDoctorRequest struct {
	Name      string `json:"name"`
	Specialty string `json:"specialty,omitempty"`
	FeeCents  int64  `json:"consultation_fee_cents,omitempty"`
}

type DoctorResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
	FeeCents  int64     `json:"consultation_fee_cents"`
	Active    bool      `json:"active"`
}

func toDoctorResponse(p *schedule.Practitioner) DoctorResponse {
	return DoctorResponse{
		ID:        p.ID,
		Name:      p.Name,
		Specialty: p.Specialty,
		FeeCents:  p.FeeCents,
		Active:    p.Active,
	}
}

type ScheduleRuleRequest struct {
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	SlotMinutes int    `json:"slot_duration_minutes,omitempty"`
	IsAvailable bool   `json:"is_available"`
}

type ScheduleRuleResponse struct {
	DayOfWeek   int    `json:"day_of_week"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	SlotMinutes int    `json:"slot_duration_minutes"`
	IsAvailable bool   `json:"is_available"`
}

func toScheduleRuleResponse(r schedule.ScheduleRule) ScheduleRuleResponse {
	return ScheduleRuleResponse{
		DayOfWeek:   r.DayOfWeek,
		StartTime:   r.Start.String(),
		EndTime:     r.End.String(),
		SlotMinutes: r.SlotMinutes,
		IsAvailable: r.Available,
	}
}

type CreateLeaveRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

type LeaveResponse struct {
	ID        int64  `json:"id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
}

func toLeaveResponse(l *schedule.LeaveInterval) LeaveResponse {
	return LeaveResponse{
		ID:        l.ID,
		StartDate: l.StartDate.Format(schedule.DateLayout),
		EndDate:   l.EndDate.Format(schedule.DateLayout),
		Reason:    l.Reason,
	}
}

type CreatePatientRequest struct {
	Name  string  `json:"name"`
	Email *string `json:"email,omitempty"`
}

type PatientResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email *string   `json:"email,omitempty"`
}

// ErrorResponse carries a machine code and human detail. On a slot conflict
// it also carries refreshed availability so the client can re-render its
// options without another round trip.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Details        string   `json:"details,omitempty"`
	AvailableSlots []string `json:"available_slots,omitempty"`
}
