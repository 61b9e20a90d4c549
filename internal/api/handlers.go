package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caredesk/clinic-scheduling/internal/booking"
	"github.com/caredesk/clinic-scheduling/internal/clock"
	"github.com/caredesk/clinic-scheduling/internal/observability/metrics"
	"github.com/caredesk/clinic-scheduling/internal/schedule"
	"github.com/caredesk/clinic-scheduling/internal/slots"
)

// API bundles the services behind the HTTP surface. Handlers keep no state
// between requests; the client's wizard holds its own in-progress state.
type API struct {
	schedules *schedule.Service
	slots     *slots.Generator
	bookings  *booking.Service
	clk       clock.Clock
	metrics   *metrics.SchedulingMetrics
	logger    zerolog.Logger
}

func (a *API) availabilityHandler(w http.ResponseWriter, r *http.Request) {
	practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	dateStr := r.URL.Query().Get("date")
	date, err := schedule.ParseDate(dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	open, err := a.slots.Available(r.Context(), practitionerID, date, a.clk.Now())
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	a.metrics.ObserveAvailabilityQuery()
	writeJSON(w, http.StatusOK, AvailabilityResponse{
		Date:           dateStr,
		AvailableSlots: slots.Strings(open),
	})
}

func (a *API) createAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	actor, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID header is required")
		return
	}

	practitionerID, err := uuid.Parse(req.Doctor)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor must be a valid UUID")
		return
	}

	patientID := actor
	if req.Patient != "" {
		if patientID, err = uuid.Parse(req.Patient); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient must be a valid UUID")
			return
		}
	}

	date, err := schedule.ParseDate(req.AppointmentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	timeOfDay, err := schedule.ParseTimeOfDay(req.AppointmentTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
		return
	}

	appt, err := a.bookings.Request(r.Context(), booking.BookingRequest{
		PractitionerID: practitionerID,
		PatientID:      patientID,
		Date:           date,
		Time:           timeOfDay,
		Reason:         req.Reason,
		Notes:          req.Notes,
	})
	if err != nil {
		if errors.Is(err, booking.ErrSlotTaken) || errors.Is(err, booking.ErrSlotBusy) {
			a.writeSlotConflict(w, r, practitionerID, date, err)
			return
		}
		a.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

// writeSlotConflict answers 409 with refreshed availability in the body so
// the wizard can re-render without a second round trip.
func (a *API) writeSlotConflict(w http.ResponseWriter, r *http.Request, practitionerID uuid.UUID, date time.Time, cause error) {
	resp := ErrorResponse{Error: "slot_conflict", Details: cause.Error()}

	if open, err := a.slots.Available(r.Context(), practitionerID, date, a.clk.Now()); err == nil {
		resp.AvailableSlots = slots.Strings(open)
	}

	writeJSON(w, http.StatusConflict, resp)
}

func (a *API) getAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	appt, err := a.bookings.Get(r.Context(), id)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (a *API) listAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *booking.Status
	if s := q.Get("status"); s != "" {
		st := booking.Status(s)
		status = &st
	}
	limit := intQuery(q.Get("limit"), 20)
	offset := intQuery(q.Get("offset"), 0)

	var (
		appts []booking.Appointment
		err   error
	)
	switch {
	case q.Get("patient") != "":
		var patientID uuid.UUID
		if patientID, err = uuid.Parse(q.Get("patient")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient must be a valid UUID")
			return
		}
		appts, err = a.bookings.ListByPatient(r.Context(), patientID, status, limit, offset)
	case q.Get("doctor") != "":
		var practitionerID uuid.UUID
		if practitionerID, err = uuid.Parse(q.Get("doctor")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor must be a valid UUID")
			return
		}
		appts, err = a.bookings.ListByPractitioner(r.Context(), practitionerID, status, limit, offset)
	default:
		writeError(w, http.StatusBadRequest, "missing_filter", "patient or doctor query parameter is required")
		return
	}
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, toAppointmentResponse(&appts[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) updateAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	actor, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID header is required")
		return
	}

	var req UpdateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	var appt *booking.Appointment
	switch booking.Status(req.Status) {
	case booking.StatusConfirmed:
		appt, err = a.bookings.Decide(r.Context(), id, actor, booking.DecisionConfirm, req.Note)
	case booking.StatusRejected:
		appt, err = a.bookings.Decide(r.Context(), id, actor, booking.DecisionReject, req.Note)
	case booking.StatusCancelled:
		appt, err = a.bookings.Cancel(r.Context(), id, actor)
	default:
		writeError(w, http.StatusBadRequest, "invalid_status",
			"status must be one of CONFIRMED, REJECTED, CANCELLED")
		return
	}
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (a *API) checkInHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return
	}

	actor, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID header is required")
		return
	}

	appt, err := a.bookings.CheckIn(r.Context(), id, actor)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

// handleDomainError maps domain sentinels onto the HTTP taxonomy.
func (a *API) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, schedule.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, booking.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, booking.ErrValidation), errors.Is(err, schedule.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		a.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
