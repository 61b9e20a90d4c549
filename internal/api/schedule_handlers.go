package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/caredesk/clinic-scheduling/internal/schedule"
)

func (a *API) listDoctorsHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "true"

	practitioners, err := a.schedules.ListPractitioners(r.Context(), activeOnly)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	out := make([]DoctorResponse, 0, len(practitioners))
	for i := range practitioners {
		out = append(out, toDoctorResponse(&practitioners[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createDoctorHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateDoctorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	p, err := a.schedules.CreatePractitioner(r.Context(), req.Name, req.Specialty, req.FeeCents)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDoctorResponse(p))
}

func (a *API) deactivateDoctorHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	if err := a.schedules.DeactivatePractitioner(r.Context(), id); err != nil {
		a.handleDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	rules, err := a.schedules.WeeklySchedule(r.Context(), id)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	out := make([]ScheduleRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toScheduleRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) replaceScheduleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	actor, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID header is required")
		return
	}
	// Only the practitioner edits their own calendar.
	if actor != id {
		writeError(w, http.StatusForbidden, "forbidden", "only the doctor may edit their schedule")
		return
	}

	var reqs []ScheduleRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	rules := make([]schedule.ScheduleRule, 0, len(reqs))
	for _, req := range reqs {
		start, err := schedule.ParseTimeOfDay(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
			return
		}
		end, err := schedule.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_time", err.Error())
			return
		}
		rules = append(rules, schedule.ScheduleRule{
			DayOfWeek:   req.DayOfWeek,
			Start:       start,
			End:         end,
			SlotMinutes: req.SlotMinutes,
			Available:   req.IsAvailable,
		})
	}

	if err := a.schedules.ReplaceWeeklySchedule(r.Context(), id, rules); err != nil {
		a.handleDomainError(w, err)
		return
	}

	out := make([]ScheduleRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toScheduleRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) addLeaveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	actor, ok := ActorID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_actor", "X-Actor-ID header is required")
		return
	}
	if actor != id {
		writeError(w, http.StatusForbidden, "forbidden", "only the doctor may record their leave")
		return
	}

	var req CreateLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	startDate, err := schedule.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}
	endDate, err := schedule.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	leave, err := a.schedules.AddLeave(r.Context(), id, startDate, endDate, req.Reason)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLeaveResponse(leave))
}

func (a *API) listLeavesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
		return
	}

	leaves, err := a.schedules.ListLeaves(r.Context(), id)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	out := make([]LeaveResponse, 0, len(leaves))
	for i := range leaves {
		out = append(out, toLeaveResponse(&leaves[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) createPatientHandler(w http.ResponseWriter, r *http.Request) {
	var req CreatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	p, err := a.schedules.CreatePatient(r.Context(), req.Name, req.Email)
	if err != nil {
		a.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, PatientResponse{ID: p.ID, Name: p.Name, Email: p.Email})
}
