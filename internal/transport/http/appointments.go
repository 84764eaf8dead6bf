package http

import (
	"net/http"
	"strconv"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
)

type statusRequest struct {
	Status string `json:"status"`
}

// listAppointments returns the caller's appointments, or only the upcoming
// pending and confirmed ones with ?upcoming=true.
func (s *server) listAppointments(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	upcoming := false
	if raw := r.URL.Query().Get("upcoming"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, s.log, apperr.Validation("upcoming must be true or false"))
			return
		}
		upcoming = v
	}

	var (
		out []domain.Appointment
		err error
	)
	if upcoming {
		out, err = s.Appointments.Upcoming(r.Context(), id.UserID, s.now())
	} else {
		out, err = s.Appointments.List(r.Context(), id.UserID)
	}
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if out == nil {
		out = []domain.Appointment{}
	}
	writeJSON(w, http.StatusOK, out)
}

// cancelAppointment lets a user cancel their own booking. Other users'
// bookings look missing.
func (s *server) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFrom(r.Context())
	apptID, err := parseID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	appt, err := s.Appointments.Get(r.Context(), apptID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if appt.UserID != caller.UserID && !caller.IsAdmin() {
		writeError(w, s.log, apperr.NotFound("appointment", apptID.String()))
		return
	}

	out, err := s.AppointmentStore.Cancel(r.Context(), apptID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) adminListAppointments(w http.ResponseWriter, r *http.Request) {
	out := s.AppointmentStore.Appointments()
	if out == nil {
		out = []domain.Appointment{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) adminRefreshAppointments(w http.ResponseWriter, r *http.Request) {
	s.AppointmentStore.Refresh(r.Context())
	if err := s.AppointmentStore.Err(); err != nil {
		writeError(w, s.log, err)
		return
	}
	s.adminListAppointments(w, r)
}

func (s *server) adminUpdateAppointmentStatus(w http.ResponseWriter, r *http.Request) {
	apptID, err := parseID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	out, err := s.AppointmentStore.UpdateStatus(r.Context(), apptID, domain.AppointmentStatus(req.Status))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) adminDeleteAppointment(w http.ResponseWriter, r *http.Request) {
	apptID, err := parseID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.AppointmentStore.Delete(r.Context(), apptID); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
