package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"lifecoach/backend/internal/booking"
	"lifecoach/backend/internal/service/auth"
)

type signUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *server) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	sess, err := s.Auth.SignUp(r.Context(), auth.SignUpInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Language: req.Language,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	sess, err := s.Auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *server) listServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Services.Active())
}

func (s *server) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.Services.ByID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *server) listSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Booking.Slots())
}

type startBookingRequest struct {
	ServiceID string `json:"serviceId"`
}

type selectServiceRequest struct {
	ServiceID string `json:"serviceId"`
}

type selectScheduleRequest struct {
	Date   string `json:"date"`
	SlotID string `json:"slotId"`
	Notes  string `json:"notes"`
}

type backResponse struct {
	Session booking.View `json:"session"`
	Exited  bool         `json:"exited"`
}

func (s *server) startBooking(w http.ResponseWriter, r *http.Request) {
	var req startBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	writeJSON(w, http.StatusCreated, s.Booking.Start(req.ServiceID, id.UserID))
}

func (s *server) getBooking(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	v, err := s.Booking.Get(mux.Vars(r)["id"], id.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) selectBookingService(w http.ResponseWriter, r *http.Request) {
	var req selectServiceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	v, err := s.Booking.SelectService(mux.Vars(r)["id"], id.UserID, req.ServiceID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) selectBookingSchedule(w http.ResponseWriter, r *http.Request) {
	var req selectScheduleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	v, err := s.Booking.SelectSchedule(mux.Vars(r)["id"], id.UserID, req.Date, req.SlotID, req.Notes)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// continueBooking attaches the caller, if signed in, before advancing. A
// session that stops for sign-in is kept and can be continued again with a
// token.
func (s *server) continueBooking(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	v, err := s.Booking.Continue(r.Context(), mux.Vars(r)["id"], id.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *server) backBooking(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	v, exited, err := s.Booking.Back(mux.Vars(r)["id"], id.UserID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, backResponse{Session: v, Exited: exited})
}
