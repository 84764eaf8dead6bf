package http

import (
	"net/http"

	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/service/contact"
)

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (s *server) submitContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	id, _ := IdentityFrom(r.Context())
	msg, err := s.Contact.Submit(r.Context(), contact.SubmitInput{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
		UserID:  id.UserID,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *server) adminListContact(w http.ResponseWriter, r *http.Request) {
	out, err := s.Contact.List(r.Context(), domain.ContactStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if out == nil {
		out = []domain.ContactMessage{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) adminUpdateContactStatus(w http.ResponseWriter, r *http.Request) {
	msgID, err := parseID(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	out, err := s.Contact.UpdateStatus(r.Context(), msgID, domain.ContactStatus(req.Status))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
