// Package contact stores messages sent through the contact form and
// forwards them to the operator by email.
package contact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/events"
	"lifecoach/backend/internal/store"
)

const maxMessageLen = 5000

// Mailer delivers the operator notification. A nil Mailer disables email.
type Mailer interface {
	Send(ctx context.Context, m domain.ContactMessage) error
}

type SubmitInput struct {
	Name    string
	Email   string
	Subject string
	Message string
	UserID  string
}

type Service struct {
	repo   store.ContactRepository
	mailer Mailer
	pub    events.Publisher
	log    *slog.Logger
}

func NewService(repo store.ContactRepository, mailer Mailer, pub events.Publisher, log *slog.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:   repo,
		mailer: mailer,
		pub:    pub,
		log:    log.With(slog.String("component", "contact")),
	}
}

// Submit stores the message. Email and event delivery are best effort: the
// message is already saved when they fail.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (domain.ContactMessage, error) {
	m := domain.ContactMessage{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Subject: strings.TrimSpace(in.Subject),
		Message: strings.TrimSpace(in.Message),
		UserID:  strings.TrimSpace(in.UserID),
		Status:  domain.ContactNew,
	}
	switch {
	case m.Name == "":
		return domain.ContactMessage{}, apperr.Validation("name is required")
	case m.Email == "":
		return domain.ContactMessage{}, apperr.Validation("email is required")
	case m.Subject == "":
		return domain.ContactMessage{}, apperr.Validation("subject is required")
	case m.Message == "":
		return domain.ContactMessage{}, apperr.Validation("message is required")
	case len(m.Message) > maxMessageLen:
		return domain.ContactMessage{}, apperr.Validation(fmt.Sprintf("message must be at most %d characters", maxMessageLen))
	}
	if _, err := mail.ParseAddress(m.Email); err != nil {
		return domain.ContactMessage{}, apperr.Validation("email is invalid")
	}

	saved, err := s.repo.CreateContactMessage(ctx, m)
	if err != nil {
		return domain.ContactMessage{}, apperr.Remote("create contact message", err)
	}

	if s.mailer != nil {
		if err := s.mailer.Send(ctx, saved); err != nil {
			s.log.WarnContext(ctx, "operator email failed",
				slog.String("contact_id", saved.ID.String()),
				slog.Any("err", err),
			)
		}
	}
	if err := s.pub.Publish(ctx, events.ContactSubmitted, events.ContactEvent{Contact: saved}); err != nil {
		s.log.WarnContext(ctx, "publish contact event failed", slog.Any("err", err))
	}
	return saved, nil
}

// List returns messages newest first; an empty status lists all of them.
func (s *Service) List(ctx context.Context, status domain.ContactStatus) ([]domain.ContactMessage, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation("status must be new, read or replied")
	}
	out, err := s.repo.ListContactMessages(ctx, status)
	if err != nil {
		return nil, apperr.Remote("list contact messages", err)
	}
	return out, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ContactStatus) (domain.ContactMessage, error) {
	if id == uuid.Nil {
		return domain.ContactMessage{}, apperr.Validation("id is required")
	}
	if !status.Valid() {
		return domain.ContactMessage{}, apperr.Validation("status must be new, read or replied")
	}
	m, err := s.repo.UpdateContactStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ContactMessage{}, apperr.NotFound("contact message", id.String())
	}
	if err != nil {
		return domain.ContactMessage{}, apperr.Remote("update contact status", err)
	}
	return m, nil
}
