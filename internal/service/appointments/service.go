package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/store"
)

type Service struct {
	repo store.AppointmentRepository
	loc  *time.Location
}

// NewService keeps the appointment's calendar date in loc, the business's
// time zone. A nil loc means UTC.
func NewService(repo store.AppointmentRepository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc}
}

type CreateInput struct {
	ID             uuid.UUID
	UserID         string
	ServiceID      string
	Title          string
	Description    string
	Notes          string
	StartTime      time.Time
	EndTime        time.Time
	IdempotencyKey string
}

// Build validates in and returns the pending appointment it describes,
// without persisting it.
func (s *Service) Build(in CreateInput) (domain.Appointment, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Appointment{}, apperr.Validation("title is required")
	}
	if in.UserID == "" {
		return domain.Appointment{}, apperr.Validation("user_id is required")
	}
	if strings.TrimSpace(in.ServiceID) == "" {
		return domain.Appointment{}, apperr.Validation("service_id is required")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if start.IsZero() {
		return domain.Appointment{}, apperr.Validation("start_time is required")
	}
	if !end.After(start) {
		return domain.Appointment{}, apperr.Validation("end_time must be after start_time")
	}
	if end.Sub(start) > 24*time.Hour {
		return domain.Appointment{}, apperr.Validation("duration too long")
	}

	appt := domain.Appointment{
		ID:          in.ID,
		UserID:      in.UserID,
		ServiceID:   strings.TrimSpace(in.ServiceID),
		Title:       title,
		Description: in.Description,
		Notes:       strings.TrimSpace(in.Notes),
		StartTime:   start,
		EndTime:     end,
		Date:        start.In(s.loc).Format(time.DateOnly),
		Status:      domain.AppointmentPending,
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > 256 {
			return domain.Appointment{}, apperr.Validation("idempotency_key too long")
		}
		appt.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("lifecoach:create_appointment:"+in.UserID+":"+key))
	}

	return appt, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	appt, err := s.Build(in)
	if err != nil {
		return domain.Appointment{}, err
	}
	return s.Insert(ctx, appt)
}

// Insert persists an appointment that already went through Build.
func (s *Service) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	out, err := s.repo.Create(ctx, appt)
	if err != nil {
		return domain.Appointment{}, classify("appointments.create", err)
	}
	return out, nil
}

// List returns every appointment of userID, or all appointments when userID
// is empty.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Appointment, error) {
	rows, err := s.repo.List(ctx, store.AppointmentFilter{UserID: userID})
	if err != nil {
		return nil, classify("appointments.list", err)
	}
	return rows, nil
}

// Upcoming returns userID's pending and confirmed appointments starting at or
// after now.
func (s *Service) Upcoming(ctx context.Context, userID string, now time.Time) ([]domain.Appointment, error) {
	if userID == "" {
		return nil, apperr.Validation("user_id is required")
	}
	rows, err := s.repo.List(ctx, store.AppointmentFilter{
		UserID:    userID,
		Statuses:  []domain.AppointmentStatus{domain.AppointmentPending, domain.AppointmentConfirmed},
		StartFrom: now.UTC(),
	})
	if err != nil {
		return nil, classify("appointments.upcoming", err)
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, apperr.Validation("appointment_id is required")
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, notFoundOr(id, classify("appointments.get", err))
	}
	return appt, nil
}

// StatusChange moves an appointment to next when the lifecycle allows it.
func StatusChange(next domain.AppointmentStatus) store.Mutation {
	return func(appt *domain.Appointment) error {
		if !next.Valid() {
			return apperr.Validation(fmt.Sprintf("unknown status %q", next))
		}
		if !appt.Status.CanTransitionTo(next) {
			return apperr.Validation(fmt.Sprintf("cannot change status from %s to %s", appt.Status, next))
		}
		appt.Status = next
		return nil
	}
}

// Apply runs mutate against the stored appointment inside one transaction.
func (s *Service) Apply(ctx context.Context, id uuid.UUID, mutate store.Mutation) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, apperr.Validation("appointment_id is required")
	}
	appt, err := s.repo.Apply(ctx, id, mutate)
	if err != nil {
		return domain.Appointment{}, notFoundOr(id, classify("appointments.apply", err))
	}
	return appt, nil
}

// Delete is the admin-only hard delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return apperr.Validation("appointment_id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(id, classify("appointments.delete", err))
	}
	return nil
}

// classify leaves store sentinels and typed errors alone and marks anything
// else as a failed remote call.
func classify(op string, err error) error {
	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrIdempotencyConflict) || errors.Is(err, store.ErrNotFound) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Remote(op, err)
}

func notFoundOr(id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("appointment", id.String())
	}
	return err
}
