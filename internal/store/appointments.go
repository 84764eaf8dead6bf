package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"lifecoach/backend/internal/domain"
)

// AppointmentFilter narrows List. Zero values match everything.
type AppointmentFilter struct {
	UserID    string
	Statuses  []domain.AppointmentStatus
	StartFrom time.Time
}

// Mutation edits a locked appointment in place. Returning an error aborts
// the surrounding transaction.
type Mutation func(appt *domain.Appointment) error

type AppointmentRepository interface {
	Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error)
	Apply(ctx context.Context, id uuid.UUID, mutate Mutation) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
