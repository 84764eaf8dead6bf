package store

import (
	"context"

	"github.com/google/uuid"

	"lifecoach/backend/internal/domain"
)

// CalendarTx is the set of appointment writes available inside one
// calendar transaction.
type CalendarTx interface {
	CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	LockAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	SaveAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error
}
