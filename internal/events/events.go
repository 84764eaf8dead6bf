// Package events carries domain events to whatever sinks are configured:
// the message broker, push notifications, or nothing at all.
package events

import (
	"context"
	"errors"

	"lifecoach/backend/internal/domain"
)

const (
	AppointmentCreated       = "appointment.created"
	AppointmentStatusChanged = "appointment.status_changed"
	AppointmentDeleted       = "appointment.deleted"
	MessageSent              = "message.sent"
	ContactSubmitted         = "contact.submitted"
)

type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
}

type AppointmentEvent struct {
	Appointment    domain.Appointment       `json:"appointment"`
	PreviousStatus domain.AppointmentStatus `json:"previousStatus,omitempty"`
}

type MessageEvent struct {
	Message domain.Message `json:"message"`
}

type ContactEvent struct {
	Contact domain.ContactMessage `json:"contact"`
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// Multi publishes to every sink and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, key string, payload any) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, key, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
