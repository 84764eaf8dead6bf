package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentPending, AppointmentConfirmed, AppointmentCancelled, AppointmentCompleted:
		return true
	}
	return false
}

// Active reports whether an appointment in this status still occupies its slot.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentPending || s == AppointmentConfirmed
}

// CanTransitionTo follows pending -> confirmed -> completed, with cancellation
// allowed from either non-terminal status.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentPending:
		return next == AppointmentConfirmed || next == AppointmentCancelled
	case AppointmentConfirmed:
		return next == AppointmentCompleted || next == AppointmentCancelled
	}
	return false
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID          uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	UserID      string            `bun:"user_id,notnull" json:"userId"`
	ServiceID   string            `bun:"service_id,notnull" json:"serviceId"`
	Title       string            `bun:"title,notnull" json:"title"`
	Description string            `bun:"description" json:"description"`
	StartTime   time.Time         `bun:"start_time,notnull" json:"startTime"`
	EndTime     time.Time         `bun:"end_time,notnull" json:"endTime"`
	Date        string            `bun:"date,notnull" json:"date"`
	Status      AppointmentStatus `bun:"status,notnull" json:"status"`
	Notes       string            `bun:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time         `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull" json:"updatedAt"`
}

// Overlaps reports whether the appointment intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartTime.Before(end) && a.EndTime.After(start)
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(query, &a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// stampModel fills ids and timestamps the same way for every bun model.
func stampModel(query bun.Query, id *uuid.UUID, createdAt, updatedAt *time.Time) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if *id == uuid.Nil {
			v, err := uuid.NewV7()
			if err != nil {
				return err
			}
			*id = v
		}
		if createdAt.IsZero() {
			*createdAt = now
		}
		if updatedAt.IsZero() {
			*updatedAt = now
		}
	case *bun.UpdateQuery:
		*updatedAt = now
	}
	return nil
}
