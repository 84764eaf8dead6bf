// Package booking drives a client through service selection, scheduling and
// confirmation until an appointment is submitted.
package booking

import (
	"context"
	"errors"
	"time"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/service/appointments"
)

type Step int

const (
	SelectingService Step = iota
	SelectingSchedule
	Confirming
	Submitted
)

func (s Step) String() string {
	switch s {
	case SelectingService:
		return "selecting_service"
	case SelectingSchedule:
		return "selecting_schedule"
	case Confirming:
		return "confirming"
	case Submitted:
		return "submitted"
	}
	return "unknown"
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrAuthRequired is returned when a session reaches confirmation without a
// signed-in user. The session keeps its selections so it can be resumed.
var ErrAuthRequired = errors.New("authentication required")

type Creator interface {
	Create(ctx context.Context, in appointments.CreateInput) (domain.Appointment, error)
}

// Session is not safe for concurrent use; Manager serializes access.
type Session struct {
	id          string
	step        Step
	service     *domain.Service
	date        string
	slot        *domain.TimeSlot
	notes       string
	userID      string
	appointment *domain.Appointment
	updatedAt   time.Time
}

// NewSession starts a flow. A deepLink service skips straight to scheduling.
func NewSession(id string, deepLink *domain.Service, now time.Time) *Session {
	s := &Session{id: id, step: SelectingService, updatedAt: now}
	if deepLink != nil {
		svc := *deepLink
		s.service = &svc
		s.step = SelectingSchedule
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Step() Step { return s.step }

// ErrSessionOwned is returned when a session bound to one user is claimed
// by another.
var ErrSessionOwned = errors.New("booking session belongs to another user")

// AttachUser binds the session to the identity used at confirmation. Once
// bound, only the same user can be attached.
func (s *Session) AttachUser(userID string) error {
	if userID == "" {
		return nil
	}
	if s.userID != "" && s.userID != userID {
		return ErrSessionOwned
	}
	s.userID = userID
	return nil
}

// VisibleTo reports whether userID may act on the session. Anonymous
// sessions are open to whoever holds the id.
func (s *Session) VisibleTo(userID string) bool {
	return s.userID == "" || s.userID == userID
}

func (s *Session) SelectService(svc domain.Service) error {
	if s.step != SelectingService {
		return apperr.Validation("a service can only be chosen at the start of booking")
	}
	s.service = &svc
	s.date = ""
	s.slot = nil
	s.step = SelectingSchedule
	return nil
}

// SelectSchedule records the day and slot. day must contain slot and the
// slot must be available.
func (s *Session) SelectSchedule(day domain.DaySlots, slotID, notes string) error {
	if s.step != SelectingSchedule {
		return apperr.Validation("a time can only be chosen while scheduling")
	}
	s.date = day.Date
	s.slot = nil
	s.notes = notes
	if slotID == "" {
		return nil
	}
	for _, slot := range day.Slots {
		if slot.ID != slotID {
			continue
		}
		if !slot.Available {
			return apperr.Validation("That time slot is not available")
		}
		picked := slot
		s.slot = &picked
		return nil
	}
	return apperr.NotFound("time slot", slotID)
}

// Continue moves forward one step. In Confirming it submits through c; on
// failure the session stays in Confirming.
func (s *Session) Continue(ctx context.Context, c Creator) error {
	switch s.step {
	case SelectingService:
		if s.service == nil {
			return apperr.Validation("Please select a service")
		}
		s.step = SelectingSchedule
	case SelectingSchedule:
		if s.date == "" || s.slot == nil {
			return apperr.Validation("Please select a date and time slot")
		}
		s.step = Confirming
	case Confirming:
		return s.submit(ctx, c)
	case Submitted:
		return apperr.Validation("booking already submitted")
	}
	return nil
}

// Back moves one step back. It reports exited when leaving the first step.
func (s *Session) Back() (exited bool, err error) {
	switch s.step {
	case SelectingService:
		return true, nil
	case SelectingSchedule:
		s.step = SelectingService
	case Confirming:
		s.step = SelectingSchedule
	case Submitted:
		return false, apperr.Validation("booking already submitted")
	}
	return false, nil
}

// Draft returns the appointment the session would submit.
func (s *Session) Draft() (appointments.CreateInput, error) {
	if s.service == nil || s.slot == nil {
		return appointments.CreateInput{}, apperr.Validation("Please select a date and time slot")
	}
	start := s.slot.Start
	return appointments.CreateInput{
		UserID:      s.userID,
		ServiceID:   s.service.ID,
		Title:       s.service.Title,
		Description: s.service.Description,
		Notes:       s.notes,
		StartTime:   start,
		EndTime:     start.Add(s.service.Duration()),
		// A retried confirmation of the same session maps to the same row.
		IdempotencyKey: "booking-session:" + s.id,
	}, nil
}

func (s *Session) submit(ctx context.Context, c Creator) error {
	if s.userID == "" {
		return ErrAuthRequired
	}
	in, err := s.Draft()
	if err != nil {
		return err
	}
	appt, err := c.Create(ctx, in)
	if err != nil {
		return err
	}
	s.appointment = &appt
	s.step = Submitted
	return nil
}

// View is the client-facing snapshot of a session.
type View struct {
	ID          string              `json:"id"`
	Step        Step                `json:"step"`
	Service     *domain.Service     `json:"service,omitempty"`
	Date        string              `json:"date,omitempty"`
	Slot        *domain.TimeSlot    `json:"slot,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	Appointment *domain.Appointment `json:"appointment,omitempty"`
}

func (s *Session) View() View {
	v := View{ID: s.id, Step: s.step, Date: s.date, Notes: s.notes}
	if s.service != nil {
		svc := *s.service
		v.Service = &svc
	}
	if s.slot != nil {
		slot := *s.slot
		v.Slot = &slot
	}
	if s.appointment != nil {
		appt := *s.appointment
		v.Appointment = &appt
	}
	return v
}
