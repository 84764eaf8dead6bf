package booking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/slots"
)

var tracer = otel.Tracer("lifecoach/booking")

type Catalog interface {
	ByID(id string) (domain.Service, error)
}

// Calendar reports the appointments that currently hold slots.
type Calendar interface {
	Booked() []domain.Appointment
}

type Config struct {
	Rules   slots.Rules
	IdleTTL time.Duration
	Now     func() time.Time
}

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Manager owns the in-flight booking sessions.
type Manager struct {
	catalog  Catalog
	calendar Calendar
	creator  Creator
	rules    slots.Rules
	ttl      time.Duration
	now      func() time.Time
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewManager(catalog Catalog, calendar Calendar, creator Creator, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		catalog:  catalog,
		calendar: calendar,
		creator:  creator,
		rules:    cfg.Rules,
		ttl:      cfg.IdleTTL,
		now:      cfg.Now,
		log:      log.With(slog.String("component", "booking")),
		sessions: make(map[string]*entry),
	}
}

// Slots returns the current grid computed against booked appointments.
func (m *Manager) Slots() []domain.DaySlots {
	return slots.Generate(m.now(), m.calendar.Booked(), m.rules)
}

// Start opens a session. An unknown deep-link service is ignored and the
// session starts at service selection.
func (m *Manager) Start(deepLinkServiceID, userID string) View {
	var deepLink *domain.Service
	if deepLinkServiceID != "" {
		if svc, err := m.catalog.ByID(deepLinkServiceID); err == nil {
			deepLink = &svc
		} else {
			m.log.Debug("deep link ignored", slog.String("service_id", deepLinkServiceID))
		}
	}

	s := NewSession(uuid.NewString(), deepLink, m.now())
	_ = s.AttachUser(userID)

	m.mu.Lock()
	m.sessions[s.ID()] = &entry{session: s}
	m.mu.Unlock()

	return s.View()
}

// Get returns the session as seen by userID. A session bound to another
// user is reported as not found.
func (m *Manager) Get(id, userID string) (View, error) {
	var v View
	err := m.with(id, userID, func(s *Session) error {
		v = s.View()
		return nil
	})
	return v, err
}

func (m *Manager) SelectService(id, userID, serviceID string) (View, error) {
	var v View
	err := m.with(id, userID, func(s *Session) error {
		svc, err := m.catalog.ByID(serviceID)
		if err != nil {
			return err
		}
		if err := s.SelectService(svc); err != nil {
			return err
		}
		v = s.View()
		return nil
	})
	return v, err
}

// SelectSchedule picks a date and, optionally, a slot on that date.
func (m *Manager) SelectSchedule(id, userID, date, slotID, notes string) (View, error) {
	var v View
	err := m.with(id, userID, func(s *Session) error {
		day, ok := slots.FindDay(m.Slots(), date)
		if !ok {
			return apperr.Validation("Please select a date within the booking window")
		}
		if err := s.SelectSchedule(day, slotID, notes); err != nil {
			return err
		}
		v = s.View()
		return nil
	})
	return v, err
}

// Continue advances the session. userID, when set, is attached first so a
// session that stopped for sign-in can be resumed.
func (m *Manager) Continue(ctx context.Context, id, userID string) (View, error) {
	var v View
	err := m.with(id, userID, func(s *Session) error {
		if err := s.AttachUser(userID); err != nil {
			return err
		}
		if s.Step() == Confirming {
			if err := m.submit(ctx, s); err != nil {
				v = s.View()
				return err
			}
		} else if err := s.Continue(ctx, m.creator); err != nil {
			return err
		}
		v = s.View()
		return nil
	})
	return v, err
}

func (m *Manager) submit(ctx context.Context, s *Session) error {
	ctx, span := tracer.Start(ctx, "booking.submit")
	defer span.End()
	span.SetAttributes(attribute.String("booking.session_id", s.ID()))

	// The grid may have changed since the slot was picked.
	if s.slot != nil {
		current, ok := slots.Find(m.Slots(), s.slot.ID)
		if !ok || !current.Available {
			return apperr.Validation("That time slot is no longer available")
		}
	}

	err := s.Continue(ctx, m.creator)
	if err != nil {
		if !errors.Is(err, ErrAuthRequired) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submit failed")
			m.log.Warn("booking submit failed", slog.String("session_id", s.ID()), slog.Any("err", err))
		}
		return err
	}
	m.log.Info("booking submitted",
		slog.String("session_id", s.ID()),
		slog.String("appointment_id", s.appointment.ID.String()),
		slog.String("user_id", s.userID),
	)
	return nil
}

// Back steps back. Leaving the first step closes the session.
func (m *Manager) Back(id, userID string) (View, bool, error) {
	var v View
	var exited bool
	err := m.with(id, userID, func(s *Session) error {
		out, err := s.Back()
		if err != nil {
			return err
		}
		exited = out
		v = s.View()
		return nil
	})
	if err == nil && exited {
		m.remove(id)
	}
	return v, exited, err
}

// Sweep drops sessions idle for longer than the TTL and submitted ones.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.sessions {
		if !e.mu.TryLock() {
			continue
		}
		stale := e.session.updatedAt.Before(cutoff) || e.session.step == Submitted
		e.mu.Unlock()
		if stale {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) with(id, userID string, fn func(s *Session) error) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return apperr.NotFound("booking session", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.updatedAt.Before(m.now().Add(-m.ttl)) {
		m.remove(id)
		return apperr.NotFound("booking session", id)
	}
	if !e.session.VisibleTo(userID) {
		return apperr.NotFound("booking session", id)
	}
	err := fn(e.session)
	e.session.updatedAt = m.now()
	return err
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}
