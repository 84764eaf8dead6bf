package appointments

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/events"
	"lifecoach/backend/internal/store"
)

// WritePolicy decides when a write shows up in the cached set.
type WritePolicy string

const (
	// PersistFirst applies local state only after the repository accepted
	// the write.
	PersistFirst WritePolicy = "persist-first"
	// Optimistic applies local state immediately and rolls it back when the
	// write fails.
	Optimistic WritePolicy = "optimistic"
)

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(s) {
	case "", PersistFirst:
		return PersistFirst, nil
	case Optimistic:
		return Optimistic, nil
	}
	return "", fmt.Errorf("unknown write policy %q", s)
}

type appointmentService interface {
	Build(in CreateInput) (domain.Appointment, error)
	Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	List(ctx context.Context, userID string) ([]domain.Appointment, error)
	Apply(ctx context.Context, id uuid.UUID, mutate store.Mutation) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Store is the cached appointment set of one viewer. Every mutation is
// written through the service; operations run one at a time.
type Store struct {
	svc    appointmentService
	policy WritePolicy
	pub    events.Publisher
	log    *slog.Logger

	op sync.Mutex

	mu      sync.RWMutex
	viewer  string
	appts   []domain.Appointment
	err     error
	loading bool
}

func NewStore(svc appointmentService, policy WritePolicy, pub events.Publisher, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if policy == "" {
		policy = PersistFirst
	}
	return &Store{
		svc:    svc,
		policy: policy,
		pub:    pub,
		log:    log.With(slog.String("component", "appointments.store")),
	}
}

// Fetch replaces the cached set with viewerID's appointments, or with every
// appointment when viewerID is empty. Failures are recorded in Err and the
// previous set is kept. Results that arrive after ctx is done are dropped.
func (s *Store) Fetch(ctx context.Context, viewerID string) {
	s.op.Lock()
	defer s.op.Unlock()

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	rows, err := s.svc.List(ctx, viewerID)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.log.Debug("fetch result dropped", slog.String("viewer", viewerID), slog.Any("err", ctxErr))
		return
	}
	if err != nil {
		s.err = apperr.Remote("appointments.fetch", err)
		s.log.Warn("appointment fetch failed", slog.String("viewer", viewerID), slog.Any("err", err))
		return
	}
	s.viewer = viewerID
	s.appts = rows
	sortByStart(s.appts)
	s.err = nil
}

// Refresh re-runs Fetch for the current viewer.
func (s *Store) Refresh(ctx context.Context) {
	s.Fetch(ctx, s.Viewer())
}

func (s *Store) Create(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	appt, err := s.svc.Build(in)
	if err != nil {
		return domain.Appointment{}, err
	}
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}

	return s.apply(ctx, mutation{
		op:          events.AppointmentCreated,
		id:          appt.ID,
		provisional: func(domain.Appointment, bool) (domain.Appointment, bool) { return appt, true },
		persist: func(ctx context.Context) (domain.Appointment, error) {
			return s.svc.Insert(ctx, appt)
		},
	})
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, next domain.AppointmentStatus) (domain.Appointment, error) {
	change := StatusChange(next)
	return s.apply(ctx, mutation{
		op: events.AppointmentStatusChanged,
		id: id,
		provisional: func(cur domain.Appointment, ok bool) (domain.Appointment, bool) {
			if !ok || change(&cur) != nil {
				return domain.Appointment{}, false
			}
			return cur, true
		},
		persist: func(ctx context.Context) (domain.Appointment, error) {
			return s.svc.Apply(ctx, id, change)
		},
	})
}

func (s *Store) Cancel(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return s.UpdateStatus(ctx, id, domain.AppointmentCancelled)
}

// Delete removes the appointment from the repository and then from the
// cached set. It is never optimistic.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	s.op.Lock()
	defer s.op.Unlock()

	prev, hadPrev := s.lookup(id)
	if err := s.svc.Delete(ctx, id); err != nil {
		s.log.Warn("appointment delete failed", slog.String("appointment_id", id.String()), slog.Any("err", err))
		return err
	}
	s.remove(id)

	if hadPrev {
		if err := s.pub.Publish(ctx, events.AppointmentDeleted, events.AppointmentEvent{Appointment: prev}); err != nil {
			s.log.Warn("event publish failed", slog.String("op", events.AppointmentDeleted), slog.Any("err", err))
		}
	}
	return nil
}

type mutation struct {
	op string
	id uuid.UUID
	// provisional computes the optimistic local state from the cached
	// appointment, if any. Returning false skips the optimistic step.
	provisional func(cur domain.Appointment, ok bool) (domain.Appointment, bool)
	persist     func(ctx context.Context) (domain.Appointment, error)
}

func (s *Store) apply(ctx context.Context, m mutation) (domain.Appointment, error) {
	s.op.Lock()
	defer s.op.Unlock()

	prev, hadPrev := s.lookup(m.id)

	var undo func()
	if s.policy == Optimistic {
		if next, ok := m.provisional(prev, hadPrev); ok {
			undo = s.upsert(next)
		}
	}

	out, err := m.persist(ctx)
	if err != nil {
		if undo != nil {
			undo()
		}
		s.log.Warn("appointment write failed",
			slog.String("op", m.op),
			slog.String("appointment_id", m.id.String()),
			slog.String("policy", string(s.policy)),
			slog.Any("err", err),
		)
		return domain.Appointment{}, err
	}
	s.upsert(out)

	payload := events.AppointmentEvent{Appointment: out}
	if hadPrev && m.op == events.AppointmentStatusChanged {
		payload.PreviousStatus = prev.Status
	}
	if err := s.pub.Publish(ctx, m.op, payload); err != nil {
		s.log.Warn("event publish failed", slog.String("op", m.op), slog.Any("err", err))
	}
	return out, nil
}

func (s *Store) lookup(id uuid.UUID) (domain.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.appts {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Appointment{}, false
}

// upsert writes appt into the cache when it belongs to the viewer's set and
// returns a func that restores the previous state.
func (s *Store) upsert(appt domain.Appointment) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.viewer != "" && appt.UserID != s.viewer {
		return func() {}
	}
	for i, a := range s.appts {
		if a.ID == appt.ID {
			old := a
			s.appts[i] = appt
			sortByStart(s.appts)
			return func() { s.replace(old) }
		}
	}
	s.appts = append(s.appts, appt)
	sortByStart(s.appts)
	return func() { s.remove(appt.ID) }
}

func (s *Store) replace(appt domain.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.appts {
		if a.ID == appt.ID {
			s.appts[i] = appt
			sortByStart(s.appts)
			return
		}
	}
}

func (s *Store) remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.appts {
		if a.ID == id {
			s.appts = append(s.appts[:i], s.appts[i+1:]...)
			return
		}
	}
}

// Appointments returns a copy of the cached set ordered by start time.
func (s *Store) Appointments() []domain.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Appointment, len(s.appts))
	copy(out, s.appts)
	return out
}

// Booked returns the cached appointments that still hold their slot.
func (s *Store) Booked() []domain.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		if a.Status.Active() {
			out = append(out, a)
		}
	}
	return out
}

func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Store) Viewer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewer
}

func sortByStart(appts []domain.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
