package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/store"
)

type fakeRepo struct {
	createFn func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	getFn    func(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	listFn   func(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error)
	applyFn  func(ctx context.Context, id uuid.UUID, mutate store.Mutation) (domain.Appointment, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeRepo) Create(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, appt)
}

func (f *fakeRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if f.getFn == nil {
		panic("Get not configured")
	}
	return f.getFn(ctx, id)
}

func (f *fakeRepo) List(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx, filter)
}

func (f *fakeRepo) Apply(ctx context.Context, id uuid.UUID, mutate store.Mutation) (domain.Appointment, error) {
	if f.applyFn == nil {
		panic("Apply not configured")
	}
	return f.applyFn(ctx, id, mutate)
}

func (f *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

func echoCreate(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	return appt, nil
}

func validInput() CreateInput {
	start := time.Date(2025, 7, 10, 10, 0, 0, 0, time.UTC)
	return CreateInput{
		UserID:    "2",
		ServiceID: "2",
		Title:     "Single Coaching Session",
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
	}
}

func TestServiceCreate_ValidationErrorType(t *testing.T) {
	svc := NewService(&fakeRepo{createFn: echoCreate}, nil)

	tests := []struct {
		name   string
		mutate func(in *CreateInput)
		want   string
	}{
		{name: "missing user", mutate: func(in *CreateInput) { in.UserID = "" }, want: "user_id is required"},
		{name: "missing title", mutate: func(in *CreateInput) { in.Title = "  " }, want: "title is required"},
		{name: "missing service", mutate: func(in *CreateInput) { in.ServiceID = "" }, want: "service_id is required"},
		{name: "end before start", mutate: func(in *CreateInput) { in.EndTime = in.StartTime }, want: "end_time must be after start_time"},
		{name: "too long", mutate: func(in *CreateInput) { in.EndTime = in.StartTime.Add(25 * time.Hour) }, want: "duration too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), in)
			var vErr *apperr.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *apperr.ValidationError", err)
			}
			if vErr.Error() != tt.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), tt.want)
			}
		})
	}
}

func TestServiceCreate_PendingWithDateInBusinessZone(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("LoadLocation error: %v", err)
	}

	var got domain.Appointment
	svc := NewService(&fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			got = appt
			return appt, nil
		},
	}, loc)

	in := validInput()
	in.StartTime = time.Date(2026, 1, 10, 2, 0, 0, 0, time.UTC)
	in.EndTime = in.StartTime.Add(time.Hour)
	in.Title = "  hello  "

	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.Title != "hello" {
		t.Fatalf("title = %q, want %q", got.Title, "hello")
	}
	if got.Status != domain.AppointmentPending {
		t.Fatalf("status = %q, want pending", got.Status)
	}
	if got.Date != "2026-01-09" {
		t.Fatalf("date = %q, want %q", got.Date, "2026-01-09")
	}
	if got.StartTime.Location() != time.UTC {
		t.Fatalf("expected UTC start, got %v", got.StartTime)
	}
}

func TestServiceCreate_IdempotencyKeyDeterministicUUID(t *testing.T) {
	svc := NewService(&fakeRepo{createFn: echoCreate}, nil)

	in := validInput()
	in.IdempotencyKey = " key-1 "
	a, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	b, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if a.ID == uuid.Nil || a.ID != b.ID {
		t.Fatalf("ids = %s / %s, want equal and non-nil", a.ID, b.ID)
	}

	in.UserID = "3"
	c, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if c.ID == a.ID {
		t.Fatalf("same key for another user must give another id")
	}
}

func TestServiceCreate_PassesThroughConflictAndWrapsRemote(t *testing.T) {
	svc := NewService(&fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrConflict
		},
	}, nil)
	if _, err := svc.Create(context.Background(), validInput()); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrConflict)
	}

	cause := errors.New("connection refused")
	svc = NewService(&fakeRepo{
		createFn: func(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
			return domain.Appointment{}, cause
		},
	}, nil)
	_, err := svc.Create(context.Background(), validInput())
	var rErr *apperr.RemoteError
	if !errors.As(err, &rErr) || !errors.Is(err, cause) {
		t.Fatalf("error = %v, want *apperr.RemoteError wrapping cause", err)
	}
}

func TestServiceUpcoming_Filter(t *testing.T) {
	now := time.Date(2025, 7, 9, 12, 0, 0, 0, time.UTC)
	var got store.AppointmentFilter
	svc := NewService(&fakeRepo{
		listFn: func(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
			got = filter
			return nil, nil
		},
	}, nil)

	if _, err := svc.Upcoming(context.Background(), "u1", now); err != nil {
		t.Fatalf("Upcoming error: %v", err)
	}
	if got.UserID != "u1" || !got.StartFrom.Equal(now) {
		t.Fatalf("filter = %+v", got)
	}
	if len(got.Statuses) != 2 || got.Statuses[0] != domain.AppointmentPending || got.Statuses[1] != domain.AppointmentConfirmed {
		t.Fatalf("statuses = %v, want [pending confirmed]", got.Statuses)
	}
}

func TestStatusChange(t *testing.T) {
	appt := domain.Appointment{Status: domain.AppointmentPending}
	if err := StatusChange(domain.AppointmentConfirmed)(&appt); err != nil {
		t.Fatalf("confirm error: %v", err)
	}
	if appt.Status != domain.AppointmentConfirmed {
		t.Fatalf("status = %q, want confirmed", appt.Status)
	}

	err := StatusChange(domain.AppointmentPending)(&appt)
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error = %v, want *apperr.ValidationError", err)
	}

	if err := StatusChange("archived")(&appt); !errors.As(err, &vErr) {
		t.Fatalf("unknown status error = %v, want *apperr.ValidationError", err)
	}
}

func TestServiceApply_NotFound(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	svc := NewService(&fakeRepo{
		applyFn: func(ctx context.Context, id uuid.UUID, mutate store.Mutation) (domain.Appointment, error) {
			return domain.Appointment{}, store.ErrNotFound
		},
		deleteFn: func(ctx context.Context, id uuid.UUID) error {
			return store.ErrNotFound
		},
	}, nil)

	var nfErr *apperr.NotFoundError
	if _, err := svc.Apply(context.Background(), id, StatusChange(domain.AppointmentCancelled)); !errors.As(err, &nfErr) {
		t.Fatalf("Apply error = %v, want *apperr.NotFoundError", err)
	}
	if err := svc.Delete(context.Background(), id); !errors.As(err, &nfErr) {
		t.Fatalf("Delete error = %v, want *apperr.NotFoundError", err)
	}
	if err := svc.Delete(context.Background(), uuid.Nil); err == nil {
		t.Fatalf("Delete(nil id) must fail")
	}
}
