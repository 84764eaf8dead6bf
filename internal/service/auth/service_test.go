package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/store"
)

type fakeUsers struct {
	createFn  func(ctx context.Context, u domain.User) (domain.User, error)
	byEmailFn func(ctx context.Context, email string) (domain.User, error)
}

func (f *fakeUsers) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if f.createFn == nil {
		panic("CreateUser not configured")
	}
	return f.createFn(ctx, u)
}

func (f *fakeUsers) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	if f.byEmailFn == nil {
		panic("UserByEmail not configured")
	}
	return f.byEmailFn(ctx, email)
}

func (f *fakeUsers) UserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	panic("UserByID not configured")
}

func (f *fakeUsers) ListAdmins(ctx context.Context) ([]domain.User, error) {
	panic("ListAdmins not configured")
}

var testUserID = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")

func newTestService(t *testing.T, users store.UserRepository, now time.Time) *Service {
	t.Helper()
	svc, err := NewService(users, Config{
		Secret:     "test-secret",
		Issuer:     "lifecoach",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc
}

func TestNewService_RequiresSecret(t *testing.T) {
	if _, err := NewService(&fakeUsers{}, Config{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestSignUp_CreatesPlainUserAndToken(t *testing.T) {
	now := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	var created domain.User
	svc := newTestService(t, &fakeUsers{
		createFn: func(ctx context.Context, u domain.User) (domain.User, error) {
			u.ID = testUserID
			created = u
			return u, nil
		},
	}, now)

	sess, err := svc.SignUp(context.Background(), SignUpInput{
		Email:    "  Anna@Example.com ",
		Password: "correct horse",
		Name:     "Anna",
	})
	if err != nil {
		t.Fatalf("SignUp error: %v", err)
	}
	if created.Email != "anna@example.com" {
		t.Fatalf("email = %q, want lower-cased", created.Email)
	}
	if created.Role != domain.RoleUser || created.SubscriptionStatus != domain.SubscriptionNone {
		t.Fatalf("role/subscription = %q/%q", created.Role, created.SubscriptionStatus)
	}
	if created.Language != "en" {
		t.Fatalf("language = %q, want en", created.Language)
	}
	if bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("correct horse")) != nil {
		t.Fatalf("password hash does not match")
	}

	id, err := svc.Parse(sess.Token)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if id.UserID != testUserID.String() || id.Role != domain.RoleUser || id.IsAdmin() {
		t.Fatalf("identity = %+v", id)
	}
}

func TestSignUp_Validation(t *testing.T) {
	svc := newTestService(t, &fakeUsers{}, time.Now())
	tests := []struct {
		name string
		in   SignUpInput
	}{
		{name: "no email", in: SignUpInput{Password: "12345678", Name: "a"}},
		{name: "bad email", in: SignUpInput{Email: "nope", Password: "12345678", Name: "a"}},
		{name: "short password", in: SignUpInput{Email: "a@b.se", Password: "123", Name: "a"}},
		{name: "no name", in: SignUpInput{Email: "a@b.se", Password: "12345678"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SignUp(context.Background(), tt.in)
			var vErr *apperr.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error = %v, want *apperr.ValidationError", err)
			}
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	svc := newTestService(t, &fakeUsers{
		createFn: func(ctx context.Context, u domain.User) (domain.User, error) {
			return domain.User{}, store.ErrConflict
		},
	}, time.Now())
	_, err := svc.SignUp(context.Background(), SignUpInput{Email: "a@b.se", Password: "12345678", Name: "a"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrConflict)
	}
}

func TestSignIn(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	admin := domain.User{ID: testUserID, Email: "coach@example.com", PasswordHash: string(hash), Role: domain.RoleAdmin}
	svc := newTestService(t, &fakeUsers{
		byEmailFn: func(ctx context.Context, email string) (domain.User, error) {
			if email == admin.Email {
				return admin, nil
			}
			return domain.User{}, store.ErrNotFound
		},
	}, time.Now())

	sess, err := svc.SignIn(context.Background(), "Coach@Example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	id, err := svc.Parse(sess.Token)
	if err != nil || !id.IsAdmin() {
		t.Fatalf("identity = %+v, err = %v", id, err)
	}

	_, err = svc.SignIn(context.Background(), "coach@example.com", "wrong-pass")
	var vErr *apperr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("bad password error = %v, want *apperr.ValidationError", err)
	}

	_, err = svc.SignIn(context.Background(), "ghost@example.com", "whatever1")
	var nfErr *apperr.NotFoundError
	if !errors.As(err, &nfErr) || err.Error() != "user profile not found" {
		t.Fatalf("unknown user error = %v, want %q", err, "user profile not found")
	}
}

func TestParse_RejectsExpiredForeignAndTamperedTokens(t *testing.T) {
	issued := time.Date(2025, 7, 10, 9, 0, 0, 0, time.UTC)
	svc := newTestService(t, &fakeUsers{}, issued)
	token, err := svc.Issue(domain.User{ID: testUserID, Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	later := newTestService(t, &fakeUsers{}, issued.Add(2*time.Hour))
	if _, err := later.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token error = %v, want %v", err, ErrInvalidToken)
	}

	other, err := NewService(&fakeUsers{}, Config{Secret: "other", Issuer: "lifecoach", Now: func() time.Time { return issued }})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign secret error = %v, want %v", err, ErrInvalidToken)
	}

	if _, err := svc.Parse(token + "x"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token error = %v, want %v", err, ErrInvalidToken)
	}
}
