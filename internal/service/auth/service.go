// Package auth signs users up and in, and issues the bearer tokens the
// HTTP layer verifies.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"lifecoach/backend/internal/apperr"
	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/store"
)

var ErrInvalidToken = errors.New("invalid token")

const minPasswordLen = 8

type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Identity is the caller resolved from a token.
type Identity struct {
	UserID string
	Role   domain.Role
	Email  string
}

func (i Identity) IsAdmin() bool { return i.Role == domain.RoleAdmin }

type Config struct {
	Secret     string
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

type Session struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Language string
}

type Service struct {
	users  store.UserRepository
	secret []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewService(users store.UserRepository, cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		users:  users,
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		cost:   cfg.BcryptCost,
		now:    cfg.Now,
	}, nil
}

func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Session{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Session{}, apperr.Validation("name is required")
	}
	if len(in.Password) < minPasswordLen {
		return Session{}, apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	lang := strings.TrimSpace(in.Language)
	if lang == "" {
		lang = "en"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("auth: hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, domain.User{
		Name:               name,
		Email:              email,
		PasswordHash:       string(hash),
		Role:               domain.RoleUser,
		SubscriptionStatus: domain.SubscriptionNone,
		Language:           lang,
	})
	if errors.Is(err, store.ErrConflict) {
		return Session{}, err
	}
	if err != nil {
		return Session{}, apperr.Remote("create user", err)
	}
	return s.session(u)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return Session{}, err
	}
	if password == "" {
		return Session{}, apperr.Validation("password is required")
	}

	u, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, &apperr.NotFoundError{Kind: "user profile"}
	}
	if err != nil {
		return Session{}, apperr.Remote("load user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, apperr.Validation("invalid email or password")
	}
	return s.session(u)
}

func (s *Service) Issue(u domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		Sub:   u.ID.String(),
		Role:  string(u.Role),
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Service) Parse(token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Sub == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: c.Sub, Role: domain.Role(c.Role), Email: c.Email}, nil
}

func (s *Service) session(u domain.User) (Session, error) {
	token, err := s.Issue(u)
	if err != nil {
		return Session{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Session{User: u, Token: token}, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("email is invalid")
	}
	return email, nil
}
