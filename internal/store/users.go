package store

import (
	"context"

	"github.com/google/uuid"

	"lifecoach/backend/internal/domain"
)

type UserRepository interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	UserByEmail(ctx context.Context, email string) (domain.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	ListAdmins(ctx context.Context) ([]domain.User, error)
}

type DeviceRepository interface {
	UpsertDevice(ctx context.Context, d domain.Device) (domain.Device, error)
	DeviceTokens(ctx context.Context, userIDs []string) ([]string, error)
}

type ContactRepository interface {
	CreateContactMessage(ctx context.Context, m domain.ContactMessage) (domain.ContactMessage, error)
	ListContactMessages(ctx context.Context, status domain.ContactStatus) ([]domain.ContactMessage, error)
	UpdateContactStatus(ctx context.Context, id uuid.UUID, status domain.ContactStatus) (domain.ContactMessage, error)
}
