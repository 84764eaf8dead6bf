package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ContactStatus string

const (
	ContactNew     ContactStatus = "new"
	ContactRead    ContactStatus = "read"
	ContactReplied ContactStatus = "replied"
)

func (s ContactStatus) Valid() bool {
	return s == ContactNew || s == ContactRead || s == ContactReplied
}

type ContactMessage struct {
	bun.BaseModel `bun:"table:contact_messages"`

	ID        uuid.UUID     `bun:"id,pk,type:uuid" json:"id"`
	Name      string        `bun:"name,notnull" json:"name"`
	Email     string        `bun:"email,notnull" json:"email"`
	Subject   string        `bun:"subject,notnull" json:"subject"`
	Message   string        `bun:"message,notnull" json:"message"`
	UserID    string        `bun:"user_id,nullzero" json:"userId,omitempty"`
	Status    ContactStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time     `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time     `bun:"updated_at,notnull" json:"updatedAt"`
}

func (m *ContactMessage) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(query, &m.ID, &m.CreatedAt, &m.UpdatedAt)
}
