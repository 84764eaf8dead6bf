package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const SubscriptionNone = "none"

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID                 uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Name               string    `bun:"name,notnull" json:"name"`
	Email              string    `bun:"email,notnull,unique" json:"email"`
	PasswordHash       string    `bun:"password_hash,notnull" json:"-"`
	Role               Role      `bun:"role,notnull" json:"role"`
	SubscriptionStatus string    `bun:"subscription_status,notnull" json:"subscriptionStatus"`
	Language           string    `bun:"language,notnull" json:"language"`
	CreatedAt          time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt          time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(query, &u.ID, &u.CreatedAt, &u.UpdatedAt)
}

// Device is an Expo push token registered by a signed-in user.
type Device struct {
	bun.BaseModel `bun:"table:devices"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	Token     string    `bun:"token,notnull,unique" json:"token"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

func (d *Device) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stampModel(query, &d.ID, &d.CreatedAt, &d.UpdatedAt)
}
