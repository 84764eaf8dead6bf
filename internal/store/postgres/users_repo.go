package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"lifecoach/backend/internal/domain"
	"lifecoach/backend/internal/store"
)

type UserRepo struct {
	db *bun.DB
}

func NewUserRepo(db *bun.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	u.Email = strings.ToLower(u.Email)
	_, err := r.db.NewInsert().Model(&u).Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, store.ErrConflict
		}
		return domain.User{}, err
	}
	return u, nil
}

func (r *UserRepo) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := r.db.NewSelect().
		Model(&u).
		Where("email = ?", strings.ToLower(email)).
		Limit(1).
		Scan(ctx)
	return u, notFound(err)
}

func (r *UserRepo) UserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var u domain.User
	err := r.db.NewSelect().
		Model(&u).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	return u, notFound(err)
}

func (r *UserRepo) ListAdmins(ctx context.Context) ([]domain.User, error) {
	var rows []domain.User
	err := r.db.NewSelect().
		Model(&rows).
		Where("role = ?", domain.RoleAdmin).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *UserRepo) UpsertDevice(ctx context.Context, d domain.Device) (domain.Device, error) {
	_, err := r.db.NewInsert().
		Model(&d).
		On("CONFLICT (token) DO UPDATE").
		Set("user_id = EXCLUDED.user_id").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id, created_at").
		Exec(ctx)
	if err != nil {
		return domain.Device{}, err
	}
	return d, nil
}

func (r *UserRepo) DeviceTokens(ctx context.Context, userIDs []string) ([]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var tokens []string
	err := r.db.NewSelect().
		Model((*domain.Device)(nil)).
		Column("token").
		Where("user_id IN (?)", bun.In(userIDs)).
		OrderExpr("updated_at DESC").
		Scan(ctx, &tokens)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
