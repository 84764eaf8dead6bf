package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"lifecoach/backend/internal/domain"
)

type ContactRepo struct {
	db *bun.DB
}

func NewContactRepo(db *bun.DB) *ContactRepo {
	return &ContactRepo{db: db}
}

func (r *ContactRepo) CreateContactMessage(ctx context.Context, m domain.ContactMessage) (domain.ContactMessage, error) {
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.ContactMessage{}, err
	}
	return m, nil
}

// ListContactMessages returns newest first. An empty status lists everything.
func (r *ContactRepo) ListContactMessages(ctx context.Context, status domain.ContactStatus) ([]domain.ContactMessage, error) {
	var rows []domain.ContactMessage
	q := r.db.NewSelect().Model(&rows)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.OrderExpr("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ContactRepo) UpdateContactStatus(ctx context.Context, id uuid.UUID, status domain.ContactStatus) (domain.ContactMessage, error) {
	m := domain.ContactMessage{ID: id, Status: status}
	res, err := r.db.NewUpdate().
		Model(&m).
		Column("status", "updated_at").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.ContactMessage{}, notFound(err)
	}
	if err := requireAffected(res); err != nil {
		return domain.ContactMessage{}, err
	}
	return m, nil
}
