package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/library-engine/internal/domain"
)

const selectUser = `
	SELECT id, name, email, role, is_active, created_at, updated_at
	FROM users
	WHERE id = $1
`

type userRepository struct {
	q sqlx.ExtContext
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.get(ctx, selectUser, id)
}

func (r *userRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	return r.get(ctx, selectUser+" FOR UPDATE", id)
}

func (r *userRepository) get(ctx context.Context, query string, id int64) (*domain.User, error) {
	var user domain.User
	err := sqlx.GetContext(ctx, r.q, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}
