package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/library-engine/internal/domain"
)

const selectBook = `
	SELECT id, title, COALESCE(author, '') AS author, stock, is_available, created_at, updated_at
	FROM books
	WHERE id = $1
`

type bookRepository struct {
	q sqlx.ExtContext
}

func (r *bookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	return r.get(ctx, selectBook, id)
}

// GetByIDForUpdate serialises issuance per book: concurrent transactions
// block here until the holder commits, then recount active loans.
func (r *bookRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	return r.get(ctx, selectBook+" FOR UPDATE", id)
}

func (r *bookRepository) get(ctx context.Context, query string, id int64) (*domain.Book, error) {
	var book domain.Book
	err := sqlx.GetContext(ctx, r.q, &book, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &book, nil
}
