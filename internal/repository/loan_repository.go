package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/pkg/utils"
)

const loanColumns = `id, user_id, book_id, loans_date, due_date, return_date, status, loan_duration, purpose, created_at, updated_at`

type loanRepository struct {
	q sqlx.ExtContext
}

// Create inserts loan. Dates travel as YYYY-MM-DD text so the session
// time zone cannot shift them by a day.
func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (user_id, book_id, loans_date, due_date, status, loan_duration, purpose)
		VALUES ($1, $2, $3::date, $4::date, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	row := r.q.QueryRowxContext(ctx, query,
		loan.UserID,
		loan.BookID,
		utils.FormatDate(loan.LoansDate),
		utils.FormatDate(loan.DueDate),
		loan.Status,
		loan.LoanDuration,
		loan.Purpose,
	)

	if err := row.Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt); err != nil {
		return translateError(err)
	}

	return nil
}

func (r *loanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	var loan domain.Loan
	err := sqlx.GetContext(ctx, r.q, &loan, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &loan, nil
}

func (r *loanRepository) GetDetails(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	query, args, err := detailsQuery().Where(loanCol("id").Eq(id)).ToSQL()
	if err != nil {
		return nil, err
	}

	var details domain.LoanDetails
	err = sqlx.GetContext(ctx, r.q, &details, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &details, nil
}

func (r *loanRepository) CountActiveByBook(ctx context.Context, bookID int64) (int, error) {
	query := `SELECT COUNT(*) FROM loans WHERE book_id = $1 AND status = $2`

	var count int
	err := sqlx.GetContext(ctx, r.q, &count, query, bookID, domain.LoanStatusBorrowed)
	return count, err
}

func (r *loanRepository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status = $2`

	var count int
	err := sqlx.GetContext(ctx, r.q, &count, query, userID, domain.LoanStatusBorrowed)
	return count, err
}

func (r *loanRepository) HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM loans WHERE user_id = $1 AND book_id = $2 AND status = $3)`

	var exists bool
	err := sqlx.GetContext(ctx, r.q, &exists, query, userID, bookID, domain.LoanStatusBorrowed)
	return exists, err
}

// MarkReturned is a compare-and-set on (id, user_id, status). Of two racing
// returns exactly one sees a row come back.
func (r *loanRepository) MarkReturned(ctx context.Context, loanID, userID int64, returnDate time.Time) (*domain.Loan, error) {
	query := `
		UPDATE loans
		SET status = $4, return_date = $5::date, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status = $3
		RETURNING ` + loanColumns

	var loan domain.Loan
	err := sqlx.GetContext(ctx, r.q, &loan, query,
		loanID,
		userID,
		domain.LoanStatusBorrowed,
		domain.LoanStatusReturned,
		utils.FormatDate(returnDate),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRowsAffected
	}
	if err != nil {
		return nil, err
	}

	return &loan, nil
}
