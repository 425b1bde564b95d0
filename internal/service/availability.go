package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/repository"
	customError "github.com/segyhp/library-engine/pkg/errors"
)

// Availability reports how many copies of a book are free right now.
// It reads outside any transaction; IssueLoan re-checks under lock.
func (s *LoanService) Availability(ctx context.Context, bookID int64) (*domain.Availability, error) {
	book, err := s.store.Books().GetByID(ctx, bookID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapBookNotFound(bookID)
	}
	if err != nil {
		return nil, s.fail(ctx, "availability", err, zap.Int64("book_id", bookID))
	}

	active, err := s.store.Loans().CountActiveByBook(ctx, bookID)
	if err != nil {
		return nil, s.fail(ctx, "availability", err, zap.Int64("book_id", bookID))
	}

	return domain.NewAvailability(book, active), nil
}

func (s *LoanService) IsAvailable(ctx context.Context, bookID int64) (bool, error) {
	availability, err := s.Availability(ctx, bookID)
	if err != nil {
		return false, err
	}
	return availability.Available, nil
}

// ActiveLoanCount counts borrowed loans of an existing book.
func (s *LoanService) ActiveLoanCount(ctx context.Context, bookID int64) (int, error) {
	availability, err := s.Availability(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return availability.ActiveLoans, nil
}
