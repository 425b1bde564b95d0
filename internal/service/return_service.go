package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/logger"
	"github.com/segyhp/library-engine/internal/repository"
	customError "github.com/segyhp/library-engine/pkg/errors"
	"github.com/segyhp/library-engine/pkg/utils"
)

// ReturnLoan closes a borrowed loan owned by requestingUserID. The status
// flip is a conditional update, so a racing second return gets a Conflict.
func (s *LoanService) ReturnLoan(ctx context.Context, loanID, requestingUserID int64) (*domain.ReturnResult, error) {
	today := s.Today()

	var (
		result    *domain.ReturnResult
		bookTitle string
	)
	err := s.store.WithTransaction(ctx, func(g repository.Gateway) error {
		loan, err := g.Loans().GetByID(ctx, loanID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapLoanNotFound(loanID)
		}
		if err != nil {
			return err
		}

		if err := requireOwnership(loan, requestingUserID); err != nil {
			return err
		}
		if !loan.IsBorrowed() {
			return customError.WrapInvalidState(loan.ID, loan.Status)
		}

		// return_date may not precede loans_date; clamp loans issued for a future day.
		returnDate := today
		if returnDate.Before(loan.LoansDate) {
			returnDate = utils.DateOf(loan.LoansDate)
		}

		updated, err := g.Loans().MarkReturned(ctx, loan.ID, requestingUserID, returnDate)
		if errors.Is(err, repository.ErrNoRowsAffected) {
			return customError.WrapConflict(loan.ID)
		}
		if err != nil {
			return err
		}

		daysLate := 0
		isLate := utils.IsDateOverdue(loan.DueDate, today)
		if isLate {
			daysLate = utils.DaysBetween(loan.DueDate, today)
		}
		result = &domain.ReturnResult{
			Loan:     updated,
			IsLate:   isLate,
			DaysLate: daysLate,
			LateFee:  utils.CalculateLateFee(daysLate, s.fine),
		}

		book, err := g.Books().GetByID(ctx, loan.BookID)
		if err == nil {
			bookTitle = book.Title
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "return loan", err, zap.Int64("loan_id", loanID), zap.Int64("user_id", requestingUserID))
	}

	s.metrics.LoanReturned(result.IsLate)
	s.invalidateStats(ctx, requestingUserID)
	s.publish(ctx, &domain.Notification{
		Type:       domain.NotificationLoanReturned,
		UserID:     requestingUserID,
		LoanID:     result.Loan.ID,
		BookTitle:  bookTitle,
		DueDate:    utils.FormatDate(result.Loan.DueDate),
		IsLate:     result.IsLate,
		DaysLate:   result.DaysLate,
		LateFee:    result.LateFee.StringFixed(2),
		OccurredAt: s.now(),
	})

	logger.FromContext(ctx, s.logger).Info("loan returned",
		zap.Int64("loan_id", result.Loan.ID),
		zap.Int64("user_id", requestingUserID),
		zap.Bool("late", result.IsLate),
		zap.Int("days_late", result.DaysLate),
	)

	return result, nil
}
