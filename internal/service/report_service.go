package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/logger"
	"github.com/segyhp/library-engine/internal/repository"
	customError "github.com/segyhp/library-engine/pkg/errors"
	"github.com/segyhp/library-engine/pkg/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// GetUserLoanStats counts the user's loans by effective status. Results are
// cached per day; cache failures fall back to the database.
func (s *LoanService) GetUserLoanStats(ctx context.Context, userID int64) (*domain.LoanStats, error) {
	today := s.Today()
	log := logger.FromContext(ctx, s.logger)

	stats, generation, cacheErr := s.cache.Get(ctx, userID, today)
	if cacheErr != nil {
		log.Warn("failed to read loan stats cache", zap.Int64("user_id", userID), zap.Error(cacheErr))
	}
	if stats != nil {
		return stats, nil
	}

	stats, err := s.store.Reports().GetStats(ctx, userID, today)
	if err != nil {
		return nil, s.fail(ctx, "loan stats", err, zap.Int64("user_id", userID))
	}

	// Without a generation the write could overwrite a newer invalidation.
	if cacheErr != nil {
		return stats, nil
	}
	if err := s.cache.Set(ctx, userID, today, generation, stats); err != nil {
		log.Warn("failed to write loan stats cache", zap.Int64("user_id", userID), zap.Error(err))
	}

	return stats, nil
}

// GetActiveLoans lists the user's borrowed loans that are not yet past due,
// with days remaining. Past-due loans are listed by GetLoanHistory.
func (s *LoanService) GetActiveLoans(ctx context.Context, userID int64) ([]*domain.LoanView, error) {
	today := s.Today()
	loans, err := s.store.Reports().ListActive(ctx, userID, today)
	if err != nil {
		return nil, s.fail(ctx, "active loans", err, zap.Int64("user_id", userID))
	}
	return views(loans, today), nil
}

// GetLoanHistory lists returned and overdue loans, most recent first.
func (s *LoanService) GetLoanHistory(ctx context.Context, userID int64) ([]*domain.LoanView, error) {
	today := s.Today()
	loans, err := s.store.Reports().ListHistory(ctx, userID, today)
	if err != nil {
		return nil, s.fail(ctx, "loan history", err, zap.Int64("user_id", userID))
	}
	return views(loans, today), nil
}

// GetDashboard reads stats, lists and favorites from a single snapshot so
// the numbers agree with each other.
func (s *LoanService) GetDashboard(ctx context.Context, userID int64) (*domain.Dashboard, error) {
	today := s.Today()
	dashboard := &domain.Dashboard{}

	err := s.store.WithSnapshot(ctx, func(g repository.Gateway) error {
		stats, err := g.Reports().GetStats(ctx, userID, today)
		if err != nil {
			return err
		}
		active, err := g.Reports().ListActive(ctx, userID, today)
		if err != nil {
			return err
		}
		history, err := g.Reports().ListHistory(ctx, userID, today)
		if err != nil {
			return err
		}
		favorites, err := g.Reports().ListFavorites(ctx, userID)
		if err != nil {
			return err
		}

		dashboard.Stats = stats
		dashboard.ActiveLoans = views(active, today)
		dashboard.LoanHistory = views(history, today)
		dashboard.Favorites = favorites
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "dashboard", err, zap.Int64("user_id", userID))
	}

	return dashboard, nil
}

// ListLoans is the librarian view over every loan. Status filters on the
// effective status.
func (s *LoanService) ListLoans(ctx context.Context, filter domain.LoanFilter) (*domain.LoanPage, error) {
	switch filter.Status {
	case "", domain.LoanStatusBorrowed, domain.LoanStatusOverdue, domain.LoanStatusReturned:
	default:
		return nil, customError.WrapValidation("Invalid status filter",
			map[string]string{"status": "must be one of borrowed, overdue, returned"})
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, customError.WrapValidation("Invalid date range",
			map[string]string{"from": "must not be after to"})
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Limit = PageSize(filter.Limit)

	today := s.Today()
	loans, total, err := s.store.Reports().ListLoans(ctx, filter, today)
	if err != nil {
		return nil, s.fail(ctx, "list loans", err, zap.String("status", filter.Status))
	}

	return &domain.LoanPage{
		Loans: views(loans, today),
		Total: total,
		Limit: filter.Limit,
		Page:  filter.Offset/filter.Limit + 1,
	}, nil
}

// SendDueReminders notifies borrowers whose loans are due tomorrow or already
// overdue. It returns how many notifications were published.
func (s *LoanService) SendDueReminders(ctx context.Context) (int, error) {
	today := s.Today()
	tomorrow := utils.AddDays(today, 1)
	log := logger.FromContext(ctx, s.logger)

	loans, err := s.store.Reports().ListDueBy(ctx, tomorrow)
	if err != nil {
		return 0, s.fail(ctx, "due reminders", err)
	}

	sent := 0
	for _, loan := range loans {
		var kind string
		switch {
		case utils.IsDateOverdue(loan.DueDate, today):
			kind = domain.NotificationLoanOverdue
		case utils.DateOf(loan.DueDate).Equal(tomorrow):
			kind = domain.NotificationLoanDueSoon
		default:
			continue
		}

		n := &domain.Notification{
			Type:       kind,
			UserID:     loan.UserID,
			LoanID:     loan.ID,
			BookTitle:  loan.BookTitle,
			DueDate:    utils.FormatDate(loan.DueDate),
			OccurredAt: s.now(),
		}
		if kind == domain.NotificationLoanOverdue {
			n.IsLate = true
			n.DaysLate = utils.DaysBetween(loan.DueDate, today)
			n.LateFee = utils.CalculateLateFee(n.DaysLate, s.fine).StringFixed(2)
		}

		if err := s.notifier.Publish(ctx, n); err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			log.Warn("failed to publish reminder", zap.Int64("loan_id", loan.ID), zap.Error(err))
			continue
		}
		s.metrics.ReminderSent(kind)
		sent++
	}

	log.Info("due reminders sent",
		zap.String("date", utils.FormatDate(today)),
		zap.Int("candidates", len(loans)),
		zap.Int("sent", sent),
	)
	return sent, nil
}

// PageSize clamps a requested page size to [1, 100], defaulting to 20.
func PageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

func views(loans []*domain.LoanDetails, today time.Time) []*domain.LoanView {
	out := make([]*domain.LoanView, 0, len(loans))
	for _, l := range loans {
		out = append(out, domain.NewLoanView(l, today))
	}
	return out
}
