package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/config"
	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/logger"
	"github.com/segyhp/library-engine/internal/repository"
	customError "github.com/segyhp/library-engine/pkg/errors"
	"github.com/segyhp/library-engine/pkg/utils"
)

// StatsCache keeps per-user loan statistics for a single calendar day.
// Get returns nil stats on a miss plus the user's cache generation; Set drops
// the write when Invalidate has run since that generation was read.
type StatsCache interface {
	Get(ctx context.Context, userID int64, today time.Time) (*domain.LoanStats, int64, error)
	Set(ctx context.Context, userID int64, today time.Time, generation int64, stats *domain.LoanStats) error
	Invalidate(ctx context.Context, userID int64) error
}

// Notifier delivers loan notifications to downstream subscribers.
type Notifier interface {
	Publish(ctx context.Context, n *domain.Notification) error
}

// Recorder receives business events for metrics.
type Recorder interface {
	LoanIssued()
	LoanRejected(code string)
	LoanReturned(late bool)
	ReminderSent(kind string)
}

type LoanService struct {
	store    repository.Store
	config   *config.Config
	cache    StatsCache
	notifier Notifier
	metrics  Recorder
	logger   *zap.Logger
	now      func() time.Time
	location *time.Location
	fine     decimal.Decimal
}

type Option func(*LoanService)

func WithStatsCache(c StatsCache) Option {
	return func(s *LoanService) { s.cache = c }
}

func WithNotifier(n Notifier) Option {
	return func(s *LoanService) { s.notifier = n }
}

func WithMetrics(r Recorder) Option {
	return func(s *LoanService) { s.metrics = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *LoanService) { s.logger = l }
}

// WithClock replaces time.Now; "today" is still read in the library time zone.
func WithClock(now func() time.Time) Option {
	return func(s *LoanService) { s.now = now }
}

func NewLoanService(store repository.Store, cfg *config.Config, opts ...Option) *LoanService {
	s := &LoanService{
		store:    store,
		config:   cfg,
		cache:    noopCache{},
		notifier: noopNotifier{},
		metrics:  noopRecorder{},
		logger:   zap.NewNop(),
		now:      time.Now,
		location: cfg.GetLocation(),
		fine:     cfg.GetFinePerDay(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar date in the library time zone.
func (s *LoanService) Today() time.Time {
	return utils.Today(s.now(), s.location)
}

// IssueLoan validates req and creates a borrowed loan. Checks that depend on
// stored state run in one transaction holding the user and book row locks.
func (s *LoanService) IssueLoan(ctx context.Context, req domain.IssueLoanRequest) (*domain.LoanDetails, error) {
	today := s.Today()

	if err := s.validateIssue(req, today); err != nil {
		s.metrics.LoanRejected(customError.CodeOf(err))
		return nil, err
	}

	loan := &domain.Loan{
		UserID:       req.UserID,
		BookID:       req.BookID,
		LoansDate:    utils.DateOf(req.LoansDate),
		DueDate:      utils.DateOf(req.DueDate),
		Status:       domain.LoanStatusBorrowed,
		LoanDuration: req.DurationDays,
	}
	if req.Purpose != "" {
		purpose := req.Purpose
		loan.Purpose = &purpose
	}

	var details *domain.LoanDetails
	err := s.store.WithTransaction(ctx, func(g repository.Gateway) error {
		if _, err := requireActiveUser(ctx, g, req.UserID); err != nil {
			return err
		}

		book, err := g.Books().GetByIDForUpdate(ctx, req.BookID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapBookNotFound(req.BookID)
		}
		if err != nil {
			return err
		}

		active, err := g.Loans().CountActiveByBook(ctx, book.ID)
		if err != nil {
			return err
		}
		if !domain.NewAvailability(book, active).Available {
			return customError.WrapBookUnavailable(book.ID)
		}

		duplicate, err := g.Loans().HasActiveLoan(ctx, req.UserID, book.ID)
		if err != nil {
			return err
		}
		if duplicate {
			return customError.WrapDuplicateLoan(req.UserID, book.ID)
		}

		borrowed, err := g.Loans().CountActiveByUser(ctx, req.UserID)
		if err != nil {
			return err
		}
		if borrowed >= s.config.Business.MaxActiveLoans {
			return customError.WrapLoanLimitExceeded(s.config.Business.MaxActiveLoans)
		}

		if err := g.Loans().Create(ctx, loan); err != nil {
			if errors.Is(err, repository.ErrUniqueViolation) {
				return customError.WrapDuplicateLoan(req.UserID, book.ID)
			}
			return err
		}

		details, err = g.Loans().GetDetails(ctx, loan.ID)
		return err
	})
	if err != nil {
		err = s.fail(ctx, "issue loan", err, zap.Int64("user_id", req.UserID), zap.Int64("book_id", req.BookID))
		s.metrics.LoanRejected(customError.CodeOf(err))
		return nil, err
	}

	s.metrics.LoanIssued()
	s.invalidateStats(ctx, req.UserID)
	s.publish(ctx, &domain.Notification{
		Type:       domain.NotificationLoanIssued,
		UserID:     details.UserID,
		LoanID:     details.ID,
		BookTitle:  details.BookTitle,
		DueDate:    utils.FormatDate(details.DueDate),
		OccurredAt: s.now(),
	})

	logger.FromContext(ctx, s.logger).Info("loan issued",
		zap.Int64("loan_id", details.ID),
		zap.Int64("user_id", details.UserID),
		zap.Int64("book_id", details.BookID),
		zap.String("due_date", utils.FormatDate(details.DueDate)),
	)

	return details, nil
}

// validateIssue runs the checks that need no stored state, in order, and
// stops at the first failure.
func (s *LoanService) validateIssue(req domain.IssueLoanRequest, today time.Time) error {
	missing := map[string]string{}
	if req.UserID <= 0 {
		missing["user_id"] = "is required"
	}
	if req.BookID <= 0 {
		missing["book_id"] = "is required"
	}
	if req.LoansDate.IsZero() {
		missing["loans_date"] = "is required"
	}
	if req.DurationDays == 0 {
		missing["loan_duration"] = "is required"
	}
	if req.DueDate.IsZero() {
		missing["due_date"] = "is required"
	}
	if len(missing) > 0 {
		return customError.WrapValidation("Missing required fields", missing)
	}

	loansDate := utils.DateOf(req.LoansDate)
	dueDate := utils.DateOf(req.DueDate)

	if loansDate.Before(today) {
		return customError.WrapValidation("Loan date cannot be in the past",
			map[string]string{"loans_date": "must be on or after " + utils.FormatDate(today)})
	}

	if !dueDate.After(loansDate) {
		return customError.WrapValidation("Due date must be after loan date",
			map[string]string{"due_date": "must be after loans_date"})
	}

	minDays, maxDays := s.config.Business.MinLoanDays, s.config.Business.MaxLoanDays
	if req.DurationDays < minDays || req.DurationDays > maxDays {
		return customError.WrapValidation("Loan duration out of range",
			map[string]string{"loan_duration": fmt.Sprintf("must be between %d and %d days", minDays, maxDays)})
	}

	return nil
}

// GetLoan returns a loan owned by requestingUserID.
func (s *LoanService) GetLoan(ctx context.Context, loanID, requestingUserID int64) (*domain.LoanView, error) {
	details, err := s.store.Loans().GetDetails(ctx, loanID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapLoanNotFound(loanID)
	}
	if err != nil {
		return nil, s.fail(ctx, "get loan", err, zap.Int64("loan_id", loanID))
	}

	if err := requireOwnership(&details.Loan, requestingUserID); err != nil {
		return nil, err
	}

	return domain.NewLoanView(details, s.Today()), nil
}

// requireActiveUser loads and locks the user row. Inactive users cannot borrow.
func requireActiveUser(ctx context.Context, g repository.Gateway, userID int64) (*domain.User, error) {
	user, err := g.Users().GetByIDForUpdate(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapUserNotFound(userID)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, customError.WrapUserInactive(userID)
	}
	return user, nil
}

func requireOwnership(loan *domain.Loan, userID int64) error {
	if loan.UserID != userID {
		return customError.WrapForbidden(loan.ID)
	}
	return nil
}

// fail passes business errors through and turns anything else into an
// internal error after logging it with its context.
func (s *LoanService) fail(ctx context.Context, op string, err error, fields ...zap.Field) error {
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return be
	}

	fields = append(fields, zap.String("operation", op), zap.Error(err))
	logger.FromContext(ctx, s.logger).Error("loan engine failure", fields...)
	return customError.WrapInternal(err)
}

func (s *LoanService) invalidateStats(ctx context.Context, userID int64) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		logger.FromContext(ctx, s.logger).Warn("failed to invalidate loan stats cache",
			zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (s *LoanService) publish(ctx context.Context, n *domain.Notification) {
	if err := s.notifier.Publish(ctx, n); err != nil {
		logger.FromContext(ctx, s.logger).Warn("failed to publish notification",
			zap.String("type", n.Type), zap.Int64("loan_id", n.LoanID), zap.Error(err))
	}
}
