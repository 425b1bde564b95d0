// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/repository"
)

// MockStore runs transaction callbacks against itself.
type MockStore struct {
	mock.Mock
	UserRepo   *MockUserRepository
	BookRepo   *MockBookRepository
	LoanRepo   *MockLoanRepository
	ReportRepo *MockReportRepository
}

func NewMockStore() *MockStore {
	return &MockStore{
		UserRepo:   &MockUserRepository{},
		BookRepo:   &MockBookRepository{},
		LoanRepo:   &MockLoanRepository{},
		ReportRepo: &MockReportRepository{},
	}
}

func (m *MockStore) Users() repository.UserRepository     { return m.UserRepo }
func (m *MockStore) Books() repository.BookRepository     { return m.BookRepo }
func (m *MockStore) Loans() repository.LoanRepository     { return m.LoanRepo }
func (m *MockStore) Reports() repository.ReportRepository { return m.ReportRepo }

func (m *MockStore) WithTransaction(ctx context.Context, fn func(repository.Gateway) error) error {
	return fn(m)
}

func (m *MockStore) WithSnapshot(ctx context.Context, fn func(repository.Gateway) error) error {
	return fn(m)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// AssertExpectations checks every repository mock.
func (m *MockStore) AssertExpectations(t mock.TestingT) bool {
	return m.UserRepo.AssertExpectations(t) &&
		m.BookRepo.AssertExpectations(t) &&
		m.LoanRepo.AssertExpectations(t) &&
		m.ReportRepo.AssertExpectations(t)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockBookRepository struct {
	mock.Mock
}

func (m *MockBookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Book), args.Error(1)
}

func (m *MockBookRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Book), args.Error(1)
}

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetDetails(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanDetails), args.Error(1)
}

func (m *MockLoanRepository) CountActiveByBook(ctx context.Context, bookID int64) (int, error) {
	args := m.Called(ctx, bookID)
	return args.Int(0), args.Error(1)
}

func (m *MockLoanRepository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockLoanRepository) HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error) {
	args := m.Called(ctx, userID, bookID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLoanRepository) MarkReturned(ctx context.Context, loanID, userID int64, returnDate time.Time) (*domain.Loan, error) {
	args := m.Called(ctx, loanID, userID, returnDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) GetStats(ctx context.Context, userID int64, today time.Time) (*domain.LoanStats, error) {
	args := m.Called(ctx, userID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanStats), args.Error(1)
}

func (m *MockReportRepository) ListActive(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error) {
	args := m.Called(ctx, userID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanDetails), args.Error(1)
}

func (m *MockReportRepository) ListHistory(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error) {
	args := m.Called(ctx, userID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanDetails), args.Error(1)
}

func (m *MockReportRepository) ListFavorites(ctx context.Context, userID int64) ([]*domain.FavoriteBook, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FavoriteBook), args.Error(1)
}

func (m *MockReportRepository) ListLoans(ctx context.Context, filter domain.LoanFilter, today time.Time) ([]*domain.LoanDetails, int, error) {
	args := m.Called(ctx, filter, today)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*domain.LoanDetails), args.Int(1), args.Error(2)
}

func (m *MockReportRepository) ListDueBy(ctx context.Context, dueBy time.Time) ([]*domain.LoanDetails, error) {
	args := m.Called(ctx, dueBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.LoanDetails), args.Error(1)
}

var _ repository.Store = (*MockStore)(nil)
