package repository

import (
	"context"
	"time"

	"github.com/segyhp/library-engine/internal/domain"
)

// UserRepository defines the interface for user data operations
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByIDForUpdate retrieves a user and locks the row until the transaction ends
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error)
}

// BookRepository defines the interface for book data operations
type BookRepository interface {
	// GetByID retrieves a book by ID
	GetByID(ctx context.Context, id int64) (*domain.Book, error)

	// GetByIDForUpdate retrieves a book and locks the row until the transaction ends
	GetByIDForUpdate(ctx context.Context, id int64) (*domain.Book, error)
}

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create inserts a loan and fills in its ID and timestamps
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by ID
	GetByID(ctx context.Context, id int64) (*domain.Loan, error)

	// GetDetails retrieves a loan joined with user and book display fields
	GetDetails(ctx context.Context, id int64) (*domain.LoanDetails, error)

	// CountActiveByBook counts borrowed loans of a book
	CountActiveByBook(ctx context.Context, bookID int64) (int, error)

	// CountActiveByUser counts borrowed loans of a user
	CountActiveByUser(ctx context.Context, userID int64) (int, error)

	// HasActiveLoan reports whether the user currently borrows the book
	HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error)

	// MarkReturned flips a borrowed loan owned by userID to returned.
	// Returns ErrNoRowsAffected when the guarded update matched nothing.
	MarkReturned(ctx context.Context, loanID, userID int64, returnDate time.Time) (*domain.Loan, error)
}

// ReportRepository defines the read-only queries behind dashboards.
// "today" decides which borrowed loans count as overdue.
type ReportRepository interface {
	// GetStats counts a user's loans grouped by effective status
	GetStats(ctx context.Context, userID int64, today time.Time) (*domain.LoanStats, error)

	// ListActive lists a user's borrowed loans that are not yet past due,
	// earliest due date first. Loans past due belong to ListHistory.
	ListActive(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error)

	// ListHistory lists a user's returned and overdue loans, newest first
	ListHistory(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error)

	// ListFavorites lists the books a user marked as favorite
	ListFavorites(ctx context.Context, userID int64) ([]*domain.FavoriteBook, error)

	// ListLoans lists loans for the admin view and returns the unpaginated total
	ListLoans(ctx context.Context, filter domain.LoanFilter, today time.Time) ([]*domain.LoanDetails, int, error)

	// ListDueBy lists borrowed loans whose due date is on or before the given date
	ListDueBy(ctx context.Context, dueBy time.Time) ([]*domain.LoanDetails, error)
}

// Gateway exposes the repositories bound to one connection or transaction.
type Gateway interface {
	Users() UserRepository
	Books() BookRepository
	Loans() LoanRepository
	Reports() ReportRepository
}

// Store is the persistence gateway of the loan engine.
type Store interface {
	Gateway

	// WithTransaction runs fn in a read-write transaction. A nil return
	// commits; any error or panic rolls back.
	WithTransaction(ctx context.Context, fn func(Gateway) error) error

	// WithSnapshot runs fn in a read-only transaction that sees a single
	// point-in-time view of the data.
	WithSnapshot(ctx context.Context, fn func(Gateway) error) error

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
