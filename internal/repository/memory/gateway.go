package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/repository"
	"github.com/segyhp/library-engine/pkg/utils"
)

type accessor func(func(*tables) error) error

type gateway struct {
	read  accessor
	write accessor
	now   func() time.Time

	users   *userRepository
	books   *bookRepository
	loans   *loanRepository
	reports *reportRepository
}

func newGateway(read, write accessor, now func() time.Time) *gateway {
	g := &gateway{read: read, write: write, now: now}
	g.users = &userRepository{g}
	g.books = &bookRepository{g}
	g.loans = &loanRepository{g}
	g.reports = &reportRepository{g}
	return g
}

func (g *gateway) Users() repository.UserRepository     { return g.users }
func (g *gateway) Books() repository.BookRepository     { return g.books }
func (g *gateway) Loans() repository.LoanRepository     { return g.loans }
func (g *gateway) Reports() repository.ReportRepository { return g.reports }

type userRepository struct{ g *gateway }

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var user *domain.User
	err := r.g.read(func(t *tables) error {
		u, ok := t.users[id]
		if !ok {
			return repository.ErrNotFound
		}
		user = &u
		return nil
	})
	return user, err
}

// GetByIDForUpdate needs no extra locking: transactions are already serialised.
func (r *userRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.User, error) {
	return r.GetByID(ctx, id)
}

type bookRepository struct{ g *gateway }

func (r *bookRepository) GetByID(ctx context.Context, id int64) (*domain.Book, error) {
	var book *domain.Book
	err := r.g.read(func(t *tables) error {
		b, ok := t.books[id]
		if !ok {
			return repository.ErrNotFound
		}
		book = &b
		return nil
	})
	return book, err
}

func (r *bookRepository) GetByIDForUpdate(ctx context.Context, id int64) (*domain.Book, error) {
	return r.GetByID(ctx, id)
}

type loanRepository struct{ g *gateway }

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	return r.g.write(func(t *tables) error {
		if loan.Status == domain.LoanStatusBorrowed {
			for _, l := range t.loans {
				if l.IsBorrowed() && l.UserID == loan.UserID && l.BookID == loan.BookID {
					return fmt.Errorf("%w: loans_one_borrowed_per_user_book", repository.ErrUniqueViolation)
				}
			}
		}

		now := r.g.now()
		t.nextLoanID++
		loan.ID = t.nextLoanID
		loan.LoansDate = utils.DateOf(loan.LoansDate)
		loan.DueDate = utils.DateOf(loan.DueDate)
		loan.CreatedAt = now
		loan.UpdatedAt = now
		t.loans[loan.ID] = *loan
		return nil
	})
}

func (r *loanRepository) GetByID(ctx context.Context, id int64) (*domain.Loan, error) {
	var loan *domain.Loan
	err := r.g.read(func(t *tables) error {
		l, ok := t.loans[id]
		if !ok {
			return repository.ErrNotFound
		}
		loan = &l
		return nil
	})
	return loan, err
}

func (r *loanRepository) GetDetails(ctx context.Context, id int64) (*domain.LoanDetails, error) {
	var details *domain.LoanDetails
	err := r.g.read(func(t *tables) error {
		l, ok := t.loans[id]
		if !ok {
			return repository.ErrNotFound
		}
		d, ok := t.details(l)
		if !ok {
			return repository.ErrNotFound
		}
		details = d
		return nil
	})
	return details, err
}

func (r *loanRepository) CountActiveByBook(ctx context.Context, bookID int64) (int, error) {
	return r.count(func(l domain.Loan) bool { return l.BookID == bookID })
}

func (r *loanRepository) CountActiveByUser(ctx context.Context, userID int64) (int, error) {
	return r.count(func(l domain.Loan) bool { return l.UserID == userID })
}

func (r *loanRepository) HasActiveLoan(ctx context.Context, userID, bookID int64) (bool, error) {
	n, err := r.count(func(l domain.Loan) bool { return l.UserID == userID && l.BookID == bookID })
	return n > 0, err
}

func (r *loanRepository) count(match func(domain.Loan) bool) (int, error) {
	n := 0
	err := r.g.read(func(t *tables) error {
		for _, l := range t.loans {
			if l.IsBorrowed() && match(l) {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *loanRepository) MarkReturned(ctx context.Context, loanID, userID int64, returnDate time.Time) (*domain.Loan, error) {
	var loan *domain.Loan
	err := r.g.write(func(t *tables) error {
		l, ok := t.loans[loanID]
		if !ok || l.UserID != userID || !l.IsBorrowed() {
			return repository.ErrNoRowsAffected
		}

		rd := utils.DateOf(returnDate)
		l.Status = domain.LoanStatusReturned
		l.ReturnDate = &rd
		l.UpdatedAt = r.g.now()
		t.loans[loanID] = l
		loan = &l
		return nil
	})
	return loan, err
}

// details joins a loan with its user and book the way the SQL gateway does.
func (t *tables) details(l domain.Loan) (*domain.LoanDetails, bool) {
	u, ok := t.users[l.UserID]
	if !ok {
		return nil, false
	}
	b, ok := t.books[l.BookID]
	if !ok {
		return nil, false
	}
	return &domain.LoanDetails{
		Loan:       l,
		UserName:   u.Name,
		UserEmail:  u.Email,
		BookTitle:  b.Title,
		BookAuthor: b.Author,
	}, true
}

func (t *tables) selectDetails(match func(domain.Loan) bool) []*domain.LoanDetails {
	out := []*domain.LoanDetails{}
	for _, l := range t.loans {
		if !match(l) {
			continue
		}
		if d, ok := t.details(l); ok {
			out = append(out, d)
		}
	}
	return out
}

type reportRepository struct{ g *gateway }

func (r *reportRepository) GetStats(ctx context.Context, userID int64, today time.Time) (*domain.LoanStats, error) {
	stats := &domain.LoanStats{}
	err := r.g.read(func(t *tables) error {
		for _, l := range t.loans {
			if l.UserID != userID {
				continue
			}
			stats.TotalLoans++
			switch l.EffectiveStatus(today) {
			case domain.LoanStatusBorrowed:
				stats.ActiveLoans++
			case domain.LoanStatusOverdue:
				stats.OverdueBooks++
			case domain.LoanStatusReturned:
				stats.ReturnedBooks++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *reportRepository) ListActive(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error) {
	var loans []*domain.LoanDetails
	err := r.g.read(func(t *tables) error {
		loans = t.selectDetails(func(l domain.Loan) bool {
			return l.UserID == userID && l.EffectiveStatus(today) == domain.LoanStatusBorrowed
		})
		sortByDueDate(loans)
		return nil
	})
	return loans, err
}

func (r *reportRepository) ListHistory(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error) {
	var loans []*domain.LoanDetails
	err := r.g.read(func(t *tables) error {
		loans = t.selectDetails(func(l domain.Loan) bool {
			if l.UserID != userID {
				return false
			}
			status := l.EffectiveStatus(today)
			return status == domain.LoanStatusReturned || status == domain.LoanStatusOverdue
		})
		sortNewestFirst(loans)
		return nil
	})
	return loans, err
}

func (r *reportRepository) ListFavorites(ctx context.Context, userID int64) ([]*domain.FavoriteBook, error) {
	favorites := []*domain.FavoriteBook{}
	err := r.g.read(func(t *tables) error {
		for _, bookID := range t.favorites[userID] {
			if b, ok := t.books[bookID]; ok {
				favorites = append(favorites, &domain.FavoriteBook{ID: b.ID, Title: b.Title, Author: b.Author})
			}
		}
		sort.Slice(favorites, func(i, j int) bool { return favorites[i].Title < favorites[j].Title })
		return nil
	})
	return favorites, err
}

func (r *reportRepository) ListLoans(ctx context.Context, filter domain.LoanFilter, today time.Time) ([]*domain.LoanDetails, int, error) {
	switch filter.Status {
	case "", domain.LoanStatusBorrowed, domain.LoanStatusOverdue, domain.LoanStatusReturned:
	default:
		return nil, 0, fmt.Errorf("unknown loan status %q", filter.Status)
	}

	term := strings.ToLower(strings.TrimSpace(filter.Search))

	var page []*domain.LoanDetails
	total := 0
	err := r.g.read(func(t *tables) error {
		all := t.selectDetails(func(l domain.Loan) bool {
			switch {
			case term != "" &&
				!strings.Contains(strings.ToLower(t.users[l.UserID].Name), term) &&
				!strings.Contains(strings.ToLower(t.books[l.BookID].Title), term):
				return false
			case filter.Status != "" && l.EffectiveStatus(today) != filter.Status:
				return false
			case filter.UserID > 0 && l.UserID != filter.UserID:
				return false
			case filter.BookID > 0 && l.BookID != filter.BookID:
				return false
			case filter.From != nil && l.LoansDate.Before(utils.DateOf(*filter.From)):
				return false
			case filter.To != nil && l.LoansDate.After(utils.DateOf(*filter.To)):
				return false
			}
			return true
		})
		sortNewestFirst(all)

		total = len(all)
		start := min(filter.Offset, total)
		end := total
		if filter.Limit > 0 {
			end = min(start+filter.Limit, total)
		}
		page = all[start:end]
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return page, total, nil
}

func (r *reportRepository) ListDueBy(ctx context.Context, dueBy time.Time) ([]*domain.LoanDetails, error) {
	var loans []*domain.LoanDetails
	err := r.g.read(func(t *tables) error {
		cutoff := utils.DateOf(dueBy)
		loans = t.selectDetails(func(l domain.Loan) bool {
			return l.IsBorrowed() && !l.DueDate.After(cutoff)
		})
		sortByDueDate(loans)
		return nil
	})
	return loans, err
}

func sortByDueDate(loans []*domain.LoanDetails) {
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].DueDate.Equal(loans[j].DueDate) {
			return loans[i].DueDate.Before(loans[j].DueDate)
		}
		return loans[i].ID < loans[j].ID
	})
}

func sortNewestFirst(loans []*domain.LoanDetails) {
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].LoansDate.Equal(loans[j].LoansDate) {
			return loans[i].LoansDate.After(loans[j].LoansDate)
		}
		return loans[i].ID > loans[j].ID
	})
}
