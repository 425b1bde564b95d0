package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/pkg/utils"
)

const (
	dialectPostgres = "postgres"
	aliasLoans      = "l"
	aliasUsers      = "u"
	aliasBooks      = "b"
	castDate        = "?::date"
)

var pg = goqu.Dialect(dialectPostgres)

func loanCol(name string) exp.IdentifierExpression {
	return goqu.T(aliasLoans).Col(name)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// joinedLoans is loans joined with their user and book.
func joinedLoans() *goqu.SelectDataset {
	return pg.From(goqu.T("loans").As(aliasLoans)).
		Prepared(true).
		Join(goqu.T("users").As(aliasUsers), goqu.On(goqu.T(aliasUsers).Col("id").Eq(loanCol("user_id")))).
		Join(goqu.T("books").As(aliasBooks), goqu.On(goqu.T(aliasBooks).Col("id").Eq(loanCol("book_id"))))
}

// detailsQuery selects loans joined with the user and book display fields.
// Dates compared against it go through castDate so they stay calendar dates.
func detailsQuery() *goqu.SelectDataset {
	return joinedLoans().
		Select(
			loanCol("id"),
			loanCol("user_id"),
			loanCol("book_id"),
			loanCol("loans_date"),
			loanCol("due_date"),
			loanCol("return_date"),
			loanCol("status"),
			loanCol("loan_duration"),
			loanCol("purpose"),
			loanCol("created_at"),
			loanCol("updated_at"),
			goqu.T(aliasUsers).Col("name").As("user_name"),
			goqu.T(aliasUsers).Col("email").As("user_email"),
			goqu.T(aliasBooks).Col("title").As("book_title"),
			goqu.COALESCE(goqu.T(aliasBooks).Col("author"), "").As("book_author"),
		)
}

func dateLit(t time.Time) exp.LiteralExpression {
	return goqu.L(castDate, utils.FormatDate(t))
}

// searchNameOrTitle matches term anywhere in the user name or book title.
// LIKE wildcards in term are matched literally.
func searchNameOrTitle(term string) exp.ExpressionList {
	pattern := "%" + likeEscaper.Replace(term) + "%"
	return goqu.Or(
		goqu.T(aliasUsers).Col("name").ILike(pattern),
		goqu.T(aliasBooks).Col("title").ILike(pattern),
	)
}

// notPastDue matches borrowed loans still within their due date on today.
func notPastDue(today time.Time) exp.Expression {
	return goqu.And(
		loanCol("status").Eq(domain.LoanStatusBorrowed),
		loanCol("due_date").Gte(dateLit(today)),
	)
}

// effectivelyOverdue matches persisted overdue rows and borrowed loans past due.
func effectivelyOverdue(today time.Time) exp.Expression {
	return goqu.Or(
		loanCol("status").Eq(domain.LoanStatusOverdue),
		goqu.And(
			loanCol("status").Eq(domain.LoanStatusBorrowed),
			loanCol("due_date").Lt(dateLit(today)),
		),
	)
}

func effectiveStatusIs(status string, today time.Time) (exp.Expression, error) {
	switch status {
	case domain.LoanStatusBorrowed:
		return notPastDue(today), nil
	case domain.LoanStatusOverdue:
		return effectivelyOverdue(today), nil
	case domain.LoanStatusReturned:
		return loanCol("status").Eq(domain.LoanStatusReturned), nil
	default:
		return nil, fmt.Errorf("unknown loan status %q", status)
	}
}

type reportRepository struct {
	q sqlx.ExtContext
}

func newReportRepository(q sqlx.ExtContext) *reportRepository {
	return &reportRepository{q: q}
}

func (r *reportRepository) GetStats(ctx context.Context, userID int64, today time.Time) (*domain.LoanStats, error) {
	day := utils.FormatDate(today)

	query, args, err := pg.From("loans").
		Prepared(true).
		Select(
			goqu.L("COALESCE(SUM(CASE WHEN status = ? AND due_date >= ?::date THEN 1 ELSE 0 END), 0)",
				domain.LoanStatusBorrowed, day).As("active_loans"),
			goqu.L("COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)",
				domain.LoanStatusReturned).As("returned_books"),
			goqu.L("COALESCE(SUM(CASE WHEN status = ? OR (status = ? AND due_date < ?::date) THEN 1 ELSE 0 END), 0)",
				domain.LoanStatusOverdue, domain.LoanStatusBorrowed, day).As("overdue_books"),
			goqu.COUNT(goqu.Star()).As("total_loans"),
		).
		Where(goqu.C("user_id").Eq(userID)).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var stats domain.LoanStats
	if err := sqlx.GetContext(ctx, r.q, &stats, query, args...); err != nil {
		return nil, err
	}

	return &stats, nil
}

func (r *reportRepository) ListActive(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error) {
	ds := detailsQuery().
		Where(
			loanCol("user_id").Eq(userID),
			notPastDue(today),
		).
		Order(loanCol("due_date").Asc(), loanCol("id").Asc())

	return r.selectDetails(ctx, ds)
}

func (r *reportRepository) ListHistory(ctx context.Context, userID int64, today time.Time) ([]*domain.LoanDetails, error) {
	ds := detailsQuery().
		Where(
			loanCol("user_id").Eq(userID),
			goqu.Or(
				loanCol("status").Eq(domain.LoanStatusReturned),
				effectivelyOverdue(today),
			),
		).
		Order(loanCol("loans_date").Desc(), loanCol("id").Desc())

	return r.selectDetails(ctx, ds)
}

func (r *reportRepository) ListFavorites(ctx context.Context, userID int64) ([]*domain.FavoriteBook, error) {
	query, args, err := pg.From(goqu.T("favorites").As("f")).
		Prepared(true).
		Join(goqu.T("books").As(aliasBooks), goqu.On(goqu.T(aliasBooks).Col("id").Eq(goqu.T("f").Col("book_id")))).
		Select(
			goqu.T(aliasBooks).Col("id"),
			goqu.T(aliasBooks).Col("title"),
			goqu.COALESCE(goqu.T(aliasBooks).Col("author"), "").As("author"),
		).
		Where(goqu.T("f").Col("user_id").Eq(userID)).
		Order(goqu.T(aliasBooks).Col("title").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}

	favorites := []*domain.FavoriteBook{}
	if err := sqlx.SelectContext(ctx, r.q, &favorites, query, args...); err != nil {
		return nil, err
	}

	return favorites, nil
}

func (r *reportRepository) ListLoans(ctx context.Context, filter domain.LoanFilter, today time.Time) ([]*domain.LoanDetails, int, error) {
	var where []exp.Expression

	if filter.Status != "" {
		expr, err := effectiveStatusIs(filter.Status, today)
		if err != nil {
			return nil, 0, err
		}
		where = append(where, expr)
	}
	if filter.UserID > 0 {
		where = append(where, loanCol("user_id").Eq(filter.UserID))
	}
	if filter.BookID > 0 {
		where = append(where, loanCol("book_id").Eq(filter.BookID))
	}
	if filter.From != nil {
		where = append(where, loanCol("loans_date").Gte(dateLit(*filter.From)))
	}
	if filter.To != nil {
		where = append(where, loanCol("loans_date").Lte(dateLit(*filter.To)))
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		where = append(where, searchNameOrTitle(term))
	}

	countQuery, countArgs, err := joinedLoans().
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		ToSQL()
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := sqlx.GetContext(ctx, r.q, &total, countQuery, countArgs...); err != nil {
		return nil, 0, err
	}

	ds := detailsQuery().
		Where(where...).
		Order(loanCol("loans_date").Desc(), loanCol("id").Desc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}

	loans, err := r.selectDetails(ctx, ds)
	if err != nil {
		return nil, 0, err
	}

	return loans, total, nil
}

func (r *reportRepository) ListDueBy(ctx context.Context, dueBy time.Time) ([]*domain.LoanDetails, error) {
	ds := detailsQuery().
		Where(
			loanCol("status").Eq(domain.LoanStatusBorrowed),
			loanCol("due_date").Lte(dateLit(dueBy)),
		).
		Order(loanCol("due_date").Asc(), loanCol("id").Asc())

	return r.selectDetails(ctx, ds)
}

func (r *reportRepository) selectDetails(ctx context.Context, ds *goqu.SelectDataset) ([]*domain.LoanDetails, error) {
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	loans := []*domain.LoanDetails{}
	if err := sqlx.SelectContext(ctx, r.q, &loans, query, args...); err != nil {
		return nil, err
	}

	return loans, nil
}
