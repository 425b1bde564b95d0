package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// sqlGateway binds the repositories to a *sqlx.DB or a *sqlx.Tx.
type sqlGateway struct {
	users   *userRepository
	books   *bookRepository
	loans   *loanRepository
	reports *reportRepository
}

func newSQLGateway(q sqlx.ExtContext) *sqlGateway {
	return &sqlGateway{
		users:   &userRepository{q: q},
		books:   &bookRepository{q: q},
		loans:   &loanRepository{q: q},
		reports: newReportRepository(q),
	}
}

func (g *sqlGateway) Users() UserRepository     { return g.users }
func (g *sqlGateway) Books() BookRepository     { return g.books }
func (g *sqlGateway) Loans() LoanRepository     { return g.loans }
func (g *sqlGateway) Reports() ReportRepository { return g.reports }

type postgresStore struct {
	*sqlGateway
	db *sqlx.DB
}

// NewPostgresStore returns a Store backed by db. Calls made directly on the
// store run in autocommit mode; use WithTransaction for read-then-write work.
func NewPostgresStore(db *sqlx.DB) Store {
	return &postgresStore{
		sqlGateway: newSQLGateway(db),
		db:         db,
	}
}

func (s *postgresStore) WithTransaction(ctx context.Context, fn func(Gateway) error) error {
	return s.inTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

func (s *postgresStore) WithSnapshot(ctx context.Context, fn func(Gateway) error) error {
	return s.inTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *postgresStore) inTx(ctx context.Context, opts *sql.TxOptions, fn func(Gateway) error) error {
	tx, err := s.db.BeginTxx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// No-op after a successful commit; covers errors and panics in fn.
	defer tx.Rollback()

	if err := fn(newSQLGateway(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
