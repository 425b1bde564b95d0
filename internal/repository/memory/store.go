// Package memory is an in-process implementation of repository.Store.
// Transactions are serialised by a single mutex and see a private copy of
// the tables that replaces the shared one on commit.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/repository"
)

var errReadOnly = errors.New("memory: write in read-only transaction")

type tables struct {
	users      map[int64]domain.User
	books      map[int64]domain.Book
	loans      map[int64]domain.Loan
	favorites  map[int64][]int64
	nextLoanID int64
}

func newTables() *tables {
	return &tables{
		users:     make(map[int64]domain.User),
		books:     make(map[int64]domain.Book),
		loans:     make(map[int64]domain.Loan),
		favorites: make(map[int64][]int64),
	}
}

// clone copies every table. Records are values; the pointer fields of a
// Loan are never mutated in place so sharing them is safe.
func (t *tables) clone() *tables {
	c := newTables()
	for id, u := range t.users {
		c.users[id] = u
	}
	for id, b := range t.books {
		c.books[id] = b
	}
	for id, l := range t.loans {
		c.loans[id] = l
	}
	for id, favs := range t.favorites {
		c.favorites[id] = append([]int64(nil), favs...)
	}
	c.nextLoanID = t.nextLoanID
	return c
}

// Store keeps users, books and loans in memory.
type Store struct {
	*gateway

	mu   sync.RWMutex
	data *tables

	// clockMu is separate from mu because clock is called while mu is held.
	clockMu sync.RWMutex
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{
		data: newTables(),
		now:  time.Now,
	}
	s.gateway = newGateway(s.view, s.update, s.clock)
	return s
}

// SetClock overrides the clock used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	s.now = now
}

func (s *Store) clock() time.Time {
	s.clockMu.RLock()
	now := s.now
	s.clockMu.RUnlock()
	return now()
}

// view and update back the autocommit gateway; each call is its own transaction.
func (s *Store) view(fn func(*tables) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) update(fn func(*tables) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.data.clone()
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx
	return nil
}

func (s *Store) WithTransaction(ctx context.Context, fn func(repository.Gateway) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.data.clone()
	direct := func(f func(*tables) error) error { return f(tx) }
	if err := fn(newGateway(direct, direct, s.clock)); err != nil {
		return err
	}

	s.data = tx
	return nil
}

func (s *Store) WithSnapshot(ctx context.Context, fn func(repository.Gateway) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.data
	read := func(f func(*tables) error) error { return f(snapshot) }
	write := func(func(*tables) error) error { return errReadOnly }
	return fn(newGateway(read, write, s.clock))
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// AddUser inserts or replaces a user.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.users[u.ID] = u
}

// AddBook inserts or replaces a book.
func (s *Store) AddBook(b domain.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.books[b.ID] = b
}

// AddLoan inserts a loan as-is, bypassing every rule. A zero ID is assigned.
func (s *Store) AddLoan(l domain.Loan) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == 0 {
		s.data.nextLoanID++
		l.ID = s.data.nextLoanID
	} else if l.ID > s.data.nextLoanID {
		s.data.nextLoanID = l.ID
	}
	s.data.loans[l.ID] = l
	return l.ID
}

// AddFavorite marks bookID as a favorite of userID.
func (s *Store) AddFavorite(userID, bookID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.favorites[userID] = append(s.data.favorites[userID], bookID)
}

var _ repository.Store = (*Store)(nil)
