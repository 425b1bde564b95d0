package service

import (
	"context"
	"sync"
	"time"

	"github.com/segyhp/library-engine/internal/config"
	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/repository/memory"
)

// 2024-01-05 10:00 UTC
var fixedNow = time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func intPtr(n int) *int { return &n }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*domain.Notification
	err  error
}

func (f *fakeNotifier) Publish(_ context.Context, n *domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Type)
	}
	return out
}

type fakeCache struct {
	mu          sync.Mutex
	stats       map[int64]*domain.LoanStats
	generation  map[int64]int64
	invalidated []int64
	err         error
	// beforeSet runs once, ahead of the next Set.
	beforeSet func()
}

func newFakeCache() *fakeCache {
	return &fakeCache{stats: map[int64]*domain.LoanStats{}, generation: map[int64]int64{}}
}

func (f *fakeCache) Get(_ context.Context, userID int64, _ time.Time) (*domain.LoanStats, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.stats[userID], f.generation[userID], nil
}

func (f *fakeCache) Set(_ context.Context, userID int64, _ time.Time, generation int64, stats *domain.LoanStats) error {
	f.mu.Lock()
	hook := f.beforeSet
	f.beforeSet = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.generation[userID] != generation {
		return nil
	}
	f.stats[userID] = stats
	return nil
}

func (f *fakeCache) Invalidate(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
	f.generation[userID]++
	delete(f.stats, userID)
	return f.err
}

type harness struct {
	store    *memory.Store
	service  *LoanService
	notifier *fakeNotifier
	cache    *fakeCache
}

// newHarness seeds active users 1..20, inactive user 50 and admin 99.
func newHarness() *harness {
	store := memory.NewStore()
	for id := int64(1); id <= 20; id++ {
		store.AddUser(domain.User{ID: id, Name: "member", Email: "member@example.com", Role: domain.RoleUser, IsActive: true})
	}
	store.AddUser(domain.User{ID: 50, Name: "gone", Email: "gone@example.com", Role: domain.RoleUser})
	store.AddUser(domain.User{ID: 99, Name: "librarian", Email: "lib@example.com", Role: domain.RoleAdmin, IsActive: true})

	h := &harness{
		store:    store,
		notifier: &fakeNotifier{},
		cache:    newFakeCache(),
	}
	h.service = NewLoanService(store, config.Default(),
		WithClock(func() time.Time { return fixedNow }),
		WithNotifier(h.notifier),
		WithStatsCache(h.cache),
	)
	return h
}

func (h *harness) addBook(id int64, stock int) {
	h.store.AddBook(domain.Book{ID: id, Title: "Book", Author: "Author", Stock: intPtr(stock)})
}

func (h *harness) addLoan(userID, bookID int64, loansDate, dueDate, status string) int64 {
	l := domain.Loan{
		UserID:    userID,
		BookID:    bookID,
		LoansDate: day(loansDate),
		DueDate:   day(dueDate),
		Status:    status,
	}
	if status == domain.LoanStatusReturned {
		rd := day(dueDate)
		l.ReturnDate = &rd
	}
	return h.store.AddLoan(l)
}

func request(userID, bookID int64) domain.IssueLoanRequest {
	return domain.IssueLoanRequest{
		UserID:       userID,
		BookID:       bookID,
		LoansDate:    day("2024-01-05"),
		DurationDays: 14,
		DueDate:      day("2024-01-19"),
	}
}
