package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/config"
	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/metrics"
	"github.com/segyhp/library-engine/internal/repository"
	"github.com/segyhp/library-engine/internal/repository/memory"
	"github.com/segyhp/library-engine/internal/service"
)

var now = time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

func date(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func stock(n int) *int { return &n }

// brokenStore fails every transaction.
type brokenStore struct {
	*memory.Store
}

func (brokenStore) WithTransaction(context.Context, func(repository.Gateway) error) error {
	return errors.New("connection reset by peer")
}

type testServer struct {
	store  *memory.Store
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewStore()
	store.AddUser(domain.User{ID: 1, Name: "Ana", Email: "ana@example.com", Role: domain.RoleUser, IsActive: true})
	store.AddUser(domain.User{ID: 2, Name: "Budi", Email: "budi@example.com", Role: domain.RoleUser, IsActive: true})
	store.AddUser(domain.User{ID: 3, Name: "Citra", Email: "citra@example.com", Role: domain.RoleUser})
	store.AddUser(domain.User{ID: 99, Name: "Librarian", Email: "lib@example.com", Role: domain.RoleAdmin, IsActive: true})
	store.AddBook(domain.Book{ID: 1, Title: "Dune", Author: "Frank Herbert", Stock: stock(2)})
	store.AddBook(domain.Book{ID: 2, Title: "Emma", Author: "Jane Austen", Stock: stock(0)})

	return &testServer{store: store, router: buildRouter(t, store)}
}

func buildRouter(t *testing.T, store repository.Store) http.Handler {
	t.Helper()
	m, err := metrics.New(metrics.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)

	svc := service.NewLoanService(store, config.Default(),
		service.WithClock(func() time.Time { return now }),
		service.WithMetrics(m),
	)

	return NewRouter(Router{
		Loans:          NewLoanHandler(svc, zap.NewNop()),
		Health:         NewHealthHandler(store, nil, time.Second),
		Logger:         zap.NewNop(),
		Metrics:        m,
		MetricsHandler: http.NotFoundHandler(),
	})
}

type envelope struct {
	Success bool              `json:"success"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details"`
	Data    json.RawMessage   `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path string, userID int64, role string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return do(t, s.router, method, path, userID, role, body)
}

func do(t *testing.T, router http.Handler, method, path string, userID int64, role string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set(HeaderUserID, strconv.FormatInt(userID, 10))
	}
	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func validLoan(bookID int64) map[string]interface{} {
	return map[string]interface{}{
		"book_id":       bookID,
		"loans_date":    "2024-01-05",
		"loan_duration": 14,
		"due_date":      "2024-01-19",
		"purpose":       "thesis",
	}
}

func TestLoanHandler_CreateLoan(t *testing.T) {
	tests := []struct {
		name         string
		userID       int64
		body         interface{}
		expectedCode int
		errorCode    string
	}{
		{
			name:         "successful loan",
			userID:       1,
			body:         validLoan(1),
			expectedCode: http.StatusCreated,
		},
		{
			name:         "malformed body",
			userID:       1,
			body:         `{"book_id":`,
			expectedCode: http.StatusBadRequest,
			errorCode:    "VALIDATION_ERROR",
		},
		{
			name:         "missing fields",
			userID:       1,
			body:         map[string]interface{}{"book_id": 1},
			expectedCode: http.StatusBadRequest,
			errorCode:    "VALIDATION_ERROR",
		},
		{
			name:   "backdated loan",
			userID: 1,
			body: map[string]interface{}{
				"book_id": 1, "loans_date": "2024-01-04", "loan_duration": 14, "due_date": "2024-01-18",
			},
			expectedCode: http.StatusBadRequest,
			errorCode:    "VALIDATION_ERROR",
		},
		{
			name:         "no copies left",
			userID:       1,
			body:         validLoan(2),
			expectedCode: http.StatusConflict,
			errorCode:    "BOOK_UNAVAILABLE",
		},
		{
			name:         "unknown book",
			userID:       1,
			body:         validLoan(404),
			expectedCode: http.StatusNotFound,
			errorCode:    "BOOK_NOT_FOUND",
		},
		{
			name:         "inactive user",
			userID:       3,
			body:         validLoan(1),
			expectedCode: http.StatusForbidden,
			errorCode:    "USER_INACTIVE",
		},
		{
			name:         "unknown user",
			userID:       77,
			body:         validLoan(1),
			expectedCode: http.StatusNotFound,
			errorCode:    "USER_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rr, env := s.do(t, http.MethodPost, "/api/v1/loans", tt.userID, "", tt.body)

			assert.Equal(t, tt.expectedCode, rr.Code, rr.Body.String())
			if tt.errorCode != "" {
				assert.False(t, env.Success)
				assert.Equal(t, tt.errorCode, env.Code)
				return
			}

			var loan domain.LoanDetails
			require.NoError(t, json.Unmarshal(env.Data, &loan))
			assert.Equal(t, int64(1), loan.UserID)
			assert.Equal(t, domain.LoanStatusBorrowed, loan.Status)
			assert.Equal(t, "Dune", loan.BookTitle)
			assert.Equal(t, "Ana", loan.UserName)
		})
	}
}

func TestLoanHandler_CreateLoan_ValidationDetails(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, http.MethodPost, "/api/v1/loans", 1, "", map[string]interface{}{
		"book_id": 1, "loans_date": "05/01/2024", "loan_duration": 14,
	})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "must be a date in YYYY-MM-DD format", env.Details["loans_date"])
	assert.Equal(t, "is required", env.Details["due_date"])
}

func TestLoanHandler_CreateLoan_Duplicate(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodPost, "/api/v1/loans", 1, "", validLoan(1))
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, env := s.do(t, http.MethodPost, "/api/v1/loans", 1, "", validLoan(1))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "DUPLICATE_LOAN", env.Code)
}

func TestLoanHandler_InternalErrorIsHidden(t *testing.T) {
	s := newTestServer(t)
	router := buildRouter(t, brokenStore{Store: s.store})

	rr, env := do(t, router, http.MethodPost, "/api/v1/loans", 1, "", validLoan(1))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", env.Message)
	assert.NotContains(t, rr.Body.String(), "connection reset")
}

func TestLoanHandler_Identity(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/api/v1/me/stats", 0, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/stats", nil)
	req.Header.Set(HeaderUserID, "abc")
	bad := httptest.NewRecorder()
	s.router.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)

	rr, _ = s.do(t, http.MethodGet, "/api/v1/admin/loans", 1, domain.RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr, _ = s.do(t, http.MethodGet, "/api/v1/admin/loans", 99, domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestLoanHandler_RequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "req-42", rr.Header().Get(HeaderRequestID))

	rr, _ = s.do(t, http.MethodGet, "/health", 0, "", nil)
	assert.NotEmpty(t, rr.Header().Get(HeaderRequestID))
}

func TestLoanHandler_GetLoan(t *testing.T) {
	s := newTestServer(t)
	id := s.store.AddLoan(domain.Loan{UserID: 1, BookID: 1, LoansDate: date("2023-12-20"), DueDate: date("2024-01-03"), Status: domain.LoanStatusBorrowed})

	rr, env := s.do(t, http.MethodGet, "/api/v1/loans/"+strconv.FormatInt(id, 10), 1, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var view domain.LoanView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, domain.LoanStatusOverdue, view.EffectiveStatus)
	assert.Equal(t, -2, view.DaysRemaining)

	rr, env = s.do(t, http.MethodGet, "/api/v1/loans/"+strconv.FormatInt(id, 10), 2, "", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "FORBIDDEN", env.Code)

	rr, env = s.do(t, http.MethodGet, "/api/v1/loans/999", 1, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "LOAN_NOT_FOUND", env.Code)

	rr, env = s.do(t, http.MethodGet, "/api/v1/loans/abc", 1, "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, env.Details, "loanId")
}

func TestLoanHandler_ReturnLoan(t *testing.T) {
	s := newTestServer(t)
	id := s.store.AddLoan(domain.Loan{UserID: 1, BookID: 1, LoansDate: date("2023-12-18"), DueDate: date("2024-01-01"), Status: domain.LoanStatusBorrowed})
	path := "/api/v1/loans/" + strconv.FormatInt(id, 10) + "/return"

	rr, env := s.do(t, http.MethodPost, path, 2, "", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "FORBIDDEN", env.Code)

	rr, env = s.do(t, http.MethodPost, path, 1, "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result struct {
		Loan     domain.Loan `json:"loan"`
		IsLate   bool        `json:"is_late"`
		DaysLate int         `json:"days_late"`
		LateFee  string      `json:"late_fee"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.IsLate)
	assert.Equal(t, 4, result.DaysLate)
	assert.Equal(t, "20000", result.LateFee)
	assert.Equal(t, domain.LoanStatusReturned, result.Loan.Status)

	rr, env = s.do(t, http.MethodPost, path, 1, "", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "INVALID_STATE", env.Code)
}

func TestLoanHandler_Availability(t *testing.T) {
	s := newTestServer(t)
	s.store.AddLoan(domain.Loan{UserID: 2, BookID: 1, LoansDate: date("2024-01-01"), DueDate: date("2024-01-10"), Status: domain.LoanStatusBorrowed})

	rr, env := s.do(t, http.MethodGet, "/api/v1/books/1/availability", 1, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var availability domain.Availability
	require.NoError(t, json.Unmarshal(env.Data, &availability))
	assert.Equal(t, 2, availability.Copies)
	assert.Equal(t, 1, availability.ActiveLoans)
	assert.True(t, availability.Available)

	rr, _ = s.do(t, http.MethodGet, "/api/v1/books/404/availability", 1, "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLoanHandler_MyEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.store.AddLoan(domain.Loan{UserID: 1, BookID: 1, LoansDate: date("2024-01-01"), DueDate: date("2024-01-10"), Status: domain.LoanStatusBorrowed})
	returned := date("2023-12-15")
	s.store.AddLoan(domain.Loan{UserID: 1, BookID: 2, LoansDate: date("2023-12-01"), DueDate: date("2023-12-15"), ReturnDate: &returned, Status: domain.LoanStatusReturned})
	s.store.AddFavorite(1, 2)

	rr, env := s.do(t, http.MethodGet, "/api/v1/me/stats", 1, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var stats domain.LoanStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.ActiveLoans)
	assert.Equal(t, 1, stats.ReturnedBooks)
	assert.Equal(t, 2, stats.TotalLoans)

	rr, env = s.do(t, http.MethodGet, "/api/v1/me/loans/active", 1, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var active []domain.LoanView
	require.NoError(t, json.Unmarshal(env.Data, &active))
	assert.Len(t, active, 1)

	rr, env = s.do(t, http.MethodGet, "/api/v1/me/loans/history", 1, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var history []domain.LoanView
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history, 1)

	rr, env = s.do(t, http.MethodGet, "/api/v1/me/dashboard", 1, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var dashboard domain.Dashboard
	require.NoError(t, json.Unmarshal(env.Data, &dashboard))
	assert.Len(t, dashboard.Favorites, 1)
}

func TestLoanHandler_ListLoans(t *testing.T) {
	s := newTestServer(t)
	s.store.AddLoan(domain.Loan{UserID: 1, BookID: 1, LoansDate: date("2023-12-20"), DueDate: date("2024-01-03"), Status: domain.LoanStatusBorrowed})
	s.store.AddLoan(domain.Loan{UserID: 2, BookID: 1, LoansDate: date("2024-01-01"), DueDate: date("2024-01-10"), Status: domain.LoanStatusBorrowed})

	rr, env := s.do(t, http.MethodGet, "/api/v1/admin/loans?status=overdue", 99, domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var page domain.LoanPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Loans, 1)
	assert.Equal(t, int64(1), page.Loans[0].UserID)

	rr, env = s.do(t, http.MethodGet, "/api/v1/admin/loans?limit=1&page=2", 99, domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Len(t, page.Loans, 1)

	rr, env = s.do(t, http.MethodGet, "/api/v1/admin/loans?search=budi", 99, domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Loans, 1)
	assert.Equal(t, "Budi", page.Loans[0].UserName)

	rr, env = s.do(t, http.MethodGet, "/api/v1/admin/loans?user_id=x&from=yesterday", 99, domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, env.Details, "user_id")
	assert.Contains(t, env.Details, "from")

	rr, env = s.do(t, http.MethodGet, "/api/v1/admin/loans?status=lost", 99, domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Code)
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/health", 0, "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, env := s.do(t, http.MethodGet, "/health/ready", 0, "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.Equal(t, "ok", status.Checks["database"])
	assert.NotContains(t, status.Checks, "redis")
}

func TestRouter_UnknownRouteIsJSON(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, http.MethodGet, "/shelves", 0, "", nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "NOT_FOUND", env.Code)
	assert.Contains(t, env.Message, "/shelves")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
