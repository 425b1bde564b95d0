package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/domain"
	"github.com/segyhp/library-engine/internal/service"
	"github.com/segyhp/library-engine/pkg/response"
	"github.com/segyhp/library-engine/pkg/utils"
)

type LoanHandler struct {
	service   *service.LoanService
	validator *validator.Validate
	logger    *zap.Logger
}

func NewLoanHandler(service *service.LoanService, logger *zap.Logger) *LoanHandler {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &LoanHandler{
		service:   service,
		validator: v,
		logger:    logger,
	}
}

// Availability handles GET /api/v1/books/{bookId}/availability
func (h *LoanHandler) Availability(w http.ResponseWriter, r *http.Request) {
	bookID, ok := pathID(w, r, "bookId")
	if !ok {
		return
	}

	availability, err := h.service.Availability(r.Context(), bookID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, availability)
}

// CreateLoan handles POST /api/v1/loans
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	var req domain.CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body", nil)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "Invalid request", validationDetails(err))
		return
	}

	// Both dates passed the datetime tag above.
	loansDate, _ := utils.ParseDate(req.LoansDate)
	dueDate, _ := utils.ParseDate(req.DueDate)

	loan, err := h.service.IssueLoan(r.Context(), domain.IssueLoanRequest{
		UserID:       caller.UserID,
		BookID:       req.BookID,
		LoansDate:    loansDate,
		DurationDays: req.LoanDuration,
		DueDate:      dueDate,
		Purpose:      req.Purpose,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Created(w, loan)
}

// GetLoan handles GET /api/v1/loans/{loanId}
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	loanID, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	loan, err := h.service.GetLoan(r.Context(), loanID, caller.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, loan)
}

// ReturnLoan handles POST /api/v1/loans/{loanId}/return
func (h *LoanHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	loanID, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	result, err := h.service.ReturnLoan(r.Context(), loanID, caller.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, result)
}

// MyStats handles GET /api/v1/me/stats
func (h *LoanHandler) MyStats(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	stats, err := h.service.GetUserLoanStats(r.Context(), caller.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, stats)
}

// MyActiveLoans handles GET /api/v1/me/loans/active
func (h *LoanHandler) MyActiveLoans(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	loans, err := h.service.GetActiveLoans(r.Context(), caller.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, loans)
}

// MyLoanHistory handles GET /api/v1/me/loans/history
func (h *LoanHandler) MyLoanHistory(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	loans, err := h.service.GetLoanHistory(r.Context(), caller.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, loans)
}

// MyDashboard handles GET /api/v1/me/dashboard
func (h *LoanHandler) MyDashboard(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	dashboard, err := h.service.GetDashboard(r.Context(), caller.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, dashboard)
}

// ListLoans handles GET /api/v1/admin/loans
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	filter, details := parseLoanFilter(r)
	if len(details) > 0 {
		response.BadRequest(w, "Invalid query parameters", details)
		return
	}

	page, err := h.service.ListLoans(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, page)
}

func parseLoanFilter(r *http.Request) (domain.LoanFilter, map[string]string) {
	q := r.URL.Query()
	details := map[string]string{}
	filter := domain.LoanFilter{Status: q.Get("status"), Search: q.Get("search")}

	parseInt := func(name string) int64 {
		raw := q.Get(name)
		if raw == "" {
			return 0
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			details[name] = "must be a non-negative integer"
			return 0
		}
		return n
	}
	parseDate := func(name string) *time.Time {
		raw := q.Get(name)
		if raw == "" {
			return nil
		}
		d, err := utils.ParseDate(raw)
		if err != nil {
			details[name] = "must be a date in YYYY-MM-DD format"
			return nil
		}
		return &d
	}

	filter.UserID = parseInt("user_id")
	filter.BookID = parseInt("book_id")
	filter.From = parseDate("from")
	filter.To = parseDate("to")

	filter.Limit = service.PageSize(int(parseInt("limit")))
	if page := int(parseInt("page")); page > 1 {
		filter.Offset = (page - 1) * filter.Limit
	}

	return filter, details
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "Invalid "+name, map[string]string{name: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			details[fe.Field()] = "is required"
		case "datetime":
			details[fe.Field()] = "must be a date in YYYY-MM-DD format"
		case "gt":
			details[fe.Field()] = "must be greater than " + fe.Param()
		case "max":
			details[fe.Field()] = "must be at most " + fe.Param() + " characters"
		default:
			details[fe.Field()] = "is invalid"
		}
	}
	return details
}
