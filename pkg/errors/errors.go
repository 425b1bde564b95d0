package errors

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrValidation        = errors.New("validation failed")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInactive      = errors.New("user is inactive")
	ErrBookNotFound      = errors.New("book not found")
	ErrBookUnavailable   = errors.New("book is not available")
	ErrDuplicateLoan     = errors.New("user already has an active loan for this book")
	ErrLoanLimitExceeded = errors.New("active loan limit exceeded")
	ErrLoanNotFound      = errors.New("loan not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid loan state")
	ErrConflict          = errors.New("concurrent modification")
	ErrInternal          = errors.New("internal error")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Code    string
	Message string
	Err     error
	// Fields carries per-field validation messages; nil for every other kind.
	Fields map[string]string
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeUserInactive      = "USER_INACTIVE"
	ErrCodeBookNotFound      = "BOOK_NOT_FOUND"
	ErrCodeBookUnavailable   = "BOOK_UNAVAILABLE"
	ErrCodeDuplicateLoan     = "DUPLICATE_LOAN"
	ErrCodeLoanLimitExceeded = "LOAN_LIMIT_EXCEEDED"
	ErrCodeLoanNotFound      = "LOAN_NOT_FOUND"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInvalidState      = "INVALID_STATE"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInternal          = "INTERNAL"
)

// CodeOf returns the business code carried by err, or ErrCodeInternal when err
// is not a BusinessError.
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ErrCodeInternal
}

func WrapValidation(message string, fields map[string]string) *BusinessError {
	be := NewBusinessError(ErrCodeValidation, message, ErrValidation)
	be.Fields = fields
	return be
}

func WrapUserNotFound(userID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeUserNotFound,
		fmt.Sprintf("User with ID %d not found", userID),
		ErrUserNotFound,
	)
}

func WrapUserInactive(userID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeUserInactive,
		fmt.Sprintf("User with ID %d has been deactivated", userID),
		ErrUserInactive,
	)
}

func WrapBookNotFound(bookID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeBookNotFound,
		fmt.Sprintf("Book with ID %d not found", bookID),
		ErrBookNotFound,
	)
}

func WrapBookUnavailable(bookID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeBookUnavailable,
		fmt.Sprintf("All copies of book %d are currently on loan", bookID),
		ErrBookUnavailable,
	)
}

func WrapDuplicateLoan(userID, bookID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeDuplicateLoan,
		fmt.Sprintf("User %d already has an active loan for book %d", userID, bookID),
		ErrDuplicateLoan,
	)
}

func WrapLoanLimitExceeded(limit int) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanLimitExceeded,
		fmt.Sprintf("Maximum limit of %d active loans reached", limit),
		ErrLoanLimitExceeded,
	)
}

func WrapLoanNotFound(loanID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeLoanNotFound,
		fmt.Sprintf("Loan with ID %d not found", loanID),
		ErrLoanNotFound,
	)
}

func WrapForbidden(loanID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeForbidden,
		fmt.Sprintf("Loan %d belongs to another user", loanID),
		ErrForbidden,
	)
}

func WrapInvalidState(loanID int64, status string) *BusinessError {
	return NewBusinessError(
		ErrCodeInvalidState,
		fmt.Sprintf("Loan %d is %s and cannot be returned", loanID, status),
		ErrInvalidState,
	)
}

func WrapConflict(loanID int64) *BusinessError {
	return NewBusinessError(
		ErrCodeConflict,
		fmt.Sprintf("Loan %d was modified concurrently", loanID),
		ErrConflict,
	)
}

// WrapInternal hides err behind a generic message. The original error stays
// reachable through errors.Is/As for logging.
func WrapInternal(err error) *BusinessError {
	return NewBusinessError(
		ErrCodeInternal,
		"internal error",
		fmt.Errorf("%w: %w", ErrInternal, err),
	)
}
