package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/segyhp/library-engine/pkg/utils"
)

const (
	LoanStatusBorrowed = "borrowed"
	LoanStatusReturned = "returned"
	LoanStatusOverdue  = "overdue"
)

// Loan represents a loan entity
type Loan struct {
	ID           int64      `json:"id" db:"id"`
	UserID       int64      `json:"user_id" db:"user_id"`
	BookID       int64      `json:"book_id" db:"book_id"`
	LoansDate    time.Time  `json:"loans_date" db:"loans_date"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty" db:"return_date"`
	Status       string     `json:"status" db:"status"`
	LoanDuration int        `json:"loan_duration" db:"loan_duration"`
	Purpose      *string    `json:"purpose,omitempty" db:"purpose"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsBorrowed reports whether the loan still occupies a copy of the book.
// Overdue-ness is irrelevant here: an overdue loan still holds its slot.
func (l *Loan) IsBorrowed() bool {
	return l.Status == LoanStatusBorrowed
}

// EffectiveStatus derives the status shown to readers on the given day.
// Borrowed loans past their due date read as overdue; nothing is written back.
func (l *Loan) EffectiveStatus(today time.Time) string {
	if l.Status == LoanStatusBorrowed && utils.IsDateOverdue(l.DueDate, today) {
		return LoanStatusOverdue
	}
	return l.Status
}

// DaysRemaining is due_date - today in calendar days; negative once overdue.
func (l *Loan) DaysRemaining(today time.Time) int {
	return utils.DaysBetween(today, l.DueDate)
}

// LoanDetails is a loan joined with the display fields of its user and book.
type LoanDetails struct {
	Loan
	UserName   string `json:"user_name" db:"user_name"`
	UserEmail  string `json:"user_email" db:"user_email"`
	BookTitle  string `json:"book_title" db:"book_title"`
	BookAuthor string `json:"book_author" db:"book_author"`
}

// LoanView is LoanDetails plus the values derived for a specific day.
type LoanView struct {
	LoanDetails
	EffectiveStatus string `json:"effective_status" db:"-"`
	DaysRemaining   int    `json:"days_remaining" db:"-"`
}

// NewLoanView computes the derived fields of d as of today.
func NewLoanView(d *LoanDetails, today time.Time) *LoanView {
	v := &LoanView{LoanDetails: *d}
	v.Derive(today)
	return v
}

// Derive fills EffectiveStatus and DaysRemaining as of today.
func (v *LoanView) Derive(today time.Time) {
	v.EffectiveStatus = v.Loan.EffectiveStatus(today)
	if v.Status == LoanStatusReturned {
		v.DaysRemaining = 0
		return
	}
	v.DaysRemaining = v.Loan.DaysRemaining(today)
}

// IssueLoanRequest is the engine-level input of a loan issuance.
// Zero values mean "missing".
type IssueLoanRequest struct {
	UserID       int64
	BookID       int64
	LoansDate    time.Time
	DurationDays int
	DueDate      time.Time
	Purpose      string
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	BookID       int64  `json:"book_id" validate:"required,gt=0"`
	LoansDate    string `json:"loans_date" validate:"required,datetime=2006-01-02"`
	LoanDuration int    `json:"loan_duration" validate:"required"`
	DueDate      string `json:"due_date" validate:"required,datetime=2006-01-02"`
	Purpose      string `json:"purpose" validate:"max=255"`
}

type ReturnResult struct {
	Loan     *Loan           `json:"loan"`
	IsLate   bool            `json:"is_late"`
	DaysLate int             `json:"days_late"`
	LateFee  decimal.Decimal `json:"late_fee"`
}
