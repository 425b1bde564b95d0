package domain

import "time"

// LoanStats counts a user's loans by effective status.
type LoanStats struct {
	ActiveLoans   int `json:"active_loans" db:"active_loans"`
	ReturnedBooks int `json:"returned_books" db:"returned_books"`
	OverdueBooks  int `json:"overdue_books" db:"overdue_books"`
	TotalLoans    int `json:"total_loans" db:"total_loans"`
}

// Dashboard is the member dashboard, read as one snapshot.
type Dashboard struct {
	Stats       *LoanStats      `json:"stats"`
	ActiveLoans []*LoanView     `json:"active_loans"`
	LoanHistory []*LoanView     `json:"loan_history"`
	Favorites   []*FavoriteBook `json:"favorites"`
}

// LoanFilter narrows the admin loan listing. Status matches the effective status;
// Search matches the borrower's name or the book title, case-insensitively.
type LoanFilter struct {
	Status string
	Search string
	UserID int64
	BookID int64
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type LoanPage struct {
	Loans []*LoanView `json:"loans"`
	Total int         `json:"total"`
	Limit int         `json:"limit"`
	Page  int         `json:"page"`
}

const (
	NotificationLoanIssued   = "loan.issued"
	NotificationLoanReturned = "loan.returned"
	NotificationLoanDueSoon  = "loan.due_soon"
	NotificationLoanOverdue  = "loan.overdue"
)

// Notification is the downstream signal emitted after a loan changes or
// when a reminder is due. Rendering it is up to the subscriber.
type Notification struct {
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	LoanID     int64     `json:"loan_id"`
	BookTitle  string    `json:"book_title,omitempty"`
	DueDate    string    `json:"due_date,omitempty"`
	IsLate     bool      `json:"is_late,omitempty"`
	DaysLate   int       `json:"days_late,omitempty"`
	LateFee    string    `json:"late_fee,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
