package domain

import "time"

// Book is a catalog entry. Older schemas only carry IsAvailable; newer ones
// carry an explicit Stock count which takes precedence when set.
type Book struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Author      string    `json:"author" db:"author"`
	Stock       *int      `json:"stock,omitempty" db:"stock"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Copies returns how many physical copies the library owns.
func (b *Book) Copies() int {
	if b.Stock != nil {
		if *b.Stock < 0 {
			return 0
		}
		return *b.Stock
	}
	if b.IsAvailable {
		return 1
	}
	return 0
}

// Availability is the result of checking a book against its active loans.
type Availability struct {
	BookID          int64 `json:"book_id"`
	Copies          int   `json:"copies"`
	ActiveLoans     int   `json:"active_loans"`
	AvailableCopies int   `json:"available_copies"`
	Available       bool  `json:"available"`
}

// NewAvailability computes copies minus borrowed loans, floored at zero.
func NewAvailability(book *Book, activeLoans int) *Availability {
	copies := book.Copies()
	free := copies - activeLoans
	if free < 0 {
		free = 0
	}
	return &Availability{
		BookID:          book.ID,
		Copies:          copies,
		ActiveLoans:     activeLoans,
		AvailableCopies: free,
		Available:       free > 0,
	}
}

// FavoriteBook is a book a user marked as favorite.
type FavoriteBook struct {
	ID     int64  `json:"id" db:"id"`
	Title  string `json:"title" db:"title"`
	Author string `json:"author" db:"author"`
}
