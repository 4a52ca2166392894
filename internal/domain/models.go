package domain

import "time"

// BookStatus is the lifecycle state of a title in the circulating collection.
type BookStatus string

const (
	BookActive    BookStatus = "active"    // directly loanable
	BookReserved  BookStatus = "reserved"  // locked by pending reservations
	BookWithdrawn BookStatus = "withdrawn" // removed from circulation
)

// LoanStatus is the state of a borrow record.
type LoanStatus string

const (
	LoanOpen     LoanStatus = "borrowed"
	LoanReturned LoanStatus = "returned"
)

// ReservationStatus is the state of a reservation record.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
)

// CreditStatus is a reader's standing. "good" and "normal" readers may borrow
// as long as they carry no arrears; "debt" and "suspended" readers may not.
type CreditStatus string

const (
	CreditGood      CreditStatus = "good"
	CreditNormal    CreditStatus = "normal"
	CreditDebt      CreditStatus = "debt"
	CreditSuspended CreditStatus = "suspended"
)

// Book is one title in the catalog. AvailableCopies is the contended resource:
// 0 <= AvailableCopies <= TotalCopies must hold at every commit.
type Book struct {
	ID              int64      `json:"id"`
	ISBN            string     `json:"isbn"`
	Title           string     `json:"title"`
	TotalCopies     int        `json:"total_copies"`
	AvailableCopies int        `json:"available_copies"`
	BorrowCount     int64      `json:"borrow_count"`
	Status          BookStatus `json:"status"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Loanable reports whether the book can be borrowed directly, ignoring copy
// availability.
func (b Book) Loanable() bool {
	return b.Status == BookActive
}

// LoanRecord is the audit trail of one borrowing. Records are never deleted;
// a return closes the record in place.
type LoanRecord struct {
	LoanNo      string     `json:"loan_no"`
	ReaderNo    string     `json:"reader_no"`
	BookID      int64      `json:"book_id"`
	OperatorID  string     `json:"operator_id,omitempty"`
	BorrowDate  time.Time  `json:"borrow_date"`
	DueDate     time.Time  `json:"due_date"`
	ReturnDate  *time.Time `json:"return_date,omitempty"`
	Status      LoanStatus `json:"status"`
	RenewCount  int        `json:"renew_count"`
	OverdueDays int        `json:"overdue_days"`
	FineAmount  float64    `json:"fine_amount"`
}

// Reservation is a reader's claim on a book that is not directly loanable.
type Reservation struct {
	ReservationNo   string            `json:"reservation_no"`
	ReaderNo        string            `json:"reader_no"`
	BookID          int64             `json:"book_id"`
	OperatorID      string            `json:"operator_id,omitempty"`
	ReservationDate time.Time         `json:"reservation_date"`
	Status          ReservationStatus `json:"status"`
	ResolvedDate    *time.Time        `json:"resolved_date,omitempty"`
}

// ReaderAccount carries credit standing and outstanding arrears.
// ArrearsAmount > 0 implies CreditStatus != good.
type ReaderAccount struct {
	ReaderNo      string       `json:"reader_no"`
	Name          string       `json:"name"`
	CreditStatus  CreditStatus `json:"credit_status"`
	ArrearsAmount float64      `json:"arrears_amount"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// EligibleToBorrow applies the credit gate: suspended or indebted readers are
// rejected, and any outstanding arrears blocks borrowing regardless of label.
func (r ReaderAccount) EligibleToBorrow() bool {
	if r.CreditStatus != CreditGood && r.CreditStatus != CreditNormal {
		return false
	}
	return r.ArrearsAmount <= 0
}

// Policy is one immutable snapshot of the lending limits. Each operation reads
// a single snapshot for its whole duration and never re-reads mid-transaction.
type Policy struct {
	MaxBorrowCount      int     `json:"max_borrow_count"`
	MaxBorrowDays       int     `json:"max_borrow_days"`
	MaxRenewCount       int     `json:"max_renew_count"`
	MaxReservationCount int     `json:"max_reservation_count"`
	FineRatePerDay      float64 `json:"fine_rate_per_day"`
}

// DefaultPolicy returns the values applied when a config key is absent.
func DefaultPolicy() Policy {
	return Policy{
		MaxBorrowCount:      5,
		MaxBorrowDays:       30,
		MaxRenewCount:       1,
		MaxReservationCount: 3,
		FineRatePerDay:      0.5,
	}
}

// LoanDuration is the borrow period granted on borrow and on each renewal.
func (p Policy) LoanDuration() time.Duration {
	return time.Duration(p.MaxBorrowDays) * 24 * time.Hour
}
