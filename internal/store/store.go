package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/circops/internal/domain"
)

// Store is the persistence boundary of the lending engine. Every write-bearing
// operation runs inside ExecTx: all reads in the callback observe a single
// consistent snapshot, all writes commit together or not at all.
type Store interface {
	// ExecTx runs fn atomically. Any error from fn rolls the whole unit back
	// and is returned unchanged.
	ExecTx(ctx context.Context, fn func(tx Tx) error) error

	// ListLoans returns one page of loan records plus the unpaged total.
	ListLoans(ctx context.Context, q LoanQuery) ([]domain.LoanRecord, int, error)
	// ListReservations returns one page of reservations plus the total.
	ListReservations(ctx context.Context, q ReservationQuery) ([]domain.Reservation, int, error)
	// ListOverdueLoans returns all open loans with a due date before now,
	// oldest due date first.
	ListOverdueLoans(ctx context.Context, now time.Time) ([]domain.LoanRecord, error)
}

// Tx is the write surface available inside a transaction. ForUpdate reads take
// an exclusive lock on the row for the remainder of the transaction, so a
// check-then-act sequence on a book or reader cannot race with a concurrent
// transaction on the same row.
type Tx interface {
	BookForUpdate(ctx context.Context, bookID int64) (domain.Book, error)
	UpdateBook(ctx context.Context, book domain.Book) error

	ReaderForUpdate(ctx context.Context, readerNo string) (domain.ReaderAccount, error)
	UpdateReader(ctx context.Context, reader domain.ReaderAccount) error

	OpenLoanCount(ctx context.Context, readerNo string) (int, error)
	LoanForUpdate(ctx context.Context, loanNo string) (domain.LoanRecord, error)
	InsertLoan(ctx context.Context, loan domain.LoanRecord) error
	UpdateLoan(ctx context.Context, loan domain.LoanRecord) error

	ReservationForUpdate(ctx context.Context, reservationNo string) (domain.Reservation, error)
	InsertReservation(ctx context.Context, res domain.Reservation) error
	UpdateReservation(ctx context.Context, res domain.Reservation) error
	// HasPendingReservation reports whether reader already holds a pending
	// reservation for book.
	HasPendingReservation(ctx context.Context, readerNo string, bookID int64) (bool, error)
	// PendingReservationCount counts reader's pending reservations.
	PendingReservationCount(ctx context.Context, readerNo string) (int, error)
	// PendingReservationCountForBook counts pending reservations on book.
	PendingReservationCountForBook(ctx context.Context, bookID int64) (int, error)
}

// LoanQuery filters and pages ListLoans.
type LoanQuery struct {
	ReaderNo string
	BookID   int64
	Status   domain.LoanStatus
	Page     int
	PageSize int
}

// ReservationQuery filters and pages ListReservations.
type ReservationQuery struct {
	ReaderNo string
	BookID   int64
	Status   domain.ReservationStatus
	Page     int
	PageSize int
}

// Normalize clamps paging to sane bounds.
func (q *LoanQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}

// Normalize clamps paging to sane bounds.
func (q *ReservationQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}
