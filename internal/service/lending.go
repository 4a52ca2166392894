package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/models"
	"github.com/punchamoorthee/circops/internal/policy"
	"github.com/punchamoorthee/circops/internal/store"
)

// LendingService is the sole writer of the cross-entity invariants spanning
// books, loan records, reservations, and reader accounts. Every mutating
// operation reads one policy snapshot, then runs one atomic store transaction
// that validates all preconditions against locked rows before the first write.
type LendingService struct {
	store  store.Store
	policy policy.Provider
	now    func() time.Time
}

func NewLendingService(s store.Store, p policy.Provider) *LendingService {
	return &LendingService{
		store:  s,
		policy: p,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source. Tests only.
func (s *LendingService) SetClock(now func() time.Time) {
	s.now = now
}

func newLoanNo() string        { return "B" + uuid.NewString() }
func newReservationNo() string { return "A" + uuid.NewString() }

// BorrowBook creates an open loan and decrements availability. All four
// preconditions and every write are evaluated against the locked book and
// reader rows, so two borrowers cannot both take the last copy.
func (s *LendingService) BorrowBook(ctx context.Context, req models.BorrowRequest) (domain.LoanRecord, error) {
	pol, err := s.policy.Snapshot(ctx)
	if err != nil {
		return domain.LoanRecord{}, err
	}

	var loan domain.LoanRecord
	err = s.store.ExecTx(ctx, func(tx store.Tx) error {
		book, err := tx.BookForUpdate(ctx, req.BookID)
		if err != nil {
			return err
		}
		if !book.Loanable() || book.AvailableCopies <= 0 {
			return domain.ErrBookUnavailable
		}

		reader, err := tx.ReaderForUpdate(ctx, req.ReaderNo)
		if err != nil {
			return err
		}
		if !reader.EligibleToBorrow() {
			return domain.ErrReaderIneligible
		}

		open, err := tx.OpenLoanCount(ctx, req.ReaderNo)
		if err != nil {
			return err
		}
		if open >= pol.MaxBorrowCount {
			return domain.ErrLoanLimitExceeded
		}

		// The cap counts rows outside the locked reader row. Rewriting the
		// reader row makes a concurrent cap check on the same reader abort
		// with a serialization failure rather than count a stale snapshot.
		if err := tx.UpdateReader(ctx, reader); err != nil {
			return err
		}

		created, err := s.createLoanLocked(ctx, tx, book, reader.ReaderNo, req.OperatorID, pol)
		if err != nil {
			return err
		}
		loan = created
		return nil
	})
	if err != nil {
		return domain.LoanRecord{}, err
	}
	return loan, nil
}

// createLoanLocked inserts the loan record and debits one copy from the
// already-locked book. Shared by BorrowBook and FulfillReservation.
func (s *LendingService) createLoanLocked(ctx context.Context, tx store.Tx, book domain.Book, readerNo, operatorID string, pol domain.Policy) (domain.LoanRecord, error) {
	now := s.now()
	loan := domain.LoanRecord{
		LoanNo:     newLoanNo(),
		ReaderNo:   readerNo,
		BookID:     book.ID,
		OperatorID: operatorID,
		BorrowDate: now,
		DueDate:    now.Add(pol.LoanDuration()),
		Status:     domain.LoanOpen,
	}

	book.AvailableCopies--
	book.BorrowCount++
	if err := checkBookCounts(book); err != nil {
		return domain.LoanRecord{}, err
	}
	if err := tx.UpdateBook(ctx, book); err != nil {
		return domain.LoanRecord{}, err
	}
	if err := tx.InsertLoan(ctx, loan); err != nil {
		return domain.LoanRecord{}, err
	}
	return loan, nil
}

// ReturnBook closes an open loan, restores the copy, and accrues any fine on
// the reader account in the same transaction. A loan is never marked returned
// without its fine being recorded.
func (s *LendingService) ReturnBook(ctx context.Context, loanNo, operatorID string) (models.ReturnResponse, error) {
	pol, err := s.policy.Snapshot(ctx)
	if err != nil {
		return models.ReturnResponse{}, err
	}

	var result models.ReturnResponse
	err = s.store.ExecTx(ctx, func(tx store.Tx) error {
		loan, err := tx.LoanForUpdate(ctx, loanNo)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanOpen {
			return domain.ErrLoanAlreadyReturned
		}

		now := s.now()
		overdue := overdueDays(loan.DueDate, now)
		fine := float64(overdue) * pol.FineRatePerDay

		loan.Status = domain.LoanReturned
		loan.ReturnDate = &now
		loan.OverdueDays = overdue
		loan.FineAmount = fine
		if operatorID != "" {
			loan.OperatorID = operatorID
		}
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}

		book, err := tx.BookForUpdate(ctx, loan.BookID)
		if err != nil {
			return err
		}
		book.AvailableCopies++
		if err := checkBookCounts(book); err != nil {
			return err
		}
		if err := tx.UpdateBook(ctx, book); err != nil {
			return err
		}

		if fine > 0 {
			if err := applyFineLocked(ctx, tx, loan.ReaderNo, fine); err != nil {
				return err
			}
		}

		result = models.ReturnResponse{OverdueDays: overdue, FineAmount: fine}
		return nil
	})
	if err != nil {
		return models.ReturnResponse{}, err
	}
	return result, nil
}

// applyFineLocked is the single entry point by which arrears are mutated.
// Called only inside the returning transaction.
func applyFineLocked(ctx context.Context, tx store.Tx, readerNo string, fine float64) error {
	reader, err := tx.ReaderForUpdate(ctx, readerNo)
	if err != nil {
		return err
	}
	reader.ArrearsAmount += fine
	reader.CreditStatus = domain.CreditDebt
	if err := checkReaderCredit(reader); err != nil {
		return err
	}
	return tx.UpdateReader(ctx, reader)
}

// RenewLoan extends the due date by one loan period. Eligibility and
// availability are not re-checked: the book is already out.
func (s *LendingService) RenewLoan(ctx context.Context, loanNo string) (models.RenewResponse, error) {
	pol, err := s.policy.Snapshot(ctx)
	if err != nil {
		return models.RenewResponse{}, err
	}

	var result models.RenewResponse
	err = s.store.ExecTx(ctx, func(tx store.Tx) error {
		loan, err := tx.LoanForUpdate(ctx, loanNo)
		if err != nil {
			return err
		}
		if loan.Status != domain.LoanOpen {
			return domain.ErrLoanNotOpen
		}
		if loan.RenewCount >= pol.MaxRenewCount {
			return domain.ErrRenewalLimitExceeded
		}

		loan.DueDate = loan.DueDate.Add(pol.LoanDuration())
		loan.RenewCount++
		if err := tx.UpdateLoan(ctx, loan); err != nil {
			return err
		}
		result = models.RenewResponse{NewDueDate: loan.DueDate}
		return nil
	})
	if err != nil {
		return models.RenewResponse{}, err
	}
	return result, nil
}

// AdjustCredit is the staff override path for reader standing. Clearing
// arrears to zero is the only way back to good standing; the invariant
// arrears > 0 => status != good is enforced before commit.
func (s *LendingService) AdjustCredit(ctx context.Context, readerNo string, status domain.CreditStatus, arrears float64) error {
	if arrears < 0 {
		return domain.ErrInvalidState
	}
	if arrears > 0 && status == domain.CreditGood {
		return domain.ErrInvalidState
	}
	return s.store.ExecTx(ctx, func(tx store.Tx) error {
		reader, err := tx.ReaderForUpdate(ctx, readerNo)
		if err != nil {
			return err
		}
		reader.CreditStatus = status
		reader.ArrearsAmount = arrears
		if err := checkReaderCredit(reader); err != nil {
			return err
		}
		return tx.UpdateReader(ctx, reader)
	})
}

// overdueDays is max(0, ceil((now - due) / 1 day)).
func overdueDays(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(math.Ceil(now.Sub(due).Hours() / 24))
}

func checkBookCounts(b domain.Book) error {
	if b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return fmt.Errorf("book %d copies %d/%d: %w", b.ID, b.AvailableCopies, b.TotalCopies, domain.ErrInvariantViolation)
	}
	return nil
}

func checkReaderCredit(r domain.ReaderAccount) error {
	if r.ArrearsAmount > 0 && r.CreditStatus == domain.CreditGood {
		return fmt.Errorf("reader %s arrears %.2f with good standing: %w", r.ReaderNo, r.ArrearsAmount, domain.ErrInvariantViolation)
	}
	return nil
}
