package service

import (
	"context"

	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/models"
	"github.com/punchamoorthee/circops/internal/store"
)

// CreateReservation queues a claim on a book that is not directly loanable.
// The first pending reservation flips the book to reserved, locking it out of
// direct loans until every pending claim is resolved.
func (s *LendingService) CreateReservation(ctx context.Context, req models.ReservationRequest) (domain.Reservation, error) {
	pol, err := s.policy.Snapshot(ctx)
	if err != nil {
		return domain.Reservation{}, err
	}

	var created domain.Reservation
	err = s.store.ExecTx(ctx, func(tx store.Tx) error {
		book, err := tx.BookForUpdate(ctx, req.BookID)
		if err != nil {
			return err
		}
		if book.Status == domain.BookWithdrawn {
			return domain.ErrBookUnavailable
		}
		if book.Loanable() && book.AvailableCopies > 0 {
			return domain.ErrDirectLoanAvailable
		}

		reader, err := tx.ReaderForUpdate(ctx, req.ReaderNo)
		if err != nil {
			return err
		}

		duplicate, err := tx.HasPendingReservation(ctx, reader.ReaderNo, book.ID)
		if err != nil {
			return err
		}
		if duplicate {
			return domain.ErrDuplicateReservation
		}

		pending, err := tx.PendingReservationCount(ctx, reader.ReaderNo)
		if err != nil {
			return err
		}
		if pending >= pol.MaxReservationCount {
			return domain.ErrReservationLimitExceeded
		}

		// Same serialization guard as the borrow path: the pending-count cap
		// reads rows outside the locked reader row, so rewrite the reader row
		// to abort concurrent same-reader cap checks.
		if err := tx.UpdateReader(ctx, reader); err != nil {
			return err
		}

		res := domain.Reservation{
			ReservationNo:   newReservationNo(),
			ReaderNo:        reader.ReaderNo,
			BookID:          book.ID,
			OperatorID:      req.OperatorID,
			ReservationDate: s.now(),
			Status:          domain.ReservationPending,
		}
		if err := tx.InsertReservation(ctx, res); err != nil {
			return err
		}

		if book.Status == domain.BookActive {
			book.Status = domain.BookReserved
			if err := tx.UpdateBook(ctx, book); err != nil {
				return err
			}
		}

		created = res
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	return created, nil
}

// CancelReservation cancels a pending reservation. Readers may cancel only
// their own; staff may cancel any. When the last pending claim on a book is
// cancelled the book returns to active circulation.
func (s *LendingService) CancelReservation(ctx context.Context, reservationNo, readerNo string, staff bool) error {
	return s.store.ExecTx(ctx, func(tx store.Tx) error {
		res, err := tx.ReservationForUpdate(ctx, reservationNo)
		if err != nil {
			return err
		}
		if !staff && res.ReaderNo != readerNo {
			// Not leaked to non-owners.
			return domain.ErrReservationNotFound
		}
		if res.Status != domain.ReservationPending {
			return domain.ErrInvalidState
		}

		now := s.now()
		res.Status = domain.ReservationCancelled
		res.ResolvedDate = &now
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}

		return s.releaseBookIfUnclaimed(ctx, tx, res.BookID)
	})
}

// FulfillReservation converts a pending reservation into an open loan. The
// borrow path's credit and loan-cap checks still apply, but the
// not-directly-loanable gate is bypassed: intent is explicit.
func (s *LendingService) FulfillReservation(ctx context.Context, reservationNo, operatorID string) (domain.LoanRecord, error) {
	pol, err := s.policy.Snapshot(ctx)
	if err != nil {
		return domain.LoanRecord{}, err
	}

	var loan domain.LoanRecord
	err = s.store.ExecTx(ctx, func(tx store.Tx) error {
		res, err := tx.ReservationForUpdate(ctx, reservationNo)
		if err != nil {
			return err
		}
		if res.Status != domain.ReservationPending {
			return domain.ErrInvalidState
		}

		book, err := tx.BookForUpdate(ctx, res.BookID)
		if err != nil {
			return err
		}
		if book.Status == domain.BookWithdrawn || book.AvailableCopies <= 0 {
			return domain.ErrBookUnavailable
		}

		reader, err := tx.ReaderForUpdate(ctx, res.ReaderNo)
		if err != nil {
			return err
		}
		if !reader.EligibleToBorrow() {
			return domain.ErrReaderIneligible
		}
		open, err := tx.OpenLoanCount(ctx, reader.ReaderNo)
		if err != nil {
			return err
		}
		if open >= pol.MaxBorrowCount {
			return domain.ErrLoanLimitExceeded
		}

		// Serialization guard on the loan cap, as in the borrow path.
		if err := tx.UpdateReader(ctx, reader); err != nil {
			return err
		}

		created, err := s.createLoanLocked(ctx, tx, book, reader.ReaderNo, operatorID, pol)
		if err != nil {
			return err
		}

		now := s.now()
		res.Status = domain.ReservationFulfilled
		res.ResolvedDate = &now
		if operatorID != "" {
			res.OperatorID = operatorID
		}
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}

		if err := s.releaseBookIfUnclaimed(ctx, tx, res.BookID); err != nil {
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

// releaseBookIfUnclaimed reverts a reserved book to active once no pending
// reservation remains. The book row is already locked by the caller's
// transaction when this runs.
func (s *LendingService) releaseBookIfUnclaimed(ctx context.Context, tx store.Tx, bookID int64) error {
	pending, err := tx.PendingReservationCountForBook(ctx, bookID)
	if err != nil {
		return err
	}
	if pending > 0 {
		return nil
	}
	book, err := tx.BookForUpdate(ctx, bookID)
	if err != nil {
		return err
	}
	if book.Status != domain.BookReserved {
		return nil
	}
	book.Status = domain.BookActive
	return tx.UpdateBook(ctx, book)
}
