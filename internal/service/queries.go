package service

import (
	"context"

	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/models"
	"github.com/punchamoorthee/circops/internal/store"
)

// GetReaderLoans pages a reader's loan records, newest first. Overdue days on
// open loans are computed on read; the stored record is not touched.
func (s *LendingService) GetReaderLoans(ctx context.Context, readerNo string, status domain.LoanStatus, page, pageSize int) (models.LoanListResponse, error) {
	q := store.LoanQuery{ReaderNo: readerNo, Status: status, Page: page, PageSize: pageSize}
	q.Normalize()
	loans, total, err := s.store.ListLoans(ctx, q)
	if err != nil {
		return models.LoanListResponse{}, err
	}
	now := s.now()
	for i := range loans {
		if loans[i].Status == domain.LoanOpen {
			loans[i].OverdueDays = overdueDays(loans[i].DueDate, now)
		}
	}
	return models.LoanListResponse{List: loans, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// GetReaderReservations pages a reader's reservations, newest first.
func (s *LendingService) GetReaderReservations(ctx context.Context, readerNo string, status domain.ReservationStatus, page, pageSize int) (models.ReservationListResponse, error) {
	q := store.ReservationQuery{ReaderNo: readerNo, Status: status, Page: page, PageSize: pageSize}
	q.Normalize()
	reservations, total, err := s.store.ListReservations(ctx, q)
	if err != nil {
		return models.ReservationListResponse{}, err
	}
	return models.ReservationListResponse{List: reservations, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

// ListOverdueLoans returns every open loan past due, oldest first, with
// overdue days computed against the current clock.
func (s *LendingService) ListOverdueLoans(ctx context.Context) ([]domain.LoanRecord, error) {
	now := s.now()
	loans, err := s.store.ListOverdueLoans(ctx, now)
	if err != nil {
		return nil, err
	}
	for i := range loans {
		loans[i].OverdueDays = overdueDays(loans[i].DueDate, now)
	}
	return loans, nil
}

// GetReaderStanding reads a reader's credit status and arrears.
func (s *LendingService) GetReaderStanding(ctx context.Context, readerNo string) (domain.ReaderAccount, error) {
	var reader domain.ReaderAccount
	err := s.store.ExecTx(ctx, func(tx store.Tx) error {
		r, err := tx.ReaderForUpdate(ctx, readerNo)
		if err != nil {
			return err
		}
		reader = r
		return nil
	})
	if err != nil {
		return domain.ReaderAccount{}, err
	}
	return reader, nil
}
