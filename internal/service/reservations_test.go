package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/models"
)

func TestCreateReservation_FlipsBookToReserved(t *testing.T) {
	f := newFixture(t, domain.DefaultPolicy())
	f.seedBook(1, 1, 0, domain.BookActive)
	f.seedReader("R1", domain.CreditGood, 0)

	res, err := f.svc.CreateReservation(context.Background(), models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationPending, res.Status)
	assert.Equal(t, testEpoch, res.ReservationDate)

	book, _ := f.mem.Book(1)
	assert.Equal(t, domain.BookReserved, book.Status)
}

func TestCreateReservation_Preconditions(t *testing.T) {
	f := newFixture(t, domain.DefaultPolicy())
	f.seedBook(1, 2, 1, domain.BookActive)
	f.seedBook(2, 1, 0, domain.BookActive)
	f.seedBook(3, 1, 1, domain.BookWithdrawn)
	f.seedReader("R1", domain.CreditGood, 0)

	ctx := context.Background()

	// A directly loanable copy must be borrowed, not reserved.
	_, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	assert.ErrorIs(t, err, domain.ErrDirectLoanAvailable)

	_, err = f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 3})
	assert.ErrorIs(t, err, domain.ErrBookUnavailable)

	_, err = f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 404})
	assert.ErrorIs(t, err, domain.ErrBookNotFound)

	_, err = f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "ghost", BookID: 2})
	assert.ErrorIs(t, err, domain.ErrReaderNotFound)

	_, err = f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 2})
	require.NoError(t, err)
	_, err = f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 2})
	assert.ErrorIs(t, err, domain.ErrDuplicateReservation)
}

func TestCreateReservation_CapPerReader(t *testing.T) {
	f := newFixture(t, domain.DefaultPolicy())
	for id := int64(1); id <= 4; id++ {
		f.seedBook(id, 1, 0, domain.BookActive)
	}
	f.seedReader("R1", domain.CreditGood, 0)

	ctx := context.Background()
	var third domain.Reservation
	for id := int64(1); id <= 3; id++ {
		res, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: id})
		require.NoError(t, err)
		third = res
	}

	_, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 4})
	assert.ErrorIs(t, err, domain.ErrReservationLimitExceeded)

	// Cancelling frees a slot.
	require.NoError(t, f.svc.CancelReservation(ctx, third.ReservationNo, "R1", false))
	_, err = f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 4})
	require.NoError(t, err)
}

func TestCancelReservation_ReleasesBook(t *testing.T) {
	f := newFixture(t, domain.DefaultPolicy())
	f.seedBook(1, 1, 0, domain.BookActive)
	f.seedReader("R1", domain.CreditGood, 0)
	f.seedReader("R2", domain.CreditGood, 0)

	ctx := context.Background()
	first, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	require.NoError(t, err)
	second, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R2", BookID: 1})
	require.NoError(t, err)

	// One pending claim left: the book stays reserved.
	require.NoError(t, f.svc.CancelReservation(ctx, first.ReservationNo, "R1", false))
	book, _ := f.mem.Book(1)
	assert.Equal(t, domain.BookReserved, book.Status)

	require.NoError(t, f.svc.CancelReservation(ctx, second.ReservationNo, "R2", false))
	book, _ = f.mem.Book(1)
	assert.Equal(t, domain.BookActive, book.Status)
}

func TestCancelReservation_Authorization(t *testing.T) {
	f := newFixture(t, domain.DefaultPolicy())
	f.seedBook(1, 1, 0, domain.BookActive)
	f.seedReader("R1", domain.CreditGood, 0)
	f.seedReader("R2", domain.CreditGood, 0)

	ctx := context.Background()
	res, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	require.NoError(t, err)

	// Another reader cannot cancel, or even observe, the reservation.
	err = f.svc.CancelReservation(ctx, res.ReservationNo, "R2", false)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)

	// Staff can.
	require.NoError(t, f.svc.CancelReservation(ctx, res.ReservationNo, "", true))

	err = f.svc.CancelReservation(ctx, res.ReservationNo, "", true)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	err = f.svc.CancelReservation(ctx, "Amissing", "", true)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestFulfillReservation_ConvertsToLoan(t *testing.T) {
	f := newFixture(t, domain.DefaultPolicy())
	f.seedBook(1, 1, 0, domain.BookReserved)
	f.seedReader("R1", domain.CreditGood, 0)

	ctx := context.Background()
	res, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	require.NoError(t, err)

	// No copy on the shelf yet.
	_, err = f.svc.FulfillReservation(ctx, res.ReservationNo, "staff-1")
	assert.ErrorIs(t, err, domain.ErrBookUnavailable)

	// A copy comes back.
	f.mem.SeedBook(domain.Book{ID: 1, TotalCopies: 1, AvailableCopies: 1, Status: domain.BookReserved})

	loan, err := f.svc.FulfillReservation(ctx, res.ReservationNo, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, "R1", loan.ReaderNo)
	assert.Equal(t, domain.LoanOpen, loan.Status)
	assert.Equal(t, testEpoch.AddDate(0, 0, 30), loan.DueDate)

	book, _ := f.mem.Book(1)
	assert.Equal(t, 0, book.AvailableCopies)
	assert.Equal(t, domain.BookActive, book.Status, "last claim resolved, book back in circulation")

	// The reservation is spent.
	_, err = f.svc.FulfillReservation(ctx, res.ReservationNo, "staff-1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestFulfillReservation_RechecksBorrowGates(t *testing.T) {
	f := newFixture(t, domain.DefaultPolicy())
	f.seedBook(1, 2, 0, domain.BookActive)
	f.seedReader("R1", domain.CreditGood, 0)

	ctx := context.Background()
	res, err := f.svc.CreateReservation(ctx, models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	require.NoError(t, err)

	// Reader fell into debt while waiting.
	require.NoError(t, f.svc.AdjustCredit(ctx, "R1", domain.CreditDebt, 4.5))
	f.mem.SeedBook(domain.Book{ID: 1, TotalCopies: 2, AvailableCopies: 1, Status: domain.BookReserved})

	_, err = f.svc.FulfillReservation(ctx, res.ReservationNo, "")
	assert.ErrorIs(t, err, domain.ErrReaderIneligible)

	// The reservation survives the failed attempt.
	got, _ := f.svc.GetReaderReservations(ctx, "R1", domain.ReservationPending, 1, 10)
	assert.Equal(t, 1, got.Total)
}

func TestGetReaderReservations_Paging(t *testing.T) {
	pol := domain.DefaultPolicy()
	pol.MaxReservationCount = 10
	f := newFixture(t, pol)
	f.seedReader("R1", domain.CreditGood, 0)
	for id := int64(1); id <= 4; id++ {
		f.seedBook(id, 1, 0, domain.BookActive)
		_, err := f.svc.CreateReservation(context.Background(), models.ReservationRequest{ReaderNo: "R1", BookID: id})
		require.NoError(t, err)
		f.advance(time.Hour)
	}

	page1, err := f.svc.GetReaderReservations(context.Background(), "R1", "", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, page1.Total)
	require.Len(t, page1.List, 3)
	assert.Equal(t, int64(4), page1.List[0].BookID)

	page2, err := f.svc.GetReaderReservations(context.Background(), "R1", "", 2, 3)
	require.NoError(t, err)
	require.Len(t, page2.List, 1)
	assert.Equal(t, int64(1), page2.List[0].BookID)
}
