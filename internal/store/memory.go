package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/circops/internal/domain"
)

// Memory is an in-memory Store for tests and ephemeral environments. ExecTx
// clones the whole state, runs the callback against the clone, and swaps the
// clone in only on success, so a failed transaction leaves no trace. The
// single mutex is the critical section that linearizes check-then-act
// sequences, standing in for the row locks of the Postgres store.
type Memory struct {
	mu    sync.RWMutex
	state memState
}

var _ Store = (*Memory)(nil)

type memState struct {
	books        map[int64]domain.Book
	readers      map[string]domain.ReaderAccount
	loans        map[string]domain.LoanRecord
	reservations map[string]domain.Reservation
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func newMemState() memState {
	return memState{
		books:        make(map[int64]domain.Book),
		readers:      make(map[string]domain.ReaderAccount),
		loans:        make(map[string]domain.LoanRecord),
		reservations: make(map[string]domain.Reservation),
	}
}

func (s memState) clone() memState {
	cloned := newMemState()
	for k, v := range s.books {
		cloned.books[k] = v
	}
	for k, v := range s.readers {
		cloned.readers[k] = v
	}
	for k, v := range s.loans {
		cloned.loans[k] = cloneLoan(v)
	}
	for k, v := range s.reservations {
		cloned.reservations[k] = cloneReservation(v)
	}
	return cloned
}

func cloneLoan(l domain.LoanRecord) domain.LoanRecord {
	if l.ReturnDate != nil {
		t := *l.ReturnDate
		l.ReturnDate = &t
	}
	return l
}

func cloneReservation(r domain.Reservation) domain.Reservation {
	if r.ResolvedDate != nil {
		t := *r.ResolvedDate
		r.ResolvedDate = &t
	}
	return r
}

// SeedBook installs a book record, for tests and seeding.
func (s *Memory) SeedBook(b domain.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.books[b.ID] = b
}

// SeedReader installs a reader account, for tests and seeding.
func (s *Memory) SeedReader(r domain.ReaderAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.readers[r.ReaderNo] = r
}

// Book returns a copy of the stored book, for test assertions.
func (s *Memory) Book(id int64) (domain.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.books[id]
	return b, ok
}

// Reader returns a copy of the stored reader account, for test assertions.
func (s *Memory) Reader(readerNo string) (domain.ReaderAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.readers[readerNo]
	return r, ok
}

// Loan returns a copy of the stored loan record, for test assertions.
func (s *Memory) Loan(loanNo string) (domain.LoanRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.loans[loanNo]
	return cloneLoan(l), ok
}

// ExecTx holds the store lock across the whole check-then-act sequence and
// commits by swapping in the mutated clone.
func (s *Memory) ExecTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.ErrTransient
	}

	work := &memTx{state: s.state.clone()}
	if err := fn(work); err != nil {
		return err
	}
	s.state = work.state
	return nil
}

type memTx struct {
	state memState
}

func (t *memTx) BookForUpdate(_ context.Context, bookID int64) (domain.Book, error) {
	b, ok := t.state.books[bookID]
	if !ok {
		return domain.Book{}, domain.ErrBookNotFound
	}
	return b, nil
}

func (t *memTx) UpdateBook(_ context.Context, b domain.Book) error {
	if _, ok := t.state.books[b.ID]; !ok {
		return domain.ErrBookNotFound
	}
	t.state.books[b.ID] = b
	return nil
}

func (t *memTx) ReaderForUpdate(_ context.Context, readerNo string) (domain.ReaderAccount, error) {
	r, ok := t.state.readers[readerNo]
	if !ok {
		return domain.ReaderAccount{}, domain.ErrReaderNotFound
	}
	return r, nil
}

func (t *memTx) UpdateReader(_ context.Context, r domain.ReaderAccount) error {
	if _, ok := t.state.readers[r.ReaderNo]; !ok {
		return domain.ErrReaderNotFound
	}
	t.state.readers[r.ReaderNo] = r
	return nil
}

func (t *memTx) OpenLoanCount(_ context.Context, readerNo string) (int, error) {
	count := 0
	for _, l := range t.state.loans {
		if l.ReaderNo == readerNo && l.Status == domain.LoanOpen {
			count++
		}
	}
	return count, nil
}

func (t *memTx) LoanForUpdate(_ context.Context, loanNo string) (domain.LoanRecord, error) {
	l, ok := t.state.loans[loanNo]
	if !ok {
		return domain.LoanRecord{}, domain.ErrLoanNotFound
	}
	return cloneLoan(l), nil
}

func (t *memTx) InsertLoan(_ context.Context, l domain.LoanRecord) error {
	if _, exists := t.state.loans[l.LoanNo]; exists {
		return domain.ErrConflict
	}
	t.state.loans[l.LoanNo] = cloneLoan(l)
	return nil
}

func (t *memTx) UpdateLoan(_ context.Context, l domain.LoanRecord) error {
	if _, ok := t.state.loans[l.LoanNo]; !ok {
		return domain.ErrLoanNotFound
	}
	t.state.loans[l.LoanNo] = cloneLoan(l)
	return nil
}

func (t *memTx) ReservationForUpdate(_ context.Context, reservationNo string) (domain.Reservation, error) {
	r, ok := t.state.reservations[reservationNo]
	if !ok {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return cloneReservation(r), nil
}

func (t *memTx) InsertReservation(_ context.Context, r domain.Reservation) error {
	if _, exists := t.state.reservations[r.ReservationNo]; exists {
		return domain.ErrConflict
	}
	t.state.reservations[r.ReservationNo] = cloneReservation(r)
	return nil
}

func (t *memTx) UpdateReservation(_ context.Context, r domain.Reservation) error {
	if _, ok := t.state.reservations[r.ReservationNo]; !ok {
		return domain.ErrReservationNotFound
	}
	t.state.reservations[r.ReservationNo] = cloneReservation(r)
	return nil
}

func (t *memTx) HasPendingReservation(_ context.Context, readerNo string, bookID int64) (bool, error) {
	for _, r := range t.state.reservations {
		if r.ReaderNo == readerNo && r.BookID == bookID && r.Status == domain.ReservationPending {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) PendingReservationCount(_ context.Context, readerNo string) (int, error) {
	count := 0
	for _, r := range t.state.reservations {
		if r.ReaderNo == readerNo && r.Status == domain.ReservationPending {
			count++
		}
	}
	return count, nil
}

func (t *memTx) PendingReservationCountForBook(_ context.Context, bookID int64) (int, error) {
	count := 0
	for _, r := range t.state.reservations {
		if r.BookID == bookID && r.Status == domain.ReservationPending {
			count++
		}
	}
	return count, nil
}

// ListLoans pages loan records, newest borrow first.
func (s *Memory) ListLoans(_ context.Context, q LoanQuery) ([]domain.LoanRecord, int, error) {
	q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.LoanRecord
	for _, l := range s.state.loans {
		if q.ReaderNo != "" && l.ReaderNo != q.ReaderNo {
			continue
		}
		if q.BookID != 0 && l.BookID != q.BookID {
			continue
		}
		if q.Status != "" && l.Status != q.Status {
			continue
		}
		matched = append(matched, cloneLoan(l))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].BorrowDate.Equal(matched[j].BorrowDate) {
			return matched[i].BorrowDate.After(matched[j].BorrowDate)
		}
		return matched[i].LoanNo < matched[j].LoanNo
	})
	total := len(matched)
	return pageLoans(matched, q.Page, q.PageSize), total, nil
}

func pageLoans(loans []domain.LoanRecord, page, pageSize int) []domain.LoanRecord {
	start := (page - 1) * pageSize
	if start >= len(loans) {
		return nil
	}
	end := start + pageSize
	if end > len(loans) {
		end = len(loans)
	}
	return loans[start:end]
}

// ListReservations pages reservations, newest first.
func (s *Memory) ListReservations(_ context.Context, q ReservationQuery) ([]domain.Reservation, int, error) {
	q.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Reservation
	for _, r := range s.state.reservations {
		if q.ReaderNo != "" && r.ReaderNo != q.ReaderNo {
			continue
		}
		if q.BookID != 0 && r.BookID != q.BookID {
			continue
		}
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		matched = append(matched, cloneReservation(r))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ReservationDate.Equal(matched[j].ReservationDate) {
			return matched[i].ReservationDate.After(matched[j].ReservationDate)
		}
		return matched[i].ReservationNo < matched[j].ReservationNo
	})
	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ListOverdueLoans returns open loans past due, oldest due date first.
func (s *Memory) ListOverdueLoans(_ context.Context, now time.Time) ([]domain.LoanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var overdue []domain.LoanRecord
	for _, l := range s.state.loans {
		if l.Status == domain.LoanOpen && l.DueDate.Before(now) {
			overdue = append(overdue, cloneLoan(l))
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		if !overdue[i].DueDate.Equal(overdue[j].DueDate) {
			return overdue[i].DueDate.Before(overdue[j].DueDate)
		}
		return overdue[i].LoanNo < overdue[j].LoanNo
	})
	return overdue, nil
}
