package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/circops/internal/domain"
)

// Postgres implements Store over a pgx pool. Row locks are taken with
// SELECT ... FOR UPDATE so check-then-act sequences on a book or reader row
// are linearized across concurrent transactions.
type Postgres struct {
	db *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// ExecTx runs fn in one transaction at repeatable read. Serialization
// failures and deadlocks surface as domain.ErrConflict; pool-level failures
// as domain.ErrTransient. Rollback is guaranteed on every non-commit path.
func (s *Postgres) ExecTx(ctx context.Context, fn func(tx Tx) error) error {
	pgtx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", domain.ErrTransient)
	}
	defer pgtx.Rollback(ctx)

	if err := fn(&pgTx{tx: pgtx}); err != nil {
		return translateErr(err)
	}
	if err := pgtx.Commit(ctx); err != nil {
		return translateErr(fmt.Errorf("tx commit failed: %w", err))
	}
	return nil
}

// translateErr maps driver-level failures onto the retryable error kinds.
// Domain sentinels pass through untouched.
func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%v: %w", pgErr.Code, domain.ErrConflict)
		case "23505": // unique_violation on loan/reservation numbers
			return fmt.Errorf("duplicate key: %w", domain.ErrConflict)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%v: %w", err, domain.ErrTransient)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

const bookColumns = "id, isbn, title, total_copies, available_copies, borrow_count, status, updated_at"

func (t *pgTx) BookForUpdate(ctx context.Context, bookID int64) (domain.Book, error) {
	var b domain.Book
	err := t.tx.QueryRow(ctx,
		"SELECT "+bookColumns+" FROM books WHERE id = $1 FOR UPDATE",
		bookID,
	).Scan(&b.ID, &b.ISBN, &b.Title, &b.TotalCopies, &b.AvailableCopies, &b.BorrowCount, &b.Status, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Book{}, domain.ErrBookNotFound
		}
		return domain.Book{}, fmt.Errorf("book lock failed: %w", err)
	}
	return b, nil
}

func (t *pgTx) UpdateBook(ctx context.Context, b domain.Book) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE books
		 SET total_copies = $1, available_copies = $2, borrow_count = $3, status = $4, updated_at = NOW()
		 WHERE id = $5`,
		b.TotalCopies, b.AvailableCopies, b.BorrowCount, b.Status, b.ID,
	)
	if err != nil {
		return fmt.Errorf("book update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

func (t *pgTx) ReaderForUpdate(ctx context.Context, readerNo string) (domain.ReaderAccount, error) {
	var r domain.ReaderAccount
	err := t.tx.QueryRow(ctx,
		"SELECT reader_no, name, credit_status, arrears_amount, updated_at FROM reader_accounts WHERE reader_no = $1 FOR UPDATE",
		readerNo,
	).Scan(&r.ReaderNo, &r.Name, &r.CreditStatus, &r.ArrearsAmount, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReaderAccount{}, domain.ErrReaderNotFound
		}
		return domain.ReaderAccount{}, fmt.Errorf("reader lock failed: %w", err)
	}
	return r, nil
}

func (t *pgTx) UpdateReader(ctx context.Context, r domain.ReaderAccount) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE reader_accounts SET credit_status = $1, arrears_amount = $2, updated_at = NOW() WHERE reader_no = $3",
		r.CreditStatus, r.ArrearsAmount, r.ReaderNo,
	)
	if err != nil {
		return fmt.Errorf("reader update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReaderNotFound
	}
	return nil
}

func (t *pgTx) OpenLoanCount(ctx context.Context, readerNo string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM loan_records WHERE reader_no = $1 AND status = $2",
		readerNo, domain.LoanOpen,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("open loan count failed: %w", err)
	}
	return count, nil
}

const loanColumns = "loan_no, reader_no, book_id, COALESCE(operator_id, ''), borrow_date, due_date, return_date, status, renew_count, overdue_days, fine_amount"

func scanLoan(row pgx.Row) (domain.LoanRecord, error) {
	var l domain.LoanRecord
	err := row.Scan(&l.LoanNo, &l.ReaderNo, &l.BookID, &l.OperatorID, &l.BorrowDate,
		&l.DueDate, &l.ReturnDate, &l.Status, &l.RenewCount, &l.OverdueDays, &l.FineAmount)
	return l, err
}

func (t *pgTx) LoanForUpdate(ctx context.Context, loanNo string) (domain.LoanRecord, error) {
	l, err := scanLoan(t.tx.QueryRow(ctx,
		"SELECT "+loanColumns+" FROM loan_records WHERE loan_no = $1 FOR UPDATE", loanNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LoanRecord{}, domain.ErrLoanNotFound
		}
		return domain.LoanRecord{}, fmt.Errorf("loan lock failed: %w", err)
	}
	return l, nil
}

func (t *pgTx) InsertLoan(ctx context.Context, l domain.LoanRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO loan_records (loan_no, reader_no, book_id, operator_id, borrow_date, due_date, status, renew_count, overdue_days, fine_amount)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10)`,
		l.LoanNo, l.ReaderNo, l.BookID, l.OperatorID, l.BorrowDate, l.DueDate,
		l.Status, l.RenewCount, l.OverdueDays, l.FineAmount,
	)
	if err != nil {
		return fmt.Errorf("loan insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateLoan(ctx context.Context, l domain.LoanRecord) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE loan_records
		 SET operator_id = NULLIF($1, ''), due_date = $2, return_date = $3, status = $4,
		     renew_count = $5, overdue_days = $6, fine_amount = $7
		 WHERE loan_no = $8`,
		l.OperatorID, l.DueDate, l.ReturnDate, l.Status, l.RenewCount, l.OverdueDays, l.FineAmount, l.LoanNo,
	)
	if err != nil {
		return fmt.Errorf("loan update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

const reservationColumns = "reservation_no, reader_no, book_id, COALESCE(operator_id, ''), reservation_date, status, resolved_date"

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ReservationNo, &r.ReaderNo, &r.BookID, &r.OperatorID,
		&r.ReservationDate, &r.Status, &r.ResolvedDate)
	return r, err
}

func (t *pgTx) ReservationForUpdate(ctx context.Context, reservationNo string) (domain.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRow(ctx,
		"SELECT "+reservationColumns+" FROM reservations WHERE reservation_no = $1 FOR UPDATE", reservationNo))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, fmt.Errorf("reservation lock failed: %w", err)
	}
	return r, nil
}

func (t *pgTx) InsertReservation(ctx context.Context, r domain.Reservation) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO reservations (reservation_no, reader_no, book_id, operator_id, reservation_date, status)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		r.ReservationNo, r.ReaderNo, r.BookID, r.OperatorID, r.ReservationDate, r.Status,
	)
	if err != nil {
		return fmt.Errorf("reservation insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateReservation(ctx context.Context, r domain.Reservation) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE reservations SET status = $1, resolved_date = $2, operator_id = NULLIF($3, '') WHERE reservation_no = $4",
		r.Status, r.ResolvedDate, r.OperatorID, r.ReservationNo,
	)
	if err != nil {
		return fmt.Errorf("reservation update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

func (t *pgTx) HasPendingReservation(ctx context.Context, readerNo string, bookID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM reservations WHERE reader_no = $1 AND book_id = $2 AND status = $3)",
		readerNo, bookID, domain.ReservationPending,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pending reservation check failed: %w", err)
	}
	return exists, nil
}

func (t *pgTx) PendingReservationCount(ctx context.Context, readerNo string) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM reservations WHERE reader_no = $1 AND status = $2",
		readerNo, domain.ReservationPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending reservation count failed: %w", err)
	}
	return count, nil
}

func (t *pgTx) PendingReservationCountForBook(ctx context.Context, bookID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM reservations WHERE book_id = $1 AND status = $2",
		bookID, domain.ReservationPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending reservation count failed: %w", err)
	}
	return count, nil
}

// ListLoans pages loan records, newest borrow first.
func (s *Postgres) ListLoans(ctx context.Context, q LoanQuery) ([]domain.LoanRecord, int, error) {
	q.Normalize()
	where, args := loanFilter(q)

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM loan_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("loan count failed: %w", err)
	}

	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT %s FROM loan_records%s ORDER BY borrow_date DESC LIMIT $%d OFFSET $%d",
			loanColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("loan list failed: %w", err)
	}
	defer rows.Close()

	var loans []domain.LoanRecord
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("loan scan failed: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, total, rows.Err()
}

func loanFilter(q LoanQuery) (string, []interface{}) {
	where := " WHERE 1=1"
	var args []interface{}
	if q.ReaderNo != "" {
		args = append(args, q.ReaderNo)
		where += fmt.Sprintf(" AND reader_no = $%d", len(args))
	}
	if q.BookID != 0 {
		args = append(args, q.BookID)
		where += fmt.Sprintf(" AND book_id = $%d", len(args))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	return where, args
}

// ListReservations pages reservations, newest first.
func (s *Postgres) ListReservations(ctx context.Context, q ReservationQuery) ([]domain.Reservation, int, error) {
	q.Normalize()
	where := " WHERE 1=1"
	var args []interface{}
	if q.ReaderNo != "" {
		args = append(args, q.ReaderNo)
		where += fmt.Sprintf(" AND reader_no = $%d", len(args))
	}
	if q.BookID != 0 {
		args = append(args, q.BookID)
		where += fmt.Sprintf(" AND book_id = $%d", len(args))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	var total int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM reservations"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reservation count failed: %w", err)
	}

	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)
	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT %s FROM reservations%s ORDER BY reservation_date DESC LIMIT $%d OFFSET $%d",
			reservationColumns, where, len(args)-1, len(args)),
		args...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("reservation list failed: %w", err)
	}
	defer rows.Close()

	var reservations []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("reservation scan failed: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, total, rows.Err()
}

// ListOverdueLoans returns open loans past due, oldest due date first.
func (s *Postgres) ListOverdueLoans(ctx context.Context, now time.Time) ([]domain.LoanRecord, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+loanColumns+" FROM loan_records WHERE status = $1 AND due_date < $2 ORDER BY due_date ASC",
		domain.LoanOpen, now,
	)
	if err != nil {
		return nil, fmt.Errorf("overdue list failed: %w", err)
	}
	defer rows.Close()

	var loans []domain.LoanRecord
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("overdue scan failed: %w", err)
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}
