package domain

import "errors"

// Sentinel errors for every caller-visible failure. Validation failures are
// detected before any write, so an operation that returns one of these has had
// zero side effects.
var (
	ErrBookNotFound        = errors.New("book not found")
	ErrReaderNotFound      = errors.New("reader not found")
	ErrLoanNotFound        = errors.New("loan record not found")
	ErrReservationNotFound = errors.New("reservation not found")

	ErrBookUnavailable          = errors.New("book unavailable for loan")
	ErrReaderIneligible         = errors.New("reader credit standing blocks borrowing")
	ErrLoanLimitExceeded        = errors.New("max concurrent loans reached")
	ErrLoanAlreadyReturned      = errors.New("loan already returned")
	ErrLoanNotOpen              = errors.New("loan is not open")
	ErrRenewalLimitExceeded     = errors.New("max renewals reached")
	ErrDirectLoanAvailable      = errors.New("book is directly loanable, reservation not needed")
	ErrDuplicateReservation     = errors.New("reader already holds a pending reservation for this book")
	ErrReservationLimitExceeded = errors.New("max pending reservations reached")
	ErrInvalidState             = errors.New("invalid state transition")

	// ErrConflict marks a concurrent-mutation abort; the caller may retry.
	ErrConflict = errors.New("concurrent mutation detected")
	// ErrTransient marks an unavailable store; the caller may retry.
	ErrTransient = errors.New("storage temporarily unavailable")
	// ErrInvariantViolation must never surface in correct operation. The
	// transaction is aborted rather than the data silently repaired.
	ErrInvariantViolation = errors.New("invariant violation")
)

// Kind buckets every error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindPreconditionFailed
	KindConflict
	KindTransient
	KindInvariantViolation
)

var kindOf = map[error]Kind{
	ErrBookNotFound:             KindNotFound,
	ErrReaderNotFound:           KindNotFound,
	ErrLoanNotFound:             KindNotFound,
	ErrReservationNotFound:      KindNotFound,
	ErrBookUnavailable:          KindPreconditionFailed,
	ErrReaderIneligible:         KindPreconditionFailed,
	ErrLoanLimitExceeded:        KindPreconditionFailed,
	ErrLoanAlreadyReturned:      KindPreconditionFailed,
	ErrLoanNotOpen:              KindPreconditionFailed,
	ErrRenewalLimitExceeded:     KindPreconditionFailed,
	ErrDirectLoanAvailable:      KindPreconditionFailed,
	ErrDuplicateReservation:     KindPreconditionFailed,
	ErrReservationLimitExceeded: KindPreconditionFailed,
	ErrInvalidState:             KindPreconditionFailed,
	ErrConflict:                 KindConflict,
	ErrTransient:                KindTransient,
	ErrInvariantViolation:       KindInvariantViolation,
}

var codeOf = map[error]string{
	ErrBookNotFound:             "BOOK_NOT_FOUND",
	ErrReaderNotFound:           "READER_NOT_FOUND",
	ErrLoanNotFound:             "LOAN_NOT_FOUND",
	ErrReservationNotFound:      "RESERVATION_NOT_FOUND",
	ErrBookUnavailable:          "BOOK_UNAVAILABLE",
	ErrReaderIneligible:         "READER_INELIGIBLE",
	ErrLoanLimitExceeded:        "LOAN_LIMIT_EXCEEDED",
	ErrLoanAlreadyReturned:      "LOAN_ALREADY_RETURNED",
	ErrLoanNotOpen:              "LOAN_NOT_OPEN",
	ErrRenewalLimitExceeded:     "RENEWAL_LIMIT_EXCEEDED",
	ErrDirectLoanAvailable:      "DIRECT_LOAN_AVAILABLE",
	ErrDuplicateReservation:     "DUPLICATE_RESERVATION",
	ErrReservationLimitExceeded: "RESERVATION_LIMIT_EXCEEDED",
	ErrInvalidState:             "INVALID_STATE",
	ErrConflict:                 "CONFLICT",
	ErrTransient:                "TRANSIENT_FAILURE",
	ErrInvariantViolation:       "INVARIANT_VIOLATION",
}

// KindOf classifies err, unwrapping as needed. Unknown errors are internal.
func KindOf(err error) Kind {
	for sentinel, k := range kindOf {
		if errors.Is(err, sentinel) {
			return k
		}
	}
	return KindInternal
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	for sentinel, c := range codeOf {
		if errors.Is(err, sentinel) {
			return c
		}
	}
	return "INTERNAL"
}

// Retryable reports whether the caller may safely retry the same request.
func Retryable(err error) bool {
	k := KindOf(err)
	return k == KindConflict || k == KindTransient
}
