package models

import (
	"time"

	"github.com/punchamoorthee/circops/internal/domain"
)

// BorrowRequest is the payload from the client. OperatorID is set on the
// staff-desk path and empty for reader self-service.
type BorrowRequest struct {
	ReaderNo   string `json:"reader_no"`
	BookID     int64  `json:"book_id"`
	OperatorID string `json:"operator_id,omitempty"`
}

// BorrowResponse reports the created loan.
type BorrowResponse struct {
	LoanNo  string    `json:"loan_no"`
	DueDate time.Time `json:"due_date"`
}

// ReturnRequest identifies the operator closing a loan, if any.
type ReturnRequest struct {
	OperatorID string `json:"operator_id,omitempty"`
}

// ReturnResponse reports the fine computed at return time.
type ReturnResponse struct {
	OverdueDays int     `json:"overdue_days"`
	FineAmount  float64 `json:"fine_amount"`
}

// RenewResponse reports the extended due date.
type RenewResponse struct {
	NewDueDate time.Time `json:"new_due_date"`
}

// ReservationRequest is the payload for creating a reservation.
type ReservationRequest struct {
	ReaderNo   string `json:"reader_no"`
	BookID     int64  `json:"book_id"`
	OperatorID string `json:"operator_id,omitempty"`
}

// ReservationResponse reports the created reservation.
type ReservationResponse struct {
	ReservationNo string `json:"reservation_no"`
}

// CancelRequest names the caller; Staff permits cancelling reservations the
// caller does not own.
type CancelRequest struct {
	ReaderNo string `json:"reader_no"`
	Staff    bool   `json:"staff,omitempty"`
}

// FulfillRequest names the staff operator converting a reservation to a loan.
type FulfillRequest struct {
	OperatorID string `json:"operator_id"`
}

// CreditAdjustRequest is the staff override for a reader's standing.
type CreditAdjustRequest struct {
	CreditStatus  domain.CreditStatus `json:"credit_status"`
	ArrearsAmount float64             `json:"arrears_amount"`
}

// LoanListResponse is one page of loan records.
type LoanListResponse struct {
	List     []domain.LoanRecord `json:"list"`
	Total    int                 `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"pageSize"`
}

// ReservationListResponse is one page of reservation records.
type ReservationListResponse struct {
	List     []domain.Reservation `json:"list"`
	Total    int                  `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
}

// ErrorResponse is the uniform failure envelope: stable code, human message,
// retry hint. No storage detail leaks through it.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
