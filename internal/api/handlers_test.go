package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/circops/internal/api"
	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/models"
	"github.com/punchamoorthee/circops/internal/policy"
	"github.com/punchamoorthee/circops/internal/service"
	"github.com/punchamoorthee/circops/internal/store"
)

func newTestServer(t *testing.T) (*mux.Router, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	svc := service.NewLendingService(mem, policy.Static{Policy: domain.DefaultPolicy()})
	svc.SetClock(func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) })
	handler := api.NewHandler(svc)

	r := mux.NewRouter()
	r.HandleFunc("/health", handler.HealthCheckHandler)
	handler.RegisterRoutes(r.PathPrefix("/api/v1").Subrouter())
	return r, mem
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestServer(t)
	rec := doJSON(t, r, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBorrowEndpoint(t *testing.T) {
	r, mem := newTestServer(t)
	mem.SeedBook(domain.Book{ID: 1, TotalCopies: 1, AvailableCopies: 1, Status: domain.BookActive})
	mem.SeedReader(domain.ReaderAccount{ReaderNo: "R1", CreditStatus: domain.CreditGood})

	rec := doJSON(t, r, "POST", "/api/v1/loans", models.BorrowRequest{ReaderNo: "R1", BookID: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[models.BorrowResponse](t, rec)
	assert.NotEmpty(t, created.LoanNo)
	assert.Equal(t, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC), created.DueDate)

	// Last copy gone: precondition failure with stable code.
	rec = doJSON(t, r, "POST", "/api/v1/loans", models.BorrowRequest{ReaderNo: "R1", BookID: 1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failure := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "BOOK_UNAVAILABLE", failure.Code)
	assert.False(t, failure.Retryable)
}

func TestBorrowEndpoint_BadRequests(t *testing.T) {
	r, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/loans", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, "POST", "/api/v1/loans", models.BorrowRequest{ReaderNo: "R1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, "POST", "/api/v1/loans", models.BorrowRequest{ReaderNo: "R1", BookID: 404})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	failure := decode[models.ErrorResponse](t, rec)
	assert.Equal(t, "BOOK_NOT_FOUND", failure.Code)
}

func TestReturnAndRenewEndpoints(t *testing.T) {
	r, mem := newTestServer(t)
	mem.SeedBook(domain.Book{ID: 1, TotalCopies: 1, AvailableCopies: 1, Status: domain.BookActive})
	mem.SeedReader(domain.ReaderAccount{ReaderNo: "R1", CreditStatus: domain.CreditGood})

	rec := doJSON(t, r, "POST", "/api/v1/loans", models.BorrowRequest{ReaderNo: "R1", BookID: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	loanNo := decode[models.BorrowResponse](t, rec).LoanNo

	rec = doJSON(t, r, "POST", "/api/v1/loans/"+loanNo+"/renew", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	renewed := decode[models.RenewResponse](t, rec)
	assert.Equal(t, time.Date(2025, 7, 31, 12, 0, 0, 0, time.UTC), renewed.NewDueDate)

	rec = doJSON(t, r, "POST", "/api/v1/loans/"+loanNo+"/renew", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "RENEWAL_LIMIT_EXCEEDED", decode[models.ErrorResponse](t, rec).Code)

	rec = doJSON(t, r, "POST", "/api/v1/loans/"+loanNo+"/return", models.ReturnRequest{OperatorID: "staff-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	returned := decode[models.ReturnResponse](t, rec)
	assert.Zero(t, returned.OverdueDays)
	assert.Zero(t, returned.FineAmount)

	rec = doJSON(t, r, "POST", "/api/v1/loans/"+loanNo+"/return", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "LOAN_ALREADY_RETURNED", decode[models.ErrorResponse](t, rec).Code)

	rec = doJSON(t, r, "POST", "/api/v1/loans/Bmissing/return", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservationEndpoints(t *testing.T) {
	r, mem := newTestServer(t)
	mem.SeedBook(domain.Book{ID: 1, TotalCopies: 1, AvailableCopies: 0, Status: domain.BookActive})
	mem.SeedReader(domain.ReaderAccount{ReaderNo: "R1", CreditStatus: domain.CreditGood})

	rec := doJSON(t, r, "POST", "/api/v1/reservations", models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	resNo := decode[models.ReservationResponse](t, rec).ReservationNo
	require.NotEmpty(t, resNo)

	rec = doJSON(t, r, "POST", "/api/v1/reservations", models.ReservationRequest{ReaderNo: "R1", BookID: 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "DUPLICATE_RESERVATION", decode[models.ErrorResponse](t, rec).Code)

	// Copy back on the shelf: fulfill converts the claim into a loan.
	mem.SeedBook(domain.Book{ID: 1, TotalCopies: 1, AvailableCopies: 1, Status: domain.BookReserved})
	rec = doJSON(t, r, "POST", "/api/v1/reservations/"+resNo+"/fulfill", models.FulfillRequest{OperatorID: "staff-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, decode[models.BorrowResponse](t, rec).LoanNo)

	rec = doJSON(t, r, "POST", "/api/v1/reservations/"+resNo+"/cancel", models.CancelRequest{ReaderNo: "R1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_STATE", decode[models.ErrorResponse](t, rec).Code)

	rec = doJSON(t, r, "POST", "/api/v1/reservations/"+resNo+"/cancel", models.CancelRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReaderQueryEndpoints(t *testing.T) {
	r, mem := newTestServer(t)
	mem.SeedReader(domain.ReaderAccount{ReaderNo: "R1", CreditStatus: domain.CreditGood})
	for id := int64(1); id <= 3; id++ {
		mem.SeedBook(domain.Book{ID: id, TotalCopies: 1, AvailableCopies: 1, Status: domain.BookActive})
		rec := doJSON(t, r, "POST", "/api/v1/loans", models.BorrowRequest{ReaderNo: "R1", BookID: id})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, r, "GET", "/api/v1/readers/R1/loans?page=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loans := decode[models.LoanListResponse](t, rec)
	assert.Equal(t, 3, loans.Total)
	assert.Len(t, loans.List, 2)
	assert.Equal(t, 1, loans.Page)
	assert.Equal(t, 2, loans.PageSize)

	rec = doJSON(t, r, "GET", "/api/v1/readers/R1/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reservations := decode[models.ReservationListResponse](t, rec)
	assert.Zero(t, reservations.Total)

	rec = doJSON(t, r, "GET", "/api/v1/readers/R1/standing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	standing := decode[domain.ReaderAccount](t, rec)
	assert.Equal(t, domain.CreditGood, standing.CreditStatus)

	rec = doJSON(t, r, "GET", "/api/v1/readers/ghost/standing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdjustCreditEndpoint(t *testing.T) {
	r, mem := newTestServer(t)
	mem.SeedReader(domain.ReaderAccount{ReaderNo: "R1", CreditStatus: domain.CreditDebt, ArrearsAmount: 5})

	rec := doJSON(t, r, "PUT", "/api/v1/readers/R1/credit", models.CreditAdjustRequest{CreditStatus: domain.CreditGood})
	require.Equal(t, http.StatusOK, rec.Code)
	reader, _ := mem.Reader("R1")
	assert.Equal(t, domain.CreditGood, reader.CreditStatus)
	assert.Zero(t, reader.ArrearsAmount)

	rec = doJSON(t, r, "PUT", "/api/v1/readers/R1/credit", models.CreditAdjustRequest{CreditStatus: domain.CreditGood, ArrearsAmount: 3})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_STATE", decode[models.ErrorResponse](t, rec).Code)

	rec = doJSON(t, r, "PUT", "/api/v1/readers/R1/credit", models.CreditAdjustRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, "PUT", "/api/v1/readers/ghost/credit", models.CreditAdjustRequest{CreditStatus: domain.CreditGood})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOverdueEndpoint(t *testing.T) {
	r, mem := newTestServer(t)
	mem.SeedReader(domain.ReaderAccount{ReaderNo: "R1", CreditStatus: domain.CreditGood})
	mem.SeedBook(domain.Book{ID: 1, TotalCopies: 1, AvailableCopies: 1, Status: domain.BookActive})

	rec := doJSON(t, r, "GET", "/api/v1/loans/overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null\n", rec.Body.String())

	rec = doJSON(t, r, "POST", "/api/v1/loans", models.BorrowRequest{ReaderNo: "R1", BookID: 1})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The clock is fixed, so a fresh loan is never overdue.
	rec = doJSON(t, r, "GET", "/api/v1/loans/overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
