package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/models"
)

// RegisterRoutes mounts every lending endpoint on the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/loans", h.BorrowHandler).Methods("POST")
	r.HandleFunc("/loans/overdue", h.OverdueHandler).Methods("GET")
	r.HandleFunc("/loans/{loan_no}/return", h.ReturnHandler).Methods("POST")
	r.HandleFunc("/loans/{loan_no}/renew", h.RenewHandler).Methods("POST")
	r.HandleFunc("/reservations", h.ReserveHandler).Methods("POST")
	r.HandleFunc("/reservations/{reservation_no}/cancel", h.CancelReservationHandler).Methods("POST")
	r.HandleFunc("/reservations/{reservation_no}/fulfill", h.FulfillReservationHandler).Methods("POST")
	r.HandleFunc("/readers/{reader_no}/loans", h.ReaderLoansHandler).Methods("GET")
	r.HandleFunc("/readers/{reader_no}/reservations", h.ReaderReservationsHandler).Methods("GET")
	r.HandleFunc("/readers/{reader_no}/standing", h.ReaderStandingHandler).Methods("GET")
	r.HandleFunc("/readers/{reader_no}/credit", h.AdjustCreditHandler).Methods("PUT")
}

func (h *Handler) BorrowHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/loans"))
	defer timer.ObserveDuration()

	var req models.BorrowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "malformed JSON body", "POST", "/loans")
		return
	}
	if req.ReaderNo == "" || req.BookID == 0 {
		respondBadRequest(w, "reader_no and book_id are required", "POST", "/loans")
		return
	}

	loan, err := h.lending.BorrowBook(r.Context(), req)
	if err != nil {
		respondDomainError(w, err, "POST", "/loans")
		return
	}
	respondWithJSON(w, http.StatusCreated, models.BorrowResponse{
		LoanNo:  loan.LoanNo,
		DueDate: loan.DueDate,
	}, "POST", "/loans")
}

func (h *Handler) ReturnHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/loans/{loan_no}/return"))
	defer timer.ObserveDuration()

	loanNo := mux.Vars(r)["loan_no"]
	var req models.ReturnRequest
	if r.Body != nil {
		// Body is optional on returns.
		json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := h.lending.ReturnBook(r.Context(), loanNo, req.OperatorID)
	if err != nil {
		respondDomainError(w, err, "POST", "/loans/{loan_no}/return")
		return
	}
	respondWithJSON(w, http.StatusOK, result, "POST", "/loans/{loan_no}/return")
}

func (h *Handler) RenewHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/loans/{loan_no}/renew"))
	defer timer.ObserveDuration()

	result, err := h.lending.RenewLoan(r.Context(), mux.Vars(r)["loan_no"])
	if err != nil {
		respondDomainError(w, err, "POST", "/loans/{loan_no}/renew")
		return
	}
	respondWithJSON(w, http.StatusOK, result, "POST", "/loans/{loan_no}/renew")
}

func (h *Handler) ReserveHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/reservations"))
	defer timer.ObserveDuration()

	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "malformed JSON body", "POST", "/reservations")
		return
	}
	if req.ReaderNo == "" || req.BookID == 0 {
		respondBadRequest(w, "reader_no and book_id are required", "POST", "/reservations")
		return
	}

	res, err := h.lending.CreateReservation(r.Context(), req)
	if err != nil {
		respondDomainError(w, err, "POST", "/reservations")
		return
	}
	respondWithJSON(w, http.StatusCreated, models.ReservationResponse{
		ReservationNo: res.ReservationNo,
	}, "POST", "/reservations")
}

func (h *Handler) CancelReservationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "malformed JSON body", "POST", "/reservations/{reservation_no}/cancel")
		return
	}
	if req.ReaderNo == "" && !req.Staff {
		respondBadRequest(w, "reader_no is required", "POST", "/reservations/{reservation_no}/cancel")
		return
	}

	err := h.lending.CancelReservation(r.Context(), mux.Vars(r)["reservation_no"], req.ReaderNo, req.Staff)
	if err != nil {
		respondDomainError(w, err, "POST", "/reservations/{reservation_no}/cancel")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "cancelled"}, "POST", "/reservations/{reservation_no}/cancel")
}

func (h *Handler) FulfillReservationHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "malformed JSON body", "POST", "/reservations/{reservation_no}/fulfill")
		return
	}

	loan, err := h.lending.FulfillReservation(r.Context(), mux.Vars(r)["reservation_no"], req.OperatorID)
	if err != nil {
		respondDomainError(w, err, "POST", "/reservations/{reservation_no}/fulfill")
		return
	}
	respondWithJSON(w, http.StatusCreated, models.BorrowResponse{
		LoanNo:  loan.LoanNo,
		DueDate: loan.DueDate,
	}, "POST", "/reservations/{reservation_no}/fulfill")
}

func (h *Handler) ReaderLoansHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := paging(r)
	result, err := h.lending.GetReaderLoans(r.Context(),
		mux.Vars(r)["reader_no"],
		domain.LoanStatus(r.URL.Query().Get("status")),
		page, pageSize,
	)
	if err != nil {
		respondDomainError(w, err, "GET", "/readers/{reader_no}/loans")
		return
	}
	respondWithJSON(w, http.StatusOK, result, "GET", "/readers/{reader_no}/loans")
}

func (h *Handler) ReaderReservationsHandler(w http.ResponseWriter, r *http.Request) {
	page, pageSize := paging(r)
	result, err := h.lending.GetReaderReservations(r.Context(),
		mux.Vars(r)["reader_no"],
		domain.ReservationStatus(r.URL.Query().Get("status")),
		page, pageSize,
	)
	if err != nil {
		respondDomainError(w, err, "GET", "/readers/{reader_no}/reservations")
		return
	}
	respondWithJSON(w, http.StatusOK, result, "GET", "/readers/{reader_no}/reservations")
}

func (h *Handler) ReaderStandingHandler(w http.ResponseWriter, r *http.Request) {
	reader, err := h.lending.GetReaderStanding(r.Context(), mux.Vars(r)["reader_no"])
	if err != nil {
		respondDomainError(w, err, "GET", "/readers/{reader_no}/standing")
		return
	}
	respondWithJSON(w, http.StatusOK, reader, "GET", "/readers/{reader_no}/standing")
}

func (h *Handler) AdjustCreditHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreditAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "malformed JSON body", "PUT", "/readers/{reader_no}/credit")
		return
	}
	if req.CreditStatus == "" {
		respondBadRequest(w, "credit_status is required", "PUT", "/readers/{reader_no}/credit")
		return
	}

	err := h.lending.AdjustCredit(r.Context(), mux.Vars(r)["reader_no"], req.CreditStatus, req.ArrearsAmount)
	if err != nil {
		respondDomainError(w, err, "PUT", "/readers/{reader_no}/credit")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "updated"}, "PUT", "/readers/{reader_no}/credit")
}

func (h *Handler) OverdueHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := h.lending.ListOverdueLoans(r.Context())
	if err != nil {
		respondDomainError(w, err, "GET", "/loans/overdue")
		return
	}
	respondWithJSON(w, http.StatusOK, loans, "GET", "/loans/overdue")
}

func paging(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	return page, pageSize
}
