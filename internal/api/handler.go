package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/circops/internal/domain"
	"github.com/punchamoorthee/circops/internal/models"
	"github.com/punchamoorthee/circops/internal/service"
)

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circops_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "circops_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	lending *service.LendingService
}

func NewHandler(svc *service.LendingService) *Handler {
	return &Handler{lending: svc}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPreconditionFailed:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondDomainError writes the uniform failure envelope. Internal and
// invariant errors are logged and masked; everything else carries its stable
// code and message through.
func respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	code := statusFor(err)
	body := models.ErrorResponse{
		Code:      domain.Code(err),
		Message:   err.Error(),
		Retryable: domain.Retryable(err),
	}
	if code >= http.StatusInternalServerError {
		log.Printf("%s %s failed: %v", method, endpoint, err)
		body.Message = "internal error"
	}
	respondWithJSON(w, code, body, method, endpoint)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondBadRequest(w http.ResponseWriter, msg, method, endpoint string) {
	respondWithJSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "BAD_REQUEST", Message: msg}, method, endpoint)
}
