package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/segyhp/library-engine/internal/metrics"
	"github.com/segyhp/library-engine/pkg/response"
)

// Router wires every endpoint. Metrics and MetricsHandler are optional.
type Router struct {
	Loans          *LoanHandler
	Health         *HealthHandler
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

func NewRouter(deps Router) *mux.Router {
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, "no route for "+r.Method+" "+r.URL.Path)
	})
	router.Use(RequestID, Recover(deps.Logger), Logging(deps.Logger), response.CORSMiddleware)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware)
	}

	// Health check
	router.HandleFunc("/health", deps.Health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", deps.Health.Ready).Methods(http.MethodGet)

	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	// API routes
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(RequireUser)

	api.HandleFunc("/books/{bookId}/availability", deps.Loans.Availability).Methods(http.MethodGet)

	api.HandleFunc("/loans", deps.Loans.CreateLoan).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}", deps.Loans.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/return", deps.Loans.ReturnLoan).Methods(http.MethodPost)

	api.HandleFunc("/me/stats", deps.Loans.MyStats).Methods(http.MethodGet)
	api.HandleFunc("/me/loans/active", deps.Loans.MyActiveLoans).Methods(http.MethodGet)
	api.HandleFunc("/me/loans/history", deps.Loans.MyLoanHistory).Methods(http.MethodGet)
	api.HandleFunc("/me/dashboard", deps.Loans.MyDashboard).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/loans", deps.Loans.ListLoans).Methods(http.MethodGet)

	return router
}
