package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/segyhp/library-engine/pkg/response"
)

// NewServer returns an HTTP server exposing gatherer on /metrics, for
// processes that have no API router of their own.
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		response.Success(w, map[string]string{"status": "healthy"})
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
