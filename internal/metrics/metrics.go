package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Options controls construction of the collectors.
type Options struct {
	Registerer prometheus.Registerer
	Namespace  string
	Buckets    []float64
}

// Metrics holds the loan engine and HTTP collectors.
type Metrics struct {
	loansIssued   prometheus.Counter
	loansRejected *prometheus.CounterVec
	loansReturned *prometheus.CounterVec
	reminders     *prometheus.CounterVec

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// New constructs the collectors and registers them. Collectors that are
// already registered are reused.
func New(opts Options) (*Metrics, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "library"
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	var err error
	m := &Metrics{}

	if m.loansIssued, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loans_issued_total",
		Help:      "Total number of loans issued.",
	})); err != nil {
		return nil, err
	}

	if m.loansRejected, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loans_rejected_total",
		Help:      "Total number of rejected loan issuances partitioned by error code.",
	}, []string{"code"})); err != nil {
		return nil, err
	}

	if m.loansReturned, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "loans_returned_total",
		Help:      "Total number of returned loans partitioned by timeliness.",
	}, []string{"timeliness"})); err != nil {
		return nil, err
	}

	if m.reminders, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reminders_sent_total",
		Help:      "Total number of due and overdue reminders published partitioned by type.",
	}, []string{"type"})); err != nil {
		return nil, err
	}

	if m.requests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests partitioned by method, route and status code.",
	}, []string{"method", "route", "code"})); err != nil {
		return nil, err
	}

	if m.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Histogram of HTTP request latencies in seconds partitioned by method and route.",
		Buckets:   buckets,
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}

	if m.inFlight, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "in_flight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(C)
			if !ok {
				return c, fmt.Errorf("existing collector has wrong type %T", already.ExistingCollector)
			}
			return existing, nil
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (m *Metrics) LoanIssued() {
	m.loansIssued.Inc()
}

func (m *Metrics) LoanRejected(code string) {
	m.loansRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) LoanReturned(late bool) {
	timeliness := "on_time"
	if late {
		timeliness = "late"
	}
	m.loansReturned.WithLabelValues(timeliness).Inc()
}

func (m *Metrics) ReminderSent(kind string) {
	m.reminders.WithLabelValues(kind).Inc()
}

// Middleware records request count, latency and in-flight requests. Routes
// are labelled by their mux template to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
