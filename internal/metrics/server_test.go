package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer_ExposesReminders(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := New(Options{Registerer: registry})
	require.NoError(t, err)
	m.ReminderSent("loan.due_soon")

	srv := NewServer(":9091", registry)
	assert.Equal(t, ":9091", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `library_reminders_sent_total{type="loan.due_soon"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
