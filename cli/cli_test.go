package cli

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHealth string

func (s staticHealth) Health() string { return string(s) }

func TestHealthHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "framelock_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	for status, code := range map[string]int{
		"ok":       http.StatusOK,
		"warning":  http.StatusTooManyRequests,
		"critical": http.StatusInternalServerError,
	} {
		t.Run(status, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HealthHandler(registry, staticHealth("ok"), staticHealth(status)).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, code, rec.Code)
		})
	}
	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthHandler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "framelock_test_total 1")
	})
}

func TestBootstrap(t *testing.T) {
	ctx := Bootstrap()
	require.NotNil(t, ctx.Logger)
	assert.NotEmpty(t, ctx.ID)
	assert.Equal(t, "dev", Version())
}
