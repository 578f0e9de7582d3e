package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCounter(t *testing.T) {
	m, err := New("memberd", "")
	require.NoError(t, err)

	m.RequestsTotal.WithLabelValues(http.MethodGet, "/quiz/question", "200").Inc()
	m.RequestsTotal.WithLabelValues(http.MethodGet, "/quiz/question", "200").Inc()
	m.RequestsTotal.WithLabelValues(http.MethodPost, "/quiz/question", "403").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues(http.MethodGet, "/quiz/question", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(
		m.RequestsTotal.WithLabelValues(http.MethodPost, "/quiz/question", "403")))
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	m, err := New("memberd", "127.0.0.1:0")
	require.NoError(t, err)

	m.RequestsTotal.WithLabelValues(http.MethodGet, "/quiz/question", "200").Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.srv.Handler.ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 1<<16)
	n, _ := resp.Body.Read(buf)
	assert.Contains(t, string(buf[:n]), "memberd_http_requests_total")
}
