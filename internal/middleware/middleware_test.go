package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelight/internal/logging"
)

func newTestRouter(t *testing.T) (*gin.Engine, *PrometheusMiddleware, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := logging.NewWriterLogger("api", &buf, logging.DEBUG)

	reg := prometheus.NewRegistry()
	pm := NewPrometheusMiddleware("test", reg)

	r := gin.New()
	r.Use(NewRequestLogger(logger).Handler())
	r.Use(pm.Handler())
	pm.RegisterMetricsEndpoint(r)

	r.GET("/ok", func(c *gin.Context) {
		id, _ := c.Get(TraceIDKey)
		c.String(http.StatusOK, id.(string))
	})
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	return r, pm, &buf
}

func TestRequestLoggerSetsTraceID(t *testing.T) {
	r, _, buf := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	require.Equal(t, http.StatusOK, w.Code)
	traceID := w.Header().Get("X-Trace-Id")
	assert.NotEmpty(t, traceID)
	assert.Equal(t, traceID, w.Body.String(), "Trace-ID доступен обработчику")
	assert.Contains(t, buf.String(), "/ok 200")
}

func TestPrometheusMiddlewareCounts(t *testing.T) {
	r, pm, buf := newTestRouter(t)

	for _, path := range []string{"/ok", "/fail", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.reqErrors.WithLabelValues("GET", "/fail", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.reqErrors.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.reqInflight))
	assert.Contains(t, buf.String(), "[ERROR]")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "test_http_request_duration_seconds"))
}
