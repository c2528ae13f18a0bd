package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	require.NotNil(t, metrics)

	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.AuthVerificationsTotal)
	assert.NotNil(t, metrics.AuthDecisionsTotal)
	assert.NotNil(t, metrics.LoginAttemptsTotal)
	assert.NotNil(t, metrics.StorageOperationsTotal)
	assert.NotNil(t, metrics.CacheHitsTotal)

	t.Run("double registration panics", func(t *testing.T) {
		assert.Panics(t, func() { NewMetrics(registry) })
	})
}

func TestMetrics_Recorders(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.RecordVerification("expired")
	metrics.RecordVerification("expired")
	metrics.RecordDecision("owner", "forbidden")
	metrics.RecordLogin("api", "success")
	metrics.RecordLogin("api", "invalid")
	metrics.RecordStorage("put", "s3", time.Now(), errors.New("boom"))
	metrics.RecordCacheHit("membership", "l1")
	metrics.RecordCacheMiss("membership")

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AuthVerificationsTotal.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuthDecisionsTotal.WithLabelValues("owner", "forbidden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.TokensIssuedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.StorageOperationsTotal.WithLabelValues("put", "s3", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues("membership", "l1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues("membership")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.RecordVerification("ok")
		metrics.RecordDecision("role", "allowed")
		metrics.RecordLogin("web", "success")
		metrics.RecordStorage("get", "filesystem", time.Now(), nil)
		metrics.RecordCacheHit("membership", "redis")
		metrics.RecordCacheMiss("membership")
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(metrics))
	router.HandleFunc("/api/projects/{project_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}).Methods("GET")

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest("GET", "/api/projects/"+id, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusTeapot, rr.Code)
	}

	// Route template keeps one series for all ids
	count := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/api/projects/{project_id}", "418"))
	assert.Equal(t, 3.0, count)
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)
	metrics.RecordVerification("ok")

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "workbench_auth_verifications_total"))
}
