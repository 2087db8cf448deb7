package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-pricing/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("invoice", []float64{10, 1}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices/quote", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/invoices/quote"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/invoices/quote", "204")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))

	// registering twice reuses the existing collectors
	again := obs.NewHTTPMetrics("invoice", nil, registry)
	require.Same(t, metrics.ReqTotal, again.ReqTotal)
}

func TestRequestLoggerUsesRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Get("/rules/{country}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rules/TH", nil))
	require.Equal(t, http.StatusTeapot, rr.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "http_request", entry["message"])
	require.Equal(t, "/rules/{country}", entry["route"])
	require.Equal(t, "/rules/TH", entry["path"])
	require.EqualValues(t, http.StatusTeapot, entry["status"])
	require.NotContains(t, entry, "quote_id")
}

func TestRequestLoggerRecordsQuoteID(t *testing.T) {
	var buf bytes.Buffer
	handler := obs.RequestLogger{Logger: zerolog.New(&buf)}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(obs.QuoteIDHeader, "11111111-1111-1111-1111-111111111111")
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/invoices/quote", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "info", entry["level"])
	require.Equal(t, "11111111-1111-1111-1111-111111111111", entry["quote_id"])
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 12.5}, obs.ParseBucketsCSV(" 5, x, -1, 0, 12.5 "))
	require.Nil(t, obs.ParseBucketsCSV(""))
}
