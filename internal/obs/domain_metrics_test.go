package obs_test

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/invoice-pricing/internal/obs"
)

// Domain metrics register once per process, so every assertion lives in this test.
func TestObserveQuote(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("invoice", registry)

	obs.ObserveQuote("ok", "TH", 186180, []string{"Unknown coupon"})
	obs.ObserveQuote("invalid", "", 0, nil)

	require.Equal(t, float64(1), testutil.ToFloat64(obs.InvoiceQuotesTotal.WithLabelValues("ok")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.InvoiceQuotesTotal.WithLabelValues("invalid")))
	require.Equal(t, float64(1), testutil.ToFloat64(obs.InvoiceQuoteWarningsTotal.WithLabelValues("Unknown coupon")))
	require.Equal(t, 1, testutil.CollectAndCount(obs.InvoiceQuoteAmount))

	count, err := testutil.GatherAndCount(registry, "invoice_quotes_total", "invoice_quote_warnings_total", "invoice_quote_total_minor")
	require.NoError(t, err)
	require.Equal(t, 4, count)

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		require.False(t, strings.HasPrefix(mf.GetName(), "invoice_invoice_"), mf.GetName())
	}

	require.NoError(t, testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP invoice_quotes_total Count of invoice quote outcomes.
# TYPE invoice_quotes_total counter
invoice_quotes_total{result="invalid"} 1
invoice_quotes_total{result="ok"} 1
`), "invoice_quotes_total"))
}
