package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// InvoiceQuotesTotal counts quote requests by outcome (ok, invalid).
	InvoiceQuotesTotal *prometheus.CounterVec
	// InvoiceQuoteWarningsTotal counts advisory warnings returned with quotes.
	InvoiceQuoteWarningsTotal *prometheus.CounterVec
	// InvoiceQuoteAmount records quoted totals in minor units.
	InvoiceQuoteAmount *prometheus.HistogramVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		InvoiceQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of invoice quote outcomes.",
		}, []string{"result"})
		InvoiceQuoteWarningsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_warnings_total",
			Help:      "Count of advisory warnings attached to invoice quotes.",
		}, []string{"warning"})
		InvoiceQuoteAmount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_total_minor",
			Help:      "Distribution of quoted invoice totals in minor currency units.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		}, []string{"country"})

		mustRegisterCollector(reg, InvoiceQuotesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoiceQuotesTotal = v
			}
		})
		mustRegisterCollector(reg, InvoiceQuoteWarningsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				InvoiceQuoteWarningsTotal = v
			}
		})
		mustRegisterCollector(reg, InvoiceQuoteAmount, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				InvoiceQuoteAmount = v
			}
		})
	})
}

// ObserveQuote records the outcome of a single quote. It is a no-op until the domain metrics are registered.
func ObserveQuote(result, country string, total int64, warnings []string) {
	if InvoiceQuotesTotal == nil {
		return
	}
	InvoiceQuotesTotal.WithLabelValues(result).Inc()
	if result != "ok" {
		return
	}
	InvoiceQuoteAmount.WithLabelValues(country).Observe(float64(total))
	for _, w := range warnings {
		InvoiceQuoteWarningsTotal.WithLabelValues(w).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
