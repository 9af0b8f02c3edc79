package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the conversion engine. All
// collectors live on a dedicated registry so tests can construct isolated
// instances without global state.
type Metrics struct {
	Registry *prometheus.Registry

	ScrapesTotal      *prometheus.CounterVec
	ScrapeDuration    *prometheus.HistogramVec
	BotBlocksTotal    *prometheus.CounterVec
	BreakerRejections *prometheus.CounterVec
	ConversionsTotal  *prometheus.CounterVec
	ProxyReportsTotal *prometheus.CounterVec
	ActiveScrapes     prometheus.Gauge
}

// New constructs and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	scrapes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslist_scrapes_total",
			Help: "Total scrape operations by source marketplace and outcome.",
		},
		[]string{"source", "outcome"},
	)
	scrapeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crosslist_scrape_duration_seconds",
			Help:    "End-to-end scrape latency including retries.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"source"},
	)
	botBlocks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslist_bot_blocks_total",
			Help: "Bot-detection hits by source and block kind.",
		},
		[]string{"source", "kind"},
	)
	breakerRejections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslist_breaker_rejections_total",
			Help: "Calls rejected because the source circuit breaker was open.",
		},
		[]string{"source"},
	)
	conversions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslist_conversions_total",
			Help: "Conversion pipeline results by final status.",
		},
		[]string{"status"},
	)
	proxyReports := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crosslist_proxy_reports_total",
			Help: "Proxy health reports by result.",
		},
		[]string{"result"},
	)
	activeScrapes := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crosslist_active_scrapes",
			Help: "Scrape operations currently in flight.",
		},
	)

	registry.MustRegister(scrapes, scrapeDuration, botBlocks, breakerRejections,
		conversions, proxyReports, activeScrapes)

	return &Metrics{
		Registry:          registry,
		ScrapesTotal:      scrapes,
		ScrapeDuration:    scrapeDuration,
		BotBlocksTotal:    botBlocks,
		BreakerRejections: breakerRejections,
		ConversionsTotal:  conversions,
		ProxyReportsTotal: proxyReports,
		ActiveScrapes:     activeScrapes,
	}
}
