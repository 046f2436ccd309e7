package monitoring

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the harvester.
type Metrics struct {
	PagesTotal      *prometheus.CounterVec
	DetailsTotal    *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	FailuresTotal   *prometheus.CounterVec
	RowsWritten     *prometheus.CounterVec
	PagesDiscovered *prometheus.GaugeVec
	PagesDone       *prometheus.GaugeVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the harvester metrics with reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_pages_processed_total",
			Help: "Listing pages processed, by region and result",
		}, []string{"region", "result"}), // result: ok, failed
		DetailsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_detail_fetches_total",
			Help: "Detail page lookups, by result",
		}, []string{"result"}), // result: ok, cached, exhausted
		RetriesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "harvester_detail_retries_total",
			Help: "Detail fetch attempts that were retried after a failure",
		}),
		FailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_absorbed_failures_total",
			Help: "Failures absorbed without aborting the run, by stage",
		}, []string{"stage"}), // stage: detail, page, region, mirror
		RowsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_rows_written_total",
			Help: "Listing rows appended to the sink",
		}, []string{"region"}),
		PagesDiscovered: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_pages_discovered",
			Help: "Total pages discovered for the current run of a region",
		}, []string{"region"}),
		PagesDone: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "harvester_pages_done",
			Help: "Pages finished (successfully or not) in the current run of a region",
		}, []string{"region"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "harvester_http_requests_total",
			Help: "API requests served",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvester_http_request_duration_seconds",
			Help:    "API request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) IncPage(region, result string) {
	m.PagesTotal.WithLabelValues(region, result).Inc()
}

func (m *Metrics) IncDetail(result string) {
	m.DetailsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRetry() {
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncFailure(stage string) {
	m.FailuresTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) AddRows(region string, n int) {
	m.RowsWritten.WithLabelValues(region).Add(float64(n))
}

// StartRegion resets the progress gauges of a region.
func (m *Metrics) StartRegion(region string, totalPages int) {
	m.PagesDiscovered.WithLabelValues(region).Set(float64(totalPages))
	m.PagesDone.WithLabelValues(region).Set(0)
}

func (m *Metrics) IncPagesDone(region string) {
	m.PagesDone.WithLabelValues(region).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, seconds float64) {
	code := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route, code).Observe(seconds)
}
