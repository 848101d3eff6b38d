package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the service's Prometheus collectors. All methods are safe on
// a nil receiver so callers can run without metrics.
type Collector struct {
	requests        *prometheus.CounterVec
	requestDuration prometheus.Histogram
	runs            *prometheus.CounterVec
	rows            *prometheus.CounterVec
	renders         *prometheus.CounterVec
	renderDuration  prometheus.Histogram
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payslip_http_requests_total",
			Help: "HTTP requests by status code",
		}, []string{"code"}),
		requestDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "payslip_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payslip_payroll_runs_total",
			Help: "Payroll runs by outcome",
		}, []string{"outcome"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payslip_payroll_rows_total",
			Help: "Payroll rows derived or rejected",
		}, []string{"outcome"}),
		renders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payslip_renders_total",
			Help: "Payslip documents rendered by outcome",
		}, []string{"outcome"}),
		renderDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "payslip_render_duration_seconds",
			Help:    "Time to render one payslip",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

func (c *Collector) Record(status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(strconv.Itoa(status)).Inc()
	c.requestDuration.Observe(duration.Seconds())
}

func (c *Collector) Run(outcome string) {
	if c != nil {
		c.runs.WithLabelValues(outcome).Inc()
	}
}

func (c *Collector) Rows(derived, rejected int) {
	if c == nil {
		return
	}
	c.rows.WithLabelValues("derived").Add(float64(derived))
	c.rows.WithLabelValues("rejected").Add(float64(rejected))
}

func (c *Collector) Render(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.renders.WithLabelValues(outcome).Inc()
	c.renderDuration.Observe(d.Seconds())
}
