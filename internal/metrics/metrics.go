// Package metrics exposes the bot's Prometheus collectors and the HTTP
// endpoint that serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsbot"

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	FetchTotal     *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	CooldownChecks *prometheus.CounterVec
	Deliveries     *prometheus.CounterVec
	Commands       *prometheus.CounterVec
	UpdatesDropped prometheus.Counter
	ScheduledRuns  *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "News API calls by outcome (ok, empty, failed).",
		}, []string{"outcome"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "News API call latency.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		CooldownChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldown_checks_total",
			Help:      "Eligibility decisions by reason.",
		}, []string{"reason"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Digest sends by path (on_demand, scheduled) and result (ok, error).",
		}, []string{"path", "result"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Routed commands.",
		}, []string{"command"}),
		UpdatesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_dropped_total",
			Help:      "Inbound updates dropped because the dispatch queue was full.",
		}),
		ScheduledRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_runs_total",
			Help:      "Scheduler job runs by job and result (ok, error, skipped).",
		}, []string{"job", "result"}),
	}
}

func (m *Metrics) ObserveFetch(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(took.Seconds())
}

func (m *Metrics) CooldownCheck(reason string) {
	if m == nil {
		return
	}
	m.CooldownChecks.WithLabelValues(reason).Inc()
}

func (m *Metrics) Delivery(path string, err error) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(path, result(err)).Inc()
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(name).Inc()
}

func (m *Metrics) DroppedUpdate() {
	if m == nil {
		return
	}
	m.UpdatesDropped.Inc()
}

func (m *Metrics) ScheduledRun(job, res string) {
	if m == nil {
		return
	}
	m.ScheduledRuns.WithLabelValues(job, res).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
