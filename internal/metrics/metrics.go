package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatherbuddy.app/internal/sim/actions"
	"gatherbuddy.app/internal/sim/executor"
	"gatherbuddy.app/internal/sim/fishtimer"
)

const namespace = "gatherbuddy"

type Metrics struct {
	reg *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	actions         *prometheus.CounterVec
	fishRows        *prometheus.CounterVec
	recordsPending  prometheus.Gauge
}

// New registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Gather requests by command and outcome",
		}, []string{"command", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "request_duration_seconds",
			Help:      "Time to resolve a gather request and run its actions",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"command"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "actions",
			Name:      "decisions_total",
			Help:      "Follow-up action decisions by action and result",
		}, []string{"action", "result"}),
		fishRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fish_timer",
			Name:      "rows_total",
			Help:      "Evaluated fish timer rows by availability and caught state",
		}, []string{"available", "caught"}),
		recordsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "pending_writes",
			Help:      "Fish records queued for the database writer",
		}),
	}
	m.reg.MustRegister(m.requests, m.requestDuration, m.actions, m.fishRows, m.recordsPending)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Outcome maps a session error onto a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, executor.ErrNotIdentified):
		return "not_identified"
	case errors.Is(err, executor.ErrLocationNotFound):
		return "location_not_found"
	case errors.Is(err, executor.ErrNoPreviousRequest):
		return "no_previous_request"
	}
	return "error"
}

func (m *Metrics) ObserveRequest(command string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(command, Outcome(err)).Inc()
	m.requestDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) ObserveDecisions(ds []actions.Decision) {
	if m == nil {
		return
	}
	for _, d := range ds {
		result := "skipped"
		if d.Fired {
			result = "fired"
		}
		m.actions.WithLabelValues(string(d.Action), result).Inc()
	}
}

func (m *Metrics) ObserveRows(rows []fishtimer.Row) {
	if m == nil {
		return
	}
	for _, r := range rows {
		m.fishRows.WithLabelValues(boolLabel(r.Available), boolLabel(r.Caught)).Inc()
	}
}

func (m *Metrics) SetPendingRecords(n int) {
	if m == nil {
		return
	}
	m.recordsPending.Set(float64(n))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
